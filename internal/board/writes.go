package board

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"whiteboard/internal/object"
	"whiteboard/internal/store"
)

// Create adds obj locally under a temporary id and writes it to the store
// in the background. The temporary id keeps resolving through Object and
// Resolve once the store id is known.
func (b *Board) Create(obj object.Object) string {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ""
	}

	tmp := tempPrefix + uuid.NewString()
	obj.TeamID, obj.BoardID = b.scope.TeamID, b.scope.BoardID
	obj.Rev = 0

	local := obj
	local.ID = tmp
	local.Seq = b.maxSeqLocked() + 1
	b.objects[tmp] = local
	b.creating[tmp] = &pendingCreate{}

	obj.ID, obj.Seq = "", 0
	b.writes.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.writes.Done()
		created, err := b.store.Create(b.ctx, b.scope, obj)
		b.finishCreate(tmp, created, err)
	}()

	b.notify()
	return tmp
}

func (b *Board) finishCreate(tmp string, created object.Object, err error) {
	b.mu.Lock()
	pc := b.creating[tmp]
	delete(b.creating, tmp)
	delete(b.objects, tmp)
	if b.closed {
		if err == nil {
			b.drainCreateLocked(created.ID, pc)
		}
		b.mu.Unlock()
		return
	}
	if err != nil {
		b.dirty = true
		b.mu.Unlock()
		b.writeFailed("create", tmp, err)
		b.notify()
		return
	}

	id := created.ID
	b.resolved[tmp] = id

	switch {
	case pc.deleted:
		delete(b.objects, id)
		b.tombstones[id] = math.MaxInt64
		b.sendDeleteLocked(id)
	case b.tombstoned(id, created.Rev):
	default:
		if cur, ok := b.objects[id]; ok && cur.Rev > created.Rev {
			created = cur
		}
		if !pc.patch.Empty() {
			created = pc.patch.Apply(created)
			b.pending[id] = pc.patch
			if b.applyingLocalEdit {
				b.editTargets[id] = true
			}
			b.scheduleLocked(id)
		}
		b.objects[id] = created
	}
	b.mu.Unlock()
	b.notify()
}

// drainCreateLocked sends what was queued for a create that completed
// after Close started.
func (b *Board) drainCreateLocked(id string, pc *pendingCreate) {
	switch {
	case pc.deleted:
		b.sendDeleteLocked(id)
	case !pc.patch.Empty():
		b.pending[id] = pc.patch
		b.sendLocked(id)
	}
}

// BeginEdit starts a drag or resize gesture. Until the echo window after
// EndEdit has passed, change-feed events are dropped.
func (b *Board) BeginEdit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.editing = true
	b.applyingLocalEdit = true
	stopTimer(&b.echoTimer)
}

// Edit applies patch to the local object immediately and queues it for the
// store. Inside a gesture writes are throttled to one per write interval
// and skipped patches are merged into the next write; outside a gesture
// the write is issued at once.
func (b *Board) Edit(id string, patch object.Patch) {
	if patch.Empty() {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	id = b.resolveLocked(id)
	cur, ok := b.objects[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	b.objects[id] = patch.Apply(cur)

	if pc, ok := b.creating[id]; ok {
		pc.patch = pc.patch.Merge(patch)
	} else {
		b.pending[id] = b.pending[id].Merge(patch)
		if b.editing {
			b.editTargets[id] = true
		}
		b.scheduleLocked(id)
	}
	b.mu.Unlock()
	b.notify()
}

// EndEdit finishes the gesture, writing the final state of every edited
// object unconditionally. Echo suppression ends one echo window later, once
// those writes have completed.
func (b *Board) EndEdit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || !b.editing {
		return
	}
	b.editing = false
	stopTimer(&b.flushTimer)
	b.flushAllLocked()
	b.armEchoLocked()
}

// Delete removes id locally and from the store.
func (b *Board) Delete(id string) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	id = b.resolveLocked(id)
	if pc, ok := b.creating[id]; ok {
		pc.deleted = true
		delete(b.objects, id)
		b.mu.Unlock()
		b.notify()
		return
	}
	if _, ok := b.objects[id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.objects, id)
	delete(b.pending, id)
	b.tombstones[id] = math.MaxInt64
	b.sendDeleteLocked(id)
	b.mu.Unlock()
	b.notify()
}

// scheduleLocked sends id's pending patch now if the throttle allows and
// otherwise arms the trailing flush.
func (b *Board) scheduleLocked(id string) {
	if !b.editing || b.limiter.AllowN(b.clock.Now(), 1) {
		b.sendLocked(id)
		return
	}
	b.armFlushLocked()
}

func (b *Board) armFlushLocked() {
	if b.flushTimer != nil {
		return
	}
	b.flushTimer = b.clock.AfterFunc(b.cfg.WriteInterval, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.flushTimer = nil
		if b.closed {
			return
		}
		b.limiter.AllowN(b.clock.Now(), 1)
		b.flushAllLocked()
	})
}

func (b *Board) flushAllLocked() {
	for id := range b.pending {
		b.sendLocked(id)
	}
}

// sendLocked issues at most one update per object at a time, so the store
// receives an object's writes in the order they were made.
func (b *Board) sendLocked(id string) {
	if b.inflight[id] {
		return
	}
	patch, ok := b.pending[id]
	if !ok {
		return
	}
	delete(b.pending, id)
	if patch.Empty() {
		return
	}

	b.inflight[id] = true
	b.writes.Add(1)
	go func() {
		defer b.writes.Done()
		updated, err := b.store.Update(b.ctx, b.scope, id, patch)
		b.finishUpdate(id, updated, err)
	}()
}

func (b *Board) finishUpdate(id string, updated object.Object, err error) {
	b.mu.Lock()
	delete(b.inflight, id)
	if b.closed {
		// Close is waiting on writes; the queued terminal value still goes out
		if err == nil {
			b.sendLocked(id)
		}
		b.mu.Unlock()
		return
	}

	if err != nil {
		delete(b.pending, id)
		_, deleted := b.tombstones[id]
		if deleted && errors.Is(err, store.ErrNotFound) {
			b.mu.Unlock()
			return
		}
		b.dirty = true
		b.mu.Unlock()
		b.writeFailed("update", id, err)
		return
	}

	if cur, ok := b.objects[id]; ok && updated.Rev > cur.Rev {
		if b.busyLocked(id) {
			// local geometry is ahead; only the revision is stale
			cur.Rev = updated.Rev
			b.objects[id] = cur
		} else {
			b.objects[id] = updated
		}
	}

	if _, ok := b.pending[id]; ok {
		if b.editing {
			b.armFlushLocked()
		} else {
			b.sendLocked(id)
		}
	}
	resync := b.dirty && !b.applyingLocalEdit && b.idleLocked()
	b.mu.Unlock()

	if resync {
		_ = b.Resync(b.ctx)
	}
}

func (b *Board) sendDeleteLocked(id string) {
	b.writes.Add(1)
	go func() {
		defer b.writes.Done()
		err := b.store.Delete(b.ctx, b.scope, id)
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return
		}
		b.mu.Lock()
		if b.tombstones[id] == math.MaxInt64 {
			delete(b.tombstones, id)
		}
		b.dirty = true
		b.mu.Unlock()
		b.writeFailed("delete", id, err)
	}()
}

// writeFailed reports a failed write and reloads the scope so the local
// optimistic state cannot diverge permanently.
func (b *Board) writeFailed(op, id string, err error) {
	if b.ctx.Err() != nil {
		return
	}
	b.log.Error(b.ctx, "store write failed", "op", op, "id", id, "error", err)
	b.report(fmt.Errorf("%w: %s %s: %w", ErrStoreWriteFailed, op, id, err))
	_ = b.Resync(b.ctx)
}
