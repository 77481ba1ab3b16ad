package board

import (
	"context"
	"fmt"

	"whiteboard/internal/store"
)

// handleEvent is the change-feed handler. It never calls the store.
func (b *Board) handleEvent(ev store.Event) {
	if !ev.Payload.InScope(b.scope) {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.applyingLocalEdit {
		b.dirty = true
		b.mu.Unlock()
		b.log.Debug(b.ctx, "dropped event during local edit", "kind", ev.Kind, "id", ev.Payload.ID)
		return
	}
	changed := b.applyLocked(ev)
	b.mu.Unlock()

	if changed {
		b.notify()
	}
}

// applyLocked merges one event by revision and reports whether the local
// view changed.
func (b *Board) applyLocked(ev store.Event) bool {
	id := ev.Payload.ID
	b.gen++
	b.touched[id] = b.gen

	if ev.Kind == store.EventDeleted {
		if ev.Payload.Rev > b.tombstones[id] {
			b.tombstones[id] = ev.Payload.Rev
		}
		_, ok := b.objects[id]
		delete(b.objects, id)
		delete(b.pending, id)
		return ok
	}

	if b.tombstoned(id, ev.Payload.Rev) {
		return false
	}
	if b.busyLocked(id) {
		b.dirty = true
		return false
	}
	if cur, ok := b.objects[id]; ok && cur.Rev > ev.Payload.Rev {
		return false
	}
	b.objects[id] = ev.Payload
	return true
}

func (b *Board) tombstoned(id string, rev int64) bool {
	t, ok := b.tombstones[id]
	return ok && t >= rev
}

// Resync replaces the local view with the store's list for the scope.
// Objects with unconfirmed local edits keep their local state, and objects
// changed by events after the fetch started are not rolled back.
func (b *Board) Resync(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	start := b.gen
	b.mu.Unlock()

	objs, err := b.store.List(ctx, b.scope)
	if err != nil {
		b.log.Warn(ctx, "list failed", "error", err)
		return fmt.Errorf("list %s: %w", b.scope, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	listed := make(map[string]bool, len(objs))
	for _, o := range objs {
		if !o.InScope(b.scope) {
			continue
		}
		listed[o.ID] = true
		if b.tombstoned(o.ID, o.Rev) || b.busyLocked(o.ID) {
			continue
		}
		if cur, ok := b.objects[o.ID]; ok && cur.Rev > o.Rev {
			continue
		}
		b.objects[o.ID] = o
	}
	for id := range b.objects {
		if listed[id] || IsTemporary(id) || b.busyLocked(id) || b.touched[id] > start {
			continue
		}
		delete(b.objects, id)
	}

	b.loaded = true
	if !b.applyingLocalEdit {
		b.dirty = false
	}
	b.mu.Unlock()

	b.notify()
	return nil
}

func (b *Board) armEchoLocked() {
	stopTimer(&b.echoTimer)
	b.echoTimer = b.clock.AfterFunc(b.cfg.EchoWindow, b.endEchoWindow)
}

// endEchoWindow clears the suppression flag once no write from the gesture
// is still outstanding, then refetches if events were dropped meanwhile.
func (b *Board) endEchoWindow() {
	b.mu.Lock()
	b.echoTimer = nil
	if b.closed || b.editing {
		b.mu.Unlock()
		return
	}
	if len(b.inflight) > 0 || len(b.pending) > 0 {
		b.armEchoLocked()
		b.mu.Unlock()
		return
	}
	b.applyingLocalEdit = false
	b.editTargets = make(map[string]bool)
	dirty := b.dirty
	b.mu.Unlock()

	if dirty {
		_ = b.Resync(b.ctx)
	}
}

// ApplyingLocalEdit reports whether change-feed events are currently being
// suppressed.
func (b *Board) ApplyingLocalEdit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applyingLocalEdit
}
