package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"whiteboard/internal/logging"
	"whiteboard/internal/object"
	"whiteboard/internal/store"
)

// Room fans one store subscription out to every connection watching a
// scope.
type Room struct {
	scope object.Scope
	log   logging.Logger
	sub   store.Subscription

	mu         sync.RWMutex
	members    map[string]*peer
	objects    map[string]struct{}
	lastActive time.Time
}

func newRoom(scope object.Scope, log logging.Logger, now time.Time) *Room {
	return &Room{
		scope:      scope,
		log:        log,
		members:    make(map[string]*peer),
		objects:    make(map[string]struct{}),
		lastActive: now,
	}
}

func (r *Room) join(p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[p.id] = p
}

func (r *Room) has(p *peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members[p.id] == p
}

// leave removes p and reports how many members remain.
func (r *Room) leave(p *peer, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, p.id)
	r.lastActive = now
	return len(r.members)
}

// seed records the objects present when the room opened.
func (r *Room) seed(objs []object.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range objs {
		r.objects[o.ID] = struct{}{}
	}
}

func (r *Room) ObjectCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Room) idleSince() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActive, len(r.members) == 0
}

// deliver is the store handler: it tracks the object set and broadcasts
// the event to every member.
func (r *Room) deliver(ev store.Event) {
	r.mu.Lock()
	switch ev.Kind {
	case store.EventDeleted:
		delete(r.objects, ev.Payload.ID)
	default:
		r.objects[ev.Payload.ID] = struct{}{}
	}
	r.mu.Unlock()

	scope := r.scope
	msg, err := json.Marshal(Response{Type: TypeEvent, Scope: &scope, Event: &ev})
	if err != nil {
		r.log.Error(context.Background(), "marshal event", "error", err)
		return
	}
	r.broadcast(msg)
}

func (r *Room) snapshot() []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*peer, 0, len(r.members))
	for _, p := range r.members {
		peers = append(peers, p)
	}
	return peers
}

// broadcast queues msg for every member. Members that cannot keep up are
// dropped and disconnected; the store's delivery never waits on a socket.
func (r *Room) broadcast(msg []byte) {
	var failed []*peer
	for _, p := range r.snapshot() {
		if !p.enqueue(msg) {
			r.log.Warn(context.Background(), "send queue full", "peer", p.id)
			failed = append(failed, p)
		}
	}

	if len(failed) == 0 {
		return
	}
	r.mu.Lock()
	for _, p := range failed {
		delete(r.members, p.id)
	}
	r.mu.Unlock()
	for _, p := range failed {
		p.Close()
	}
}
