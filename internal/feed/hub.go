package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"whiteboard/internal/logging"
	"whiteboard/internal/object"
	"whiteboard/internal/store"
)

const maxCleanupInterval = 15 * time.Minute

// Hub owns the rooms, one per scope with at least one subscriber. Empty
// rooms keep their store subscription until they have been idle for the
// configured timeout.
type Hub struct {
	store    store.Store
	clock    clock.Clock
	log      logging.Logger
	maxRooms int
	idle     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[object.Scope]*Room
}

func NewHub(st store.Store, c clock.Clock, log logging.Logger, maxRooms int, idle time.Duration) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		store:    st,
		clock:    c,
		log:      log,
		maxRooms: maxRooms,
		idle:     idle,
		ctx:      ctx,
		cancel:   cancel,
		rooms:    make(map[object.Scope]*Room),
	}
}

// Join adds p to scope's room, opening the room if needed.
func (h *Hub) Join(ctx context.Context, scope object.Scope, p *peer) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rm, ok := h.rooms[scope]; ok {
		rm.join(p)
		h.log.Info(ctx, "joined room", "scope", scope.String(), "peer", p.id)
		return rm, nil
	}
	if len(h.rooms) >= h.maxRooms {
		return nil, ErrRoomLimit
	}

	rm := newRoom(scope, h.log.With("scope", scope.String()), h.clock.Now())
	sub, err := h.store.Subscribe(h.ctx, scope, rm.deliver)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", scope, err)
	}
	objs, err := h.store.List(ctx, scope)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("list %s: %w", scope, err)
	}
	rm.sub = sub
	rm.seed(objs)
	rm.join(p)
	h.rooms[scope] = rm

	go h.watch(rm)

	h.log.Info(ctx, "opened room", "scope", scope.String(), "peer", p.id, "objects", len(objs))
	return rm, nil
}

// Leave removes p from scope's room.
func (h *Hub) Leave(scope object.Scope, p *peer) {
	h.mu.Lock()
	rm, ok := h.rooms[scope]
	h.mu.Unlock()
	if !ok {
		return
	}
	left := rm.leave(p, h.clock.Now())
	h.log.Info(context.Background(), "left room", "scope", scope.String(), "peer", p.id, "remaining", left)
}

// watch tells members when the store drops the room's subscription and
// retires the room so the next subscriber opens a fresh one.
func (h *Hub) watch(rm *Room) {
	<-rm.sub.Done()
	err := rm.sub.Err()
	if err == nil {
		return
	}

	h.mu.Lock()
	if h.rooms[rm.scope] == rm {
		delete(h.rooms, rm.scope)
	}
	h.mu.Unlock()

	h.log.Warn(context.Background(), "room feed lost", "scope", rm.scope.String(), "error", err)
	scope := rm.scope
	for _, p := range rm.snapshot() {
		if err := p.send(Response{Type: TypeFeedLost, Scope: &scope, Error: err.Error()}); err != nil {
			p.Close()
		}
	}
}

// ObjectCount returns the number of objects in scope, from the room when
// one is open.
func (h *Hub) ObjectCount(ctx context.Context, scope object.Scope) (int, error) {
	h.mu.Lock()
	rm, ok := h.rooms[scope]
	h.mu.Unlock()
	if ok {
		return rm.ObjectCount(), nil
	}

	objs, err := h.store.List(ctx, scope)
	if err != nil {
		return 0, err
	}
	return len(objs), nil
}

// Room returns scope's open room.
func (h *Hub) Room(scope object.Scope) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[scope]
	return rm, ok
}

func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Cleanup closes rooms that have been empty longer than the idle timeout.
func (h *Hub) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	for scope, rm := range h.rooms {
		since, empty := rm.idleSince()
		if empty && now.Sub(since) > h.idle {
			rm.sub.Close()
			delete(h.rooms, scope)
			h.log.Info(context.Background(), "room expired", "scope", scope.String())
		}
	}
}

// Run sweeps idle rooms until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	ticker := h.clock.Ticker(min(h.idle, maxCleanupInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Cleanup()
		}
	}
}

// Close ends every room's subscription.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for scope, rm := range h.rooms {
		rm.sub.Close()
		delete(h.rooms, scope)
	}
}
