// Package memstore is an in-process store.Store with a scoped change feed.
// It backs offline sessions and the feed server when no Redis is configured.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"whiteboard/internal/codec"
	"whiteboard/internal/object"
	"whiteboard/internal/store"
)

type subscriber struct {
	handler store.Handler
	feed    *store.Feed
}

type scopeState struct {
	objects map[string]object.Object
	rev     int64
	subs    map[*subscriber]struct{}

	// held across delivery so the scope's events reach handlers in
	// revision order; other scopes are not held up
	deliverMu sync.Mutex
}

// Store keeps objects in memory, partitioned by scope.
type Store struct {
	validator *object.Validator
	ceiling   int

	mu     sync.Mutex
	scopes map[object.Scope]*scopeState
}

// New returns an empty store enforcing ceiling bytes per string field.
func New(ceiling int) *Store {
	if ceiling <= 0 {
		ceiling = codec.DefaultCeiling
	}
	return &Store{
		validator: object.NewValidator(),
		ceiling:   ceiling,
		scopes:    make(map[object.Scope]*scopeState),
	}
}

func (s *Store) state(scope object.Scope) *scopeState {
	st, ok := s.scopes[scope]
	if !ok {
		st = &scopeState{
			objects: make(map[string]object.Object),
			subs:    make(map[*subscriber]struct{}),
		}
		s.scopes[scope] = st
	}
	return st
}

func (s *Store) Create(ctx context.Context, scope object.Scope, obj object.Object) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}
	obj, err := s.check(scope, obj)
	if err != nil {
		return object.Object{}, err
	}

	s.mu.Lock()
	st := s.state(scope)
	st.rev++
	obj.ID = uuid.NewString()
	obj.Seq, obj.Rev = st.rev, st.rev
	st.objects[obj.ID] = obj
	s.publishLocked(st, store.Event{Kind: store.EventCreated, Payload: obj})
	return obj, nil
}

func (s *Store) Update(ctx context.Context, scope object.Scope, id string, patch object.Patch) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}

	s.mu.Lock()
	st := s.state(scope)
	current, ok := st.objects[id]
	if !ok {
		s.mu.Unlock()
		return object.Object{}, store.ErrNotFound
	}
	updated, err := s.check(scope, patch.Apply(current))
	if err != nil {
		s.mu.Unlock()
		return object.Object{}, err
	}
	st.rev++
	updated.Rev = st.rev
	st.objects[id] = updated
	s.publishLocked(st, store.Event{Kind: store.EventUpdated, Payload: updated})
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, scope object.Scope, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	st := s.state(scope)
	current, ok := st.objects[id]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(st.objects, id)
	st.rev++
	tombstone := object.Object{ID: id, TeamID: current.TeamID, BoardID: current.BoardID, Kind: current.Kind, Rev: st.rev}
	s.publishLocked(st, store.Event{Kind: store.EventDeleted, Payload: tombstone})
	return nil
}

func (s *Store) List(ctx context.Context, scope object.Scope) ([]object.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !scope.Valid() {
		return nil, store.ErrInvalidScope
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(scope)
	objs := make([]object.Object, 0, len(st.objects))
	for _, o := range st.objects {
		objs = append(objs, o)
	}
	store.SortBySeq(objs)
	return objs, nil
}

// Subscribe registers h for every change in scope until the returned
// subscription is closed or ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context, scope object.Scope, h store.Handler) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !scope.Valid() {
		return nil, store.ErrInvalidScope
	}

	sub := &subscriber{handler: h}
	sub.feed = store.NewFeed(func() {
		s.mu.Lock()
		delete(s.state(scope).subs, sub)
		s.mu.Unlock()
	})

	s.mu.Lock()
	s.state(scope).subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.feed.Close()
		case <-sub.feed.Done():
		}
	}()

	return sub.feed, nil
}

// check binds obj to scope, then validates and size-checks it.
func (s *Store) check(scope object.Scope, obj object.Object) (object.Object, error) {
	obj, err := store.Bind(scope, obj)
	if err != nil {
		return object.Object{}, err
	}
	if err := store.CheckFields(obj, s.ceiling); err != nil {
		return object.Object{}, err
	}
	return s.validator.Validate(obj)
}

// publishLocked is called with s.mu held and releases it before invoking
// handlers.
func (s *Store) publishLocked(st *scopeState, ev store.Event) {
	subs := make([]*subscriber, 0, len(st.subs))
	for sub := range st.subs {
		subs = append(subs, sub)
	}
	st.deliverMu.Lock()
	s.mu.Unlock()
	defer st.deliverMu.Unlock()

	for _, sub := range subs {
		select {
		case <-sub.feed.Done():
			continue
		default:
		}
		sub.handler(ev)
	}
}

var _ store.Store = (*Store)(nil)
