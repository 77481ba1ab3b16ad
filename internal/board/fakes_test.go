package board

import (
	"context"
	"errors"
	"sync"

	"whiteboard/internal/object"
	"whiteboard/internal/store"
	"whiteboard/internal/store/memstore"
)

var errUnavailable = errors.New("backend unavailable")

// flakyStore wraps a memstore with switchable failures and call counters.
type flakyStore struct {
	*memstore.Store

	mu            sync.Mutex
	failSubscribe bool
	failWrites    bool
	createGate    chan struct{}
	updateGate    chan struct{}
	subscribes    int
	lists         int
	updates       []object.Patch
	feeds         []*store.Feed
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memstore.New(0)}
}

func (f *flakyStore) set(fn func(f *flakyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *flakyStore) Subscribe(ctx context.Context, scope object.Scope, h store.Handler) (store.Subscription, error) {
	f.mu.Lock()
	f.subscribes++
	fail := f.failSubscribe
	f.mu.Unlock()
	if fail {
		return nil, errUnavailable
	}

	sub, err := f.Store.Subscribe(ctx, scope, h)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.feeds = append(f.feeds, sub.(*store.Feed))
	f.mu.Unlock()
	return sub, nil
}

func (f *flakyStore) List(ctx context.Context, scope object.Scope) ([]object.Object, error) {
	f.mu.Lock()
	f.lists++
	f.mu.Unlock()
	return f.Store.List(ctx, scope)
}

func (f *flakyStore) Create(ctx context.Context, scope object.Scope, obj object.Object) (object.Object, error) {
	f.mu.Lock()
	gate, fail := f.createGate, f.failWrites
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail {
		return object.Object{}, errUnavailable
	}
	return f.Store.Create(ctx, scope, obj)
}

func (f *flakyStore) Update(ctx context.Context, scope object.Scope, id string, patch object.Patch) (object.Object, error) {
	f.mu.Lock()
	gate, fail := f.updateGate, f.failWrites
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if fail {
		return object.Object{}, errUnavailable
	}
	updated, err := f.Store.Update(ctx, scope, id, patch)
	f.mu.Lock()
	f.updates = append(f.updates, patch)
	f.mu.Unlock()
	return updated, err
}

func (f *flakyStore) Delete(ctx context.Context, scope object.Scope, id string) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return errUnavailable
	}
	return f.Store.Delete(ctx, scope, id)
}

func (f *flakyStore) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

func (f *flakyStore) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *flakyStore) updateLog() []object.Patch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]object.Patch(nil), f.updates...)
}

func (f *flakyStore) lastFeed() *store.Feed {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.feeds) == 0 {
		return nil
	}
	return f.feeds[len(f.feeds)-1]
}
