package store

import "sync"

// Feed is a reusable Subscription implementation for store backends.
type Feed struct {
	done   chan struct{}
	cancel func()
	once   sync.Once

	mu  sync.Mutex
	err error
}

// NewFeed returns an open feed; cancel is invoked once when the feed ends.
func NewFeed(cancel func()) *Feed {
	if cancel == nil {
		cancel = func() {}
	}
	return &Feed{done: make(chan struct{}), cancel: cancel}
}

func (f *Feed) Done() <-chan struct{} { return f.done }

func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close ends the feed without error. Safe to call multiple times.
func (f *Feed) Close() error {
	f.Finish(nil)
	return nil
}

// Finish ends the feed with err. Only the first call has any effect.
func (f *Feed) Finish(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		f.cancel()
		close(f.done)
	})
}
