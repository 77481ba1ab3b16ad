package board

import (
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"whiteboard/internal/store"
)

// connect makes one subscription attempt. Only one attempt runs at a time.
func (b *Board) connect() {
	b.mu.Lock()
	if b.closed || b.connecting || b.sub != nil {
		b.mu.Unlock()
		return
	}
	b.connecting = true
	b.mu.Unlock()

	sub, err := b.store.Subscribe(b.ctx, b.scope, b.handleEvent)

	b.mu.Lock()
	b.connecting = false
	if b.closed {
		b.mu.Unlock()
		if sub != nil {
			_ = sub.Close()
		}
		return
	}

	if err != nil {
		b.subscribeFailedLocked(err)
		return
	}

	b.sub = sub
	b.retry.Reset()
	stopTimer(&b.retryTimer)
	stopTimer(&b.pollTimer)
	changed := b.setStatusLocked(StatusConnected)
	b.mu.Unlock()

	go b.watch(sub)
	// catch up on anything missed while disconnected
	_ = b.Resync(b.ctx)
	if changed {
		b.notify()
	}
}

// subscribeFailedLocked is called with b.mu held and releases it.
func (b *Board) subscribeFailedLocked(err error) {
	b.log.Warn(b.ctx, "subscribe failed", "status", b.status, "error", err)

	var changed, load bool
	if b.status != StatusOffline {
		changed, load = b.scheduleRetryLocked()
	}
	load = load || !b.loaded
	b.mu.Unlock()

	b.report(fmt.Errorf("%w: %w", ErrSubscriptionFailed, err))
	if load {
		_ = b.Resync(b.ctx)
	}
	if changed {
		b.notify()
	}
}

// scheduleRetryLocked arms the next backoff attempt, or switches to
// polling once attempts are exhausted. It reports whether the status
// changed and whether the caller should fetch the list now.
func (b *Board) scheduleRetryLocked() (changed, load bool) {
	delay := b.retry.NextBackOff()
	if delay == backoff.Stop {
		changed = b.setStatusLocked(StatusOffline)
		b.startPollingLocked()
		return changed, true
	}

	changed = b.setStatusLocked(StatusDegraded)
	stopTimer(&b.retryTimer)
	b.retryTimer = b.clock.AfterFunc(delay, b.connect)
	return changed, false
}

func (b *Board) startPollingLocked() {
	if b.pollTimer != nil {
		return
	}
	b.log.Info(b.ctx, "polling fallback started", "interval", b.cfg.PollInterval)
	b.pollTimer = b.clock.AfterFunc(b.cfg.PollInterval, b.poll)
}

// poll refetches the list and makes one subscription attempt per tick for
// as long as the board is offline.
func (b *Board) poll() {
	b.mu.Lock()
	if b.closed || b.status != StatusOffline {
		b.pollTimer = nil
		b.mu.Unlock()
		return
	}
	b.pollTimer = b.clock.AfterFunc(b.cfg.PollInterval, b.poll)
	b.mu.Unlock()

	_ = b.Resync(b.ctx)
	b.connect()
}

// watch restarts the retry cycle when a live feed ends unexpectedly.
func (b *Board) watch(sub store.Subscription) {
	<-sub.Done()

	b.mu.Lock()
	if b.closed || b.sub != sub {
		b.mu.Unlock()
		return
	}
	b.sub = nil
	b.retry.Reset()
	b.log.Warn(b.ctx, "change feed ended", "error", sub.Err())
	changed, load := b.scheduleRetryLocked()
	b.mu.Unlock()

	b.report(fmt.Errorf("%w: %w", ErrSubscriptionFailed, store.ErrFeedLost))
	if load {
		_ = b.Resync(b.ctx)
	}
	if changed {
		b.notify()
	}
}

// Reconnect abandons any pending backoff delay and attempts to subscribe
// immediately.
func (b *Board) Reconnect() {
	b.mu.Lock()
	stopTimer(&b.retryTimer)
	b.mu.Unlock()
	go b.connect()
}
