// Package board reconciles a client's local view of one whiteboard with
// the shared object store.
//
// Local mutations are applied immediately and written to the store in the
// background, throttled and coalesced. Change-feed events are merged by
// store revision (last write wins per object). While a local drag or
// resize is in progress, and for a short echo window after it, incoming
// events are dropped so stale echoes cannot clobber the in-flight edit;
// the board refetches the list once the window closes. Subscription
// failures are retried with exponential backoff and then fall back to
// polling.
package board

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"whiteboard/internal/config"
	"whiteboard/internal/logging"
	"whiteboard/internal/object"
	"whiteboard/internal/store"
)

// Status is the health of the board's connection to the change feed.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusDegraded   Status = "degraded"
	StatusOffline    Status = "offline"
)

var (
	ErrStoreWriteFailed   = errors.New("store write failed")
	ErrSubscriptionFailed = errors.New("subscription failed")
	ErrClosed             = errors.New("board closed")
)

const tempPrefix = "tmp-"

// IsTemporary reports whether id was assigned locally to an object whose
// create has not been confirmed by the store.
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// pendingCreate holds edits made to an object before the store assigned
// its id.
type pendingCreate struct {
	patch   object.Patch
	deleted bool
}

// Board is one client's view of a single scope.
type Board struct {
	store    store.Store
	scope    object.Scope
	clock    clock.Clock
	log      logging.Logger
	cfg      config.SyncConfig
	onChange func()
	onError  func(error)

	ctx    context.Context
	cancel context.CancelFunc
	writes sync.WaitGroup

	mu     sync.Mutex
	closed bool

	objects    map[string]object.Object
	tombstones map[string]int64
	// touched records the generation at which an event last changed an
	// id, so a slow List cannot undo newer events.
	touched map[string]uint64
	gen     uint64
	loaded  bool

	status     Status
	sub        store.Subscription
	connecting bool
	retry      backoff.BackOff
	retryTimer *clock.Timer
	pollTimer  *clock.Timer

	editing           bool
	applyingLocalEdit bool
	editTargets       map[string]bool
	dirty             bool
	echoTimer         *clock.Timer

	limiter    *rate.Limiter
	flushTimer *clock.Timer
	pending    map[string]object.Patch
	inflight   map[string]bool
	creating   map[string]*pendingCreate
	resolved   map[string]string
}

// Open starts reconciling scope against st. The board subscribes and loads
// the object list in the background; Status reports progress.
func Open(ctx context.Context, st store.Store, scope object.Scope, opts ...Option) (*Board, error) {
	if !scope.Valid() {
		return nil, store.ErrInvalidScope
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.sync.MaxAttempts < 1 {
		o.sync.MaxAttempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = o.sync.BackoffBase
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	exp.MaxInterval = o.sync.BackoffMax
	exp.MaxElapsedTime = 0
	exp.Clock = o.clock
	exp.Reset()

	// the first attempt is not a retry
	var retry backoff.BackOff = &backoff.StopBackOff{}
	if o.sync.MaxAttempts > 1 {
		retry = backoff.WithMaxRetries(exp, uint64(o.sync.MaxAttempts-1))
	}

	ctx, cancel := context.WithCancel(ctx)
	b := &Board{
		store:    st,
		scope:    scope,
		clock:    o.clock,
		log:      o.log.With("scope", scope.String()),
		cfg:      o.sync,
		onChange: o.onChange,
		onError:  o.onError,
		ctx:      ctx,
		cancel:   cancel,

		objects:     make(map[string]object.Object),
		tombstones:  make(map[string]int64),
		touched:     make(map[string]uint64),
		status:      StatusConnecting,
		retry:       retry,
		editTargets: make(map[string]bool),
		limiter:     rate.NewLimiter(rate.Every(o.sync.WriteInterval), 1),
		pending:     make(map[string]object.Patch),
		inflight:    make(map[string]bool),
		creating:    make(map[string]*pendingCreate),
		resolved:    make(map[string]string),
	}

	go b.connect()
	return b, nil
}

func (b *Board) Scope() object.Scope { return b.scope }

func (b *Board) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Loaded reports whether the object list has been fetched at least once.
func (b *Board) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Objects returns a snapshot of the local objects, oldest first.
func (b *Board) Objects() []object.Object {
	b.mu.Lock()
	out := make([]object.Object, 0, len(b.objects))
	for _, o := range b.objects {
		out = append(out, o)
	}
	b.mu.Unlock()

	store.SortBySeq(out)
	return out
}

// Object returns the object with id. Temporary ids keep resolving after
// the store has assigned the real one.
func (b *Board) Object(id string) (object.Object, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.objects[b.resolveLocked(id)]
	return o, ok
}

// Resolve maps a temporary id to the store id once known.
func (b *Board) Resolve(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolveLocked(id)
}

func (b *Board) resolveLocked(id string) string {
	if storeID, ok := b.resolved[id]; ok {
		return storeID
	}
	return id
}

// WaitIdle blocks until every store write issued so far has completed.
func (b *Board) WaitIdle() {
	b.writes.Wait()
}

// Close flushes pending edits, waits for outstanding writes, then stops
// every timer and the change feed. Patches queued behind an in-flight
// update are sent when it completes, so the last local value reaches the
// store before Close returns.
func (b *Board) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.editing = false
	stopTimer(&b.flushTimer)
	b.flushAllLocked()
	b.closed = true

	stopTimer(&b.retryTimer)
	stopTimer(&b.pollTimer)
	stopTimer(&b.echoTimer)
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	b.writes.Wait()
	b.cancel()
	if sub != nil {
		return sub.Close()
	}
	return nil
}

func (b *Board) notify() {
	if b.onChange != nil {
		b.onChange()
	}
}

func (b *Board) report(err error) {
	if b.onError != nil {
		b.onError(err)
	}
}

// setStatusLocked reports whether the status changed.
func (b *Board) setStatusLocked(s Status) bool {
	if b.status == s {
		return false
	}
	b.log.Info(b.ctx, "board status changed", "from", b.status, "to", s)
	b.status = s
	return true
}

// busyLocked reports whether local state for id is ahead of the store.
func (b *Board) busyLocked(id string) bool {
	if _, ok := b.pending[id]; ok {
		return true
	}
	return b.inflight[id] || (b.applyingLocalEdit && b.editTargets[id])
}

func (b *Board) idleLocked() bool {
	return len(b.inflight) == 0 && len(b.pending) == 0 && len(b.creating) == 0
}

func (b *Board) maxSeqLocked() int64 {
	var max int64
	for _, o := range b.objects {
		if o.Seq > max {
			max = o.Seq
		}
	}
	return max
}

func stopTimer(t **clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
