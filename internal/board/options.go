package board

import (
	"github.com/benbjohnson/clock"

	"whiteboard/internal/config"
	"whiteboard/internal/logging"
)

type options struct {
	clock    clock.Clock
	log      logging.Logger
	sync     config.SyncConfig
	onChange func()
	onError  func(error)
}

// Option configures a Board.
type Option func(*options)

// WithClock sets the clock driving every board timer.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithSync overrides the throttle, echo window, backoff and polling timings.
func WithSync(cfg config.SyncConfig) Option {
	return func(o *options) { o.sync = cfg }
}

// OnChange registers fn to run after the object list or status changes.
// fn may be called from any goroutine.
func OnChange(fn func()) Option {
	return func(o *options) { o.onChange = fn }
}

// OnError registers fn to receive store and subscription failures. The
// board recovers from these on its own; fn is for reporting only.
func OnError(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

func defaultOptions() options {
	return options{
		clock: clock.New(),
		log:   logging.Nop(),
		sync:  config.DefaultSync(),
	}
}
