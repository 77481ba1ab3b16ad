// Package canvas wires a board, an interaction machine and a renderer into
// one drawing session: the entry point a UI shell drives with input events
// and asks for frames.
package canvas

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/benbjohnson/clock"

	"whiteboard/internal/board"
	"whiteboard/internal/codec"
	"whiteboard/internal/config"
	"whiteboard/internal/identity"
	"whiteboard/internal/interaction"
	"whiteboard/internal/logging"
	"whiteboard/internal/object"
	"whiteboard/internal/render"
	"whiteboard/internal/store"
)

type options struct {
	clock   clock.Clock
	log     logging.Logger
	sync    config.SyncConfig
	ceiling int
	colors  *identity.ColorGenerator
}

type Option func(*options)

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithSync(cfg config.SyncConfig) Option {
	return func(o *options) { o.sync = cfg }
}

// WithFieldCeiling sets the payload ceiling strokes and images must fit.
func WithFieldCeiling(n int) Option {
	return func(o *options) { o.ceiling = n }
}

// WithColors gives the session a pen colour from g.
func WithColors(g *identity.ColorGenerator) Option {
	return func(o *options) { o.colors = g }
}

// Session is one user's open whiteboard. Its methods are safe for
// concurrent use.
type Session struct {
	id       identity.Provider
	log      logging.Logger
	board    *board.Board
	renderer *render.Renderer
	colors   *identity.ColorGenerator

	mu      sync.Mutex
	machine *interaction.Machine

	redraw chan struct{}

	errMu   sync.Mutex
	lastErr error
}

// Open joins boardID for id's team on st.
func Open(ctx context.Context, st store.Store, id identity.Provider, boardID string, opts ...Option) (*Session, error) {
	o := options{
		clock:   clock.New(),
		log:     logging.Nop(),
		sync:    config.DefaultSync(),
		ceiling: codec.DefaultCeiling,
	}
	for _, opt := range opts {
		opt(&o)
	}

	scope, err := identity.ScopeFor(id, boardID)
	if err != nil {
		return nil, err
	}

	log := o.log.With("session", id.SessionID(), "scope", scope.String())
	s := &Session{
		id:     id,
		log:    log,
		colors: o.colors,
		redraw: make(chan struct{}, 1),
	}

	s.board, err = board.Open(ctx, st, scope,
		board.WithClock(o.clock),
		board.WithLogger(log),
		board.WithSync(o.sync),
		board.OnChange(s.invalidate),
		board.OnError(s.fail),
	)
	if err != nil {
		return nil, fmt.Errorf("open board: %w", err)
	}

	style := interaction.DefaultStyle()
	if o.colors != nil {
		style.Color = o.colors.For(id.SessionID())
	}
	s.machine = interaction.New(s.board,
		interaction.WithClock(o.clock),
		interaction.WithLogger(log),
		interaction.WithCodec(codec.New(o.ceiling)),
		interaction.WithAuthor(id.SessionID()),
		interaction.WithStyle(style),
	)
	s.renderer = render.NewRenderer(
		render.WithLogger(log),
		render.OnRedraw(s.invalidate),
	)

	log.Info(ctx, "session opened")
	return s, nil
}

// invalidate requests a redraw. It never blocks, so it is safe to call
// from board and renderer callbacks.
func (s *Session) invalidate() {
	select {
	case s.redraw <- struct{}{}:
	default:
	}
}

func (s *Session) fail(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
	s.invalidate()
}

// Redraw delivers a signal whenever the session needs repainting. Signals
// coalesce; one pending signal covers any number of changes.
func (s *Session) Redraw() <-chan struct{} { return s.redraw }

// Draw paints the current state onto surf.
func (s *Session) Draw(surf render.Surface) {
	s.mu.Lock()
	frame := s.machine.Frame()
	s.mu.Unlock()

	s.renderer.Render(surf, frame)
	s.renderer.Forget(frame.Objects)
}

// LastError returns and clears the most recent store failure.
func (s *Session) LastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.lastErr
	s.lastErr = nil
	return err
}

func (s *Session) Identity() identity.Provider { return s.id }
func (s *Session) Scope() object.Scope         { return s.board.Scope() }
func (s *Session) Status() board.Status        { return s.board.Status() }
func (s *Session) Objects() []object.Object    { return s.board.Objects() }

// WaitIdle blocks until every pending store write has finished.
func (s *Session) WaitIdle() { s.board.WaitIdle() }

// Reconnect retries the change feed immediately.
func (s *Session) Reconnect() { s.board.Reconnect() }

// with runs fn against the machine and requests a redraw.
func (s *Session) with(fn func(m *interaction.Machine)) {
	s.mu.Lock()
	fn(s.machine)
	s.mu.Unlock()
	s.invalidate()
}

func (s *Session) PointerDown(p object.Point) {
	s.with(func(m *interaction.Machine) { m.PointerDown(p) })
}

func (s *Session) PointerMove(p object.Point) {
	s.with(func(m *interaction.Machine) { m.PointerMove(p) })
}

func (s *Session) PointerUp(p object.Point) error {
	var err error
	s.with(func(m *interaction.Machine) { err = m.PointerUp(p) })
	return err
}

// KeyDown reports whether the key was consumed.
func (s *Session) KeyDown(key string, mods interaction.Mod) bool {
	var handled bool
	s.with(func(m *interaction.Machine) { handled = m.KeyDown(key, mods) })
	return handled
}

func (s *Session) KeyUp(key string) {
	s.with(func(m *interaction.Machine) { m.KeyUp(key) })
}

// Wheel reports whether the event was consumed.
func (s *Session) Wheel(deltaY float64, at object.Point, mods interaction.Mod) bool {
	var handled bool
	s.with(func(m *interaction.Machine) { handled = m.Wheel(deltaY, at, mods) })
	return handled
}

func (s *Session) SetTool(t interaction.Tool) {
	s.with(func(m *interaction.Machine) { m.SetTool(t) })
}

func (s *Session) SetStyle(st interaction.Style) {
	s.with(func(m *interaction.Machine) { m.SetStyle(st) })
}

func (s *Session) Style() interaction.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Style()
}

func (s *Session) Tool() interaction.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.ActiveTool()
}

func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Selected()
}

func (s *Session) Warning() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Warning()
}

// PlaceImage pastes or uploads an image with its top-left corner at the
// screen point at.
func (s *Session) PlaceImage(r io.Reader, at object.Point) (string, error) {
	var (
		id  string
		err error
	)
	s.with(func(m *interaction.Machine) { id, err = m.PlaceImage(r, at) })
	return id, err
}

// Close flushes pending writes and leaves the board. The session's
// colour is released back to a shared generator.
func (s *Session) Close() error {
	err := s.board.Close()
	s.renderer.WaitDecodes()
	if s.colors != nil {
		s.colors.Forget(s.id.SessionID())
	}
	s.log.Info(context.Background(), "session closed")
	return err
}
