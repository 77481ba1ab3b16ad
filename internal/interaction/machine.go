// Package interaction turns pointer, keyboard and wheel input into board
// mutations and view state: the active tool, selection, in-progress
// drafts, and the pan/zoom transform.
//
// A Machine is not safe for concurrent use; drive it from one goroutine.
package interaction

import (
	"context"
	"errors"
	"io"
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"whiteboard/internal/codec"
	"whiteboard/internal/geometry"
	"whiteboard/internal/logging"
	"whiteboard/internal/object"
	"whiteboard/internal/render"
)

// Board is the object list the machine edits.
type Board interface {
	Objects() []object.Object
	Object(id string) (object.Object, bool)
	Create(obj object.Object) string
	Edit(id string, patch object.Patch)
	Delete(id string)
	BeginEdit()
	EndEdit()
}

const (
	MinZoom  = 0.1
	MaxZoom  = 5.0
	zoomStep = 1.1

	// MinShapeSize is the extent a shape or line must exceed to be kept.
	MinShapeSize = 5.0

	WarningDuration = 3 * time.Second
)

// User-facing warnings.
const (
	WarnPageZoom       = "Browser zoom is disabled here. Scroll to zoom the board."
	WarnStrokeTooLarge = "That stroke is too large to save."
	WarnImageTooLarge  = "That image is too large to add, even after compression."
	WarnImageInvalid   = "That file could not be read as an image."
)

// Style is applied to newly drawn objects.
type Style struct {
	Color       string
	FillColor   string
	StrokeWidth float64
}

func DefaultStyle() Style {
	return Style{Color: "#000000", FillColor: object.Transparent, StrokeWidth: 2}
}

type mode int

const (
	modeIdle mode = iota
	modeDragging
	modeResizing
	modeDrawing
	modeShaping
	modePanning
)

// Machine is one client's interaction state.
type Machine struct {
	board  Board
	codec  *codec.Codec
	clock  clock.Clock
	log    logging.Logger
	author string

	tool        Tool
	panOverride bool
	style       Style
	selected    string

	mode    mode
	gesture Tool
	handle  geometry.Handle
	origin  object.Object
	start   object.Point
	end     object.Point
	points  []object.Point

	panStart    object.Point
	offsetStart object.Point
	offset      object.Point
	zoom        float64

	warning      string
	warningUntil time.Time
}

type Option func(*Machine)

func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

func WithLogger(l logging.Logger) Option {
	return func(m *Machine) { m.log = l }
}

func WithCodec(c *codec.Codec) Option {
	return func(m *Machine) { m.codec = c }
}

// WithAuthor stamps created objects with the session id.
func WithAuthor(id string) Option {
	return func(m *Machine) { m.author = id }
}

func WithStyle(s Style) Option {
	return func(m *Machine) { m.style = s }
}

func New(b Board, opts ...Option) *Machine {
	m := &Machine{
		board: b,
		codec: codec.New(0),
		clock: clock.New(),
		log:   logging.Nop(),
		tool:  ToolSelect,
		style: DefaultStyle(),
		zoom:  1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tool returns the selected tool, ignoring the temporary pan override.
func (m *Machine) Tool() Tool { return m.tool }

// ActiveTool returns the tool pointer input currently drives.
func (m *Machine) ActiveTool() Tool {
	if m.panOverride {
		return ToolPan
	}
	return m.tool
}

// SetTool switches tools. Leaving select clears the selection.
func (m *Machine) SetTool(t Tool) {
	if !t.Valid() {
		return
	}
	m.tool = t
	if t != ToolSelect {
		m.selected = ""
	}
}

func (m *Machine) Style() Style     { return m.style }
func (m *Machine) SetStyle(s Style) { m.style = s }

// Selected returns the selected object's id, or "".
func (m *Machine) Selected() string {
	if o, ok := m.selectedObject(); ok {
		return o.ID
	}
	return ""
}

func (m *Machine) Zoom() float64        { return m.zoom }
func (m *Machine) Offset() object.Point { return m.offset }

// Warning returns the transient warning, or "" once it has expired.
func (m *Machine) Warning() string {
	if m.warning == "" || !m.clock.Now().Before(m.warningUntil) {
		return ""
	}
	return m.warning
}

func (m *Machine) warn(msg string) {
	m.warning = msg
	m.warningUntil = m.clock.Now().Add(WarningDuration)
}

// ScreenToCanvas converts a surface position to canvas space.
func (m *Machine) ScreenToCanvas(p object.Point) object.Point {
	return object.Point{X: (p.X - m.offset.X) / m.zoom, Y: (p.Y - m.offset.Y) / m.zoom}
}

// selectedObject resolves the selection against the board, dropping it if
// the object is gone.
func (m *Machine) selectedObject() (object.Object, bool) {
	if m.selected == "" {
		return object.Object{}, false
	}
	o, ok := m.board.Object(m.selected)
	if !ok {
		m.selected = ""
		return object.Object{}, false
	}
	m.selected = o.ID
	return o, true
}

// PointerDown starts a gesture at screen position p.
func (m *Machine) PointerDown(p object.Point) {
	if m.mode != modeIdle {
		return
	}
	cp := m.ScreenToCanvas(p)
	m.gesture = m.ActiveTool()

	switch m.gesture {
	case ToolSelect:
		m.pointerDownSelect(cp)
	case ToolPen, ToolEraser:
		m.mode = modeDrawing
		m.points = []object.Point{cp}
	case ToolRectangle, ToolCircle, ToolLine:
		m.mode = modeShaping
		m.start, m.end = cp, cp
	case ToolPan:
		m.mode = modePanning
		m.panStart = p
		m.offsetStart = m.offset
	}
}

func (m *Machine) pointerDownSelect(cp object.Point) {
	prev, hasPrev := m.selectedObject()
	if hasPrev {
		if h := geometry.ResizeHandleAt(cp, prev, m.zoom); h != geometry.HandleNone {
			m.mode = modeResizing
			m.handle = h
			m.origin = prev
			m.board.BeginEdit()
			return
		}
	}

	hit, ok := m.topmostAt(cp)
	if !ok {
		m.selected = ""
		return
	}
	m.selected = hit.ID
	// a newly selected object needs a second press before it can be dragged
	if !hasPrev || prev.ID == hit.ID {
		m.mode = modeDragging
		m.origin = hit
		m.start = cp
		m.board.BeginEdit()
	}
}

// topmostAt returns the most recently drawn object under cp.
func (m *Machine) topmostAt(cp object.Point) (object.Object, bool) {
	objs := m.board.Objects()
	for i := len(objs) - 1; i >= 0; i-- {
		if geometry.HitTest(cp, objs[i]) {
			return objs[i], true
		}
	}
	return object.Object{}, false
}

// PointerMove advances the current gesture to screen position p.
func (m *Machine) PointerMove(p object.Point) {
	cp := m.ScreenToCanvas(p)

	switch m.mode {
	case modeDragging:
		patch, err := geometry.MovePatch(m.origin, cp.Sub(m.start), m.codec)
		if err != nil {
			m.log.Warn(context.Background(), "move failed", "id", m.origin.ID, "error", err)
			return
		}
		m.board.Edit(m.origin.ID, patch)
	case modeResizing:
		target := geometry.Resize(geometry.BoundsOf(m.origin), m.handle, cp)
		patch, err := geometry.ResizePatch(m.origin, target, m.codec)
		if err != nil {
			m.log.Warn(context.Background(), "resize failed", "id", m.origin.ID, "error", err)
			return
		}
		m.board.Edit(m.origin.ID, patch)
	case modeDrawing:
		if last := m.points[len(m.points)-1]; last != cp {
			m.points = append(m.points, cp)
		}
	case modeShaping:
		m.end = cp
	case modePanning:
		m.offset = m.offsetStart.Add(p.Sub(m.panStart))
	}
}

// PointerUp finishes the gesture at screen position p. It returns
// codec.ErrPayloadTooLarge when a pen stroke cannot be persisted; the
// stroke is discarded and a warning is shown.
func (m *Machine) PointerUp(p object.Point) error {
	if m.mode == modeIdle {
		return nil
	}
	m.PointerMove(p)

	var err error
	switch m.mode {
	case modeDragging, modeResizing:
		m.board.EndEdit()
	case modeDrawing:
		if m.gesture == ToolEraser {
			m.erase()
		} else {
			err = m.finishStroke()
		}
	case modeShaping:
		m.finishShape()
	}

	m.mode = modeIdle
	m.handle = geometry.HandleNone
	m.points = nil
	m.origin = object.Object{}
	return err
}

func (m *Machine) finishStroke() error {
	if len(m.points) < 2 {
		return nil
	}
	encoded, box, err := geometry.PathGeometry(m.points, m.codec)
	if err != nil {
		if errors.Is(err, codec.ErrPayloadTooLarge) {
			m.warn(WarnStrokeTooLarge)
		}
		return err
	}
	m.board.Create(object.Object{
		Kind:        object.KindPath,
		X:           box.X,
		Y:           box.Y,
		Width:       box.Width,
		Height:      box.Height,
		Points:      encoded,
		Color:       m.style.Color,
		StrokeWidth: m.style.StrokeWidth,
		CreatedBy:   m.author,
	})
	return nil
}

// erase deletes every object whose bounds intersect the eraser path's box.
func (m *Machine) erase() {
	box := geometry.PointsBounds(m.points)
	for _, o := range m.board.Objects() {
		if geometry.Intersects(o, box) {
			m.board.Delete(o.ID)
			if o.ID == m.selected {
				m.selected = ""
			}
		}
	}
}

func (m *Machine) finishShape() {
	base := object.Object{
		Color:       m.style.Color,
		StrokeWidth: m.style.StrokeWidth,
		CreatedBy:   m.author,
	}

	if m.gesture == ToolLine {
		dx, dy := m.end.X-m.start.X, m.end.Y-m.start.Y
		if math.Hypot(dx, dy) <= MinShapeSize {
			return
		}
		base.Kind = object.KindLine
		base.X, base.Y, base.Width, base.Height = m.start.X, m.start.Y, dx, dy
		m.board.Create(base)
		return
	}

	r := object.RectFromPoints(m.start, m.end)
	if math.Max(r.Width, r.Height) <= MinShapeSize {
		return
	}
	base.Kind = object.KindRectangle
	if m.gesture == ToolCircle {
		base.Kind = object.KindCircle
	}
	base.X, base.Y, base.Width, base.Height = r.X, r.Y, r.Width, r.Height
	base.FillColor = m.style.FillColor
	if base.FillColor == "" {
		base.FillColor = object.Transparent
	}
	m.board.Create(base)
}

// KeyDown handles a key press. It reports whether the key was consumed,
// in which case the shell should suppress its default action.
func (m *Machine) KeyDown(key string, mods Mod) bool {
	if mods.zoomModifier() {
		if pageZoomKeys[key] {
			m.warn(WarnPageZoom)
			return true
		}
		return false
	}

	switch key {
	case KeySpace:
		m.panOverride = true
		return true
	case KeyEscape:
		m.tool = ToolSelect
		m.selected = ""
		return true
	case KeyDelete, KeyBackspace:
		if o, ok := m.selectedObject(); ok {
			m.board.Delete(o.ID)
			m.selected = ""
			return true
		}
		return false
	}

	if t, ok := ShortcutFor(key); ok {
		m.SetTool(t)
		return true
	}
	return false
}

// KeyUp releases the pan override when the space bar is let go.
func (m *Machine) KeyUp(key string) {
	if key == KeySpace {
		m.panOverride = false
	}
}

// Wheel zooms by one step per event around screen position at, keeping
// the canvas point under the cursor fixed. A wheel with the page-zoom
// modifier held is swallowed and raises a warning instead. The result
// reports whether the event was consumed.
func (m *Machine) Wheel(deltaY float64, at object.Point, mods Mod) bool {
	if mods.zoomModifier() {
		m.warn(WarnPageZoom)
		return true
	}
	if deltaY == 0 {
		return false
	}

	next := m.zoom * zoomStep
	if deltaY > 0 {
		next = m.zoom / zoomStep
	}
	m.ZoomTo(next, at)
	return true
}

// ZoomTo sets the zoom, clamped to [MinZoom, MaxZoom], anchored at screen
// position at.
func (m *Machine) ZoomTo(zoom float64, at object.Point) {
	zoom = math.Min(MaxZoom, math.Max(MinZoom, zoom))
	ratio := zoom / m.zoom
	m.offset = object.Point{
		X: at.X - (at.X-m.offset.X)*ratio,
		Y: at.Y - (at.Y-m.offset.Y)*ratio,
	}
	m.zoom = zoom
}

// PlaceImage compresses the image in r and adds it to the board with its
// top-left corner at screen position at.
func (m *Machine) PlaceImage(r io.Reader, at object.Point) (string, error) {
	enc, err := m.codec.EncodeImage(r, codec.DefaultMaxWidth, codec.DefaultQuality)
	if err != nil {
		switch {
		case errors.Is(err, codec.ErrPayloadTooLarge):
			m.warn(WarnImageTooLarge)
		case errors.Is(err, codec.ErrImageDecode):
			m.warn(WarnImageInvalid)
		}
		return "", err
	}

	w, h := codec.DisplaySize(enc.Width, enc.Height)
	cp := m.ScreenToCanvas(at)
	return m.board.Create(object.Object{
		Kind:      object.KindImage,
		X:         cp.X,
		Y:         cp.Y,
		Width:     w,
		Height:    h,
		ImageURL:  enc.DataURI,
		CreatedBy: m.author,
	}), nil
}

// Frame returns the render input for the current state.
func (m *Machine) Frame() render.Frame {
	f := render.Frame{
		Objects:  m.board.Objects(),
		Selected: m.Selected(),
		Offset:   m.offset,
		Zoom:     m.zoom,
	}
	switch m.mode {
	case modeDrawing:
		f.Draft = &render.Draft{
			Kind:   object.KindPath,
			Eraser: m.gesture == ToolEraser,
			Points: append([]object.Point(nil), m.points...),
			Style:  render.Style(m.style),
		}
	case modeShaping:
		kind := object.KindRectangle
		switch m.gesture {
		case ToolCircle:
			kind = object.KindCircle
		case ToolLine:
			kind = object.KindLine
		}
		f.Draft = &render.Draft{Kind: kind, Start: m.start, End: m.end, Style: render.Style(m.style)}
	}
	return f
}
