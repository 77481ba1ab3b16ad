// Package render draws a board frame: the objects, the selection chrome
// and any in-progress draft, under the view's pan and zoom.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/lucasb-eyer/go-colorful"

	"whiteboard/internal/codec"
	"whiteboard/internal/geometry"
	"whiteboard/internal/logging"
	"whiteboard/internal/object"
)

// ErrImageDecodeFailed marks an image that could not be decoded. Failures
// are cached and never retried.
var ErrImageDecodeFailed = errors.New("image decode failed")

// Placeholder captions for images that are not ready.
const (
	TextLoading = "loading…"
	TextFailed  = "failed to load"
)

var (
	background     = color.White
	selectionColor = mustColor("#3b82f6")
	handleFill     = color.White
	placeholder    = mustColor("#e5e7eb")
	placeholderInk = mustColor("#6b7280")
	eraserColor    = mustColor("#9ca3af")
)

// Style is the stroke and fill used for a draft.
type Style struct {
	Color       string
	FillColor   string
	StrokeWidth float64
}

// Draft is an in-progress pen/eraser stroke or shape preview.
type Draft struct {
	Kind   object.Kind
	Eraser bool
	// pen and eraser
	Points []object.Point
	// shapes
	Start, End object.Point
	Style      Style
}

// Frame is everything one redraw needs.
type Frame struct {
	Objects  []object.Object
	Selected string
	Offset   object.Point
	Zoom     float64
	Draft    *Draft
}

type imageState int

const (
	imageLoading imageState = iota
	imageReady
	imageFailed
)

type cachedImage struct {
	state imageState
	img   image.Image
	err   error
}

// Renderer draws frames and owns the decoded-image cache.
type Renderer struct {
	log      logging.Logger
	decode   func(uri string) (image.Image, error)
	onRedraw func()

	mu     sync.Mutex
	images map[string]*cachedImage
	wg     sync.WaitGroup
}

type Option func(*Renderer)

func WithLogger(l logging.Logger) Option {
	return func(r *Renderer) { r.log = l }
}

// WithDecoder replaces the data URI decoder.
func WithDecoder(fn func(uri string) (image.Image, error)) Option {
	return func(r *Renderer) { r.decode = fn }
}

// OnRedraw registers fn to run when an image finishes decoding. It is
// called from the decoding goroutine.
func OnRedraw(fn func()) Option {
	return func(r *Renderer) { r.onRedraw = fn }
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		log:    logging.Nop(),
		decode: codec.DecodeImage,
		images: make(map[string]*cachedImage),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render clears s and draws f.
func (r *Renderer) Render(s Surface, f Frame) {
	zoom := f.Zoom
	if zoom <= 0 {
		zoom = 1
	}

	s.Clear(background)
	s.Push()
	defer s.Pop()
	s.Translate(f.Offset.X, f.Offset.Y)
	s.Scale(zoom, zoom)

	var selected *object.Object
	for i := range f.Objects {
		o := f.Objects[i]
		r.drawObject(s, o)
		if f.Selected != "" && o.ID == f.Selected {
			selected = &f.Objects[i]
		}
	}
	if selected != nil {
		drawSelection(s, *selected, zoom)
	}
	if f.Draft != nil {
		drawDraft(s, *f.Draft, zoom)
	}
}

func (r *Renderer) drawObject(s Surface, o object.Object) {
	s.SetDash()
	switch o.Kind {
	case object.KindPath:
		points, err := codec.DecodePoints(o.Points)
		if err != nil || len(points) < 2 {
			return
		}
		strokeStyle(s, o.Color, o.StrokeWidth)
		s.Polyline(points)
		s.Stroke()

	case object.KindRectangle:
		s.Rectangle(o.X, o.Y, o.Width, o.Height)
		fillAndStroke(s, o)

	case object.KindCircle:
		s.Ellipse(o.X+o.Width/2, o.Y+o.Height/2, o.Width/2, o.Height/2)
		fillAndStroke(s, o)

	case object.KindLine:
		strokeStyle(s, o.Color, o.StrokeWidth)
		s.Line(o.X, o.Y, o.X+o.Width, o.Y+o.Height)
		s.Stroke()

	case object.KindImage:
		r.drawImage(s, o)
	}
}

func fillAndStroke(s Surface, o object.Object) {
	if o.Filled() {
		if c, ok := parseColor(o.FillColor); ok {
			s.SetColor(c)
			s.FillPreserve()
		}
	}
	strokeStyle(s, o.Color, o.StrokeWidth)
	s.Stroke()
}

func strokeStyle(s Surface, hex string, width float64) {
	c, ok := parseColor(hex)
	if !ok {
		c = color.Black
	}
	s.SetColor(c)
	s.SetLineWidth(width)
}

func (r *Renderer) drawImage(s Surface, o object.Object) {
	entry := r.image(o.ImageURL)
	if entry.state == imageReady {
		s.DrawImage(entry.img, o.X, o.Y, o.Width, o.Height)
		return
	}

	caption := TextLoading
	if entry.state == imageFailed {
		caption = TextFailed
	}
	s.Rectangle(o.X, o.Y, o.Width, o.Height)
	s.SetColor(placeholder)
	s.FillPreserve()
	s.SetColor(placeholderInk)
	s.SetLineWidth(1)
	s.Stroke()
	s.Text(caption, o.X+8, o.Y+o.Height/2)
}

// image returns a snapshot of the cache entry for uri, starting an
// asynchronous decode on first sight.
func (r *Renderer) image(uri string) cachedImage {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.images[uri]; ok {
		return *entry
	}
	entry := &cachedImage{state: imageLoading}
	r.images[uri] = entry

	r.wg.Add(1)
	go r.load(uri)
	return *entry
}

func (r *Renderer) load(uri string) {
	defer r.wg.Done()

	img, err := r.decode(uri)

	r.mu.Lock()
	entry := r.images[uri]
	if err != nil {
		entry.state = imageFailed
		entry.err = fmt.Errorf("%w: %w", ErrImageDecodeFailed, err)
	} else {
		entry.state = imageReady
		entry.img = img
	}
	r.mu.Unlock()

	if err != nil {
		r.log.Warn(context.Background(), "image decode failed", "error", err)
	}
	if r.onRedraw != nil {
		r.onRedraw()
	}
}

// ImageError returns the cached decode failure for uri, if any.
func (r *Renderer) ImageError(uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.images[uri]; ok {
		return entry.err
	}
	return nil
}

// WaitDecodes blocks until every started decode has finished.
func (r *Renderer) WaitDecodes() {
	r.wg.Wait()
}

// Forget drops cache entries for images no longer on the board.
func (r *Renderer) Forget(keep []object.Object) {
	live := make(map[string]bool)
	for _, o := range keep {
		if o.Kind == object.KindImage {
			live[o.ImageURL] = true
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for uri, entry := range r.images {
		// failed entries stay so they are never retried
		if !live[uri] && entry.state == imageReady {
			delete(r.images, uri)
		}
	}
}

// drawSelection outlines the selection and draws its eight handles at a
// constant on-screen size.
func drawSelection(s Surface, o object.Object, zoom float64) {
	b := geometry.BoundsOf(o)
	s.SetDash()
	s.SetColor(selectionColor)
	s.SetLineWidth(1 / zoom)
	s.Rectangle(b.X, b.Y, b.Width, b.Height)
	s.Stroke()

	size := geometry.HandleSize / zoom
	for _, h := range geometry.Handles {
		p := geometry.HandlePosition(b, h)
		s.Rectangle(p.X-size/2, p.Y-size/2, size, size)
		s.SetColor(handleFill)
		s.FillPreserve()
		s.SetColor(selectionColor)
		s.Stroke()
	}
}

func drawDraft(s Surface, d Draft, zoom float64) {
	if d.Kind == object.KindPath {
		if len(d.Points) < 2 {
			return
		}
		if d.Eraser {
			s.SetColor(eraserColor)
			s.SetLineWidth(1 / zoom)
			s.SetDash(4/zoom, 4/zoom)
		} else {
			s.SetDash()
			strokeStyle(s, d.Style.Color, d.Style.StrokeWidth)
		}
		s.Polyline(d.Points)
		s.Stroke()
		s.SetDash()
		return
	}

	strokeStyle(s, d.Style.Color, d.Style.StrokeWidth)
	s.SetDash(5/zoom, 5/zoom)
	switch d.Kind {
	case object.KindLine:
		s.Line(d.Start.X, d.Start.Y, d.End.X, d.End.Y)
	case object.KindCircle:
		r := object.RectFromPoints(d.Start, d.End)
		s.Ellipse(r.X+r.Width/2, r.Y+r.Height/2, r.Width/2, r.Height/2)
	default:
		r := object.RectFromPoints(d.Start, d.End)
		s.Rectangle(r.X, r.Y, r.Width, r.Height)
	}
	s.Stroke()
	s.SetDash()
}

// parseColor accepts the hex forms stored on objects.
func parseColor(hex string) (color.Color, bool) {
	if hex == "" || hex == object.Transparent {
		return nil, false
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return nil, false
	}
	return c, true
}

func mustColor(hex string) color.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		panic(err)
	}
	return c
}
