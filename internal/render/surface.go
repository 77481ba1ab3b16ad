package render

import (
	"image"
	"image/color"
	"io"

	"github.com/fogleman/gg"

	"whiteboard/internal/object"
)

// Surface is a 2D drawing target with a transform stack. Shape calls add
// to the current path; Stroke and Fill consume it.
type Surface interface {
	Size() (width, height int)
	Clear(c color.Color)

	Push()
	Pop()
	Translate(x, y float64)
	Scale(sx, sy float64)

	SetColor(c color.Color)
	SetLineWidth(w float64)
	SetDash(dashes ...float64)

	Rectangle(x, y, w, h float64)
	Ellipse(cx, cy, rx, ry float64)
	Line(x1, y1, x2, y2 float64)
	Polyline(points []object.Point)
	Stroke()
	Fill()
	FillPreserve()

	// DrawImage draws img scaled into the box at (x, y) of size w by h.
	DrawImage(img image.Image, x, y, w, h float64)
	Text(s string, x, y float64)
}

// GGSurface rasterizes onto an in-memory image.
type GGSurface struct {
	dc *gg.Context
}

func NewGGSurface(width, height int) *GGSurface {
	return &GGSurface{dc: gg.NewContext(width, height)}
}

func (s *GGSurface) Size() (int, int) { return s.dc.Width(), s.dc.Height() }

func (s *GGSurface) Clear(c color.Color) {
	s.dc.SetColor(c)
	s.dc.Clear()
}

func (s *GGSurface) Push()                  { s.dc.Push() }
func (s *GGSurface) Pop()                   { s.dc.Pop() }
func (s *GGSurface) Translate(x, y float64) { s.dc.Translate(x, y) }
func (s *GGSurface) Scale(sx, sy float64)   { s.dc.Scale(sx, sy) }

func (s *GGSurface) SetColor(c color.Color)    { s.dc.SetColor(c) }
func (s *GGSurface) SetLineWidth(w float64)    { s.dc.SetLineWidth(w) }
func (s *GGSurface) SetDash(dashes ...float64) { s.dc.SetDash(dashes...) }

func (s *GGSurface) Rectangle(x, y, w, h float64)   { s.dc.DrawRectangle(x, y, w, h) }
func (s *GGSurface) Ellipse(cx, cy, rx, ry float64) { s.dc.DrawEllipse(cx, cy, rx, ry) }
func (s *GGSurface) Line(x1, y1, x2, y2 float64)    { s.dc.DrawLine(x1, y1, x2, y2) }

func (s *GGSurface) Polyline(points []object.Point) {
	s.dc.NewSubPath()
	for i, p := range points {
		if i == 0 {
			s.dc.MoveTo(p.X, p.Y)
			continue
		}
		s.dc.LineTo(p.X, p.Y)
	}
}

func (s *GGSurface) Stroke()       { s.dc.Stroke() }
func (s *GGSurface) Fill()         { s.dc.Fill() }
func (s *GGSurface) FillPreserve() { s.dc.FillPreserve() }

func (s *GGSurface) DrawImage(img image.Image, x, y, w, h float64) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return
	}
	s.dc.Push()
	s.dc.Translate(x, y)
	s.dc.Scale(w/float64(b.Dx()), h/float64(b.Dy()))
	s.dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	s.dc.Pop()
}

func (s *GGSurface) Text(str string, x, y float64) { s.dc.DrawString(str, x, y) }

// Image returns the rendered raster.
func (s *GGSurface) Image() image.Image { return s.dc.Image() }

func (s *GGSurface) EncodePNG(w io.Writer) error { return s.dc.EncodePNG(w) }

var _ Surface = (*GGSurface)(nil)
