package geometry

import (
	"math"

	"whiteboard/internal/object"
)

// HandleSize is the screen-space hit radius of a resize handle.
const HandleSize = 8.0

// Handle names one of the eight resize handles of a selection box.
type Handle string

const (
	HandleNone Handle = ""
	HandleNW   Handle = "nw"
	HandleNE   Handle = "ne"
	HandleSW   Handle = "sw"
	HandleSE   Handle = "se"
	HandleN    Handle = "n"
	HandleS    Handle = "s"
	HandleW    Handle = "w"
	HandleE    Handle = "e"
)

// Handles lists every handle, corners first; hit testing follows this order.
var Handles = []Handle{HandleNW, HandleNE, HandleSW, HandleSE, HandleN, HandleS, HandleW, HandleE}

// HandlePosition returns the canvas position of h on r.
func HandlePosition(r object.Rect, h Handle) object.Point {
	midX, midY := r.X+r.Width/2, r.Y+r.Height/2
	switch h {
	case HandleNW:
		return object.Point{X: r.X, Y: r.Y}
	case HandleNE:
		return object.Point{X: r.Right(), Y: r.Y}
	case HandleSW:
		return object.Point{X: r.X, Y: r.Bottom()}
	case HandleSE:
		return object.Point{X: r.Right(), Y: r.Bottom()}
	case HandleN:
		return object.Point{X: midX, Y: r.Y}
	case HandleS:
		return object.Point{X: midX, Y: r.Bottom()}
	case HandleW:
		return object.Point{X: r.X, Y: midY}
	case HandleE:
		return object.Point{X: r.Right(), Y: midY}
	}
	return object.Point{}
}

// ResizeHandleAt returns the handle of o's bounds under p, or HandleNone.
// The hit radius is HandleSize/zoom canvas units, a constant size on screen.
func ResizeHandleAt(p object.Point, o object.Object, zoom float64) Handle {
	if zoom <= 0 {
		zoom = 1
	}
	radius := HandleSize / zoom
	r := BoundsOf(o)
	for _, h := range Handles {
		hp := HandlePosition(r, h)
		if math.Abs(p.X-hp.X) <= radius && math.Abs(p.Y-hp.Y) <= radius {
			return h
		}
	}
	return HandleNone
}

// Resize moves the edges of r controlled by h to p and returns the
// normalised result, so dragging a handle past the opposite edge flips the
// box instead of producing negative extents.
func Resize(r object.Rect, h Handle, p object.Point) object.Rect {
	left, top, right, bottom := r.X, r.Y, r.Right(), r.Bottom()

	switch h {
	case HandleNW:
		left, top = p.X, p.Y
	case HandleNE:
		right, top = p.X, p.Y
	case HandleSW:
		left, bottom = p.X, p.Y
	case HandleSE:
		right, bottom = p.X, p.Y
	case HandleN:
		top = p.Y
	case HandleS:
		bottom = p.Y
	case HandleW:
		left = p.X
	case HandleE:
		right = p.X
	}

	return object.Rect{X: left, Y: top, Width: right - left, Height: bottom - top}.Normalize()
}
