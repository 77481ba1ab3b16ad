// Package geometry computes bounding boxes, hit tests and resize handles for
// whiteboard objects. Nothing here returns an error: a malformed object
// degrades to a zero-size box at its stored origin.
package geometry

import (
	"math"

	"whiteboard/internal/codec"
	"whiteboard/internal/object"
)

// BoundsOf returns the axis-aligned bounding box of o. Paths are measured
// from their decoded points; lines are normalised so the box has
// non-negative extents; every other kind uses its stored geometry.
func BoundsOf(o object.Object) object.Rect {
	switch o.Kind {
	case object.KindPath:
		points, err := codec.DecodePoints(o.Points)
		if err != nil || len(points) == 0 {
			return object.Rect{X: o.X, Y: o.Y}
		}
		return PointsBounds(points)
	case object.KindLine:
		return object.Rect{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height}.Normalize()
	default:
		return object.Rect{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height}
	}
}

// PointsBounds is the min/max extent of points; empty input gives a zero box.
func PointsBounds(points []object.Point) object.Rect {
	if len(points) == 0 {
		return object.Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return object.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// HitTest reports whether p falls within the bounds of o, edges included.
func HitTest(p object.Point, o object.Object) bool {
	return BoundsOf(o).Contains(p)
}

// Intersects reports whether the bounds of o touch r.
func Intersects(o object.Object, r object.Rect) bool {
	return BoundsOf(o).Intersects(r)
}
