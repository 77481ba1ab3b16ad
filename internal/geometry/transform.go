package geometry

import (
	"fmt"

	"whiteboard/internal/codec"
	"whiteboard/internal/object"
)

// TranslatePoints shifts every point by d.
func TranslatePoints(points []object.Point, d object.Point) []object.Point {
	out := make([]object.Point, len(points))
	for i, p := range points {
		out[i] = p.Add(d)
	}
	return out
}

// FitPoints maps points from the box from onto the box to. A degenerate
// source axis is translated rather than scaled.
func FitPoints(points []object.Point, from, to object.Rect) []object.Point {
	sx, sy := 1.0, 1.0
	if from.Width != 0 {
		sx = to.Width / from.Width
	}
	if from.Height != 0 {
		sy = to.Height / from.Height
	}
	out := make([]object.Point, len(points))
	for i, p := range points {
		out[i] = object.Point{
			X: to.X + (p.X-from.X)*sx,
			Y: to.Y + (p.Y-from.Y)*sy,
		}
	}
	return out
}

// MovePatch returns the patch that moves orig by d. Paths carry their
// translated points so the stored box stays equal to the points' extent.
func MovePatch(orig object.Object, d object.Point, c *codec.Codec) (object.Patch, error) {
	if orig.Kind != object.KindPath {
		return object.Patch{X: object.Ptr(orig.X + d.X), Y: object.Ptr(orig.Y + d.Y)}, nil
	}

	points, err := codec.DecodePoints(orig.Points)
	if err != nil {
		return object.Patch{}, fmt.Errorf("decode path: %w", err)
	}
	return pathPatch(TranslatePoints(points, d), c)
}

// ResizePatch returns the patch that fits orig into target. Paths and lines
// are scaled point-wise; boxed kinds take target directly.
func ResizePatch(orig object.Object, target object.Rect, c *codec.Codec) (object.Patch, error) {
	target = target.Normalize()

	switch orig.Kind {
	case object.KindPath:
		points, err := codec.DecodePoints(orig.Points)
		if err != nil {
			return object.Patch{}, fmt.Errorf("decode path: %w", err)
		}
		return pathPatch(FitPoints(points, BoundsOf(orig), target), c)

	case object.KindLine:
		ends := []object.Point{
			{X: orig.X, Y: orig.Y},
			{X: orig.X + orig.Width, Y: orig.Y + orig.Height},
		}
		fitted := FitPoints(ends, BoundsOf(orig), target)
		return object.Patch{
			X:      object.Ptr(fitted[0].X),
			Y:      object.Ptr(fitted[0].Y),
			Width:  object.Ptr(fitted[1].X - fitted[0].X),
			Height: object.Ptr(fitted[1].Y - fitted[0].Y),
		}, nil

	default:
		return object.Patch{
			X:      object.Ptr(target.X),
			Y:      object.Ptr(target.Y),
			Width:  object.Ptr(target.Width),
			Height: object.Ptr(target.Height),
		}, nil
	}
}

// PathGeometry encodes points and derives the stored box from the encoded
// (possibly compressed) result.
func PathGeometry(points []object.Point, c *codec.Codec) (string, object.Rect, error) {
	encoded, err := c.EncodePoints(points)
	if err != nil {
		return "", object.Rect{}, err
	}
	stored, err := codec.DecodePoints(encoded)
	if err != nil {
		return "", object.Rect{}, fmt.Errorf("decode encoded path: %w", err)
	}
	return encoded, PointsBounds(stored), nil
}

func pathPatch(points []object.Point, c *codec.Codec) (object.Patch, error) {
	encoded, box, err := PathGeometry(points, c)
	if err != nil {
		return object.Patch{}, err
	}
	return object.Patch{
		X:      object.Ptr(box.X),
		Y:      object.Ptr(box.Y),
		Width:  object.Ptr(box.Width),
		Height: object.Ptr(box.Height),
		Points: object.Ptr(encoded),
	}, nil
}
