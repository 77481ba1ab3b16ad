package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/codec"
	"whiteboard/internal/object"
)

func path(t *testing.T, points ...object.Point) object.Object {
	t.Helper()
	encoded, box, err := PathGeometry(points, codec.New(0))
	require.NoError(t, err)
	return object.Object{
		Kind: object.KindPath, Points: encoded,
		X: box.X, Y: box.Y, Width: box.Width, Height: box.Height,
	}
}

func TestBoundsOf_Path(t *testing.T) {
	o := path(t, object.Point{X: 0, Y: 0}, object.Point{X: 100, Y: 0}, object.Point{X: 100, Y: 100})
	assert.Equal(t, object.Rect{X: 0, Y: 0, Width: 100, Height: 100}, BoundsOf(o))

	o = path(t, object.Point{X: -5, Y: 20}, object.Point{X: 15, Y: -10}, object.Point{X: 3, Y: 7})
	assert.Equal(t, object.Rect{X: -5, Y: -10, Width: 20, Height: 30}, BoundsOf(o))
}

func TestBoundsOf_MalformedPathIsZeroSize(t *testing.T) {
	for _, points := range []string{"", "[]", "{broken"} {
		o := object.Object{Kind: object.KindPath, X: 7, Y: 9, Width: 40, Height: 40, Points: points}
		assert.Equal(t, object.Rect{X: 7, Y: 9}, BoundsOf(o), "points %q", points)
	}
}

func TestBoundsOf_StoredGeometry(t *testing.T) {
	rect := object.Object{Kind: object.KindRectangle, X: 1, Y: 2, Width: 3, Height: 4}
	assert.Equal(t, object.Rect{X: 1, Y: 2, Width: 3, Height: 4}, BoundsOf(rect))

	line := object.Object{Kind: object.KindLine, X: 50, Y: 50, Width: -30, Height: 10}
	assert.Equal(t, object.Rect{X: 20, Y: 50, Width: 30, Height: 10}, BoundsOf(line))
}

func TestHitTest(t *testing.T) {
	rect := object.Object{Kind: object.KindRectangle, X: 10, Y: 10, Width: 50, Height: 50}

	assert.True(t, HitTest(object.Point{X: 10, Y: 10}, rect))
	assert.True(t, HitTest(object.Point{X: 60, Y: 35}, rect))
	assert.False(t, HitTest(object.Point{X: 9.99, Y: 35}, rect))
}

func TestResizeHandleAt(t *testing.T) {
	rect := object.Object{Kind: object.KindRectangle, X: 0, Y: 0, Width: 100, Height: 60}

	tests := []struct {
		name string
		p    object.Point
		zoom float64
		want Handle
	}{
		{"nw corner", object.Point{X: 1, Y: 1}, 1, HandleNW},
		{"ne corner", object.Point{X: 100, Y: -3}, 1, HandleNE},
		{"sw corner", object.Point{X: -8, Y: 68}, 1, HandleSW},
		{"se corner", object.Point{X: 104, Y: 64}, 1, HandleSE},
		{"north edge", object.Point{X: 50, Y: 0}, 1, HandleN},
		{"south edge", object.Point{X: 52, Y: 60}, 1, HandleS},
		{"west edge", object.Point{X: 0, Y: 30}, 1, HandleW},
		{"east edge", object.Point{X: 100, Y: 28}, 1, HandleE},
		{"interior", object.Point{X: 50, Y: 30}, 1, HandleNone},
		{"just outside radius", object.Point{X: 108.5, Y: 0}, 1, HandleNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResizeHandleAt(tt.p, rect, tt.zoom))
		})
	}
}

func TestResizeHandleAt_ScalesInverselyWithZoom(t *testing.T) {
	rect := object.Object{Kind: object.KindRectangle, X: 0, Y: 0, Width: 100, Height: 100}

	// 8 screen pixels: 16 canvas units at 0.5x, 4 canvas units at 2x
	assert.Equal(t, HandleNW, ResizeHandleAt(object.Point{X: 15, Y: 15}, rect, 0.5))
	assert.Equal(t, HandleNone, ResizeHandleAt(object.Point{X: 15, Y: 15}, rect, 1))
	assert.Equal(t, HandleNW, ResizeHandleAt(object.Point{X: 4, Y: 4}, rect, 2))
	assert.Equal(t, HandleNone, ResizeHandleAt(object.Point{X: 5, Y: 5}, rect, 2))
}

func TestResize(t *testing.T) {
	r := object.Rect{X: 10, Y: 10, Width: 50, Height: 50}

	assert.Equal(t, object.Rect{X: 10, Y: 10, Width: 90, Height: 70}, Resize(r, HandleSE, object.Point{X: 100, Y: 80}))
	assert.Equal(t, object.Rect{X: 0, Y: 10, Width: 60, Height: 50}, Resize(r, HandleW, object.Point{X: 0, Y: 999}))
	assert.Equal(t, object.Rect{X: 10, Y: 5, Width: 50, Height: 55}, Resize(r, HandleN, object.Point{X: 999, Y: 5}))
	// dragging past the opposite edge flips instead of going negative
	assert.Equal(t, object.Rect{X: 60, Y: 10, Width: 20, Height: 50}, Resize(r, HandleW, object.Point{X: 80, Y: 0}))
}

func TestMovePatch(t *testing.T) {
	c := codec.New(0)

	rect := object.Object{Kind: object.KindRectangle, X: 10, Y: 10, Width: 5, Height: 5}
	p, err := MovePatch(rect, object.Point{X: 5, Y: -5}, c)
	require.NoError(t, err)
	moved := p.Apply(rect)
	assert.Equal(t, 15.0, moved.X)
	assert.Equal(t, 5.0, moved.Y)
	assert.Nil(t, p.Points)

	stroke := path(t, object.Point{X: 0, Y: 0}, object.Point{X: 10, Y: 20})
	p, err = MovePatch(stroke, object.Point{X: 100, Y: 100}, c)
	require.NoError(t, err)
	moved = p.Apply(stroke)
	assert.Equal(t, object.Rect{X: 100, Y: 100, Width: 10, Height: 20}, BoundsOf(moved))
	assert.Equal(t, BoundsOf(moved), object.Rect{X: moved.X, Y: moved.Y, Width: moved.Width, Height: moved.Height})
}

func TestResizePatch(t *testing.T) {
	c := codec.New(0)
	target := object.Rect{X: 0, Y: 0, Width: 200, Height: 100}

	stroke := path(t, object.Point{X: 0, Y: 0}, object.Point{X: 50, Y: 25}, object.Point{X: 100, Y: 50})
	p, err := ResizePatch(stroke, target, c)
	require.NoError(t, err)
	resized := p.Apply(stroke)
	assert.Equal(t, target, BoundsOf(resized))
	points, err := codec.DecodePoints(resized.Points)
	require.NoError(t, err)
	assert.Equal(t, object.Point{X: 100, Y: 50}, points[1])

	line := object.Object{Kind: object.KindLine, X: 100, Y: 0, Width: -100, Height: 50}
	p, err = ResizePatch(line, target, c)
	require.NoError(t, err)
	resized = p.Apply(line)
	assert.Equal(t, 200.0, resized.X, "first endpoint stays on the right")
	assert.Equal(t, -200.0, resized.Width)
	assert.Equal(t, 100.0, resized.Height)

	img := object.Object{Kind: object.KindImage, X: 5, Y: 5, Width: 10, Height: 10}
	p, err = ResizePatch(img, object.Rect{X: 20, Y: 20, Width: -10, Height: 30}, c)
	require.NoError(t, err)
	assert.Equal(t, object.Rect{X: 10, Y: 20, Width: 10, Height: 30}, BoundsOf(p.Apply(img)))
}
