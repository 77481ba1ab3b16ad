package interaction

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/codec"
	"whiteboard/internal/geometry"
	"whiteboard/internal/object"
)

// fakeBoard is an in-memory Board recording gesture brackets.
type fakeBoard struct {
	objs   []object.Object
	next   int64
	begins int
	ends   int
}

func (b *fakeBoard) Objects() []object.Object {
	return append([]object.Object(nil), b.objs...)
}

func (b *fakeBoard) Object(id string) (object.Object, bool) {
	for _, o := range b.objs {
		if o.ID == id {
			return o, true
		}
	}
	return object.Object{}, false
}

func (b *fakeBoard) Create(o object.Object) string {
	b.next++
	o.ID = fmt.Sprintf("obj-%d", b.next)
	o.Seq = b.next
	b.objs = append(b.objs, o)
	return o.ID
}

func (b *fakeBoard) Edit(id string, p object.Patch) {
	for i, o := range b.objs {
		if o.ID == id {
			b.objs[i] = p.Apply(o)
		}
	}
}

func (b *fakeBoard) Delete(id string) {
	for i, o := range b.objs {
		if o.ID == id {
			b.objs = append(b.objs[:i], b.objs[i+1:]...)
			return
		}
	}
}

func (b *fakeBoard) BeginEdit() { b.begins++ }
func (b *fakeBoard) EndEdit()   { b.ends++ }

func pt(x, y float64) object.Point { return object.Point{X: x, Y: y} }

func box(x, y, w, h float64) object.Object {
	return object.Object{Kind: object.KindRectangle, X: x, Y: y, Width: w, Height: h, Color: "#000000", StrokeWidth: 1}
}

func drag(m *Machine, from object.Point, via ...object.Point) error {
	m.PointerDown(from)
	for _, p := range via[:len(via)-1] {
		m.PointerMove(p)
	}
	return m.PointerUp(via[len(via)-1])
}

func newMachine(b Board, opts ...Option) *Machine {
	return New(b, append([]Option{WithAuthor("session-1")}, opts...)...)
}

func TestPenStroke(t *testing.T) {
	b := &fakeBoard{}
	m := newMachine(b)
	m.SetTool(ToolPen)
	m.SetStyle(Style{Color: "#ff0000", StrokeWidth: 3})

	require.NoError(t, drag(m, pt(0, 0), pt(100, 0), pt(100, 100)))

	require.Len(t, b.objs, 1)
	o := b.objs[0]
	assert.Equal(t, object.KindPath, o.Kind)
	assert.Equal(t, object.Rect{X: 0, Y: 0, Width: 100, Height: 100}, object.Rect{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height})
	assert.Equal(t, "#ff0000", o.Color)
	assert.Equal(t, 3.0, o.StrokeWidth)
	assert.Equal(t, "session-1", o.CreatedBy)

	points, err := codec.DecodePoints(o.Points)
	require.NoError(t, err)
	assert.Equal(t, []object.Point{pt(0, 0), pt(100, 0), pt(100, 100)}, points)
	assert.Equal(t, geometry.PointsBounds(points), geometry.BoundsOf(o))
}

func TestPenClickWithoutMovementIsDiscarded(t *testing.T) {
	b := &fakeBoard{}
	m := newMachine(b)
	m.SetTool(ToolPen)

	m.PointerDown(pt(5, 5))
	require.NoError(t, m.PointerUp(pt(5, 5)))
	assert.Empty(t, b.objs)
}

func TestPenStrokeTooLarge(t *testing.T) {
	b := &fakeBoard{}
	m := newMachine(b, WithCodec(codec.New(10)))
	m.SetTool(ToolPen)

	err := drag(m, pt(0, 0), pt(100, 0), pt(100, 100))
	assert.ErrorIs(t, err, codec.ErrPayloadTooLarge)
	assert.Empty(t, b.objs)
	assert.Equal(t, WarnStrokeTooLarge, m.Warning())
}

func TestShapes(t *testing.T) {
	tests := []struct {
		name     string
		tool     Tool
		from, to object.Point
		want     *object.Object
	}{
		{
			name: "tiny rectangle is discarded",
			tool: ToolRectangle, from: pt(10, 10), to: pt(15, 12),
		},
		{
			name: "rectangle",
			tool: ToolRectangle, from: pt(10, 10), to: pt(60, 60),
			want: &object.Object{Kind: object.KindRectangle, X: 10, Y: 10, Width: 50, Height: 50},
		},
		{
			name: "reverse drag is normalised",
			tool: ToolCircle, from: pt(60, 80), to: pt(10, 10),
			want: &object.Object{Kind: object.KindCircle, X: 10, Y: 10, Width: 50, Height: 70},
		},
		{
			name: "line keeps the signed delta",
			tool: ToolLine, from: pt(50, 50), to: pt(20, 90),
			want: &object.Object{Kind: object.KindLine, X: 50, Y: 50, Width: -30, Height: 40},
		},
		{
			name: "short line is discarded",
			tool: ToolLine, from: pt(0, 0), to: pt(3, 4),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBoard{}
			m := newMachine(b)
			m.SetTool(tt.tool)
			require.NoError(t, drag(m, tt.from, tt.to))

			if tt.want == nil {
				assert.Empty(t, b.objs)
				return
			}
			require.Len(t, b.objs, 1)
			o := b.objs[0]
			assert.Equal(t, tt.want.Kind, o.Kind)
			assert.Equal(t, []float64{tt.want.X, tt.want.Y, tt.want.Width, tt.want.Height}, []float64{o.X, o.Y, o.Width, o.Height})
			assert.Equal(t, DefaultStyle().Color, o.Color)
			if o.Kind != object.KindLine {
				assert.Equal(t, object.Transparent, o.FillColor)
			}
		})
	}
}

func TestEraser(t *testing.T) {
	b := &fakeBoard{}
	hit := b.Create(box(40, 40, 20, 20))
	b.Create(box(100, 100, 10, 10))
	touching := b.Create(box(50, 0, 10, 10))

	m := newMachine(b)
	m.SetTool(ToolEraser)
	require.NoError(t, drag(m, pt(0, 0), pt(25, 10), pt(50, 50)))

	require.Len(t, b.objs, 1)
	assert.Equal(t, pt(100, 100), pt(b.objs[0].X, b.objs[0].Y))
	_, ok := b.Object(hit)
	assert.False(t, ok)
	_, ok = b.Object(touching)
	assert.False(t, ok, "edge contact counts as intersecting")
}

func TestSelectRequiresSecondPressToDragNewSelection(t *testing.T) {
	b := &fakeBoard{}
	a := b.Create(box(0, 0, 50, 50))
	other := b.Create(box(100, 0, 50, 50))
	m := newMachine(b)

	// no previous selection: select and drag at once
	require.NoError(t, drag(m, pt(10, 10), pt(20, 30)))
	assert.Equal(t, a, m.Selected())
	o, _ := b.Object(a)
	assert.Equal(t, pt(10, 20), pt(o.X, o.Y))
	assert.Equal(t, 1, b.begins)
	assert.Equal(t, 1, b.ends)

	// different object: first press only selects
	require.NoError(t, drag(m, pt(110, 10), pt(150, 60)))
	assert.Equal(t, other, m.Selected())
	o, _ = b.Object(other)
	assert.Equal(t, pt(100, 0), pt(o.X, o.Y))

	// second press drags
	require.NoError(t, drag(m, pt(110, 10), pt(120, 20), pt(150, 60)))
	o, _ = b.Object(other)
	assert.Equal(t, pt(140, 50), pt(o.X, o.Y))

	// empty space clears selection
	require.NoError(t, drag(m, pt(500, 500), pt(500, 500)))
	assert.Empty(t, m.Selected())
}

func TestSelectPicksTopmost(t *testing.T) {
	b := &fakeBoard{}
	b.Create(box(0, 0, 100, 100))
	top := b.Create(box(20, 20, 30, 30))
	m := newMachine(b)

	m.PointerDown(pt(25, 25))
	assert.Equal(t, top, m.Selected())
}

func TestResizeHandles(t *testing.T) {
	b := &fakeBoard{}
	id := b.Create(box(0, 0, 100, 100))
	m := newMachine(b)

	require.NoError(t, drag(m, pt(50, 50), pt(50, 50)))
	require.Equal(t, id, m.Selected())

	require.NoError(t, drag(m, pt(101, 99), pt(130, 120), pt(150, 120)))
	o, _ := b.Object(id)
	assert.Equal(t, []float64{0, 0, 150, 120}, []float64{o.X, o.Y, o.Width, o.Height})

	t.Run("hit radius shrinks with zoom", func(t *testing.T) {
		m.ZoomTo(2, pt(0, 0))

		m.PointerDown(pt(2*153, 2*123))
		assert.Equal(t, modeResizing, m.mode)
		assert.Equal(t, geometry.HandleSE, m.handle)
		require.NoError(t, m.PointerUp(pt(2*150, 2*120)))

		// 6 canvas units off the corner is inside 8 but outside 8/2
		m.PointerDown(pt(2*156, 2*126))
		assert.Equal(t, modeIdle, m.mode)
		assert.Equal(t, geometry.HandleSE, geometry.ResizeHandleAt(pt(156, 126), b.objs[0], 1))
	})
}

func TestResizePathRescalesPoints(t *testing.T) {
	b := &fakeBoard{}
	m := newMachine(b)
	m.SetTool(ToolPen)
	require.NoError(t, drag(m, pt(0, 0), pt(50, 50), pt(100, 100)))
	id := b.objs[0].ID

	m.SetTool(ToolSelect)
	require.NoError(t, drag(m, pt(50, 50), pt(50, 50)))
	require.NoError(t, drag(m, pt(100, 100), pt(200, 50)))

	o, _ := b.Object(id)
	points, err := codec.DecodePoints(o.Points)
	require.NoError(t, err)
	assert.Equal(t, []object.Point{pt(0, 0), pt(100, 25), pt(200, 50)}, points)
	assert.Equal(t, geometry.PointsBounds(points), geometry.BoundsOf(o))
}

func TestKeyboard(t *testing.T) {
	t.Run("shortcuts", func(t *testing.T) {
		m := newMachine(&fakeBoard{})
		for key, want := range map[string]Tool{
			"p": ToolPen, "E": ToolEraser, "4": ToolRectangle, "c": ToolCircle,
			"6": ToolLine, "h": ToolPan, "1": ToolSelect,
		} {
			assert.True(t, m.KeyDown(key, 0))
			assert.Equal(t, want, m.Tool(), key)
		}
		assert.False(t, m.KeyDown("z", 0))
	})

	t.Run("escape selects and clears selection but keeps a draft", func(t *testing.T) {
		b := &fakeBoard{}
		b.Create(box(0, 0, 10, 10))
		m := newMachine(b)
		m.PointerDown(pt(5, 5))
		require.NoError(t, m.PointerUp(pt(5, 5)))
		require.NotEmpty(t, m.Selected())

		m.KeyDown(KeyEscape, 0)
		assert.Empty(t, m.Selected())

		m.SetTool(ToolPen)
		m.PointerDown(pt(100, 100))
		m.PointerMove(pt(120, 120))
		m.KeyDown(KeyEscape, 0)
		assert.Equal(t, ToolSelect, m.Tool())
		require.NoError(t, m.PointerUp(pt(140, 140)))
		assert.Len(t, b.objs, 2, "the in-progress stroke still completes")
	})

	t.Run("delete removes the selection", func(t *testing.T) {
		b := &fakeBoard{}
		b.Create(box(0, 0, 10, 10))
		m := newMachine(b)
		assert.False(t, m.KeyDown(KeyDelete, 0), "nothing selected")

		m.PointerDown(pt(5, 5))
		require.NoError(t, m.PointerUp(pt(5, 5)))
		assert.True(t, m.KeyDown(KeyBackspace, 0))
		assert.Empty(t, b.objs)
		assert.Empty(t, m.Selected())
	})

	t.Run("space overrides to pan until released", func(t *testing.T) {
		b := &fakeBoard{}
		m := newMachine(b)
		m.SetTool(ToolPen)

		m.KeyDown(KeySpace, 0)
		assert.Equal(t, ToolPan, m.ActiveTool())
		require.NoError(t, drag(m, pt(10, 10), pt(40, 30), pt(60, 50)))
		assert.Equal(t, pt(50, 40), m.Offset())
		assert.Empty(t, b.objs)

		m.KeyUp(KeySpace)
		assert.Equal(t, ToolPen, m.ActiveTool())
		assert.Equal(t, ToolPen, m.Tool())
	})
}

func TestPanChangesCanvasCoordinates(t *testing.T) {
	b := &fakeBoard{}
	m := newMachine(b)
	m.SetTool(ToolPan)
	require.NoError(t, drag(m, pt(0, 0), pt(100, 50)))

	m.SetTool(ToolRectangle)
	require.NoError(t, drag(m, pt(110, 60), pt(130, 80)))
	require.Len(t, b.objs, 1)
	assert.Equal(t, pt(10, 10), pt(b.objs[0].X, b.objs[0].Y))
}

func TestZoom(t *testing.T) {
	t.Run("anchored at the cursor", func(t *testing.T) {
		m := newMachine(&fakeBoard{})
		at := pt(200, 100)
		before := m.ScreenToCanvas(at)

		assert.True(t, m.Wheel(-1, at, 0))
		assert.InDelta(t, 1.1, m.Zoom(), 1e-9)
		after := m.ScreenToCanvas(at)
		assert.InDelta(t, before.X, after.X, 1e-9)
		assert.InDelta(t, before.Y, after.Y, 1e-9)

		m.Wheel(3, pt(17, 42), 0)
		assert.InDelta(t, 1.0, m.Zoom(), 1e-9)
	})

	t.Run("clamped", func(t *testing.T) {
		m := newMachine(&fakeBoard{})
		for i := 0; i < 100; i++ {
			m.Wheel(-1, pt(0, 0), 0)
		}
		assert.Equal(t, MaxZoom, m.Zoom())
		for i := 0; i < 200; i++ {
			m.Wheel(1, pt(0, 0), 0)
		}
		assert.Equal(t, MinZoom, m.Zoom())
	})

	t.Run("page zoom is suppressed with a transient warning", func(t *testing.T) {
		mock := clock.NewMock()
		m := newMachine(&fakeBoard{}, WithClock(mock))

		assert.True(t, m.Wheel(-1, pt(0, 0), ModCtrl))
		assert.Equal(t, 1.0, m.Zoom())
		assert.Equal(t, WarnPageZoom, m.Warning())

		mock.Add(WarningDuration)
		assert.Empty(t, m.Warning())

		assert.True(t, m.KeyDown("+", ModMeta))
		assert.Equal(t, WarnPageZoom, m.Warning())
		assert.False(t, m.KeyDown("p", ModCtrl), "other modified keys pass through")
		assert.Equal(t, ToolSelect, m.Tool())
	})
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPlaceImage(t *testing.T) {
	b := &fakeBoard{}
	m := newMachine(b)

	id, err := m.PlaceImage(bytes.NewReader(pngBytes(t, 1000, 500)), pt(30, 40))
	require.NoError(t, err)

	o, ok := b.Object(id)
	require.True(t, ok)
	assert.Equal(t, object.KindImage, o.Kind)
	assert.Equal(t, []float64{30, 40, 400, 200}, []float64{o.X, o.Y, o.Width, o.Height})
	assert.Contains(t, o.ImageURL, "data:image/jpeg")

	_, err = m.PlaceImage(bytes.NewReader([]byte("not an image")), pt(0, 0))
	assert.ErrorIs(t, err, codec.ErrImageDecode)
	assert.Equal(t, WarnImageInvalid, m.Warning())
	assert.Len(t, b.objs, 1)
}

func TestFrameCarriesDraft(t *testing.T) {
	b := &fakeBoard{}
	m := newMachine(b)
	m.SetTool(ToolCircle)

	m.PointerDown(pt(0, 0))
	m.PointerMove(pt(30, 40))
	f := m.Frame()
	require.NotNil(t, f.Draft)
	assert.Equal(t, object.KindCircle, f.Draft.Kind)
	assert.Equal(t, pt(30, 40), f.Draft.End)

	require.NoError(t, m.PointerUp(pt(30, 40)))
	assert.Nil(t, m.Frame().Draft)
	assert.Len(t, m.Frame().Objects, 1)
}
