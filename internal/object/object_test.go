package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRect() Object {
	return Object{
		ID:          "obj-1",
		TeamID:      "team",
		BoardID:     "board",
		Kind:        KindRectangle,
		X:           10,
		Y:           10,
		Width:       50,
		Height:      50,
		Color:       "#ff0000",
		StrokeWidth: 2,
		FillColor:   Transparent,
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		mutate  func(o *Object)
		wantErr string
	}{
		{name: "valid rectangle", mutate: func(o *Object) {}},
		{name: "short hex colour", mutate: func(o *Object) { o.Color = "#f00" }},
		{name: "unknown kind", mutate: func(o *Object) { o.Kind = "triangle" }, wantErr: "unknown type"},
		{name: "missing scope", mutate: func(o *Object) { o.BoardID = "" }, wantErr: "teamId and boardId"},
		{name: "negative width", mutate: func(o *Object) { o.Width = -1 }, wantErr: "'Width' value out of allowed range"},
		{name: "zero stroke", mutate: func(o *Object) { o.StrokeWidth = 0 }, wantErr: "'StrokeWidth'"},
		{name: "bad colour", mutate: func(o *Object) { o.Color = "red" }, wantErr: "hex colour"},
		{name: "bad fill", mutate: func(o *Object) { o.FillColor = "nope" }, wantErr: "'FillColor'"},
		{
			name: "line with negative delta",
			mutate: func(o *Object) {
				o.Kind = KindLine
				o.Width, o.Height = -40, -20
			},
		},
		{
			name: "path without points",
			mutate: func(o *Object) {
				o.Kind = KindPath
			},
			wantErr: "'Points' is required",
		},
		{
			name: "image with data uri",
			mutate: func(o *Object) {
				o.Kind = KindImage
				o.Color, o.StrokeWidth = "", 0
				o.ImageURL = "data:image/jpeg;base64,AAAA"
			},
		},
		{
			name: "image with remote url",
			mutate: func(o *Object) {
				o.Kind = KindImage
				o.ImageURL = "https://example.com/cat.png"
			},
			wantErr: "unexpected encoding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validRect()
			tt.mutate(&o)

			_, err := v.Validate(o)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidObject)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidator_SanitizesIdentifiers(t *testing.T) {
	v := NewValidator()
	o := validRect()
	o.CreatedBy = "<script>alert(1)</script>alice"

	got, err := v.Validate(o)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.CreatedBy)
}

func TestValidator_ValidatePatch(t *testing.T) {
	v := NewValidator()
	o := validRect()

	assert.NoError(t, v.ValidatePatch(o, Patch{X: Ptr(20.0)}))
	assert.ErrorIs(t, v.ValidatePatch(o, Patch{Width: Ptr(-3.0)}), ErrInvalidObject)
}

func TestPatch_ApplyAndMerge(t *testing.T) {
	o := validRect()

	first := Patch{X: Ptr(1.0), Y: Ptr(2.0)}
	second := Patch{X: Ptr(3.0), Width: Ptr(4.0)}
	merged := first.Merge(second)

	got := merged.Apply(o)
	assert.Equal(t, 3.0, got.X)
	assert.Equal(t, 2.0, got.Y)
	assert.Equal(t, 4.0, got.Width)
	assert.Equal(t, 50.0, got.Height)

	assert.True(t, Patch{}.Empty())
	assert.False(t, merged.Empty())
}

func TestBoundsPatch_IncludesPointsForPaths(t *testing.T) {
	o := validRect()
	assert.Nil(t, BoundsPatch(o).Points)

	o.Kind = KindPath
	o.Points = `[{"x":1,"y":2}]`
	p := BoundsPatch(o)
	require.NotNil(t, p.Points)
	assert.Equal(t, o.Points, *p.Points)
}

func TestRect(t *testing.T) {
	r := RectFromPoints(Point{X: 60, Y: 60}, Point{X: 10, Y: 10})
	assert.Equal(t, Rect{X: 10, Y: 10, Width: 50, Height: 50}, r)

	assert.True(t, r.Contains(Point{X: 10, Y: 10}), "edges are inclusive")
	assert.True(t, r.Contains(Point{X: 60, Y: 60}), "edges are inclusive")
	assert.False(t, r.Contains(Point{X: 60.1, Y: 30}))

	assert.True(t, r.Intersects(Rect{X: 60, Y: 60, Width: 5, Height: 5}), "touching counts")
	assert.False(t, r.Intersects(Rect{X: 61, Y: 0, Width: 5, Height: 5}))

	signed := Rect{X: 50, Y: 50, Width: -20, Height: -10}
	assert.Equal(t, Rect{X: 30, Y: 40, Width: 20, Height: 10}, signed.Normalize())
	assert.True(t, signed.Contains(Point{X: 35, Y: 45}))
}

func TestScope(t *testing.T) {
	s := Scope{TeamID: "t", BoardID: "b"}
	assert.True(t, s.Valid())
	assert.Equal(t, "t/b", s.String())
	assert.False(t, Scope{TeamID: "t"}.Valid())

	o := validRect()
	assert.True(t, o.InScope(Scope{TeamID: "team", BoardID: "board"}))
	assert.False(t, o.InScope(Scope{TeamID: "team", BoardID: "other"}))
}
