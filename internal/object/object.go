package object

import "fmt"

// Kind discriminates the closed set of drawable whiteboard entities.
type Kind string

const (
	KindPath      Kind = "path"
	KindRectangle Kind = "rectangle"
	KindCircle    Kind = "circle"
	KindLine      Kind = "line"
	KindImage     Kind = "image"
)

// Kinds lists every object variant in a stable order.
var Kinds = []Kind{KindPath, KindRectangle, KindCircle, KindLine, KindImage}

func (k Kind) Valid() bool {
	switch k {
	case KindPath, KindRectangle, KindCircle, KindLine, KindImage:
		return true
	}
	return false
}

// Transparent is the fill colour for unfilled shapes.
const Transparent = "transparent"

// Scope partitions whiteboard objects and change-feed events.
type Scope struct {
	TeamID  string `json:"teamId"`
	BoardID string `json:"boardId"`
}

func (s Scope) Valid() bool {
	return s.TeamID != "" && s.BoardID != ""
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.TeamID, s.BoardID)
}

// Point is a canvas-space coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Object is a persisted whiteboard entity. Kind selects which of the
// variant fields are meaningful:
//
//	path       Points, Color, StrokeWidth (X/Y/Width/Height derived from Points)
//	rectangle  Color, StrokeWidth, FillColor
//	circle     Color, StrokeWidth, FillColor
//	line       Color, StrokeWidth (Width/Height are the signed delta to the second endpoint)
//	image      ImageURL (Width/Height are the display size)
//
// Seq and Rev are stamped by the store: Seq orders creation, Rev orders writes.
type Object struct {
	ID      string `json:"id"`
	TeamID  string `json:"teamId"`
	BoardID string `json:"boardId"`
	Kind    Kind   `json:"type"`

	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	Points      string  `json:"points,omitempty"`
	Color       string  `json:"color,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty"`

	CreatedBy string `json:"createdBy,omitempty"`
	Seq       int64  `json:"seq"`
	Rev       int64  `json:"rev"`
}

func (o Object) Scope() Scope {
	return Scope{TeamID: o.TeamID, BoardID: o.BoardID}
}

func (o Object) InScope(s Scope) bool {
	return o.TeamID == s.TeamID && o.BoardID == s.BoardID
}

// Filled reports whether a rectangle or circle has a visible fill.
func (o Object) Filled() bool {
	return o.FillColor != "" && o.FillColor != Transparent
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Points *string  `json:"points,omitempty"`
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }

func (p Patch) Empty() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil && p.Points == nil
}

// Apply returns o with the patch fields written over it.
func (p Patch) Apply(o Object) Object {
	if p.X != nil {
		o.X = *p.X
	}
	if p.Y != nil {
		o.Y = *p.Y
	}
	if p.Width != nil {
		o.Width = *p.Width
	}
	if p.Height != nil {
		o.Height = *p.Height
	}
	if p.Points != nil {
		o.Points = *p.Points
	}
	return o
}

// Merge combines two patches; fields set in next win.
func (p Patch) Merge(next Patch) Patch {
	if next.X != nil {
		p.X = next.X
	}
	if next.Y != nil {
		p.Y = next.Y
	}
	if next.Width != nil {
		p.Width = next.Width
	}
	if next.Height != nil {
		p.Height = next.Height
	}
	if next.Points != nil {
		p.Points = next.Points
	}
	return p
}

// BoundsPatch carries every geometry field of o, including path points.
func BoundsPatch(o Object) Patch {
	p := Patch{X: Ptr(o.X), Y: Ptr(o.Y), Width: Ptr(o.Width), Height: Ptr(o.Height)}
	if o.Kind == KindPath {
		p.Points = Ptr(o.Points)
	}
	return p
}
