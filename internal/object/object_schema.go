package object

// Validation limit constants
const (
	MaxCoordinate  = 1000000
	MinCoordinate  = -1000000
	MaxStrokeWidth = 1000
	MaxColorLength = 50
	MaxIDLength    = 128
)

// schemaFor returns the validation schema for an object's kind, populated
// from o. Unknown kinds have no schema.
func schemaFor(o Object) any {
	pos := Position{X: o.X, Y: o.Y}
	stroke := StrokeProps{Color: o.Color, StrokeWidth: o.StrokeWidth}

	switch o.Kind {
	case KindPath:
		return &PathData{Position: pos, Size: Size{Width: o.Width, Height: o.Height}, StrokeProps: stroke, Points: o.Points}
	case KindRectangle, KindCircle:
		return &ShapeData{Position: pos, Size: Size{Width: o.Width, Height: o.Height}, StrokeProps: stroke, FillColor: o.FillColor}
	case KindLine:
		return &LineData{Position: pos, Delta: Delta{DX: o.Width, DY: o.Height}, StrokeProps: stroke}
	case KindImage:
		return &ImageData{Position: pos, Size: Size{Width: o.Width, Height: o.Height}, ImageURL: o.ImageURL}
	default:
		return nil
	}
}

// =============================================================================
// Common Embedded Structs
// =============================================================================

// Position is the top-left of the bounding box.
type Position struct {
	X float64 `validate:"min=-1000000,max=1000000"`
	Y float64 `validate:"min=-1000000,max=1000000"`
}

// Size is a non-negative display size.
type Size struct {
	Width  float64 `validate:"min=0,max=1000000"`
	Height float64 `validate:"min=0,max=1000000"`
}

// Delta is the signed offset to a line's second endpoint.
type Delta struct {
	DX float64 `validate:"min=-1000000,max=1000000"`
	DY float64 `validate:"min=-1000000,max=1000000"`
}

type StrokeProps struct {
	Color       string  `validate:"required,max=50,wbcolor"`
	StrokeWidth float64 `validate:"gt=0,max=1000"`
}

// =============================================================================
// Per-kind schemas
// =============================================================================

type PathData struct {
	Position
	Size
	StrokeProps
	Points string `validate:"required,startswith=["`
}

type ShapeData struct {
	Position
	Size
	StrokeProps
	FillColor string `validate:"omitempty,max=50,wbcolor"`
}

type LineData struct {
	Position
	Delta
	StrokeProps
}

type ImageData struct {
	Position
	Size
	ImageURL string `validate:"required,startswith=data:image/"`
}
