package interaction

import "strings"

// Tool is the active drawing tool.
type Tool string

const (
	ToolSelect    Tool = "select"
	ToolPen       Tool = "pen"
	ToolEraser    Tool = "eraser"
	ToolRectangle Tool = "rectangle"
	ToolCircle    Tool = "circle"
	ToolLine      Tool = "line"
	ToolPan       Tool = "pan"
)

// Tools lists every tool in toolbar order.
var Tools = []Tool{ToolSelect, ToolPen, ToolEraser, ToolRectangle, ToolCircle, ToolLine, ToolPan}

func (t Tool) Valid() bool {
	for _, v := range Tools {
		if v == t {
			return true
		}
	}
	return false
}

// Key names delivered by the UI shell.
const (
	KeyEscape    = "Escape"
	KeySpace     = " "
	KeyDelete    = "Delete"
	KeyBackspace = "Backspace"
)

// Mod is a bit set of held modifier keys.
type Mod uint8

const (
	ModCtrl Mod = 1 << iota
	ModMeta
	ModShift
	ModAlt
)

// zoomModifier reports whether m is the platform page-zoom modifier.
func (m Mod) zoomModifier() bool {
	return m&(ModCtrl|ModMeta) != 0
}

var shortcuts = map[string]Tool{
	"v": ToolSelect, "1": ToolSelect,
	"p": ToolPen, "2": ToolPen,
	"e": ToolEraser, "3": ToolEraser,
	"r": ToolRectangle, "4": ToolRectangle,
	"c": ToolCircle, "5": ToolCircle,
	"l": ToolLine, "6": ToolLine,
	"h": ToolPan, "7": ToolPan,
}

// ShortcutFor returns the tool bound to key, if any.
func ShortcutFor(key string) (Tool, bool) {
	t, ok := shortcuts[strings.ToLower(key)]
	return t, ok
}

// page zoom keys the browser would act on with the zoom modifier held
var pageZoomKeys = map[string]bool{"+": true, "=": true, "-": true, "_": true, "0": true}
