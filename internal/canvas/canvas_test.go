package canvas

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/board"
	"whiteboard/internal/codec"
	"whiteboard/internal/identity"
	"whiteboard/internal/interaction"
	"whiteboard/internal/object"
	"whiteboard/internal/render"
	"whiteboard/internal/store/memstore"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func open(t *testing.T, st *memstore.Store, team string, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(clock.NewMock())}, opts...)
	s, err := Open(context.Background(), st, identity.NewStatic(team), "board-1", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.Eventually(t, func() bool { return s.Status() == board.StatusConnected }, waitFor, tick)
	return s
}

func drawRect(s *Session, from, to object.Point) {
	s.SetTool(interaction.ToolRectangle)
	s.PointerDown(from)
	s.PointerMove(to)
	_ = s.PointerUp(to)
}

func drain(s *Session) {
	for {
		select {
		case <-s.Redraw():
		default:
			return
		}
	}
}

func TestOpenRequiresTeam(t *testing.T) {
	_, err := Open(context.Background(), memstore.New(codec.DefaultCeiling), identity.Static{}, "board-1")
	assert.ErrorIs(t, err, identity.ErrNoTeam)
}

func TestSessionsShareBoard(t *testing.T) {
	st := memstore.New(codec.DefaultCeiling)
	alice := open(t, st, "team-a")
	bob := open(t, st, "team-a")
	eve := open(t, st, "team-b")

	drawRect(alice, object.Point{X: 10, Y: 10}, object.Point{X: 60, Y: 40})
	alice.WaitIdle()

	require.Eventually(t, func() bool { return len(bob.Objects()) == 1 }, waitFor, tick)
	got := bob.Objects()[0]
	assert.Equal(t, object.KindRectangle, got.Kind)
	assert.Equal(t, alice.Identity().SessionID(), got.CreatedBy)
	assert.Equal(t, object.Rect{X: 10, Y: 10, Width: 50, Height: 30}, object.Rect{X: got.X, Y: got.Y, Width: got.Width, Height: got.Height})

	assert.Empty(t, eve.Objects(), "other team must not see the board")
}

func TestRedrawSignalsCoalesce(t *testing.T) {
	s := open(t, memstore.New(codec.DefaultCeiling), "team-a")
	drain(s)

	s.SetTool(interaction.ToolPen)
	s.PointerDown(object.Point{X: 0, Y: 0})
	s.PointerMove(object.Point{X: 5, Y: 5})
	s.PointerMove(object.Point{X: 9, Y: 9})

	// three changes, one pending signal
	assert.Len(t, s.Redraw(), 1)
}

func TestDrawRendersBoard(t *testing.T) {
	s := open(t, memstore.New(codec.DefaultCeiling), "team-a")
	s.SetStyle(interaction.Style{Color: "#ff0000", FillColor: "#ff0000", StrokeWidth: 2})
	drawRect(s, object.Point{X: 10, Y: 10}, object.Point{X: 50, Y: 50})
	s.WaitIdle()

	surf := render.NewGGSurface(64, 64)
	s.Draw(surf)

	px := color.RGBAModel.Convert(surf.Image().At(30, 30)).(color.RGBA)
	assert.Equal(t, uint8(255), px.R)
	assert.Zero(t, px.G)
}

func TestSessionPenColourFromGenerator(t *testing.T) {
	colors := identity.NewColorGenerator()
	st := memstore.New(codec.DefaultCeiling)
	a := open(t, st, "team-a", WithColors(colors))
	b := open(t, st, "team-a", WithColors(colors))

	assert.NotEqual(t, a.Style().Color, b.Style().Color)
	assert.Equal(t, colors.For(a.Identity().SessionID()), a.Style().Color)

	// a closed session's id no longer holds its colour
	before := a.Style().Color
	require.NoError(t, a.Close())
	assert.NotEqual(t, before, colors.For(a.Identity().SessionID()))
	assert.Equal(t, b.Style().Color, colors.For(b.Identity().SessionID()))
}

func TestKeyboardAndWarning(t *testing.T) {
	s := open(t, memstore.New(codec.DefaultCeiling), "team-a")

	assert.True(t, s.KeyDown("r", 0))
	assert.Equal(t, interaction.ToolRectangle, s.Tool())

	assert.True(t, s.Wheel(-100, object.Point{}, interaction.ModCtrl))
	assert.Equal(t, interaction.WarnPageZoom, s.Warning())
}

func TestStrokeTooLargeSurfaces(t *testing.T) {
	s := open(t, memstore.New(codec.DefaultCeiling), "team-a", WithFieldCeiling(10))

	s.SetTool(interaction.ToolPen)
	s.PointerDown(object.Point{X: 0, Y: 0})
	for i := 1; i < 50; i++ {
		s.PointerMove(object.Point{X: float64(i * 3), Y: float64(i)})
	}
	err := s.PointerUp(object.Point{X: 200, Y: 60})
	assert.ErrorIs(t, err, codec.ErrPayloadTooLarge)
	assert.Equal(t, interaction.WarnStrokeTooLarge, s.Warning())
	assert.Empty(t, s.Objects())
}

func TestPlaceImage(t *testing.T) {
	s := open(t, memstore.New(codec.DefaultCeiling), "team-a")

	src := image.NewRGBA(image.Rect(0, 0, 20, 10))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	id, err := s.PlaceImage(&buf, object.Point{X: 5, Y: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	s.WaitIdle()

	objs := s.Objects()
	require.Len(t, objs, 1)
	assert.Equal(t, object.KindImage, objs[0].Kind)
}

func TestLastErrorClears(t *testing.T) {
	s := open(t, memstore.New(codec.DefaultCeiling), "team-a")
	assert.NoError(t, s.LastError())

	s.fail(assert.AnError)
	assert.ErrorIs(t, s.LastError(), assert.AnError)
	assert.NoError(t, s.LastError())
}
