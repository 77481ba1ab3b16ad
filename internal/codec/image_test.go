package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, noisy bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255}
			if noisy {
				c = color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEncodeImage_ScalesPreservingAspect(t *testing.T) {
	c := New(0)

	enc, err := c.EncodeImage(bytes.NewReader(pngBytes(t, 200, 100, false)), 50, 0.7)
	require.NoError(t, err)

	assert.Equal(t, 50, enc.Width)
	assert.Equal(t, 25, enc.Height)
	assert.True(t, strings.HasPrefix(enc.DataURI, "data:image/jpeg;base64,"))

	img, err := DecodeImage(enc.DataURI)
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 25, img.Bounds().Dy())
}

func TestEncodeImage_SmallImageNotUpscaled(t *testing.T) {
	enc, err := New(0).EncodeImage(bytes.NewReader(pngBytes(t, 20, 10, false)), 800, 0.7)
	require.NoError(t, err)
	assert.Equal(t, 20, enc.Width)
	assert.Equal(t, 10, enc.Height)
}

func TestEncodeImage_RetriesSmaller(t *testing.T) {
	data := pngBytes(t, 256, 256, true)

	first, err := New(0).EncodeImage(bytes.NewReader(data), 256, 0.9)
	require.NoError(t, err)

	// a ceiling just under the first attempt forces the retry
	retried, err := New(len(first.DataURI)-1).EncodeImage(bytes.NewReader(data), 256, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 128, retried.Width)
	assert.Less(t, len(retried.DataURI), len(first.DataURI))
}

func TestEncodeImage_TooLarge(t *testing.T) {
	_, err := New(64).EncodeImage(bytes.NewReader(pngBytes(t, 64, 64, true)), 64, 0.9)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestEncodeImage_NotAnImage(t *testing.T) {
	_, err := New(0).EncodeImage(strings.NewReader("definitely not pixels"), 100, 0.7)
	assert.ErrorIs(t, err, ErrImageDecode)
}

func TestDecodeImage_Invalid(t *testing.T) {
	_, err := DecodeImage("data:image/png;base64,AAAA")
	assert.ErrorIs(t, err, ErrImageDecode)

	_, err = DecodeImage("nonsense")
	assert.ErrorIs(t, err, ErrImageDecode)
}

func TestDisplaySize(t *testing.T) {
	w, h := DisplaySize(800, 400)
	assert.Equal(t, 400.0, w)
	assert.Equal(t, 200.0, h)

	w, h = DisplaySize(100, 50)
	assert.Equal(t, 100.0, w)
	assert.Equal(t, 50.0, h)

	w, h = DisplaySize(0, 10)
	assert.Zero(t, w)
	assert.Zero(t, h)
}
