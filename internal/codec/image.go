package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/vincent-petithory/dataurl"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image encoding defaults for pasted and uploaded images.
const (
	DefaultMaxWidth = 800
	DefaultQuality  = 0.7

	// the single retry uses half the width and this much less quality
	retryQualityDrop = 0.2
	minQuality       = 0.1

	// MaxDisplayWidth caps the on-canvas size of a newly placed image.
	MaxDisplayWidth = 400
)

// EncodedImage is a compressed image ready for persistence.
type EncodedImage struct {
	DataURI string
	Width   int
	Height  int
}

// EncodeImage decodes r, scales it to at most maxWidth pixels wide
// preserving aspect ratio, and re-encodes it as a JPEG data URI at quality
// (0..1]. If the result exceeds the ceiling it retries once with half the
// width and lower quality, then gives up with ErrPayloadTooLarge.
func (c *Codec) EncodeImage(r io.Reader, maxWidth int, quality float64) (EncodedImage, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if quality <= 0 || quality > 1 {
		quality = DefaultQuality
	}

	enc, err := encodeJPEG(src, maxWidth, quality)
	if err != nil {
		return EncodedImage{}, err
	}
	if c.fits(enc.DataURI) {
		return enc, nil
	}

	enc, err = encodeJPEG(src, maxWidth/2, math.Max(minQuality, quality-retryQualityDrop))
	if err != nil {
		return EncodedImage{}, err
	}
	if c.fits(enc.DataURI) {
		return enc, nil
	}
	return EncodedImage{}, ErrPayloadTooLarge
}

func encodeJPEG(src image.Image, maxWidth int, quality float64) (EncodedImage, error) {
	w, h := scaledSize(src.Bounds().Dx(), src.Bounds().Dy(), maxWidth)

	// JPEG has no alpha channel: composite onto white
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	q := int(math.Round(quality * 100))
	if q < 1 {
		q = 1
	}
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: q}); err != nil {
		return EncodedImage{}, fmt.Errorf("encode jpeg: %w", err)
	}

	return EncodedImage{
		DataURI: dataurl.New(buf.Bytes(), "image/jpeg").String(),
		Width:   w,
		Height:  h,
	}, nil
}

func scaledSize(w, h, maxWidth int) (int, int) {
	if maxWidth < 1 {
		maxWidth = 1
	}
	if w <= maxWidth {
		return max(w, 1), max(h, 1)
	}
	scaled := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	return maxWidth, max(scaled, 1)
}

// DecodeImage turns a data URI produced by EncodeImage (or any base64 image
// data URI) back into an image.
func DecodeImage(uri string) (image.Image, error) {
	du, err := dataurl.DecodeString(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	img, _, err := image.Decode(bytes.NewReader(du.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return img, nil
}

// DisplaySize returns the initial on-canvas size for an image of the given
// pixel size, capped at MaxDisplayWidth wide.
func DisplaySize(w, h int) (float64, float64) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w <= MaxDisplayWidth {
		return float64(w), float64(h)
	}
	return MaxDisplayWidth, float64(h) * MaxDisplayWidth / float64(w)
}
