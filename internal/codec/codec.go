// Package codec keeps persisted whiteboard payloads under the store's
// per-field size ceiling, degrading precision in the smallest steps that
// make the data fit.
package codec

import "errors"

// DefaultCeiling is the largest string a single persisted field may hold.
const DefaultCeiling = 1048487

// ErrPayloadTooLarge is returned when data cannot be made to fit the
// ceiling even after maximum compression.
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrImageDecode is returned when image bytes cannot be decoded.
var ErrImageDecode = errors.New("image decode failed")

// Codec encodes point paths and images for persistence.
type Codec struct {
	ceiling int
}

// New returns a codec bounded by ceiling bytes per field. A non-positive
// ceiling selects DefaultCeiling.
func New(ceiling int) *Codec {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Codec{ceiling: ceiling}
}

func (c *Codec) Ceiling() int { return c.ceiling }

func (c *Codec) fits(s string) bool { return len(s) <= c.ceiling }
