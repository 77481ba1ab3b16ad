package codec

import (
	"encoding/json"
	"math"

	"whiteboard/internal/object"
)

// EncodePoints serializes a point path. Each rung of the ladder is tried in
// order and the first that fits wins:
//
//  1. full precision
//  2. coordinates rounded to one decimal place
//  3. coordinates rounded to integers
//  4. integer coordinates, keeping every second point (repeated, always
//     keeping the last point) until the path fits
//
// Re-encoding the decoded output of EncodePoints returns the same string.
func (c *Codec) EncodePoints(points []object.Point) (string, error) {
	s := marshalPoints(points)
	if c.fits(s) {
		return s, nil
	}

	s = marshalPoints(roundPoints(points, 1))
	if c.fits(s) {
		return s, nil
	}

	reduced := roundPoints(points, 0)
	s = marshalPoints(reduced)
	if c.fits(s) {
		return s, nil
	}

	for len(reduced) > 2 {
		reduced = subsample(reduced)
		s = marshalPoints(reduced)
		if c.fits(s) {
			return s, nil
		}
	}
	return "", ErrPayloadTooLarge
}

// DecodePoints parses an encoded path. Malformed input yields an error and
// no points; callers treat that as an empty path.
func DecodePoints(s string) ([]object.Point, error) {
	if s == "" {
		return nil, nil
	}
	var points []object.Point
	if err := json.Unmarshal([]byte(s), &points); err != nil {
		return nil, err
	}
	return points, nil
}

func marshalPoints(points []object.Point) string {
	if points == nil {
		points = []object.Point{}
	}
	// []Point of float64 fields cannot fail to marshal except for NaN/Inf
	data, err := json.Marshal(sanitize(points))
	if err != nil {
		return "[]"
	}
	return string(data)
}

// sanitize drops non-finite coordinates, which JSON cannot carry.
func sanitize(points []object.Point) []object.Point {
	for _, p := range points {
		if !finite(p.X) || !finite(p.Y) {
			out := make([]object.Point, 0, len(points))
			for _, q := range points {
				if finite(q.X) && finite(q.Y) {
					out = append(out, q)
				}
			}
			return out
		}
	}
	return points
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func roundPoints(points []object.Point, decimals int) []object.Point {
	scale := math.Pow(10, float64(decimals))
	out := make([]object.Point, len(points))
	for i, p := range points {
		out[i] = object.Point{X: round(p.X, scale), Y: round(p.Y, scale)}
	}
	return out
}

func round(v, scale float64) float64 {
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0 // no negative zero in the output
	}
	return r
}

// subsample keeps every second point plus the final point.
func subsample(points []object.Point) []object.Point {
	out := make([]object.Point, 0, len(points)/2+1)
	for i := 0; i < len(points); i += 2 {
		out = append(out, points[i])
	}
	if (len(points)-1)%2 != 0 {
		out = append(out, points[len(points)-1])
	}
	return out
}
