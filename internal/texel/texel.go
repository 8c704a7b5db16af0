// Package texel maps linear point and link indices onto square 2-D buffers.
//
// Every buffer that stores one entry per point (or per link) is a square of
// side ceil(sqrt(count)). Entry i lives at column i%side, row i/side.
package texel

import "math"

// Side returns the side of the smallest square buffer that holds count entries.
// It never returns less than 1 so that empty sets still get a valid buffer.
func Side(count int) int {
	if count <= 1 {
		return 1
	}
	s := int(math.Ceil(math.Sqrt(float64(count))))
	// guard against float rounding on perfect squares
	for s*s < count {
		s++
	}
	for s > 1 && (s-1)*(s-1) >= count {
		s--
	}
	return s
}

// ToCoord returns the buffer coordinate of linear index i.
func ToCoord(i, side int) (x, y int) {
	return i % side, i / side
}

// ToIndex returns the linear index stored at buffer coordinate (x, y).
func ToIndex(x, y, side int) int {
	return y*side + x
}
