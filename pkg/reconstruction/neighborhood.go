package reconstruction

import (
	"ndcore/pkg/region"
)

// neighborhood is the structuring element of the elementary dilation,
// excluding the centre pixel
type neighborhood struct {
	// deltas[k] is the index displacement of neighbour k
	deltas [][]int64
	// axes[k] lists the axes along which deltas[k] is non-zero
	axes [][]int
	// linear[k] is the buffer offset displacement of neighbour k
	linear []int64

	size region.Size
}

// newNeighborhood builds the face-connected (2N) or fully connected (3^N-1)
// neighbourhood for an image of the given size and stride table
func newNeighborhood(size region.Size, strides []int64, fullyConnected bool) *neighborhood {
	dim := len(size)
	h := &neighborhood{size: size}

	add := func(delta []int64) {
		var axes []int
		var lin int64
		for a, d := range delta {
			if d != 0 {
				axes = append(axes, a)
				lin += d * strides[a]
			}
		}
		if len(axes) == 0 {
			return
		}
		h.deltas = append(h.deltas, delta)
		h.axes = append(h.axes, axes)
		h.linear = append(h.linear, lin)
	}

	if !fullyConnected {
		for a := 0; a < dim; a++ {
			for _, d := range []int64{-1, 1} {
				delta := make([]int64, dim)
				delta[a] = d
				add(delta)
			}
		}
		return h
	}

	// Enumerate {-1,0,1}^dim as base-3 numbers
	total := 1
	for a := 0; a < dim; a++ {
		total *= 3
	}
	for code := 0; code < total; code++ {
		delta := make([]int64, dim)
		c := code
		for a := 0; a < dim; a++ {
			delta[a] = int64(c%3) - 1
			c /= 3
		}
		add(delta)
	}
	return h
}

// inside reports whether neighbour k of the pixel at pos lies in [0, size)
func (h *neighborhood) inside(k int, pos []int64, size region.Size) bool {
	for _, a := range h.axes[k] {
		p := pos[a] + h.deltas[k][a]
		if p < 0 || p >= size[a] {
			return false
		}
	}
	return true
}

// position converts a buffer offset to a zero-based position
func (h *neighborhood) position(offset int64) []int64 {
	pos := make([]int64, len(h.size))
	for a := range h.size {
		if h.size[a] == 0 {
			continue
		}
		pos[a] = offset % h.size[a]
		offset /= h.size[a]
	}
	return pos
}

// Len returns the number of neighbours
func (h *neighborhood) Len() int {
	return len(h.linear)
}
