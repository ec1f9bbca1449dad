// Package region implements axis-aligned boxes in N-dimensional index space.
//
// A Region is described by a starting Index and a Size. The fastest varying
// axis is axis 0, matching the layout used by the offset table of an image
// descriptor: Index[0] is the column, Index[1] the row, Index[2] the slice.
//
// Regions carry set semantics: every region with a zero extent along some
// axis is the same empty set, regardless of where its Index points.
package region

import (
	"fmt"
	"strings"
)

// Index is a discrete coordinate, one signed integer per dimension
type Index []int64

// Size is the extent of a region along each dimension
type Size []int64

// NewIndex returns a zero index of the given dimension
func NewIndex(dim int) Index {
	return make(Index, dim)
}

// NewSize returns a size of the given dimension with every extent set to n
func NewSize(dim int, n int64) Size {
	s := make(Size, dim)
	for i := range s {
		s[i] = n
	}
	return s
}

// Clone returns a copy of the index
func (ix Index) Clone() Index {
	out := make(Index, len(ix))
	copy(out, ix)
	return out
}

// Equal reports whether both indices have the same components
func (ix Index) Equal(other Index) bool {
	if len(ix) != len(other) {
		return false
	}
	for i := range ix {
		if ix[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the size
func (s Size) Clone() Size {
	out := make(Size, len(s))
	copy(out, s)
	return out
}

// Region is an axis-aligned box in index space
type Region struct {
	// Index is the first index covered by the region
	Index Index

	// Size is the number of indices covered along each axis
	Size Size
}

// New creates a region from an index and a size of equal dimension.
// Negative extents are clamped to zero.
func New(index Index, size Size) Region {
	mustMatch(len(index), len(size))
	r := Region{Index: index.Clone(), Size: size.Clone()}
	for i := range r.Size {
		if r.Size[i] < 0 {
			r.Size[i] = 0
		}
	}
	return r
}

// FromSize creates a region starting at the zero index
func FromSize(size ...int64) Region {
	return New(NewIndex(len(size)), Size(size))
}

// Empty returns the canonical empty region of the given dimension
func Empty(dim int) Region {
	return Region{Index: NewIndex(dim), Size: NewSize(dim, 0)}
}

// Dimension returns the number of axes of the region
func (r Region) Dimension() int {
	return len(r.Index)
}

// Clone returns a deep copy of the region
func (r Region) Clone() Region {
	return Region{Index: r.Index.Clone(), Size: r.Size.Clone()}
}

// Upper returns the exclusive upper bound of the region along each axis
func (r Region) Upper() Index {
	up := make(Index, len(r.Index))
	for i := range r.Index {
		up[i] = r.Index[i] + r.Size[i]
	}
	return up
}

// NumberOfPixels returns the number of indices covered by the region
func (r Region) NumberOfPixels() int64 {
	if len(r.Size) == 0 {
		return 0
	}
	n := int64(1)
	for _, s := range r.Size {
		n *= s
	}
	return n
}

// IsEmpty reports whether the region covers no index at all
func (r Region) IsEmpty() bool {
	if len(r.Size) == 0 {
		return true
	}
	for _, s := range r.Size {
		if s <= 0 {
			return true
		}
	}
	return false
}

// Equal compares two regions as index sets. Any two empty regions are equal.
func (r Region) Equal(other Region) bool {
	if r.Dimension() != other.Dimension() {
		return false
	}
	re, oe := r.IsEmpty(), other.IsEmpty()
	if re || oe {
		return re && oe
	}
	return r.Index.Equal(other.Index) && Index(r.Size).Equal(Index(other.Size))
}

// IsInside reports whether the index lies within the region
func (r Region) IsInside(ix Index) bool {
	mustMatch(r.Dimension(), len(ix))
	for i := range ix {
		if ix[i] < r.Index[i] || ix[i] >= r.Index[i]+r.Size[i] {
			return false
		}
	}
	return true
}

// IsInsideContinuous reports whether every component of a continuous index
// lies in [Index, Index+Size) along its axis
func (r Region) IsInsideContinuous(ci []float64) bool {
	mustMatch(r.Dimension(), len(ci))
	for i, c := range ci {
		if !(c >= float64(r.Index[i]) && c < float64(r.Index[i]+r.Size[i])) {
			return false
		}
	}
	return true
}

// Intersect returns the overlap of two regions. When the regions do not
// overlap along some axis the result has a zero extent along that axis.
func (r Region) Intersect(other Region) Region {
	mustMatch(r.Dimension(), other.Dimension())
	out := Region{Index: make(Index, r.Dimension()), Size: make(Size, r.Dimension())}
	for i := range r.Index {
		start := max(r.Index[i], other.Index[i])
		stop := min(r.Index[i]+r.Size[i], other.Index[i]+other.Size[i])
		out.Index[i] = start
		if stop > start {
			out.Size[i] = stop - start
		}
	}
	return out
}

// Intersect is the free-function form of Region.Intersect
func Intersect(a, b Region) Region {
	return a.Intersect(b)
}

// Contains reports whether inner is empty or lies entirely inside r
func (r Region) Contains(inner Region) bool {
	mustMatch(r.Dimension(), inner.Dimension())
	if inner.IsEmpty() {
		return true
	}
	for i := range r.Index {
		if inner.Index[i] < r.Index[i] {
			return false
		}
		if inner.Index[i]+inner.Size[i] > r.Index[i]+r.Size[i] {
			return false
		}
	}
	return true
}

// Contains is the free-function form of Region.Contains
func Contains(outer, inner Region) bool {
	return outer.Contains(inner)
}

// IsOutside reports whether at least one index of requested falls outside
// resident. A node uses this to decide whether it must execute again.
func IsOutside(requested, resident Region) bool {
	return !requested.Intersect(resident).Equal(requested)
}

// Verify reports whether requested can be produced from a dataset whose
// bounds are fullExtent.
func Verify(requested, fullExtent Region) bool {
	return fullExtent.Contains(requested)
}

// PadByRadius grows the region by radius[i] indices on both sides of axis i
func (r Region) PadByRadius(radius ...int64) Region {
	mustMatch(r.Dimension(), len(radius))
	out := r.Clone()
	for i, rad := range radius {
		out.Index[i] -= rad
		out.Size[i] += 2 * rad
		if out.Size[i] < 0 {
			out.Size[i] = 0
		}
	}
	return out
}

// Crop shrinks r to its overlap with other. It reports false, leaving r
// untouched, when the two regions do not overlap.
func (r *Region) Crop(other Region) bool {
	cropped := r.Intersect(other)
	if cropped.IsEmpty() {
		return false
	}
	*r = cropped
	return true
}

// String formats the region as "[i0 i1 ...]+[s0 s1 ...]"
func (r Region) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprint([]int64(r.Index)))
	b.WriteString("+")
	b.WriteString(fmt.Sprint([]int64(r.Size)))
	return b.String()
}

func mustMatch(a, b int) {
	if a != b {
		panic(fmt.Sprintf("region: dimension mismatch (%d vs %d)", a, b))
	}
}
