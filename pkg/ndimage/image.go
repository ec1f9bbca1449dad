package ndimage

import (
	"fmt"

	"ndcore/pkg/region"
)

// Image is a Descriptor together with the pixel buffer of its resident region
type Image[T Pixel] struct {
	*Descriptor
	buffer *Buffer[T]
}

// New creates an image of the given dimension with no regions and no storage
func New[T Pixel](dim int) *Image[T] {
	return &Image[T]{Descriptor: NewDescriptor(dim), buffer: NewBuffer[T](0)}
}

// NewWithRegion creates an image whose full extent, resident and requested
// regions are all r, and allocates its buffer.
func NewWithRegion[T Pixel](r region.Region) *Image[T] {
	img := New[T](r.Dimension())
	img.SetRegions(r)
	img.Allocate()
	return img
}

// Allocate (re)creates a zeroed buffer sized for the resident region
func (img *Image[T]) Allocate() {
	img.buffer = NewBuffer[T](img.Resident().NumberOfPixels() * int64(img.NumberOfComponentsPerPixel()))
}

// Buffer returns the shared pixel buffer handle
func (img *Image[T]) Buffer() *Buffer[T] {
	return img.buffer
}

// SetBuffer replaces the pixel buffer. The caller is responsible for it
// matching the resident region.
func (img *Image[T]) SetBuffer(b *Buffer[T]) {
	img.buffer = b
}

// Pixel returns the value at ix. ix must be resident.
func (img *Image[T]) Pixel(ix region.Index) T {
	return img.buffer.At(img.ComputeOffset(ix))
}

// SetPixel stores v at ix. ix must be resident.
func (img *Image[T]) SetPixel(ix region.Index, v T) {
	img.buffer.Set(img.ComputeOffset(ix), v)
}

// FillBuffer sets every resident pixel to v
func (img *Image[T]) FillBuffer(v T) {
	img.buffer.Fill(v)
}

// Graft makes img describe the same data as src: meta-data and regions are
// copied, and both images share src's buffer afterwards.
func (img *Image[T]) Graft(src *Image[T]) {
	img.graftInformation(src.Descriptor)
	img.buffer = src.buffer
}

// SharesBuffer reports whether both images use the same buffer handle
func (img *Image[T]) SharesBuffer(other *Image[T]) bool {
	return img.buffer == other.buffer
}

// DeepCopy returns an image with copied meta-data, regions and pixels
func (img *Image[T]) DeepCopy() *Image[T] {
	out := New[T](img.Dimension())
	out.graftInformation(img.Descriptor)
	out.buffer = img.buffer.Clone()
	return out
}

// SameShape reports whether two descriptors have equal full extents
func SameShape(a, b *Descriptor) bool {
	return a.Dimension() == b.Dimension() && a.fullExtent.Equal(b.fullExtent)
}

// FromSlice builds a fully resident image over r from row-major data
// (axis 0 fastest). The slice is used without copying.
func FromSlice[T Pixel](r region.Region, data []T) (*Image[T], error) {
	if int64(len(data)) != r.NumberOfPixels() {
		return nil, fmt.Errorf("data has %d pixels, region %v needs %d", len(data), r, r.NumberOfPixels())
	}
	img := New[T](r.Dimension())
	img.SetRegions(r)
	img.buffer = WrapBuffer(data)
	return img, nil
}
