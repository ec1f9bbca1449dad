package pipeline

import (
	"context"
	"fmt"

	"ndcore/pkg/ndimage"
	"ndcore/pkg/region"
)

// Source exposes an in-memory image as a pipeline leaf
type Source[T ndimage.Pixel] struct {
	name  string
	image *ndimage.Image[T]
}

// NewSource wraps img. The image is expected to hold its full extent.
func NewSource[T ndimage.Pixel](name string, img *ndimage.Image[T]) *Source[T] {
	return &Source[T]{name: name, image: img}
}

func (s *Source[T]) Name() string                     { return s.name }
func (s *Source[T]) Inputs() []*ndimage.Descriptor    { return nil }
func (s *Source[T]) Output() *ndimage.Descriptor      { return s.image.Descriptor }
func (s *Source[T]) Support() Support                 { return LocalSupport }
func (s *Source[T]) GenerateOutputInformation() error { return nil }

// Image returns the wrapped image
func (s *Source[T]) Image() *ndimage.Image[T] {
	return s.image
}

// GenerateData fails: a source cannot produce pixels it does not hold
func (s *Source[T]) GenerateData(ctx context.Context) error {
	return fmt.Errorf("source holds %v, %v was requested", s.image.Resident(), s.image.Requested())
}

// RegionCopy is a local-support node that copies the requested region of its
// input into a buffer of its own. It is the smallest useful streaming node:
// asking it for a sub-region only pulls that sub-region through the pipeline.
type RegionCopy[T ndimage.Pixel] struct {
	name   string
	input  *ndimage.Image[T]
	output *ndimage.Image[T]

	// Executions counts GenerateData calls
	Executions int
}

// NewRegionCopy creates a copy node reading from input
func NewRegionCopy[T ndimage.Pixel](name string, input *ndimage.Image[T]) *RegionCopy[T] {
	return &RegionCopy[T]{
		name:   name,
		input:  input,
		output: ndimage.New[T](input.Dimension()),
	}
}

func (c *RegionCopy[T]) Name() string                  { return c.name }
func (c *RegionCopy[T]) Inputs() []*ndimage.Descriptor { return []*ndimage.Descriptor{c.input.Descriptor} }
func (c *RegionCopy[T]) Output() *ndimage.Descriptor   { return c.output.Descriptor }
func (c *RegionCopy[T]) Support() Support              { return LocalSupport }

// Image returns the node's output image
func (c *RegionCopy[T]) Image() *ndimage.Image[T] {
	return c.output
}

// GenerateOutputInformation forwards the input's meta-data
func (c *RegionCopy[T]) GenerateOutputInformation() error {
	c.output.CopyInformation(c.input.Descriptor)
	return nil
}

// GenerateData allocates the requested region and copies it from the input
func (c *RegionCopy[T]) GenerateData(ctx context.Context) error {
	c.Executions++
	req := c.output.Requested()
	c.output.SetResident(req)
	c.output.Allocate()

	n := req.NumberOfPixels()
	if n == 0 {
		return nil
	}
	ix := req.Index.Clone()
	upper := req.Upper()
	for off := int64(0); off < n; off++ {
		c.output.Buffer().Set(off, c.input.Pixel(ix))
		advance(ix, req.Index, upper)
	}
	return nil
}

// advance moves ix to the next index of the box [start, upper) with axis 0 fastest
func advance(ix, start region.Index, upper region.Index) {
	for i := range ix {
		ix[i]++
		if ix[i] < upper[i] {
			return
		}
		ix[i] = start[i]
	}
}
