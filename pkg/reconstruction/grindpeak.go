package reconstruction

import (
	"context"
	"fmt"

	"ndcore/pkg/ndimage"
	"ndcore/pkg/pipeline"
	"ndcore/pkg/region"
)

// GrindPeak removes local maxima that are not connected to the boundary of
// the image. Values adjacent to a peak are extrapolated through it, so
// subtracting the output from the input yields a map of the peaks.
//
// The filter reconstructs by dilation a marker that equals the input on the
// boundary of the full extent and the input's global minimum everywhere else,
// using the input itself as mask. It needs its whole input and always
// produces its whole output.
type GrindPeak[T ndimage.Pixel] struct {
	*filter[T]
}

// NewGrindPeak creates a peak removal filter reading from input
func NewGrindPeak[T ndimage.Pixel](input *ndimage.Image[T], opts Options) *GrindPeak[T] {
	return &GrindPeak[T]{newFilter("GrindPeak", Dilation, input, opts)}
}

// FillHole removes local minima that are not connected to the boundary of
// the image. It is the dual of GrindPeak: the marker takes the input's global
// maximum inside the image and the reconstruction runs by erosion.
type FillHole[T ndimage.Pixel] struct {
	*filter[T]
}

// NewFillHole creates a hole filling filter reading from input
func NewFillHole[T ndimage.Pixel](input *ndimage.Image[T], opts Options) *FillHole[T] {
	return &FillHole[T]{newFilter("FillHole", Erosion, input, opts)}
}

// filter is the pipeline node shared by GrindPeak and FillHole
type filter[T ndimage.Pixel] struct {
	name   string
	mode   Mode
	opts   Options
	input  *ndimage.Image[T]
	output *ndimage.Image[T]

	iterations int
	changes    []int64
}

func newFilter[T ndimage.Pixel](name string, mode Mode, input *ndimage.Image[T], opts Options) *filter[T] {
	return &filter[T]{
		name:   name,
		mode:   mode,
		opts:   opts,
		input:  input,
		output: ndimage.New[T](input.Dimension()),
	}
}

func (f *filter[T]) Name() string                  { return f.name }
func (f *filter[T]) Inputs() []*ndimage.Descriptor { return []*ndimage.Descriptor{f.input.Descriptor} }
func (f *filter[T]) Output() *ndimage.Descriptor   { return f.output.Descriptor }
func (f *filter[T]) Support() pipeline.Support     { return pipeline.WholeExtentSupport }
func (f *filter[T]) NumberOfIterationsUsed() int   { return f.iterations }
func (f *filter[T]) Image() *ndimage.Image[T]      { return f.output }

// Changes returns the number of pixels modified by each pass of the last run
func (f *filter[T]) Changes() []int64 {
	return append([]int64(nil), f.changes...)
}

// GenerateOutputInformation forwards the input's meta-data to the output
func (f *filter[T]) GenerateOutputInformation() error {
	f.output.CopyInformation(f.input.Descriptor)
	return nil
}

// GenerateData builds the marker, runs the engine and takes over its buffer
func (f *filter[T]) GenerateData(ctx context.Context) error {
	var marker *ndimage.Image[T]
	var err error
	if f.mode == Dilation {
		marker, err = PeakMarker(f.input)
	} else {
		marker, err = HoleMarker(f.input)
	}
	if err != nil {
		return err
	}

	engine := NewEngine[T](f.mode, f.opts)
	result, err := engine.Run(ctx, marker, f.input)
	f.iterations = engine.NumberOfIterationsUsed()
	f.changes = engine.Changes()
	if err != nil {
		return err
	}

	full := f.output.FullExtent()
	f.output.SetResident(full)
	f.output.SetBuffer(result.Buffer())
	return nil
}

// PeakMarker builds the marker used for peak removal: the input on the
// boundary of its full extent, the input's global minimum inside.
func PeakMarker[T ndimage.Pixel](input *ndimage.Image[T]) (*ndimage.Image[T], error) {
	return boundaryMarker(input, func(v, acc T) bool { return v < acc })
}

// HoleMarker builds the marker used for hole filling: the input on the
// boundary of its full extent, the input's global maximum inside.
func HoleMarker[T ndimage.Pixel](input *ndimage.Image[T]) (*ndimage.Image[T], error) {
	return boundaryMarker(input, func(v, acc T) bool { return v > acc })
}

func boundaryMarker[T ndimage.Pixel](input *ndimage.Image[T], better func(v, acc T) bool) (*ndimage.Image[T], error) {
	if err := checkResident("input", input); err != nil {
		return nil, err
	}
	full := input.FullExtent()
	data := input.Buffer().Data()
	if len(data) == 0 {
		return input.DeepCopy(), nil
	}

	// NaN pixels never take part in the global extremum
	fill := data[0]
	for _, v := range data[1:] {
		if isNaN(fill) || (!isNaN(v) && better(v, fill)) {
			fill = v
		}
	}

	marker := input.DeepCopy()
	out := marker.Buffer().Data()
	ix := full.Index.Clone()
	upper := full.Upper()
	for off := range out {
		if !onBoundary(ix, full.Index, upper) {
			out[off] = fill
		}
		for a := range ix {
			ix[a]++
			if ix[a] < upper[a] {
				break
			}
			ix[a] = full.Index[a]
		}
	}
	return marker, nil
}

// onBoundary reports whether ix touches the first or last index of any axis
func onBoundary(ix, lower, upper region.Index) bool {
	for a := range ix {
		if ix[a] == lower[a] || ix[a] == upper[a]-1 {
			return true
		}
	}
	return false
}

// RemovePeaks runs GrindPeak on img through a pipeline and returns the
// result with the number of iterations used.
func RemovePeaks[T ndimage.Pixel](ctx context.Context, img *ndimage.Image[T], opts Options) (*ndimage.Image[T], int, error) {
	return runFilter(ctx, img, NewGrindPeak(img, opts).filter)
}

// FillHoles runs FillHole on img through a pipeline and returns the
// result with the number of iterations used.
func FillHoles[T ndimage.Pixel](ctx context.Context, img *ndimage.Image[T], opts Options) (*ndimage.Image[T], int, error) {
	return runFilter(ctx, img, NewFillHole(img, opts).filter)
}

func runFilter[T ndimage.Pixel](ctx context.Context, img *ndimage.Image[T], f *filter[T]) (*ndimage.Image[T], int, error) {
	p := pipeline.New()
	p.Verbose = f.opts.Verbose
	p.Add(pipeline.NewSource("input", img), f)
	if err := p.Update(ctx, f); err != nil {
		return nil, f.iterations, fmt.Errorf("%s failed: %w", f.name, err)
	}
	return f.output, f.iterations, nil
}
