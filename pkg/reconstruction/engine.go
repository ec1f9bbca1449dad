package reconstruction

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"ndcore/pkg/ndimage"
	"ndcore/pkg/region"
)

var (
	// ErrShapeMismatch is returned when marker and mask full extents differ
	ErrShapeMismatch = errors.New("marker and mask extents differ")

	// ErrNotResident is returned when an image's buffer does not cover its full extent
	ErrNotResident = errors.New("image is not fully resident")

	// ErrNotConverged is returned when the iteration sanity bound is exceeded.
	// Geodesic reconstruction always converges, so this signals an internal
	// inconsistency such as a marker that is not below its mask.
	ErrNotConverged = errors.New("reconstruction did not converge")
)

// Mode selects the elementary operation iterated by the engine
type Mode int

const (
	// Dilation iterates next = min(dilate(current), mask)
	Dilation Mode = iota

	// Erosion iterates next = max(erode(current), mask)
	Erosion
)

// String returns the name of the mode
func (m Mode) String() string {
	if m == Erosion {
		return "erosion"
	}
	return "dilation"
}

// ProgressCallback is a function that reports progress during reconstruction
type ProgressCallback func(completed, total int, message string)

// Options controls how the reconstruction is run
type Options struct {
	// FullyConnected uses all 3^N-1 neighbours instead of the 2N face neighbours
	FullyConnected bool

	// MaxIterations bounds the number of passes. Zero means the number of
	// pixels plus one, which no valid reconstruction can exceed.
	MaxIterations int

	// NumWorkers splits each pass into this many disjoint offset ranges.
	// Values below 2 run the pass on the calling goroutine.
	NumWorkers int

	// Verbose prints one line per pass when no Progress callback is set
	Verbose bool

	// Progress is called after every pass
	Progress ProgressCallback
}

// Engine reconstructs a marker image under a mask by iterating a geodesic
// dilation (or erosion) until nothing changes.
//
// The engine counts every pass it runs, including the final pass that found
// no change: a marker already equal to its reconstruction takes one pass.
type Engine[T ndimage.Pixel] struct {
	mode Mode
	opts Options

	iterations int
	changes    []int64
	observer   func(iteration int, values []T)
}

// NewEngine creates an engine for the given mode
func NewEngine[T ndimage.Pixel](mode Mode, opts Options) *Engine[T] {
	return &Engine[T]{mode: mode, opts: opts}
}

// Observe registers fn to be called with the pixel values after every pass.
// The slice is reused by the engine and must not be retained.
func (e *Engine[T]) Observe(fn func(iteration int, values []T)) {
	e.observer = fn
}

// NumberOfIterationsUsed returns the number of passes of the last run
func (e *Engine[T]) NumberOfIterationsUsed() int {
	return e.iterations
}

// Changes returns the number of pixels modified by each pass of the last run
func (e *Engine[T]) Changes() []int64 {
	out := make([]int64, len(e.changes))
	copy(out, e.changes)
	return out
}

// Run reconstructs marker under mask and returns the result as a new image
// carrying the mask's meta-data.
//
// Parameters:
//   - ctx: cancels the run between passes
//   - marker: seed image, expected to be pointwise <= mask for Dilation
//     (>= mask for Erosion). This is not checked.
//   - mask: bounding image with the same full extent as marker
//
// Returns:
//   - the reconstructed image, or an error if the shapes differ, an input is
//     not fully resident, the context ends or the sanity bound is exceeded
func (e *Engine[T]) Run(ctx context.Context, marker, mask *ndimage.Image[T]) (*ndimage.Image[T], error) {
	e.iterations = 0
	e.changes = e.changes[:0]

	if !ndimage.SameShape(marker.Descriptor, mask.Descriptor) {
		return nil, fmt.Errorf("%w: marker %v, mask %v", ErrShapeMismatch, marker.FullExtent(), mask.FullExtent())
	}
	if err := checkResident("marker", marker); err != nil {
		return nil, err
	}
	if err := checkResident("mask", mask); err != nil {
		return nil, err
	}

	extent := mask.FullExtent()
	n := extent.NumberOfPixels()
	bound := e.opts.MaxIterations
	if bound <= 0 {
		bound = int(n) + 1
	}

	current := marker.Buffer().Clone().Data()
	next := make([]T, n)
	limits := mask.Buffer().Data()
	hood := newNeighborhood(extent.Size, mask.OffsetTable(), e.opts.FullyConnected)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed, err := e.pass(ctx, hood, extent.Size, current, next, limits)
		if err != nil {
			return nil, err
		}
		current, next = next, current
		e.iterations++
		e.changes = append(e.changes, changed)
		e.report(bound, changed)
		if e.observer != nil {
			e.observer(e.iterations, current)
		}

		if changed == 0 {
			break
		}
		if e.iterations >= bound {
			return nil, fmt.Errorf("%w after %d iterations", ErrNotConverged, e.iterations)
		}
	}

	out := ndimage.New[T](mask.Dimension())
	out.CopyInformation(mask.Descriptor)
	out.SetResident(extent)
	out.SetRequested(extent)
	out.SetBuffer(ndimage.WrapBuffer(current))
	return out, nil
}

// pass computes one geodesic step from current into next and returns the
// number of pixels that changed. Workers write disjoint ranges of next.
func (e *Engine[T]) pass(ctx context.Context, hood *neighborhood, size region.Size, current, next, limits []T) (int64, error) {
	n := int64(len(current))
	workers := e.opts.NumWorkers
	if workers < 2 || n < int64(workers) {
		return e.step(hood, size, current, next, limits, 0, n), nil
	}

	counts := make([]int64, workers)
	chunk := (n + int64(workers) - 1) / int64(workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		w := w
		start := int64(w) * chunk
		end := min(start+chunk, n)
		if start >= end {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			counts[w] = e.step(hood, size, current, next, limits, start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, c := range counts {
		total += c
	}
	return total, nil
}

// step processes offsets [start, end)
func (e *Engine[T]) step(hood *neighborhood, size region.Size, current, next, limits []T, start, end int64) int64 {
	pos := hood.position(start)
	var changed int64

	for off := start; off < end; off++ {
		v := current[off]
		for k := range hood.linear {
			if !hood.inside(k, pos, size) {
				continue
			}
			nv := current[off+hood.linear[k]]
			if e.mode == Dilation {
				if nv > v {
					v = nv
				}
			} else if nv < v {
				v = nv
			}
		}

		if e.mode == Dilation {
			if v > limits[off] {
				v = limits[off]
			}
		} else if v < limits[off] {
			v = limits[off]
		}

		next[off] = v
		if v != current[off] && !(isNaN(v) && isNaN(current[off])) {
			changed++
		}

		// Advance the position with axis 0 fastest
		for a := range pos {
			pos[a]++
			if pos[a] < size[a] {
				break
			}
			pos[a] = 0
		}
	}
	return changed
}

func (e *Engine[T]) report(bound int, changed int64) {
	msg := fmt.Sprintf("%s pass %d: %d pixels changed", e.mode, e.iterations, changed)
	if e.opts.Progress != nil {
		e.opts.Progress(e.iterations, bound, msg)
	} else if e.opts.Verbose {
		fmt.Println(msg)
	}
}

// isNaN reports whether v is a floating-point NaN; it is false for integers
func isNaN[T ndimage.Pixel](v T) bool {
	return v != v
}

func checkResident[T ndimage.Pixel](name string, img *ndimage.Image[T]) error {
	full := img.FullExtent()
	if !img.Resident().Equal(full) || img.Buffer().Len() != full.NumberOfPixels() {
		return fmt.Errorf("%w: %s resident %v, full extent %v", ErrNotResident, name, img.Resident(), full)
	}
	return nil
}

// GeodesicDilate reconstructs marker under mask by iterated dilation
func GeodesicDilate[T ndimage.Pixel](ctx context.Context, marker, mask *ndimage.Image[T], opts Options) (*ndimage.Image[T], int, error) {
	e := NewEngine[T](Dilation, opts)
	out, err := e.Run(ctx, marker, mask)
	return out, e.NumberOfIterationsUsed(), err
}

// GeodesicErode reconstructs marker over mask by iterated erosion
func GeodesicErode[T ndimage.Pixel](ctx context.Context, marker, mask *ndimage.Image[T], opts Options) (*ndimage.Image[T], int, error) {
	e := NewEngine[T](Erosion, opts)
	out, err := e.Run(ctx, marker, mask)
	return out, e.NumberOfIterationsUsed(), err
}
