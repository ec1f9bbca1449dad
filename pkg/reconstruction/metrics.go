package reconstruction

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ndcore/pkg/ndimage"
)

// PeakMetrics summarises how much a reconstruction changed its input
type PeakMetrics struct {
	// ChangedPixels is the number of pixels whose value differs
	ChangedPixels int64

	// MaxDifference is the largest absolute change of a single pixel
	MaxDifference float64

	// MeanDifference is the mean absolute change over changed pixels
	MeanDifference float64

	// RMSE is the root mean square difference over all pixels
	RMSE float64

	// Correlation is the Pearson correlation between input and output.
	// It is NaN when either image is constant.
	Correlation float64
}

// Summarize compares an input image with its reconstruction
func Summarize[T ndimage.Pixel](original, reconstructed *ndimage.Image[T]) (PeakMetrics, error) {
	var m PeakMetrics
	if !ndimage.SameShape(original.Descriptor, reconstructed.Descriptor) {
		return m, fmt.Errorf("%w: original %v, reconstructed %v", ErrShapeMismatch, original.FullExtent(), reconstructed.FullExtent())
	}

	a := toFloat(original.Buffer().Data())
	b := toFloat(reconstructed.Buffer().Data())
	if len(a) != len(b) {
		return m, fmt.Errorf("%w: buffers hold %d and %d pixels", ErrShapeMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return m, nil
	}

	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	var changed []float64
	for i, d := range diff {
		d = math.Abs(d)
		diff[i] = d
		if d != 0 {
			changed = append(changed, d)
		}
	}

	m.ChangedPixels = int64(len(changed))
	m.MaxDifference = floats.Max(diff)
	if len(changed) > 0 {
		m.MeanDifference = stat.Mean(changed, nil)
	}
	m.RMSE = math.Sqrt(floats.Dot(diff, diff) / float64(len(diff)))
	m.Correlation = stat.Correlation(a, b, nil)
	return m, nil
}

func toFloat[T ndimage.Pixel](data []T) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}
