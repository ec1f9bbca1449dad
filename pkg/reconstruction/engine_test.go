package reconstruction

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ndcore/pkg/ndimage"
	"ndcore/pkg/region"
)

// createImage builds a fully resident image from row-major values
func createImage[T ndimage.Pixel](t *testing.T, values []T, size ...int64) *ndimage.Image[T] {
	t.Helper()
	img, err := ndimage.FromSlice(region.FromSize(size...), append([]T(nil), values...))
	if err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	return img
}

// createPeakImage is the 5x5 plateau of 10 with a single 20 in the centre
func createPeakImage(t *testing.T) *ndimage.Image[uint8] {
	values := make([]uint8, 25)
	for i := range values {
		values[i] = 10
	}
	values[12] = 20
	return createImage(t, values, 5, 5)
}

// createChannelImage is a 7x3 image whose middle row is a channel fed from the left edge
func createChannelImage(t *testing.T) *ndimage.Image[int16] {
	return createImage(t, []int16{
		0, 0, 0, 0, 0, 0, 0,
		40, 30, 35, 20, 25, 10, 0,
		0, 0, 0, 0, 0, 0, 0,
	}, 7, 3)
}

// TestSinglePeakScenario checks the isolated peak is flattened in one pass
func TestSinglePeakScenario(t *testing.T) {
	input := createPeakImage(t)
	marker, err := PeakMarker(input)
	if err != nil {
		t.Fatalf("PeakMarker failed: %v", err)
	}

	for _, v := range marker.Buffer().Data() {
		if v != 10 {
			t.Fatalf("Expected marker to be 10 everywhere, got %d", v)
		}
	}

	out, iterations, err := GeodesicDilate(context.Background(), marker, input, Options{})
	if err != nil {
		t.Fatalf("GeodesicDilate failed: %v", err)
	}
	if iterations != 1 {
		t.Errorf("Expected 1 iteration, got %d", iterations)
	}
	if got := out.Pixel(region.Index{2, 2}); got != 10 {
		t.Errorf("Expected centre pixel to be flattened to 10, got %d", got)
	}
}

// TestChannelPropagation checks values propagate one pixel per pass and are capped by the mask
func TestChannelPropagation(t *testing.T) {
	for _, fully := range []bool{false, true} {
		input := createChannelImage(t)
		marker, err := PeakMarker(input)
		if err != nil {
			t.Fatalf("PeakMarker failed: %v", err)
		}

		engine := NewEngine[int16](Dilation, Options{FullyConnected: fully})
		out, err := engine.Run(context.Background(), marker, input)
		if err != nil {
			t.Fatalf("Run failed (fully connected %v): %v", fully, err)
		}

		want := []int16{
			0, 0, 0, 0, 0, 0, 0,
			40, 30, 30, 20, 20, 10, 0,
			0, 0, 0, 0, 0, 0, 0,
		}
		if diff := cmp.Diff(want, out.Buffer().Data()); diff != "" {
			t.Errorf("Reconstruction mismatch (fully connected %v) (-want +got):\n%s", fully, diff)
		}
		if engine.NumberOfIterationsUsed() != 6 {
			t.Errorf("Expected 6 iterations (fully connected %v), got %d", fully, engine.NumberOfIterationsUsed())
		}
		if diff := cmp.Diff([]int64{1, 1, 1, 1, 1, 0}, engine.Changes()); diff != "" {
			t.Errorf("Changes mismatch (-want +got):\n%s", diff)
		}
	}
}

// TestPitIsPreserved checks a ring-by-ring propagation that stops at a pit
func TestPitIsPreserved(t *testing.T) {
	values := make([]float32, 49)
	for i := range values {
		values[i] = 50
	}
	values[24] = 5
	input := createImage(t, values, 7, 7)

	out, iterations, err := RemovePeaks(context.Background(), input, Options{})
	if err != nil {
		t.Fatalf("RemovePeaks failed: %v", err)
	}
	if iterations != 3 {
		t.Errorf("Expected 3 iterations, got %d", iterations)
	}
	if diff := cmp.Diff(values, out.Buffer().Data()); diff != "" {
		t.Errorf("Expected output identical to input (-want +got):\n%s", diff)
	}
}

// TestMarkerEqualsMask checks a marker already at the fixed point
func TestMarkerEqualsMask(t *testing.T) {
	input := createChannelImage(t)
	out, iterations, err := GeodesicDilate(context.Background(), input, input, Options{})
	if err != nil {
		t.Fatalf("GeodesicDilate failed: %v", err)
	}
	if iterations != 1 {
		t.Errorf("Expected 1 iteration, got %d", iterations)
	}
	if diff := cmp.Diff(input.Buffer().Data(), out.Buffer().Data()); diff != "" {
		t.Errorf("Expected output identical to input (-want +got):\n%s", diff)
	}
	if out.SharesBuffer(input) {
		t.Error("Expected output to own its buffer")
	}
}

// TestIdempotence checks re-running on the output converges in exactly one pass
func TestIdempotence(t *testing.T) {
	input := createChannelImage(t)
	marker, _ := PeakMarker(input)

	first, _, err := GeodesicDilate(context.Background(), marker, input, Options{})
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, iterations, err := GeodesicDilate(context.Background(), first, input, Options{})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if iterations != 1 {
		t.Errorf("Expected 1 iteration on a fixed point, got %d", iterations)
	}
	if diff := cmp.Diff(first.Buffer().Data(), second.Buffer().Data()); diff != "" {
		t.Errorf("Expected identical output (-want +got):\n%s", diff)
	}
}

// TestMonotonicity checks every pass is non-decreasing and bounded by the mask
func TestMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]int32, 12*9)
	for i := range values {
		values[i] = int32(rng.Intn(200))
	}
	input := createImage(t, values, 12, 9)
	marker, _ := PeakMarker(input)

	previous := append([]int32(nil), marker.Buffer().Data()...)
	engine := NewEngine[int32](Dilation, Options{})
	engine.Observe(func(iteration int, current []int32) {
		for i, v := range current {
			if v < previous[i] {
				t.Fatalf("iteration %d: pixel %d decreased from %d to %d", iteration, i, previous[i], v)
			}
			if v > values[i] {
				t.Fatalf("iteration %d: pixel %d = %d exceeds mask %d", iteration, i, v, values[i])
			}
		}
		copy(previous, current)
	})

	if _, err := engine.Run(context.Background(), marker, input); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

// TestParallelMatchesSequential checks worker splitting does not change the result
func TestParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := make([]float64, 9*8*7)
	for i := range values {
		values[i] = rng.Float64() * 100
	}
	input := createImage(t, values, 9, 8, 7)

	for _, fully := range []bool{false, true} {
		seq, seqIter, err := RemovePeaks(context.Background(), input, Options{FullyConnected: fully})
		if err != nil {
			t.Fatalf("sequential run failed: %v", err)
		}
		par, parIter, err := RemovePeaks(context.Background(), input, Options{FullyConnected: fully, NumWorkers: 4})
		if err != nil {
			t.Fatalf("parallel run failed: %v", err)
		}

		if seqIter != parIter {
			t.Errorf("Expected %d iterations in parallel, got %d", seqIter, parIter)
		}
		if diff := cmp.Diff(seq.Buffer().Data(), par.Buffer().Data()); diff != "" {
			t.Errorf("Parallel result differs (fully connected %v) (-seq +par):\n%s", fully, diff)
		}
	}
}

// TestShapeMismatch checks the only validated precondition fails before iterating
func TestShapeMismatch(t *testing.T) {
	marker := ndimage.NewWithRegion[uint8](region.FromSize(4, 4))
	mask := ndimage.NewWithRegion[uint8](region.FromSize(4, 5))

	engine := NewEngine[uint8](Dilation, Options{})
	_, err := engine.Run(context.Background(), marker, mask)
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("Expected ErrShapeMismatch, got %v", err)
	}
	if engine.NumberOfIterationsUsed() != 0 {
		t.Errorf("Expected no iteration, got %d", engine.NumberOfIterationsUsed())
	}
}

// TestNotResident checks partially buffered inputs are rejected
func TestNotResident(t *testing.T) {
	mask := ndimage.NewWithRegion[uint8](region.FromSize(4, 4))
	marker := ndimage.New[uint8](2)
	marker.SetFullExtent(region.FromSize(4, 4))
	marker.SetResident(region.FromSize(4, 2))
	marker.Allocate()

	_, _, err := GeodesicDilate(context.Background(), marker, mask, Options{})
	if !errors.Is(err, ErrNotResident) {
		t.Errorf("Expected ErrNotResident, got %v", err)
	}
}

// TestSanityBound checks exceeding MaxIterations is reported distinctly
func TestSanityBound(t *testing.T) {
	input := createChannelImage(t)
	marker, _ := PeakMarker(input)

	_, _, err := GeodesicDilate(context.Background(), marker, input, Options{MaxIterations: 2})
	if !errors.Is(err, ErrNotConverged) {
		t.Errorf("Expected ErrNotConverged, got %v", err)
	}
}

// TestCancellation checks a done context stops the run
func TestCancellation(t *testing.T) {
	input := createChannelImage(t)
	marker, _ := PeakMarker(input)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := GeodesicDilate(ctx, marker, input, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// TestProgressCallback checks one report per pass
func TestProgressCallback(t *testing.T) {
	input := createChannelImage(t)
	marker, _ := PeakMarker(input)

	var calls []int
	opts := Options{Progress: func(completed, total int, message string) {
		calls = append(calls, completed)
		if total != 22 {
			t.Errorf("Expected default bound 22, got %d", total)
		}
		if message == "" {
			t.Error("Expected a progress message")
		}
	}}
	if _, _, err := GeodesicDilate(context.Background(), marker, input, opts); err != nil {
		t.Fatalf("GeodesicDilate failed: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4, 5, 6}, calls); diff != "" {
		t.Errorf("Progress calls mismatch (-want +got):\n%s", diff)
	}
}

// TestNeighborhoodSize checks the structuring element cardinality
func TestNeighborhoodSize(t *testing.T) {
	tests := []struct {
		size  region.Size
		fully bool
		want  int
	}{
		{region.Size{4, 4}, false, 4},
		{region.Size{4, 4}, true, 8},
		{region.Size{3, 3, 3}, false, 6},
		{region.Size{3, 3, 3}, true, 26},
	}
	for _, tt := range tests {
		d := ndimage.NewDescriptor(len(tt.size))
		d.SetResident(region.New(region.NewIndex(len(tt.size)), tt.size))
		h := newNeighborhood(tt.size, d.OffsetTable(), tt.fully)
		if h.Len() != tt.want {
			t.Errorf("size %v fully %v: expected %d neighbours, got %d", tt.size, tt.fully, tt.want, h.Len())
		}
	}
}

// BenchmarkGrindPeak measures a 3D peak removal
func BenchmarkGrindPeak(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	values := make([]uint16, 32*32*16)
	for i := range values {
		values[i] = uint16(rng.Intn(1000))
	}
	input, err := ndimage.FromSlice(region.FromSize(32, 32, 16), values)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := RemovePeaks(context.Background(), input, Options{NumWorkers: 4}); err != nil {
			b.Fatal(err)
		}
	}
}
