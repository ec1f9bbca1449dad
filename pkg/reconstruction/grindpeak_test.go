package reconstruction

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ndcore/pkg/ndimage"
	"ndcore/pkg/pipeline"
	"ndcore/pkg/region"
)

// TestPeakMarker verifies the boundary is copied and the inside takes the global minimum
func TestPeakMarker(t *testing.T) {
	input := createImage(t, []uint8{
		9, 8, 7, 6,
		5, 30, 2, 4,
		3, 40, 50, 1,
		7, 7, 7, 7,
	}, 4, 4)

	marker, err := PeakMarker(input)
	if err != nil {
		t.Fatalf("PeakMarker failed: %v", err)
	}

	want := []uint8{
		9, 8, 7, 6,
		5, 1, 1, 4,
		3, 1, 1, 1,
		7, 7, 7, 7,
	}
	if diff := cmp.Diff(want, marker.Buffer().Data()); diff != "" {
		t.Errorf("Marker mismatch (-want +got):\n%s", diff)
	}
	if marker.SharesBuffer(input) {
		t.Error("Expected marker to own its buffer")
	}
	if input.Pixel(region.Index{1, 1}) != 30 {
		t.Error("Expected input to be left untouched")
	}
}

// TestHoleMarker verifies the inside takes the global maximum
func TestHoleMarker(t *testing.T) {
	input := createImage(t, []int32{
		1, 1, 1,
		1, -5, 1,
		1, 1, 9,
	}, 3, 3)

	marker, err := HoleMarker(input)
	if err != nil {
		t.Fatalf("HoleMarker failed: %v", err)
	}
	if got := marker.Pixel(region.Index{1, 1}); got != 9 {
		t.Errorf("Expected interior 9, got %d", got)
	}
}

// TestMarkerOffsetFullExtent verifies the boundary follows a non-zero start index
func TestMarkerOffsetFullExtent(t *testing.T) {
	r := region.New(region.Index{10, -3}, region.Size{3, 3})
	input, err := ndimage.FromSlice(r, []int16{
		4, 4, 4,
		4, 9, 4,
		4, 4, 0,
	})
	if err != nil {
		t.Fatalf("Failed to create image: %v", err)
	}

	marker, err := PeakMarker(input)
	if err != nil {
		t.Fatalf("PeakMarker failed: %v", err)
	}
	if got := marker.Pixel(region.Index{11, -2}); got != 0 {
		t.Errorf("Expected interior minimum 0, got %d", got)
	}
	if got := marker.Pixel(region.Index{10, -3}); got != 4 {
		t.Errorf("Expected boundary value 4, got %d", got)
	}
}

// TestRemovePeaks verifies the filter output and its information
func TestRemovePeaks(t *testing.T) {
	input := createPeakImage(t)
	input.Geometry().SetSpacing(0.5, 2)
	input.Geometry().SetOrigin(1, 1)

	out, iterations, err := RemovePeaks(context.Background(), input, Options{})
	if err != nil {
		t.Fatalf("RemovePeaks failed: %v", err)
	}
	if iterations != 1 {
		t.Errorf("Expected 1 iteration, got %d", iterations)
	}
	for _, v := range out.Buffer().Data() {
		if v != 10 {
			t.Fatalf("Expected a flat output of 10, got %d", v)
		}
	}

	if !out.Resident().Equal(input.FullExtent()) {
		t.Errorf("Expected output resident %v, got %v", input.FullExtent(), out.Resident())
	}
	if diff := cmp.Diff(input.Geometry().Spacing(), out.Geometry().Spacing()); diff != "" {
		t.Errorf("Spacing not forwarded (-want +got):\n%s", diff)
	}
	if input.Pixel(region.Index{2, 2}) != 20 {
		t.Error("Expected input to be left untouched")
	}
}

// TestFillHoles verifies a pit that does not reach the boundary is filled
func TestFillHoles(t *testing.T) {
	values := make([]float64, 25)
	for i := range values {
		values[i] = 50
	}
	values[12] = 10
	input := createImage(t, values, 5, 5)

	out, iterations, err := FillHoles(context.Background(), input, Options{})
	if err != nil {
		t.Fatalf("FillHoles failed: %v", err)
	}
	if iterations != 1 {
		t.Errorf("Expected 1 iteration, got %d", iterations)
	}
	if got := out.Pixel(region.Index{2, 2}); got != 50 {
		t.Errorf("Expected hole filled to 50, got %v", got)
	}
}

// TestGrindPeakNode verifies the node enlarges a partial request to the whole extent
func TestGrindPeakNode(t *testing.T) {
	input := createChannelImage(t)
	node := NewGrindPeak(input, Options{})

	p := pipeline.New()
	p.Add(pipeline.NewSource("input", input), node)

	sub := region.New(region.Index{2, 1}, region.Size{2, 1})
	node.Output().SetRequested(sub)
	if err := p.Update(context.Background(), node); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if !node.Output().Requested().Equal(input.FullExtent()) {
		t.Errorf("Expected request enlarged to %v, got %v", input.FullExtent(), node.Output().Requested())
	}
	if got := node.Image().Pixel(region.Index{2, 1}); got != 30 {
		t.Errorf("Expected pixel (2,1) = 30, got %d", got)
	}
	if node.NumberOfIterationsUsed() != 6 {
		t.Errorf("Expected 6 iterations, got %d", node.NumberOfIterationsUsed())
	}
	if len(node.Changes()) != 6 {
		t.Errorf("Expected 6 change counts, got %d", len(node.Changes()))
	}

	// A second update finds the output resident and does not run again
	node.iterations = 0
	if err := p.Update(context.Background(), node); err != nil {
		t.Fatalf("second Update failed: %v", err)
	}
	if node.NumberOfIterationsUsed() != 0 {
		t.Errorf("Expected no re-execution, got %d iterations", node.NumberOfIterationsUsed())
	}
}

// TestRemovePeaksPartialInput verifies a partially buffered input is rejected
func TestRemovePeaksPartialInput(t *testing.T) {
	input := ndimage.New[uint8](2)
	input.SetFullExtent(region.FromSize(6, 6))
	input.SetResident(region.FromSize(6, 3))
	input.SetRequested(region.FromSize(6, 3))
	input.Allocate()

	_, _, err := RemovePeaks(context.Background(), input, Options{})
	if err == nil {
		t.Fatal("Expected an error for a partially buffered input")
	}
}

// TestPeakMarkerNotResident verifies the marker builder checks residency
func TestPeakMarkerNotResident(t *testing.T) {
	input := ndimage.New[uint8](2)
	input.SetFullExtent(region.FromSize(3, 3))
	input.SetResident(region.FromSize(3, 1))
	input.Allocate()

	if _, err := PeakMarker(input); !errors.Is(err, ErrNotResident) {
		t.Errorf("Expected ErrNotResident, got %v", err)
	}
}

// TestRemovePeaksWithNaN verifies a NaN pixel neither blocks convergence nor leaks into the marker
func TestRemovePeaksWithNaN(t *testing.T) {
	values := make([]float64, 25)
	for i := range values {
		values[i] = 10
	}
	values[12] = 20
	values[1] = math.NaN()
	input := createImage(t, values, 5, 5)

	out, iterations, err := RemovePeaks(context.Background(), input, Options{})
	if err != nil {
		t.Fatalf("RemovePeaks failed: %v", err)
	}
	if iterations != 1 {
		t.Errorf("Expected 1 iteration, got %d", iterations)
	}
	if got := out.Pixel(region.Index{2, 2}); got != 10 {
		t.Errorf("Expected centre pixel to be flattened to 10, got %v", got)
	}
	if got := out.Pixel(region.Index{1, 0}); !math.IsNaN(got) {
		t.Errorf("Expected the NaN pixel to stay NaN, got %v", got)
	}
}

// TestMarkerSkipsNaN verifies the interior fill ignores NaN, also as the first pixel
func TestMarkerSkipsNaN(t *testing.T) {
	nan := math.NaN()
	input := createImage(t, []float32{
		float32(nan), 4, 4,
		4, 9, 4,
		4, 4, 3,
	}, 3, 3)

	peak, err := PeakMarker(input)
	if err != nil {
		t.Fatalf("PeakMarker failed: %v", err)
	}
	if got := peak.Pixel(region.Index{1, 1}); got != 3 {
		t.Errorf("Expected interior minimum 3, got %v", got)
	}

	hole, err := HoleMarker(input)
	if err != nil {
		t.Fatalf("HoleMarker failed: %v", err)
	}
	if got := hole.Pixel(region.Index{1, 1}); got != 9 {
		t.Errorf("Expected interior maximum 9, got %v", got)
	}
}
