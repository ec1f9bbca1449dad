// Package visualization extracts planes and sub-regions of N-d images so the
// result of a reconstruction can be inspected as ordinary image files.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"ndcore/pkg/ndimage"
	"ndcore/pkg/region"
)

// Viewer renders the resident pixels of a 2D or 3D image as 16-bit grayscale
// planes. Pixel values are mapped linearly from the window [low, high] onto
// [0, 65535].
type Viewer[T ndimage.Pixel] struct {
	image *ndimage.Image[T]

	// window used for grayscale mapping
	low  float64
	high float64
}

// NewViewer creates a viewer whose window spans the image's value range
func NewViewer[T ndimage.Pixel](img *ndimage.Image[T]) *Viewer[T] {
	v := &Viewer[T]{image: img}
	data := img.Buffer().Data()
	if len(data) == 0 {
		return v
	}
	v.low, v.high = float64(data[0]), float64(data[0])
	for _, p := range data[1:] {
		v.low = math.Min(v.low, float64(p))
		v.high = math.Max(v.high, float64(p))
	}
	return v
}

// SetWindow sets the value range mapped onto black and white
func (v *Viewer[T]) SetWindow(low, high float64) {
	v.low, v.high = low, high
}

// Window returns the value range mapped onto black and white
func (v *Viewer[T]) Window() (low, high float64) {
	return v.low, v.high
}

// axisNumber converts "x", "y" or "z" into an axis index
func axisNumber(axis string) (int, error) {
	switch strings.ToLower(axis) {
	case "x":
		return 0, nil
	case "y":
		return 1, nil
	case "z":
		return 2, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// planeAxes returns the column and row axes of a plane normal to axis,
// following the orientation used for x (z by y), y (x by z) and z (x by y)
func planeAxes(axis int) (col, row int) {
	switch axis {
	case 0:
		return 2, 1
	case 1:
		return 0, 2
	default:
		return 0, 1
	}
}

// extent returns the image's resident region lifted to 3D, so a 2D image is
// a volume of depth one
func (v *Viewer[T]) extent() (region.Region, error) {
	r := v.image.Resident()
	switch r.Dimension() {
	case 2:
		return region.New(region.Index{r.Index[0], r.Index[1], 0}, region.Size{r.Size[0], r.Size[1], 1}), nil
	case 3:
		return r, nil
	default:
		return region.Region{}, fmt.Errorf("cannot view a %d-D image (must be 2D or 3D)", r.Dimension())
	}
}

// pixel reads the 3D index ix, dropping the third axis for 2D images
func (v *Viewer[T]) pixel(ix region.Index) T {
	if v.image.Dimension() == 2 {
		return v.image.Pixel(ix[:2])
	}
	return v.image.Pixel(ix)
}

func (v *Viewer[T]) gray(p T) color.Gray16 {
	if v.high <= v.low {
		return color.Gray16{}
	}
	scaled := (float64(p) - v.low) / (v.high - v.low) * 65535
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, math.Round(scaled))))}
}

// ExtractSlice extracts the plane normal to axis ("x", "y" or "z") at the
// given index along that axis. The position is in image index space, so it
// must lie inside the resident region.
func (v *Viewer[T]) ExtractSlice(axis string, position int64) (*image.Gray16, error) {
	a, err := axisNumber(axis)
	if err != nil {
		return nil, err
	}
	ext, err := v.extent()
	if err != nil {
		return nil, err
	}
	if position < ext.Index[a] || position >= ext.Index[a]+ext.Size[a] {
		return nil, fmt.Errorf("position %d is outside [%d, %d) along %s",
			position, ext.Index[a], ext.Index[a]+ext.Size[a], axis)
	}

	col, row := planeAxes(a)
	width, height := int(ext.Size[col]), int(ext.Size[row])
	img := image.NewGray16(image.Rect(0, 0, width, height))

	ix := ext.Index.Clone()
	ix[a] = position
	for y := 0; y < height; y++ {
		ix[row] = ext.Index[row] + int64(y)
		for x := 0; x < width; x++ {
			ix[col] = ext.Index[col] + int64(x)
			img.SetGray16(x, y, v.gray(v.pixel(ix)))
		}
	}
	return img, nil
}

// ExtractRegion copies a sub-region of the image into a new image whose full
// extent, resident and requested regions are r. Geometry is preserved, so
// indices keep mapping to the same physical points.
func (v *Viewer[T]) ExtractRegion(r region.Region) (*ndimage.Image[T], error) {
	src := v.image
	if r.Dimension() != src.Dimension() {
		return nil, fmt.Errorf("region is %d-D, image is %d-D", r.Dimension(), src.Dimension())
	}
	if !region.Verify(r, src.FullExtent()) {
		return nil, fmt.Errorf("region %v extends beyond the full extent %v", r, src.FullExtent())
	}
	if region.IsOutside(r, src.Resident()) {
		return nil, fmt.Errorf("region %v is not resident (%v)", r, src.Resident())
	}

	out := ndimage.New[T](src.Dimension())
	out.CopyInformation(src.Descriptor)
	out.SetRegions(r)
	out.Allocate()
	if r.IsEmpty() {
		return out, nil
	}

	// Copy one contiguous run along axis 0 at a time
	srcData := src.Buffer().Data()
	dstData := out.Buffer().Data()
	run := r.Size[0]
	rows := r.NumberOfPixels() / run
	ix := r.Index.Clone()
	upper := r.Upper()
	for i := int64(0); i < rows; i++ {
		s := src.ComputeOffset(ix)
		d := out.ComputeOffset(ix)
		copy(dstData[d:d+run], srcData[s:s+run])
		for a := 1; a < len(ix); a++ {
			ix[a]++
			if ix[a] < upper[a] {
				break
			}
			ix[a] = r.Index[a]
		}
	}
	return out, nil
}

// SaveSlice saves an extracted slice; the format follows the file extension
func (v *Viewer[T]) SaveSlice(img image.Image, filename string) error {
	if err := imaging.Save(img, filename, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("failed to save slice %s: %w", filename, err)
	}
	return nil
}

// SaveSliceSequence extracts and saves every slice along the specified axis
// as slice_<axis>_<position>.<format>
func (v *Viewer[T]) SaveSliceSequence(axis string, outputDir string, format string) error {
	a, err := axisNumber(axis)
	if err != nil {
		return err
	}
	ext, err := v.extent()
	if err != nil {
		return err
	}
	if format == "" {
		format = "png"
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := ext.Index[a]; pos < ext.Index[a]+ext.Size[a]; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.%s", strings.ToLower(axis), pos, format))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
