// Package imageio reads grayscale images and slice stacks from disk into
// ndimage images and writes results back.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"ndcore/pkg/ndimage"
	"ndcore/pkg/region"
	"ndcore/pkg/visualization"
)

// imageExtensions lists the file types LoadStack picks up
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".gif":  true,
}

// Load reads path as a 2D image, or as a 3D stack when path is a directory
func Load(path string) (*ndimage.Image[uint16], error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadStack(path)
	}
	return LoadImage(path)
}

// LoadImage reads a single image file as a 16-bit grayscale 2D image whose
// full extent starts at index zero, x along axis 0 and y along axis 1
func LoadImage(path string) (*ndimage.Image[uint16], error) {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", path, err)
	}

	b := src.Bounds()
	img := ndimage.NewWithRegion[uint16](region.FromSize(int64(b.Dx()), int64(b.Dy())))
	copyGray(img.Buffer().Data(), src)
	return img, nil
}

// LoadStack reads every image file in dir as one slice of a 3D image. Slices
// are ordered by the number embedded in their file names and must all have
// the same size.
func LoadStack(dir string) (*ndimage.Image[uint16], error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in directory %s", dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return extractNumber(files[i]) < extractNumber(files[j])
	})

	var img *ndimage.Image[uint16]
	var width, height int
	for z, name := range files {
		src, err := imaging.Open(filepath.Join(dir, name), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}

		b := src.Bounds()
		if img == nil {
			width, height = b.Dx(), b.Dy()
			img = ndimage.NewWithRegion[uint16](region.FromSize(int64(width), int64(height), int64(len(files))))
		} else if b.Dx() != width || b.Dy() != height {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d", name, b.Dx(), b.Dy(), width, height)
		}

		start := img.ComputeOffset(region.Index{0, 0, int64(z)})
		copyGray(img.Buffer().Data()[start:start+int64(width*height)], src)
	}

	return img, nil
}

// copyGray converts src to 16-bit gray into dst in row-major order
func copyGray(dst []uint16, src image.Image) {
	b := src.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst[i] = color.Gray16Model.Convert(src.At(x, y)).(color.Gray16).Y
			i++
		}
	}
}

// extractNumber returns the digits of a file name as a number, 0 if it has none
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	if digits.Len() > 0 {
		if num, err := strconv.Atoi(digits.String()); err == nil {
			return num
		}
	}
	return 0
}

// Save writes a 2D image to path, or a 3D image as one file per slice
// along z into the directory path using format as extension. Values are
// written unscaled.
func Save(img *ndimage.Image[uint16], path string, format string) error {
	viewer := visualization.NewViewer(img)
	viewer.SetWindow(0, 65535)

	switch img.Dimension() {
	case 2:
		slice, err := viewer.ExtractSlice("z", 0)
		if err != nil {
			return err
		}
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		return viewer.SaveSlice(slice, path)
	case 3:
		return viewer.SaveSliceSequence("z", path, format)
	default:
		return fmt.Errorf("cannot save a %d-D image", img.Dimension())
	}
}
