// Package visualization renders map volumes as greyscale slice images for
// visual inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"activitymaps/pkg/indexing"
	"activitymaps/pkg/models"
)

// Viewer extracts slices and sub-volumes from a dense map volume.
type Viewer struct {
	// volume holds the Fortran-ordered map values
	volume *models.Volume

	// max is the value rendered white
	max float64
}

// NewViewer creates a viewer for v. Intensities are scaled so that the
// largest value of v is white; non-positive values are black.
func NewViewer(v *models.Volume) (*Viewer, error) {
	if len(v.Data) != v.Box.NVoxels() {
		return nil, fmt.Errorf("visualization: volume has %d values, box %v needs %d", len(v.Data), v.Box, v.Box.NVoxels())
	}
	max := 0.0
	for _, x := range v.Data {
		if x > max {
			max = x
		}
	}
	return &Viewer{volume: v, max: max}, nil
}

func (v *Viewer) grey(i, j, k int) color.Gray16 {
	if v.max == 0 {
		return color.Gray16{}
	}
	x := v.volume.At(i, j, k) / v.max * 65535
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, x)))}
}

// extent returns the number of slices along axis.
func (v *Viewer) extent(axis string) (int, error) {
	b := v.volume.Box
	switch axis {
	case "i", "x", "X":
		return b.Ni, nil
	case "j", "y", "Y":
		return b.Nj, nil
	case "k", "z", "Z":
		return b.Nk, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// ExtractSlice extracts the 2D slice at position along axis. Slices across
// x span (j, k), across y span (i, k) and across z span (i, j).
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	n, err := v.extent(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, &indexing.BoundsError{Arg: axis, Value: position, Bound: n}
	}

	b := v.volume.Box
	var img *image.Gray16
	switch axis {
	case "i", "x", "X":
		img = image.NewGray16(image.Rect(0, 0, b.Nj, b.Nk))
		for k := 0; k < b.Nk; k++ {
			for j := 0; j < b.Nj; j++ {
				img.SetGray16(j, b.Nk-1-k, v.grey(position, j, k))
			}
		}
	case "j", "y", "Y":
		img = image.NewGray16(image.Rect(0, 0, b.Ni, b.Nk))
		for k := 0; k < b.Nk; k++ {
			for i := 0; i < b.Ni; i++ {
				img.SetGray16(i, b.Nk-1-k, v.grey(i, position, k))
			}
		}
	default:
		img = image.NewGray16(image.Rect(0, 0, b.Ni, b.Nj))
		for j := 0; j < b.Nj; j++ {
			for i := 0; i < b.Ni; i++ {
				img.SetGray16(i, b.Nj-1-j, v.grey(i, j, position))
			}
		}
	}
	return img, nil
}

// ExtractRegion copies the sub-volume starting at (i0, j0, k0) with extents
// sub into a new volume.
func (v *Viewer) ExtractRegion(i0, j0, k0 int, sub indexing.Box) (*models.Volume, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	b := v.volume.Box
	if i0 < 0 || j0 < 0 || k0 < 0 || i0+sub.Ni > b.Ni || j0+sub.Nj > b.Nj || k0+sub.Nk > b.Nk {
		return nil, fmt.Errorf("%w: region %v at (%d, %d, %d) extends beyond %v", indexing.ErrOutOfBounds, sub, i0, j0, k0, b)
	}

	out := make([]float64, sub.NVoxels())
	for k := 0; k < sub.Nk; k++ {
		for j := 0; j < sub.Nj; j++ {
			for i := 0; i < sub.Ni; i++ {
				out[sub.Flat(i, j, k)] = v.volume.At(i0+i, j0+j, k0+k)
			}
		}
	}
	return &models.Volume{Data: out, Box: sub}, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	n, err := v.extent(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
