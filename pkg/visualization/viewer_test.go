package visualization

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"activitymaps/pkg/indexing"
	"activitymaps/pkg/models"
)

// testVolume returns a volume whose value at (i, j, k) is i + 10j + 100k
func testVolume(box indexing.Box) *models.Volume {
	data := make([]float64, box.NVoxels())
	for k := 0; k < box.Nk; k++ {
		for j := 0; j < box.Nj; j++ {
			for i := 0; i < box.Ni; i++ {
				data[box.Flat(i, j, k)] = float64(i + 10*j + 100*k)
			}
		}
	}
	return &models.Volume{Data: data, Box: box}
}

// TestNewViewer verifies the white point and input validation
func TestNewViewer(t *testing.T) {
	box := indexing.Box{Ni: 4, Nj: 3, Nk: 2}
	viewer, err := NewViewer(testVolume(box))
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}
	// max value is 3 + 20 + 100
	if viewer.max != 123 {
		t.Errorf("Expected max 123, got %f", viewer.max)
	}

	zero, err := NewViewer(&models.Volume{Data: make([]float64, 8), Box: indexing.Box{Ni: 2, Nj: 2, Nk: 2}})
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}
	img, err := zero.ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("ExtractSlice failed: %v", err)
	}
	if got := img.(*image.Gray16).Gray16At(1, 1).Y; got != 0 {
		t.Errorf("Expected black slices for an empty map, got %d", got)
	}

	if _, err := NewViewer(&models.Volume{Data: []float64{1}, Box: box}); err == nil {
		t.Errorf("Expected an error for a short volume")
	}
}

// TestExtractSlice verifies slice shapes and the brightest pixel position
func TestExtractSlice(t *testing.T) {
	box := indexing.Box{Ni: 4, Nj: 3, Nk: 2}
	viewer, err := NewViewer(testVolume(box))
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	cases := []struct {
		axis   string
		pos    int
		w, h   int
		bx, by int
	}{
		{"x", 3, 3, 2, 2, 0},
		{"y", 2, 4, 2, 3, 0},
		{"z", 1, 4, 3, 3, 0},
	}
	for _, c := range cases {
		img, err := viewer.ExtractSlice(c.axis, c.pos)
		if err != nil {
			t.Fatalf("Failed to extract %s slice: %v", c.axis, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != c.w || bounds.Dy() != c.h {
			t.Errorf("%s slice: expected %dx%d, got %dx%d", c.axis, c.w, c.h, bounds.Dx(), bounds.Dy())
		}
		gray := img.(*image.Gray16)
		if got := gray.Gray16At(c.bx, c.by).Y; got != 65535 {
			t.Errorf("%s slice: expected white at (%d, %d), got %d", c.axis, c.bx, c.by, got)
		}
	}

	// the origin voxel is black and sits at the bottom left of a z slice
	img, _ := viewer.ExtractSlice("z", 0)
	if got := img.(*image.Gray16).Gray16At(0, 2).Y; got != 0 {
		t.Errorf("Expected black origin, got %d", got)
	}

	if _, err := viewer.ExtractSlice("z", 2); !errors.Is(err, indexing.ErrOutOfBounds) {
		t.Errorf("Expected ErrOutOfBounds, got %v", err)
	}
	if _, err := viewer.ExtractSlice("w", 0); err == nil {
		t.Errorf("Expected an error for an invalid axis")
	}
}

// TestExtractRegion verifies sub-volume copies keep Fortran order
func TestExtractRegion(t *testing.T) {
	box := indexing.Box{Ni: 4, Nj: 3, Nk: 2}
	viewer, err := NewViewer(testVolume(box))
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	sub := indexing.Box{Ni: 2, Nj: 2, Nk: 1}
	region, err := viewer.ExtractRegion(1, 1, 1, sub)
	if err != nil {
		t.Fatalf("ExtractRegion failed: %v", err)
	}
	want := []float64{111, 112, 121, 122}
	for p, v := range want {
		if region.Data[p] != v {
			t.Errorf("Voxel %d: expected %f, got %f", p, v, region.Data[p])
		}
	}

	if _, err := viewer.ExtractRegion(3, 0, 0, sub); !errors.Is(err, indexing.ErrOutOfBounds) {
		t.Errorf("Expected ErrOutOfBounds for an overflowing region, got %v", err)
	}
	if _, err := viewer.ExtractRegion(0, 0, 0, indexing.Box{}); !errors.Is(err, indexing.ErrInvalidBox) {
		t.Errorf("Expected ErrInvalidBox, got %v", err)
	}
}

// TestSaveSliceSequence verifies one image is written per slice
func TestSaveSliceSequence(t *testing.T) {
	box := indexing.Box{Ni: 4, Nj: 3, Nk: 2}
	viewer, err := NewViewer(testVolume(box))
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "slices")
	if err := viewer.SaveSliceSequence("y", dir); err != nil {
		t.Fatalf("SaveSliceSequence failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != box.Nj {
		t.Errorf("Expected %d slices, got %d", box.Nj, len(entries))
	}
	if _, err := os.Stat(filepath.Join(dir, "slice_y_002.jpg")); err != nil {
		t.Errorf("Expected slice_y_002.jpg: %v", err)
	}

	if err := viewer.SaveSliceSequence("q", dir); err == nil {
		t.Errorf("Expected an error for an invalid axis")
	}
}
