package models

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"activitymaps/pkg/indexing"
)

// ErrSingularAffine indicates an affine that cannot be inverted.
var ErrSingularAffine = errors.New("models: affine is singular")

// Affine is a 4x4 homogeneous transform from voxel coordinates to world
// coordinates, as stored in neuroimaging headers.
type Affine [4][4]float64

// Identity returns the identity affine.
func Identity() Affine {
	var a Affine
	for i := 0; i < 4; i++ {
		a[i][i] = 1
	}
	return a
}

// AffineFromRows builds an affine from a 4x4 nested slice, as decoded from
// configuration files.
func AffineFromRows(rows [][]float64) (Affine, error) {
	var a Affine
	if len(rows) != 4 {
		return a, fmt.Errorf("models: affine needs 4 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if len(r) != 4 {
			return a, fmt.Errorf("models: affine row %d needs 4 values, got %d", i, len(r))
		}
		copy(a[i][:], r)
	}
	return a, nil
}

// Rows returns the affine as a nested slice.
func (a Affine) Rows() [][]float64 {
	rows := make([][]float64, 4)
	for i := range rows {
		rows[i] = append([]float64(nil), a[i][:]...)
	}
	return rows
}

// Inverse returns the inverse transform. Singular or near-singular
// matrices are rejected with ErrSingularAffine.
func (a Affine) Inverse() (Affine, error) {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.Set(i, j, a[i][j])
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Affine{}, fmt.Errorf("%w: %v", ErrSingularAffine, err)
	}
	var r Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			r[i][j] = inv.At(i, j)
		}
	}
	return r, nil
}

// Apply transforms the point (x, y, z) and returns the first three
// homogeneous components.
func (a Affine) Apply(x, y, z float64) (float64, float64, float64) {
	return a[0][0]*x + a[0][1]*y + a[0][2]*z + a[0][3],
		a[1][0]*x + a[1][1]*y + a[1][2]*z + a[1][3],
		a[2][0]*x + a[2][1]*y + a[2][2]*z + a[2][3]
}

// Volume is a dense 3-D array in Fortran order (first index fastest).
// When Affine is set the volume is georeferenced.
type Volume struct {
	// Data holds Ni*Nj*Nk values, index i + Ni*j + Ni*Nj*k.
	Data []float64

	// Box is the array extents.
	Box indexing.Box

	// Affine maps voxel coordinates to world coordinates. Nil for a bare
	// array.
	Affine *Affine
}

// NewVolume wraps data in a volume after checking its length.
func NewVolume(data []float64, box indexing.Box) (*Volume, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if len(data) != box.NVoxels() {
		return nil, fmt.Errorf("models: volume data has %d values, box %v needs %d", len(data), box, box.NVoxels())
	}
	return &Volume{Data: data, Box: box}, nil
}

// At returns the value at voxel (i, j, k) without bounds checks.
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[v.Box.Flat(i, j, k)]
}

// WithAffine returns a georeferenced copy sharing the same data.
func (v *Volume) WithAffine(a Affine) *Volume {
	return &Volume{Data: v.Data, Box: v.Box, Affine: &a}
}
