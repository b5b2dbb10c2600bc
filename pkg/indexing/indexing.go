// Package indexing converts between 3-D voxel coordinates and the flat
// column-major (Fortran) index used by every map in a collection.
package indexing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBox indicates a box with a zero or negative extent.
	ErrInvalidBox = errors.New("indexing: box dimensions must be positive")
	// ErrOutOfBounds indicates an index outside the box.
	ErrOutOfBounds = errors.New("indexing: index out of bounds")
)

// BoundsError reports which argument violated which bound.
type BoundsError struct {
	Arg   string
	Value int
	Bound int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("indexing: %s=%d outside [0, %d)", e.Arg, e.Value, e.Bound)
}

// Is makes errors.Is(err, ErrOutOfBounds) hold for every BoundsError.
func (e *BoundsError) Is(target error) bool {
	return target == ErrOutOfBounds
}

// Box is the voxel grid extents (Ni, Nj, Nk).
type Box struct {
	Ni, Nj, Nk int
}

// NewBox returns a validated box.
func NewBox(ni, nj, nk int) (Box, error) {
	b := Box{Ni: ni, Nj: nj, Nk: nk}
	if err := b.Validate(); err != nil {
		return Box{}, err
	}
	return b, nil
}

// Validate returns ErrInvalidBox when any extent is not positive.
func (b Box) Validate() error {
	if b.Ni <= 0 || b.Nj <= 0 || b.Nk <= 0 {
		return fmt.Errorf("%w: got (%d, %d, %d)", ErrInvalidBox, b.Ni, b.Nj, b.Nk)
	}
	return nil
}

// NVoxels is Ni*Nj*Nk.
func (b Box) NVoxels() int {
	return b.Ni * b.Nj * b.Nk
}

func (b Box) String() string {
	return fmt.Sprintf("(%d, %d, %d)", b.Ni, b.Nj, b.Nk)
}

// ToFlat is the checked form of Flat.
func (b Box) ToFlat(i, j, k int) (int, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	if err := checkRange("i", i, b.Ni); err != nil {
		return 0, err
	}
	if err := checkRange("j", j, b.Nj); err != nil {
		return 0, err
	}
	if err := checkRange("k", k, b.Nk); err != nil {
		return 0, err
	}
	return b.Flat(i, j, k), nil
}

// To3D is the checked form of Coord.
func (b Box) To3D(p int) (i, j, k int, err error) {
	if err := b.Validate(); err != nil {
		return 0, 0, 0, err
	}
	if err := checkRange("p", p, b.NVoxels()); err != nil {
		return 0, 0, 0, err
	}
	i, j, k = b.Coord(p)
	return i, j, k, nil
}

// Flat returns i + Ni*j + Ni*Nj*k without bounds checks.
func (b Box) Flat(i, j, k int) int {
	return i + b.Ni*(j+b.Nj*k)
}

// Coord inverts Flat without bounds checks.
func (b Box) Coord(p int) (i, j, k int) {
	i = p % b.Ni
	p /= b.Ni
	j = p % b.Nj
	k = p / b.Nj
	return i, j, k
}

// ToFlat maps (i, j, k) in a box of extents (ni, nj, nk) to its flat index.
func ToFlat(i, j, k, ni, nj, nk int) (int, error) {
	return Box{Ni: ni, Nj: nj, Nk: nk}.ToFlat(i, j, k)
}

// To3D maps a flat index in a box of extents (ni, nj, nk) back to (i, j, k).
func To3D(p, ni, nj, nk int) (i, j, k int, err error) {
	return Box{Ni: ni, Nj: nj, Nk: nk}.To3D(p)
}

// Clamp limits v to [0, n-1]. Only observation ingestion clamps; pure
// indexing rejects.
func Clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n-1 {
		return n - 1
	}
	return v
}

func checkRange(arg string, v, n int) error {
	if v < 0 || v >= n {
		return &BoundsError{Arg: arg, Value: v, Bound: n}
	}
	return nil
}
