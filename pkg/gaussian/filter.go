// Package gaussian implements separable Gaussian smoothing of Fortran-ordered
// volumes. Kernel radius and boundary handling follow the usual image
// processing defaults: the kernel is truncated at 4 standard deviations and
// samples beyond an edge are mirrored (d c b a | a b c d | d c b a).
package gaussian

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/conv"
	"gonum.org/v1/gonum/floats"

	"activitymaps/pkg/indexing"
)

// Truncate is the kernel half-width in standard deviations.
const Truncate = 4.0

// ErrNegativeSigma is returned for a negative standard deviation.
var ErrNegativeSigma = errors.New("gaussian: negative sigma")

// Radius returns the kernel half-width for sigma, in voxels.
func Radius(sigma float64) int {
	return int(Truncate*sigma + 0.5)
}

// Kernel returns the normalised 1-D kernel of length 2*Radius(sigma)+1.
// A zero sigma yields the identity kernel {1}.
func Kernel(sigma float64) ([]float64, error) {
	if sigma < 0 || math.IsNaN(sigma) {
		return nil, fmt.Errorf("%w: %v", ErrNegativeSigma, sigma)
	}
	r := Radius(sigma)
	if sigma == 0 || r == 0 {
		return []float64{1}, nil
	}
	k := make([]float64, 2*r+1)
	s2 := sigma * sigma
	for x := -r; x <= r; x++ {
		k[x+r] = math.Exp(-0.5 * float64(x*x) / s2)
	}
	floats.Scale(1/floats.Sum(k), k)
	return k, nil
}

// reflect maps an out-of-range index onto [0, n) by mirroring about the
// edges, repeating the edge sample.
func reflect(i, n int) int {
	if i >= 0 && i < n {
		return i
	}
	period := 2 * n
	m := i % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - 1 - m
	}
	return m
}

// Filter3D smooths data, laid out over box, along each of the three axes in
// turn. The input is not modified.
func Filter3D(data []float64, box indexing.Box, sigma float64) ([]float64, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if len(data) != box.NVoxels() {
		return nil, fmt.Errorf("gaussian: data has %d values, box %v needs %d", len(data), box, box.NVoxels())
	}
	k, err := Kernel(sigma)
	if err != nil {
		return nil, err
	}
	out := append([]float64(nil), data...)
	if len(k) == 1 {
		return out, nil
	}

	dims := [3]int{box.Ni, box.Nj, box.Nk}
	strides := [3]int{1, box.Ni, box.Ni * box.Nj}
	tmp := make([]float64, len(out))
	for axis := 0; axis < 3; axis++ {
		if err := filterAxis(tmp, out, dims, strides, axis, k); err != nil {
			return nil, err
		}
		out, tmp = tmp, out
	}
	return out, nil
}

// filterAxis correlates every line of src along axis with k, writing dst.
// Each line is mirrored by the kernel radius on both sides and convolved
// directly; k is symmetric, so convolution and correlation agree.
func filterAxis(dst, src []float64, dims, strides [3]int, axis int, k []float64) error {
	n := dims[axis]
	stride := strides[axis]
	r := len(k) / 2
	padded := make([]float64, n+2*r)

	// The two remaining axes enumerate the line starts.
	a, b := (axis+1)%3, (axis+2)%3
	for u := 0; u < dims[a]; u++ {
		for v := 0; v < dims[b]; v++ {
			base := u*strides[a] + v*strides[b]
			for i := range padded {
				padded[i] = src[base+reflect(i-r, n)*stride]
			}
			full, err := conv.Direct(padded, k)
			if err != nil {
				return fmt.Errorf("gaussian: filter axis %d: %w", axis, err)
			}
			// full[q] is centred on padded[q-r], so sample i sits at i+2r.
			for i := 0; i < n; i++ {
				dst[base+i*stride] = full[i+2*r]
			}
		}
	}
	return nil
}
