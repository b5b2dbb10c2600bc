package stats

import (
	"errors"
	"fmt"

	"activitymaps/pkg/gaussian"
	"activitymaps/pkg/maps"
	"activitymaps/pkg/sparse"
)

func normalized(c *maps.Collection) (*sparse.Matrix, error) {
	peaks := c.Maps().ColSums()
	for j, p := range peaks {
		if p != 0 {
			peaks[j] = 1 / p
		}
	}
	return c.Maps().ScaleCols(peaks)
}

// Normalize returns c with every map divided by its voxel-level peak count.
// Region-level maps follow through the same divisor. Maps with no weight
// stay zero.
func Normalize(c *maps.Collection) (*maps.Collection, error) {
	m, err := normalized(c)
	if err != nil {
		return nil, err
	}
	return c.WithMaps(m)
}

// NormalizeInPlace is Normalize applied to c itself.
func NormalizeInPlace(c *maps.Collection) error {
	m, err := normalized(c)
	if err != nil {
		return err
	}
	return c.Replace(m)
}

// smoothMap blurs dense map data over box with sigma.
func smoothMap(c *maps.Collection, data []float64, sigma float64) (*sparse.Vector, error) {
	out, err := gaussian.Filter3D(data, c.Box(), sigma)
	if err != nil {
		if errors.Is(err, gaussian.ErrNegativeSigma) {
			return nil, fmt.Errorf("%w: %w", maps.ErrInvalidArgument, err)
		}
		return nil, err
	}
	return sparse.VectorFromDense(out), nil
}

func checkSigma(sigma float64) error {
	if _, err := gaussian.Kernel(sigma); err != nil {
		return fmt.Errorf("%w: %w", maps.ErrInvalidArgument, err)
	}
	return nil
}

// smoothed returns the maps of c with the selected maps blurred. A nil
// result means nothing changed.
func smoothed(c *maps.Collection, sigma float64, ids []int) (*sparse.Matrix, error) {
	if err := checkSigma(sigma); err != nil {
		return nil, err
	}
	selected := make(map[int]bool, len(ids))
	for _, j := range ids {
		if _, err := c.Column(j); err != nil {
			return nil, err
		}
		selected[j] = true
	}
	if sigma == 0 {
		return nil, nil
	}

	cols := make([]*sparse.Vector, c.NMaps())
	for j := range cols {
		if len(ids) > 0 && !selected[j] {
			cols[j] = c.Maps().Col(j)
			continue
		}
		// DenseMap serves Cached collections from the dense cache.
		data, err := c.DenseMap(j)
		if err != nil {
			return nil, err
		}
		if cols[j], err = smoothMap(c, data, sigma); err != nil {
			return nil, err
		}
	}
	return sparse.FromColumns(c.NVoxels(), cols)
}

// Smooth returns c with a Gaussian blur of standard deviation sigma voxels
// applied to the maps in ids, or to every map when ids is empty. A zero
// sigma returns an unchanged copy.
func Smooth(c *maps.Collection, sigma float64, ids ...int) (*maps.Collection, error) {
	m, err := smoothed(c, sigma, ids)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return c.Clone(), nil
	}
	return c.WithMaps(m)
}

// SmoothInPlace is Smooth applied to c itself.
func SmoothInPlace(c *maps.Collection, sigma float64, ids ...int) error {
	m, err := smoothed(c, sigma, ids)
	if err != nil || m == nil {
		return err
	}
	return c.Replace(m)
}
