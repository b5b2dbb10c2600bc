// Package stats computes summary statistics across the maps of a collection:
// peak counts, averages, variances and covariances, together with the
// per-map normalisation and smoothing transforms and a single-pass
// average/variance estimator for collections too large to square in memory.
//
// Every function reads an immutable snapshot of the collection's matrices and
// runs on the calling goroutine.
package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"activitymaps/pkg/maps"
	"activitymaps/pkg/sparse"
)

// Level selects voxel-level or atlas region-level maps.
type Level int

const (
	// Voxels uses the (n_voxels, n_maps) matrix.
	Voxels Level = iota
	// Regions uses the (n_labels, n_maps) atlas projection.
	Regions
)

func (l Level) String() string {
	switch l {
	case Voxels:
		return "voxels"
	case Regions:
		return "regions"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

func matrixAt(c *maps.Collection, level Level) (*sparse.Matrix, error) {
	switch level {
	case Voxels:
		return c.Maps(), nil
	case Regions:
		return c.RegionMaps()
	default:
		return nil, fmt.Errorf("%w: unknown level %v", maps.ErrInvalidArgument, level)
	}
}

// derive wraps statistics computed from c in a collection sharing its header
// and memory mode. A nil regions matrix is projected from voxels.
func derive(c *maps.Collection, voxels, regions *sparse.Matrix) (*maps.Collection, error) {
	return maps.FromMatrices(c.Header(), voxels, regions, maps.WithMode(c.Mode()))
}

// columnOf wraps v as a one-column matrix.
func columnOf(v *sparse.Vector) *sparse.Matrix {
	m, err := sparse.FromColumns(v.Len(), []*sparse.Vector{v})
	if err != nil {
		panic(err)
	}
	return m
}

func column(d []float64) *sparse.Matrix {
	return columnOf(sparse.VectorFromDense(d))
}

// PeakCounts returns the total weight of each map.
func PeakCounts(c *maps.Collection, level Level) ([]float64, error) {
	m, err := matrixAt(c, level)
	if err != nil {
		return nil, err
	}
	return m.ColSums(), nil
}

// Sum returns the total weight over all maps.
func Sum(c *maps.Collection, level Level) (float64, error) {
	m, err := matrixAt(c, level)
	if err != nil {
		return 0, err
	}
	return m.Sum(), nil
}

// Max returns the largest entry over all maps, counting implicit zeros.
func Max(c *maps.Collection, level Level) (float64, error) {
	m, err := matrixAt(c, level)
	if err != nil {
		return 0, err
	}
	return m.Max(), nil
}

// SummedMap returns a single map holding the sum of every map.
func SummedMap(c *maps.Collection) (*maps.Collection, error) {
	return derive(c, column(c.Maps().RowSums()), nil)
}

func average(m *sparse.Matrix) *sparse.Matrix {
	_, n := m.Dims()
	avg := m.RowSums()
	for i := range avg {
		avg[i] /= float64(n)
	}
	return column(avg)
}

// Average returns the elementwise mean map. The region-level average is the
// average of the region maps.
func Average(c *maps.Collection) (*maps.Collection, error) {
	if c.NMaps() == 0 {
		return nil, fmt.Errorf("%w: average of an empty collection", maps.ErrInsufficientSamples)
	}
	return derive(c, average(c.Maps()), nil)
}

// variance returns avg(M⊙M) - avg(M)², scaled by n/(n-1) when unbiased.
func variance(m *sparse.Matrix, biased bool) (*sparse.Matrix, error) {
	rows, n := m.Dims()
	if n == 0 || (!biased && n < 2) {
		return nil, fmt.Errorf("%w: variance over %d maps (biased=%t)", maps.ErrInsufficientSamples, n, biased)
	}
	sum := make([]float64, rows)
	sq := make([]float64, rows)
	m.DoNonZero(func(i, _ int, v float64) {
		sum[i] += v
		sq[i] += v * v
	})
	nf := float64(n)
	scale := 1.0
	if !biased {
		scale = nf / (nf - 1)
	}
	out := make([]float64, rows)
	for i := range out {
		avg := sum[i] / nf
		out[i] = (sq[i]/nf - avg*avg) * scale
	}
	return column(out), nil
}

// Variance returns the elementwise variance map. Unbiased variance needs at
// least two maps. With an atlas the region-level variance is computed from
// the region maps, not projected.
func Variance(c *maps.Collection, biased bool) (*maps.Collection, error) {
	v, err := variance(c.Maps(), biased)
	if err != nil {
		return nil, err
	}
	var regions *sparse.Matrix
	if c.HasAtlas() {
		r, err := c.RegionMaps()
		if err != nil {
			return nil, err
		}
		if regions, err = variance(r, biased); err != nil {
			return nil, err
		}
	}
	return derive(c, v, regions)
}

// Summary describes the peak counts of a collection.
type Summary struct {
	NMaps       int
	NVoxels     int
	NonZero     int
	TotalWeight float64
	MaxValue    float64
	MeanPeaks   float64
	StdPeaks    float64
}

// Summarize computes a Summary of c.
func Summarize(c *maps.Collection) Summary {
	m := c.Maps()
	s := Summary{
		NMaps:       c.NMaps(),
		NVoxels:     c.NVoxels(),
		NonZero:     m.NNZ(),
		TotalWeight: m.Sum(),
	}
	if s.NMaps == 0 {
		return s
	}
	s.MaxValue = m.Max()
	peaks := m.ColSums()
	s.MeanPeaks = stat.Mean(peaks, nil)
	if s.NMaps > 1 {
		s.StdPeaks = stat.StdDev(peaks, nil)
	}
	if math.IsNaN(s.StdPeaks) {
		s.StdPeaks = 0
	}
	return s
}
