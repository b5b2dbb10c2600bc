package stats

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"activitymaps/pkg/atlas"
	"activitymaps/pkg/maps"
)

// Shrinkage selects a covariance shrinkage estimator.
type Shrinkage int

const (
	// ShrinkNone returns the empirical covariance.
	ShrinkNone Shrinkage = iota
	// ShrinkLedoitWolf blends the empirical covariance with a scaled
	// identity using the Ledoit-Wolf intensity.
	ShrinkLedoitWolf
)

// CovarianceOptions controls Covariance. Region level is the intended use;
// voxel-level matrices are quadratic in the voxel count.
type CovarianceOptions struct {
	Level  Level
	Biased bool
	Shrink Shrinkage

	// IgnoreBackground zeroes the background region before the estimate and
	// drops its label. Row and column 0 of the result stay zero, shrinkage
	// included. Region level only.
	IgnoreBackground bool
}

// CovarianceMatrix is a covariance matrix between voxels or regions, the
// observations being the maps.
type CovarianceMatrix struct {
	Matrix *mat.SymDense

	// Labels names each row at region level. Nil at voxel level.
	Labels []string

	// Shrinkage is the blend intensity applied, zero without shrinkage.
	Shrinkage float64
}

// Covariance estimates
//
//	S = M·Mᵀ/(n-ddof) - (M·1/(n-ddof))·(M·1/n)ᵀ
//
// with ddof 0 when biased and 1 otherwise.
func Covariance(c *maps.Collection, opts CovarianceOptions) (*CovarianceMatrix, error) {
	m, err := matrixAt(c, opts.Level)
	if err != nil {
		return nil, err
	}
	var labels []string
	if opts.Level == Regions {
		labels = c.Header().Atlas.Labels()
		if opts.IgnoreBackground {
			m = m.SetRowZero(atlas.Background)
			labels = labels[1:]
		}
	}

	p, n := m.Dims()
	ddof := 1
	if opts.Biased {
		ddof = 0
	}
	if n-ddof < 1 {
		return nil, fmt.Errorf("%w: covariance over %d maps (biased=%t)", maps.ErrInsufficientSamples, n, opts.Biased)
	}

	x := m.ToDense()
	s := mat.NewSymDense(p, nil)
	s.SymOuterK(1/float64(n-ddof), x)
	r := mat.NewVecDense(p, m.RowSums())
	s.SymRankOne(s, -1/(float64(n-ddof)*float64(n)), r)

	cov := &CovarianceMatrix{Matrix: s, Labels: labels}
	switch opts.Shrink {
	case ShrinkNone:
	case ShrinkLedoitWolf:
		// A dropped background row takes no part in the estimate and stays zero.
		lo := 0
		if opts.Level == Regions && opts.IgnoreBackground {
			lo = atlas.Background + 1
		}
		if lo >= p {
			break
		}
		cov.Shrinkage = ledoitWolf(mat.DenseCopyOf(x.Slice(lo, p, 0, n)))
		shrink(s.SliceSym(lo, p).(*mat.SymDense), cov.Shrinkage)
	default:
		return nil, fmt.Errorf("%w: unknown shrinkage %d", maps.ErrInvalidArgument, opts.Shrink)
	}
	return cov, nil
}

// shrink replaces s with (1-delta)·s + delta·mu·I, mu = trace(s)/p.
func shrink(s *mat.SymDense, delta float64) {
	if delta == 0 {
		return
	}
	p := s.SymmetricDim()
	mu := mat.Trace(s) / float64(p)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := (1 - delta) * s.At(i, j)
			if i == j {
				v += delta * mu
			}
			s.SetSym(i, j, v)
		}
	}
}

// ledoitWolf returns the shrinkage intensity for the observations held in
// the columns of x (variables in rows).
func ledoitWolf(x *mat.Dense) float64 {
	p, n := x.Dims()
	if p == 1 {
		return 0
	}

	// Centre each variable over the observations.
	xc := mat.DenseCopyOf(x)
	for f := 0; f < p; f++ {
		row := xc.RawRowView(f)
		var mean float64
		for _, v := range row {
			mean += v
		}
		mean /= float64(n)
		for i := range row {
			row[i] -= mean
		}
	}

	nf, pf := float64(n), float64(p)
	var trace float64
	obsNorm := make([]float64, n)
	for f := 0; f < p; f++ {
		for i, v := range xc.RawRowView(f) {
			trace += v * v
			obsNorm[i] += v * v
		}
	}
	trace /= nf
	mu := trace / pf

	var beta float64
	for _, v := range obsNorm {
		beta += v * v
	}

	var gram mat.SymDense
	gram.SymOuterK(1, xc)
	var delta float64
	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			g := gram.At(i, j)
			delta += g * g
		}
	}
	delta /= nf * nf

	beta = (beta/nf - delta) / (pf * nf)
	delta = (delta - 2*mu*trace + pf*mu*mu) / pf
	if delta <= 0 {
		return 0
	}
	if beta > delta {
		beta = delta
	}
	if beta <= 0 {
		return 0
	}
	return beta / delta
}
