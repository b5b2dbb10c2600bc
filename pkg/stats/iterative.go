package stats

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/floats"

	"activitymaps/pkg/gaussian"
	"activitymaps/pkg/maps"
	"activitymaps/pkg/sparse"
)

// IterativeOptions controls IterativeAverageVariance.
type IterativeOptions struct {
	// Sigma smooths each map just before it is folded in. Zero disables
	// smoothing.
	Sigma float64

	Biased bool

	// SkipVariance computes only the average.
	SkipVariance bool

	// Logger receives per-map progress at debug level. Nil uses
	// slog.Default().
	Logger *slog.Logger
}

// IterativeResult holds the outputs of IterativeAverageVariance. Variance is
// nil when it was skipped.
type IterativeResult struct {
	Average  *maps.Collection
	Variance *maps.Collection
}

// coefficients returns (a, b, c) such that, after folding the k-th map,
//
//	var_k = a·var_{k-1} + b·(avg_{k-1} - avg_k)² + c·(map_k - avg_k)²
func coefficients(k int, biased bool) (a, b, c float64) {
	kf := float64(k)
	if biased {
		return (kf - 1) / kf, (kf - 1) / kf, 1 / kf
	}
	return (kf - 2) / (kf - 1), 1, 1 / (kf - 1)
}

// sparseFold accumulates average and variance over sparse vectors.
type sparseFold struct {
	k        int
	biased   bool
	variance bool
	avg, vr  *sparse.Vector
}

func (f *sparseFold) add(x *sparse.Vector) {
	f.k++
	if f.k == 1 {
		f.avg = x
		f.vr = sparse.NewVector(x.Len())
		return
	}
	prev := f.avg
	f.avg = sparse.Combine(1, prev, 1/float64(f.k), sparse.Combine(1, x, -1, prev))
	if !f.variance {
		return
	}
	a, b, c := coefficients(f.k, f.biased)
	d2 := sparse.Combine(1, prev, -1, f.avg).Square()
	r2 := sparse.Combine(1, x, -1, f.avg).Square()
	f.vr = sparse.Combine(1, sparse.Combine(a, f.vr, b, d2), c, r2)
}

// denseFold is sparseFold over dense slices; it holds three box-sized
// buffers besides the map being folded.
type denseFold struct {
	k        int
	biased   bool
	variance bool
	avg, vr  []float64
	prev     []float64
	tmp      []float64
}

func (f *denseFold) add(x []float64) {
	f.k++
	if f.k == 1 {
		f.avg = append([]float64(nil), x...)
		f.vr = make([]float64, len(x))
		f.prev = make([]float64, len(x))
		f.tmp = make([]float64, len(x))
		return
	}
	copy(f.prev, f.avg)
	floats.SubTo(f.tmp, x, f.prev)
	floats.AddScaled(f.avg, 1/float64(f.k), f.tmp)
	if !f.variance {
		return
	}
	a, b, c := coefficients(f.k, f.biased)
	floats.Scale(a, f.vr)

	floats.SubTo(f.tmp, f.prev, f.avg)
	floats.Mul(f.tmp, f.tmp)
	floats.AddScaled(f.vr, b, f.tmp)

	floats.SubTo(f.tmp, x, f.avg)
	floats.Mul(f.tmp, f.tmp)
	floats.AddScaled(f.vr, c, f.tmp)
}

// IterativeAverageVariance computes the average and variance maps in one
// pass over the maps, each optionally smoothed first, keeping only a
// constant number of maps resident. Memory-saving collections are folded
// in sparse form and Cached collections over the dense cache. With an atlas
// the region-level results are folded from the projection of each map.
//
// The variance of a single map is zero whatever the bias.
func IterativeAverageVariance(c *maps.Collection, opts IterativeOptions) (*IterativeResult, error) {
	n := c.NMaps()
	if n == 0 {
		return nil, fmt.Errorf("%w: iterative average of an empty collection", maps.ErrInsufficientSamples)
	}
	if err := checkSigma(opts.Sigma); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "stats"))
	logger.Debug("iterative average/variance",
		slog.Int("maps", n),
		slog.Float64("sigma", opts.Sigma),
		slog.Bool("biased", opts.Biased),
		slog.String("mode", c.Mode().String()))

	withVariance := !opts.SkipVariance
	voxels := &sparseFold{biased: opts.Biased, variance: withVariance}
	dense := &denseFold{biased: opts.Biased, variance: withVariance}
	var regions *sparseFold
	var filter *sparse.Matrix
	if p, err := c.Projector(); err == nil {
		regions = &sparseFold{biased: opts.Biased, variance: withVariance}
		filter = p.Filter()
	}

	cached := c.Mode() == maps.Cached
	for j := 0; j < n; j++ {
		var x *sparse.Vector
		if cached {
			data, err := denseInput(c, j, opts.Sigma)
			if err != nil {
				return nil, err
			}
			dense.add(data)
			if regions != nil {
				x = sparse.VectorFromDense(data)
			}
		} else {
			var err error
			if x, err = sparseInput(c, j, opts.Sigma); err != nil {
				return nil, err
			}
			voxels.add(x)
		}
		if regions != nil {
			r, err := project(filter, x)
			if err != nil {
				return nil, err
			}
			regions.add(r)
		}
		logger.Debug("folded map", slog.Int("map", j+1), slog.Int("of", n))
	}

	avg, vr := voxels.avg, voxels.vr
	if cached {
		avg, vr = sparse.VectorFromDense(dense.avg), sparse.VectorFromDense(dense.vr)
	}

	res := &IterativeResult{}
	var regAvg, regVar *sparse.Matrix
	if regions != nil {
		regAvg, regVar = columnOf(regions.avg), columnOf(regions.vr)
	}
	var err error
	if res.Average, err = derive(c, columnOf(avg), regAvg); err != nil {
		return nil, err
	}
	if withVariance {
		if res.Variance, err = derive(c, columnOf(vr), regVar); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// sparseInput returns map j in sparse form, smoothed when sigma > 0.
func sparseInput(c *maps.Collection, j int, sigma float64) (*sparse.Vector, error) {
	if sigma == 0 {
		return c.Column(j)
	}
	data, err := c.DenseMap(j)
	if err != nil {
		return nil, err
	}
	return smoothMap(c, data, sigma)
}

// denseInput returns map j from the dense cache, smoothed when sigma > 0.
func denseInput(c *maps.Collection, j int, sigma float64) ([]float64, error) {
	data, err := c.DenseMap(j)
	if err != nil || sigma == 0 {
		return data, err
	}
	return gaussian.Filter3D(data, c.Box(), sigma)
}

func project(filter *sparse.Matrix, x *sparse.Vector) (*sparse.Vector, error) {
	m, err := filter.Mul(columnOf(x))
	if err != nil {
		return nil, err
	}
	return m.Col(0), nil
}
