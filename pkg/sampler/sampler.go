// Package sampler generates synthetic map collections by scattering unit
// peaks over a box according to a spatial probability distribution.
package sampler

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"activitymaps/pkg/indexing"
	"activitymaps/pkg/maps"
	"activitymaps/pkg/models"
	"activitymaps/pkg/sparse"
)

// Distribution is a non-negative weighting of the voxels of a box. The zero
// value is the uniform distribution over whatever box it is used with.
type Distribution struct {
	box     indexing.Box
	weights []float64
}

// Uniform returns the uniform distribution.
func Uniform() Distribution { return Distribution{} }

// FromCollection uses the single map of c as voxel weights.
func FromCollection(c *maps.Collection) (Distribution, error) {
	if c.NMaps() != 1 {
		return Distribution{}, fmt.Errorf("%w: distribution collection holds %d maps, want 1", maps.ErrInvalidArgument, c.NMaps())
	}
	w, err := c.DenseMap(0)
	if err != nil {
		return Distribution{}, err
	}
	return newDistribution(c.Box(), w)
}

// FromVolume uses a dense volume as voxel weights.
func FromVolume(v *models.Volume) (Distribution, error) {
	if len(v.Data) != v.Box.NVoxels() {
		return Distribution{}, fmt.Errorf("%w: volume has %d values for box %v", maps.ErrInvalidArgument, len(v.Data), v.Box)
	}
	return newDistribution(v.Box, append([]float64(nil), v.Data...))
}

func newDistribution(box indexing.Box, w []float64) (Distribution, error) {
	var total float64
	for p, x := range w {
		if x < 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return Distribution{}, fmt.Errorf("%w: weight %v at voxel %d", maps.ErrInvalidArgument, x, p)
		}
		total += x
	}
	if total == 0 {
		return Distribution{}, fmt.Errorf("%w: distribution has no mass", maps.ErrInvalidArgument)
	}
	return Distribution{box: box, weights: w}, nil
}

// IsUniform reports whether d weights every voxel equally.
func (d Distribution) IsUniform() bool { return d.weights == nil }

// over returns the weights of d laid over box, which must match its own.
func (d Distribution) over(box indexing.Box) ([]float64, error) {
	if d.IsUniform() {
		w := make([]float64, box.NVoxels())
		for p := range w {
			w[p] = 1
		}
		return w, nil
	}
	if d.box != box {
		return nil, fmt.Errorf("%w: distribution box %v, template box %v", maps.ErrInvalidArgument, d.box, box)
	}
	return append([]float64(nil), d.weights...), nil
}

// Options controls Randomize.
type Options struct {
	Distribution Distribution

	// UseMask restricts peaks to the template's mask. Without it the result
	// carries no mask.
	UseMask bool

	Seed uint64
}

// Randomize draws nPeaks voxels independently from the distribution and
// assigns each peak to one of nMaps maps uniformly at random. Every peak adds
// a weight of 1, so collisions accumulate. The result shares the template's
// header and memory mode.
func Randomize(template *maps.Collection, nPeaks, nMaps int, opts Options) (*maps.Collection, error) {
	if nPeaks < 0 || nMaps < 0 || (nMaps == 0 && nPeaks > 0) {
		return nil, fmt.Errorf("%w: %d peaks over %d maps", maps.ErrInvalidArgument, nPeaks, nMaps)
	}
	h := template.Header()
	w, err := opts.Distribution.over(h.Box)
	if err != nil {
		return nil, err
	}
	if opts.UseMask {
		if h.Mask == nil {
			return nil, maps.ErrMissingMask
		}
		hasMass := false
		for p := range w {
			if !h.Mask.Contains(p) {
				w[p] = 0
			}
			hasMass = hasMass || w[p] > 0
		}
		if !hasMass {
			return nil, fmt.Errorf("%w: distribution has no mass inside the mask", maps.ErrInvalidArgument)
		}
	} else {
		h.Mask = nil
	}

	src := rand.NewSource(opts.Seed)
	voxels := distuv.NewCategorical(w, src)
	assign := rand.New(src)

	b := sparse.NewBuilder(h.Box.NVoxels(), nMaps)
	for i := 0; i < nPeaks; i++ {
		v := int(voxels.Rand())
		b.Add(v, assign.Intn(nMaps), 1)
	}
	return maps.FromMatrix(h, b.Build(), maps.WithMode(template.Mode()))
}
