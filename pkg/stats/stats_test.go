package stats

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activitymaps/pkg/atlas"
	"activitymaps/pkg/indexing"
	"activitymaps/pkg/maps"
	"activitymaps/pkg/models"
	"activitymaps/pkg/sparse"
)

const tol = 1e-6

func header(t *testing.T, box indexing.Box, a *atlas.Atlas) maps.Header {
	t.Helper()
	var opts []maps.HeaderOption
	if a != nil {
		opts = append(opts, maps.WithAtlas(a))
	}
	h, err := maps.NewHeader(box, models.Identity(), opts...)
	require.NoError(t, err)
	return h
}

func randomAtlas(t *testing.T, rng *rand.Rand, box indexing.Box, nLabels int) *atlas.Atlas {
	t.Helper()
	data := make([]int, box.NVoxels())
	for p := range data {
		data[p] = rng.Intn(nLabels)
	}
	labels := make([]string, nLabels)
	for i := range labels {
		labels[i] = string(rune('a' + i))
	}
	a, err := atlas.New(box, data, labels)
	require.NoError(t, err)
	return a
}

func randomMatrix(rng *rand.Rand, rows, cols int, density float64) *sparse.Matrix {
	b := sparse.NewBuilder(rows, cols)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			if rng.Float64() < density {
				b.Add(i, j, rng.Float64()*10)
			}
		}
	}
	return b.Build()
}

// fromColumns builds a collection whose map j holds value cols[j][p] at
// voxel p.
func fromColumns(t *testing.T, h maps.Header, cols [][]float64, opts ...maps.Option) *maps.Collection {
	t.Helper()
	vs := make([]*sparse.Vector, len(cols))
	for j, c := range cols {
		vs[j] = sparse.VectorFromDense(c)
	}
	m, err := sparse.FromColumns(h.Box.NVoxels(), vs)
	require.NoError(t, err)
	c, err := maps.FromMatrix(h, m, opts...)
	require.NoError(t, err)
	return c
}

func first(t *testing.T, c *maps.Collection) []float64 {
	t.Helper()
	require.Equal(t, 1, c.NMaps())
	return c.Maps().ColDense(nil, 0)
}

func firstRegion(t *testing.T, c *maps.Collection) []float64 {
	t.Helper()
	r, err := c.RegionMaps()
	require.NoError(t, err)
	return r.ColDense(nil, 0)
}

func requireClose(t *testing.T, want, got []float64, msgAndArgs ...interface{}) {
	t.Helper()
	require.Len(t, got, len(want), msgAndArgs...)
	for i := range want {
		require.InDelta(t, want[i], got[i], tol, msgAndArgs...)
	}
}

var modes = []maps.Mode{maps.MemorySaving, maps.Cached}

func TestScenarioThreeMaps(t *testing.T) {
	box := indexing.Box{Ni: 2, Nj: 1, Nk: 1}
	h := header(t, box, nil)

	for _, mode := range modes {
		c := fromColumns(t, h, [][]float64{{1, 0}, {3, 0}, {5, 0}}, maps.WithMode(mode))

		avg, err := Average(c)
		require.NoError(t, err)
		requireClose(t, []float64{3, 0}, first(t, avg))

		biased, err := Variance(c, true)
		require.NoError(t, err)
		requireClose(t, []float64{8.0 / 3, 0}, first(t, biased))

		unbiased, err := Variance(c, false)
		require.NoError(t, err)
		requireClose(t, []float64{4, 0}, first(t, unbiased))

		for _, b := range []bool{true, false} {
			res, err := IterativeAverageVariance(c, IterativeOptions{Biased: b})
			require.NoError(t, err)
			requireClose(t, []float64{3, 0}, first(t, res.Average), mode.String())
			want := 4.0
			if b {
				want = 8.0 / 3
			}
			requireClose(t, []float64{want, 0}, first(t, res.Variance), mode.String())
			assert.Equal(t, mode, res.Variance.Mode())
		}
	}
}

func TestBatchIterativeEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 40; trial++ {
		box := indexing.Box{Ni: 1 + rng.Intn(10), Nj: 1 + rng.Intn(10), Nk: 1 + rng.Intn(10)}
		n := 1 + rng.Intn(5)
		var a *atlas.Atlas
		if trial%2 == 0 {
			a = randomAtlas(t, rng, box, 1+rng.Intn(4))
		}
		h := header(t, box, a)
		m := randomMatrix(rng, box.NVoxels(), n, 0.3)

		for _, mode := range modes {
			c, err := maps.FromMatrix(h, m, maps.WithMode(mode))
			require.NoError(t, err)

			avg, err := Average(c)
			require.NoError(t, err)

			for _, biased := range []bool{true, false} {
				res, err := IterativeAverageVariance(c, IterativeOptions{Biased: biased})
				require.NoError(t, err)
				requireClose(t, first(t, avg), first(t, res.Average), "trial %d average", trial)

				if !biased && n < 2 {
					_, err := Variance(c, biased)
					require.ErrorIs(t, err, maps.ErrInsufficientSamples)
					for _, v := range first(t, res.Variance) {
						require.Equal(t, 0.0, v)
					}
					continue
				}
				vr, err := Variance(c, biased)
				require.NoError(t, err)
				requireClose(t, first(t, vr), first(t, res.Variance), "trial %d variance biased=%t", trial, biased)

				if a != nil {
					requireClose(t, firstRegion(t, avg), firstRegion(t, res.Average), "trial %d region average", trial)
					requireClose(t, firstRegion(t, vr), firstRegion(t, res.Variance), "trial %d region variance", trial)
				}
			}
		}
	}
}

func TestIterativeWithSmoothing(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	box := indexing.Box{Ni: 6, Nj: 5, Nk: 4}
	h := header(t, box, randomAtlas(t, rng, box, 3))
	m := randomMatrix(rng, box.NVoxels(), 4, 0.1)

	for _, mode := range modes {
		c, err := maps.FromMatrix(h, m, maps.WithMode(mode))
		require.NoError(t, err)

		smoothed, err := Smooth(c, 1.5)
		require.NoError(t, err)
		avg, err := Average(smoothed)
		require.NoError(t, err)
		vr, err := Variance(smoothed, false)
		require.NoError(t, err)

		res, err := IterativeAverageVariance(c, IterativeOptions{Sigma: 1.5})
		require.NoError(t, err)
		requireClose(t, first(t, avg), first(t, res.Average))
		requireClose(t, first(t, vr), first(t, res.Variance))
		requireClose(t, firstRegion(t, vr), firstRegion(t, res.Variance))

		only, err := IterativeAverageVariance(c, IterativeOptions{Sigma: 1.5, SkipVariance: true})
		require.NoError(t, err)
		assert.Nil(t, only.Variance)
		requireClose(t, first(t, avg), first(t, only.Average))
	}
}

func TestZeroAndConstantCollections(t *testing.T) {
	box := indexing.Box{Ni: 3, Nj: 2, Nk: 2}
	h := header(t, box, nil)

	for _, mode := range modes {
		zeros, err := maps.Zeros(h, 4, maps.WithMode(mode))
		require.NoError(t, err)

		ones := make([][]float64, 4)
		for j := range ones {
			ones[j] = make([]float64, box.NVoxels())
			for p := range ones[j] {
				ones[j][p] = 1
			}
		}
		constant := fromColumns(t, h, ones, maps.WithMode(mode))

		for _, biased := range []bool{true, false} {
			avg, err := Average(zeros)
			require.NoError(t, err)
			assert.Equal(t, 0, avg.Maps().NNZ())
			vr, err := Variance(zeros, biased)
			require.NoError(t, err)
			assert.Equal(t, 0, vr.Maps().NNZ())

			res, err := IterativeAverageVariance(zeros, IterativeOptions{Biased: biased})
			require.NoError(t, err)
			assert.Equal(t, 0, res.Average.Maps().NNZ())
			assert.Equal(t, 0, res.Variance.Maps().NNZ())

			avg, err = Average(constant)
			require.NoError(t, err)
			assert.Equal(t, ones[0], first(t, avg))
			vr, err = Variance(constant, biased)
			require.NoError(t, err)
			assert.Equal(t, 0, vr.Maps().NNZ())

			res, err = IterativeAverageVariance(constant, IterativeOptions{Biased: biased})
			require.NoError(t, err)
			assert.Equal(t, ones[0], first(t, res.Average))
			assert.Equal(t, 0, res.Variance.Maps().NNZ())
		}
	}
}

func TestInsufficientSamples(t *testing.T) {
	h := header(t, indexing.Box{Ni: 2, Nj: 2, Nk: 2}, nil)
	empty, err := maps.Empty(h)
	require.NoError(t, err)

	_, err = Average(empty)
	require.ErrorIs(t, err, maps.ErrInsufficientSamples)
	_, err = Variance(empty, true)
	require.ErrorIs(t, err, maps.ErrInsufficientSamples)
	_, err = IterativeAverageVariance(empty, IterativeOptions{})
	require.ErrorIs(t, err, maps.ErrInsufficientSamples)
	_, err = Covariance(empty, CovarianceOptions{Biased: true})
	require.ErrorIs(t, err, maps.ErrInsufficientSamples)

	one := fromColumns(t, h, [][]float64{{1, 2, 0, 0, 0, 0, 0, 3}})
	_, err = Variance(one, false)
	require.ErrorIs(t, err, maps.ErrInsufficientSamples)
	_, err = Covariance(one, CovarianceOptions{})
	require.ErrorIs(t, err, maps.ErrInsufficientSamples)

	res, err := IterativeAverageVariance(one, IterativeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Variance.Maps().NNZ())
	assert.Equal(t, []float64{1, 2, 0, 0, 0, 0, 0, 3}, first(t, res.Average))
}

func TestPeakCountsAndSummary(t *testing.T) {
	box := indexing.Box{Ni: 2, Nj: 2, Nk: 1}
	a, err := atlas.New(box, []int{0, 1, 1, 2}, []string{"bg", "x", "y"})
	require.NoError(t, err)
	h := header(t, box, a)
	c := fromColumns(t, h, [][]float64{{1, 2, 0, 0}, {0, 0, 4, 5}, {0, 0, 0, 0}})

	peaks, err := PeakCounts(c, Voxels)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 9, 0}, peaks)

	regionPeaks, err := PeakCounts(c, Regions)
	require.NoError(t, err)
	assert.Equal(t, peaks, regionPeaks)

	total, err := Sum(c, Regions)
	require.NoError(t, err)
	assert.Equal(t, 12.0, total)

	maxVoxel, err := Max(c, Voxels)
	require.NoError(t, err)
	assert.Equal(t, 5.0, maxVoxel)
	maxRegion, err := Max(c, Regions)
	require.NoError(t, err)
	assert.Equal(t, 5.0, maxRegion)

	summed, err := SummedMap(c)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 4, 5}, first(t, summed))
	assert.Equal(t, []float64{1, 6, 5}, firstRegion(t, summed))

	s := Summarize(c)
	assert.Equal(t, 3, s.NMaps)
	assert.Equal(t, 4, s.NVoxels)
	assert.Equal(t, 4, s.NonZero)
	assert.Equal(t, 12.0, s.TotalWeight)
	assert.Equal(t, 5.0, s.MaxValue)
	assert.InDelta(t, 4.0, s.MeanPeaks, 1e-12)
	assert.InDelta(t, math.Sqrt(21), s.StdPeaks, 1e-12)

	plain := fromColumns(t, header(t, box, nil), [][]float64{{1, 0, 0, 0}})
	_, err = PeakCounts(plain, Regions)
	require.ErrorIs(t, err, maps.ErrMissingAtlas)
	_, err = Covariance(plain, CovarianceOptions{Level: Regions, Biased: true})
	require.ErrorIs(t, err, maps.ErrMissingAtlas)
}

func TestNormalize(t *testing.T) {
	box := indexing.Box{Ni: 2, Nj: 2, Nk: 1}
	a, err := atlas.New(box, []int{0, 1, 1, 2}, []string{"bg", "x", "y"})
	require.NoError(t, err)
	c := fromColumns(t, header(t, box, a), [][]float64{{1, 3, 0, 0}, {0, 0, 0, 0}, {0, 2, 2, 4}})

	norm, err := Normalize(c)
	require.NoError(t, err)
	peaks, err := PeakCounts(norm, Voxels)
	require.NoError(t, err)
	requireClose(t, []float64{1, 0, 1}, peaks)
	regionPeaks, err := PeakCounts(norm, Regions)
	require.NoError(t, err)
	requireClose(t, []float64{1, 0, 1}, regionPeaks)

	r, err := norm.RegionMaps()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r.At(1, 2), 1e-12)
	assert.InDelta(t, 0.5, r.At(2, 2), 1e-12)

	again, err := Normalize(norm)
	require.NoError(t, err)
	for j := 0; j < 3; j++ {
		want, _ := norm.DenseMap(j)
		got, _ := again.DenseMap(j)
		requireClose(t, want, got)
	}

	before, _ := c.DenseMap(0)
	assert.Equal(t, []float64{1, 3, 0, 0}, before)
	require.NoError(t, NormalizeInPlace(c))
	after, _ := c.DenseMap(0)
	requireClose(t, []float64{0.25, 0.75, 0, 0}, after)
}

func TestSmooth(t *testing.T) {
	box := indexing.Box{Ni: 9, Nj: 9, Nk: 9}
	h := header(t, box, nil)
	delta := make([]float64, box.NVoxels())
	delta[box.Flat(4, 4, 4)] = 1
	other := make([]float64, box.NVoxels())
	other[box.Flat(1, 2, 3)] = 2

	for _, mode := range modes {
		c := fromColumns(t, h, [][]float64{delta, other}, maps.WithMode(mode))

		same, err := Smooth(c, 0)
		require.NoError(t, err)
		assert.Equal(t, c.Maps().NNZ(), same.Maps().NNZ())

		s, err := Smooth(c, 1, 0)
		require.NoError(t, err)
		peaks, err := PeakCounts(s, Voxels)
		require.NoError(t, err)
		requireClose(t, []float64{1, 2}, peaks)
		got, _ := s.DenseMap(0)
		assert.Less(t, got[box.Flat(4, 4, 4)], 1.0)
		assert.Greater(t, got[box.Flat(5, 4, 4)], 0.0)
		untouched, _ := s.DenseMap(1)
		assert.Equal(t, other, untouched)

		_, err = Smooth(c, -1)
		require.ErrorIs(t, err, maps.ErrInvalidArgument)
		_, err = Smooth(c, 1, 2)
		require.ErrorIs(t, err, indexing.ErrOutOfBounds)

		require.NoError(t, SmoothInPlace(c, 1))
		got, _ = c.DenseMap(1)
		assert.Less(t, got[box.Flat(1, 2, 3)], 2.0)
	}
}
