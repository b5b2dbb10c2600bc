package atlas

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"activitymaps/pkg/indexing"
	"activitymaps/pkg/sparse"
)

func randomAtlas(t *testing.T, rng *rand.Rand, box indexing.Box, nLabels int) *Atlas {
	t.Helper()
	data := make([]int, box.NVoxels())
	for p := range data {
		data[p] = rng.Intn(nLabels)
	}
	labels := make([]string, nLabels)
	for i := range labels {
		labels[i] = string(rune('a' + i))
	}
	a, err := New(box, data, labels)
	require.NoError(t, err)
	return a
}

func TestNewValidates(t *testing.T) {
	box := indexing.Box{Ni: 2, Nj: 2, Nk: 1}

	_, err := New(box, []int{0, 1, 0}, []string{"bg", "r"})
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = New(box, []int{0, 1, 2, 0}, []string{"bg", "r"})
	require.ErrorIs(t, err, ErrInvalidLabel)

	_, err = New(indexing.Box{Ni: 0, Nj: 1, Nk: 1}, nil, []string{"bg"})
	require.ErrorIs(t, err, indexing.ErrInvalidBox)
}

// Every voxel belongs to exactly one filter row.
func TestFilterPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 20; trial++ {
		box := indexing.Box{Ni: 1 + rng.Intn(6), Nj: 1 + rng.Intn(6), Nk: 1 + rng.Intn(6)}
		a := randomAtlas(t, rng, box, 1+rng.Intn(5))
		f := BuildFilter(a)

		rows, cols := f.Dims()
		require.Equal(t, a.NLabels(), rows)
		require.Equal(t, box.NVoxels(), cols)

		colSums := f.ColSums()
		for v, s := range colSums {
			require.Equal(t, 1.0, s, "voxel %d", v)
			require.Equal(t, 1.0, f.At(a.LabelAt(v), v))
		}
		require.Equal(t, box.NVoxels(), f.NNZ())
	}
}

func TestProjectOnesCountsVoxels(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	box := indexing.Box{Ni: 5, Nj: 4, Nk: 3}
	a := randomAtlas(t, rng, box, 4)

	p, err := NewProjector(a, box)
	require.NoError(t, err)

	b := sparse.NewBuilder(box.NVoxels(), 1)
	for v := 0; v < box.NVoxels(); v++ {
		b.Add(v, 0, 1)
	}
	r, err := p.Project(b.Build())
	require.NoError(t, err)

	counts := a.VoxelCounts()
	for l := 0; l < a.NLabels(); l++ {
		require.Equal(t, float64(counts[l]), r.At(l, 0))
	}
}

func TestProjectorShapeChecks(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	a := randomAtlas(t, rng, indexing.Box{Ni: 2, Nj: 2, Nk: 2}, 2)

	_, err := NewProjector(a, indexing.Box{Ni: 2, Nj: 2, Nk: 3})
	require.ErrorIs(t, err, ErrShapeMismatch)

	p, err := NewProjector(a, a.Box())
	require.NoError(t, err)
	_, err = p.Project(sparse.Zeros(7, 1))
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestFilterIsShared(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	a := randomAtlas(t, rng, indexing.Box{Ni: 3, Nj: 3, Nk: 3}, 3)

	p1, err := NewProjector(a, a.Box())
	require.NoError(t, err)
	p2, err := NewProjector(a, a.Box())
	require.NoError(t, err)
	require.Same(t, p1.Filter(), p2.Filter())
}

func TestPaint(t *testing.T) {
	box := indexing.Box{Ni: 2, Nj: 2, Nk: 1}
	a, err := New(box, []int{0, 1, 2, 1}, []string{"bg", "left", "right"})
	require.NoError(t, err)
	p, err := NewProjector(a, box)
	require.NoError(t, err)

	out, err := p.Paint([]float64{9, 1, 2}, true)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 1, 2, 1}, out)

	out, err = p.Paint([]float64{9, 1, 2}, false)
	require.NoError(t, err)
	require.Equal(t, []float64{9, 1, 2, 1}, out)

	_, err = p.Paint([]float64{1}, false)
	require.ErrorIs(t, err, ErrShapeMismatch)
}
