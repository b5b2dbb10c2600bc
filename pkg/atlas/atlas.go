// Package atlas partitions the voxels of a box into labelled regions and
// projects voxel-level maps onto those regions through a 0/1 filter matrix.
package atlas

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"activitymaps/pkg/indexing"
	"activitymaps/pkg/sparse"
)

var (
	// ErrShapeMismatch indicates an atlas and box, or an atlas and a map
	// collection, with different spatial shapes.
	ErrShapeMismatch = errors.New("atlas: shape mismatch")
	// ErrInvalidLabel indicates a voxel carrying a label outside [0, n_labels).
	ErrInvalidLabel = errors.New("atlas: label out of range")
)

// Background is the conventional label of voxels outside every region.
const Background = 0

// filterCacheSize bounds how many distinct atlases keep a filter resident.
const filterCacheSize = 16

var filters, _ = lru.New[*Atlas, *sparse.Matrix](filterCacheSize)

// Atlas is an immutable labelled partition of a box.
type Atlas struct {
	box    indexing.Box
	data   []int
	labels []string
}

// New returns an atlas over box. data holds one label per voxel in Fortran
// order; labels names every label id, background first.
func New(box indexing.Box, data []int, labels []string) (*Atlas, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if len(data) != box.NVoxels() {
		return nil, fmt.Errorf("%w: %d labels for box %v of %d voxels", ErrShapeMismatch, len(data), box, box.NVoxels())
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: atlas has no labels", ErrInvalidLabel)
	}
	for p, l := range data {
		if l < 0 || l >= len(labels) {
			return nil, fmt.Errorf("%w: voxel %d has label %d, atlas has %d labels", ErrInvalidLabel, p, l, len(labels))
		}
	}
	a := &Atlas{
		box:    box,
		data:   append([]int(nil), data...),
		labels: append([]string(nil), labels...),
	}
	return a, nil
}

// Box returns the spatial shape of the atlas.
func (a *Atlas) Box() indexing.Box { return a.box }

// NLabels returns the number of labels, background included.
func (a *Atlas) NLabels() int { return len(a.labels) }

// Labels returns a copy of the label names.
func (a *Atlas) Labels() []string { return append([]string(nil), a.labels...) }

// LabelAt returns the label of flat voxel p.
func (a *Atlas) LabelAt(p int) int { return a.data[p] }

// VoxelCounts returns how many voxels carry each label.
func (a *Atlas) VoxelCounts() []int {
	counts := make([]int, len(a.labels))
	for _, l := range a.data {
		counts[l]++
	}
	return counts
}

// BuildFilter returns the (n_labels, n_voxels) indicator matrix whose row k
// is 1 exactly at voxels labelled k.
func BuildFilter(a *Atlas) *sparse.Matrix {
	b := sparse.NewBuilder(len(a.labels), len(a.data))
	for p, l := range a.data {
		b.Add(l, p, 1)
	}
	return b.Build()
}

// Projector reduces voxel-level maps to region-level maps.
type Projector struct {
	atlas  *Atlas
	filter *sparse.Matrix
}

// NewProjector returns a projector for maps defined over box. The filter is
// built once per atlas and shared by every projector on the same atlas.
func NewProjector(a *Atlas, box indexing.Box) (*Projector, error) {
	if a.box != box {
		return nil, fmt.Errorf("%w: atlas box %v, maps box %v", ErrShapeMismatch, a.box, box)
	}
	f, ok := filters.Get(a)
	if !ok {
		f = BuildFilter(a)
		filters.Add(a, f)
	}
	return &Projector{atlas: a, filter: f}, nil
}

// Atlas returns the projector's atlas.
func (p *Projector) Atlas() *Atlas { return p.atlas }

// Filter returns the cached filter matrix.
func (p *Projector) Filter() *sparse.Matrix { return p.filter }

// Project returns filter·m, of shape (n_labels, n_maps).
func (p *Projector) Project(m *sparse.Matrix) (*sparse.Matrix, error) {
	rows, _ := m.Dims()
	if rows != p.atlas.box.NVoxels() {
		return nil, fmt.Errorf("%w: maps have %d voxels, atlas has %d", ErrShapeMismatch, rows, p.atlas.box.NVoxels())
	}
	return p.filter.Mul(m)
}

// Paint writes one value per label into a dense Fortran-ordered volume.
// With ignoreBackground the background label is left at zero.
func (p *Projector) Paint(values []float64, ignoreBackground bool) ([]float64, error) {
	if len(values) != len(p.atlas.labels) {
		return nil, fmt.Errorf("%w: %d values for %d labels", ErrShapeMismatch, len(values), len(p.atlas.labels))
	}
	out := make([]float64, len(p.atlas.data))
	for v, l := range p.atlas.data {
		if ignoreBackground && l == Background {
			continue
		}
		out[v] = values[l]
	}
	return out, nil
}
