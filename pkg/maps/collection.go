// Package maps holds collections of sparse voxel maps: a (n_voxels, n_maps)
// matrix plus a header describing the box, affine, mask and atlas.
//
// A collection keeps two derived views in sync with its voxel-level maps:
// the region-level maps when an atlas is attached, and a dense 4-D array in
// Cached mode. Both are recomputed on every write.
package maps

import (
	"fmt"
	"strings"

	"activitymaps/pkg/atlas"
	"activitymaps/pkg/indexing"
	"activitymaps/pkg/models"
	"activitymaps/pkg/sparse"
)

// Mode selects the memory representation of a collection.
type Mode int

const (
	// MemorySaving keeps only the sparse form.
	MemorySaving Mode = iota
	// Cached additionally materialises a dense (Ni, Nj, Nk, n_maps) array.
	Cached
)

func (m Mode) String() string {
	switch m {
	case MemorySaving:
		return "memory-saving"
	case Cached:
		return "cached"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// OnlyMap selects the single map of a one-map collection in conversions.
const OnlyMap = -1

// Option configures a new collection.
type Option func(*Collection)

// WithMode sets the memory mode.
func WithMode(m Mode) Option {
	return func(c *Collection) { c.mode = m }
}

// Collection is a set of maps over one box.
type Collection struct {
	header    Header
	mode      Mode
	voxels    *sparse.Matrix
	regions   *sparse.Matrix
	projector *atlas.Projector
	dense     []float64
}

// Empty returns a collection holding no maps.
func Empty(h Header, opts ...Option) (*Collection, error) {
	return Zeros(h, 0, opts...)
}

// Zeros returns a collection of nMaps all-zero maps.
func Zeros(h Header, nMaps int, opts ...Option) (*Collection, error) {
	if nMaps < 0 {
		return nil, fmt.Errorf("%w: negative map count %d", ErrInvalidArgument, nMaps)
	}
	return FromMatrix(h, sparse.Zeros(h.Box.NVoxels(), nMaps), opts...)
}

// FromMatrix wraps an existing (n_voxels, n_maps) matrix.
func FromMatrix(h Header, m *sparse.Matrix, opts ...Option) (*Collection, error) {
	return FromMatrices(h, m, nil, opts...)
}

// FromMatrices wraps voxel-level maps together with precomputed region-level
// maps. Statistics that are not linear in the maps (variance) use this to
// attach region-level results computed on region-level inputs. A nil regions
// matrix is projected from voxels. The override lasts until the next write.
func FromMatrices(h Header, voxels, regions *sparse.Matrix, opts ...Option) (*Collection, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	c := &Collection{header: h}
	for _, opt := range opts {
		opt(c)
	}
	if h.Atlas != nil {
		p, err := atlas.NewProjector(h.Atlas, h.Box)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
		}
		c.projector = p
	}
	if err := c.set(voxels); err != nil {
		return nil, err
	}
	if regions != nil {
		if c.projector == nil {
			return nil, ErrMissingAtlas
		}
		r, n := regions.Dims()
		if r != h.Atlas.NLabels() || n != c.NMaps() {
			return nil, fmt.Errorf("%w: region maps %dx%d, want %dx%d", ErrShapeMismatch, r, n, h.Atlas.NLabels(), c.NMaps())
		}
		c.regions = regions
	}
	return c, nil
}

// FromVolumes builds a collection with one map per dense volume.
func FromVolumes(h Header, vols []*models.Volume, opts ...Option) (*Collection, error) {
	cols := make([]*sparse.Vector, len(vols))
	for j, v := range vols {
		if v.Box != h.Box || len(v.Data) != h.Box.NVoxels() {
			return nil, fmt.Errorf("%w: volume %d has box %v, header box %v", ErrShapeMismatch, j, v.Box, h.Box)
		}
		cols[j] = sparse.VectorFromDense(v.Data)
	}
	m, err := sparse.FromColumns(h.Box.NVoxels(), cols)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	return FromMatrix(h, m, opts...)
}

// set validates and installs new voxel-level maps, then refreshes every
// derived view. On error the collection is left unchanged.
func (c *Collection) set(m *sparse.Matrix) error {
	rows, _ := m.Dims()
	if rows != c.header.Box.NVoxels() {
		return fmt.Errorf("%w: maps have %d voxels, box %v has %d", ErrShapeMismatch, rows, c.header.Box, c.header.Box.NVoxels())
	}
	var regions *sparse.Matrix
	if c.projector != nil {
		r, err := c.projector.Project(m)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrShapeMismatch, err)
		}
		regions = r
	}
	c.voxels = m
	c.regions = regions
	c.dense = nil
	if c.mode == Cached {
		c.dense = denseOf(m)
	}
	return nil
}

func denseOf(m *sparse.Matrix) []float64 {
	rows, cols := m.Dims()
	d := make([]float64, rows*cols)
	m.DoNonZero(func(i, j int, v float64) {
		d[i+rows*j] = v
	})
	return d
}

// Header returns a copy of the header.
func (c *Collection) Header() Header { return c.header }

// Box returns the voxel grid.
func (c *Collection) Box() indexing.Box { return c.header.Box }

// NVoxels returns the number of voxels per map.
func (c *Collection) NVoxels() int { return c.header.Box.NVoxels() }

// NMaps returns the number of maps.
func (c *Collection) NMaps() int {
	_, n := c.voxels.Dims()
	return n
}

// HasAtlas reports whether an atlas is attached.
func (c *Collection) HasAtlas() bool { return c.header.Atlas != nil }

// HasMask reports whether a mask is attached.
func (c *Collection) HasMask() bool { return c.header.Mask != nil }

// Mode returns the memory mode.
func (c *Collection) Mode() Mode { return c.mode }

// SetMode switches memory mode, building or dropping the dense cache.
func (c *Collection) SetMode(m Mode) {
	c.mode = m
	switch m {
	case Cached:
		if c.dense == nil {
			c.dense = denseOf(c.voxels)
		}
	default:
		c.dense = nil
	}
}

// Maps returns the voxel-level matrix. Matrices are immutable, so the
// result is a stable snapshot.
func (c *Collection) Maps() *sparse.Matrix { return c.voxels }

// RegionMaps returns the (n_labels, n_maps) region-level matrix.
func (c *Collection) RegionMaps() (*sparse.Matrix, error) {
	if c.projector == nil {
		return nil, ErrMissingAtlas
	}
	return c.regions, nil
}

// Projector returns the atlas projector of the collection.
func (c *Collection) Projector() (*atlas.Projector, error) {
	if c.projector == nil {
		return nil, ErrMissingAtlas
	}
	return c.projector, nil
}

// Column returns map j as a sparse vector.
func (c *Collection) Column(j int) (*sparse.Vector, error) {
	if err := c.checkMap(j); err != nil {
		return nil, err
	}
	return c.voxels.Col(j), nil
}

// DenseMap returns map j as a flat dense slice, served from the cache in
// Cached mode. The caller owns the result.
func (c *Collection) DenseMap(j int) ([]float64, error) {
	if err := c.checkMap(j); err != nil {
		return nil, err
	}
	n := c.NVoxels()
	if c.dense != nil {
		return append([]float64(nil), c.dense[j*n:(j+1)*n]...), nil
	}
	return c.voxels.ColDense(nil, j), nil
}

func (c *Collection) checkMap(j int) error {
	if j < 0 || j >= c.NMaps() {
		return &indexing.BoundsError{Arg: "map", Value: j, Bound: c.NMaps()}
	}
	return nil
}

func (c *Collection) resolve(id int) (int, error) {
	if id == OnlyMap {
		if c.NMaps() != 1 {
			return 0, fmt.Errorf("%w: collection holds %d maps, specify which one", ErrAmbiguousSelection, c.NMaps())
		}
		return 0, nil
	}
	return id, c.checkMap(id)
}

// Clone returns an independent copy sharing only immutable state.
func (c *Collection) Clone() *Collection {
	d := *c
	if c.dense != nil {
		d.dense = append([]float64(nil), c.dense...)
	}
	return &d
}

// Replace installs new voxel-level maps in place.
func (c *Collection) Replace(m *sparse.Matrix) error {
	return c.set(m)
}

// WithMaps returns a new collection with the same header and mode.
func (c *Collection) WithMaps(m *sparse.Matrix) (*Collection, error) {
	d := c.Clone()
	if err := d.set(m); err != nil {
		return nil, err
	}
	return d, nil
}

// AddInPlace adds o's maps to c's.
func (c *Collection) AddInPlace(o *Collection) error {
	if c.header.Box != o.header.Box {
		return fmt.Errorf("%w: boxes %v and %v", ErrShapeMismatch, c.header.Box, o.header.Box)
	}
	s, err := c.voxels.Add(o.voxels)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	return c.set(s)
}

// Add returns c + o.
func (c *Collection) Add(o *Collection) (*Collection, error) {
	d := c.Clone()
	if err := d.AddInPlace(o); err != nil {
		return nil, err
	}
	return d, nil
}

// ScaleInPlace multiplies every map by f.
func (c *Collection) ScaleInPlace(f float64) error {
	return c.set(c.voxels.Scale(f))
}

// Scale returns f*c.
func (c *Collection) Scale(f float64) (*Collection, error) {
	return c.WithMaps(c.voxels.Scale(f))
}

// ApplyMask zeroes every voxel outside m and records m in the header.
func (c *Collection) ApplyMask(m *Mask) error {
	if m.box != c.header.Box {
		return fmt.Errorf("%w: mask box %v, maps box %v", ErrShapeMismatch, m.box, c.header.Box)
	}
	masked, err := c.voxels.ScaleRows(m.Weights())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	if err := c.set(masked); err != nil {
		return err
	}
	c.header.Mask = m
	return nil
}

// Masked returns a masked copy.
func (c *Collection) Masked(m *Mask) (*Collection, error) {
	d := c.Clone()
	if err := d.ApplyMask(m); err != nil {
		return nil, err
	}
	return d, nil
}

// ToArray converts one map to a dense volume. Pass OnlyMap to convert the
// single map of a one-map collection.
func (c *Collection) ToArray(id int) (*models.Volume, error) {
	j, err := c.resolve(id)
	if err != nil {
		return nil, err
	}
	data, err := c.DenseMap(j)
	if err != nil {
		return nil, err
	}
	return &models.Volume{Data: data, Box: c.header.Box}, nil
}

// ToImage converts one map to a georeferenced volume.
func (c *Collection) ToImage(id int) (*models.Volume, error) {
	v, err := c.ToArray(id)
	if err != nil {
		return nil, err
	}
	return v.WithAffine(c.header.Affine), nil
}

// ToAtlasArray paints one region-level map back onto the box. With
// ignoreBackground the background label is left at zero.
func (c *Collection) ToAtlasArray(id int, ignoreBackground bool) (*models.Volume, error) {
	if c.projector == nil {
		return nil, ErrMissingAtlas
	}
	j, err := c.resolve(id)
	if err != nil {
		return nil, err
	}
	data, err := c.projector.Paint(c.regions.ColDense(nil, j), ignoreBackground)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	return &models.Volume{Data: data, Box: c.header.Box}, nil
}

// ToAtlasImage is ToAtlasArray with the header affine attached.
func (c *Collection) ToAtlasImage(id int, ignoreBackground bool) (*models.Volume, error) {
	v, err := c.ToAtlasArray(id, ignoreBackground)
	if err != nil {
		return nil, err
	}
	return v.WithAffine(c.header.Affine), nil
}

func (c *Collection) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Collection of %d maps\n", c.NMaps())
	fmt.Fprintf(&b, "  non-zero: %d\n", c.voxels.NNZ())
	fmt.Fprintf(&b, "  voxels:   %d\n", c.NVoxels())
	fmt.Fprintf(&b, "  box:      %v\n", c.header.Box)
	fmt.Fprintf(&b, "  mode:     %v\n", c.mode)
	fmt.Fprintf(&b, "  mask:     %t\n", c.HasMask())
	fmt.Fprintf(&b, "  atlas:    %t", c.HasAtlas())
	if c.HasAtlas() {
		fmt.Fprintf(&b, " (%d labels)", c.header.Atlas.NLabels())
	}
	return b.String()
}
