// Package builder turns tables of weighted point observations into map
// collections. Rows are split into contiguous chunks, each chunk is reduced
// to a partial sparse matrix by its own worker, and the partial matrices are
// summed once every worker has returned.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"activitymaps/internal/partition"
	"activitymaps/pkg/indexing"
	"activitymaps/pkg/maps"
	"activitymaps/pkg/models"
	"activitymaps/pkg/sparse"
)

// checkEvery is how many rows a worker processes between cancellation checks.
const checkEvery = 4096

// Options controls a build.
type Options struct {
	// Workers is the number of parallel workers. Zero uses runtime.NumCPU().
	Workers int

	// Logger receives progress at debug level. Nil uses slog.Default().
	Logger *slog.Logger

	// Collection options applied to the result, e.g. maps.WithMode.
	Collection []maps.Option
}

// Result is a built collection together with the group id of each map.
type Result struct {
	// Maps holds one column per distinct group.
	Maps *maps.Collection

	// Groups[j] is the group id of map j, in first-occurrence order.
	Groups []string
}

// source abstracts typed and tabular rows.
type source interface {
	Len() int
	Group(i int) string
	Point(i int) (x, y, z, w float64, err error)
}

// FromObservations builds one map per distinct Observation.Group.
func FromObservations(ctx context.Context, obs []models.Observation, h maps.Header, opts Options) (*Result, error) {
	return build(ctx, observationSource(obs), h, opts)
}

// FromTable builds maps from a string table, resolving column roles by name.
// Numeric cells are parsed inside the workers; the first unparseable cell
// aborts the build.
func FromTable(ctx context.Context, t *models.Table, cols ColumnNames, h maps.Header, opts Options) (*Result, error) {
	src, err := newTableSource(t, cols)
	if err != nil {
		return nil, err
	}
	return build(ctx, src, h, opts)
}

func build(ctx context.Context, src source, h maps.Header, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	inv, err := h.InverseAffine()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "builder"))

	// Column order depends only on the input order, never on scheduling.
	index := make(map[string]int)
	var groups []string
	for i := 0; i < src.Len(); i++ {
		g := src.Group(i)
		if _, ok := index[g]; !ok {
			index[g] = len(groups)
			groups = append(groups, g)
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ranges := partition.Split(src.Len(), workers)

	logger.Debug("building maps",
		slog.Int("rows", src.Len()),
		slog.Int("maps", len(groups)),
		slog.Int("workers", len(ranges)),
		slog.String("box", h.Box.String()))

	w := worker{src: src, box: h.Box, inv: inv, mask: h.Mask, index: index, nMaps: len(groups)}
	partials := make([]*sparse.Matrix, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	for n, r := range ranges {
		g.Go(func() error {
			m, err := w.run(gctx, r)
			if err != nil {
				return err
			}
			partials[n] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("merging partial maps", slog.Int("partials", len(partials)))
	total := partials[0]
	for _, p := range partials[1:] {
		if total, err = total.Add(p); err != nil {
			return nil, fmt.Errorf("%w: %w", maps.ErrInvariantViolation, err)
		}
	}

	c, err := maps.FromMatrix(h, total, opts.Collection...)
	if err != nil {
		return nil, err
	}
	return &Result{Maps: c, Groups: groups}, nil
}

// worker holds the immutable parameters shared by every chunk.
type worker struct {
	src   source
	box   indexing.Box
	inv   models.Affine
	mask  *maps.Mask
	index map[string]int
	nMaps int
}

func (w worker) run(ctx context.Context, r partition.Range) (*sparse.Matrix, error) {
	b := sparse.NewBuilder(w.box.NVoxels(), w.nMaps)
	for row := r.Start; row < r.End; row++ {
		if (row-r.Start)%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		col, ok := w.index[w.src.Group(row)]
		if !ok {
			return nil, fmt.Errorf("%w: row %d has unmapped group %q", maps.ErrInvariantViolation, row, w.src.Group(row))
		}
		x, y, z, weight, err := w.src.Point(row)
		if err != nil {
			return nil, err
		}

		p, err := w.voxel(x, y, z)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if w.mask != nil && !w.mask.Contains(p) {
			continue
		}
		b.Add(p, col, weight)
	}
	return b.Build(), nil
}

// voxel maps a world point to the flat index of its voxel. Points outside
// the box are clamped onto its boundary.
func (w worker) voxel(x, y, z float64) (int, error) {
	ci, cj, ck := w.inv.Apply(x, y, z)
	for _, c := range [...]float64{ci, cj, ck} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return 0, fmt.Errorf("%w: non-finite coordinate (%v, %v, %v)", maps.ErrInvalidArgument, x, y, z)
		}
	}
	i := indexing.Clamp(floorInt(ci), w.box.Ni)
	j := indexing.Clamp(floorInt(cj), w.box.Nj)
	k := indexing.Clamp(floorInt(ck), w.box.Nk)
	return w.box.Flat(i, j, k), nil
}

// floorInt floors c without overflowing int for far-away points.
func floorInt(c float64) int {
	f := math.Floor(c)
	switch {
	case f < math.MinInt32:
		return math.MinInt32
	case f > math.MaxInt32:
		return math.MaxInt32
	}
	return int(f)
}

type observationSource []models.Observation

func (s observationSource) Len() int           { return len(s) }
func (s observationSource) Group(i int) string { return s[i].Group }
func (s observationSource) Point(i int) (float64, float64, float64, float64, error) {
	o := s[i]
	return o.X, o.Y, o.Z, o.Weight, nil
}
