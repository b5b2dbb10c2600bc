package main

import (
	"errors"
	"fmt"
	"strconv"

	"activitymaps/pkg/atlas"
	"activitymaps/pkg/config"
	"activitymaps/pkg/indexing"
	"activitymaps/pkg/maps"
	"activitymaps/pkg/stats"
)

// backgroundName labels voxels listed in no region of an atlas file.
const backgroundName = "background"

// atlasColumns are the columns an atlas file must carry.
var atlasColumns = [...]string{"i", "j", "k", "region"}

// readAtlas loads an atlas from a CSV file with one row per labelled voxel.
// Regions are numbered in order of first appearance after the background.
func readAtlas(path string, box indexing.Box) (*atlas.Atlas, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	var col [len(atlasColumns)]int
	for n, name := range atlasColumns {
		col[n] = -1
		for c, h := range t.Header {
			if h == name {
				col[n] = c
			}
		}
		if col[n] < 0 {
			return nil, fmt.Errorf("%s: missing column %q", path, name)
		}
	}

	data := make([]int, box.NVoxels())
	labels := []string{backgroundName}
	ids := map[string]int{backgroundName: atlas.Background}
	for row, rec := range t.Records {
		var ijk [3]int
		for n := range ijk {
			if col[n] >= len(rec) {
				return nil, fmt.Errorf("%s: row %d is short", path, row+1)
			}
			if ijk[n], err = strconv.Atoi(rec[col[n]]); err != nil {
				return nil, fmt.Errorf("%s: row %d: %w", path, row+1, err)
			}
		}
		if col[3] >= len(rec) {
			return nil, fmt.Errorf("%s: row %d is short", path, row+1)
		}
		p, err := indexing.ToFlat(ijk[0], ijk[1], ijk[2], box.Ni, box.Nj, box.Nk)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, row+1, err)
		}
		name := rec[col[3]]
		id, ok := ids[name]
		if !ok {
			id = len(labels)
			ids[name] = id
			labels = append(labels, name)
		}
		data[p] = id
	}
	return atlas.New(box, data, labels)
}

// regionCovariance estimates the region covariance the configuration asks
// for.
func regionCovariance(c *maps.Collection, cfg *config.Config) (*stats.CovarianceMatrix, error) {
	if c.Header().Atlas == nil {
		return nil, errors.New("region covariance needs an atlas, see -atlas")
	}
	shrink, err := cfg.Shrinkage()
	if err != nil {
		return nil, err
	}
	return stats.Covariance(c, stats.CovarianceOptions{
		Level:            stats.Regions,
		Biased:           cfg.Statistics.Biased,
		Shrink:           shrink,
		IgnoreBackground: cfg.Statistics.IgnoreBackground,
	})
}
