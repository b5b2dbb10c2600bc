package builder

import (
	"fmt"
	"strconv"
	"strings"

	"activitymaps/pkg/maps"
	"activitymaps/pkg/models"
)

// ColumnNames maps each logical role to a table column name.
type ColumnNames struct {
	GroupBy string `yaml:"groupBy"`
	X       string `yaml:"x"`
	Y       string `yaml:"y"`
	Z       string `yaml:"z"`
	Weight  string `yaml:"weight"`
}

// DefaultColumns returns the conventional column names.
func DefaultColumns() ColumnNames {
	return ColumnNames{GroupBy: "group", X: "x", Y: "y", Z: "z", Weight: "weight"}
}

type tableSource struct {
	t                 *models.Table
	group, x, y, z, w int
	names             ColumnNames
}

func newTableSource(t *models.Table, cols ColumnNames) (*tableSource, error) {
	if cols.GroupBy == "" {
		return nil, fmt.Errorf("%w: a group-by column must be named", maps.ErrInvalidArgument)
	}
	s := &tableSource{t: t, names: cols}
	for _, c := range []struct {
		name string
		dst  *int
	}{
		{cols.GroupBy, &s.group},
		{cols.X, &s.x},
		{cols.Y, &s.y},
		{cols.Z, &s.z},
		{cols.Weight, &s.w},
	} {
		*c.dst = t.Column(c.name)
		if *c.dst < 0 {
			return nil, fmt.Errorf("%w: column %q not in table header %v", maps.ErrInvalidArgument, c.name, t.Header)
		}
	}
	width := len(t.Header)
	for i, r := range t.Records {
		if len(r) < width {
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", maps.ErrInvalidArgument, i, len(r), width)
		}
	}
	return s, nil
}

func (s *tableSource) Len() int           { return len(s.t.Records) }
func (s *tableSource) Group(i int) string { return s.t.Records[i][s.group] }

func (s *tableSource) Point(i int) (x, y, z, w float64, err error) {
	r := s.t.Records[i]
	if x, err = s.parse(i, r[s.x], s.names.X); err != nil {
		return
	}
	if y, err = s.parse(i, r[s.y], s.names.Y); err != nil {
		return
	}
	if z, err = s.parse(i, r[s.z], s.names.Z); err != nil {
		return
	}
	w, err = s.parse(i, r[s.w], s.names.Weight)
	return
}

func (s *tableSource) parse(row int, cell, column string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: row %d column %q: %w", maps.ErrInvalidArgument, row, column, err)
	}
	return v, nil
}
