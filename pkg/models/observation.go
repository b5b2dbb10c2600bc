// Package models defines the value types shared across the map pipeline:
// observations fed to the builder and dense volumes handed back to callers.
package models

// Observation is one weighted point in world coordinates, belonging to the
// map identified by Group.
type Observation struct {
	// Group identifies the record (study) the point belongs to
	Group string

	// X, Y, Z are world coordinates
	X, Y, Z float64

	// Weight is accumulated at the voxel containing the point
	Weight float64
}

// Table is a header plus string records, the shape encoding/csv produces.
// Column roles are resolved by name at build time.
type Table struct {
	Header  []string
	Records [][]string
}

// Column returns the position of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Len returns the number of records.
func (t *Table) Len() int {
	return len(t.Records)
}
