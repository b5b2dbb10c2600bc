package main

import (
	"encoding/csv"
	"fmt"
	"os"

	"activitymaps/pkg/models"
)

// readTable loads a CSV file whose first record is the header.
func readTable(path string) (*models.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening observations: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return &models.Table{Header: records[0], Records: records[1:]}, nil
}
