package ircodes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TablePath returns the on-disk location of a device code file.
func TablePath(codesDir, kind, code string) string {
	return filepath.Join(codesDir, kind, code+".json")
}

// LoadClimateTable reads and parses a climate code table. A missing or
// unparsable file is an error; the caller skips creating that device.
func LoadClimateTable(path string) (*ClimateTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read code table %s: %w", path, err)
	}

	var table ClimateTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse code table %s: %w", path, err)
	}

	return &table, nil
}

// LoadMediaTable reads and parses a media player code table.
func LoadMediaTable(path string) (*MediaTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read code table %s: %w", path, err)
	}

	var table MediaTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse code table %s: %w", path, err)
	}

	return &table, nil
}
