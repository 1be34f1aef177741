package ircodes

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Option is a selectable code entry for the setup flow dropdowns.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// tableHeader covers the fields common to both table kinds that are needed
// to build a human-readable label.
type tableHeader struct {
	Manufacturer    string   `json:"manufacturer"`
	SupportedModels []string `json:"supportedModels"`
}

// ListLocalCodes enumerates the code files already present for a device kind
// and returns sorted options labelled "<code> - <manufacturer> (<models>)".
// A missing directory yields an empty list; unreadable files are skipped.
func ListLocalCodes(codesDir, kind string) ([]Option, error) {
	dir := filepath.Join(codesDir, kind)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var options []Option
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}

		var header tableHeader
		if err := json.Unmarshal(data, &header); err != nil {
			continue
		}

		code := strings.TrimSuffix(name, ".json")
		manufacturer := header.Manufacturer
		if manufacturer == "" {
			manufacturer = "Unknown"
		}
		models := strings.Join(header.SupportedModels, ", ")

		options = append(options, Option{
			Value: code,
			Label: code + " - " + manufacturer + " (" + models + ")",
		})
	}

	sort.Slice(options, func(i, j int) bool {
		return options[i].Value < options[j].Value
	})
	return options, nil
}
