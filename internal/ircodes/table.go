// Package ircodes loads per-device infrared code tables from JSON files and
// resolves requested device actions to the opaque code payloads stored in them.
package ircodes

import (
	"encoding/json"
	"fmt"
)

// Device kinds, matching the directory layout of the code repository.
const (
	KindClimate     = "climate"
	KindMediaPlayer = "media_player"
)

// Default climate limits applied when the table omits them.
const (
	DefaultMinTemperature = 16
	DefaultMaxTemperature = 30
	DefaultPrecision      = 1
)

// CodeValue is one or more opaque IR code payloads. Tables store a value
// either as a single JSON string or as an ordered array of strings; both
// unmarshal to the same slice so downstream handling never branches on shape.
type CodeValue []string

// UnmarshalJSON accepts either a string or an array of strings.
func (c *CodeValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*c = CodeValue{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("code value must be a string or array of strings: %w", err)
	}
	*c = CodeValue(many)
	return nil
}

// ClimateTable is the parsed code table for a climate device.
type ClimateTable struct {
	Manufacturer    string          `json:"manufacturer"`
	SupportedModels []string        `json:"supportedModels"`
	MinTemperature  float64         `json:"minTemperature"`
	MaxTemperature  float64         `json:"maxTemperature"`
	Precision       float64         `json:"precision"`
	OperationModes  []string        `json:"operationModes"`
	FanModes        []string        `json:"fanModes"`
	Commands        ClimateCommands `json:"commands"`
}

// UnmarshalJSON seeds the default limits before decoding so every table,
// however it is parsed, carries usable min/max/precision values.
func (t *ClimateTable) UnmarshalJSON(data []byte) error {
	type plain ClimateTable
	table := plain{
		MinTemperature: DefaultMinTemperature,
		MaxTemperature: DefaultMaxTemperature,
		Precision:      DefaultPrecision,
	}
	if err := json.Unmarshal(data, &table); err != nil {
		return err
	}
	*t = ClimateTable(table)
	return nil
}

// ClimateCommands holds the three-level mode -> fan -> temperature mapping,
// plus the top-level "off" entry that bypasses it.
type ClimateCommands struct {
	Off   CodeValue
	Modes map[string]map[string]map[string]CodeValue
}

// UnmarshalJSON splits the "off" entry out of the nested structure. Entries
// that do not fit either shape are ignored rather than failing the load.
func (c *ClimateCommands) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("commands must be an object: %w", err)
	}

	c.Modes = make(map[string]map[string]map[string]CodeValue)
	for key, value := range raw {
		if key == "off" {
			if err := json.Unmarshal(value, &c.Off); err != nil {
				return fmt.Errorf("off command: %w", err)
			}
			continue
		}

		var fans map[string]map[string]CodeValue
		if err := json.Unmarshal(value, &fans); err != nil {
			continue
		}
		c.Modes[key] = fans
	}

	return nil
}

// HasOff reports whether the table carries a dedicated off command.
func (c ClimateCommands) HasOff() bool {
	return len(c.Off) > 0
}

// MediaTable is the parsed code table for a media player device.
type MediaTable struct {
	Manufacturer    string        `json:"manufacturer"`
	SupportedModels []string      `json:"supportedModels"`
	Commands        MediaCommands `json:"commands"`
}

// MediaCommands is a flat action -> code mapping plus the optional sources
// sub-mapping for input selection.
type MediaCommands struct {
	Actions map[string]CodeValue
	Sources map[string]CodeValue
}

// UnmarshalJSON splits the "sources" sub-mapping out of the flat action map.
func (m *MediaCommands) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("commands must be an object: %w", err)
	}

	m.Actions = make(map[string]CodeValue)
	for key, value := range raw {
		if key == "sources" {
			if err := json.Unmarshal(value, &m.Sources); err != nil {
				return fmt.Errorf("sources: %w", err)
			}
			continue
		}

		var code CodeValue
		if err := json.Unmarshal(value, &code); err != nil {
			continue
		}
		m.Actions[key] = code
	}

	return nil
}

// Has reports whether an action is present in the flat action map.
func (m MediaCommands) Has(action string) bool {
	_, ok := m.Actions[action]
	return ok
}
