// Package config loads the service settings from the environment and the
// configured device list from devices.yaml in the data directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Settings are the environment-provided service settings.
type Settings struct {
	HAURL   string
	HAToken string
	APIPort int
	DataDir string
	RepoURL string
}

// FromEnv reads settings from environment variables. HA_URL and HA_TOKEN are
// required; the rest have working defaults.
func FromEnv() (*Settings, error) {
	s := &Settings{
		HAURL:   os.Getenv("HA_URL"),
		HAToken: os.Getenv("HA_TOKEN"),
		APIPort: 8099,
		DataDir: "data",
		RepoURL: os.Getenv("EASYIR_REPO_URL"),
	}

	if s.HAURL == "" || s.HAToken == "" {
		return nil, fmt.Errorf("HA_URL and HA_TOKEN environment variables must be set")
	}

	if port := os.Getenv("API_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid API_PORT %q: %w", port, err)
		}
		s.APIPort = p
	}

	if dir := os.Getenv("EASYIR_DATA_DIR"); dir != "" {
		s.DataDir = dir
	}

	return s, nil
}

// CodesDir returns the root directory holding per-kind code files.
func (s *Settings) CodesDir() string {
	return filepath.Join(s.DataDir, "codes")
}

// DevicesPath returns the location of the device list file.
func (s *Settings) DevicesPath() string {
	return filepath.Join(s.DataDir, "devices.yaml")
}

// Device is one configured device entry.
type Device struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	Kind              string `yaml:"kind"`
	Code              string `yaml:"code"`
	Controller        string `yaml:"controller"`
	TemperatureSensor string `yaml:"temperature_sensor,omitempty"`
}

// Devices is the devices.yaml structure.
type Devices struct {
	Devices []Device `yaml:"devices"`
}

// LoadDevices reads devices.yaml. A missing file yields an empty list so a
// fresh install starts with no devices rather than an error.
func LoadDevices(path string) (*Devices, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Devices{}, nil
		}
		return nil, fmt.Errorf("failed to read devices config: %w", err)
	}

	var devices Devices
	if err := yaml.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("failed to parse devices config: %w", err)
	}

	return &devices, nil
}

// SaveDevices writes devices.yaml, creating the data directory as needed.
func SaveDevices(path string, devices *Devices) error {
	data, err := yaml.Marshal(devices)
	if err != nil {
		return fmt.Errorf("failed to marshal devices config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write devices config: %w", err)
	}

	return nil
}
