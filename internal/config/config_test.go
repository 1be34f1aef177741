package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("missing required", func(t *testing.T) {
		t.Setenv("HA_URL", "")
		t.Setenv("HA_TOKEN", "")

		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("HA_URL", "ws://ha.local:8123/api/websocket")
		t.Setenv("HA_TOKEN", "token")
		t.Setenv("API_PORT", "")
		t.Setenv("EASYIR_DATA_DIR", "")

		settings, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, 8099, settings.APIPort)
		assert.Equal(t, "data", settings.DataDir)
		assert.Equal(t, filepath.Join("data", "codes"), settings.CodesDir())
		assert.Equal(t, filepath.Join("data", "devices.yaml"), settings.DevicesPath())
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("HA_URL", "ws://ha.local:8123/api/websocket")
		t.Setenv("HA_TOKEN", "token")
		t.Setenv("API_PORT", "9000")
		t.Setenv("EASYIR_DATA_DIR", "/var/lib/easyir")

		settings, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, 9000, settings.APIPort)
		assert.Equal(t, "/var/lib/easyir", settings.DataDir)
	})

	t.Run("invalid port", func(t *testing.T) {
		t.Setenv("HA_URL", "ws://ha.local:8123/api/websocket")
		t.Setenv("HA_TOKEN", "token")
		t.Setenv("API_PORT", "not-a-port")

		_, err := FromEnv()
		assert.Error(t, err)
	})
}

func TestLoadDevices_Missing(t *testing.T) {
	devices, err := LoadDevices(filepath.Join(t.TempDir(), "devices.yaml"))
	require.NoError(t, err)
	assert.Empty(t, devices.Devices)
}

func TestLoadDevices_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices: [not closed"), 0o644))

	_, err := LoadDevices(path)
	assert.Error(t, err)
}

func TestSaveAndLoadDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "devices.yaml")

	devices := &Devices{
		Devices: []Device{
			{
				ID:                "bedroom_ac",
				Name:              "Bedroom AC",
				Kind:              "climate",
				Code:              "1000",
				Controller:        "remote.bedroom_blaster",
				TemperatureSensor: "sensor.bedroom_temperature",
			},
			{
				ID:         "living_room_tv",
				Name:       "Living Room TV",
				Kind:       "media_player",
				Code:       "9000",
				Controller: "remote.living_room_blaster",
			},
		},
	}

	require.NoError(t, SaveDevices(path, devices))

	loaded, err := LoadDevices(path)
	require.NoError(t, err)
	assert.Equal(t, devices.Devices, loaded.Devices)
}
