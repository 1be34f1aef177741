package setup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"easyir/internal/config"
	"easyir/internal/downloader"
	"easyir/internal/ha"
	"easyir/internal/ircodes"
	"easyir/internal/transmit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	manager     *Manager
	mock        *ha.MockClient
	codesDir    string
	devicesPath string
	activated   []config.Device
}

func newTestEnv(t *testing.T, repoFiles map[string]string) *testEnv {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := repoFiles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	dataDir := t.TempDir()
	env := &testEnv{
		mock:        ha.NewMockClient(),
		codesDir:    filepath.Join(dataDir, "codes"),
		devicesPath: filepath.Join(dataDir, "devices.yaml"),
	}

	tx := transmit.New(env.mock, logger)
	dl := downloader.NewClient(server.URL+"/", logger)
	env.manager = NewManager(env.codesDir, env.devicesPath, env.mock, dl, tx, logger,
		func(entry config.Device) error {
			env.activated = append(env.activated, entry)
			return nil
		})
	return env
}

func (e *testEnv) writeLocalCode(t *testing.T, kind, code, content string) {
	t.Helper()
	dir := filepath.Join(e.codesDir, kind)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, code+".json"), []byte(content), 0o644))
}

func TestManager_Start(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("valid", func(t *testing.T) {
		session, err := env.manager.Start("Bedroom AC", ircodes.KindClimate)
		require.NoError(t, err)
		assert.NotEmpty(t, session.ID)
		assert.Equal(t, "Bedroom AC", session.Name)
	})

	t.Run("invalid kind", func(t *testing.T) {
		_, err := env.manager.Start("TV", "light")
		assert.ErrorIs(t, err, ErrInvalidKind)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := env.manager.Start("  ", ircodes.KindClimate)
		assert.Error(t, err)
	})
}

func TestManager_Entities(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mock.SetState("remote.living_room_blaster", "on", nil)
	env.mock.SetState("remote.bedroom_blaster", "on", nil)
	env.mock.SetState("sensor.bedroom_temperature", "22.5", nil)
	env.mock.SetState("input_number.office_temperature", "21", nil)
	env.mock.SetState("light.hallway", "off", nil)

	t.Run("climate", func(t *testing.T) {
		session, err := env.manager.Start("Bedroom AC", ircodes.KindClimate)
		require.NoError(t, err)

		choices, err := env.manager.Entities(session.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"remote.bedroom_blaster", "remote.living_room_blaster"},
			choices.Controllers)
		assert.Equal(t, []string{"input_number.office_temperature", "sensor.bedroom_temperature"},
			choices.TemperatureSensors)
	})

	t.Run("media player gets no sensors", func(t *testing.T) {
		session, err := env.manager.Start("TV", ircodes.KindMediaPlayer)
		require.NoError(t, err)

		choices, err := env.manager.Entities(session.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"remote.bedroom_blaster", "remote.living_room_blaster"},
			choices.Controllers)
		assert.Empty(t, choices.TemperatureSensors)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := env.manager.Entities("setup-999")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestManager_Options(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"/codes/climate/index.json": `[
			{"code": "1000", "manufacturer": "Frost", "supported_models": ["F1"]},
			{"code": "3000", "manufacturer": "Polar", "supported_models": ["P2"]},
			{"code": "2000", "manufacturer": "Zenith", "supported_models": ["Z9"]}
		]`,
	})
	env.writeLocalCode(t, ircodes.KindClimate, "1000",
		`{"manufacturer": "Frost", "supportedModels": ["F1"], "commands": {"off": "X"}}`)

	session, err := env.manager.Start("Bedroom AC", ircodes.KindClimate)
	require.NoError(t, err)

	options, err := env.manager.Options(context.Background(), session.ID, "")
	require.NoError(t, err)
	require.Len(t, options, 3)

	// Local entry wins over the cloud duplicate; cloud entries sort by label
	// so the dropdown groups them by manufacturer, not code value.
	assert.Equal(t, "1000", options[0].Value)
	assert.Equal(t, "1000 - Frost (F1)", options[0].Label)
	assert.Equal(t, "3000", options[1].Value)
	assert.Equal(t, "Polar - P2 (3000) [cloud]", options[1].Label)
	assert.Equal(t, "2000", options[2].Value)
	assert.Equal(t, "Zenith - Z9 (2000) [cloud]", options[2].Label)

	t.Run("search filters by label", func(t *testing.T) {
		filtered, err := env.manager.Options(context.Background(), session.ID, "polar")
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "3000", filtered[0].Value)
	})

	t.Run("search filters by code", func(t *testing.T) {
		filtered, err := env.manager.Options(context.Background(), session.ID, "1000")
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "1000", filtered[0].Value)
	})

	t.Run("no matches", func(t *testing.T) {
		filtered, err := env.manager.Options(context.Background(), session.ID, "zzz")
		require.NoError(t, err)
		assert.Empty(t, filtered)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := env.manager.Options(context.Background(), "setup-999", "")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestManager_Options_IndexUnavailable(t *testing.T) {
	// Index fetch failures degrade to local-only options.
	env := newTestEnv(t, nil)
	env.writeLocalCode(t, ircodes.KindClimate, "1000",
		`{"manufacturer": "Frost", "commands": {"off": "X"}}`)

	session, err := env.manager.Start("Bedroom AC", ircodes.KindClimate)
	require.NoError(t, err)

	options, err := env.manager.Options(context.Background(), session.ID, "")
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, "1000", options[0].Value)
}

func TestManager_Select(t *testing.T) {
	env := newTestEnv(t, map[string]string{
		"/codes/climate/3000.json": `{"manufacturer": "Polar", "commands": {"off": "REMOTE"}}`,
	})
	env.writeLocalCode(t, ircodes.KindClimate, "1000",
		`{"manufacturer": "Frost", "commands": {"off": "LOCAL"}}`)

	t.Run("local code needs no download", func(t *testing.T) {
		session, err := env.manager.Start("Bedroom AC", ircodes.KindClimate)
		require.NoError(t, err)

		err = env.manager.Select(context.Background(), session.ID, "1000",
			"remote.bedroom_blaster", "sensor.bedroom_temperature")
		require.NoError(t, err)
		assert.Equal(t, "1000", session.Code)
		assert.Equal(t, "remote.bedroom_blaster", session.Controller)
	})

	t.Run("cloud code is downloaded", func(t *testing.T) {
		session, err := env.manager.Start("Office AC", ircodes.KindClimate)
		require.NoError(t, err)

		err = env.manager.Select(context.Background(), session.ID, "3000",
			"remote.office_blaster", "")
		require.NoError(t, err)

		_, err = os.Stat(ircodes.TablePath(env.codesDir, ircodes.KindClimate, "3000"))
		assert.NoError(t, err)
	})

	t.Run("unavailable code fails", func(t *testing.T) {
		session, err := env.manager.Start("Hall AC", ircodes.KindClimate)
		require.NoError(t, err)

		err = env.manager.Select(context.Background(), session.ID, "9999",
			"remote.hall_blaster", "")
		assert.Error(t, err)
	})

	t.Run("controller required", func(t *testing.T) {
		session, err := env.manager.Start("Den AC", ircodes.KindClimate)
		require.NoError(t, err)

		err = env.manager.Select(context.Background(), session.ID, "1000", "", "")
		assert.ErrorIs(t, err, ErrControllerNeeded)
	})
}

func TestManager_TestActions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeLocalCode(t, ircodes.KindClimate, "1000",
		`{"commands": {"off": "OFFCODE", "cool": {"auto": {"24": "COOL24"}}}}`)
	env.writeLocalCode(t, ircodes.KindMediaPlayer, "9000",
		`{"commands": {"power": "PWR", "off": "OFF", "volumeUp": "VU"}}`)

	t.Run("climate", func(t *testing.T) {
		session, err := env.manager.Start("Bedroom AC", ircodes.KindClimate)
		require.NoError(t, err)
		require.NoError(t, env.manager.Select(context.Background(), session.ID, "1000", "remote.b", ""))

		actions, err := env.manager.TestActions(session.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"off", "on"}, actions)
	})

	t.Run("media player", func(t *testing.T) {
		session, err := env.manager.Start("TV", ircodes.KindMediaPlayer)
		require.NoError(t, err)
		require.NoError(t, env.manager.Select(context.Background(), session.ID, "9000", "remote.b", ""))

		actions, err := env.manager.TestActions(session.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"off", "on", "volumeUp"}, actions)
	})

	t.Run("no code selected", func(t *testing.T) {
		session, err := env.manager.Start("Another AC", ircodes.KindClimate)
		require.NoError(t, err)

		_, err = env.manager.TestActions(session.ID)
		assert.ErrorIs(t, err, ErrNoCodeSelected)
	})
}

func TestManager_Test(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeLocalCode(t, ircodes.KindClimate, "1000",
		`{"commands": {"off": "OFFCODE", "cool": {"auto": {"24": "COOL24"}}}}`)
	env.writeLocalCode(t, ircodes.KindMediaPlayer, "9000",
		`{"commands": {"power": "PWR"}}`)

	t.Run("climate off", func(t *testing.T) {
		session, err := env.manager.Start("Bedroom AC", ircodes.KindClimate)
		require.NoError(t, err)
		require.NoError(t, env.manager.Select(context.Background(), session.ID, "1000",
			"remote.bedroom_blaster", ""))

		env.mock.ClearServiceCalls()
		require.NoError(t, env.manager.Test(session.ID, "off"))

		calls := env.mock.GetServiceCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "remote.bedroom_blaster", calls[0].Data["entity_id"])
		assert.Equal(t, []string{"b64:OFFCODE"}, calls[0].Data["command"])
	})

	t.Run("climate generic on probe", func(t *testing.T) {
		session, err := env.manager.Start("Office AC", ircodes.KindClimate)
		require.NoError(t, err)
		require.NoError(t, env.manager.Select(context.Background(), session.ID, "1000",
			"remote.office_blaster", ""))

		env.mock.ClearServiceCalls()
		require.NoError(t, env.manager.Test(session.ID, "on"))

		calls := env.mock.GetServiceCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"b64:COOL24"}, calls[0].Data["command"])
	})

	t.Run("media on falls back to power", func(t *testing.T) {
		session, err := env.manager.Start("TV", ircodes.KindMediaPlayer)
		require.NoError(t, err)
		require.NoError(t, env.manager.Select(context.Background(), session.ID, "9000",
			"remote.tv_blaster", ""))

		env.mock.ClearServiceCalls()
		require.NoError(t, env.manager.Test(session.ID, "on"))

		calls := env.mock.GetServiceCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"b64:PWR"}, calls[0].Data["command"])
	})

	t.Run("unknown action", func(t *testing.T) {
		session, err := env.manager.Start("Hall AC", ircodes.KindClimate)
		require.NoError(t, err)
		require.NoError(t, env.manager.Select(context.Background(), session.ID, "1000",
			"remote.hall_blaster", ""))

		err = env.manager.Test(session.ID, "volumeUp")
		assert.ErrorIs(t, err, ErrUnknownAction)
	})

	t.Run("missing media command", func(t *testing.T) {
		session, err := env.manager.Start("TV 2", ircodes.KindMediaPlayer)
		require.NoError(t, err)
		require.NoError(t, env.manager.Select(context.Background(), session.ID, "9000",
			"remote.tv_blaster", ""))

		err = env.manager.Test(session.ID, "mute")
		assert.ErrorIs(t, err, ErrCommandNotFound)
	})
}

func TestManager_Save(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeLocalCode(t, ircodes.KindClimate, "1000",
		`{"commands": {"off": "OFFCODE"}}`)

	session, err := env.manager.Start("Bedroom AC", ircodes.KindClimate)
	require.NoError(t, err)
	require.NoError(t, env.manager.Select(context.Background(), session.ID, "1000",
		"remote.bedroom_blaster", "sensor.bedroom_temperature"))

	entry, err := env.manager.Save(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "bedroom_ac", entry.ID)
	assert.Equal(t, ircodes.KindClimate, entry.Kind)
	assert.Equal(t, "sensor.bedroom_temperature", entry.TemperatureSensor)

	// Persisted to devices.yaml
	devices, err := config.LoadDevices(env.devicesPath)
	require.NoError(t, err)
	require.Len(t, devices.Devices, 1)
	assert.Equal(t, entry, devices.Devices[0])

	// Activation hook invoked
	require.Len(t, env.activated, 1)
	assert.Equal(t, entry, env.activated[0])

	// Session closed
	_, err = env.manager.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_Save_UniqueIDs(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeLocalCode(t, ircodes.KindClimate, "1000", `{"commands": {"off": "X"}}`)

	for _, expected := range []string{"bedroom_ac", "bedroom_ac_2", "bedroom_ac_3"} {
		session, err := env.manager.Start("Bedroom AC", ircodes.KindClimate)
		require.NoError(t, err)
		require.NoError(t, env.manager.Select(context.Background(), session.ID, "1000",
			"remote.bedroom_blaster", ""))

		entry, err := env.manager.Save(session.ID)
		require.NoError(t, err)
		assert.Equal(t, expected, entry.ID)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bedroom AC", "bedroom_ac"},
		{"Living Room TV!", "living_room_tv"},
		{"  AC  2000  ", "ac_2000"},
		{"ÜberTV", "bertv"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, slugify(tt.input))
		})
	}
}
