// Package setup implements the guided device setup flow: search the code
// repository, download a matching code file, test candidate codes against the
// real device and persist the configuration.
package setup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"easyir/internal/config"
	"easyir/internal/downloader"
	"easyir/internal/ha"
	"easyir/internal/ircodes"
	"easyir/internal/transmit"

	"go.uber.org/zap"
)

// Errors surfaced to the setup API.
var (
	ErrSessionNotFound  = errors.New("setup session not found")
	ErrInvalidKind      = errors.New("device kind must be climate or media_player")
	ErrNoCodeSelected   = errors.New("no code selected yet")
	ErrCommandNotFound  = errors.New("command not found in code table")
	ErrUnknownAction    = errors.New("unknown test action")
	ErrControllerNeeded = errors.New("controller entity is required")
)

// Session is one in-progress setup attempt.
type Session struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Controller string `json:"controller,omitempty"`
	Sensor     string `json:"temperature_sensor,omitempty"`
	Code       string `json:"code,omitempty"`

	options []ircodes.Option
}

// Activate is called after a session is saved so the new device can be
// brought up without a restart.
type Activate func(config.Device) error

// Manager runs setup sessions.
type Manager struct {
	codesDir    string
	devicesPath string
	client      ha.HAClient
	dl          *downloader.Client
	tx          *transmit.Transmitter
	logger      *zap.Logger
	activate    Activate

	mu       sync.Mutex
	sessions map[string]*Session
	nextID   int
}

// NewManager creates a setup manager. activate may be nil; saved devices then
// only take effect on restart.
func NewManager(codesDir, devicesPath string, client ha.HAClient, dl *downloader.Client,
	tx *transmit.Transmitter, logger *zap.Logger, activate Activate) *Manager {

	return &Manager{
		codesDir:    codesDir,
		devicesPath: devicesPath,
		client:      client,
		dl:          dl,
		tx:          tx,
		logger:      logger.Named("setup"),
		activate:    activate,
		sessions:    make(map[string]*Session),
	}
}

// Start opens a new session for a named device of the given kind.
func (m *Manager) Start(name, kind string) (*Session, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("device name is required")
	}
	if kind != ircodes.KindClimate && kind != ircodes.KindMediaPlayer {
		return nil, ErrInvalidKind
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	session := &Session{
		ID:   fmt.Sprintf("setup-%d", m.nextID),
		Name: strings.TrimSpace(name),
		Kind: kind,
	}
	m.sessions[session.ID] = session

	m.logger.Info("Setup session started",
		zap.String("session", session.ID),
		zap.String("kind", kind))
	return session, nil
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// EntityChoices lists the Home Assistant entities a session can pick from:
// remote entities for the controller, plus sensor and input_number entities
// for the temperature sensor on climate sessions.
type EntityChoices struct {
	Controllers        []string `json:"controllers"`
	TemperatureSensors []string `json:"temperature_sensors,omitempty"`
}

// Entities queries Home Assistant for the candidate entities of a session.
func (m *Manager) Entities(sessionID string) (EntityChoices, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return EntityChoices{}, err
	}

	states, err := m.client.GetAllStates()
	if err != nil {
		return EntityChoices{}, fmt.Errorf("failed to list entities: %w", err)
	}

	var choices EntityChoices
	for _, state := range states {
		switch {
		case strings.HasPrefix(state.EntityID, "remote."):
			choices.Controllers = append(choices.Controllers, state.EntityID)
		case session.Kind == ircodes.KindClimate &&
			(strings.HasPrefix(state.EntityID, "sensor.") ||
				strings.HasPrefix(state.EntityID, "input_number.")):
			choices.TemperatureSensors = append(choices.TemperatureSensors, state.EntityID)
		}
	}

	sort.Strings(choices.Controllers)
	sort.Strings(choices.TemperatureSensors)
	return choices, nil
}

// Options returns the selectable codes for a session, filtered by a search
// query matched case-insensitively against labels and code values. Local
// files and the remote index are merged once per session; a failed index
// fetch degrades to local-only with a warning.
func (m *Manager) Options(ctx context.Context, sessionID, query string) ([]ircodes.Option, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	options := session.options
	m.mu.Unlock()

	if options == nil {
		options, err = m.buildOptions(ctx, session.Kind)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		session.options = options
		m.mu.Unlock()
	}

	if query == "" {
		return options, nil
	}

	needle := strings.ToLower(query)
	var filtered []ircodes.Option
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Label), needle) ||
			strings.Contains(strings.ToLower(opt.Value), needle) {
			filtered = append(filtered, opt)
		}
	}
	return filtered, nil
}

func (m *Manager) buildOptions(ctx context.Context, kind string) ([]ircodes.Option, error) {
	local, err := ircodes.ListLocalCodes(m.codesDir, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list local codes: %w", err)
	}

	existing := make(map[string]bool, len(local))
	for _, opt := range local {
		existing[opt.Value] = true
	}

	options := local

	entries, err := m.dl.FetchIndex(ctx, kind)
	if err != nil {
		m.logger.Warn("Code index fetch failed, offering local codes only", zap.Error(err))
		return options, nil
	}

	for _, entry := range entries {
		code := string(entry.Code)
		if code == "" || existing[code] {
			continue
		}

		manufacturer := entry.Manufacturer
		if manufacturer == "" {
			manufacturer = "Unknown"
		}
		model := "Generic"
		if len(entry.SupportedModels) > 0 {
			model = entry.SupportedModels[0]
		}

		options = append(options, ircodes.Option{
			Value: code,
			Label: manufacturer + " - " + model + " (" + code + ") [cloud]",
		})
	}

	// Label order groups the cloud entries by manufacturer in the dropdown.
	sort.Slice(options, func(i, j int) bool {
		return options[i].Label < options[j].Label
	})
	return options, nil
}

// Select records the controller, optional sensor and chosen code for a
// session, downloading the code file when it is not present locally.
func (m *Manager) Select(ctx context.Context, sessionID, code, controller, sensor string) error {
	session, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	if controller == "" {
		return ErrControllerNeeded
	}

	path := ircodes.TablePath(m.codesDir, session.Kind, code)
	if _, err := os.Stat(path); err != nil {
		if err := m.dl.DownloadCode(ctx, session.Kind, code, m.codesDir); err != nil {
			return err
		}
	}

	m.mu.Lock()
	session.Code = code
	session.Controller = controller
	session.Sensor = sensor
	m.mu.Unlock()
	return nil
}

// TestActions lists the actions that can be tried against the selected code
// table. Climate offers the off command plus a generic "on" test that picks
// the first populated mode/fan/temperature entry.
func (m *Manager) TestActions(sessionID string) ([]string, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Code == "" {
		return nil, ErrNoCodeSelected
	}

	if session.Kind == ircodes.KindMediaPlayer {
		table, err := ircodes.LoadMediaTable(ircodes.TablePath(m.codesDir, session.Kind, session.Code))
		if err != nil {
			return nil, err
		}

		var actions []string
		if table.Commands.Has("off") {
			actions = append(actions, "off")
		}
		if table.Commands.Has("on") || table.Commands.Has("power") {
			actions = append(actions, "on")
		}
		if table.Commands.Has("volumeUp") {
			actions = append(actions, "volumeUp")
		}
		if table.Commands.Has("mute") {
			actions = append(actions, "mute")
		}
		return actions, nil
	}

	table, err := ircodes.LoadClimateTable(ircodes.TablePath(m.codesDir, session.Kind, session.Code))
	if err != nil {
		return nil, err
	}

	var actions []string
	if table.Commands.HasOff() {
		actions = append(actions, "off")
	}
	actions = append(actions, "on")
	return actions, nil
}

// Test transmits the code behind a test action through the session's
// controller.
func (m *Manager) Test(sessionID, action string) error {
	session, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	if session.Code == "" {
		return ErrNoCodeSelected
	}

	code, err := m.testCode(session, action)
	if err != nil {
		return err
	}

	m.logger.Info("Testing candidate code",
		zap.String("session", session.ID),
		zap.String("action", action))
	return m.tx.Send(session.Controller, code)
}

func (m *Manager) testCode(session *Session, action string) (ircodes.CodeValue, error) {
	path := ircodes.TablePath(m.codesDir, session.Kind, session.Code)

	if session.Kind == ircodes.KindMediaPlayer {
		table, err := ircodes.LoadMediaTable(path)
		if err != nil {
			return nil, err
		}
		res := table.Commands.Resolve(action)
		if res.Status == ircodes.NotFound {
			return nil, ErrCommandNotFound
		}
		return res.Code, nil
	}

	table, err := ircodes.LoadClimateTable(path)
	if err != nil {
		return nil, err
	}

	switch action {
	case "off":
		res := table.Commands.ResolveOff()
		if res.Status == ircodes.NotFound {
			return nil, ErrCommandNotFound
		}
		return res.Code, nil
	case "on":
		// Generic power-on probe: first populated mode/fan/temperature entry
		// in lexical order.
		code := firstClimateCode(table.Commands)
		if code == nil {
			return nil, ErrCommandNotFound
		}
		return code, nil
	default:
		return nil, ErrUnknownAction
	}
}

func firstClimateCode(commands ircodes.ClimateCommands) ircodes.CodeValue {
	modes := make([]string, 0, len(commands.Modes))
	for mode := range commands.Modes {
		modes = append(modes, mode)
	}
	sort.Strings(modes)

	for _, mode := range modes {
		fans := make([]string, 0, len(commands.Modes[mode]))
		for fan := range commands.Modes[mode] {
			fans = append(fans, fan)
		}
		sort.Strings(fans)

		for _, fan := range fans {
			temps := make([]string, 0, len(commands.Modes[mode][fan]))
			for temp := range commands.Modes[mode][fan] {
				temps = append(temps, temp)
			}
			sort.Strings(temps)

			for _, temp := range temps {
				if code := commands.Modes[mode][fan][temp]; len(code) > 0 {
					return code
				}
			}
		}
	}
	return nil
}

// Save persists the session as a device entry in devices.yaml, activates it
// when an activation hook is wired, and closes the session.
func (m *Manager) Save(sessionID string) (config.Device, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return config.Device{}, err
	}
	if session.Code == "" {
		return config.Device{}, ErrNoCodeSelected
	}

	devices, err := config.LoadDevices(m.devicesPath)
	if err != nil {
		return config.Device{}, err
	}

	entry := config.Device{
		ID:                uniqueID(slugify(session.Name), devices.Devices),
		Name:              session.Name,
		Kind:              session.Kind,
		Code:              session.Code,
		Controller:        session.Controller,
		TemperatureSensor: session.Sensor,
	}
	devices.Devices = append(devices.Devices, entry)

	if err := config.SaveDevices(m.devicesPath, devices); err != nil {
		return config.Device{}, err
	}

	if m.activate != nil {
		if err := m.activate(entry); err != nil {
			m.logger.Error("Failed to activate saved device, it will load on restart",
				zap.String("device", entry.ID),
				zap.Error(err))
		}
	}

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	m.logger.Info("Device saved",
		zap.String("device", entry.ID),
		zap.String("code", entry.Code))
	return entry, nil
}

func slugify(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func uniqueID(base string, existing []config.Device) string {
	if base == "" {
		base = "device"
	}

	taken := make(map[string]bool, len(existing))
	for _, d := range existing {
		taken[d.ID] = true
	}

	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !taken[candidate] {
			return candidate
		}
	}
}
