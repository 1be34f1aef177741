package device

import (
	"sort"
	"sync"

	"easyir/internal/ircodes"
	"easyir/internal/transmit"

	"go.uber.org/zap"
)

// Media player actions stored in the flat command map.
const (
	ActionOn         = "on"
	ActionOff        = "off"
	ActionPower      = "power"
	ActionVolumeUp   = "volumeUp"
	ActionVolumeDown = "volumeDown"
	ActionMute       = "mute"
	ActionPlay       = "play"
	ActionPause      = "pause"
	ActionStop       = "stop"
)

// MediaPlayer adapts a media player code table (TV or sound system).
type MediaPlayer struct {
	id         string
	name       string
	controller string
	table      *ircodes.MediaTable
	tx         *transmit.Transmitter
	logger     *zap.Logger

	caps    Capability
	sources []string

	mu        sync.Mutex
	powered   bool
	source    string
	listeners []Listener
}

// NewMediaPlayer builds a media player adapter. Capability flags are derived
// from the command keys present in the table and fixed for the adapter's
// lifetime: volume control needs both volumeUp and volumeDown, playback
// needs both play and pause, source selection needs a sources sub-mapping.
func NewMediaPlayer(id, name, controller string, table *ircodes.MediaTable,
	tx *transmit.Transmitter, logger *zap.Logger) *MediaPlayer {

	caps := CapOnOff
	commands := table.Commands

	if commands.Has(ActionVolumeUp) && commands.Has(ActionVolumeDown) {
		caps |= CapVolumeStep | CapVolumeMute
	}
	if commands.Has(ActionPlay) && commands.Has(ActionPause) {
		caps |= CapPlayback
	}

	var sources []string
	if len(commands.Sources) > 0 {
		caps |= CapSelectSource
		for source := range commands.Sources {
			sources = append(sources, source)
		}
		sort.Strings(sources)
	}

	return &MediaPlayer{
		id:         id,
		name:       name,
		controller: controller,
		table:      table,
		tx:         tx,
		logger:     logger.Named("media_player").With(zap.String("device", id)),
		caps:       caps,
		sources:    sources,
	}
}

func (m *MediaPlayer) ID() string   { return m.id }
func (m *MediaPlayer) Name() string { return m.name }
func (m *MediaPlayer) Kind() Kind   { return KindMediaPlayer }

// Capabilities returns the flags computed at construction.
func (m *MediaPlayer) Capabilities() Capability { return m.caps }

// Sources returns the sorted source list, empty without CapSelectSource.
func (m *MediaPlayer) Sources() []string { return m.sources }

// OnChange registers a listener notified after every published state change.
func (m *MediaPlayer) OnChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Snapshot returns the current in-memory state.
func (m *MediaPlayer) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	power := "off"
	if m.powered {
		power = "on"
	}

	state := map[string]interface{}{
		"state": power,
	}
	if len(m.sources) > 0 {
		state["source_list"] = m.sources
		if m.source != "" {
			state["source"] = m.source
		}
	}

	return Snapshot{
		ID:           m.id,
		Name:         m.name,
		Kind:         KindMediaPlayer,
		Capabilities: m.caps.Names(),
		State:        state,
	}
}

// TurnOn sends the on command (falling back to the power key) and marks the
// player on. A transmission fault leaves the power state untouched.
func (m *MediaPlayer) TurnOn() error {
	if err := m.sendAction(ActionOn); err != nil {
		return err
	}

	m.mu.Lock()
	m.powered = true
	m.mu.Unlock()
	m.publish()
	return nil
}

// TurnOff sends the off command and marks the player off.
func (m *MediaPlayer) TurnOff() error {
	if err := m.sendAction(ActionOff); err != nil {
		return err
	}

	m.mu.Lock()
	m.powered = false
	m.mu.Unlock()
	m.publish()
	return nil
}

// VolumeUp sends the volume up command. No state is tracked for volume.
func (m *MediaPlayer) VolumeUp() error { return m.sendAction(ActionVolumeUp) }

// VolumeDown sends the volume down command.
func (m *MediaPlayer) VolumeDown() error { return m.sendAction(ActionVolumeDown) }

// Mute sends the mute toggle command.
func (m *MediaPlayer) Mute() error { return m.sendAction(ActionMute) }

// Play sends the play command.
func (m *MediaPlayer) Play() error { return m.sendAction(ActionPlay) }

// Pause sends the pause command.
func (m *MediaPlayer) Pause() error { return m.sendAction(ActionPause) }

// StopPlayback sends the stop command.
func (m *MediaPlayer) StopPlayback() error { return m.sendAction(ActionStop) }

// SelectSource transmits the source's code and records the selection. An
// unknown source is logged and ignored.
func (m *MediaPlayer) SelectSource(source string) error {
	res := m.table.Commands.ResolveSource(source)
	if res.Status == ircodes.NotFound {
		m.logger.Warn("Source not found in code table", zap.String("source", source))
		return nil
	}

	if err := m.tx.Send(m.controller, res.Code); err != nil {
		return err
	}

	m.mu.Lock()
	m.source = source
	m.mu.Unlock()
	m.publish()
	return nil
}

// sendAction resolves a flat action and transmits it. A lookup miss is
// logged and swallowed; only a transmission fault is returned.
func (m *MediaPlayer) sendAction(action string) error {
	res := m.table.Commands.Resolve(action)
	if res.Status == ircodes.NotFound {
		m.logger.Warn("Command not found in code table", zap.String("action", action))
		return nil
	}
	return m.tx.Send(m.controller, res.Code)
}

func (m *MediaPlayer) publish() {
	snapshot := m.Snapshot()

	m.mu.Lock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}
