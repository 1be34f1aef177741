package device

import (
	"fmt"
	"strconv"
	"sync"

	"easyir/internal/ha"
	"easyir/internal/ircodes"
	"easyir/internal/transmit"

	"go.uber.org/zap"
)

// HVACModeOff is the power-off mode; it bypasses the nested lookup and uses
// the table's dedicated off command.
const HVACModeOff = "off"

// hvacModeNames maps code-table mode strings to their canonical form.
var hvacModeNames = map[string]string{
	"off":      "off",
	"cool":     "cool",
	"heat":     "heat",
	"auto":     "auto",
	"dry":      "dry",
	"fan":      "fan_only",
	"fan_only": "fan_only",
}

const defaultTargetTemperature = 24

// Climate adapts a climate code table. In-memory state is authoritative for
// display: IR is one-way, so a failed lookup leaves the already-updated state
// in place and the displayed state may diverge from the physical device.
type Climate struct {
	id         string
	name       string
	controller string
	sensor     string
	table      *ircodes.ClimateTable
	client     ha.HAClient
	tx         *transmit.Transmitter
	logger     *zap.Logger

	caps      Capability
	hvacModes []string

	mu                 sync.Mutex
	hvacMode           string
	fanMode            string
	targetTemperature  float64
	currentTemperature *float64
	listeners          []Listener
	sensorSub          ha.Subscription
}

// NewClimate builds a climate adapter from a loaded table. Capability flags
// and the offered mode lists are fixed here and never change afterwards.
func NewClimate(id, name, controller, sensor string, table *ircodes.ClimateTable,
	client ha.HAClient, tx *transmit.Transmitter, logger *zap.Logger) *Climate {

	var hvacModes []string
	seen := make(map[string]bool)
	for _, mode := range table.OperationModes {
		canonical, ok := hvacModeNames[mode]
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		hvacModes = append(hvacModes, canonical)
	}
	if table.Commands.HasOff() && !seen[HVACModeOff] {
		hvacModes = append(hvacModes, HVACModeOff)
	}

	caps := CapTargetTemperature | CapOnOff
	if len(table.FanModes) > 0 {
		caps |= CapFanMode
	}

	fanMode := "auto"
	if len(table.FanModes) > 0 {
		fanMode = table.FanModes[0]
	}

	return &Climate{
		id:                id,
		name:              name,
		controller:        controller,
		sensor:            sensor,
		table:             table,
		client:            client,
		tx:                tx,
		logger:            logger.Named("climate").With(zap.String("device", id)),
		caps:              caps,
		hvacModes:         hvacModes,
		hvacMode:          HVACModeOff,
		fanMode:           fanMode,
		targetTemperature: defaultTargetTemperature,
	}
}

func (c *Climate) ID() string   { return c.id }
func (c *Climate) Name() string { return c.name }
func (c *Climate) Kind() Kind   { return KindClimate }

// Capabilities returns the flags computed at construction.
func (c *Climate) Capabilities() Capability { return c.caps }

// HVACModes returns the modes the table supports, in table order.
func (c *Climate) HVACModes() []string { return c.hvacModes }

// OnChange registers a listener notified after every published state change.
func (c *Climate) OnChange(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Snapshot returns the current in-memory state.
func (c *Climate) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := map[string]interface{}{
		"hvac_mode":          c.hvacMode,
		"fan_mode":           c.fanMode,
		"target_temperature": c.targetTemperature,
		"hvac_modes":         c.hvacModes,
		"min_temperature":    c.table.MinTemperature,
		"max_temperature":    c.table.MaxTemperature,
		"temperature_step":   c.table.Precision,
	}
	if len(c.table.FanModes) > 0 {
		state["fan_modes"] = c.table.FanModes
	}
	if c.currentTemperature != nil {
		state["current_temperature"] = *c.currentTemperature
	}

	return Snapshot{
		ID:           c.id,
		Name:         c.name,
		Kind:         KindClimate,
		Capabilities: c.caps.Names(),
		State:        state,
	}
}

// SetHVACMode updates the target mode, transmits the matching code and
// publishes the new state. The in-memory mode is updated before resolution
// and is not rolled back when no code exists.
func (c *Climate) SetHVACMode(mode string) error {
	c.mu.Lock()
	c.hvacMode = mode
	c.mu.Unlock()

	if err := c.sendCurrent(); err != nil {
		return err
	}
	c.publish()
	return nil
}

// SetTemperature updates the target temperature, transmits and publishes.
func (c *Climate) SetTemperature(temperature float64) error {
	c.mu.Lock()
	c.targetTemperature = temperature
	c.mu.Unlock()

	if err := c.sendCurrent(); err != nil {
		return err
	}
	c.publish()
	return nil
}

// SetFanMode updates the fan speed, transmits and publishes.
func (c *Climate) SetFanMode(fanMode string) error {
	c.mu.Lock()
	c.fanMode = fanMode
	c.mu.Unlock()

	if err := c.sendCurrent(); err != nil {
		return err
	}
	c.publish()
	return nil
}

// sendCurrent resolves the current in-memory triple and transmits the result.
// Lookup misses are logged and swallowed; only a transmission fault is
// returned to the caller.
func (c *Climate) sendCurrent() error {
	c.mu.Lock()
	mode := c.hvacMode
	fan := c.fanMode
	temperature := int(c.targetTemperature)
	c.mu.Unlock()

	if mode == HVACModeOff {
		res := c.table.Commands.ResolveOff()
		if res.Status == ircodes.NotFound {
			c.logger.Error("Off command not found in code table")
			return nil
		}
		return c.tx.Send(c.controller, res.Code)
	}

	res := c.table.Commands.Resolve(mode, fan, temperature)
	switch res.Status {
	case ircodes.NotFound:
		c.logger.Error("No IR code for requested state",
			zap.String("mode", mode),
			zap.String("fan", fan),
			zap.Int("temperature", temperature))
		return nil
	case ircodes.Substituted:
		c.logger.Warn("Fan mode missing from code table, using fallback",
			zap.String("requested", fan),
			zap.String("used", res.UsedFan))
	}

	return c.tx.Send(c.controller, res.Code)
}

// TrackSensor seeds the displayed temperature from the configured sensor and
// subscribes to its updates. Non-numeric, unavailable and unknown states are
// ignored without error.
func (c *Climate) TrackSensor() error {
	if c.sensor == "" {
		return nil
	}

	if state, err := c.client.GetState(c.sensor); err == nil {
		c.applySensorState(state)
	}

	sub, err := c.client.SubscribeStateChanges(c.sensor, func(_ string, _, newState *ha.State) {
		if c.applySensorState(newState) {
			c.publish()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to temperature sensor %s: %w", c.sensor, err)
	}

	c.mu.Lock()
	c.sensorSub = sub
	c.mu.Unlock()
	return nil
}

// Stop releases the sensor subscription.
func (c *Climate) Stop() {
	c.mu.Lock()
	sub := c.sensorSub
	c.sensorSub = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (c *Climate) applySensorState(state *ha.State) bool {
	if state == nil || state.State == "unavailable" || state.State == "unknown" {
		return false
	}

	value, err := strconv.ParseFloat(state.State, 64)
	if err != nil {
		return false
	}

	c.mu.Lock()
	c.currentTemperature = &value
	c.mu.Unlock()
	return true
}

func (c *Climate) publish() {
	snapshot := c.Snapshot()

	c.mu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}
