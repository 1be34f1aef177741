// Package device implements the IR device adapters. Each adapter owns one
// loaded code table and the in-memory state for that device, and drives the
// resolver and transmitter on every state-change request.
package device

// Kind identifies the adapter variant.
type Kind string

const (
	KindClimate     Kind = "climate"
	KindMediaPlayer Kind = "media_player"
)

// Capability is a bitmask of features an adapter supports. It is computed
// once at construction from the loaded code table and never mutated.
type Capability uint32

const (
	CapTargetTemperature Capability = 1 << iota
	CapOnOff
	CapFanMode
	CapVolumeStep
	CapVolumeMute
	CapSelectSource
	CapPlayback
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CapTargetTemperature, "target_temperature"},
	{CapOnOff, "on_off"},
	{CapFanMode, "fan_mode"},
	{CapVolumeStep, "volume_step"},
	{CapVolumeMute, "volume_mute"},
	{CapSelectSource, "select_source"},
	{CapPlayback, "playback"},
}

// Has reports whether all bits in flag are set.
func (c Capability) Has(flag Capability) bool {
	return c&flag == flag
}

// Names returns the set capability names for API responses.
func (c Capability) Names() []string {
	var names []string
	for _, entry := range capabilityNames {
		if c.Has(entry.cap) {
			names = append(names, entry.name)
		}
	}
	return names
}

// Snapshot is the externally visible state of an adapter.
type Snapshot struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Kind         Kind                   `json:"kind"`
	Capabilities []string               `json:"capabilities"`
	State        map[string]interface{} `json:"state"`
}

// Listener receives a snapshot after every published state change.
type Listener func(Snapshot)

// Adapter is the common surface of the two device variants.
type Adapter interface {
	ID() string
	Name() string
	Kind() Kind
	Capabilities() Capability
	Snapshot() Snapshot
	OnChange(Listener)
}
