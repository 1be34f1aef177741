package ircodes

import (
	"sort"
	"strconv"
)

// Status classifies the outcome of a code lookup.
type Status int

const (
	// Found means the exact requested entry exists.
	Found Status = iota
	// NotFound means no usable entry exists; nothing should be transmitted.
	NotFound
	// Substituted means the requested fan speed was absent and the first
	// available fan speed under the mode was used instead.
	Substituted
)

// Resolution is the tagged result of a code lookup.
type Resolution struct {
	Status  Status
	Code    CodeValue
	UsedFan string
}

func found(code CodeValue) Resolution        { return Resolution{Status: Found, Code: code} }
func notFound() Resolution                   { return Resolution{Status: NotFound} }
func substituted(code CodeValue, fan string) Resolution {
	return Resolution{Status: Substituted, Code: code, UsedFan: fan}
}

// ResolveOff returns the table's dedicated off command, or NotFound when the
// table has none.
func (c ClimateCommands) ResolveOff() Resolution {
	if !c.HasOff() {
		return notFound()
	}
	return found(c.Off)
}

// Resolve walks the mode -> fan -> temperature mapping for the requested
// triple. A missing fan speed falls back to the first fan entry under the
// mode in lexical order; a missing mode or temperature yields NotFound.
func (c ClimateCommands) Resolve(mode, fan string, temperature int) Resolution {
	fans, ok := c.Modes[mode]
	if !ok || len(fans) == 0 {
		return notFound()
	}

	usedFan := ""
	temps, ok := fans[fan]
	if !ok {
		keys := make([]string, 0, len(fans))
		for k := range fans {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		usedFan = keys[0]
		temps = fans[usedFan]
	}

	code, ok := temps[strconv.Itoa(temperature)]
	if !ok {
		return notFound()
	}

	if usedFan != "" {
		return substituted(code, usedFan)
	}
	return found(code)
}

// Resolve looks up a flat media action. The synthetic "on" action retries the
// "power" key before giving up.
func (m MediaCommands) Resolve(action string) Resolution {
	code, ok := m.Actions[action]
	if !ok && action == "on" {
		code, ok = m.Actions["power"]
	}
	if !ok || len(code) == 0 {
		return notFound()
	}
	return found(code)
}

// ResolveSource looks up a source name in the sources sub-mapping.
func (m MediaCommands) ResolveSource(source string) Resolution {
	code, ok := m.Sources[source]
	if !ok || len(code) == 0 {
		return notFound()
	}
	return found(code)
}
