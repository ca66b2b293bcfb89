// Package downlink decides what the transmitter does in each operating
// mode. The Machine consumes events from a single task queue and drives
// the radio, the frame buffers and the producer accordingly.
package downlink

import (
	"fmt"
	"strings"
)

// Mode is the externally visible operating mode.
type Mode uint8

// Modes.
const (
	ModeSafe Mode = iota
	ModeHealth
	ModeScience
	ModeAutoSafe
	ModeEclipseSafe
)

var modeNames = [...]string{"Safe", "Health", "Science", "AutoSafe", "EclipseSafe"}

// String implements fmt.Stringer.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// State is an internal state of the Machine.
type State int

// States. NoChange, Unexpected and TurnOnRx are only found in the
// transition table; the Machine never rests in them.
const (
	Health State = iota
	Safe
	SafeBeacon
	AutoSafe
	AutoSafeBeacon
	EclipseSafe
	EclipseSafeBeacon
	TransmitInhibit
	Science

	NumStates = iota

	NoChange   State = -1
	Unexpected State = -2
	TurnOnRx   State = -3
)

var stateNames = [...]string{
	"Health", "Safe", "SafeBeacon", "AutoSafe", "AutoSafeBeacon",
	"EclipseSafe", "EclipseSafeBeacon", "TransmitInhibit", "Science",
}

// String implements fmt.Stringer.
func (s State) String() string {
	switch {
	case s >= 0 && int(s) < len(stateNames):
		return stateNames[s]
	case s == NoChange:
		return "NoChange"
	case s == Unexpected:
		return "Unexpected"
	case s == TurnOnRx:
		return "TurnOnRx"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Valid tells whether s is a resting state.
func (s State) Valid() bool {
	return s >= 0 && s < NumStates
}

// Mode returns the operating mode reported while resting in s.
// TransmitInhibit has no mode of its own.
func (s State) Mode() Mode {
	switch s {
	case Health:
		return ModeHealth
	case Science:
		return ModeScience
	case AutoSafe, AutoSafeBeacon:
		return ModeAutoSafe
	case EclipseSafe, EclipseSafeBeacon:
		return ModeEclipseSafe
	}
	return ModeSafe
}

// Event is an input to the Machine.
type Event int

// Events. IdleTimeout and BeaconTimeout are raised by the Machine's own
// alarms; FrameComplete by the radio.
const (
	IdleTimeout Event = iota
	BeaconTimeout
	FrameComplete
	EnterSafe
	EnterHealth
	EnterAutoSafe
	InhibitTx
	EnableTx
	EnterScience
	EnterEclipseSafe

	NumEvents = iota
)

// NoEvent marks a status which was not caused by an event.
const NoEvent Event = -1

var eventNames = [...]string{
	"IdleTimeout", "BeaconTimeout", "FrameComplete", "EnterSafe", "EnterHealth",
	"EnterAutoSafe", "InhibitTx", "EnableTx", "EnterScience", "EnterEclipseSafe",
}

// String implements fmt.Stringer.
func (e Event) String() string {
	if e == NoEvent {
		return "none"
	}
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Valid tells whether e is a known event.
func (e Event) Valid() bool {
	return e >= 0 && e < NumEvents
}

// ParseEvent looks up an event by name, case-insensitively.
func ParseEvent(name string) (Event, error) {
	for n, s := range eventNames {
		if strings.EqualFold(s, name) {
			return Event(n), nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", name)
}

// Events lists all events in order.
func Events() []Event {
	events := make([]Event, NumEvents)
	for n := range events {
		events[n] = Event(n)
	}
	return events
}
