package downlink

import (
	"context"
	"fmt"
)

// KeyMode selects what the transmitter sends while keyed.
type KeyMode int

// Key modes.
const (
	KeyCarrier KeyMode = iota
	KeyData
)

// String implements fmt.Stringer.
func (k KeyMode) String() string {
	switch k {
	case KeyCarrier:
		return "carrier"
	case KeyData:
		return "data"
	}
	return fmt.Sprintf("KeyMode(%d)", int(k))
}

// PowerLevel is the transmitter output level.
type PowerLevel int

// Power levels.
const (
	PowerNormal PowerLevel = iota
	PowerLow
)

// String implements fmt.Stringer.
func (p PowerLevel) String() string {
	if p == PowerLow {
		return "low"
	}
	return "normal"
}

// Radio controls the transmitter.
type Radio interface {
	Key(KeyMode) error
	Unkey() error
	SetPower(PowerLevel) error
}

// Persistent flags.
const (
	KeyInSafeMode = "InSafeMode"
	KeyAutoSafe   = "AutoSafe"
	KeyLowPower   = "LowPower"
)

// ConfigStore persists boolean flags across resets.
type ConfigStore interface {
	// ReadBoolState returns def when key was never written.
	ReadBoolState(key string, def bool) (bool, error)
	WriteBoolState(key string, value bool) error
}

// Watchdog is reported to on every task iteration.
type Watchdog interface {
	Report(name string)
}

// WatchdogFunc is the func form of Watchdog.
type WatchdogFunc func(string)

// Report implements Watchdog.
func (f WatchdogFunc) Report(name string) {
	f(name)
}

// StandbyPartner tells whether the redundant unit is ready to take over
// reception.
type StandbyPartner interface {
	Available() bool
}

// PartnerFunc is the func form of StandbyPartner.
type PartnerFunc func() bool

// Available implements StandbyPartner.
func (f PartnerFunc) Available() bool {
	return f()
}

// Collector samples telemetry while the Machine is idle.
type Collector interface {
	Collect(context.Context)
}

// FrameBuffers is the part of the buffer manager the Machine drives.
type FrameBuffers interface {
	StopTelemetryProcessing()
	InitRestart()
	RequestFill() bool
}

// Status is published after every transition.
type Status struct {
	State State
	Mode  Mode
	Event Event
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return fmt.Sprintf("%v (%v)", s.State, s.Mode)
}

// StateNotifier is notified after the Machine changes state.
type StateNotifier interface {
	StateChanged(Status)
}

// StateChangedFunc is the func form of StateNotifier.
type StateChangedFunc func(Status)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(s Status) {
	f(s)
}
