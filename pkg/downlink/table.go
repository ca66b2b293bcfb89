package downlink

import (
	"fmt"
)

// Transition is a key of the transition table.
type Transition struct {
	From State
	On   Event
}

// TransitionTable maps every (State, Event) pair to its result, which is
// either a resting state or one of NoChange, Unexpected and TurnOnRx.
type TransitionTable map[Transition]State

// Rows is the tabular form of a TransitionTable, one row per state with a
// column per event.
type Rows map[State][NumEvents]State

// NewTransitionTable builds a table from rows and verifies it is total.
func NewTransitionTable(rows Rows) (TransitionTable, error) {
	t := make(TransitionTable)
	for s := State(0); s < NumStates; s++ {
		row, ok := rows[s]
		if !ok {
			return nil, fmt.Errorf("state %v: missing row", s)
		}
		for e, next := range row {
			if !next.Valid() && next != NoChange && next != Unexpected && next != TurnOnRx {
				return nil, fmt.Errorf("state %v event %v: invalid result %v", s, Event(e), next)
			}
			t[Transition{From: s, On: Event(e)}] = next
		}
	}
	if len(rows) != NumStates {
		return nil, fmt.Errorf("%d rows for %d states", len(rows), NumStates)
	}
	return t, nil
}

// Lookup returns the result of ev in state s.
func (t TransitionTable) Lookup(s State, ev Event) State {
	if next, ok := t[Transition{From: s, On: ev}]; ok {
		return next
	}
	return Unexpected
}

// DefaultRows is the flight transition table. Columns follow the Event
// order: IdleTimeout, BeaconTimeout, FrameComplete, EnterSafe, EnterHealth,
// EnterAutoSafe, InhibitTx, EnableTx, EnterScience, EnterEclipseSafe.
func DefaultRows() Rows {
	const (
		nc = NoChange
		ux = Unexpected
		rx = TurnOnRx
	)
	return Rows{
		Health:            {ux, ux, rx, Safe, nc, AutoSafe, TransmitInhibit, nc, Science, EclipseSafe},
		Safe:              {SafeBeacon, ux, nc, nc, Health, AutoSafe, TransmitInhibit, nc, Science, EclipseSafe},
		SafeBeacon:        {nc, Safe, Safe, nc, Health, AutoSafe, TransmitInhibit, nc, Science, EclipseSafe},
		AutoSafe:          {AutoSafeBeacon, ux, nc, Safe, Health, nc, TransmitInhibit, nc, ux, nc},
		AutoSafeBeacon:    {nc, AutoSafe, AutoSafe, Safe, Health, nc, TransmitInhibit, nc, ux, nc},
		EclipseSafe:       {EclipseSafeBeacon, ux, nc, Safe, Health, AutoSafe, TransmitInhibit, nc, ux, nc},
		EclipseSafeBeacon: {nc, EclipseSafe, EclipseSafe, Safe, Health, AutoSafe, TransmitInhibit, nc, ux, nc},
		TransmitInhibit:   {nc, nc, nc, nc, nc, nc, nc, Safe, nc, nc},
		Science:           {ux, ux, rx, Safe, Health, AutoSafe, TransmitInhibit, nc, nc, EclipseSafe},
	}
}

// DefaultTransitions returns the flight transition table.
func DefaultTransitions() TransitionTable {
	t, err := NewTransitionTable(DefaultRows())
	if err != nil {
		panic(err)
	}
	return t
}
