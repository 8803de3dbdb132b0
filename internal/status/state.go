package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/chet-im/chet/internal/bus"
)

// State is a connection session state. The machine is owned by the
// engine; every other component only observes it.
type State string

const (
	Disconnected  State = "DISCONNECTED"
	Connecting    State = "CONNECTING"
	Authenticated State = "AUTHENTICATED"
	Degraded      State = "DEGRADED"
)

// validTransitions defines the allowed session lifecycle edges.
var validTransitions = map[State][]State{
	Disconnected:  {Connecting},
	Connecting:    {Authenticated, Disconnected},
	Authenticated: {Disconnected, Degraded},
	Degraded:      {Disconnected, Connecting},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	reason  string
	bus     *bus.Bus
}

// NewMachine creates a machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Disconnected, bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reason returns the reason recorded with the last transition, normally
// set only when entering Degraded.
func (m *Machine) Reason() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reason
}

// Transition attempts to move to a new state and publishes the change.
// Returns an error if the edge is not in the lifecycle table.
func (m *Machine) Transition(to State) error {
	return m.TransitionReason(to, "")
}

// TransitionReason is Transition with an attached reason string.
func (m *Machine) TransitionReason(to State, reason string) error {
	m.mu.Lock()
	if !slices.Contains(validTransitions[m.current], to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.reason = reason
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to, Reason: reason})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From   State
	To     State
	Reason string
}
