package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chitchat/internal/bus"
)

// State is a session authorization state.
type State string

const (
	Loading             State = "LOADING"
	Unauthenticated     State = "UNAUTHENTICATED"
	PendingVerification State = "PENDING_VERIFICATION"
	Authenticated       State = "AUTHENTICATED"
)

// validTransitions defines allowed state transitions. Self-transitions are listed
// where the state carries data that may be replaced (a new phone challenge, a
// refreshed identity).
var validTransitions = map[State][]State{
	Loading:             {Unauthenticated, Authenticated},
	Unauthenticated:     {PendingVerification, Authenticated},
	PendingVerification: {PendingVerification, Authenticated, Unauthenticated},
	Authenticated:       {Authenticated, Unauthenticated},
}

// Resolved reports whether the first auth notification has been processed.
func (s State) Resolved() bool {
	return s != Loading
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Loading state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Loading,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// CanTransition reports whether moving to the given state is allowed from the current one.
func (m *Machine) CanTransition(to State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(validTransitions[m.current], to)
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.SessionStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
