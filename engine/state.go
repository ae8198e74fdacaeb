package engine

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// State is the phase of a patch run.
type State uint8

const (
	Idle State = iota
	Discovering
	Downloading
	Verifying
	Applying
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Discovering:
		return "discovering"
	case Downloading:
		return "downloading"
	case Verifying:
		return "verifying"
	case Applying:
		return "applying"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Terminal reports whether no further transitions follow s within a run.
func (s State) Terminal() bool { return s == Completed || s == Failed }

// ErrInvalidTransition is returned when the engine is driven out of order.
var ErrInvalidTransition = errors.New("engine: invalid state transition")

// transitions lists the legal successors of each state. Failed is legal
// from every non-terminal state and is not listed.
var transitions = map[State][]State{
	Idle:        {Discovering, Verifying},
	Discovering: {Downloading, Completed},
	Downloading: {Verifying},
	Verifying:   {Applying},
	Applying:    {Downloading, Verifying, Completed},
}

// machine tracks the current state. It is safe for concurrent reads.
type machine struct {
	mu      sync.RWMutex
	state   State
	err     error
	history []State
}

func (m *machine) current() (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.err
}

func (m *machine) to(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == next {
		return nil
	}
	legal := next == Failed && !m.state.Terminal()
	if !legal {
		legal = slices.Contains(transitions[m.state], next)
	}
	if !legal {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, m.state, next)
	}
	m.state = next
	m.history = append(m.history, next)
	return nil
}

// fail moves to Failed and records err. It is a no-op once terminal.
func (m *machine) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Terminal() {
		return
	}
	m.state = Failed
	m.err = err
	m.history = append(m.history, Failed)
}

// reset returns to Idle for a new run. It fails while a run is active.
func (m *machine) reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle && !m.state.Terminal() {
		return fmt.Errorf("%w: run already in progress (%s)", ErrInvalidTransition, m.state)
	}
	m.state = Idle
	m.err = nil
	m.history = []State{Idle}
	return nil
}

func (m *machine) trace() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.history)
}
