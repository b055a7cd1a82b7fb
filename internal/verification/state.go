package verification

import (
	"errors"
	"fmt"
	"log/slog"
)

// State is a step of a verification cycle
type State int

const (
	StateIdle State = iota
	StateCapturing
	StatePreprocessing
	StateRecognizing
	StateLookingUp
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StatePreprocessing:
		return "preprocessing"
	case StateRecognizing:
		return "recognizing"
	case StateLookingUp:
		return "looking_up"
	case StateTerminal:
		return "terminal"
	}
	return "unknown"
}

// ErrInvalidTransition is returned for a transition missing from the table
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists the allowed next states. Terminal is absorbing.
var transitions = map[State][]State{
	StateIdle:          {StateCapturing, StateLookingUp, StateTerminal},
	StateCapturing:     {StatePreprocessing, StateRecognizing, StateTerminal},
	StatePreprocessing: {StateRecognizing, StateTerminal},
	StateRecognizing:   {StateLookingUp, StateTerminal},
	StateLookingUp:     {StateTerminal},
	StateTerminal:      nil,
}

// machine tracks one cycle's state
type machine struct {
	cycle string
	state State
	trail []State
}

func newMachine(cycle string) *machine {
	return &machine{cycle: cycle, state: StateIdle, trail: []State{StateIdle}}
}

func (m *machine) can(next State) bool {
	for _, s := range transitions[m.state] {
		if s == next {
			return true
		}
	}
	return false
}

func (m *machine) to(next State) error {
	if !m.can(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
	}
	slog.Debug("Verification state", "cycle", m.cycle, "from", m.state, "to", next)
	m.state = next
	m.trail = append(m.trail, next)
	return nil
}
