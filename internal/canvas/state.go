package canvas

import (
	"sync"

	"github.com/adverant/nexus/whiteboard-tutor/internal/errors"
)

// State is a board's position in the annotation lifecycle
type State string

const (
	StateEmpty          State = "EMPTY"
	StateQuestionPlaced State = "QUESTION_PLACED"
	StateAnnotating     State = "ANNOTATING"
	StateAnnotated      State = "ANNOTATED"
	StateCleared        State = "CLEARED"
)

// A failed cycle returns ANNOTATING to QUESTION_PLACED; a new ask from
// ANNOTATED sweeps and re-enters ANNOTATING directly.
var transitions = map[State][]State{
	StateEmpty:          {StateQuestionPlaced},
	StateQuestionPlaced: {StateAnnotating, StateCleared},
	StateAnnotating:     {StateAnnotated, StateQuestionPlaced},
	StateAnnotated:      {StateAnnotating, StateCleared},
	StateCleared:        {StateQuestionPlaced},
}

// StateMachine tracks one board's lifecycle state
type StateMachine struct {
	mu    sync.Mutex
	state State
}

// NewStateMachine starts in EMPTY
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateEmpty}
}

// State returns the current state
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CanTransition reports whether to is reachable from the current state
func (m *StateMachine) CanTransition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return allowed(m.state, to)
}

// Transition moves to the given state or returns INVALID_TRANSITION
func (m *StateMachine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !allowed(m.state, to) {
		return errors.NewInvalidTransitionError(string(m.state), string(to))
	}
	m.state = to
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
