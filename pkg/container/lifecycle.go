package container

import (
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-deployer/pkg/errors"
	"github.com/core-tools/hsu-deployer/pkg/logging"
)

// State is the lifecycle state of a deployed context
type State string

const (
	StateNew       State = "new"
	StateStarting  State = "starting"
	StateStarted   State = "started"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
	StateDestroyed State = "destroyed"
)

// IsAvailable reports whether the context is serving
func (s State) IsAvailable() bool {
	return s == StateStarted
}

// Transition is one recorded state change
type Transition struct {
	From      State
	To        State
	Operation string
	Timestamp time.Time
	Error     error
}

var validTransitions = map[State][]State{
	StateNew:       {StateStarting, StateDestroyed},
	StateStarting:  {StateStarted, StateFailed},
	StateStarted:   {StateStopping},
	StateStopping:  {StateStopped, StateFailed},
	StateStopped:   {StateStarting, StateDestroyed},
	StateFailed:    {StateStarting, StateStopping, StateDestroyed},
	StateDestroyed: {},
}

// StateMachine tracks lifecycle transitions of a single context
type StateMachine struct {
	name        string
	current     State
	transitions []Transition
	mutex       sync.RWMutex
	logger      logging.Logger
}

func NewStateMachine(name string, logger logging.Logger) *StateMachine {
	return &StateMachine{
		name:        name,
		current:     StateNew,
		transitions: make([]Transition, 0),
		logger:      logger,
	}
}

func (sm *StateMachine) Current() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.current
}

// CanTransition checks whether the state machine may move to the target state
func (sm *StateMachine) CanTransition(to State) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return canTransition(sm.current, to)
}

func canTransition(from, to State) bool {
	for _, valid := range validTransitions[from] {
		if valid == to {
			return true
		}
	}
	return false
}

// Transition moves to the target state, recording the operation and error
func (sm *StateMachine) Transition(to State, operation string, err error) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	from := sm.current
	if !canTransition(from, to) {
		return errors.NewLifecycleError(
			fmt.Sprintf("invalid state transition from %s to %s for operation %s", from, to, operation),
			nil,
		).WithContext("context", sm.name).WithContext("current_state", string(from)).WithContext("target_state", string(to))
	}

	sm.transitions = append(sm.transitions, Transition{
		From:      from,
		To:        to,
		Operation: operation,
		Timestamp: time.Now(),
		Error:     err,
	})
	sm.current = to

	if err != nil {
		sm.logger.Warnf("Context state transition failed, context: %s, %s->%s, operation: %s, error: %v",
			sm.name, from, to, operation, err)
	} else {
		sm.logger.Debugf("Context state transition, context: %s, %s->%s, operation: %s",
			sm.name, from, to, operation)
	}
	return nil
}

// History returns a copy of all recorded transitions
func (sm *StateMachine) History() []Transition {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	history := make([]Transition, len(sm.transitions))
	copy(history, sm.transitions)
	return history
}
