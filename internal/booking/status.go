// Package booking is the single engine behind every booking entry point:
// slot listing, race-safe creation, and the appointment status lifecycle.
package booking

import "github.com/reboucasericka/Sistema-sub001/internal/model"

// StateMachine holds the allowed appointment status transitions.
type StateMachine struct {
	transitions map[model.Status][]model.Status
}

// NewStateMachine creates the appointment lifecycle:
// pending -> confirmed -> completed, and pending|confirmed -> canceled.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[model.Status][]model.Status{
			model.StatusPending:   {model.StatusConfirmed, model.StatusCanceled},
			model.StatusConfirmed: {model.StatusCompleted, model.StatusCanceled},
			model.StatusCompleted: nil,
			model.StatusCanceled:  nil,
		},
	}
}

// CanTransition checks if transition is allowed.
func (m *StateMachine) CanTransition(from, to model.Status) bool {
	for _, s := range m.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next returns the statuses reachable from from; empty for final statuses.
func (m *StateMachine) Next(from model.Status) []model.Status {
	return append([]model.Status{}, m.transitions[from]...)
}
