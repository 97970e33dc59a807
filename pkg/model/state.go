package model

import (
	"fmt"
	"strings"
)

// Priority controls where an event is placed when it is added.
type Priority string

const (
	// PriorityInstant events run once right away and never enter the queue.
	PriorityInstant Priority = "INSTANT"
	// PriorityFirst events are inserted at the front of the queue.
	PriorityFirst Priority = "FIRST"
	// PriorityLast events are appended to the end of the queue.
	PriorityLast Priority = "LAST"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// IsQueued returns true if events with this priority live in the ordered queue.
func (p Priority) IsQueued() bool {
	switch p {
	case PriorityFirst, PriorityLast:
		return true
	}
	return false
}

// ParsePriority converts a case-insensitive name to a Priority.
// An empty string defaults to PriorityLast.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INSTANT":
		return PriorityInstant, nil
	case "FIRST":
		return PriorityFirst, nil
	case "LAST", "":
		return PriorityLast, nil
	}
	return "", fmt.Errorf("unknown priority %q (want instant, first or last)", s)
}

// LoopState is the run state of the tick loop.
type LoopState string

const (
	LoopStateStopped LoopState = "STOPPED"
	LoopStateRunning LoopState = "RUNNING"
)

// String returns the string representation of the loop state.
func (s LoopState) String() string {
	return string(s)
}

// ValidLoopTransitions defines the allowed loop state transitions.
var ValidLoopTransitions = map[LoopState][]LoopState{
	LoopStateStopped: {LoopStateRunning},
	LoopStateRunning: {LoopStateStopped},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s LoopState) CanTransitionTo(next LoopState) bool {
	for _, allowed := range ValidLoopTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
