package scheduler

import (
	"context"
	"sync/atomic"
)

// State is a mutually exclusive operating mode. Exactly one state is current
// at any time; OnStart runs after it became current and OnStop before it
// stops being current.
type State interface {
	Name() string
	DebugID() int64

	OnStart(ctx context.Context, previous State) error
	OnStop(ctx context.Context, next State) error
	OnUpdate(ctx context.Context) error
	OnOpenChange(ctx context.Context, w Window) error
	OnFocusChange(ctx context.Context, w Window) error
}

var stateDebugIDs atomic.Int64

// BaseState provides a name, an auto-incrementing debug id and no-op hooks.
type BaseState struct {
	name    string
	debugID int64
}

// NewBaseState returns a BaseState with the next debug id.
func NewBaseState(name string) BaseState {
	return BaseState{name: name, debugID: stateDebugIDs.Add(1)}
}

func (s *BaseState) Name() string   { return s.name }
func (s *BaseState) DebugID() int64 { return s.debugID }

func (s *BaseState) OnStart(context.Context, State) error        { return nil }
func (s *BaseState) OnStop(context.Context, State) error         { return nil }
func (s *BaseState) OnUpdate(context.Context) error              { return nil }
func (s *BaseState) OnOpenChange(context.Context, Window) error  { return nil }
func (s *BaseState) OnFocusChange(context.Context, Window) error { return nil }

// ClosedStateName is the name of the initial and terminal state.
const ClosedStateName = "closed"

// ClosedState is the state a run starts in and returns to when the tracked
// application goes away.
type ClosedState struct {
	BaseState
}

// NewClosedState returns a new closed state.
func NewClosedState() *ClosedState {
	return &ClosedState{BaseState: NewBaseState(ClosedStateName)}
}

// IsClosed reports whether s is a closed state.
func IsClosed(s State) bool {
	_, ok := s.(*ClosedState)
	return ok
}
