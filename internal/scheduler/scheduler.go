package scheduler

import (
	"context"
	"time"

	"github.com/me/gametools/pkg/model"
)

// Scheduler is the surface the tick loop exposes to collaborators such as
// the control API.
type Scheduler interface {
	// Start runs the tick loop. Blocks until Stop is called or ctx is cancelled.
	Start(ctx context.Context, updatesPerSecond int) error

	// Stop ends the loop, waits for the current tick and stops all events.
	Stop(ctx context.Context) error

	// Do runs fn on the loop.
	Do(ctx context.Context, fn func(ctx context.Context) error) error

	AddEvent(ctx context.Context, e Event) bool
	RemoveEvent(ctx context.Context, e Event) error
	ChangeState(ctx context.Context, next State) error

	CurrentState() State
	Events() (instant, queued []Event)
	EventsByGroup(group string) []Event
	FindEvent(id string) Event
	EventInfos() []model.EventInfo
	Windows() []Window
	Status() model.Status
}

// Window is a tracked external application window. Each poll refreshes the
// cached value and reports whether it flipped since the previous poll.
type Window interface {
	Name() string
	IsOpen() bool
	HasFocus() bool
	PollOpenChanged() bool
	PollFocusChanged() bool
}

// Manager is the application-wide collaborator notified before the current
// state on every dispatch chain.
type Manager interface {
	OnUpdate(ctx context.Context) error
	OnOpenChange(ctx context.Context, w Window) error
	OnFocusChange(ctx context.Context, w Window) error
	OnStateChange(ctx context.Context, old, next State) error
}

// InputListener turns polled input into events. Update runs once per tick.
type InputListener interface {
	Update(ctx context.Context) error
}

// LineSource delivers externally produced input (for example new game log
// lines) once per tick after the listeners.
type LineSource interface {
	FetchNewLines(ctx context.Context) error
}

// Observer receives notifications about registry, state and window changes.
// Implementations must not block.
type Observer interface {
	EventAdded(e Event)
	EventRemoved(e Event)
	StateChanged(old, next State)
	WindowChanged(w Window, kind model.HistoryKind)
	TickOverrun(elapsed, period time.Duration)
}

// NopManager is a Manager that does nothing.
type NopManager struct{}

func (NopManager) OnUpdate(context.Context) error                    { return nil }
func (NopManager) OnOpenChange(context.Context, Window) error        { return nil }
func (NopManager) OnFocusChange(context.Context, Window) error       { return nil }
func (NopManager) OnStateChange(context.Context, State, State) error { return nil }

type nopObserver struct{}

func (nopObserver) EventAdded(Event)                         {}
func (nopObserver) EventRemoved(Event)                       {}
func (nopObserver) StateChanged(State, State)                {}
func (nopObserver) WindowChanged(Window, model.HistoryKind)  {}
func (nopObserver) TickOverrun(time.Duration, time.Duration) {}
