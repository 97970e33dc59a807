package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/me/gametools/pkg/model"
)

// Event is a unit of deferred work driven by the tick loop.
//
// Events are compared by identity, so implementations must be pointer types.
// An event lives in the registry until OnUpdate reports remove=true or it is
// removed explicitly; OnStop is called exactly once on the way out.
type Event interface {
	ID() string
	Priority() model.Priority
	Group() string

	// OnUpdate runs once per tick for queued events and once on addition
	// for instant events. Returning remove=true takes the event out of the
	// registry.
	OnUpdate(ctx context.Context) (remove bool, err error)

	OnStop(ctx context.Context) error
	OnOpenChange(ctx context.Context, w Window) error
	OnFocusChange(ctx context.Context, w Window) error
	OnStateChange(ctx context.Context, old, next State) error
}

// BaseEvent carries identity, priority and group and provides no-op hooks.
// Embed it and override the hooks an event cares about.
type BaseEvent struct {
	id       string
	priority model.Priority
	group    string
}

// NewBaseEvent returns a BaseEvent with a fresh id.
func NewBaseEvent(priority model.Priority, group string) BaseEvent {
	return BaseEvent{
		id:       "evt_" + uuid.New().String()[:8],
		priority: priority,
		group:    group,
	}
}

func (e *BaseEvent) ID() string               { return e.id }
func (e *BaseEvent) Priority() model.Priority { return e.priority }
func (e *BaseEvent) Group() string            { return e.group }

func (e *BaseEvent) OnUpdate(context.Context) (bool, error)            { return false, nil }
func (e *BaseEvent) OnStop(context.Context) error                      { return nil }
func (e *BaseEvent) OnOpenChange(context.Context, Window) error        { return nil }
func (e *BaseEvent) OnFocusChange(context.Context, Window) error       { return nil }
func (e *BaseEvent) OnStateChange(context.Context, State, State) error { return nil }

// EventType returns the name used for e in listings. Events may override it
// by implementing TypeName.
func EventType(e Event) string {
	if n, ok := e.(interface{ TypeName() string }); ok {
		return n.TypeName()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", e), "*")
}
