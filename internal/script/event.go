package script

import (
	"context"

	"github.com/dop251/goja"

	"github.com/me/gametools/internal/scheduler"
	"github.com/me/gametools/pkg/model"
)

var eventHooks = []string{"onUpdate", "onStop", "onOpenChange", "onFocusChange", "onStateChange"}

// Event is a scheduler event whose hooks are the global functions of a
// script: onUpdate, onStop, onOpenChange, onFocusChange and onStateChange.
// An onUpdate that returns true removes the event. The script sees an
// "event" object with id, group, priority, args and ticks.
type Event struct {
	scheduler.BaseEvent
	template string
	in       *instance
	obj      *goja.Object
	fns      map[string]goja.Callable
	ticks    int64
}

var _ scheduler.Event = (*Event)(nil)

// NewEvent creates an event from the script template. args are exposed as
// event.args.
func (e *Engine) NewEvent(template string, priority model.Priority, group string, args map[string]string) (*Event, error) {
	ev := &Event{
		BaseEvent: scheduler.NewBaseEvent(priority, group),
		template:  template,
	}
	in, err := e.load(template, func(vm *goja.Runtime) (map[string]any, error) {
		obj := vm.NewObject()
		if args == nil {
			args = map[string]string{}
		}
		for k, v := range map[string]any{
			"id":       ev.ID(),
			"group":    group,
			"priority": priority.String(),
			"args":     args,
			"ticks":    0,
		} {
			if err := obj.Set(k, v); err != nil {
				return nil, err
			}
		}
		ev.obj = obj
		return map[string]any{"event": obj}, nil
	})
	if err != nil {
		return nil, err
	}
	ev.in = in
	ev.fns = in.hooks(eventHooks...)
	return ev, nil
}

// Template returns the script the event was created from.
func (ev *Event) Template() string { return ev.template }

// TypeName names the event after its template in listings.
func (ev *Event) TypeName() string { return "script." + ev.template }

// Ticks returns how often OnUpdate ran.
func (ev *Event) Ticks() int64 { return ev.ticks }

func (ev *Event) OnUpdate(ctx context.Context) (bool, error) {
	ev.ticks++
	if err := ev.obj.Set("ticks", ev.ticks); err != nil {
		return false, err
	}
	v, err := ev.in.call(ctx, ev.fns, "onUpdate")
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

func (ev *Event) OnStop(ctx context.Context) error {
	_, err := ev.in.call(ctx, ev.fns, "onStop")
	return err
}

func (ev *Event) OnOpenChange(ctx context.Context, w scheduler.Window) error {
	_, err := ev.in.call(ctx, ev.fns, "onOpenChange", windowValue(w))
	return err
}

func (ev *Event) OnFocusChange(ctx context.Context, w scheduler.Window) error {
	_, err := ev.in.call(ctx, ev.fns, "onFocusChange", windowValue(w))
	return err
}

func (ev *Event) OnStateChange(ctx context.Context, old, next scheduler.State) error {
	_, err := ev.in.call(ctx, ev.fns, "onStateChange", old.Name(), next.Name())
	return err
}

func windowValue(w scheduler.Window) map[string]any {
	return map[string]any{
		"name":  w.Name(),
		"open":  w.IsOpen(),
		"focus": w.HasFocus(),
	}
}
