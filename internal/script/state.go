package script

import (
	"context"

	"github.com/dop251/goja"

	"github.com/me/gametools/internal/scheduler"
)

var stateHooks = []string{"onStart", "onStop", "onUpdate", "onOpenChange", "onFocusChange"}

// State is a scheduler state backed by the global functions onStart,
// onStop, onUpdate, onOpenChange and onFocusChange of a script. onStart and
// onStop receive the name of the other state.
type State struct {
	scheduler.BaseState
	in  *instance
	fns map[string]goja.Callable
}

var _ scheduler.State = (*State)(nil)

// NewState creates the state defined by the script called name. The script
// sees a "state" object with name and debugId.
func (e *Engine) NewState(name string) (*State, error) {
	st := &State{BaseState: scheduler.NewBaseState(name)}
	in, err := e.load(name, func(vm *goja.Runtime) (map[string]any, error) {
		return map[string]any{
			"state": map[string]any{"name": name, "debugId": st.DebugID()},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	st.in = in
	st.fns = in.hooks(stateHooks...)
	return st, nil
}

func (s *State) OnStart(ctx context.Context, previous scheduler.State) error {
	_, err := s.in.call(ctx, s.fns, "onStart", previous.Name())
	return err
}

func (s *State) OnStop(ctx context.Context, next scheduler.State) error {
	_, err := s.in.call(ctx, s.fns, "onStop", next.Name())
	return err
}

func (s *State) OnUpdate(ctx context.Context) error {
	_, err := s.in.call(ctx, s.fns, "onUpdate")
	return err
}

func (s *State) OnOpenChange(ctx context.Context, w scheduler.Window) error {
	_, err := s.in.call(ctx, s.fns, "onOpenChange", windowValue(w))
	return err
}

func (s *State) OnFocusChange(ctx context.Context, w scheduler.Window) error {
	_, err := s.in.call(ctx, s.fns, "onFocusChange", windowValue(w))
	return err
}
