package app

import (
	"fmt"
	"slices"

	"github.com/me/gametools/internal/config"
	"github.com/me/gametools/internal/scheduler"
	"github.com/me/gametools/internal/script"
	"github.com/me/gametools/pkg/model"
)

// Templates creates script events from the configured event templates.
type Templates struct {
	engine *script.Engine
	events map[string]config.EventConfig
}

// NewTemplates compiles the script of every template.
func NewTemplates(engine *script.Engine, events []config.EventConfig) (*Templates, error) {
	t := &Templates{engine: engine, events: map[string]config.EventConfig{}}
	for _, ec := range events {
		if err := engine.Compile(ec.Name, ec.Script); err != nil {
			return nil, fmt.Errorf("event %s: %w", ec.Name, err)
		}
		t.events[ec.Name] = ec
	}
	return t, nil
}

// Templates returns the template names, sorted.
func (t *Templates) Templates() []string {
	names := make([]string, 0, len(t.events))
	for name := range t.events {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// NewEvent creates an event from the named template. args are visible to
// the script as event.args.
func (t *Templates) NewEvent(template string, args map[string]string) (scheduler.Event, error) {
	ec, ok := t.events[template]
	if !ok {
		return nil, fmt.Errorf("unknown event template %q", template)
	}
	priority, err := model.ParsePriority(ec.Priority)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", template, err)
	}
	return t.engine.NewEvent(template, priority, ec.Group, args)
}

// States holds the configured script states by name.
type States struct {
	byName map[string]scheduler.State
	order  []scheduler.State
}

// NewStates compiles and instantiates every configured state.
func NewStates(engine *script.Engine, states []config.StateConfig) (*States, error) {
	s := &States{byName: map[string]scheduler.State{}}
	for _, sc := range states {
		if err := engine.Compile(sc.Name, sc.Script); err != nil {
			return nil, fmt.Errorf("state %s: %w", sc.Name, err)
		}
		st, err := engine.NewState(sc.Name)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", sc.Name, err)
		}
		s.byName[sc.Name] = st
		s.order = append(s.order, st)
	}
	return s, nil
}

// States returns the states in configuration order.
func (s *States) States() []scheduler.State {
	return slices.Clone(s.order)
}

// State returns the state called name.
func (s *States) State(name string) (scheduler.State, bool) {
	st, ok := s.byName[name]
	return st, ok
}
