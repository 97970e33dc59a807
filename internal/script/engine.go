// Package script defines events, states, listener conditions and actions in
// JavaScript, evaluated with goja.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/me/gametools/internal/logging"
)

// DefaultCallTimeout bounds a single call into a script.
const DefaultCallTimeout = time.Second

// Engine holds compiled scripts by name. Every event, state and condition
// created from it runs in its own goja runtime.
type Engine struct {
	logger      *slog.Logger
	callTimeout time.Duration

	mu       sync.RWMutex
	programs map[string]*goja.Program
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithCallTimeout sets how long a script call may run before it is
// interrupted.
func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.callTimeout = d }
}

// NewEngine creates an empty engine.
func NewEngine(logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		logger:      logging.Component(logger, "script"),
		callTimeout: DefaultCallTimeout,
		programs:    map[string]*goja.Program{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile compiles src and stores it under name, replacing any previous
// script with that name.
func (e *Engine) Compile(name, src string) error {
	prg, err := goja.Compile(name, src, false)
	if err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.programs[name] = prg
	return nil
}

// Has reports whether a script named name was compiled.
func (e *Engine) Has(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.programs[name]
	return ok
}

// Names returns the compiled script names, sorted.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.programs))
	for n := range e.programs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// instance is one runtime with a script loaded into it.
type instance struct {
	name    string
	vm      *goja.Runtime
	timeout time.Duration
}

// load runs the named script in a new runtime. globals is called with that
// runtime before the script runs and returns extra globals to define.
func (e *Engine) load(name string, globals func(vm *goja.Runtime) (map[string]any, error)) (*instance, error) {
	e.mu.RLock()
	prg, ok := e.programs[name]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown script %q", name)
	}

	in, err := e.newInstance(name)
	if err != nil {
		return nil, err
	}
	if globals != nil {
		g, err := globals(in.vm)
		if err != nil {
			return nil, fmt.Errorf("globals for %s: %w", name, err)
		}
		for k, v := range g {
			if err := in.vm.Set(k, v); err != nil {
				return nil, fmt.Errorf("set %s: %w", k, err)
			}
		}
	}
	if _, err := in.run(func() (goja.Value, error) { return in.vm.RunProgram(prg) }); err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	return in, nil
}

// newInstance creates a runtime with the log() builtin.
func (e *Engine) newInstance(name string) (*instance, error) {
	vm := goja.New()
	logger := e.logger.With("script", name)
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		logger.Info(strings.Join(parts, " "))
		return goja.Undefined()
	}
	if err := vm.Set("log", logFn); err != nil {
		return nil, fmt.Errorf("set log: %w", err)
	}
	return &instance{name: name, vm: vm, timeout: e.callTimeout}, nil
}

// run executes fn with the call timeout armed.
func (in *instance) run(fn func() (goja.Value, error)) (goja.Value, error) {
	if in.timeout > 0 {
		t := time.AfterFunc(in.timeout, func() {
			in.vm.Interrupt(fmt.Sprintf("script %s exceeded %v", in.name, in.timeout))
		})
		defer func() {
			t.Stop()
			in.vm.ClearInterrupt()
		}()
	}
	return fn()
}

// hooks looks up the named global functions. Missing ones are skipped.
func (in *instance) hooks(names ...string) map[string]goja.Callable {
	fns := map[string]goja.Callable{}
	for _, n := range names {
		if fn, ok := goja.AssertFunction(in.vm.Get(n)); ok {
			fns[n] = fn
		}
	}
	return fns
}

// call invokes hook if it is defined. ctx is checked before the call only;
// a running script is stopped by the call timeout.
func (in *instance) call(ctx context.Context, fns map[string]goja.Callable, hook string, args ...any) (goja.Value, error) {
	fn, ok := fns[hook]
	if !ok {
		return goja.Undefined(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = in.vm.ToValue(a)
	}
	v, err := in.run(func() (goja.Value, error) { return fn(goja.Undefined(), vals...) })
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", in.name, hook, err)
	}
	return v, nil
}
