package script

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

// Env supplies the globals visible to a condition or action at call time.
type Env func() map[string]any

// Condition evaluates a JavaScript expression to a boolean.
type Condition struct {
	expr string
	prg  *goja.Program
	in   *instance
	env  Env
}

// NewCondition compiles expr. env may be nil.
func (e *Engine) NewCondition(expr string, env Env) (*Condition, error) {
	prg, err := goja.Compile("condition", "("+expr+")", false)
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expr, err)
	}
	in, err := e.newInstance("condition")
	if err != nil {
		return nil, err
	}
	return &Condition{expr: expr, prg: prg, in: in, env: env}, nil
}

// Expr returns the source expression.
func (c *Condition) Expr() string { return c.expr }

// Eval evaluates the expression with the current environment.
func (c *Condition) Eval(ctx context.Context) (bool, error) {
	v, err := c.in.runProgram(ctx, c.prg, c.env)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", c.expr, err)
	}
	return v.ToBoolean(), nil
}

// Action runs a JavaScript snippet, for example as an instant listener.
type Action struct {
	name string
	prg  *goja.Program
	in   *instance
	env  Env
}

// NewAction compiles src. The runtime is kept between runs, so globals set
// by one run are visible to the next.
func (e *Engine) NewAction(name, src string, env Env) (*Action, error) {
	prg, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile action %s: %w", name, err)
	}
	in, err := e.newInstance(name)
	if err != nil {
		return nil, err
	}
	return &Action{name: name, prg: prg, in: in, env: env}, nil
}

// Run executes the action.
func (a *Action) Run(ctx context.Context) error {
	if _, err := a.in.runProgram(ctx, a.prg, a.env); err != nil {
		return fmt.Errorf("action %s: %w", a.name, err)
	}
	return nil
}

func (in *instance) runProgram(ctx context.Context, prg *goja.Program, env Env) (goja.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if env != nil {
		for k, v := range env() {
			if err := in.vm.Set(k, v); err != nil {
				return nil, fmt.Errorf("set %s: %w", k, err)
			}
		}
	}
	return in.run(func() (goja.Value, error) { return in.vm.RunProgram(prg) })
}
