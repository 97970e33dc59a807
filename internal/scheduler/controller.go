package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/me/gametools/internal/logging"
)

// Controller owns the current state and implements the transition protocol.
type Controller struct {
	mu      sync.RWMutex
	current State

	manager  Manager
	registry *Registry
	observer Observer
	logger   *slog.Logger
}

// NewController creates a Controller whose current state is initial. A nil
// initial state selects a new ClosedState.
func NewController(initial State, manager Manager, registry *Registry, logger *slog.Logger) *Controller {
	if initial == nil {
		initial = NewClosedState()
	}
	if manager == nil {
		manager = NopManager{}
	}
	return &Controller{
		current:  initial,
		manager:  manager,
		registry: registry,
		observer: nopObserver{},
		logger:   logging.Component(logger, "state-controller"),
	}
}

// Current returns the current state. It is never nil.
func (c *Controller) Current() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// ChangeState makes next the current state:
//
//  1. old.OnStop(next)
//  2. current = next
//  3. next.OnStart(old)
//  4. manager.OnStateChange(old, next)
//  5. OnStateChange(old, next) on every instant event, then every queued event
//
// Changing to the current instance logs a warning and does nothing. Hook
// errors are returned to the caller and abort the remaining steps.
func (c *Controller) ChangeState(ctx context.Context, next State) error {
	if next == nil {
		return ErrNilState
	}
	old := c.Current()
	if next == old {
		c.logger.Warn("state change to current state ignored", "state", next.Name(), "debug_id", next.DebugID())
		return nil
	}

	if err := safeCall(func() error { return old.OnStop(ctx, next) }); err != nil {
		return fmt.Errorf("stop state %s: %w", old.Name(), err)
	}

	c.mu.Lock()
	c.current = next
	c.mu.Unlock()

	if err := safeCall(func() error { return next.OnStart(ctx, old) }); err != nil {
		return fmt.Errorf("start state %s: %w", next.Name(), err)
	}

	c.logger.Info("state changed", "from", old.Name(), "to", next.Name(), "debug_id", next.DebugID())
	c.observer.StateChanged(old, next)

	if err := c.manager.OnStateChange(ctx, old, next); err != nil {
		return fmt.Errorf("manager state change: %w", err)
	}
	return c.registry.RunForAllErr(func(e Event) error {
		if err := e.OnStateChange(ctx, old, next); err != nil {
			return fmt.Errorf("event %s state change: %w", e.ID(), err)
		}
		return nil
	})
}
