package app

import (
	"context"
	"log/slog"

	"github.com/me/gametools/internal/logging"
	"github.com/me/gametools/internal/scheduler"
)

// WindowManager follows the main window: when it opens the runtime enters
// the initial state, when it closes the runtime returns to the closed state.
type WindowManager struct {
	main    scheduler.Window
	initial scheduler.State
	loop    scheduler.Scheduler
	logger  *slog.Logger
}

var _ scheduler.Manager = (*WindowManager)(nil)

// NewWindowManager creates a manager for main. initial may be nil, in which
// case the runtime stays closed while the window is open.
func NewWindowManager(main scheduler.Window, initial scheduler.State, logger *slog.Logger) *WindowManager {
	return &WindowManager{
		main:    main,
		initial: initial,
		logger:  logging.Component(logger, "window-manager"),
	}
}

func (m *WindowManager) OnUpdate(context.Context) error { return nil }

func (m *WindowManager) OnOpenChange(ctx context.Context, w scheduler.Window) error {
	if w != m.main || m.loop == nil {
		return nil
	}
	if w.IsOpen() {
		if m.initial == nil {
			m.logger.Debug("main window opened, no initial state configured", "window", w.Name())
			return nil
		}
		m.logger.Info("main window opened", "window", w.Name(), "state", m.initial.Name())
		return m.loop.ChangeState(ctx, m.initial)
	}
	if scheduler.IsClosed(m.loop.CurrentState()) {
		return nil
	}
	m.logger.Info("main window closed", "window", w.Name())
	return m.loop.ChangeState(ctx, scheduler.NewClosedState())
}

func (m *WindowManager) OnFocusChange(_ context.Context, w scheduler.Window) error {
	m.logger.Debug("focus changed", "window", w.Name(), "focus", w.HasFocus())
	return nil
}

func (m *WindowManager) OnStateChange(context.Context, scheduler.State, scheduler.State) error {
	return nil
}
