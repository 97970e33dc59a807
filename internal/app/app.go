// Package app wires the configuration into a runnable runtime: windows,
// input, scripts, the log watcher, the history journal, the tick loop and
// the control API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/me/gametools/internal/config"
	"github.com/me/gametools/internal/input"
	"github.com/me/gametools/internal/logging"
	"github.com/me/gametools/internal/logwatch"
	"github.com/me/gametools/internal/scheduler"
	"github.com/me/gametools/internal/script"
	"github.com/me/gametools/internal/server"
	"github.com/me/gametools/internal/store"
	"github.com/me/gametools/internal/window"
)

const (
	// instantLogInterval rate-limits the log line of instant listeners.
	instantLogInterval = time.Second

	shutdownTimeout = 5 * time.Second
)

// App is a fully wired runtime.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	loop      *scheduler.Loop
	windows   *window.Set
	desktop   *window.Desktop
	keyboard  *input.Keyboard
	listeners []*input.Listener
	watcher   *logwatch.Watcher
	templates *Templates
	states    *States
	store     store.Store
	journal   *store.Journal
	server    *server.Server
}

// Build validates cfg and constructs every component. The history database
// is opened and migrated; Run closes it.
func Build(cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{
		cfg:      cfg,
		logger:   logging.Component(logger, "app"),
		windows:  &window.Set{},
		desktop:  window.NewDesktop(),
		keyboard: input.NewKeyboard(),
	}

	for _, wc := range cfg.Windows {
		w, err := window.New(wc.ID, wc.Name, wc.Exact, a.desktop)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", wc.Name, err)
		}
		a.windows.Add(w, wc.Main)
	}

	var err error
	eventEngine := script.NewEngine(logger)
	if a.templates, err = NewTemplates(eventEngine, cfg.Events); err != nil {
		return nil, err
	}
	stateEngine := script.NewEngine(logger)
	if a.states, err = NewStates(stateEngine, cfg.States); err != nil {
		return nil, err
	}
	a.logger.Debug("scripts loaded", "events", eventEngine.Names(), "states", stateEngine.Names())

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	a.store = st
	if cfg.HistoryRetention > 0 {
		n, err := st.PruneHistory(context.Background(), time.Now().Add(-cfg.HistoryRetention))
		if err != nil {
			a.logger.Warn("prune history", "error", err)
		} else if n > 0 {
			a.logger.Info("history pruned", "entries", n, "retention", cfg.HistoryRetention)
		}
	}
	a.journal = store.NewJournal(st, logger, store.DefaultJournalBuffer)
	a.logger.Info("database ready", "path", dbPath, "run_id", a.journal.RunID())

	var initial scheduler.State
	if cfg.InitialState != "" {
		initial, _ = a.states.State(cfg.InitialState)
	}
	var mainWindow scheduler.Window
	if w := a.windows.Main(); w != nil {
		mainWindow = w
	}
	manager := NewWindowManager(mainWindow, initial, logger)

	opts := []scheduler.Option{
		scheduler.WithManager(manager),
		scheduler.WithObserver(a.journal),
	}
	if lw := cfg.LogWatch; lw != nil {
		if a.watcher, err = a.buildWatcher(lw, logger); err != nil {
			a.release(context.Background())
			return nil, err
		}
		opts = append(opts, scheduler.WithLineSource(a.watcher))
	}
	a.loop = scheduler.NewLoop(scheduler.Config{YieldThreshold: cfg.YieldThreshold}, logger, opts...)
	manager.loop = a.loop

	for _, w := range a.windows.All() {
		a.loop.TrackWindow(w)
	}
	if err := a.buildListeners(logger); err != nil {
		a.release(context.Background())
		return nil, err
	}

	a.server = server.New(cfg, a.loop, logger,
		server.WithStore(a.store),
		server.WithEventFactory(a.templates),
		server.WithStates(a.states),
		server.WithDesktop(a.desktop),
		server.WithKeyboard(a.keyboard),
	)
	return a, nil
}

func (a *App) buildWatcher(lw *config.LogWatchConfig, logger *slog.Logger) (*logwatch.Watcher, error) {
	var opts []logwatch.Option
	if lw.FromStart {
		opts = append(opts, logwatch.WithFromStart())
	}
	for i, pc := range lw.Patterns {
		name := pc.Name
		if name == "" {
			name = fmt.Sprintf("pattern-%d", i)
		}
		template := pc.Event
		p, err := logwatch.NewPattern(name, pc.Regex, pc.JSONPath, func(_ context.Context, args map[string]string) (scheduler.Event, error) {
			return a.templates.NewEvent(template, args)
		})
		if err != nil {
			return nil, fmt.Errorf("log_watch pattern %s: %w", name, err)
		}
		opts = append(opts, logwatch.WithPattern(p))
	}
	return logwatch.New(lw.Path, a, logger, opts...), nil
}

func (a *App) buildListeners(logger *slog.Logger) error {
	throttle := logging.NewThrottle(instantLogInterval)
	engine := script.NewEngine(logger)

	for i, lc := range a.cfg.Listeners {
		key, err := input.ParseKey(lc.Key)
		if err != nil {
			return fmt.Errorf("listeners[%d]: %w", i, err)
		}
		target := lc.Event
		if target == "" {
			target = "action"
		}
		opts := []input.ListenerOption{input.WithName(key.String() + ":" + target)}
		if lc.Condition != "" {
			cond, err := engine.NewCondition(lc.Condition, a.scriptEnv)
			if err != nil {
				return fmt.Errorf("listeners[%d]: %w", i, err)
			}
			opts = append(opts, input.WithCondition(cond.Eval))
		}
		if lc.AlwaysNew {
			opts = append(opts, input.WithAlwaysCreateNew())
		}

		var l *input.Listener
		if lc.Event != "" {
			template := lc.Event
			l = input.NewListener(key, a.keyboard, a.loop, func(context.Context) (scheduler.Event, error) {
				return a.templates.NewEvent(template, map[string]string{"key": key.String()})
			}, logger, opts...)
		} else {
			action, err := engine.NewAction(fmt.Sprintf("listener-%d", i), lc.Action, a.scriptEnv)
			if err != nil {
				return fmt.Errorf("listeners[%d]: %w", i, err)
			}
			l = input.NewInstantListener(key, a.keyboard, action.Run, throttle, logger, opts...)
		}
		if lc.Disabled {
			l.SetEnabled(false)
		}
		a.listeners = append(a.listeners, l)
		a.loop.AddListener(l)
	}
	return nil
}

// scriptEnv is the environment of listener conditions and actions.
func (a *App) scriptEnv() map[string]any {
	windows := map[string]any{}
	for _, w := range a.windows.All() {
		windows[w.Name()] = map[string]any{"open": w.IsOpen(), "focus": w.HasFocus()}
	}
	return map[string]any{
		"state":   a.loop.CurrentState().Name(),
		"windows": windows,
	}
}

// AddEvent adds e to the loop. It lets the log watcher be built before the
// loop it feeds.
func (a *App) AddEvent(ctx context.Context, e scheduler.Event) bool {
	return a.loop.AddEvent(ctx, e)
}

// Loop returns the tick loop.
func (a *App) Loop() *scheduler.Loop { return a.loop }

// Desktop returns the simulated desktop backing the tracked windows.
func (a *App) Desktop() *window.Desktop { return a.desktop }

// Keyboard returns the simulated keyboard polled by the listeners.
func (a *App) Keyboard() *input.Keyboard { return a.keyboard }

// Listeners returns the configured input listeners.
func (a *App) Listeners() []*input.Listener { return a.listeners }

// Handler returns the control API handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Run starts the tick loop and, if an address is configured, the control
// API. It blocks until ctx is cancelled or either of them fails. On the way
// out the runtime changes to the closed state before the loop stops, then
// the journal is flushed and the database closed.
func (a *App) Run(ctx context.Context) error {
	var ln net.Listener
	if a.cfg.Addr != "" {
		var err error
		if ln, err = net.Listen("tcp", a.cfg.Addr); err != nil {
			a.release(context.Background())
			return fmt.Errorf("listen %s: %w", a.cfg.Addr, err)
		}
	}

	// The loop outlives ctx so that the closed state is reached while it
	// still runs.
	loopCtx, cancelLoop := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelLoop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- a.loop.Start(loopCtx, a.cfg.UpdatesPerSecond) }()

	httpErr := make(chan error, 1)
	var httpServer *http.Server
	if ln != nil {
		httpServer = &http.Server{Addr: a.cfg.Addr, Handler: a.server.Handler()}
		go func() {
			a.logger.Info("server starting", "addr", ln.Addr().String())
			if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
	}

	var runErr error
	loopDone := false
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-loopErr:
		loopDone = true
		runErr = fmt.Errorf("scheduler: %w", err)
	case err := <-httpErr:
		runErr = fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.loop.Do(shutdownCtx, func(ctx context.Context) error {
		if scheduler.IsClosed(a.loop.CurrentState()) {
			return nil
		}
		return a.loop.ChangeState(ctx, scheduler.NewClosedState())
	}); err != nil {
		a.logger.Error("change to closed state", "error", err)
	}

	if !loopDone {
		if err := a.loop.Stop(shutdownCtx); err != nil {
			a.logger.Error("scheduler stop error", "error", err)
		}
		// Stop is a no-op when the loop has not reached RUNNING yet.
		cancelLoop()
		<-loopErr
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", "error", err)
		}
	}

	a.release(shutdownCtx)

	written, dropped := a.journal.Stats()
	a.logger.Info("runtime stopped", "history_written", written, "history_dropped", dropped)
	return runErr
}

// release flushes the journal and closes the database.
func (a *App) release(ctx context.Context) {
	if a.journal != nil {
		if err := a.journal.Close(ctx); err != nil {
			a.logger.Error("journal close error", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("close database", "error", err)
		}
	}
}
