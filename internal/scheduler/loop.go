package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/me/gametools/internal/logging"
	"github.com/me/gametools/pkg/model"
)

// minSleep is the floor for the end-of-tick sleep. It guarantees that the
// background tasks get the loop at least once per tick under overload.
const minSleep = time.Millisecond

// overrunLogInterval limits how often an overrun warning is logged.
const overrunLogInterval = 5 * time.Second

// Config holds scheduler configuration.
type Config struct {
	// YieldThreshold is the queue length from which the event pass yields at
	// its midpoint.
	YieldThreshold int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{YieldThreshold: DefaultYieldThreshold}
}

// Option configures optional Loop collaborators.
type Option func(*Loop)

// WithManager sets the manager notified before the current state.
func WithManager(m Manager) Option {
	return func(l *Loop) {
		l.controller.manager = m
	}
}

// WithInitialState replaces the initial closed state.
func WithInitialState(s State) Option {
	return func(l *Loop) {
		l.controller.current = s
	}
}

// WithClock replaces the wall clock, mainly for tests with clock.NewMock.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithObserver registers an observer for registry, state and window changes.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		l.observer = o
		l.registry.observer = o
		l.controller.observer = o
	}
}

// WithLineSource sets the collaborator polled for new external input after
// the listeners.
func WithLineSource(src LineSource) Option {
	return func(l *Loop) {
		l.lines = src
	}
}

// Loop is the fixed-rate tick loop. It implements Scheduler.
type Loop struct {
	baton      *baton
	registry   *Registry
	controller *Controller
	clock      clock.Clock
	observer   Observer
	lines      LineSource
	logger     *slog.Logger
	overrunLog *logging.Throttle

	mu        sync.Mutex
	windows   []Window
	listeners []InputListener
	state     model.LoopState
	period    time.Duration
	startedAt time.Time
	done      chan struct{}

	stopRequested atomic.Bool

	// In-flight guards for the two background tasks.
	updateInFlight atomic.Bool
	eventsInFlight atomic.Bool

	ticks            atomic.Int64
	overruns         atomic.Int64
	tickErrors       atomic.Int64
	lastTick         atomic.Int64
	skippedUpdates   atomic.Int64
	skippedEventRuns atomic.Int64
}

var _ Scheduler = (*Loop)(nil)

// NewLoop creates a stopped Loop whose current state is a new ClosedState.
func NewLoop(cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	b := &baton{}
	reg := NewRegistry(logger, cfg.YieldThreshold)
	reg.baton = b

	l := &Loop{
		baton:      b,
		registry:   reg,
		controller: NewController(nil, nil, reg, logger),
		clock:      clock.New(),
		observer:   nopObserver{},
		logger:     logging.Component(logger, "scheduler"),
		overrunLog: logging.NewThrottle(overrunLogInterval),
		state:      model.LoopStateStopped,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.controller.manager == nil {
		l.controller.manager = NopManager{}
	}
	if l.controller.current == nil {
		l.controller.current = NewClosedState()
	}
	return l
}

// Registry returns the event registry.
func (l *Loop) Registry() *Registry {
	return l.registry
}

// TrackWindow adds w to the windows polled every tick. Windows are polled in
// the order they were added.
func (l *Loop) TrackWindow(w Window) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = append(l.windows, w)
}

// AddListener adds an input listener. Listeners update in the order they
// were added.
func (l *Loop) AddListener(in InputListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, in)
}

// Windows returns the tracked windows.
func (l *Loop) Windows() []Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.windows)
}

func (l *Loop) inputListeners() []InputListener {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.listeners)
}

// Start runs the tick loop with a period of round(1000/updatesPerSecond) ms.
// It blocks until Stop is called or ctx is cancelled; on the way out every
// registered event is stopped and both event lists are cleared. Starting a
// running loop logs a warning and returns ErrAlreadyRunning.
func (l *Loop) Start(ctx context.Context, updatesPerSecond int) error {
	if updatesPerSecond <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRate, updatesPerSecond)
	}
	period := time.Duration(math.Round(1000/float64(updatesPerSecond))) * time.Millisecond

	l.mu.Lock()
	if !l.state.CanTransitionTo(model.LoopStateRunning) {
		l.mu.Unlock()
		l.logger.Warn("scheduler already running")
		return ErrAlreadyRunning
	}
	l.state = model.LoopStateRunning
	l.period = period
	l.startedAt = l.clock.Now()
	l.done = make(chan struct{})
	done := l.done
	l.stopRequested.Store(false)
	l.mu.Unlock()

	l.logger.Info("scheduler started", "updates_per_second", updatesPerSecond, "tick_period", period)

	l.baton.mu.Lock()
	loopCtx := withBaton(ctx, l.baton)
	l.run(loopCtx, period)

	// Cleanup must reach the events even when ctx was cancelled.
	l.registry.StopAll(context.WithoutCancel(loopCtx))
	l.baton.mu.Unlock()

	l.mu.Lock()
	l.state = model.LoopStateStopped
	l.mu.Unlock()
	close(done)

	if ctx.Err() != nil && !l.stopRequested.Load() {
		l.logger.Info("scheduler stopping (context cancelled)")
		return ctx.Err()
	}
	l.logger.Info("scheduler stopped")
	return nil
}

// run drives ticks until a stop is requested. The caller holds the baton.
func (l *Loop) run(ctx context.Context, period time.Duration) {
	tickStart := l.clock.Now()
	for !l.stopRequested.Load() && ctx.Err() == nil {
		if err := safeCall(func() error { return l.Tick(ctx) }); err != nil {
			l.tickErrors.Add(1)
			l.logger.Error("tick error", errorAttrs(err)...)
		}
		l.ticks.Add(1)

		now := l.clock.Now()
		elapsed := now.Sub(tickStart)
		l.lastTick.Store(int64(elapsed))
		if elapsed > period {
			n := l.overruns.Add(1)
			l.observer.TickOverrun(elapsed, period)
			l.overrunLog.Log(l.logger, slog.LevelWarn, "tick", "tick overrun", "elapsed", elapsed, "period", period, "overruns", n)
		}

		// Schedule against the absolute deadline so slow ticks do not
		// accumulate drift.
		sleep := max(period-elapsed, minSleep)
		tickStart = now.Add(sleep)
		_ = Detach(ctx, func() error { return sleepOn(ctx, l.clock, sleep) })
	}
}

// Stop requests the loop to end and waits until the current tick finished and
// all events were stopped. Stopping a stopped loop logs a warning and does
// nothing. Called from a hook running on the loop, Stop only requests the end
// and returns immediately.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.state.CanTransitionTo(model.LoopStateStopped) {
		l.mu.Unlock()
		l.logger.Warn("scheduler not running")
		return nil
	}
	l.stopRequested.Store(true)
	done := l.done
	l.mu.Unlock()

	if batonFrom(ctx) == l.baton {
		l.logger.Debug("stop requested from inside the loop")
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the current run has ended. It returns
// nil if the loop was never started.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Tick runs a single iteration of the tick body:
//
//  1. poll every window, dispatching open and focus changes
//  2. launch the manager/state update unless one is in flight
//  3. launch the event pass unless one is in flight
//  4. update all input listeners, then fetch new external input
//
// The caller must hold the loop; Start does. Errors from the dispatch chains
// and the listener phase are returned.
func (l *Loop) Tick(ctx context.Context) error {
	for _, w := range l.Windows() {
		if w.PollOpenChanged() {
			l.logger.Info("window open changed", "window", w.Name(), "open", w.IsOpen())
			l.observer.WindowChanged(w, model.HistoryOpenChange)
			if err := l.dispatchOpenChange(ctx, w); err != nil {
				return fmt.Errorf("open change %s: %w", w.Name(), err)
			}
		}
		Yield(ctx)
		if w.PollFocusChanged() {
			l.logger.Debug("window focus changed", "window", w.Name(), "focus", w.HasFocus())
			l.observer.WindowChanged(w, model.HistoryFocusChange)
			if err := l.dispatchFocusChange(ctx, w); err != nil {
				return fmt.Errorf("focus change %s: %w", w.Name(), err)
			}
		}
	}

	l.launchUpdate(ctx)
	l.launchEventUpdate(ctx)

	for _, in := range l.inputListeners() {
		if err := in.Update(ctx); err != nil {
			return fmt.Errorf("listener update: %w", err)
		}
	}
	if l.lines != nil {
		if err := l.lines.FetchNewLines(ctx); err != nil {
			return fmt.Errorf("fetch new lines: %w", err)
		}
	}
	return nil
}

func (l *Loop) dispatchOpenChange(ctx context.Context, w Window) error {
	if err := l.controller.manager.OnOpenChange(ctx, w); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	if err := l.controller.Current().OnOpenChange(ctx, w); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return l.registry.RunForAllErr(func(e Event) error {
		if err := e.OnOpenChange(ctx, w); err != nil {
			return fmt.Errorf("event %s: %w", e.ID(), err)
		}
		return nil
	})
}

func (l *Loop) dispatchFocusChange(ctx context.Context, w Window) error {
	if err := l.controller.manager.OnFocusChange(ctx, w); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	if err := l.controller.Current().OnFocusChange(ctx, w); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	return l.registry.RunForAllErr(func(e Event) error {
		if err := e.OnFocusChange(ctx, w); err != nil {
			return fmt.Errorf("event %s: %w", e.ID(), err)
		}
		return nil
	})
}

// launchUpdate starts the manager/state update in the background unless the
// previous one is still running, in which case this tick's update is merged
// into it.
func (l *Loop) launchUpdate(ctx context.Context) {
	if !l.updateInFlight.CompareAndSwap(false, true) {
		l.skippedUpdates.Add(1)
		return
	}
	go func() {
		defer l.updateInFlight.Store(false)
		l.baton.mu.Lock()
		defer l.baton.mu.Unlock()
		if ctx.Err() != nil {
			return
		}

		err := safeCall(func() error {
			if err := l.controller.manager.OnUpdate(ctx); err != nil {
				return fmt.Errorf("manager update: %w", err)
			}
			Yield(ctx)
			state := l.controller.Current()
			if err := state.OnUpdate(ctx); err != nil {
				return fmt.Errorf("state %s update: %w", state.Name(), err)
			}
			Yield(ctx)
			return nil
		})
		if err != nil {
			l.logger.Error("update task failed", errorAttrs(err)...)
		}
	}()
}

// launchEventUpdate starts the per-tick event pass in the background, guarded
// like launchUpdate.
func (l *Loop) launchEventUpdate(ctx context.Context) {
	if !l.eventsInFlight.CompareAndSwap(false, true) {
		l.skippedEventRuns.Add(1)
		return
	}
	go func() {
		defer l.eventsInFlight.Store(false)
		l.baton.mu.Lock()
		defer l.baton.mu.Unlock()
		if ctx.Err() != nil {
			return
		}

		if err := safeCall(func() error { l.registry.Update(ctx); return nil }); err != nil {
			l.logger.Error("event task failed", errorAttrs(err)...)
		}
	}()
}

// Do runs fn on the loop, waiting until the loop is free. Hooks already
// running on the loop call fn directly. If ctx ends while waiting, Do returns
// ctx.Err() without running fn.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if batonFrom(ctx) == l.baton {
		return fn(ctx)
	}
	if err := l.baton.acquire(ctx); err != nil {
		return fmt.Errorf("wait for loop: %w", err)
	}
	defer l.baton.mu.Unlock()
	return safeCall(func() error { return fn(withBaton(ctx, l.baton)) })
}

// AddEvent registers e with the event registry.
func (l *Loop) AddEvent(ctx context.Context, e Event) bool {
	return l.registry.Add(ctx, e)
}

// RemoveEvent removes e and calls its OnStop.
func (l *Loop) RemoveEvent(ctx context.Context, e Event) error {
	return l.registry.Remove(ctx, e)
}

// ContainsEvent reports whether e is registered.
func (l *Loop) ContainsEvent(e Event) bool {
	return l.registry.Contains(e)
}

// ChangeState transitions to next. See Controller.ChangeState.
func (l *Loop) ChangeState(ctx context.Context, next State) error {
	return l.controller.ChangeState(ctx, next)
}

// CurrentState returns the current state.
func (l *Loop) CurrentState() State {
	return l.controller.Current()
}

// Events returns snapshots of the instant list and the queue.
func (l *Loop) Events() (instant, queued []Event) {
	return l.registry.Snapshot()
}

// EventsByGroup returns all events in group.
func (l *Loop) EventsByGroup(group string) []Event {
	return l.registry.ByGroup(group)
}

// FindEvent returns the event with the given id, or nil.
func (l *Loop) FindEvent(id string) Event {
	return l.registry.Find(id)
}

// EventInfos describes the registered events, instant events first.
func (l *Loop) EventInfos() []model.EventInfo {
	return l.registry.Infos()
}

// Stats returns the loop counters.
func (l *Loop) Stats() model.LoopStats {
	return model.LoopStats{
		Ticks:            l.ticks.Load(),
		Overruns:         l.overruns.Load(),
		TickErrors:       l.tickErrors.Load(),
		LastTickDuration: time.Duration(l.lastTick.Load()),
		SkippedUpdates:   l.skippedUpdates.Load(),
		SkippedEventRuns: l.skippedEventRuns.Load(),
	}
}

// Status returns a snapshot of the loop for reporting.
func (l *Loop) Status() model.Status {
	l.mu.Lock()
	st := model.Status{
		State:      l.state,
		TickPeriod: l.period,
	}
	if l.state == model.LoopStateRunning {
		started := l.startedAt
		st.StartedAt = &started
	}
	l.mu.Unlock()

	st.CurrentState = l.CurrentState().Name()
	st.Stats = l.Stats()
	st.InstantCount, st.QueuedCount = l.registry.Len()
	for _, w := range l.Windows() {
		st.Windows = append(st.Windows, windowInfo(w))
	}
	return st
}

func windowInfo(w Window) model.WindowInfo {
	if wi, ok := w.(interface{ Info() model.WindowInfo }); ok {
		return wi.Info()
	}
	return model.WindowInfo{Name: w.Name(), Open: w.IsOpen(), Focus: w.HasFocus()}
}
