package input

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/me/gametools/internal/logging"
	"github.com/me/gametools/internal/scheduler"
)

// EventSink receives the events created by listeners. *scheduler.Loop
// implements it.
type EventSink interface {
	AddEvent(ctx context.Context, e scheduler.Event) bool
	ContainsEvent(e scheduler.Event) bool
}

// Factory creates the event for a press. A nil event means nothing is added.
type Factory func(ctx context.Context) (scheduler.Event, error)

// Condition gates a press. The press is ignored while it returns false.
type Condition func(ctx context.Context) (bool, error)

// Action is the callback of an instant listener.
type Action func(ctx context.Context) error

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithCondition sets the activation condition.
func WithCondition(c Condition) ListenerOption {
	return func(l *Listener) { l.condition = c }
}

// WithAlwaysCreateNew makes every press create an event, even while the
// event of the previous press is still registered.
func WithAlwaysCreateNew() ListenerOption {
	return func(l *Listener) { l.alwaysNew = true }
}

// WithReleaseCallback sets a callback for release edges.
func WithReleaseCallback(fn Action) ListenerOption {
	return func(l *Listener) { l.onRelease = fn }
}

// WithName sets the name used in logs. It defaults to the key name.
func WithName(name string) ListenerOption {
	return func(l *Listener) { l.name = name }
}

// Listener detects press edges of one key. It implements
// scheduler.InputListener.
type Listener struct {
	name      string
	poller    Poller
	sink      EventSink
	factory   Factory
	action    Action
	condition Condition
	alwaysNew bool
	onRelease Action
	throttle  *logging.Throttle
	logger    *slog.Logger

	mu      sync.Mutex
	key     Key
	enabled bool
	pressed bool
	last    scheduler.Event
}

var _ scheduler.InputListener = (*Listener)(nil)

// NewListener creates a listener that adds the event built by factory to
// sink on every press edge of key.
func NewListener(key Key, poller Poller, sink EventSink, factory Factory, logger *slog.Logger, opts ...ListenerOption) *Listener {
	l := &Listener{
		key:     key,
		poller:  poller,
		sink:    sink,
		factory: factory,
		enabled: true,
	}
	return l.init(logger, opts)
}

// NewInstantListener creates a listener that calls action directly on every
// press edge instead of creating an event. Its log line is rate limited
// through throttle, which may be shared between listeners.
func NewInstantListener(key Key, poller Poller, action Action, throttle *logging.Throttle, logger *slog.Logger, opts ...ListenerOption) *Listener {
	l := &Listener{
		key:      key,
		poller:   poller,
		action:   action,
		throttle: throttle,
		enabled:  true,
	}
	return l.init(logger, opts)
}

func (l *Listener) init(logger *slog.Logger, opts []ListenerOption) *Listener {
	for _, opt := range opts {
		opt(l)
	}
	if l.name == "" {
		l.name = l.key.String()
	}
	l.logger = logging.Component(logger, "input", "listener", l.name)
	return l
}

// Name returns the listener name.
func (l *Listener) Name() string { return l.name }

// Key returns the polled key.
func (l *Listener) Key() Key {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.key
}

// SetKey switches to another key. The stored key state is reset, so a key
// already held fires on the next update.
func (l *Listener) SetKey(k Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.key = k
	l.pressed = false
}

// Enabled reports whether the listener reacts to its key.
func (l *Listener) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// SetEnabled turns the listener on or off. A disabled listener forgets the
// key state without reporting a release.
func (l *Listener) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
	if !enabled {
		l.pressed = false
	}
}

// Pressed returns the key state seen by the last update.
func (l *Listener) Pressed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pressed
}

// Update polls the key and handles press and release edges.
func (l *Listener) Update(ctx context.Context) error {
	l.mu.Lock()
	if !l.enabled {
		l.mu.Unlock()
		return nil
	}
	down := l.poller.IsKeyDown(l.key)
	prev := l.pressed
	l.pressed = down
	l.mu.Unlock()

	switch {
	case down && !prev:
		return l.press(ctx)
	case !down && prev && l.onRelease != nil:
		if err := l.onRelease(ctx); err != nil {
			return fmt.Errorf("listener %s release: %w", l.name, err)
		}
	}
	return nil
}

func (l *Listener) press(ctx context.Context) error {
	if l.condition != nil {
		ok, err := l.condition(ctx)
		if err != nil {
			return fmt.Errorf("listener %s condition: %w", l.name, err)
		}
		if !ok {
			l.logger.Debug("press ignored, condition not met")
			return nil
		}
	}

	if l.action != nil {
		if l.throttle != nil {
			l.throttle.Log(l.logger, slog.LevelInfo, l.name, "instant listener fired")
		} else {
			l.logger.Info("instant listener fired")
		}
		if err := l.action(ctx); err != nil {
			return fmt.Errorf("listener %s action: %w", l.name, err)
		}
		return nil
	}

	l.mu.Lock()
	last := l.last
	l.mu.Unlock()
	if !l.alwaysNew && last != nil && l.sink.ContainsEvent(last) {
		l.logger.Debug("press ignored, previous event still registered", "event_id", last.ID())
		return nil
	}

	e, err := l.factory(ctx)
	if err != nil {
		return fmt.Errorf("listener %s factory: %w", l.name, err)
	}
	if e == nil {
		return nil
	}
	if l.sink.AddEvent(ctx, e) {
		l.mu.Lock()
		l.last = e
		l.mu.Unlock()
		l.logger.Debug("event created", "event_id", e.ID())
	}
	return nil
}
