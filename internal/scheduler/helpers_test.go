package scheduler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/me/gametools/pkg/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func bufferLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// recorder collects hook calls in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(s string) int {
	n := 0
	for _, c := range r.list() {
		if c == s {
			n++
		}
	}
	return n
}

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls[%d] = %q, want %q (all: %v)", i, got[i], want[i], got)
		}
	}
}

// testEvent records its hooks. update decides the OnUpdate result for the
// n-th invocation (1-based).
type testEvent struct {
	BaseEvent
	name   string
	rec    *recorder
	update func(ctx context.Context, n int) (bool, error)

	mu      sync.Mutex
	updates int
	stops   int
}

func newTestEvent(name string, p model.Priority, rec *recorder) *testEvent {
	return &testEvent{BaseEvent: NewBaseEvent(p, "test"), name: name, rec: rec}
}

func (e *testEvent) OnUpdate(ctx context.Context) (bool, error) {
	e.mu.Lock()
	e.updates++
	n := e.updates
	e.mu.Unlock()
	e.rec.add(e.name + ".update")
	if e.update != nil {
		return e.update(ctx, n)
	}
	return false, nil
}

func (e *testEvent) OnStop(context.Context) error {
	e.mu.Lock()
	e.stops++
	e.mu.Unlock()
	e.rec.add(e.name + ".stop")
	return nil
}

func (e *testEvent) OnOpenChange(_ context.Context, w Window) error {
	e.rec.add(e.name + ".open:" + w.Name())
	return nil
}

func (e *testEvent) OnFocusChange(_ context.Context, w Window) error {
	e.rec.add(e.name + ".focus:" + w.Name())
	return nil
}

func (e *testEvent) OnStateChange(_ context.Context, old, next State) error {
	e.rec.add(e.name + ".statechange:" + old.Name() + "->" + next.Name())
	return nil
}

func (e *testEvent) stopCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func (e *testEvent) updateCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updates
}

type testState struct {
	BaseState
	rec      *recorder
	startErr error
	stopErr  error
	update   func(ctx context.Context) error
}

func newTestState(name string, rec *recorder) *testState {
	return &testState{BaseState: NewBaseState(name), rec: rec}
}

func (s *testState) OnStart(_ context.Context, previous State) error {
	s.rec.add(s.Name() + ".start:" + previous.Name())
	return s.startErr
}

func (s *testState) OnStop(_ context.Context, next State) error {
	s.rec.add(s.Name() + ".stop:" + next.Name())
	return s.stopErr
}

func (s *testState) OnUpdate(ctx context.Context) error {
	if s.update != nil {
		return s.update(ctx)
	}
	return nil
}

func (s *testState) OnOpenChange(_ context.Context, w Window) error {
	s.rec.add("state.open:" + w.Name())
	return nil
}

func (s *testState) OnFocusChange(_ context.Context, w Window) error {
	s.rec.add("state.focus:" + w.Name())
	return nil
}

type testManager struct {
	rec     *recorder
	update  func(ctx context.Context) error
	openErr error
}

func (m *testManager) OnUpdate(ctx context.Context) error {
	if m.update != nil {
		return m.update(ctx)
	}
	return nil
}

func (m *testManager) OnOpenChange(_ context.Context, w Window) error {
	m.rec.add("manager.open:" + w.Name())
	err := m.openErr
	m.openErr = nil
	return err
}

func (m *testManager) OnFocusChange(_ context.Context, w Window) error {
	m.rec.add("manager.focus:" + w.Name())
	return nil
}

func (m *testManager) OnStateChange(_ context.Context, old, next State) error {
	m.rec.add("manager.statechange:" + old.Name() + "->" + next.Name())
	return nil
}

// fakeWindow reports values set by the test with poll-and-cache semantics.
type fakeWindow struct {
	name string

	mu                      sync.Mutex
	open, focus             bool
	cachedOpen, cachedFocus bool
}

func (w *fakeWindow) set(open, focus bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open, w.focus = open, focus
}

func (w *fakeWindow) Name() string { return w.name }

func (w *fakeWindow) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cachedOpen
}

func (w *fakeWindow) HasFocus() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cachedFocus
}

func (w *fakeWindow) PollOpenChanged() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := w.open != w.cachedOpen
	w.cachedOpen = w.open
	return changed
}

func (w *fakeWindow) PollFocusChanged() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := w.focus != w.cachedFocus
	w.cachedFocus = w.focus
	return changed
}

// listenerFunc adapts a function to InputListener.
type listenerFunc func(ctx context.Context) error

func (f listenerFunc) Update(ctx context.Context) error { return f(ctx) }

// steppedClock is a mock clock that moves forward by exactly the requested
// duration each time the loop starts a timer on it. Time inside a tick only
// passes when the test calls Add.
type steppedClock struct {
	*clock.Mock
	timers chan time.Duration
	done   chan struct{}
}

func newSteppedClock(t *testing.T) *steppedClock {
	t.Helper()
	c := &steppedClock{
		Mock:   clock.NewMock(),
		timers: make(chan time.Duration),
		done:   make(chan struct{}),
	}
	c.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	go func() {
		for {
			select {
			case d := <-c.timers:
				c.Add(d)
			case <-c.done:
				return
			}
		}
	}()
	t.Cleanup(func() { close(c.done) })
	return c
}

func (c *steppedClock) Timer(d time.Duration) *clock.Timer {
	tm := c.Mock.Timer(d)
	select {
	case c.timers <- d:
	case <-c.done:
	}
	return tm
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// startLoop runs l.Start in the background and returns a channel with its
// result.
func startLoop(t *testing.T, ctx context.Context, l *Loop, ups int) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(ctx, ups) }()
	waitFor(t, time.Second, "loop running", func() bool { return l.Status().State == model.LoopStateRunning })
	return errCh
}

var errBoom = errors.New("boom")
