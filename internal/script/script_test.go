package script

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"

	"github.com/me/gametools/internal/scheduler"
	"github.com/me/gametools/pkg/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, scripts map[string]string, opts ...EngineOption) *Engine {
	t.Helper()
	e := NewEngine(discardLogger(), opts...)
	for name, src := range scripts {
		if err := e.Compile(name, src); err != nil {
			t.Fatalf("Compile(%s): %v", name, err)
		}
	}
	return e
}

type stubWindow struct{ name string }

func (w stubWindow) Name() string           { return w.name }
func (w stubWindow) IsOpen() bool           { return true }
func (w stubWindow) HasFocus() bool         { return false }
func (w stubWindow) PollOpenChanged() bool  { return false }
func (w stubWindow) PollFocusChanged() bool { return false }

func TestEngine_Compile(t *testing.T) {
	e := NewEngine(discardLogger())
	if err := e.Compile("bad", "function ("); err == nil {
		t.Error("expected syntax error")
	}
	if err := e.Compile("b", "1"); err != nil {
		t.Fatal(err)
	}
	if err := e.Compile("a", "2"); err != nil {
		t.Fatal(err)
	}
	if !e.Has("a") || e.Has("bad") {
		t.Error("Has mismatch")
	}
	if got := e.Names(); len(got) != 2 || got[0] != "a" {
		t.Errorf("Names = %v", got)
	}
	if _, err := e.NewEvent("missing", model.PriorityLast, "", nil); err == nil {
		t.Error("expected error for unknown script")
	}
}

func TestEvent_UpdateAndRemove(t *testing.T) {
	e := newEngine(t, map[string]string{
		"countdown": `
			var seen = [];
			function onUpdate() { return event.ticks >= Number(event.args.n); }
			function onOpenChange(w) { seen.push("open:" + w.name + ":" + w.open); }
			function onStateChange(a, b) { seen.push(a + "->" + b); }
			function onStop() { seen.push("stop"); }
		`,
	})
	ev, err := e.NewEvent("countdown", model.PriorityFirst, "timers", map[string]string{"n": "3"})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Priority() != model.PriorityFirst || ev.Group() != "timers" || !strings.HasPrefix(ev.ID(), "evt_") {
		t.Errorf("identity = %s %s %s", ev.ID(), ev.Priority(), ev.Group())
	}
	if ev.TypeName() != "script.countdown" {
		t.Errorf("TypeName = %q", ev.TypeName())
	}

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		remove, err := ev.OnUpdate(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if remove != (i == 3) {
			t.Errorf("tick %d: remove = %v", i, remove)
		}
	}
	if ev.Ticks() != 3 {
		t.Errorf("Ticks = %d", ev.Ticks())
	}

	if err := ev.OnOpenChange(ctx, stubWindow{"game"}); err != nil {
		t.Fatal(err)
	}
	old, next := scheduler.NewClosedState(), scheduler.NewClosedState()
	if err := ev.OnStateChange(ctx, old, next); err != nil {
		t.Fatal(err)
	}
	if err := ev.OnStop(ctx); err != nil {
		t.Fatal(err)
	}
	// Missing hooks are no-ops.
	if err := ev.OnFocusChange(ctx, stubWindow{"game"}); err != nil {
		t.Fatal(err)
	}

	got := ev.in.vm.Get("seen").Export()
	want := []any{"open:game:true", "closed->closed", "stop"}
	if !equalAny(got, want) {
		t.Errorf("seen = %v, want %v", got, want)
	}
}

func equalAny(got any, want []any) bool {
	list, ok := got.([]any)
	if !ok || len(list) != len(want) {
		return false
	}
	for i := range list {
		if list[i] != want[i] {
			return false
		}
	}
	return true
}

func TestEvent_InstancesAreIsolated(t *testing.T) {
	e := newEngine(t, map[string]string{
		"counter": `var n = 0; function onUpdate() { n++; return false; }`,
	})
	a, _ := e.NewEvent("counter", model.PriorityLast, "", nil)
	b, _ := e.NewEvent("counter", model.PriorityLast, "", nil)
	ctx := context.Background()
	_, _ = a.OnUpdate(ctx)
	_, _ = a.OnUpdate(ctx)
	_, _ = b.OnUpdate(ctx)
	if got := a.in.vm.Get("n").ToInteger(); got != 2 {
		t.Errorf("a.n = %d, want 2", got)
	}
	if got := b.in.vm.Get("n").ToInteger(); got != 1 {
		t.Errorf("b.n = %d, want 1", got)
	}
	if a.ID() == b.ID() {
		t.Error("events share an id")
	}
}

func TestEvent_ScriptError(t *testing.T) {
	e := newEngine(t, map[string]string{
		"broken": `function onUpdate() { throw new Error("nope"); }`,
	})
	ev, err := e.NewEvent("broken", model.PriorityLast, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ev.OnUpdate(context.Background())
	var exc *goja.Exception
	if !errors.As(err, &exc) {
		t.Fatalf("error = %v, want *goja.Exception", err)
	}
	if !strings.Contains(err.Error(), "broken.onUpdate") {
		t.Errorf("error %q missing hook name", err)
	}
}

func TestEvent_CallTimeout(t *testing.T) {
	e := newEngine(t, map[string]string{
		"spin": `function onUpdate() { for (;;) {} }`,
	}, WithCallTimeout(50*time.Millisecond))
	ev, err := e.NewEvent("spin", model.PriorityLast, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ev.OnUpdate(context.Background())
	var interrupted *goja.InterruptedError
	if !errors.As(err, &interrupted) {
		t.Fatalf("error = %v, want *goja.InterruptedError", err)
	}
	// The runtime is usable again after an interrupt.
	if _, err := ev.OnUpdate(context.Background()); !errors.As(err, &interrupted) {
		t.Errorf("second call error = %v", err)
	}
}

func TestEvent_CancelledContext(t *testing.T) {
	e := newEngine(t, map[string]string{"noop": `function onUpdate() { return true; }`})
	ev, _ := e.NewEvent("noop", model.PriorityLast, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ev.OnUpdate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestState_Hooks(t *testing.T) {
	e := newEngine(t, map[string]string{
		"town": `
			var calls = [];
			function onStart(prev) { calls.push("start:" + prev); }
			function onStop(next) { calls.push("stop:" + next); }
			function onUpdate() { calls.push("update:" + state.name); }
			function onFocusChange(w) { calls.push("focus:" + w.name); }
		`,
	})
	st, err := e.NewState("town")
	if err != nil {
		t.Fatal(err)
	}
	if st.Name() != "town" || st.DebugID() == 0 {
		t.Errorf("identity = %s/%d", st.Name(), st.DebugID())
	}
	ctx := context.Background()
	closed := scheduler.NewClosedState()
	if err := st.OnStart(ctx, closed); err != nil {
		t.Fatal(err)
	}
	if err := st.OnUpdate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := st.OnFocusChange(ctx, stubWindow{"game"}); err != nil {
		t.Fatal(err)
	}
	if err := st.OnOpenChange(ctx, stubWindow{"game"}); err != nil {
		t.Fatal(err)
	}
	if err := st.OnStop(ctx, closed); err != nil {
		t.Fatal(err)
	}
	want := []any{"start:closed", "update:town", "focus:game", "stop:closed"}
	if got := st.in.vm.Get("calls").Export(); !equalAny(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestState_Controller(t *testing.T) {
	e := newEngine(t, map[string]string{
		"fail": `function onStart() { throw new Error("cannot start"); }`,
	})
	st, err := e.NewState("fail")
	if err != nil {
		t.Fatal(err)
	}
	reg := scheduler.NewRegistry(discardLogger(), 0)
	ctrl := scheduler.NewController(nil, nil, reg, discardLogger())
	if err := ctrl.ChangeState(context.Background(), st); err == nil || !strings.Contains(err.Error(), "cannot start") {
		t.Errorf("ChangeState error = %v", err)
	}
}

func TestCondition(t *testing.T) {
	e := NewEngine(discardLogger())
	current := "town"
	c, err := e.NewCondition(`state === "town" && hp < 50`, func() map[string]any {
		return map[string]any{"state": current, "hp": 30}
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if ok, err := c.Eval(ctx); err != nil || !ok {
		t.Errorf("Eval = %v, %v; want true", ok, err)
	}
	current = "act1"
	if ok, _ := c.Eval(ctx); ok {
		t.Error("Eval should be false outside town")
	}

	if _, err := e.NewCondition(`(`, nil); err == nil {
		t.Error("expected compile error")
	}
	bad, _ := e.NewCondition(`missing.value`, nil)
	if _, err := bad.Eval(ctx); err == nil {
		t.Error("expected reference error")
	}
}

func TestAction(t *testing.T) {
	var buf bytes.Buffer
	e := NewEngine(slog.New(slog.NewTextHandler(&buf, nil)))
	a, err := e.NewAction("f5", `count = (typeof count === "undefined" ? 0 : count) + 1; log("pressed", key, count);`,
		func() map[string]any { return map[string]any{"key": "F5"} })
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for range 2 {
		if err := a.Run(ctx); err != nil {
			t.Fatal(err)
		}
	}
	out := buf.String()
	if !strings.Contains(out, "pressed F5 2") {
		t.Errorf("log output = %s", out)
	}
	if !strings.Contains(out, "script=f5") {
		t.Errorf("log output missing script attr: %s", out)
	}
}
