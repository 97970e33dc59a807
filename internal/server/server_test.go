package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/gametools/internal/config"
	"github.com/me/gametools/internal/input"
	"github.com/me/gametools/internal/scheduler"
	"github.com/me/gametools/internal/store"
	"github.com/me/gametools/internal/window"
	"github.com/me/gametools/pkg/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

type waitEvent struct {
	scheduler.BaseEvent
	stopped bool
}

func (e *waitEvent) OnStop(context.Context) error {
	e.stopped = true
	return nil
}

type fakeFactory struct{}

func (fakeFactory) Templates() []string { return []string{"wait"} }

func (fakeFactory) NewEvent(template string, args map[string]string) (scheduler.Event, error) {
	if template != "wait" {
		return nil, errors.New("unknown template " + template)
	}
	group := args["group"]
	return &waitEvent{BaseEvent: scheduler.NewBaseEvent(model.PriorityLast, group)}, nil
}

type namedState struct {
	scheduler.BaseState
}

type fakeStates map[string]scheduler.State

func (f fakeStates) States() []scheduler.State {
	var out []scheduler.State
	for _, s := range f {
		out = append(out, s)
	}
	return out
}

func (f fakeStates) State(name string) (scheduler.State, bool) {
	s, ok := f[name]
	return s, ok
}

type testEnv struct {
	srv      *Server
	loop     *scheduler.Loop
	desktop  *window.Desktop
	keyboard *input.Keyboard
	store    *store.SQLiteStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discardLogger()

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	desktop := window.NewDesktop()
	w, err := window.New(1, "Diablo", false, desktop)
	if err != nil {
		t.Fatal(err)
	}
	loop := scheduler.NewLoop(scheduler.DefaultConfig(), logger)
	loop.TrackWindow(w)

	kb := input.NewKeyboard()
	states := fakeStates{"town": &namedState{BaseState: scheduler.NewBaseState("town")}}

	srv := New(config.DefaultConfig(), loop, logger,
		WithStore(st),
		WithEventFactory(fakeFactory{}),
		WithStates(states),
		WithDesktop(desktop),
		WithKeyboard(kb),
		WithSSEInterval(10*time.Millisecond),
	)
	return &testEnv{srv: srv, loop: loop, desktop: desktop, keyboard: kb, store: st}
}

func do(t *testing.T, srv *Server, method, path, body string, wantStatus int) envelope {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("%s %s: status=%d, want %d, body=%s", method, path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON: %v", method, path, err)
	}
	return env
}

func decodeData(t *testing.T, env envelope, v any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
}

func TestDiscovery(t *testing.T) {
	env := newTestEnv(t)
	resp := do(t, env.srv, "GET", "/api/v1/", "", http.StatusOK)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if !strings.HasPrefix(resp.RequestID, "req_") {
		t.Errorf("request_id = %q, want req_ prefix", resp.RequestID)
	}

	var data discoveryResponse
	decodeData(t, resp, &data)
	if data.Name != "gametools API" {
		t.Errorf("name = %q", data.Name)
	}
	paths := map[string]bool{}
	for _, ep := range data.Endpoints {
		paths[ep.Path] = true
	}
	for _, p := range []string{"/api/v1/status", "/api/v1/events", "/api/v1/state", "/api/v1/history"} {
		if !paths[p] {
			t.Errorf("missing endpoint %s", p)
		}
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var h healthResponse
	decodeData(t, do(t, env.srv, "GET", "/api/v1/health", "", http.StatusOK), &h)
	if h.Status != "healthy" || h.Version != Version {
		t.Errorf("health = %+v", h)
	}
	if h.Scheduler != string(model.LoopStateStopped) {
		t.Errorf("scheduler = %q, want STOPPED", h.Scheduler)
	}
	if h.Store != "ok" {
		t.Errorf("store = %q, want ok", h.Store)
	}
}

func TestStatusAndWindows(t *testing.T) {
	env := newTestEnv(t)
	var st model.Status
	decodeData(t, do(t, env.srv, "GET", "/api/v1/status", "", http.StatusOK), &st)
	if st.CurrentState != scheduler.ClosedStateName {
		t.Errorf("current_state = %q, want closed", st.CurrentState)
	}
	if len(st.Windows) != 1 || st.Windows[0].Name != "Diablo" {
		t.Fatalf("windows = %+v", st.Windows)
	}

	var windows []model.WindowInfo
	decodeData(t, do(t, env.srv, "GET", "/api/v1/windows", "", http.StatusOK), &windows)
	if len(windows) != 1 || windows[0].ID != 1 {
		t.Errorf("windows = %+v", windows)
	}
}

func TestEventLifecycle(t *testing.T) {
	env := newTestEnv(t)

	var created model.EventInfo
	decodeData(t, do(t, env.srv, "POST", "/api/v1/events",
		`{"template":"wait","args":{"group":"loot"}}`, http.StatusCreated), &created)
	if created.ID == "" || created.Priority != model.PriorityLast || created.Index != 0 {
		t.Fatalf("created = %+v", created)
	}
	if !strings.HasSuffix(created.Type, "waitEvent") {
		t.Errorf("type = %q", created.Type)
	}

	var list []model.EventInfo
	decodeData(t, do(t, env.srv, "GET", "/api/v1/events?group=loot", "", http.StatusOK), &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}
	decodeData(t, do(t, env.srv, "GET", "/api/v1/events?group=other", "", http.StatusOK), &list)
	if len(list) != 0 {
		t.Fatalf("filtered list = %+v, want empty", list)
	}

	e := env.loop.FindEvent(created.ID).(*waitEvent)
	do(t, env.srv, "DELETE", "/api/v1/events/"+created.ID, "", http.StatusOK)
	if !e.stopped {
		t.Error("OnStop not called on delete")
	}
	if env.loop.FindEvent(created.ID) != nil {
		t.Error("event still registered")
	}

	resp := do(t, env.srv, "DELETE", "/api/v1/events/"+created.ID, "", http.StatusNotFound)
	if resp.Error == nil || resp.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", resp.Error)
	}
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing template", `{}`},
		{"unknown template", `{"template":"nope"}`},
		{"unknown field", `{"template":"wait","bogus":1}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, env.srv, "POST", "/api/v1/events", tt.body, http.StatusBadRequest)
			if resp.Status != "error" || resp.Error.Code != model.ErrValidation {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestTemplates(t *testing.T) {
	env := newTestEnv(t)
	var templates []string
	decodeData(t, do(t, env.srv, "GET", "/api/v1/events/templates", "", http.StatusOK), &templates)
	if len(templates) != 1 || templates[0] != "wait" {
		t.Errorf("templates = %v", templates)
	}
}

func TestChangeState(t *testing.T) {
	env := newTestEnv(t)

	do(t, env.srv, "PUT", "/api/v1/state", `{"name":"town"}`, http.StatusOK)
	if got := env.loop.CurrentState().Name(); got != "town" {
		t.Fatalf("current = %q, want town", got)
	}

	var states []model.StateInfo
	decodeData(t, do(t, env.srv, "GET", "/api/v1/states", "", http.StatusOK), &states)
	current := ""
	for _, s := range states {
		if s.Current {
			current = s.Name
		}
	}
	if current != "town" {
		t.Errorf("states = %+v, want town current", states)
	}

	do(t, env.srv, "PUT", "/api/v1/state", `{"name":"closed"}`, http.StatusOK)
	if !scheduler.IsClosed(env.loop.CurrentState()) {
		t.Errorf("current = %q, want closed", env.loop.CurrentState().Name())
	}

	do(t, env.srv, "PUT", "/api/v1/state", `{"name":"dungeon"}`, http.StatusNotFound)
	do(t, env.srv, "PUT", "/api/v1/state", `{}`, http.StatusBadRequest)
}

func TestDesktopActions(t *testing.T) {
	env := newTestEnv(t)

	do(t, env.srv, "POST", "/api/v1/desktop/Diablo/focus", "", http.StatusConflict)
	do(t, env.srv, "POST", "/api/v1/desktop/Diablo/open", "", http.StatusOK)

	var d desktopResponse
	decodeData(t, do(t, env.srv, "POST", "/api/v1/desktop/Diablo/focus", "", http.StatusOK), &d)
	if d.Focused != "Diablo" || len(d.Windows) != 1 {
		t.Errorf("desktop = %+v", d)
	}
	if !env.desktop.IsOpen("Diablo", true) {
		t.Error("desktop window not open")
	}

	do(t, env.srv, "POST", "/api/v1/desktop/Diablo/minimize", "", http.StatusBadRequest)
	do(t, env.srv, "POST", "/api/v1/desktop/Diablo/close", "", http.StatusOK)
	var after desktopResponse
	decodeData(t, do(t, env.srv, "GET", "/api/v1/desktop", "", http.StatusOK), &after)
	if len(after.Windows) != 0 || after.Focused != "" {
		t.Errorf("desktop after close = %+v", after)
	}
}

func TestKeyActions(t *testing.T) {
	env := newTestEnv(t)

	var k keyInfo
	decodeData(t, do(t, env.srv, "POST", "/api/v1/keys/F5/down", "", http.StatusOK), &k)
	if k.Code != uint16(input.KeyF5) || !k.Toggled {
		t.Errorf("key = %+v", k)
	}
	if !env.keyboard.IsKeyDown(input.KeyF5) {
		t.Error("F5 not down")
	}

	var keys []keyInfo
	decodeData(t, do(t, env.srv, "GET", "/api/v1/keys", "", http.StatusOK), &keys)
	if len(keys) != 1 {
		t.Fatalf("keys = %+v", keys)
	}

	do(t, env.srv, "POST", "/api/v1/keys/F5/up", "", http.StatusOK)
	if env.keyboard.IsKeyDown(input.KeyF5) {
		t.Error("F5 still down")
	}
	do(t, env.srv, "POST", "/api/v1/keys/NOPE/down", "", http.StatusBadRequest)
	do(t, env.srv, "POST", "/api/v1/keys/F5/tap", "", http.StatusBadRequest)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, kind := range []model.HistoryKind{model.HistoryEventAdded, model.HistoryStateChange, model.HistoryEventRemoved} {
		if err := env.store.RecordHistory(ctx, &model.HistoryEntry{
			Kind: kind, Subject: "s", At: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatal(err)
		}
	}

	resp := do(t, env.srv, "GET", "/api/v1/history?limit=2", "", http.StatusOK)
	var entries []model.HistoryEntry
	decodeData(t, resp, &entries)
	if len(entries) != 2 || entries[0].Kind != model.HistoryEventRemoved {
		t.Fatalf("entries = %+v", entries)
	}
	if resp.Pagination == nil || resp.Pagination.Total != 3 || !resp.Pagination.HasMore {
		t.Errorf("pagination = %+v", resp.Pagination)
	}

	decodeData(t, do(t, env.srv, "GET", "/api/v1/history?kind=state_change", "", http.StatusOK), &entries)
	if len(entries) != 1 || entries[0].Kind != model.HistoryStateChange {
		t.Errorf("filtered entries = %+v", entries)
	}

	decodeData(t, do(t, env.srv, "GET", "/api/v1/history?subject=other", "", http.StatusOK), &entries)
	if len(entries) != 0 {
		t.Errorf("subject filter = %+v, want none", entries)
	}
	do(t, env.srv, "GET", "/api/v1/history?kind=bogus", "", http.StatusBadRequest)
}

func TestWithoutOptionalDependencies(t *testing.T) {
	loop := scheduler.NewLoop(scheduler.DefaultConfig(), discardLogger())
	srv := New(config.DefaultConfig(), loop, discardLogger())

	do(t, srv, "GET", "/api/v1/history", "", http.StatusOK)
	do(t, srv, "GET", "/api/v1/desktop", "", http.StatusConflict)
	do(t, srv, "GET", "/api/v1/keys", "", http.StatusConflict)
	do(t, srv, "POST", "/api/v1/events", `{"template":"wait"}`, http.StatusNotFound)
	do(t, srv, "PUT", "/api/v1/state", `{"name":"closed"}`, http.StatusOK)
}

func TestSSEStatus(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/sse/status", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET sse: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	var events []string
	changed := false
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
			if !changed {
				changed = true
				e, _ := fakeFactory{}.NewEvent("wait", nil)
				env.loop.Do(ctx, func(ctx context.Context) error {
					env.loop.AddEvent(ctx, e)
					return nil
				})
			}
		}
		if len(events) == 2 {
			break
		}
	}
	if len(events) != 2 || events[0] != "init" || events[1] != "update" {
		t.Fatalf("events = %v, want [init update]", events)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		header     string
		wantPrefix string
	}{
		{"cli_abc123", "cli_abc123"},
		{"bad id!", "req_"},
		{"", "req_"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		if tt.header != "" {
			req.Header.Set(RequestIDHeader, tt.header)
		}
		w := httptest.NewRecorder()
		env.srv.ServeHTTP(w, req)

		var resp envelope
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if !strings.HasPrefix(resp.RequestID, tt.wantPrefix) {
			t.Errorf("header %q: request_id = %q, want prefix %q", tt.header, resp.RequestID, tt.wantPrefix)
		}
		if got := w.Header().Get(RequestIDHeader); got != resp.RequestID {
			t.Errorf("header %q: response header = %q, body = %q", tt.header, got, resp.RequestID)
		}
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		method string
		status int
		want   slog.Level
	}{
		{http.MethodGet, http.StatusOK, slog.LevelDebug},
		{http.MethodHead, http.StatusOK, slog.LevelDebug},
		{http.MethodPost, http.StatusCreated, slog.LevelInfo},
		{http.MethodDelete, http.StatusOK, slog.LevelInfo},
		{http.MethodGet, http.StatusNotFound, slog.LevelWarn},
		{http.MethodPost, http.StatusBadRequest, slog.LevelWarn},
		{http.MethodPost, http.StatusInternalServerError, slog.LevelError},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.method, tt.status); got != tt.want {
			t.Errorf("requestLevel(%s, %d) = %v, want %v", tt.method, tt.status, got, tt.want)
		}
	}
}
