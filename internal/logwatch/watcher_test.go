package logwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/me/gametools/internal/scheduler"
	"github.com/me/gametools/pkg/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type lineEvent struct {
	scheduler.BaseEvent
	args map[string]string
}

type sink struct {
	events []*lineEvent
}

func (s *sink) AddEvent(_ context.Context, e scheduler.Event) bool {
	s.events = append(s.events, e.(*lineEvent))
	return true
}

func collect(context.Context, map[string]string) (scheduler.Event, error) {
	return nil, nil
}

func eventFactory(ctx context.Context, args map[string]string) (scheduler.Event, error) {
	return &lineEvent{BaseEvent: scheduler.NewBaseEvent(model.PriorityLast, "log"), args: args}, nil
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatal(err)
	}
}

func mustPattern(t *testing.T, name, expr, jsonPath string) *Pattern {
	t.Helper()
	p, err := NewPattern(name, expr, jsonPath, eventFactory)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestWatcher_StartsAtEnd(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "game.log")
	appendFile(t, path, "You died (fire)\n")

	s := &sink{}
	w := New(path, s, discardLogger(), WithPattern(mustPattern(t, "death", `You died \((?<cause>\w+)\)`, "")))

	if err := w.FetchNewLines(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s.events) != 0 {
		t.Fatalf("existing content produced %d events", len(s.events))
	}

	appendFile(t, path, "noise\nYou died (cold)\n")
	if err := w.FetchNewLines(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s.events) != 1 {
		t.Fatalf("events = %d, want 1", len(s.events))
	}
	args := s.events[0].args
	if args["cause"] != "cold" || args["line"] != "You died (cold)" || args["0"] != "You died (cold)" {
		t.Errorf("args = %v", args)
	}
	if lines, matches := w.Stats(); lines != 2 || matches != 1 {
		t.Errorf("Stats = %d lines, %d matches", lines, matches)
	}
}

func TestWatcher_FromStartAndPartialLines(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "game.log")
	appendFile(t, path, "hit 1\r\nhit 2\nhi")

	s := &sink{}
	w := New(path, s, discardLogger(), WithFromStart(), WithPattern(mustPattern(t, "hit", `^hit (\d+)$`, "")))

	if err := w.FetchNewLines(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s.events) != 2 {
		t.Fatalf("events = %d, want 2", len(s.events))
	}
	if s.events[0].args["1"] != "1" {
		t.Errorf("CRLF line args = %v", s.events[0].args)
	}

	appendFile(t, path, "t 3\n")
	if err := w.FetchNewLines(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s.events) != 3 || s.events[2].args["1"] != "3" {
		t.Fatalf("partial line not completed, events = %d", len(s.events))
	}
}

func TestWatcher_Truncation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "game.log")
	appendFile(t, path, "old line that is long\n")

	s := &sink{}
	w := New(path, s, discardLogger(), WithPattern(mustPattern(t, "new", `^new`, "")))
	_ = w.FetchNewLines(ctx)

	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.FetchNewLines(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s.events) != 1 {
		t.Errorf("events after truncation = %d, want 1", len(s.events))
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.log")
	s := &sink{}
	w := New(path, s, discardLogger(), WithFromStart(), WithPattern(mustPattern(t, "any", `.`, "")))
	if err := w.FetchNewLines(context.Background()); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	appendFile(t, path, "x\n")
	if err := w.FetchNewLines(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(s.events) != 1 {
		t.Errorf("events = %d, want 1", len(s.events))
	}
}

func TestWatcher_MaxRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "game.log")
	appendFile(t, path, "aaaa\nbbbb\n")

	s := &sink{}
	w := New(path, s, discardLogger(), WithFromStart(), WithMaxRead(5), WithPattern(mustPattern(t, "any", `.`, "")))
	_ = w.FetchNewLines(ctx)
	if len(s.events) != 1 {
		t.Fatalf("first fetch events = %d, want 1", len(s.events))
	}
	_ = w.FetchNewLines(ctx)
	if len(s.events) != 2 {
		t.Errorf("second fetch events = %d, want 2", len(s.events))
	}
}

func TestWatcher_DropsOverlongLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "game.log")

	s := &sink{}
	w := New(path, s, discardLogger(), WithFromStart(), WithMaxLine(8), WithPattern(mustPattern(t, "any", `.`, "")))

	appendFile(t, path, "0123456789")
	_ = w.FetchNewLines(ctx)
	if len(w.partial) != 0 || !w.skipping {
		t.Fatalf("partial = %q, skipping = %v; want dropped", w.partial, w.skipping)
	}

	appendFile(t, path, "abcdef")
	_ = w.FetchNewLines(ctx)
	if len(w.partial) != 0 {
		t.Errorf("partial grew while skipping: %q", w.partial)
	}

	appendFile(t, path, "tail\nok\n")
	if err := w.FetchNewLines(ctx); err != nil {
		t.Fatal(err)
	}
	if len(s.events) != 1 || s.events[0].args["line"] != "ok" {
		t.Fatalf("events = %+v, want one for \"ok\"", s.events)
	}
}

func TestWatcher_FactoryError(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "game.log")
	boom := errors.New("boom")
	p, err := NewPattern("bad", `.`, "", func(context.Context, map[string]string) (scheduler.Event, error) {
		return nil, boom
	})
	if err != nil {
		t.Fatal(err)
	}
	nilPattern, _ := NewPattern("nil", `.`, "", collect)

	s := &sink{}
	w := New(path, s, discardLogger(), WithFromStart(), WithPattern(p), WithPattern(nilPattern))
	appendFile(t, path, "a\n")
	if err := w.FetchNewLines(ctx); !errors.Is(err, boom) {
		t.Errorf("FetchNewLines error = %v, want boom", err)
	}
	if len(s.events) != 0 {
		t.Error("no events expected")
	}
}

func TestPattern_JSONPath(t *testing.T) {
	p := mustPattern(t, "loot", `^(?<item>\w+) \((?<rarity>unique|set)\)$`, "drop.label")

	tests := []struct {
		line   string
		want   bool
		rarity string
	}{
		{`{"drop":{"label":"Shako (unique)"}}`, true, "unique"},
		{`{"drop":{"label":"Cap (magic)"}}`, false, ""},
		{`{"other":1}`, false, ""},
		{`Shako (unique)`, false, ""},
	}
	for _, tt := range tests {
		args, ok, err := p.Match(tt.line)
		if err != nil {
			t.Fatalf("Match(%q): %v", tt.line, err)
		}
		if ok != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.line, ok, tt.want)
			continue
		}
		if ok && (args["rarity"] != tt.rarity || args["item"] != "Shako") {
			t.Errorf("Match(%q) args = %v", tt.line, args)
		}
	}
}

func TestNewPattern_Invalid(t *testing.T) {
	if _, err := NewPattern("bad", `(`, "", eventFactory); err == nil {
		t.Error("expected compile error")
	}
}
