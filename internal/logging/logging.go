// Package logging builds the runtime's slog loggers and rate limits noisy
// log lines.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing to w. level is a name understood by
// ParseLevel; unknown levels log at info and unknown formats as text.
// Callers pass stderr, since stdout carries command output.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl, _ := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, FormatJSON) {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a level name to slog.Level. ok is false, and the level
// info, for names it does not know.
func ParseLevel(s string) (level slog.Level, ok bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ValidFormat reports whether format names a supported output format.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatText, FormatJSON:
		return true
	}
	return false
}

// Component returns a child of logger whose records carry component=name
// followed by args.
func Component(logger *slog.Logger, name string, args ...any) *slog.Logger {
	return logger.With(append([]any{"component", name}, args...)...)
}

// Throttle limits how often a log line with the same key is emitted: one
// line per key per interval. It is safe for concurrent use and meant to be
// shared between callers logging the same kind of line.
type Throttle struct {
	every rate.Limit
	now   func() time.Time

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	suppressed map[string]int
}

// NewThrottle returns a Throttle that allows one line per key per interval.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		every:      rate.Every(interval),
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
		suppressed: make(map[string]int),
	}
}

// Allow reports whether a line for key may be logged now.
func (t *Throttle) Allow(key string) bool {
	_, ok := t.take(key)
	return ok
}

// Log emits msg at level through logger unless key was logged within the
// interval. Emitted lines carry the number of lines suppressed since the
// previous one.
func (t *Throttle) Log(logger *slog.Logger, level slog.Level, key, msg string, args ...any) {
	skipped, ok := t.take(key)
	if !ok {
		return
	}
	if skipped > 0 {
		args = append(args, "suppressed", skipped)
	}
	logger.Log(context.Background(), level, msg, args...)
}

// Reset forgets key so that its next line is always allowed.
func (t *Throttle) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.limiters, key)
	delete(t.suppressed, key)
}

func (t *Throttle) take(key string) (skipped int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lim, found := t.limiters[key]
	if !found {
		lim = rate.NewLimiter(t.every, 1)
		t.limiters[key] = lim
	}
	if !lim.AllowN(t.now(), 1) {
		t.suppressed[key]++
		return 0, false
	}
	skipped = t.suppressed[key]
	delete(t.suppressed, key)
	return skipped, true
}
