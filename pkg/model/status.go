package model

import "time"

// EventInfo describes one registered event for API listings.
type EventInfo struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Priority Priority `json:"priority"`
	Group    string   `json:"group,omitempty"`
	// Index is the position in the ordered queue, -1 for instant events.
	Index int `json:"index"`
}

// WindowInfo is the cached open/focus state of a tracked window.
type WindowInfo struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Open       bool   `json:"open"`
	Focus      bool   `json:"focus"`
	Main       bool   `json:"main"`
	ExactTitle bool   `json:"exact_title"`
}

// StateInfo describes a state known to the runtime.
type StateInfo struct {
	Name    string `json:"name"`
	DebugID int64  `json:"debug_id"`
	Current bool   `json:"current"`
}

// LoopStats are counters maintained by the tick loop.
type LoopStats struct {
	Ticks            int64         `json:"ticks"`
	Overruns         int64         `json:"overruns"`
	TickErrors       int64         `json:"tick_errors"`
	LastTickDuration time.Duration `json:"last_tick_duration"`
	SkippedUpdates   int64         `json:"skipped_updates"`
	SkippedEventRuns int64         `json:"skipped_event_runs"`
}

// Status is the runtime snapshot served by GET /api/v1/status.
type Status struct {
	State        LoopState     `json:"state"`
	TickPeriod   time.Duration `json:"tick_period"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CurrentState string        `json:"current_state"`
	Stats        LoopStats     `json:"stats"`
	Windows      []WindowInfo  `json:"windows"`
	InstantCount int           `json:"instant_events"`
	QueuedCount  int           `json:"queued_events"`
}
