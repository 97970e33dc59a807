package model

import "time"

// HistoryKind classifies journal entries.
type HistoryKind string

const (
	HistoryEventAdded   HistoryKind = "event_added"
	HistoryEventRemoved HistoryKind = "event_removed"
	HistoryStateChange  HistoryKind = "state_change"
	HistoryOpenChange   HistoryKind = "open_change"
	HistoryFocusChange  HistoryKind = "focus_change"
	HistoryTickOverrun  HistoryKind = "tick_overrun"
)

// String returns the string representation of the history kind.
func (k HistoryKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the journaled kinds.
func (k HistoryKind) Valid() bool {
	switch k {
	case HistoryEventAdded, HistoryEventRemoved, HistoryStateChange,
		HistoryOpenChange, HistoryFocusChange, HistoryTickOverrun:
		return true
	}
	return false
}

// HistoryEntry is one journaled runtime occurrence.
type HistoryEntry struct {
	ID      int64       `json:"id"`
	RunID   string      `json:"run_id,omitempty"`
	Kind    HistoryKind `json:"kind"`
	Subject string      `json:"subject"`
	Detail  string      `json:"detail,omitempty"`
	At      time.Time   `json:"at"`
}
