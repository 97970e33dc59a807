package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/me/gametools/pkg/model"
)

// handleSSEStatus streams status snapshots via Server-Sent Events. An
// "update" is sent whenever the snapshot differs from the previous one,
// otherwise a heartbeat comment.
// GET /api/v1/sse/status
func (s *Server) handleSSEStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	last := sseSnapshot(s.scheduler.Status())
	if err := sendSSEEvent(w, flusher, "init", last); err != nil {
		s.logger.Debug("sse client disconnected", "error", err)
		return
	}

	ticker := time.NewTicker(s.sseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			st := sseSnapshot(s.scheduler.Status())
			if !reflect.DeepEqual(st, last) {
				if err := sendSSEEvent(w, flusher, "update", st); err != nil {
					s.logger.Debug("sse client disconnected", "error", err)
					return
				}
				last = st
				continue
			}
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// sseSnapshot drops the fields that change on every tick so that updates
// are only sent for meaningful changes.
func sseSnapshot(st model.Status) model.Status {
	st.Stats.Ticks = 0
	st.Stats.LastTickDuration = 0
	return st
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
	if err != nil {
		return err
	}

	flusher.Flush()
	return nil
}
