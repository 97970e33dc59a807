package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/gametools/internal/input"
	"github.com/me/gametools/pkg/model"
)

type desktopResponse struct {
	Windows []string `json:"windows"`
	Focused string   `json:"focused,omitempty"`
}

type keyInfo struct {
	Name    string `json:"name"`
	Code    uint16 `json:"code"`
	Toggled bool   `json:"toggled"`
}

func (s *Server) handleGetDesktop(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.desktop == nil {
		respondError(w, reqID, model.NewConflictError("no simulated desktop is configured"))
		return
	}
	respondOK(w, reqID, desktopResponse{Windows: s.desktop.Titles(), Focused: s.desktop.Focused()})
}

// handleDesktopAction opens, closes or focuses a simulated window.
// POST /api/v1/desktop/{title}/{action}
func (s *Server) handleDesktopAction(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.desktop == nil {
		respondError(w, reqID, model.NewConflictError("no simulated desktop is configured"))
		return
	}
	title := chi.URLParam(r, "title")
	action := chi.URLParam(r, "action")

	switch action {
	case "open":
		s.desktop.Open(title)
	case "close":
		s.desktop.Close(title)
	case "focus":
		if err := s.desktop.Focus(title); err != nil {
			respondError(w, reqID, model.NewConflictError(err.Error()))
			return
		}
	default:
		respondError(w, reqID, model.NewValidationError("unknown action "+action,
			model.FieldError{Field: "action", Message: "must be open, close or focus"}))
		return
	}
	s.logger.Debug("desktop changed", "title", title, "action", action, "request_id", reqID)
	respondOK(w, reqID, desktopResponse{Windows: s.desktop.Titles(), Focused: s.desktop.Focused()})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.keyboard == nil {
		respondError(w, reqID, model.NewConflictError("no simulated keyboard is configured"))
		return
	}
	keys := []keyInfo{}
	for _, k := range s.keyboard.Down() {
		keys = append(keys, keyInfo{Name: k.String(), Code: uint16(k), Toggled: s.keyboard.IsKeyToggled(k)})
	}
	respondOK(w, reqID, keys)
}

// handleKeyAction presses or releases a simulated key.
// POST /api/v1/keys/{key}/{action}
func (s *Server) handleKeyAction(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.keyboard == nil {
		respondError(w, reqID, model.NewConflictError("no simulated keyboard is configured"))
		return
	}
	k, err := input.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		respondError(w, reqID, model.NewValidationError(err.Error(),
			model.FieldError{Field: "key", Message: err.Error()}))
		return
	}

	switch action := chi.URLParam(r, "action"); action {
	case "down":
		s.keyboard.Press(k)
	case "up":
		s.keyboard.Release(k)
	default:
		respondError(w, reqID, model.NewValidationError("unknown action "+action,
			model.FieldError{Field: "action", Message: "must be down or up"}))
		return
	}
	respondOK(w, reqID, keyInfo{Name: k.String(), Code: uint16(k), Toggled: s.keyboard.IsKeyToggled(k)})
}
