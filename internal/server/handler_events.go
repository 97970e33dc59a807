package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/gametools/internal/scheduler"
	"github.com/me/gametools/pkg/model"
)

type createEventRequest struct {
	Template string            `json:"template"`
	Args     map[string]string `json:"args,omitempty"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	infos := s.scheduler.EventInfos()
	if group := r.URL.Query().Get("group"); group != "" {
		filtered := infos[:0]
		for _, info := range infos {
			if info.Group == group {
				filtered = append(filtered, info)
			}
		}
		infos = filtered
	}
	respondOK(w, reqID, infos)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	templates := []string{}
	if s.events != nil {
		templates = s.events.Templates()
	}
	respondOK(w, reqID, templates)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req createEventRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondError(w, reqID, apiErr)
		return
	}
	if req.Template == "" {
		respondError(w, reqID, model.NewValidationError("template is required",
			model.FieldError{Field: "template", Message: "required"}))
		return
	}
	if s.events == nil {
		respondError(w, reqID, model.NewNotFoundError("template", req.Template))
		return
	}

	e, err := s.events.NewEvent(req.Template, req.Args)
	if err != nil {
		respondError(w, reqID, model.NewValidationError(err.Error(),
			model.FieldError{Field: "template", Message: err.Error()}))
		return
	}

	var added bool
	if err := s.scheduler.Do(r.Context(), func(ctx context.Context) error {
		added = s.scheduler.AddEvent(ctx, e)
		return nil
	}); err != nil {
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}
	if !added {
		respondError(w, reqID, model.NewConflictError("event "+e.ID()+" was not added"))
		return
	}

	s.logger.Info("event created", "event_id", e.ID(), "template", req.Template, "request_id", reqID)
	info := model.EventInfo{ID: e.ID(), Type: scheduler.EventType(e), Priority: e.Priority(), Group: e.Group(), Index: -1}
	for _, i := range s.scheduler.EventInfos() {
		if i.ID == e.ID() {
			info = i
			break
		}
	}
	respondCreated(w, reqID, info)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	e := s.scheduler.FindEvent(id)
	if e == nil {
		respondError(w, reqID, model.NewNotFoundError("event", id))
		return
	}
	if err := s.scheduler.Do(r.Context(), func(ctx context.Context) error {
		return s.scheduler.RemoveEvent(ctx, e)
	}); err != nil {
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}
	s.logger.Info("event removed", "event_id", id, "request_id", reqID)
	respondOK(w, reqID, map[string]any{"id": id, "removed": true})
}
