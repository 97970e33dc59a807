package server

import (
	"errors"
	"net/http"

	"github.com/me/gametools/pkg/model"
)

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	opts, err := model.ParseListOptions(r.URL.Query())
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			respondError(w, reqID, apiErr)
			return
		}
		respondError(w, reqID, model.NewValidationError(err.Error()))
		return
	}

	if s.store == nil {
		respondList(w, reqID, []*model.HistoryEntry{}, opts.Page(0, 0))
		return
	}

	entries, total, err := s.store.ListHistory(r.Context(), opts)
	if err != nil {
		s.logger.Error("list history", "error", err, "request_id", reqID)
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}
	if entries == nil {
		entries = []*model.HistoryEntry{}
	}
	respondList(w, reqID, entries, opts.Page(total, len(entries)))
}
