package server

import (
	"context"
	"net/http"
	"sort"

	"github.com/me/gametools/internal/scheduler"
	"github.com/me/gametools/pkg/model"
)

type changeStateRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListStates(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	current := s.scheduler.CurrentState()

	infos := []model.StateInfo{}
	seen := map[string]bool{}
	add := func(st scheduler.State) {
		if seen[st.Name()] {
			return
		}
		seen[st.Name()] = true
		infos = append(infos, model.StateInfo{
			Name:    st.Name(),
			DebugID: st.DebugID(),
			Current: current != nil && current.Name() == st.Name(),
		})
	}
	if current != nil {
		add(current)
	}
	if s.states != nil {
		for _, st := range s.states.States() {
			add(st)
		}
	}
	if !seen[scheduler.ClosedStateName] {
		infos = append(infos, model.StateInfo{Name: scheduler.ClosedStateName})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	respondOK(w, reqID, infos)
}

// handleChangeState switches the runtime to another state.
// PUT /api/v1/state {"name": "..."}
func (s *Server) handleChangeState(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req changeStateRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		respondError(w, reqID, apiErr)
		return
	}
	if req.Name == "" {
		respondError(w, reqID, model.NewValidationError("name is required",
			model.FieldError{Field: "name", Message: "required"}))
		return
	}

	next, ok := s.lookupState(req.Name)
	if !ok {
		respondError(w, reqID, model.NewNotFoundError("state", req.Name))
		return
	}

	old := s.scheduler.CurrentState()
	if err := s.scheduler.Do(r.Context(), func(ctx context.Context) error {
		return s.scheduler.ChangeState(ctx, next)
	}); err != nil {
		respondError(w, reqID, model.NewInternalError(err.Error()))
		return
	}

	from := ""
	if old != nil {
		from = old.Name()
	}
	s.logger.Info("state changed", "from", from, "to", next.Name(), "request_id", reqID)
	respondOK(w, reqID, model.StateInfo{Name: next.Name(), DebugID: next.DebugID(), Current: true})
}

func (s *Server) lookupState(name string) (scheduler.State, bool) {
	if s.states != nil {
		if st, ok := s.states.State(name); ok {
			return st, true
		}
	}
	if name == scheduler.ClosedStateName {
		return scheduler.NewClosedState(), true
	}
	return nil, false
}
