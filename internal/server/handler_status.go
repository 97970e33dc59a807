package server

import "net/http"

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.scheduler.Status())
}

func (s *Server) handleListWindows(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.scheduler.Status().Windows)
}
