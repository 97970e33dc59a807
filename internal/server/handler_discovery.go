package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "gametools API",
		Version:     "v1",
		Description: "gametools runtime control: tick loop status, events, states, windows and input",
		Endpoints: []endpointInfo{
			{"/api/v1/status", []string{"GET"}, "Tick loop status, counters, current state and windows"},
			{"/api/v1/events", []string{"GET", "POST"}, "Registered events (?group= filter); POST creates an event from a template"},
			{"/api/v1/events/templates", []string{"GET"}, "Event templates available to POST /events"},
			{"/api/v1/events/{id}", []string{"DELETE"}, "Remove an event (runs its stop hook)"},
			{"/api/v1/states", []string{"GET"}, "Known states and the current one"},
			{"/api/v1/state", []string{"PUT"}, "Change the current state"},
			{"/api/v1/windows", []string{"GET"}, "Tracked windows with cached open and focus flags"},
			{"/api/v1/desktop", []string{"GET"}, "Simulated desktop windows"},
			{"/api/v1/desktop/{title}/{action}", []string{"POST"}, "Open, close or focus a simulated window"},
			{"/api/v1/keys", []string{"GET"}, "Keys held on the simulated keyboard"},
			{"/api/v1/keys/{key}/{action}", []string{"POST"}, "Press (down) or release (up) a simulated key"},
			{"/api/v1/history", []string{"GET"}, "Journal of events, state and window changes (?kind= filter)"},
			{"/api/v1/sse/status", []string{"GET"}, "Status stream (Server-Sent Events)"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
