package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/gametools/internal/config"
	"github.com/me/gametools/internal/input"
	"github.com/me/gametools/internal/logging"
	"github.com/me/gametools/internal/scheduler"
	"github.com/me/gametools/internal/store"
	"github.com/me/gametools/internal/window"
)

// Version is reported by the health endpoint.
const Version = "0.3.0"

// EventFactory creates events from named templates.
type EventFactory interface {
	Templates() []string
	NewEvent(template string, args map[string]string) (scheduler.Event, error)
}

// StateSet resolves the states the runtime can switch to.
type StateSet interface {
	States() []scheduler.State
	State(name string) (scheduler.State, bool)
}

// Server is the control API of a running runtime.
type Server struct {
	router      chi.Router
	logger      *slog.Logger
	config      config.Config
	startTime   time.Time
	scheduler   scheduler.Scheduler
	store       store.Store     // optional; history endpoints report empty lists without it
	events      EventFactory    // optional; POST /events needs it
	states      StateSet        // optional; only the closed state without it
	desktop     *window.Desktop // optional; simulated windows
	keyboard    *input.Keyboard // optional; simulated keys
	sseInterval time.Duration
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore sets the history store.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithEventFactory sets the event template source for POST /events.
func WithEventFactory(f EventFactory) Option {
	return func(s *Server) {
		s.events = f
	}
}

// WithStates sets the states available to PUT /state.
func WithStates(set StateSet) Option {
	return func(s *Server) {
		s.states = set
	}
}

// WithDesktop exposes a simulated desktop under /desktop.
func WithDesktop(d *window.Desktop) Option {
	return func(s *Server) {
		s.desktop = d
	}
}

// WithKeyboard exposes a simulated keyboard under /keys.
func WithKeyboard(kb *input.Keyboard) Option {
	return func(s *Server) {
		s.keyboard = kb
	}
}

// WithSSEInterval sets how often the status stream polls for changes.
func WithSSEInterval(d time.Duration) Option {
	return func(s *Server) {
		s.sseInterval = d
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.Config, sched scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logging.Component(logger, "server"),
		config:      cfg,
		startTime:   time.Now(),
		scheduler:   sched,
		sseInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.handleListEvents)
			r.Post("/", s.handleCreateEvent)
			r.Get("/templates", s.handleListTemplates)
			r.Delete("/{id}", s.handleDeleteEvent)
		})

		r.Get("/states", s.handleListStates)
		r.Put("/state", s.handleChangeState)

		r.Get("/windows", s.handleListWindows)
		r.Get("/desktop", s.handleGetDesktop)
		r.Post("/desktop/{title}/{action}", s.handleDesktopAction)

		r.Get("/keys", s.handleListKeys)
		r.Post("/keys/{key}/{action}", s.handleKeyAction)

		r.Get("/history", s.handleListHistory)

		r.Get("/sse/status", s.handleSSEStatus)
	})
}
