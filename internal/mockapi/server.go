// Package mockapi provides an in-process mock of the venue and ordering
// service. It enforces bearer tokens and If-Match versions, returns the
// service's 401/409/422 error shapes and can inject failures. It backs the
// gateway and sync tests and the serve-mock CLI command.
package mockapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Dompi123/FOMO2025PART4/internal/logging"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

// Call is one request the server received.
type Call struct {
	Method string
	Path   string
}

type failure struct {
	status    int
	remaining int
}

// Server is the mock service state plus its router.
type Server struct {
	mu       sync.Mutex
	token    string
	latency  time.Duration
	venues   map[string]models.Venue
	orders   map[string]models.Order
	profile  models.Profile
	failures []failure
	calls    []Call

	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every non-health route.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithVenues seeds the venue list.
func WithVenues(venues ...models.Venue) Option {
	return func(s *Server) {
		for _, v := range venues {
			if v.Version == 0 {
				v.Version = 1
			}
			s.venues[v.ID] = v
		}
	}
}

// WithProfile seeds the profile.
func WithProfile(p models.Profile) Option {
	return func(s *Server) {
		if p.Version == 0 {
			p.Version = 1
		}
		s.profile = p
	}
}

// WithLatency delays every response.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// New creates a Server.
func New(opts ...Option) *Server {
	s := &Server{
		venues: make(map[string]models.Venue),
		orders: make(map[string]models.Order),
		profile: models.Profile{
			ID:          "user-1",
			Name:        "Guest",
			Preferences: map[string]interface{}{},
			Version:     1,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)

	r.Get("/api/health", s.handleHealth)
	r.Head("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.inject)
		r.Use(s.auth)

		r.Get("/venues", s.handleGetVenues)
		r.Post("/orders", s.handleCreateOrder)
		r.Patch("/orders/{id}", s.handleUpdateOrder)
		r.Delete("/orders/{id}", s.handleCancelOrder)
		r.Get("/profile", s.handleGetProfile)
		r.Patch("/profile", s.handleUpdateProfile)
		r.Delete("/profile", s.handleDeleteProfile)
		r.Post("/sync/force", s.handleForceSync)
	})
	return r
}

// FailNext makes the next n non-health requests fail with status.
func (s *Server) FailNext(status, n int) {
	s.mu.Lock()
	s.failures = append(s.failures, failure{status: status, remaining: n})
	s.mu.Unlock()
}

// Calls returns the requests received so far, health probes included.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// SetLatency changes the response delay.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// Profile returns the server profile.
func (s *Server) Profile() models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Apply(nil)
}

// SetProfile replaces the server profile as is.
func (s *Server) SetProfile(p models.Profile) {
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
}

// SetVenues replaces the venue list.
func (s *Server) SetVenues(venues ...models.Venue) {
	s.mu.Lock()
	s.venues = make(map[string]models.Venue, len(venues))
	for _, v := range venues {
		s.venues[v.ID] = v
	}
	s.mu.Unlock()
}

// Orders returns all orders sorted by creation time.
func (s *Server) Orders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Middleware

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
		latency := s.latency
		s.mu.Unlock()

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug("mockapi request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := 0
		if len(s.failures) > 0 {
			f := &s.failures[0]
			status = f.status
			f.remaining--
			if f.remaining <= 0 {
				s.failures = s.failures[1:]
			}
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, http.StatusText(status), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Helpers

type envelope struct {
	Data    interface{} `json:"data"`
	Version int64       `json:"version,omitempty"`
}

type errorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
	Version int64               `json:"version,omitempty"`
	Data    interface{}         `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, version int64) {
	w.Header().Set("Content-Type", "application/json")
	if version > 0 {
		w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: v, Version: version})
}

func writeError(w http.ResponseWriter, status int, message string, fields map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Message: message, Errors: fields})
}

func writeConflict(w http.ResponseWriter, current interface{}, version int64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(errorResponse{
		Message: "version mismatch",
		Version: version,
		Data:    current,
	})
}

// ifMatch returns the version in If-Match, or 0 when absent.
func ifMatch(r *http.Request) int64 {
	h := strings.Trim(strings.TrimPrefix(r.Header.Get("If-Match"), "W/"), `"`)
	if h == "" {
		return 0
	}
	v, err := strconv.ParseInt(h, 10, 64)
	if err != nil {
		return -1
	}
	return v
}
