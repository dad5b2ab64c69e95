package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dininghours/internal/clock"
	"dininghours/internal/config"
	appLog "dininghours/internal/log"
	"dininghours/internal/metrics"
	"dininghours/internal/snapshot"
)

// Server exposes facility status, wait and ETA queries over HTTP.
type Server struct {
	store     *snapshot.Store
	clock     clock.Clock
	metrics   *metrics.Collector
	basicAuth *config.BasicAuthConfig
	listen    string
	mux       *http.ServeMux
}

type Option func(*Server)

// WithClock overrides "now" for queries without an explicit time.
func WithClock(c clock.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetrics enables /metrics and per-route request counting.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithBasicAuth protects every endpoint except /health.
func WithBasicAuth(a *config.BasicAuthConfig) Option {
	return func(s *Server) { s.basicAuth = a }
}

// NewServer constructs a new Server reading from store.
func NewServer(store *snapshot.Store, listen string, opts ...Option) *Server {
	s := &Server{
		store:  store,
		clock:  clock.NewSystem(),
		listen: listen,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the root http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.metrics != nil {
		h = s.countRequests(h)
	}
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.listen)
		h = s.basicAuthMiddleware(h)
	}
	return h
}

// HTTPServer wraps Handler in an http.Server bound to the listen address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/facilities", s.handleFacilities)
	s.mux.HandleFunc("GET /api/facilities/{id}", s.handleFacility)
	s.mux.HandleFunc("GET /api/facilities/{id}/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/facilities/{id}/wait", s.handleWait)
	s.mux.HandleFunc("GET /api/facilities/{id}/eta", s.handleETA)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
// An empty username or password disables it.
func (s *Server) basicAuthEnabled() bool {
	return s.basicAuth != nil && s.basicAuth.Username != "" && s.basicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.basicAuth.Username
	password := s.basicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="dininghours", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// countRequests records one APIRequests sample per request, labeled by the
// matched route pattern.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.APIRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// loadSnapshot writes 503 and returns false when no data is loaded yet.
func (s *Server) loadSnapshot(w http.ResponseWriter) (*snapshot.Snapshot, bool) {
	snap, err := s.store.Load()
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			writeError(w, http.StatusServiceUnavailable, "facility data not loaded yet")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return snap, true
}
