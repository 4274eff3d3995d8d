package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/otp-relay/sms-otp-bridge/internal/biz/domain"
)

// DefaultHealthWindow is how recent the last successful fetch must be for "ok"
const DefaultHealthWindow = 5 * time.Minute

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

// StatusProvider returns the current relay status
type StatusProvider interface {
	Snapshot() *domain.Status
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status             string  `json:"status"`
	Uptime             float64 `json:"uptime"` // seconds
	LastSMSID          int64   `json:"lastSmsId"`
	BrowserActive      bool    `json:"browserActive"`
	ActiveChannels     int     `json:"activeChannels"`
	PollCount          int64   `json:"pollCount"`
	LastSuccessfulPoll string  `json:"lastSuccessfulPoll"`
	TimeSinceLastPoll  int64   `json:"timeSinceLastPoll"` // milliseconds
	Timestamp          string  `json:"timestamp"`
}

// Server is the read-only liveness endpoint
type Server struct {
	status       StatusProvider
	healthWindow time.Duration
	port         int
	logger       *slog.Logger
	router       chi.Router
}

// NewServer creates a new liveness server
func NewServer(status StatusProvider, port int, healthWindow time.Duration, logger *slog.Logger) *Server {
	if healthWindow <= 0 {
		healthWindow = DefaultHealthWindow
	}
	s := &Server{
		status:       status,
		healthWindow: healthWindow,
		port:         port,
		logger:       logger.With("component", "api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)

	// Only GET is served; other methods on known paths are treated as unknown routes
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)
	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured port until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Liveness endpoint listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("liveness server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Liveness server shutdown error", "error", err)
	}
	s.logger.Info("Liveness endpoint stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.status.Snapshot()
	resp := BuildHealthResponse(snap, s.healthWindow)

	code := http.StatusOK
	if resp.Status != statusOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// BuildHealthResponse converts a status snapshot into the liveness payload
func BuildHealthResponse(snap *domain.Status, window time.Duration) *HealthResponse {
	status := statusOK
	if !snap.IsHealthy(window) {
		status = statusDegraded
	}
	return &HealthResponse{
		Status:             status,
		Uptime:             snap.Uptime().Seconds(),
		LastSMSID:          snap.LastSeenID,
		BrowserActive:      snap.SessionActive,
		ActiveChannels:     snap.Destinations,
		PollCount:          snap.PollCount,
		LastSuccessfulPoll: snap.LastSuccessfulFetch.UTC().Format(time.RFC3339),
		TimeSinceLastPoll:  snap.SinceLastSuccess().Milliseconds(),
		Timestamp:          snap.Now.UTC().Format(time.RFC3339),
	}
}

// requestLogger logs each request through slog with the chi request id
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}
