package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vbonduro/bloom/internal/auth"
	"github.com/vbonduro/bloom/internal/domain"
	"github.com/vbonduro/bloom/internal/service"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	journal  *service.JournalService
	capture  *service.CaptureService
	auth     auth.Gateway
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer wires the HTTP API. gatherer may be nil, in which case /metrics
// is not served.
func NewServer(
	journal *service.JournalService,
	capture *service.CaptureService,
	gw auth.Gateway,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Server {
	s := &Server{
		journal:  journal,
		capture:  capture,
		auth:     gw,
		gatherer: gatherer,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	s.mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	s.mux.HandleFunc("POST /api/auth/federated", s.handleFederatedSignIn)
	s.mux.HandleFunc("POST /api/auth/signout", s.handleSignOut)
	s.mux.HandleFunc("POST /api/auth/reset", s.handleSendPasswordReset)
	s.mux.HandleFunc("POST /api/auth/reset/confirm", s.handleConfirmPasswordReset)
	s.mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/auth/user", s.handleCurrentUser)
	s.mux.HandleFunc("DELETE /api/auth/account", s.handleDeleteAccount)
	s.mux.HandleFunc("GET /api/auth/events", s.handleAuthEvents)

	s.mux.HandleFunc("GET /api/discoveries", s.handleListDiscoveries)
	s.mux.HandleFunc("GET /api/discoveries/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/discoveries/watch", s.handleWatchDiscoveries)
	s.mux.HandleFunc("GET /api/discoveries/{id}", s.handleGetDiscovery)
	s.mux.HandleFunc("DELETE /api/discoveries/{id}", s.handleDeleteDiscovery)
	s.mux.HandleFunc("POST /api/discoveries/{id}/fact", s.handleRegenerateFact)
	s.mux.HandleFunc("GET /api/discoveries/{id}/photo", s.handleGetPhoto)

	s.mux.HandleFunc("POST /api/captures", s.handleCapture)
	s.mux.HandleFunc("POST /api/captures/stream", s.handleCaptureStream)
}

// securityHeaders sets the browser security headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the Flusher and Hijacker of the
// underlying writer for SSE and WebSocket handlers.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the WebSocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireUser writes a 401 and returns nil when nobody is signed in.
func (s *Server) requireUser(w http.ResponseWriter) *domain.User {
	u := s.auth.CurrentUser()
	if u == nil {
		s.writeError(w, http.StatusUnauthorized, auth.ErrNotSignedIn.Error())
		return nil
	}
	return u
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a small JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

const maxJSONBody = 64 * 1024
