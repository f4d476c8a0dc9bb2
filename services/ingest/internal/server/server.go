package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"cowly/internal/util"
	"cowly/services/ingest/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// ControlToken guards POST /ingest/poll. Empty disables the endpoint.
	ControlToken string
}

// Server exposes health and poller status for the ingest service.
type Server struct {
	app          *app.App
	controlToken string
	mux          *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:          cfg.App,
		controlToken: strings.TrimSpace(cfg.ControlToken),
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("ingest", util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/ingest/feeds", s.handleFeeds)
	s.mux.Handle("/ingest/poll", s.withControl(s.handlePoll))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withControl(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.controlToken == "" {
			writeError(w, http.StatusNotFound, "manual polling disabled")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.controlToken)) != 1 {
			util.LoggerFromContext(r.Context()).Warn("security_event", "event", "ingest.poll", "outcome", "fail", "ip", util.ClientIP(r, nil))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": s.app.Statuses()})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	ok, failed := s.app.PollOnce(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"ok": ok, "failed": failed})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
