package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"examwatch/internal/router"
	"examwatch/internal/stats"
	"examwatch/pkg/events"
)

// SessionSource provides ordered session snapshots and roll-up summaries.
// Satisfied by stats.Engine.
type SessionSource interface {
	OrderedSessions() []*events.SessionState
	GetSummary() stats.Summary
}

// LogSource provides the bounded event logs and drop metrics.
// Satisfied by router.Router.
type LogSource interface {
	ViolationLog() []*events.Envelope
	ActivityLog() []*events.Envelope
	GetMetrics() router.Metrics
}

// ConnectionStats reports connection counts. Satisfied by
// connection.Manager.
type ConnectionStats interface {
	Stats() map[string]int
}

// Server is the read-only snapshot API for the presentation layer. No
// business logic: every handler reads a consistent snapshot and
// serializes it.
type Server struct {
	sessions    SessionSource
	logs        LogSource
	connections ConnectionStats
	mux         *http.ServeMux
}

// NewServer creates the snapshot API server.
func NewServer(sessions SessionSource, logs LogSource, connections ConnectionStats) *Server {
	s := &Server{
		sessions:    sessions,
		logs:        logs,
		connections: connections,
		mux:         http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.Handle("/api/sessions", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSessions))))
	s.mux.Handle("/api/violations", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleViolations))))
	s.mux.Handle("/api/activity", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleActivity))))
	s.mux.Handle("/api/summary", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleSummary))))
	s.mux.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Response types for JSON serialization.
type SessionsResponse struct {
	Sessions []*events.SessionState `json:"sessions"`
	Count    int                    `json:"count"`
}

type EventLogResponse struct {
	Entries []*events.Envelope `json:"entries"`
	Count   int                `json:"count"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Connections map[string]int `json:"connections"`
	Router      router.Metrics `json:"router"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// GET /api/sessions — all sessions, answered_count descending.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	sessions := s.sessions.OrderedSessions()
	s.writeJSON(w, SessionsResponse{Sessions: sessions, Count: len(sessions)})
}

// GET /api/violations — retained violation log, newest first.
func (s *Server) handleViolations(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	entries := s.logs.ViolationLog()
	s.writeJSON(w, EventLogResponse{Entries: entries, Count: len(entries)})
}

// GET /api/activity — retained activity log, newest first.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	entries := s.logs.ActivityLog()
	s.writeJSON(w, EventLogResponse{Entries: entries, Count: len(entries)})
}

// GET /api/summary — roll-up statistics.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	s.writeJSON(w, s.sessions.GetSummary())
}

// GET /health — liveness plus connection and drop counters.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	s.writeJSON(w, HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Connections: s.connections.Stats(),
		Router:      s.logs.GetMetrics(),
	})
}

func (s *Server) requireGet(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodGet:
		return true
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return false
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	s.writeJSON(w, ErrorResponse{Error: message, Code: code})
}

// corsMiddleware allows browser dashboards on other origins to poll the
// snapshot API.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
