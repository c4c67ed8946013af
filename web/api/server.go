package api

import (
	"encoding/json"
	"net/http"

	"github.com/ledgerline/paysync/internal/batchfetch"
	"github.com/ledgerline/paysync/internal/domain"
	"github.com/ledgerline/paysync/internal/resync"
	"github.com/ledgerline/paysync/internal/runstore"
)

// Store interface for database operations
type Store interface {
	ListRuns(opts runstore.ListOptions) ([]*domain.Run, error)
	GetRun(id string) (*domain.Run, error)
	GetRunLog(runID string, limit int) ([]domain.LogEntry, error)
	GetApplications(paymentRef string) ([]domain.Application, error)
	ApplicationBreakdown() (map[domain.DocType]int, error)
}

// Server is the HTTP API server
type Server struct {
	store         Store
	fetch         *batchfetch.Runner
	resync        *resync.Controller
	addr          string
	selectionsDir string
	mux           *http.ServeMux
	sseHub        *SSEHub
	wsHub         *WSHub
}

// NewServer creates a new API server
func NewServer(store Store, fetch *batchfetch.Runner, rc *resync.Controller, addr string) *Server {
	s := &Server{
		store:  store,
		fetch:  fetch,
		resync: rc,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
		wsHub:  NewWSHub(),
	}
	s.setupRoutes()
	return s
}

// SetSelectionsDir enables starting fetch runs by selection file name.
func (s *Server) SetSelectionsDir(dir string) {
	s.selectionsDir = dir
}

func (s *Server) setupRoutes() {
	// API routes
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	s.mux.HandleFunc("/api/applications/", s.applicationsHandler())
	s.mux.HandleFunc("/api/breakdown", s.breakdownHandler())
	s.mux.HandleFunc("/api/fetch/start", s.fetchStartHandler())
	s.mux.HandleFunc("/api/fetch/pause", s.fetchPauseHandler())
	s.mux.HandleFunc("/api/fetch/resume", s.fetchResumeHandler())
	s.mux.HandleFunc("/api/fetch/reset", s.fetchResetHandler())
	s.mux.HandleFunc("/api/resync/start", s.resyncStartHandler())
	s.mux.HandleFunc("/api/resync/pause", s.resyncPauseHandler())
	s.mux.HandleFunc("/api/resync/resume", s.resyncResumeHandler())
	s.mux.HandleFunc("/api/resync/reset", s.resyncResetHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
	s.mux.HandleFunc("/ws/runs", s.wsHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.sseHub.Run()
	return http.ListenAndServe(s.addr, s.mux)
}

// Broadcast sends an event to all SSE and websocket clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
	s.wsHub.Broadcast(event)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
