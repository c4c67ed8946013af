package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerline/paysync/internal/domain"
	"github.com/ledgerline/paysync/internal/runstore"
	"github.com/ledgerline/paysync/internal/selection"
)

// RunResponse is the API response for a persisted run
type RunResponse struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Status     string  `json:"status"`
	Total      int     `json:"total"`
	Processed  int     `json:"processed"`
	Successful int     `json:"successful"`
	Failed     int     `json:"failed"`
	StartedAt  *string `json:"started_at,omitempty"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Duration   string  `json:"duration"`
	Error      string  `json:"error,omitempty"`
}

// StateResponse is the API response for a live controller state
type StateResponse struct {
	Phase       string `json:"phase"`
	Running     bool   `json:"running"`
	Paused      bool   `json:"paused"`
	Total       int    `json:"total"`
	Processed   int    `json:"processed"`
	Successful  int    `json:"successful"`
	Failed      int    `json:"failed"`
	CurrentItem string `json:"current_item,omitempty"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Fetch  *StateResponse `json:"fetch,omitempty"`
	Resync *ResyncStatus  `json:"resync,omitempty"`
}

// ResyncStatus extends controller state with continuation details
type ResyncStatus struct {
	StateResponse
	Skip     int     `json:"skip"`
	Progress float64 `json:"progress_percent"`
	Error    string  `json:"error,omitempty"`
}

// LogEntryResponse is the API response for one run log line
type LogEntryResponse struct {
	Timestamp string `json:"timestamp"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
}

// ApplicationResponse is the API response for a payment application.
// Money fields are strings to keep exact decimal values on the wire.
type ApplicationResponse struct {
	PaymentRef string `json:"payment_ref"`
	InvoiceRef string `json:"invoice_ref"`
	AmountPaid string `json:"amount_paid"`
	Balance    string `json:"balance"`
	DocType    string `json:"doc_type,omitempty"`
}

func runToResponse(run *domain.Run) RunResponse {
	resp := RunResponse{
		ID:         run.ID,
		Kind:       string(run.Kind),
		Status:     string(run.Status),
		Total:      run.Total,
		Processed:  run.Processed,
		Successful: run.Successful,
		Failed:     run.Failed,
		Duration:   run.Duration().Round(time.Second).String(),
		Error:      run.Error,
	}
	if run.StartedAt != nil {
		t := run.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &t
	}
	if run.FinishedAt != nil {
		t := run.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}
	return resp
}

func stateToResponse(state domain.RunState) StateResponse {
	return StateResponse{
		Phase:       string(state.Phase()),
		Running:     state.IsRunning,
		Paused:      state.IsPaused,
		Total:       state.Total,
		Processed:   state.Processed,
		Successful:  state.Successful,
		Failed:      state.Failed,
		CurrentItem: state.CurrentItem,
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var status StatusResponse
		if s.fetch != nil {
			state := stateToResponse(s.fetch.Tracker().State())
			status.Fetch = &state
		}
		if s.resync != nil {
			rs := ResyncStatus{
				StateResponse: stateToResponse(s.resync.Tracker().State()),
				Skip:          s.resync.Skip(),
				Progress:      s.resync.Progress(),
			}
			if err := s.resync.LastError(); err != nil {
				rs.Error = err.Error()
			}
			status.Resync = &rs
		}

		writeJSON(w, status)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		opts := runstore.ListOptions{
			Kind:   domain.RunKind(r.URL.Query().Get("kind")),
			Status: domain.RunPhase(r.URL.Query().Get("status")),
		}
		if limit := r.URL.Query().Get("limit"); limit != "" {
			opts.Limit, _ = strconv.Atoi(limit)
		}

		runs, err := s.store.ListRuns(opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]RunResponse, len(runs))
		for i, run := range runs {
			responses[i] = runToResponse(run)
		}

		writeJSON(w, responses)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		// Path: /api/runs/{id} or /api/runs/{id}/logs
		path := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if path == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		if id, ok := strings.CutSuffix(path, "/logs"); ok {
			s.writeRunLogs(w, r, id)
			return
		}

		run, err := s.store.GetRun(path)
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}

		writeJSON(w, runToResponse(run))
	}
}

func (s *Server) writeRunLogs(w http.ResponseWriter, r *http.Request, runID string) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	entries, err := s.store.GetRunLog(runID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responses := make([]LogEntryResponse, len(entries))
	for i, entry := range entries {
		responses[i] = LogEntryResponse{
			Timestamp: entry.Timestamp.Format(time.RFC3339),
			Severity:  string(entry.Severity),
			Message:   entry.Message,
		}
	}

	writeJSON(w, map[string]interface{}{
		"run_id": runID,
		"lines":  responses,
	})
}

func (s *Server) applicationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		ref := strings.TrimPrefix(r.URL.Path, "/api/applications/")
		if ref == "" {
			writeError(w, http.StatusBadRequest, "payment reference required")
			return
		}

		apps, err := s.store.GetApplications(ref)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]ApplicationResponse, len(apps))
		for i, app := range apps {
			responses[i] = ApplicationResponse{
				PaymentRef: app.PaymentRef,
				InvoiceRef: app.InvoiceRef,
				AmountPaid: app.AmountPaid.String(),
				Balance:    app.Balance.String(),
				DocType:    string(app.DocType),
			}
		}

		writeJSON(w, responses)
	}
}

func (s *Server) breakdownHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		breakdown, err := s.store.ApplicationBreakdown()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := make(map[string]int, len(breakdown))
		for docType, count := range breakdown {
			resp[string(docType)] = count
		}

		writeJSON(w, resp)
	}
}

// FetchStartRequest selects the payments for a batch fetch run. Either a
// list of payment references or the name of a CSV file under the configured
// selections directory.
type FetchStartRequest struct {
	Refs      []string `json:"refs"`
	Selection string   `json:"selection"`
}

func (s *Server) fetchStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.fetch == nil {
			writeError(w, http.StatusServiceUnavailable, "batch fetch not available")
			return
		}

		var req FetchStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		payments, err := s.resolvePayments(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if s.fetch.Tracker().State().IsRunning {
			writeError(w, http.StatusConflict, "a run is already active")
			return
		}

		go func() {
			if err := s.fetch.Start(context.Background(), payments); err == nil {
				s.broadcastFetchState()
			}
		}()

		writeJSON(w, map[string]interface{}{"status": "started", "payments": len(payments)})
	}
}

func (s *Server) resolvePayments(req FetchStartRequest) ([]*domain.Payment, error) {
	if req.Selection != "" {
		if s.selectionsDir == "" {
			return nil, errors.New("no selections directory configured")
		}
		if req.Selection != filepath.Base(req.Selection) {
			return nil, errors.New("selection must be a bare file name")
		}
		return selection.LoadCSVFile(filepath.Join(s.selectionsDir, req.Selection+".csv"))
	}

	if len(req.Refs) == 0 {
		return nil, errors.New("refs or selection required")
	}
	payments := make([]*domain.Payment, 0, len(req.Refs))
	for _, ref := range req.Refs {
		p := &domain.Payment{RefNbr: ref}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (s *Server) fetchPauseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.fetch == nil {
			writeError(w, http.StatusServiceUnavailable, "batch fetch not available")
			return
		}

		s.fetch.Pause()
		s.broadcastFetchState()
		writeJSON(w, map[string]string{"status": "pausing"})
	}
}

func (s *Server) fetchResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.fetch == nil {
			writeError(w, http.StatusServiceUnavailable, "batch fetch not available")
			return
		}

		if err := startResume(s.fetch.Resume, s.broadcastFetchState); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}

		writeJSON(w, map[string]string{"status": "resuming"})
	}
}

// startResume kicks off a resume and reports rejections. The resume call
// blocks for the rest of the run, so only an immediate error, such as no
// paused run existing, is returned to the caller.
func startResume(resume func(context.Context) error, broadcast func()) error {
	errCh := make(chan error, 1)
	go func() {
		err := resume(context.Background())
		if err == nil {
			broadcast()
		}
		errCh <- err
	}()
	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *Server) fetchResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.fetch == nil {
			writeError(w, http.StatusServiceUnavailable, "batch fetch not available")
			return
		}

		if err := s.fetch.Reset(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}

		s.broadcastFetchState()
		writeJSON(w, map[string]string{"status": "reset"})
	}
}

func (s *Server) resyncStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.resync == nil {
			writeError(w, http.StatusServiceUnavailable, "resync not available")
			return
		}

		if s.resync.Tracker().State().IsRunning {
			writeError(w, http.StatusConflict, "a resync is already active")
			return
		}

		go func() {
			if err := s.resync.Start(context.Background()); err == nil {
				s.broadcastResyncState()
			}
		}()

		writeJSON(w, map[string]string{"status": "started"})
	}
}

func (s *Server) resyncPauseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.resync == nil {
			writeError(w, http.StatusServiceUnavailable, "resync not available")
			return
		}

		s.resync.Pause()
		s.broadcastResyncState()
		writeJSON(w, map[string]string{"status": "pausing"})
	}
}

func (s *Server) resyncResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.resync == nil {
			writeError(w, http.StatusServiceUnavailable, "resync not available")
			return
		}

		if err := startResume(s.resync.Resume, s.broadcastResyncState); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}

		writeJSON(w, map[string]string{"status": "resuming"})
	}
}

func (s *Server) resyncResetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.resync == nil {
			writeError(w, http.StatusServiceUnavailable, "resync not available")
			return
		}

		if err := s.resync.Reset(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}

		s.broadcastResyncState()
		writeJSON(w, map[string]string{"status": "reset"})
	}
}

func (s *Server) broadcastFetchState() {
	if s.fetch == nil {
		return
	}
	s.Broadcast(SSEEvent{Type: "fetch_update", Data: stateToResponse(s.fetch.Tracker().State())})
}

func (s *Server) broadcastResyncState() {
	if s.resync == nil {
		return
	}
	rs := ResyncStatus{
		StateResponse: stateToResponse(s.resync.Tracker().State()),
		Skip:          s.resync.Skip(),
		Progress:      s.resync.Progress(),
	}
	if err := s.resync.LastError(); err != nil {
		rs.Error = err.Error()
	}
	s.Broadcast(SSEEvent{Type: "resync_update", Data: rs})
}
