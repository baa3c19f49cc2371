package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"clipnote/internal/api"
	"clipnote/internal/config"
	"clipnote/internal/jobs"
	"clipnote/internal/logging"
	"clipnote/internal/services"
	"clipnote/internal/workflow"
)

// pollWindow bounds one long-poll event fetch; it stays below the server
// write timeout so waiters get a response instead of a reset.
const pollWindow = 25 * time.Second

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/jobs", authMiddleware(token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, srv.handleJobByID))
	mux.HandleFunc("/api/history", authMiddleware(token, srv.handleHistory))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, empty before start.
func (s *apiServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodPost:
		s.submitJob(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	}
}

func (s *apiServer) listJobs(w http.ResponseWriter, r *http.Request) {
	var stages []jobs.Stage
	for _, value := range r.URL.Query()["stage"] {
		if st, ok := jobs.ParseStage(value); ok {
			stages = append(stages, st)
		}
	}
	list, err := s.daemon.store.List(r.Context(), stages...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(list)})
}

func (s *apiServer) submitJob(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	job, err := s.daemon.workflow.Submit(r.Context(), workflow.SubmitRequest{
		Source:   req.Source,
		Style:    req.Style,
		Engine:   req.Engine,
		Strategy: req.Strategy,
		Tracks:   req.Tracks,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) writeSubmitError(w http.ResponseWriter, err error) {
	message := err.Error()
	switch {
	case services.KindOf(err) == services.KindSourceInvalid:
		s.writeError(w, http.StatusBadRequest, services.Details(err).Message, string(services.KindSourceInvalid))
	case strings.HasPrefix(message, "unknown "):
		s.writeError(w, http.StatusBadRequest, message, "")
	case message == "workflow not running":
		s.writeError(w, http.StatusServiceUnavailable, message, "")
	default:
		s.writeError(w, http.StatusInternalServerError, message, "")
	}
}

// handleJobByID dispatches /api/jobs/{id}, /api/jobs/{id}/cancel,
// /api/jobs/{id}/events, and the collection maintenance actions.
func (s *apiServer) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	switch rest {
	case "retry":
		s.retryJobs(w, r)
		return
	case "clear-completed":
		s.clearCompleted(w, r)
		return
	}

	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id", "")
		return
	}
	switch action {
	case "":
		s.getJob(w, r, id)
	case "cancel":
		s.cancelJob(w, r, id)
	case "events":
		s.jobEvents(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "not found", "")
	}
}

func (s *apiServer) getJob(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	job, err := s.daemon.workflow.GetStatus(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found", "")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) cancelJob(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	err := s.daemon.workflow.Cancel(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found", "")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusConflict, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelRequested": true})
}

func (s *apiServer) jobEvents(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	wait := query.Get("wait") == "1" || strings.EqualFold(query.Get("wait"), "true")

	fetchCtx := r.Context()
	if wait {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, pollWindow)
		defer cancel()
	}
	events, err := s.daemon.workflow.Bus().Fetch(fetchCtx, id, since, limit, wait)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	next := since
	if len(events) > 0 {
		next = events[len(events)-1].Sequence
	}
	s.writeJSON(w, http.StatusOK, api.EventsResponse{Events: api.FromEvents(events), Next: next})
}

func (s *apiServer) retryJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var req api.RetryRequest
	if r.Body != nil {
		// An empty body retries every failed job.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	count, err := s.daemon.workflow.Retry(r.Context(), req.IDs...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) clearCompleted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	count, err := s.daemon.store.ClearCompleted(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	records, err := s.daemon.store.ListHistory(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	out := make([]api.HistoryRecord, 0, len(records))
	for _, record := range records {
		out = append(out, api.FromHistory(record))
	}
	s.writeJSON(w, http.StatusOK, api.HistoryListResponse{Records: out})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}
