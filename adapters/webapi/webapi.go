// Package webapi exposes the orchestrator over HTTP: submission intake,
// workflow control, status queries, prometheus metrics and a websocket
// event stream.
package webapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/luno/jettison/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scholarpress/orchestrator"
)

// API is the slice of the orchestrator the HTTP surface needs.
type API interface {
	Submit(ctx context.Context, sub orchestrator.Submission) (string, error)
	Pause(ctx context.Context, workflowID string) error
	Resume(ctx context.Context, workflowID string) error
	Cancel(ctx context.Context, workflowID string) error
	Rerun(ctx context.Context, workflowID, stage string) error
	Status(ctx context.Context, workflowID string) (orchestrator.WorkflowStatus, error)
	AgentMetrics(ctx context.Context) (map[orchestrator.AgentType]orchestrator.AgentStats, error)
	Summary(ctx context.Context) (orchestrator.SystemSummary, error)
}

type Server struct {
	api    API
	hub    *Hub
	logger orchestrator.Logger
}

func NewServer(api API, hub *Hub, logger orchestrator.Logger) *Server {
	if logger == nil {
		logger = orchestrator.NopLogger()
	}

	return &Server{
		api:    api,
		hub:    hub,
		logger: logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/v1/submissions", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/workflows/{id}", s.handleStatus)
	mux.HandleFunc("POST /api/v1/workflows/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /api/v1/workflows/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /api/v1/workflows/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/v1/workflows/{id}/stages/{stage}/rerun", s.handleRerun)
	mux.HandleFunc("GET /api/v1/agents/metrics", s.handleAgentMetrics)
	mux.HandleFunc("GET /api/v1/summary", s.handleSummary)

	if s.hub != nil {
		mux.HandleFunc("GET /api/v1/events", s.hub.handleStream)
	}

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub orchestrator.Submission
	err := json.NewDecoder(r.Body).Decode(&sub)
	if err != nil {
		s.writeError(w, r, errors.Wrap(orchestrator.ErrSubmissionInvalid, "malformed request body"))
		return
	}

	workflowID, err := s.api.Submit(r.Context(), sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": workflowID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.api.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.api.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.api.Resume)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.api.Cancel)
}

func (s *Server) control(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, workflowID string) error) {
	workflowID := r.PathValue("id")

	err := fn(r.Context(), workflowID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"workflow_id": workflowID})
}

func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("id")
	stage := r.PathValue("stage")

	err := s.api.Rerun(r.Context(), workflowID, stage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"workflow_id": workflowID,
		"stage":       stage,
	})
}

func (s *Server) handleAgentMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.api.AgentMetrics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.api.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		// NoReturnErr: the status line is already written.
		s.logger.Error(context.Background(), err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		// NoReturnErr: reported to the client as a 500.
		s.logger.Error(r.Context(), err)
	}

	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// statusCode maps the error taxonomy onto HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrSubmissionInvalid):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrWorkflowNotFound),
		errors.Is(err, orchestrator.ErrTaskNotFound),
		errors.Is(err, orchestrator.ErrDefinitionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidTransition),
		errors.Is(err, orchestrator.ErrTaskNotFailed):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
