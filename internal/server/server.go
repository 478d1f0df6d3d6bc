// Package server exposes the webhook and health endpoints. It is thin
// plumbing: requests are validated, handed to the job runner, and the
// outcome or error is rendered as JSON.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/forgehand/forgehand/internal/gitops"
	"github.com/forgehand/forgehand/internal/job"
)

// AgentName identifies this agent in the health payload.
const AgentName = "forgehand"

// shutdownGrace bounds how long in-flight requests may drain on shutdown.
const shutdownGrace = 30 * time.Second

// JobRunner is the server's view of the orchestrator.
type JobRunner interface {
	Run(ctx context.Context, repo, prompt string) (*job.Outcome, error)
}

// Server serves the HTTP surface.
type Server struct {
	runner  JobRunner
	started time.Time
	http    *http.Server
}

// New creates a Server listening on port.
func New(port int, runner JobRunner) *Server {
	s := &Server{
		runner:  runner,
		started: time.Now(),
	}
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}
	return s
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	return logRequests(mux)
}

// ListenAndServe runs the server until ctx is canceled, then drains
// in-flight requests for up to shutdownGrace.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	log.Info().Str("addr", s.http.Addr).Msg("listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

type webhookRequest struct {
	Repo   string `json:"repo"`
	Prompt string `json:"prompt"`
}

type webhookResponse struct {
	Status       string `json:"status"`
	Repo         string `json:"repo"`
	Committed    bool   `json:"committed"`
	ClaudeOutput string `json:"claudeOutput"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type healthResponse struct {
	Status string  `json:"status"`
	Agent  string  `json:"agent"`
	Uptime float64 `json:"uptime"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Repo) == "" || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "repo and prompt are required")
		return
	}

	outcome, err := s.runner.Run(r.Context(), req.Repo, req.Prompt)
	if err != nil {
		log.Error().Err(err).Str("repo", req.Repo).Msg("job failed")
		// Errors can carry git output; keep credentials out of responses.
		writeError(w, http.StatusInternalServerError, gitops.Redact(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{
		Status:       "success",
		Repo:         outcome.Repo,
		Committed:    outcome.Committed,
		ClaudeOutput: outcome.BackendOutput,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Agent:  AgentName,
		Uptime: time.Since(s.started).Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: "error", Error: msg})
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
