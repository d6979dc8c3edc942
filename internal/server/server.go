// Package server exposes the generation pipeline over HTTP: a health probe,
// a synchronous process-project endpoint, and read endpoints for stored runs
// and their zipped project directories.
package server

import (
	"context"
	"net/http"
	"time"

	"symphony/internal/artifact"
	"symphony/internal/config"
	"symphony/internal/logging"
	"symphony/internal/orchestrator"
	"symphony/internal/types"
)

// ProjectRunner executes one brief through the pipeline. The orchestrator
// implements it; tests substitute a stub.
type ProjectRunner interface {
	ProcessProject(ctx context.Context, brief types.ProjectBrief) (*orchestrator.Result, error)
}

// Server is the HTTP API.
type Server struct {
	cfg    *config.Config
	store  types.RunStore
	runner ProjectRunner
	writer *artifact.Writer
	http   *http.Server
}

// New wires the API around a run store and a pipeline runner.
func New(cfg *config.Config, store types.RunStore, runner ProjectRunner) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		runner: runner,
		writer: artifact.NewWriter(cfg.Pipeline.OutputDir),
	}
	s.http = &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: s.Handler(),
		// Generation requests run for minutes, so only the header read is
		// bounded.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/process-project", s.handleProcessProject)
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("GET /api/projects/{id}/download", s.handleDownloadProject)
	return withCORS(withLogging(mux))
}

// ListenAndServe blocks until the context is cancelled or the listener
// fails, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	logging.Server("listening on %s", s.http.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			logging.ServerError("graceful shutdown failed: %v", err)
			s.http.Close()
			return err
		}
		logging.Server("shut down")
		return nil
	case err := <-errCh:
		if err != nil {
			logging.ServerError("listener failed: %v", err)
		}
		return err
	}
}
