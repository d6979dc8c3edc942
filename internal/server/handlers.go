package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"symphony/internal/artifact"
	"symphony/internal/logging"
	"symphony/internal/store"
	"symphony/internal/types"
)

const maxRequestBody = 1 << 20

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type processRequest struct {
	Prompt      string `json:"prompt"`
	ProjectType string `json:"project_type"`
}

type processResponse struct {
	Status       string                `json:"status"`
	ProjectID    string                `json:"project_id"`
	ProjectName  string                `json:"project_name"`
	Description  string                `json:"description"`
	Phases       []types.PhaseResult   `json:"phases"`
	ProjectPath  string                `json:"project_path"`
	DownloadURL  string                `json:"download_url"`
	FinalProject artifact.FinalProject `json:"final_project"`
	Timestamp    string                `json:"timestamp"`
}

type runSummary struct {
	ID          string          `json:"id"`
	Prompt      string          `json:"prompt"`
	ProjectType string          `json:"project_type"`
	Status      types.RunStatus `json:"status"`
	ProjectName string          `json:"project_name,omitempty"`
	DownloadURL string          `json:"download_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
}

type listResponse struct {
	Projects []runSummary `json:"projects"`
	Count    int          `json:"count"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: "project_symphony"})
}

func (s *Server) handleProcessProject(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	brief := types.NewProjectBrief(prompt, strings.TrimSpace(req.ProjectType))
	logging.API("process-project: %.80q (type=%s)", brief.Prompt, brief.ProjectType)

	result, err := s.runner.ProcessProject(r.Context(), brief)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	run := result.Run
	writeJSON(w, http.StatusOK, processResponse{
		Status:       "success",
		ProjectID:    run.ID,
		ProjectName:  run.ProjectName,
		Description:  brief.Prompt,
		Phases:       run.Phases,
		ProjectPath:  run.ProjectPath,
		DownloadURL:  run.DownloadURL,
		FinalProject: result.Final,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit %q", raw)
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list runs: %v", err)
		return
	}

	summaries := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, runSummary{
			ID:          run.ID,
			Prompt:      run.Brief.Prompt,
			ProjectType: run.Brief.ProjectType,
			Status:      run.Status,
			ProjectName: run.ProjectName,
			DownloadURL: run.DownloadURL,
			CreatedAt:   run.CreatedAt,
			CompletedAt: run.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, listResponse{Projects: summaries, Count: len(summaries)})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.store.GetRun(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run %s not found", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "get run: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDownloadProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !validRunID(id) {
		writeError(w, http.StatusNotFound, "project %s not found", id)
		return
	}
	if _, err := os.Stat(s.writer.ProjectDir(id)); err != nil {
		writeError(w, http.StatusNotFound, "project %s not found", id)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "project_"+id+".zip"))
	if err := s.writer.Zip(id, w); err != nil {
		// Headers are gone by now; all we can do is log.
		logging.APIError("zip stream for %s: %v", id, err)
	}
}

// validRunID accepts timestamp run IDs only. The ID lands in a filesystem
// path, so anything with path metacharacters is refused outright.
func validRunID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.APIError("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, errorResponse{Status: "error", Message: fmt.Sprintf(format, args...)})
}
