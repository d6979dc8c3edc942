package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"symphony/internal/artifact"
	"symphony/internal/config"
	"symphony/internal/orchestrator"
	"symphony/internal/store"
	"symphony/internal/types"
)

type stubRunner struct {
	result   *orchestrator.Result
	err      error
	gotBrief types.ProjectBrief
}

func (s *stubRunner) ProcessProject(_ context.Context, brief types.ProjectBrief) (*orchestrator.Result, error) {
	s.gotBrief = brief
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubStore struct {
	types.RunStore
	runs     []*types.Run
	gotLimit int
	listErr  error
}

func (s *stubStore) ListRuns(limit int) ([]*types.Run, error) {
	s.gotLimit = limit
	return s.runs, s.listErr
}

func (s *stubStore) GetRun(runID string) (*types.Run, error) {
	for _, run := range s.runs {
		if run.ID == runID {
			return run, nil
		}
	}
	return nil, store.ErrNotFound
}

func completedRun(id string) *types.Run {
	return &types.Run{
		ID:          id,
		Brief:       types.ProjectBrief{ID: "b-1", Prompt: "build a calculator", ProjectType: "cli", CreatedAt: time.Now().UTC()},
		Status:      types.RunCompleted,
		ProjectName: "CLI Calculator",
		ProjectPath: "generated_projects/project_" + id,
		DownloadURL: "/api/projects/" + id + "/download",
		CreatedAt:   time.Now().UTC(),
		Phases: []types.PhaseResult{
			{Phase: types.PhaseAnalysis, Attempt: 1, Status: types.PhaseSuccess},
		},
	}
}

func newTestServer(t *testing.T, runner ProjectRunner, st types.RunStore) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Pipeline.OutputDir = t.TempDir()
	if runner == nil {
		runner = &stubRunner{}
	}
	if st == nil {
		st = &stubStore{}
	}
	return New(cfg, st, runner)
}

func doRequest(s *Server, method, target string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := doRequest(s, http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" || resp.Service != "project_symphony" {
		t.Errorf("health = %+v", resp)
	}
}

func TestProcessProject(t *testing.T) {
	runner := &stubRunner{
		result: &orchestrator.Result{
			Run: completedRun("20260102_030405"),
			Final: artifact.FinalProject{
				FilesCreated: []string{"main.py"},
				TotalFiles:   1,
				ProjectDir:   "generated_projects/project_20260102_030405",
			},
		},
	}
	s := newTestServer(t, runner, nil)

	rec := doRequest(s, http.MethodPost, "/api/process-project", `{"prompt": "  build a calculator  ", "project_type": "cli"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if runner.gotBrief.Prompt != "build a calculator" {
		t.Errorf("brief prompt = %q, want trimmed", runner.gotBrief.Prompt)
	}
	if runner.gotBrief.ProjectType != "cli" {
		t.Errorf("brief type = %q", runner.gotBrief.ProjectType)
	}

	var resp processResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.ProjectID != "20260102_030405" {
		t.Errorf("project id = %q", resp.ProjectID)
	}
	if resp.ProjectName != "CLI Calculator" {
		t.Errorf("project name = %q", resp.ProjectName)
	}
	if resp.Description != "build a calculator" {
		t.Errorf("description = %q", resp.Description)
	}
	if resp.DownloadURL != "/api/projects/20260102_030405/download" {
		t.Errorf("download url = %q", resp.DownloadURL)
	}
	if resp.FinalProject.TotalFiles != 1 {
		t.Errorf("final project = %+v", resp.FinalProject)
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", resp.Timestamp, err)
	}
}

func TestProcessProject_EmptyPrompt(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := doRequest(s, http.MethodPost, "/api/process-project", `{"prompt": "   "}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "error" || !strings.Contains(resp.Message, "prompt is required") {
		t.Errorf("error = %+v", resp)
	}
}

func TestProcessProject_BadJSON(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := doRequest(s, http.MethodPost, "/api/process-project", `{"prompt": `)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProcessProject_PipelineError(t *testing.T) {
	runner := &stubRunner{err: errors.New("analysis phase: provider down")}
	s := newTestServer(t, runner, nil)

	rec := doRequest(s, http.MethodPost, "/api/process-project", `{"prompt": "calc"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "error" || !strings.Contains(resp.Message, "provider down") {
		t.Errorf("error = %+v", resp)
	}
}

func TestListProjects(t *testing.T) {
	st := &stubStore{runs: []*types.Run{completedRun("20260102_030405"), completedRun("20260102_030406")}}
	s := newTestServer(t, nil, st)

	rec := doRequest(s, http.MethodGet, "/api/projects", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st.gotLimit != 50 {
		t.Errorf("default limit = %d", st.gotLimit)
	}

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Projects) != 2 {
		t.Fatalf("count = %d, projects = %d", resp.Count, len(resp.Projects))
	}
	if resp.Projects[0].Prompt != "build a calculator" || resp.Projects[0].Status != types.RunCompleted {
		t.Errorf("summary = %+v", resp.Projects[0])
	}
}

func TestListProjects_Limit(t *testing.T) {
	st := &stubStore{}
	s := newTestServer(t, nil, st)

	if rec := doRequest(s, http.MethodGet, "/api/projects?limit=5", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st.gotLimit != 5 {
		t.Errorf("limit = %d", st.gotLimit)
	}

	if rec := doRequest(s, http.MethodGet, "/api/projects?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestGetProject(t *testing.T) {
	st := &stubStore{runs: []*types.Run{completedRun("20260102_030405")}}
	s := newTestServer(t, nil, st)

	rec := doRequest(s, http.MethodGet, "/api/projects/20260102_030405", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var run types.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID != "20260102_030405" || len(run.Phases) != 1 {
		t.Errorf("run = %+v", run)
	}

	if rec := doRequest(s, http.MethodGet, "/api/projects/29990101_000000", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", rec.Code)
	}
}

func TestDownloadProject(t *testing.T) {
	s := newTestServer(t, nil, nil)

	id := "20260102_030405"
	dir := s.writer.ProjectDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("print(1)\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(s, http.MethodGet, "/api/projects/"+id+"/download", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "project_"+id+".zip") {
		t.Errorf("content disposition = %q", cd)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "main.py" {
		t.Errorf("zip entries = %+v", zr.File)
	}
}

func TestDownloadProject_NotFound(t *testing.T) {
	s := newTestServer(t, nil, nil)
	if rec := doRequest(s, http.MethodGet, "/api/projects/20260102_030405/download", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	// IDs with anything but digits and underscores never touch the disk.
	if rec := doRequest(s, http.MethodGet, "/api/projects/abc/download", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestValidRunID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"20260102_030405", true},
		{"20260102_030405_2", true},
		{"", false},
		{"..", false},
		{"../../etc", false},
		{"20260102-030405", false},
		{"run;rm", false},
		{strings.Repeat("1", 65), false},
	}
	for _, tc := range cases {
		if got := validRunID(tc.id); got != tc.want {
			t.Errorf("validRunID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := doRequest(s, http.MethodOptions, "/api/process-project", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("preflight missing allow-origin")
	}

	rec = doRequest(s, http.MethodGet, "/health", "")
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("GET missing allow-origin")
	}
}
