// Package artifact materializes a run on disk: the per-phase JSON records and
// the generated project files, laid out under one project directory per run.
// It also packages a project directory as a zip for download.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"symphony/internal/logging"
	"symphony/internal/types"
)

// Phase record files written into each project directory.
const (
	AnalysisFile    = "phase1_analysis.json"
	IntegrationFile = "phase3_integration.json"
)

// TaskFile names the phase 2 record for one task.
func TaskFile(taskID int, agentType string) string {
	return fmt.Sprintf("task_%d_%s.json", taskID, agentType)
}

// IterationFile names the phase 4 record for one refinement iteration,
// 1-based.
func IterationFile(n int) string {
	return fmt.Sprintf("phase4_iteration_%d.json", n)
}

// Contents at or below this length are placeholders, not files worth writing.
const minFileContentLen = 10

// FinalProject summarizes what WriteProject put on disk.
type FinalProject struct {
	FilesCreated []string `json:"files_created"`
	TotalFiles   int      `json:"total_files"`
	ProjectDir   string   `json:"project_dir"`
	Instructions []string `json:"instructions"`
}

// Writer lays out run artifacts under a base directory.
type Writer struct {
	baseDir string
}

// NewWriter returns a writer rooted at baseDir.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// ProjectDir returns the directory for one run's output.
func (w *Writer) ProjectDir(runID string) string {
	return filepath.Join(w.baseDir, "project_"+runID)
}

// WritePhaseArtifact writes one pretty-printed JSON phase record into the
// run's project directory and returns the full path.
func (w *Writer) WritePhaseArtifact(runID, name string, payload interface{}) (string, error) {
	dir := w.ProjectDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create project directory: %w", err)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		logging.ArtifactError("Failed to write %s: %v", path, err)
		return "", err
	}
	logging.Artifact("Wrote %s (%d bytes)", path, len(data))
	return path, nil
}

// WriteProject materializes the integration result into the run's project
// directory: the generated files, README.md from the documentation,
// requirements.txt from the dependency union, and project_structure.json.
// Unsafe paths and placeholder contents are skipped, not fatal.
func (w *Writer) WriteProject(runID string, integration types.IntegrationResult) (FinalProject, error) {
	dir := w.ProjectDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return FinalProject{}, fmt.Errorf("failed to create project directory: %w", err)
	}

	final := FinalProject{ProjectDir: dir}

	names := make([]string, 0, len(integration.Files))
	for name := range integration.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		content := integration.Files[name]
		if !safeRelPath(name) {
			logging.ArtifactError("Skipping unsafe path %q in run %s", name, runID)
			continue
		}
		if name != "main.py" && len(strings.TrimSpace(content)) <= minFileContentLen {
			logging.Artifact("Skipping placeholder content for %s", name)
			continue
		}

		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return final, fmt.Errorf("failed to create directory for %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			logging.ArtifactError("Failed to write %s: %v", path, err)
			return final, err
		}
		final.FilesCreated = append(final.FilesCreated, name)
	}

	if integration.Documentation != "" {
		if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte(integration.Documentation), 0644); err != nil {
			return final, err
		}
		final.FilesCreated = append(final.FilesCreated, "README.md")
	}

	if len(integration.Dependencies) > 0 {
		requirements := strings.Join(integration.Dependencies, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(requirements), 0644); err != nil {
			return final, err
		}
		final.FilesCreated = append(final.FilesCreated, "requirements.txt")
	}

	if len(integration.Structure) > 0 {
		data, err := json.MarshalIndent(integration.Structure, "", "  ")
		if err == nil {
			if err := os.WriteFile(filepath.Join(dir, "project_structure.json"), data, 0644); err != nil {
				return final, err
			}
			final.FilesCreated = append(final.FilesCreated, "project_structure.json")
		}
	}

	final.TotalFiles = len(final.FilesCreated)
	final.Instructions = integration.BuildCommands
	if len(final.Instructions) == 0 {
		final.Instructions = []string{"python main.py"}
	}

	logging.Artifact("Project for run %s: %d files in %s", runID, final.TotalFiles, dir)
	return final, nil
}

// safeRelPath accepts only clean relative paths that stay inside the project
// directory.
func safeRelPath(name string) bool {
	if name == "" || strings.Contains(name, "\x00") {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(name))
}
