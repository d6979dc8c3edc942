package store

import (
	"database/sql"
	"time"

	"symphony/internal/logging"
	"symphony/internal/types"
)

// SaveRun inserts or replaces the run row. Children are saved through their
// own methods as the pipeline produces them.
func (s *LocalStore) SaveRun(run *types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Saving run %s (status=%s)", run.ID, run.Status)

	var completedAt interface{}
	if !run.CompletedAt.IsZero() {
		completedAt = run.CompletedAt.UTC()
	}

	// ON CONFLICT instead of INSERT OR REPLACE: a replace deletes the old row
	// and the delete cascades to the run's children.
	_, err := s.db.Exec(
		`INSERT INTO runs
		 (id, brief_id, prompt, project_type, status, project_name, project_path, download_url, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			project_name = excluded.project_name,
			project_path = excluded.project_path,
			download_url = excluded.download_url,
			completed_at = excluded.completed_at`,
		run.ID, run.Brief.ID, run.Brief.Prompt, run.Brief.ProjectType,
		string(run.Status), run.ProjectName, run.ProjectPath, run.DownloadURL,
		run.CreatedAt.UTC(), completedAt,
	)
	if err != nil {
		logging.StoreError("Failed to save run %s: %v", run.ID, err)
		return err
	}
	return nil
}

// UpdateRunStatus moves the run to a new status. Non-empty projectName and
// projectPath overwrite the stored values; terminal statuses stamp
// completed_at, and completion fills the download URL.
func (s *LocalStore) UpdateRunStatus(runID string, status types.RunStatus, projectName, projectPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Updating run %s to status=%s", runID, status)

	res, err := s.db.Exec(
		`UPDATE runs SET
			status = ?,
			project_name = COALESCE(NULLIF(?, ''), project_name),
			project_path = COALESCE(NULLIF(?, ''), project_path),
			download_url = CASE WHEN ? = 'completed' THEN '/api/projects/' || id || '/download' ELSE download_url END,
			completed_at = CASE WHEN ? IN ('completed', 'failed') THEN ? ELSE completed_at END
		 WHERE id = ?`,
		string(status), projectName, projectPath, string(status), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		logging.StoreError("Failed to update run %s: %v", runID, err)
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun loads a run with all of its phase results, task results, and
// refinement attempts.
func (s *LocalStore) GetRun(runID string) (*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := s.scanRun(s.db.QueryRow(
		`SELECT id, brief_id, prompt, project_type, status, project_name, project_path, download_url, created_at, completed_at
		 FROM runs WHERE id = ?`, runID,
	))
	if err != nil {
		return nil, err
	}

	if run.Phases, err = s.loadPhaseResults(runID); err != nil {
		return nil, err
	}
	if run.Tasks, err = s.loadTaskResults(runID); err != nil {
		return nil, err
	}
	if run.Refinements, err = s.loadRefinementAttempts(runID); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the newest runs without their children. limit <= 0 means
// the default page of 50.
func (s *LocalStore) ListRuns(limit int) ([]*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, brief_id, prompt, project_type, status, project_name, project_path, download_url, created_at, completed_at
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		logging.StoreError("Failed to list runs: %v", err)
		return nil, err
	}
	defer rows.Close()

	var runs []*types.Run
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *LocalStore) scanRun(row rowScanner) (*types.Run, error) {
	var run types.Run
	var status string
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID, &run.Brief.ID, &run.Brief.Prompt, &run.Brief.ProjectType,
		&status, &run.ProjectName, &run.ProjectPath, &run.DownloadURL,
		&run.CreatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	run.Status = types.RunStatus(status)
	run.Brief.CreatedAt = run.CreatedAt
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time
	}
	return &run, nil
}
