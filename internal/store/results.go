package store

import (
	"database/sql"
	"encoding/json"

	"symphony/internal/logging"
	"symphony/internal/types"
)

// SavePhaseResult appends one phase execution record. Refinement re-runs the
// later phases, so (run, phase) is deliberately not unique; Attempt tells the
// executions apart.
func (s *LocalStore) SavePhaseResult(runID string, pr types.PhaseResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Saving phase result run=%s phase=%s attempt=%d status=%s",
		runID, pr.Phase, pr.Attempt, pr.Status)

	var artifacts interface{}
	if len(pr.Artifacts) > 0 {
		artifacts = string(pr.Artifacts)
	}

	_, err := s.db.Exec(
		`INSERT INTO phase_results
		 (run_id, phase, attempt, status, artifacts, provider, model, latency_ms, started_at, completed_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, pr.Phase.String(), pr.Attempt, string(pr.Status), artifacts,
		pr.Provider, pr.Model, pr.LatencyMS, pr.StartedAt.UTC(), pr.CompletedAt.UTC(), pr.Error,
	)
	if err != nil {
		logging.StoreError("Failed to save phase result for run %s: %v", runID, err)
	}
	return err
}

func (s *LocalStore) loadPhaseResults(runID string) ([]types.PhaseResult, error) {
	rows, err := s.db.Query(
		`SELECT phase, attempt, status, artifacts, provider, model, latency_ms, started_at, completed_at, error
		 FROM phase_results WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.PhaseResult
	for rows.Next() {
		var pr types.PhaseResult
		var phase, status string
		var artifacts sql.NullString

		if err := rows.Scan(&phase, &pr.Attempt, &status, &artifacts,
			&pr.Provider, &pr.Model, &pr.LatencyMS, &pr.StartedAt, &pr.CompletedAt, &pr.Error); err != nil {
			return nil, err
		}
		pr.Phase = phaseFromName(phase)
		pr.Status = types.PhaseStatus(status)
		if artifacts.Valid {
			pr.Artifacts = json.RawMessage(artifacts.String)
		}
		results = append(results, pr)
	}
	return results, rows.Err()
}

// SaveTaskResult upserts one task result. Refinement re-runs replace the
// previous result for the same task.
func (s *LocalStore) SaveTaskResult(runID string, ar types.AgentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Saving task result run=%s task=%d agent=%s status=%s",
		runID, ar.TaskID, ar.Agent, ar.Status)

	var output interface{}
	if len(ar.Output) > 0 {
		output = string(ar.Output)
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO agent_tasks
		 (run_id, task_id, agent, status, output, model_used, latency_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, ar.TaskID, string(ar.Agent), string(ar.Status), output,
		ar.ModelUsed, ar.LatencyMS, ar.Error,
	)
	if err != nil {
		logging.StoreError("Failed to save task result for run %s: %v", runID, err)
	}
	return err
}

// GetTaskResults returns every stored task result for the run in task ID
// order.
func (s *LocalStore) GetTaskResults(runID string) ([]types.AgentResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadTaskResults(runID)
}

func (s *LocalStore) loadTaskResults(runID string) ([]types.AgentResult, error) {
	rows, err := s.db.Query(
		`SELECT task_id, agent, status, output, model_used, latency_ms, error
		 FROM agent_tasks WHERE run_id = ? ORDER BY task_id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []types.AgentResult
	for rows.Next() {
		var ar types.AgentResult
		var agent, status string
		var output sql.NullString

		if err := rows.Scan(&ar.TaskID, &agent, &status, &output,
			&ar.ModelUsed, &ar.LatencyMS, &ar.Error); err != nil {
			return nil, err
		}
		ar.Agent = types.AgentType(agent)
		ar.Status = types.TaskStatus(status)
		if output.Valid {
			ar.Output = json.RawMessage(output.String)
		}
		results = append(results, ar)
	}
	return results, rows.Err()
}

// SaveRefinementAttempt upserts one refinement loop record keyed by
// iteration.
func (s *LocalStore) SaveRefinementAttempt(runID string, ra types.RefinementAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Saving refinement attempt run=%s iteration=%d status=%s",
		runID, ra.Iteration, ra.Status)

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO refinement_attempts
		 (run_id, iteration, status, errors, tasks_to_fix, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, ra.Iteration, string(ra.Status),
		marshalStrings(ra.Errors), marshalInts(ra.TasksToFix), ra.CreatedAt.UTC(),
	)
	if err != nil {
		logging.StoreError("Failed to save refinement attempt for run %s: %v", runID, err)
	}
	return err
}

// CountRefinementAttempts reports how many refinement records the run has.
func (s *LocalStore) CountRefinementAttempts(runID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM refinement_attempts WHERE run_id = ?`, runID,
	).Scan(&count)
	return count, err
}

func (s *LocalStore) loadRefinementAttempts(runID string) ([]types.RefinementAttempt, error) {
	rows, err := s.db.Query(
		`SELECT iteration, status, errors, tasks_to_fix, created_at
		 FROM refinement_attempts WHERE run_id = ? ORDER BY iteration`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []types.RefinementAttempt
	for rows.Next() {
		var ra types.RefinementAttempt
		var status, errorsJSON, tasksJSON string

		if err := rows.Scan(&ra.Iteration, &status, &errorsJSON, &tasksJSON, &ra.CreatedAt); err != nil {
			return nil, err
		}
		ra.Status = types.RefinementStatus(status)
		if err := json.Unmarshal([]byte(errorsJSON), &ra.Errors); err != nil {
			logging.StoreDebug("Unreadable errors payload for run %s iteration %d: %v", runID, ra.Iteration, err)
		}
		if err := json.Unmarshal([]byte(tasksJSON), &ra.TasksToFix); err != nil {
			logging.StoreDebug("Unreadable tasks payload for run %s iteration %d: %v", runID, ra.Iteration, err)
		}
		attempts = append(attempts, ra)
	}
	return attempts, rows.Err()
}

func phaseFromName(name string) types.Phase {
	for _, p := range types.Phases() {
		if p.String() == name {
			return p
		}
	}
	return types.PhaseAnalysis
}

func marshalStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func marshalInts(values []int) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}
