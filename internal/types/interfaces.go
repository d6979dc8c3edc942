package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions. Every provider client,
// the fallback chain, and the scheduled wrapper implement it.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Name identifies the provider ("gemini", "huggingface", ...). The fallback
	// chain reports the provider that actually served the last call.
	Name() string
	// Model identifies the model the client targets.
	Model() string
}

// SpecialistAgent is implemented by the role agents dispatched during the
// specialist phase. Execute never panics; failures come back as an AgentResult
// with TaskFailed plus a non-nil error.
type SpecialistAgent interface {
	AgentType() AgentType
	Execute(ctx context.Context, task AgentTask, tctx TaskContext) (AgentResult, error)
}

// TaskContext carries the plan and completed dependency results into a
// specialist call.
type TaskContext struct {
	Plan      *ProjectPlan
	Completed map[int]AgentResult // keyed by task ID, terminal results only
	Feedback  []string            // refinement errors when re-running a task
}

// RunStore persists runs and their children. The orchestrator depends on this
// interface so tests can swap in a stub.
type RunStore interface {
	SaveRun(run *Run) error
	UpdateRunStatus(runID string, status RunStatus, projectName, projectPath string) error
	GetRun(runID string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	SavePhaseResult(runID string, pr PhaseResult) error
	SaveTaskResult(runID string, ar AgentResult) error
	GetTaskResults(runID string) ([]AgentResult, error)
	SaveRefinementAttempt(runID string, ra RefinementAttempt) error
	CountRefinementAttempts(runID string) (int, error)
	Close() error
}
