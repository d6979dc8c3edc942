// Package types provides shared type definitions used across symphony packages.
// This package exists to break import cycles between orchestrator, agents, and
// perception. Types in this package should be foundational data structures with
// no complex dependencies.
package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PROJECT BRIEF
// =============================================================================

// ProjectBrief is the user-supplied project description. It is immutable once a
// run starts: refinement feedback is carried on the run, never written back into
// the brief.
type ProjectBrief struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	ProjectType string    `json:"project_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewProjectBrief builds a brief with a fresh ID. An empty projectType defaults
// to "general".
func NewProjectBrief(prompt, projectType string) ProjectBrief {
	if projectType == "" {
		projectType = "general"
	}
	return ProjectBrief{
		ID:          uuid.NewString(),
		Prompt:      prompt,
		ProjectType: projectType,
		CreatedAt:   time.Now().UTC(),
	}
}

// =============================================================================
// PIPELINE PHASES
// =============================================================================

// Phase identifies one stage of the generation pipeline.
type Phase int

const (
	PhaseAnalysis Phase = iota
	PhaseSpecialists
	PhaseIntegration
	PhaseTesting
)

var phaseNames = [...]string{
	PhaseAnalysis:    "analysis",
	PhaseSpecialists: "specialists",
	PhaseIntegration: "integration",
	PhaseTesting:     "testing",
}

// String returns the wire name of the phase.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Phases lists the pipeline stages in execution order.
func Phases() []Phase {
	return []Phase{PhaseAnalysis, PhaseSpecialists, PhaseIntegration, PhaseTesting}
}

// =============================================================================
// STATUSES
// =============================================================================

// RunStatus is the lifecycle state of a whole run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// PhaseStatus is the terminal state of one phase execution.
type PhaseStatus string

const (
	PhaseSuccess PhaseStatus = "success"
	PhaseFailed  PhaseStatus = "failed"
)

// TaskStatus is the terminal state of one specialist task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// RefinementStatus is the tester verdict driving the refinement loop.
type RefinementStatus string

const (
	RefinementPass            RefinementStatus = "pass"
	RefinementRestartAnalysis RefinementStatus = "needs_phase1_restart"
	RefinementFixTasks        RefinementStatus = "needs_phase2_modifications"
)

// =============================================================================
// AGENT ROLES
// =============================================================================

// AgentType labels a specialist role.
type AgentType string

const (
	AgentCoder      AgentType = "coder"
	AgentDesigner   AgentType = "designer"
	AgentResearcher AgentType = "researcher"
	AgentWriter     AgentType = "writer"
)

// NormalizeAgentType maps an arbitrary plan-provided role string to a known
// role. Unknown roles dispatch to the coder.
func NormalizeAgentType(s string) AgentType {
	switch AgentType(strings.ToLower(strings.TrimSpace(s))) {
	case AgentDesigner:
		return AgentDesigner
	case AgentResearcher:
		return AgentResearcher
	case AgentWriter:
		return AgentWriter
	default:
		return AgentCoder
	}
}

// Priority orders tasks inside a ready set.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns a sortable weight, lower runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// =============================================================================
// PLAN AND TASKS
// =============================================================================

// AgentTask is one unit of work assigned to a specialist role. Tasks come out
// of the analysis phase plan and carry integer IDs referenced by Dependencies.
type AgentTask struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	AgentType      string   `json:"agent_type"`
	Description    string   `json:"description"`
	Priority       Priority `json:"priority"`
	Dependencies   []int    `json:"dependencies"`
	ExpectedOutput string   `json:"expected_output"`
	EstimatedTime  string   `json:"estimated_time"`
}

// Role returns the normalized specialist role for the task.
func (t AgentTask) Role() AgentType {
	return NormalizeAgentType(t.AgentType)
}

// ProjectPlan is the decoded analysis-phase artifact.
type ProjectPlan struct {
	ProjectName     string      `json:"project_name"`
	Description     string      `json:"description"`
	TechStack       []string    `json:"tech_stack"`
	Tasks           []AgentTask `json:"tasks"`
	SuccessCriteria []string    `json:"success_criteria"`
	Constraints     []string    `json:"constraints"`
}

// Task returns the task with the given ID, or false when the plan has none.
func (p *ProjectPlan) Task(id int) (AgentTask, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return AgentTask{}, false
}

// =============================================================================
// RESULTS
// =============================================================================

// PhaseResult records the outcome of one phase execution, including which
// provider ultimately served the calls.
type PhaseResult struct {
	Phase       Phase           `json:"phase"`
	Attempt     int             `json:"attempt"`
	Status      PhaseStatus     `json:"status"`
	Artifacts   json.RawMessage `json:"artifacts,omitempty"`
	Provider    string          `json:"provider,omitempty"`
	Model       string          `json:"model,omitempty"`
	LatencyMS   int64           `json:"latency_ms"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Error       string          `json:"error,omitempty"`
}

// AgentResult is the outcome of one specialist task.
type AgentResult struct {
	TaskID    int             `json:"task_id"`
	Agent     AgentType       `json:"agent"`
	Status    TaskStatus      `json:"status"`
	Output    json.RawMessage `json:"output,omitempty"`
	ModelUsed string          `json:"model_used,omitempty"`
	LatencyMS int64           `json:"latency_ms"`
	Error     string          `json:"error,omitempty"`
}

// IntegrationResult is the decoded integration-phase artifact. Files maps
// relative paths to file contents.
type IntegrationResult struct {
	ProjectName   string            `json:"project_name"`
	Files         map[string]string `json:"files"`
	Structure     map[string]string `json:"structure,omitempty"`
	BuildCommands []string          `json:"build_commands,omitempty"`
	Documentation string            `json:"documentation,omitempty"`
	Dependencies  []string          `json:"dependencies,omitempty"`
}

// TestReport is the decoded testing-phase artifact.
type TestReport struct {
	Status             RefinementStatus `json:"status"`
	Errors             []string         `json:"errors,omitempty"`
	SpecificTasksToFix []int            `json:"specific_tasks_to_fix,omitempty"`
	Summary            string           `json:"summary,omitempty"`
}

// RefinementAttempt records one pass of the refinement loop. The orchestrator
// never records more attempts per run than the configured budget.
type RefinementAttempt struct {
	Iteration  int              `json:"iteration"`
	Status     RefinementStatus `json:"status"`
	Errors     []string         `json:"errors,omitempty"`
	TasksToFix []int            `json:"tasks_to_fix,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// =============================================================================
// RUN
// =============================================================================

// Run ties a brief to everything the pipeline produced for it.
type Run struct {
	ID          string       `json:"id"`
	Brief       ProjectBrief `json:"brief"`
	Status      RunStatus    `json:"status"`
	ProjectName string       `json:"project_name,omitempty"`
	ProjectPath string       `json:"project_path,omitempty"`
	DownloadURL string       `json:"download_url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt time.Time    `json:"completed_at,omitempty"`

	Phases      []PhaseResult       `json:"phases,omitempty"`
	Tasks       []AgentResult       `json:"tasks,omitempty"`
	Refinements []RefinementAttempt `json:"refinements,omitempty"`
}

// =============================================================================
// PROGRESS EVENTS
// =============================================================================

// ProgressEvent is emitted by the orchestrator for CLI/TUI consumption.
type ProgressEvent struct {
	RunID   string
	Phase   Phase
	Stage   string // free-form sub-step label, e.g. "task 2 (designer)"
	Message string
	Err     error
	Done    bool // true exactly once, on pipeline completion
}
