package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"symphony/internal/logging"
	"symphony/internal/perception"
	"symphony/internal/prompt"
	"symphony/internal/types"
)

// Manager is the analysis-phase agent: it turns the user's request into a
// ProjectPlan. Malformed plans degrade to a repaired decode and finally to a
// fixed two-task fallback, so the pipeline always has something to execute.
type Manager struct {
	client types.LLMClient
}

// NewManager returns a manager backed by the given client.
func NewManager(client types.LLMClient) *Manager {
	return &Manager{client: client}
}

// AnalysisResult carries the plan plus provenance for the phase artifact.
type AnalysisResult struct {
	Plan      *types.ProjectPlan `json:"plan"`
	ModelUsed string             `json:"model_used"`
	Note      string             `json:"note,omitempty"`
}

// Analyze produces the project plan for a brief. feedback carries review
// errors when a restart re-enters analysis.
func (m *Manager) Analyze(ctx context.Context, userPrompt, projectType string, feedback []string) (AnalysisResult, error) {
	user := prompt.BuildAnalysisPrompt(userPrompt, projectType, feedback)

	response, err := m.client.CompleteWithSystem(ctx, prompt.AnalysisSystemPrompt, user)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("analysis call failed: %w", err)
	}

	result := AnalysisResult{ModelUsed: m.client.Model()}

	var plan types.ProjectPlan
	if derr := perception.DecodeInto(response, &plan); derr != nil {
		logging.ManagerWarn("plan did not decode, using fallback structure: %v", derr)
		result.Plan = FallbackPlan(userPrompt)
		result.ModelUsed = "fallback"
		result.Note = "Used fallback task structure"
		return result, nil
	}

	if len(plan.Tasks) == 0 {
		logging.ManagerWarn("plan decoded but has no tasks, using fallback structure")
		result.Plan = FallbackPlan(userPrompt)
		result.ModelUsed = "fallback"
		result.Note = "Used fallback task structure"
		return result, nil
	}

	if !json.Valid([]byte(strings.TrimSpace(response))) {
		result.Note = "Plan JSON was repaired"
	}

	normalizePlan(&plan, userPrompt)
	result.Plan = &plan
	logging.Manager("plan ready: %q with %d tasks", plan.ProjectName, len(plan.Tasks))
	return result, nil
}

// normalizePlan fills the holes models leave in otherwise usable plans:
// blank names, missing or duplicate task IDs, absent priorities.
func normalizePlan(plan *types.ProjectPlan, userPrompt string) {
	if plan.ProjectName == "" {
		plan.ProjectName = "Project from: " + clipRunes(userPrompt, 50)
	}
	if plan.Description == "" {
		plan.Description = userPrompt
	}

	nextID := 1
	seen := make(map[int]bool, len(plan.Tasks))
	for i := range plan.Tasks {
		t := &plan.Tasks[i]
		if t.ID <= 0 || seen[t.ID] {
			for seen[nextID] {
				nextID++
			}
			t.ID = nextID
		}
		seen[t.ID] = true
		if t.Priority == "" {
			t.Priority = types.PriorityMedium
		}
	}
}

// FallbackPlan is the fixed two-task plan used when analysis produces nothing
// usable: one coder task carrying the raw request and one writer task hanging
// off it.
func FallbackPlan(userPrompt string) *types.ProjectPlan {
	return &types.ProjectPlan{
		ProjectName: "Project from: " + clipRunes(userPrompt, 50),
		Description: userPrompt,
		Tasks: []types.AgentTask{
			{
				ID:             1,
				Title:          "Create main implementation",
				AgentType:      string(types.AgentCoder),
				Description:    userPrompt,
				Priority:       types.PriorityHigh,
				Dependencies:   []int{},
				ExpectedOutput: "Main code implementation",
				EstimatedTime:  "1 hour",
			},
			{
				ID:             2,
				Title:          "Create documentation",
				AgentType:      string(types.AgentWriter),
				Description:    "Document the project",
				Priority:       types.PriorityMedium,
				Dependencies:   []int{1},
				ExpectedOutput: "Project documentation",
				EstimatedTime:  "30 minutes",
			},
		},
		TechStack:       []string{"Python"},
		SuccessCriteria: []string{"Working implementation"},
		Constraints:     []string{},
	}
}

// clipRunes cuts at a rune boundary without an ellipsis marker.
func clipRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
