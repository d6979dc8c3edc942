// Package agents implements the specialist roles dispatched during project
// generation: the analysis manager, the four phase 2 specialists (coder,
// designer, researcher, writer), the phase 3 integrator, and the phase 4
// tester. Every agent talks to the model through types.LLMClient and degrades
// to a structured fallback when the model answer is unusable, so a run always
// moves forward even on the echo provider.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"symphony/internal/logging"
	"symphony/internal/perception"
	"symphony/internal/prompt"
	"symphony/internal/types"
)

// CoderOutput is the coder's JSON contract. Integration places Code at
// FileName and unions Dependencies into the project requirements.
type CoderOutput struct {
	Code         string   `json:"code"`
	Explanation  string   `json:"explanation"`
	Dependencies []string `json:"dependencies"`
	FileName     string   `json:"file_name"`
	Instructions string   `json:"instructions"`
}

// DesignOutput is the designer's JSON contract.
type DesignOutput struct {
	Design     string   `json:"design"`
	Components []string `json:"components"`
	Notes      string   `json:"notes,omitempty"`
}

// ResearchOutput is the researcher's JSON contract.
type ResearchOutput struct {
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
	Sources         []string `json:"sources"`
}

// WriterOutput is the writer's JSON contract.
type WriterOutput struct {
	Documentation string   `json:"documentation"`
	Sections      []string `json:"sections,omitempty"`
}

// Roster bundles the four specialists the dispatcher routes tasks to.
type Roster struct {
	Coder      *Coder
	Designer   *Designer
	Researcher *Researcher
	Writer     *Writer
}

// NewRoster wires every specialist to the same client. Callers that want
// per-agent scheduling wrap the client before building the roster, or fill
// the fields themselves.
func NewRoster(client types.LLMClient) *Roster {
	return &Roster{
		Coder:      NewCoder(client),
		Designer:   NewDesigner(client),
		Researcher: NewResearcher(client),
		Writer:     NewWriter(client),
	}
}

// ForRole returns the specialist for a role. Unknown roles fall through to
// the coder, matching plan normalization.
func (r *Roster) ForRole(role types.AgentType) types.SpecialistAgent {
	switch role {
	case types.AgentDesigner:
		return r.Designer
	case types.AgentResearcher:
		return r.Researcher
	case types.AgentWriter:
		return r.Writer
	default:
		return r.Coder
	}
}

func categoryFor(role types.AgentType) logging.Category {
	switch role {
	case types.AgentDesigner:
		return logging.CategoryDesigner
	case types.AgentResearcher:
		return logging.CategoryResearcher
	case types.AgentWriter:
		return logging.CategoryWriter
	default:
		return logging.CategoryCoder
	}
}

// dependencyResults narrows the completed set to the results the task
// declares as dependencies.
func dependencyResults(task types.AgentTask, tctx types.TaskContext) map[int]types.AgentResult {
	if len(task.Dependencies) == 0 || len(tctx.Completed) == 0 {
		return nil
	}
	deps := make(map[int]types.AgentResult, len(task.Dependencies))
	for _, id := range task.Dependencies {
		if r, ok := tctx.Completed[id]; ok && r.Status == types.TaskCompleted {
			deps[id] = r
		}
	}
	return deps
}

// execute runs the shared specialist flow: render the task prompt, call the
// model, extract the JSON payload. Responses that are not JSON go through the
// role's wrap func so downstream phases always see the role's shape. The
// failed result is returned alongside the error so the dispatcher can record
// it without reconstructing one.
func execute(ctx context.Context, client types.LLMClient, role types.AgentType, task types.AgentTask, tctx types.TaskContext, extra string, wrap func(raw string) interface{}) (types.AgentResult, error) {
	start := time.Now()
	log := logging.Get(categoryFor(role))

	userPrompt := prompt.BuildTaskPrompt(task, tctx.Plan, dependencyResults(task, tctx), tctx.Feedback)
	if extra != "" {
		userPrompt += extra
	}

	response, err := client.CompleteWithSystem(ctx, prompt.SystemPromptFor(role), userPrompt)
	if err != nil {
		log.Error("task %d failed: %v", task.ID, err)
		return types.AgentResult{
			TaskID:    task.ID,
			Agent:     role,
			Status:    types.TaskFailed,
			ModelUsed: "error",
			LatencyMS: time.Since(start).Milliseconds(),
			Error:     err.Error(),
		}, fmt.Errorf("%s task %d: %w", role, task.ID, err)
	}

	output, jsonErr := perception.ExtractJSON(response)
	if jsonErr != nil {
		// Prose answer. Wrap it so integration still gets the role's shape.
		wrapped, merr := json.Marshal(wrap(response))
		if merr != nil {
			log.Error("task %d produced unencodable output: %v", task.ID, merr)
			return types.AgentResult{
				TaskID:    task.ID,
				Agent:     role,
				Status:    types.TaskFailed,
				ModelUsed: client.Model(),
				LatencyMS: time.Since(start).Milliseconds(),
				Error:     merr.Error(),
			}, fmt.Errorf("%s task %d: %w", role, task.ID, merr)
		}
		output = wrapped
		log.Debug("task %d answered in prose, wrapped raw output", task.ID)
	}

	log.Info("task %d completed in %s via %s", task.ID, time.Since(start).Round(time.Millisecond), client.Name())
	return types.AgentResult{
		TaskID:    task.ID,
		Agent:     role,
		Status:    types.TaskCompleted,
		Output:    output,
		ModelUsed: client.Model(),
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}
