package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"symphony/internal/logging"
	"symphony/internal/perception"
	"symphony/internal/prompt"
	"symphony/internal/types"
)

// Integrator merges specialist outputs into one coherent project. When the
// model's merge is unusable it falls back to a mechanical merge of the raw
// outputs so phase 3 always yields files.
type Integrator struct {
	client types.LLMClient
}

// NewIntegrator returns an integrator backed by the given client.
func NewIntegrator(client types.LLMClient) *Integrator {
	return &Integrator{client: client}
}

// Integrate runs phase 3 over the plan and every specialist result. The
// returned model name is "fallback" when the mechanical merge produced the
// result.
func (ig *Integrator) Integrate(ctx context.Context, plan *types.ProjectPlan, results []types.AgentResult) (types.IntegrationResult, string, error) {
	start := time.Now()
	user := prompt.BuildIntegrationPrompt(plan, results)

	response, err := ig.client.CompleteWithSystem(ctx, prompt.IntegrationSystemPrompt, user)
	if err != nil {
		if ctx.Err() != nil {
			return types.IntegrationResult{}, "", fmt.Errorf("integration call failed: %w", err)
		}
		logging.Integrator("model unavailable, merging mechanically: %v", err)
		return MergeResults(plan, results), "fallback", nil
	}

	var integration types.IntegrationResult
	if derr := perception.DecodeInto(response, &integration); derr != nil || len(integration.Files) == 0 {
		logging.Integrator("model merge unusable, merging mechanically")
		return MergeResults(plan, results), "fallback", nil
	}

	fillIntegrationDefaults(&integration, plan)
	logging.Integrator("merged %d files in %s via %s", len(integration.Files), time.Since(start).Round(time.Millisecond), ig.client.Name())
	return integration, ig.client.Model(), nil
}

func fillIntegrationDefaults(integration *types.IntegrationResult, plan *types.ProjectPlan) {
	if integration.ProjectName == "" && plan != nil {
		integration.ProjectName = plan.ProjectName
	}
	if len(integration.BuildCommands) == 0 {
		if _, ok := integration.Files["main.py"]; ok {
			integration.BuildCommands = []string{"python main.py"}
		}
	}
}

// MergeResults is the mechanical phase 3 fallback: code outputs become files,
// writer, designer, and researcher outputs fold into the documentation, and
// dependency lists union. Results merge in task ID order so repeated runs
// produce the same project.
func MergeResults(plan *types.ProjectPlan, results []types.AgentResult) types.IntegrationResult {
	sorted := make([]types.AgentResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TaskID < sorted[j].TaskID })

	integration := types.IntegrationResult{
		Files:     make(map[string]string),
		Structure: make(map[string]string),
	}
	if plan != nil {
		integration.ProjectName = plan.ProjectName
	}

	depSet := make(map[string]bool)
	var docs, designs, research strings.Builder

	for _, r := range sorted {
		if r.Status != types.TaskCompleted || len(r.Output) == 0 {
			continue
		}

		var code CoderOutput
		if json.Unmarshal(r.Output, &code) == nil && strings.TrimSpace(code.Code) != "" {
			name := code.FileName
			if name == "" {
				name = "main.py"
			}
			if _, taken := integration.Files[name]; taken {
				name = fmt.Sprintf("task_%d_%s", r.TaskID, name)
			}
			integration.Files[name] = code.Code
			integration.Structure[name] = fmt.Sprintf("generated by task %d (%s)", r.TaskID, r.Agent)
			for _, d := range code.Dependencies {
				if d = strings.TrimSpace(d); d != "" {
					depSet[d] = true
				}
			}
			continue
		}

		var doc WriterOutput
		if json.Unmarshal(r.Output, &doc) == nil && strings.TrimSpace(doc.Documentation) != "" {
			docs.WriteString(doc.Documentation)
			docs.WriteString("\n\n")
			continue
		}

		var design DesignOutput
		if json.Unmarshal(r.Output, &design) == nil && strings.TrimSpace(design.Design) != "" {
			designs.WriteString(design.Design)
			designs.WriteString("\n\n")
			continue
		}

		var res ResearchOutput
		if json.Unmarshal(r.Output, &res) == nil && len(res.Findings) > 0 {
			for _, f := range res.Findings {
				if f = strings.TrimSpace(f); f != "" {
					research.WriteString("- ")
					research.WriteString(f)
					research.WriteString("\n")
				}
			}
		}
	}

	var full strings.Builder
	name := integration.ProjectName
	if name == "" {
		name = "Generated Project"
	}
	fmt.Fprintf(&full, "# %s\n\n", name)
	if plan != nil && plan.Description != "" {
		full.WriteString(plan.Description)
		full.WriteString("\n\n")
	}
	if designs.Len() > 0 {
		full.WriteString("## Design\n\n")
		full.WriteString(designs.String())
	}
	if research.Len() > 0 {
		full.WriteString("## Research Notes\n\n")
		full.WriteString(research.String())
		full.WriteString("\n")
	}
	if docs.Len() > 0 {
		full.WriteString(docs.String())
	}
	integration.Documentation = strings.TrimSpace(full.String()) + "\n"

	deps := make([]string, 0, len(depSet))
	for d := range depSet {
		deps = append(deps, d)
	}
	sort.Strings(deps)
	integration.Dependencies = deps

	if _, ok := integration.Files["main.py"]; ok {
		integration.BuildCommands = []string{"python main.py"}
	}
	return integration
}
