package prompt

import (
	"fmt"
	"sort"
	"strings"

	"symphony/internal/types"
)

// Output excerpts embedded in downstream prompts are clipped so a verbose
// specialist cannot blow the next phase's context window.
const (
	maxDependencyExcerpt  = 2000
	maxIntegrationExcerpt = 4000
	maxReferenceExcerpt   = 1500
)

// BuildAnalysisPrompt renders the phase 1 user prompt. Refinement feedback
// from failed iterations is appended so a restarted analysis can plan
// around the reported problems.
func BuildAnalysisPrompt(userPrompt, projectType string, feedback []string) string {
	var sb strings.Builder

	sb.WriteString("## Project Request\n\n")
	sb.WriteString(userPrompt)
	sb.WriteString("\n\n## Project Type\n\n")
	sb.WriteString(projectType)

	if len(feedback) > 0 {
		sb.WriteString("\n\n## Issues To Fix\n\n")
		sb.WriteString("A previous attempt at this project failed review. Plan around these problems:\n")
		for _, f := range feedback {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// BuildTaskPrompt renders a specialist's user prompt: the task itself, the
// project context from the plan, the outputs of every dependency, and any
// review feedback driving a re-run. Dependencies render in ID order so the
// prompt is stable.
func BuildTaskPrompt(task types.AgentTask, plan *types.ProjectPlan, deps map[int]types.AgentResult, feedback []string) string {
	var sb strings.Builder

	sb.WriteString("## Task\n\n")
	if task.Title != "" {
		sb.WriteString(task.Title)
		sb.WriteString("\n\n")
	}
	sb.WriteString(task.Description)

	if task.ExpectedOutput != "" {
		sb.WriteString("\n\n## Expected Output\n\n")
		sb.WriteString(task.ExpectedOutput)
	}

	if plan != nil {
		sb.WriteString("\n\n## Project Context\n\n")
		sb.WriteString("Project: ")
		sb.WriteString(plan.ProjectName)
		sb.WriteString("\n")
		if plan.Description != "" {
			sb.WriteString(plan.Description)
			sb.WriteString("\n")
		}
		if len(plan.TechStack) > 0 {
			sb.WriteString("Tech stack: ")
			sb.WriteString(strings.Join(plan.TechStack, ", "))
			sb.WriteString("\n")
		}
		if len(plan.Constraints) > 0 {
			sb.WriteString("Constraints: ")
			sb.WriteString(strings.Join(plan.Constraints, "; "))
			sb.WriteString("\n")
		}
	}

	if len(deps) > 0 {
		ids := make([]int, 0, len(deps))
		for id := range deps {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		sb.WriteString("\n## Completed Dependencies\n\n")
		for _, id := range ids {
			result := deps[id]
			fmt.Fprintf(&sb, "### Task %d (%s)\n\n", id, result.Agent)
			sb.WriteString(clip(string(result.Output), maxDependencyExcerpt))
			sb.WriteString("\n\n")
		}
	}

	if len(feedback) > 0 {
		sb.WriteString("\n## Issues To Fix\n\n")
		sb.WriteString("A previous version of this task's output failed review. Address these issues:\n")
		for _, line := range feedback {
			sb.WriteString("- ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// BuildReferenceSection renders scraped reference material for the
// researcher prompt. Empty input renders nothing.
func BuildReferenceSection(extracts []string) string {
	if len(extracts) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n## Reference Material\n\n")
	for i, extract := range extracts {
		fmt.Fprintf(&sb, "### Source %d\n\n", i+1)
		sb.WriteString(clip(extract, maxReferenceExcerpt))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// BuildIntegrationPrompt renders the phase 3 user prompt from the plan and
// every specialist result, in task ID order.
func BuildIntegrationPrompt(plan *types.ProjectPlan, results []types.AgentResult) string {
	var sb strings.Builder

	sb.WriteString("## Project\n\n")
	if plan != nil {
		sb.WriteString(plan.ProjectName)
		sb.WriteString("\n")
		sb.WriteString(plan.Description)
		sb.WriteString("\n")
		if len(plan.TechStack) > 0 {
			sb.WriteString("Tech stack: ")
			sb.WriteString(strings.Join(plan.TechStack, ", "))
			sb.WriteString("\n")
		}
	}

	sorted := make([]types.AgentResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TaskID < sorted[j].TaskID })

	sb.WriteString("\n## Specialist Outputs\n\n")
	for _, result := range sorted {
		fmt.Fprintf(&sb, "### Task %d (%s, %s)\n\n", result.TaskID, result.Agent, result.Status)
		if result.Error != "" {
			sb.WriteString("Error: ")
			sb.WriteString(result.Error)
			sb.WriteString("\n\n")
			continue
		}
		sb.WriteString(clip(string(result.Output), maxIntegrationExcerpt))
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// BuildTestingPrompt renders the phase 4 user prompt from the plan and the
// integrated project. Files render in path order.
func BuildTestingPrompt(plan *types.ProjectPlan, integration types.IntegrationResult) string {
	var sb strings.Builder

	sb.WriteString("## Success Criteria\n\n")
	if plan != nil && len(plan.SuccessCriteria) > 0 {
		for _, c := range plan.SuccessCriteria {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString("- The project builds and runs\n")
	}

	if plan != nil && len(plan.Tasks) > 0 {
		sb.WriteString("\n## Planned Tasks\n\n")
		for _, task := range plan.Tasks {
			fmt.Fprintf(&sb, "- Task %d (%s): %s\n", task.ID, task.AgentType, task.Title)
		}
	}

	sb.WriteString("\n## Integrated Project\n\n")
	sb.WriteString("Project: ")
	sb.WriteString(integration.ProjectName)
	sb.WriteString("\n")
	if len(integration.BuildCommands) > 0 {
		sb.WriteString("Build commands: ")
		sb.WriteString(strings.Join(integration.BuildCommands, " && "))
		sb.WriteString("\n")
	}
	if len(integration.Dependencies) > 0 {
		sb.WriteString("Dependencies: ")
		sb.WriteString(strings.Join(integration.Dependencies, ", "))
		sb.WriteString("\n")
	}

	paths := make([]string, 0, len(integration.Files))
	for path := range integration.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fmt.Fprintf(&sb, "\n### %s\n\n", path)
		sb.WriteString(clip(integration.Files[path], maxIntegrationExcerpt))
		sb.WriteString("\n")
	}

	return sb.String()
}

// clip truncates s to max bytes at a rune boundary, marking the cut.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "\n[truncated]"
}
