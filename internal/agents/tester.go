package agents

import (
	"context"
	"fmt"
	"strings"

	"symphony/internal/logging"
	"symphony/internal/perception"
	"symphony/internal/prompt"
	"symphony/internal/types"
)

// Tester reviews the integrated project and picks the refinement route.
// Review is deliberately lenient: an absent or unreadable verdict passes with
// a recorded warning rather than looping the pipeline on noise.
type Tester struct {
	client types.LLMClient
}

// NewTester returns a tester backed by the given client.
func NewTester(client types.LLMClient) *Tester {
	return &Tester{client: client}
}

// Review runs one phase 4 pass. The returned model name reports which
// provider served the verdict, "fallback" when no provider did.
func (t *Tester) Review(ctx context.Context, plan *types.ProjectPlan, integration types.IntegrationResult) (types.TestReport, string, error) {
	user := prompt.BuildTestingPrompt(plan, integration)

	response, err := t.client.CompleteWithSystem(ctx, prompt.TestingSystemPrompt, user)
	if err != nil {
		if ctx.Err() != nil {
			return types.TestReport{}, "", fmt.Errorf("testing call failed: %w", err)
		}
		logging.TesterWarn("review unavailable, accepting integration: %v", err)
		return types.TestReport{
			Status:  types.RefinementPass,
			Summary: "review unavailable, integration accepted without verification",
		}, "fallback", nil
	}

	var report types.TestReport
	if derr := perception.DecodeInto(response, &report); derr != nil {
		logging.TesterWarn("verdict did not decode, accepting integration: %v", derr)
		return types.TestReport{
			Status:  types.RefinementPass,
			Summary: "review verdict was unreadable, integration accepted",
		}, t.client.Model(), nil
	}

	normalizeReport(&report)
	logging.Tester("verdict: %s (%d errors, %d tasks to fix)", report.Status, len(report.Errors), len(report.SpecificTasksToFix))
	return report, t.client.Model(), nil
}

// normalizeReport maps loose model verdicts onto the three statuses the
// refinement loop understands.
func normalizeReport(report *types.TestReport) {
	raw := strings.ToLower(strings.TrimSpace(string(report.Status)))
	switch types.RefinementStatus(raw) {
	case types.RefinementPass, types.RefinementRestartAnalysis, types.RefinementFixTasks:
		report.Status = types.RefinementStatus(raw)
		return
	}

	switch raw {
	case "fail", "failed":
		if len(report.SpecificTasksToFix) > 0 {
			report.Status = types.RefinementFixTasks
		} else {
			report.Status = types.RefinementRestartAnalysis
		}
		return
	}

	if len(report.SpecificTasksToFix) > 0 {
		report.Status = types.RefinementFixTasks
		return
	}
	if report.Summary == "" {
		report.Summary = fmt.Sprintf("unrecognized verdict %q treated as pass", raw)
	}
	report.Status = types.RefinementPass
}
