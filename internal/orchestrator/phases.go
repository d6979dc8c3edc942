package orchestrator

import (
	"context"
	"fmt"

	"symphony/internal/agents"
	"symphony/internal/artifact"
	"symphony/internal/logging"
	"symphony/internal/types"
)

// integrationArtifact is the phase3 JSON written next to the project files.
type integrationArtifact struct {
	types.IntegrationResult
	ModelUsed string `json:"model_used"`
}

// iterationArtifact is the phase4 JSON for one refinement pass.
type iterationArtifact struct {
	types.TestReport
	Iteration int    `json:"iteration"`
	ModelUsed string `json:"model_used"`
}

// runAnalysis turns the brief into a project plan.
func (o *Orchestrator) runAnalysis(ctx context.Context, run *types.Run, feedback []string, attempt int) (agents.AnalysisResult, error) {
	logging.Orchestrator("run %s: phase 1 attempt %d (analysis)", run.ID, attempt)
	o.emit(types.ProgressEvent{RunID: run.ID, Phase: types.PhaseAnalysis, Message: "analyzing request"})

	pctx, cancel := context.WithTimeout(ctx, o.phaseDeadline())
	defer cancel()

	started := o.now().UTC()
	analysis, err := o.manager.Analyze(pctx, run.Brief.Prompt, run.Brief.ProjectType, feedback)
	completed := o.now().UTC()

	pr := types.PhaseResult{
		Phase:       types.PhaseAnalysis,
		Attempt:     attempt,
		Provider:    o.client.Name(),
		LatencyMS:   completed.Sub(started).Milliseconds(),
		StartedAt:   started,
		CompletedAt: completed,
	}
	if err != nil {
		pr.Status = types.PhaseFailed
		pr.Error = err.Error()
		o.recordPhase(run, pr)
		return analysis, fmt.Errorf("analysis phase: %w", err)
	}

	pr.Status = types.PhaseSuccess
	pr.Model = analysis.ModelUsed
	pr.Artifacts = rawJSON(analysis)
	o.recordPhase(run, pr)
	o.writeArtifact(run, artifact.AnalysisFile, analysis)

	logging.Orchestrator("run %s: plan %q with %d tasks via %s", run.ID, analysis.Plan.ProjectName, len(analysis.Plan.Tasks), analysis.ModelUsed)
	o.emit(types.ProgressEvent{
		RunID:   run.ID,
		Phase:   types.PhaseAnalysis,
		Message: fmt.Sprintf("plan ready: %d tasks", len(analysis.Plan.Tasks)),
	})
	return analysis, nil
}

// runIntegration assembles the specialists' outputs into project files.
func (o *Orchestrator) runIntegration(ctx context.Context, run *types.Run, plan *types.ProjectPlan, results map[int]types.AgentResult, attempt int) (types.IntegrationResult, error) {
	logging.Orchestrator("run %s: phase 3 attempt %d (integration)", run.ID, attempt)
	o.emit(types.ProgressEvent{RunID: run.ID, Phase: types.PhaseIntegration, Message: "integrating results"})

	pctx, cancel := context.WithTimeout(ctx, o.phaseDeadline())
	defer cancel()

	started := o.now().UTC()
	integration, model, err := o.integrator.Integrate(pctx, plan, sortedResults(results))
	completed := o.now().UTC()

	pr := types.PhaseResult{
		Phase:       types.PhaseIntegration,
		Attempt:     attempt,
		Provider:    o.client.Name(),
		Model:       model,
		LatencyMS:   completed.Sub(started).Milliseconds(),
		StartedAt:   started,
		CompletedAt: completed,
	}
	if err != nil {
		pr.Status = types.PhaseFailed
		pr.Error = err.Error()
		o.recordPhase(run, pr)
		return integration, fmt.Errorf("integration phase: %w", err)
	}

	pr.Status = types.PhaseSuccess
	pr.Artifacts = rawJSON(integrationArtifact{IntegrationResult: integration, ModelUsed: model})
	o.recordPhase(run, pr)
	o.writeArtifact(run, artifact.IntegrationFile, integrationArtifact{IntegrationResult: integration, ModelUsed: model})

	logging.Orchestrator("run %s: integration produced %d files via %s", run.ID, len(integration.Files), model)
	o.emit(types.ProgressEvent{
		RunID:   run.ID,
		Phase:   types.PhaseIntegration,
		Message: fmt.Sprintf("%d files assembled", len(integration.Files)),
	})
	return integration, nil
}

// runTesting reviews the integrated project and records the verdict as one
// refinement attempt.
func (o *Orchestrator) runTesting(ctx context.Context, run *types.Run, plan *types.ProjectPlan, integration types.IntegrationResult, iteration int) (types.TestReport, error) {
	logging.Orchestrator("run %s: phase 4 iteration %d (testing)", run.ID, iteration)
	o.emit(types.ProgressEvent{
		RunID:   run.ID,
		Phase:   types.PhaseTesting,
		Message: fmt.Sprintf("review iteration %d", iteration),
	})

	pctx, cancel := context.WithTimeout(ctx, o.phaseDeadline())
	defer cancel()

	started := o.now().UTC()
	report, model, err := o.tester.Review(pctx, plan, integration)
	completed := o.now().UTC()

	pr := types.PhaseResult{
		Phase:       types.PhaseTesting,
		Attempt:     iteration,
		Provider:    o.client.Name(),
		Model:       model,
		LatencyMS:   completed.Sub(started).Milliseconds(),
		StartedAt:   started,
		CompletedAt: completed,
	}
	if err != nil {
		pr.Status = types.PhaseFailed
		pr.Error = err.Error()
		o.recordPhase(run, pr)
		return report, fmt.Errorf("testing phase: %w", err)
	}

	pr.Status = types.PhaseSuccess
	pr.Artifacts = rawJSON(iterationArtifact{TestReport: report, Iteration: iteration, ModelUsed: model})
	o.recordPhase(run, pr)
	o.writeArtifact(run, artifact.IterationFile(iteration), iterationArtifact{TestReport: report, Iteration: iteration, ModelUsed: model})

	ra := types.RefinementAttempt{
		Iteration:  iteration,
		Status:     report.Status,
		Errors:     report.Errors,
		TasksToFix: report.SpecificTasksToFix,
		CreatedAt:  o.now().UTC(),
	}
	run.Refinements = append(run.Refinements, ra)
	if err := o.store.SaveRefinementAttempt(run.ID, ra); err != nil {
		logging.OrchestratorError("run %s: save refinement attempt %d: %v", run.ID, iteration, err)
	}

	logging.Refinement("run %s: iteration %d verdict %s via %s", run.ID, iteration, report.Status, model)
	return report, nil
}
