// Package orchestrator sequences the generation pipeline: analysis produces a
// task plan, specialists execute it, integration assembles a project, and a
// bounded testing loop refines the result. Every phase is recorded in the run
// store and mirrored as a JSON artifact in the project directory.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"symphony/internal/agents"
	"symphony/internal/artifact"
	"symphony/internal/config"
	"symphony/internal/core"
	"symphony/internal/logging"
	"symphony/internal/perception"
	"symphony/internal/types"
)

// Deps wires the orchestrator's collaborators. Config and Store are required.
// A nil Client gets the provider chain built from Config; a nil Events channel
// disables progress reporting.
type Deps struct {
	Config *config.Config
	Store  types.RunStore
	Client types.LLMClient
	Events chan<- types.ProgressEvent
}

// Orchestrator runs briefs through the pipeline. It is safe for concurrent
// use; each ProcessProject call owns its run state.
type Orchestrator struct {
	cfg    *config.Config
	store  types.RunStore
	writer *artifact.Writer
	client types.LLMClient
	sched  *core.Scheduler

	manager    *agents.Manager
	roster     *agents.Roster
	integrator *agents.Integrator
	tester     *agents.Tester

	events chan<- types.ProgressEvent

	// Settings Reload may swap while the server runs.
	tunMu         sync.RWMutex
	maxIterations int
	phaseTimeout  time.Duration

	// Run ID generation. now is swapped in tests.
	now     func() time.Time
	idMu    sync.Mutex
	idStamp string
	idSeq   int
}

// NewOrchestrator builds the pipeline from its dependencies. Every model call
// goes through a scheduled client so concurrent provider calls stay under
// Pipeline.MaxConcurrentCalls.
func NewOrchestrator(deps Deps) *Orchestrator {
	cfg := deps.Config
	client := deps.Client
	if client == nil {
		client = perception.NewChainFromConfig(cfg)
	}

	sched := core.NewScheduler(cfg.Pipeline.MaxConcurrentCalls)

	o := &Orchestrator{
		cfg:    cfg,
		store:  deps.Store,
		writer: artifact.NewWriter(cfg.Pipeline.OutputDir),
		client: client,
		sched:  sched,
		events: deps.Events,

		maxIterations: cfg.Pipeline.MaxIterations,
		phaseTimeout:  cfg.GetPhaseTimeout(),

		now: time.Now,
	}

	o.manager = agents.NewManager(sched.Client("manager", "manager", client))
	o.roster = &agents.Roster{
		Coder:      agents.NewCoder(sched.Client("coder", string(types.AgentCoder), client)),
		Designer:   agents.NewDesigner(sched.Client("designer", string(types.AgentDesigner), client)),
		Researcher: agents.NewResearcher(sched.Client("researcher", string(types.AgentResearcher), client)),
		Writer:     agents.NewWriter(sched.Client("writer", string(types.AgentWriter), client)),
	}
	o.integrator = agents.NewIntegrator(sched.Client("integrator", "integrator", client))
	o.tester = agents.NewTester(sched.Client("tester", "tester", client))

	return o
}

// Writer exposes the artifact writer so servers can resolve project paths.
func (o *Orchestrator) Writer() *artifact.Writer {
	return o.writer
}

// Close releases the call scheduler. In-flight runs finish their current
// acquisitions first.
func (o *Orchestrator) Close() {
	o.sched.Stop()
}

// Reload applies the hot-reloadable pipeline settings from a freshly loaded
// config. Provider keys, the output directory, and scheduler slots are fixed
// for the process lifetime and need a restart.
func (o *Orchestrator) Reload(next *config.Config) {
	o.tunMu.Lock()
	o.maxIterations = next.Pipeline.MaxIterations
	o.phaseTimeout = next.GetPhaseTimeout()
	o.tunMu.Unlock()
	logging.Orchestrator("config reloaded: max_iterations=%d phase_timeout=%v",
		next.Pipeline.MaxIterations, next.GetPhaseTimeout())
}

func (o *Orchestrator) iterationBudget() int {
	o.tunMu.RLock()
	defer o.tunMu.RUnlock()
	return o.maxIterations
}

func (o *Orchestrator) phaseDeadline() time.Duration {
	o.tunMu.RLock()
	defer o.tunMu.RUnlock()
	return o.phaseTimeout
}

// Result is the outcome of a completed pipeline run.
type Result struct {
	Run   *types.Run            `json:"run"`
	Final artifact.FinalProject `json:"final_project"`
}

// ProcessProject executes the full pipeline for a brief. On failure the
// returned Result still carries the run so callers can surface its ID.
func (o *Orchestrator) ProcessProject(ctx context.Context, brief types.ProjectBrief) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryOrchestrator, "ProcessProject")
	defer timer.StopWithInfo()

	run := &types.Run{
		ID:        o.newRunID(),
		Brief:     brief,
		Status:    types.RunRunning,
		CreatedAt: o.now().UTC(),
	}
	res := &Result{Run: run}

	logging.Orchestrator("=== Starting run %s: %.80q ===", run.ID, brief.Prompt)

	if err := o.store.SaveRun(run); err != nil {
		run.Status = types.RunFailed
		return res, fmt.Errorf("save run %s: %w", run.ID, err)
	}

	integration, err := o.execute(ctx, run)
	if err != nil {
		o.failRun(run, err)
		return res, err
	}

	final, err := o.writer.WriteProject(run.ID, integration)
	if err != nil {
		err = fmt.Errorf("write project for run %s: %w", run.ID, err)
		o.failRun(run, err)
		return res, err
	}
	res.Final = final

	run.Status = types.RunCompleted
	run.ProjectName = integration.ProjectName
	run.ProjectPath = final.ProjectDir
	run.DownloadURL = "/api/projects/" + run.ID + "/download"
	run.CompletedAt = o.now().UTC()
	if err := o.store.UpdateRunStatus(run.ID, types.RunCompleted, run.ProjectName, run.ProjectPath); err != nil {
		logging.OrchestratorError("run %s: record completion: %v", run.ID, err)
	}

	logging.Orchestrator("=== Run %s completed: %s (%d files) ===", run.ID, run.ProjectName, final.TotalFiles)
	o.emit(types.ProgressEvent{
		RunID:   run.ID,
		Phase:   types.PhaseTesting,
		Message: fmt.Sprintf("project %s ready (%d files)", integration.ProjectName, final.TotalFiles),
		Done:    true,
	})
	return res, nil
}

// execute runs phases one through four and returns the integration that the
// final project is written from. The refinement budget is shared between
// task fixes and full restarts, so a run makes at most
// Pipeline.MaxIterations review passes no matter which path each one takes.
func (o *Orchestrator) execute(ctx context.Context, run *types.Run) (types.IntegrationResult, error) {
	attempts := &phaseAttempts{}

	plan, results, integration, err := o.buildProject(ctx, run, nil, attempts)
	if err != nil {
		return integration, err
	}

	maxIterations := o.iterationBudget()
	if maxIterations < 1 {
		maxIterations = 1
	}

	for iteration := 1; iteration <= maxIterations; iteration++ {
		report, err := o.runTesting(ctx, run, plan, integration, iteration)
		if err != nil {
			return integration, err
		}

		switch report.Status {
		case types.RefinementPass:
			logging.Refinement("run %s: review passed on iteration %d", run.ID, iteration)
			return integration, nil

		case types.RefinementFixTasks:
			logging.Refinement("run %s: iteration %d wants task fixes %v", run.ID, iteration, report.SpecificTasksToFix)
			results, integration, err = o.fixTasks(ctx, run, plan, results, report, attempts)
			if err != nil {
				return integration, err
			}

		case types.RefinementRestartAnalysis:
			if iteration == maxIterations {
				logging.RefinementWarn("run %s: restart requested on final iteration, keeping current build", run.ID)
				return integration, nil
			}
			logging.Refinement("run %s: iteration %d restarts analysis with %d issues", run.ID, iteration, len(report.Errors))
			plan, results, integration, err = o.buildProject(ctx, run, report.Errors, attempts)
			if err != nil {
				return integration, err
			}
		}
	}

	logging.RefinementWarn("run %s: refinement budget (%d) exhausted, accepting current build", run.ID, maxIterations)
	return integration, nil
}

// buildProject runs analysis, specialist dispatch, and integration once.
// feedback carries reviewer errors when a restart re-enters analysis.
func (o *Orchestrator) buildProject(ctx context.Context, run *types.Run, feedback []string, attempts *phaseAttempts) (*types.ProjectPlan, map[int]types.AgentResult, types.IntegrationResult, error) {
	analysis, err := o.runAnalysis(ctx, run, feedback, attempts.next(types.PhaseAnalysis))
	if err != nil {
		return nil, nil, types.IntegrationResult{}, err
	}
	plan := analysis.Plan

	results, err := o.runSpecialists(ctx, run, plan, nil, nil, feedback, attempts.next(types.PhaseSpecialists))
	if err != nil {
		return plan, results, types.IntegrationResult{}, err
	}

	integration, err := o.runIntegration(ctx, run, plan, results, attempts.next(types.PhaseIntegration))
	if err != nil {
		return plan, results, integration, err
	}
	return plan, results, integration, nil
}

// fixTasks re-runs the tasks named by the reviewer with its errors as
// feedback, then re-integrates. Task IDs that are not in the plan are logged
// and dropped. An empty fix list still re-integrates.
func (o *Orchestrator) fixTasks(ctx context.Context, run *types.Run, plan *types.ProjectPlan, results map[int]types.AgentResult, report types.TestReport, attempts *phaseAttempts) (map[int]types.AgentResult, types.IntegrationResult, error) {
	only := make(map[int]bool, len(report.SpecificTasksToFix))
	for _, id := range report.SpecificTasksToFix {
		if _, ok := plan.Task(id); !ok {
			logging.RefinementWarn("run %s: reviewer named unknown task %d, ignoring", run.ID, id)
			continue
		}
		only[id] = true
	}

	if len(only) > 0 {
		var err error
		results, err = o.runSpecialists(ctx, run, plan, results, only, report.Errors, attempts.next(types.PhaseSpecialists))
		if err != nil {
			return results, types.IntegrationResult{}, err
		}
	}

	integration, err := o.runIntegration(ctx, run, plan, results, attempts.next(types.PhaseIntegration))
	return results, integration, err
}

func (o *Orchestrator) failRun(run *types.Run, cause error) {
	run.Status = types.RunFailed
	run.CompletedAt = o.now().UTC()
	logging.OrchestratorError("run %s failed: %v", run.ID, cause)
	if err := o.store.UpdateRunStatus(run.ID, types.RunFailed, "", ""); err != nil {
		logging.OrchestratorError("run %s: record failure: %v", run.ID, err)
	}
	o.emit(types.ProgressEvent{RunID: run.ID, Message: "run failed", Err: cause, Done: true})
}

// newRunID returns a timestamp run ID, suffixed when two runs land in the
// same second.
func (o *Orchestrator) newRunID() string {
	o.idMu.Lock()
	defer o.idMu.Unlock()

	stamp := o.now().UTC().Format("20060102_150405")
	if stamp == o.idStamp {
		o.idSeq++
		return fmt.Sprintf("%s_%d", stamp, o.idSeq)
	}
	o.idStamp = stamp
	o.idSeq = 0
	return stamp
}

// emit sends a progress event without blocking. A slow consumer drops events
// rather than stalling the pipeline.
func (o *Orchestrator) emit(ev types.ProgressEvent) {
	if o.events == nil {
		return
	}
	select {
	case o.events <- ev:
	default:
	}
}

// recordPhase appends the phase result to the run and persists it. Store
// failures are logged, not fatal: the generated project is the product.
func (o *Orchestrator) recordPhase(run *types.Run, pr types.PhaseResult) {
	run.Phases = append(run.Phases, pr)
	if err := o.store.SavePhaseResult(run.ID, pr); err != nil {
		logging.OrchestratorError("run %s: save %s phase result: %v", run.ID, pr.Phase, err)
	}
}

// writeArtifact mirrors a phase payload into the project directory.
func (o *Orchestrator) writeArtifact(run *types.Run, name string, payload interface{}) {
	if _, err := o.writer.WritePhaseArtifact(run.ID, name, payload); err != nil {
		logging.OrchestratorError("run %s: write %s: %v", run.ID, name, err)
	}
}

// phaseAttempts numbers repeated executions of each phase within one run, so
// restarted analyses and re-integrations keep distinct attempt records.
type phaseAttempts struct {
	mu     sync.Mutex
	counts map[types.Phase]int
}

func (a *phaseAttempts) next(phase types.Phase) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.counts == nil {
		a.counts = make(map[types.Phase]int)
	}
	a.counts[phase]++
	return a.counts[phase]
}

func rawJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
