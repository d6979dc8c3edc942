package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"symphony/internal/artifact"
	"symphony/internal/config"
	"symphony/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptClient routes calls by system prompt so each role gets its own canned
// response. Tester verdicts pop from a queue and default to pass.
type scriptClient struct {
	mu        sync.Mutex
	responses map[string]string
	errors    map[string]error
	verdicts  []string
	calls     map[string]int
	prompts   map[string][]string
}

const (
	planJSON = `{
		"project_name": "CLI Calculator",
		"description": "A command line calculator",
		"tech_stack": ["Python"],
		"tasks": [
			{"id": 1, "title": "Implement calculator", "agent_type": "coder", "description": "Write the calculator", "priority": "high", "dependencies": [], "expected_output": "main.py", "estimated_time": "1 hour"},
			{"id": 2, "title": "Write docs", "agent_type": "writer", "description": "Document usage", "priority": "medium", "dependencies": [1], "expected_output": "README", "estimated_time": "30 minutes"}
		],
		"success_criteria": ["Adds two numbers"],
		"constraints": []
	}`

	coderJSON       = `{"code": "print(1 + 1)", "explanation": "Adds numbers", "dependencies": [], "file_name": "main.py", "instructions": "Run: python main.py"}`
	designerJSON    = `{"design": "Single module", "components": ["cli"], "data_flow": "stdin to stdout"}`
	researcherJSON  = `{"findings": ["Use argparse"], "recommendations": ["Keep it simple"], "sources": []}`
	writerJSON      = `{"documentation": "# CLI Calculator\n\nRun python main.py.", "summary": "Usage docs"}`
	integrationJSON = `{"project_name": "CLI Calculator", "files": {"main.py": "print(1 + 1)\n"}, "structure": {"main.py": "entry point"}, "build_commands": ["python main.py"], "documentation": "# CLI Calculator\n\nA calculator.", "dependencies": []}`

	verdictPass    = `{"status": "pass", "summary": "looks good"}`
	verdictFixTask = `{"status": "needs_phase2_modifications", "errors": ["missing error handling"], "specific_tasks_to_fix": [1]}`
	verdictRestart = `{"status": "needs_phase1_restart", "errors": ["wrong approach entirely"]}`
)

func newScriptClient() *scriptClient {
	return &scriptClient{
		responses: map[string]string{
			"analysis":   planJSON,
			"coder":      coderJSON,
			"designer":   designerJSON,
			"researcher": researcherJSON,
			"writer":     writerJSON,
			"integrator": integrationJSON,
		},
		errors:  map[string]error{},
		calls:   map[string]int{},
		prompts: map[string][]string{},
	}
}

func roleOf(system string) string {
	switch {
	case strings.Contains(system, "project manager"):
		return "analysis"
	case strings.Contains(system, "senior software engineer"):
		return "coder"
	case strings.Contains(system, "software designer"):
		return "designer"
	case strings.Contains(system, "technical researcher"):
		return "researcher"
	case strings.Contains(system, "technical writer"):
		return "writer"
	case strings.Contains(system, "the integrator"):
		return "integrator"
	case strings.Contains(system, "quality reviewer"):
		return "tester"
	}
	return "unknown"
}

func (c *scriptClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *scriptClient) CompleteWithSystem(_ context.Context, system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	role := roleOf(system)
	c.calls[role]++
	c.prompts[role] = append(c.prompts[role], user)

	if err := c.errors[role]; err != nil {
		return "", err
	}
	if role == "tester" {
		if i := c.calls[role] - 1; i < len(c.verdicts) {
			return c.verdicts[i], nil
		}
		return verdictPass, nil
	}
	if resp, ok := c.responses[role]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("no scripted response for %q", role)
}

func (c *scriptClient) Name() string  { return "script" }
func (c *scriptClient) Model() string { return "script-1" }

func (c *scriptClient) callCount(role string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[role]
}

func (c *scriptClient) promptsFor(role string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts[role]...)
}

// memStore is an in-memory RunStore for pipeline tests.
type memStore struct {
	mu          sync.Mutex
	runs        map[string]*types.Run
	phases      map[string][]types.PhaseResult
	tasks       map[string]map[int]types.AgentResult
	refinements map[string]map[int]types.RefinementAttempt
	statuses    []types.RunStatus
}

func newMemStore() *memStore {
	return &memStore{
		runs:        map[string]*types.Run{},
		phases:      map[string][]types.PhaseResult{},
		tasks:       map[string]map[int]types.AgentResult{},
		refinements: map[string]map[int]types.RefinementAttempt{},
	}
}

func (s *memStore) SaveRun(run *types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memStore) UpdateRunStatus(runID string, status types.RunStatus, projectName, projectPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	run.Status = status
	if projectName != "" {
		run.ProjectName = projectName
	}
	if projectPath != "" {
		run.ProjectPath = projectPath
	}
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *memStore) GetRun(runID string) (*types.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	cp := *run
	return &cp, nil
}

func (s *memStore) ListRuns(int) ([]*types.Run, error) { return nil, nil }

func (s *memStore) SavePhaseResult(runID string, pr types.PhaseResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases[runID] = append(s.phases[runID], pr)
	return nil
}

func (s *memStore) SaveTaskResult(runID string, ar types.AgentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[runID] == nil {
		s.tasks[runID] = map[int]types.AgentResult{}
	}
	s.tasks[runID][ar.TaskID] = ar
	return nil
}

func (s *memStore) GetTaskResults(runID string) ([]types.AgentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.AgentResult
	for _, ar := range s.tasks[runID] {
		out = append(out, ar)
	}
	return out, nil
}

func (s *memStore) SaveRefinementAttempt(runID string, ra types.RefinementAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refinements[runID] == nil {
		s.refinements[runID] = map[int]types.RefinementAttempt{}
	}
	s.refinements[runID][ra.Iteration] = ra
	return nil
}

func (s *memStore) CountRefinementAttempts(runID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refinements[runID]), nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) taskResult(runID string, taskID int) (types.AgentResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ar, ok := s.tasks[runID][taskID]
	return ar, ok
}

func (s *memStore) lastStatus() types.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

func newTestOrchestrator(t *testing.T, client types.LLMClient, tweak func(*config.Config)) (*Orchestrator, *memStore) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Pipeline.OutputDir = t.TempDir()
	cfg.Pipeline.PhaseTimeout = "30s"
	if tweak != nil {
		tweak(cfg)
	}
	st := newMemStore()
	o := NewOrchestrator(Deps{Config: cfg, Store: st, Client: client})
	t.Cleanup(o.Close)
	return o, st
}

func TestProcessProject_HappyPath(t *testing.T) {
	client := newScriptClient()
	events := make(chan types.ProgressEvent, 128)
	cfg := config.DefaultConfig()
	cfg.Pipeline.OutputDir = t.TempDir()
	cfg.Pipeline.PhaseTimeout = "30s"
	st := newMemStore()
	o := NewOrchestrator(Deps{Config: cfg, Store: st, Client: client, Events: events})
	t.Cleanup(o.Close)

	res, err := o.ProcessProject(context.Background(), types.NewProjectBrief("build a calculator", "cli"))
	if err != nil {
		t.Fatalf("ProcessProject: %v", err)
	}
	run := res.Run

	if run.Status != types.RunCompleted {
		t.Fatalf("run status = %s, want completed", run.Status)
	}
	if run.ProjectName != "CLI Calculator" {
		t.Errorf("project name = %q", run.ProjectName)
	}
	if want := "/api/projects/" + run.ID + "/download"; run.DownloadURL != want {
		t.Errorf("download url = %q, want %q", run.DownloadURL, want)
	}
	if res.Final.TotalFiles == 0 {
		t.Error("final project reports zero files")
	}

	projectDir := o.Writer().ProjectDir(run.ID)
	for _, name := range []string{
		"main.py",
		"README.md",
		artifact.AnalysisFile,
		artifact.TaskFile(1, "coder"),
		artifact.TaskFile(2, "writer"),
		artifact.IntegrationFile,
		artifact.IterationFile(1),
	} {
		if _, err := os.Stat(filepath.Join(projectDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	if len(run.Phases) != 4 {
		t.Fatalf("got %d phase records, want 4", len(run.Phases))
	}
	wantPhases := []types.Phase{types.PhaseAnalysis, types.PhaseSpecialists, types.PhaseIntegration, types.PhaseTesting}
	for i, pr := range run.Phases {
		if pr.Phase != wantPhases[i] {
			t.Errorf("phase[%d] = %s, want %s", i, pr.Phase, wantPhases[i])
		}
		if pr.Status != types.PhaseSuccess {
			t.Errorf("phase[%d] status = %s", i, pr.Status)
		}
	}

	if len(run.Refinements) != 1 || run.Refinements[0].Status != types.RefinementPass {
		t.Errorf("refinements = %+v, want one pass", run.Refinements)
	}
	if st.lastStatus() != types.RunCompleted {
		t.Errorf("stored status = %s", st.lastStatus())
	}

	close(events)
	var sawDone bool
	for ev := range events {
		if ev.Done {
			sawDone = true
			if ev.Err != nil {
				t.Errorf("done event carries error: %v", ev.Err)
			}
		}
	}
	if !sawDone {
		t.Error("no done event emitted")
	}
}

func TestProcessProject_FullRoster(t *testing.T) {
	client := newScriptClient()
	client.responses["analysis"] = `{
		"project_name": "Docs Site",
		"description": "Static docs",
		"tech_stack": ["Python"],
		"tasks": [
			{"id": 1, "title": "Research generators", "agent_type": "researcher", "description": "Compare options", "priority": "high", "dependencies": []},
			{"id": 2, "title": "Design layout", "agent_type": "designer", "description": "Page structure", "priority": "high", "dependencies": []},
			{"id": 3, "title": "Build generator", "agent_type": "coder", "description": "Implement it", "priority": "high", "dependencies": [1, 2]},
			{"id": 4, "title": "Write guide", "agent_type": "writer", "description": "User guide", "priority": "medium", "dependencies": [3]}
		],
		"success_criteria": [], "constraints": []
	}`
	o, st := newTestOrchestrator(t, client, nil)

	res, err := o.ProcessProject(context.Background(), types.NewProjectBrief("docs site", "web"))
	if err != nil {
		t.Fatalf("ProcessProject: %v", err)
	}
	run := res.Run

	for _, role := range []string{"researcher", "designer", "coder", "writer"} {
		if got := client.callCount(role); got != 1 {
			t.Errorf("%s called %d times, want 1", role, got)
		}
	}
	for id := 1; id <= 4; id++ {
		ar, ok := st.taskResult(run.ID, id)
		if !ok || ar.Status != types.TaskCompleted {
			t.Errorf("task %d result = %+v, want completed", id, ar)
		}
	}

	// The coder ran last of the three builders, so its prompt carries both
	// completed dependencies.
	coderPrompts := client.promptsFor("coder")
	if len(coderPrompts) != 1 {
		t.Fatalf("coder prompts = %d", len(coderPrompts))
	}
	for _, marker := range []string{"### Task 1", "### Task 2", "Completed Dependencies"} {
		if !strings.Contains(coderPrompts[0], marker) {
			t.Errorf("coder prompt missing %q", marker)
		}
	}
}

func TestProcessProject_FixTasksRefinement(t *testing.T) {
	client := newScriptClient()
	client.verdicts = []string{verdictFixTask, verdictPass}
	o, _ := newTestOrchestrator(t, client, nil)

	res, err := o.ProcessProject(context.Background(), types.NewProjectBrief("calc", "cli"))
	if err != nil {
		t.Fatalf("ProcessProject: %v", err)
	}
	run := res.Run

	if got := client.callCount("coder"); got != 2 {
		t.Errorf("coder called %d times, want 2 (initial + fix)", got)
	}
	if got := client.callCount("writer"); got != 1 {
		t.Errorf("writer called %d times, want 1 (not in fix list)", got)
	}
	if got := client.callCount("integrator"); got != 2 {
		t.Errorf("integrator called %d times, want 2", got)
	}

	rerun := client.promptsFor("coder")[1]
	if !strings.Contains(rerun, "## Issues To Fix") || !strings.Contains(rerun, "missing error handling") {
		t.Errorf("fix re-run prompt missing reviewer feedback:\n%s", rerun)
	}

	if len(run.Refinements) != 2 {
		t.Fatalf("refinements = %d, want 2", len(run.Refinements))
	}
	if run.Refinements[0].Status != types.RefinementFixTasks || run.Refinements[1].Status != types.RefinementPass {
		t.Errorf("refinement statuses = %s, %s", run.Refinements[0].Status, run.Refinements[1].Status)
	}
	if run.Status != types.RunCompleted {
		t.Errorf("run status = %s", run.Status)
	}
}

func TestProcessProject_RestartAnalysis(t *testing.T) {
	client := newScriptClient()
	client.verdicts = []string{verdictRestart, verdictPass}
	o, _ := newTestOrchestrator(t, client, nil)

	res, err := o.ProcessProject(context.Background(), types.NewProjectBrief("calc", "cli"))
	if err != nil {
		t.Fatalf("ProcessProject: %v", err)
	}
	run := res.Run

	if got := client.callCount("analysis"); got != 2 {
		t.Fatalf("analysis called %d times, want 2", got)
	}
	second := client.promptsFor("analysis")[1]
	if !strings.Contains(second, "## Issues To Fix") || !strings.Contains(second, "wrong approach entirely") {
		t.Errorf("restarted analysis prompt missing feedback:\n%s", second)
	}

	if len(run.Refinements) != 2 {
		t.Errorf("refinements = %d, want 2", len(run.Refinements))
	}
	// Two full builds plus two reviews.
	var analyses, dispatches, integrations, reviews int
	for _, pr := range run.Phases {
		switch pr.Phase {
		case types.PhaseAnalysis:
			analyses++
		case types.PhaseSpecialists:
			dispatches++
		case types.PhaseIntegration:
			integrations++
		case types.PhaseTesting:
			reviews++
		}
	}
	if analyses != 2 || dispatches != 2 || integrations != 2 || reviews != 2 {
		t.Errorf("phase counts = %d/%d/%d/%d, want 2/2/2/2", analyses, dispatches, integrations, reviews)
	}
}

func TestProcessProject_BudgetExhausted(t *testing.T) {
	client := newScriptClient()
	client.verdicts = []string{verdictFixTask, verdictFixTask, verdictFixTask, verdictFixTask}
	o, st := newTestOrchestrator(t, client, func(cfg *config.Config) {
		cfg.Pipeline.MaxIterations = 2
	})

	res, err := o.ProcessProject(context.Background(), types.NewProjectBrief("calc", "cli"))
	if err != nil {
		t.Fatalf("ProcessProject: %v", err)
	}
	run := res.Run

	if run.Status != types.RunCompleted {
		t.Errorf("run status = %s, want completed (best effort accept)", run.Status)
	}
	if len(run.Refinements) != 2 {
		t.Errorf("refinements = %d, want exactly the budget", len(run.Refinements))
	}
	if n, _ := st.CountRefinementAttempts(run.ID); n != 2 {
		t.Errorf("stored refinements = %d, want 2", n)
	}
	// Initial build plus one fix per iteration.
	if got := client.callCount("coder"); got != 3 {
		t.Errorf("coder called %d times, want 3", got)
	}
}

func TestProcessProject_RestartOnFinalIterationKeepsBuild(t *testing.T) {
	client := newScriptClient()
	client.verdicts = []string{verdictRestart}
	o, _ := newTestOrchestrator(t, client, func(cfg *config.Config) {
		cfg.Pipeline.MaxIterations = 1
	})

	res, err := o.ProcessProject(context.Background(), types.NewProjectBrief("calc", "cli"))
	if err != nil {
		t.Fatalf("ProcessProject: %v", err)
	}

	if got := client.callCount("analysis"); got != 1 {
		t.Errorf("analysis called %d times, want 1 (no budget left for restart)", got)
	}
	if res.Run.Status != types.RunCompleted {
		t.Errorf("run status = %s", res.Run.Status)
	}
}

func TestProcessProject_FailedDependencySkipsTask(t *testing.T) {
	client := newScriptClient()
	client.errors["coder"] = errors.New("provider down")
	o, st := newTestOrchestrator(t, client, nil)

	res, err := o.ProcessProject(context.Background(), types.NewProjectBrief("calc", "cli"))
	if err != nil {
		t.Fatalf("ProcessProject: %v", err)
	}
	run := res.Run

	ar, ok := st.taskResult(run.ID, 1)
	if !ok || ar.Status != types.TaskFailed {
		t.Fatalf("task 1 = %+v, want failed", ar)
	}
	ar, ok = st.taskResult(run.ID, 2)
	if !ok || ar.Status != types.TaskSkipped {
		t.Fatalf("task 2 = %+v, want skipped", ar)
	}
	if !strings.Contains(ar.Error, "dependency task 1 failed") {
		t.Errorf("skip reason = %q", ar.Error)
	}
	if got := client.callCount("writer"); got != 0 {
		t.Errorf("writer called %d times despite skipped task", got)
	}
	// The pipeline still integrates whatever survived.
	if run.Status != types.RunCompleted {
		t.Errorf("run status = %s", run.Status)
	}
}

func TestProcessProject_AnalysisFailureFailsRun(t *testing.T) {
	client := newScriptClient()
	client.errors["analysis"] = errors.New("provider down")
	o, st := newTestOrchestrator(t, client, nil)

	res, err := o.ProcessProject(context.Background(), types.NewProjectBrief("calc", "cli"))
	if err == nil {
		t.Fatal("expected error")
	}
	if res == nil || res.Run == nil {
		t.Fatal("result should still carry the run")
	}
	if res.Run.Status != types.RunFailed {
		t.Errorf("run status = %s, want failed", res.Run.Status)
	}
	if st.lastStatus() != types.RunFailed {
		t.Errorf("stored status = %s", st.lastStatus())
	}
	if len(res.Run.Phases) != 1 || res.Run.Phases[0].Status != types.PhaseFailed {
		t.Errorf("phases = %+v, want one failed analysis record", res.Run.Phases)
	}
}

func TestRunSpecialists_DependencyCycleSkips(t *testing.T) {
	client := newScriptClient()
	o, _ := newTestOrchestrator(t, client, nil)

	plan := &types.ProjectPlan{
		ProjectName: "cycle",
		Tasks: []types.AgentTask{
			{ID: 1, Title: "a", AgentType: "coder", Priority: types.PriorityHigh, Dependencies: []int{2}},
			{ID: 2, Title: "b", AgentType: "coder", Priority: types.PriorityHigh, Dependencies: []int{1}},
			{ID: 3, Title: "c", AgentType: "writer", Priority: types.PriorityLow},
		},
	}
	run := &types.Run{ID: "cycletest"}

	results, err := o.runSpecialists(context.Background(), run, plan, nil, nil, nil, 1)
	if err != nil {
		t.Fatalf("runSpecialists: %v", err)
	}

	for _, id := range []int{1, 2} {
		if results[id].Status != types.TaskSkipped {
			t.Errorf("task %d = %s, want skipped", id, results[id].Status)
		}
		if results[id].Error != "unresolved dependencies" {
			t.Errorf("task %d error = %q", id, results[id].Error)
		}
	}
	if results[3].Status != types.TaskCompleted {
		t.Errorf("task 3 = %s, want completed", results[3].Status)
	}
}

func TestRunSpecialists_UnknownDependencyIgnored(t *testing.T) {
	client := newScriptClient()
	o, _ := newTestOrchestrator(t, client, nil)

	plan := &types.ProjectPlan{
		ProjectName: "ghostdep",
		Tasks: []types.AgentTask{
			{ID: 1, Title: "a", AgentType: "coder", Priority: types.PriorityHigh, Dependencies: []int{99}},
		},
	}
	run := &types.Run{ID: "ghosttest"}

	results, err := o.runSpecialists(context.Background(), run, plan, nil, nil, nil, 1)
	if err != nil {
		t.Fatalf("runSpecialists: %v", err)
	}
	if results[1].Status != types.TaskCompleted {
		t.Errorf("task 1 = %s, want completed despite unknown dependency", results[1].Status)
	}
}

func TestNewRunID_SameSecondGetsSuffix(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := &Orchestrator{now: func() time.Time { return fixed }}

	first := o.newRunID()
	second := o.newRunID()
	third := o.newRunID()

	if first != "20260102_030405" {
		t.Errorf("first = %q", first)
	}
	if second != "20260102_030405_1" || third != "20260102_030405_2" {
		t.Errorf("collisions = %q, %q", second, third)
	}

	o.now = func() time.Time { return fixed.Add(time.Second) }
	if next := o.newRunID(); next != "20260102_030406" {
		t.Errorf("next second = %q", next)
	}
}

func TestPartitionReady(t *testing.T) {
	plan := &types.ProjectPlan{
		Tasks: []types.AgentTask{
			{ID: 1}, {ID: 2, Dependencies: []int{1}}, {ID: 3, Dependencies: []int{1}}, {ID: 4},
		},
	}
	pending := map[int]types.AgentTask{
		2: {ID: 2, Dependencies: []int{1}},
		3: {ID: 3, Dependencies: []int{1}},
		4: {ID: 4},
	}

	// Nothing finished yet: only the dependency-free task is ready.
	ready, blocked := partitionReady("t", plan, pending, map[int]types.AgentResult{})
	if len(ready) != 1 || ready[0].ID != 4 {
		t.Fatalf("ready = %+v, want task 4", ready)
	}
	if len(blocked) != 0 {
		t.Fatalf("blocked = %+v, want none", blocked)
	}

	// Task 1 failed: both dependents are doomed.
	results := map[int]types.AgentResult{
		1: {TaskID: 1, Status: types.TaskFailed},
	}
	ready, blocked = partitionReady("t", plan, pending, results)
	if len(ready) != 1 || ready[0].ID != 4 {
		t.Fatalf("ready = %+v", ready)
	}
	if len(blocked) != 2 {
		t.Fatalf("blocked = %+v, want tasks 2 and 3", blocked)
	}

	// Task 1 completed: everything is ready.
	results[1] = types.AgentResult{TaskID: 1, Status: types.TaskCompleted}
	ready, blocked = partitionReady("t", plan, pending, results)
	if len(ready) != 3 || len(blocked) != 0 {
		t.Fatalf("ready = %+v, blocked = %+v", ready, blocked)
	}
}

func TestFixTasks_UnknownTaskIDIgnored(t *testing.T) {
	client := newScriptClient()
	client.verdicts = []string{
		`{"status": "needs_phase2_modifications", "errors": ["broken"], "specific_tasks_to_fix": [1, 42]}`,
		verdictPass,
	}
	o, _ := newTestOrchestrator(t, client, nil)

	_, err := o.ProcessProject(context.Background(), types.NewProjectBrief("calc", "cli"))
	if err != nil {
		t.Fatalf("ProcessProject: %v", err)
	}
	// Task 42 is not in the plan; only task 1 re-runs.
	if got := client.callCount("coder"); got != 2 {
		t.Errorf("coder called %d times, want 2", got)
	}
}

func TestSortedResultsOrdersByTaskID(t *testing.T) {
	results := map[int]types.AgentResult{
		3: {TaskID: 3, Agent: types.AgentWriter, Status: types.TaskCompleted},
		1: {TaskID: 1, Agent: types.AgentCoder, Status: types.TaskCompleted},
		2: {TaskID: 2, Agent: types.AgentDesigner, Status: types.TaskFailed},
	}
	want := []types.AgentResult{
		{TaskID: 1, Agent: types.AgentCoder, Status: types.TaskCompleted},
		{TaskID: 2, Agent: types.AgentDesigner, Status: types.TaskFailed},
		{TaskID: 3, Agent: types.AgentWriter, Status: types.TaskCompleted},
	}
	if diff := cmp.Diff(want, sortedResults(results)); diff != "" {
		t.Errorf("sortedResults mismatch (-want +got):\n%s", diff)
	}
}

func TestReloadSwapsTunables(t *testing.T) {
	o, _ := newTestOrchestrator(t, newScriptClient(), nil)

	next := config.DefaultConfig()
	next.Pipeline.MaxIterations = 7
	next.Pipeline.PhaseTimeout = "45s"
	o.Reload(next)

	if got := o.iterationBudget(); got != 7 {
		t.Errorf("iteration budget = %d, want 7", got)
	}
	if got := o.phaseDeadline(); got != 45*time.Second {
		t.Errorf("phase deadline = %v, want 45s", got)
	}
}
