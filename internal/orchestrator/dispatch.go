package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"symphony/internal/artifact"
	"symphony/internal/logging"
	"symphony/internal/types"
)

// dispatchCounts is the phase2 artifact payload.
type dispatchCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// runSpecialists executes plan tasks in dependency order. Tasks whose
// dependencies are all satisfied run concurrently; the scheduler bounds how
// many provider calls are actually in flight. A failed task does not stop the
// phase, but every task depending on it is skipped.
//
// prior seeds the result set for refinement re-runs; only, when non-nil,
// restricts execution to those task IDs. feedback is handed to every
// executed task.
func (o *Orchestrator) runSpecialists(ctx context.Context, run *types.Run, plan *types.ProjectPlan, prior map[int]types.AgentResult, only map[int]bool, feedback []string, attempt int) (map[int]types.AgentResult, error) {
	results := make(map[int]types.AgentResult, len(plan.Tasks))
	for id, res := range prior {
		if only != nil && only[id] {
			continue
		}
		results[id] = res
	}

	pending := make(map[int]types.AgentTask)
	for _, task := range plan.Tasks {
		if only != nil && !only[task.ID] {
			continue
		}
		pending[task.ID] = task
	}

	logging.Dispatch("run %s: phase 2 attempt %d, dispatching %d of %d tasks", run.ID, attempt, len(pending), len(plan.Tasks))
	o.emit(types.ProgressEvent{
		RunID:   run.ID,
		Phase:   types.PhaseSpecialists,
		Message: fmt.Sprintf("dispatching %d tasks", len(pending)),
	})

	pctx, cancel := context.WithTimeout(ctx, o.phaseDeadline())
	defer cancel()

	var mu sync.Mutex
	started := o.now().UTC()

	for len(pending) > 0 {
		ready, blocked := partitionReady(run.ID, plan, pending, results)

		if len(ready) == 0 && len(blocked) == 0 {
			// No task can make progress: the remaining tasks depend on each
			// other in a cycle.
			for _, task := range sortedTasks(pending) {
				logging.DispatchDebug("run %s: task %d stuck on dependency cycle %v", run.ID, task.ID, task.Dependencies)
				delete(pending, task.ID)
				o.recordTask(run, &mu, results, task, types.AgentResult{
					TaskID: task.ID,
					Agent:  task.Role(),
					Status: types.TaskSkipped,
					Error:  "unresolved dependencies",
				})
			}
			break
		}

		for _, b := range blocked {
			delete(pending, b.task.ID)
			o.recordTask(run, &mu, results, b.task, types.AgentResult{
				TaskID: b.task.ID,
				Agent:  b.task.Role(),
				Status: types.TaskSkipped,
				Error:  b.reason,
			})
		}
		if len(ready) == 0 {
			continue
		}

		sort.Slice(ready, func(i, j int) bool {
			if ri, rj := ready[i].Priority.Rank(), ready[j].Priority.Rank(); ri != rj {
				return ri < rj
			}
			return ready[i].ID < ready[j].ID
		})

		// Workers share one immutable snapshot; every dependency of a ready
		// task is already terminal, so the snapshot is complete for them.
		snapshot := make(map[int]types.AgentResult, len(results))
		for id, res := range results {
			snapshot[id] = res
		}

		g, gctx := errgroup.WithContext(pctx)
		for _, task := range ready {
			delete(pending, task.ID)
			g.Go(func() error {
				agent := o.roster.ForRole(task.Role())
				logging.Dispatch("run %s: task %d (%s, %s) starting", run.ID, task.ID, task.Role(), task.Priority)

				res, err := agent.Execute(gctx, task, types.TaskContext{
					Plan:      plan,
					Completed: snapshot,
					Feedback:  feedback,
				})
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				// Provider failures come back as a recorded failed result and
				// the pipeline keeps going.
				o.recordTask(run, &mu, results, task, res)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			o.recordPhase(run, types.PhaseResult{
				Phase:       types.PhaseSpecialists,
				Attempt:     attempt,
				Status:      types.PhaseFailed,
				Provider:    o.client.Name(),
				LatencyMS:   o.now().UTC().Sub(started).Milliseconds(),
				StartedAt:   started,
				CompletedAt: o.now().UTC(),
				Error:       err.Error(),
			})
			return results, fmt.Errorf("specialist phase: %w", err)
		}
	}

	completed := o.now().UTC()
	counts := tallyResults(plan, results)
	o.recordPhase(run, types.PhaseResult{
		Phase:       types.PhaseSpecialists,
		Attempt:     attempt,
		Status:      types.PhaseSuccess,
		Artifacts:   rawJSON(counts),
		Provider:    o.client.Name(),
		LatencyMS:   completed.Sub(started).Milliseconds(),
		StartedAt:   started,
		CompletedAt: completed,
	})

	logging.Dispatch("run %s: phase 2 done, %d completed / %d failed / %d skipped", run.ID, counts.Completed, counts.Failed, counts.Skipped)
	o.emit(types.ProgressEvent{
		RunID:   run.ID,
		Phase:   types.PhaseSpecialists,
		Message: fmt.Sprintf("%d of %d tasks completed", counts.Completed, counts.Total),
	})
	return results, nil
}

// recordTask stores one task outcome in the shared result set, the run, the
// store, and the project directory.
func (o *Orchestrator) recordTask(run *types.Run, mu *sync.Mutex, results map[int]types.AgentResult, task types.AgentTask, res types.AgentResult) {
	mu.Lock()
	results[task.ID] = res
	run.Tasks = upsertTaskResult(run.Tasks, res)
	mu.Unlock()

	if err := o.store.SaveTaskResult(run.ID, res); err != nil {
		logging.OrchestratorError("run %s: save task %d result: %v", run.ID, task.ID, err)
	}
	o.writeArtifact(run, artifact.TaskFile(task.ID, task.AgentType), res)

	stage := fmt.Sprintf("task %d (%s)", task.ID, task.Role())
	switch res.Status {
	case types.TaskCompleted:
		o.emit(types.ProgressEvent{RunID: run.ID, Phase: types.PhaseSpecialists, Stage: stage, Message: task.Title})
	default:
		o.emit(types.ProgressEvent{RunID: run.ID, Phase: types.PhaseSpecialists, Stage: stage, Message: fmt.Sprintf("%s: %s", res.Status, res.Error)})
	}
}

type blockedTask struct {
	task   types.AgentTask
	reason string
}

// partitionReady splits pending tasks into those whose dependencies are all
// completed and those doomed by a failed or skipped dependency. Dependencies
// on task IDs missing from the plan are ignored. Tasks waiting on a still
// pending dependency land in neither slice.
func partitionReady(runID string, plan *types.ProjectPlan, pending map[int]types.AgentTask, results map[int]types.AgentResult) (ready []types.AgentTask, blocked []blockedTask) {
	for _, task := range sortedTasks(pending) {
		isReady := true
		for _, depID := range task.Dependencies {
			if depID == task.ID {
				continue
			}
			dep, ok := results[depID]
			if !ok {
				if _, inPlan := plan.Task(depID); !inPlan {
					logging.DispatchDebug("run %s: task %d depends on unknown task %d, ignoring", runID, task.ID, depID)
					continue
				}
				isReady = false
				continue
			}
			if dep.Status != types.TaskCompleted {
				blocked = append(blocked, blockedTask{
					task:   task,
					reason: fmt.Sprintf("dependency task %d %s", depID, dep.Status),
				})
				isReady = false
				break
			}
		}
		if isReady {
			ready = append(ready, task)
		}
	}
	// A task can be both not ready and blocked only via the break above, so
	// the two slices never overlap.
	return ready, blocked
}

func sortedTasks(pending map[int]types.AgentTask) []types.AgentTask {
	tasks := make([]types.AgentTask, 0, len(pending))
	for _, t := range pending {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// sortedResults flattens the result map in task ID order for integration.
func sortedResults(results map[int]types.AgentResult) []types.AgentResult {
	out := make([]types.AgentResult, 0, len(results))
	for _, res := range results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

func upsertTaskResult(tasks []types.AgentResult, res types.AgentResult) []types.AgentResult {
	for i, t := range tasks {
		if t.TaskID == res.TaskID {
			tasks[i] = res
			return tasks
		}
	}
	return append(tasks, res)
}

func tallyResults(plan *types.ProjectPlan, results map[int]types.AgentResult) dispatchCounts {
	counts := dispatchCounts{Total: len(plan.Tasks)}
	for _, res := range results {
		switch res.Status {
		case types.TaskCompleted:
			counts.Completed++
		case types.TaskFailed:
			counts.Failed++
		case types.TaskSkipped:
			counts.Skipped++
		}
	}
	return counts
}
