// Package executor runs a validated TaskGraph to completion: tasks whose
// dependencies are all satisfied run concurrently as a "wave"; once every
// task in a wave has finished, the tasks whose in-degree count has dropped to
// zero form the next wave. It
// never decides what a task graph means — planner.ValidateGraph is always
// called first — only how to run one.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/codeready-toolchain/eap/pkg/models"
	"github.com/codeready-toolchain/eap/pkg/planner"
)

var tracer = otel.Tracer("github.com/codeready-toolchain/eap/pkg/executor")

// TaskRunner executes a single task given the text assembled from its
// already-completed dependencies. Implementations dispatch to the agent
// named by node.AgentID; the executor itself knows nothing about agent
// invocation mechanics.
type TaskRunner interface {
	RunTask(ctx context.Context, node *models.TaskNode, dependencyContext string) (*models.TaskResult, error)
}

// Executor runs TaskGraphs wave by wave.
type Executor struct {
	runner TaskRunner
}

// New constructs an Executor bound to runner.
func New(runner TaskRunner) *Executor {
	return &Executor{runner: runner}
}

// ExecuteGraph runs every task in graph to completion (or failure) and
// returns the nodes wave by wave, sorted by task ID within each wave. graph
// must already satisfy
// planner.ValidateGraph; ExecuteGraph re-validates and fails fast rather
// than risk an unbounded wait on a cyclic or malformed graph.
//
// A task's own failure does not abort its siblings in the same wave or
// unrelated branches of the graph — only tasks that transitively depend on
// the failed task are skipped, since their dependency context can never be
// satisfied. Skipped tasks are marked TaskFailed with a descriptive error so
// callers can tell a real execution failure from an upstream one.
func (e *Executor) ExecuteGraph(ctx context.Context, graph *models.TaskGraph) ([]*models.TaskNode, error) {
	if err := planner.ValidateGraph(graph); err != nil {
		return nil, fmt.Errorf("executor: invalid task graph: %w", err)
	}

	slog.Info("executor.execute_start", "task_count", len(graph.Nodes), "root_goal", graph.RootGoal)

	inDegree := make(map[string]int, len(graph.Nodes))
	for taskID, node := range graph.Nodes {
		inDegree[taskID] = len(node.Dependencies)
	}

	completed := make(map[string]bool, len(graph.Nodes))
	failed := make(map[string]bool)
	var completedNodes []*models.TaskNode

	wave := 0
	for len(completed) < len(graph.Nodes) {
		ready := readyTasks(graph, inDegree, completed)
		if len(ready) == 0 {
			remaining := remainingTasks(graph, completed)
			slog.Error("executor.execute_deadlock", "remaining_tasks", remaining)
			return completedNodes, fmt.Errorf("executor: deadlock - %d tasks remaining but none ready: %v", len(remaining), remaining)
		}

		wave++
		waveCtx, span := tracer.Start(ctx, "executor.wave", trace.WithAttributes(
			attribute.Int("wave.number", wave),
			attribute.Int("wave.size", len(ready)),
		))
		slog.Info("executor.execute_wave", "wave", wave, "ready_tasks", ready)

		e.runWave(waveCtx, graph, ready, completedNodes, failed)
		span.End()

		for _, taskID := range ready {
			node := graph.Nodes[taskID]
			completed[taskID] = true
			completedNodes = append(completedNodes, node)
			if node.Status == models.TaskFailed {
				failed[taskID] = true
			}

			for _, dependentID := range graph.Edges[taskID] {
				inDegree[dependentID]--
			}
		}
	}

	slog.Info("executor.execute_complete", "total_tasks", len(completedNodes))
	return completedNodes, nil
}

// readyTasks returns the tasks with no unmet dependency that have not yet
// run, in a deterministic (sorted) order so wave composition is
// reproducible across runs of the same graph.
func readyTasks(graph *models.TaskGraph, inDegree map[string]int, completed map[string]bool) []string {
	ready := make([]string, 0)
	for taskID := range graph.Nodes {
		if !completed[taskID] && inDegree[taskID] == 0 {
			ready = append(ready, taskID)
		}
	}
	sort.Strings(ready)
	return ready
}

func remainingTasks(graph *models.TaskGraph, completed map[string]bool) []string {
	remaining := make([]string, 0)
	for taskID := range graph.Nodes {
		if !completed[taskID] {
			remaining = append(remaining, taskID)
		}
	}
	sort.Strings(remaining)
	return remaining
}

// runWave executes every task in ready concurrently and blocks until all
// have finished, fanning results back in via a WaitGroup. A task whose
// dependencies include an upstream failure is skipped without ever calling
// the runner, since its dependency context can't be assembled correctly.
func (e *Executor) runWave(ctx context.Context, graph *models.TaskGraph, ready []string, completedNodes []*models.TaskNode, failed map[string]bool) {
	var wg sync.WaitGroup

	for _, taskID := range ready {
		node := graph.Nodes[taskID]

		if dependsOnFailure(node, failed) {
			slog.Warn("executor.task_skipped", "task_id", taskID, "reason", "dependency failed")
			node.Status = models.TaskFailed
			node.Result = &models.TaskResult{Error: "skipped: a dependency failed"}
			continue
		}

		wg.Add(1)
		go func(node *models.TaskNode) {
			defer wg.Done()
			e.runTask(ctx, node, completedNodes)
		}(node)
	}

	wg.Wait()
}

func dependsOnFailure(node *models.TaskNode, failed map[string]bool) bool {
	for _, dep := range node.Dependencies {
		if failed[dep] {
			return true
		}
	}
	return false
}

// runTask executes one task, assembling its dependency context from the
// results of tasks already completed in prior waves.
func (e *Executor) runTask(ctx context.Context, node *models.TaskNode, completedNodes []*models.TaskNode) {
	slog.Info("executor.task_start", "task_id", node.ID, "agent_id", node.AgentID)
	node.Status = models.TaskRunning

	depContext := dependencyContext(node, completedNodes)

	result, err := e.runner.RunTask(ctx, node, depContext)
	if err != nil {
		slog.Error("executor.task_failed", "task_id", node.ID, "error", err)
		node.Status = models.TaskFailed
		node.Result = &models.TaskResult{Error: err.Error()}
		return
	}

	node.Status = models.TaskComplete
	node.Result = result
	slog.Info("executor.task_complete", "task_id", node.ID)
}

// dependencyContext renders the results of node's direct dependencies as
// the text block the task runner folds into its prompt, one
// "Dependency X (agent) result:" block per dependency.
func dependencyContext(node *models.TaskNode, completedNodes []*models.TaskNode) string {
	if len(node.Dependencies) == 0 {
		return ""
	}
	byID := make(map[string]*models.TaskNode, len(completedNodes))
	for _, n := range completedNodes {
		byID[n.ID] = n
	}

	out := ""
	for i, depID := range node.Dependencies {
		dep, ok := byID[depID]
		if !ok {
			continue
		}
		content := "No result"
		if dep.Result != nil {
			content = dep.Result.Content
		}
		if i > 0 {
			out += "\n\n"
		}
		out += fmt.Sprintf("Dependency %s (%s) result:\n%s", dep.ID, dep.AgentID, content)
	}
	return out
}
