package executor

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/eap/pkg/models"
)

type recordingRunner struct {
	mu        sync.Mutex
	seen      []string
	failTasks map[string]bool
	contexts  map[string]string
}

func newRecordingRunner(failTasks ...string) *recordingRunner {
	f := make(map[string]bool, len(failTasks))
	for _, id := range failTasks {
		f[id] = true
	}
	return &recordingRunner{failTasks: f, contexts: make(map[string]string)}
}

func (r *recordingRunner) RunTask(ctx context.Context, node *models.TaskNode, dependencyContext string) (*models.TaskResult, error) {
	r.mu.Lock()
	r.seen = append(r.seen, node.ID)
	r.contexts[node.ID] = dependencyContext
	r.mu.Unlock()

	if r.failTasks[node.ID] {
		return nil, fmt.Errorf("simulated failure for %s", node.ID)
	}
	return &models.TaskResult{Content: "result for " + node.ID}, nil
}

func graph(nodes ...*models.TaskNode) *models.TaskGraph {
	return models.NewTaskGraph("test goal", nodes)
}

func TestExecuteGraph_LinearChainCompletesInOrder(t *testing.T) {
	g := graph(
		&models.TaskNode{ID: "a"},
		&models.TaskNode{ID: "b", Dependencies: []string{"a"}},
		&models.TaskNode{ID: "c", Dependencies: []string{"b"}},
	)
	runner := newRecordingRunner()
	e := New(runner)

	nodes, err := e.ExecuteGraph(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	for _, n := range nodes {
		assert.Equal(t, models.TaskComplete, n.Status)
	}
	assert.Equal(t, []string{"a", "b", "c"}, runner.seen)
}

func TestExecuteGraph_ParallelWaveRunsConcurrently(t *testing.T) {
	g := graph(
		&models.TaskNode{ID: "root"},
		&models.TaskNode{ID: "branch-a", Dependencies: []string{"root"}},
		&models.TaskNode{ID: "branch-b", Dependencies: []string{"root"}},
		&models.TaskNode{ID: "join", Dependencies: []string{"branch-a", "branch-b"}},
	)
	runner := newRecordingRunner()
	e := New(runner)

	nodes, err := e.ExecuteGraph(context.Background(), g)
	require.NoError(t, err)
	assert.Len(t, nodes, 4)
	assert.Contains(t, runner.contexts["join"], "branch-a")
	assert.Contains(t, runner.contexts["join"], "branch-b")
}

func TestExecuteGraph_FailureSkipsDependents(t *testing.T) {
	g := graph(
		&models.TaskNode{ID: "a"},
		&models.TaskNode{ID: "b", Dependencies: []string{"a"}},
	)
	runner := newRecordingRunner("a")
	e := New(runner)

	nodes, err := e.ExecuteGraph(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	byID := make(map[string]*models.TaskNode)
	for _, n := range nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, models.TaskFailed, byID["a"].Status)
	assert.Equal(t, models.TaskFailed, byID["b"].Status)
	assert.Contains(t, byID["b"].Result.Error, "skipped")

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.NotContains(t, runner.seen, "b")
}

func TestExecuteGraph_RejectsInvalidGraph(t *testing.T) {
	g := graph(
		&models.TaskNode{ID: "a", Dependencies: []string{"b"}},
		&models.TaskNode{ID: "b", Dependencies: []string{"a"}},
	)
	e := New(newRecordingRunner())

	_, err := e.ExecuteGraph(context.Background(), g)
	assert.Error(t, err)
}

func TestDependencyContext_EmptyWithoutDependencies(t *testing.T) {
	node := &models.TaskNode{ID: "solo"}
	assert.Empty(t, dependencyContext(node, nil))
}
