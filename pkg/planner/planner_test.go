package planner

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/eap/pkg/models"
	"github.com/codeready-toolchain/eap/pkg/registry"
)

func graphFromNodes(nodes ...*models.TaskNode) *models.TaskGraph {
	return models.NewTaskGraph("test goal", nodes)
}

func TestTopologicalSort_LinearChain(t *testing.T) {
	graph := graphFromNodes(
		&models.TaskNode{ID: "a"},
		&models.TaskNode{ID: "b", Dependencies: []string{"a"}},
		&models.TaskNode{ID: "c", Dependencies: []string{"b"}},
	)

	order, err := TopologicalSort(graph)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopologicalSort_DetectsCycle(t *testing.T) {
	graph := graphFromNodes(
		&models.TaskNode{ID: "a", Dependencies: []string{"b"}},
		&models.TaskNode{ID: "b", Dependencies: []string{"a"}},
	)

	_, err := TopologicalSort(graph)
	assert.Error(t, err)
}

func TestValidateGraph_RejectsMissingDependency(t *testing.T) {
	graph := graphFromNodes(
		&models.TaskNode{ID: "a", Dependencies: []string{"ghost"}},
	)

	err := ValidateGraph(graph)
	assert.ErrorContains(t, err, "ghost")
}

func TestValidateGraph_RejectsCycle(t *testing.T) {
	graph := graphFromNodes(
		&models.TaskNode{ID: "a", Dependencies: []string{"b"}},
		&models.TaskNode{ID: "b", Dependencies: []string{"a"}},
	)

	assert.Error(t, ValidateGraph(graph))
}

func TestValidateGraph_AcceptsValidDAG(t *testing.T) {
	graph := graphFromNodes(
		&models.TaskNode{ID: "a"},
		&models.TaskNode{ID: "b", Dependencies: []string{"a"}},
	)

	assert.NoError(t, ValidateGraph(graph))
}

func TestGetExecutionPlan_RendersStepsInOrder(t *testing.T) {
	graph := graphFromNodes(
		&models.TaskNode{ID: "a", Description: "first step", AgentID: "researcher"},
		&models.TaskNode{ID: "b", Description: "second step", AgentID: "writer", Dependencies: []string{"a"}},
	)

	plan := GetExecutionPlan(graph)
	assert.Contains(t, plan, "Execution Plan for: test goal")
	assert.Contains(t, plan, "Step 1: a")
	assert.Contains(t, plan, "Step 2: b")
	assert.Contains(t, plan, "Dependencies: a")
	assert.Contains(t, plan, "Total tasks: 2")
}

func TestGetExecutionPlan_ReportsCycle(t *testing.T) {
	graph := graphFromNodes(
		&models.TaskNode{ID: "a", Dependencies: []string{"b"}},
		&models.TaskNode{ID: "b", Dependencies: []string{"a"}},
	)

	plan := GetExecutionPlan(graph)
	assert.Contains(t, plan, "Invalid task graph")
}

type fakeGoalsReader struct {
	goals []*models.UserGoal
	err   error
}

func (f *fakeGoalsReader) GetActiveGoals(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.UserGoal, error) {
	return f.goals, f.err
}

func TestExistingGoalsSection_SkippedOnCrossUserMismatch(t *testing.T) {
	reader := &fakeGoalsReader{goals: []*models.UserGoal{{GoalText: "ship the thing"}}}
	p := New(nil, registry.New(), reader)

	owner := uuid.New()
	requester := uuid.New()
	gc := &GoalContext{TenantID: uuid.New(), UserID: owner, RequestingUserID: &requester}

	section := p.existingGoalsSection(context.Background(), gc)
	assert.Empty(t, section)
}

func TestExistingGoalsSection_IncludesActiveGoals(t *testing.T) {
	reader := &fakeGoalsReader{goals: []*models.UserGoal{{GoalText: "ship the thing", ProgressNotes: []string{"halfway done"}}}}
	p := New(nil, registry.New(), reader)

	gc := &GoalContext{TenantID: uuid.New(), UserID: uuid.New()}

	section := p.existingGoalsSection(context.Background(), gc)
	assert.Contains(t, section, "ship the thing")
	assert.Contains(t, section, "halfway done")
}

func TestExistingGoalsSection_EmptyWithoutGoalContext(t *testing.T) {
	p := New(nil, registry.New(), nil)
	assert.Empty(t, p.existingGoalsSection(context.Background(), nil))
}

func TestFallbackGraph_UsedOnMalformedJSON(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(models.AgentSpec{ID: "default-agent", MinimumUserRole: models.RoleViewer}))

	graph := fallbackGraph("do the thing", reg.EligibleFor(models.RoleViewer), assert.AnError)
	require.Len(t, graph.Nodes, 1)
	node := graph.Nodes["task_1"]
	require.NotNil(t, node)
	assert.Equal(t, "do the thing", node.Description)
	assert.Equal(t, "default-agent", node.AgentID)
	assert.Equal(t, "fallback", graph.Metadata["decomposition_method"])
}
