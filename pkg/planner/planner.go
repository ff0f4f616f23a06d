// Package planner decomposes a high-level user goal into a dependency graph
// of tasks, using the LLM to propose tasks and agent assignments, and
// provides the graph-validation and topological-ordering primitives the
// executor package builds on.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/eap/pkg/llm"
	"github.com/codeready-toolchain/eap/pkg/models"
	"github.com/codeready-toolchain/eap/pkg/registry"
)

// ActiveGoalsReader is the narrow slice of the goal service the planner
// needs to inject existing-goal context into a decomposition prompt. Kept
// as an interface here (rather than importing pkg/goal directly) to avoid a
// dependency cycle, since pkg/goal has no reason to import pkg/planner.
type ActiveGoalsReader interface {
	GetActiveGoals(ctx context.Context, tenantID, userID uuid.UUID) ([]*models.UserGoal, error)
}

// GoalContext carries the optional tenant/user scoping used to load existing
// goals for prompt context. RequestingUserID, when set, must equal UserID or
// the existing-goals lookup is skipped entirely — this is the same
// cross-user guard original_source's goal_planner enforces before it will
// read another user's goal history.
type GoalContext struct {
	TenantID         uuid.UUID
	UserID           uuid.UUID
	RequestingUserID *uuid.UUID
}

// Planner decomposes goals into TaskGraphs via the LLM and validates the
// resulting DAG.
type Planner struct {
	llmClient *llm.Client
	registry  *registry.Registry
	goals     ActiveGoalsReader
}

// New constructs a Planner. goals may be nil, in which case existing-goal
// context is never injected into decomposition prompts.
func New(llmClient *llm.Client, reg *registry.Registry, goals ActiveGoalsReader) *Planner {
	return &Planner{llmClient: llmClient, registry: reg, goals: goals}
}

const decompositionSystemPrompt = "You are a strategic planning assistant. Always respond with valid JSON only."

const decompositionPromptTemplate = `You are a strategic planning assistant. Decompose this high-level goal into a task dependency graph.

Goal: %s

Available agents and their capabilities:
%s
%s
Instructions:
1. Break the goal into 3-8 concrete tasks
2. For each task, specify:
   - A clear description (what needs to be done)
   - Which agent should handle it (agent_id from the list above)
   - Which other tasks it depends on (dependencies)
3. Create a valid directed acyclic graph (DAG) - no cycles!
4. Tasks with no dependencies can run in parallel
5. Tasks should be granular and specific

Respond in this JSON format:
{
  "tasks": [
    {
      "id": "task_1",
      "description": "Task description",
      "agent_id": "agent_id_from_list",
      "dependencies": []
    },
    {
      "id": "task_2",
      "description": "Another task",
      "agent_id": "agent_id_from_list",
      "dependencies": ["task_1"]
    }
  ]
}

Respond ONLY with valid JSON, no additional text.`

type decompositionTask struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	AgentID      string   `json:"agent_id"`
	Dependencies []string `json:"dependencies"`
}

type decompositionResponse struct {
	Tasks []decompositionTask `json:"tasks"`
}

// Decompose breaks goal into a TaskGraph using the LLM, scoping agent
// eligibility to role. When gc is non-nil, existing active goals for
// gc.UserID are loaded (subject to the cross-user guard) and folded into
// the decomposition prompt so the planner avoids duplicating in-flight
// work. A malformed LLM response never fails the call: it falls back to a
// single-task graph wrapping the raw goal text, same as the system this was
// modeled on.
func (p *Planner) Decompose(ctx context.Context, goal string, role models.Role, gc *GoalContext) (*models.TaskGraph, error) {
	slog.Info("planner.decompose_start", "goal_length", len(goal))

	agents := p.registry.EligibleFor(role)
	agentDescriptions := registry.CatalogText(agents)

	existingGoalsSection := p.existingGoalsSection(ctx, gc)

	prompt := fmt.Sprintf(decompositionPromptTemplate, goal, agentDescriptions, existingGoalsSection)

	resp, err := p.llmClient.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: decompositionSystemPrompt},
			{Role: llm.RoleUser, Content: prompt},
		},
		Temperature: 0.5,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, fmt.Errorf("planner: decomposition request failed: %w", err)
	}

	text := llm.ExtractText(resp)
	var parsed decompositionResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		slog.Error("planner.decompose_json_failed", "error", err)
		return fallbackGraph(goal, agents, err), nil
	}

	if schema, schemaErr := compileDecompositionSchema(); schemaErr == nil {
		var raw any
		if json.Unmarshal([]byte(text), &raw) == nil {
			if verr := schema.Validate(raw); verr != nil {
				slog.Error("planner.decompose_schema_invalid", "error", verr)
				return fallbackGraph(goal, agents, verr), nil
			}
		}
	}

	nodes := make([]*models.TaskNode, 0, len(parsed.Tasks))
	for _, t := range parsed.Tasks {
		nodes = append(nodes, &models.TaskNode{
			ID:           t.ID,
			Description:  t.Description,
			AgentID:      t.AgentID,
			Dependencies: t.Dependencies,
			Status:       models.TaskPending,
		})
	}

	graph := models.NewTaskGraph(goal, nodes)
	graph.Metadata["decomposition_method"] = "llm"
	graph.Metadata["agent_count"] = len(agents)

	slog.Info("planner.decompose_complete", "task_count", len(graph.Nodes))
	return graph, nil
}

// fallbackGraph builds the single-task degenerate graph used when the LLM's
// response can't be parsed or doesn't match the expected shape.
func fallbackGraph(goal string, agents []models.AgentSpec, cause error) *models.TaskGraph {
	agentID := "default"
	if len(agents) > 0 {
		agentID = agents[0].ID
	}
	graph := models.NewTaskGraph(goal, []*models.TaskNode{{
		ID:          "task_1",
		Description: goal,
		AgentID:     agentID,
		Status:      models.TaskPending,
	}})
	graph.Metadata["decomposition_method"] = "fallback"
	graph.Metadata["error"] = cause.Error()
	return graph
}

// existingGoalsSection renders the existing-active-goals block injected
// into the decomposition prompt, or "" when there is none to show. The
// cross-user guard mirrors the one in the system this planner generalizes:
// a mismatched RequestingUserID skips the lookup and logs the attempt
// rather than silently leaking another user's goal history into this
// user's prompt.
func (p *Planner) existingGoalsSection(ctx context.Context, gc *GoalContext) string {
	if gc == nil || p.goals == nil {
		return ""
	}
	if gc.RequestingUserID != nil && *gc.RequestingUserID != gc.UserID {
		slog.Warn("planner.cross_user_access_denied", "user_id", gc.UserID, "requesting_user_id", *gc.RequestingUserID)
		return ""
	}

	goals, err := p.goals.GetActiveGoals(ctx, gc.TenantID, gc.UserID)
	if err != nil {
		slog.Warn("planner.existing_goals_load_failed", "error", err)
		return ""
	}
	if len(goals) == 0 {
		return ""
	}

	section := "\nExisting user goals (already in progress):\n"
	for _, g := range goals {
		progress := "none"
		if len(g.ProgressNotes) > 0 {
			progress = g.ProgressNotes[len(g.ProgressNotes)-1]
		}
		section += fmt.Sprintf("Existing goal: %s (progress: %s)\n", g.GoalText, progress)
	}
	section += "\nWhen creating tasks:\n" +
		"- Avoid duplicating work already captured in progress notes above\n" +
		"- Align new sub-tasks with existing goals where relevant\n" +
		"- Reference completed progress if it can be built upon\n"
	return section
}

// ValidateGraph reports whether graph is a well-formed DAG: every
// dependency must reference a node that exists, and the dependency edges
// must admit a topological order (no cycles).
func ValidateGraph(graph *models.TaskGraph) error {
	for taskID, node := range graph.Nodes {
		for _, depID := range node.Dependencies {
			if _, ok := graph.Nodes[depID]; !ok {
				return fmt.Errorf("planner: task %q depends on missing task %q", taskID, depID)
			}
		}
	}
	if _, err := TopologicalSort(graph); err != nil {
		return err
	}
	return nil
}

// TopologicalSort orders graph's tasks via Kahn's algorithm, returning an
// error if the dependency edges contain a cycle.
func TopologicalSort(graph *models.TaskGraph) ([]string, error) {
	inDegree := make(map[string]int, len(graph.Nodes))
	for taskID, node := range graph.Nodes {
		inDegree[taskID] = len(node.Dependencies)
	}

	queue := make([]string, 0)
	for taskID, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, taskID)
		}
	}

	order := make([]string, 0, len(graph.Nodes))
	for len(queue) > 0 {
		taskID := queue[0]
		queue = queue[1:]
		order = append(order, taskID)

		for _, dependentID := range graph.Edges[taskID] {
			inDegree[dependentID]--
			if inDegree[dependentID] == 0 {
				queue = append(queue, dependentID)
			}
		}
	}

	if len(order) != len(graph.Nodes) {
		return nil, fmt.Errorf("planner: graph contains a cycle - sorted %d of %d tasks", len(order), len(graph.Nodes))
	}
	return order, nil
}

// GetExecutionPlan renders a human-readable execution plan for graph, in
// topological order.
func GetExecutionPlan(graph *models.TaskGraph) string {
	order, err := TopologicalSort(graph)
	if err != nil {
		return fmt.Sprintf("Invalid task graph: %v", err)
	}

	out := fmt.Sprintf("Execution Plan for: %s\n%s\n\n", graph.RootGoal, underline)
	for idx, taskID := range order {
		node := graph.Nodes[taskID]
		deps := "None"
		if len(node.Dependencies) > 0 {
			deps = strings.Join(node.Dependencies, ", ")
		}
		out += fmt.Sprintf("Step %d: %s\n  Description: %s\n  Agent: %s\n  Dependencies: %s\n\n",
			idx+1, taskID, node.Description, node.AgentID, deps)
	}
	out += fmt.Sprintf("Total tasks: %d", len(graph.Nodes))
	return out
}

const underline = "============================================================"
