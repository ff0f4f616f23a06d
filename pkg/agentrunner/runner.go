// Package agentrunner implements executor.TaskRunner by dispatching a
// TaskNode to the agent named in its AgentID against the registry catalog,
// using the LLM client to actually produce the task's result.
package agentrunner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/eap/pkg/llm"
	"github.com/codeready-toolchain/eap/pkg/models"
	"github.com/codeready-toolchain/eap/pkg/registry"
)

// Runner dispatches TaskNodes to their assigned agent via the LLM client,
// satisfying executor.TaskRunner.
type Runner struct {
	llmClient *llm.Client
	registry  *registry.Registry
}

// New constructs a Runner.
func New(llmClient *llm.Client, reg *registry.Registry) *Runner {
	return &Runner{llmClient: llmClient, registry: reg}
}

// RunTask executes one TaskNode by prompting the LLM in character as the
// node's assigned agent, with dependencyContext folded in as prior work to
// build on. Unknown agent IDs fail the task rather than falling back to a
// generic persona — a decomposition that names an unregistered agent is a
// planner bug, not a recoverable runtime condition.
func (r *Runner) RunTask(ctx context.Context, node *models.TaskNode, dependencyContext string) (*models.TaskResult, error) {
	spec, ok := r.registry.Get(node.AgentID)
	if !ok {
		return nil, fmt.Errorf("agentrunner: agent %q is not registered", node.AgentID)
	}

	systemPrompt := fmt.Sprintf(
		"You are %s. %s\n\nYou are one agent in a larger task graph. Complete only your assigned task; do not attempt the other tasks.",
		spec.ID, spec.Description,
	)

	userPrompt := node.Description
	if dependencyContext != "" {
		userPrompt = fmt.Sprintf("Context from completed prerequisite tasks:\n%s\n\nYour task: %s", dependencyContext, node.Description)
	}

	resp, err := r.llmClient.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userPrompt},
		},
		Temperature: 0.4,
		MaxTokens:   2048,
	})
	if err != nil {
		slog.Error("agentrunner.task_failed", "task_id", node.ID, "agent_id", node.AgentID, "error", err)
		return nil, fmt.Errorf("agentrunner: agent %q failed task %q: %w", node.AgentID, node.ID, err)
	}

	return &models.TaskResult{Content: llm.ExtractText(resp)}, nil
}
