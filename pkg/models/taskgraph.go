package models

// TaskStatus is the lifecycle of a single TaskNode: pending -> running ->
// {complete|failed}, except that a task the executor skips because a
// dependency failed goes straight from pending to failed. No other
// transitions are valid.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskComplete  TaskStatus = "complete"
	TaskFailed    TaskStatus = "failed"
)

// TaskResult is the outcome an agent produced for a TaskNode.
type TaskResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// TaskNode is one unit of work in a TaskGraph.
type TaskNode struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	AgentID      string         `json:"agent_id"`
	Dependencies []string       `json:"dependencies"`
	Status       TaskStatus     `json:"status"`
	Result       *TaskResult    `json:"result,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// TaskGraph is a directed acyclic graph of TaskNodes. Edges are always kept
// as the reverse of Dependencies: Edges[x] lists every node that depends
// directly on x, so the DAG Executor can decrement dependents' in-degree in
// O(1) per finished task instead of scanning every node.
type TaskGraph struct {
	Nodes    map[string]*TaskNode `json:"nodes"`
	Edges    map[string][]string  `json:"edges"`
	RootGoal string               `json:"root_goal"`
	Metadata map[string]any       `json:"metadata,omitempty"`
}

// NewTaskGraph builds a TaskGraph from a flat node list, deriving Edges as
// the reverse of each node's Dependencies.
func NewTaskGraph(rootGoal string, nodes []*TaskNode) *TaskGraph {
	g := &TaskGraph{
		Nodes:    make(map[string]*TaskNode, len(nodes)),
		Edges:    make(map[string][]string),
		RootGoal: rootGoal,
		Metadata: map[string]any{},
	}
	for _, n := range nodes {
		g.Nodes[n.ID] = n
	}
	for _, n := range nodes {
		for _, dep := range n.Dependencies {
			g.Edges[dep] = append(g.Edges[dep], n.ID)
		}
	}
	return g
}

// CanonicalNode is the wire-format projection of a TaskNode used by the
// stored plan graph JSON (spec §6): only the first 200 characters of the
// result content are kept, and a nil result becomes a null field.
type CanonicalNode struct {
	ID            string     `json:"id"`
	Description   string     `json:"description"`
	AgentID       string     `json:"agent_id"`
	Dependencies  []string   `json:"dependencies"`
	Status        TaskStatus `json:"status"`
	ResultContent *string    `json:"result_content"`
}

// CanonicalForm renders the graph in the canonical JSON shape spec.md §6
// mandates for persistence.
func (g *TaskGraph) CanonicalForm() map[string]map[string]CanonicalNode {
	nodes := make(map[string]CanonicalNode, len(g.Nodes))
	for id, n := range g.Nodes {
		var content *string
		if n.Result != nil {
			c := n.Result.Content
			if len(c) > 200 {
				c = c[:200]
			}
			content = &c
		}
		nodes[id] = CanonicalNode{
			ID:            n.ID,
			Description:   n.Description,
			AgentID:       n.AgentID,
			Dependencies:  n.Dependencies,
			Status:        n.Status,
			ResultContent: content,
		}
	}
	return map[string]map[string]CanonicalNode{"nodes": nodes}
}
