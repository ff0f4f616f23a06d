package models

// AgentSpec describes one specialist agent available to the Goal Planner
// and DAG Executor. The registry that holds these is populated once at
// startup and never mutated afterward (see pkg/registry).
type AgentSpec struct {
	ID              string
	Description     string
	Capabilities    []string
	MinimumUserRole Role
}

// CatalogLine renders the agent the way the Goal Planner's decomposition
// prompt expects: "- {id}: {description} (capabilities: a, b, c)".
func (a AgentSpec) CatalogLine() string {
	line := "- " + a.ID + ": " + a.Description
	if len(a.Capabilities) > 0 {
		line += " (capabilities: "
		for i, c := range a.Capabilities {
			if i > 0 {
				line += ", "
			}
			line += c
		}
		line += ")"
	}
	return line
}
