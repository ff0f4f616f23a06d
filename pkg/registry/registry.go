// Package registry is the in-memory catalog of agents the platform can
// dispatch tasks to. It is built once at startup from configuration and
// read concurrently afterward; no agent is registered or removed at
// runtime, so reads need no locking once construction is complete.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/codeready-toolchain/eap/pkg/models"
)

// Registry is the read-mostly catalog of known agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]models.AgentSpec
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{agents: make(map[string]models.AgentSpec)}
}

// Register adds an agent spec to the catalog. Returns an error if the
// agent's ID is already registered, since two agents silently sharing an ID
// would make task dispatch ambiguous.
func (r *Registry) Register(spec models.AgentSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("agent spec must have a non-empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[spec.ID]; exists {
		return fmt.Errorf("agent %q already registered", spec.ID)
	}
	r.agents[spec.ID] = spec
	return nil
}

// MustRegister registers spec and panics on error. Intended for use while
// wiring the registry at startup, where a duplicate ID is a programming
// error, not a runtime condition to handle gracefully.
func (r *Registry) MustRegister(spec models.AgentSpec) {
	if err := r.Register(spec); err != nil {
		panic(fmt.Sprintf("registry: %v", err))
	}
}

// Get returns the agent spec for id.
func (r *Registry) Get(id string) (models.AgentSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.agents[id]
	return spec, ok
}

// List returns all registered agent specs sorted by ID.
func (r *Registry) List() []models.AgentSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]models.AgentSpec, 0, len(r.agents))
	for _, spec := range r.agents {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

// EligibleFor returns the agents whose MinimumUserRole is at or below role,
// i.e. the agents a caller with role may be assigned tasks against.
func (r *Registry) EligibleFor(role models.Role) []models.AgentSpec {
	all := r.List()
	eligible := make([]models.AgentSpec, 0, len(all))
	for _, spec := range all {
		if role.AtLeast(spec.MinimumUserRole) {
			eligible = append(eligible, spec)
		}
	}
	return eligible
}

// CatalogText renders the eligible agent catalog as the newline-separated
// text block the goal planner injects into its decomposition prompt.
func CatalogText(specs []models.AgentSpec) string {
	lines := make([]string, 0, len(specs))
	for _, spec := range specs {
		lines = append(lines, spec.CatalogLine())
	}
	return strings.Join(lines, "\n")
}
