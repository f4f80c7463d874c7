// Package registry resolves, per (tool, agent), which tool is visible
// and which policy governs the pair. Policy precedence is fixed:
// tool-level, then agent-level, then the first group (by membership
// order) that defines one.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/wardenlabs/warden/internal/engine"
)

// Registration is a tool registered for governed access. A registration
// with no allow-lists is public to every agent.
type Registration struct {
	Name          string
	Tool          any // opaque handle returned to authorized callers
	Policy        engine.Policy
	AllowedAgents map[string]struct{}
	AllowedGroups map[string]struct{}
	ExpiresAt     time.Time // zero value means never expires
	Version       string
	registeredAt  time.Time
}

// Group is a named set of agents with an optional shared policy.
type Group struct {
	Name    string
	Policy  engine.Policy
	Members map[string]struct{}
}

// RegisterOptions carries the optional fields of a registration.
type RegisterOptions struct {
	Policy        engine.Policy
	AllowedAgents []string
	AllowedGroups []string
	ExpiresAt     time.Time
	Version       string
}

// Registry is the in-memory tool/policy registry. All methods are safe
// for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	tools         map[string][]*Registration // name → versions, registration order
	groups        map[string]*Group
	groupOrder    []string // group creation order, for policy precedence
	agentPolicies map[string]engine.Policy

	now func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tools:         make(map[string][]*Registration),
		groups:        make(map[string]*Group),
		agentPolicies: make(map[string]engine.Policy),
		now:           time.Now,
	}
}

// Register stores a tool registration. Re-registering the same
// name+version overwrites the existing entry; a new version appends.
func (r *Registry) Register(name string, tool any, opts RegisterOptions) {
	reg := &Registration{
		Name:          name,
		Tool:          tool,
		Policy:        opts.Policy,
		AllowedAgents: toSet(opts.AllowedAgents),
		AllowedGroups: toSet(opts.AllowedGroups),
		ExpiresAt:     opts.ExpiresAt,
		Version:       opts.Version,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	reg.registeredAt = r.now()

	versions := r.tools[name]
	for i, existing := range versions {
		if existing.Version == reg.Version {
			versions[i] = reg
			return
		}
	}
	r.tools[name] = append(versions, reg)
}

// Unregister removes every version of a tool.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// CreateGroup creates an agent group with an optional shared policy.
// Creating an existing group replaces its policy but keeps its members.
func (r *Registry) CreateGroup(name string, policy engine.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[name]; ok {
		g.Policy = policy
		return
	}
	r.groups[name] = &Group{Name: name, Policy: policy, Members: make(map[string]struct{})}
	r.groupOrder = append(r.groupOrder, name)
}

// AddAgentToGroup adds an agent to a group. Adding to a nonexistent
// group is an explicit error, never a silent success.
func (r *Registry) AddAgentToGroup(agentID, groupName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupName]
	if !ok {
		return fmt.Errorf("group %q does not exist", groupName)
	}
	g.Members[agentID] = struct{}{}
	return nil
}

// SetAgentPolicy sets an agent-level policy override.
func (r *Registry) SetAgentPolicy(agentID string, policy engine.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agentPolicies[agentID] = policy
}

// Get returns the tool handle for the most recently registered version
// the agent may access, or nil when the tool is unknown, expired, or
// the agent is not authorized.
func (r *Registry) Get(name, agentID string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg := r.latestLocked(name)
	if reg == nil || !r.accessibleLocked(reg, agentID) {
		return nil
	}
	return reg.Tool
}

// GetVersion returns the tool handle for one specific version, applying
// the identical access check scoped to that version.
func (r *Registry) GetVersion(name, version, agentID string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.tools[name] {
		if reg.Version == version {
			if r.accessibleLocked(reg, agentID) {
				return reg.Tool
			}
			return nil
		}
	}
	return nil
}

// PolicyFor resolves the effective policy for a (tool, agent) pair:
// tool policy, else agent policy, else the first group (by creation
// order) the agent belongs to that defines one. Returns nil when no
// policy applies; the caller decides the fallback.
func (r *Registry) PolicyFor(toolName, agentID string) engine.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg := r.latestLocked(toolName)
	if reg == nil {
		return nil
	}
	if reg.Policy != nil {
		return reg.Policy
	}
	if p, ok := r.agentPolicies[agentID]; ok {
		return p
	}
	for _, groupName := range r.groupOrder {
		g := r.groups[groupName]
		if _, member := g.Members[agentID]; member && g.Policy != nil {
			return g.Policy
		}
	}
	return nil
}

// ListForAgent returns every tool name visible to the agent under the
// same access rule Get applies.
func (r *Registry) ListForAgent(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name := range r.tools {
		if reg := r.latestLocked(name); reg != nil && r.accessibleLocked(reg, agentID) {
			names = append(names, name)
		}
	}
	return names
}

// latestLocked returns the most recently registered, unexpired version.
func (r *Registry) latestLocked(name string) *Registration {
	versions := r.tools[name]
	for i := len(versions) - 1; i >= 0; i-- {
		if !r.expiredLocked(versions[i]) {
			return versions[i]
		}
	}
	return nil
}

func (r *Registry) expiredLocked(reg *Registration) bool {
	return !reg.ExpiresAt.IsZero() && r.now().After(reg.ExpiresAt)
}

func (r *Registry) accessibleLocked(reg *Registration, agentID string) bool {
	if r.expiredLocked(reg) {
		return false
	}
	if len(reg.AllowedAgents) == 0 && len(reg.AllowedGroups) == 0 {
		return true
	}
	if _, ok := reg.AllowedAgents[agentID]; ok {
		return true
	}
	for groupName := range reg.AllowedGroups {
		if g, ok := r.groups[groupName]; ok {
			if _, member := g.Members[agentID]; member {
				return true
			}
		}
	}
	return false
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
