package engine

import "sync"

// ToolUsage aggregates decision counts for one (agent, tool) pair.
type ToolUsage struct {
	AgentID string `json:"agent_id"`
	Tool    string `json:"tool"`
	Allowed uint64 `json:"allowed"`
	Denied  uint64 `json:"denied"`
}

// Metrics counts evaluations per (agent, tool) pair. Safe for
// concurrent use.
type Metrics struct {
	mu     sync.Mutex
	counts map[string]*ToolUsage
}

// NewMetrics creates empty counters.
func NewMetrics() *Metrics {
	return &Metrics{counts: make(map[string]*ToolUsage)}
}

// Record counts one decision outcome.
func (m *Metrics) Record(agentID, tool string, allowed bool) {
	key := agentID + ":" + tool

	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.counts[key]
	if !ok {
		u = &ToolUsage{AgentID: agentID, Tool: tool}
		m.counts[key] = u
	}
	if allowed {
		u.Allowed++
	} else {
		u.Denied++
	}
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() []ToolUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ToolUsage, 0, len(m.counts))
	for _, u := range m.counts {
		out = append(out, *u)
	}
	return out
}

// Reset clears all counters. For tests.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]*ToolUsage)
}
