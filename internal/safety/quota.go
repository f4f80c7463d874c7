package safety

import (
	"sync"
	"time"
)

// QuotaConfig caps an agent's total actions within a rolling window.
type QuotaConfig struct {
	MaxActions  int
	WindowHours int
}

// DefaultQuota is applied to agents with no explicit quota.
func DefaultQuota() QuotaConfig {
	return QuotaConfig{MaxActions: 1000, WindowHours: 24}
}

type usageEntry struct {
	at   time.Time
	tool string
}

// ledger tracks one agent's usage. Per-agent locking keeps unrelated
// agents from contending.
type ledger struct {
	mu      sync.Mutex
	entries []usageEntry
}

// QuotaManager enforces rolling-window action caps per agent.
type QuotaManager struct {
	defaultQuota QuotaConfig

	mu      sync.Mutex
	quotas  map[string]QuotaConfig
	ledgers map[string]*ledger

	now func() time.Time
}

// NewQuotaManager creates a manager with the given default quota.
func NewQuotaManager(defaultQuota QuotaConfig) *QuotaManager {
	if defaultQuota.MaxActions == 0 {
		defaultQuota = DefaultQuota()
	}
	return &QuotaManager{
		defaultQuota: defaultQuota,
		quotas:       make(map[string]QuotaConfig),
		ledgers:      make(map[string]*ledger),
		now:          time.Now,
	}
}

// SetQuota overrides the quota for a single agent.
func (qm *QuotaManager) SetQuota(agentID string, quota QuotaConfig) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	qm.quotas[agentID] = quota
}

func (qm *QuotaManager) quotaFor(agentID string) QuotaConfig {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	if q, ok := qm.quotas[agentID]; ok {
		return q
	}
	return qm.defaultQuota
}

func (qm *QuotaManager) ledgerFor(agentID string) *ledger {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	l, ok := qm.ledgers[agentID]
	if !ok {
		l = &ledger{}
		qm.ledgers[agentID] = l
	}
	return l
}

// prune drops entries older than the rolling window. Caller holds l.mu.
func prune(l *ledger, cutoff time.Time) {
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}

// Check reports whether the agent has quota left without consuming any.
func (qm *QuotaManager) Check(agentID, toolName string) bool {
	quota := qm.quotaFor(agentID)
	l := qm.ledgerFor(agentID)

	l.mu.Lock()
	defer l.mu.Unlock()
	prune(l, qm.now().Add(-time.Duration(quota.WindowHours)*time.Hour))
	return len(l.entries) < quota.MaxActions
}

// Consume records one action if the agent is within quota. The check and
// the append are a single critical section per agent.
func (qm *QuotaManager) Consume(agentID, toolName string) bool {
	quota := qm.quotaFor(agentID)
	l := qm.ledgerFor(agentID)

	l.mu.Lock()
	defer l.mu.Unlock()
	now := qm.now()
	prune(l, now.Add(-time.Duration(quota.WindowHours)*time.Hour))
	if len(l.entries) >= quota.MaxActions {
		return false
	}
	l.entries = append(l.entries, usageEntry{at: now, tool: toolName})
	return true
}

// Remaining returns how many actions the agent has left in the window.
func (qm *QuotaManager) Remaining(agentID string) int {
	quota := qm.quotaFor(agentID)
	l := qm.ledgerFor(agentID)

	l.mu.Lock()
	defer l.mu.Unlock()
	prune(l, qm.now().Add(-time.Duration(quota.WindowHours)*time.Hour))
	if rem := quota.MaxActions - len(l.entries); rem > 0 {
		return rem
	}
	return 0
}

// Reset clears the usage ledger for an agent. For tests.
func (qm *QuotaManager) Reset(agentID string) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	delete(qm.ledgers, agentID)
}
