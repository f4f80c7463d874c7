package api

import (
	"net/http"
	"time"

	"github.com/wardenlabs/warden/internal/chread"
	"github.com/wardenlabs/warden/internal/engine"
	"github.com/wardenlabs/warden/internal/oversight"
	"github.com/wardenlabs/warden/internal/registry"
	"github.com/wardenlabs/warden/internal/safety"
	"github.com/wardenlabs/warden/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store      *store.Store
	Engine     *engine.Engine
	Registry   *registry.Registry
	KillSwitch *oversight.KillSwitch
	Approvals  *oversight.ApprovalWorkflow
	Limiter    *safety.RateLimiter
	Quotas     *safety.QuotaManager
	Reader     *chread.Reader // nil if ClickHouse unavailable
	Logger     *zap.Logger
	CacheTTL   time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Decision endpoint (auth required via Bearer wsk_ token)
	mux.HandleFunc("POST /v1/evaluate", deps.authMiddleware(deps.handleEvaluate))
	mux.HandleFunc("GET /v1/tools", deps.authMiddleware(deps.handleListTools))

	// Agent CRUD (no auth yet; dashboard auth comes later)
	mux.HandleFunc("POST /api/warden/agents", deps.handleCreateAgent)
	mux.HandleFunc("GET /api/warden/agents", deps.handleListAgents)
	mux.HandleFunc("GET /api/warden/agents/{agent_id}", deps.handleGetAgent)
	mux.HandleFunc("PATCH /api/warden/agents/{agent_id}", deps.handleUpdateAgent)
	mux.HandleFunc("DELETE /api/warden/agents/{agent_id}", deps.handleDeleteAgent)
	mux.HandleFunc("POST /api/warden/agents/{agent_id}/rotate-key", deps.handleRotateKey)

	// Kill switch (no auth)
	mux.HandleFunc("POST /api/warden/killswitch/activate", deps.handleActivateKillSwitch)
	mux.HandleFunc("POST /api/warden/killswitch/deactivate", deps.handleDeactivateKillSwitch)
	mux.HandleFunc("GET /api/warden/killswitch", deps.handleKillSwitchStatus)

	// Approvals (no auth)
	mux.HandleFunc("GET /api/warden/approvals", deps.handleListApprovals)
	mux.HandleFunc("GET /api/warden/approvals/history", deps.handleApprovalHistory)
	mux.HandleFunc("POST /api/warden/approvals/{request_id}/approve", deps.handleApprove)
	mux.HandleFunc("POST /api/warden/approvals/{request_id}/reject", deps.handleReject)

	// Usage metrics (no auth)
	mux.HandleFunc("GET /api/warden/usage", deps.handleUsage)

	// Decision events & analytics (no auth)
	mux.HandleFunc("GET /api/warden/events", deps.handleListEvents)
	mux.HandleFunc("GET /api/warden/events/{correlation_id}", deps.handleGetEvent)
	mux.HandleFunc("GET /api/warden/analytics", deps.handleGetAnalytics)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}

// applyAgentLimits pushes an agent's stored limit overrides into the
// in-memory limiter and quota manager.
func (d *Dependencies) applyAgentLimits(agent *authAgent) {
	if d.Limiter != nil && agent.MaxCallsPerMinute != nil {
		d.Limiter.SetAgentLimit(agent.ID, *agent.MaxCallsPerMinute, 0)
	}
	if d.Quotas != nil && (agent.QuotaMaxActions != nil || agent.QuotaWindowHours != nil) {
		quota := safety.DefaultQuota()
		if agent.QuotaMaxActions != nil {
			quota.MaxActions = *agent.QuotaMaxActions
		}
		if agent.QuotaWindowHours != nil {
			quota.WindowHours = *agent.QuotaWindowHours
		}
		d.Quotas.SetQuota(agent.ID, quota)
	}
}
