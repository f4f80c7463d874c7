package api

import (
	"time"
)

// --- POST /v1/evaluate request/response ---

// EvaluateRequest is the JSON body for POST /v1/evaluate. AgentID is
// taken from the authenticated API key, never from the body.
type EvaluateRequest struct {
	ToolName      string         `json:"tool_name"`
	FunctionName  string         `json:"function_name,omitempty"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// EvaluateResponse is the decision returned to the calling agent.
type EvaluateResponse struct {
	Allow             bool           `json:"allow"`
	Reason            string         `json:"reason"`
	ModifiedArguments map[string]any `json:"modified_arguments,omitempty"`
	CorrelationID     string         `json:"correlation_id"`
	LatencyMs         float64        `json:"latency_ms"`
}

// --- Agent CRUD ---

// CreateAgentReq is the JSON body for POST /api/warden/agents.
type CreateAgentReq struct {
	Name string `json:"name"`
}

// CreateAgentResp includes the plaintext API key (shown once).
type CreateAgentResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKey       string    `json:"api_key"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	CreatedAt    time.Time `json:"created_at"`
}

// UpdateAgentReq is the JSON body for PATCH /api/warden/agents/{id}.
type UpdateAgentReq struct {
	Name              *string `json:"name,omitempty"`
	MaxCallsPerMinute *int    `json:"max_calls_per_minute,omitempty"`
	QuotaMaxActions   *int    `json:"quota_max_actions,omitempty"`
	QuotaWindowHours  *int    `json:"quota_window_hours,omitempty"`
}

// AgentResp mirrors an agents row (no plaintext key, no hash).
type AgentResp struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	APIKeyPrefix      string    `json:"api_key_prefix"`
	MaxCallsPerMinute *int      `json:"max_calls_per_minute"`
	QuotaMaxActions   *int      `json:"quota_max_actions"`
	QuotaWindowHours  *int      `json:"quota_window_hours"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Kill switch ---

// KillSwitchReq is the JSON body for POST /api/warden/killswitch/activate
// and /deactivate.
type KillSwitchReq struct {
	ActivatedBy string `json:"activated_by"`
	Reason      string `json:"reason,omitempty"`
}

// KillSwitchResp reports the current switch state.
type KillSwitchResp struct {
	Active      bool       `json:"active"`
	ActivatedBy string     `json:"activated_by,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// --- Approvals ---

// ApprovalResp mirrors an in-memory approval request.
type ApprovalResp struct {
	ID              string         `json:"id"`
	AgentID         string         `json:"agent_id"`
	ToolName        string         `json:"tool_name"`
	FunctionName    string         `json:"function_name"`
	Arguments       map[string]any `json:"arguments"`
	Justification   string         `json:"justification,omitempty"`
	RiskLevel       string         `json:"risk_level,omitempty"`
	Status          string         `json:"status"`
	Approver        string         `json:"approver,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	DecidedAt       *time.Time     `json:"decided_at,omitempty"`
}

// DecideApprovalReq is the JSON body for approve/reject endpoints.
type DecideApprovalReq struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason,omitempty"`
}

// --- Tools & metrics ---

// ToolListResp lists the tools visible to an agent.
type ToolListResp struct {
	AgentID string   `json:"agent_id"`
	Tools   []string `json:"tools"`
}

// UsageResp holds per (agent, tool) decision counters.
type UsageResp struct {
	AgentID string `json:"agent_id"`
	Tool    string `json:"tool"`
	Allowed uint64 `json:"allowed"`
	Denied  uint64 `json:"denied"`
}

// --- Decision events ---

// DecisionEventResp mirrors a ClickHouse decision_events row.
type DecisionEventResp struct {
	Timestamp     time.Time      `json:"timestamp"`
	AgentID       string         `json:"agent_id"`
	Tool          string         `json:"tool"`
	Function      string         `json:"function"`
	Arguments     map[string]any `json:"arguments"`
	Allow         bool           `json:"allow"`
	Reason        string         `json:"reason"`
	DurationMs    float64        `json:"duration_ms"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// EventListResp is a page of decision events.
type EventListResp struct {
	Events   []DecisionEventResp `json:"events"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
