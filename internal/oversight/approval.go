package oversight

import (
	"reflect"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
	StatusExpired  ApprovalStatus = "expired"
)

// ApprovalRequest represents a request for human approval of a single
// tool invocation. Approved and Rejected are terminal.
type ApprovalRequest struct {
	ID              string
	AgentID         string
	ToolName        string
	FunctionName    string
	Arguments       map[string]any
	Justification   string
	RiskLevel       string
	CreatedAt       time.Time
	Status          ApprovalStatus
	Approver        string
	DecidedAt       time.Time
	RejectionReason string
}

// ApprovalConfig selects which operations require human sign-off.
type ApprovalConfig struct {
	// HighRiskTools require approval by exact tool name.
	HighRiskTools []string
	// HighRiskFunctions require approval when the function name matches
	// any of these regular expressions (matched from the start, like the
	// original high-risk patterns).
	HighRiskFunctions []string
	// OnRequest is invoked synchronously when a new approval request is
	// created, so operators can be notified out-of-band.
	OnRequest func(*ApprovalRequest)
}

// ApprovalWorkflow gates high-risk operations on a human decision.
// Pending requests live in a pending set; terminal requests move to an
// append-only history. IsApproved matches history entries by exact
// agent/tool/function/arguments equality, not by request id.
type ApprovalWorkflow struct {
	mu       sync.RWMutex
	tools    map[string]struct{}
	patterns []*regexp.Regexp
	onReq    func(*ApprovalRequest)
	pending  map[string]*ApprovalRequest
	history  []*ApprovalRequest

	now func() time.Time
}

// NewApprovalWorkflow builds a workflow from the given config.
// Invalid high-risk function patterns are reported as an error up front
// rather than silently never matching.
func NewApprovalWorkflow(cfg ApprovalConfig) (*ApprovalWorkflow, error) {
	tools := make(map[string]struct{}, len(cfg.HighRiskTools))
	for _, t := range cfg.HighRiskTools {
		tools[t] = struct{}{}
	}
	patterns := make([]*regexp.Regexp, 0, len(cfg.HighRiskFunctions))
	for _, p := range cfg.HighRiskFunctions {
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	return &ApprovalWorkflow{
		tools:    tools,
		patterns: patterns,
		onReq:    cfg.OnRequest,
		pending:  make(map[string]*ApprovalRequest),
		now:      time.Now,
	}, nil
}

// RequiresApproval reports whether the operation is configured as
// high-risk, either by tool name or by function name pattern.
func (w *ApprovalWorkflow) RequiresApproval(agentID, toolName, functionName string, arguments map[string]any) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if _, ok := w.tools[toolName]; ok {
		return true
	}
	for _, re := range w.patterns {
		if re.MatchString(functionName) {
			return true
		}
	}
	return false
}

// RequestApproval creates a PENDING request, stores it in the pending
// set, and invokes the notification callback synchronously if set.
func (w *ApprovalWorkflow) RequestApproval(agentID, toolName, functionName string, arguments map[string]any, justification, riskLevel string) *ApprovalRequest {
	if riskLevel == "" {
		riskLevel = "MEDIUM"
	}
	req := &ApprovalRequest{
		ID:            uuid.NewString(),
		AgentID:       agentID,
		ToolName:      toolName,
		FunctionName:  functionName,
		Arguments:     arguments,
		Justification: justification,
		RiskLevel:     riskLevel,
		Status:        StatusPending,
	}

	w.mu.Lock()
	req.CreatedAt = w.now()
	w.pending[req.ID] = req
	cb := w.onReq
	w.mu.Unlock()

	if cb != nil {
		cb(req)
	}
	return req
}

// Approve moves a pending request to APPROVED and relocates it to
// history. Returns false if the id is not pending.
func (w *ApprovalWorkflow) Approve(requestID, approver string) bool {
	return w.decide(requestID, approver, StatusApproved, "")
}

// Reject moves a pending request to REJECTED and relocates it to
// history. Returns false if the id is not pending.
func (w *ApprovalWorkflow) Reject(requestID, approver, reason string) bool {
	return w.decide(requestID, approver, StatusRejected, reason)
}

func (w *ApprovalWorkflow) decide(requestID, approver string, status ApprovalStatus, reason string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	req, ok := w.pending[requestID]
	if !ok {
		return false
	}
	req.Status = status
	req.Approver = approver
	req.DecidedAt = w.now()
	req.RejectionReason = reason
	delete(w.pending, requestID)
	w.history = append(w.history, req)
	return true
}

// IsApproved reports whether history contains an APPROVED request whose
// agent, tool, function and full argument map all compare equal to the
// given values. Any argument difference, relevant or not, misses.
func (w *ApprovalWorkflow) IsApproved(agentID, toolName, functionName string, arguments map[string]any) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, req := range w.history {
		if req.Status == StatusApproved &&
			req.AgentID == agentID &&
			req.ToolName == toolName &&
			req.FunctionName == functionName &&
			reflect.DeepEqual(req.Arguments, arguments) {
			return true
		}
	}
	return false
}

// Status returns the status of a request by id, searching the pending
// set first and then history. The second return is false if unknown.
func (w *ApprovalWorkflow) Status(requestID string) (ApprovalStatus, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if req, ok := w.pending[requestID]; ok {
		return req.Status, true
	}
	for _, req := range w.history {
		if req.ID == requestID {
			return req.Status, true
		}
	}
	return "", false
}

// Pending returns the current pending requests.
func (w *ApprovalWorkflow) Pending() []*ApprovalRequest {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*ApprovalRequest, 0, len(w.pending))
	for _, req := range w.pending {
		out = append(out, req)
	}
	return out
}

// History returns the terminal requests in decision order.
func (w *ApprovalWorkflow) History() []*ApprovalRequest {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*ApprovalRequest, len(w.history))
	copy(out, w.history)
	return out
}

// Reset clears both the pending set and history. For tests.
func (w *ApprovalWorkflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = make(map[string]*ApprovalRequest)
	w.history = nil
}
