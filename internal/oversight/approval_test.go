package oversight

import "testing"

func newTestWorkflow(t *testing.T, cfg ApprovalConfig) *ApprovalWorkflow {
	t.Helper()
	w, err := NewApprovalWorkflow(cfg)
	if err != nil {
		t.Fatalf("NewApprovalWorkflow: %v", err)
	}
	return w
}

func TestApproval_RequiresApprovalByToolName(t *testing.T) {
	w := newTestWorkflow(t, ApprovalConfig{HighRiskTools: []string{"payments"}})

	if !w.RequiresApproval("agent-1", "payments", "transfer", nil) {
		t.Error("payments tool should require approval")
	}
	if w.RequiresApproval("agent-1", "search", "query", nil) {
		t.Error("search tool should not require approval")
	}
}

func TestApproval_RequiresApprovalByFunctionPattern(t *testing.T) {
	w := newTestWorkflow(t, ApprovalConfig{HighRiskFunctions: []string{"delete_.*", "drop_table"}})

	if !w.RequiresApproval("agent-1", "db", "delete_user", nil) {
		t.Error("delete_user should match delete_.*")
	}
	if !w.RequiresApproval("agent-1", "db", "drop_table", nil) {
		t.Error("drop_table should match")
	}
	if w.RequiresApproval("agent-1", "db", "select_rows", nil) {
		t.Error("select_rows should not match")
	}
}

func TestApproval_InvalidPatternIsConstructionError(t *testing.T) {
	_, err := NewApprovalWorkflow(ApprovalConfig{HighRiskFunctions: []string{"[unclosed"}})
	if err == nil {
		t.Error("expected an error for an invalid pattern")
	}
}

func TestApproval_ApproveFlow(t *testing.T) {
	w := newTestWorkflow(t, ApprovalConfig{HighRiskTools: []string{"payments"}})
	args := map[string]any{"amount": 100.0, "currency": "USD"}

	req := w.RequestApproval("agent-1", "payments", "transfer", args, "monthly payout", "HIGH")
	if req.Status != StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if len(w.Pending()) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(w.Pending()))
	}
	if w.IsApproved("agent-1", "payments", "transfer", args) {
		t.Fatal("pending request must not count as approved")
	}

	if !w.Approve(req.ID, "alice") {
		t.Fatal("approve should succeed for a pending id")
	}
	if len(w.Pending()) != 0 {
		t.Error("approved request should leave the pending set")
	}
	if !w.IsApproved("agent-1", "payments", "transfer", args) {
		t.Error("approved request should match by exact arguments")
	}

	status, ok := w.Status(req.ID)
	if !ok || status != StatusApproved {
		t.Errorf("expected approved status, got %s ok=%v", status, ok)
	}
}

func TestApproval_ExactArgumentMatch(t *testing.T) {
	w := newTestWorkflow(t, ApprovalConfig{HighRiskTools: []string{"payments"}})
	args := map[string]any{"amount": 100.0, "currency": "USD"}

	req := w.RequestApproval("agent-1", "payments", "transfer", args, "", "")
	w.Approve(req.ID, "alice")

	// Any argument difference misses, even an operationally irrelevant one.
	changed := map[string]any{"amount": 100.0, "currency": "EUR"}
	if w.IsApproved("agent-1", "payments", "transfer", changed) {
		t.Error("differing arguments must not reuse the approval")
	}
	extra := map[string]any{"amount": 100.0, "currency": "USD", "note": "x"}
	if w.IsApproved("agent-1", "payments", "transfer", extra) {
		t.Error("extra argument must not reuse the approval")
	}
	if w.IsApproved("agent-2", "payments", "transfer", args) {
		t.Error("a different agent must not reuse the approval")
	}
}

func TestApproval_RejectFlow(t *testing.T) {
	w := newTestWorkflow(t, ApprovalConfig{HighRiskTools: []string{"payments"}})
	args := map[string]any{"amount": 1.0}

	req := w.RequestApproval("agent-1", "payments", "transfer", args, "", "")
	if !w.Reject(req.ID, "bob", "amount looks wrong") {
		t.Fatal("reject should succeed for a pending id")
	}
	if w.IsApproved("agent-1", "payments", "transfer", args) {
		t.Error("rejected request must not count as approved")
	}

	history := w.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].Status != StatusRejected || history[0].RejectionReason != "amount looks wrong" {
		t.Errorf("unexpected history entry: %+v", history[0])
	}
}

func TestApproval_DecideTwiceFails(t *testing.T) {
	w := newTestWorkflow(t, ApprovalConfig{HighRiskTools: []string{"payments"}})
	req := w.RequestApproval("agent-1", "payments", "transfer", nil, "", "")

	if !w.Approve(req.ID, "alice") {
		t.Fatal("first decision should succeed")
	}
	if w.Approve(req.ID, "bob") {
		t.Error("second approve on the same id should fail")
	}
	if w.Reject(req.ID, "bob", "") {
		t.Error("reject after approve should fail")
	}
}

func TestApproval_UnknownIDFails(t *testing.T) {
	w := newTestWorkflow(t, ApprovalConfig{})
	if w.Approve("no-such-id", "alice") {
		t.Error("approving an unknown id should fail")
	}
	if _, ok := w.Status("no-such-id"); ok {
		t.Error("unknown id should have no status")
	}
}

func TestApproval_RequestCallbackAndDefaults(t *testing.T) {
	var notified *ApprovalRequest
	w := newTestWorkflow(t, ApprovalConfig{
		HighRiskTools: []string{"payments"},
		OnRequest:     func(req *ApprovalRequest) { notified = req },
	})

	req := w.RequestApproval("agent-1", "payments", "transfer", nil, "why", "")
	if notified == nil || notified.ID != req.ID {
		t.Error("OnRequest callback should fire synchronously with the new request")
	}
	if req.RiskLevel != "MEDIUM" {
		t.Errorf("empty risk level should default to MEDIUM, got %q", req.RiskLevel)
	}
}
