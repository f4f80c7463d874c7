package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wardenlabs/warden/internal/audit"
	"github.com/wardenlabs/warden/internal/breaker"
	"github.com/wardenlabs/warden/internal/intent"
	"github.com/wardenlabs/warden/internal/oversight"
	"github.com/wardenlabs/warden/internal/safety"
)

type captureAuditor struct {
	entries []audit.Entry
}

func (a *captureAuditor) Log(entry audit.Entry) { a.entries = append(a.entries, entry) }

type panicAuditor struct{}

func (panicAuditor) Log(audit.Entry) { panic("auditor exploded") }

func basicRequest() *Request {
	return &Request{
		AgentID:      "agent-1",
		ToolName:     "db",
		FunctionName: "query",
		Arguments:    map[string]any{"query": "SELECT 1"},
	}
}

func TestEngine_DefaultAllow(t *testing.T) {
	e := New(Config{})
	dec := e.Evaluate(context.Background(), basicRequest())
	if !dec.Allow {
		t.Errorf("engine with no gates should allow: %+v", dec)
	}
	if dec.Reason == "" {
		t.Error("decisions always carry a reason")
	}
}

func TestEngine_KillSwitchOverridesEverything(t *testing.T) {
	ks := oversight.NewKillSwitch()
	e := New(Config{
		Policy:     AllowAll{},
		KillSwitch: ks,
	})

	ks.Activate("ops", "runaway agent")
	dec := e.Evaluate(context.Background(), basicRequest())
	if dec.Allow {
		t.Fatal("active kill switch must deny")
	}
	if dec.Reason != "Kill switch active: runaway agent" {
		t.Errorf("unexpected reason: %q", dec.Reason)
	}

	ks.Deactivate("ops")
	if dec := e.Evaluate(context.Background(), basicRequest()); !dec.Allow {
		t.Errorf("deactivated switch should let requests through: %+v", dec)
	}
}

func TestEngine_OpenCircuitDenies(t *testing.T) {
	cb := breaker.New(breaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	e := New(Config{Breaker: cb})

	cb.RecordFailure("db")
	dec := e.Evaluate(context.Background(), basicRequest())
	if dec.Allow {
		t.Fatal("open circuit must deny")
	}
	if dec.Reason != `Circuit open for tool "db"` {
		t.Errorf("unexpected reason: %q", dec.Reason)
	}

	// Another tool's circuit is unaffected.
	other := basicRequest()
	other.ToolName = "search"
	if dec := e.Evaluate(context.Background(), other); !dec.Allow {
		t.Errorf("other tools should pass: %+v", dec)
	}
}

func TestEngine_RateLimitDenies(t *testing.T) {
	e := New(Config{Limiter: safety.NewRateLimiter(60, 1)})

	if dec := e.Evaluate(context.Background(), basicRequest()); !dec.Allow {
		t.Fatalf("first call should pass: %+v", dec)
	}
	dec := e.Evaluate(context.Background(), basicRequest())
	if dec.Allow {
		t.Fatal("second call should hit the rate limit")
	}
	if !strings.Contains(dec.Reason, "Rate limit exceeded") {
		t.Errorf("unexpected reason: %q", dec.Reason)
	}
}

func TestEngine_QuotaDenies(t *testing.T) {
	qm := safety.NewQuotaManager(safety.QuotaConfig{MaxActions: 1, WindowHours: 24})
	e := New(Config{Quotas: qm})

	if dec := e.Evaluate(context.Background(), basicRequest()); !dec.Allow {
		t.Fatalf("first call should pass: %+v", dec)
	}
	dec := e.Evaluate(context.Background(), basicRequest())
	if dec.Allow {
		t.Fatal("second call should exceed the quota")
	}
	if !strings.Contains(dec.Reason, "quota exceeded") {
		t.Errorf("unexpected reason: %q", dec.Reason)
	}
}

func TestEngine_DeniedRequestConsumesNoQuota(t *testing.T) {
	qm := safety.NewQuotaManager(safety.QuotaConfig{MaxActions: 5, WindowHours: 24})
	ks := oversight.NewKillSwitch()
	ks.Activate("ops", "stop")
	e := New(Config{KillSwitch: ks, Quotas: qm})

	e.Evaluate(context.Background(), basicRequest())
	if got := qm.Remaining("agent-1"); got != 5 {
		t.Errorf("a kill-switch denial must not consume quota, remaining=%d", got)
	}
}

func TestEngine_IntentValidationDenies(t *testing.T) {
	p := intent.NewPipeline(intent.NewJustificationValidator(10))
	e := New(Config{Pipeline: p})

	req := basicRequest()
	dec := e.Evaluate(context.Background(), req)
	if dec.Allow {
		t.Fatal("missing justification should deny")
	}
	if dec.Reason != "Intent validation failed: JustificationValidator: missing justification" {
		t.Errorf("unexpected reason: %q", dec.Reason)
	}

	req.Context = map[string]any{"justification": "routine cleanup of stale rows"}
	if dec := e.Evaluate(context.Background(), req); !dec.Allow {
		t.Errorf("valid justification should pass: %+v", dec)
	}
}

func TestEngine_PolicyDenies(t *testing.T) {
	e := New(Config{Policy: DenyAll{}})
	dec := e.Evaluate(context.Background(), basicRequest())
	if dec.Allow {
		t.Fatal("DenyAll policy should deny")
	}
	if dec.Reason != "DenyAll: default deny" {
		t.Errorf("unexpected reason: %q", dec.Reason)
	}
}

type stubResolver struct {
	policy Policy
}

func (r stubResolver) PolicyFor(string, string) Policy { return r.policy }

func TestEngine_ResolverOverridesDefaultPolicy(t *testing.T) {
	e := New(Config{
		Policy:   AllowAll{},
		Resolver: stubResolver{policy: DenyAll{}},
	})
	if dec := e.Evaluate(context.Background(), basicRequest()); dec.Allow {
		t.Error("resolver policy should override the default")
	}

	// A resolver with nothing to say falls back to the default.
	e = New(Config{
		Policy:   DenyAll{},
		Resolver: stubResolver{policy: nil},
	})
	if dec := e.Evaluate(context.Background(), basicRequest()); dec.Allow {
		t.Error("nil resolver result should fall back to the default policy")
	}
}

func TestEngine_ApprovalGate(t *testing.T) {
	aw, err := oversight.NewApprovalWorkflow(oversight.ApprovalConfig{HighRiskTools: []string{"db"}})
	if err != nil {
		t.Fatalf("NewApprovalWorkflow: %v", err)
	}
	e := New(Config{Approvals: aw})

	// First evaluation creates a pending request and denies.
	dec := e.Evaluate(context.Background(), basicRequest())
	if dec.Allow {
		t.Fatal("unapproved high-risk call should deny")
	}
	if !strings.HasPrefix(dec.Reason, "Approval required, pending request id=") {
		t.Errorf("unexpected reason: %q", dec.Reason)
	}
	pending := aw.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(pending))
	}

	// Approve it: the identical request now passes.
	aw.Approve(pending[0].ID, "alice")
	if dec := e.Evaluate(context.Background(), basicRequest()); !dec.Allow {
		t.Errorf("approved request should pass: %+v", dec)
	}

	// A request with different arguments starts the flow over.
	changed := basicRequest()
	changed.Arguments = map[string]any{"query": "DROP TABLE users"}
	if dec := e.Evaluate(context.Background(), changed); dec.Allow {
		t.Error("changed arguments must not reuse the approval")
	}
}

func TestEngine_ApprovalOnlyAfterPolicyAllows(t *testing.T) {
	aw, _ := oversight.NewApprovalWorkflow(oversight.ApprovalConfig{HighRiskTools: []string{"db"}})
	e := New(Config{Policy: DenyAll{}, Approvals: aw})

	dec := e.Evaluate(context.Background(), basicRequest())
	if dec.Allow {
		t.Fatal("policy denial should stand")
	}
	if len(aw.Pending()) != 0 {
		t.Error("a policy-denied request must not create an approval request")
	}
}

func TestEngine_AuditsEveryDecision(t *testing.T) {
	cap := &captureAuditor{}
	ks := oversight.NewKillSwitch()
	e := New(Config{KillSwitch: ks, Auditors: []audit.Auditor{cap}})

	e.Evaluate(context.Background(), basicRequest())
	ks.Activate("ops", "stop")
	e.Evaluate(context.Background(), basicRequest())

	if len(cap.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(cap.entries))
	}
	if !cap.entries[0].Allow || cap.entries[1].Allow {
		t.Error("audit entries should record allow and deny outcomes")
	}
	if cap.entries[1].Reason != "Kill switch active: stop" {
		t.Errorf("unexpected audited reason: %q", cap.entries[1].Reason)
	}
	if cap.entries[0].AgentID != "agent-1" || cap.entries[0].Tool != "db" {
		t.Errorf("audit entry should carry request coordinates: %+v", cap.entries[0])
	}
}

func TestEngine_PanickingAuditorIsContained(t *testing.T) {
	cap := &captureAuditor{}
	e := New(Config{Auditors: []audit.Auditor{panicAuditor{}, cap}})

	dec := e.Evaluate(context.Background(), basicRequest())
	if !dec.Allow {
		t.Error("an auditor panic must not change the decision")
	}
	if len(cap.entries) != 1 {
		t.Error("remaining auditors should still receive the entry")
	}
}

func TestEngine_DryRunSuppressesDenial(t *testing.T) {
	cap := &captureAuditor{}
	e := New(Config{Policy: DenyAll{}, Auditors: []audit.Auditor{cap}, DryRun: true})

	dec := e.Evaluate(context.Background(), basicRequest())
	if !dec.Allow {
		t.Fatal("dry run should return allow")
	}
	if dec.Reason != "Dry run, would deny: DenyAll: default deny" {
		t.Errorf("unexpected reason: %q", dec.Reason)
	}

	// The audit trail keeps the real outcome.
	if len(cap.entries) != 1 || cap.entries[0].Allow {
		t.Error("audit should record the real denial, not the dry-run override")
	}
}

func TestEngine_MetricsCountOutcomes(t *testing.T) {
	ks := oversight.NewKillSwitch()
	e := New(Config{KillSwitch: ks})

	e.Evaluate(context.Background(), basicRequest())
	e.Evaluate(context.Background(), basicRequest())
	ks.Activate("ops", "stop")
	e.Evaluate(context.Background(), basicRequest())

	snap := e.Metrics().Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected one counter, got %v", snap)
	}
	if snap[0].Allowed != 2 || snap[0].Denied != 1 {
		t.Errorf("expected 2 allowed / 1 denied, got %+v", snap[0])
	}
}

func TestEngine_GateOrder(t *testing.T) {
	// Kill switch outranks the breaker: with both tripped, the reason is
	// the switch's.
	ks := oversight.NewKillSwitch()
	ks.Activate("ops", "stop")
	cb := breaker.New(breaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	cb.RecordFailure("db")

	e := New(Config{KillSwitch: ks, Breaker: cb})
	dec := e.Evaluate(context.Background(), basicRequest())
	if !strings.HasPrefix(dec.Reason, "Kill switch active") {
		t.Errorf("kill switch should be checked first: %q", dec.Reason)
	}

	// Breaker outranks the rate limiter.
	e = New(Config{Breaker: cb, Limiter: safety.NewRateLimiter(60, 1)})
	dec = e.Evaluate(context.Background(), basicRequest())
	if !strings.HasPrefix(dec.Reason, "Circuit open") {
		t.Errorf("breaker should be checked before the limiter: %q", dec.Reason)
	}
}
