// Package engine evaluates tool-invocation requests through a fixed
// chain of safety gates and records every decision. It decides and
// audits; it never executes the governed tool.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/wardenlabs/warden/internal/audit"
	"github.com/wardenlabs/warden/internal/breaker"
	"github.com/wardenlabs/warden/internal/intent"
	"github.com/wardenlabs/warden/internal/oversight"
	"github.com/wardenlabs/warden/internal/safety"
	"go.uber.org/zap"
)

// PolicyResolver resolves the effective policy for a (tool, agent)
// pair. A nil result means no specific policy applies and the engine
// falls back to its configured default policy.
type PolicyResolver interface {
	PolicyFor(toolName, agentID string) Policy
}

// Config wires the gates into an Engine. Every field except Logger is
// optional; nil gates are skipped.
type Config struct {
	Policy     Policy
	Resolver   PolicyResolver
	KillSwitch *oversight.KillSwitch
	Breaker    *breaker.CircuitBreaker
	Limiter    *safety.RateLimiter
	Quotas     *safety.QuotaManager
	Pipeline   *intent.Pipeline
	Approvals  *oversight.ApprovalWorkflow
	Auditors   []audit.Auditor
	Logger     *zap.Logger

	// DryRun forces Allow=true on the returned decision while still
	// evaluating, metering and auditing the real outcome.
	DryRun bool
}

// Engine runs the gate chain. Safe for concurrent use; all mutable
// state lives in the injected gates, each with its own locking.
type Engine struct {
	cfg     Config
	metrics *Metrics

	now func() time.Time
}

// New creates an engine. A nil Policy defaults to AllowAll; a nil
// Logger defaults to a no-op logger.
func New(cfg Config) *Engine {
	if cfg.Policy == nil {
		cfg.Policy = AllowAll{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		metrics: NewMetrics(),
		now:     time.Now,
	}
}

// Metrics returns the engine's usage counters.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Evaluate runs the request through the gate chain in fixed order, each
// gate short-circuiting on denial:
// kill switch, circuit breaker, throughput limits, intent validation,
// policy, approval. The decision is always audited when auditors are
// configured. Evaluate never fails: denials are Decisions.
func (e *Engine) Evaluate(ctx context.Context, req *Request) Decision {
	start := e.now()
	decision := e.runGates(ctx, req)
	duration := e.now().Sub(start)

	e.metrics.Record(req.AgentID, req.ToolName, decision.Allow)
	e.auditDecision(req, decision, duration)

	if e.cfg.DryRun && !decision.Allow {
		e.cfg.Logger.Info("dry run suppressed denial",
			zap.String("agent_id", req.AgentID),
			zap.String("tool", req.ToolName),
			zap.String("reason", decision.Reason),
		)
		return Decision{Allow: true, Reason: "Dry run, would deny: " + decision.Reason}
	}
	return decision
}

func (e *Engine) runGates(ctx context.Context, req *Request) Decision {
	// 1. Kill switch bypasses everything else.
	if ks := e.cfg.KillSwitch; ks != nil && ks.IsActive() {
		status := ks.Status()
		return Decision{
			Allow:  false,
			Reason: fmt.Sprintf("Kill switch active: %s", status.Reason),
		}
	}

	// 2. Circuit breaker. IsOpen performs the lazy half-open transition,
	// so an elapsed cool-down lets this request through as the probe.
	if cb := e.cfg.Breaker; cb != nil && cb.IsOpen(req.ToolName) {
		return Decision{
			Allow:  false,
			Reason: fmt.Sprintf("Circuit open for tool %q", req.ToolName),
		}
	}

	// 3. Throughput limits. Consuming the token/action is part of the
	// check; a denied request consumes nothing.
	if rl := e.cfg.Limiter; rl != nil && !rl.Allow(req.AgentID, req.ToolName) {
		return Decision{
			Allow:  false,
			Reason: fmt.Sprintf("Rate limit exceeded for agent %q on tool %q", req.AgentID, req.ToolName),
		}
	}
	if qm := e.cfg.Quotas; qm != nil && !qm.Consume(req.AgentID, req.ToolName) {
		return Decision{
			Allow:  false,
			Reason: fmt.Sprintf("Action quota exceeded for agent %q", req.AgentID),
		}
	}

	// 4. Intent validation.
	if p := e.cfg.Pipeline; p != nil && p.Len() > 0 {
		it := intentFromRequest(req)
		if res := p.Validate(it); !res.Valid {
			return Decision{Allow: false, Reason: "Intent validation failed: " + res.Reason}
		}
	}

	// 5. Policy. A resolver-specific policy overrides the default.
	pol := e.cfg.Policy
	if e.cfg.Resolver != nil {
		if resolved := e.cfg.Resolver.PolicyFor(req.ToolName, req.AgentID); resolved != nil {
			pol = resolved
		}
	}
	decision := pol.Evaluate(ctx, req)
	if !decision.Allow {
		return decision
	}

	// 6. Approval. Only reached when the policy allowed the request.
	if aw := e.cfg.Approvals; aw != nil &&
		aw.RequiresApproval(req.AgentID, req.ToolName, req.FunctionName, req.Arguments) &&
		!aw.IsApproved(req.AgentID, req.ToolName, req.FunctionName, req.Arguments) {
		pending := aw.RequestApproval(
			req.AgentID, req.ToolName, req.FunctionName, req.Arguments,
			contextString(req, "justification"), contextString(req, "risk_level"),
		)
		return Decision{
			Allow:  false,
			Reason: fmt.Sprintf("Approval required, pending request id=%s", pending.ID),
		}
	}

	return decision
}

// auditDecision fans the entry out to every auditor. A panicking
// auditor is contained; it never aborts the governed call.
func (e *Engine) auditDecision(req *Request, decision Decision, duration time.Duration) {
	if len(e.cfg.Auditors) == 0 {
		return
	}

	entry := audit.Entry{
		Timestamp:     e.now(),
		AgentID:       req.AgentID,
		Tool:          req.ToolName,
		Function:      req.FunctionName,
		Arguments:     req.Arguments,
		Allow:         decision.Allow,
		Reason:        decision.Reason,
		DurationMs:    float64(duration) / float64(time.Millisecond),
		CorrelationID: req.CorrelationID,
	}

	for _, a := range e.cfg.Auditors {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.cfg.Logger.Error("auditor panicked", zap.Any("panic", r))
				}
			}()
			a.Log(entry)
		}()
	}
}

// intentFromRequest synthesizes the agent's declared intent from the
// request context. Confidence defaults to 1.0 when unreported.
func intentFromRequest(req *Request) *intent.Intent {
	confidence := 1.0
	switch v := req.Context["confidence"].(type) {
	case float64:
		confidence = v
	case float32:
		confidence = float64(v)
	case int:
		confidence = float64(v)
	}
	return intent.NewIntent(
		req.AgentID, req.ToolName, req.FunctionName, req.Arguments,
		contextString(req, "justification"), confidence,
	)
}

func contextString(req *Request, key string) string {
	if s, ok := req.Context[key].(string); ok {
		return s
	}
	return ""
}
