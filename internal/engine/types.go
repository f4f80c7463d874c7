package engine

import "context"

// Request represents an agent's attempt to invoke a tool function.
// Immutable once constructed; the engine never mutates it.
type Request struct {
	AgentID       string
	ToolName      string
	FunctionName  string
	Arguments     map[string]any
	Context       map[string]any
	CorrelationID string
}

// Decision is the outcome of evaluating a Request. Denials are normal
// Decisions with Allow=false, never errors. Reason is always non-empty
// and suitable for direct display to the agent or operator.
type Decision struct {
	Allow             bool
	Reason            string
	ModifiedArguments map[string]any // consulted by callers only when Allow=true
}

// Policy decides whether a single request is allowed.
// Implementations must not return errors for denials; dependency
// failures are resolved into a Decision with the failure in the reason.
type Policy interface {
	Evaluate(ctx context.Context, req *Request) Decision
}

// PolicyFunc adapts a plain function to the Policy interface.
type PolicyFunc func(ctx context.Context, req *Request) Decision

func (f PolicyFunc) Evaluate(ctx context.Context, req *Request) Decision {
	return f(ctx, req)
}

// AllowAll is the default policy when none is configured.
type AllowAll struct{}

func (AllowAll) Evaluate(_ context.Context, _ *Request) Decision {
	return Decision{Allow: true, Reason: "AllowAll: default allow"}
}

// DenyAll denies every request. Useful as a lockdown default and in tests.
type DenyAll struct{}

func (DenyAll) Evaluate(_ context.Context, _ *Request) Decision {
	return Decision{Allow: false, Reason: "DenyAll: default deny"}
}
