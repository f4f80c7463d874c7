package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wardenlabs/warden/internal/engine"
)

// RemotePolicy delegates decisions to an external policy service over
// HTTP (the OPA data-API shape: POST {base}/{path} with an "input"
// envelope, "result" in the response). Transport failures resolve to
// the configured default rather than an error.
type RemotePolicy struct {
	url          string
	policyPath   string
	client       *http.Client
	defaultAllow bool

	now func() time.Time
}

// NewRemotePolicy creates a delegate for the given endpoint.
// defaultAllow selects fail-open (true) or fail-closed (false) behavior
// when the service is unreachable.
func NewRemotePolicy(url, policyPath string, timeout time.Duration, defaultAllow bool) *RemotePolicy {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemotePolicy{
		url:          strings.TrimRight(url, "/"),
		policyPath:   strings.TrimLeft(policyPath, "/"),
		client:       &http.Client{Timeout: timeout},
		defaultAllow: defaultAllow,
		now:          time.Now,
	}
}

type remoteInput struct {
	AgentID       string         `json:"agent_id"`
	ToolName      string         `json:"tool_name"`
	FunctionName  string         `json:"function_name"`
	Arguments     map[string]any `json:"arguments"`
	Context       map[string]any `json:"context"`
	CorrelationID string         `json:"correlation_id"`
	Timestamp     string         `json:"timestamp"`
}

type remoteResponse struct {
	Result json.RawMessage `json:"result"`
}

type remoteDecision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

func (p *RemotePolicy) Evaluate(ctx context.Context, req *engine.Request) engine.Decision {
	body, err := json.Marshal(map[string]remoteInput{"input": {
		AgentID:       req.AgentID,
		ToolName:      req.ToolName,
		FunctionName:  req.FunctionName,
		Arguments:     req.Arguments,
		Context:       req.Context,
		CorrelationID: req.CorrelationID,
		Timestamp:     p.now().Format(time.RFC3339),
	}})
	if err != nil {
		return p.fallback(err)
	}

	endpoint := p.url + "/" + p.policyPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return p.fallback(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return p.fallback(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p.fallback(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var envelope remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return p.fallback(err)
	}

	// The result is either a bare boolean or an object with allow/reason.
	var allow bool
	if err := json.Unmarshal(envelope.Result, &allow); err == nil {
		reason := "Denied by policy service"
		if allow {
			reason = "Allowed by policy service"
		}
		return engine.Decision{Allow: allow, Reason: reason}
	}

	var dec remoteDecision
	if err := json.Unmarshal(envelope.Result, &dec); err == nil {
		reason := dec.Reason
		if reason == "" {
			reason = "Denied by policy service"
		}
		return engine.Decision{Allow: dec.Allow, Reason: reason}
	}

	return engine.Decision{
		Allow:  false,
		Reason: fmt.Sprintf("Unexpected policy service response: %s", string(envelope.Result)),
	}
}

func (p *RemotePolicy) fallback(err error) engine.Decision {
	return engine.Decision{
		Allow:  p.defaultAllow,
		Reason: fmt.Sprintf("Policy service error: %v", err),
	}
}
