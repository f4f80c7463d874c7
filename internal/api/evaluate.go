package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wardenlabs/warden/internal/engine"
)

// handleEvaluate implements POST /v1/evaluate.
// Auth middleware has already validated the Bearer token and injected
// the agent; the body cannot impersonate another agent.
func (d *Dependencies) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req EvaluateRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_name is required"})
		return
	}

	agent := agentFromContext(r.Context())
	if agent == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing agent context"})
		return
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	decision := d.Engine.Evaluate(r.Context(), &engine.Request{
		AgentID:       agent.ID,
		ToolName:      req.ToolName,
		FunctionName:  req.FunctionName,
		Arguments:     req.Arguments,
		Context:       req.Context,
		CorrelationID: correlationID,
	})

	writeJSON(w, http.StatusOK, EvaluateResponse{
		Allow:             decision.Allow,
		Reason:            decision.Reason,
		ModifiedArguments: decision.ModifiedArguments,
		CorrelationID:     correlationID,
		LatencyMs:         float64(time.Since(start)) / float64(time.Millisecond),
	})
}

// handleListTools implements GET /v1/tools: the tools visible to the
// authenticated agent.
func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	agent := agentFromContext(r.Context())
	if agent == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing agent context"})
		return
	}

	tools := []string{}
	if d.Registry != nil {
		if names := d.Registry.ListForAgent(agent.ID); names != nil {
			tools = names
		}
	}
	writeJSON(w, http.StatusOK, ToolListResp{AgentID: agent.ID, Tools: tools})
}
