package api

import (
	"net/http"

	"github.com/wardenlabs/warden/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	agent, plainKey, err := d.Store.CreateAgent(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("failed to create agent", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create agent"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateAgentResp{
		ID:           agent.ID,
		Name:         agent.Name,
		APIKey:       plainKey,
		APIKeyPrefix: agent.APIKeyPrefix,
		CreatedAt:    agent.CreatedAt,
	})
}

func (d *Dependencies) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := d.Store.ListAgents(r.Context())
	if err != nil {
		d.Logger.Error("failed to list agents", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list agents"})
		return
	}

	resp := make([]AgentResp, 0, len(agents))
	for _, a := range agents {
		resp = append(resp, agentToResp(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")
	agent, err := d.Store.GetAgent(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get agent", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get agent"})
		return
	}
	if agent == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Agent not found."})
		return
	}
	writeJSON(w, http.StatusOK, agentToResp(agent))
}

func (d *Dependencies) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")

	var req UpdateAgentReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}
	if req.MaxCallsPerMinute != nil && *req.MaxCallsPerMinute < 1 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "max_calls_per_minute must be positive"})
		return
	}
	if req.QuotaMaxActions != nil && *req.QuotaMaxActions < 1 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "quota_max_actions must be positive"})
		return
	}
	if req.QuotaWindowHours != nil && *req.QuotaWindowHours < 1 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "quota_window_hours must be positive"})
		return
	}

	agent, err := d.Store.UpdateAgent(r.Context(), id, store.UpdateAgentParams{
		Name:              req.Name,
		MaxCallsPerMinute: req.MaxCallsPerMinute,
		QuotaMaxActions:   req.QuotaMaxActions,
		QuotaWindowHours:  req.QuotaWindowHours,
	})
	if err != nil {
		d.Logger.Error("failed to update agent", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update agent"})
		return
	}
	if agent == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Agent not found."})
		return
	}

	// Push new limits to the in-memory gates so they take effect without
	// waiting for the agent's auth cache entry to expire.
	d.applyAgentLimits(&authAgent{
		ID:                agent.ID,
		Name:              agent.Name,
		MaxCallsPerMinute: agent.MaxCallsPerMinute,
		QuotaMaxActions:   agent.QuotaMaxActions,
		QuotaWindowHours:  agent.QuotaWindowHours,
	})

	writeJSON(w, http.StatusOK, agentToResp(agent))
}

func (d *Dependencies) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")
	deleted, err := d.Store.DeleteAgent(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to delete agent", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete agent"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Agent not found."})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("agent_id")
	plainKey, prefix, err := d.Store.RotateKey(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to rotate key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to rotate API key"})
		return
	}
	if plainKey == "" {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Agent not found."})
		return
	}
	writeJSON(w, http.StatusOK, RotateKeyResp{
		APIKey:       plainKey,
		APIKeyPrefix: prefix,
	})
}

func agentToResp(a *store.Agent) AgentResp {
	return AgentResp{
		ID:                a.ID,
		Name:              a.Name,
		APIKeyPrefix:      a.APIKeyPrefix,
		MaxCallsPerMinute: a.MaxCallsPerMinute,
		QuotaMaxActions:   a.QuotaMaxActions,
		QuotaWindowHours:  a.QuotaWindowHours,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}
