package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/wardenlabs/warden/internal/oversight"
	"github.com/wardenlabs/warden/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListApprovals(w http.ResponseWriter, _ *http.Request) {
	pending := d.Approvals.Pending()
	resp := make([]ApprovalResp, 0, len(pending))
	for _, req := range pending {
		resp = append(resp, approvalToResp(req))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleApprovalHistory(w http.ResponseWriter, _ *http.Request) {
	history := d.Approvals.History()
	resp := make([]ApprovalResp, 0, len(history))
	for _, req := range history {
		resp = append(resp, approvalToResp(req))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleApprove(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")

	var req DecideApprovalReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Approver == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "approver is required"})
		return
	}

	if !d.Approvals.Approve(requestID, req.Approver) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "No pending approval request with that id."})
		return
	}

	d.persistDecision(r.Context(), requestID)
	writeJSON(w, http.StatusOK, d.decidedResp(requestID))
}

func (d *Dependencies) handleReject(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")

	var req DecideApprovalReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Approver == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "approver is required"})
		return
	}

	if !d.Approvals.Reject(requestID, req.Approver, req.Reason) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "No pending approval request with that id."})
		return
	}

	d.persistDecision(r.Context(), requestID)
	writeJSON(w, http.StatusOK, d.decidedResp(requestID))
}

// persistDecision writes the just-decided request through to Postgres.
// Persistence failures are logged, never returned: the in-memory
// decision already happened.
func (d *Dependencies) persistDecision(ctx context.Context, requestID string) {
	if d.Store == nil {
		return
	}
	req := d.findInHistory(requestID)
	if req == nil {
		return
	}

	args, err := json.Marshal(req.Arguments)
	if err != nil {
		args = json.RawMessage(`{}`)
	}
	rec := &store.ApprovalRecord{
		ID:              req.ID,
		AgentID:         req.AgentID,
		ToolName:        req.ToolName,
		FunctionName:    req.FunctionName,
		Arguments:       args,
		Justification:   req.Justification,
		RiskLevel:       req.RiskLevel,
		Status:          string(req.Status),
		Approver:        req.Approver,
		RejectionReason: req.RejectionReason,
		CreatedAt:       req.CreatedAt,
		DecidedAt:       req.DecidedAt,
	}
	if err := d.Store.InsertApproval(ctx, rec); err != nil {
		d.Logger.Error("failed to persist approval decision",
			zap.String("request_id", requestID), zap.Error(err))
	}
}

func (d *Dependencies) decidedResp(requestID string) ApprovalResp {
	if req := d.findInHistory(requestID); req != nil {
		return approvalToResp(req)
	}
	return ApprovalResp{ID: requestID}
}

func (d *Dependencies) findInHistory(requestID string) *oversight.ApprovalRequest {
	for _, req := range d.Approvals.History() {
		if req.ID == requestID {
			return req
		}
	}
	return nil
}

func approvalToResp(req *oversight.ApprovalRequest) ApprovalResp {
	resp := ApprovalResp{
		ID:              req.ID,
		AgentID:         req.AgentID,
		ToolName:        req.ToolName,
		FunctionName:    req.FunctionName,
		Arguments:       req.Arguments,
		Justification:   req.Justification,
		RiskLevel:       req.RiskLevel,
		Status:          string(req.Status),
		Approver:        req.Approver,
		RejectionReason: req.RejectionReason,
		CreatedAt:       req.CreatedAt,
	}
	if !req.DecidedAt.IsZero() {
		at := req.DecidedAt
		resp.DecidedAt = &at
	}
	return resp
}
