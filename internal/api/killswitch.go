package api

import (
	"net/http"
	"time"
)

func (d *Dependencies) handleActivateKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req KillSwitchReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ActivatedBy == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "activated_by is required"})
		return
	}

	d.KillSwitch.Activate(req.ActivatedBy, req.Reason)
	writeJSON(w, http.StatusOK, killSwitchResp(d))
}

func (d *Dependencies) handleDeactivateKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req KillSwitchReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ActivatedBy == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "activated_by is required"})
		return
	}

	d.KillSwitch.Deactivate(req.ActivatedBy)
	writeJSON(w, http.StatusOK, killSwitchResp(d))
}

func (d *Dependencies) handleKillSwitchStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, killSwitchResp(d))
}

func killSwitchResp(d *Dependencies) KillSwitchResp {
	status := d.KillSwitch.Status()
	resp := KillSwitchResp{
		Active:      status.Active,
		ActivatedBy: status.ActivatedBy,
		Reason:      status.Reason,
	}
	if !status.ActivatedAt.IsZero() {
		at := status.ActivatedAt.UTC().Truncate(time.Millisecond)
		resp.ActivatedAt = &at
	}
	return resp
}
