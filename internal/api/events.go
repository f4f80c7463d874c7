package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wardenlabs/warden/internal/chread"
	"github.com/wardenlabs/warden/internal/engine"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListEventsParams{
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("agent_id"); v != "" {
		params.AgentID = &v
	}
	if v := q.Get("tool"); v != "" {
		params.Tool = &v
	}
	if v := q.Get("allow"); v != "" {
		b := v == "true" || v == "1"
		params.Allow = &b
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}

	resp := EventListResp{
		Events:   make([]DecisionEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	correlationID := r.PathValue("correlation_id")
	event, err := d.Reader.GetEvent(r.Context(), correlationID)
	if err != nil {
		d.Logger.Error("failed to get event", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get event"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Event not found."})
		return
	}

	writeJSON(w, http.StatusOK, eventRowToResp(*event))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	days := queryInt(r.URL.Query(), "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	result, err := d.Reader.GetAnalytics(r.Context(), days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleUsage implements GET /api/warden/usage from the engine's
// in-process counters.
func (d *Dependencies) handleUsage(w http.ResponseWriter, _ *http.Request) {
	resp := []UsageResp{}
	if d.Engine != nil {
		for _, u := range d.Engine.Metrics().Snapshot() {
			resp = append(resp, usageToResp(u))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func usageToResp(u engine.ToolUsage) UsageResp {
	return UsageResp{
		AgentID: u.AgentID,
		Tool:    u.Tool,
		Allowed: u.Allowed,
		Denied:  u.Denied,
	}
}

// eventRowToResp converts a ClickHouse EventRow to the API response.
// Arguments are stored as a JSON string and decoded here.
func eventRowToResp(e chread.EventRow) DecisionEventResp {
	var args map[string]any
	if e.Arguments != "" {
		_ = json.Unmarshal([]byte(e.Arguments), &args)
	}

	return DecisionEventResp{
		Timestamp:     e.Timestamp,
		AgentID:       e.AgentID,
		Tool:          e.Tool,
		Function:      e.Function,
		Arguments:     args,
		Allow:         e.Allow == 1,
		Reason:        e.Reason,
		DurationMs:    e.DurationMs,
		CorrelationID: e.CorrelationID,
	}
}

func queryInt(q url.Values, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
