// Package chread provides read access to the ClickHouse
// decision_events table for the events and analytics endpoints.
package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse decision_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the decision_events table.
type EventRow struct {
	Timestamp     time.Time
	AgentID       string
	Tool          string
	Function      string
	Arguments     string
	Allow         uint8
	Reason        string
	DurationMs    float64
	CorrelationID string
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	AgentID   *string
	Tool      *string
	Allow     *bool
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// ListEvents returns paginated, filtered decision events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	conditions := []string{"1 = 1"}
	var args []any

	if params.AgentID != nil {
		conditions = append(conditions, "agent_id = @agent_id")
		args = append(args, clickhouse.Named("agent_id", *params.AgentID))
	}
	if params.Tool != nil {
		conditions = append(conditions, "tool = @tool")
		args = append(args, clickhouse.Named("tool", *params.Tool))
	}
	if params.Allow != nil {
		var v uint8
		if *params.Allow {
			v = 1
		}
		conditions = append(conditions, "allow = @allow")
		args = append(args, clickhouse.Named("allow", v))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM decision_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf(
		"SELECT timestamp, agent_id, tool, function, arguments, allow, reason, duration_ms, correlation_id "+
			"FROM decision_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Timestamp, &e.AgentID, &e.Tool, &e.Function, &e.Arguments,
			&e.Allow, &e.Reason, &e.DurationMs, &e.CorrelationID,
		); err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent fetches a single decision event by correlation id.
// Returns nil if not found.
func (r *Reader) GetEvent(ctx context.Context, correlationID string) (*EventRow, error) {
	query := "SELECT timestamp, agent_id, tool, function, arguments, allow, reason, duration_ms, correlation_id " +
		"FROM decision_events WHERE correlation_id = @correlation_id LIMIT 1"

	var e EventRow
	err := r.conn.QueryRow(ctx, query, clickhouse.Named("correlation_id", correlationID)).Scan(
		&e.Timestamp, &e.AgentID, &e.Tool, &e.Function, &e.Arguments,
		&e.Allow, &e.Reason, &e.DurationMs, &e.CorrelationID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil
		}
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	return &e, nil
}

// SummaryStats holds aggregate decision counts.
type SummaryStats struct {
	TotalDecisions int `json:"total_decisions"`
	Allows         int `json:"allows"`
	Denials        int `json:"denials"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// ToolCount holds a tool name and its count.
type ToolCount struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// AgentCount holds an agent id and its count.
type AgentCount struct {
	AgentID string `json:"agent_id"`
	Count   int    `json:"count"`
}

// LatencyStats holds decision latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	DenialsOverTime    []TimeSeriesBucket `json:"denials_over_time"`
	TopDeniedTools     []ToolCount        `json:"top_denied_tools"`
	TopDeniedAgents    []AgentCount       `json:"top_denied_agents"`
	LatencyPercentiles LatencyStats       `json:"latency_percentiles"`
}

// GetAnalytics returns aggregated analytics over the given number of days.
func (r *Reader) GetAnalytics(ctx context.Context, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	baseArgs := []any{
		clickhouse.Named("range_start", rangeStart),
	}

	result := &AnalyticsResult{}

	var total, allows, denials uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total, "+
			"countIf(allow = 1) as allows, "+
			"countIf(allow = 0) as denials "+
			"FROM decision_events "+
			"WHERE timestamp >= @range_start",
		baseArgs...,
	).Scan(&total, &allows, &denials)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalDecisions: int(total),
		Allows:         int(allows),
		Denials:        int(denials),
	}

	dotRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM decision_events "+
			"WHERE allow = 0 AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics denials_over_time: %w", err)
	}
	defer func() { _ = dotRows.Close() }()
	for dotRows.Next() {
		var hour time.Time
		var count uint64
		if err := dotRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics denials_over_time scan: %w", err)
		}
		result.DenialsOverTime = append(result.DenialsOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	toolRows, err := r.conn.Query(ctx,
		"SELECT tool, count() as count "+
			"FROM decision_events "+
			"WHERE allow = 0 AND timestamp >= @range_start "+
			"GROUP BY tool ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_tools: %w", err)
	}
	defer func() { _ = toolRows.Close() }()
	for toolRows.Next() {
		var tool string
		var count uint64
		if err := toolRows.Scan(&tool, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_tools scan: %w", err)
		}
		result.TopDeniedTools = append(result.TopDeniedTools, ToolCount{
			Tool: tool, Count: int(count),
		})
	}

	agentRows, err := r.conn.Query(ctx,
		"SELECT agent_id, count() as count "+
			"FROM decision_events "+
			"WHERE allow = 0 AND agent_id != '' AND timestamp >= @range_start "+
			"GROUP BY agent_id ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_agents: %w", err)
	}
	defer func() { _ = agentRows.Close() }()
	for agentRows.Next() {
		var agentID string
		var count uint64
		if err := agentRows.Scan(&agentID, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_agents scan: %w", err)
		}
		result.TopDeniedAgents = append(result.TopDeniedAgents, AgentCount{
			AgentID: agentID, Count: int(count),
		})
	}

	// Latency percentiles (last 24h)
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(duration_ms) as p50, "+
			"quantile(0.95)(duration_ms) as p95, "+
			"quantile(0.99)(duration_ms) as p99 "+
			"FROM decision_events "+
			"WHERE timestamp >= @day_start",
		clickhouse.Named("day_start", dayStart),
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	// Ensure slices are non-nil for JSON serialization
	if result.DenialsOverTime == nil {
		result.DenialsOverTime = []TimeSeriesBucket{}
	}
	if result.TopDeniedTools == nil {
		result.TopDeniedTools = []ToolCount{}
	}
	if result.TopDeniedAgents == nil {
		result.TopDeniedAgents = []AgentCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
