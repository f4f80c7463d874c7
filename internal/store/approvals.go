package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ApprovalRecord is a terminal approval decision persisted for the
// dashboard. The live pending set stays in process memory; only
// approved and rejected requests are written through.
type ApprovalRecord struct {
	ID              string
	AgentID         string
	ToolName        string
	FunctionName    string
	Arguments       json.RawMessage
	Justification   string
	RiskLevel       string
	Status          string
	Approver        string
	RejectionReason string
	CreatedAt       time.Time
	DecidedAt       time.Time
}

// InsertApproval writes a terminal approval decision.
func (s *Store) InsertApproval(ctx context.Context, rec *ApprovalRecord) error {
	args := rec.Arguments
	if args == nil {
		args = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_requests (
			id, agent_id, tool_name, function_name, arguments,
			justification, risk_level, status, approver, rejection_reason,
			created_at, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.AgentID, rec.ToolName, rec.FunctionName, args,
		rec.Justification, rec.RiskLevel, rec.Status, rec.Approver, rec.RejectionReason,
		rec.CreatedAt, rec.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertApproval: %w", err)
	}
	return nil
}

// ListApprovals returns the most recent terminal decisions, newest
// first, up to limit.
func (s *Store) ListApprovals(ctx context.Context, limit int) ([]*ApprovalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_id, tool_name, function_name, arguments,
		       justification, risk_level, status, approver, rejection_reason,
		       created_at, decided_at
		FROM approval_requests
		ORDER BY decided_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListApprovals: %w", err)
	}
	defer rows.Close()

	var records []*ApprovalRecord
	for rows.Next() {
		var rec ApprovalRecord
		if err := rows.Scan(&rec.ID, &rec.AgentID, &rec.ToolName, &rec.FunctionName, &rec.Arguments,
			&rec.Justification, &rec.RiskLevel, &rec.Status, &rec.Approver, &rec.RejectionReason,
			&rec.CreatedAt, &rec.DecidedAt); err != nil {
			return nil, fmt.Errorf("ListApprovals: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
