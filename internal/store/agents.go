package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Agent represents a row in the agents table. Limit fields are nil when
// the agent uses the server defaults.
type Agent struct {
	ID                string
	Name              string
	APIKeyHash        string
	APIKeyPrefix      string
	MaxCallsPerMinute *int
	QuotaMaxActions   *int
	QuotaWindowHours  *int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UpdateAgentParams holds optional fields for partial agent updates.
type UpdateAgentParams struct {
	Name              *string
	MaxCallsPerMinute *int
	QuotaMaxActions   *int
	QuotaWindowHours  *int
}

// GenerateAPIKey creates a new wsk_ API key with its bcrypt hash and
// prefix. Returns (fullKey, hash, prefix, error). The full key is shown
// to the operator once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := "wsk_" + hex.EncodeToString(raw)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	prefix := fullKey[:8]
	return fullKey, string(hashBytes), prefix, nil
}

// CreateAgent inserts a new agent and returns it together with the
// plaintext API key (shown once).
func (s *Store) CreateAgent(ctx context.Context, name string) (*Agent, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateAgent: %w", err)
	}

	var a Agent
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO agents (name, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, name, api_key_hash, api_key_prefix,
		          max_calls_per_minute, quota_max_actions, quota_window_hours,
		          created_at, updated_at`,
		name, keyHash, keyPrefix,
	).Scan(&a.ID, &a.Name, &a.APIKeyHash, &a.APIKeyPrefix,
		&a.MaxCallsPerMinute, &a.QuotaMaxActions, &a.QuotaWindowHours,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateAgent: %w", err)
	}
	return &a, fullKey, nil
}

// ListAgents returns all agents ordered by created_at DESC.
func (s *Store) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix,
		       max_calls_per_minute, quota_max_actions, quota_window_hours,
		       created_at, updated_at
		FROM agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListAgents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.APIKeyHash, &a.APIKeyPrefix,
			&a.MaxCallsPerMinute, &a.QuotaMaxActions, &a.QuotaWindowHours,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListAgents: %w", err)
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// GetAgent returns an agent by id, or nil if not found.
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix,
		       max_calls_per_minute, quota_max_actions, quota_window_hours,
		       created_at, updated_at
		FROM agents WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.APIKeyHash, &a.APIKeyPrefix,
		&a.MaxCallsPerMinute, &a.QuotaMaxActions, &a.QuotaWindowHours,
		&a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAgent: %w", err)
	}
	return &a, nil
}

// LookupByPrefix returns the agent whose API key starts with the given
// prefix, or nil if none matches. The caller must still verify the full
// key against APIKeyHash.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix,
		       max_calls_per_minute, quota_max_actions, quota_window_hours,
		       created_at, updated_at
		FROM agents WHERE api_key_prefix = $1`, prefix,
	).Scan(&a.ID, &a.Name, &a.APIKeyHash, &a.APIKeyPrefix,
		&a.MaxCallsPerMinute, &a.QuotaMaxActions, &a.QuotaWindowHours,
		&a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &a, nil
}

// UpdateAgent applies a partial update. Only non-nil fields change.
// Returns nil if the agent does not exist.
func (s *Store) UpdateAgent(ctx context.Context, id string, params UpdateAgentParams) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx, `
		UPDATE agents SET
			name                 = COALESCE($2, name),
			max_calls_per_minute = COALESCE($3, max_calls_per_minute),
			quota_max_actions    = COALESCE($4, quota_max_actions),
			quota_window_hours   = COALESCE($5, quota_window_hours),
			updated_at           = now()
		WHERE id = $1
		RETURNING id, name, api_key_hash, api_key_prefix,
		          max_calls_per_minute, quota_max_actions, quota_window_hours,
		          created_at, updated_at`,
		id, params.Name, params.MaxCallsPerMinute, params.QuotaMaxActions, params.QuotaWindowHours,
	).Scan(&a.ID, &a.Name, &a.APIKeyHash, &a.APIKeyPrefix,
		&a.MaxCallsPerMinute, &a.QuotaMaxActions, &a.QuotaWindowHours,
		&a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateAgent: %w", err)
	}
	return &a, nil
}

// RotateKey generates a fresh API key for an agent and returns the new
// plaintext key (shown once) and its prefix. Returns empty strings if
// the agent does not exist.
func (s *Store) RotateKey(ctx context.Context, id string) (string, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return "", "", fmt.Errorf("RotateKey: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE agents SET api_key_hash = $2, api_key_prefix = $3, updated_at = now()
		WHERE id = $1`, id, keyHash, keyPrefix)
	if err != nil {
		return "", "", fmt.Errorf("RotateKey: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", "", nil
	}
	return fullKey, keyPrefix, nil
}

// DeleteAgent removes an agent. Returns false if it did not exist.
func (s *Store) DeleteAgent(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("DeleteAgent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("DeleteAgent: %w", err)
	}
	return n > 0, nil
}
