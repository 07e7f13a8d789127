package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore persists decision policies in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed policy store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, module string) (*Policy, error) {
	var (
		p           Policy
		weightsJSON []byte
		minWeight   sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, module, version, approve_below, decline_at,
		       degraded_mode, source_weights, min_surviving_weight,
		       ev_enabled, estimated_margin_rate, loss_given_fraud
		FROM policies
		WHERE tenant_id = $1 AND module = $2
	`, tenantID, module).Scan(
		&p.TenantID, &p.Module, &p.Version, &p.ApproveBelow, &p.DeclineAt,
		&p.DegradedMode, &weightsJSON, &minWeight,
		&p.EVEnabled, &p.EstimatedMarginRate, &p.LossGivenFraud,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &UnknownPolicyError{TenantID: tenantID, Module: module}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	p.SourceWeights = make(map[string]float64)
	if err := json.Unmarshal(weightsJSON, &p.SourceWeights); err != nil {
		return nil, fmt.Errorf("failed to decode source weights: %w", err)
	}
	if minWeight.Valid {
		p.MinSurvivingWeight = &minWeight.Float64
	}
	return &p, nil
}

func (s *PostgresStore) Put(ctx context.Context, p *Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	weightsJSON, err := json.Marshal(p.SourceWeights)
	if err != nil {
		return fmt.Errorf("failed to marshal source weights: %w", err)
	}
	var minWeight sql.NullFloat64
	if p.MinSurvivingWeight != nil {
		minWeight = sql.NullFloat64{Float64: *p.MinSurvivingWeight, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (tenant_id, module, version, approve_below, decline_at,
		                      degraded_mode, source_weights, min_surviving_weight,
		                      ev_enabled, estimated_margin_rate, loss_given_fraud)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, module) DO UPDATE SET
			version = EXCLUDED.version,
			approve_below = EXCLUDED.approve_below,
			decline_at = EXCLUDED.decline_at,
			degraded_mode = EXCLUDED.degraded_mode,
			source_weights = EXCLUDED.source_weights,
			min_surviving_weight = EXCLUDED.min_surviving_weight,
			ev_enabled = EXCLUDED.ev_enabled,
			estimated_margin_rate = EXCLUDED.estimated_margin_rate,
			loss_given_fraud = EXCLUDED.loss_given_fraud,
			updated_at = NOW()
	`,
		p.TenantID, p.Module, p.Version, p.ApproveBelow, p.DeclineAt,
		string(p.DegradedMode), weightsJSON, minWeight,
		p.EVEnabled, p.EstimatedMarginRate, p.LossGivenFraud,
	)
	if err != nil {
		return fmt.Errorf("failed to store policy: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, module, version, approve_below, decline_at,
		       degraded_mode, source_weights, min_surviving_weight,
		       ev_enabled, estimated_margin_rate, loss_given_fraud
		FROM policies
		WHERE tenant_id = $1
		ORDER BY module
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Policy
	for rows.Next() {
		var (
			p           Policy
			weightsJSON []byte
			minWeight   sql.NullFloat64
		)
		if err := rows.Scan(
			&p.TenantID, &p.Module, &p.Version, &p.ApproveBelow, &p.DeclineAt,
			&p.DegradedMode, &weightsJSON, &minWeight,
			&p.EVEnabled, &p.EstimatedMarginRate, &p.LossGivenFraud,
		); err != nil {
			continue
		}
		p.SourceWeights = make(map[string]float64)
		_ = json.Unmarshal(weightsJSON, &p.SourceWeights)
		if minWeight.Valid {
			p.MinSurvivingWeight = &minWeight.Float64
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
