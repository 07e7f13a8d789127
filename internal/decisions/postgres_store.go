package decisions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists decision records in PostgreSQL.
//
// Idempotency on event_id rides on a unique index: a replayed event hits
// the conflict path and the original record is returned untouched. The
// outcome update is guarded in SQL so two concurrent feedback calls
// cannot both win.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed decision record store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `
	id, event_id, tenant_id, module, event, features,
	sub_scores, combined_score, decision, created_at, outcome, outcome_at`

func (s *PostgresStore) Create(ctx context.Context, rec *Record) (*Record, bool, error) {
	eventJSON, err := json.Marshal(rec.Event)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal event snapshot: %w", err)
	}
	featuresJSON, err := json.Marshal(rec.Features)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal feature snapshot: %w", err)
	}
	subScoresJSON, err := json.Marshal(rec.SubScores)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal sub-scores: %w", err)
	}
	combinedJSON, err := json.Marshal(rec.CombinedScore)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal combined score: %w", err)
	}
	decisionJSON, err := json.Marshal(rec.Decision)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal decision: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decision_records (id, event_id, tenant_id, module, event, features,
		                              sub_scores, combined_score, decision, created_at, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.ID, rec.EventID, rec.TenantID, rec.Module, eventJSON, featuresJSON,
		subScoresJSON, combinedJSON, decisionJSON, rec.CreatedAt, string(OutcomeUnknown),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			existing, getErr := s.GetByEvent(ctx, rec.EventID)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to load existing record after conflict: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create decision record: %w", err)
	}

	cp := *rec
	cp.Outcome = OutcomeUnknown
	return &cp, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM decision_records
		WHERE id = $1
	`, id)
	return scanRecord(row)
}

func (s *PostgresStore) GetByEvent(ctx context.Context, eventID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM decision_records
		WHERE event_id = $1
	`, eventID)
	return scanRecord(row)
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, id string, outcome Outcome) (*Record, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE decision_records
		SET outcome = $2, outcome_at = NOW()
		WHERE id = $1 AND outcome = $3
	`, id, string(outcome), string(OutcomeUnknown))
	if err != nil {
		return nil, fmt.Errorf("failed to record outcome: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read outcome update result: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr // not found
		}
		return nil, &DuplicateOutcomeError{RecordID: id, Existing: existing.Outcome}
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM decision_records
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			continue
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec           Record
		eventJSON     []byte
		featuresJSON  []byte
		subScoresJSON []byte
		combinedJSON  []byte
		decisionJSON  []byte
		outcomeAt     sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.EventID, &rec.TenantID, &rec.Module, &eventJSON, &featuresJSON,
		&subScoresJSON, &combinedJSON, &decisionJSON, &rec.CreatedAt, &rec.Outcome, &outcomeAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan decision record: %w", err)
	}

	if err := json.Unmarshal(eventJSON, &rec.Event); err != nil {
		return nil, fmt.Errorf("failed to decode event snapshot: %w", err)
	}
	if err := json.Unmarshal(featuresJSON, &rec.Features); err != nil {
		return nil, fmt.Errorf("failed to decode feature snapshot: %w", err)
	}
	if err := json.Unmarshal(subScoresJSON, &rec.SubScores); err != nil {
		return nil, fmt.Errorf("failed to decode sub-scores: %w", err)
	}
	if err := json.Unmarshal(combinedJSON, &rec.CombinedScore); err != nil {
		return nil, fmt.Errorf("failed to decode combined score: %w", err)
	}
	if err := json.Unmarshal(decisionJSON, &rec.Decision); err != nil {
		return nil, fmt.Errorf("failed to decode decision: %w", err)
	}
	if outcomeAt.Valid {
		t := outcomeAt.Time
		rec.OutcomeAt = &t
	}
	return &rec, nil
}

var _ Store = (*PostgresStore)(nil)
