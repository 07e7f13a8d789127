// Package decisions stores the append-only audit trail of risk decisions.
//
// A record is written once per event and never mutated, with one
// exception: a single ground-truth outcome label may be attached later.
// Replaying an event returns the original record instead of creating a
// second one, which is what makes retries safe end to end.
package decisions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rivega42/FRADECT/internal/event"
	"github.com/Rivega42/FRADECT/internal/features"
	"github.com/Rivega42/FRADECT/internal/policy"
	"github.com/Rivega42/FRADECT/internal/scoring"
)

// Outcome is the ground-truth label attached to a decision after the
// fact, used for model evaluation and policy drift analysis.
type Outcome string

const (
	OutcomeUnknown        Outcome = "unknown"
	OutcomeConfirmedFraud Outcome = "confirmed_fraud"
	OutcomeFalsePositive  Outcome = "false_positive"
	OutcomeConfirmedGood  Outcome = "confirmed_good"
)

// Valid reports whether the outcome is a label callers may record.
// OutcomeUnknown is the initial state, not a recordable label.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeConfirmedFraud, OutcomeFalsePositive, OutcomeConfirmedGood:
		return true
	}
	return false
}

// Record is one immutable audit entry: exactly what was scored, what
// every source said, and what was decided.
type Record struct {
	ID       string `json:"id"`
	EventID  string `json:"eventId"`
	TenantID string `json:"tenantId"`
	Module   string `json:"module"`

	Event         *event.Event          `json:"event"`
	Features      *features.Vector      `json:"features"`
	SubScores     []scoring.SubScore    `json:"subScores"`
	CombinedScore scoring.CombinedScore `json:"combinedScore"`
	Decision      policy.Decision       `json:"decision"`

	CreatedAt time.Time  `json:"createdAt"`
	Outcome   Outcome    `json:"outcome"`
	OutcomeAt *time.Time `json:"outcomeAt,omitempty"`
}

// ErrRecordNotFound is returned when no record exists for the given id.
var ErrRecordNotFound = errors.New("decision record not found")

// DuplicateOutcomeError reports a second outcome submission for a record
// that already carries one. The stored outcome is unchanged.
type DuplicateOutcomeError struct {
	RecordID string
	Existing Outcome
}

func (e *DuplicateOutcomeError) Error() string {
	return fmt.Sprintf("decision record %s already has outcome %q", e.RecordID, e.Existing)
}

// Store persists decision records.
//
// Create is idempotent on the event id: inserting a record for an event
// that already has one returns the existing record and created=false,
// without touching storage.
type Store interface {
	Create(ctx context.Context, rec *Record) (stored *Record, created bool, err error)
	Get(ctx context.Context, id string) (*Record, error)
	GetByEvent(ctx context.Context, eventID string) (*Record, error)
	RecordOutcome(ctx context.Context, id string, outcome Outcome) (*Record, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Record, error)
}
