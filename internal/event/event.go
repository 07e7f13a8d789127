// Package event defines the events the risk engine scores.
//
// An event is immutable once submitted: the engine never mutates the payload,
// and the decision record stores a snapshot of exactly what was scored.
package event

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Rivega42/FRADECT/internal/idgen"
)

// ErrUnknownKind is wrapped by Validate for kinds the engine cannot
// score. Like a missing mandatory field, it is a caller error.
var ErrUnknownKind = errors.New("unknown event kind")

// Kind classifies what is being scored.
type Kind string

const (
	KindTransaction    Kind = "transaction"
	KindCreditRequest  Kind = "credit_request"
	KindProjectKickoff Kind = "project_kickoff"
)

// Valid reports whether the kind is one the engine knows how to score.
func (k Kind) Valid() bool {
	switch k {
	case KindTransaction, KindCreditRequest, KindProjectKickoff:
		return true
	}
	return false
}

// Context identifies which policy configuration applies to an event.
type Context struct {
	TenantID string `json:"tenantId"`
	Module   string `json:"module"`
}

// Event is the unit of scoring.
type Event struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Payload    map[string]any `json:"payload"`
	OccurredAt time.Time      `json:"occurredAt"`
	Context    Context        `json:"context"`
}

// mandatoryFields lists the payload fields each kind must carry.
// Everything else is optional and may be enriched from lookups.
var mandatoryFields = map[Kind][]string{
	KindTransaction:    {"amount", "currency", "customer_id"},
	KindCreditRequest:  {"amount", "customer_id"},
	KindProjectKickoff: {"budget", "customer_id"},
}

// IncompleteEventError reports mandatory payload fields missing for the
// event's kind. It is a caller error: the request is rejected before any
// scoring source runs, and it is never retried.
type IncompleteEventError struct {
	Kind    Kind
	Missing []string
}

func (e *IncompleteEventError) Error() string {
	return fmt.Sprintf("event payload for kind %q is missing mandatory fields: %s",
		e.Kind, strings.Join(e.Missing, ", "))
}

// Normalize fills in a generated ID and a timestamp when the caller
// supplied neither. Called once at intake.
func (e *Event) Normalize() {
	if e.ID == "" {
		e.ID = idgen.WithPrefix("evt_")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
}

// Validate checks the event is scoreable: known kind and all mandatory
// payload fields present and non-nil. Returns *IncompleteEventError on
// missing fields.
func (e *Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w %q", ErrUnknownKind, e.Kind)
	}

	var missing []string
	for _, f := range mandatoryFields[e.Kind] {
		v, ok := e.Payload[f]
		if !ok || v == nil {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &IncompleteEventError{Kind: e.Kind, Missing: missing}
	}
	return nil
}

// Amount returns the monetary exposure of the event: "amount" for
// transactions and credit requests, "budget" for project kickoffs.
// Returns 0 when absent or non-numeric.
func (e *Event) Amount() float64 {
	field := "amount"
	if e.Kind == KindProjectKickoff {
		field = "budget"
	}
	return toFloat(e.Payload[field])
}

// EntityID returns the identifier history lookups key on.
func (e *Event) EntityID() string {
	if v, ok := e.Payload["customer_id"].(string); ok {
		return v
	}
	return ""
}

// toFloat returns a numeric payload value as float64, tolerating the
// types JSON decoding produces.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
