package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/Rivega42/FRADECT/internal/circuitbreaker"
	"github.com/Rivega42/FRADECT/internal/features"
	"github.com/Rivega42/FRADECT/internal/logging"
	"github.com/Rivega42/FRADECT/internal/retry"
)

// Enricher is the outbound side of an external risk registry: a shared
// blocklist, a consortium score, a device-reputation service. Lookup
// returns ErrNotFound when the entity is simply unknown to the registry
// and ErrUnavailable (or any other error) when the registry itself is
// unhealthy.
type Enricher interface {
	Lookup(ctx context.Context, entityID string) (EnrichmentResult, error)
}

// Enricher sentinel errors.
var (
	ErrNotFound    = errors.New("enrichment: entity not found")
	ErrUnavailable = errors.New("enrichment: registry unavailable")
)

// EnrichmentResult is what an external registry knows about an entity.
type EnrichmentResult struct {
	Score      float64 // 0..1000
	Confidence float64 // 0..1
	Factors    []Factor
}

// missScore is reported when the registry has never seen the entity.
// An unknown entity is mild positive signal, not neutral: blocklisted
// actors are in the registry, first-seen ones are not.
const missScore = 300

// EnrichmentClient adapts an external registry into a scoring source.
// Each lookup runs under the adapter sub-deadline with one retry for
// transient failures, behind a circuit breaker so a dead registry sheds
// load instead of burning the scoring budget on every request.
type EnrichmentClient struct {
	id       string
	enricher Enricher
	breaker  *circuitbreaker.Breaker
}

// NewEnrichmentClient wraps an enricher as a scoring source. The breaker
// may be shared across clients; per-source state is keyed by id.
func NewEnrichmentClient(id string, enricher Enricher, breaker *circuitbreaker.Breaker) *EnrichmentClient {
	return &EnrichmentClient{id: id, enricher: enricher, breaker: breaker}
}

func (c *EnrichmentClient) ID() string { return c.id }

// Score looks the event's entity up in the external registry.
func (c *EnrichmentClient) Score(ctx context.Context, fv *features.Vector) SubScore {
	start := time.Now()

	entityID := ""
	if v := fv.Get("entity_id"); !v.IsAbsent() {
		entityID = v.Category
	}
	if entityID == "" {
		return errSubScore(c.id, StatusSkipped, errors.New("event carries no entity id"), time.Since(start))
	}

	if c.breaker != nil && !c.breaker.Allow(c.id) {
		return errSubScore(c.id, StatusSkipped, errors.New("circuit open"), time.Since(start))
	}

	var result EnrichmentResult
	err := retry.Do(ctx, 2, 20*time.Millisecond, func() error {
		var lookupErr error
		result, lookupErr = c.enricher.Lookup(ctx, entityID)
		if errors.Is(lookupErr, ErrNotFound) {
			return retry.Permanent(lookupErr)
		}
		return lookupErr
	})

	switch {
	case err == nil:
		if c.breaker != nil {
			c.breaker.RecordSuccess(c.id)
		}
		return SubScore{
			SourceID:   c.id,
			Score:      clamp(result.Score),
			Confidence: clamp01(result.Confidence),
			Factors:    result.Factors,
			Status:     StatusOK,
			Elapsed:    time.Since(start),
		}

	case errors.Is(err, ErrNotFound):
		// A miss is an answer. The registry responded; the breaker stays
		// healthy and the sub-score carries the first-seen signal.
		if c.breaker != nil {
			c.breaker.RecordSuccess(c.id)
		}
		return SubScore{
			SourceID:   c.id,
			Score:      missScore,
			Confidence: 0.4,
			Factors: []Factor{{
				Name:        "registry_miss",
				Impact:      missScore - NeutralScore,
				Description: "entity not present in the external risk registry",
			}},
			Status:  StatusOK,
			Elapsed: time.Since(start),
		}

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		if c.breaker != nil {
			c.breaker.RecordFailure(c.id)
		}
		return errSubScore(c.id, StatusTimeout, err, time.Since(start))

	default:
		if c.breaker != nil {
			c.breaker.RecordFailure(c.id)
		}
		logging.L(ctx).Warn("enrichment lookup failed",
			"source", c.id, "entity_id", entityID, "error", err)
		return errSubScore(c.id, StatusError, err, time.Since(start))
	}
}

var _ Source = (*EnrichmentClient)(nil)
