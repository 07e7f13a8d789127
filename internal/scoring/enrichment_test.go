package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rivega42/FRADECT/internal/circuitbreaker"
	"github.com/Rivega42/FRADECT/internal/features"
)

type stubEnricher struct {
	result EnrichmentResult
	err    error
	calls  int
}

func (s *stubEnricher) Lookup(context.Context, string) (EnrichmentResult, error) {
	s.calls++
	return s.result, s.err
}

func enrichVector() *features.Vector {
	return &features.Vector{Features: map[string]features.Value{
		"entity_id": features.Category("cust_1"),
	}}
}

func TestEnrichmentClientHit(t *testing.T) {
	enricher := &stubEnricher{result: EnrichmentResult{
		Score:      720,
		Confidence: 0.9,
		Factors:    []Factor{{Name: "consortium_blocklist", Impact: 220}},
	}}
	c := NewEnrichmentClient("enrichment", enricher, nil)

	ss := c.Score(context.Background(), enrichVector())

	if ss.Status != StatusOK {
		t.Fatalf("status = %s, want ok", ss.Status)
	}
	if ss.Score != 720 || ss.Confidence != 0.9 {
		t.Errorf("score/confidence = %f/%f, want 720/0.9", ss.Score, ss.Confidence)
	}
}

func TestEnrichmentClientMissIsAnAnswer(t *testing.T) {
	enricher := &stubEnricher{err: ErrNotFound}
	c := NewEnrichmentClient("enrichment", enricher, nil)

	ss := c.Score(context.Background(), enrichVector())

	if ss.Status != StatusOK {
		t.Fatalf("a registry miss must score ok, got %s", ss.Status)
	}
	if ss.Score != missScore {
		t.Errorf("score = %f, want %d", ss.Score, missScore)
	}
	if len(ss.Factors) != 1 || ss.Factors[0].Name != "registry_miss" {
		t.Errorf("factors = %v, want single registry_miss", ss.Factors)
	}
	if enricher.calls != 1 {
		t.Errorf("not-found must not be retried, got %d calls", enricher.calls)
	}
}

func TestEnrichmentClientRetriesTransientFailure(t *testing.T) {
	enricher := &stubEnricher{err: ErrUnavailable}
	c := NewEnrichmentClient("enrichment", enricher, nil)

	ss := c.Score(context.Background(), enrichVector())

	if ss.Status != StatusError {
		t.Errorf("status = %s, want error", ss.Status)
	}
	if enricher.calls != 2 {
		t.Errorf("transient failure gets one retry, got %d calls", enricher.calls)
	}
}

func TestEnrichmentClientDeadlineMapsToTimeout(t *testing.T) {
	enricher := &stubEnricher{err: context.DeadlineExceeded}
	c := NewEnrichmentClient("enrichment", enricher, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	ss := c.Score(ctx, enrichVector())

	if ss.Status != StatusTimeout {
		t.Errorf("status = %s, want timeout", ss.Status)
	}
}

func TestEnrichmentClientNoEntitySkips(t *testing.T) {
	enricher := &stubEnricher{}
	c := NewEnrichmentClient("enrichment", enricher, nil)

	ss := c.Score(context.Background(), emptyVector())

	if ss.Status != StatusSkipped {
		t.Errorf("status = %s, want skipped", ss.Status)
	}
	if enricher.calls != 0 {
		t.Error("no entity id must not reach the registry")
	}
}

func TestEnrichmentClientCircuitOpens(t *testing.T) {
	enricher := &stubEnricher{err: errors.New("connection refused")}
	breaker := circuitbreaker.New(2, time.Minute)
	c := NewEnrichmentClient("enrichment", enricher, breaker)

	// One breaker failure per Score call regardless of retries inside it.
	for i := 0; i < 2; i++ {
		if ss := c.Score(context.Background(), enrichVector()); ss.Status != StatusError {
			t.Fatalf("status = %s, want error", ss.Status)
		}
	}

	before := enricher.calls
	ss := c.Score(context.Background(), enrichVector())

	if ss.Status != StatusSkipped {
		t.Errorf("open circuit must skip, got %s", ss.Status)
	}
	if enricher.calls != before {
		t.Error("open circuit must not reach the registry")
	}
}
