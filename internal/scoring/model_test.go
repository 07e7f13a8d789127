package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/Rivega42/FRADECT/internal/features"
)

type stubPredictor struct {
	name string
	p    float64
	err  error
}

func (s stubPredictor) Name() string { return s.name }
func (s stubPredictor) Predict(context.Context, *features.Vector) (float64, error) {
	return s.p, s.err
}

func emptyVector() *features.Vector {
	return &features.Vector{Features: map[string]features.Value{}}
}

func TestModelScorerBlendsWeighted(t *testing.T) {
	m := NewModelScorer("model", []WeightedPredictor{
		{Predictor: stubPredictor{name: "a", p: 0.8}, Weight: 0.75},
		{Predictor: stubPredictor{name: "b", p: 0.4}, Weight: 0.25},
	})

	ss := m.Score(context.Background(), emptyVector())

	if ss.Status != StatusOK {
		t.Fatalf("status = %s, want ok", ss.Status)
	}
	// 0.8*0.75 + 0.4*0.25 = 0.7 → 700
	if !almostEqual(ss.Score, 700) {
		t.Errorf("score = %f, want 700", ss.Score)
	}
}

func TestModelScorerRenormalizesOverResponders(t *testing.T) {
	m := NewModelScorer("model", []WeightedPredictor{
		{Predictor: stubPredictor{name: "a", p: 0.6}, Weight: 0.5},
		{Predictor: stubPredictor{name: "broken", err: errors.New("model store down")}, Weight: 0.5},
	})

	ss := m.Score(context.Background(), emptyVector())

	if ss.Status != StatusOK {
		t.Fatalf("one failed member must not fail the source, got %s", ss.Status)
	}
	// Only the responder counts, renormalized to full weight.
	if !almostEqual(ss.Score, 600) {
		t.Errorf("score = %f, want 600", ss.Score)
	}
}

func TestModelScorerAllMembersFail(t *testing.T) {
	m := NewModelScorer("model", []WeightedPredictor{
		{Predictor: stubPredictor{name: "a", err: errors.New("down")}, Weight: 1},
	})

	ss := m.Score(context.Background(), emptyVector())

	if ss.Status != StatusError {
		t.Errorf("status = %s, want error", ss.Status)
	}
}

func TestModelScorerEmptyEnsemble(t *testing.T) {
	m := NewModelScorer("model", nil)
	if ss := m.Score(context.Background(), emptyVector()); ss.Status != StatusError {
		t.Errorf("status = %s, want error", ss.Status)
	}
}

func TestModelScorerConfidenceTracksAgreement(t *testing.T) {
	agree := NewModelScorer("model", []WeightedPredictor{
		{Predictor: stubPredictor{name: "a", p: 0.5}, Weight: 0.5},
		{Predictor: stubPredictor{name: "b", p: 0.5}, Weight: 0.5},
	})
	split := NewModelScorer("model", []WeightedPredictor{
		{Predictor: stubPredictor{name: "a", p: 0.1}, Weight: 0.5},
		{Predictor: stubPredictor{name: "b", p: 0.9}, Weight: 0.5},
	})

	agreed := agree.Score(context.Background(), emptyVector())
	disagreed := split.Score(context.Background(), emptyVector())

	if !almostEqual(agreed.Confidence, 1) {
		t.Errorf("unanimous ensemble confidence = %f, want 1", agreed.Confidence)
	}
	if disagreed.Confidence >= agreed.Confidence {
		t.Errorf("split ensemble confidence %f should be below unanimous %f",
			disagreed.Confidence, agreed.Confidence)
	}
}

func TestModelScorerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewModelScorer("model", DefaultEnsemble())
	if ss := m.Score(ctx, emptyVector()); ss.Status != StatusTimeout {
		t.Errorf("status = %s, want timeout", ss.Status)
	}
}

func TestDefaultEnsembleHighRiskVector(t *testing.T) {
	fv := &features.Vector{Features: map[string]features.Value{
		"amount":                    features.Number(5000),
		"ip_is_vpn":                 features.Flag(true),
		"email_is_disposable":       features.Flag(true),
		"customer_is_new":           features.Flag(true),
		"transactions_last_hour":    features.Number(8),
		"amount_velocity_24h":       features.Number(20000),
		"is_night":                  features.Flag(true),
		"customer_chargeback_count": features.Number(2),
	}}
	lowRisk := &features.Vector{Features: map[string]features.Value{
		"amount":                features.Number(40),
		"customer_total_orders": features.Number(30),
	}}

	m := NewModelScorer("model", DefaultEnsemble())
	hi := m.Score(context.Background(), fv)
	lo := m.Score(context.Background(), lowRisk)

	if hi.Status != StatusOK || lo.Status != StatusOK {
		t.Fatalf("statuses = %s, %s; want ok, ok", hi.Status, lo.Status)
	}
	if hi.Score <= lo.Score {
		t.Errorf("high-risk vector scored %f, low-risk %f; expected strict ordering", hi.Score, lo.Score)
	}
}
