package scoring

import (
	"context"
	"testing"

	"github.com/Rivega42/FRADECT/internal/features"
)

func TestRuleEvaluatorNeutralWhenNothingFires(t *testing.T) {
	r := NewRuleEvaluator("rules", StaticRules{})

	ss := r.Score(context.Background(), emptyVector())

	if ss.Status != StatusOK {
		t.Fatalf("status = %s, want ok", ss.Status)
	}
	if ss.Score != NeutralScore {
		t.Errorf("score = %f, want neutral %d", ss.Score, NeutralScore)
	}
	if len(ss.Factors) != 0 {
		t.Errorf("no rule fired, factors = %v", ss.Factors)
	}
}

func TestRuleEvaluatorAdditiveImpacts(t *testing.T) {
	rules := StaticRules{
		{Name: "up", Evaluate: func(*features.Vector) (float64, bool) { return 150, true }},
		{Name: "down", Evaluate: func(*features.Vector) (float64, bool) { return -50, true }},
		{Name: "silent", Evaluate: func(*features.Vector) (float64, bool) { return 999, false }},
	}
	r := NewRuleEvaluator("rules", rules)

	ss := r.Score(context.Background(), emptyVector())

	if !almostEqual(ss.Score, 600) {
		t.Errorf("score = %f, want 500+150-50 = 600", ss.Score)
	}
	if len(ss.Factors) != 2 {
		t.Fatalf("factors = %d, want the 2 fired rules", len(ss.Factors))
	}
	if ss.Factors[0].Name != "up" || ss.Factors[1].Name != "down" {
		t.Errorf("factors must preserve rule order, got %s, %s", ss.Factors[0].Name, ss.Factors[1].Name)
	}
}

func TestRuleEvaluatorClampsToRange(t *testing.T) {
	high := StaticRules{
		{Name: "a", Evaluate: func(*features.Vector) (float64, bool) { return 400, true }},
		{Name: "b", Evaluate: func(*features.Vector) (float64, bool) { return 400, true }},
	}
	low := StaticRules{
		{Name: "a", Evaluate: func(*features.Vector) (float64, bool) { return -900, true }},
	}

	if ss := NewRuleEvaluator("rules", high).Score(context.Background(), emptyVector()); ss.Score != MaxScore {
		t.Errorf("score = %f, want clamp at %d", ss.Score, MaxScore)
	}
	if ss := NewRuleEvaluator("rules", low).Score(context.Background(), emptyVector()); ss.Score != MinScore {
		t.Errorf("score = %f, want clamp at %d", ss.Score, MinScore)
	}
}

func TestDefaultRulesFraudSignals(t *testing.T) {
	fv := &features.Vector{Features: map[string]features.Value{
		"ip_is_vpn":             features.Flag(true),
		"email_is_disposable":   features.Flag(true),
		"addresses_match":       features.Flag(false),
		"shipping_country_risk": features.Number(80),
	}}

	ss := NewRuleEvaluator("rules", DefaultRules()).Score(context.Background(), fv)

	// 500 + 120 + 150 + 100 + 80
	if !almostEqual(ss.Score, 950) {
		t.Errorf("score = %f, want 950", ss.Score)
	}
	names := make(map[string]bool)
	for _, f := range ss.Factors {
		names[f.Name] = true
	}
	for _, want := range []string{"vpn_connection", "disposable_email", "address_mismatch", "high_risk_destination"} {
		if !names[want] {
			t.Errorf("missing factor %s in %v", want, ss.Factors)
		}
	}
}

func TestDefaultRulesEstablishedCustomerLowersScore(t *testing.T) {
	fv := &features.Vector{Features: map[string]features.Value{
		"customer_total_orders":     features.Number(25),
		"customer_chargeback_count": features.Number(0),
	}}

	ss := NewRuleEvaluator("rules", DefaultRules()).Score(context.Background(), fv)

	if ss.Score >= NeutralScore {
		t.Errorf("score = %f, established customer should land below neutral", ss.Score)
	}
}
