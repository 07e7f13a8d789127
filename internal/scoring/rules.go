package scoring

import (
	"context"
	"math"
	"time"

	"github.com/Rivega42/FRADECT/internal/features"
)

// Rule is one expert rule. Evaluate returns the signed score impact for
// the vector and whether the rule fired at all; rules that do not fire
// contribute nothing and produce no factor.
type Rule struct {
	Name        string
	Description string
	Evaluate    func(fv *features.Vector) (impact float64, fired bool)
}

// RuleProvider supplies the active rule set for a module. The indirection
// lets rule sets live in config or a store without the evaluator caring.
type RuleProvider interface {
	Rules(module string) []Rule
}

// StaticRules is a RuleProvider serving one fixed rule set for every
// module.
type StaticRules []Rule

func (r StaticRules) Rules(string) []Rule { return r }

// RuleEvaluator scores events against an expert rule set. It starts from
// the neutral midpoint and applies each fired rule's impact additively,
// clamping to the valid range. Deterministic and effectively instant, so
// it survives any scoring deadline the engine runs under.
type RuleEvaluator struct {
	id       string
	provider RuleProvider
}

// NewRuleEvaluator builds a rule source over the given provider.
func NewRuleEvaluator(id string, provider RuleProvider) *RuleEvaluator {
	return &RuleEvaluator{id: id, provider: provider}
}

func (r *RuleEvaluator) ID() string { return r.id }

// Score applies the module's rule set to the feature vector.
func (r *RuleEvaluator) Score(_ context.Context, fv *features.Vector) SubScore {
	start := time.Now()

	module := ""
	if v := fv.Get("module"); !v.IsAbsent() {
		module = v.Category
	}
	rules := r.provider.Rules(module)

	score := float64(NeutralScore)
	var factors []Factor
	for _, rule := range rules {
		impact, fired := rule.Evaluate(fv)
		if !fired {
			continue
		}
		score += impact
		factors = append(factors, Factor{
			Name:        rule.Name,
			Impact:      impact,
			Description: rule.Description,
		})
	}

	// Confidence scales with how much signal actually fired: a vector no
	// rule matched is a shrug, not a clean bill.
	confidence := 0.5
	if len(factors) > 0 {
		confidence = clamp01(0.6 + 0.1*float64(len(factors)))
	}

	return SubScore{
		SourceID:   r.id,
		Score:      clamp(score),
		Confidence: confidence,
		Factors:    factors,
		Status:     StatusOK,
		Elapsed:    time.Since(start),
	}
}

// DefaultRules is the reference fraud rule set.
func DefaultRules() StaticRules {
	return StaticRules{
		{
			Name:        "vpn_connection",
			Description: "connection arrives through a known VPN or proxy",
			Evaluate: func(fv *features.Vector) (float64, bool) {
				return 120, fv.Flag("ip_is_vpn")
			},
		},
		{
			Name:        "disposable_email",
			Description: "customer email uses a throwaway provider",
			Evaluate: func(fv *features.Vector) (float64, bool) {
				return 150, fv.Flag("email_is_disposable")
			},
		},
		{
			Name:        "address_mismatch",
			Description: "shipping and billing countries differ",
			Evaluate: func(fv *features.Vector) (float64, bool) {
				v := fv.Get("addresses_match")
				return 100, !v.IsAbsent() && !v.Bool
			},
		},
		{
			Name:        "high_risk_destination",
			Description: "shipping destination is on the elevated-risk list",
			Evaluate: func(fv *features.Vector) (float64, bool) {
				return fv.Number("shipping_country_risk", 0), fv.Number("shipping_country_risk", 0) > 0
			},
		},
		{
			Name:        "burst_velocity",
			Description: "unusually many transactions in the last hour",
			Evaluate: func(fv *features.Vector) (float64, bool) {
				n := fv.Number("transactions_last_hour", 0)
				return 40 * math.Min(n, 5), n > 3
			},
		},
		{
			Name:        "new_customer_large_order",
			Description: "first-time customer placing a large order",
			Evaluate: func(fv *features.Vector) (float64, bool) {
				return 130, fv.Flag("customer_is_new") && fv.Number("amount", 0) > 1000
			},
		},
		{
			Name:        "chargeback_history",
			Description: "customer has prior chargebacks on record",
			Evaluate: func(fv *features.Vector) (float64, bool) {
				n := fv.Number("customer_chargeback_count", 0)
				return 80 * math.Min(n, 3), n > 0
			},
		},
		{
			Name:        "night_activity",
			Description: "order placed during the overnight window",
			Evaluate: func(fv *features.Vector) (float64, bool) {
				return 40, fv.Flag("is_night")
			},
		},
		{
			Name:        "established_customer",
			Description: "long order history without chargebacks lowers risk",
			Evaluate: func(fv *features.Vector) (float64, bool) {
				orders := fv.Number("customer_total_orders", 0)
				chargebacks := fv.Number("customer_chargeback_count", 0)
				return -120, orders >= 10 && chargebacks == 0
			},
		},
	}
}

var _ Source = (*RuleEvaluator)(nil)
