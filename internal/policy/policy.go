// Package policy maps combined risk scores to decisions under
// per-tenant, per-module configuration.
//
// A policy never sees how a score was produced; it sees the combined
// score, the degraded flag, and the monetary exposure, and returns one of
// three ordered actions. All tightening under degradation moves decisions
// toward review/decline, never the other way.
package policy

import (
	"context"
	"fmt"
)

// Action is the three-tier decision vocabulary. Module-specific wordings
// map onto this ordering at the API edge.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReview  Action = "review"
	ActionDecline Action = "decline"
)

// Tier is a coarse risk band derived from the combined score. It rides
// along on the decision for reporting; actions come from the thresholds,
// not the tier.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// TierFor maps a 0..1000 score to its risk band.
func TierFor(score float64) Tier {
	switch {
	case score < 300:
		return TierLow
	case score < 600:
		return TierMedium
	case score < 800:
		return TierHigh
	default:
		return TierCritical
	}
}

// DegradedMode selects how a policy reacts when the combined score was
// produced without a full set of sources.
type DegradedMode string

const (
	// DegradedTighten halves the approve threshold: borderline approvals
	// become reviews while clear approvals still pass.
	DegradedTighten DegradedMode = "tighten"
	// DegradedForceReview turns every would-be approval into a review.
	DegradedForceReview DegradedMode = "force_review"
	// DegradedProceed applies the normal thresholds unchanged.
	DegradedProceed DegradedMode = "proceed_as_is"
)

// Policy is one tenant+module decision configuration.
type Policy struct {
	TenantID string `json:"tenantId"`
	Module   string `json:"module"`
	Version  string `json:"version"`

	// Thresholds on the 0..1000 combined score. ApproveBelow must be
	// <= DeclineAt; scores in between go to review.
	ApproveBelow float64 `json:"approveBelow"`
	DeclineAt    float64 `json:"declineAt"`

	DegradedMode DegradedMode `json:"degradedMode"`

	// SourceWeights and MinSurvivingWeight configure the combiner for
	// this module. A nil MinSurvivingWeight defers to the engine default;
	// an explicit zero disables the floor.
	SourceWeights      map[string]float64 `json:"sourceWeights"`
	MinSurvivingWeight *float64           `json:"minSurvivingWeight,omitempty"`

	// Expected-value mode. Off by default; revenue-optimized modules
	// opt in explicitly.
	EVEnabled           bool    `json:"evEnabled"`
	EstimatedMarginRate float64 `json:"estimatedMarginRate"`
	LossGivenFraud      float64 `json:"lossGivenFraud"`
}

// DefaultLossGivenFraud is the loss fraction assumed when a policy does
// not set its own.
const DefaultLossGivenFraud = 0.8

// BusinessContext carries the monetary context a decision may weigh.
type BusinessContext struct {
	Amount float64
}

// Decision is the policy verdict for one combined score.
type Decision struct {
	Action        Action   `json:"action"`
	Score         float64  `json:"score"`
	Tier          Tier     `json:"tier"`
	ExpectedLoss  float64  `json:"expectedLoss,omitempty"`
	ExpectedValue float64  `json:"expectedValue,omitempty"`
	Reasons       []string `json:"reasons"`
	PolicyVersion string   `json:"policyVersion"`
	Degraded      bool     `json:"degraded"`
}

// UnknownPolicyError reports that no policy exists for a tenant+module.
// It is a configuration fault, not a caller fault: the request cannot be
// served until an operator installs a policy.
type UnknownPolicyError struct {
	TenantID string
	Module   string
}

func (e *UnknownPolicyError) Error() string {
	return fmt.Sprintf("no decision policy configured for tenant %q module %q", e.TenantID, e.Module)
}

// Store resolves policies by tenant and module.
type Store interface {
	Get(ctx context.Context, tenantID, module string) (*Policy, error)
	Put(ctx context.Context, p *Policy) error
	ListByTenant(ctx context.Context, tenantID string) ([]*Policy, error)
}

// Validate checks threshold ordering and EV parameters.
func (p *Policy) Validate() error {
	if p.ApproveBelow < 0 || p.DeclineAt > 1000 {
		return fmt.Errorf("thresholds must lie within the 0..1000 score range")
	}
	if p.ApproveBelow > p.DeclineAt {
		return fmt.Errorf("approve threshold %.0f exceeds decline threshold %.0f", p.ApproveBelow, p.DeclineAt)
	}
	switch p.DegradedMode {
	case DegradedTighten, DegradedForceReview, DegradedProceed:
	default:
		return fmt.Errorf("unknown degraded mode %q", p.DegradedMode)
	}
	if p.MinSurvivingWeight != nil && (*p.MinSurvivingWeight < 0 || *p.MinSurvivingWeight > 1) {
		return fmt.Errorf("min surviving weight %.3f must lie within [0, 1]", *p.MinSurvivingWeight)
	}
	if p.EVEnabled && p.EstimatedMarginRate <= 0 {
		return fmt.Errorf("expected-value mode requires a positive margin rate")
	}
	return nil
}

// Decide maps a combined score to an action.
//
// Baseline: score < ApproveBelow approves, score >= DeclineAt declines,
// anything between goes to review. Degradation can only tighten the
// approve side; the decline threshold never moves. Expected-value
// promotion applies last and only upward from review, never when
// degraded and never past the decline threshold.
func (p *Policy) Decide(score float64, degraded bool, bc BusinessContext) Decision {
	d := Decision{
		Score:         score,
		Tier:          TierFor(score),
		PolicyVersion: p.Version,
		Degraded:      degraded,
	}

	approveBelow := p.ApproveBelow
	if degraded {
		switch p.DegradedMode {
		case DegradedTighten:
			approveBelow = p.ApproveBelow / 2
			d.Reasons = append(d.Reasons, "degraded scoring: approve threshold tightened")
		case DegradedForceReview:
			approveBelow = 0
			d.Reasons = append(d.Reasons, "degraded scoring: approvals forced to review")
		}
	}

	switch {
	case score >= p.DeclineAt:
		d.Action = ActionDecline
		d.Reasons = append(d.Reasons, fmt.Sprintf("score %.0f at or above decline threshold %.0f", score, p.DeclineAt))
	case score < approveBelow:
		d.Action = ActionApprove
		d.Reasons = append(d.Reasons, fmt.Sprintf("score %.0f below approve threshold %.0f", score, approveBelow))
	default:
		d.Action = ActionReview
		d.Reasons = append(d.Reasons, fmt.Sprintf("score %.0f requires manual review", score))
	}

	if p.EVEnabled && bc.Amount > 0 {
		lgf := p.LossGivenFraud
		if lgf <= 0 {
			lgf = DefaultLossGivenFraud
		}
		d.ExpectedLoss = score / 1000 * lgf * bc.Amount
		d.ExpectedValue = p.EstimatedMarginRate*bc.Amount - d.ExpectedLoss

		if d.Action == ActionReview && !degraded && score < p.DeclineAt && d.ExpectedValue > 0 {
			d.Action = ActionApprove
			d.Reasons = append(d.Reasons,
				fmt.Sprintf("positive expected value %.2f promotes review to approve", d.ExpectedValue))
		}
	}

	return d
}

// Default returns the built-in policy installed for new tenants.
func Default(tenantID, module string) *Policy {
	return &Policy{
		TenantID:     tenantID,
		Module:       module,
		Version:      "v1",
		ApproveBelow: 300,
		DeclineAt:    800,
		DegradedMode: DegradedTighten,
		SourceWeights: map[string]float64{
			"model":      0.5,
			"rules":      0.3,
			"enrichment": 0.2,
		},
		MinSurvivingWeight:  MinWeight(0.5),
		LossGivenFraud:      DefaultLossGivenFraud,
		EstimatedMarginRate: 0.1,
	}
}

// MinWeight returns a pointer to a surviving-weight floor, for building
// policies in code.
func MinWeight(v float64) *float64 { return &v }
