// Package scoring implements the concurrent multi-source risk scoring core:
// the source adapter contract, the three adapter kinds (model ensemble,
// rule evaluator, external enrichment), the fan-out orchestrator, and the
// score combiner.
//
// The central discipline: adapter failure is data, not an error. A source
// that times out or errors reports that in its SubScore status and drops
// out of the weighted combination; it never fails the request. Only zero
// usable sources escalates, and that decision belongs to the engine, not
// to this package.
package scoring

import (
	"context"
	"time"

	"github.com/Rivega42/FRADECT/internal/features"
)

// Score bounds. Scores are normalized to 0..1000, higher = riskier.
const (
	MinScore = 0
	MaxScore = 1000

	// NeutralScore is the no-signal midpoint the rule evaluator starts from.
	NeutralScore = 500
)

// Status is the terminal state of one source adapter for one request.
type Status string

const (
	StatusOK      Status = "ok"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Factor is one named contribution to a sub-score, surfaced to callers
// as a decision reason. Impact is signed: positive pushes toward decline.
type Factor struct {
	Name        string  `json:"name"`
	Impact      float64 `json:"impact"`
	Description string  `json:"description"`
}

// SubScore is one source adapter's assessment of an event.
// A SubScore with Status != ok participates in combination bookkeeping
// (it appears in the result set, drives the degraded flag) but carries
// no numeric weight.
type SubScore struct {
	SourceID   string        `json:"sourceId"`
	Score      float64       `json:"score"`      // 0..1000
	Confidence float64       `json:"confidence"` // 0..1
	Factors    []Factor      `json:"factors,omitempty"`
	Status     Status        `json:"status"`
	Err        string        `json:"error,omitempty"`
	Elapsed    time.Duration `json:"-"`
}

// Usable reports whether the sub-score carries numeric weight.
func (s SubScore) Usable() bool { return s.Status == StatusOK }

// Source is the uniform capability every heterogeneous scoring source
// implements. The deadline arrives on ctx; an adapter that cannot finish
// in time must return a timeout-status SubScore promptly rather than
// block past it — the orchestrator enforces a hard bound regardless, but
// self-limiting adapters produce cleaner partial-failure signals.
type Source interface {
	ID() string
	Score(ctx context.Context, fv *features.Vector) SubScore
}

// clamp bounds a score to the valid range.
func clamp(score float64) float64 {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// clamp01 bounds a confidence to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// errSubScore builds a no-weight SubScore for a failed source.
func errSubScore(sourceID string, status Status, err error, elapsed time.Duration) SubScore {
	s := SubScore{SourceID: sourceID, Status: status, Elapsed: elapsed}
	if err != nil {
		s.Err = err.Error()
	}
	return s
}
