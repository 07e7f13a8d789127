// Package engine wires the decision pipeline together: one call in,
// one decision out, inside the latency budget.
//
// The pipeline is validate → assemble features → fan out to scoring
// sources → combine → apply policy → record. Partial source failure
// flows through as a degraded decision; only a request that cannot
// produce any decision at all surfaces an error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rivega42/FRADECT/internal/config"
	"github.com/Rivega42/FRADECT/internal/decisions"
	"github.com/Rivega42/FRADECT/internal/event"
	"github.com/Rivega42/FRADECT/internal/features"
	"github.com/Rivega42/FRADECT/internal/idgen"
	"github.com/Rivega42/FRADECT/internal/logging"
	"github.com/Rivega42/FRADECT/internal/metrics"
	"github.com/Rivega42/FRADECT/internal/policy"
	"github.com/Rivega42/FRADECT/internal/realtime"
	"github.com/Rivega42/FRADECT/internal/scoring"
	"github.com/Rivega42/FRADECT/internal/traces"
)

// AllSourcesFailedError reports that no scoring source produced a usable
// sub-score, so no decision could be made. It is retryable: the sources
// may recover.
type AllSourcesFailedError struct {
	Statuses map[string]scoring.Status
}

func (e *AllSourcesFailedError) Error() string {
	return fmt.Sprintf("all scoring sources failed: %v", e.Statuses)
}

// ScoreRequest is the synchronous scoring entry point's input.
type ScoreRequest struct {
	Event          *event.Event `json:"event"`
	IncludeFactors bool         `json:"includeFactors"`
}

// ScoreResponse is what callers get back for one scored event.
type ScoreResponse struct {
	RequestID        string                `json:"requestId"`
	RecordID         string                `json:"recordId"`
	EventID          string                `json:"eventId"`
	CombinedScore    scoring.CombinedScore `json:"combinedScore"`
	Decision         policy.Decision       `json:"decision"`
	Factors          []scoring.Factor      `json:"factors,omitempty"`
	Degraded         bool                  `json:"degraded"`
	Replayed         bool                  `json:"replayed"`
	ProcessingTimeMS int64                 `json:"processingTimeMs"`
}

// maxReasonFactors bounds how many factors a response carries.
const maxReasonFactors = 10

// Service runs the decision pipeline.
type Service struct {
	cfg          *config.Config
	assembler    *features.Assembler
	orchestrator *scoring.Orchestrator
	policies     policy.Store
	records      decisions.Store
	hub          *realtime.Hub

	batch *batchRunner
}

// New creates the decision engine. The hub may be nil; decisions are
// then simply not streamed.
func New(
	cfg *config.Config,
	assembler *features.Assembler,
	orchestrator *scoring.Orchestrator,
	policies policy.Store,
	records decisions.Store,
	hub *realtime.Hub,
) *Service {
	s := &Service{
		cfg:          cfg,
		assembler:    assembler,
		orchestrator: orchestrator,
		policies:     policies,
		records:      records,
		hub:          hub,
	}
	s.batch = newBatchRunner(s, cfg.BatchWorkers, cfg.BatchJobTTL)
	return s
}

// Score runs the full pipeline for one event.
//
// Error taxonomy: *event.IncompleteEventError and unknown-kind errors
// mean "fix your request"; *policy.UnknownPolicyError means "contact
// support"; *AllSourcesFailedError means "retry later". Nothing is
// recorded on any failure path.
func (s *Service) Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	start := time.Now()
	requestID := logging.RequestID(ctx)

	e := req.Event
	if e == nil {
		return nil, fmt.Errorf("score request carries no event")
	}
	e.Normalize()
	if e.Context.Module == "" {
		e.Context.Module = s.cfg.DefaultModule
	}

	ctx, span := traces.StartSpan(ctx, "engine.score",
		traces.EventID(e.ID), traces.EventKind(string(e.Kind)), traces.TenantID(e.Context.TenantID))
	defer span.End()

	log := logging.Scoped(ctx, e.Context.TenantID, e.Context.Module)

	if err := e.Validate(); err != nil {
		metrics.ScoringFailuresTotal.WithLabelValues("invalid_event").Inc()
		log.Warn("event rejected", "event_id", e.ID, "error", err)
		return nil, err
	}

	pol, err := s.policies.Get(ctx, e.Context.TenantID, e.Context.Module)
	if err != nil {
		metrics.ScoringFailuresTotal.WithLabelValues("unknown_policy").Inc()
		log.Error("policy resolution failed", "event_id", e.ID, "error", err)
		return nil, err
	}

	fv, err := s.assembler.Assemble(ctx, e)
	if err != nil {
		metrics.ScoringFailuresTotal.WithLabelValues("assembly").Inc()
		return nil, fmt.Errorf("feature assembly failed: %w", err)
	}

	scoringCtx, cancel := context.WithTimeout(ctx, s.cfg.ScoringBudget())
	defer cancel()
	subs := s.orchestrator.Collect(scoringCtx, fv)

	cs := scoring.Combine(subs, pol.SourceWeights, s.minSurvivingWeight(pol))

	if len(cs.ContributingSources) == 0 {
		metrics.ScoringFailuresTotal.WithLabelValues("all_sources_failed").Inc()
		statuses := make(map[string]scoring.Status, len(subs))
		for _, ss := range subs {
			statuses[ss.SourceID] = ss.Status
		}
		log.Error("no scoring source produced a usable score", "event_id", e.ID, "statuses", fmt.Sprint(statuses))
		return nil, &AllSourcesFailedError{Statuses: statuses}
	}

	decision := pol.Decide(cs.Score, cs.Degraded, policy.BusinessContext{Amount: e.Amount()})

	rec := &decisions.Record{
		ID:            idgen.WithPrefix("dec_"),
		EventID:       e.ID,
		TenantID:      e.Context.TenantID,
		Module:        e.Context.Module,
		Event:         e,
		Features:      fv.Clone(),
		SubScores:     subs,
		CombinedScore: cs,
		Decision:      decision,
		CreatedAt:     time.Now().UTC(),
		Outcome:       decisions.OutcomeUnknown,
	}
	stored, created, err := s.records.Create(ctx, rec)
	if err != nil {
		metrics.ScoringFailuresTotal.WithLabelValues("record_store").Inc()
		log.Error("failed to persist decision record", "event_id", e.ID, "error", err)
		return nil, fmt.Errorf("failed to persist decision: %w", err)
	}

	if !created {
		// Replay: the original decision stands, whatever was just computed.
		log.Info("event replayed, returning original decision",
			"event_id", e.ID, "record_id", stored.ID)
		return s.respond(requestID, stored, req.IncludeFactors, true, start), nil
	}

	metrics.DecisionsTotal.WithLabelValues(string(e.Kind), string(decision.Action)).Inc()
	if cs.Degraded {
		metrics.DegradedDecisionsTotal.Inc()
	}
	metrics.ScoringDuration.Observe(time.Since(start).Seconds())

	span.SetAttributes(traces.Action(string(decision.Action)), traces.Score(cs.Score), traces.Degraded(cs.Degraded))
	log.Info("decision made",
		"event_id", e.ID,
		"record_id", stored.ID,
		"action", decision.Action,
		"score", cs.Score,
		"degraded", cs.Degraded,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if s.hub != nil {
		s.hub.BroadcastDecision(e.Context.TenantID, stored.ID, string(decision.Action), cs.Score, cs.Degraded)
	}

	return s.respond(requestID, stored, req.IncludeFactors, false, start), nil
}

// minSurvivingWeight returns the policy's surviving-weight floor, or the
// engine-wide default when the policy leaves it unset. An explicit zero
// is a deliberate "no floor" and is honored as-is.
func (s *Service) minSurvivingWeight(pol *policy.Policy) float64 {
	if pol.MinSurvivingWeight != nil {
		return *pol.MinSurvivingWeight
	}
	return s.cfg.MinSurvivingWeight
}

func (s *Service) respond(requestID string, rec *decisions.Record, includeFactors, replayed bool, start time.Time) *ScoreResponse {
	resp := &ScoreResponse{
		RequestID:        requestID,
		RecordID:         rec.ID,
		EventID:          rec.EventID,
		CombinedScore:    rec.CombinedScore,
		Decision:         rec.Decision,
		Degraded:         rec.CombinedScore.Degraded,
		Replayed:         replayed,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
	if includeFactors {
		resp.Factors = scoring.TopFactors(rec.SubScores, maxReasonFactors)
	}
	return resp
}

// GetDecision returns one decision record by id.
func (s *Service) GetDecision(ctx context.Context, id string) (*decisions.Record, error) {
	return s.records.Get(ctx, id)
}

// ListDecisions returns a tenant's most recent decision records.
func (s *Service) ListDecisions(ctx context.Context, tenantID string, limit int) ([]*decisions.Record, error) {
	return s.records.ListByTenant(ctx, tenantID, limit)
}

// RecordOutcome attaches a ground-truth label to a decision record. The
// first label wins; later submissions fail with *DuplicateOutcomeError.
func (s *Service) RecordOutcome(ctx context.Context, recordID string, outcome decisions.Outcome) (*decisions.Record, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("unknown outcome label %q", outcome)
	}

	rec, err := s.records.RecordOutcome(ctx, recordID, outcome)
	if err != nil {
		var dup *decisions.DuplicateOutcomeError
		if errors.As(err, &dup) {
			logging.L(ctx).Warn("duplicate outcome rejected",
				"record_id", recordID, "existing", dup.Existing, "submitted", outcome)
		}
		return nil, err
	}

	metrics.OutcomesTotal.WithLabelValues(string(outcome)).Inc()
	logging.L(ctx).Info("outcome recorded", "record_id", recordID, "outcome", outcome)

	if s.hub != nil {
		s.hub.BroadcastOutcome(rec.TenantID, rec.ID, string(outcome))
	}
	return rec, nil
}

// Run starts background workers (batch job sweeper). Blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) {
	s.batch.run(ctx)
}
