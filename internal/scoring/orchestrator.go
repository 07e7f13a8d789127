package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/Rivega42/FRADECT/internal/features"
	"github.com/Rivega42/FRADECT/internal/logging"
	"github.com/Rivega42/FRADECT/internal/metrics"
	"github.com/Rivega42/FRADECT/internal/traces"
)

// Orchestrator fans one feature vector out to every registered source
// concurrently and collects the sub-scores under a hard deadline.
//
// Two budgets apply: every adapter runs under its own sub-deadline, and
// the whole fan-out runs under the overall scoring budget. An adapter
// that is still running when the overall deadline fires is abandoned and
// reported as a timeout; its goroutine drains into a buffered channel so
// nothing leaks.
type Orchestrator struct {
	sources       []Source
	adapterBudget time.Duration
}

// NewOrchestrator builds an orchestrator over a fixed source set. The
// source order is preserved in results, so output is deterministic for a
// given set of adapter outcomes.
func NewOrchestrator(sources []Source, adapterBudget time.Duration) *Orchestrator {
	return &Orchestrator{sources: sources, adapterBudget: adapterBudget}
}

// Sources returns the registered source IDs in fan-out order.
func (o *Orchestrator) Sources() []string {
	ids := make([]string, len(o.sources))
	for i, s := range o.sources {
		ids[i] = s.ID()
	}
	return ids
}

// Collect runs every source against the vector. The passed context
// carries the overall scoring deadline; Collect always returns by then.
// The result slice has one entry per registered source, in registration
// order, and is never empty for a non-empty source set.
func (o *Orchestrator) Collect(ctx context.Context, fv *features.Vector) []SubScore {
	ctx, span := traces.StartSpan(ctx, "scoring.collect")
	defer span.End()

	type indexed struct {
		i  int
		ss SubScore
	}
	// Buffered so abandoned stragglers can finish their send and exit.
	ch := make(chan indexed, len(o.sources))

	for i, src := range o.sources {
		go func(i int, src Source) {
			ch <- indexed{i, o.runOne(ctx, src, fv)}
		}(i, src)
	}

	results := make([]SubScore, len(o.sources))
	done := make([]bool, len(o.sources))
	remaining := len(o.sources)

	for remaining > 0 {
		select {
		case r := <-ch:
			results[r.i] = r.ss
			done[r.i] = true
			remaining--
			metrics.AdapterResultsTotal.WithLabelValues(r.ss.SourceID, string(r.ss.Status)).Inc()
			metrics.AdapterDuration.WithLabelValues(r.ss.SourceID).Observe(r.ss.Elapsed.Seconds())
		case <-ctx.Done():
			// Overall budget exhausted. Everything still in flight is a
			// timeout as far as this request is concerned.
			for i, src := range o.sources {
				if !done[i] {
					results[i] = errSubScore(src.ID(), StatusTimeout, ctx.Err(), 0)
					metrics.AdapterResultsTotal.WithLabelValues(src.ID(), string(StatusTimeout)).Inc()
					logging.L(ctx).Warn("source abandoned at scoring deadline", "source", src.ID())
				}
			}
			return results
		}
	}
	return results
}

// runOne executes a single source under its sub-deadline. A panicking
// adapter is contained here and reported as an error-status sub-score.
// Metrics are recorded by the join in Collect, once per source per
// request: a straggler that finishes after the deadline already counted
// it as a timeout must not add a second sample.
func (o *Orchestrator) runOne(ctx context.Context, src Source, fv *features.Vector) (ss SubScore) {
	srcCtx := ctx
	if o.adapterBudget > 0 {
		var cancel context.CancelFunc
		srcCtx, cancel = context.WithTimeout(ctx, o.adapterBudget)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logging.L(ctx).Error("source panicked", "source", src.ID(), "panic", p)
			ss = errSubScore(src.ID(), StatusError, errors.New("source panicked"), time.Since(start))
		}
	}()

	spanCtx, span := traces.StartSpan(srcCtx, "scoring.source", traces.SourceID(src.ID()))
	defer span.End()

	ss = src.Score(spanCtx, fv)

	// An adapter that blew its sub-budget but still returned a score is
	// reclassified: its answer arrived too late to be trusted as ok.
	if ss.Status == StatusOK && srcCtx.Err() != nil {
		ss = errSubScore(src.ID(), StatusTimeout, srcCtx.Err(), ss.Elapsed)
	}
	if ss.SourceID == "" {
		ss.SourceID = src.ID()
	}
	return ss
}
