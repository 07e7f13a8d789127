package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Rivega42/FRADECT/internal/event"
	"github.com/Rivega42/FRADECT/internal/idgen"
	"github.com/Rivega42/FRADECT/internal/logging"
	"github.com/Rivega42/FRADECT/internal/metrics"
)

// JobStatus is the lifecycle of one batch scoring job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
)

// BatchResult is the per-event outcome inside a batch job. Exactly one
// of Response and Error is set.
type BatchResult struct {
	EventID  string         `json:"eventId"`
	Response *ScoreResponse `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Job is the caller-visible state of a batch scoring job. Results hold
// one entry per submitted event, in submission order.
type Job struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenantId"`
	Status     JobStatus     `json:"status"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Results    []BatchResult `json:"results,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
}

// ErrJobNotFound is returned for unknown or expired job ids.
var ErrJobNotFound = errors.New("batch job not found")

// batchRunner executes batch jobs with a bounded worker pool per job and
// keeps finished jobs queryable until their TTL expires. Jobs live in
// memory: a restart drops pending jobs, but every completed decision is
// already durable in the record store.
type batchRunner struct {
	svc     *Service
	workers int
	ttl     time.Duration

	mu   sync.RWMutex
	jobs map[string]*Job
}

func newBatchRunner(svc *Service, workers int, ttl time.Duration) *batchRunner {
	if workers <= 0 {
		workers = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &batchRunner{
		svc:     svc,
		workers: workers,
		ttl:     ttl,
		jobs:    make(map[string]*Job),
	}
}

// SubmitBatch accepts a set of events and returns a job handle
// immediately. Each event runs through the same pipeline as a
// synchronous request, independently: one bad event fails its slot,
// never the job.
func (s *Service) SubmitBatch(ctx context.Context, events []*event.Event) (*Job, error) {
	if len(events) == 0 {
		return nil, errors.New("batch contains no events")
	}

	tenantID := events[0].Context.TenantID
	job := &Job{
		ID:        idgen.WithPrefix("job_"),
		TenantID:  tenantID,
		Status:    JobQueued,
		Total:     len(events),
		CreatedAt: time.Now().UTC(),
	}

	s.batch.mu.Lock()
	s.batch.jobs[job.ID] = job
	s.batch.mu.Unlock()

	logging.L(ctx).Info("batch job accepted", "job_id", job.ID, "events", len(events))

	// Detached from the request context: the caller gets the handle now
	// and polls for results.
	go s.batch.process(job.ID, events)

	cp := *job
	return &cp, nil
}

// JobStatus returns the current state of a batch job.
func (s *Service) JobStatus(jobID string) (*Job, error) {
	s.batch.mu.RLock()
	defer s.batch.mu.RUnlock()

	job, ok := s.batch.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}

	cp := *job
	cp.Results = append([]BatchResult(nil), job.Results...)
	return &cp, nil
}

func (b *batchRunner) process(jobID string, events []*event.Event) {
	b.mu.Lock()
	job, ok := b.jobs[jobID]
	if !ok {
		b.mu.Unlock()
		return
	}
	job.Status = JobRunning
	job.Results = make([]BatchResult, len(events))
	b.mu.Unlock()

	sem := make(chan struct{}, b.workers)
	var wg sync.WaitGroup

	for i, e := range events {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, e *event.Event) {
			defer wg.Done()
			defer func() { <-sem }()

			resp, err := b.svc.Score(context.Background(), ScoreRequest{Event: e})

			b.mu.Lock()
			defer b.mu.Unlock()
			job.Results[i] = BatchResult{EventID: e.ID}
			if err != nil {
				job.Results[i].Error = err.Error()
				job.Failed++
			} else {
				job.Results[i].Response = resp
			}
			job.Completed++
		}(i, e)
	}
	wg.Wait()

	now := time.Now().UTC()
	b.mu.Lock()
	job.Status = JobCompleted
	job.FinishedAt = &now
	failed := job.Failed
	total := job.Total
	tenantID := job.TenantID
	b.mu.Unlock()

	status := "completed"
	if failed == total {
		status = "failed"
	} else if failed > 0 {
		status = "partial"
	}
	metrics.BatchJobsTotal.WithLabelValues(status).Inc()

	if b.svc.hub != nil {
		b.svc.hub.BroadcastBatchCompleted(tenantID, jobID, total, failed)
	}
}

// run sweeps expired jobs until ctx is cancelled.
func (b *batchRunner) run(ctx context.Context) {
	interval := b.ttl / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep(time.Now().UTC())
		}
	}
}

// sweep drops completed jobs older than the TTL.
func (b *batchRunner) sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, job := range b.jobs {
		if job.Status == JobCompleted && job.FinishedAt != nil && now.Sub(*job.FinishedAt) > b.ttl {
			delete(b.jobs, id)
		}
	}
}
