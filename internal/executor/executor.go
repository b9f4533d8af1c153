// Package executor runs the worker side of the system: it pulls job ids
// off the queue, drives the generation pipeline, and reports lifecycle
// transitions back through the job service.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pdtx/mediagen-api/internal/generator"
	"github.com/pdtx/mediagen-api/internal/job"
	"github.com/pdtx/mediagen-api/internal/telemetry"
)

// Queue is the executor's view of the task queue.
type Queue interface {
	DequeueWithLease(ctx context.Context) (string, error)
	ExtendLease(ctx context.Context, jobID string) error
	Ack(ctx context.Context, jobID string) error
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	Depth(ctx context.Context) (int64, error)
}

// Executor owns a pool of workers plus a maintenance loop that reclaims
// abandoned leases and samples queue depth.
type Executor struct {
	svc       *job.Service
	queue     Queue
	gen       generator.Generator
	logger    *slog.Logger
	workers   int
	pollEvery time.Duration
	leaseTick time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithPollInterval sets how long an idle worker sleeps between dequeue
// attempts.
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.pollEvery = d
		}
	}
}

// WithLeaseInterval sets how often a busy worker extends its lease.
func WithLeaseInterval(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.leaseTick = d
		}
	}
}

// New creates an Executor.
func New(svc *job.Service, queue Queue, gen generator.Generator, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		svc:       svc,
		queue:     queue,
		gen:       gen,
		logger:    logger,
		workers:   2,
		pollEvery: time.Second,
		leaseTick: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts the worker pool and blocks until the context is cancelled
// and every worker has drained.
func (e *Executor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			e.workerLoop(ctx, n)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.maintenanceLoop(ctx)
	}()
	wg.Wait()
}

func (e *Executor) workerLoop(ctx context.Context, n int) {
	logger := e.logger.With(slog.Int("worker", n))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := e.queue.DequeueWithLease(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("dequeue failed", slog.String("error", err.Error()))
			e.sleep(ctx, e.pollEvery)
			continue
		}
		if jobID == "" {
			e.sleep(ctx, e.pollEvery)
			continue
		}

		e.process(ctx, logger, jobID)
	}
}

// process runs one job from claim to terminal state. The lease is acked
// only after the terminal transition is recorded, so a crash mid-job
// leaves the lease to expire and the id to be redelivered.
func (e *Executor) process(ctx context.Context, logger *slog.Logger, jobID string) {
	logger = logger.With(slog.String("job_id", jobID))
	started := time.Now()

	record, err := e.svc.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			// The record is gone; drop the lease and move on.
			logger.Warn("dequeued id has no record")
			_ = e.queue.Ack(ctx, jobID)
			return
		}
		logger.Error("claim failed", slog.String("error", err.Error()))
		return
	}
	if record.Status.IsTerminal() {
		// Redelivery of a job another worker already finished.
		logger.Debug("skipping terminal job")
		_ = e.queue.Ack(ctx, jobID)
		return
	}

	if _, err := e.svc.Start(ctx, jobID); err != nil {
		if errors.Is(err, job.ErrTerminalState) {
			_ = e.queue.Ack(ctx, jobID)
			return
		}
		logger.Error("start transition failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("job started", slog.String("kind", string(record.Kind)))

	// Keep the lease alive while the pipeline runs.
	leaseCtx, stopLease := context.WithCancel(ctx)
	defer stopLease()
	go e.keepLease(leaseCtx, jobID)

	result, genErr := e.gen.Generate(ctx, generator.Request{
		JobID:       record.ID,
		Kind:        record.Kind,
		Prompt:      record.Prompt,
		Params:      record.Params,
		Credentials: record.CredentialsSnapshot,
	}, func(progress, stepNumber int, label string) {
		if _, err := e.svc.ReportProgress(ctx, jobID, progress, stepNumber, label); err != nil {
			logger.Warn("progress report failed", slog.String("error", err.Error()))
		}
	})
	stopLease()

	if genErr != nil {
		if _, err := e.svc.Fail(ctx, jobID, genErr.Error()); err != nil {
			logger.Error("fail transition failed", slog.String("error", err.Error()))
			return
		}
		logger.Warn("job failed", slog.String("error", genErr.Error()))
	} else {
		if _, err := e.svc.Complete(ctx, jobID, result); err != nil {
			logger.Error("complete transition failed", slog.String("error", err.Error()))
			return
		}
		logger.Info("job finished", slog.Duration("took", time.Since(started)))
	}

	telemetry.JobDuration.WithLabelValues(string(record.Kind)).Observe(time.Since(started).Seconds())
	if err := e.queue.Ack(ctx, jobID); err != nil {
		logger.Warn("ack failed", slog.String("error", err.Error()))
	}
}

func (e *Executor) keepLease(ctx context.Context, jobID string) {
	ticker := time.NewTicker(e.leaseTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.queue.ExtendLease(ctx, jobID); err != nil && ctx.Err() == nil {
				e.logger.Warn("lease extension failed",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// maintenanceLoop reclaims expired leases and samples queue depth.
func (e *Executor) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(e.leaseTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := e.queue.RequeueExpired(ctx, time.Now(), 100)
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Error("requeue sweep failed", slog.String("error", err.Error()))
				}
				continue
			}
			if len(ids) > 0 {
				e.logger.Warn("requeued expired leases", slog.Int("count", len(ids)))
			}
			if depth, err := e.queue.Depth(ctx); err == nil {
				telemetry.QueueDepth.Set(float64(depth))
			}
		}
	}
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
