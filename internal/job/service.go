package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pdtx/mediagen-api/internal/credentials"
	"github.com/pdtx/mediagen-api/internal/telemetry"
)

// Submission errors.
var (
	// ErrUnknownKind is returned for a submission with an unknown kind.
	ErrUnknownKind = errors.New("unknown job kind")
	// ErrEmptyPrompt is returned for a submission without a prompt.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
)

// Enqueuer dispatches created jobs to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// EventPublisher receives one immutable event per job mutation. The
// Redis relay implementation carries events across process boundaries
// to the notification hub.
type EventPublisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// Notifier exposes a per-job event subscription used by the long-poll
// read path so it can suspend on fan-out events instead of polling.
type Notifier interface {
	Subscribe(jobID string) (<-chan Snapshot, func())
}

// SubmitInput contains the parameters for creating a job.
type SubmitInput struct {
	// Kind selects the generation type.
	Kind Kind
	// ClientID optionally binds the job to a legacy event-stream client.
	ClientID string
	// Prompt is the generation prompt or style instruction.
	Prompt string
	// Params holds kind-specific parameters.
	Params Params
	// Credentials is the client-supplied credential object, merged over
	// the environment defaults before the job is queued.
	Credentials *credentials.Request
}

// Service orchestrates the job lifecycle: credentialed submission,
// status reads, the long-poll wait, and the executor-facing state
// machine appliers. Every mutation flows through the repository's
// atomic Update and produces exactly one published event.
type Service struct {
	repo      Repository
	resolver  *credentials.Resolver
	queue     Enqueuer
	publisher EventPublisher
	notifier  Notifier
	logger    *slog.Logger
	waitBound time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithQueue sets the task queue used on submission.
func WithQueue(q Enqueuer) Option {
	return func(s *Service) { s.queue = q }
}

// WithPublisher sets the event publisher notified on every mutation.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithResolver sets the credential resolver used at submission.
func WithResolver(r *credentials.Resolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithNotifier sets the fan-out subscription source for Wait.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithWaitBound sets the fixed upper bound for the long-poll read.
func WithWaitBound(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.waitBound = d
		}
	}
}

// NewService creates a job Service.
func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:      repo,
		logger:    logger,
		waitBound: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit resolves credentials, creates the job in queued state, and
// enqueues it for execution. Credential resolution failures happen
// before any job is created; an unrunnable job is never queued.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Snapshot, error) {
	if !input.Kind.IsValid() {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownKind, input.Kind)
	}
	if input.Prompt == "" {
		return Snapshot{}, ErrEmptyPrompt
	}

	var bundle *credentials.Bundle
	if s.resolver != nil {
		var err error
		bundle, err = s.resolver.Resolve(input.Credentials, string(input.Kind))
		if err != nil {
			return Snapshot{}, err
		}
	}

	j := New(input.Kind, input.ClientID, input.Prompt, input.Params, bundle)
	if err := s.repo.Create(ctx, j); err != nil {
		return Snapshot{}, fmt.Errorf("create job: %w", err)
	}
	snap := j.Snapshot()

	// Publish queued before enqueueing: a worker can dequeue and publish
	// started through its own connection the instant the job is visible,
	// and subscribers must never see started before queued. If the
	// enqueue then fails, the record is rolled back and reads report
	// not_found; the orphaned queued event is harmless.
	s.publish(ctx, snap)

	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, j.ID); err != nil {
			// Never leave a record for a job that will not run.
			if delErr := s.repo.Delete(ctx, j.ID); delErr != nil {
				s.logger.Error("failed to roll back unenqueued job",
					slog.String("job_id", j.ID),
					slog.String("error", delErr.Error()),
				)
			}
			return Snapshot{}, fmt.Errorf("enqueue job: %w", err)
		}
	}

	telemetry.JobsSubmitted.Inc()
	s.logger.Info("job submitted",
		slog.String("job_id", j.ID),
		slog.String("kind", string(input.Kind)),
		slog.Int("total_steps", j.TotalSteps),
	)

	return snap, nil
}

// Get returns the current projection of a job. Unknown ids yield the
// virtual not_found status rather than an error.
func (s *Service) Get(ctx context.Context, id string) (Snapshot, error) {
	j, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return NotFoundSnapshot(id), nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return j.Snapshot(), nil
}

// Wait blocks until the job leaves {queued, started} or the fixed bound
// elapses, then returns the current projection. It suspends on fan-out
// events and never holds the job record while waiting.
func (s *Service) Wait(ctx context.Context, id string) (Snapshot, error) {
	snap, err := s.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Status.IsTerminal() || snap.Status == StatusNotFound || s.notifier == nil {
		return snap, nil
	}

	ch, cancel := s.notifier.Subscribe(id)
	defer cancel()

	// Re-read after subscribing so a terminal transition between the
	// first read and the subscription is not missed.
	snap, err = s.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Status.IsTerminal() {
		return snap, nil
	}

	timer := time.NewTimer(s.waitBound)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return s.Get(ctx, id)
			}
			snap = ev
			if ev.Status.IsTerminal() {
				return ev, nil
			}
		case <-timer.C:
			return snap, nil
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// List returns projections of all known jobs, most recent first.
func (s *Service) List(ctx context.Context) ([]Snapshot, error) {
	jobs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	return out, nil
}

// Claim hands the full job record, including the credentials snapshot,
// to the executor that leased it. This is the one read of the snapshot;
// it is erased from the store at the terminal transition.
func (s *Service) Claim(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// Start applies the queued -> started transition.
func (s *Service) Start(ctx context.Context, id string) (Snapshot, error) {
	return s.apply(ctx, id, func(j *Job) error { return j.Start() })
}

// ReportProgress applies a progress/step update. A regressive update is
// treated as an ignored message: the current projection is returned and
// nothing is written or published.
func (s *Service) ReportProgress(ctx context.Context, id string, progress, stepNumber int, currentStep string) (Snapshot, error) {
	snap, err := s.apply(ctx, id, func(j *Job) error {
		return j.ApplyProgress(progress, stepNumber, currentStep)
	})
	if errors.Is(err, ErrStaleProgress) {
		s.logger.Debug("ignoring stale progress update",
			slog.String("job_id", id),
			slog.Int("progress", progress),
			slog.Int("step_number", stepNumber),
		)
		return s.Get(ctx, id)
	}
	return snap, err
}

// Complete applies the started -> finished transition with the result.
func (s *Service) Complete(ctx context.Context, id string, result Result) (Snapshot, error) {
	snap, err := s.apply(ctx, id, func(j *Job) error { return j.Complete(result) })
	if err == nil {
		telemetry.JobsCompleted.Inc()
	}
	return snap, err
}

// Fail applies the started -> failed transition with the error string.
func (s *Service) Fail(ctx context.Context, id string, errMsg string) (Snapshot, error) {
	snap, err := s.apply(ctx, id, func(j *Job) error { return j.Fail(errMsg) })
	if err == nil {
		telemetry.JobsFailed.Inc()
	}
	return snap, err
}

// apply runs one atomic mutation and publishes the resulting event.
func (s *Service) apply(ctx context.Context, id string, fn func(*Job) error) (Snapshot, error) {
	j, err := s.repo.Update(ctx, id, fn)
	if err != nil {
		return Snapshot{}, err
	}
	snap := j.Snapshot()
	s.publish(ctx, snap)
	return snap, nil
}

// publish sends the mutation event to the fan-out. Delivery to
// connected subscribers is at-least-once; a publish failure is logged,
// never propagated, since clients can always re-fetch via the read path.
func (s *Service) publish(ctx context.Context, snap Snapshot) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, snap); err != nil {
		s.logger.Warn("failed to publish job event",
			slog.String("job_id", snap.JobID),
			slog.String("status", string(snap.Status)),
			slog.String("error", err.Error()),
		)
	}
}
