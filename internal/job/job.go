// Package job provides the Job aggregate for asynchronous media
// generation work. It includes the Job entity with a monotonic state
// machine, the Snapshot projection shared by every read path and
// notification event, and repository ports for persistence.
package job

import (
	"errors"
	"time"

	"github.com/pdtx/mediagen-api/internal/credentials"
	"github.com/pdtx/mediagen-api/internal/job/id"
)

// Kind represents the type of generation work a job performs.
type Kind string

const (
	// KindVideo generates a video from a text prompt.
	KindVideo Kind = "video"
	// KindAudio generates audio/podcast content from a text prompt.
	KindAudio Kind = "audio"
	// KindStyleAnalysis analyzes a writing/speaking style instruction.
	KindStyleAnalysis Kind = "style_analysis"
)

// IsValid returns true if the kind is a known job kind.
func (k Kind) IsValid() bool {
	return k == KindVideo || k == KindAudio || k == KindStyleAnalysis
}

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is waiting for a worker.
	StatusQueued Status = "queued"
	// StatusStarted indicates the job is being processed.
	StatusStarted Status = "started"
	// StatusFinished indicates the job completed successfully.
	StatusFinished Status = "finished"
	// StatusFailed indicates the job encountered an error.
	StatusFailed Status = "failed"
	// StatusNotFound is the virtual status reported for an unknown job
	// id. It is never stored.
	StatusNotFound Status = "not_found"
)

// IsTerminal returns true for statuses that represent a final state.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Errors reported by state machine transitions.
var (
	// ErrInvalidTransition is returned when a transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrTerminalState is returned when a mutation is attempted on a job
	// that already reached finished or failed. This is an internal
	// consistency error and must never be silently ignored.
	ErrTerminalState = errors.New("job already in terminal state")
	// ErrStaleProgress marks a progress update that would move progress
	// or step_number backwards. The store treats it as an ignored
	// message, not a failure.
	ErrStaleProgress = errors.New("stale progress update")
)

// validTransitions defines which state transitions are allowed. No
// transition skips started, so observers always see at least one
// progress event even for instant failures.
var validTransitions = map[Status][]Status{
	StatusQueued:   {StatusStarted},
	StatusStarted:  {StatusFinished, StatusFailed},
	StatusFinished: {},
	StatusFailed:   {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Params carries the kind-specific generation parameters supplied at
// submission.
type Params struct {
	// DurationSeconds is the requested video duration (video only).
	DurationSeconds int `json:"duration_seconds,omitempty"`
	// AspectRatio is the requested video aspect ratio (video only).
	AspectRatio string `json:"aspect_ratio,omitempty"`
	// Model is the generation model identifier (video only).
	Model string `json:"model,omitempty"`
	// GenerateAudio requests an audio track for the video (video only).
	GenerateAudio bool `json:"generate_audio,omitempty"`
	// GenerateThumbnail requests a podcast thumbnail (audio only).
	GenerateThumbnail bool `json:"generate_thumbnail,omitempty"`
	// ThumbnailPrompt overrides the thumbnail prompt (audio only).
	ThumbnailPrompt string `json:"thumbnail_prompt,omitempty"`
}

// Result is the kind-specific payload populated exactly once at the
// finished transition.
type Result struct {
	// DownloadURL points at the generated artifact.
	DownloadURL string `json:"download_url,omitempty"`
	// ThumbnailURL points at the generated thumbnail, if requested.
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	// DurationSeconds is the artifact duration, if applicable.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	// Format is the artifact container format (mp4, mp3, ...).
	Format string `json:"format,omitempty"`
	// Analysis is the style analysis text (style_analysis only).
	Analysis string `json:"analysis,omitempty"`
}

// TotalSteps returns the fixed progress scale for a kind. Audio jobs
// gain a step when a thumbnail is requested.
func TotalSteps(kind Kind, params Params) int {
	switch kind {
	case KindVideo:
		return 3
	case KindAudio:
		if params.GenerateThumbnail {
			return 5
		}
		return 4
	case KindStyleAnalysis:
		return 2
	default:
		return 1
	}
}

// StepProgress maps a step number onto the 0-100 progress scale,
// reporting the midpoint of the step.
func StepProgress(step, total int) int {
	if total <= 0 || step <= 0 {
		return 0
	}
	if step > total {
		step = total
	}
	return (2*step - 1) * 50 / total
}

// Job represents one asynchronous generation request and its evolving
// state. Mutations must go through Repository.Update so that the atomic
// read/replace semantics hold; the entity itself carries no lock.
type Job struct {
	// ID is the opaque unique identifier, immutable after creation.
	ID string `json:"job_id"`
	// Kind is the generation type, immutable after creation.
	Kind Kind `json:"kind"`
	// ClientID identifies the submitting client for legacy event-stream
	// routing. Optional.
	ClientID string `json:"client_id,omitempty"`
	// Status is the current state machine position.
	Status Status `json:"status"`
	// Progress is the completion percentage, monotonically
	// non-decreasing while the job is live.
	Progress int `json:"progress"`
	// StepNumber is the current discrete step, monotonic.
	StepNumber int `json:"step_number"`
	// TotalSteps is the kind's progress scale, fixed at creation.
	TotalSteps int `json:"total_steps"`
	// CurrentStep is the human-readable label of the current activity.
	CurrentStep string `json:"current_step"`
	// Prompt is the generation prompt or style instruction.
	Prompt string `json:"prompt"`
	// Params holds the kind-specific parameters.
	Params Params `json:"params"`
	// Result is set exactly once, at the finished transition.
	Result *Result `json:"result,omitempty"`
	// Error is set exactly once, at the failed transition.
	Error string `json:"error,omitempty"`
	// CredentialsSnapshot is written once at creation, read once by the
	// executor, and erased at the terminal transition. It is excluded
	// from Snapshot and therefore from every outward payload.
	CredentialsSnapshot *credentials.Bundle `json:"credentials_snapshot,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is bumped on every mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a Job in queued state with a generated ID.
func New(kind Kind, clientID, prompt string, params Params, creds *credentials.Bundle) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:                  id.Generate(),
		Kind:                kind,
		ClientID:            clientID,
		Status:              StatusQueued,
		Progress:            0,
		StepNumber:          0,
		TotalSteps:          TotalSteps(kind, params),
		CurrentStep:         "Job queued, waiting to start",
		Prompt:              prompt,
		Params:              params,
		CredentialsSnapshot: creds,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// transitionTo enforces the state machine. A mutation out of a terminal
// state maps to ErrTerminalState so retried executor callbacks cannot
// corrupt completed results.
func (j *Job) transitionTo(status Status) error {
	if j.Status.IsTerminal() {
		return ErrTerminalState
	}
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Start moves the job from queued to started and sets the first-step
// progress for its kind.
func (j *Job) Start() error {
	if err := j.transitionTo(StatusStarted); err != nil {
		return err
	}
	j.StepNumber = 1
	j.Progress = StepProgress(1, j.TotalSteps)
	j.CurrentStep = "Job started, initializing"
	return nil
}

// ApplyProgress records a progress/step update while the job is
// started. A regressive update returns ErrStaleProgress and leaves the
// job untouched.
func (j *Job) ApplyProgress(progress, stepNumber int, currentStep string) error {
	if j.Status.IsTerminal() {
		return ErrTerminalState
	}
	if j.Status != StatusStarted {
		return ErrInvalidTransition
	}
	if progress < j.Progress || stepNumber < j.StepNumber {
		return ErrStaleProgress
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
	j.StepNumber = stepNumber
	if currentStep != "" {
		j.CurrentStep = currentStep
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete moves the job to finished, fixing progress at 100, storing
// the result, and erasing the credentials snapshot.
func (j *Job) Complete(result Result) error {
	if err := j.transitionTo(StatusFinished); err != nil {
		return err
	}
	j.Progress = 100
	j.StepNumber = j.TotalSteps
	j.CurrentStep = "Complete"
	j.Result = &result
	j.Error = ""
	j.CredentialsSnapshot = nil
	return nil
}

// Fail moves the job to failed, keeping the last known progress and
// step so clients can show how far it got. The credentials snapshot is
// erased here too; the security invariant holds on failure paths.
func (j *Job) Fail(errMsg string) error {
	if err := j.transitionTo(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	j.CurrentStep = "Job failed"
	j.Result = nil
	j.CredentialsSnapshot = nil
	return nil
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	out := *j
	if j.Result != nil {
		res := *j.Result
		out.Result = &res
	}
	if j.CredentialsSnapshot != nil {
		creds := *j.CredentialsSnapshot
		out.CredentialsSnapshot = &creds
	}
	return &out
}

// Snapshot is the single outward projection of a Job. Polling,
// long-poll, WebSocket, legacy SSE, streamable events and MCP resource
// reads all serialize this type, so the three read paths agree by
// construction. It never carries credentials.
type Snapshot struct {
	JobID       string    `json:"job_id"`
	Kind        Kind      `json:"kind,omitempty"`
	ClientID    string    `json:"client_id,omitempty"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	StepNumber  int       `json:"step_number"`
	TotalSteps  int       `json:"total_steps"`
	CurrentStep string    `json:"current_step,omitempty"`
	Result      *Result   `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Snapshot returns the outward projection of the job.
func (j *Job) Snapshot() Snapshot {
	snap := Snapshot{
		JobID:       j.ID,
		Kind:        j.Kind,
		ClientID:    j.ClientID,
		Status:      j.Status,
		Progress:    j.Progress,
		StepNumber:  j.StepNumber,
		TotalSteps:  j.TotalSteps,
		CurrentStep: j.CurrentStep,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if j.Result != nil {
		res := *j.Result
		snap.Result = &res
	}
	return snap
}

// NotFoundSnapshot is the projection returned for an unknown job id.
// not_found is a virtual status: it is an answer, not an error.
func NotFoundSnapshot(jobID string) Snapshot {
	return Snapshot{JobID: jobID, Status: StatusNotFound}
}
