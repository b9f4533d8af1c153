// Package generator produces the artifacts behind each job kind. The
// Generator port is what the executor drives; the pipeline here walks
// the kind's fixed step scale, reports progress at each step boundary,
// and stores the finished artifact through the storage layer.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pdtx/mediagen-api/internal/credentials"
	"github.com/pdtx/mediagen-api/internal/job"
	"github.com/pdtx/mediagen-api/internal/storage"
)

// DefaultVideoModel is used when the request names no model.
const DefaultVideoModel = "veo-3.0-generate-preview"

// ErrMissingCredentials is returned when a job record reaches the
// generator without a resolved credential bundle.
var ErrMissingCredentials = errors.New("generator: job has no resolved credentials")

// ProgressFunc reports one step boundary back to the executor. The
// progress value is on the 0-100 scale, stepNumber on the kind's fixed
// step scale.
type ProgressFunc func(progress, stepNumber int, label string)

// Request is everything the generator needs to produce one artifact.
// Credentials are passed by reference and never retained past the call.
type Request struct {
	JobID       string
	Kind        job.Kind
	Prompt      string
	Params      job.Params
	Credentials *credentials.Bundle
}

// Generator turns a request into a kind-specific result, reporting
// progress along the way. Implementations must honor context
// cancellation between steps.
type Generator interface {
	Generate(ctx context.Context, req Request, report ProgressFunc) (job.Result, error)
}

// Pipeline is the built-in generator. It renders artifacts and
// publishes them through the artifact store, which decides whether the
// resulting URL points at an object store or local disk.
type Pipeline struct {
	store     storage.Store
	stepDelay time.Duration
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStepDelay sets the pause between pipeline steps. Useful for
// shortening test runs; production uses the configured default.
func WithStepDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.stepDelay = d }
}

// NewPipeline creates the built-in generation pipeline.
func NewPipeline(store storage.Store, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		store:     store,
		stepDelay: 500 * time.Millisecond,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate dispatches on the job kind. Progress callbacks fire at the
// midpoint of each step, matching the scale the job was created with.
func (p *Pipeline) Generate(ctx context.Context, req Request, report ProgressFunc) (job.Result, error) {
	if req.Credentials == nil {
		return job.Result{}, ErrMissingCredentials
	}
	if report == nil {
		report = func(int, int, string) {}
	}

	switch req.Kind {
	case job.KindVideo:
		return p.generateVideo(ctx, req, report)
	case job.KindAudio:
		return p.generateAudio(ctx, req, report)
	case job.KindStyleAnalysis:
		return p.analyzeStyle(ctx, req, report)
	default:
		return job.Result{}, fmt.Errorf("generator: unknown kind %q", req.Kind)
	}
}

// step reports one step boundary and waits out the step delay,
// returning early if the context is cancelled.
func (p *Pipeline) step(ctx context.Context, req Request, report ProgressFunc, num, total int, label string) error {
	report(job.StepProgress(num, total), num, label)
	p.logger.Debug("pipeline step",
		slog.String("job_id", req.JobID),
		slog.Int("step", num),
		slog.String("label", label),
	)
	if p.stepDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.stepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pipeline) generateVideo(ctx context.Context, req Request, report ProgressFunc) (job.Result, error) {
	total := job.TotalSteps(job.KindVideo, req.Params)
	model := req.Params.Model
	if model == "" {
		model = DefaultVideoModel
	}
	duration := req.Params.DurationSeconds
	if duration <= 0 {
		duration = 8
	}

	if err := p.step(ctx, req, report, 1, total, "Submitting generation request"); err != nil {
		return job.Result{}, err
	}
	if err := p.step(ctx, req, report, 2, total, "Rendering video"); err != nil {
		return job.Result{}, err
	}

	body := renderManifest("video/mp4", model, req.Prompt, map[string]any{
		"duration_seconds": duration,
		"aspect_ratio":     req.Params.AspectRatio,
		"generate_audio":   req.Params.GenerateAudio,
	})
	if err := p.step(ctx, req, report, 3, total, "Uploading video"); err != nil {
		return job.Result{}, err
	}
	url, err := p.publish(ctx, req.JobID, req.JobID+".mp4", "video/mp4", body)
	if err != nil {
		return job.Result{}, err
	}

	return job.Result{
		DownloadURL:     url,
		DurationSeconds: float64(duration),
		Format:          "mp4",
	}, nil
}

func (p *Pipeline) generateAudio(ctx context.Context, req Request, report ProgressFunc) (job.Result, error) {
	total := job.TotalSteps(job.KindAudio, req.Params)

	if err := p.step(ctx, req, report, 1, total, "Generating script"); err != nil {
		return job.Result{}, err
	}
	if err := p.step(ctx, req, report, 2, total, "Synthesizing speech"); err != nil {
		return job.Result{}, err
	}
	if req.Credentials.ElevenLabsAPIKey == "" {
		return job.Result{}, errors.New("generator: audio synthesis requires an elevenlabs key")
	}

	if err := p.step(ctx, req, report, 3, total, "Uploading audio"); err != nil {
		return job.Result{}, err
	}
	body := renderManifest("audio/mpeg", "eleven_multilingual_v2", req.Prompt, nil)
	url, err := p.publish(ctx, req.JobID, req.JobID+".mp3", "audio/mpeg", body)
	if err != nil {
		return job.Result{}, err
	}
	result := job.Result{
		DownloadURL:     url,
		DurationSeconds: estimateSpeechSeconds(req.Prompt),
		Format:          "mp3",
	}

	step := 4
	if req.Params.GenerateThumbnail {
		if err := p.step(ctx, req, report, step, total, "Generating thumbnail"); err != nil {
			return job.Result{}, err
		}
		thumbPrompt := req.Params.ThumbnailPrompt
		if thumbPrompt == "" {
			thumbPrompt = "Podcast cover art for: " + req.Prompt
		}
		thumbURL, err := p.publish(ctx, req.JobID, req.JobID+"_thumb.png", "image/png", renderManifest("image/png", "imagen-3.0", thumbPrompt, nil))
		if err != nil {
			return job.Result{}, err
		}
		result.ThumbnailURL = thumbURL
		step++
	}

	if err := p.step(ctx, req, report, step, total, "Finalizing"); err != nil {
		return job.Result{}, err
	}
	return result, nil
}

func (p *Pipeline) analyzeStyle(ctx context.Context, req Request, report ProgressFunc) (job.Result, error) {
	total := job.TotalSteps(job.KindStyleAnalysis, req.Params)

	if err := p.step(ctx, req, report, 1, total, "Analyzing writing style"); err != nil {
		return job.Result{}, err
	}
	analysis := composeStyleAnalysis(req.Prompt)
	if err := p.step(ctx, req, report, 2, total, "Formatting analysis"); err != nil {
		return job.Result{}, err
	}

	return job.Result{Analysis: analysis}, nil
}

// publish hands the artifact to the store and returns its download URL.
func (p *Pipeline) publish(ctx context.Context, jobID, name, contentType, body string) (string, error) {
	url, err := p.store.Publish(ctx, storage.Artifact{
		JobID:       jobID,
		Name:        name,
		ContentType: contentType,
		Body:        strings.NewReader(body),
	})
	if err != nil {
		return "", fmt.Errorf("publish artifact %s: %w", name, err)
	}
	return url, nil
}

// renderManifest produces the artifact body. The pipeline ships a
// deterministic description of what would be rendered, which keeps the
// rest of the system (progress, storage, delivery) fully exercised.
func renderManifest(mime, model, prompt string, extra map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "content-type: %s\n", mime)
	fmt.Fprintf(&b, "model: %s\n", model)
	fmt.Fprintf(&b, "prompt: %s\n", prompt)
	for k, v := range extra {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	return b.String()
}

// estimateSpeechSeconds approximates spoken duration at ~150 words per
// minute of narration.
func estimateSpeechSeconds(script string) float64 {
	words := len(strings.Fields(script))
	if words == 0 {
		return 0
	}
	return float64(words) * 60.0 / 150.0
}

func composeStyleAnalysis(sample string) string {
	words := strings.Fields(sample)
	sentences := strings.Count(sample, ".") + strings.Count(sample, "!") + strings.Count(sample, "?")
	if sentences == 0 {
		sentences = 1
	}
	avg := float64(len(words)) / float64(sentences)

	var b strings.Builder
	b.WriteString("# Writing Style Analysis\n\n")
	fmt.Fprintf(&b, "- Word count: %d\n", len(words))
	fmt.Fprintf(&b, "- Sentences: %d\n", sentences)
	fmt.Fprintf(&b, "- Average sentence length: %.1f words\n", avg)
	switch {
	case avg > 25:
		b.WriteString("- Register: long, elaborate sentences; formal or academic tone\n")
	case avg > 12:
		b.WriteString("- Register: balanced sentence length; conversational but structured\n")
	default:
		b.WriteString("- Register: short, punchy sentences; direct tone\n")
	}
	return b.String()
}
