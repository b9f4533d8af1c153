package generator

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdtx/mediagen-api/internal/credentials"
	"github.com/pdtx/mediagen-api/internal/job"
	"github.com/pdtx/mediagen-api/internal/storage"
)

type recordedStep struct {
	progress int
	step     int
	label    string
}

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return NewPipeline(store, slog.Default(), WithStepDelay(0))
}

// recordingStore captures published artifacts for inspection.
type recordingStore struct {
	artifacts []storage.Artifact
}

func (s *recordingStore) Publish(_ context.Context, art storage.Artifact) (string, error) {
	s.artifacts = append(s.artifacts, art)
	return "https://cdn.example.com/" + art.JobID + "/" + art.Name, nil
}

func testBundle() *credentials.Bundle {
	return &credentials.Bundle{
		GeminiAPIKey:       "AIzaSy-test-key-0123456789",
		GoogleCloudProject: "demo-project",
		GCSBucket:          "demo-bucket",
		ElevenLabsAPIKey:   "el-test-key-0123456789abc",
	}
}

func collect(steps *[]recordedStep) ProgressFunc {
	return func(progress, step int, label string) {
		*steps = append(*steps, recordedStep{progress, step, label})
	}
}

func TestGenerateVideo(t *testing.T) {
	p := testPipeline(t)
	var steps []recordedStep

	result, err := p.Generate(context.Background(), Request{
		JobID:       "job-1",
		Kind:        job.KindVideo,
		Prompt:      "a lighthouse in a storm",
		Params:      job.Params{DurationSeconds: 12, AspectRatio: "16:9"},
		Credentials: testBundle(),
	}, collect(&steps))
	require.NoError(t, err)

	assert.Equal(t, "mp4", result.Format)
	assert.Equal(t, 12.0, result.DurationSeconds)
	assert.True(t, strings.HasPrefix(result.DownloadURL, "file://"))

	require.Len(t, steps, 3)
	assert.Equal(t, "Submitting generation request", steps[0].label)
	assert.Equal(t, "Rendering video", steps[1].label)
	assert.Equal(t, "Uploading video", steps[2].label)
	for i := 1; i < len(steps); i++ {
		assert.Greater(t, steps[i].progress, steps[i-1].progress)
	}
	assert.Equal(t, job.StepProgress(3, 3), steps[2].progress)
}

func TestGenerateAudio(t *testing.T) {
	p := testPipeline(t)
	var steps []recordedStep

	result, err := p.Generate(context.Background(), Request{
		JobID:       "job-2",
		Kind:        job.KindAudio,
		Prompt:      "a short podcast about tide pools and the creatures in them",
		Credentials: testBundle(),
	}, collect(&steps))
	require.NoError(t, err)

	assert.Equal(t, "mp3", result.Format)
	assert.Greater(t, result.DurationSeconds, 0.0)
	assert.Empty(t, result.ThumbnailURL)

	require.Len(t, steps, 4)
	assert.Equal(t, "Generating script", steps[0].label)
	assert.Equal(t, "Finalizing", steps[3].label)
}

func TestGenerateAudioWithThumbnail(t *testing.T) {
	p := testPipeline(t)
	var steps []recordedStep

	result, err := p.Generate(context.Background(), Request{
		JobID:       "job-3",
		Kind:        job.KindAudio,
		Prompt:      "a podcast about tide pools",
		Params:      job.Params{GenerateThumbnail: true},
		Credentials: testBundle(),
	}, collect(&steps))
	require.NoError(t, err)

	assert.NotEmpty(t, result.ThumbnailURL)
	require.Len(t, steps, 5)
	assert.Equal(t, "Generating thumbnail", steps[3].label)
	assert.Equal(t, "Finalizing", steps[4].label)
}

func TestGenerateAudioRequiresElevenLabsKey(t *testing.T) {
	p := testPipeline(t)
	bundle := testBundle()
	bundle.ElevenLabsAPIKey = ""

	_, err := p.Generate(context.Background(), Request{
		JobID:       "job-4",
		Kind:        job.KindAudio,
		Prompt:      "a podcast",
		Credentials: bundle,
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elevenlabs")
}

func TestAnalyzeStyle(t *testing.T) {
	p := testPipeline(t)
	var steps []recordedStep

	result, err := p.Generate(context.Background(), Request{
		JobID:       "job-5",
		Kind:        job.KindStyleAnalysis,
		Prompt:      "Short sentences. Direct tone. No filler.",
		Credentials: testBundle(),
	}, collect(&steps))
	require.NoError(t, err)

	assert.Contains(t, result.Analysis, "Writing Style Analysis")
	assert.Contains(t, result.Analysis, "Word count")
	assert.Empty(t, result.DownloadURL)
	require.Len(t, steps, 2)
	assert.Equal(t, "Analyzing writing style", steps[0].label)
}

func TestGenerateRejectsMissingCredentials(t *testing.T) {
	p := testPipeline(t)

	_, err := p.Generate(context.Background(), Request{
		JobID:  "job-6",
		Kind:   job.KindVideo,
		Prompt: "x",
	}, nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestGenerateUnknownKind(t *testing.T) {
	p := testPipeline(t)

	_, err := p.Generate(context.Background(), Request{
		JobID:       "job-7",
		Kind:        job.Kind("hologram"),
		Prompt:      "x",
		Credentials: testBundle(),
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestPipelinePublishesTypedArtifacts(t *testing.T) {
	store := &recordingStore{}
	p := NewPipeline(store, slog.Default(), WithStepDelay(0))

	result, err := p.Generate(context.Background(), Request{
		JobID:       "job-9",
		Kind:        job.KindAudio,
		Prompt:      "a podcast about tide pools",
		Params:      job.Params{GenerateThumbnail: true},
		Credentials: testBundle(),
	}, nil)
	require.NoError(t, err)

	require.Len(t, store.artifacts, 2)
	audio, thumb := store.artifacts[0], store.artifacts[1]

	assert.Equal(t, "job-9", audio.JobID)
	assert.Equal(t, "job-9.mp3", audio.Name)
	assert.Equal(t, "audio/mpeg", audio.ContentType)

	assert.Equal(t, "job-9", thumb.JobID)
	assert.Equal(t, "job-9_thumb.png", thumb.Name)
	assert.Equal(t, "image/png", thumb.ContentType)

	assert.Equal(t, "https://cdn.example.com/job-9/job-9.mp3", result.DownloadURL)
	assert.Equal(t, "https://cdn.example.com/job-9/job-9_thumb.png", result.ThumbnailURL)
}

func TestGenerateHonorsCancellation(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	p := NewPipeline(store, slog.Default()) // default step delay

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Generate(ctx, Request{
		JobID:       "job-8",
		Kind:        job.KindVideo,
		Prompt:      "x",
		Credentials: testBundle(),
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
