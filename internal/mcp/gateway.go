package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pdtx/mediagen-api/internal/credentials"
	"github.com/pdtx/mediagen-api/internal/job"
)

// Server identity reported by initialize and /mcp-info.
const (
	ServerName    = "mediagen-api"
	ServerVersion = "1.0.0"
)

// resourceListLimit caps how many recent jobs resources/list exposes.
const resourceListLimit = 10

// streamingTools are long-running tool calls eligible for an SSE reply
// on the streamable transport. Everything else is quick-class and
// always answered with pure JSON.
var streamingTools = map[string]bool{
	"generate_video": true,
	"generate_audio": true,
}

// IsStreamingTool reports whether a tool call may stream progress.
func IsStreamingTool(name string) bool {
	return streamingTools[name]
}

type handlerFunc func(ctx context.Context, req *Request) *Response

// Gateway dispatches JSON-RPC methods to job operations. Both
// transports share one Gateway; they differ only in how results and
// subsequent events are delivered.
type Gateway struct {
	svc         *job.Service
	logger      *slog.Logger
	initialized atomic.Bool
	methods     map[string]handlerFunc
	tools       []Tool
	prompts     []Prompt
}

// NewGateway creates a Gateway over the job service.
func NewGateway(svc *job.Service, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		svc:     svc,
		logger:  logger,
		tools:   defineTools(),
		prompts: definePrompts(),
	}
	g.methods = map[string]handlerFunc{
		"initialize":                g.handleInitialize,
		"notifications/initialized": g.handleInitialized,
		"ping":                      g.handlePing,
		"tools/list":                g.handleToolsList,
		"tools/call":                g.handleToolsCall,
		"resources/list":            g.handleResourcesList,
		"resources/read":            g.handleResourcesRead,
		"prompts/list":              g.handlePromptsList,
		"prompts/get":               g.handlePromptsGet,
	}
	return g
}

// Status returns the projection of one job, for transports that track
// a job they just created.
func (g *Gateway) Status(ctx context.Context, jobID string) (job.Snapshot, error) {
	return g.svc.Get(ctx, jobID)
}

// Handle dispatches one request. It returns nil for notifications.
func (g *Gateway) Handle(ctx context.Context, req *Request) *Response {
	handler, ok := g.methods[req.Method]
	if !ok {
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
	if !g.coreMethod(req.Method) && !g.initialized.Load() {
		return NewError(req.ID, CodeInvalidRequest, "Protocol not initialized. Call 'initialize' first.")
	}
	return handler(ctx, req)
}

func (g *Gateway) coreMethod(method string) bool {
	return method == "initialize" || method == "notifications/initialized" || method == "ping"
}

// --- core protocol methods ---

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	Capabilities    any    `json:"capabilities"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// serverCapabilities advertises what the gateway implements.
func serverCapabilities() map[string]any {
	return map[string]any{
		"tools":     map[string]any{"listChanged": true},
		"resources": map[string]any{"subscribe": true, "listChanged": true},
		"prompts":   map[string]any{"listChanged": true},
		"logging":   map[string]any{},
	}
}

func (g *Gateway) handleInitialize(_ context.Context, req *Request) *Response {
	if len(req.Params) == 0 {
		return NewError(req.ID, CodeInvalidParams, "Initialize requires parameters")
	}
	var params initializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewError(req.ID, CodeInvalidParams, fmt.Sprintf("Invalid initialize parameters: %v", err))
	}
	if !IsSupportedVersion(params.ProtocolVersion) {
		return NewErrorData(req.ID, CodeInvalidVersion,
			fmt.Sprintf("Unsupported protocol version: %s", params.ProtocolVersion),
			map[string]any{"supported": SupportedVersions, "requested": params.ProtocolVersion},
		)
	}

	g.initialized.Store(true)
	g.logger.Info("mcp session initialized",
		slog.String("protocol_version", params.ProtocolVersion),
		slog.String("client", params.ClientInfo.Name),
	)
	return NewResult(req.ID, initializeResult{
		ProtocolVersion: params.ProtocolVersion,
		Capabilities:    serverCapabilities(),
		ServerInfo:      serverInfo{Name: ServerName, Version: ServerVersion},
	})
}

func (g *Gateway) handleInitialized(_ context.Context, _ *Request) *Response {
	// Notification, no response.
	return nil
}

func (g *Gateway) handlePing(_ context.Context, req *Request) *Response {
	return NewResult(req.ID, map[string]any{})
}

// --- tools ---

// Tool describes one callable tool.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema ToolSchema `json:"inputSchema"`
}

// ToolSchema is the JSON Schema of a tool's arguments.
type ToolSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

// ToolResult is the payload of a successful tools/call. JobID is set by
// job-creating tools so the streamable transport can attach its event
// stream without parsing the human-readable text.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError"`
	JobID   string        `json:"job_id,omitempty"`
}

// ToolContent is one content block of a tool result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data any    `json:"data,omitempty"`
}

// credentialsSchema is shared by the job-creating tools.
func credentialsSchema(fields ...string) map[string]any {
	props := map[string]any{}
	for _, f := range fields {
		if f == "google_cloud_credentials" {
			props[f] = map[string]any{"type": "object"}
			continue
		}
		props[f] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":        "object",
		"description": "User credentials for API access",
		"properties":  props,
	}
}

func defineTools() []Tool {
	return []Tool{
		{
			Name:        "generate_video",
			Description: "Generate a video from text prompt using Google's Veo models",
			InputSchema: ToolSchema{
				Type: "object",
				Properties: map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "Text description of the video to generate",
					},
					"duration_seconds": map[string]any{
						"type":        "integer",
						"description": "Video duration in seconds (1-60)",
						"minimum":     1,
						"maximum":     60,
						"default":     8,
					},
					"aspect_ratio": map[string]any{
						"type":        "string",
						"description": "Video aspect ratio",
						"enum":        []string{"16:9", "9:16", "1:1", "4:3", "3:4"},
						"default":     "16:9",
					},
					"model": map[string]any{
						"type":        "string",
						"description": "Video generation model to use",
						"enum":        []string{"veo-3.0-generate-preview", "veo-2.0-generate-preview"},
						"default":     "veo-3.0-generate-preview",
					},
					"generate_audio": map[string]any{
						"type":        "boolean",
						"description": "Whether to generate audio for the video",
						"default":     true,
					},
					"credentials": credentialsSchema(
						"gemini_api_key", "google_cloud_credentials",
						"google_cloud_project", "vertex_ai_region", "gcs_bucket",
					),
				},
				Required: []string{"prompt"},
			},
		},
		{
			Name:        "generate_audio",
			Description: "Generate audio/podcast from text prompt using AI text-to-speech",
			InputSchema: ToolSchema{
				Type: "object",
				Properties: map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "Text description of the audio content to generate",
					},
					"generate_thumbnail": map[string]any{
						"type":        "boolean",
						"description": "Whether to generate a podcast thumbnail image",
						"default":     false,
					},
					"thumbnail_prompt": map[string]any{
						"type":        "string",
						"description": "Custom prompt for thumbnail generation",
					},
					"credentials": credentialsSchema(
						"gemini_api_key", "google_cloud_credentials",
						"gcs_bucket", "elevenlabs_api_key",
					),
				},
				Required: []string{"prompt"},
			},
		},
		{
			Name:        "analyze_writing_style",
			Description: "Analyze dialogue style for podcast generation",
			InputSchema: ToolSchema{
				Type: "object",
				Properties: map[string]any{
					"style_instruction": map[string]any{
						"type":        "string",
						"description": "Style instruction like 'Talk like a pirate' or 'Speak like a professor'",
					},
					"credentials": credentialsSchema("gemini_api_key"),
				},
				Required: []string{"style_instruction"},
			},
		},
		{
			Name:        "check_job_status",
			Description: "Check the status of a video or audio generation job",
			InputSchema: ToolSchema{
				Type: "object",
				Properties: map[string]any{
					"job_id": map[string]any{
						"type":        "string",
						"description": "The job ID to check status for",
					},
				},
				Required: []string{"job_id"},
			},
		},
	}
}

func (g *Gateway) handleToolsList(_ context.Context, req *Request) *Response {
	return NewResult(req.ID, map[string]any{"tools": g.tools})
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (g *Gateway) handleToolsCall(ctx context.Context, req *Request) *Response {
	if len(req.Params) == 0 {
		return NewError(req.ID, CodeInvalidParams, "Missing parameters")
	}
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewError(req.ID, CodeInvalidParams, fmt.Sprintf("Invalid tool call parameters: %v", err))
	}

	switch params.Name {
	case "generate_video":
		return g.callGenerateVideo(ctx, req.ID, params.Arguments)
	case "generate_audio":
		return g.callGenerateAudio(ctx, req.ID, params.Arguments)
	case "analyze_writing_style":
		return g.callAnalyzeWritingStyle(ctx, req.ID, params.Arguments)
	case "check_job_status":
		return g.callCheckJobStatus(ctx, req.ID, params.Arguments)
	default:
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("Unknown tool: %s", params.Name))
	}
}

type generateVideoArgs struct {
	Prompt          string               `json:"prompt"`
	DurationSeconds int                  `json:"duration_seconds"`
	AspectRatio     string               `json:"aspect_ratio"`
	Model           string               `json:"model"`
	GenerateAudio   *bool                `json:"generate_audio"`
	ClientID        string               `json:"client_id"`
	Credentials     *credentials.Request `json:"credentials"`
}

func (g *Gateway) callGenerateVideo(ctx context.Context, id any, raw json.RawMessage) *Response {
	var args generateVideoArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return NewError(id, CodeInvalidParams, fmt.Sprintf("Invalid arguments: %v", err))
		}
	}
	if args.Prompt == "" {
		return NewError(id, CodeInvalidParams, "Missing required parameter: prompt")
	}
	if args.DurationSeconds == 0 {
		args.DurationSeconds = 8
	}
	if args.DurationSeconds < 1 || args.DurationSeconds > 60 {
		return NewError(id, CodeInvalidParams, "duration_seconds must be between 1 and 60")
	}
	if args.AspectRatio == "" {
		args.AspectRatio = "16:9"
	}
	if args.Model == "" {
		args.Model = "veo-3.0-generate-preview"
	}
	generateAudio := true
	if args.GenerateAudio != nil {
		generateAudio = *args.GenerateAudio
	}

	snap, err := g.svc.Submit(ctx, job.SubmitInput{
		Kind:     job.KindVideo,
		ClientID: args.ClientID,
		Prompt:   args.Prompt,
		Params: job.Params{
			DurationSeconds: args.DurationSeconds,
			AspectRatio:     args.AspectRatio,
			Model:           args.Model,
			GenerateAudio:   generateAudio,
		},
		Credentials: args.Credentials,
	})
	if err != nil {
		return g.submitError(id, err)
	}
	return NewResult(id, jobStartedResult("Video", snap.JobID))
}

type generateAudioArgs struct {
	Prompt            string               `json:"prompt"`
	GenerateThumbnail bool                 `json:"generate_thumbnail"`
	ThumbnailPrompt   string               `json:"thumbnail_prompt"`
	ClientID          string               `json:"client_id"`
	Credentials       *credentials.Request `json:"credentials"`
}

func (g *Gateway) callGenerateAudio(ctx context.Context, id any, raw json.RawMessage) *Response {
	var args generateAudioArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return NewError(id, CodeInvalidParams, fmt.Sprintf("Invalid arguments: %v", err))
		}
	}
	if args.Prompt == "" {
		return NewError(id, CodeInvalidParams, "Missing required parameter: prompt")
	}

	snap, err := g.svc.Submit(ctx, job.SubmitInput{
		Kind:     job.KindAudio,
		ClientID: args.ClientID,
		Prompt:   args.Prompt,
		Params: job.Params{
			GenerateThumbnail: args.GenerateThumbnail,
			ThumbnailPrompt:   args.ThumbnailPrompt,
		},
		Credentials: args.Credentials,
	})
	if err != nil {
		return g.submitError(id, err)
	}
	return NewResult(id, jobStartedResult("Audio", snap.JobID))
}

type analyzeStyleArgs struct {
	StyleInstruction string               `json:"style_instruction"`
	ClientID         string               `json:"client_id"`
	Credentials      *credentials.Request `json:"credentials"`
}

func (g *Gateway) callAnalyzeWritingStyle(ctx context.Context, id any, raw json.RawMessage) *Response {
	var args analyzeStyleArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return NewError(id, CodeInvalidParams, fmt.Sprintf("Invalid arguments: %v", err))
		}
	}
	if args.StyleInstruction == "" {
		return NewError(id, CodeInvalidParams, "Missing required parameter: style_instruction")
	}

	snap, err := g.svc.Submit(ctx, job.SubmitInput{
		Kind:        job.KindStyleAnalysis,
		ClientID:    args.ClientID,
		Prompt:      args.StyleInstruction,
		Credentials: args.Credentials,
	})
	if err != nil {
		return g.submitError(id, err)
	}
	return NewResult(id, jobStartedResult("Style analysis", snap.JobID))
}

type checkStatusArgs struct {
	JobID string `json:"job_id"`
}

func (g *Gateway) callCheckJobStatus(ctx context.Context, id any, raw json.RawMessage) *Response {
	var args checkStatusArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return NewError(id, CodeInvalidParams, fmt.Sprintf("Invalid arguments: %v", err))
		}
	}
	if args.JobID == "" {
		return NewError(id, CodeInvalidParams, "Missing required parameter: job_id")
	}

	snap, err := g.svc.Get(ctx, args.JobID)
	if err != nil {
		return NewError(id, CodeInternalError, err.Error())
	}
	if snap.Status == job.StatusNotFound {
		return NewError(id, CodeResourceNotFound, fmt.Sprintf("Job not found: %s", args.JobID))
	}
	return NewResult(id, ToolResult{
		Content: []ToolContent{{Type: "application/json", Data: snap}},
		JobID:   snap.JobID,
	})
}

// jobStartedResult is the uniform success payload of job-creating
// tools.
func jobStartedResult(label, jobID string) ToolResult {
	return ToolResult{
		Content: []ToolContent{{
			Type: "text",
			Text: fmt.Sprintf("%s generation started successfully. Job ID: %s. Use check_job_status tool to monitor progress.", label, jobID),
		}},
		JobID: jobID,
	}
}

// submitError maps submission failures onto the JSON-RPC taxonomy:
// credential and validation problems are tool execution errors, bad
// arguments are invalid params.
func (g *Gateway) submitError(id any, err error) *Response {
	var verr *credentials.ValidationError
	if errors.As(err, &verr) {
		return NewError(id, CodeToolExecutionError, fmt.Sprintf("Invalid credentials: %s", verr.Error()))
	}
	if errors.Is(err, job.ErrUnknownKind) || errors.Is(err, job.ErrEmptyPrompt) {
		return NewError(id, CodeInvalidParams, err.Error())
	}
	g.logger.Error("tool call submission failed", slog.String("error", err.Error()))
	return NewError(id, CodeToolExecutionError, err.Error())
}

// --- resources ---

// Resource describes one readable resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// ResourceContents is the payload of resources/read.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

func (g *Gateway) handleResourcesList(ctx context.Context, req *Request) *Response {
	snaps, err := g.svc.List(ctx)
	if err != nil {
		return NewError(req.ID, CodeInternalError, err.Error())
	}
	if len(snaps) > resourceListLimit {
		snaps = snaps[:resourceListLimit]
	}
	resources := make([]Resource, 0, len(snaps))
	for _, s := range snaps {
		short := s.JobID
		if len(short) > 8 {
			short = short[:8]
		}
		resources = append(resources, Resource{
			URI:         "job://" + s.JobID,
			Name:        "Job " + short,
			Description: fmt.Sprintf("Status and results for job %s", s.JobID),
			MimeType:    "application/json",
		})
	}
	return NewResult(req.ID, map[string]any{"resources": resources})
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (g *Gateway) handleResourcesRead(ctx context.Context, req *Request) *Response {
	if len(req.Params) == 0 {
		return NewError(req.ID, CodeInvalidParams, "Missing parameters")
	}
	var params resourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewError(req.ID, CodeInvalidParams, fmt.Sprintf("Invalid parameters: %v", err))
	}

	const scheme = "job://"
	if len(params.URI) <= len(scheme) || params.URI[:len(scheme)] != scheme {
		return NewError(req.ID, CodeResourceNotFound, fmt.Sprintf("Unknown resource URI: %s", params.URI))
	}
	jobID := params.URI[len(scheme):]

	snap, err := g.svc.Get(ctx, jobID)
	if err != nil {
		return NewError(req.ID, CodeInternalError, err.Error())
	}
	if snap.Status == job.StatusNotFound {
		return NewError(req.ID, CodeResourceNotFound, fmt.Sprintf("Job not found: %s", jobID))
	}

	text, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return NewError(req.ID, CodeInternalError, err.Error())
	}
	return NewResult(req.ID, ResourceContents{
		URI:      params.URI,
		MimeType: "application/json",
		Text:     string(text),
	})
}
