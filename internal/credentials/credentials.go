// Package credentials resolves per-request credential objects against
// process-wide environment defaults and validates the merged bundle
// before a job is ever queued. The resolved Bundle is the only copy of
// secret material the system retains; it lives inside the job record
// and is erased at the terminal transition.
package credentials

import (
	"encoding/json"
	"fmt"
)

// minKeyLength is the minimum plausible length for a provider API key.
const minKeyLength = 20

// Request is the client-supplied credential object. Every field is
// optional; absent fields fall back to the environment defaults.
type Request struct {
	GeminiAPIKey           string          `json:"gemini_api_key,omitempty"`
	GoogleCloudProject     string          `json:"google_cloud_project,omitempty"`
	VertexAIRegion         string          `json:"vertex_ai_region,omitempty"`
	GCSBucket              string          `json:"gcs_bucket,omitempty"`
	ElevenLabsAPIKey       string          `json:"elevenlabs_api_key,omitempty"`
	GoogleCloudCredentials json.RawMessage `json:"google_cloud_credentials,omitempty"`
}

// Defaults holds the process-wide credential defaults loaded from the
// environment at startup.
type Defaults struct {
	GeminiAPIKey           string
	OpenAIAPIKey           string
	GoogleCloudProject     string
	VertexAIRegion         string
	GCSBucket              string
	ElevenLabsAPIKey       string
	GoogleCloudCredentials json.RawMessage
}

// Bundle is a fully-resolved credential set scoped to one job
// execution. It must never be logged or serialized into any response
// or notification payload.
type Bundle struct {
	GeminiAPIKey           string          `json:"gemini_api_key,omitempty"`
	OpenAIAPIKey           string          `json:"openai_api_key,omitempty"`
	GoogleCloudProject     string          `json:"google_cloud_project,omitempty"`
	VertexAIRegion         string          `json:"vertex_ai_region,omitempty"`
	GCSBucket              string          `json:"gcs_bucket,omitempty"`
	ElevenLabsAPIKey       string          `json:"elevenlabs_api_key,omitempty"`
	GoogleCloudCredentials json.RawMessage `json:"google_cloud_credentials,omitempty"`
}

// Redacted returns a map safe for structured logging: secret values are
// reported only as present or absent.
func (b *Bundle) Redacted() map[string]string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "[redacted]"
	}
	out := map[string]string{
		"gemini_api_key":       mask(b.GeminiAPIKey),
		"openai_api_key":       mask(b.OpenAIAPIKey),
		"elevenlabs_api_key":   mask(b.ElevenLabsAPIKey),
		"google_cloud_project": b.GoogleCloudProject,
		"vertex_ai_region":     b.VertexAIRegion,
		"gcs_bucket":           b.GCSBucket,
	}
	if len(b.GoogleCloudCredentials) > 0 {
		out["google_cloud_credentials"] = "[redacted]"
	}
	return out
}

// ValidationError identifies the credential field that failed
// resolution and why. It is returned before any job is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("credentials: %s %s", e.Field, e.Reason)
}

// requiredFields maps a job kind to the credential fields that must be
// present after merging. OpenAI is always server-internal and never
// required from the client.
var requiredFields = map[string][]string{
	"video":          {"google_cloud_project", "gcs_bucket", "gemini_api_key"},
	"audio":          {"google_cloud_project", "gcs_bucket", "gemini_api_key", "elevenlabs_api_key"},
	"style_analysis": {"gemini_api_key"},
}

// Resolver merges request credentials over environment defaults and
// validates the result for a specific job kind.
type Resolver struct {
	defaults Defaults
}

// NewResolver creates a Resolver with the given environment defaults.
func NewResolver(defaults Defaults) *Resolver {
	if defaults.VertexAIRegion == "" {
		defaults.VertexAIRegion = "us-central1"
	}
	return &Resolver{defaults: defaults}
}

// Resolve produces a complete Bundle for one job execution, or a
// *ValidationError naming the first missing or malformed field.
// Every field is resolved independently: a present request field wins,
// an absent one falls back to the default. No live provider
// verification happens here; provider failures surface later as job
// failures.
func (r *Resolver) Resolve(req *Request, kind string) (*Bundle, error) {
	if req == nil {
		req = &Request{}
	}

	b := &Bundle{
		GeminiAPIKey:           pick(req.GeminiAPIKey, r.defaults.GeminiAPIKey),
		OpenAIAPIKey:           r.defaults.OpenAIAPIKey, // never client-supplied
		GoogleCloudProject:     pick(req.GoogleCloudProject, r.defaults.GoogleCloudProject),
		VertexAIRegion:         pick(req.VertexAIRegion, r.defaults.VertexAIRegion),
		GCSBucket:              pick(req.GCSBucket, r.defaults.GCSBucket),
		ElevenLabsAPIKey:       pick(req.ElevenLabsAPIKey, r.defaults.ElevenLabsAPIKey),
		GoogleCloudCredentials: pickJSON(req.GoogleCloudCredentials, r.defaults.GoogleCloudCredentials),
	}

	required, ok := requiredFields[kind]
	if !ok {
		return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown job kind %q", kind)}
	}
	for _, field := range required {
		if b.fieldValue(field) == "" {
			return nil, &ValidationError{Field: field, Reason: "is required and not set in request or environment"}
		}
	}

	if err := b.checkShape(); err != nil {
		return nil, err
	}
	return b, nil
}

// fieldValue returns the resolved value for a required-field name.
func (b *Bundle) fieldValue(field string) string {
	switch field {
	case "gemini_api_key":
		return b.GeminiAPIKey
	case "google_cloud_project":
		return b.GoogleCloudProject
	case "gcs_bucket":
		return b.GCSBucket
	case "elevenlabs_api_key":
		return b.ElevenLabsAPIKey
	default:
		return ""
	}
}

// checkShape performs structural validation only: key lengths and the
// service-account JSON shape.
func (b *Bundle) checkShape() error {
	if b.GeminiAPIKey != "" && len(b.GeminiAPIKey) < minKeyLength {
		return &ValidationError{Field: "gemini_api_key", Reason: "appears to be invalid (too short)"}
	}
	if b.ElevenLabsAPIKey != "" && len(b.ElevenLabsAPIKey) < minKeyLength {
		return &ValidationError{Field: "elevenlabs_api_key", Reason: "appears to be invalid (too short)"}
	}
	if b.OpenAIAPIKey != "" && len(b.OpenAIAPIKey) < minKeyLength {
		return &ValidationError{Field: "openai_api_key", Reason: "appears to be invalid (too short)"}
	}
	if len(b.GoogleCloudCredentials) > 0 {
		var sa map[string]any
		if err := json.Unmarshal(b.GoogleCloudCredentials, &sa); err != nil {
			return &ValidationError{Field: "google_cloud_credentials", Reason: "must be a JSON object"}
		}
		if _, ok := sa["type"]; !ok {
			return &ValidationError{Field: "google_cloud_credentials", Reason: "missing service account type"}
		}
	}
	return nil
}

func pick(reqValue, defValue string) string {
	if reqValue != "" {
		return reqValue
	}
	return defValue
}

func pickJSON(reqValue, defValue json.RawMessage) json.RawMessage {
	if len(reqValue) > 0 {
		return reqValue
	}
	return defValue
}
