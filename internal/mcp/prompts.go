package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Prompt describes one reusable prompt template.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments"`
}

// PromptArgument describes one template argument.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// PromptMessage is one rendered message of a prompt.
type PromptMessage struct {
	Role    string        `json:"role"`
	Content PromptContent `json:"content"`
}

// PromptContent is the content block of a prompt message.
type PromptContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// promptResult is the payload of prompts/get.
type promptResult struct {
	Description string          `json:"description"`
	Messages    []PromptMessage `json:"messages"`
}

func definePrompts() []Prompt {
	return []Prompt{
		{
			Name:        "video_generation",
			Description: "Template for video generation with customizable parameters",
			Arguments: []PromptArgument{
				{Name: "topic", Description: "Main topic or subject", Required: true},
				{Name: "style", Description: "Visual style (e.g., cinematic, cartoon, realistic)"},
				{Name: "mood", Description: "Mood or atmosphere"},
				{Name: "duration", Description: "Duration preference"},
			},
		},
		{
			Name:        "podcast_generation",
			Description: "Template for podcast/audio generation",
			Arguments: []PromptArgument{
				{Name: "topic", Description: "Podcast topic", Required: true},
				{Name: "audience", Description: "Target audience"},
				{Name: "tone", Description: "Speaking tone"},
				{Name: "length", Description: "Desired length"},
			},
		},
		{
			Name:        "style_analysis",
			Description: "Template for analyzing speaking/writing styles",
			Arguments: []PromptArgument{
				{Name: "reference", Description: "Style reference (person, character, or description)", Required: true},
				{Name: "context", Description: "Context or situation"},
			},
		},
	}
}

func (g *Gateway) handlePromptsList(_ context.Context, req *Request) *Response {
	return NewResult(req.ID, map[string]any{"prompts": g.prompts})
}

type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (g *Gateway) handlePromptsGet(_ context.Context, req *Request) *Response {
	if len(req.Params) == 0 {
		return NewError(req.ID, CodeInvalidParams, "Missing parameters")
	}
	var params promptsGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewError(req.ID, CodeInvalidParams, fmt.Sprintf("Invalid parameters: %v", err))
	}
	args := params.Arguments
	if args == nil {
		args = map[string]string{}
	}

	switch params.Name {
	case "video_generation":
		return NewResult(req.ID, videoPrompt(args))
	case "podcast_generation":
		return NewResult(req.ID, podcastPrompt(args))
	case "style_analysis":
		return NewResult(req.ID, stylePrompt(args))
	default:
		return NewError(req.ID, CodeResourceNotFound, fmt.Sprintf("Unknown prompt: %s", params.Name))
	}
}

func argOr(args map[string]string, key, fallback string) string {
	if v, ok := args[key]; ok && v != "" {
		return v
	}
	return fallback
}

func videoPrompt(args map[string]string) promptResult {
	topic := argOr(args, "topic", "[TOPIC]")
	style := argOr(args, "style", "cinematic")
	mood := argOr(args, "mood", "engaging")
	duration := argOr(args, "duration", "8 seconds")

	text := fmt.Sprintf(`Create a %s %s video about %s.

The video should have a %s atmosphere and be visually compelling. Consider:
- Clear visual storytelling
- Smooth camera movements
- Good lighting and composition
- Appropriate pacing for the %s duration

Topic: %s
Style: %s
Mood: %s
Duration: %s`, style, duration, topic, mood, duration, topic, style, mood, duration)

	return promptResult{
		Description: fmt.Sprintf("Video generation prompt for %s", topic),
		Messages: []PromptMessage{{
			Role:    "user",
			Content: PromptContent{Type: "text", Text: text},
		}},
	}
}

func podcastPrompt(args map[string]string) promptResult {
	topic := argOr(args, "topic", "[TOPIC]")
	audience := argOr(args, "audience", "general audience")
	tone := argOr(args, "tone", "conversational")
	length := argOr(args, "length", "2-3 minutes")

	text := fmt.Sprintf(`Create a %s %s podcast about %s for %s.

The podcast should be:
- Engaging and informative
- Well-structured with clear introduction and conclusion
- Appropriate for %s
- Delivered in a %s style
- Approximately %s in length

Topic: %s
Audience: %s
Tone: %s
Length: %s

Make it conversational and natural, as if speaking directly to listeners.`,
		tone, length, topic, audience, audience, tone, length, topic, audience, tone, length)

	return promptResult{
		Description: fmt.Sprintf("Podcast generation prompt for %s", topic),
		Messages: []PromptMessage{{
			Role:    "user",
			Content: PromptContent{Type: "text", Text: text},
		}},
	}
}

func stylePrompt(args map[string]string) promptResult {
	reference := argOr(args, "reference", "[REFERENCE]")
	context := argOr(args, "context", "general speaking")

	text := fmt.Sprintf(`Analyze the speaking/writing style of %s in the context of %s.

Please provide detailed analysis covering:
- Tone and vocal characteristics
- Vocabulary and language patterns
- Speech pace and rhythm
- Typical phrases and expressions
- Communication style and approach
- Target audience considerations

Reference: %s
Context: %s

Focus on extracting specific, actionable style elements that can be used for content generation.`,
		reference, context, reference, context)

	return promptResult{
		Description: fmt.Sprintf("Style analysis prompt for %s", reference),
		Messages: []PromptMessage{{
			Role:    "user",
			Content: PromptContent{Type: "text", Text: text},
		}},
	}
}
