package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

// Gemini implements [Provider] using the Google Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float64
}

var _ Provider = (*Gemini)(nil)

// NewGemini creates a Gemini provider with an API-key backend.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: gemini: %w", err)
	}
	return &Gemini{client: client, model: model, temperature: 0.3}, nil
}

// Name reports "gemini".
func (p *Gemini) Name() string { return "gemini" }

// Generate runs a non-streaming completion.
func (p *Gemini) Generate(ctx context.Context, system, user string, opts ...GenOption) (string, Metadata, error) {
	o := applyGenOptions(opts)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
	}
	temp := p.temperature
	if o.Temperature > 0 {
		temp = o.Temperature
	}
	if temp > 0 {
		cfg.Temperature = genai.Ptr(float32(temp))
	}
	if o.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(o.MaxTokens)
	}
	if o.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(user), cfg)
	if err != nil {
		if e, ok := err.(*apierror.APIError); ok {
			err = e.Unwrap()
		}
		return "", Metadata{}, fmt.Errorf("llm: gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", Metadata{}, fmt.Errorf("llm: gemini: %w", ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}

	md := Metadata{Provider: "gemini", Model: p.model}
	if resp.UsageMetadata != nil {
		md.PromptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		md.CompletionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	if sb.Len() == 0 {
		return "", md, fmt.Errorf("llm: gemini: %w", ErrEmptyResponse)
	}
	return sb.String(), md, nil
}
