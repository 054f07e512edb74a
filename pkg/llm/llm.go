// Package llm provides chat-completion providers for the memory core.
//
// Three backends are supported: any OpenAI-compatible API (including
// Cerebras), a local Ollama server, and Google Gemini. The [Fallback]
// wrapper pairs a primary provider with a local Ollama fallback so the
// write pipeline keeps working through upstream outages.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse indicates the provider returned no usable content.
var ErrEmptyResponse = errors.New("llm: empty response")

// Metadata describes a completed generation call.
type Metadata struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens,omitempty"`
	CompletionTokens int64  `json:"completion_tokens,omitempty"`

	// Set by the Fallback wrapper when the primary provider failed.
	FallbackUsed     bool   `json:"fallback_used,omitempty"`
	OriginalProvider string `json:"original_provider,omitempty"`
	OriginalError    string `json:"original_error,omitempty"`
}

// GenOptions holds per-call generation settings.
type GenOptions struct {
	// JSONMode asks the provider to emit a single JSON object.
	JSONMode bool

	// Temperature overrides the provider default when > 0.
	Temperature float64

	// MaxTokens caps the completion length when > 0.
	MaxTokens int
}

// GenOption configures a single Generate call.
type GenOption func(*GenOptions)

// WithJSONMode requests a JSON object response.
func WithJSONMode() GenOption {
	return func(o *GenOptions) { o.JSONMode = true }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenOption {
	return func(o *GenOptions) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) GenOption {
	return func(o *GenOptions) { o.MaxTokens = n }
}

func applyGenOptions(opts []GenOption) GenOptions {
	var o GenOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Provider generates chat completions.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name identifies the provider ("cerebras", "ollama", "gemini", ...).
	Name() string

	// Generate produces a completion for the system/user prompt pair.
	Generate(ctx context.Context, system, user string, opts ...GenOption) (string, Metadata, error)
}
