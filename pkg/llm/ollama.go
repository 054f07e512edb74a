package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Local models can take minutes on first load.
const ollamaTimeout = 600 * time.Second

// Ollama implements [Provider] against a local Ollama server's /api/chat
// endpoint.
type Ollama struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ Provider = (*Ollama)(nil)

// NewOllama creates a provider for the Ollama server at baseURL
// (e.g. "http://localhost:11434").
func NewOllama(baseURL, model string) *Ollama {
	return &Ollama{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: ollamaTimeout},
	}
}

// Name reports "ollama".
func (p *Ollama) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	PromptEvalCount int64         `json:"prompt_eval_count"`
	EvalCount       int64         `json:"eval_count"`
}

// Generate runs a non-streaming chat completion.
func (p *Ollama) Generate(ctx context.Context, system, user string, opts ...GenOption) (string, Metadata, error) {
	o := applyGenOptions(opts)

	reqBody := ollamaChatRequest{
		Model: p.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	if o.JSONMode {
		reqBody.Format = "json"
	}
	if o.Temperature > 0 || o.MaxTokens > 0 {
		reqBody.Options = &ollamaOptions{
			Temperature: o.Temperature,
			NumPredict:  o.MaxTokens,
		}
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", Metadata{}, fmt.Errorf("llm: ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", Metadata{}, fmt.Errorf("llm: ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", Metadata{}, fmt.Errorf("llm: ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", Metadata{}, fmt.Errorf("llm: ollama: status %d: %s", resp.StatusCode, body)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", Metadata{}, fmt.Errorf("llm: ollama: decode response: %w", err)
	}

	md := Metadata{
		Provider:         "ollama",
		Model:            p.model,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
	}
	if out.Message.Content == "" {
		return "", md, fmt.Errorf("llm: ollama: %w", ErrEmptyResponse)
	}
	return out.Message.Content, md, nil
}
