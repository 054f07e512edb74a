package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// CerebrasBaseURL is the OpenAI-compatible endpoint for Cerebras inference.
const CerebrasBaseURL = "https://api.cerebras.ai/v1"

// OpenAI implements [Provider] on any OpenAI-compatible chat API.
type OpenAI struct {
	client      *openai.Client
	name        string
	model       string
	temperature float64
}

var _ Provider = (*OpenAI)(nil)

// OpenAIOption configures an OpenAI-compatible provider.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	name        string
	baseURL     string
	temperature float64
	httpClient  *http.Client
}

// WithBaseURL points the provider at a non-OpenAI endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithName overrides the provider name reported in metadata.
func WithName(name string) OpenAIOption {
	return func(c *openAIConfig) { c.name = name }
}

// WithDefaultTemperature sets the temperature used when a call doesn't
// override it.
func WithDefaultTemperature(t float64) OpenAIOption {
	return func(c *openAIConfig) { c.temperature = t }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// NewOpenAI creates a provider against the OpenAI API or any compatible
// endpoint configured via WithBaseURL.
func NewOpenAI(apiKey, model string, opts ...OpenAIOption) *OpenAI {
	cfg := openAIConfig{
		name:        "openai",
		temperature: 0.3,
		httpClient:  http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.httpClient),
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(clientOpts...)

	return &OpenAI{
		client:      &client,
		name:        cfg.name,
		model:       model,
		temperature: cfg.temperature,
	}
}

// NewCerebras creates a provider for the Cerebras inference API, which
// speaks the OpenAI wire protocol.
func NewCerebras(apiKey, model string, opts ...OpenAIOption) *OpenAI {
	opts = append([]OpenAIOption{WithBaseURL(CerebrasBaseURL), WithName("cerebras")}, opts...)
	return NewOpenAI(apiKey, model, opts...)
}

// Name reports the configured provider name.
func (p *OpenAI) Name() string { return p.name }

// Generate runs a chat completion.
func (p *OpenAI) Generate(ctx context.Context, system, user string, opts ...GenOption) (string, Metadata, error) {
	o := applyGenOptions(opts)

	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	temp := p.temperature
	if o.Temperature > 0 {
		temp = o.Temperature
	}
	if temp > 0 {
		params.Temperature = param.NewOpt(temp)
	}
	if o.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(o.MaxTokens))
	}
	if o.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", Metadata{}, fmt.Errorf("llm: %s: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", Metadata{}, fmt.Errorf("llm: %s: %w", p.name, ErrEmptyResponse)
	}

	md := Metadata{
		Provider:         p.name,
		Model:            p.model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", md, fmt.Errorf("llm: %s: %w", p.name, ErrEmptyResponse)
	}
	return content, md, nil
}
