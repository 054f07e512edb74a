package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	ollamaDefaultModel = "nomic-embed-text"
	ollamaDefaultDim   = 768
)

// Ollama implements [Embedder] against a local Ollama server's
// /api/embeddings endpoint.
type Ollama struct {
	baseURL    string
	model      string
	dim        int
	httpClient *http.Client
}

var _ Embedder = (*Ollama)(nil)

// NewOllama creates an embedder for the Ollama server at baseURL
// (e.g. "http://localhost:11434").
func NewOllama(baseURL string, opts ...Option) *Ollama {
	cfg := config{
		model:      ollamaDefaultModel,
		dim:        ollamaDefaultDim,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Ollama{
		baseURL:    baseURL,
		model:      cfg.model,
		dim:        cfg.dim,
		httpClient: cfg.httpClient,
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding for a single text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	data, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embed: ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("embed: ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embed: ollama: status %d: %s", resp.StatusCode, body)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embed: ollama: decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embed: ollama: empty embedding for model %s", o.model)
	}
	return float64sToFloat32s(out.Embedding), nil
}

// EmbedBatch embeds texts sequentially; the Ollama API has no batch call.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed: batch index %d: %w", i, err)
		}
		vecs[i] = v
	}
	return vecs, nil
}

// Dimension returns the configured vector dimensionality.
func (o *Ollama) Dimension() int {
	return o.dim
}

// Model returns the model identifier.
func (o *Ollama) Model() string {
	return o.model
}
