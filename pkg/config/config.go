// Package config loads OMC settings from the environment.
//
// All variables are prefixed OMC_. Every field has a default suitable for
// a local development setup (store on localhost:6969, Cerebras for chat,
// Ollama for embeddings, Ollama as the fallback for both).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default values used when the corresponding variable is unset.
const (
	DefaultHost = "localhost"
	DefaultPort = 6969

	DefaultLLMProvider = "cerebras"
	DefaultLLMModel    = "llama-3.3-70b"

	DefaultEmbeddingProvider = "ollama"
	DefaultEmbeddingModel    = "nomic-embed-text"
	DefaultEmbeddingURL      = "http://localhost:11434"

	DefaultFallbackURL            = "http://localhost:11434"
	DefaultFallbackLLMModel       = "llama3.2"
	DefaultFallbackEmbeddingModel = "nomic-embed-text"

	DefaultTemperature = 0.3
	DefaultTimeout     = 30 * time.Second

	DefaultCertainty   = 80
	DefaultImportance  = 50
	DefaultSearchLimit = 10
	DefaultSearchMode  = "recent"
)

// Config holds every runtime setting.
type Config struct {
	// Backing store.
	Host     string
	Port     int
	Instance string

	// Chat LLM.
	LLMProvider string
	LLMModel    string
	LLMAPIKey   string

	// Embeddings.
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingURL      string
	EmbeddingAPIKey   string

	// Local fallback provider.
	FallbackEnabled        bool
	FallbackURL            string
	FallbackLLMModel       string
	FallbackEmbeddingModel string

	// Generation.
	Temperature float64
	Timeout     time.Duration

	// Memory defaults.
	DefaultCertainty  int
	DefaultImportance int

	// Search defaults.
	SearchLimit int
	SearchMode  string
}

// Load reads the environment and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Host:     getenv("OMC_HOST", DefaultHost),
		Instance: os.Getenv("OMC_INSTANCE"),

		LLMProvider: getenv("OMC_LLM_PROVIDER", DefaultLLMProvider),
		LLMModel:    getenv("OMC_LLM_MODEL", DefaultLLMModel),
		LLMAPIKey:   os.Getenv("OMC_LLM_API_KEY"),

		EmbeddingProvider: getenv("OMC_EMBEDDING_PROVIDER", DefaultEmbeddingProvider),
		EmbeddingModel:    getenv("OMC_EMBEDDING_MODEL", DefaultEmbeddingModel),
		EmbeddingURL:      getenv("OMC_EMBEDDING_URL", DefaultEmbeddingURL),
		EmbeddingAPIKey:   os.Getenv("OMC_EMBEDDING_API_KEY"),

		FallbackURL:            getenv("OMC_FALLBACK_URL", DefaultFallbackURL),
		FallbackLLMModel:       getenv("OMC_FALLBACK_LLM_MODEL", DefaultFallbackLLMModel),
		FallbackEmbeddingModel: getenv("OMC_FALLBACK_EMBEDDING_MODEL", DefaultFallbackEmbeddingModel),

		SearchMode: getenv("OMC_SEARCH_MODE", DefaultSearchMode),
	}

	var err error
	if cfg.Port, err = getenvInt("OMC_PORT", DefaultPort); err != nil {
		return nil, err
	}
	if cfg.FallbackEnabled, err = getenvBool("OMC_FALLBACK_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.Temperature, err = getenvFloat("OMC_TEMPERATURE", DefaultTemperature); err != nil {
		return nil, err
	}
	timeoutSecs, err := getenvInt("OMC_TIMEOUT", int(DefaultTimeout.Seconds()))
	if err != nil {
		return nil, err
	}
	cfg.Timeout = time.Duration(timeoutSecs) * time.Second
	if cfg.DefaultCertainty, err = getenvInt("OMC_DEFAULT_CERTAINTY", DefaultCertainty); err != nil {
		return nil, err
	}
	if cfg.DefaultImportance, err = getenvInt("OMC_DEFAULT_IMPORTANCE", DefaultImportance); err != nil {
		return nil, err
	}
	if cfg.SearchLimit, err = getenvInt("OMC_SEARCH_LIMIT", DefaultSearchLimit); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.DefaultCertainty < 0 || c.DefaultCertainty > 100 {
		return fmt.Errorf("config: certainty %d out of range [0,100]", c.DefaultCertainty)
	}
	if c.DefaultImportance < 0 || c.DefaultImportance > 100 {
		return fmt.Errorf("config: importance %d out of range [0,100]", c.DefaultImportance)
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("config: search limit must be positive, got %d", c.SearchLimit)
	}
	switch c.SearchMode {
	case "recent", "contextual", "deep", "full":
	default:
		return fmt.Errorf("config: unknown search mode %q", c.SearchMode)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
