package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/cli"
	"github.com/ontomem/omc/pkg/config"
	"github.com/ontomem/omc/pkg/embed"
	"github.com/ontomem/omc/pkg/helix"
	"github.com/ontomem/omc/pkg/llm"
)

var (
	// Global flags
	cfgFile      string
	contextName  string
	outputFormat string
	outputFile   string
	jqExpr       string
	userFlag     string
	verbose      bool

	// Global configuration (loaded at init time)
	globalConfig *cli.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "omc",
	Short: "Agent memory over a graph and vector store",
	Long: `omc - an ontological memory core for AI agents.

Text goes in through a write pipeline (extraction, decision,
chunking, linking, graph integration) and comes back out through
hybrid search over the memory graph.

Configuration is stored in ~/.omc/config.yaml and supports multiple
contexts, similar to kubectl's context management.

Examples:
  # Set up a context and make it current
  omc config add-context dev --api-key YOUR_KEY --user alice
  omc config use-context dev

  # Store and retrieve memories
  omc remember "Alice moved to Berlin last month"
  omc recall "where does Alice live" --mode contextual

  # Pipe JSON output through a jq expression
  omc recall "Berlin" -o json --jq '.memories[].content'`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.omc/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "yaml", "output format (yaml, json, raw)")
	rootCmd.PersistentFlags().StringVar(&outputFile, "out", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().StringVar(&jqExpr, "jq", "", "jq expression applied to the result")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "user ID (overrides the context default)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// configLoadErr stores the error from config loading for deferred reporting.
var configLoadErr error

func initConfig() {
	cfg, err := cli.LoadConfigWithPath(cfgFile)
	if err != nil {
		// Store error for deferred reporting. Commands that need config
		// will get a clear error via getConfig(). This avoids failing
		// commands like 'omc version'.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// getConfig returns the global configuration.
func getConfig() (*cli.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := cli.LoadConfigWithPath(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// getContext returns the context configuration to use. Fields the
// context leaves unset fall back to the OMC_* environment variables,
// and with no config file at all an environment-only context is built,
// so the CLI works in a bare env-driven setup.
func getContext() (*cli.Context, error) {
	env, err := config.Load()
	if err != nil {
		return nil, err
	}

	ctx := &cli.Context{Name: "environment"}
	if cfg, cfgErr := getConfig(); cfgErr == nil {
		resolved, resolveErr := cfg.ResolveContext(contextName)
		switch {
		case resolveErr == nil:
			ctx = resolved
		case contextName != "":
			return nil, resolveErr
		}
	} else if contextName != "" {
		return nil, cfgErr
	}
	applyEnv(ctx, env)
	return ctx, nil
}

// applyEnv fills unset context fields from the environment config.
// Explicit context values always win.
func applyEnv(c *cli.Context, env *config.Config) {
	if c.Host == "" {
		c.Host = env.Host
	}
	if c.Port == 0 {
		c.Port = env.Port
	}
	if c.Instance == "" {
		c.Instance = env.Instance
	}
	if c.LLMProvider == "" {
		c.LLMProvider = env.LLMProvider
	}
	// Models and timeout apply only when the variable is actually set:
	// their built-in defaults belong to the per-provider and per-command
	// fallbacks, not to every context.
	if c.LLMModel == "" && os.Getenv("OMC_LLM_MODEL") != "" {
		c.LLMModel = env.LLMModel
	}
	if c.APIKey == "" {
		c.APIKey = env.LLMAPIKey
	}
	if c.EmbedProvider == "" {
		c.EmbedProvider = env.EmbeddingProvider
	}
	if c.EmbedModel == "" && os.Getenv("OMC_EMBEDDING_MODEL") != "" {
		c.EmbedModel = env.EmbeddingModel
	}
	if c.Timeout == 0 && os.Getenv("OMC_TIMEOUT") != "" {
		c.Timeout = int(env.Timeout.Seconds())
	}
	if c.GetExtra("embed_url") == "" && env.EmbeddingURL != "" {
		c.SetExtra("embed_url", env.EmbeddingURL)
	}
	if c.GetExtra("embed_api_key") == "" && env.EmbeddingAPIKey != "" {
		c.SetExtra("embed_api_key", env.EmbeddingAPIKey)
	}
	if c.GetExtra("ollama_url") == "" && env.FallbackURL != "" {
		c.SetExtra("ollama_url", env.FallbackURL)
	}
}

// getUserID returns the user to operate as: the -u flag, or the context default.
func getUserID(ctx *cli.Context) (string, error) {
	if userFlag != "" {
		return userFlag, nil
	}
	if ctx.UserID != "" {
		return ctx.UserID, nil
	}
	return "", fmt.Errorf("no user ID. Use -u flag or set user_id on the context")
}

// newLogger returns the CLI logger. Verbose mode lowers the level to debug.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newClient creates a store client for the context.
func newClient(ctx *cli.Context, logger *slog.Logger) *helix.Client {
	host, port := ctx.Addr()
	opts := []helix.Option{helix.WithLogger(logger)}
	if ctx.Instance != "" {
		opts = append(opts, helix.WithInstance(ctx.Instance))
	}
	if ctx.MaxRetries > 0 {
		opts = append(opts, helix.WithMaxRetries(ctx.MaxRetries))
	}
	return helix.New(host, port, opts...)
}

// newProvider creates the chat LLM provider for the context. The
// remote providers are wrapped with a local Ollama fallback so that a
// network outage degrades write quality instead of failing the write.
func newProvider(ctx context.Context, c *cli.Context, logger *slog.Logger) (llm.Provider, error) {
	model := c.LLMModel
	provider := c.LLMProvider
	if provider == "" {
		provider = config.DefaultLLMProvider
	}

	switch provider {
	case "cerebras":
		if model == "" {
			model = config.DefaultLLMModel
		}
		var opts []llm.OpenAIOption
		if c.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(c.BaseURL))
		}
		primary := llm.NewCerebras(c.APIKey, model, opts...)
		return llm.NewOllamaFallback(primary, fallbackURL(c), config.DefaultFallbackLLMModel, logger), nil
	case "openai":
		if model == "" {
			return nil, fmt.Errorf("llm_model is required for the openai provider")
		}
		var opts []llm.OpenAIOption
		if c.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(c.BaseURL))
		}
		primary := llm.NewOpenAI(c.APIKey, model, opts...)
		return llm.NewOllamaFallback(primary, fallbackURL(c), config.DefaultFallbackLLMModel, logger), nil
	case "gemini":
		if model == "" {
			return nil, fmt.Errorf("llm_model is required for the gemini provider")
		}
		primary, err := llm.NewGemini(ctx, c.APIKey, model)
		if err != nil {
			return nil, err
		}
		return llm.NewOllamaFallback(primary, fallbackURL(c), config.DefaultFallbackLLMModel, logger), nil
	case "ollama":
		if model == "" {
			model = config.DefaultFallbackLLMModel
		}
		return llm.NewOllama(fallbackURL(c), model), nil
	default:
		return nil, fmt.Errorf("unknown llm_provider %q (want cerebras, openai, gemini, or ollama)", provider)
	}
}

// newEmbedder creates the embedding backend for the context, wrapped in
// a persistent on-disk cache. The returned close function releases the
// cache and must be called before exit.
func newEmbedder(c *cli.Context, logger *slog.Logger) (embed.Embedder, func(), error) {
	model := c.EmbedModel
	provider := c.EmbedProvider
	if provider == "" {
		provider = config.DefaultEmbeddingProvider
	}

	var inner embed.Embedder
	switch provider {
	case "ollama":
		if model == "" {
			model = config.DefaultEmbeddingModel
		}
		url := c.GetExtra("embed_url")
		if url == "" {
			url = config.DefaultEmbeddingURL
		}
		inner = embed.NewOllama(url, embed.WithModel(model))
	case "openai":
		key := c.GetExtra("embed_api_key")
		if key == "" {
			key = c.APIKey
		}
		var opts []embed.Option
		if model != "" {
			opts = append(opts, embed.WithModel(model))
		} else {
			model = "text-embedding-3-small"
		}
		inner = embed.NewOpenAI(key, opts...)
	default:
		return nil, nil, fmt.Errorf("unknown embed_provider %q (want ollama or openai)", provider)
	}

	paths, err := cli.NewPaths()
	if err != nil {
		return inner, func() {}, nil
	}
	if err := paths.EnsureCacheDir(); err != nil {
		return inner, func() {}, nil
	}
	cached, err := embed.NewBadgerCache(inner, embed.BadgerCacheOptions{
		Dir:   paths.CachePath("embeddings"),
		Model: model,
	})
	if err != nil {
		// Another process may hold the cache lock. Fall back to the
		// in-process cache rather than failing the command.
		logger.Debug("embedding cache unavailable", "error", err)
		return embed.NewCache(inner), func() {}, nil
	}
	return cached, func() { _ = cached.Close() }, nil
}

func fallbackURL(c *cli.Context) string {
	if url := c.GetExtra("ollama_url"); url != "" {
		return url
	}
	return config.DefaultFallbackURL
}

// embedModelName returns the model tag stored alongside vectors.
func embedModelName(c *cli.Context) string {
	if c.EmbedModel != "" {
		return c.EmbedModel
	}
	return config.DefaultEmbeddingModel
}

// commandTimeout returns the context's timeout, or def when unset.
func commandTimeout(c *cli.Context, def time.Duration) time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return def
}

// outputResult writes the result honoring the global output flags.
func outputResult(result any) error {
	return cli.Output(result, cli.OutputOptions{
		Format: cli.OutputFormat(outputFormat),
		File:   outputFile,
		JQ:     jqExpr,
	})
}

// printVerbose prints verbose output if enabled.
func printVerbose(format string, args ...any) {
	cli.PrintVerbose(verbose, format, args...)
}
