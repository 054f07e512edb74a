package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/cli"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration and contexts.

A context names one memory store plus the model credentials used
against it. Contexts work like kubectl's: add several, switch with
use-context, or pick one per invocation with -c.

Configuration is stored in ~/.omc/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add a new context",
	Long: `Add a new context with the specified name.

Example:
  omc config add-context dev --user alice --api-key YOUR_KEY
  omc config add-context prod --host helix.internal --port 6969 \
      --llm-provider cerebras --llm-model llama-3.3-70b --api-key KEY`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		host, err := cmd.Flags().GetString("host")
		if err != nil {
			return fmt.Errorf("failed to read 'host' flag: %w", err)
		}
		port, err := cmd.Flags().GetInt("port")
		if err != nil {
			return fmt.Errorf("failed to read 'port' flag: %w", err)
		}
		instance, err := cmd.Flags().GetString("instance")
		if err != nil {
			return fmt.Errorf("failed to read 'instance' flag: %w", err)
		}
		user, err := cmd.Flags().GetString("user")
		if err != nil {
			return fmt.Errorf("failed to read 'user' flag: %w", err)
		}
		llmProvider, err := cmd.Flags().GetString("llm-provider")
		if err != nil {
			return fmt.Errorf("failed to read 'llm-provider' flag: %w", err)
		}
		llmModel, err := cmd.Flags().GetString("llm-model")
		if err != nil {
			return fmt.Errorf("failed to read 'llm-model' flag: %w", err)
		}
		apiKey, err := cmd.Flags().GetString("api-key")
		if err != nil {
			return fmt.Errorf("failed to read 'api-key' flag: %w", err)
		}
		baseURL, err := cmd.Flags().GetString("base-url")
		if err != nil {
			return fmt.Errorf("failed to read 'base-url' flag: %w", err)
		}
		embedProvider, err := cmd.Flags().GetString("embed-provider")
		if err != nil {
			return fmt.Errorf("failed to read 'embed-provider' flag: %w", err)
		}
		embedModel, err := cmd.Flags().GetString("embed-model")
		if err != nil {
			return fmt.Errorf("failed to read 'embed-model' flag: %w", err)
		}
		embedURL, err := cmd.Flags().GetString("embed-url")
		if err != nil {
			return fmt.Errorf("failed to read 'embed-url' flag: %w", err)
		}
		timeout, err := cmd.Flags().GetInt("timeout")
		if err != nil {
			return fmt.Errorf("failed to read 'timeout' flag: %w", err)
		}
		maxRetries, err := cmd.Flags().GetInt("max-retries")
		if err != nil {
			return fmt.Errorf("failed to read 'max-retries' flag: %w", err)
		}

		ctx := &cli.Context{
			Host:          host,
			Port:          port,
			Instance:      instance,
			UserID:        user,
			LLMProvider:   llmProvider,
			LLMModel:      llmModel,
			APIKey:        apiKey,
			BaseURL:       baseURL,
			EmbedProvider: embedProvider,
			EmbedModel:    embedModel,
			Timeout:       timeout,
			MaxRetries:    maxRetries,
		}
		if embedURL != "" {
			ctx.SetExtra("embed_url", embedURL)
		}

		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if err := cfg.AddContext(name, ctx); err != nil {
			return err
		}

		cli.PrintSuccess("Context %q added successfully", name)
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		name := args[0]

		if err := cfg.DeleteContext(name); err != nil {
			return err
		}

		cli.PrintSuccess("Context %q deleted", name)
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		name := args[0]

		if err := cfg.UseContext(name); err != nil {
			return err
		}

		cli.PrintSuccess("Switched to context %q", name)
		return nil
	},
}

var configGetContextCmd = &cobra.Command{
	Use:   "current-context",
	Short: "Display the current context name",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		if cfg.CurrentContext == "" {
			fmt.Println("No current context set")
			return nil
		}

		fmt.Println(cfg.CurrentContext)
		return nil
	},
}

var configListContextsCmd = &cobra.Command{
	Use:     "list-contexts",
	Aliases: []string{"ls"},
	Short:   "List all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		if len(cfg.Contexts) == 0 {
			fmt.Println("No contexts configured")
			fmt.Println("Create one with: omc config add-context <name>")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tSTORE\tUSER\tLLM")

		for name, ctx := range cfg.Contexts {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			host, port := ctx.Addr()
			llm := ctx.LLMProvider
			if ctx.LLMModel != "" {
				llm = fmt.Sprintf("%s/%s", ctx.LLMProvider, ctx.LLMModel)
			}
			fmt.Fprintf(w, "%s\t%s\t%s:%d\t%s\t%s\n", current, name, host, port, ctx.UserID, llm)
		}

		w.Flush()
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Config file: %s\n", cfg.Path())
		fmt.Printf("Current context: %s\n", cfg.CurrentContext)
		fmt.Printf("Contexts: %d\n", len(cfg.Contexts))

		if len(cfg.Contexts) > 0 {
			fmt.Println("\nContext details:")
			for name, ctx := range cfg.Contexts {
				host, port := ctx.Addr()
				fmt.Printf("\n  %s:\n", name)
				fmt.Printf("    Store: %s:%d\n", host, port)
				if ctx.Instance != "" {
					fmt.Printf("    Instance: %s\n", ctx.Instance)
				}
				if ctx.UserID != "" {
					fmt.Printf("    User: %s\n", ctx.UserID)
				}
				if ctx.LLMProvider != "" {
					fmt.Printf("    LLM: %s/%s\n", ctx.LLMProvider, ctx.LLMModel)
				}
				fmt.Printf("    API Key: %s\n", cli.MaskAPIKey(ctx.APIKey))
				if ctx.BaseURL != "" {
					fmt.Printf("    Base URL: %s\n", ctx.BaseURL)
				}
				if ctx.EmbedProvider != "" {
					fmt.Printf("    Embeddings: %s/%s\n", ctx.EmbedProvider, ctx.EmbedModel)
				}
				if ctx.Timeout > 0 {
					fmt.Printf("    Timeout: %ds\n", ctx.Timeout)
				}
			}
		}

		return nil
	},
}

func init() {
	configAddContextCmd.Flags().String("host", "", "graph store host (default localhost)")
	configAddContextCmd.Flags().Int("port", 0, "graph store port (default 6969)")
	configAddContextCmd.Flags().String("instance", "", "named store instance")
	configAddContextCmd.Flags().String("user", "", "default user ID for memory operations")
	configAddContextCmd.Flags().String("llm-provider", "", "chat model backend (cerebras, openai, gemini, ollama)")
	configAddContextCmd.Flags().String("llm-model", "", "chat model name")
	configAddContextCmd.Flags().String("api-key", "", "chat model API key")
	configAddContextCmd.Flags().String("base-url", "", "chat model endpoint override")
	configAddContextCmd.Flags().String("embed-provider", "", "embedding backend (ollama, openai)")
	configAddContextCmd.Flags().String("embed-model", "", "embedding model name")
	configAddContextCmd.Flags().String("embed-url", "", "embedding endpoint (ollama)")
	configAddContextCmd.Flags().Int("timeout", 0, "request timeout in seconds")
	configAddContextCmd.Flags().Int("max-retries", 0, "maximum retries")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configGetContextCmd)
	configCmd.AddCommand(configListContextsCmd)
	configCmd.AddCommand(configViewCmd)

	rootCmd.AddCommand(configCmd)
}
