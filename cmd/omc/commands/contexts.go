package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/cli"
	"github.com/ontomem/omc/pkg/memory"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Situational contexts memories can be filed under",
}

// contextSpec is the file form of a context definition, accepted by
// `omc context create -f` as YAML or JSON.
type contextSpec struct {
	Name       string            `json:"name" yaml:"name"`
	Properties map[string]string `json:"properties" yaml:"properties"`
}

var contextCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a context",
	Long: `Create a situational context node. Memories linked to a context can
later be filtered and ranked by it.

Examples:
  omc context create "work"
  omc context create "vacation planning" --prop where=lisbon
  omc context create -f trip.yaml
  cat trip.json | omc context create -f -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := cmd.Flags().GetString("file")
		if err != nil {
			return fmt.Errorf("failed to read 'file' flag: %w", err)
		}
		props, err := cmd.Flags().GetStringSlice("prop")
		if err != nil {
			return fmt.Errorf("failed to read 'prop' flag: %w", err)
		}

		var spec contextSpec
		switch {
		case file == "-":
			if err := cli.LoadRequestFromStdin(&spec); err != nil {
				return err
			}
		case file != "":
			if err := cli.LoadRequest(file, &spec); err != nil {
				return err
			}
		}
		if len(args) > 0 {
			spec.Name = args[0]
		}
		if spec.Name == "" {
			return fmt.Errorf("a context name is required, as an argument or in the spec file")
		}
		if spec.Properties == nil {
			spec.Properties = make(map[string]string, len(props))
		}
		for _, p := range props {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return fmt.Errorf("invalid property %q, expected key=value", p)
			}
			spec.Properties[k] = v
		}

		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		contexts := memory.NewContexts(db, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 30*time.Second))
		defer cancel()

		def, err := contexts.Create(reqCtx, spec.Name, spec.Properties)
		if err != nil {
			return fmt.Errorf("context creation failed: %w", err)
		}
		cli.PrintSuccess("Context %q created as %s", def.Name, def.ContextID)
		return nil
	},
}

var contextShowCmd = &cobra.Command{
	Use:   "show <name-or-id>",
	Short: "Show a context by name or ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		contexts := memory.NewContexts(db, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 30*time.Second))
		defer cancel()

		key := args[0]
		def, ok := contexts.Get(reqCtx, key)
		if !ok {
			def, ok = contexts.GetByName(reqCtx, key)
		}
		if !ok {
			return fmt.Errorf("context %q not found", key)
		}
		return outputResult(def)
	},
}

var contextLinkCmd = &cobra.Command{
	Use:   "link <memory-id> <context-id>",
	Short: "File a memory under a context",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		priority, err := cmd.Flags().GetInt("priority")
		if err != nil {
			return fmt.Errorf("failed to read 'priority' flag: %w", err)
		}

		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		contexts := memory.NewContexts(db, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 30*time.Second))
		defer cancel()

		ok, err := contexts.LinkMemory(reqCtx, args[0], args[1], priority)
		if err != nil {
			return err
		}
		if !ok {
			cli.PrintWarning("Link not recorded, the store rejected it")
			return nil
		}
		cli.PrintSuccess("Memory %q linked to context %q", args[0], args[1])
		return nil
	},
}

func init() {
	contextCreateCmd.Flags().StringP("file", "f", "", "context spec file (YAML or JSON, '-' for stdin)")
	contextCreateCmd.Flags().StringSlice("prop", nil, "context property as key=value (repeatable)")
	contextLinkCmd.Flags().Int("priority", 50, "how strongly the memory belongs to the context (0-100)")

	contextCmd.AddCommand(contextCreateCmd)
	contextCmd.AddCommand(contextShowCmd)
	contextCmd.AddCommand(contextLinkCmd)

	rootCmd.AddCommand(contextCmd)
}
