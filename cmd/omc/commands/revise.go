package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/cli"
	"github.com/ontomem/omc/pkg/memory"
)

var reviseCmd = &cobra.Command{
	Use:   "revise <memory-id>",
	Short: "Adjust a memory's certainty or importance",
	Long: `Rewrite a memory's certainty or importance in place, leaving its
content and history untouched. Values not supplied keep what is stored.

Examples:
  omc revise mem_1a2b3c --certainty 95
  omc revise mem_1a2b3c --certainty 40 --importance 80`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		memoryID := args[0]

		var certainty, importance *int
		if cmd.Flags().Changed("certainty") {
			v, err := cmd.Flags().GetInt("certainty")
			if err != nil {
				return fmt.Errorf("failed to read 'certainty' flag: %w", err)
			}
			certainty = &v
		}
		if cmd.Flags().Changed("importance") {
			v, err := cmd.Flags().GetInt("importance")
			if err != nil {
				return fmt.Errorf("failed to read 'importance' flag: %w", err)
			}
			importance = &v
		}
		if certainty == nil && importance == nil {
			return fmt.Errorf("nothing to revise, pass --certainty or --importance")
		}

		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		store := memory.NewStore(db)
		sup := memory.NewSupersession(db, store, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 30*time.Second))
		defer cancel()

		if err := sup.UpdateMetadata(reqCtx, memoryID, certainty, importance); err != nil {
			return fmt.Errorf("revision failed: %w", err)
		}
		cli.PrintSuccess("Memory %q revised", memoryID)
		return nil
	},
}

func init() {
	reviseCmd.Flags().Int("certainty", 0, "new certainty (0-100)")
	reviseCmd.Flags().Int("importance", 0, "new importance (0-100)")

	rootCmd.AddCommand(reviseCmd)
}
