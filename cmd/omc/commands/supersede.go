package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/cli"
	"github.com/ontomem/omc/pkg/memory"
)

var supersedeCmd = &cobra.Command{
	Use:   "supersede <new-id> <old-id>",
	Short: "Mark one stored memory as replacing another",
	Long: `Close the old memory's validity window and link the new memory to it
with a SUPERSEDES edge. Both memories must already exist; the write
pipeline creates the successor itself when it decides to supersede,
this command is for curating memories by hand.

Examples:
  omc supersede mem_9f8e7d mem_1a2b3c`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		newID, oldID := args[0], args[1]
		if newID == oldID {
			return fmt.Errorf("a memory cannot supersede itself")
		}

		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		store := memory.NewStore(db)
		evo := memory.NewEvolution(db, store, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 30*time.Second))
		defer cancel()

		if err := evo.Supersede(reqCtx, oldID, newID); err != nil {
			return fmt.Errorf("supersession failed: %w", err)
		}
		cli.PrintSuccess("Memory %q now supersedes %q", newID, oldID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(supersedeCmd)
}
