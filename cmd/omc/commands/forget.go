package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/cli"
	"github.com/ontomem/omc/pkg/memory"
)

var forgetCmd = &cobra.Command{
	Use:   "forget <memory-id>",
	Short: "Soft or hard delete a memory",
	Long: `Delete a memory.

The default is a soft delete: the memory is hidden from search but
kept in the graph and can be restored. --hard removes it permanently;
--cascade additionally removes its reasoning edges.

Examples:
  omc forget mem_1a2b3c --reason "user asked to forget"
  omc forget mem_1a2b3c --hard --cascade`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		memoryID := args[0]

		hard, err := cmd.Flags().GetBool("hard")
		if err != nil {
			return fmt.Errorf("failed to read 'hard' flag: %w", err)
		}
		cascade, err := cmd.Flags().GetBool("cascade")
		if err != nil {
			return fmt.Errorf("failed to read 'cascade' flag: %w", err)
		}
		reason, err := cmd.Flags().GetString("reason")
		if err != nil {
			return fmt.Errorf("failed to read 'reason' flag: %w", err)
		}

		cliCtx, err := getContext()
		if err != nil {
			return err
		}
		userID, err := getUserID(cliCtx)
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		deletion := memory.NewDeletion(db, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 30*time.Second))
		defer cancel()

		if hard {
			deleted, err := deletion.HardDelete(reqCtx, memoryID, cascade)
			if err != nil {
				return fmt.Errorf("hard delete failed: %w", err)
			}
			if !deleted {
				cli.PrintWarning("Memory %q not found", memoryID)
				return nil
			}
			cli.PrintSuccess("Memory %q permanently deleted", memoryID)
			return nil
		}

		if err := deletion.SoftDelete(reqCtx, memoryID, userID, reason); err != nil {
			return fmt.Errorf("forget failed: %w", err)
		}
		cli.PrintSuccess("Memory %q forgotten (restore with 'omc restore %s')", memoryID, memoryID)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <memory-id>",
	Short: "Restore a soft-deleted memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		memoryID := args[0]

		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		deletion := memory.NewDeletion(db, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 30*time.Second))
		defer cancel()

		if err := deletion.Restore(reqCtx, memoryID); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		cli.PrintSuccess("Memory %q restored", memoryID)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned entities and edges",
	Long: `Remove entities no live memory mentions and reasoning edges with a
deleted endpoint. Run with --dry-run first to see what would go.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, err := cmd.Flags().GetBool("dry-run")
		if err != nil {
			return fmt.Errorf("failed to read 'dry-run' flag: %w", err)
		}

		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		deletion := memory.NewDeletion(db, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 5*time.Minute))
		defer cancel()

		stats, err := deletion.CleanupOrphans(reqCtx, dryRun)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		return outputResult(stats)
	},
}

func init() {
	forgetCmd.Flags().Bool("hard", false, "delete permanently instead of soft delete")
	forgetCmd.Flags().Bool("cascade", false, "with --hard, also remove reasoning edges")
	forgetCmd.Flags().String("reason", "", "reason recorded on the deletion")

	cleanupCmd.Flags().Bool("dry-run", false, "report orphans without deleting them")

	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(cleanupCmd)
}
