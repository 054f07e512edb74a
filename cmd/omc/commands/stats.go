package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/memory"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store-wide statistics",
	Long: `Collect statistics across the whole store: content size by memory
type, node populations, and growth rate over the last week.

Examples:
  omc stats
  omc stats --categories -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		categories, err := cmd.Flags().GetBool("categories")
		if err != nil {
			return fmt.Errorf("failed to read 'categories' flag: %w", err)
		}

		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		analytics := memory.NewAnalytics(db, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 2*time.Minute))
		defer cancel()

		if categories {
			breakdown, err := analytics.CategoryBreakdown(reqCtx)
			if err != nil {
				return fmt.Errorf("stats collection failed: %w", err)
			}
			return outputResult(breakdown)
		}

		summary, err := analytics.Collect(reqCtx)
		if err != nil {
			return fmt.Errorf("stats collection failed: %w", err)
		}
		return outputResult(summary)
	},
}

func init() {
	statsCmd.Flags().Bool("categories", false, "show memory counts per type instead of the full summary")

	rootCmd.AddCommand(statsCmd)
}
