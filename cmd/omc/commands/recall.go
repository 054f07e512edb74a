package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/cli"
	"github.com/ontomem/omc/pkg/memory"
	"github.com/ontomem/omc/pkg/search"
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search memories",
	Long: `Search memories with hybrid vector, keyword, and graph search.

Modes trade cost for recall: recent (default) favors the last few
hours, contextual covers a month, deep a quarter, full the complete
history. --onto routes the query through the concept hierarchy
instead; --chains expands reasoning chains from the top hits.

Examples:
  omc recall "where does Alice live"
  omc recall "project decisions" --mode deep --limit 20
  omc recall "dietary restrictions" --onto
  omc recall "why did we pick Berlin" --chains --preset causal_only`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]

		mode, err := cmd.Flags().GetString("mode")
		if err != nil {
			return fmt.Errorf("failed to read 'mode' flag: %w", err)
		}
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return fmt.Errorf("failed to read 'limit' flag: %w", err)
		}
		depth, err := cmd.Flags().GetString("depth")
		if err != nil {
			return fmt.Errorf("failed to read 'depth' flag: %w", err)
		}
		onto, err := cmd.Flags().GetBool("onto")
		if err != nil {
			return fmt.Errorf("failed to read 'onto' flag: %w", err)
		}
		chains, err := cmd.Flags().GetBool("chains")
		if err != nil {
			return fmt.Errorf("failed to read 'chains' flag: %w", err)
		}
		preset, err := cmd.Flags().GetString("preset")
		if err != nil {
			return fmt.Errorf("failed to read 'preset' flag: %w", err)
		}
		withEntities, err := cmd.Flags().GetBool("entities")
		if err != nil {
			return fmt.Errorf("failed to read 'entities' flag: %w", err)
		}
		pretty, err := cmd.Flags().GetBool("pretty")
		if err != nil {
			return fmt.Errorf("failed to read 'pretty' flag: %w", err)
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
		embedder, closeEmbedder, err := newEmbedder(cliCtx, logger)
		if err != nil {
			return err
		}
		defer closeEmbedder()

		engine := search.NewEngine(db,
			search.WithEngineEmbedder(embedder),
			search.WithEngineLogger(logger),
		)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 60*time.Second))
		defer cancel()

		printVerbose("Using context: %s", cliCtx.Name)
		printVerbose("Mode: %s", mode)

		switch {
		case onto:
			results, err := engine.OntoSearch(reqCtx, query, nil, userID, mode)
			if err != nil {
				return fmt.Errorf("onto search failed: %w", err)
			}
			return outputResult(results)

		case chains:
			result, err := engine.ChainSearch(reqCtx, query, nil, userID, limit, preset)
			if err != nil {
				return fmt.Errorf("chain search failed: %w", err)
			}
			return outputResult(result)

		case pretty:
			started := time.Now()
			hits, err := engine.Search(reqCtx, query, nil, userID, limit, mode)
			if err != nil {
				return fmt.Errorf("recall failed: %w", err)
			}
			styles := cli.NewStyles(cli.DefaultTheme)
			fmt.Println(styles.Title.Render(query))
			fmt.Println(styles.Rule(0))
			for _, h := range hits {
				fmt.Println(styles.StatusLine(h.MemoryID, h.Score, h.Content))
			}
			if len(hits) == 0 {
				fmt.Println(styles.Help.Render("no matches"))
			}
			elapsed := cli.FormatDuration(int(time.Since(started).Milliseconds()))
			fmt.Println(styles.Help.Render(fmt.Sprintf("%d hits in %s", len(hits), elapsed)))
			return nil

		default:
			retriever := memory.NewRetriever(db, engine, logger)
			result, err := retriever.Retrieve(reqCtx, query, nil, userID, memory.RetrieveOptions{
				Depth:            memory.ParseDepth(depth),
				Limit:            limit,
				IncludeReasoning: depth == "deep" || depth == "medium",
				IncludeEntities:  withEntities,
			})
			if err != nil {
				return fmt.Errorf("recall failed: %w", err)
			}
			return outputResult(result)
		}
	},
}

func init() {
	recallCmd.Flags().String("mode", "recent", "search mode (recent, contextual, deep, full)")
	recallCmd.Flags().Int("limit", 10, "maximum results")
	recallCmd.Flags().String("depth", "medium", "retrieval depth (shallow, medium, deep)")
	recallCmd.Flags().Bool("onto", false, "search through the concept hierarchy")
	recallCmd.Flags().Bool("chains", false, "expand reasoning chains from the top hits")
	recallCmd.Flags().String("preset", "default", "chain preset (default, causal_only, implications_only, deep_context)")
	recallCmd.Flags().Bool("entities", false, "include entities attached to each hit")
	recallCmd.Flags().Bool("pretty", false, "styled one-line-per-hit terminal output")

	rootCmd.AddCommand(recallCmd)
}
