package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/chunk"
	"github.com/ontomem/omc/pkg/entity"
	"github.com/ontomem/omc/pkg/memory"
	"github.com/ontomem/omc/pkg/ontology"
	"github.com/ontomem/omc/pkg/pipeline"
	"github.com/ontomem/omc/pkg/resolve"
)

const classifierMinConfidence = 0.3

var rememberCmd = &cobra.Command{
	Use:   "remember [text]",
	Short: "Store text through the write pipeline",
	Long: `Store text through the write pipeline.

The text is decomposed into atomic memories; each one is reconciled
against similar existing memories (add, update, supersede, contradict,
or delete), chunked if long, and linked into the memory graph.

Reads from stdin when no text argument or -f file is given.

Examples:
  omc remember "Alice moved to Berlin last month"
  omc remember -f notes.txt
  cat transcript.txt | omc remember`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := cmd.Flags().GetString("file")
		if err != nil {
			return fmt.Errorf("failed to read 'file' flag: %w", err)
		}

		text, err := gatherInput(args, file)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("nothing to remember: input is empty")
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

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 5*time.Minute))
		defer cancel()

		provider, err := newProvider(reqCtx, cliCtx, logger)
		if err != nil {
			return err
		}
		embedder, closeEmbedder, err := newEmbedder(cliCtx, logger)
		if err != nil {
			return err
		}
		defer closeEmbedder()

		// Seed the concept hierarchy on first use.
		loader := ontology.NewLoader(db, logger)
		if err := loader.EnsureInitialized(reqCtx); err != nil {
			printVerbose("ontology bootstrap skipped: %v", err)
		}

		events := pipeline.NewEvents(0, logger)
		defer events.Close()
		go func() {
			for ev := range events.C() {
				printVerbose("pipeline: %s memory=%s", ev.Type, ev.MemoryID)
			}
		}()

		store := memory.NewStore(db, memory.WithEmbedder(embedder, embedModelName(cliCtx)))
		splitter := chunk.NewSplitter(chunk.DefaultConfig(), chunk.WithEmbedder(embedder), chunk.WithLogger(logger))

		p := pipeline.New(pipeline.Deps{
			DB:           db,
			Extractor:    pipeline.NewExtractor(provider, logger),
			Decider:      pipeline.NewDecisionEngine(provider, logger),
			Store:        store,
			Evolution:    memory.NewEvolution(db, store, logger),
			Supersession: memory.NewSupersession(db, store, logger),
			Deletion:     memory.NewDeletion(db, logger),
			Entities:     entity.NewManager(db, entity.WithLogger(logger)),
			Classifier:   ontology.NewClassifier(classifierMinConfidence),
			Chunker: pipeline.NewChunker(db, resolve.New(db, resolve.WithLogger(logger)), splitter, events, logger,
				pipeline.WithChunkEmbedder(embedder, embedModelName(cliCtx))),
			Linker:       pipeline.NewLinkBuilder(db, events, logger),
			Embedder:     embedder,
			Logger:       logger,
		})

		printVerbose("Using context: %s", cliCtx.Name)
		printVerbose("User: %s", userID)

		result, err := p.Process(reqCtx, text, userID)
		if err != nil {
			return fmt.Errorf("remember failed: %w", err)
		}

		return outputResult(result)
	},
}

// gatherInput returns the text to store: the argument, the file, or stdin.
func gatherInput(args []string, file string) (string, error) {
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read input file: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func init() {
	rememberCmd.Flags().StringP("file", "f", "", "input text file")

	rootCmd.AddCommand(rememberCmd)
}
