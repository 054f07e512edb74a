package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/entity"
	"github.com/ontomem/omc/pkg/ontology"
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Entity resolution and inspection",
}

var entitiesResolveCmd = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Resolve an entity by name, creating it if missing",
	Long: `Resolve an entity by canonical name. If no entity with that name
exists yet, one is created with the given type.

Examples:
  omc entities resolve "Alice" --type person
  omc entities resolve "Berlin" --type location`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		typ, err := cmd.Flags().GetString("type")
		if err != nil {
			return fmt.Errorf("failed to read 'type' flag: %w", err)
		}

		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		manager := entity.NewManager(db, entity.WithLogger(logger))

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 30*time.Second))
		defer cancel()

		ent, err := manager.GetOrCreate(reqCtx, name, entity.ParseType(typ))
		if err != nil {
			return fmt.Errorf("entity resolution failed: %w", err)
		}
		return outputResult(ent)
	},
}

var entitiesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search entities by name or alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return fmt.Errorf("failed to read 'limit' flag: %w", err)
		}

		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		manager := entity.NewManager(db, entity.WithLogger(logger))

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 30*time.Second))
		defer cancel()

		entities, err := manager.Search(reqCtx, args[0], limit)
		if err != nil {
			return fmt.Errorf("entity search failed: %w", err)
		}
		return outputResult(entities)
	},
}

var entitiesForMemoryCmd = &cobra.Command{
	Use:   "for-memory <memory-id>",
	Short: "List the entities linked to a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		manager := entity.NewManager(db, entity.WithLogger(logger))

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 30*time.Second))
		defer cancel()

		entities, err := manager.EntitiesForMemory(reqCtx, args[0])
		if err != nil {
			return fmt.Errorf("entity lookup failed: %w", err)
		}
		return outputResult(entities)
	},
}

var ontologyCmd = &cobra.Command{
	Use:   "ontology",
	Short: "Ontology bootstrap and inspection",
}

var ontologyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Seed the concept hierarchy into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		loader := ontology.NewLoader(db, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 60*time.Second))
		defer cancel()

		if err := loader.EnsureInitialized(reqCtx); err != nil {
			return fmt.Errorf("ontology init failed: %w", err)
		}
		printVerbose("Concepts loaded: %d", len(loader.All()))
		fmt.Println("Ontology initialized.")
		return nil
	},
}

var ontologyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the concept hierarchy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)
		loader := ontology.NewLoader(db, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 60*time.Second))
		defer cancel()

		if err := loader.Reload(reqCtx); err != nil {
			return fmt.Errorf("ontology load failed: %w", err)
		}
		return outputResult(loader.All())
	},
}

func init() {
	entitiesResolveCmd.Flags().String("type", "", "entity type (person, location, organization, object, event, concept)")
	entitiesSearchCmd.Flags().Int("limit", 10, "maximum entities to return")

	entitiesCmd.AddCommand(entitiesResolveCmd)
	entitiesCmd.AddCommand(entitiesSearchCmd)
	entitiesCmd.AddCommand(entitiesForMemoryCmd)
	ontologyCmd.AddCommand(ontologyInitCmd)
	ontologyCmd.AddCommand(ontologyListCmd)

	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(ontologyCmd)
}
