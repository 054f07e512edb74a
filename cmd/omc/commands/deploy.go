package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/cli"
	"github.com/ontomem/omc/pkg/deploy"
	"github.com/ontomem/omc/pkg/helix"
	"github.com/ontomem/omc/pkg/storage"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Plan and apply schema deployment levels",
	Long: `Plan and apply schema deployment levels against a store.

The schema is layered in six levels, from user management (0) up to
vector search (5). 'plan' probes which levels the target already
serves; 'apply' posts schema.hx and queries.hx from the manifest's
schema directory.

Example manifest (deploy.yaml):
  version: 1
  target:
    host: localhost
    port: 6969
  max_level: 5
  schema_dir: schema`,
}

var deployPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Probe which levels the target already serves",
	RunE: func(cmd *cobra.Command, args []string) error {
		manifest, err := loadManifest(cmd)
		if err != nil {
			return err
		}

		logger := newLogger()
		db := helix.New(manifest.Target.Host, manifest.Target.Port, helix.WithLogger(logger))

		reqCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		plan, err := deploy.Plan(reqCtx, db, db.BaseURL(), manifest.Max())
		if err != nil {
			return fmt.Errorf("plan failed: %w", err)
		}

		if plan.UpToDate() {
			cli.PrintSuccess("Target serves all %d levels", len(plan.Present))
		} else {
			cli.PrintWarning("Target is missing %d of %d levels", len(plan.Missing), len(plan.Present)+len(plan.Missing))
		}
		return outputResult(plan)
	},
}

var deployApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Post schema and query sources to the target",
	RunE: func(cmd *cobra.Command, args []string) error {
		schemaOnly, err := cmd.Flags().GetBool("schema-only")
		if err != nil {
			return fmt.Errorf("failed to read 'schema-only' flag: %w", err)
		}
		queriesOnly, err := cmd.Flags().GetBool("queries-only")
		if err != nil {
			return fmt.Errorf("failed to read 'queries-only' flag: %w", err)
		}
		if schemaOnly && queriesOnly {
			return fmt.Errorf("--schema-only and --queries-only are mutually exclusive")
		}

		manifest, err := loadManifest(cmd)
		if err != nil {
			return err
		}
		dir := manifest.SchemaDir
		if dir == "" {
			dir = "schema"
		}

		logger := newLogger()
		files, err := storage.NewLocal(".")
		if err != nil {
			return err
		}

		target := fmt.Sprintf("http://%s:%d", manifest.Target.Host, manifest.Target.Port)
		applier := deploy.NewApplier(target, files, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		result, err := applier.Apply(reqCtx, dir, deploy.ApplyOptions{
			SchemaOnly:  schemaOnly,
			QueriesOnly: queriesOnly,
		})
		if err != nil {
			return err
		}

		cli.PrintSuccess("Deployed to %s", target)
		return outputResult(result)
	},
}

var deployLevelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Show the level definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return outputResult(deploy.All())
	},
}

// loadManifest reads and validates the manifest named by -f.
func loadManifest(cmd *cobra.Command) (*deploy.Manifest, error) {
	path, err := cmd.Flags().GetString("file")
	if err != nil {
		return nil, fmt.Errorf("failed to read 'file' flag: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return deploy.ParseManifest(data)
}

func init() {
	for _, c := range []*cobra.Command{deployPlanCmd, deployApplyCmd} {
		c.Flags().StringP("file", "f", "deploy.yaml", "deployment manifest")
	}
	deployApplyCmd.Flags().Bool("schema-only", false, "post schema.hx only")
	deployApplyCmd.Flags().Bool("queries-only", false, "post queries.hx only")

	deployCmd.AddCommand(deployPlanCmd)
	deployCmd.AddCommand(deployApplyCmd)
	deployCmd.AddCommand(deployLevelsCmd)

	rootCmd.AddCommand(deployCmd)
}
