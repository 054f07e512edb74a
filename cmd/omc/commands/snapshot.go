package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/ontomem/omc/pkg/cli"
	"github.com/ontomem/omc/pkg/snapshot"
	"github.com/ontomem/omc/pkg/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export a user's memories to a snapshot file",
	Long: `Export the user's memories, including soft-deleted ones, to a
JSONL snapshot file. With --s3-bucket the file is written to S3
instead of local disk.

Examples:
  omc export alice.jsonl
  omc export backups/alice.jsonl --s3-bucket memory-backups
  omc -u bob export bob.jsonl --limit 500`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return fmt.Errorf("failed to read 'limit' flag: %w", err)
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

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 10*time.Minute))
		defer cancel()

		store, storePath, err := snapshotStore(reqCtx, cmd, path)
		if err != nil {
			return err
		}

		exporter := snapshot.NewExporter(db, store, logger)
		if limit > 0 {
			exporter = exporter.WithLimit(limit)
		}

		stats, err := exporter.Export(reqCtx, userID, storePath)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if info, err := os.Stat(path); err == nil {
			cli.PrintSuccess("Exported %d memories for %q to %s (%s)", stats.Written, userID, path, cli.FormatBytes(info.Size()))
		} else {
			cli.PrintSuccess("Exported %d memories for %q to %s", stats.Written, userID, path)
		}
		return outputResult(stats)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import memories from a snapshot file",
	Long: `Import memories from a JSONL snapshot file, preserving IDs and
timestamps. Soft-delete state is replayed after each record.

Examples:
  omc import alice.jsonl
  omc import backups/alice.jsonl --s3-bucket memory-backups`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 10*time.Minute))
		defer cancel()

		store, storePath, err := snapshotStore(reqCtx, cmd, path)
		if err != nil {
			return err
		}

		importer := snapshot.NewImporter(db, store, logger)
		stats, err := importer.Import(reqCtx, storePath)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		cli.PrintSuccess("Imported %d of %d memories for %q", stats.Written, stats.Total, stats.UserID)
		return outputResult(stats)
	},
}

// snapshotStore picks the snapshot backend: S3 when --s3-bucket is set,
// otherwise local disk rooted at the file's directory.
func snapshotStore(ctx context.Context, cmd *cobra.Command, path string) (storage.FileStore, string, error) {
	bucket, err := cmd.Flags().GetString("s3-bucket")
	if err != nil {
		return nil, "", fmt.Errorf("failed to read 's3-bucket' flag: %w", err)
	}

	if bucket != "" {
		prefix, err := cmd.Flags().GetString("s3-prefix")
		if err != nil {
			return nil, "", fmt.Errorf("failed to read 's3-prefix' flag: %w", err)
		}
		region, err := cmd.Flags().GetString("s3-region")
		if err != nil {
			return nil, "", fmt.Errorf("failed to read 's3-region' flag: %w", err)
		}

		var opts []func(*awsconfig.LoadOptions) error
		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		return storage.NewS3(client, bucket, prefix), filepath.ToSlash(path), nil
	}

	dir := filepath.Dir(path)
	local, err := storage.NewLocal(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open snapshot directory: %w", err)
	}
	return local, filepath.Base(path), nil
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the backing store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cliCtx, err := getContext()
		if err != nil {
			return err
		}

		logger := newLogger()
		db := newClient(cliCtx, logger)

		reqCtx, cancel := context.WithTimeout(context.Background(), commandTimeout(cliCtx, 10*time.Second))
		defer cancel()

		host, port := cliCtx.Addr()
		if err := db.Health(reqCtx); err != nil {
			return fmt.Errorf("store at %s:%d is unhealthy: %w", host, port, err)
		}
		cli.PrintSuccess("Store at %s:%d is healthy", host, port)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{exportCmd, importCmd} {
		c.Flags().String("s3-bucket", "", "S3 bucket for the snapshot")
		c.Flags().String("s3-prefix", "", "key prefix inside the S3 bucket")
		c.Flags().String("s3-region", "", "AWS region override")
	}
	exportCmd.Flags().Int("limit", 0, "cap on memories fetched (default 10000)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(healthCmd)
}
