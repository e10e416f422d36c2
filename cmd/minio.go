package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"vizdirector/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioPurge  time.Duration
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "List or purge exports in the MinIO bucket",
	Long:  `List the exported recordings in the bucket with their totals, or delete
exports older than a given age.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("MinIO: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := storage.NewMinioClient(cfg)
		if err != nil {
			return fmt.Errorf("create minio client: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		if minioPurge > 0 {
			n, err := storage.PurgeExports(ctx, client, cfg.MinioBucket, minioPurge)
			if err != nil {
				return fmt.Errorf("purge exports: %w", err)
			}
			fmt.Printf("removed %d exports older than %s\n", n, minioPurge)
			return nil
		}

		objects, stats, err := storage.ListExports(ctx, client, cfg.MinioBucket, minioPrefix)
		if err != nil {
			return fmt.Errorf("list exports: %w", err)
		}
		storage.PrintExports(os.Stdout, cfg.MinioBucket, objects, stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "only list exports with this prefix")
	minioCmd.Flags().DurationVar(&minioPurge, "purge-older-than", 0, "delete exports older than this age")

	minioCmd.Example = `  # list every export
  vizdirector minio

  # delete exports older than a week
  vizdirector minio --purge-older-than 168h`
}
