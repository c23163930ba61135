package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/szaher/simstream/internal/archive"
)

func newArchiveCmd() *cobra.Command {
	var (
		bucket string
		prefix string
		region string
	)

	cmd := &cobra.Command{
		Use:   "archive <simulation-id>",
		Short: "Upload a simulation's rotated segments to S3",
		Long: `Archive uploads every rotated segment of a simulation to the
configured S3 bucket. The current segment is skipped; uploads that fail
stay on disk for the next pass. Credentials come from the standard AWS
environment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if bucket == "" {
				bucket = cfg.Archive.Bucket
			}
			if prefix == "" {
				prefix = cfg.Archive.Prefix
			}
			if region == "" {
				region = cfg.Archive.Region
			}
			if bucket == "" {
				return fmt.Errorf("no S3 bucket configured; set --bucket or archive.bucket")
			}

			archiver, err := archive.NewS3Archiver(cmd.Context(), bucket, prefix, region, newLogger())
			if err != nil {
				return err
			}

			dir := filepath.Join(cfg.OutputRoot, args[0])
			uploaded, err := archiver.ArchiveDir(cmd.Context(), args[0], dir)
			if err != nil {
				return fmt.Errorf("archived %d segment(s) before failing: %w", uploaded, err)
			}
			fmt.Printf("Archived %d segment(s) to s3://%s.\n", uploaded, bucket)
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket (overrides config)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix inside the bucket (overrides config)")
	cmd.Flags().StringVar(&region, "region", "", "AWS region (overrides config)")

	return cmd
}
