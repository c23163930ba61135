// Package archive uploads rotated segments to S3 so local retention can
// stay short without losing history.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/szaher/simstream/internal/writer"
)

// uploadTimeout bounds a single background segment upload.
const uploadTimeout = time.Minute

// PutObjectAPI is the slice of the S3 client the archiver needs. Tests
// substitute a fake.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver copies rotated segments to a bucket. Only rotated segments are
// eligible: the canonical file is still being appended to.
type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Archiver builds an archiver from the default AWS config chain.
func NewS3Archiver(ctx context.Context, bucket, prefix, region string, logger *slog.Logger) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	return NewS3ArchiverWithClient(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

// NewS3ArchiverWithClient builds an archiver around an existing client.
func NewS3ArchiverWithClient(client PutObjectAPI, bucket, prefix string, logger *slog.Logger) *S3Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Archive uploads one rotated segment under
// <prefix>/<simulation_id>/<segment-name>.
func (a *S3Archiver) Archive(ctx context.Context, simulationID, segmentPath string) error {
	name := filepath.Base(segmentPath)
	if !writer.IsRotatedSegment(name) {
		return fmt.Errorf("archive: %s is not a rotated segment", name)
	}
	f, err := os.Open(segmentPath)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", segmentPath, err)
	}
	defer f.Close()

	key := a.key(simulationID, name)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}
	a.logger.Info("segment archived", "bucket", a.bucket, "key", key)
	return nil
}

// ArchiveDir uploads every rotated segment in a simulation directory,
// continuing past individual failures. Returns the number uploaded and the
// first error encountered.
func (a *S3Archiver) ArchiveDir(ctx context.Context, simulationID, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("archive: read %s: %w", dir, err)
	}
	uploaded := 0
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || !writer.IsRotatedSegment(entry.Name()) {
			continue
		}
		if err := a.Archive(ctx, simulationID, filepath.Join(dir, entry.Name())); err != nil {
			a.logger.Warn("segment upload failed", "segment", entry.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		uploaded++
	}
	return uploaded, firstErr
}

// RotateHook adapts the archiver to the writer's OnRotate callback. The
// upload runs in the background so rotation never waits on the network;
// a failed upload is logged and the segment stays on disk for the next
// ArchiveDir pass.
func (a *S3Archiver) RotateHook(simulationID string) func(string) {
	return func(segmentPath string) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
			defer cancel()
			if err := a.Archive(ctx, simulationID, segmentPath); err != nil {
				a.logger.Warn("segment upload failed", "segment", segmentPath, "error", err)
			}
		}()
	}
}

func (a *S3Archiver) key(simulationID, name string) string {
	return path.Join(a.prefix, simulationID, name)
}
