package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roadmetrics/countline/config"
	"github.com/roadmetrics/countline/internal/data"
)

// ConnectObjectStore dials the S3-compatible object store and verifies the
// media bucket exists, creating it when it does not.
func ConnectObjectStore(cfg config.StorageConfig, logger *slog.Logger) (*data.ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	if logger != nil {
		logger.Info("object storage connected",
			"endpoint", cfg.Endpoint,
			"bucket", cfg.Bucket,
		)
	}

	return data.NewObjectStore(client, cfg), nil
}
