package data

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/roadmetrics/countline/config"
)

// RemoteObject describes one object in remote storage, as returned by
// ListKeys. LastModified feeds the sweeper's orphan age check.
type RemoteObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore wraps the S3-compatible remote storage bucket holding all
// durable media artifacts.
type ObjectStore struct {
	client        *minio.Client
	bucket        string
	presignExpiry time.Duration
}

// NewObjectStore creates an ObjectStore over an initialized MinIO client.
func NewObjectStore(client *minio.Client, cfg config.StorageConfig) *ObjectStore {
	return &ObjectStore{
		client:        client,
		bucket:        cfg.Bucket,
		presignExpiry: cfg.PresignExpiry,
	}
}

// Upload streams body to the bucket under key and returns a presigned GET
// URL for the stored object. size may be -1 when unknown.
func (s *ObjectStore) Upload(
	ctx context.Context,
	key string,
	body io.Reader,
	size int64,
	contentType string,
) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return s.PresignedGetURL(ctx, key)
}

// PresignedGetURL returns a time-limited GET URL for an existing object.
func (s *ObjectStore) PresignedGetURL(ctx context.Context, key string) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign get object %s: %w", key, err)
	}
	return presigned.String(), nil
}

// Remove deletes one object. Removing a missing object is not an error.
func (s *ObjectStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// ListKeys returns every object under the given key prefix.
func (s *ObjectStore) ListKeys(ctx context.Context, prefix string) ([]RemoteObject, error) {
	var objects []RemoteObject
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", prefix, obj.Err)
		}
		objects = append(objects, RemoteObject{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return objects, nil
}
