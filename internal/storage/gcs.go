// Package storage reads and removes source videos in Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/alphauslabs/buckshot/internal/apperr"
)

// Source is the object store holding uploaded source videos.
type Source interface {
	// Get opens the object at key. A missing object is a permanent failure.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key. Deleting a missing object succeeds.
	Delete(ctx context.Context, key string) error
}

// GCS is a Source backed by one Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
}

var _ Source = (*GCS)(nil)

// NewGCS creates a Cloud Storage client using application default credentials.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, apperr.Permanent(apperr.ReasonSourceMissing, err, "source video %s not found", key)
		}
		return nil, apperr.Transient(apperr.ReasonNone, err, "failed to open source video %s", key)
	}
	return r, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
