// Package blobstore keeps large binary payloads, such as downloaded images, in a
// Google Cloud Storage bucket so the key-value store only holds a reference.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no object exists under a name.
var ErrNotFound = errors.New("blob not found")

// Config holds configuration for the GCS blob store.
type Config struct {
	BucketName   string
	ObjectPrefix string
}

// GCSBlobStore reads and writes named payloads in one bucket.
type GCSBlobStore struct {
	bucket Bucket
	config Config
	logger zerolog.Logger
}

// NewGCSBlobStore creates a blob store over the configured bucket.
func NewGCSBlobStore(client Client, config Config, logger zerolog.Logger) (*GCSBlobStore, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSBlobStore{
		bucket: client.Bucket(config.BucketName),
		config: config,
		logger: logger.With().Str("component", "GCSBlobStore").Str("bucket", config.BucketName).Logger(),
	}, nil
}

func (s *GCSBlobStore) objectName(name string) string {
	return path.Join(s.config.ObjectPrefix, name)
}

// Put writes data under name, replacing any existing object.
func (s *GCSBlobStore) Put(ctx context.Context, name string, data []byte, contentType string) error {
	objectName := s.objectName(name)
	w := s.bucket.Object(objectName).NewWriter(ctx, contentType)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", objectName, err)
	}
	// The upload is only committed by Close.
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", objectName, err)
	}
	s.logger.Debug().Str("object", objectName).Int("bytes", len(data)).Msg("Stored blob.")
	return nil
}

// Get reads the object stored under name.
func (s *GCSBlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	objectName := s.objectName(name)
	r, err := s.bucket.Object(objectName).NewReader(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", objectName, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", objectName, err)
	}
	return data, nil
}

// Delete removes the object stored under name. A missing object is not an error.
func (s *GCSBlobStore) Delete(ctx context.Context, name string) error {
	objectName := s.objectName(name)
	err := s.bucket.Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete object %s: %w", objectName, err)
	}
	s.logger.Debug().Str("object", objectName).Msg("Deleted blob.")
	return nil
}
