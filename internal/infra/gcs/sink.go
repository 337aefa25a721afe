// Package gcs keeps backup snapshots in a Google Cloud Storage bucket.
// It assumes Application Default Credentials are configured.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/kislikjeka/pocketledger/internal/backup"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

var _ backup.Sink = (*Sink)(nil)

const uploadTimeout = 2 * time.Minute

// Sink implements backup.Sink on a bucket
type Sink struct {
	client *storage.Client
	bucket string
	prefix string
	logger *logger.Logger
}

// NewSink creates a storage client for bucket. Objects are written under
// prefix, which may be empty.
func NewSink(ctx context.Context, bucket, prefix string, log *logger.Logger) (*Sink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Sink{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.OrNop(log).WithComponent(logger.ComponentGCS),
	}, nil
}

// ObjectName joins prefix and name into an object path
func ObjectName(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Write uploads data as one object
func (s *Sink) Write(ctx context.Context, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	object := ObjectName(s.prefix, name)
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", s.bucket, object, err)
	}
	// Close finalizes the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload gs://%s/%s: %w", s.bucket, object, err)
	}

	s.logger.WithContext(ctx).Info("backup uploaded",
		"bucket", s.bucket,
		"object", object,
		"bytes", len(data),
	)
	return nil
}

// Read downloads the object stored under name
func (s *Sink) Read(ctx context.Context, name string) ([]byte, error) {
	object := ObjectName(s.prefix, name)
	r, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", s.bucket, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucket, object, err)
	}
	return data, nil
}

// Close releases the storage client
func (s *Sink) Close() error {
	return s.client.Close()
}
