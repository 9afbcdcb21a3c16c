// Package blobstore persists binary payload bodies (photos) outside the
// queue database, keeping queue rows small. Envelopes carry a blob reference
// instead of the bytes.
package blobstore

import (
	"context"
	"fmt"
	"path/filepath"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/allisson/fieldsync/internal/errors"
)

// Store wraps a blob bucket with the operations the capture flow needs.
type Store struct {
	bucket *blob.Bucket
}

// Open opens the bucket at bucketURL. When bucketURL is empty a fileblob
// bucket rooted at <dataDir>/blobs is used.
func Open(ctx context.Context, bucketURL, dataDir string) (*Store, error) {
	if bucketURL == "" {
		bucketURL = "file://" + filepath.Join(dataDir, "blobs") + "?create_dir=true"
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob bucket: %w", err)
	}
	return &Store{bucket: bucket}, nil
}

// NewStore creates a Store over an already opened bucket. Used in tests with
// a memblob bucket.
func NewStore(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Put stores data under key with the given content type.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	opts := &blob.WriterOptions{ContentType: contentType}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return fmt.Errorf("failed to write blob %q: %w", key, err)
	}
	return nil
}

// Get returns the bytes stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, errors.Wrapf(errors.ErrNotFound, "blob %q not found", key)
		}
		return nil, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob stored under key. Deleting a missing key is not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	exists, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check blob %q: %w", key, err)
	}
	if !exists {
		return nil
	}
	if err := s.bucket.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}
