// Package blobstore provides object storage access for staged inputs and
// result archives.
package blobstore

import (
	"context"
	"time"
)

// Object describes one stored object returned by List.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the minimal operation set the batch pipeline needs from object
// storage. Implemented by S3Store; tests substitute in-memory fakes.
type Store interface {
	// Upload stages a local file under the given key.
	Upload(ctx context.Context, key, filename string) error

	// Download fetches an object into a local file.
	Download(ctx context.Context, key, filename string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all objects under the given key prefix.
	List(ctx context.Context, prefix string) ([]Object, error)

	// PresignGet returns a short-lived signed URL for downloading an object.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
