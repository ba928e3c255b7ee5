// Package storage defines the common interfaces for object storage adapters.
// These interfaces abstract storage operations so the streaming runtime can
// work against different backends (e.g. S3, GCS, local file system) through a
// unified API.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a single object returned by ListObjects.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// StorageExecutor defines generic object storage operations. A connection is
// bound to a single bucket; object names are keys within that bucket.
type StorageExecutor interface {
	// Upload writes the data stream to the given object key.
	// 'contentType' is the MIME type of the data.
	Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error
	// Download opens the object at the given key for reading.
	// The returned ReadCloser must be closed by the caller.
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)
	// ListObjects calls 'fn' for each object under the given key prefix,
	// allowing large listings to be processed without loading all keys into
	// memory. Returning an error from 'fn' aborts the listing.
	ListObjects(ctx context.Context, prefix string, fn func(info ObjectInfo) error) error
	// DeleteObject deletes the object at the given key.
	DeleteObject(ctx context.Context, objectName string) error
	// Exists reports whether an object exists at the given key.
	Exists(ctx context.Context, objectName string) (bool, error)
}

// StorageConnection represents an open connection to one bucket of an object
// storage backend.
type StorageConnection interface {
	StorageExecutor

	// Close releases the resources held by the connection.
	Close() error
	// Type returns the backend type (e.g. "s3", "gcs", "local").
	Type() string
	// Name returns the identifier of this connection, typically the bucket.
	Name() string
}

// StorageProvider manages the acquisition and lifecycle of storage
// connections for one backend type.
type StorageProvider interface {
	// GetConnection retrieves a connection to the named bucket, creating it
	// on first use.
	GetConnection(ctx context.Context, bucket string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the backend type handled by this provider.
	Type() string
}

// ConnectionResolver resolves a storage URL such as "s3://bucket/prefix/" or
// "file:///data/in/" into an open connection and the key prefix within it.
type ConnectionResolver interface {
	Resolve(ctx context.Context, rawURL string) (conn StorageConnection, prefix string, err error)
	// CloseAll closes every connection opened through this resolver.
	CloseAll() error
}
