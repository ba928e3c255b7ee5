// Package blobstore implements the storage adapter interfaces on top of
// gocloud.dev portable blob buckets, covering S3, GCS and the local file
// system with one code path.
package blobstore

import (
	"context"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

// blobConnection implements storage.StorageConnection over a *blob.Bucket.
type blobConnection struct {
	bucket       *blob.Bucket
	providerType string
	name         string
}

var _ storageAdapter.StorageConnection = (*blobConnection)(nil)

// newBlobConnection wraps an open bucket as a StorageConnection.
func newBlobConnection(bucket *blob.Bucket, providerType, name string) *blobConnection {
	return &blobConnection{
		bucket:       bucket,
		providerType: providerType,
		name:         name,
	}
}

// Close releases the underlying bucket handle.
func (c *blobConnection) Close() error {
	logger.Debugf("Storage connection '%s' (%s) closed.", c.name, c.providerType)
	return c.bucket.Close()
}

// Type returns the backend type of this connection.
func (c *blobConnection) Type() string {
	return c.providerType
}

// Name returns the bucket identifier of this connection.
func (c *blobConnection) Name() string {
	return c.name
}

// Upload writes the data stream to the given object key.
func (c *blobConnection) Upload(ctx context.Context, objectName string, data io.Reader, contentType string) error {
	w, err := c.bucket.NewWriter(ctx, objectName, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return exception.NewStreamErrorf("storage", "failed to open writer for object '%s' in '%s'", objectName, c.name, err)
	}
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return exception.NewStreamErrorf("storage", "failed to write object '%s' to '%s'", objectName, c.name, err)
	}
	if err := w.Close(); err != nil {
		return exception.NewStreamErrorf("storage", "failed to finalize object '%s' in '%s'", objectName, c.name, err)
	}
	logger.Debugf("Uploaded object '%s' to '%s' (%s).", objectName, c.name, c.providerType)
	return nil
}

// Download opens the object at the given key for reading. The returned
// ReadCloser must be closed by the caller.
func (c *blobConnection) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	r, err := c.bucket.NewReader(ctx, objectName, nil)
	if err != nil {
		return nil, exception.NewStreamErrorf("storage", "failed to open object '%s' in '%s'", objectName, c.name, err)
	}
	return r, nil
}

// ListObjects calls fn for each object under the given prefix.
func (c *blobConnection) ListObjects(ctx context.Context, prefix string, fn func(info storageAdapter.ObjectInfo) error) error {
	iter := c.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return exception.NewStreamErrorf("storage", "failed to list objects under '%s' in '%s'", prefix, c.name, err)
		}
		if obj.IsDir {
			continue
		}
		if err := fn(storageAdapter.ObjectInfo{
			Key:     obj.Key,
			Size:    obj.Size,
			ModTime: obj.ModTime,
		}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteObject deletes the object at the given key. Deleting a missing object
// logs a warning and returns nil.
func (c *blobConnection) DeleteObject(ctx context.Context, objectName string) error {
	if err := c.bucket.Delete(ctx, objectName); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			logger.Warnf("Attempted to delete non-existent object '%s' in '%s'.", objectName, c.name)
			return nil
		}
		return exception.NewStreamErrorf("storage", "failed to delete object '%s' from '%s'", objectName, c.name, err)
	}
	logger.Debugf("Deleted object '%s' from '%s' (%s).", objectName, c.name, c.providerType)
	return nil
}

// Exists reports whether an object exists at the given key.
func (c *blobConnection) Exists(ctx context.Context, objectName string) (bool, error) {
	exists, err := c.bucket.Exists(ctx, objectName)
	if err != nil {
		return false, exception.NewStreamErrorf("storage", "failed to check object '%s' in '%s'", objectName, c.name, err)
	}
	return exists, nil
}
