package blobstore

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	coreconfig "github.com/tigerroll/swell/pkg/stream/core/config"
)

func newLocalConnection(t *testing.T) storageAdapter.StorageConnection {
	t.Helper()
	provider := NewLocalProvider()
	conn, err := provider.GetConnection(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { provider.CloseAll() })
	return conn
}

func TestBlobConnectionUploadDownload(t *testing.T) {
	ctx := context.Background()
	conn := newLocalConnection(t)

	err := conn.Upload(ctx, "input/records.json", strings.NewReader(`{"id":"1"}`), "application/json")
	require.NoError(t, err)

	r, err := conn.Download(ctx, "input/records.json")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, string(data))
}

func TestBlobConnectionListObjects(t *testing.T) {
	ctx := context.Background()
	conn := newLocalConnection(t)

	require.NoError(t, conn.Upload(ctx, "input/a.json", strings.NewReader("a"), "application/json"))
	require.NoError(t, conn.Upload(ctx, "input/b.json", strings.NewReader("bb"), "application/json"))
	require.NoError(t, conn.Upload(ctx, "other/c.json", strings.NewReader("ccc"), "application/json"))

	var keys []string
	var totalSize int64
	err := conn.ListObjects(ctx, "input/", func(info storageAdapter.ObjectInfo) error {
		keys = append(keys, info.Key)
		totalSize += info.Size
		return nil
	})
	require.NoError(t, err)

	sort.Strings(keys)
	assert.Equal(t, []string{"input/a.json", "input/b.json"}, keys)
	assert.Equal(t, int64(3), totalSize)
}

func TestBlobConnectionExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	conn := newLocalConnection(t)

	require.NoError(t, conn.Upload(ctx, "input/a.json", strings.NewReader("a"), "application/json"))

	exists, err := conn.Exists(ctx, "input/a.json")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, conn.DeleteObject(ctx, "input/a.json"))

	exists, err = conn.Exists(ctx, "input/a.json")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting a missing object is not an error.
	assert.NoError(t, conn.DeleteObject(ctx, "input/a.json"))
}

func TestResolverLocalPath(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(coreconfig.AWSConfig{Region: "us-east-1"})
	defer resolver.CloseAll()

	dir := t.TempDir()
	conn, prefix, err := resolver.Resolve(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeLocal, conn.Type())
	assert.Equal(t, "", prefix)

	// file:// URLs resolve the same way.
	conn2, prefix2, err := resolver.Resolve(ctx, "file://"+dir)
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeLocal, conn2.Type())
	assert.Equal(t, "", prefix2)
}

func TestResolverUnsupportedScheme(t *testing.T) {
	resolver := NewResolver(coreconfig.AWSConfig{})
	defer resolver.CloseAll()

	_, _, err := resolver.Resolve(context.Background(), "ftp://host/path")
	assert.Error(t, err)
}
