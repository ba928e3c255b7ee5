package writer

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	"github.com/tigerroll/swell/pkg/stream/adapter/storage/blobstore"

	"github.com/tigerroll/swell/internal/schema"
)

func newTestConn(t *testing.T) storageAdapter.StorageConnection {
	t.Helper()
	provider := blobstore.NewLocalProvider()
	conn, err := provider.GetConnection(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { provider.CloseAll() })
	return conn
}

func processedRecord(id string, day int) schema.ProcessedRecord {
	ts := time.Date(2024, 1, day, 10, 30, 0, 0, time.UTC)
	return schema.ProcessedRecord{
		ID:               id,
		Name:             "sensor-a",
		Value:            42,
		Timestamp:        schema.NewTimestamp(ts),
		ProcessedAt:      schema.NewTimestamp(ts.Add(time.Minute)),
		ProcessingStatus: "processed",
		Year:             "2024",
		Month:            "01",
		Day:              ts.Format("02"),
	}
}

func listKeys(t *testing.T, conn storageAdapter.StorageConnection, prefix string) []string {
	t.Helper()
	var keys []string
	require.NoError(t, conn.ListObjects(context.Background(), prefix, func(info storageAdapter.ObjectInfo) error {
		keys = append(keys, info.Key)
		return nil
	}))
	return keys
}

func TestWritePartitionsByDerivedColumns(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	w, err := NewPartitionedWriter(conn, "output", FormatJSON, "")
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx, 3))
	require.NoError(t, w.Write(ctx, processedRecord("r1", 15)))
	require.NoError(t, w.Write(ctx, processedRecord("r2", 15)))
	require.NoError(t, w.Write(ctx, processedRecord("r3", 16)))

	written, err := w.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), written)

	day15 := listKeys(t, conn, "output/year=2024/month=01/day=15/")
	require.Len(t, day15, 1)
	assert.Contains(t, day15[0], "part-00003-")
	assert.True(t, strings.HasSuffix(day15[0], ".json"))

	day16 := listKeys(t, conn, "output/year=2024/month=01/day=16/")
	assert.Len(t, day16, 1)
}

func TestJSONOutputOmitsPartitionColumns(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	w, err := NewPartitionedWriter(conn, "output", FormatJSON, "")
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx, 0))
	require.NoError(t, w.Write(ctx, processedRecord("r1", 15)))
	_, err = w.Close(ctx)
	require.NoError(t, err)

	keys := listKeys(t, conn, "output/")
	require.Len(t, keys, 1)

	r, err := conn.Download(ctx, keys[0])
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)

	var row map[string]any
	require.NoError(t, json.Unmarshal(data, &row))
	assert.Equal(t, "r1", row["id"])
	assert.Equal(t, "processed", row["processing_status"])
	assert.Equal(t, "2024-01-15 10:30:00", row["timestamp"])

	// Partition columns live in the object path only.
	assert.NotContains(t, row, "year")
	assert.NotContains(t, row, "month")
	assert.NotContains(t, row, "day")
}

func TestCloseWithoutRowsWritesNothing(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	w, err := NewPartitionedWriter(conn, "output", FormatJSON, "")
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx, 0))
	written, err := w.Close(ctx)
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Empty(t, listKeys(t, conn, "output/"))
}

func TestParquetOutput(t *testing.T) {
	ctx := context.Background()
	conn := newTestConn(t)

	w, err := NewPartitionedWriter(conn, "output", FormatParquet, "SNAPPY")
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx, 1))
	require.NoError(t, w.Write(ctx, processedRecord("r1", 15)))
	written, err := w.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), written)

	keys := listKeys(t, conn, "output/year=2024/month=01/day=15/")
	require.Len(t, keys, 1)
	assert.True(t, strings.HasSuffix(keys[0], ".parquet"))

	r, err := conn.Download(ctx, keys[0])
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	// Parquet files start and end with the PAR1 magic bytes.
	require.Greater(t, len(data), 8)
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))
}

func TestNewPartitionedWriterValidatesFormat(t *testing.T) {
	conn := newTestConn(t)

	_, err := NewPartitionedWriter(conn, "output", "csv", "")
	assert.Error(t, err)

	_, err = NewPartitionedWriter(conn, "output", FormatParquet, "LZO")
	assert.Error(t, err)
}
