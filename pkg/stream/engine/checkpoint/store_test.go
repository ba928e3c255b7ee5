package checkpoint

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/swell/pkg/stream/adapter/storage/blobstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	provider := blobstore.NewLocalProvider()
	conn, err := provider.GetConnection(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { provider.CloseAll() })
	return NewStore(conn, "checkpoints")
}

func TestRestoreEmptyCheckpoint(t *testing.T) {
	store := newTestStore(t)

	state, err := store.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), state.LastCommittedBatchID)
	assert.Nil(t, state.Pending)
}

func TestRestoreAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	offset := BatchOffset{BatchID: 0, Files: []string{"input/a.json"}, Timestamp: time.Now()}
	require.NoError(t, store.WriteOffset(ctx, offset))
	require.NoError(t, store.Commit(ctx, 0, nil))

	state, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastCommittedBatchID)
	assert.Nil(t, state.Pending)
}

func TestRestoreReturnsCommittedSourceState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.WriteOffset(ctx, BatchOffset{BatchID: 0, Files: []string{"input/a.json"}}))
	sourceState := map[string]interface{}{"processed_files": []string{"input/a.json"}}
	require.NoError(t, store.Commit(ctx, 0, sourceState))

	state, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastCommittedBatchID)
	assert.Equal(t, []interface{}{"input/a.json"}, state.State["processed_files"])
}

func TestRestoreReplaysUncommittedBatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.WriteOffset(ctx, BatchOffset{BatchID: 0, Files: []string{"input/a.json"}}))
	require.NoError(t, store.Commit(ctx, 0, nil))

	// Batch 1 planned its input but crashed before commit.
	pending := BatchOffset{BatchID: 1, Files: []string{"input/b.json", "input/c.json"}}
	require.NoError(t, store.WriteOffset(ctx, pending))

	state, err := store.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastCommittedBatchID)
	require.NotNil(t, state.Pending)
	assert.Equal(t, int64(1), state.Pending.BatchID)
	assert.Equal(t, pending.Files, state.Pending.Files)
}

func TestCommittedFiles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.WriteOffset(ctx, BatchOffset{BatchID: 0, Files: []string{"input/a.json"}}))
	require.NoError(t, store.Commit(ctx, 0, nil))
	require.NoError(t, store.WriteOffset(ctx, BatchOffset{BatchID: 1, Files: []string{"input/b.json"}}))
	require.NoError(t, store.Commit(ctx, 1, nil))

	// Planned but uncommitted files must not count as processed.
	require.NoError(t, store.WriteOffset(ctx, BatchOffset{BatchID: 2, Files: []string{"input/c.json"}}))

	var files []string
	err := store.CommittedFiles(ctx, func(file string) error {
		files = append(files, file)
		return nil
	})
	require.NoError(t, err)

	sort.Strings(files)
	assert.Equal(t, []string{"input/a.json", "input/b.json"}, files)
}

func TestParseBatchID(t *testing.T) {
	id, ok := parseBatchID("checkpoints/offsets/12.json")
	assert.True(t, ok)
	assert.Equal(t, int64(12), id)

	_, ok = parseBatchID("checkpoints/offsets/_metadata")
	assert.False(t, ok)
}

func TestBatchOffsetDescribe(t *testing.T) {
	offset := BatchOffset{BatchID: 3, Files: []string{"a", "b"}}
	assert.Equal(t, `{"batchId": 3, "numFiles": 2}`, offset.Describe())
}
