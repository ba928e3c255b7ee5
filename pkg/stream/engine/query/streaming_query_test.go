package query

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/swell/pkg/stream/adapter/storage/blobstore"
	"github.com/tigerroll/swell/pkg/stream/core/config"
	coremetrics "github.com/tigerroll/swell/pkg/stream/core/metrics"
	"github.com/tigerroll/swell/pkg/stream/core/model"
	"github.com/tigerroll/swell/pkg/stream/core/port"
	"github.com/tigerroll/swell/pkg/stream/engine/checkpoint"
)

// fakeReader yields the rows mapped to each planned file.
type fakeReader struct {
	mu       sync.Mutex
	plans    [][]string
	rows     map[string][]any
	open     []any
	idx      int
	restored model.ExecutionContext
}

func (r *fakeReader) Plan(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.plans) == 0 {
		return nil, nil
	}
	next := r.plans[0]
	r.plans = r.plans[1:]
	return next, nil
}

func (r *fakeReader) Open(ctx context.Context, files []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = nil
	for _, f := range files {
		r.open = append(r.open, r.rows[f]...)
	}
	r.idx = 0
	return nil
}

func (r *fakeReader) Read(ctx context.Context) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idx >= len(r.open) {
		return nil, io.EOF
	}
	row := r.open[r.idx]
	r.idx++
	return row, nil
}

func (r *fakeReader) Close(ctx context.Context) error { return nil }

func (r *fakeReader) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	r.restored = ec
	return nil
}

func (r *fakeReader) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return model.NewExecutionContext(), nil
}

// passProcessor forwards every row unchanged.
type passProcessor struct{}

func (passProcessor) Process(ctx context.Context, row any) (any, error) { return row, nil }

// collectWriter records the rows written per batch.
type collectWriter struct {
	mu      sync.Mutex
	batches map[int64][]any
	current int64
	buf     []any
	failOn  int64
	fail    bool
}

func newCollectWriter() *collectWriter {
	return &collectWriter{batches: make(map[int64][]any), failOn: -1}
}

func (w *collectWriter) Open(ctx context.Context, batchID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = batchID
	w.buf = nil
	return nil
}

func (w *collectWriter) Write(ctx context.Context, row any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, row)
	return nil
}

func (w *collectWriter) Close(ctx context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail && w.current == w.failOn {
		return 0, errors.New("sink unavailable")
	}
	w.batches[w.current] = w.buf
	return int64(len(w.buf)), nil
}

func (w *collectWriter) rowsIn(batchID int64) []any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batches[batchID]
}

// recordingListener captures every lifecycle event.
type recordingListener struct {
	mu         sync.Mutex
	started    int
	idle       int
	progress   []model.BatchProgress
	terminated []error
}

func (l *recordingListener) OnQueryStarted(ctx context.Context, e port.QueryStartedEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started++
}

func (l *recordingListener) OnQueryProgress(ctx context.Context, e port.QueryProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, e.Progress)
}

func (l *recordingListener) OnQueryIdle(ctx context.Context, e port.QueryIdleEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.idle++
}

func (l *recordingListener) OnQueryTerminated(ctx context.Context, e port.QueryTerminatedEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminated = append(l.terminated, e.Exception)
}

func newTestStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	provider := blobstore.NewLocalProvider()
	conn, err := provider.GetConnection(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { provider.CloseAll() })
	return checkpoint.NewStore(conn, "checkpoints")
}

func testStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		QueryName:              "test-query",
		SourcePath:             "file:///in/",
		DestPath:               "file:///out/",
		TriggerIntervalSeconds: 1,
	}
}

func newQueryUnderTest(t *testing.T, reader port.SourceReader, writer port.SinkWriter, store *checkpoint.Store, listener port.QueryListener) *StreamingQuery {
	t.Helper()
	return NewStreamingQuery(
		testStreamConfig(),
		reader,
		passProcessor{},
		writer,
		store,
		[]port.QueryListener{listener},
		coremetrics.NewNoOpMetricRecorder(),
		coremetrics.NewNoOpTracer(),
	)
}

func TestQueryProcessesBatchAndCommits(t *testing.T) {
	reader := &fakeReader{
		plans: [][]string{{"in/a.json"}},
		rows:  map[string][]any{"in/a.json": {"row1", "row2"}},
	}
	writer := newCollectWriter()
	store := newTestStore(t)
	listener := &recordingListener{}

	q := newQueryUnderTest(t, reader, writer, store, listener)
	require.NoError(t, q.Start(context.Background()))

	// First trigger fires immediately; give it time to commit, then stop.
	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	require.NoError(t, q.AwaitTermination(ctx))

	assert.Equal(t, []any{"row1", "row2"}, writer.rowsIn(0))
	assert.Equal(t, model.QueryStatusTerminated, q.Execution().CurrentStatus())

	state, err := store.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastCommittedBatchID)
	assert.Nil(t, state.Pending)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	assert.Equal(t, 1, listener.started)
	require.NotEmpty(t, listener.progress)
	assert.Equal(t, int64(0), listener.progress[0].BatchID)
	assert.Equal(t, int64(2), listener.progress[0].NumInputRows)
	assert.Equal(t, int64(2), listener.progress[0].Sink.NumOutputRows)
	assert.GreaterOrEqual(t, listener.idle, 1)
	require.Len(t, listener.terminated, 1)
	assert.NoError(t, listener.terminated[0])
}

func TestQueryReplaysUncommittedOffset(t *testing.T) {
	store := newTestStore(t)

	// A previous run planned batch 0 but never committed it.
	require.NoError(t, store.WriteOffset(context.Background(), checkpoint.BatchOffset{
		BatchID: 0,
		Files:   []string{"in/orphan.json"},
	}))

	reader := &fakeReader{
		rows: map[string][]any{"in/orphan.json": {"replayed"}},
	}
	writer := newCollectWriter()
	listener := &recordingListener{}

	q := newQueryUnderTest(t, reader, writer, store, listener)
	require.NoError(t, q.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	require.NoError(t, q.AwaitTermination(ctx))

	assert.Equal(t, []any{"replayed"}, writer.rowsIn(0))

	state, err := store.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastCommittedBatchID)
	assert.Nil(t, state.Pending)
}

func TestQueryFailsOnSinkError(t *testing.T) {
	reader := &fakeReader{
		plans: [][]string{{"in/a.json"}},
		rows:  map[string][]any{"in/a.json": {"row1"}},
	}
	writer := newCollectWriter()
	writer.fail = true
	writer.failOn = 0
	store := newTestStore(t)
	listener := &recordingListener{}

	q := newQueryUnderTest(t, reader, writer, store, listener)
	require.NoError(t, q.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := q.AwaitTermination(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink unavailable")
	assert.Equal(t, model.QueryStatusFailed, q.Execution().CurrentStatus())

	// The planned offset is left uncommitted so a restart replays it.
	state, restoreErr := store.Restore(context.Background())
	require.NoError(t, restoreErr)
	assert.Equal(t, int64(-1), state.LastCommittedBatchID)
	require.NotNil(t, state.Pending)
	assert.Equal(t, []string{"in/a.json"}, state.Pending.Files)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	require.Len(t, listener.terminated, 1)
	assert.Error(t, listener.terminated[0])
}

func TestQuerySeedsReaderFromCommittedState(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.WriteOffset(context.Background(), checkpoint.BatchOffset{BatchID: 0, Files: []string{"in/done.json"}}))
	require.NoError(t, store.Commit(context.Background(), 0, map[string]interface{}{
		"processed_files": []string{"in/done.json"},
	}))

	reader := &fakeReader{rows: map[string][]any{}}
	writer := newCollectWriter()
	listener := &recordingListener{}

	q := newQueryUnderTest(t, reader, writer, store, listener)
	require.NoError(t, q.Start(context.Background()))

	require.NotNil(t, reader.restored)
	files, ok := reader.restored.Get("processed_files")
	require.True(t, ok)
	assert.Equal(t, []interface{}{"in/done.json"}, files)

	q.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.AwaitTermination(ctx))
}

func TestQuerySeedsReaderFromCommittedHistory(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.WriteOffset(context.Background(), checkpoint.BatchOffset{BatchID: 0, Files: []string{"in/done.json"}}))
	require.NoError(t, store.Commit(context.Background(), 0, nil))

	reader := &fakeReader{rows: map[string][]any{}}
	writer := newCollectWriter()
	listener := &recordingListener{}

	q := newQueryUnderTest(t, reader, writer, store, listener)
	require.NoError(t, q.Start(context.Background()))
	assert.Equal(t, int64(0), q.Execution().LastBatchID)

	require.NotNil(t, reader.restored)
	files, ok := reader.restored.Get("processed_files")
	require.True(t, ok)
	assert.Equal(t, []string{"in/done.json"}, files)

	q.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.AwaitTermination(ctx))
}
