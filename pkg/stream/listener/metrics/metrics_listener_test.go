package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/swell/pkg/stream/core/model"
	"github.com/tigerroll/swell/pkg/stream/core/port"
)

type capturingRecorder struct {
	batches  []model.BatchProgress
	read     int64
	written  int64
	filtered int64
}

func (r *capturingRecorder) RecordQueryStart(ctx context.Context, queryName string) {}
func (r *capturingRecorder) RecordQueryEnd(ctx context.Context, queryName string, status model.QueryStatus, duration time.Duration) {
}
func (r *capturingRecorder) RecordBatch(ctx context.Context, queryName string, progress model.BatchProgress) {
	r.batches = append(r.batches, progress)
}
func (r *capturingRecorder) RecordRowsRead(ctx context.Context, queryName string, count int64) {
	r.read += count
}
func (r *capturingRecorder) RecordRowsWritten(ctx context.Context, queryName string, count int64) {
	r.written += count
}
func (r *capturingRecorder) RecordRowsFiltered(ctx context.Context, queryName string, count int64) {
	r.filtered += count
}
func (r *capturingRecorder) RecordMalformedRow(ctx context.Context, queryName string) {}
func (r *capturingRecorder) RecordTriggerIdle(ctx context.Context, queryName string)  {}

func TestOnQueryProgressForwardsRowCounts(t *testing.T) {
	recorder := &capturingRecorder{}
	listener := NewMetricsQueryListener(recorder)

	listener.OnQueryProgress(context.Background(), port.QueryProgressEvent{
		Progress: model.BatchProgress{
			Name:         "q",
			BatchID:      3,
			NumInputRows: 10,
			Sink:         model.SinkProgress{NumOutputRows: 7},
		},
	})

	assert.Len(t, recorder.batches, 1)
	assert.Equal(t, int64(10), recorder.read)
	assert.Equal(t, int64(7), recorder.written)
	assert.Equal(t, int64(3), recorder.filtered)
}

func TestOnQueryProgressSkipsFilteredWhenNoneDropped(t *testing.T) {
	recorder := &capturingRecorder{}
	listener := NewMetricsQueryListener(recorder)

	listener.OnQueryProgress(context.Background(), port.QueryProgressEvent{
		Progress: model.BatchProgress{
			Name:         "q",
			NumInputRows: 4,
			Sink:         model.SinkProgress{NumOutputRows: 4},
		},
	})

	assert.Zero(t, recorder.filtered)
}
