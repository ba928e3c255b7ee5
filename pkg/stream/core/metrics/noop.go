package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/swell/pkg/stream/core/model"
)

// NoOpMetricRecorder discards all metrics. It is used when metrics are
// disabled in the configuration.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a recorder that does nothing.
func NewNoOpMetricRecorder() *NoOpMetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordQueryStart(ctx context.Context, queryName string) {}
func (r *NoOpMetricRecorder) RecordQueryEnd(ctx context.Context, queryName string, status model.QueryStatus, duration time.Duration) {
}
func (r *NoOpMetricRecorder) RecordBatch(ctx context.Context, queryName string, progress model.BatchProgress) {
}
func (r *NoOpMetricRecorder) RecordRowsRead(ctx context.Context, queryName string, count int64)     {}
func (r *NoOpMetricRecorder) RecordRowsWritten(ctx context.Context, queryName string, count int64)  {}
func (r *NoOpMetricRecorder) RecordRowsFiltered(ctx context.Context, queryName string, count int64) {}
func (r *NoOpMetricRecorder) RecordMalformedRow(ctx context.Context, queryName string)              {}
func (r *NoOpMetricRecorder) RecordTriggerIdle(ctx context.Context, queryName string)               {}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer discards all spans. It is used when tracing is disabled.
type NoOpTracer struct{}

// NewNoOpTracer creates a tracer that does nothing.
func NewNoOpTracer() *NoOpTracer {
	return &NoOpTracer{}
}

type noOpSpanEnder struct{}

func (noOpSpanEnder) End(err error) {}

func (t *NoOpTracer) StartQuerySpan(ctx context.Context, queryName string) (context.Context, SpanEnder) {
	return ctx, noOpSpanEnder{}
}

func (t *NoOpTracer) StartBatchSpan(ctx context.Context, queryName string, batchID int64) (context.Context, SpanEnder) {
	return ctx, noOpSpanEnder{}
}

func (t *NoOpTracer) Shutdown(ctx context.Context) error { return nil }

var _ Tracer = (*NoOpTracer)(nil)
