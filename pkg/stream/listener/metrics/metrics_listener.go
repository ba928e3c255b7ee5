// Package metrics provides the query listener that forwards batch progress
// to the metric recorder.
package metrics

import (
	"context"

	coremetrics "github.com/tigerroll/swell/pkg/stream/core/metrics"
	"github.com/tigerroll/swell/pkg/stream/core/port"
)

// MetricsQueryListener translates progress events into recorder calls so the
// engine itself stays free of per-batch metric bookkeeping.
type MetricsQueryListener struct {
	recorder coremetrics.MetricRecorder
}

var _ port.QueryListener = (*MetricsQueryListener)(nil)

// NewMetricsQueryListener creates the listener.
func NewMetricsQueryListener(recorder coremetrics.MetricRecorder) *MetricsQueryListener {
	return &MetricsQueryListener{recorder: recorder}
}

func (l *MetricsQueryListener) OnQueryStarted(ctx context.Context, event port.QueryStartedEvent) {
}

// OnQueryProgress records the committed batch and its row counts.
func (l *MetricsQueryListener) OnQueryProgress(ctx context.Context, event port.QueryProgressEvent) {
	progress := event.Progress
	l.recorder.RecordBatch(ctx, progress.Name, progress)
	l.recorder.RecordRowsRead(ctx, progress.Name, progress.NumInputRows)
	l.recorder.RecordRowsWritten(ctx, progress.Name, progress.Sink.NumOutputRows)
	if filtered := progress.NumInputRows - progress.Sink.NumOutputRows; filtered > 0 {
		l.recorder.RecordRowsFiltered(ctx, progress.Name, filtered)
	}
}

func (l *MetricsQueryListener) OnQueryIdle(ctx context.Context, event port.QueryIdleEvent) {
}

func (l *MetricsQueryListener) OnQueryTerminated(ctx context.Context, event port.QueryTerminatedEvent) {
}
