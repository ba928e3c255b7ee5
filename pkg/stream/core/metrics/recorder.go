// Package metrics defines the abstractions used by the streaming runtime to
// record operational metrics and traces without depending on a concrete
// monitoring backend.
package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/swell/pkg/stream/core/model"
)

// MetricRecorder records operational metrics for streaming queries and their
// micro-batches. Implementations must be safe for concurrent use.
type MetricRecorder interface {
	// RecordQueryStart marks the start of a streaming query.
	RecordQueryStart(ctx context.Context, queryName string)

	// RecordQueryEnd marks the end of a streaming query with its final status
	// and total run duration.
	RecordQueryEnd(ctx context.Context, queryName string, status model.QueryStatus, duration time.Duration)

	// RecordBatch records the outcome of one committed micro-batch.
	RecordBatch(ctx context.Context, queryName string, progress model.BatchProgress)

	// RecordRowsRead increments the count of rows read from the source.
	RecordRowsRead(ctx context.Context, queryName string, count int64)

	// RecordRowsWritten increments the count of rows written to the sink.
	RecordRowsWritten(ctx context.Context, queryName string, count int64)

	// RecordRowsFiltered increments the count of rows dropped by processing.
	RecordRowsFiltered(ctx context.Context, queryName string, count int64)

	// RecordMalformedRow increments the count of unparseable source rows.
	RecordMalformedRow(ctx context.Context, queryName string)

	// RecordTriggerIdle increments the count of triggers that found no data.
	RecordTriggerIdle(ctx context.Context, queryName string)
}
