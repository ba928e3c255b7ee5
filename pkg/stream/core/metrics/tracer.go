package metrics

import (
	"context"
)

// SpanEnder finishes a span started by a Tracer.
type SpanEnder interface {
	// End completes the span. Passing a non-nil error marks the span as failed.
	End(err error)
}

// Tracer creates trace spans around query and micro-batch execution.
type Tracer interface {
	// StartQuerySpan starts a span covering the whole streaming query run.
	StartQuerySpan(ctx context.Context, queryName string) (context.Context, SpanEnder)

	// StartBatchSpan starts a span covering one micro-batch.
	StartBatchSpan(ctx context.Context, queryName string, batchID int64) (context.Context, SpanEnder)

	// Shutdown flushes any buffered spans. It is called during application
	// shutdown.
	Shutdown(ctx context.Context) error
}
