// Package port defines the core interfaces that connect the streaming engine
// with pluggable source, processing and sink components.
package port

import (
	"context"
	"time"

	"github.com/tigerroll/swell/pkg/stream/core/model"
)

// SourceReader discovers and reads input rows for micro-batches.
// Plan is called once per trigger to decide what the next batch covers,
// then Open/Read iterate the planned rows until io.EOF.
type SourceReader interface {
	// Plan inspects the source and returns the input files of the next
	// micro-batch. An empty slice means no new data is available for this
	// trigger.
	Plan(ctx context.Context) (files []string, err error)

	// Open positions the reader on the given input files so that subsequent
	// Read calls yield the rows of that micro-batch. The files may come from
	// Plan or from a replayed checkpoint offset.
	Open(ctx context.Context, files []string) error

	// Read returns the next row of the current micro-batch. It returns
	// io.EOF when the batch is exhausted.
	Read(ctx context.Context) (any, error)

	// Close releases any resources held for the current micro-batch.
	Close(ctx context.Context) error

	// SetExecutionContext restores reader state from a previous run.
	SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error

	// GetExecutionContext captures reader state for checkpointing.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// RowProcessor transforms a single input row into an output row.
// Returning a nil output row with a nil error filters the row out.
type RowProcessor interface {
	Process(ctx context.Context, row any) (any, error)
}

// SinkWriter persists the rows of one micro-batch. Open and Close bracket a
// batch so the writer can buffer rows and flush them atomically per batch.
type SinkWriter interface {
	// Open prepares the writer for the micro-batch with the given ID.
	Open(ctx context.Context, batchID int64) error

	// Write buffers or persists a single output row.
	Write(ctx context.Context, row any) error

	// Close flushes all buffered rows of the current micro-batch and returns
	// the number of rows written.
	Close(ctx context.Context) (int64, error)
}

// QueryStartedEvent is emitted once when the streaming query starts.
type QueryStartedEvent struct {
	ID        string
	RunID     string
	Name      string
	Timestamp time.Time
}

// QueryProgressEvent is emitted after each committed micro-batch.
type QueryProgressEvent struct {
	Progress model.BatchProgress
}

// QueryIdleEvent is emitted when a trigger fires but no new data is available.
type QueryIdleEvent struct {
	ID        string
	RunID     string
	Timestamp time.Time
}

// QueryTerminatedEvent is emitted once when the streaming query stops,
// normally or with an error.
type QueryTerminatedEvent struct {
	ID        string
	RunID     string
	Timestamp time.Time
	Exception error
}

// QueryListener receives lifecycle notifications from a streaming query.
// Listener failures are logged and never fail the query.
type QueryListener interface {
	OnQueryStarted(ctx context.Context, event QueryStartedEvent)
	OnQueryProgress(ctx context.Context, event QueryProgressEvent)
	OnQueryIdle(ctx context.Context, event QueryIdleEvent)
	OnQueryTerminated(ctx context.Context, event QueryTerminatedEvent)
}
