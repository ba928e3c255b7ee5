// Package query implements the micro-batch streaming query engine. A query
// plans one batch of input per trigger, runs it through the processing
// pipeline into the sink, and checkpoints its progress so a restart resumes
// without reprocessing committed input.
package query

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/tigerroll/swell/pkg/stream/core/config"
	coremetrics "github.com/tigerroll/swell/pkg/stream/core/metrics"
	"github.com/tigerroll/swell/pkg/stream/core/model"
	"github.com/tigerroll/swell/pkg/stream/core/port"
	"github.com/tigerroll/swell/pkg/stream/engine/checkpoint"
	"github.com/tigerroll/swell/pkg/stream/monitor"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

// StreamingQuery drives one source-to-sink pipeline on a fixed trigger
// interval. Triggers never overlap: a new trigger only fires after the
// previous batch has fully committed.
type StreamingQuery struct {
	execution   *model.QueryExecution
	streamCfg   config.StreamConfig
	reader      port.SourceReader
	processor   port.RowProcessor
	writer      port.SinkWriter
	checkpoints *checkpoint.Store
	listeners   []port.QueryListener
	recorder    coremetrics.MetricRecorder
	tracer      coremetrics.Tracer

	pending     *checkpoint.BatchOffset
	lastOffset  *checkpoint.BatchOffset
	lastTrigger time.Time

	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	mu       sync.Mutex
	finalErr error
}

// NewStreamingQuery assembles a query from its components. Start must be
// called to begin processing.
func NewStreamingQuery(
	streamCfg config.StreamConfig,
	reader port.SourceReader,
	processor port.RowProcessor,
	writer port.SinkWriter,
	checkpoints *checkpoint.Store,
	listeners []port.QueryListener,
	recorder coremetrics.MetricRecorder,
	tracer coremetrics.Tracer,
) *StreamingQuery {
	return &StreamingQuery{
		execution:   model.NewQueryExecution(streamCfg.QueryName),
		streamCfg:   streamCfg,
		reader:      reader,
		processor:   processor,
		writer:      writer,
		checkpoints: checkpoints,
		listeners:   listeners,
		recorder:    recorder,
		tracer:      tracer,
		done:        make(chan struct{}),
	}
}

// Execution returns the runtime state of this query.
func (q *StreamingQuery) Execution() *model.QueryExecution {
	return q.execution
}

// Start restores the checkpoint state and launches the trigger loop. It
// returns immediately; use AwaitTermination to block until the query ends.
func (q *StreamingQuery) Start(ctx context.Context) error {
	var startErr error
	q.startOnce.Do(func() {
		logger.Infof("Starting streaming query '%s' (id=%s, runId=%s).", q.execution.Name, q.execution.ID, q.execution.RunID)

		state, err := q.checkpoints.Restore(ctx)
		if err != nil {
			startErr = err
			return
		}
		q.execution.LastBatchID = state.LastCommittedBatchID
		q.pending = state.Pending

		if err := q.seedReaderState(ctx, state); err != nil {
			startErr = err
			return
		}

		runCtx, cancel := context.WithCancel(context.Background())
		q.cancel = cancel

		q.execution.TransitionTo(model.QueryStatusRunning)
		q.recorder.RecordQueryStart(runCtx, q.execution.Name)
		q.notifyStarted(runCtx)

		go q.run(runCtx)
	})
	return startErr
}

// seedReaderState restores the reader's processed-input state. The state
// captured with the last commit is preferred; checkpoints written before
// state capture are rebuilt by scanning the committed offset history.
func (q *StreamingQuery) seedReaderState(ctx context.Context, state *checkpoint.RestoredState) error {
	if len(state.State) > 0 {
		ec := model.ExecutionContext(state.State)
		if err := q.reader.SetExecutionContext(ctx, ec); err != nil {
			return exception.NewStreamError("query", "failed to restore source reader state", err, false)
		}
		logger.Infof("Restored source reader state from commit of batch %d.", state.LastCommittedBatchID)
		return nil
	}

	processed := make([]string, 0)
	if err := q.checkpoints.CommittedFiles(ctx, func(file string) error {
		processed = append(processed, file)
		return nil
	}); err != nil {
		return err
	}
	if len(processed) == 0 && state.Pending == nil {
		return nil
	}

	ec := model.NewExecutionContext()
	ec.Put("processed_files", processed)
	if err := q.reader.SetExecutionContext(ctx, ec); err != nil {
		return exception.NewStreamError("query", "failed to restore source reader state", err, false)
	}
	logger.Infof("Restored %d processed input files from checkpoint history.", len(processed))
	return nil
}

// run is the trigger loop. The first trigger fires immediately, subsequent
// triggers on the configured interval.
func (q *StreamingQuery) run(ctx context.Context) {
	defer close(q.done)

	queryStart := time.Now()
	ctx, querySpan := q.tracer.StartQuerySpan(ctx, q.execution.Name)

	interval := time.Duration(q.streamCfg.TriggerIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var runErr error
	q.lastTrigger = time.Now()
	runErr = q.runTrigger(ctx)

	for runErr == nil {
		select {
		case <-ctx.Done():
			logger.Infof("Streaming query '%s' received stop signal.", q.execution.Name)
			q.finish(ctx, querySpan, queryStart, nil)
			return
		case <-ticker.C:
			runErr = q.runTrigger(ctx)
		}
	}

	if ctx.Err() != nil {
		// Cancellation during a batch is a normal stop, not a failure.
		q.finish(ctx, querySpan, queryStart, nil)
		return
	}
	q.finish(ctx, querySpan, queryStart, runErr)
}

// finish records the terminal state and notifies listeners exactly once.
func (q *StreamingQuery) finish(ctx context.Context, querySpan coremetrics.SpanEnder, queryStart time.Time, runErr error) {
	status := model.QueryStatusTerminated
	if runErr != nil {
		status = model.QueryStatusFailed
		q.execution.AddFailureException(runErr)
		logger.Errorf("Streaming query '%s' failed: %v\nStack Trace:\n%s\nMemory: %s",
			q.execution.Name, runErr, exception.ExtractStackTrace(runErr), monitor.InfoString())
	}
	q.execution.TransitionTo(status)

	q.mu.Lock()
	q.finalErr = runErr
	q.mu.Unlock()

	querySpan.End(runErr)
	q.recorder.RecordQueryEnd(ctx, q.execution.Name, status, time.Since(queryStart))
	q.notifyTerminated(context.WithoutCancel(ctx), runErr)
	logger.Infof("Streaming query '%s' stopped with status %s.", q.execution.Name, status)
}

// runTrigger plans and executes one micro-batch. A trigger that finds no new
// data emits an idle notification and returns nil.
func (q *StreamingQuery) runTrigger(ctx context.Context) error {
	triggerStart := time.Now()
	sinceLastTrigger := triggerStart.Sub(q.lastTrigger)
	q.lastTrigger = triggerStart

	batchID := q.execution.LastBatchID + 1
	var offset checkpoint.BatchOffset
	replay := false

	if q.pending != nil {
		// A batch was planned but never committed. Replay it with the exact
		// planned input set before looking at new data.
		offset = *q.pending
		batchID = offset.BatchID
		replay = true
		q.pending = nil
		logger.Infof("Replaying uncommitted batch %d (%d files).", batchID, len(offset.Files))
	} else {
		files, err := q.reader.Plan(ctx)
		if err != nil {
			return exception.NewStreamErrorf("query", "failed to plan batch %d", batchID, err)
		}
		if len(files) == 0 {
			q.recorder.RecordTriggerIdle(ctx, q.execution.Name)
			q.notifyIdle(ctx)
			return nil
		}
		offset = checkpoint.BatchOffset{BatchID: batchID, Files: files, Timestamp: triggerStart}
		if err := q.checkpoints.WriteOffset(ctx, offset); err != nil {
			return err
		}
	}

	batchCtx, batchSpan := q.tracer.StartBatchSpan(ctx, q.execution.Name, batchID)
	inputRows, outputRows, err := q.runBatch(batchCtx, batchID, offset.Files)
	if err != nil {
		batchSpan.End(err)
		return err
	}

	sourceState, err := q.reader.GetExecutionContext(batchCtx)
	if err != nil {
		logger.Warnf("Failed to capture source state for batch %d: %v", batchID, err)
		sourceState = nil
	}
	if err := q.checkpoints.Commit(batchCtx, batchID, sourceState); err != nil {
		batchSpan.End(err)
		return err
	}
	batchSpan.End(nil)

	q.execution.LastBatchID = batchID
	duration := time.Since(triggerStart)

	progress := q.buildProgress(batchID, offset, inputRows, outputRows, sinceLastTrigger, duration)
	q.lastOffset = &offset
	q.notifyProgress(ctx, progress)

	if replay {
		logger.Infof("Replayed batch %d committed (%d rows in, %d rows out).", batchID, inputRows, outputRows)
	}
	return nil
}

// runBatch pushes every row of the planned input through the processor into
// the sink. The sink is opened and closed per batch so its output is flushed
// atomically before the commit.
func (q *StreamingQuery) runBatch(ctx context.Context, batchID int64, files []string) (inputRows, outputRows int64, err error) {
	if err := q.reader.Open(ctx, files); err != nil {
		return 0, 0, exception.NewStreamErrorf("query", "failed to open source for batch %d", batchID, err)
	}
	defer func() {
		if closeErr := q.reader.Close(ctx); closeErr != nil {
			logger.Warnf("Failed to close source reader for batch %d: %v", batchID, closeErr)
		}
	}()

	if err := q.writer.Open(ctx, batchID); err != nil {
		return 0, 0, exception.NewStreamErrorf("query", "failed to open sink for batch %d", batchID, err)
	}

	for {
		row, readErr := q.reader.Read(ctx)
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			q.writer.Close(ctx)
			return inputRows, 0, exception.NewStreamErrorf("query", "failed to read row in batch %d", batchID, readErr)
		}
		inputRows++

		processed, procErr := q.processor.Process(ctx, row)
		if procErr != nil {
			q.writer.Close(ctx)
			return inputRows, 0, exception.NewStreamErrorf("query", "failed to process row in batch %d", batchID, procErr)
		}
		if processed == nil {
			continue
		}

		if writeErr := q.writer.Write(ctx, processed); writeErr != nil {
			q.writer.Close(ctx)
			return inputRows, 0, exception.NewStreamErrorf("query", "failed to write row in batch %d", batchID, writeErr)
		}
	}

	outputRows, err = q.writer.Close(ctx)
	if err != nil {
		return inputRows, 0, exception.NewStreamErrorf("query", "failed to flush sink for batch %d", batchID, err)
	}
	return inputRows, outputRows, nil
}

func (q *StreamingQuery) buildProgress(batchID int64, offset checkpoint.BatchOffset, inputRows, outputRows int64, sinceLastTrigger, duration time.Duration) model.BatchProgress {
	startOffset := "{}"
	if q.lastOffset != nil {
		startOffset = q.lastOffset.Describe()
	}

	inputRate := 0.0
	if sinceLastTrigger > 0 {
		inputRate = float64(inputRows) / sinceLastTrigger.Seconds()
	}
	processRate := 0.0
	if duration > 0 {
		processRate = float64(inputRows) / duration.Seconds()
	}

	return model.BatchProgress{
		QueryID:                q.execution.ID,
		RunID:                  q.execution.RunID,
		Name:                   q.execution.Name,
		BatchID:                batchID,
		Timestamp:              time.Now(),
		NumInputRows:           inputRows,
		InputRowsPerSecond:     inputRate,
		ProcessedRowsPerSecond: processRate,
		DurationMillis:         duration.Milliseconds(),
		Sources: []model.SourceProgress{{
			Description:            "FileStreamSource[" + q.streamCfg.SourcePath + "]",
			StartOffset:            startOffset,
			EndOffset:              offset.Describe(),
			NumInputRows:           inputRows,
			InputRowsPerSecond:     inputRate,
			ProcessedRowsPerSecond: processRate,
		}},
		Sink: model.SinkProgress{
			Description:   "FileSink[" + q.streamCfg.DestPath + "]",
			NumOutputRows: outputRows,
		},
	}
}

// Stop requests a graceful stop. The current batch finishes and commits
// before the query terminates.
func (q *StreamingQuery) Stop() {
	q.stopOnce.Do(func() {
		if q.cancel != nil {
			logger.Infof("Stopping streaming query '%s'.", q.execution.Name)
			q.cancel()
		}
	})
}

// AwaitTermination blocks until the query terminates or the context is
// cancelled. It returns the error that stopped the query, if any.
func (q *StreamingQuery) AwaitTermination(ctx context.Context) error {
	select {
	case <-ctx.Done():
		q.Stop()
		<-q.done
	case <-q.done:
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finalErr
}

// Listener notifications never fail the query. A panicking listener is
// logged and skipped.

func (q *StreamingQuery) safeNotify(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Query listener panicked during %s: %v", name, r)
		}
	}()
	fn()
}

func (q *StreamingQuery) notifyStarted(ctx context.Context) {
	event := port.QueryStartedEvent{
		ID:        q.execution.ID,
		RunID:     q.execution.RunID,
		Name:      q.execution.Name,
		Timestamp: time.Now(),
	}
	for _, l := range q.listeners {
		q.safeNotify("OnQueryStarted", func() { l.OnQueryStarted(ctx, event) })
	}
}

func (q *StreamingQuery) notifyProgress(ctx context.Context, progress model.BatchProgress) {
	event := port.QueryProgressEvent{Progress: progress}
	for _, l := range q.listeners {
		q.safeNotify("OnQueryProgress", func() { l.OnQueryProgress(ctx, event) })
	}
}

func (q *StreamingQuery) notifyIdle(ctx context.Context) {
	event := port.QueryIdleEvent{
		ID:        q.execution.ID,
		RunID:     q.execution.RunID,
		Timestamp: time.Now(),
	}
	for _, l := range q.listeners {
		q.safeNotify("OnQueryIdle", func() { l.OnQueryIdle(ctx, event) })
	}
}

func (q *StreamingQuery) notifyTerminated(ctx context.Context, runErr error) {
	event := port.QueryTerminatedEvent{
		ID:        q.execution.ID,
		RunID:     q.execution.RunID,
		Timestamp: time.Now(),
		Exception: runErr,
	}
	for _, l := range q.listeners {
		q.safeNotify("OnQueryTerminated", func() { l.OnQueryTerminated(ctx, event) })
	}
}
