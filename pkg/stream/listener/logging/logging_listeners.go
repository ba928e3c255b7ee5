// Package logging provides a query listener that writes structured,
// pipe-delimited lifecycle lines to the application log. The lines are stable
// key=value records meant for downstream log scraping.
package logging

import (
	"context"

	"github.com/tigerroll/swell/pkg/stream/core/port"
	"github.com/tigerroll/swell/pkg/stream/monitor"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

// LoggingQueryListener logs every query lifecycle event.
type LoggingQueryListener struct{}

// NewLoggingQueryListener creates a new LoggingQueryListener.
func NewLoggingQueryListener() *LoggingQueryListener {
	return &LoggingQueryListener{}
}

var _ port.QueryListener = (*LoggingQueryListener)(nil)

// OnQueryStarted logs the start of the streaming query.
func (l *LoggingQueryListener) OnQueryStarted(ctx context.Context, event port.QueryStartedEvent) {
	logger.Infof("QUERY_STARTED | id=%s | runId=%s | name=%s", event.ID, event.RunID, event.Name)
}

// OnQueryProgress logs the metrics of a committed micro-batch together with
// the current process memory usage.
func (l *LoggingQueryListener) OnQueryProgress(ctx context.Context, event port.QueryProgressEvent) {
	p := event.Progress
	logger.Infof(
		"QUERY_PROGRESS | batchId=%d | numInputRows=%d | inputRowsPerSecond=%.2f | processedRowsPerSecond=%.2f | durationMs=%d | numOutputRows=%d | %s",
		p.BatchID,
		p.NumInputRows,
		p.InputRowsPerSecond,
		p.ProcessedRowsPerSecond,
		p.DurationMillis,
		p.Sink.NumOutputRows,
		monitor.InfoString(),
	)
	for _, src := range p.Sources {
		logger.Infof(
			"QUERY_PROGRESS_SOURCE | description=%s | startOffset=%s | endOffset=%s | numInputRows=%d",
			src.Description,
			src.StartOffset,
			src.EndOffset,
			src.NumInputRows,
		)
	}
}

// OnQueryIdle logs a trigger that found no new data.
func (l *LoggingQueryListener) OnQueryIdle(ctx context.Context, event port.QueryIdleEvent) {
	logger.Infof("QUERY_IDLE | id=%s | runId=%s | timestamp=%s | %s", event.ID, event.RunID, event.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"), monitor.InfoString())
}

// OnQueryTerminated logs the end of the streaming query, including the
// failure that stopped it when present.
func (l *LoggingQueryListener) OnQueryTerminated(ctx context.Context, event port.QueryTerminatedEvent) {
	if event.Exception != nil {
		logger.Errorf("QUERY_TERMINATED | id=%s | runId=%s | exception=%s", event.ID, event.RunID, exception.ExtractErrorMessage(event.Exception))
		return
	}
	logger.Infof("QUERY_TERMINATED | id=%s | runId=%s | exception=None", event.ID, event.RunID)
}
