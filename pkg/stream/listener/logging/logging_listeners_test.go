package logging

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/swell/pkg/stream/core/model"
	"github.com/tigerroll/swell/pkg/stream/core/port"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"
)

func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)
	logger.SetLogLevel("info")
	fn()
	return buf.String()
}

// assertMemoryInfo checks that a lifecycle line carries the process memory
// snapshot. Skips when process metrics are unavailable on the host.
func assertMemoryInfo(t *testing.T, out string) {
	t.Helper()
	if strings.Contains(out, "memory_error=") {
		t.Skipf("process memory metrics unavailable: %s", out)
	}
	assert.Contains(t, out, "memory_rss=")
}

func TestOnQueryStarted(t *testing.T) {
	l := NewLoggingQueryListener()
	out := captureLog(t, func() {
		l.OnQueryStarted(context.Background(), port.QueryStartedEvent{
			ID:    "query-id",
			RunID: "run-id",
			Name:  "s3-stream-processor",
		})
	})
	assert.Contains(t, out, "QUERY_STARTED | id=query-id | runId=run-id | name=s3-stream-processor")
}

func TestOnQueryProgress(t *testing.T) {
	l := NewLoggingQueryListener()
	out := captureLog(t, func() {
		l.OnQueryProgress(context.Background(), port.QueryProgressEvent{
			Progress: model.BatchProgress{
				BatchID:                7,
				NumInputRows:           120,
				InputRowsPerSecond:     12.5,
				ProcessedRowsPerSecond: 60.0,
				DurationMillis:         2000,
				Sources: []model.SourceProgress{{
					Description:  "FileStreamSource[s3://bucket/input/]",
					StartOffset:  `{"batchId": 6, "numFiles": 2}`,
					EndOffset:    `{"batchId": 7, "numFiles": 3}`,
					NumInputRows: 120,
				}},
				Sink: model.SinkProgress{NumOutputRows: 118},
			},
		})
	})
	assert.Contains(t, out, "QUERY_PROGRESS | batchId=7 | numInputRows=120 | inputRowsPerSecond=12.50 | processedRowsPerSecond=60.00 | durationMs=2000 | numOutputRows=118")
	assert.Contains(t, out, "QUERY_PROGRESS_SOURCE | description=FileStreamSource[s3://bucket/input/]")
	assertMemoryInfo(t, out)
}

func TestOnQueryIdle(t *testing.T) {
	l := NewLoggingQueryListener()
	out := captureLog(t, func() {
		l.OnQueryIdle(context.Background(), port.QueryIdleEvent{
			ID:        "query-id",
			RunID:     "run-id",
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		})
	})
	assert.Contains(t, out, "QUERY_IDLE | id=query-id | runId=run-id | timestamp=2025-06-01T12:00:00.000Z")
	assertMemoryInfo(t, out)
}

func TestOnQueryTerminated(t *testing.T) {
	l := NewLoggingQueryListener()

	out := captureLog(t, func() {
		l.OnQueryTerminated(context.Background(), port.QueryTerminatedEvent{ID: "q", RunID: "r"})
	})
	assert.Contains(t, out, "QUERY_TERMINATED | id=q | runId=r | exception=None")

	out = captureLog(t, func() {
		l.OnQueryTerminated(context.Background(), port.QueryTerminatedEvent{
			ID:        "q",
			RunID:     "r",
			Exception: exception.NewStreamError("query", "sink write failed", nil, false),
		})
	})
	assert.Contains(t, out, "QUERY_TERMINATED | id=q | runId=r | exception=")
	assert.Contains(t, out, "sink write failed")
}
