// Package processor implements the per-row transform of the stream
// processor: it stamps processing metadata onto each record and derives the
// partition columns from the record timestamp.
package processor

import (
	"context"
	"time"

	"github.com/tigerroll/swell/pkg/stream/core/port"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"

	"github.com/tigerroll/swell/internal/schema"
)

// RecordProcessor implements port.RowProcessor for schema.Record rows.
type RecordProcessor struct {
	now      func() time.Time
	location *time.Location
}

var _ port.RowProcessor = (*RecordProcessor)(nil)

// NewRecordProcessor creates a processor stamping processed_at in the given
// timezone (e.g., "Asia/Tokyo"). An empty name selects UTC.
func NewRecordProcessor(timezone string) (*RecordProcessor, error) {
	location := time.UTC
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, exception.NewStreamErrorf("processor", "invalid timezone '%s'", timezone, err)
		}
		location = loc
	}
	return &RecordProcessor{now: time.Now, location: location}, nil
}

// Process attaches processed_at and processing_status and cuts the partition
// columns out of the string form of the timestamp, preserving leading zeros
// for month and day.
func (p *RecordProcessor) Process(ctx context.Context, row any) (any, error) {
	rec, ok := row.(schema.Record)
	if !ok {
		return nil, exception.NewStreamErrorf("processor", "unexpected row type %T", row)
	}

	ts := rec.Timestamp.String()
	if len(ts) < 10 {
		return nil, exception.NewStreamErrorf("processor", "timestamp too short for record '%s': %q", rec.ID, ts)
	}

	return schema.ProcessedRecord{
		ID:               rec.ID,
		Name:             rec.Name,
		Value:            rec.Value,
		Timestamp:        rec.Timestamp,
		ProcessedAt:      schema.NewTimestamp(p.now().In(p.location)),
		ProcessingStatus: "processed",
		Year:             ts[0:4],
		Month:            ts[5:7],
		Day:              ts[8:10],
	}, nil
}
