package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/swell/internal/schema"
)

func TestProcessDerivesPartitionColumns(t *testing.T) {
	fixed := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	p := &RecordProcessor{now: func() time.Time { return fixed }, location: time.UTC}

	rec := schema.Record{
		ID:        "r1",
		Name:      "sensor-a",
		Value:     42,
		Timestamp: schema.NewTimestamp(time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC)),
	}

	out, err := p.Process(context.Background(), rec)
	require.NoError(t, err)

	processed, ok := out.(schema.ProcessedRecord)
	require.True(t, ok)
	assert.Equal(t, "r1", processed.ID)
	assert.Equal(t, "processed", processed.ProcessingStatus)
	assert.Equal(t, fixed, processed.ProcessedAt.Time)

	// Partition columns keep their leading zeros.
	assert.Equal(t, "2024", processed.Year)
	assert.Equal(t, "01", processed.Month)
	assert.Equal(t, "05", processed.Day)
	assert.Equal(t, "year=2024/month=01/day=05", processed.PartitionKey())
}

func TestProcessRejectsUnexpectedType(t *testing.T) {
	p, err := NewRecordProcessor("")
	require.NoError(t, err)
	_, err = p.Process(context.Background(), "not a record")
	assert.Error(t, err)
}

func TestNewRecordProcessorRejectsUnknownTimezone(t *testing.T) {
	_, err := NewRecordProcessor("Not/AZone")
	assert.Error(t, err)
}
