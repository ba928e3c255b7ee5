// Package schema defines the wire format of the records flowing through the
// stream processor.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the layout used by the upstream producers for the
// record timestamp. Partition columns are derived from this string form.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp wraps time.Time to accept the upstream "2006-01-02 15:04:05"
// layout in JSON, falling back to RFC 3339 variants.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps a time.Time value.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// UnmarshalJSON parses the timestamp from any of the accepted layouts.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range []string{TimestampLayout, time.RFC3339, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp format: %q", s)
}

// MarshalJSON renders the timestamp in the upstream layout.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(TimestampLayout))
}

// String returns the timestamp in the upstream layout.
func (t Timestamp) String() string {
	return t.Format(TimestampLayout)
}

// Record is a single input row as produced upstream.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Value     int64     `json:"value"`
	Timestamp Timestamp `json:"timestamp"`
}

// ProcessedRecord is an output row with the processing columns and the
// derived partition columns attached. The partition columns stay strings
// because they are cut from the string form of the timestamp.
type ProcessedRecord struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Value            int64     `json:"value"`
	Timestamp        Timestamp `json:"timestamp"`
	ProcessedAt      Timestamp `json:"processed_at"`
	ProcessingStatus string    `json:"processing_status"`
	Year             string    `json:"year"`
	Month            string    `json:"month"`
	Day              string    `json:"day"`
}

// PartitionKey returns the Hive-style partition path of this record, e.g.
// "year=2024/month=01/day=15".
func (r ProcessedRecord) PartitionKey() string {
	return fmt.Sprintf("year=%s/month=%s/day=%s", r.Year, r.Month, r.Day)
}
