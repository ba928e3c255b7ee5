package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QueryStatus represents the lifecycle state of a streaming query.
type QueryStatus string

const (
	QueryStatusStarting   QueryStatus = "STARTING"
	QueryStatusRunning    QueryStatus = "RUNNING"
	QueryStatusIdle       QueryStatus = "IDLE"
	QueryStatusStopping   QueryStatus = "STOPPING"
	QueryStatusTerminated QueryStatus = "TERMINATED"
	QueryStatusFailed     QueryStatus = "FAILED"
)

// IsFinished returns true when the status is terminal.
func (s QueryStatus) IsFinished() bool {
	return s == QueryStatusTerminated || s == QueryStatusFailed
}

// QueryExecution holds the runtime state of a single streaming query run.
// A query keeps its ID across restarts of the same checkpoint location,
// while RunID is unique to each process lifetime.
type QueryExecution struct {
	ID               string
	RunID            string
	Name             string
	Status           QueryStatus
	StartTime        time.Time
	EndTime          time.Time
	LastBatchID      int64
	Failures         []error
	ExecutionContext ExecutionContext

	mu sync.Mutex
}

// NewQueryExecution creates a QueryExecution in the STARTING state.
func NewQueryExecution(name string) *QueryExecution {
	return &QueryExecution{
		ID:               uuid.New().String(),
		RunID:            uuid.New().String(),
		Name:             name,
		Status:           QueryStatusStarting,
		StartTime:        time.Now(),
		LastBatchID:      -1,
		Failures:         make([]error, 0),
		ExecutionContext: NewExecutionContext(),
	}
}

// TransitionTo updates the status of the query execution.
func (qe *QueryExecution) TransitionTo(status QueryStatus) {
	qe.mu.Lock()
	defer qe.mu.Unlock()
	qe.Status = status
	if status.IsFinished() {
		qe.EndTime = time.Now()
	}
}

// CurrentStatus returns the current status of the query execution.
func (qe *QueryExecution) CurrentStatus() QueryStatus {
	qe.mu.Lock()
	defer qe.mu.Unlock()
	return qe.Status
}

// AddFailureException records an error raised during query execution.
func (qe *QueryExecution) AddFailureException(err error) {
	qe.mu.Lock()
	defer qe.mu.Unlock()
	qe.Failures = append(qe.Failures, err)
}

// SourceProgress describes what a single source contributed to a micro-batch.
type SourceProgress struct {
	Description            string  `json:"description"`
	StartOffset            string  `json:"startOffset"`
	EndOffset              string  `json:"endOffset"`
	NumInputRows           int64   `json:"numInputRows"`
	InputRowsPerSecond     float64 `json:"inputRowsPerSecond"`
	ProcessedRowsPerSecond float64 `json:"processedRowsPerSecond"`
}

// SinkProgress describes what the sink emitted for a micro-batch.
type SinkProgress struct {
	Description   string `json:"description"`
	NumOutputRows int64  `json:"numOutputRows"`
}

// BatchProgress captures the metrics of one completed micro-batch.
type BatchProgress struct {
	QueryID                string           `json:"id"`
	RunID                  string           `json:"runId"`
	Name                   string           `json:"name"`
	BatchID                int64            `json:"batchId"`
	Timestamp              time.Time        `json:"timestamp"`
	NumInputRows           int64            `json:"numInputRows"`
	InputRowsPerSecond     float64          `json:"inputRowsPerSecond"`
	ProcessedRowsPerSecond float64          `json:"processedRowsPerSecond"`
	DurationMillis         int64            `json:"durationMillis"`
	Sources                []SourceProgress `json:"sources"`
	Sink                   SinkProgress     `json:"sink"`
}

// ExecutionContext is a key-value map carried through a query run to share
// state between components.
type ExecutionContext map[string]interface{}

// NewExecutionContext creates an empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put stores a value for the given key.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get retrieves a value for the given key. The second return value reports
// whether the key was present.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	val, ok := ec[key]
	return val, ok
}

// GetString retrieves a string value for the given key.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	val, ok := ec[key]
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// GetInt retrieves an int value for the given key. Numeric values that were
// round-tripped through JSON arrive as float64 and are converted.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	val, ok := ec[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// GetFloat64 retrieves a float64 value for the given key.
func (ec ExecutionContext) GetFloat64(key string) (float64, bool) {
	val, ok := ec[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Remove deletes a key from the context.
func (ec ExecutionContext) Remove(key string) {
	delete(ec, key)
}

// Copy returns a shallow copy of the context.
func (ec ExecutionContext) Copy() ExecutionContext {
	newEC := NewExecutionContext()
	for k, v := range ec {
		newEC[k] = v
	}
	return newEC
}

// String implements fmt.Stringer for log output.
func (ec ExecutionContext) String() string {
	return fmt.Sprintf("ExecutionContext(size=%d)", len(ec))
}
