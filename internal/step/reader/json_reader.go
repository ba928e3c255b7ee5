// Package reader implements the JSON-lines source reader over object
// storage. Each trigger plans the oldest unprocessed input files up to the
// configured cap and streams their rows one by one.
package reader

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sort"
	"time"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	coremetrics "github.com/tigerroll/swell/pkg/stream/core/metrics"
	"github.com/tigerroll/swell/pkg/stream/core/model"
	"github.com/tigerroll/swell/pkg/stream/core/port"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"

	"github.com/tigerroll/swell/internal/schema"
)

// maxLineBytes bounds a single JSON line. Rows are small; a larger line is a
// corrupt file, not data.
const maxLineBytes = 4 * 1024 * 1024

// JSONSourceReader implements port.SourceReader for JSON-lines objects.
type JSONSourceReader struct {
	conn               storageAdapter.StorageConnection
	prefix             string
	queryName          string
	maxFilesPerTrigger int
	recorder           coremetrics.MetricRecorder

	processedFiles map[string]struct{}

	// per-batch state
	files   []string
	fileIdx int
	current io.ReadCloser
	scanner *bufio.Scanner
}

var _ port.SourceReader = (*JSONSourceReader)(nil)

// NewJSONSourceReader creates a reader over the given connection and key
// prefix.
func NewJSONSourceReader(conn storageAdapter.StorageConnection, prefix, queryName string, maxFilesPerTrigger int, recorder coremetrics.MetricRecorder) *JSONSourceReader {
	return &JSONSourceReader{
		conn:               conn,
		prefix:             prefix,
		queryName:          queryName,
		maxFilesPerTrigger: maxFilesPerTrigger,
		recorder:           recorder,
		processedFiles:     make(map[string]struct{}),
	}
}

// Plan lists the source prefix and returns the oldest unprocessed files, at
// most maxFilesPerTrigger of them.
func (r *JSONSourceReader) Plan(ctx context.Context) ([]string, error) {
	type candidate struct {
		key     string
		modTime time.Time
	}
	var candidates []candidate

	err := r.conn.ListObjects(ctx, r.prefix, func(info storageAdapter.ObjectInfo) error {
		if _, done := r.processedFiles[info.Key]; done {
			return nil
		}
		candidates = append(candidates, candidate{key: info.Key, modTime: info.ModTime})
		return nil
	})
	if err != nil {
		return nil, exception.NewStreamErrorf("reader", "failed to list source prefix '%s'", r.prefix, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Oldest files first so input is consumed in arrival order.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	if r.maxFilesPerTrigger > 0 && len(candidates) > r.maxFilesPerTrigger {
		candidates = candidates[:r.maxFilesPerTrigger]
	}

	files := make([]string, len(candidates))
	for i, c := range candidates {
		files[i] = c.key
	}
	logger.Debugf("Planned %d input files for next batch.", len(files))
	return files, nil
}

// Open positions the reader on the given files. The files are marked as
// consumed immediately: a batch that fails terminates the query, and a
// restart rebuilds this state from the committed checkpoints.
func (r *JSONSourceReader) Open(ctx context.Context, files []string) error {
	r.files = files
	r.fileIdx = 0
	r.current = nil
	r.scanner = nil
	for _, f := range files {
		r.processedFiles[f] = struct{}{}
	}
	return nil
}

// Read returns the next valid row of the current batch, or io.EOF when the
// batch is exhausted. Malformed lines are counted, logged and skipped.
func (r *JSONSourceReader) Read(ctx context.Context) (any, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if r.scanner == nil {
			if r.fileIdx >= len(r.files) {
				return nil, io.EOF
			}
			key := r.files[r.fileIdx]
			rc, err := r.conn.Download(ctx, key)
			if err != nil {
				return nil, exception.NewStreamErrorf("reader", "failed to open input file '%s'", key, err)
			}
			r.current = rc
			r.scanner = bufio.NewScanner(rc)
			r.scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				key := r.files[r.fileIdx]
				r.closeCurrent()
				return nil, exception.NewStreamErrorf("reader", "failed to read input file '%s'", key, err)
			}
			r.closeCurrent()
			r.fileIdx++
			continue
		}

		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec schema.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			r.recorder.RecordMalformedRow(ctx, r.queryName)
			logger.Warnf("Skipping malformed row in '%s': %v", r.files[r.fileIdx], err)
			continue
		}
		return rec, nil
	}
}

// Close releases the batch state of the reader.
func (r *JSONSourceReader) Close(ctx context.Context) error {
	r.closeCurrent()
	r.files = nil
	r.fileIdx = 0
	return nil
}

func (r *JSONSourceReader) closeCurrent() {
	if r.current != nil {
		if err := r.current.Close(); err != nil {
			logger.Warnf("Failed to close input file reader: %v", err)
		}
		r.current = nil
	}
	r.scanner = nil
}

// SetExecutionContext restores the processed-file set from a previous run.
func (r *JSONSourceReader) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	raw, ok := ec.Get("processed_files")
	if !ok {
		return nil
	}
	switch files := raw.(type) {
	case []string:
		for _, f := range files {
			r.processedFiles[f] = struct{}{}
		}
	case []interface{}:
		// JSON round-trips deliver string slices as []interface{}.
		for _, v := range files {
			if s, ok := v.(string); ok {
				r.processedFiles[s] = struct{}{}
			}
		}
	default:
		return exception.NewStreamErrorf("reader", "unexpected type %T for processed_files", raw)
	}
	return nil
}

// GetExecutionContext captures the processed-file set for checkpointing.
func (r *JSONSourceReader) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	files := make([]string, 0, len(r.processedFiles))
	for f := range r.processedFiles {
		files = append(files, f)
	}
	sort.Strings(files)

	ec := model.NewExecutionContext()
	ec.Put("processed_files", files)
	return ec, nil
}
