// Package writer implements the partitioned sink of the stream processor.
// Output rows are buffered per partition during a batch and flushed as one
// object per partition when the batch closes, either as JSON lines or as
// Parquet.
package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	parquetwriter "github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/errgroup"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	"github.com/tigerroll/swell/pkg/stream/core/port"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"

	"github.com/tigerroll/swell/internal/schema"
)

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON = "json"
	// FormatParquet writes one Parquet file per partition.
	FormatParquet = "parquet"

	// uploadConcurrency bounds the parallel partition uploads per batch.
	uploadConcurrency = 4
)

// outputRecord is the on-file form of a processed record. The partition
// columns are carried by the object path, not repeated inside the file.
type outputRecord struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Value            int64            `json:"value"`
	Timestamp        schema.Timestamp `json:"timestamp"`
	ProcessedAt      schema.Timestamp `json:"processed_at"`
	ProcessingStatus string           `json:"processing_status"`
}

// parquetRecord is the flat schema handed to the Parquet writer, with
// timestamps rendered as strings.
type parquetRecord struct {
	ID               string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name             string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value            int64  `parquet:"name=value, type=INT64"`
	Timestamp        string `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProcessedAt      string `parquet:"name=processed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProcessingStatus string `parquet:"name=processing_status, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// PartitionedWriter implements port.SinkWriter. It is not safe for
// concurrent Write calls; the engine feeds it from a single goroutine.
type PartitionedWriter struct {
	conn            storageAdapter.StorageConnection
	prefix          string
	outputFormat    string
	compressionType string

	batchID       int64
	bufferedRows  map[string][]schema.ProcessedRecord
	totalBuffered int64
}

var _ port.SinkWriter = (*PartitionedWriter)(nil)

// NewPartitionedWriter creates a writer targeting the given connection and
// key prefix.
func NewPartitionedWriter(conn storageAdapter.StorageConnection, prefix, outputFormat, compressionType string) (*PartitionedWriter, error) {
	format := strings.ToLower(outputFormat)
	if format != FormatJSON && format != FormatParquet {
		return nil, exception.NewStreamErrorf("writer", "unsupported output format '%s'", outputFormat)
	}
	if format == FormatParquet {
		if _, err := compressionCodec(compressionType); err != nil {
			return nil, err
		}
	}
	return &PartitionedWriter{
		conn:            conn,
		prefix:          prefix,
		outputFormat:    format,
		compressionType: compressionType,
	}, nil
}

// Open prepares the writer for a new micro-batch.
func (w *PartitionedWriter) Open(ctx context.Context, batchID int64) error {
	w.batchID = batchID
	w.bufferedRows = make(map[string][]schema.ProcessedRecord)
	w.totalBuffered = 0
	return nil
}

// Write buffers a single output row under its partition key.
func (w *PartitionedWriter) Write(ctx context.Context, row any) error {
	rec, ok := row.(schema.ProcessedRecord)
	if !ok {
		return exception.NewStreamErrorf("writer", "unexpected row type %T", row)
	}
	key := rec.PartitionKey()
	w.bufferedRows[key] = append(w.bufferedRows[key], rec)
	w.totalBuffered++
	return nil
}

// Close encodes every partition buffer and uploads the resulting objects in
// parallel. Partition failures are aggregated; any failure fails the batch.
func (w *PartitionedWriter) Close(ctx context.Context) (int64, error) {
	if w.totalBuffered == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)

	var mu sync.Mutex
	var multiErr error

	for partitionKey, rows := range w.bufferedRows {
		g.Go(func() error {
			if err := w.flushPartition(gctx, partitionKey, rows); err != nil {
				mu.Lock()
				multiErr = multierror.Append(multiErr, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	written := w.totalBuffered
	partitions := len(w.bufferedRows)
	w.bufferedRows = make(map[string][]schema.ProcessedRecord)
	w.totalBuffered = 0

	if multiErr != nil {
		return 0, exception.NewStreamError("writer", fmt.Sprintf("failed to flush batch %d", w.batchID), multiErr, false)
	}
	logger.Debugf("Flushed batch %d: %d rows across %d partitions.", w.batchID, written, partitions)
	return written, nil
}

// flushPartition encodes one partition and uploads it as a single object.
func (w *PartitionedWriter) flushPartition(ctx context.Context, partitionKey string, rows []schema.ProcessedRecord) error {
	var (
		buf         bytes.Buffer
		contentType string
		ext         string
		err         error
	)

	switch w.outputFormat {
	case FormatParquet:
		err = encodeParquet(&buf, rows, w.compressionType)
		contentType = "application/octet-stream"
		ext = "parquet"
	default:
		err = encodeJSONLines(&buf, rows)
		contentType = "application/json"
		ext = "json"
	}
	if err != nil {
		return exception.NewStreamErrorf("writer", "failed to encode partition '%s'", partitionKey, err)
	}

	fileName := fmt.Sprintf("part-%05d-%s.%s", w.batchID, uuid.New().String(), ext)
	objectName := path.Join(w.prefix, partitionKey, fileName)
	if err := w.conn.Upload(ctx, objectName, &buf, contentType); err != nil {
		return exception.NewStreamErrorf("writer", "failed to upload partition '%s' to '%s'", partitionKey, objectName, err)
	}
	logger.Debugf("Uploaded %d rows to '%s'.", len(rows), objectName)
	return nil
}

func encodeJSONLines(buf *bytes.Buffer, rows []schema.ProcessedRecord) error {
	enc := json.NewEncoder(buf)
	for _, rec := range rows {
		out := outputRecord{
			ID:               rec.ID,
			Name:             rec.Name,
			Value:            rec.Value,
			Timestamp:        rec.Timestamp,
			ProcessedAt:      rec.ProcessedAt,
			ProcessingStatus: rec.ProcessingStatus,
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func encodeParquet(buf *bytes.Buffer, rows []schema.ProcessedRecord, compressionType string) (err error) {
	codec, err := compressionCodec(compressionType)
	if err != nil {
		return err
	}

	pw, err := parquetwriter.NewParquetWriterFromWriter(buf, new(parquetRecord), int64(len(rows)))
	if err != nil {
		return err
	}
	pw.CompressionType = codec

	for _, rec := range rows {
		if writeErr := pw.Write(parquetRecord{
			ID:               rec.ID,
			Name:             rec.Name,
			Value:            rec.Value,
			Timestamp:        rec.Timestamp.String(),
			ProcessedAt:      rec.ProcessedAt.String(),
			ProcessingStatus: rec.ProcessingStatus,
		}); writeErr != nil {
			return writeErr
		}
	}

	// The library panics on some malformed schemas; surface that as an error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	return pw.WriteStop()
}

func compressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, exception.NewStreamErrorf("writer", "unsupported compression type '%s'", compressionType)
	}
}
