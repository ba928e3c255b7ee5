// Package checkpoint persists micro-batch progress to object storage so a
// restarted query resumes exactly where the previous run stopped.
//
// The layout mirrors the usual streaming checkpoint convention: before a
// batch writes any output, its planned input set is recorded under
// offsets/<batchID>.json; after the sink output is complete, the batch is
// sealed under commits/<batchID>.json. An offset without a matching commit
// marks a batch that must be replayed with the same input set.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	storageAdapter "github.com/tigerroll/swell/pkg/stream/adapter/storage"
	"github.com/tigerroll/swell/pkg/stream/support/util/exception"
	"github.com/tigerroll/swell/pkg/stream/support/util/logger"
	"github.com/tigerroll/swell/pkg/stream/support/util/serialization"
)

const (
	offsetsDir = "offsets"
	commitsDir = "commits"
)

// BatchOffset records the exact input set planned for one micro-batch.
type BatchOffset struct {
	BatchID   int64     `json:"batchId"`
	Files     []string  `json:"files"`
	Timestamp time.Time `json:"timestamp"`
}

// Describe returns a short human-readable form used in progress events.
func (o BatchOffset) Describe() string {
	return "{\"batchId\": " + strconv.FormatInt(o.BatchID, 10) + ", \"numFiles\": " + strconv.Itoa(len(o.Files)) + "}"
}

type commitRecord struct {
	BatchID     int64           `json:"batchId"`
	CommittedAt time.Time       `json:"committedAt"`
	State       json.RawMessage `json:"state,omitempty"`
}

// RestoredState is the result of reading an existing checkpoint location.
type RestoredState struct {
	// LastCommittedBatchID is the highest sealed batch, or -1 when none.
	LastCommittedBatchID int64
	// Pending holds the offset of a batch that was planned but never
	// committed, or nil when the checkpoint is clean.
	Pending *BatchOffset
	// State is the source execution context captured with the last commit.
	// Empty when the checkpoint predates state capture.
	State map[string]interface{}
}

// Store reads and writes checkpoint data below a key prefix of one storage
// connection.
type Store struct {
	conn   storageAdapter.StorageConnection
	prefix string
}

// NewStore creates a checkpoint store rooted at the given prefix.
func NewStore(conn storageAdapter.StorageConnection, prefix string) *Store {
	return &Store{conn: conn, prefix: prefix}
}

// WriteOffset records the planned input set of a micro-batch. It must be
// called before any sink output for that batch.
func (s *Store) WriteOffset(ctx context.Context, offset BatchOffset) error {
	data, err := json.Marshal(offset)
	if err != nil {
		return exception.NewStreamErrorf("checkpoint", "failed to marshal offset for batch %d", offset.BatchID, err)
	}
	key := s.offsetKey(offset.BatchID)
	if err := s.conn.Upload(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return exception.NewStreamErrorf("checkpoint", "failed to write offset for batch %d", offset.BatchID, err)
	}
	logger.Debugf("Wrote offset for batch %d (%d files).", offset.BatchID, len(offset.Files))
	return nil
}

// Commit seals a micro-batch after its sink output is complete. The source
// execution context is captured alongside so a restart can restore the
// reader without replaying the whole offset history.
func (s *Store) Commit(ctx context.Context, batchID int64, state map[string]interface{}) error {
	stateData, err := serialization.MarshalExecutionContext(state)
	if err != nil {
		return exception.NewStreamErrorf("checkpoint", "failed to marshal source state for batch %d", batchID, err)
	}
	data, err := json.Marshal(commitRecord{BatchID: batchID, CommittedAt: time.Now(), State: stateData})
	if err != nil {
		return exception.NewStreamErrorf("checkpoint", "failed to marshal commit for batch %d", batchID, err)
	}
	key := s.commitKey(batchID)
	if err := s.conn.Upload(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return exception.NewStreamErrorf("checkpoint", "failed to write commit for batch %d", batchID, err)
	}
	logger.Debugf("Committed batch %d.", batchID)
	return nil
}

// Restore reads the checkpoint location and reports the last committed batch
// plus any planned-but-uncommitted batch that must be replayed.
func (s *Store) Restore(ctx context.Context) (*RestoredState, error) {
	lastOffsetID, err := s.maxBatchID(ctx, offsetsDir)
	if err != nil {
		return nil, err
	}
	lastCommitID, err := s.maxBatchID(ctx, commitsDir)
	if err != nil {
		return nil, err
	}

	state := &RestoredState{LastCommittedBatchID: lastCommitID}
	if lastCommitID >= 0 {
		sourceState, err := s.readCommitState(ctx, lastCommitID)
		if err != nil {
			return nil, err
		}
		state.State = sourceState
	}
	if lastOffsetID > lastCommitID {
		pending, err := s.readOffset(ctx, lastOffsetID)
		if err != nil {
			return nil, err
		}
		state.Pending = pending
		logger.Infof("Checkpoint restore: batch %d was planned but not committed. It will be replayed.", lastOffsetID)
	} else if lastCommitID >= 0 {
		logger.Infof("Checkpoint restore: resuming after committed batch %d.", lastCommitID)
	}
	return state, nil
}

// CommittedFiles calls fn with the file set of every committed batch, in no
// particular order. It is used to rebuild the set of already processed input
// files at startup.
func (s *Store) CommittedFiles(ctx context.Context, fn func(file string) error) error {
	return s.conn.ListObjects(ctx, path.Join(s.prefix, commitsDir)+"/", func(info storageAdapter.ObjectInfo) error {
		batchID, ok := parseBatchID(info.Key)
		if !ok {
			return nil
		}
		offset, err := s.readOffset(ctx, batchID)
		if err != nil {
			return err
		}
		for _, f := range offset.Files {
			if err := fn(f); err != nil {
				return err
			}
		}
		return nil
	})
}

// readCommitState reads the source execution context stored with a commit.
func (s *Store) readCommitState(ctx context.Context, batchID int64) (map[string]interface{}, error) {
	r, err := s.conn.Download(ctx, s.commitKey(batchID))
	if err != nil {
		return nil, exception.NewStreamErrorf("checkpoint", "failed to read commit for batch %d", batchID, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, exception.NewStreamErrorf("checkpoint", "failed to read commit data for batch %d", batchID, err)
	}
	var record commitRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, exception.NewStreamErrorf("checkpoint", "failed to unmarshal commit for batch %d", batchID, err)
	}

	var state map[string]interface{}
	if err := serialization.UnmarshalExecutionContext(record.State, &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Store) readOffset(ctx context.Context, batchID int64) (*BatchOffset, error) {
	r, err := s.conn.Download(ctx, s.offsetKey(batchID))
	if err != nil {
		return nil, exception.NewStreamErrorf("checkpoint", "failed to read offset for batch %d", batchID, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, exception.NewStreamErrorf("checkpoint", "failed to read offset data for batch %d", batchID, err)
	}
	var offset BatchOffset
	if err := json.Unmarshal(data, &offset); err != nil {
		return nil, exception.NewStreamErrorf("checkpoint", "failed to unmarshal offset for batch %d", batchID, err)
	}
	return &offset, nil
}

func (s *Store) maxBatchID(ctx context.Context, dir string) (int64, error) {
	maxID := int64(-1)
	err := s.conn.ListObjects(ctx, path.Join(s.prefix, dir)+"/", func(info storageAdapter.ObjectInfo) error {
		if id, ok := parseBatchID(info.Key); ok && id > maxID {
			maxID = id
		}
		return nil
	})
	if err != nil {
		return -1, exception.NewStreamErrorf("checkpoint", "failed to scan checkpoint directory '%s'", dir, err)
	}
	return maxID, nil
}

func (s *Store) offsetKey(batchID int64) string {
	return path.Join(s.prefix, offsetsDir, strconv.FormatInt(batchID, 10)+".json")
}

func (s *Store) commitKey(batchID int64) string {
	return path.Join(s.prefix, commitsDir, strconv.FormatInt(batchID, 10)+".json")
}

// parseBatchID extracts the numeric batch ID from a checkpoint key such as
// "checkpoints/offsets/12.json".
func parseBatchID(key string) (int64, bool) {
	base := path.Base(key)
	base = strings.TrimSuffix(base, ".json")
	id, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
