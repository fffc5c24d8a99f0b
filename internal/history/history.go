package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/hearth-labs/corpusqa/internal/blobstore"
	"github.com/hearth-labs/corpusqa/internal/model"
)

// Record is one answered question, persisted for audit and later analysis.
type Record struct {
	Timestamp  time.Time      `json:"timestamp"`
	Question   string         `json:"question"`
	Answer     string         `json:"answer"`
	Sources    []model.Source `json:"sources,omitempty"`
	HadContext bool           `json:"had_context"`
}

// Store appends QA records to a blob store, one JSON object per record.
type Store struct {
	blob   blobstore.Store
	prefix string
}

func New(blob blobstore.Store, prefix string) *Store {
	if prefix == "" {
		prefix = "qa_history"
	}
	return &Store{blob: blob, prefix: prefix}
}

// Append writes the record and returns its key. Callers treat failures as
// non-fatal; an answer is never withheld because history could not be
// written.
func (s *Store) Append(ctx context.Context, rec Record) (string, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	key := fmt.Sprintf("%s/%s_%s.json",
		s.prefix,
		rec.Timestamp.UTC().Format("20060102T150405"),
		uuid.NewString()[:8],
	)
	if err := s.blob.Put(ctx, key, raw); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	logutil.GetLogger(ctx).Debug("qa history appended", zap.String("key", key))
	return key, nil
}
