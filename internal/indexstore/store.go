// Package indexstore persists vector-index snapshots to a blob store. A
// snapshot is written to a fresh key and becomes visible only when the
// CURRENT pointer is updated, so readers always load a complete snapshot.
package indexstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/hearth-labs/corpusqa/internal/blobstore"
	appErr "github.com/hearth-labs/corpusqa/internal/pkg/errors"
	"github.com/hearth-labs/corpusqa/internal/vectorindex"
)

const (
	FormatVersion  = 1
	currentPointer = "CURRENT"
)

// Snapshot is a complete, immutable index state. EmbedderModel records the
// identity of the embedder that produced the vectors; retrieval must verify
// it before querying.
type Snapshot struct {
	ID            string
	EmbedderModel string
	CreatedAt     time.Time
	Index         *vectorindex.Flat
}

type snapshotFile struct {
	FormatVersion int                 `json:"format_version"`
	ID            string              `json:"id"`
	EmbedderModel string              `json:"embedder_model"`
	Dimension     int                 `json:"dimension"`
	EntryCount    int                 `json:"entry_count"`
	CreatedAt     time.Time           `json:"created_at"`
	Entries       []vectorindex.Entry `json:"entries"`
}

type Store struct {
	blob    blobstore.Store
	prefix  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func New(blob blobstore.Store, prefix string) (*Store, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Store{
		blob:    blob,
		prefix:  prefix,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Save persists the snapshot and moves the CURRENT pointer to it. The
// returned handle can be passed to LoadHandle.
func (s *Store) Save(ctx context.Context, snap *Snapshot) (string, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	entries := snap.Index.Entries()
	file := snapshotFile{
		FormatVersion: FormatVersion,
		ID:            snap.ID,
		EmbedderModel: snap.EmbedderModel,
		Dimension:     snap.Index.Dimension(),
		EntryCount:    len(entries),
		CreatedAt:     snap.CreatedAt,
		Entries:       entries,
	}
	raw, err := json.Marshal(file)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	compressed := s.encoder.EncodeAll(raw, nil)

	handle := path.Join("snapshots", snap.ID+".json.zst")
	if err := s.blob.Put(ctx, s.key(handle), compressed); err != nil {
		return "", fmt.Errorf("write snapshot blob: %w", err)
	}
	if err := s.blob.Put(ctx, s.key(currentPointer), []byte(handle)); err != nil {
		return "", fmt.Errorf("update snapshot pointer: %w", err)
	}
	logutil.GetLogger(ctx).Info("snapshot saved",
		zap.String("handle", handle),
		zap.Int("entries", len(entries)),
		zap.Int("raw_bytes", len(raw)),
		zap.Int("compressed_bytes", len(compressed)),
	)
	return handle, nil
}

// Load loads the snapshot the CURRENT pointer refers to.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	pointer, err := s.blob.Get(ctx, s.key(currentPointer))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: no snapshot pointer", appErr.ErrSnapshotNotFound)
		}
		return nil, err
	}
	return s.LoadHandle(ctx, string(pointer))
}

// LoadHandle loads a specific snapshot. Missing blobs map to
// ErrSnapshotNotFound; undecodable or inconsistent blobs map to
// ErrSnapshotCorrupt so callers can distinguish "rebuild" from "retry".
func (s *Store) LoadHandle(ctx context.Context, handle string) (*Snapshot, error) {
	compressed, err := s.blob.Get(ctx, s.key(handle))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", appErr.ErrSnapshotNotFound, handle)
		}
		return nil, err
	}
	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress %s: %v", appErr.ErrSnapshotCorrupt, handle, err)
	}
	var file snapshotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", appErr.ErrSnapshotCorrupt, handle, err)
	}
	if file.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", appErr.ErrSnapshotCorrupt, file.FormatVersion)
	}
	if file.EntryCount != len(file.Entries) {
		return nil, fmt.Errorf("%w: entry count %d does not match %d entries",
			appErr.ErrSnapshotCorrupt, file.EntryCount, len(file.Entries))
	}
	for _, entry := range file.Entries {
		if len(entry.Vector) != file.Dimension {
			return nil, fmt.Errorf("%w: entry %s#%d has dimension %d, snapshot records %d",
				appErr.ErrSnapshotCorrupt, entry.Chunk.DocumentID, entry.Chunk.Index, len(entry.Vector), file.Dimension)
		}
	}

	index := vectorindex.NewFlat()
	if len(file.Entries) > 0 {
		if err := index.Insert(file.Entries); err != nil {
			return nil, fmt.Errorf("%w: rebuild index: %v", appErr.ErrSnapshotCorrupt, err)
		}
	}
	return &Snapshot{
		ID:            file.ID,
		EmbedderModel: file.EmbedderModel,
		CreatedAt:     file.CreatedAt,
		Index:         index,
	}, nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
