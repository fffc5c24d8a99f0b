// Package vectorindex provides an exact brute-force vector index over
// L2-normalized vectors. It is the reference similarity implementation:
// cosine similarity computed as a dot product, stable tie-breaks by
// insertion order.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hearth-labs/corpusqa/internal/model"
)

var ErrInvalidK = errors.New("k must be positive")

// ErrDimensionMismatch indicates a vector whose dimensionality differs from
// the index's.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Entry is one indexed chunk with its embedding. Entries are owned by the
// index once inserted.
type Entry struct {
	Chunk  model.Chunk `json:"chunk"`
	Vector []float32   `json:"vector"`
}

type indexState struct {
	dimension int
	entries   []Entry
}

// Flat is an exact nearest-neighbor index. It uses a copy-on-write state so
// concurrent searches never take a lock; writes are serialized.
type Flat struct {
	state   atomic.Value // holds *indexState
	writeMu sync.Mutex
}

func NewFlat() *Flat {
	f := &Flat{}
	f.state.Store(&indexState{})
	return f
}

func (f *Flat) getState() *indexState {
	return f.state.Load().(*indexState)
}

// Insert adds entries, normalizing each vector. The dimensionality of the
// first inserted vector fixes the index dimension.
func (f *Flat) Insert(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	old := f.getState()
	dimension := old.dimension
	next := make([]Entry, 0, len(old.entries)+len(entries))
	next = append(next, old.entries...)

	for _, entry := range entries {
		if len(entry.Vector) == 0 {
			return fmt.Errorf("entry %s#%d has no vector", entry.Chunk.DocumentID, entry.Chunk.Index)
		}
		if dimension == 0 {
			dimension = len(entry.Vector)
		}
		if len(entry.Vector) != dimension {
			return &ErrDimensionMismatch{Expected: dimension, Actual: len(entry.Vector)}
		}
		entry.Vector = normalizeCopy(entry.Vector)
		next = append(next, entry)
	}

	f.state.Store(&indexState{dimension: dimension, entries: next})
	return nil
}

// Search returns up to k entries by descending cosine similarity. Requesting
// more entries than the index holds returns them all. Equal scores keep
// insertion order.
func (f *Flat) Search(vector []float32, k int) ([]model.ScoredChunk, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	state := f.getState()
	if len(state.entries) == 0 {
		return nil, nil
	}
	if len(vector) != state.dimension {
		return nil, &ErrDimensionMismatch{Expected: state.dimension, Actual: len(vector)}
	}
	query := normalizeCopy(vector)

	results := make([]model.ScoredChunk, 0, len(state.entries))
	for _, entry := range state.entries {
		results = append(results, model.ScoredChunk{
			Chunk: entry.Chunk,
			Score: dot(query, entry.Vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (f *Flat) Size() int {
	return len(f.getState().entries)
}

func (f *Flat) Dimension() int {
	return f.getState().dimension
}

// Entries returns the current entries. The returned slice is shared and must
// be treated as read-only.
func (f *Flat) Entries() []Entry {
	return f.getState().entries
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

func normalizeCopy(v []float32) []float32 {
	var norm2 float64
	for _, x := range v {
		norm2 += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm2 == 0 {
		return out
	}
	inv := 1 / math.Sqrt(norm2)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
