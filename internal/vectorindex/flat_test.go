package vectorindex

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearth-labs/corpusqa/internal/model"
)

func entry(doc string, idx int, vec ...float32) Entry {
	return Entry{
		Chunk:  model.Chunk{DocumentID: doc, Index: idx, Text: doc},
		Vector: vec,
	}
}

func TestFlatSearch_RanksByCosine(t *testing.T) {
	idx := NewFlat()
	err := idx.Insert([]Entry{
		entry("x", 0, 1, 0, 0),
		entry("y", 0, 0, 1, 0),
		entry("xy", 0, 1, 1, 0),
	})
	require.NoError(t, err)

	results, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "x", results[0].Chunk.DocumentID)
	require.InDelta(t, 1.0, results[0].Score, 1e-5)
	require.Equal(t, "xy", results[1].Chunk.DocumentID)
	require.InDelta(t, 0.7071, results[1].Score, 1e-3)
}

func TestFlatSearch_NormalizesMagnitude(t *testing.T) {
	idx := NewFlat()
	// Same direction, different magnitude: identical score.
	require.NoError(t, idx.Insert([]Entry{
		entry("small", 0, 1, 1),
		entry("big", 0, 100, 100),
	}))

	results, err := idx.Search([]float32{3, 3}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.InDelta(t, results[0].Score, results[1].Score, 1e-6)
}

func TestFlatSearch_StableTieOrder(t *testing.T) {
	idx := NewFlat()
	require.NoError(t, idx.Insert([]Entry{
		entry("first", 0, 1, 0),
		entry("second", 0, 1, 0),
		entry("third", 0, 1, 0),
	}))

	results, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Equal(t, "first", results[0].Chunk.DocumentID)
	require.Equal(t, "second", results[1].Chunk.DocumentID)
	require.Equal(t, "third", results[2].Chunk.DocumentID)
}

func TestFlatSearch_KLargerThanSize(t *testing.T) {
	idx := NewFlat()
	require.NoError(t, idx.Insert([]Entry{entry("only", 0, 1, 0)}))

	results, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestFlatSearch_InvalidK(t *testing.T) {
	idx := NewFlat()
	require.NoError(t, idx.Insert([]Entry{entry("only", 0, 1, 0)}))

	_, err := idx.Search([]float32{1, 0}, 0)
	require.ErrorIs(t, err, ErrInvalidK)
}

func TestFlatSearch_EmptyIndex(t *testing.T) {
	idx := NewFlat()
	results, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Nil(t, results)
}

func TestFlat_DimensionMismatch(t *testing.T) {
	idx := NewFlat()
	require.NoError(t, idx.Insert([]Entry{entry("a", 0, 1, 0, 0)}))

	err := idx.Insert([]Entry{entry("b", 0, 1, 0)})
	var dim *ErrDimensionMismatch
	require.True(t, errors.As(err, &dim))
	require.Equal(t, 3, dim.Expected)
	require.Equal(t, 2, dim.Actual)

	_, err = idx.Search([]float32{1, 0}, 1)
	require.True(t, errors.As(err, &dim))
}

func TestFlatInsert_RejectsEmptyVector(t *testing.T) {
	idx := NewFlat()
	err := idx.Insert([]Entry{{Chunk: model.Chunk{DocumentID: "a"}}})
	require.Error(t, err)
	require.Equal(t, 0, idx.Size())
}

func TestFlatInsert_DoesNotMutateCaller(t *testing.T) {
	vec := []float32{3, 4}
	idx := NewFlat()
	require.NoError(t, idx.Insert([]Entry{{Chunk: model.Chunk{DocumentID: "a"}, Vector: vec}}))
	require.Equal(t, []float32{3, 4}, vec)
}
