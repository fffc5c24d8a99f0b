package indexstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hearth-labs/corpusqa/internal/blobstore"
	"github.com/hearth-labs/corpusqa/internal/model"
	appErr "github.com/hearth-labs/corpusqa/internal/pkg/errors"
	"github.com/hearth-labs/corpusqa/internal/vectorindex"
)

func newTestStore(t *testing.T) (*Store, blobstore.Store) {
	t.Helper()
	blob := blobstore.NewMemory()
	store, err := New(blob, "idx")
	require.NoError(t, err)
	return store, blob
}

func buildIndex(t *testing.T, texts ...string) *vectorindex.Flat {
	t.Helper()
	index := vectorindex.NewFlat()
	for i, text := range texts {
		require.NoError(t, index.Insert([]vectorindex.Entry{{
			Chunk:  model.Chunk{DocumentID: "doc", Index: i, Text: text},
			Vector: []float32{float32(i + 1), 1, 0},
		}}))
	}
	return index
}

func TestStore_SaveLoadRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	snap := &Snapshot{
		EmbedderModel: "fake/test-embed",
		Index:         buildIndex(t, "first", "second", "third"),
	}
	handle, err := store.Save(ctx, snap)
	require.NoError(t, err)
	require.NotEmpty(t, handle)
	require.NotEmpty(t, snap.ID)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, snap.ID, loaded.ID)
	require.Equal(t, "fake/test-embed", loaded.EmbedderModel)
	require.Equal(t, 3, loaded.Index.Size())
	require.Equal(t, 3, loaded.Index.Dimension())

	got := loaded.Index.Entries()
	require.Equal(t, "first", got[0].Chunk.Text)
	require.Equal(t, "third", got[2].Chunk.Text)
	require.WithinDuration(t, snap.CreatedAt, loaded.CreatedAt, time.Second)
}

func TestStore_LoadWithoutSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, appErr.ErrSnapshotNotFound)
}

func TestStore_LoadHandleMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.LoadHandle(context.Background(), "snapshots/nope.json.zst")
	require.ErrorIs(t, err, appErr.ErrSnapshotNotFound)
}

func TestStore_CorruptBlob(t *testing.T) {
	store, blob := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, blob.Put(ctx, "idx/snapshots/bad.json.zst", []byte("not zstd at all")))
	require.NoError(t, blob.Put(ctx, "idx/CURRENT", []byte("snapshots/bad.json.zst")))

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, appErr.ErrSnapshotCorrupt)
	require.NotErrorIs(t, err, appErr.ErrSnapshotNotFound)
}

func TestStore_PointerSwapKeepsOldSnapshotReadable(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := &Snapshot{EmbedderModel: "m", Index: buildIndex(t, "old")}
	firstHandle, err := store.Save(ctx, first)
	require.NoError(t, err)

	second := &Snapshot{EmbedderModel: "m", Index: buildIndex(t, "new", "newer")}
	_, err = store.Save(ctx, second)
	require.NoError(t, err)

	current, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, current.Index.Size())

	// The superseded snapshot stays loadable by handle.
	old, err := store.LoadHandle(ctx, firstHandle)
	require.NoError(t, err)
	require.Equal(t, 1, old.Index.Size())
}

func TestStore_EmptyIndexRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, &Snapshot{EmbedderModel: "m", Index: vectorindex.NewFlat()})
	require.NoError(t, err)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, loaded.Index.Size())
}

func TestStore_ConcurrentSaveLoad(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, &Snapshot{EmbedderModel: "m", Index: buildIndex(t, "seed")})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				snap, err := store.Load(ctx)
				require.NoError(t, err)
				require.GreaterOrEqual(t, snap.Index.Size(), 1)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		_, err := store.Save(ctx, &Snapshot{EmbedderModel: "m", Index: buildIndex(t, "a", "b")})
		require.NoError(t, err)
	}
	wg.Wait()
}
