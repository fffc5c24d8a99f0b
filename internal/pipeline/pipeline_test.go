package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearth-labs/corpusqa/internal/ai"
	"github.com/hearth-labs/corpusqa/internal/blobstore"
	"github.com/hearth-labs/corpusqa/internal/chunker"
	"github.com/hearth-labs/corpusqa/internal/indexstore"
	"github.com/hearth-labs/corpusqa/internal/model"
	appErr "github.com/hearth-labs/corpusqa/internal/pkg/errors"
	"github.com/hearth-labs/corpusqa/internal/queryproc"
)

func testManager(t *testing.T) *ai.Manager {
	t.Helper()
	provider, err := ai.NewProvider("fake", nil)
	require.NoError(t, err)
	embedProvider, err := ai.NewEmbedProvider("fake", nil)
	require.NoError(t, err)
	return ai.NewManager(
		ai.NewGenerator(provider, "fake-gen"),
		ai.NewEmbedder(embedProvider, "fake-embed"),
		ai.ManagerConfig{},
	)
}

func testPipeline(t *testing.T, blob blobstore.Store, opts Options) *Pipeline {
	t.Helper()
	ck, err := chunker.New(chunker.Config{MaxChars: 200, OverlapChars: 20})
	require.NoError(t, err)
	store, err := indexstore.New(blob, "idx")
	require.NoError(t, err)
	pipe, err := New(Deps{
		Chunker: ck,
		Manager: testManager(t),
		Store:   store,
		Query:   queryproc.New(),
	}, opts)
	require.NoError(t, err)
	return pipe
}

func cityDocs() []model.Document {
	return []model.Document{
		{ID: "france.md", Text: "Paris is the capital of France."},
		{ID: "germany.md", Text: "Berlin is the capital of Germany."},
	}
}

func TestPipeline_IngestThenQuery(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{})
	ctx := context.Background()

	result, err := pipe.Ingest(ctx, cityDocs())
	require.NoError(t, err)
	require.Equal(t, 2, result.Entries)
	require.NotEmpty(t, result.Handle)

	answer, err := pipe.Query(ctx, "What is the capital of France?", QueryOptions{})
	require.NoError(t, err)
	require.True(t, answer.HadContext)
	require.Contains(t, answer.Answer, "Paris")
	require.NotEmpty(t, answer.Sources)
	require.Equal(t, "france.md", answer.Sources[0].DocumentID)
}

func TestPipeline_QueryWithoutSnapshot(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{})
	_, err := pipe.Query(context.Background(), "anything", QueryOptions{})
	require.ErrorIs(t, err, appErr.ErrNoSnapshot)
}

func TestPipeline_EmptyCorpusAnswersWithoutContext(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{})
	ctx := context.Background()

	_, err := pipe.Ingest(ctx, nil)
	require.NoError(t, err)

	answer, err := pipe.Query(ctx, "What is the capital of France?", QueryOptions{})
	require.NoError(t, err)
	require.False(t, answer.HadContext)
	require.Empty(t, answer.Sources)
	require.Contains(t, answer.Answer, "don't have enough information")
}

func TestPipeline_RequireContextFailsClosed(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{RequireContext: true})
	ctx := context.Background()

	_, err := pipe.Ingest(ctx, nil)
	require.NoError(t, err)

	_, err = pipe.Query(ctx, "What is the capital of France?", QueryOptions{})
	require.Error(t, err)
}

func TestPipeline_MinSimilarityYieldsNoContext(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{MinSimilarity: 0.5})
	ctx := context.Background()

	_, err := pipe.Ingest(ctx, []model.Document{
		{ID: "zoo.md", Text: "completely unrelated zebra text"},
	})
	require.NoError(t, err)

	answer, err := pipe.Query(ctx, "What is the capital of France?", QueryOptions{})
	require.NoError(t, err)
	require.False(t, answer.HadContext)
}

func TestPipeline_SnapshotSurvivesRestart(t *testing.T) {
	blob := blobstore.NewMemory()
	ctx := context.Background()

	first := testPipeline(t, blob, Options{})
	_, err := first.Ingest(ctx, cityDocs())
	require.NoError(t, err)

	second := testPipeline(t, blob, Options{})
	require.NoError(t, second.LoadActive(ctx))

	answer, err := second.Query(ctx, "What is the capital of Germany?", QueryOptions{})
	require.NoError(t, err)
	require.True(t, answer.HadContext)
	require.Contains(t, answer.Answer, "Berlin")
}

func TestPipeline_EmbedderMismatchFailsClosed(t *testing.T) {
	blob := blobstore.NewMemory()
	ctx := context.Background()

	pipe := testPipeline(t, blob, Options{})
	_, err := pipe.Ingest(ctx, cityDocs())
	require.NoError(t, err)

	// Rewrite the persisted snapshot as if another embedder had built it.
	store, err := indexstore.New(blob, "idx")
	require.NoError(t, err)
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	snap.EmbedderModel = "other/embedder"
	snap.ID = ""
	_, err = store.Save(ctx, snap)
	require.NoError(t, err)

	require.NoError(t, pipe.LoadActive(ctx))
	_, err = pipe.Query(ctx, "What is the capital of France?", QueryOptions{})
	require.ErrorIs(t, err, appErr.ErrEmbedderMismatch)
}

func TestPipeline_MultiQueryRetrieval(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{MultiQuery: true})
	ctx := context.Background()

	_, err := pipe.Ingest(ctx, cityDocs())
	require.NoError(t, err)

	answer, err := pipe.Query(ctx, "What is the capital of France?", QueryOptions{})
	require.NoError(t, err)
	require.True(t, answer.HadContext)
	require.Contains(t, answer.Answer, "Paris")
}

func TestPipeline_CancelledContextSkipsGeneration(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{})
	_, err := pipe.Ingest(context.Background(), cityDocs())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pipe.Query(ctx, "What is the capital of France?", QueryOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_QueriesDuringIngest(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{})
	ctx := context.Background()

	_, err := pipe.Ingest(ctx, cityDocs())
	require.NoError(t, err)

	errCh := make(chan error, 64)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				answer, err := pipe.Query(ctx, "What is the capital of France?", QueryOptions{})
				if err != nil {
					errCh <- err
					return
				}
				if !answer.HadContext {
					errCh <- fmt.Errorf("query lost context mid-ingest")
					return
				}
			}
		}()
	}
	for i := 0; i < 5; i++ {
		if _, err := pipe.Ingest(ctx, cityDocs()); err != nil {
			errCh <- err
			break
		}
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
}

func TestPipeline_PerRequestKOverridesDefault(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{TopK: 5})
	ctx := context.Background()

	_, err := pipe.Ingest(ctx, cityDocs())
	require.NoError(t, err)

	answer, err := pipe.Query(ctx, "What is the capital of France?", QueryOptions{K: 1})
	require.NoError(t, err)
	require.Len(t, answer.Sources, 1)
	require.Equal(t, "france.md", answer.Sources[0].DocumentID)
}

func TestPipeline_PerRequestThresholdOverridesDefault(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{})
	ctx := context.Background()

	_, err := pipe.Ingest(ctx, cityDocs())
	require.NoError(t, err)

	// A threshold no chunk clears turns the request into a no-context answer.
	threshold := float32(0.99)
	answer, err := pipe.Query(ctx, "What is the capital of France?", QueryOptions{MinSimilarity: &threshold})
	require.NoError(t, err)
	require.False(t, answer.HadContext)

	// An explicit zero disables a configured threshold.
	strict := testPipeline(t, blobstore.NewMemory(), Options{MinSimilarity: 0.99})
	_, err = strict.Ingest(ctx, cityDocs())
	require.NoError(t, err)
	zero := float32(0)
	answer, err = strict.Query(ctx, "What is the capital of France?", QueryOptions{MinSimilarity: &zero})
	require.NoError(t, err)
	require.True(t, answer.HadContext)
}

func TestPipeline_LargeDocumentIsChunked(t *testing.T) {
	pipe := testPipeline(t, blobstore.NewMemory(), Options{})
	ctx := context.Background()

	long := ""
	for i := 0; i < 60; i++ {
		long += fmt.Sprintf("Fact number %d about the topic. ", i)
	}
	result, err := pipe.Ingest(ctx, []model.Document{{ID: "long.md", Text: long}})
	require.NoError(t, err)
	require.Greater(t, result.Entries, 1)
}
