package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/hearth-labs/corpusqa/internal/ai"
	"github.com/hearth-labs/corpusqa/internal/indexstore"
	"github.com/hearth-labs/corpusqa/internal/model"
	appErr "github.com/hearth-labs/corpusqa/internal/pkg/errors"
)

// Options tunes a single retrieval. MinSimilarity drops weak matches; a
// query where nothing clears the threshold returns an empty result, not an
// error.
type Options struct {
	K             int
	MinSimilarity float32
}

// Retriever embeds questions and queries a snapshot's index. The snapshot is
// passed explicitly per call so concurrent queries can run against different
// snapshots.
type Retriever struct {
	embedder ai.IEmbedder
}

func New(embedder ai.IEmbedder) *Retriever {
	return &Retriever{embedder: embedder}
}

func (r *Retriever) Retrieve(ctx context.Context, snap *indexstore.Snapshot, question string, opts Options) ([]model.ScoredChunk, error) {
	if err := r.checkEmbedder(snap); err != nil {
		return nil, err
	}
	if opts.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", appErr.ErrInvalidConfig)
	}
	if snap.Index.Size() == 0 {
		return nil, nil
	}
	vector, err := r.embedder.Embed(ctx, question, ai.TaskTypeQuery)
	if err != nil {
		return nil, err
	}
	results, err := snap.Index.Search(vector, opts.K)
	if err != nil {
		return nil, err
	}
	if opts.MinSimilarity > 0 {
		filtered := results[:0]
		for _, res := range results {
			if res.Score >= opts.MinSimilarity {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}
	logutil.GetLogger(ctx).Debug("retrieval done",
		zap.Int("k", opts.K),
		zap.Int("results", len(results)),
		zap.Float32("min_similarity", opts.MinSimilarity),
	)
	return results, nil
}

// RetrieveKeyword scans the snapshot for chunks containing the query as a
// case-insensitive substring. Matches keep insertion order and carry no
// similarity score.
func (r *Retriever) RetrieveKeyword(snap *indexstore.Snapshot, query string, k int) []model.ScoredChunk {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" || k <= 0 {
		return nil
	}
	var matches []model.ScoredChunk
	for _, entry := range snap.Index.Entries() {
		if strings.Contains(strings.ToLower(entry.Chunk.Text), needle) {
			matches = append(matches, model.ScoredChunk{Chunk: entry.Chunk})
			if len(matches) >= k {
				break
			}
		}
	}
	return matches
}

// RetrieveHybrid merges semantic and keyword results, semantic first,
// deduplicated by chunk identity, truncated to k.
func (r *Retriever) RetrieveHybrid(ctx context.Context, snap *indexstore.Snapshot, question string, opts Options) ([]model.ScoredChunk, error) {
	semantic, err := r.Retrieve(ctx, snap, question, opts)
	if err != nil {
		return nil, err
	}
	keyword := r.RetrieveKeyword(snap, question, opts.K)

	seen := make(map[string]bool, len(semantic))
	combined := make([]model.ScoredChunk, 0, len(semantic)+len(keyword))
	for _, res := range append(semantic, keyword...) {
		key := fmt.Sprintf("%s#%d", res.Chunk.DocumentID, res.Chunk.Index)
		if seen[key] {
			continue
		}
		seen[key] = true
		combined = append(combined, res)
	}
	if len(combined) > opts.K {
		combined = combined[:opts.K]
	}
	return combined, nil
}

func (r *Retriever) checkEmbedder(snap *indexstore.Snapshot) error {
	if snap == nil {
		return appErr.ErrNoSnapshot
	}
	got := r.embedder.ModelName()
	if snap.EmbedderModel != "" && snap.EmbedderModel != got {
		return fmt.Errorf("%w: snapshot built with %q, query embedder is %q",
			appErr.ErrEmbedderMismatch, snap.EmbedderModel, got)
	}
	return nil
}
