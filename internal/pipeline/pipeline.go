package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hearth-labs/corpusqa/internal/ai"
	"github.com/hearth-labs/corpusqa/internal/assembler"
	"github.com/hearth-labs/corpusqa/internal/chunker"
	"github.com/hearth-labs/corpusqa/internal/history"
	"github.com/hearth-labs/corpusqa/internal/indexstore"
	"github.com/hearth-labs/corpusqa/internal/model"
	appErr "github.com/hearth-labs/corpusqa/internal/pkg/errors"
	"github.com/hearth-labs/corpusqa/internal/queryproc"
	"github.com/hearth-labs/corpusqa/internal/retriever"
	"github.com/hearth-labs/corpusqa/internal/vectorindex"
)

// Options tunes retrieval and ingest behavior.
type Options struct {
	TopK           int
	MinSimilarity  float32
	ContextBudget  int
	RequireContext bool
	Hybrid         bool
	MultiQuery     bool
	BatchSize      int
	MaxConcurrency int
}

func (o *Options) fillDefaults() {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.ContextBudget <= 0 {
		o.ContextBudget = 8000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 16
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 4
	}
}

// QueryOptions overrides retrieval tuning for a single request. Zero values
// fall back to the configured defaults; MinSimilarity is a pointer so an
// explicit 0 can disable a configured threshold.
type QueryOptions struct {
	K             int
	MinSimilarity *float32
}

// Deps carries the collaborators a Pipeline orchestrates. Query and History
// are optional.
type Deps struct {
	Chunker *chunker.Chunker
	Manager *ai.Manager
	Store   *indexstore.Store
	Query   *queryproc.Processor
	History *history.Store
}

// Pipeline wires chunking, embedding, indexing, retrieval and generation
// into the ingest and query flows. The active snapshot is swapped atomically
// so queries in flight keep the snapshot they started with.
type Pipeline struct {
	chunker   *chunker.Chunker
	manager   *ai.Manager
	store     *indexstore.Store
	query     *queryproc.Processor
	history   *history.Store
	retriever *retriever.Retriever
	assembler *assembler.Assembler
	opts      Options

	active atomic.Pointer[indexstore.Snapshot]
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Chunker == nil || deps.Manager == nil || deps.Store == nil {
		return nil, fmt.Errorf("%w: chunker, manager and store are required", appErr.ErrInvalidConfig)
	}
	opts.fillDefaults()
	return &Pipeline{
		chunker:   deps.Chunker,
		manager:   deps.Manager,
		store:     deps.Store,
		query:     deps.Query,
		history:   deps.History,
		retriever: retriever.New(deps.Manager.Embedder()),
		assembler: assembler.New(opts.ContextBudget),
		opts:      opts,
	}, nil
}

// LoadActive restores the persisted snapshot as the active one. Returns
// ErrSnapshotNotFound when nothing has been ingested yet.
func (p *Pipeline) LoadActive(ctx context.Context) error {
	snap, err := p.store.Load(ctx)
	if err != nil {
		return err
	}
	p.active.Store(snap)
	return nil
}

// ActiveSnapshot returns the snapshot queries currently run against, nil if
// none is loaded.
func (p *Pipeline) ActiveSnapshot() *indexstore.Snapshot {
	return p.active.Load()
}

// Ingest chunks, embeds and indexes the documents, persists the result as a
// new snapshot and makes it active. On any failure the previous snapshot
// stays active and persisted.
func (p *Pipeline) Ingest(ctx context.Context, docs []model.Document) (*model.IngestResult, error) {
	chunks, err := p.chunkAll(docs)
	if err != nil {
		return nil, stageErr("chunking", err)
	}
	vectors, err := p.embedAll(ctx, chunks)
	if err != nil {
		return nil, stageErr("embedding", mapEmbedErr(err))
	}

	index := vectorindex.NewFlat()
	entries := make([]vectorindex.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vectorindex.Entry{Chunk: c, Vector: vectors[i]}
	}
	if err := index.Insert(entries); err != nil {
		return nil, stageErr("indexing", err)
	}

	snap := &indexstore.Snapshot{
		EmbedderModel: p.manager.EmbeddingModelName(),
		Index:         index,
	}
	handle, err := p.store.Save(ctx, snap)
	if err != nil {
		return nil, stageErr("persisting", err)
	}
	p.active.Store(snap)

	logutil.GetLogger(ctx).Info("ingest complete",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.String("snapshot", handle),
	)
	return &model.IngestResult{Handle: handle, Entries: len(chunks)}, nil
}

func (p *Pipeline) chunkAll(docs []model.Document) ([]model.Chunk, error) {
	var chunks []model.Chunk
	for _, doc := range docs {
		cs, err := p.chunker.Chunk(doc)
		if err != nil {
			return nil, fmt.Errorf("document %q: %w", doc.ID, err)
		}
		chunks = append(chunks, cs...)
	}
	return chunks, nil
}

func (p *Pipeline) embedAll(ctx context.Context, chunks []model.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(p.opts.MaxConcurrency)
	for start := 0; start < len(chunks); start += p.opts.BatchSize {
		end := start + p.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end
		grp.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Text
			}
			vs, err := p.manager.EmbedBatch(gctx, texts, ai.TaskTypeDocument)
			if err != nil {
				return fmt.Errorf("batch [%d,%d): %w", start, end, err)
			}
			copy(vectors[start:end], vs)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Query retrieves context for the question and generates a grounded answer.
func (p *Pipeline) Query(ctx context.Context, question string, qopts QueryOptions) (*model.Answer, error) {
	snap := p.active.Load()
	if snap == nil {
		return nil, appErr.ErrNoSnapshot
	}

	results, err := p.retrieve(ctx, snap, question, p.retrieverOptions(qopts))
	if err != nil {
		return nil, stageErr("retrieving", mapEmbedErr(err))
	}

	contextText, used, hadContext := p.assembler.Assemble(results)
	if !hadContext && p.opts.RequireContext {
		return nil, fmt.Errorf("no relevant context found for %q and grounding is required", question)
	}

	// Respect cancellation before spending a generation call.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var text string
	if hadContext {
		text, err = p.manager.Answer(ctx, question, contextText)
	} else {
		text, err = p.manager.AnswerWithoutContext(ctx, question)
	}
	if err != nil {
		return nil, stageErr("generating", mapGenerateErr(err))
	}

	answer := &model.Answer{
		Question:   question,
		Answer:     text,
		Sources:    toSources(used),
		HadContext: hadContext,
	}
	p.record(ctx, answer)
	return answer, nil
}

func (p *Pipeline) retrieverOptions(qopts QueryOptions) retriever.Options {
	ropts := retriever.Options{K: p.opts.TopK, MinSimilarity: p.opts.MinSimilarity}
	if qopts.K > 0 {
		ropts.K = qopts.K
	}
	if qopts.MinSimilarity != nil {
		ropts.MinSimilarity = *qopts.MinSimilarity
	}
	return ropts
}

func (p *Pipeline) retrieve(ctx context.Context, snap *indexstore.Snapshot, question string, ropts retriever.Options) ([]model.ScoredChunk, error) {
	if p.opts.MultiQuery && p.query != nil {
		return p.retrieveMulti(ctx, snap, question, ropts)
	}
	if p.opts.Hybrid {
		return p.retriever.RetrieveHybrid(ctx, snap, question, ropts)
	}
	return p.retriever.Retrieve(ctx, snap, question, ropts)
}

func (p *Pipeline) retrieveMulti(ctx context.Context, snap *indexstore.Snapshot, question string, ropts retriever.Options) ([]model.ScoredChunk, error) {
	analysis := p.query.Analyze(question)
	queries := p.query.SearchQueries(analysis)
	logutil.GetLogger(ctx).Debug("multi-query retrieval",
		zap.String("intent", string(analysis.Intent)),
		zap.Int("queries", len(queries)),
	)

	seen := make(map[string]bool)
	var merged []model.ScoredChunk
	for _, q := range queries {
		results, err := p.retriever.Retrieve(ctx, snap, q, ropts)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			key := fmt.Sprintf("%s#%d", res.Chunk.DocumentID, res.Chunk.Index)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, res)
		}
	}
	// The assembler re-sorts by score, so merged order only matters for ties.
	if len(merged) > ropts.K {
		merged = merged[:ropts.K]
	}
	return merged, nil
}

func (p *Pipeline) record(ctx context.Context, answer *model.Answer) {
	if p.history == nil {
		return
	}
	_, err := p.history.Append(ctx, history.Record{
		Question:   answer.Question,
		Answer:     answer.Answer,
		Sources:    answer.Sources,
		HadContext: answer.HadContext,
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("append qa history failed", zap.Error(err))
	}
}

func toSources(used []model.ScoredChunk) []model.Source {
	if len(used) == 0 {
		return nil
	}
	out := make([]model.Source, len(used))
	for i, res := range used {
		out[i] = model.Source{
			DocumentID: res.Chunk.DocumentID,
			ChunkIndex: res.Chunk.Index,
			Score:      res.Score,
		}
	}
	return out
}

func stageErr(stage string, err error) error {
	return fmt.Errorf("%s: %w", stage, err)
}

func mapEmbedErr(err error) error {
	switch {
	case errors.Is(err, ai.ErrUnavailable):
		return fmt.Errorf("%w: %v", appErr.ErrEmbeddingUnavailable, err)
	case errors.Is(err, ai.ErrInputTooLarge):
		return fmt.Errorf("%w: %v", appErr.ErrInputTooLarge, err)
	default:
		return err
	}
}

func mapGenerateErr(err error) error {
	switch {
	case errors.Is(err, ai.ErrUnavailable):
		return fmt.Errorf("%w: %v", appErr.ErrGenerationUnavailable, err)
	case errors.Is(err, ai.ErrRefused):
		return fmt.Errorf("%w: %v", appErr.ErrGenerationRefused, err)
	case errors.Is(err, ai.ErrInputTooLarge):
		return fmt.Errorf("%w: %v", appErr.ErrInputTooLarge, err)
	default:
		return err
	}
}
