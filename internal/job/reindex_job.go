package job

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/hearth-labs/corpusqa/internal/loader"
	"github.com/hearth-labs/corpusqa/internal/pipeline"
)

// ReindexJob re-ingests a document directory on a schedule so the snapshot
// tracks an evolving corpus with no manual step.
type ReindexJob struct {
	pipe *pipeline.Pipeline
	dir  string
}

func NewReindexJob(pipe *pipeline.Pipeline, dir string) *ReindexJob {
	return &ReindexJob{pipe: pipe, dir: dir}
}

func (j *ReindexJob) Name() string {
	return "reindex"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	docs, err := loader.LoadDir(j.dir)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	result, err := j.pipe.Ingest(ctx, docs)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	logutil.GetLogger(ctx).Info("reindex done",
		zap.String("dir", j.dir),
		zap.Int("documents", len(docs)),
		zap.Int("entries", result.Entries),
		zap.String("snapshot", result.Handle),
	)
	return nil
}
