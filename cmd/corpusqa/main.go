package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hearth-labs/corpusqa/internal/ai"
	"github.com/hearth-labs/corpusqa/internal/blobstore"
	"github.com/hearth-labs/corpusqa/internal/chunker"
	"github.com/hearth-labs/corpusqa/internal/config"
	"github.com/hearth-labs/corpusqa/internal/embedcache"
	"github.com/hearth-labs/corpusqa/internal/history"
	"github.com/hearth-labs/corpusqa/internal/indexstore"
	"github.com/hearth-labs/corpusqa/internal/job"
	"github.com/hearth-labs/corpusqa/internal/loader"
	"github.com/hearth-labs/corpusqa/internal/model"
	"github.com/hearth-labs/corpusqa/internal/pipeline"
	"github.com/hearth-labs/corpusqa/internal/queryproc"
	"github.com/hearth-labs/corpusqa/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "corpusqa",
		Short: "document corpus question answering",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	ingestCmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "chunk, embed and index a document directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(configPath)
			if err != nil {
				return err
			}
			return app.ingest(cmd.Context(), args[0])
		},
	}

	var askK int
	var askMinSimilarity float64
	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "answer a single question against the indexed corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(configPath)
			if err != nil {
				return err
			}
			qopts := pipeline.QueryOptions{K: askK}
			if cmd.Flags().Changed("min-similarity") {
				threshold := float32(askMinSimilarity)
				qopts.MinSimilarity = &threshold
			}
			return app.ask(cmd.Context(), strings.Join(args, " "), qopts)
		},
	}
	askCmd.Flags().IntVar(&askK, "k", 0, "number of chunks to retrieve (0 uses the configured default)")
	askCmd.Flags().Float64Var(&askMinSimilarity, "min-similarity", 0, "minimum cosine similarity for retrieved chunks")

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "interactive question answering session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(configPath)
			if err != nil {
				return err
			}
			return app.chat(cmd.Context())
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "run scheduled reindexing until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(configPath)
			if err != nil {
				return err
			}
			return app.watch(cmd.Context())
		},
	}

	rootCmd.AddCommand(ingestCmd, askCmd, chatCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg  *config.Config
	pipe *pipeline.Pipeline
}

func buildApp(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded",
		zap.String("provider", cfg.AI.Provider),
		zap.String("blob_store", cfg.BlobStore.Type),
	)

	blob, err := blobstore.New(blobstore.Config{Type: cfg.BlobStore.Type, Data: cfg.BlobStore.Data})
	if err != nil {
		return nil, fmt.Errorf("build blob store: %w", err)
	}
	store, err := indexstore.New(blob, cfg.BlobStore.SnapshotPrefix)
	if err != nil {
		return nil, fmt.Errorf("build index store: %w", err)
	}
	manager, err := buildManager(cfg)
	if err != nil {
		return nil, err
	}
	ck, err := chunker.New(chunker.Config{
		MaxChars:     cfg.Chunking.MaxChars,
		OverlapChars: *cfg.Chunking.OverlapChars,
	})
	if err != nil {
		return nil, fmt.Errorf("build chunker: %w", err)
	}

	deps := pipeline.Deps{
		Chunker: ck,
		Manager: manager,
		Store:   store,
		Query:   queryproc.New(),
	}
	if cfg.History.Enable {
		deps.History = history.New(blob, cfg.History.Prefix)
	}
	pipe, err := pipeline.New(deps, pipeline.Options{
		TopK:           cfg.Retrieval.TopK,
		MinSimilarity:  float32(cfg.Retrieval.MinSimilarity),
		ContextBudget:  cfg.Retrieval.ContextBudget,
		RequireContext: cfg.Retrieval.RequireContext,
		Hybrid:         cfg.Retrieval.Hybrid,
		MultiQuery:     cfg.Retrieval.MultiQuery,
		BatchSize:      cfg.Ingest.BatchSize,
		MaxConcurrency: cfg.Ingest.MaxConcurrency,
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, pipe: pipe}, nil
}

func buildManager(cfg *config.Config) (*ai.Manager, error) {
	gens, embs, err := buildBackends(cfg)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.AI.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.AI.RatePerSecond), 1)
	}
	gen := ai.WrapRetryToGenerator(ai.NewGroupGenerator(gens), ai.DefaultRetryConfig, limiter)
	emb := ai.WrapRetryToEmbedder(ai.NewGroupEmbedder(embs), ai.DefaultRetryConfig, limiter)
	if cfg.EmbedCache.Size > 0 {
		emb = embedcache.WrapLruCacheToEmbedder(emb, cfg.EmbedCache.Size, time.Duration(cfg.EmbedCache.TTLSeconds)*time.Second)
	}
	return ai.NewManager(gen, emb, ai.ManagerConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
	}), nil
}

func buildBackends(cfg *config.Config) ([]ai.GeneratorEntry, []ai.EmbedderEntry, error) {
	type backend struct {
		provider      string
		data          map[string]interface{}
		generateModel string
		embedModel    string
	}
	backends := []backend{{
		provider:      cfg.AI.Provider,
		data:          cfg.AI.Data,
		generateModel: cfg.AI.GenerateModel,
		embedModel:    cfg.AI.EmbedModel,
	}}
	for _, fb := range cfg.AI.Fallbacks {
		backends = append(backends, backend{
			provider:      fb.Provider,
			data:          fb.Data,
			generateModel: fb.GenerateModel,
			embedModel:    fb.EmbedModel,
		})
	}

	var gens []ai.GeneratorEntry
	var embs []ai.EmbedderEntry
	for _, b := range backends {
		provider, err := ai.NewProvider(b.provider, b.data)
		if err != nil {
			return nil, nil, fmt.Errorf("build provider %s: %w", b.provider, err)
		}
		gens = append(gens, ai.GeneratorEntry{
			Name:      b.provider,
			Generator: ai.NewGenerator(provider, b.generateModel),
		})
		if b.embedModel == "" {
			continue
		}
		embProvider, err := ai.NewEmbedProvider(b.provider, b.data)
		if err != nil {
			return nil, nil, fmt.Errorf("build embed provider %s: %w", b.provider, err)
		}
		embs = append(embs, ai.EmbedderEntry{
			Name:     b.provider,
			Embedder: ai.NewEmbedder(embProvider, b.embedModel),
		})
	}
	if len(embs) == 0 {
		return nil, nil, fmt.Errorf("no embedding backend configured")
	}
	return gens, embs, nil
}

func (a *app) ingest(ctx context.Context, dir string) error {
	docs, err := loader.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no supported documents under %s", dir)
	}
	result, err := a.pipe.Ingest(ctx, docs)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d documents into %d chunks, snapshot %s\n", len(docs), result.Entries, result.Handle)
	return nil
}

func (a *app) ask(ctx context.Context, question string, qopts pipeline.QueryOptions) error {
	if err := a.pipe.LoadActive(ctx); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	answer, err := a.pipe.Query(ctx, question, qopts)
	if err != nil {
		return err
	}
	printAnswer(answer)
	return nil
}

func (a *app) chat(ctx context.Context) error {
	if err := a.pipe.LoadActive(ctx); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	snap := a.pipe.ActiveSnapshot()
	fmt.Printf("corpusqa chat, %d chunks indexed. Type 'exit' to quit.\n", snap.Index.Size())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return nil
		}
		answer, err := a.pipe.Query(ctx, question, pipeline.QueryOptions{})
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		printAnswer(answer)
	}
}

func (a *app) watch(ctx context.Context) error {
	if !a.cfg.Reindex.Enable {
		return fmt.Errorf("reindex is not enabled in config")
	}

	sched := schedule.NewCronScheduler()
	reindex := job.NewReindexJob(a.pipe, a.cfg.Reindex.Dir)
	if err := sched.AddJob(reindex, a.cfg.Reindex.Cron); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run once at startup so a fresh deployment has a snapshot immediately.
	if err := reindex.Run(ctx); err != nil {
		logutil.GetLogger(ctx).Error("initial reindex failed", zap.Error(err))
	}

	sched.Start(ctx)
	logutil.GetLogger(ctx).Info("watching", zap.String("dir", a.cfg.Reindex.Dir), zap.String("cron", a.cfg.Reindex.Cron))
	<-ctx.Done()
	sched.Stop()
	return nil
}

func printAnswer(answer *model.Answer) {
	fmt.Println(answer.Answer)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Println("\nsources:")
	for _, src := range answer.Sources {
		fmt.Printf("  %s#%d (%.3f)\n", src.DocumentID, src.ChunkIndex, src.Score)
	}
}
