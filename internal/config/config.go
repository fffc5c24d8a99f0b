package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	LogConfig  logger.LogConfig `json:"log_config"`
	BlobStore  BlobStoreConfig  `json:"blob_store"`
	AI         AIConfig         `json:"ai"`
	Chunking   ChunkingConfig   `json:"chunking"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Ingest     IngestConfig     `json:"ingest"`
	EmbedCache EmbedCacheConfig `json:"embed_cache"`
	History    HistoryConfig    `json:"history"`
	Reindex    ReindexConfig    `json:"reindex"`
}

type BlobStoreConfig struct {
	Type           string                 `json:"type"`
	Data           map[string]interface{} `json:"data"`
	SnapshotPrefix string                 `json:"snapshot_prefix"`
}

type AIConfig struct {
	Provider      string                 `json:"provider"`
	Data          map[string]interface{} `json:"data"`
	GenerateModel string                 `json:"generate_model"`
	EmbedModel    string                 `json:"embed_model"`
	Timeout       int                    `json:"timeout"`
	MaxInputChars int                    `json:"max_input_chars"`
	RatePerSecond float64                `json:"rate_per_second"`
	Fallbacks     []FallbackConfig       `json:"fallbacks"`
}

type FallbackConfig struct {
	Provider      string                 `json:"provider"`
	Data          map[string]interface{} `json:"data"`
	GenerateModel string                 `json:"generate_model"`
	EmbedModel    string                 `json:"embed_model"`
}

// OverlapChars is a pointer so a configured 0 (no overlap) is distinguishable
// from an absent field.
type ChunkingConfig struct {
	MaxChars     int  `json:"max_chars"`
	OverlapChars *int `json:"overlap_chars"`
}

type RetrievalConfig struct {
	TopK           int     `json:"top_k"`
	MinSimilarity  float64 `json:"min_similarity"`
	ContextBudget  int     `json:"context_budget"`
	RequireContext bool    `json:"require_context"`
	Hybrid         bool    `json:"hybrid"`
	MultiQuery     bool    `json:"multi_query"`
}

type IngestConfig struct {
	BatchSize      int `json:"batch_size"`
	MaxConcurrency int `json:"max_concurrency"`
}

type EmbedCacheConfig struct {
	Size       int `json:"size"`
	TTLSeconds int `json:"ttl_seconds"`
}

type HistoryConfig struct {
	Enable bool   `json:"enable"`
	Prefix string `json:"prefix"`
}

type ReindexConfig struct {
	Enable bool   `json:"enable"`
	Cron   string `json:"cron"`
	Dir    string `json:"dir"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.GenerateModel == "" {
		return nil, fmt.Errorf("ai.generate_model is required")
	}
	if cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.embed_model is required")
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 120
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.BlobStore.Type == "" {
		cfg.BlobStore.Type = "local"
	}
	if cfg.BlobStore.SnapshotPrefix == "" {
		cfg.BlobStore.SnapshotPrefix = "snapshots"
	}
	if cfg.Chunking.MaxChars == 0 {
		cfg.Chunking.MaxChars = 1000
	}
	if cfg.Chunking.OverlapChars == nil {
		overlap := 120
		cfg.Chunking.OverlapChars = &overlap
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.ContextBudget == 0 {
		cfg.Retrieval.ContextBudget = 8000
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 16
	}
	if cfg.Ingest.MaxConcurrency == 0 {
		cfg.Ingest.MaxConcurrency = 4
	}
	if cfg.EmbedCache.Size == 0 {
		cfg.EmbedCache.Size = 4096
	}
	if cfg.EmbedCache.TTLSeconds == 0 {
		cfg.EmbedCache.TTLSeconds = 3600
	}
	if cfg.History.Enable && cfg.History.Prefix == "" {
		cfg.History.Prefix = "qa_history"
	}
	if cfg.Reindex.Enable {
		if cfg.Reindex.Dir == "" {
			return nil, fmt.Errorf("reindex.dir is required when reindex is enabled")
		}
		if cfg.Reindex.Cron == "" {
			cfg.Reindex.Cron = "@hourly"
		}
	}
	return &cfg, nil
}
