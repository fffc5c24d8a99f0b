package ai

import (
	"context"
	"errors"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryConfig bounds retries against a flaky backend. Only ErrUnavailable is
// retried; refusals, oversized inputs and context cancellation are terminal.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
}

func (c RetryConfig) normalize() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	return c
}

func isTerminal(err error) bool {
	return errors.Is(err, ErrRefused) ||
		errors.Is(err, ErrInputTooLarge) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func retryDo(ctx context.Context, cfg RetryConfig, limiter *rate.Limiter, op string, fn func() error) error {
	cfg = cfg.normalize()
	delay := cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrUnavailable) || attempt == cfg.MaxAttempts {
			return err
		}
		logutil.GetLogger(ctx).Warn("transient backend failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

type retryEmbedder struct {
	next    IEmbedder
	cfg     RetryConfig
	limiter *rate.Limiter
}

// WrapRetryToEmbedder adds bounded exponential backoff and optional rate
// limiting to an embedder.
func WrapRetryToEmbedder(e IEmbedder, cfg RetryConfig, limiter *rate.Limiter) IEmbedder {
	if e == nil {
		return nil
	}
	return &retryEmbedder{next: e, cfg: cfg, limiter: limiter}
}

func (r *retryEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var res []float32
	err := retryDo(ctx, r.cfg, r.limiter, "embed", func() error {
		var err error
		res, err = r.next.Embed(ctx, text, taskType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *retryEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	var res [][]float32
	err := retryDo(ctx, r.cfg, r.limiter, "embed_batch", func() error {
		var err error
		res, err = r.next.EmbedBatch(ctx, texts, taskType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *retryEmbedder) ModelName() string {
	return r.next.ModelName()
}

type retryGenerator struct {
	next    IGenerator
	cfg     RetryConfig
	limiter *rate.Limiter
}

func WrapRetryToGenerator(g IGenerator, cfg RetryConfig, limiter *rate.Limiter) IGenerator {
	if g == nil {
		return nil
	}
	return &retryGenerator{next: g, cfg: cfg, limiter: limiter}
}

func (r *retryGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var res string
	err := retryDo(ctx, r.cfg, r.limiter, "generate", func() error {
		var err error
		res, err = r.next.Generate(ctx, prompt)
		return err
	})
	if err != nil {
		return "", err
	}
	return res, nil
}
