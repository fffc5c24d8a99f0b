package ai

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	errs  []error
	calls int
}

func (s *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return "ok", nil
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestRetryGenerator_RetriesUnavailable(t *testing.T) {
	backend := &scriptedGenerator{errs: []error{
		fmt.Errorf("%w: 503", ErrUnavailable),
		fmt.Errorf("%w: 503", ErrUnavailable),
		nil,
	}}
	g := WrapRetryToGenerator(backend, fastRetry(), nil)

	res, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	require.Equal(t, 3, backend.calls)
}

func TestRetryGenerator_GivesUpAfterMaxAttempts(t *testing.T) {
	backend := &scriptedGenerator{errs: []error{
		fmt.Errorf("%w: 503", ErrUnavailable),
		fmt.Errorf("%w: 503", ErrUnavailable),
		fmt.Errorf("%w: 503", ErrUnavailable),
		nil,
	}}
	g := WrapRetryToGenerator(backend, fastRetry(), nil)

	_, err := g.Generate(context.Background(), "prompt")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, 3, backend.calls)
}

func TestRetryGenerator_DoesNotRetryRefusal(t *testing.T) {
	backend := &scriptedGenerator{errs: []error{
		fmt.Errorf("%w: content filter", ErrRefused),
		nil,
	}}
	g := WrapRetryToGenerator(backend, fastRetry(), nil)

	_, err := g.Generate(context.Background(), "prompt")
	require.ErrorIs(t, err, ErrRefused)
	require.Equal(t, 1, backend.calls)
}

func TestRetryGenerator_DoesNotRetryPlainErrors(t *testing.T) {
	backend := &scriptedGenerator{errs: []error{
		fmt.Errorf("hard failure"),
		nil,
	}}
	g := WrapRetryToGenerator(backend, fastRetry(), nil)

	_, err := g.Generate(context.Background(), "prompt")
	require.Error(t, err)
	require.Equal(t, 1, backend.calls)
}

type flakyEmbedder struct {
	failures int
	calls    int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("%w: overloaded", ErrUnavailable)
	}
	return []float32{1}, nil
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("%w: overloaded", ErrUnavailable)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (f *flakyEmbedder) ModelName() string { return "flaky/embed" }

func TestRetryEmbedder_RecoversFromTransientFailure(t *testing.T) {
	backend := &flakyEmbedder{failures: 1}
	e := WrapRetryToEmbedder(backend, fastRetry(), nil)

	vec, err := e.Embed(context.Background(), "text", TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, []float32{1}, vec)
	require.Equal(t, 2, backend.calls)
	require.Equal(t, "flaky/embed", e.ModelName())
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	backend := &scriptedGenerator{errs: []error{
		fmt.Errorf("%w: 503", ErrUnavailable),
		nil,
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := WrapRetryToGenerator(backend, RetryConfig{MaxAttempts: 3, BaseDelay: time.Hour}, nil)

	_, err := g.Generate(ctx, "prompt")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, backend.calls)
}
