package ai

import (
	"context"
	"hash/fnv"
	"strings"
)

const defaultFakeDimension = 64

type fakeConfig struct {
	Dimension int `json:"dimension"`
}

// fakeProvider is a deterministic offline backend. Embeddings are hashed
// bag-of-words vectors, generation answers by quoting the supplied context.
// It exists so the pipeline can run and be tested without any external
// model.
type fakeProvider struct {
	dimension int
}

func (p *fakeProvider) Name() string {
	return "fake"
}

func (p *fakeProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_ = model
	if strings.Contains(prompt, "No context was retrieved") {
		return "I don't have enough information to answer that.", nil
	}
	ctxText := extractSection(prompt, "Context:", "Question:")
	question := extractSection(prompt, "Question:", "")
	if ctxText == "" {
		return "I don't have enough information to answer that.", nil
	}
	first := ctxText
	if idx := strings.Index(first, "\n"); idx >= 0 {
		first = first[:idx]
	}
	// Strip the provenance marker so the answer reads like prose.
	if idx := strings.Index(first, "] "); idx >= 0 && strings.HasPrefix(first, "[") {
		first = first[idx+2:]
	}
	answer := "Based on the provided context: " + strings.TrimSpace(first)
	if question != "" {
		answer += " (in answer to: " + strings.TrimSpace(question) + ")"
	}
	return answer, nil
}

func (p *fakeProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_ = model
	_ = taskType
	return hashEmbedding(text, p.dimension), nil
}

func (p *fakeProvider) EmbedBatch(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.Embed(ctx, model, text, taskType)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func hashEmbedding(text string, dimension int) []float32 {
	vec := make([]float32, dimension)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%dimension]++
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
}

func extractSection(text, start, end string) string {
	idx := strings.Index(text, start)
	if idx < 0 {
		return ""
	}
	section := text[idx+len(start):]
	if end != "" {
		if stop := strings.Index(section, end); stop >= 0 {
			section = section[:stop]
		}
	}
	return strings.TrimSpace(section)
}

func createFakeFactory(args interface{}) (IAIProvider, error) {
	provider, err := newFakeProvider(args)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func createFakeEmbedFactory(args interface{}) (IEmbedProvider, error) {
	provider, err := newFakeProvider(args)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func newFakeProvider(args interface{}) (*fakeProvider, error) {
	cfg := &fakeConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = defaultFakeDimension
	}
	return &fakeProvider{dimension: cfg.Dimension}, nil
}

func init() {
	Register("fake", createFakeFactory)
	RegisterEmbed("fake", createFakeEmbedFactory)
}
