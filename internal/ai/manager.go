package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ManagerConfig struct {
	Timeout       int // seconds per generation call
	MaxInputChars int
}

// Manager owns prompt construction for the answering flow and enforces
// per-call timeouts on the generation backend.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, embedder IEmbedder, cfg ManagerConfig) *Manager {
	return &Manager{
		generator: generator,
		embedder:  embedder,
		cfg:       cfg,
	}
}

func (m *Manager) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	ctx, cancel := m.callContext(ctx)
	defer cancel()
	return m.embedder.Embed(ctx, text, taskType)
}

func (m *Manager) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	ctx, cancel := m.callContext(ctx)
	defer cancel()
	return m.embedder.EmbedBatch(ctx, texts, taskType)
}

// callContext bounds a single backend call by the configured timeout.
func (m *Manager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
}

func (m *Manager) Embedder() IEmbedder {
	return m.embedder
}

// Answer generates a grounded answer from the assembled context.
func (m *Manager) Answer(ctx context.Context, question string, contextText string) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured")
	}
	prompt := fmt.Sprintf(`You are a helpful assistant that answers questions based on the provided documents.
Answer using ONLY information found in the context below. Quote relevant passages
directly when you find them, and be specific and precise. If the context doesn't
contain relevant information, say "I don't have enough information to answer that."

Context:
%s

Question: %s`, contextText, question)
	return m.generateText(ctx, prompt)
}

// AnswerWithoutContext is used when retrieval produced nothing; the prompt
// states that explicitly so the backend can decline instead of speculating.
func (m *Manager) AnswerWithoutContext(ctx context.Context, question string) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("generator not configured")
	}
	prompt := fmt.Sprintf(`You are a helpful assistant. No context was retrieved from the knowledge base
for this question. Answer from general knowledge only if you are confident;
otherwise say "I don't have enough information to answer that."

Question: %s`, question)
	return m.generateText(ctx, prompt)
}

func (m *Manager) generateText(ctx context.Context, prompt string) (string, error) {
	if m.cfg.MaxInputChars > 0 && len(prompt) > m.cfg.MaxInputChars {
		return "", fmt.Errorf("%w: prompt has %d chars, limit %d", ErrInputTooLarge, len(prompt), m.cfg.MaxInputChars)
	}
	ctx, cancel := m.callContext(ctx)
	defer cancel()
	resp, err := m.generator.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

func (m *Manager) EmbeddingModelName() string {
	if m.embedder == nil {
		return ""
	}
	return m.embedder.ModelName()
}
