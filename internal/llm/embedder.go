// Package llm provides LLM and embedding services using langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/falachefe/consultant/internal/config"
	"github.com/falachefe/consultant/internal/metrics"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder wraps langchaingo embeddings with dimension validation.
type Embedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
	metrics   *metrics.Collector
}

// NewEmbedder creates an embedder based on configuration.
func NewEmbedder(cfg config.Config) (*Embedder, error) {
	var model embeddings.Embedder
	var err error

	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		llm, ollamaErr := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		llm, openaiErr := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}

	return NewEmbedderFrom(model, cfg.EmbedModel, cfg.EmbedDimension), nil
}

// NewEmbedderFrom wraps an existing langchaingo embedder.
func NewEmbedderFrom(model embeddings.Embedder, name string, dimension int) *Embedder {
	return &Embedder{model: model, dimension: dimension, modelName: name}
}

// WithMetrics records embedding timings into c.
func (e *Embedder) WithMetrics(c *metrics.Collector) *Embedder {
	e.metrics = c
	return e
}

// Embed generates an embedding vector for text.
// Every failure wraps ErrEmbeddingUnavailable.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	textLen := len(text)
	slog.Debug("embedding text", "model", e.modelName, "text_len", textLen)

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, []string{text})
	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordTiming(metrics.OpEmbedding, duration)
	}

	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "text_len", textLen, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("%w: embed: %w", ErrEmbeddingUnavailable, wrapFatalError(err))
	}

	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ErrEmbeddingUnavailable)
	}

	embedding := vectors[0]
	if len(embedding) != e.dimension {
		return nil, fmt.Errorf("%w: dimension mismatch: got %d, want %d", ErrEmbeddingUnavailable, len(embedding), e.dimension)
	}

	slog.Debug("embedding complete", "model", e.modelName, "text_len", textLen, "duration_ms", duration.Milliseconds())
	return embedding, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}
