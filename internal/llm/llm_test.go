package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/falachefe/consultant/internal/llm/llmtest"
	"github.com/falachefe/consultant/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestGenerateWithSystem(t *testing.T) {
	fake := llmtest.NewModelWithText("pong")
	collector := metrics.NewCollector()
	model := NewModelFrom(fake, "fake-model").WithMetrics(collector)

	out, err := model.GenerateWithSystem(context.Background(), "be brief", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
	assert.Equal(t, "fake-model", model.Model())

	msgs := fake.LastMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)

	snap := collector.Snapshot()
	require.NotNil(t, snap.LLMGenerate)
	assert.Equal(t, int64(1), snap.LLMGenerate.Count)
	require.NotNil(t, snap.LLMGenerate.TotalInputTokens)
	assert.Equal(t, int64(10), *snap.LLMGenerate.TotalInputTokens)
}

func TestClassifyRawWrapsUnavailable(t *testing.T) {
	model := NewModelFrom(llmtest.NewModelWithError(errors.New("HTTP 401: invalid api key")), "fake")

	_, err := model.ClassifyRaw(context.Background(), "sys", "oi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletionUnavailable)
	assert.True(t, IsFatal(err))
}

func TestGenerateContentNoChoices(t *testing.T) {
	fake := llmtest.NewModel(func(context.Context, []llms.MessageContent, llms.CallOptions) (*llms.ContentResponse, error) {
		return &llms.ContentResponse{}, nil
	})
	_, err := NewModelFrom(fake, "fake").GenerateWithSystem(context.Background(), "s", "u")
	assert.Error(t, err)
}

func TestEmbed(t *testing.T) {
	embedder := NewEmbedderFrom(llmtest.NewEmbedder(8), "fake-embed", 8)

	vec, err := embedder.Embed(context.Background(), "fluxo de caixa")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
	assert.Equal(t, 8, embedder.Dimension())
	assert.Equal(t, "fake-embed", embedder.Model())
}

func TestEmbedDimensionMismatch(t *testing.T) {
	embedder := NewEmbedderFrom(llmtest.NewEmbedder(4), "fake-embed", 8)

	_, err := embedder.Embed(context.Background(), "saldo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestEmbedProviderError(t *testing.T) {
	fake := llmtest.NewEmbedder(8)
	fake.SetError(errors.New("quota exceeded for model"))
	embedder := NewEmbedderFrom(fake, "fake-embed", 8)

	_, err := embedder.Embed(context.Background(), "saldo")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, ErrFatalAPI)
}

func TestTokenUsage(t *testing.T) {
	tests := []struct {
		name    string
		info    map[string]any
		in, out int64
	}{
		{"openai", map[string]any{"PromptTokens": 12, "CompletionTokens": 3}, 12, 3},
		{"anthropic", map[string]any{"InputTokens": 7, "OutputTokens": 9}, 7, 9},
		{"float", map[string]any{"input_tokens": float64(4), "output_tokens": float64(2)}, 4, 2},
		{"missing", nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, out := tokenUsage(tt.info)
			assert.Equal(t, tt.in, in)
			assert.Equal(t, tt.out, out)
		})
	}
}
