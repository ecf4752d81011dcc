package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/falachefe/consultant/internal/config"
	"github.com/falachefe/consultant/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
	metrics   *metrics.Collector
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// NewModelFrom wraps an existing langchaingo model.
func NewModelFrom(model llms.Model, name string) *Model {
	return &Model{llm: model, modelName: name}
}

// WithMetrics records call timings and token usage into c.
func (m *Model) WithMetrics(c *metrics.Collector) *Model {
	m.metrics = c
	return m
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate with system: %w", err)
	}

	return response.Choices[0].Content, nil
}

// ClassifyRaw returns the raw completion for a classification prompt.
// Every failure wraps ErrCompletionUnavailable.
func (m *Model) ClassifyRaw(ctx context.Context, systemPrompt, userText string) (string, error) {
	text, err := m.GenerateWithSystem(ctx, systemPrompt, userText)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCompletionUnavailable, err)
	}
	return text, nil
}

// GenerateContent sends a full message history and returns the first-class response.
// At least one choice is guaranteed on success.
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages, options...)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("llm call failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, wrapFatalError(err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	if m.metrics != nil {
		in, out := tokenUsage(response.Choices[0].GenerationInfo)
		m.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, in, out)
	}
	slog.Debug("llm call complete", "model", m.modelName, "duration_ms", duration.Milliseconds())
	return response, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// tokenUsage reads token counts from provider-specific generation info.
func tokenUsage(info map[string]any) (input, output int64) {
	for _, key := range []string{"PromptTokens", "InputTokens", "input_tokens"} {
		if v, ok := toInt64(info[key]); ok {
			input = v
			break
		}
	}
	for _, key := range []string{"CompletionTokens", "OutputTokens", "output_tokens"} {
		if v, ok := toInt64(info[key]); ok {
			output = v
			break
		}
	}
	return input, output
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
