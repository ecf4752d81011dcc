// Package llmtest provides deterministic langchaingo doubles for tests.
package llmtest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/tmc/langchaingo/llms"
)

// ErrUnavailable is returned by doubles switched to unavailable.
var ErrUnavailable = errors.New("provider unavailable")

// ResponseFunc produces a response for one GenerateContent call.
type ResponseFunc func(ctx context.Context, messages []llms.MessageContent, opts llms.CallOptions) (*llms.ContentResponse, error)

// Model is an llms.Model whose answers come from a callback.
type Model struct {
	mu       sync.Mutex
	respond  ResponseFunc
	calls    int
	messages [][]llms.MessageContent
}

// NewModel creates a model backed by respond.
func NewModel(respond ResponseFunc) *Model {
	return &Model{respond: respond}
}

// NewModelWithText creates a model that always answers text.
func NewModelWithText(text string) *Model {
	return NewModel(func(context.Context, []llms.MessageContent, llms.CallOptions) (*llms.ContentResponse, error) {
		return TextResponse(text), nil
	})
}

// NewModelWithError creates a model that always fails with err.
func NewModelWithError(err error) *Model {
	return NewModel(func(context.Context, []llms.MessageContent, llms.CallOptions) (*llms.ContentResponse, error) {
		return nil, err
	})
}

// GenerateContent implements llms.Model.
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	m.mu.Lock()
	m.calls++
	m.messages = append(m.messages, messages)
	respond := m.respond
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return respond(ctx, messages, opts)
}

// Call implements llms.Model.
func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns how many times GenerateContent ran.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastMessages returns the messages of the most recent call.
func (m *Model) LastMessages() []llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}

// TextResponse wraps text in a single-choice response.
func TextResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:        text,
			GenerationInfo: map[string]any{"PromptTokens": 10, "CompletionTokens": 5},
		}},
	}
}

// ToolCallResponse asks the caller to run one tool.
func ToolCallResponse(id, name, arguments string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:   id,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      name,
					Arguments: arguments,
				},
			}},
		}},
	}
}

// Embedder is a deterministic bag-of-words embedder. Equal texts map to equal
// unit vectors; texts sharing words have positive cosine similarity.
type Embedder struct {
	mu        sync.Mutex
	dimension int
	err       error
	calls     int
}

// NewEmbedder creates an embedder producing vectors of the given dimension.
func NewEmbedder(dimension int) *Embedder {
	return &Embedder{dimension: dimension}
}

// SetError makes subsequent calls fail with err (nil restores).
func (e *Embedder) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns how many texts were embedded.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// EmbedDocuments implements embeddings.Embedder.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	err := e.err
	e.calls += len(texts)
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

// EmbedQuery implements embeddings.Embedder.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) vector(text string) []float32 {
	v := make([]float32, e.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.dimension)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
