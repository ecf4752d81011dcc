// Package memory implements long-term conversational memory with vector recall
// and a degraded text-match fallback.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/falachefe/consultant/internal/metrics"
	"github.com/falachefe/consultant/internal/models"
	"github.com/google/uuid"
)

// FallbackScore is assigned to every text-match hit. It is an approximation, not a ranking.
const FallbackScore = 0.7

// Search defaults.
const (
	DefaultLimit          = 10
	DefaultScoreThreshold = 0.5
)

// Backend is the storage capability behind a Store. Implementations must be safe
// for concurrent use; the Store holds no locks of its own.
type Backend interface {
	// InsertMemory writes the parent content record.
	InsertMemory(ctx context.Context, rec models.MemoryRecord) error
	// InsertEmbedding writes the vector owned by an existing memory record.
	InsertEmbedding(ctx context.Context, memoryID string, embedding []float32, contentText string) error
	// SearchSimilar returns up to limit records ordered by raw cosine similarity, highest first.
	SearchSimilar(ctx context.Context, embedding []float32, limit int, filters models.MemoryFilters) ([]models.ScoredMemory, error)
	// SearchText returns up to limit records whose content contains query, case-insensitively.
	SearchText(ctx context.Context, query string, limit int, filters models.MemoryFilters) ([]models.MemoryRecord, error)
	DeleteEmbeddings(ctx context.Context) error
	DeleteMemories(ctx context.Context) error
	CountByAgent(ctx context.Context) (map[string]int, error)
	// StorageType names the backend in stats output.
	StorageType() string
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

// Store is the memory service shared by all pipeline runs.
type Store struct {
	backend  Backend
	embedder Embedder
	logger   *slog.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics records save/search timings into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// NewStore creates a store over backend and embedder.
func NewStore(backend Backend, embedder Embedder, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		embedder: embedder,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save persists content with its embedding and returns the new memory id.
// Recognised metadata keys: conversation_id, user_id, importance, memory_type.
func (s *Store) Save(ctx context.Context, content any, metadata map[string]any, agentID string) (string, error) {
	start := time.Now()
	id, err := s.save(ctx, content, metadata, agentID)
	s.metrics.RecordOutcome(metrics.OpMemorySave, time.Since(start), err)
	if err != nil {
		s.logger.Error("memory save failed", "agent", agentID, "error", err)
		return "", err
	}
	s.logger.Info("memory saved", "memory_id", id, "agent", agentID)
	return id, nil
}

func (s *Store) save(ctx context.Context, content any, metadata map[string]any, agentID string) (string, error) {
	text, err := SerializeContent(content)
	if err != nil {
		return "", &PersistenceError{Op: OpSerialize, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &PersistenceError{Op: OpSerialize, Err: ErrEmptyContent}
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", &PersistenceError{Op: OpEmbed, Err: err}
	}

	rec := newRecord(text, metadata, agentID, s.now())
	rec.ID = uuid.NewString()

	if err := s.backend.InsertMemory(ctx, rec); err != nil {
		return "", &PersistenceError{Op: OpInsertMemory, Err: err}
	}
	if err := s.backend.InsertEmbedding(ctx, rec.ID, embedding, text); err != nil {
		return "", &PersistenceError{Op: OpInsertEmbedding, MemoryID: rec.ID, Err: err}
	}
	return rec.ID, nil
}

// SearchOptions configures a search.
type SearchOptions struct {
	Query string
	// Limit defaults to DefaultLimit when <= 0.
	Limit int
	// ScoreThreshold is an inclusive lower bound on similarity. Nil means DefaultScoreThreshold.
	ScoreThreshold *float64
	Filters        models.MemoryFilters
}

// Search returns matches ordered by descending similarity. When the embedding
// provider or the vector search fails it falls back to text matching with
// FallbackScore; that path never fails the call.
func (s *Store) Search(ctx context.Context, opts SearchOptions) ([]models.ScoredMemory, error) {
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	threshold := DefaultScoreThreshold
	if opts.ScoreThreshold != nil {
		threshold = *opts.ScoreThreshold
	}

	start := time.Now()
	defer func() { s.metrics.RecordTiming(metrics.OpMemorySearch, time.Since(start)) }()

	results, err := s.searchSimilar(ctx, query, limit, threshold, opts.Filters)
	if err == nil {
		return results, nil
	}

	s.logger.Warn("vector search unavailable, falling back to text match", "error", err)
	s.metrics.Increment(metrics.CounterSearchFallback)
	return s.searchText(ctx, query, limit, opts.Filters), nil
}

func (s *Store) searchSimilar(ctx context.Context, query string, limit int, threshold float64, filters models.MemoryFilters) ([]models.ScoredMemory, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.backend.SearchSimilar(ctx, embedding, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	results := make([]models.ScoredMemory, 0, len(hits))
	for _, hit := range hits {
		hit.Similarity = clampUnit(hit.Similarity)
		if hit.Similarity >= threshold {
			results = append(results, hit)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) searchText(ctx context.Context, query string, limit int, filters models.MemoryFilters) []models.ScoredMemory {
	records, err := s.backend.SearchText(ctx, query, limit, filters)
	if err != nil {
		s.logger.Error("fallback text search failed", "error", err)
		return []models.ScoredMemory{}
	}

	results := make([]models.ScoredMemory, 0, len(records))
	for _, rec := range records {
		results = append(results, models.ScoredMemory{
			MemoryRecord: rec,
			Similarity:   FallbackScore,
			Fallback:     true,
		})
	}
	s.logger.Info("fallback search complete", "count", len(results))
	return results
}

// Reset deletes every embedding, then every memory record.
// Callers are responsible for gating access to it.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.backend.DeleteEmbeddings(ctx); err != nil {
		return fmt.Errorf("reset embeddings: %w", err)
	}
	if err := s.backend.DeleteMemories(ctx); err != nil {
		return fmt.Errorf("reset memories: %w", err)
	}
	s.logger.Warn("all memories have been reset")
	return nil
}

// Stats returns aggregate counts. Backend failures are reported in the Error field.
func (s *Store) Stats(ctx context.Context) models.MemoryStats {
	byAgent, err := s.backend.CountByAgent(ctx)
	if err != nil {
		s.logger.Error("memory stats failed", "error", err)
		return models.MemoryStats{Error: err.Error()}
	}

	total := 0
	for _, n := range byAgent {
		total += n
	}
	return models.MemoryStats{
		TotalMemories:       total,
		ByAgent:             byAgent,
		StorageType:         s.backend.StorageType(),
		EmbeddingModel:      s.embedder.Model(),
		EmbeddingDimensions: s.embedder.Dimension(),
	}
}

// SerializeContent renders content as text. Strings pass through; everything
// else is encoded as JSON with sorted map keys and no HTML escaping.
func SerializeContent(content any) (string, error) {
	switch v := content.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(content); err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func newRecord(text string, metadata map[string]any, agentID string, now time.Time) models.MemoryRecord {
	rec := models.MemoryRecord{
		AgentID:    agentID,
		MemoryType: models.DefaultMemoryType,
		Content:    text,
		Importance: models.DefaultImportance,
		Metadata:   map[string]any{},
		CreatedAt:  now.UTC(),
	}
	for k, v := range metadata {
		rec.Metadata[k] = v
	}
	if agentID != "" {
		rec.Metadata["agent"] = agentID
	}

	rec.ConversationID = stringValue(metadata["conversation_id"])
	rec.UserID = stringValue(metadata["user_id"])
	if mt := stringValue(metadata["memory_type"]); mt != "" {
		rec.MemoryType = mt
	}
	if imp, ok := floatValue(metadata["importance"]); ok {
		rec.Importance = clampUnit(imp)
	}
	return rec
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func clampUnit(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
