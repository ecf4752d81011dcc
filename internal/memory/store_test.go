package memory_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/falachefe/consultant/internal/llm"
	"github.com/falachefe/consultant/internal/llm/llmtest"
	"github.com/falachefe/consultant/internal/memory"
	"github.com/falachefe/consultant/internal/models"
	"github.com/falachefe/consultant/internal/sqlitedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 64

// flakyBackend wraps a real backend and fails selected operations.
type flakyBackend struct {
	memory.Backend
	failSimilar bool
	failText    bool
	failInsert  bool
	failEmbed   bool
	failCount   bool
}

var errBackendDown = errors.New("backend down")

func (f *flakyBackend) SearchSimilar(ctx context.Context, emb []float32, limit int, filters models.MemoryFilters) ([]models.ScoredMemory, error) {
	if f.failSimilar {
		return nil, errBackendDown
	}
	return f.Backend.SearchSimilar(ctx, emb, limit, filters)
}

func (f *flakyBackend) SearchText(ctx context.Context, q string, limit int, filters models.MemoryFilters) ([]models.MemoryRecord, error) {
	if f.failText {
		return nil, errBackendDown
	}
	return f.Backend.SearchText(ctx, q, limit, filters)
}

func (f *flakyBackend) InsertMemory(ctx context.Context, rec models.MemoryRecord) error {
	if f.failInsert {
		return errBackendDown
	}
	return f.Backend.InsertMemory(ctx, rec)
}

func (f *flakyBackend) InsertEmbedding(ctx context.Context, id string, emb []float32, text string) error {
	if f.failEmbed {
		return errBackendDown
	}
	return f.Backend.InsertEmbedding(ctx, id, emb, text)
}

func (f *flakyBackend) CountByAgent(ctx context.Context) (map[string]int, error) {
	if f.failCount {
		return nil, errBackendDown
	}
	return f.Backend.CountByAgent(ctx)
}

type fixture struct {
	store    *memory.Store
	backend  *flakyBackend
	embedder *llmtest.Embedder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := sqlitedb.Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fake := llmtest.NewEmbedder(testDimension)
	backend := &flakyBackend{Backend: db}
	store := memory.NewStore(backend, llm.NewEmbedderFrom(fake, "fake-embed", testDimension))
	return fixture{store: store, backend: backend, embedder: fake}
}

func TestSaveThenSearchFindsExactMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	content := "Usuário perguntou sobre o saldo do fluxo de caixa de março"
	id, err := f.store.Save(ctx, content, map[string]any{"user_id": "u1", "conversation_id": "c1"}, "financial")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = f.store.Save(ctx, "Plano de marketing para redes sociais", map[string]any{"user_id": "u1"}, "marketing_sales")
	require.NoError(t, err)

	results, err := f.store.Search(ctx, memory.SearchOptions{Query: content, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, id, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
	assert.False(t, results[0].Fallback)
	assert.Equal(t, "u1", results[0].UserID)
	assert.Equal(t, "c1", results[0].ConversationID)
	assert.Equal(t, models.DefaultMemoryType, results[0].MemoryType)
	assert.Equal(t, models.DefaultImportance, results[0].Importance)
}

func TestSearchOrderingAndThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.Save(ctx, "saldo caixa março", nil, "financial")
	require.NoError(t, err)
	_, err = f.store.Save(ctx, "saldo caixa abril despesas fornecedores", nil, "financial")
	require.NoError(t, err)
	_, err = f.store.Save(ctx, "contratação de vendedor", nil, "hr")
	require.NoError(t, err)

	threshold := 0.0
	results, err := f.store.Search(ctx, memory.SearchOptions{Query: "saldo caixa março", ScoreThreshold: &threshold})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 2)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, 0.0)
		assert.LessOrEqual(t, r.Similarity, 1.0)
	}

	strict := 0.999
	results, err = f.store.Search(ctx, memory.SearchOptions{Query: "saldo caixa março", ScoreThreshold: &strict})
	require.NoError(t, err)
	require.Len(t, results, 1, "threshold is inclusive so the exact match survives")
	assert.Equal(t, "saldo caixa março", results[0].Content)
}

func TestSearchFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.Save(ctx, "saldo do mês", map[string]any{"user_id": "u1", "conversation_id": "c1"}, "financial")
	require.NoError(t, err)
	_, err = f.store.Save(ctx, "saldo do mês", map[string]any{"user_id": "u2", "conversation_id": "c2"}, "financial")
	require.NoError(t, err)
	_, err = f.store.Save(ctx, "saldo do mês", map[string]any{"user_id": "u1", "conversation_id": "c3"}, "hr")
	require.NoError(t, err)

	tests := []struct {
		name    string
		filters models.MemoryFilters
		want    int
	}{
		{"none", models.MemoryFilters{}, 3},
		{"user", models.MemoryFilters{UserID: "u1"}, 2},
		{"agent", models.MemoryFilters{AgentID: "financial"}, 2},
		{"conversation", models.MemoryFilters{ConversationID: "c3"}, 1},
		{"user and agent", models.MemoryFilters{UserID: "u1", AgentID: "hr"}, 1},
		{"no match", models.MemoryFilters{UserID: "u9"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := f.store.Search(ctx, memory.SearchOptions{Query: "saldo do mês", Filters: tt.filters})
			require.NoError(t, err)
			assert.Len(t, results, tt.want)
		})
	}
}

func TestSearchFallsBackWhenVectorSearchFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.Save(ctx, "Saldo atual positivo", map[string]any{"user_id": "u1"}, "financial")
	require.NoError(t, err)
	_, err = f.store.Save(ctx, "saldo negativo", map[string]any{"user_id": "u2"}, "financial")
	require.NoError(t, err)

	f.backend.failSimilar = true
	results, err := f.store.Search(ctx, memory.SearchOptions{Query: "saldo", Filters: models.MemoryFilters{UserID: "u1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Fallback)
	assert.Equal(t, memory.FallbackScore, results[0].Similarity)
	assert.Equal(t, "Saldo atual positivo", results[0].Content)
}

func TestSearchFallsBackWhenEmbeddingFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.Save(ctx, "despesas com aluguel", nil, "financial")
	require.NoError(t, err)

	f.embedder.SetError(errors.New("connection refused"))
	results, err := f.store.Search(ctx, memory.SearchOptions{Query: "aluguel"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Fallback)
}

func TestSearchNeverFailsWhenEverythingIsDown(t *testing.T) {
	f := newFixture(t)
	f.backend.failSimilar = true
	f.backend.failText = true

	results, err := f.store.Search(context.Background(), memory.SearchOptions{Query: "saldo"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchEmptyQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Search(context.Background(), memory.SearchOptions{Query: "   "})
	assert.ErrorIs(t, err, memory.ErrEmptyQuery)
}

func TestSaveErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("embedding unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.embedder.SetError(errors.New("timeout"))

		_, err := f.store.Save(ctx, "saldo", nil, "financial")
		var perr *memory.PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, memory.OpEmbed, perr.Op)
		assert.ErrorIs(t, err, llm.ErrEmbeddingUnavailable)

		stats := f.store.Stats(ctx)
		assert.Equal(t, 0, stats.TotalMemories, "nothing written when embedding fails")
	})

	t.Run("content write fails", func(t *testing.T) {
		f := newFixture(t)
		f.backend.failInsert = true

		_, err := f.store.Save(ctx, "saldo", nil, "financial")
		var perr *memory.PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, memory.OpInsertMemory, perr.Op)
		assert.ErrorIs(t, err, errBackendDown)
	})

	t.Run("embedding write fails", func(t *testing.T) {
		f := newFixture(t)
		f.backend.failEmbed = true

		_, err := f.store.Save(ctx, "saldo", nil, "financial")
		var perr *memory.PersistenceError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, memory.OpInsertEmbedding, perr.Op)
		assert.NotEmpty(t, perr.MemoryID)
	})

	t.Run("empty content", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.store.Save(ctx, "  ", nil, "financial")
		assert.ErrorIs(t, err, memory.ErrEmptyContent)
	})
}

func TestSaveStructuredContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	content := map[string]any{"intent": "financial_task", "response": "Seu saldo é R$ 100"}
	_, err := f.store.Save(ctx, content, map[string]any{"importance": 1.7, "memory_type": "context"}, "financial")
	require.NoError(t, err)

	results, err := f.store.Search(ctx, memory.SearchOptions{Query: `{"intent":"financial_task","response":"Seu saldo é R$ 100"}`})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, `{"intent":"financial_task","response":"Seu saldo é R$ 100"}`, results[0].Content)
	assert.Equal(t, 1.0, results[0].Importance)
	assert.Equal(t, "context", results[0].MemoryType)
	assert.Equal(t, "financial", results[0].Metadata["agent"])
}

func TestResetThenStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.store.Save(ctx, fmt.Sprintf("memória %d", i), nil, "financial")
		require.NoError(t, err)
	}
	_, err := f.store.Save(ctx, "memória rh", nil, "hr")
	require.NoError(t, err)

	stats := f.store.Stats(ctx)
	assert.Equal(t, 4, stats.TotalMemories)
	assert.Equal(t, map[string]int{"financial": 3, "hr": 1}, stats.ByAgent)
	assert.Equal(t, sqlitedb.StorageType, stats.StorageType)
	assert.Equal(t, "fake-embed", stats.EmbeddingModel)
	assert.Equal(t, testDimension, stats.EmbeddingDimensions)

	require.NoError(t, f.store.Reset(ctx))

	stats = f.store.Stats(ctx)
	assert.Equal(t, 0, stats.TotalMemories)
	assert.Empty(t, stats.Error)
}

func TestStatsReportsBackendError(t *testing.T) {
	f := newFixture(t)
	f.backend.failCount = true

	stats := f.store.Stats(context.Background())
	assert.Equal(t, errBackendDown.Error(), stats.Error)
	assert.Equal(t, 0, stats.TotalMemories)
}

func TestConcurrentSaveAndSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := f.store.Save(ctx, fmt.Sprintf("conversa %d sobre caixa", i), nil, "financial")
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := f.store.Search(ctx, memory.SearchOptions{Query: "caixa"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, f.store.Stats(ctx).TotalMemories)
}

func TestSerializeContent(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "oi", "oi"},
		{"bytes", []byte("oi"), "oi"},
		{"nil", nil, ""},
		{"map sorted", map[string]any{"b": 1, "a": "x"}, `{"a":"x","b":1}`},
		{"slice", []int{1, 2}, "[1,2]"},
		{"html kept", map[string]any{"response": "R$ 10 & 20 <total>"}, `{"response":"R$ 10 & 20 <total>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := memory.SerializeContent(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := memory.SerializeContent(make(chan int))
	assert.Error(t, err)
}
