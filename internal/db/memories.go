package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/falachefe/consultant/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// memoryRow is the decoded shape of a memory record, optionally with a score.
type memoryRow struct {
	ID             surrealmodels.RecordID `json:"id"`
	AgentID        string                 `json:"agent_id"`
	ConversationID string                 `json:"conversation_id"`
	UserID         string                 `json:"user_id"`
	MemoryType     string                 `json:"memory_type"`
	Content        string                 `json:"content"`
	Metadata       map[string]any         `json:"metadata,omitempty"`
	Importance     float64                `json:"importance"`
	CreatedAt      time.Time              `json:"created_at"`
	Similarity     float64                `json:"similarity,omitempty"`
}

func (r memoryRow) toRecord() (models.MemoryRecord, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.MemoryRecord{}, err
	}
	return models.MemoryRecord{
		ID:             id,
		ConversationID: r.ConversationID,
		AgentID:        r.AgentID,
		UserID:         r.UserID,
		MemoryType:     r.MemoryType,
		Content:        r.Content,
		Metadata:       r.Metadata,
		Importance:     r.Importance,
		CreatedAt:      r.CreatedAt,
	}, nil
}

// InsertMemory creates the parent record keyed by rec.ID.
func (c *Client) InsertMemory(ctx context.Context, rec models.MemoryRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("memory", $id) CONTENT {
			agent_id: $agent_id,
			conversation_id: $conversation_id,
			user_id: $user_id,
			memory_type: $memory_type,
			content: $content,
			metadata: $metadata,
			importance: $importance,
			created_at: $created_at
		}
	`, map[string]any{
		"id":              rec.ID,
		"agent_id":        rec.AgentID,
		"conversation_id": rec.ConversationID,
		"user_id":         rec.UserID,
		"memory_type":     rec.MemoryType,
		"content":         rec.Content,
		"metadata":        rec.Metadata,
		"importance":      rec.Importance,
		"created_at":      createdAt,
	})
	if err != nil {
		return fmt.Errorf("insert memory: %w", wrapQueryError(err))
	}
	return nil
}

// InsertEmbedding stores the vector for an existing memory. It fails with
// ErrNotFound when the parent record is missing.
func (c *Client) InsertEmbedding(ctx context.Context, memoryID string, embedding []float32, contentText string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		LET $parent = type::record("memory", $id);
		IF !record::exists($parent) {
			THROW "memory not found: " + $id;
		};
		CREATE memory_embedding CONTENT {
			memory: $parent,
			embedding: $emb,
			dimension: $dim,
			content_text: $text,
			created_at: time::now()
		};
	`, map[string]any{
		"id":   memoryID,
		"emb":  embedding,
		"dim":  len(embedding),
		"text": contentText,
	})
	if err != nil {
		if strings.Contains(err.Error(), "memory not found") {
			return fmt.Errorf("insert embedding: %w: %s", ErrNotFound, memoryID)
		}
		return fmt.Errorf("insert embedding: %w", wrapQueryError(err))
	}
	return nil
}

// SearchSimilar ranks embeddings by cosine similarity. Unfiltered searches use
// the HNSW index; filtered ones scan so that filters apply before the limit.
func (c *Client) SearchSimilar(ctx context.Context, embedding []float32, limit int, filters models.MemoryFilters) ([]models.ScoredMemory, error) {
	if c.dimension > 0 && len(embedding) != c.dimension {
		return nil, fmt.Errorf("search similar: dimension %d does not match index dimension %d", len(embedding), c.dimension)
	}

	clause, vars := filterClause(filters, "memory.")
	vars["emb"] = embedding
	vars["dim"] = len(embedding)
	vars["limit"] = limit

	where := "dimension = $dim" + clause
	if clause == "" && c.dimension > 0 {
		where = fmt.Sprintf("embedding <|%d,40|> $emb", limit)
	}

	sql := fmt.Sprintf(`
		SELECT
			memory.id AS id,
			memory.agent_id AS agent_id,
			memory.conversation_id AS conversation_id,
			memory.user_id AS user_id,
			memory.memory_type AS memory_type,
			memory.content AS content,
			memory.metadata AS metadata,
			memory.importance AS importance,
			memory.created_at AS created_at,
			vector::similarity::cosine(embedding, $emb) AS similarity
		FROM memory_embedding
		WHERE %s
		ORDER BY similarity DESC
		LIMIT $limit
	`, where)

	results, err := surrealdb.Query[[]memoryRow](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("search similar: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	hits := make([]models.ScoredMemory, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("search similar: %w", err)
		}
		hits = append(hits, models.ScoredMemory{MemoryRecord: rec, Similarity: row.Similarity})
	}
	return hits, nil
}

// SearchText returns memories whose content contains query, newest first.
func (c *Client) SearchText(ctx context.Context, query string, limit int, filters models.MemoryFilters) ([]models.MemoryRecord, error) {
	clause, vars := filterClause(filters, "")
	vars["q"] = query
	vars["limit"] = limit

	sql := fmt.Sprintf(`
		SELECT * FROM memory
		WHERE string::contains(string::lowercase(content), string::lowercase($q))%s
		ORDER BY created_at DESC
		LIMIT $limit
	`, clause)

	results, err := surrealdb.Query[[]memoryRow](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("search text: %w", wrapQueryError(err))
	}

	rows := firstResult(results)
	records := make([]models.MemoryRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("search text: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DeleteEmbeddings removes every stored vector.
func (c *Client) DeleteEmbeddings(ctx context.Context) error {
	return c.deleteTable(ctx, tableEmbedding)
}

// DeleteMemories removes every memory record.
func (c *Client) DeleteMemories(ctx context.Context) error {
	return c.deleteTable(ctx, tableMemory)
}

type agentCount struct {
	AgentID string `json:"agent_id"`
	Count   int    `json:"count"`
}

// CountByAgent returns the number of memories per agent.
func (c *Client) CountByAgent(ctx context.Context) (map[string]int, error) {
	results, err := surrealdb.Query[[]agentCount](ctx, c.db, `
		SELECT agent_id, count() AS count FROM memory GROUP BY agent_id
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("count by agent: %w", wrapQueryError(err))
	}

	counts := map[string]int{}
	for _, row := range firstResult(results) {
		counts[row.AgentID] = row.Count
	}
	return counts, nil
}

func filterClause(filters models.MemoryFilters, prefix string) (string, map[string]any) {
	var b strings.Builder
	vars := map[string]any{}
	if filters.UserID != "" {
		fmt.Fprintf(&b, " AND %suser_id = $user_id", prefix)
		vars["user_id"] = filters.UserID
	}
	if filters.AgentID != "" {
		fmt.Fprintf(&b, " AND %sagent_id = $agent_id", prefix)
		vars["agent_id"] = filters.AgentID
	}
	if filters.ConversationID != "" {
		fmt.Fprintf(&b, " AND %sconversation_id = $conversation_id", prefix)
		vars["conversation_id"] = filters.ConversationID
	}
	return b.String(), vars
}

func firstResult[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 {
		return nil
	}
	return (*results)[0].Result
}
