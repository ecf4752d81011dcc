package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/falachefe/consultant/internal/models"
)

const memoryColumns = `m.id, m.agent_id, m.conversation_id, m.user_id, m.memory_type,
	m.content, m.metadata, m.importance, m.created_at`

// InsertMemory writes the parent content record.
func (d *DB) InsertMemory(ctx context.Context, rec models.MemoryRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if rec.Metadata == nil {
		meta = []byte("{}")
	}

	_, err = d.conn.ExecContext(ctx, `
		INSERT INTO agent_memories
			(id, agent_id, conversation_id, user_id, memory_type, content, content_folded, metadata, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AgentID, rec.ConversationID, rec.UserID, rec.MemoryType,
		rec.Content, strings.ToLower(rec.Content), string(meta), rec.Importance, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// InsertEmbedding writes the vector for an existing memory. The foreign key
// rejects embeddings whose parent does not exist.
func (d *DB) InsertEmbedding(ctx context.Context, memoryID string, embedding []float32, contentText string) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO memory_embeddings (memory_id, embedding, dimension, content_text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		memoryID, encodeVector(embedding), len(embedding), contentText,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// SearchSimilar scans embeddings matching filters and ranks them by cosine similarity.
func (d *DB) SearchSimilar(ctx context.Context, embedding []float32, limit int, filters models.MemoryFilters) ([]models.ScoredMemory, error) {
	where, args := filterClause(filters)
	query := `SELECT ` + memoryColumns + `, e.embedding
		FROM memory_embeddings e
		JOIN agent_memories m ON m.id = e.memory_id` + where

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var hits []models.ScoredMemory
	for rows.Next() {
		var blob []byte
		rec, err := scanMemory(rows, &blob)
		if err != nil {
			return nil, err
		}
		hits = append(hits, models.ScoredMemory{
			MemoryRecord: rec,
			Similarity:   cosineSimilarity(embedding, decodeVector(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchText matches content containing query, ignoring case. SQLite's lower()
// only folds ASCII, so content is folded in Go at insert time.
func (d *DB) SearchText(ctx context.Context, query string, limit int, filters models.MemoryFilters) ([]models.MemoryRecord, error) {
	where, args := filterClause(filters)
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}
	where += "instr(m.content_folded, ?) > 0"
	args = append(args, strings.ToLower(query), limit)

	rows, err := d.conn.QueryContext(ctx, `SELECT `+memoryColumns+`
		FROM agent_memories m`+where+`
		ORDER BY m.created_at DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	var out []models.MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate text search: %w", err)
	}
	return out, nil
}

// DeleteEmbeddings removes every embedding row.
func (d *DB) DeleteEmbeddings(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, `DELETE FROM memory_embeddings`); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// DeleteMemories removes every memory row. Fails while embeddings still reference them.
func (d *DB) DeleteMemories(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, `DELETE FROM agent_memories`); err != nil {
		return fmt.Errorf("delete memories: %w", err)
	}
	return nil
}

// CountByAgent returns the number of memories per agent id.
func (d *DB) CountByAgent(ctx context.Context) (map[string]int, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT agent_id, COUNT(*) FROM agent_memories GROUP BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var agent string
		var n int
		if err := rows.Scan(&agent, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[agent] = n
	}
	return counts, rows.Err()
}

func filterClause(f models.MemoryFilters) (string, []any) {
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "m.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.AgentID != "" {
		conds = append(conds, "m.agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.ConversationID != "" {
		conds = append(conds, "m.conversation_id = ?")
		args = append(args, f.ConversationID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanMemory(rows *sql.Rows, extra ...any) (models.MemoryRecord, error) {
	var rec models.MemoryRecord
	var meta, created string
	dest := []any{
		&rec.ID, &rec.AgentID, &rec.ConversationID, &rec.UserID, &rec.MemoryType,
		&rec.Content, &meta, &rec.Importance, &created,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return rec, fmt.Errorf("scan memory: %w", err)
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return rec, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}
