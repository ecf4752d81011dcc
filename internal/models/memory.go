package models

import "time"

// Default values applied to memories saved without explicit metadata.
const (
	DefaultMemoryType = "learning"
	DefaultImportance = 0.5

	// MemoryTypeConversation marks a recorded user/assistant exchange.
	MemoryTypeConversation = "conversation"
)

// MemoryRecord is a persisted, embeddable unit of conversational context.
type MemoryRecord struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	AgentID        string         `json:"agent_id"`
	UserID         string         `json:"user_id,omitempty"`
	MemoryType     string         `json:"memory_type"`
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Importance     float64        `json:"importance"`
	Embedding      []float32      `json:"embedding,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ScoredMemory is a search hit.
type ScoredMemory struct {
	MemoryRecord
	Similarity float64 `json:"similarity"`
	// Fallback marks hits produced by text matching; Similarity is then a fixed approximation.
	Fallback bool `json:"fallback,omitempty"`
}

// MemoryFilters narrows a search. Empty fields are ignored.
type MemoryFilters struct {
	UserID         string
	AgentID        string
	ConversationID string
}

// MemoryStats is the read-only aggregate returned by the memory store.
type MemoryStats struct {
	TotalMemories       int            `json:"total_memories"`
	ByAgent             map[string]int `json:"by_agent"`
	StorageType         string         `json:"storage_type,omitempty"`
	EmbeddingModel      string         `json:"embedding_model,omitempty"`
	EmbeddingDimensions int            `json:"embedding_dimensions,omitempty"`
	Error               string         `json:"error,omitempty"`
}
