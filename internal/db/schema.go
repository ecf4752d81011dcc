package db

import "fmt"

const (
	tableMemory    = "memory"
	tableEmbedding = "memory_embedding"
)

const schemaTemplate = `
    -- ==========================================================================
    -- MEMORY TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS memory SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS agent_id ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS conversation_id ON memory TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS user_id ON memory TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS memory_type ON memory TYPE string DEFAULT "learning";
    DEFINE FIELD IF NOT EXISTS content ON memory TYPE string;
    DEFINE FIELD IF NOT EXISTS metadata ON memory TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS importance ON memory TYPE float DEFAULT 0.5;
    DEFINE FIELD IF NOT EXISTS created_at ON memory TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS memory_agent ON memory FIELDS agent_id;
    DEFINE INDEX IF NOT EXISTS memory_user ON memory FIELDS user_id;
    DEFINE INDEX IF NOT EXISTS memory_conversation ON memory FIELDS conversation_id;
    DEFINE INDEX IF NOT EXISTS memory_created ON memory FIELDS created_at;

    -- ==========================================================================
    -- MEMORY_EMBEDDING TABLE
    -- ==========================================================================
    -- One vector per memory record; never written without its parent.
    DEFINE TABLE IF NOT EXISTS memory_embedding SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS memory ON memory_embedding TYPE record<memory>;
    DEFINE FIELD IF NOT EXISTS embedding ON memory_embedding TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS dimension ON memory_embedding TYPE int;
    DEFINE FIELD IF NOT EXISTS content_text ON memory_embedding TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON memory_embedding TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS memory_embedding_memory ON memory_embedding FIELDS memory UNIQUE;
    DEFINE INDEX IF NOT EXISTS memory_embedding_vector ON memory_embedding FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
`

// SchemaSQL returns the schema with the vector index sized to dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(schemaTemplate, dimension)
}
