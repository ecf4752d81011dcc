package memory

import (
	"errors"
	"fmt"
)

// Save steps reported by PersistenceError.
const (
	OpSerialize       = "serialize"
	OpEmbed           = "embed"
	OpInsertMemory    = "insert_memory"
	OpInsertEmbedding = "insert_embedding"
)

var (
	// ErrEmptyQuery is returned by Search when the query is blank.
	ErrEmptyQuery = errors.New("empty search query")

	// ErrEmptyContent is returned by Save when there is nothing to store.
	ErrEmptyContent = errors.New("empty memory content")
)

// PersistenceError reports which step of Save failed. It is never retried.
type PersistenceError struct {
	Op       string
	MemoryID string
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.MemoryID != "" {
		return fmt.Sprintf("memory %s (%s): %v", e.Op, e.MemoryID, e.Err)
	}
	return fmt.Sprintf("memory %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
