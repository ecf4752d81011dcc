// Package tools provides the functions specialists can call while answering.
package tools

import (
	"context"
	"log/slog"

	"github.com/falachefe/consultant/internal/business"
	"github.com/falachefe/consultant/internal/memory"
	"github.com/falachefe/consultant/internal/models"
)

// MemorySearcher is the slice of the memory store the recall tool needs.
type MemorySearcher interface {
	Search(ctx context.Context, opts memory.SearchOptions) ([]models.ScoredMemory, error)
}

// Dependencies holds shared services for tool handlers.
// Passed to tool constructors and captured by them.
type Dependencies struct {
	Finance *business.Finance
	Memory  MemorySearcher
	Logger  *slog.Logger
}

func (d *Dependencies) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Scope identifies whose data a tool call may touch. It comes from the
// request, never from model-supplied arguments.
type Scope struct {
	UserID         string
	ConversationID string
	AgentID        string
}
