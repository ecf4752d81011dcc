package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/falachefe/consultant/internal/memory"
	"github.com/falachefe/consultant/internal/models"
)

const (
	recallDefaultLimit = 5
	recallMaxLimit     = 20
)

type recallInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// RecallMemories searches past conversations with the current user.
type RecallMemories struct{ deps *Dependencies }

// NewRecallMemories creates the recall_memories tool.
func NewRecallMemories(deps *Dependencies) *RecallMemories { return &RecallMemories{deps: deps} }

func (t *RecallMemories) Name() string { return "recall_memories" }

func (t *RecallMemories) Description() string {
	return "Busca conversas e fatos anteriores deste usuário por similaridade. " +
		"Use para lembrar preferências, decisões ou números mencionados antes."
}

func (t *RecallMemories) Parameters() map[string]any {
	return objectSchema(map[string]any{
		"query": stringProp("O que procurar nas memórias"),
		"limit": map[string]any{"type": "integer", "description": "Máximo de resultados, 1-20, padrão 5"},
	}, "query")
}

func (t *RecallMemories) Call(ctx context.Context, scope Scope, args json.RawMessage) string {
	var in recallInput
	if err := decodeArgs(args, &in); err != nil {
		return ErrorResult(err.Error(), "")
	}
	if strings.TrimSpace(in.Query) == "" {
		return ErrorResult("query não pode ser vazia", "Informe o que procurar")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = recallDefaultLimit
	}
	if limit > recallMaxLimit {
		return ErrorResult("limit deve estar entre 1 e 20", "Reduza o limite")
	}
	if t.deps == nil || t.deps.Memory == nil {
		return ErrorResult("memória indisponível", "")
	}

	results, err := t.deps.Memory.Search(ctx, memory.SearchOptions{
		Query:   in.Query,
		Limit:   limit,
		Filters: models.MemoryFilters{UserID: scope.UserID},
	})
	if err != nil {
		return ErrorResult("falha na busca: "+err.Error(), "")
	}
	if len(results) == 0 {
		return TextResult("Nenhuma memória relevante encontrada.")
	}

	items := make([]string, 0, len(results))
	for i, r := range results {
		items = append(items, fmt.Sprintf("%d. [%s, %.2f] %s",
			i+1,
			r.CreatedAt.Format("02/01/2006"),
			r.Similarity,
			models.Truncate(r.Content, 400)))
	}

	queryLog := models.Truncate(in.Query, 30)
	t.deps.logger().Info("recall completed", "query", queryLog, "results", len(results))
	return TextResult(FormatResults(items))
}
