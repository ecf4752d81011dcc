// Package specialist holds the consulting specialists and the registry that resolves them.
package specialist

import (
	"fmt"
	"log/slog"

	"github.com/falachefe/consultant/internal/metrics"
	"github.com/falachefe/consultant/internal/models"
	"github.com/falachefe/consultant/internal/tools"
)

// Registry resolves specialist ids to executors.
type Registry struct {
	executors map[models.SpecialistID]Executor
	profiles  []Profile
}

// NewRegistry builds one Agent per catalog entry. Unknown tool names fail.
func NewRegistry(catalog Catalog, gen Generator, toolReg *tools.Registry, logger *slog.Logger, m *metrics.Collector) (*Registry, error) {
	if toolReg == nil {
		toolReg = tools.NewRegistry()
	}
	r := &Registry{executors: make(map[models.SpecialistID]Executor, len(catalog.Specialists))}
	for _, p := range catalog.Specialists {
		toolset, err := toolReg.Select(p.Tools)
		if err != nil {
			return nil, fmt.Errorf("specialist %s: %w", p.ID, err)
		}
		r.executors[p.ID] = NewAgent(p, gen, toolset, logger, m)
		r.profiles = append(r.profiles, p)
	}
	return r, nil
}

// Register adds or replaces an executor. Only the routable specialist ids are accepted.
func (r *Registry) Register(id models.SpecialistID, e Executor) error {
	if id == models.SpecialistNone || models.ParseSpecialistID(string(id)) != id {
		return &UnknownSpecialistError{ID: id}
	}
	if r.executors == nil {
		r.executors = map[models.SpecialistID]Executor{}
	}
	r.executors[id] = e
	return nil
}

// Lookup returns the executor for id.
func (r *Registry) Lookup(id models.SpecialistID) (Executor, error) {
	e, ok := r.executors[id]
	if !ok {
		return nil, &UnknownSpecialistError{ID: id}
	}
	return e, nil
}

// Profiles returns catalog entries in catalog order.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}
