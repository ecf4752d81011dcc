package specialist

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/falachefe/consultant/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultMaxToolIterations bounds tool-calling rounds when the catalog omits it.
const DefaultMaxToolIterations = 15

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrInvalidCatalog is returned when a catalog fails validation.
var ErrInvalidCatalog = errors.New("invalid specialist catalog")

// Profile describes one specialist.
type Profile struct {
	ID                models.SpecialistID `yaml:"id"`
	Name              string              `yaml:"name"`
	Role              string              `yaml:"role"`
	Goal              string              `yaml:"goal"`
	Prompt            string              `yaml:"prompt"`
	MaxToolIterations int                 `yaml:"max_tool_iterations"`
	Tools             []string            `yaml:"tools"`
}

// Catalog is the set of configured specialists.
type Catalog struct {
	Specialists []Profile `yaml:"specialists"`
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return Catalog{}, fmt.Errorf("read catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks ids and fills defaults.
func (c *Catalog) Validate() error {
	if len(c.Specialists) == 0 {
		return fmt.Errorf("%w: no specialists defined", ErrInvalidCatalog)
	}
	seen := map[models.SpecialistID]bool{}
	for i := range c.Specialists {
		p := &c.Specialists[i]
		if p.ID == "" || p.ID == models.SpecialistNone || models.ParseSpecialistID(string(p.ID)) != p.ID {
			return fmt.Errorf("%w: unknown specialist id %q", ErrInvalidCatalog, p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate specialist id %q", ErrInvalidCatalog, p.ID)
		}
		seen[p.ID] = true
		if strings.TrimSpace(p.Prompt) == "" {
			return fmt.Errorf("%w: specialist %q has no prompt", ErrInvalidCatalog, p.ID)
		}
		if p.MaxToolIterations < 0 {
			return fmt.Errorf("%w: specialist %q has negative max_tool_iterations", ErrInvalidCatalog, p.ID)
		}
		if p.MaxToolIterations == 0 {
			p.MaxToolIterations = DefaultMaxToolIterations
		}
	}
	return nil
}
