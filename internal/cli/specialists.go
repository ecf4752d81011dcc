package cli

import (
	"fmt"
	"strings"

	"github.com/falachefe/consultant/internal/specialist"
	"github.com/spf13/cobra"
)

var specialistsCmd = &cobra.Command{
	Use:   "specialists",
	Short: "List configured specialists and their tools",
	Long: `List the specialists from the catalog (embedded default, or the file named
by FALACHEFE_SPECIALISTS).`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := specialist.LoadCatalog(cfg.SpecialistCatalog)
		if err != nil {
			return fmt.Errorf("load specialists: %w", err)
		}
		printCatalog(catalog)
		return nil
	},
}

func printCatalog(c specialist.Catalog) {
	tw := newTable()
	tw.AppendHeader(rowOf("ID", "Name", "Role", "Max Iterations", "Tools"))
	for _, p := range c.Specialists {
		tools := strings.Join(p.Tools, "\n")
		if tools == "" {
			tools = "-"
		}
		tw.AppendRow(rowOf(p.ID, p.Name, p.Role, p.MaxToolIterations, tools))
	}
	tw.Render()
}
