package cli

import (
	"fmt"
	"sort"

	"github.com/falachefe/consultant/internal/memory"
	"github.com/falachefe/consultant/internal/models"
	"github.com/spf13/cobra"
)

var (
	searchUser         string
	searchAgent        string
	searchConversation string
	searchLimit        int
	searchThreshold    float64

	resetYes bool
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage conversation memory",
}

var memorySearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over stored memories",
	Long: `Search stored memories by meaning. When the vector index is unavailable
the search falls back to a plain text match with a fixed score.

Examples:
  falachefe memory search "fluxo de caixa"
  falachefe memory search "campanha instagram" --agent marketing_sales
  falachefe memory search "salário" --user 7f3c... --threshold 0.3`,
	Args: cobra.ExactArgs(1),
	RunE: runMemorySearch,
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory counts per agent",
	Args:  cobra.NoArgs,
	RunE:  runMemoryStats,
}

var memoryResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored memory",
	Long: `Delete all embeddings and then all memory records. This cannot be undone.

Requires --yes.`,
	Args: cobra.NoArgs,
	RunE: runMemoryReset,
}

func init() {
	memorySearchCmd.Flags().StringVarP(&searchUser, "user", "u", "", "filter by user id")
	memorySearchCmd.Flags().StringVarP(&searchAgent, "agent", "a", "", "filter by agent id")
	memorySearchCmd.Flags().StringVarP(&searchConversation, "conversation", "c", "", "filter by conversation id")
	memorySearchCmd.Flags().IntVarP(&searchLimit, "limit", "n", memory.DefaultLimit, "max results")
	memorySearchCmd.Flags().Float64Var(&searchThreshold, "threshold", memory.DefaultScoreThreshold, "minimum similarity (inclusive)")

	memoryResetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deletion")

	memoryCmd.AddCommand(memorySearchCmd)
	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memoryResetCmd)
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	results, err := store.Search(cmd.Context(), memory.SearchOptions{
		Query:          args[0],
		Limit:          searchLimit,
		ScoreThreshold: &searchThreshold,
		Filters: models.MemoryFilters{
			UserID:         searchUser,
			AgentID:        searchAgent,
			ConversationID: searchConversation,
		},
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No memories found.")
		return nil
	}

	fmt.Printf("Found %d memories:\n\n", len(results))
	tw := newTable()
	tw.AppendHeader(rowOf("#", "Score", "Agent", "Type", "Created", "Content"))
	for i, r := range results {
		tw.AppendRow(rowOf(
			i+1,
			fmt.Sprintf("%.3f", r.Similarity),
			r.AgentID,
			memoryKind(r),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			models.Truncate(r.Content, 60),
		))
	}
	tw.Render()
	return nil
}

func runMemoryStats(cmd *cobra.Command, args []string) error {
	stats := store.Stats(cmd.Context())
	if stats.Error != "" {
		return fmt.Errorf("stats: %s", stats.Error)
	}

	fmt.Println(defaultTheme.statusStyle().Render("Memory Statistics"))
	fmt.Printf("Storage:    %s\n", stats.StorageType)
	fmt.Printf("Embeddings: %s (%d dims)\n", stats.EmbeddingModel, stats.EmbeddingDimensions)
	fmt.Printf("Total:      %d\n\n", stats.TotalMemories)

	if len(stats.ByAgent) == 0 {
		return nil
	}
	agents := make([]string, 0, len(stats.ByAgent))
	for a := range stats.ByAgent {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	tw := newTable()
	tw.AppendHeader(rowOf("Agent", "Memories"))
	for _, a := range agents {
		tw.AppendRow(rowOf(a, stats.ByAgent[a]))
	}
	tw.Render()
	return nil
}

func runMemoryReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		fmt.Println(defaultTheme.hintStyle().Render("Refusing to delete without --yes."))
		return nil
	}
	if err := store.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fmt.Println(defaultTheme.completedStyle().Render("✓ memory cleared"))
	return nil
}

func memoryKind(r models.ScoredMemory) string {
	if r.Fallback {
		return r.MemoryType + " (text)"
	}
	return r.MemoryType
}
