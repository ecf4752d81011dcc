// Package cli provides the command-line interface for falachefe.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/falachefe/consultant/internal/config"
	"github.com/falachefe/consultant/internal/db"
	"github.com/falachefe/consultant/internal/llm"
	"github.com/falachefe/consultant/internal/memory"
	"github.com/falachefe/consultant/internal/metrics"
	"github.com/falachefe/consultant/internal/sqlitedb"
	"github.com/spf13/cobra"
)

// skipStore marks commands that run without opening the memory backend.
const skipStore = "skip-store"

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configFile string

	// Global state set up in PersistentPreRunE
	cfg          config.Config
	logger       *slog.Logger
	closeLog     func() error
	collector    *metrics.Collector
	store        *memory.Store
	closeBackend func() error

	// Lazy-initialized LLM components
	embedder *llm.Embedder
	model    *llm.Model
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "falachefe",
	Short: "Business consulting assistant for small companies",
	Long: `Falachefe answers small-business owners over WhatsApp.

Each message is classified, routed to at most one specialist (finance,
marketing and sales, or HR), remembered in vector memory and delivered
back through the messaging gateway.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		if err := loadConfig(); err != nil {
			return err
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		collector = metrics.NewCollector()

		if cmd.Annotations[skipStore] == "true" {
			return nil
		}
		return openStore(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeBackend != nil {
			if err := closeBackend(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close memory backend: %v\n", err)
			}
		}
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

func loadConfig() error {
	if configFile == "" {
		cfg = config.Load()
		return nil
	}
	var err error
	cfg, err = config.LoadFile(configFile)
	return err
}

// openStore connects the configured memory backend and builds the store.
func openStore(ctx context.Context) error {
	var err error
	embedder, err = llm.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	embedder.WithMetrics(collector)

	var backend memory.Backend
	switch cfg.MemoryBackend {
	case config.MemoryBackendSQLite:
		sqlite, err := sqlitedb.Open(ctx, cfg.SQLitePath, config.Component(logger, "sqlite"))
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		backend, closeBackend = sqlite, sqlite.Close
	case config.MemoryBackendSurrealDB:
		client, err := db.NewClient(ctx, db.ConfigFrom(cfg), config.Component(logger, "surrealdb"))
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		closeBackend = func() error { return client.Close(context.Background()) }
		if err := client.InitSchema(ctx, embedder.Dimension()); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
		backend = client
	default:
		return fmt.Errorf("unknown memory backend %q", cfg.MemoryBackend)
	}

	store = memory.NewStore(backend, embedder,
		memory.WithLogger(config.Component(logger, "memory")),
		memory.WithMetrics(collector),
	)
	return nil
}

// getModel returns the chat model, creating it on first use.
func getModel(ctx context.Context) (*llm.Model, error) {
	if model != nil {
		return model, nil
	}
	m, err := llm.NewModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	model = m.WithMetrics(collector)
	return model, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides "+config.ConfigFileEnv+")")

	// Add subcommands
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(specialistsCmd)
}
