// Package config loads runtime configuration and sets up logging.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider names accepted for LLM and embedding backends.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Memory backends.
const (
	MemoryBackendSurrealDB = "surrealdb"
	MemoryBackendSQLite    = "sqlite"
)

// ConfigFileEnv names the optional YAML file layered under the environment.
const ConfigFileEnv = "FALACHEFE_CONFIG"

// Config holds all configuration values.
type Config struct {
	// Memory storage
	MemoryBackend string
	SQLitePath    string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM
	LLMProvider     string
	LLMModel        string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string
	AWSRegion       string

	// Embeddings
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int

	// Messaging channel
	UAZAPIBaseURL string
	UAZAPIToken   string

	// Business data
	SupabaseURL     string
	SupabaseKey     string
	FinancialAPIURL string

	// Specialists
	SpecialistCatalog string
	DefaultSpecialist string

	// Pipeline bounds
	ClassifyTimeout   time.Duration
	ClassifyRetries   int
	EnrichTimeout     time.Duration
	SpecialistTimeout time.Duration
	MemoryTimeout     time.Duration
	DeliveryTimeout   time.Duration
	InlineSources     []string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

var defaults = map[string]any{
	"MEMORY_BACKEND": MemoryBackendSurrealDB,
	"SQLITE_PATH":    "falachefe.db",

	"SURREALDB_URL":        "ws://localhost:8000/rpc",
	"SURREALDB_NAMESPACE":  "falachefe",
	"SURREALDB_DATABASE":   "memory",
	"SURREALDB_USER":       "root",
	"SURREALDB_PASS":       "root",
	"SURREALDB_AUTH_LEVEL": "root",

	"LLM_PROVIDER":      ProviderOpenAI,
	"LLM_MODEL":         "gpt-4o-mini",
	"OPENAI_API_KEY":    "",
	"ANTHROPIC_API_KEY": "",
	"OLLAMA_HOST":       "http://localhost:11434",
	"AWS_REGION":        "us-east-1",

	"EMBED_PROVIDER":  ProviderOpenAI,
	"EMBED_MODEL":     "text-embedding-3-small",
	"EMBED_DIMENSION": 1536,

	"UAZAPI_BASE_URL": "https://falachefe.uazapi.com",
	"UAZAPI_TOKEN":    "",

	"SUPABASE_URL":              "",
	"SUPABASE_SERVICE_ROLE_KEY": "",
	"FALACHEFE_API_URL":         "http://localhost:3000",

	"FALACHEFE_SPECIALISTS":       "",
	"FALACHEFE_DEFAULT_SPECIALIST": "financial",

	"FALACHEFE_CLASSIFY_TIMEOUT":   "15s",
	"FALACHEFE_CLASSIFY_RETRIES":   2,
	"FALACHEFE_ENRICH_TIMEOUT":     "10s",
	"FALACHEFE_SPECIALIST_TIMEOUT": "120s",
	"FALACHEFE_MEMORY_TIMEOUT":     "15s",
	"FALACHEFE_DELIVERY_TIMEOUT":   "30s",
	"FALACHEFE_INLINE_SOURCES":     "web-chat",

	"FALACHEFE_LOG_FILE":  "/tmp/falachefe.log",
	"FALACHEFE_LOG_LEVEL": "INFO",
}

// Load reads configuration from environment variables, layered over the optional
// YAML file named by FALACHEFE_CONFIG. Load never fails; a broken config file is
// logged and ignored.
func Load() Config {
	v := newViper()
	if path := v.GetString(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("failed to read config file, using environment only", "file", path, "error", err)
		}
	}
	return fromViper(v)
}

// LoadFile reads configuration from a YAML file with environment overrides.
func LoadFile(path string) (Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return fromViper(v), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	return v
}

func fromViper(v *viper.Viper) Config {
	return Config{
		MemoryBackend: strings.ToLower(v.GetString("MEMORY_BACKEND")),
		SQLitePath:    v.GetString("SQLITE_PATH"),

		SurrealDBURL:       v.GetString("SURREALDB_URL"),
		SurrealDBNamespace: v.GetString("SURREALDB_NAMESPACE"),
		SurrealDBDatabase:  v.GetString("SURREALDB_DATABASE"),
		SurrealDBUser:      v.GetString("SURREALDB_USER"),
		SurrealDBPass:      v.GetString("SURREALDB_PASS"),
		SurrealDBAuthLevel: v.GetString("SURREALDB_AUTH_LEVEL"),

		LLMProvider:     strings.ToLower(v.GetString("LLM_PROVIDER")),
		LLMModel:        v.GetString("LLM_MODEL"),
		OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
		AnthropicAPIKey: v.GetString("ANTHROPIC_API_KEY"),
		OllamaHost:      v.GetString("OLLAMA_HOST"),
		AWSRegion:       v.GetString("AWS_REGION"),

		EmbedProvider:  strings.ToLower(v.GetString("EMBED_PROVIDER")),
		EmbedModel:     v.GetString("EMBED_MODEL"),
		EmbedDimension: v.GetInt("EMBED_DIMENSION"),

		UAZAPIBaseURL: strings.TrimRight(v.GetString("UAZAPI_BASE_URL"), "/"),
		UAZAPIToken:   v.GetString("UAZAPI_TOKEN"),

		SupabaseURL:     strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseKey:     v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
		FinancialAPIURL: strings.TrimRight(v.GetString("FALACHEFE_API_URL"), "/"),

		SpecialistCatalog: v.GetString("FALACHEFE_SPECIALISTS"),
		DefaultSpecialist: v.GetString("FALACHEFE_DEFAULT_SPECIALIST"),

		ClassifyTimeout:   v.GetDuration("FALACHEFE_CLASSIFY_TIMEOUT"),
		ClassifyRetries:   v.GetInt("FALACHEFE_CLASSIFY_RETRIES"),
		EnrichTimeout:     v.GetDuration("FALACHEFE_ENRICH_TIMEOUT"),
		SpecialistTimeout: v.GetDuration("FALACHEFE_SPECIALIST_TIMEOUT"),
		MemoryTimeout:     v.GetDuration("FALACHEFE_MEMORY_TIMEOUT"),
		DeliveryTimeout:   v.GetDuration("FALACHEFE_DELIVERY_TIMEOUT"),
		InlineSources:     splitList(v.GetString("FALACHEFE_INLINE_SOURCES")),

		LogFile:  v.GetString("FALACHEFE_LOG_FILE"),
		LogLevel: parseLogLevel(v.GetString("FALACHEFE_LOG_LEVEL")),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
