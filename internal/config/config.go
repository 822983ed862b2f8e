// Package config provides configuration for the Engram memory engine.
// Settings load in three layers: explicit defaults, an optional YAML file,
// then environment variables with the ENGRAM_ prefix. Later layers win,
// so a deployment can ship a YAML baseline and override per-host via env.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all settings for the Engram memory engine.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Recall    RecallConfig    `yaml:"recall"`
	Reminders RemindersConfig `yaml:"reminders"`
	Backup    BackupConfig    `yaml:"backup"`
	Log       LogConfig       `yaml:"log"`
}

// StorageConfig selects and tunes the storage backends.
type StorageConfig struct {
	// Path is the SQLite database path.
	Path string `yaml:"path" envconfig:"DB_PATH"`

	// PostgresDSN, when set, enables the Postgres semantic index for
	// embeddings and similarity search. SQLite stays the system of record.
	PostgresDSN string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN"`
}

// EmbeddingConfig tunes vector generation.
type EmbeddingConfig struct {
	// Provider is the embedding provider: ollama, openai, or none.
	Provider string `yaml:"provider" envconfig:"EMBEDDING_PROVIDER"`

	// OllamaURL is the Ollama base URL.
	OllamaURL string `yaml:"ollama_url" envconfig:"OLLAMA_URL"`

	// OllamaModel is the Ollama embedding model.
	OllamaModel string `yaml:"ollama_model" envconfig:"OLLAMA_MODEL"`

	// OpenAIAPIKey authenticates the OpenAI provider.
	OpenAIAPIKey string `yaml:"openai_api_key" envconfig:"OPENAI_API_KEY"`

	// OpenAIModel is the OpenAI embedding model.
	OpenAIModel string `yaml:"openai_model" envconfig:"OPENAI_MODEL"`

	// CacheSize is the max number of cached vectors.
	CacheSize int `yaml:"cache_size" envconfig:"EMBEDDING_CACHE_SIZE"`

	// CacheTTL bounds how long cached vectors live.
	CacheTTL time.Duration `yaml:"cache_ttl" envconfig:"EMBEDDING_CACHE_TTL"`

	// Workers is the size of the async embedding worker pool.
	Workers int `yaml:"workers" envconfig:"EMBEDDING_WORKERS"`

	// QueueSize is the embedding job queue depth. When the queue is full,
	// jobs are dropped (the memory stays searchable via full text).
	QueueSize int `yaml:"queue_size" envconfig:"EMBEDDING_QUEUE_SIZE"`
}

// RecallConfig tunes the recall engine.
type RecallConfig struct {
	// MinSimilarity is the cosine similarity floor for semantic matches.
	MinSimilarity float64 `yaml:"min_similarity" envconfig:"RECALL_MIN_SIMILARITY"`

	// DefaultLimit caps recall results when the caller doesn't specify.
	DefaultLimit int `yaml:"default_limit" envconfig:"RECALL_DEFAULT_LIMIT"`

	// Timeout bounds a single recall; on expiry partial results are
	// returned rather than an error.
	Timeout time.Duration `yaml:"timeout" envconfig:"RECALL_TIMEOUT"`

	// RelevanceHalfLife is how long an untouched memory takes to lose
	// half its relevance weight in recall ranking.
	RelevanceHalfLife time.Duration `yaml:"relevance_half_life" envconfig:"RECALL_RELEVANCE_HALF_LIFE"`
}

// RemindersConfig tunes the reminder sweep.
type RemindersConfig struct {
	// SweepSchedule is a cron expression for the due-reminder sweep.
	SweepSchedule string `yaml:"sweep_schedule" envconfig:"REMINDER_SWEEP_SCHEDULE"`

	// Horizon is how far ahead upcoming-reminder queries look by default.
	Horizon time.Duration `yaml:"horizon" envconfig:"REMINDER_HORIZON"`
}

// BackupConfig tunes the scheduled database snapshot service.
type BackupConfig struct {
	// Dir is the snapshot directory. Empty disables backups.
	Dir string `yaml:"dir" envconfig:"BACKUP_DIR"`

	// Schedule is a cron expression for automated snapshots.
	Schedule string `yaml:"schedule" envconfig:"BACKUP_SCHEDULE"`

	// Verify runs an integrity check on each snapshot.
	Verify bool `yaml:"verify" envconfig:"BACKUP_VERIFY"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool `yaml:"pretty" envconfig:"LOG_PRETTY"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Path: "./data/engram.db",
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "nomic-embed-text",
			OpenAIModel: "text-embedding-3-small",
			CacheSize:   4096,
			CacheTTL:    24 * time.Hour,
			Workers:     2,
			QueueSize:   256,
		},
		Recall: RecallConfig{
			MinSimilarity:     0.5,
			DefaultLimit:      10,
			Timeout:           5 * time.Second,
			RelevanceHalfLife: 60 * 24 * time.Hour,
		},
		Reminders: RemindersConfig{
			SweepSchedule: "*/5 * * * *",
			Horizon:       7 * 24 * time.Hour,
		},
		Backup: BackupConfig{
			Schedule: "0 * * * *",
			Verify:   true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: Default, then the YAML file at path (if
// path is non-empty and the file exists), then ENGRAM_-prefixed environment
// variables. Fields without tags — and env vars left unset — never disturb
// the earlier layers.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("ENGRAM", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Embedding.Provider {
	case "ollama", "openai", "none":
	default:
		return fmt.Errorf("invalid embedding provider %q (want ollama, openai, or none)", c.Embedding.Provider)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.OpenAIAPIKey == "" {
		return fmt.Errorf("openai embedding provider requires ENGRAM_OPENAI_API_KEY")
	}
	if c.Recall.MinSimilarity < -1 || c.Recall.MinSimilarity > 1 {
		return fmt.Errorf("recall min similarity %v out of range [-1, 1]", c.Recall.MinSimilarity)
	}
	return nil
}
