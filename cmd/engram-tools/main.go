// cmd/engram-tools is the stdio tool server for the Engram memory engine.
// It speaks JSON-RPC 2.0 (MCP-compatible) on stdin/stdout.
//
// Startup sequence:
//  1. Load configuration (defaults, optional YAML file, ENGRAM_ env vars).
//  2. Open the SQLite store; optionally attach the Postgres semantic index.
//  3. Build the embedding provider and wrap it in the vector cache.
//  4. Start the engine (embedding workers, reminder sweep).
//  5. Serve requests from stdin until EOF or a shutdown signal.
//
// All logging goes to stderr. Bytes written to stdout that are not JSON-RPC
// response frames corrupt the protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/engramdev/engram/internal/api/tools"
	"github.com/engramdev/engram/internal/backup"
	"github.com/engramdev/engram/internal/cache"
	"github.com/engramdev/engram/internal/config"
	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/engine"
	"github.com/engramdev/engram/internal/notify"
	"github.com/engramdev/engram/internal/storage/postgres"
	"github.com/engramdev/engram/internal/storage/sqlite"
	"github.com/engramdev/engram/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engram-tools: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	dataDir := filepath.Dir(cfg.Storage.Path)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	store, err := sqlite.New(cfg.Storage.Path, logger)
	if err != nil {
		return fmt.Errorf("opening database %s: %w", cfg.Storage.Path, err)
	}
	defer func() { _ = store.Close() }()

	opts := []engine.Option{}

	if cfg.Storage.PostgresDSN != "" {
		index, err := postgres.New(cfg.Storage.PostgresDSN, 0, logger)
		if err != nil {
			return fmt.Errorf("connecting semantic index: %w", err)
		}
		defer func() { _ = index.Close() }()
		opts = append(opts, engine.WithSemanticIndex(index, index))
		logger.Info().Msg("postgres semantic index attached")
	}

	embedder, err := buildEmbedder(cfg.Embedding, logger)
	if err != nil {
		return err
	}

	// Peer processes sharing the data directory (webhook ingester, future
	// web UI) pick committed changes up through the events directory.
	writer := notify.NewEventWriter(dataDir)
	opts = append(opts, engine.WithChangeNotifier(func(eventType, memoryID string) {
		if err := writer.Notify(eventType, memoryID); err != nil {
			logger.Warn().Err(err).Str("event", eventType).Msg("change notification failed")
		}
	}))
	opts = append(opts, engine.WithReminderCallback(func(m types.Memory) {
		logger.Info().Str("memory_id", m.ID).Str("content", m.Content).Msg("reminder due")
	}))

	eng := engine.New(store, embedder, engine.Config{
		MinSimilarity:     cfg.Recall.MinSimilarity,
		DefaultLimit:      cfg.Recall.DefaultLimit,
		RecallTimeout:     cfg.Recall.Timeout,
		RelevanceHalfLife: cfg.Recall.RelevanceHalfLife,
		ReminderHorizon:   cfg.Reminders.Horizon,
		SweepSchedule:     cfg.Reminders.SweepSchedule,
		Workers:           cfg.Embedding.Workers,
		QueueSize:         cfg.Embedding.QueueSize,
	}, logger, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := eng.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("engine shutdown error")
		}
	}()

	if cfg.Backup.Dir != "" {
		backups, err := backup.New(backup.Config{
			DBPath:   cfg.Storage.Path,
			Dir:      cfg.Backup.Dir,
			Schedule: cfg.Backup.Schedule,
			Verify:   cfg.Backup.Verify,
		}, logger)
		if err != nil {
			return err
		}
		if err := backups.Start(ctx); err != nil {
			return err
		}
		defer backups.Stop()
	}

	watcher := notify.NewEventWatcher(dataDir, logger, func(eventType, memoryID string) {
		logger.Debug().Str("event", eventType).Str("memory_id", memoryID).
			Msg("change event from peer process")
	})
	if err := watcher.Start(); err != nil {
		logger.Warn().Err(err).Msg("change watcher unavailable")
	} else {
		defer watcher.Stop()
	}

	server := tools.NewServer(eng, logger)
	transport := tools.NewStdioTransport(server, os.Stdin, os.Stdout, logger)

	logger.Info().Str("db", cfg.Storage.Path).Str("embedding", cfg.Embedding.Provider).
		Msg("engram tool server ready")
	return transport.Serve(ctx)
}

// buildEmbedder constructs the configured embedding provider, wrapped in the
// LRU vector cache. Provider "none" returns nil: recall then always uses
// full-text search.
func buildEmbedder(cfg config.EmbeddingConfig, logger zerolog.Logger) (embedding.Embedder, error) {
	var inner embedding.Embedder
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "ollama":
		inner = embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
		}, logger)
	case "openai":
		var err error
		inner, err = embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("building openai embedder: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	return embedding.NewCachedEmbedder(inner, cache.NewLRU(cfg.CacheSize, cfg.CacheTTL)), nil
}

// newLogger builds the stderr logger. Stdout belongs to the JSON-RPC stream.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.Pretty {
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(out).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
