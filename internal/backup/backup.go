// Package backup provides scheduled SQLite snapshots with tiered retention
// and integrity verification. Snapshots use VACUUM INTO, which produces a
// consistent point-in-time copy even with WAL mode active.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Config holds backup service settings.
type Config struct {
	// DBPath is the SQLite database file to snapshot.
	DBPath string

	// Dir is where snapshots are written.
	Dir string

	// Schedule is a cron expression for automated snapshots.
	Schedule string

	// Retention caps how many snapshots each age tier keeps.
	Retention RetentionPolicy

	// Verify runs an integrity check on each snapshot after writing it.
	Verify bool
}

// Result reports one completed snapshot.
type Result struct {
	Path     string
	Size     int64
	Duration time.Duration
	Verified bool
}

// Service runs scheduled snapshots of the engram database.
type Service struct {
	cfg  Config
	log  zerolog.Logger
	cron *cron.Cron

	mu       sync.Mutex
	lastRun  time.Time
	lastSize int64
}

// New validates the config and creates the snapshot directory.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("backup: database path is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup: snapshot directory is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 * * * *"
	}
	cfg.Retention.applyDefaults()

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("backup: creating %s: %w", cfg.Dir, err)
	}

	return &Service{cfg: cfg, log: logger}, nil
}

// Start schedules automated snapshots. Call Stop to halt them.
func (s *Service) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Run(ctx); err != nil {
			s.log.Error().Err(err).Msg("scheduled backup failed")
		}
	}); err != nil {
		return fmt.Errorf("backup: invalid schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.cfg.Schedule).Str("dir", s.cfg.Dir).Msg("backup service started")
	return nil
}

// Stop halts scheduled snapshots and waits for an in-flight one to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Run takes one snapshot, verifies it when configured, and prunes old
// snapshots per the retention policy.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	if _, err := os.Stat(s.cfg.DBPath); err != nil {
		return nil, fmt.Errorf("backup: database not found: %w", err)
	}

	name := fmt.Sprintf("engram-%s.db", start.UTC().Format("20060102-150405.000000"))
	path := filepath.Join(s.cfg.Dir, name)

	if err := snapshot(ctx, s.cfg.DBPath, path); err != nil {
		return nil, err
	}

	result := &Result{Path: path, Duration: time.Since(start)}
	if info, err := os.Stat(path); err == nil {
		result.Size = info.Size()
	}

	if s.cfg.Verify {
		if err := verifySnapshot(ctx, path); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("backup: snapshot failed verification: %w", err)
		}
		result.Verified = true
	}

	if err := prune(s.cfg.Dir, s.cfg.Retention); err != nil {
		s.log.Warn().Err(err).Msg("retention pruning failed")
	}

	s.mu.Lock()
	s.lastRun = start
	s.lastSize = result.Size
	s.mu.Unlock()

	s.log.Info().Str("path", path).Int64("size", result.Size).
		Dur("took", result.Duration).Bool("verified", result.Verified).Msg("snapshot written")
	return result, nil
}

// LastRun reports when the most recent snapshot completed and its size.
func (s *Service) LastRun() (time.Time, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastSize
}
