// Package engine implements the memory engine: store operations with
// content-hash deduplication, entity resolution, relationship upkeep,
// semantic recall with full-text fallback, and reminder scheduling.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/notify"
	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// Store is the full storage surface the engine needs. The SQLite backend
// implements all of it; the embedding surfaces can be overridden with the
// Postgres semantic index via WithSemanticIndex.
type Store interface {
	storage.MemoryStore
	storage.EntityStore
	storage.RelationshipStore
	storage.TagStore
	storage.EmbeddingStore
	storage.SimilaritySearcher
	storage.SearchProvider
}

// Config holds engine tuning.
type Config struct {
	// MinSimilarity is the cosine similarity floor for semantic recall.
	MinSimilarity float64

	// DefaultLimit caps recall results when the caller doesn't specify.
	DefaultLimit int

	// RecallTimeout bounds a single recall; on expiry partial results
	// are returned rather than an error.
	RecallTimeout time.Duration

	// RelevanceHalfLife is how long an untouched memory takes to lose half
	// its relevance weight in recall ranking.
	RelevanceHalfLife time.Duration

	// ReminderHorizon is how far ahead UpcomingReminders looks by default.
	ReminderHorizon time.Duration

	// SweepSchedule is the cron expression for the due-reminder sweep.
	SweepSchedule string

	// Workers is the async embedding worker pool size.
	Workers int

	// QueueSize is the embedding job queue depth.
	QueueSize int

	// ShutdownTimeout bounds the graceful worker drain on Stop.
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MinSimilarity == 0 {
		c.MinSimilarity = 0.5
	}
	if c.DefaultLimit < 1 {
		c.DefaultLimit = 10
	}
	if c.RecallTimeout == 0 {
		c.RecallTimeout = 5 * time.Second
	}
	if c.RelevanceHalfLife == 0 {
		c.RelevanceHalfLife = 60 * 24 * time.Hour
	}
	if c.ReminderHorizon == 0 {
		c.ReminderHorizon = 7 * 24 * time.Hour
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = "*/5 * * * *"
	}
	if c.Workers < 1 {
		c.Workers = 2
	}
	if c.QueueSize < 1 {
		c.QueueSize = 256
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// embedJob asks a worker to vectorize one memory's effective text.
type embedJob struct {
	memoryID string
	text     string
}

// Engine coordinates storage, embedding, and recall.
//
// Find-or-create sequences (entities, relationships) are read-then-write and
// the stores only guarantee per-statement atomicity, so the engine serializes
// them with per-concern mutexes; unique indexes in the schema backstop the
// invariants if a second engine instance shares the database.
type Engine struct {
	store      Store
	embeddings storage.EmbeddingStore
	searcher   storage.SimilaritySearcher
	embedder   embedding.Embedder
	comparator types.SpecificityComparator
	cfg        Config
	log        zerolog.Logger

	entityMu sync.Mutex
	relMu    sync.Mutex
	memMu    sync.Mutex

	embedQueue chan embedJob
	workerWG   sync.WaitGroup

	cron          *cron.Cron
	onReminderDue func(types.Memory)
	onChange      func(eventType, memoryID string)
}

// Option customizes the engine at construction.
type Option func(*Engine)

// WithSemanticIndex routes embedding storage and similarity search to a
// dedicated index (e.g. Postgres/pgvector) instead of the primary store.
func WithSemanticIndex(es storage.EmbeddingStore, ss storage.SimilaritySearcher) Option {
	return func(e *Engine) {
		e.embeddings = es
		e.searcher = ss
	}
}

// WithComparator overrides the attribute specificity comparator used during
// entity merging.
func WithComparator(cmp types.SpecificityComparator) Option {
	return func(e *Engine) {
		e.comparator = cmp
	}
}

// WithReminderCallback registers a function invoked for each reminder the
// sweep finds due.
func WithReminderCallback(fn func(types.Memory)) Option {
	return func(e *Engine) {
		e.onReminderDue = fn
	}
}

// WithChangeNotifier registers a function invoked after each committed memory
// change (store, archive, embedding write). Used to fan change events out to
// other processes, e.g. via the notify package.
func WithChangeNotifier(fn func(eventType, memoryID string)) Option {
	return func(e *Engine) {
		e.onChange = fn
	}
}

// New creates an engine. embedder may be nil, in which case recall always
// uses full-text search and no embedding jobs are queued.
func New(store Store, embedder embedding.Embedder, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	cfg.applyDefaults()

	e := &Engine{
		store:      store,
		embeddings: store,
		searcher:   store,
		embedder:   embedder,
		comparator: types.LengthComparator{},
		cfg:        cfg,
		log:        logger,
		embedQueue: make(chan embedJob, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the embedding worker pool and the reminder sweep.
func (e *Engine) Start(ctx context.Context) error {
	for i := 0; i < e.cfg.Workers; i++ {
		e.workerWG.Add(1)
		go e.embedWorker(ctx, i)
	}
	e.log.Info().Int("workers", e.cfg.Workers).Msg("embedding workers started")

	e.cron = cron.New()
	if _, err := e.cron.AddFunc(e.cfg.SweepSchedule, func() { e.sweepReminders(ctx) }); err != nil {
		return err
	}
	e.cron.Start()
	e.log.Info().Str("schedule", e.cfg.SweepSchedule).Msg("reminder sweep scheduled")

	return nil
}

// Stop drains the embedding queue and halts the reminder sweep. Workers get
// ShutdownTimeout to finish in-flight jobs before being abandoned.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cron != nil {
		cronCtx := e.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-time.After(e.cfg.ShutdownTimeout):
			e.log.Warn().Msg("reminder sweep did not stop in time")
		}
	}

	close(e.embedQueue)

	done := make(chan struct{})
	go func() {
		e.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info().Msg("embedding workers drained")
		return nil
	case <-time.After(e.cfg.ShutdownTimeout):
		e.log.Warn().Int("queued", len(e.embedQueue)).Msg("shutdown timeout, dropping queued embedding jobs")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queueEmbedding enqueues an embedding job, dropping it when the queue is
// full. A dropped job means the memory is only reachable through full-text
// search until re-stored; recall stays correct either way.
func (e *Engine) queueEmbedding(memory *types.Memory) {
	if e.embedder == nil {
		return
	}

	job := embedJob{
		memoryID: memory.ID,
		text:     memory.EffectiveText(embedding.MaxEmbedChars),
	}

	select {
	case e.embedQueue <- job:
	default:
		e.log.Warn().Str("memory_id", memory.ID).Msg("embedding queue full, dropping job")
	}
}

// embedWorker vectorizes queued memories until the queue closes.
func (e *Engine) embedWorker(ctx context.Context, workerID int) {
	defer e.workerWG.Done()

	for job := range e.embedQueue {
		e.processEmbedJob(ctx, workerID, job)
	}

	e.log.Debug().Int("worker", workerID).Msg("embedding worker stopped")
}

func (e *Engine) processEmbedJob(ctx context.Context, workerID int, job embedJob) {
	vector, err := e.embedder.Embed(ctx, job.text)
	if err != nil {
		e.log.Warn().Err(err).Int("worker", workerID).Str("memory_id", job.memoryID).
			Msg("embedding generation failed")
		return
	}

	// Use a background context for the write so shutdown doesn't lose a
	// vector we already paid for.
	emb := &types.Embedding{
		MemoryID:   job.memoryID,
		Vector:     vector,
		Model:      e.embedder.Model(),
		Dimensions: len(vector),
		Magnitude:  types.Magnitude(vector),
	}
	if err := e.embeddings.StoreEmbedding(context.Background(), emb); err != nil {
		e.log.Error().Err(err).Str("memory_id", job.memoryID).Msg("failed to store embedding")
		return
	}
	e.notifyChange(notify.EventEmbeddingReady, job.memoryID)
}

// notifyChange fans a committed change out to the registered notifier, if any.
func (e *Engine) notifyChange(eventType, memoryID string) {
	if e.onChange != nil {
		e.onChange(eventType, memoryID)
	}
}
