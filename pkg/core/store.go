package core

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/embed"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/filter"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/pipeline"

	_ "modernc.org/sqlite"
)

// SystemActor is recorded on events emitted without an actor in the context
const SystemActor = "system"

// Store is the operation set of one storage unit
type Store interface {
	Init(ctx context.Context) error

	Insert(ctx context.Context, typ, id string, data map[string]any) (*Document, error)
	Get(ctx context.Context, id string) (*Document, error)
	Update(ctx context.Context, id string, patch map[string]any) (*Document, error)
	Delete(ctx context.Context, id string, opts DeleteOptions) (*DeleteResult, error)
	List(ctx context.Context, opts ListOptions) ([]*Document, error)
	Query(ctx context.Context, opts QueryOptions) ([]*Document, error)
	Find(ctx context.Context, opts QueryOptions) (*Document, error)
	Aggregate(ctx context.Context, req AggregationRequest) (*AggregationResponse, error)

	Relate(ctx context.Context, from, relation, to string, metadata map[string]any) (*Relationship, error)
	UpdateRelationship(ctx context.Context, from, relation, to string, metadata map[string]any) (*Relationship, error)
	Unrelate(ctx context.Context, from, relation, to string) (bool, error)
	Relationships(ctx context.Context, q RelationshipQuery) ([]*Relationship, error)
	Traverse(ctx context.Context, opts TraverseOptions) ([]Node, error)
	TraverseFilter(ctx context.Context, opts FilterTraverseOptions) ([]Node, error)

	Emit(ctx context.Context, in EmitInput) (*Event, error)
	ListEvents(ctx context.Context, q EventQuery) ([]*Event, error)
	Replay(ctx context.Context, opts ReplayOptions) ([]*Event, error)
	Rebuild(ctx context.Context, object string) (*Document, error)
	Subscribe(ctx context.Context, pattern, webhook string) (*Subscription, error)
	Unsubscribe(ctx context.Context, id string) (bool, error)
	Subscriptions(ctx context.Context, event string) ([]*Subscription, error)

	GetOrGenerate(ctx context.Context, typ, id string) (*Embedding, error)
	GenerateEmbeddings(ctx context.Context, typ string) (*BatchResult, error)
	Warmup(ctx context.Context, typ string) (*BatchResult, error)
	BatchEmbed(ctx context.Context, typ string, ids []string, skipExisting bool) (*BatchResult, error)
	BatchStart(ctx context.Context, typ string, batchSize int) (string, error)
	BatchStatus(id string) (*BatchJob, error)
	EmbeddingStats(ctx context.Context) (EmbeddingStats, error)

	Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error)
	SemanticSearch(ctx context.Context, opts SemanticOptions) ([]SemanticResult, error)
	HybridSearch(ctx context.Context, opts HybridOptions) ([]HybridResult, error)

	Pipeline() *pipeline.Buffer
	Clear(ctx context.Context) error
	Close() error
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements one storage unit on top of SQLite
type SQLiteStore struct {
	db         *sql.DB
	config     Config
	logger     Logger
	translator filter.Translator
	generator  *embed.Generator
	events     *pipeline.Buffer
	jobs       *JobTable
	now        func() time.Time

	schemaMu    sync.Mutex
	schemaReady bool

	eventMu     sync.Mutex
	lastEventMS int64

	closeMu sync.RWMutex
	closed  bool
	bg      sync.WaitGroup

	hits      atomic.Int64
	misses    atomic.Int64
	generated atomic.Int64
}

// New opens a storage unit. The schema is created lazily by the first
// operation.
func New(cfg Config) (*SQLiteStore, error) {
	cfg = cfg.withDefaults()

	dsn := cfg.Path
	if dsn != MemoryPath {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(off)",
			cfg.Path, cfg.BusyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrapError("open", err)
	}
	// One connection: an in-memory database lives on a single connection and
	// the unit runs one logical operation at a time anyway.
	db.SetMaxOpenConns(1)

	logger := cfg.Logger.With("namespace", cfg.Namespace)
	s := &SQLiteStore{
		db:         db,
		config:     cfg,
		logger:     logger,
		translator: cfg.Translator,
		events:     pipeline.NewBuffer(cfg.Sink, cfg.Pipeline),
		jobs:       cfg.Jobs,
		now:        cfg.Now,
	}
	s.generator = &embed.Generator{
		Primary:  cfg.Embedder,
		Fallback: embed.NewFallback(),
		OnFallback: func(err error) {
			logger.Debug("primary embedder unavailable, using fallback", "error", err)
		},
	}

	logger.Debug("store opened", "path", cfg.Path)
	return s, nil
}

// Open is New with the default configuration at path
func Open(path string) (*SQLiteStore, error) {
	cfg := DefaultConfig()
	cfg.Path = path
	return New(cfg)
}

// Close waits for background embedding work and closes the database
func (s *SQLiteStore) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.bg.Wait()

	if err := s.db.Close(); err != nil {
		return wrapError("close", err)
	}
	s.logger.Debug("store closed")
	return nil
}

// DB exposes the underlying handle
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Config returns the effective configuration
func (s *SQLiteStore) Config() Config {
	return s.config
}

// Pipeline returns the unit's event buffer
func (s *SQLiteStore) Pipeline() *pipeline.Buffer {
	return s.events
}

// Jobs returns the batch job table
func (s *SQLiteStore) Jobs() *JobTable {
	return s.jobs
}

// ready fails once the store is closed and creates the schema on first use
func (s *SQLiteStore) ready(ctx context.Context) error {
	s.closeMu.RLock()
	closed := s.closed
	s.closeMu.RUnlock()
	if closed {
		return ErrStoreClosed
	}
	return s.ensureSchema(ctx)
}

// spawn runs fn on a background goroutine unless the store is closed.
// Close waits for every function spawned before it.
func (s *SQLiteStore) spawn(fn func()) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return false
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn()
	}()
	return true
}

// Init creates the schema. Every operation does this on first use.
func (s *SQLiteStore) Init(ctx context.Context) error {
	return wrapError("init", s.ready(ctx))
}

// Clear removes every row from the unit and resets its buffer and counters
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return wrapError("clear", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("clear", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"relationships", "embeddings", "events", "subscriptions", "documents"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return wrapError("clear", fmt.Errorf("%s: %w", table, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapError("clear", err)
	}

	s.events.Reset()
	s.hits.Store(0)
	s.misses.Store(0)
	s.generated.Store(0)
	s.eventMu.Lock()
	s.lastEventMS = 0
	s.eventMu.Unlock()

	s.logger.Info("store cleared")
	return nil
}

type actorKey struct{}

// WithActor attaches the acting principal recorded on emitted events
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached to ctx, or SystemActor
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
