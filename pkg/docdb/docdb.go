// Package docdb is the in-process API of a storage unit: thin calls onto
// pkg/core for documents, search, relationships, events, actions and
// artifacts.
package docdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/embed"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/pipeline"
)

// DB wraps one storage unit
type DB struct {
	store core.Store
}

// Option is a functional option for configuring the unit opened by Open
type Option func(*core.Config)

// WithEmbedder sets the primary embedding model
func WithEmbedder(e embed.Embedder) Option {
	return func(c *core.Config) {
		c.Embedder = e
	}
}

// WithLogger sets the logger
func WithLogger(l core.Logger) Option {
	return func(c *core.Config) {
		c.Logger = l
	}
}

// WithSink sets where flushed event batches go
func WithSink(s pipeline.Sink) Option {
	return func(c *core.Config) {
		c.Sink = s
	}
}

// WithPipeline sets the event buffer configuration
func WithPipeline(cfg pipeline.Config) Option {
	return func(c *core.Config) {
		c.Pipeline = cfg
	}
}

// Open opens the unit at path (core.MemoryPath for a private in-memory one)
func Open(path string, opts ...Option) (*DB, error) {
	cfg := core.DefaultConfig()
	cfg.Path = path
	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := core.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	return New(store), nil
}

// New wraps an open store
func New(store core.Store) *DB {
	return &DB{store: store}
}

// Store returns the underlying store
func (db *DB) Store() core.Store {
	return db.store
}

// Close closes the unit
func (db *DB) Close() error {
	return db.store.Close()
}

// Clear removes everything stored in the unit
func (db *DB) Clear(ctx context.Context) error {
	return db.store.Clear(ctx)
}

// ListOptions pages through documents of a type. Where and OrderBy switch
// to a filtered query.
type ListOptions struct {
	Where   map[string]any
	OrderBy string
	Order   string
	Limit   int
	Offset  int
}

// Get returns a document, or nil when it does not exist
func (db *DB) Get(ctx context.Context, id string) (*core.Document, error) {
	doc, err := db.store.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	return doc, err
}

// List returns documents of a type
func (db *DB) List(ctx context.Context, typ string, opts ListOptions) ([]*core.Document, error) {
	if len(opts.Where) > 0 || opts.OrderBy != "" {
		return db.store.Query(ctx, core.QueryOptions{
			Type:    typ,
			Where:   opts.Where,
			OrderBy: opts.OrderBy,
			Order:   opts.Order,
			Limit:   opts.Limit,
			Offset:  opts.Offset,
		})
	}
	return db.store.List(ctx, core.ListOptions{Type: typ, Limit: opts.Limit, Offset: opts.Offset})
}

// Create inserts a document; an empty id is generated
func (db *DB) Create(ctx context.Context, typ, id string, data map[string]any) (*core.Document, error) {
	return db.store.Insert(ctx, typ, id, data)
}

// Update shallow-merges data into a document
func (db *DB) Update(ctx context.Context, id string, data map[string]any) (*core.Document, error) {
	return db.store.Update(ctx, id, data)
}

// Delete removes a document and reports whether it existed
func (db *DB) Delete(ctx context.Context, id string) (bool, error) {
	res, err := db.store.Delete(ctx, id, core.DeleteOptions{})
	if err != nil {
		return false, err
	}
	return res.Deleted, nil
}

// Search runs full-text search over a type
func (db *DB) Search(ctx context.Context, typ, query string, limit int) ([]core.SearchResult, error) {
	return db.store.Search(ctx, core.SearchOptions{Type: typ, Query: query, Limit: limit})
}

// SemanticSearch ranks a type by embedding similarity
func (db *DB) SemanticSearch(ctx context.Context, typ, query string, limit int) ([]core.SemanticResult, error) {
	return db.store.SemanticSearch(ctx, core.SemanticOptions{Type: typ, Query: query, Limit: limit})
}

// HybridSearch fuses full-text and semantic rankings
func (db *DB) HybridSearch(ctx context.Context, opts core.HybridOptions) ([]core.HybridResult, error) {
	return db.store.HybridSearch(ctx, opts)
}

// Related returns the documents one relation away from id. An empty
// direction means outgoing.
func (db *DB) Related(ctx context.Context, id, relation string, dir core.Direction) ([]core.Node, error) {
	opts := core.TraverseOptions{Relation: relation, IncludeMetadata: true}
	switch dir {
	case "", core.Outgoing:
		opts.From = id
	case core.Incoming:
		opts.To = id
	default:
		opts.ID = id
		opts.Direction = dir
	}
	return db.store.Traverse(ctx, opts)
}

// Relate creates or updates an edge
func (db *DB) Relate(ctx context.Context, from, relation, to string, metadata map[string]any) (*core.Relationship, error) {
	return db.store.Relate(ctx, from, relation, to, metadata)
}

// Unrelate removes an edge
func (db *DB) Unrelate(ctx context.Context, from, relation, to string) (bool, error) {
	return db.store.Unrelate(ctx, from, relation, to)
}

// On subscribes a webhook to events matching pattern
func (db *DB) On(ctx context.Context, pattern, webhook string) (*core.Subscription, error) {
	return db.store.Subscribe(ctx, pattern, webhook)
}

// Emit appends a custom event
func (db *DB) Emit(ctx context.Context, event, object string, data any) (*core.Event, error) {
	return db.store.Emit(ctx, core.EmitInput{Event: event, Object: object, Data: data})
}

// ListEvents pages through the event log
func (db *DB) ListEvents(ctx context.Context, q core.EventQuery) ([]*core.Event, error) {
	return db.store.ListEvents(ctx, q)
}
