// Package pipeline buffers emitted event records and hands them to an
// external sink in batches.
//
// The buffer is volatile: records appended but not yet flushed are lost if
// the process exits. The event log remains the system of record; the
// pipeline is a secondary export path.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBatchSize triggers an automatic flush
const DefaultBatchSize = 100

// Config is mutable at runtime through Configure
type Config struct {
	BatchSize    int  `json:"batchSize" yaml:"batch_size"`
	RetryEnabled bool `json:"retryEnabled" yaml:"retry_enabled"`
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	return Config{BatchSize: DefaultBatchSize, RetryEnabled: true}
}

// Stats is a snapshot of the buffer counters
type Stats struct {
	EventsProcessed int64  `json:"eventsProcessed"`
	BatchesSent     int64  `json:"batchesSent"`
	BatchesFailed   int64  `json:"batchesFailed"`
	Buffered        int    `json:"buffered"`
	Config          Config `json:"config"`
}

// Batch is the serialized form written to the sink
type Batch struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"createdAt"`
	Count     int               `json:"count"`
	Records   []json.RawMessage `json:"records"`
}

// FlushResult describes a batch handed to the sink
type FlushResult struct {
	BatchID string `json:"batchId"`
	Key     string `json:"key"`
	Count   int    `json:"count"`
}

// Buffer queues records in memory
type Buffer struct {
	mu      sync.Mutex
	sink    Sink
	cfg     Config
	records []json.RawMessage
	stats   Stats
	now     func() time.Time
}

// NewBuffer creates a buffer writing to sink. A nil sink discards batches
// into a fresh MemorySink.
func NewBuffer(sink Sink, cfg Config) *Buffer {
	if sink == nil {
		sink = NewMemorySink()
	}
	return &Buffer{
		sink: sink,
		cfg:  sanitize(cfg),
		now:  time.Now,
	}
}

func sanitize(cfg Config) Config {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return cfg
}

// Sink returns the sink batches are written to
func (b *Buffer) Sink() Sink {
	return b.sink
}

// Append queues one record and flushes when the buffer reaches the batch
// size. The returned result is non-nil only when a flush happened.
func (b *Buffer) Append(ctx context.Context, record any) (*FlushResult, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encode record: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, raw)
	b.stats.EventsProcessed++
	if len(b.records) < b.cfg.BatchSize {
		return nil, nil
	}
	return b.flushLocked(ctx)
}

// Flush writes the entire buffer as one batch. Flushing an empty buffer is a
// no-op and returns nil.
func (b *Buffer) Flush(ctx context.Context) (*FlushResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

func (b *Buffer) flushLocked(ctx context.Context) (*FlushResult, error) {
	if len(b.records) == 0 {
		return nil, nil
	}

	now := b.now().UTC()
	batch := Batch{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Count:     len(b.records),
		Records:   b.records,
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encode batch: %w", err)
	}

	key := BatchKey(now, batch.ID)
	if err := b.sink.Put(ctx, key, body); err != nil {
		if !b.cfg.RetryEnabled {
			b.records = nil
			b.stats.BatchesFailed++
		}
		return nil, fmt.Errorf("pipeline: write batch %s: %w", key, err)
	}

	b.records = nil
	b.stats.BatchesSent++
	return &FlushResult{BatchID: batch.ID, Key: key, Count: batch.Count}, nil
}

// BatchKey derives the sink key of a batch from its UTC date and id
func BatchKey(t time.Time, batchID string) string {
	t = t.UTC()
	return fmt.Sprintf("events/%04d/%02d/%02d/%s.json", t.Year(), t.Month(), t.Day(), batchID)
}

// Configure replaces the runtime configuration. A non-positive batch size
// selects the default. Lowering the batch size below the current buffer
// length does not flush by itself; the next Append does.
func (b *Buffer) Configure(cfg Config) Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg = sanitize(cfg)
	return b.cfg
}

// Config returns the current configuration
func (b *Buffer) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg
}

// Stats returns a snapshot of the counters
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Buffered = len(b.records)
	s.Config = b.cfg
	return s
}

// Reset drops buffered records and zeroes the counters
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = nil
	b.stats = Stats{}
}
