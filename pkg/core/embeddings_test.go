package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/embed"
)

func TestGetOrGenerateCaches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Insert(ctx, "Post", "p1", map[string]any{"title": "machine learning", "createdAt": "2024"})
	require.NoError(t, err)

	emb, err := s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)
	require.NotNil(t, emb)
	assert.Equal(t, embed.FallbackDimensions, emb.Dimensions())
	assert.Equal(t, embed.FallbackModel, emb.Model)
	assert.Equal(t, embed.ContentHash("machine learning"), emb.ContentHash)

	again, err := s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.Equal(t, emb.ID, again.ID)
	assert.Equal(t, emb.Vector, again.Vector)

	stats, err := s.EmbeddingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Generated)
	assert.Equal(t, 1, stats.Stored)
}

func TestGetOrGenerateEdgeCases(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Insert(ctx, "Post", "empty", map[string]any{"_internal": "x", "$meta": "y", "updatedAt": "z", "flag": true})
	require.NoError(t, err)

	emb, err := s.GetOrGenerate(ctx, "Post", "empty")
	require.NoError(t, err)
	assert.Nil(t, emb)

	_, err = s.GetOrGenerate(ctx, "Post", "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetOrGenerate(ctx, "Comment", "empty")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPrimaryEmbedderAndFallback(t *testing.T) {
	ctx := context.Background()

	primary := embed.Func{Name: "stub-3", Fn: func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}}
	s := newTestStoreWith(t, Config{Embedder: primary})
	_, err := s.Insert(ctx, "Post", "p1", map[string]any{"title": "anything"})
	require.NoError(t, err)
	emb, err := s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.Equal(t, "stub-3", emb.Model)
	assert.Equal(t, []float32{1, 0, 0}, emb.Vector)

	failing := embed.Func{Name: "down", Fn: func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}}
	s = newTestStoreWith(t, Config{Embedder: failing})
	_, err = s.Insert(ctx, "Post", "p1", map[string]any{"title": "anything"})
	require.NoError(t, err)
	emb, err = s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.Equal(t, embed.FallbackModel, emb.Model)
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Insert(ctx, "Post", "p1", map[string]any{"title": "pizza"})
	require.NoError(t, err)
	first, err := s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)

	res, err := s.GenerateEmbeddings(ctx, "Post")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	second, err := s.Embedding(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestUpdateReembedsInBackground(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Insert(ctx, "Post", "p1", map[string]any{"title": "pizza"})
	require.NoError(t, err)
	first, err := s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)

	_, err = s.Update(ctx, "p1", map[string]any{"title": "neural networks"})
	require.NoError(t, err)

	want := embed.ContentHash("neural networks")
	require.Eventually(t, func() bool {
		emb, err := s.Embedding(ctx, "Post", "p1")
		return err == nil && emb.ContentHash == want
	}, 5*time.Second, 10*time.Millisecond)

	emb, err := s.Embedding(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Vector, emb.Vector)
}

func TestDeleteRemovesEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Insert(ctx, "Post", "p1", map[string]any{"title": "pizza"})
	require.NoError(t, err)
	_, err = s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)

	_, err = s.Delete(ctx, "p1", DeleteOptions{})
	require.NoError(t, err)
	_, err = s.Embedding(ctx, "Post", "p1")
	require.ErrorIs(t, err, ErrNotFound)
}

// gatedEmbedder blocks every call made while hold is set until release is closed
type gatedEmbedder struct {
	hold    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedEmbedder() *gatedEmbedder {
	return &gatedEmbedder{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedEmbedder) embedder() embed.Embedder {
	return embed.Func{Name: "gated", Fn: func(ctx context.Context, text string) ([]float32, error) {
		if g.hold.Load() {
			g.entered <- struct{}{}
			<-g.release
		}
		return []float32{1, 0, 0}, nil
	}}
}

func (g *gatedEmbedder) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("embedder was not called")
	}
}

func TestReembedDoesNotResurrectDeletedDocument(t *testing.T) {
	ctx := context.Background()
	gate := newGatedEmbedder()
	s := newTestStoreWith(t, Config{Embedder: gate.embedder(), Now: newStepClock(time.Millisecond).Now})

	_, err := s.Insert(ctx, "Post", "p1", map[string]any{"title": "neural"})
	require.NoError(t, err)
	_, err = s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)

	gate.hold.Store(true)
	_, err = s.Update(ctx, "p1", map[string]any{"title": "neural networks"})
	require.NoError(t, err)
	gate.waitEntered(t)

	res, err := s.Delete(ctx, "p1", DeleteOptions{})
	require.NoError(t, err)
	require.True(t, res.Deleted)

	gate.hold.Store(false)
	close(gate.release)
	s.bg.Wait()

	var rows int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM embeddings WHERE entity_id = ?", "p1").Scan(&rows))
	assert.Zero(t, rows)

	_, err = s.Insert(ctx, "Post", "p1", map[string]any{"title": "pizza"})
	require.NoError(t, err)
	emb, err := s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.Equal(t, embed.ContentHash("pizza"), emb.ContentHash)
}

func TestReembedSkipsReinsertedDocument(t *testing.T) {
	ctx := context.Background()
	gate := newGatedEmbedder()
	s := newTestStoreWith(t, Config{Embedder: gate.embedder(), Now: newStepClock(time.Millisecond).Now})

	_, err := s.Insert(ctx, "Post", "p1", map[string]any{"title": "neural"})
	require.NoError(t, err)
	_, err = s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)

	gate.hold.Store(true)
	_, err = s.Update(ctx, "p1", map[string]any{"title": "neural networks"})
	require.NoError(t, err)
	gate.waitEntered(t)

	_, err = s.Delete(ctx, "p1", DeleteOptions{})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "Post", "p1", map[string]any{"title": "pizza"})
	require.NoError(t, err)

	gate.hold.Store(false)
	close(gate.release)
	s.bg.Wait()

	_, err = s.Embedding(ctx, "Post", "p1")
	require.ErrorIs(t, err, ErrNotFound)

	emb, err := s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.Equal(t, embed.ContentHash("pizza"), emb.ContentHash)
}

func TestInsertDropsLeftoverEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Init(ctx))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, entity_type, entity_id, vector, dimensions, model, content_hash, created_at, updated_at)
		VALUES ('stale', 'Post', 'p1', x'010000000000803f', 1, 'old', 'old', 0, 0)`)
	require.NoError(t, err)

	_, err = s.Insert(ctx, "Post", "p1", map[string]any{"title": "pizza"})
	require.NoError(t, err)

	emb, err := s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.NotEqual(t, "stale", emb.ID)
	assert.Equal(t, embed.ContentHash("pizza"), emb.ContentHash)
}

func TestEmbeddingWithoutContentHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Insert(ctx, "Post", "p1", map[string]any{"title": "pizza"})
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, entity_type, entity_id, vector, dimensions, model, content_hash, created_at, updated_at)
		VALUES ('e1', 'Post', 'p1', x'010000000000803f', 1, 'imported', NULL, 0, 0)`)
	require.NoError(t, err)

	emb, err := s.GetOrGenerate(ctx, "Post", "p1")
	require.NoError(t, err)
	assert.Equal(t, "e1", emb.ID)
	assert.Empty(t, emb.ContentHash)
	assert.Equal(t, []float32{1}, emb.Vector)
}

func TestBackgroundWorkAfterClose(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	release := make(chan struct{})
	var finished atomic.Bool
	require.True(t, s.spawn(func() {
		<-release
		finished.Store(true)
	}))

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()

	require.Eventually(t, func() bool {
		return !s.spawn(func() {})
	}, 5*time.Second, time.Millisecond)
	select {
	case <-closed:
		t.Fatal("Close returned before background work finished")
	default:
	}

	close(release)
	require.NoError(t, <-closed)
	assert.True(t, finished.Load())

	_, err := s.BatchStart(ctx, "Post", 10)
	require.ErrorIs(t, err, ErrStoreClosed)
}

func TestBulkEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Insert(ctx, "Post", "a", map[string]any{"title": "sql database"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "Post", "b", map[string]any{"title": "golang code"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "Post", "c", map[string]any{"score": true})
	require.NoError(t, err)
	_, err = s.GetOrGenerate(ctx, "Post", "a")
	require.NoError(t, err)

	res, err := s.Warmup(ctx, "Post")
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{Processed: 1, Skipped: 2}, res)

	res, err = s.BatchEmbed(ctx, "Post", []string{"a", "b", "ghost"}, true)
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{Skipped: 2, Errors: 1}, res)

	res, err = s.BatchEmbed(ctx, "Post", []string{"a", "b"}, false)
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{Processed: 2}, res)

	res, err = s.GenerateEmbeddings(ctx, "Post")
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{Processed: 2, Skipped: 1}, res)

	_, err = s.Warmup(ctx, "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestBatchJob(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := s.Insert(ctx, "Post", id, map[string]any{"title": "recipe " + id})
		require.NoError(t, err)
	}

	id, err := s.BatchStart(ctx, "Post", 2)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var job *BatchJob
	require.Eventually(t, func() bool {
		job, err = s.BatchStatus(id)
		return err == nil && job.Status == JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 5, job.Total)
	assert.Equal(t, 5, job.Processed)
	assert.Zero(t, job.Errors)
	assert.NotNil(t, job.CompletedAt)

	stats, err := s.EmbeddingStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Stored)

	_, err = s.BatchStatus("unknown")
	require.ErrorIs(t, err, ErrNotFound)
}
