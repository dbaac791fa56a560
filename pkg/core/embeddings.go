package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dot-org-ai/primitives.org.ai-sub003/internal/encoding"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/embed"
)

// Embedding is the cached vector of one document
type Embedding struct {
	ID          string    `json:"id"`
	EntityType  string    `json:"entityType"`
	EntityID    string    `json:"entityId"`
	Vector      []float32 `json:"vector"`
	Model       string    `json:"model"`
	ContentHash string    `json:"contentHash,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Dimensions returns the vector length
func (e *Embedding) Dimensions() int {
	return len(e.Vector)
}

// EmbeddingStats reports cache effectiveness since the store was opened
type EmbeddingStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Generated int64 `json:"generated"`
	Stored    int   `json:"stored"`
}

// BatchResult counts the outcome of a bulk embedding operation
type BatchResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

const embeddingColumns = "id, entity_type, entity_id, vector, model, content_hash, created_at, updated_at"

// GetOrGenerate returns the cached embedding of a document, generating it on
// a miss. A document without embeddable text yields nil and no error.
func (s *SQLiteStore) GetOrGenerate(ctx context.Context, typ, id string) (*Embedding, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("embedding", err)
	}

	emb, err := s.getEmbedding(ctx, typ, id)
	if err == nil {
		s.hits.Add(1)
		return emb, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, wrapError("embedding", err)
	}
	s.misses.Add(1)

	doc, err := s.documentOfType(ctx, typ, id)
	if err != nil {
		return nil, wrapError("embedding", err)
	}
	emb, err = s.embedDocument(ctx, doc)
	if err != nil {
		return nil, wrapError("embedding", err)
	}
	return emb, nil
}

// Embedding returns a cached embedding without generating one
func (s *SQLiteStore) Embedding(ctx context.Context, typ, id string) (*Embedding, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("embedding", err)
	}
	emb, err := s.getEmbedding(ctx, typ, id)
	if err != nil {
		return nil, wrapError("embedding", err)
	}
	return emb, nil
}

// GenerateEmbeddings regenerates the embedding of every document of a type
func (s *SQLiteStore) GenerateEmbeddings(ctx context.Context, typ string) (*BatchResult, error) {
	return s.embedAll(ctx, "generate embeddings", typ, false)
}

// Warmup generates embeddings for documents of a type that have none
func (s *SQLiteStore) Warmup(ctx context.Context, typ string) (*BatchResult, error) {
	return s.embedAll(ctx, "warmup", typ, true)
}

func (s *SQLiteStore) embedAll(ctx context.Context, op, typ string, skipExisting bool) (*BatchResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError(op, err)
	}
	if typ == "" {
		return nil, wrapError(op, invalidf("type is required"))
	}

	docs, err := s.selectDocuments(ctx, typ, nil, "", "", 0, 0)
	if err != nil {
		return nil, wrapError(op, err)
	}

	result := &BatchResult{}
	for _, doc := range docs {
		if skipExisting && s.hasEmbedding(ctx, doc.Type, doc.ID) {
			result.Skipped++
			continue
		}
		s.embedInto(ctx, doc, result)
	}

	s.logger.Info(op+" finished", "type", typ, "processed", result.Processed, "skipped", result.Skipped, "errors", result.Errors)
	return result, nil
}

// BatchEmbed embeds an explicit list of documents of one type. Missing
// documents count as errors.
func (s *SQLiteStore) BatchEmbed(ctx context.Context, typ string, ids []string, skipExisting bool) (*BatchResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("batch embed", err)
	}
	if typ == "" {
		return nil, wrapError("batch embed", invalidf("type is required"))
	}

	result := &BatchResult{}
	for _, id := range ids {
		doc, err := s.documentOfType(ctx, typ, id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("batch embed lookup failed", "type", typ, "id", id, "error", err)
			}
			result.Errors++
			continue
		}
		if skipExisting && s.hasEmbedding(ctx, typ, id) {
			result.Skipped++
			continue
		}
		s.embedInto(ctx, doc, result)
	}
	return result, nil
}

func (s *SQLiteStore) embedInto(ctx context.Context, doc *Document, result *BatchResult) {
	emb, err := s.embedDocument(ctx, doc)
	switch {
	case err != nil:
		s.logger.Warn("embedding failed", "type", doc.Type, "id", doc.ID, "error", err)
		result.Errors++
	case emb == nil:
		result.Skipped++
	default:
		result.Processed++
	}
}

// EmbeddingStats returns the cache counters and the number of stored vectors
func (s *SQLiteStore) EmbeddingStats(ctx context.Context) (EmbeddingStats, error) {
	stats := EmbeddingStats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Generated: s.generated.Load(),
	}
	if err := s.ready(ctx); err != nil {
		return stats, wrapError("embedding stats", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&stats.Stored); err != nil {
		return stats, wrapError("embedding stats", err)
	}
	return stats, nil
}

// embedDocument generates and upserts the embedding of doc. It returns nil
// when the document has no embeddable text.
func (s *SQLiteStore) embedDocument(ctx context.Context, doc *Document) (*Embedding, error) {
	text := embed.ExtractText(doc.Data)
	if text == "" {
		return nil, nil
	}

	vec, model, err := s.generator.Generate(ctx, text)
	if err != nil {
		return nil, err
	}
	blob, err := encoding.EncodeVector(vec)
	if err != nil {
		return nil, err
	}

	// The row is only written while the document read above still exists.
	// A delete, or a delete and re-insert, during the embedder call leaves
	// nothing behind.
	now := millis(s.now().UTC())
	hash := embed.ContentHash(text)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, entity_type, entity_id, vector, dimensions, model, content_hash, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM documents WHERE id = ? AND type = ? AND created_at = ?)
		ON CONFLICT(entity_type, entity_id) DO UPDATE SET
			vector = excluded.vector,
			dimensions = excluded.dimensions,
			model = excluded.model,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at`,
		uuid.NewString(), doc.Type, doc.ID, blob, len(vec), model, hash, now, now,
		doc.ID, doc.Type, millis(doc.CreatedAt))
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("document %s/%s: %w", doc.Type, doc.ID, ErrNotFound)
	}
	s.generated.Add(1)

	return s.getEmbedding(ctx, doc.Type, doc.ID)
}

// reembedAsync refreshes an existing embedding after an update. Errors are
// logged; the later of two racing writes wins.
func (s *SQLiteStore) reembedAsync(typ, id string) {
	s.spawn(func() {
		ctx := context.Background()
		if err := s.ready(ctx); err != nil {
			return
		}
		doc, err := s.documentOfType(ctx, typ, id)
		if err != nil {
			s.logger.Debug("re-embed skipped", "type", typ, "id", id, "error", err)
			return
		}
		_, err = s.embedDocument(ctx, doc)
		switch {
		case errors.Is(err, ErrNotFound):
			s.logger.Debug("re-embed dropped, document gone", "type", typ, "id", id)
		case err != nil:
			s.logger.Warn("re-embed failed", "type", typ, "id", id, "error", err)
		}
	})
}

func (s *SQLiteStore) documentOfType(ctx context.Context, typ, id string) (*Document, error) {
	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Type != typ {
		return nil, fmt.Errorf("%s %s: %w", typ, id, ErrNotFound)
	}
	return doc, nil
}

func (s *SQLiteStore) hasEmbedding(ctx context.Context, typ, id string) bool {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM embeddings WHERE entity_type = ? AND entity_id = ?", typ, id).Scan(&one)
	return err == nil
}

func (s *SQLiteStore) getEmbedding(ctx context.Context, typ, id string) (*Embedding, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+embeddingColumns+" FROM embeddings WHERE entity_type = ? AND entity_id = ?", typ, id)
	emb, err := scanEmbedding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s/%s: %w", typ, id, ErrNotFound)
	}
	return emb, err
}

// embeddingsByType indexes the stored embeddings of a type by entity id
func (s *SQLiteStore) embeddingsByType(ctx context.Context, typ string) (map[string]*Embedding, error) {
	query := "SELECT " + embeddingColumns + " FROM embeddings"
	var args []any
	if typ != "" {
		query += " WHERE entity_type = ?"
		args = append(args, typ)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*Embedding)
	for rows.Next() {
		emb, err := scanEmbedding(rows)
		if err != nil {
			return nil, err
		}
		out[emb.EntityID] = emb
	}
	return out, rows.Err()
}

func scanEmbedding(row rowScanner) (*Embedding, error) {
	var (
		emb                  Embedding
		blob                 []byte
		hash                 sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&emb.ID, &emb.EntityType, &emb.EntityID, &blob, &emb.Model, &hash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	emb.ContentHash = hash.String
	vec, err := encoding.DecodeVector(blob)
	if err != nil {
		return nil, err
	}
	emb.Vector = vec
	emb.CreatedAt = fromMillis(createdAt)
	emb.UpdatedAt = fromMillis(updatedAt)
	return &emb, nil
}
