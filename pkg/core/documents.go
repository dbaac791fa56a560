package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dot-org-ai/primitives.org.ai-sub003/internal/encoding"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/filter"
)

// Document is a typed JSON object
type Document struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Object returns the "Type/id" name events use for this document
func (d *Document) Object() string {
	return ObjectName(d.Type, d.ID)
}

// ObjectName joins a document type and id into an event object name
func ObjectName(typ, id string) string {
	return typ + "/" + id
}

// ListOptions pages through documents in insertion order
type ListOptions struct {
	Type   string `json:"type,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// QueryOptions selects documents of one type
type QueryOptions struct {
	Type    string         `json:"type"`
	Where   map[string]any `json:"where,omitempty"`
	OrderBy string         `json:"orderBy,omitempty"`
	Order   string         `json:"order,omitempty"` // "asc" or "desc"
	Limit   int            `json:"limit,omitempty"`
	Offset  int            `json:"offset,omitempty"`
}

// DeleteOptions controls cascading deletes
type DeleteOptions struct {
	// Cascade also deletes documents reachable over outgoing relationships
	Cascade bool `json:"cascade,omitempty"`
	// CascadeDepth bounds the walk; nil is unbounded and 0 deletes no targets
	CascadeDepth *int `json:"cascadeDepth,omitempty"`
}

// Depth is a convenience for DeleteOptions.CascadeDepth
func Depth(n int) *int {
	return &n
}

// DeleteResult reports what a delete removed
type DeleteResult struct {
	Deleted  bool     `json:"deleted"`
	Cascaded []string `json:"cascaded,omitempty"`
}

const documentColumns = "id, type, data, created_at, updated_at"

// Insert stores a new document. An empty id gets a generated UUID.
func (s *SQLiteStore) Insert(ctx context.Context, typ, id string, data map[string]any) (*Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("insert", err)
	}
	if strings.TrimSpace(typ) == "" {
		return nil, wrapError("insert", invalidf("type is required"))
	}
	if data == nil {
		data = map[string]any{}
	}
	if id == "" {
		id = uuid.NewString()
	}

	if _, err := s.getDocument(ctx, id); err == nil {
		return nil, wrapError("insert", fmt.Errorf("document %s: %w", id, ErrConflict))
	} else if !errors.Is(err, ErrNotFound) {
		return nil, wrapError("insert", err)
	}

	body, err := encoding.EncodeJSON(data)
	if err != nil {
		return nil, wrapError("insert", invalidf("data: %v", err))
	}
	if !body.Valid {
		body = sql.NullString{String: "{}", Valid: true}
	}

	// a fresh document never inherits the vector of an earlier one with the same id
	if _, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE entity_id = ?", id); err != nil {
		return nil, wrapError("insert", err)
	}

	now := s.now().UTC()
	ms := millis(now)
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (id, type, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		id, typ, body, ms, ms)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, wrapError("insert", fmt.Errorf("document %s: %w", id, ErrConflict))
		}
		return nil, wrapError("insert", err)
	}

	doc := &Document{ID: id, Type: typ, Data: data, CreatedAt: fromMillis(ms), UpdatedAt: fromMillis(ms)}
	if err := s.emit(ctx, typ+".created", doc.Object(), data, doc, nil); err != nil {
		return nil, wrapError("insert", err)
	}

	s.logger.Debug("document inserted", "type", typ, "id", id)
	return doc, nil
}

// Get returns a document by id
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("get", err)
	}
	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, wrapError("get", err)
	}
	return doc, nil
}

func (s *SQLiteStore) getDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, err
}

// Update shallow-merges patch into a document's data
func (s *SQLiteStore) Update(ctx context.Context, id string, patch map[string]any) (*Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("update", err)
	}
	if patch == nil {
		return nil, wrapError("update", invalidf("data is required"))
	}

	old, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, wrapError("update", err)
	}

	merged := make(map[string]any, len(old.Data)+len(patch))
	for k, v := range old.Data {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}

	body, err := encoding.EncodeJSON(merged)
	if err != nil {
		return nil, wrapError("update", invalidf("data: %v", err))
	}

	ms := millis(s.now().UTC())
	if _, err := s.db.ExecContext(ctx,
		"UPDATE documents SET data = ?, updated_at = ? WHERE id = ?", body, ms, id); err != nil {
		return nil, wrapError("update", err)
	}

	doc := &Document{ID: id, Type: old.Type, Data: merged, CreatedAt: old.CreatedAt, UpdatedAt: fromMillis(ms)}
	if err := s.emit(ctx, doc.Type+".updated", doc.Object(), patch, doc, old.Data); err != nil {
		return nil, wrapError("update", err)
	}

	if s.hasEmbedding(ctx, doc.Type, id) {
		s.reembedAsync(doc.Type, id)
	}
	return doc, nil
}

// Delete removes a document with its relationships and embedding. A missing
// document yields Deleted=false and no error.
func (s *SQLiteStore) Delete(ctx context.Context, id string, opts DeleteOptions) (*DeleteResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("delete", err)
	}

	doc, err := s.getDocument(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return &DeleteResult{}, nil
	}
	if err != nil {
		return nil, wrapError("delete", err)
	}

	// Targets are collected before anything is removed so the walk sees the
	// whole graph.
	var targets []string
	if opts.Cascade {
		depth := maxCascadeDepth
		if opts.CascadeDepth != nil {
			depth = *opts.CascadeDepth
		}
		if targets, err = s.cascadeTargets(ctx, id, depth); err != nil {
			return nil, wrapError("delete", err)
		}
	}

	if err := s.deleteDocument(ctx, doc); err != nil {
		return nil, wrapError("delete", err)
	}

	result := &DeleteResult{Deleted: true}
	for _, target := range targets {
		tdoc, err := s.getDocument(ctx, target)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return result, wrapError("delete", err)
		}
		if err := s.deleteDocument(ctx, tdoc); err != nil {
			return result, wrapError("delete", err)
		}
		result.Cascaded = append(result.Cascaded, target)
	}

	s.logger.Debug("document deleted", "type", doc.Type, "id", id, "cascaded", len(result.Cascaded))
	return result, nil
}

func (s *SQLiteStore) deleteDocument(ctx context.Context, doc *Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		"DELETE FROM relationships WHERE from_id = ? OR to_id = ?",
		"DELETE FROM embeddings WHERE entity_id = ? AND entity_type = ?",
		"DELETE FROM documents WHERE id = ? AND type = ?",
	}
	args := [][]any{{doc.ID, doc.ID}, {doc.ID, doc.Type}, {doc.ID, doc.Type}}
	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, args[i]...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	return s.emit(ctx, doc.Type+".deleted", doc.Object(), nil, nil, doc.Data)
}

// List returns documents in insertion order
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("list", err)
	}
	docs, err := s.selectDocuments(ctx, opts.Type, nil, "", "", opts.Limit, opts.Offset)
	if err != nil {
		return nil, wrapError("list", err)
	}
	return docs, nil
}

// Query returns documents of one type matching a where clause. An invalid
// orderBy field falls back to insertion order.
func (s *SQLiteStore) Query(ctx context.Context, opts QueryOptions) ([]*Document, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("query", err)
	}
	if strings.TrimSpace(opts.Type) == "" {
		return nil, wrapError("query", invalidf("type is required"))
	}
	docs, err := s.selectDocuments(ctx, opts.Type, filter.Parse(opts.Where), opts.OrderBy, opts.Order, opts.Limit, opts.Offset)
	if err != nil {
		return nil, wrapError("query", err)
	}
	return docs, nil
}

// Find returns the first match of Query, or nil when nothing matches
func (s *SQLiteStore) Find(ctx context.Context, opts QueryOptions) (*Document, error) {
	opts.Limit = 1
	docs, err := s.Query(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

func (s *SQLiteStore) selectDocuments(ctx context.Context, typ string, conds []filter.Condition, orderBy, order string, limit, offset int) ([]*Document, error) {
	var (
		where []string
		args  []any
	)
	if typ != "" {
		where = append(where, "type = ?")
		args = append(args, typ)
	}
	if clause, cargs := s.translator.Translate(conds); clause != "" {
		where = append(where, "("+clause+")")
		args = append(args, cargs...)
	}

	var b strings.Builder
	b.WriteString("SELECT " + documentColumns + " FROM documents")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	if expr, ok := s.translator.OrderExpr(orderBy); orderBy != "" && ok {
		dir := "ASC"
		if strings.EqualFold(order, "desc") {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s, rowid", expr, dir)
	} else {
		b.WriteString(" ORDER BY rowid")
	}

	b.WriteString(limitClause(limit, offset, &args))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// limitClause renders LIMIT/OFFSET; SQLite needs a LIMIT before OFFSET
func limitClause(limit, offset int, args *[]any) string {
	switch {
	case limit > 0 && offset > 0:
		*args = append(*args, limit, offset)
		return " LIMIT ? OFFSET ?"
	case limit > 0:
		*args = append(*args, limit)
		return " LIMIT ?"
	case offset > 0:
		*args = append(*args, offset)
		return " LIMIT -1 OFFSET ?"
	}
	return ""
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc       Document
		data      sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&doc.ID, &doc.Type, &data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	obj, err := encoding.DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	doc.Data = obj
	doc.CreatedAt = fromMillis(createdAt)
	doc.UpdatedAt = fromMillis(updatedAt)
	return &doc, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
