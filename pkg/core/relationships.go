package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dot-org-ai/primitives.org.ai-sub003/internal/encoding"
)

// Relationship is a directed labelled edge between two documents
type Relationship struct {
	From      string         `json:"from"`
	Relation  string         `json:"relation"`
	To        string         `json:"to"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Object returns the "from->relation->to" name events use for this edge
func (r *Relationship) Object() string {
	return r.From + "->" + r.Relation + "->" + r.To
}

// RelationshipQuery filters edges; empty fields match anything
type RelationshipQuery struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Relation string `json:"relation,omitempty"`
}

func relationshipEventData(r *Relationship) map[string]any {
	return map[string]any{
		"from":     r.From,
		"relation": r.Relation,
		"to":       r.To,
		"metadata": r.Metadata,
	}
}

func checkEdge(from, relation, to string) (string, error) {
	relation = strings.TrimSpace(relation)
	if from == "" || to == "" {
		return "", invalidf("from and to are required")
	}
	if relation == "" {
		return "", invalidf("relation is required")
	}
	if strings.Contains(relation, ",") {
		return "", invalidf("relation %q must not contain a comma", relation)
	}
	return relation, nil
}

// Relate creates the edge (from, relation, to) or replaces the metadata of an
// existing one. Both endpoints must exist.
func (s *SQLiteStore) Relate(ctx context.Context, from, relation, to string, metadata map[string]any) (*Relationship, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("relate", err)
	}
	relation, err := checkEdge(from, relation, to)
	if err != nil {
		return nil, wrapError("relate", err)
	}

	for _, id := range []string{from, to} {
		if _, err := s.getDocument(ctx, id); errors.Is(err, ErrNotFound) {
			return nil, wrapError("relate", fmt.Errorf("document %s: %w", id, ErrReferential))
		} else if err != nil {
			return nil, wrapError("relate", err)
		}
	}

	prev, err := s.getRelationship(ctx, from, relation, to)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, wrapError("relate", err)
	}

	meta, err := encoding.EncodeJSON(metadata)
	if err != nil {
		return nil, wrapError("relate", invalidf("metadata: %v", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (from_id, relation, to_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_id, relation, to_id) DO UPDATE SET metadata = excluded.metadata`,
		from, relation, to, meta, millis(s.now().UTC()))
	if err != nil {
		return nil, wrapError("relate", err)
	}

	rel, err := s.getRelationship(ctx, from, relation, to)
	if err != nil {
		return nil, wrapError("relate", err)
	}

	var previous any
	if prev != nil {
		previous = prev.Metadata
	}
	if err := s.emit(ctx, "relationship.created", rel.Object(), relationshipEventData(rel), rel, previous); err != nil {
		return nil, wrapError("relate", err)
	}
	return rel, nil
}

// UpdateRelationship replaces the metadata of an existing edge
func (s *SQLiteStore) UpdateRelationship(ctx context.Context, from, relation, to string, metadata map[string]any) (*Relationship, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("update relationship", err)
	}
	relation, err := checkEdge(from, relation, to)
	if err != nil {
		return nil, wrapError("update relationship", err)
	}

	prev, err := s.getRelationship(ctx, from, relation, to)
	if err != nil {
		return nil, wrapError("update relationship", err)
	}

	meta, err := encoding.EncodeJSON(metadata)
	if err != nil {
		return nil, wrapError("update relationship", invalidf("metadata: %v", err))
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE relationships SET metadata = ? WHERE from_id = ? AND relation = ? AND to_id = ?",
		meta, from, relation, to); err != nil {
		return nil, wrapError("update relationship", err)
	}

	rel := *prev
	rel.Metadata = metadata
	if err := s.emit(ctx, "relationship.updated", rel.Object(), relationshipEventData(&rel), &rel, prev.Metadata); err != nil {
		return nil, wrapError("update relationship", err)
	}
	return &rel, nil
}

// Unrelate removes an edge and reports whether it existed
func (s *SQLiteStore) Unrelate(ctx context.Context, from, relation, to string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, wrapError("unrelate", err)
	}
	relation = strings.TrimSpace(relation)

	prev, err := s.getRelationship(ctx, from, relation, to)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrapError("unrelate", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM relationships WHERE from_id = ? AND relation = ? AND to_id = ?",
		from, relation, to); err != nil {
		return false, wrapError("unrelate", err)
	}

	if err := s.emit(ctx, "relationship.deleted", prev.Object(), relationshipEventData(prev), nil, prev.Metadata); err != nil {
		return true, wrapError("unrelate", err)
	}
	return true, nil
}

// Relationships lists edges in creation order
func (s *SQLiteStore) Relationships(ctx context.Context, q RelationshipQuery) ([]*Relationship, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("relationships", err)
	}

	var (
		where []string
		args  []any
	)
	if q.From != "" {
		where = append(where, "from_id = ?")
		args = append(args, q.From)
	}
	if q.To != "" {
		where = append(where, "to_id = ?")
		args = append(args, q.To)
	}
	if r := strings.TrimSpace(q.Relation); r != "" {
		where = append(where, "relation = ?")
		args = append(args, r)
	}

	query := "SELECT from_id, relation, to_id, metadata, created_at FROM relationships"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("relationships", err)
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, wrapError("relationships", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("relationships", err)
	}
	return out, nil
}

func (s *SQLiteStore) getRelationship(ctx context.Context, from, relation, to string) (*Relationship, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT from_id, relation, to_id, metadata, created_at FROM relationships WHERE from_id = ? AND relation = ? AND to_id = ?",
		from, relation, to)
	rel, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("relationship %s->%s->%s: %w", from, relation, to, ErrNotFound)
	}
	return rel, err
}

func scanRelationship(row rowScanner) (*Relationship, error) {
	var (
		rel       Relationship
		meta      sql.NullString
		createdAt int64
	)
	if err := row.Scan(&rel.From, &rel.Relation, &rel.To, &meta, &createdAt); err != nil {
		return nil, err
	}
	m, err := encoding.DecodeObject(meta)
	if err != nil {
		return nil, err
	}
	rel.Metadata = m
	rel.CreatedAt = fromMillis(createdAt)
	return &rel, nil
}
