package core

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/dot-org-ai/primitives.org.ai-sub003/internal/encoding"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/filter"
)

// Direction of a traversal relative to the start document
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
	Both     Direction = "both"
)

// Node is a document reached by a traversal. Rel carries the metadata of the
// edge that reached it when requested.
type Node struct {
	*Document
	Rel map[string]any `json:"$rel,omitempty"`
}

// TraverseOptions selects a walk. Exactly one of From, To or ID (with
// Direction) names the start document.
type TraverseOptions struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	ID   string `json:"id,omitempty"`

	// Relation is required; a comma-separated list walks one relation per hop
	Relation  string    `json:"relation"`
	Direction Direction `json:"direction,omitempty"`
	// MaxDepth forces a multi-hop walk; 0 defaults to the number of relations
	MaxDepth        int    `json:"maxDepth,omitempty"`
	Type            string `json:"type,omitempty"`
	IncludeMetadata bool   `json:"includeMetadata,omitempty"`
}

// FilterTraverseOptions walks one outgoing hop keeping edges whose metadata
// matches Where
type FilterTraverseOptions struct {
	From            string         `json:"from"`
	Relation        string         `json:"relation,omitempty"`
	Where           map[string]any `json:"where,omitempty"`
	Type            string         `json:"type,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata,omitempty"`
}

type hop struct {
	id       string
	metadata map[string]any
}

// Traverse walks relationships from a start document
func (s *SQLiteStore) Traverse(ctx context.Context, opts TraverseOptions) ([]Node, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("traverse", err)
	}

	relations := splitRelations(opts.Relation)
	if len(relations) == 0 {
		return nil, wrapError("traverse", invalidf("relation is required"))
	}

	var (
		hops []hop
		err  error
	)
	multi := len(relations) > 1 || opts.MaxDepth > 0

	switch {
	case opts.ID != "" && opts.Direction != "":
		hops, err = s.bidirectional(ctx, opts.ID, relations[0], opts.Direction)
	case opts.From != "":
		if multi {
			hops, err = s.walk(ctx, opts.From, relations, opts.MaxDepth, false)
		} else {
			hops, err = s.singleHop(ctx, opts.From, relations[0], false)
		}
	case opts.To != "":
		if multi {
			hops, err = s.walk(ctx, opts.To, relations, opts.MaxDepth, true)
		} else {
			hops, err = s.singleHop(ctx, opts.To, relations[0], true)
		}
	default:
		return nil, wrapError("traverse", invalidf("one of from, to or id with direction is required"))
	}
	if err != nil {
		return nil, wrapError("traverse", err)
	}

	nodes, err := s.resolve(ctx, hops, opts.Type, opts.IncludeMetadata)
	if err != nil {
		return nil, wrapError("traverse", err)
	}
	return nodes, nil
}

// TraverseFilter walks one outgoing hop and keeps edges whose metadata
// satisfies the where clause
func (s *SQLiteStore) TraverseFilter(ctx context.Context, opts FilterTraverseOptions) ([]Node, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("traverse filter", err)
	}
	if opts.From == "" {
		return nil, wrapError("traverse filter", invalidf("from is required"))
	}

	conds := filter.Parse(opts.Where)
	all, err := s.neighbors(ctx, opts.From, strings.TrimSpace(opts.Relation), false)
	if err != nil {
		return nil, wrapError("traverse filter", err)
	}

	var kept []hop
	for _, h := range all {
		meta := h.metadata
		if meta == nil {
			meta = map[string]any{}
		}
		if filter.Match(conds, meta) {
			kept = append(kept, h)
		}
	}

	nodes, err := s.resolve(ctx, dedupe(kept), opts.Type, opts.IncludeMetadata)
	if err != nil {
		return nil, wrapError("traverse filter", err)
	}
	return nodes, nil
}

func (s *SQLiteStore) singleHop(ctx context.Context, id, relation string, incoming bool) ([]hop, error) {
	hops, err := s.neighbors(ctx, id, relation, incoming)
	if err != nil {
		return nil, err
	}
	return dedupe(hops), nil
}

func (s *SQLiteStore) bidirectional(ctx context.Context, id, relation string, dir Direction) ([]hop, error) {
	if dir != Outgoing && dir != Incoming && dir != Both {
		return nil, invalidf("unknown direction %q", dir)
	}

	var hops []hop
	if dir == Outgoing || dir == Both {
		out, err := s.neighbors(ctx, id, relation, false)
		if err != nil {
			return nil, err
		}
		hops = append(hops, out...)
	}
	if dir == Incoming || dir == Both {
		in, err := s.neighbors(ctx, id, relation, true)
		if err != nil {
			return nil, err
		}
		hops = append(hops, in...)
	}
	return dedupe(hops), nil
}

// walk follows relations hop by hop; hop i uses relations[i], the last
// relation repeating when maxDepth exceeds the list. The result is the
// frontier after the final hop.
func (s *SQLiteStore) walk(ctx context.Context, start string, relations []string, maxDepth int, incoming bool) ([]hop, error) {
	if maxDepth <= 0 {
		maxDepth = len(relations)
	}

	visited := map[string]bool{}
	if len(relations) > 1 {
		visited[start] = true
	}

	frontier := []hop{{id: start}}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		relation := relations[min(depth, len(relations)-1)]
		final := depth == maxDepth-1

		seen := map[string]bool{}
		var next []hop
		for _, cur := range frontier {
			hops, err := s.neighbors(ctx, cur.id, relation, incoming)
			if err != nil {
				return nil, err
			}
			for _, h := range hops {
				if seen[h.id] || (!final && visited[h.id]) {
					continue
				}
				seen[h.id] = true
				next = append(next, h)
			}
		}

		for _, h := range next {
			visited[h.id] = true
		}
		frontier = next
	}
	return frontier, nil
}

// neighbors lists edges leaving (or, when incoming, entering) id in creation
// order. An empty relation matches every relation.
func (s *SQLiteStore) neighbors(ctx context.Context, id, relation string, incoming bool) ([]hop, error) {
	query := "SELECT to_id, metadata FROM relationships WHERE from_id = ?"
	if incoming {
		query = "SELECT from_id, metadata FROM relationships WHERE to_id = ?"
	}
	args := []any{id}
	if relation != "" {
		query += " AND relation = ?"
		args = append(args, relation)
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hops []hop
	for rows.Next() {
		var (
			h    hop
			meta sql.NullString
		)
		if err := rows.Scan(&h.id, &meta); err != nil {
			return nil, err
		}
		if h.metadata, err = encoding.DecodeObject(meta); err != nil {
			return nil, err
		}
		hops = append(hops, h)
	}
	return hops, rows.Err()
}

// resolve loads the documents behind hops, dropping missing ones and those
// of another type
func (s *SQLiteStore) resolve(ctx context.Context, hops []hop, typ string, includeMetadata bool) ([]Node, error) {
	nodes := make([]Node, 0, len(hops))
	for _, h := range hops {
		doc, err := s.getDocument(ctx, h.id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if typ != "" && doc.Type != typ {
			continue
		}
		node := Node{Document: doc}
		if includeMetadata && h.metadata != nil {
			node.Rel = h.metadata
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func dedupe(hops []hop) []hop {
	seen := make(map[string]bool, len(hops))
	out := hops[:0:0]
	for _, h := range hops {
		if seen[h.id] {
			continue
		}
		seen[h.id] = true
		out = append(out, h)
	}
	return out
}

func splitRelations(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
