package server

import (
	"net/http"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
)

type relationRequest struct {
	From     string         `json:"from"`
	Relation string         `json:"relation"`
	To       string         `json:"to"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) registerGraphRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rels", s.unit(s.handleRelate))
	mux.HandleFunc("PATCH /rels", s.unit(s.handleUpdateRelation))
	mux.HandleFunc("DELETE /rels", s.unit(s.handleUnrelate))
	mux.HandleFunc("GET /rels", s.unit(s.handleRelations))
	mux.HandleFunc("GET /traverse", s.unit(s.handleTraverse))
	mux.HandleFunc("POST /traverse", s.unit(s.handleTraverse))
	mux.HandleFunc("POST /traverse/filter", s.unit(s.handleTraverseFilter))
}

func (s *Server) handleRelate(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req relationRequest
	if !s.decode(w, r, &req) {
		return
	}

	rel, err := store.Relate(r.Context(), req.From, req.Relation, req.To, req.Metadata)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleUpdateRelation(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req relationRequest
	if !s.decode(w, r, &req) {
		return
	}

	rel, err := store.UpdateRelationship(r.Context(), req.From, req.Relation, req.To, req.Metadata)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rel)
}

// handleUnrelate takes the edge from the query string, or from a JSON body
// when the query names no source
func (s *Server) handleUnrelate(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	q := query(r)
	req := relationRequest{From: q.str("from"), Relation: q.str("relation"), To: q.str("to")}
	if req.From == "" && r.ContentLength != 0 {
		if !s.decode(w, r, &req) {
			return
		}
	}

	removed, err := store.Unrelate(r.Context(), req.From, req.Relation, req.To)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": removed})
}

func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	q := query(r)
	rels, err := store.Relationships(r.Context(), core.RelationshipQuery{
		From:     q.str("from"),
		To:       q.str("to"),
		Relation: q.str("relation"),
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(rels))
}

// handleTraverse accepts its options as query parameters on GET and as a
// JSON body on POST
func (s *Server) handleTraverse(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var opts core.TraverseOptions
	if r.Method == http.MethodPost {
		if !s.decode(w, r, &opts) {
			return
		}
	} else {
		q := query(r)
		opts = core.TraverseOptions{
			From:            q.str("from"),
			To:              q.str("to"),
			ID:              q.str("id"),
			Relation:        q.str("relation"),
			Direction:       core.Direction(q.str("direction")),
			MaxDepth:        q.int("maxDepth"),
			Type:            q.str("type"),
			IncludeMetadata: q.bool("includeMetadata"),
		}
		if q.err != nil {
			s.writeError(w, http.StatusBadRequest, q.err.Error())
			return
		}
	}

	nodes, err := store.Traverse(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(nodes))
}

func (s *Server) handleTraverseFilter(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var opts core.FilterTraverseOptions
	if !s.decode(w, r, &opts) {
		return
	}

	nodes, err := store.TraverseFilter(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(nodes))
}
