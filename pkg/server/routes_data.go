package server

import (
	"net/http"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
)

type createRequest struct {
	Type string         `json:"type"`
	ID   string         `json:"id,omitempty"`
	Data map[string]any `json:"data"`
}

type updateRequest struct {
	Data map[string]any `json:"data"`
}

func (s *Server) registerDataRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /data", s.unit(s.handleCreate))
	mux.HandleFunc("GET /data", s.unit(s.handleList))
	mux.HandleFunc("GET /data/{id}", s.unit(s.handleGet))
	mux.HandleFunc("PATCH /data/{id}", s.unit(s.handleUpdate))
	mux.HandleFunc("DELETE /data/{id}", s.unit(s.handleDelete))
	mux.HandleFunc("POST /query", s.unit(s.handleQuery))
	mux.HandleFunc("POST /query/find", s.unit(s.handleFind))
	mux.HandleFunc("POST /aggregate", s.unit(s.handleAggregate))
	mux.HandleFunc("POST /clear", s.unit(s.handleClear))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req createRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		s.missing(w, "type")
		return
	}

	doc, err := store.Insert(r.Context(), req.Type, req.ID, req.Data)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	doc, err := store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	q := query(r)
	opts := core.ListOptions{
		Type:   q.str("type"),
		Limit:  q.int("limit"),
		Offset: q.int("offset"),
	}
	if q.err != nil {
		s.writeError(w, http.StatusBadRequest, q.err.Error())
		return
	}

	docs, err := store.List(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(docs))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Data == nil {
		s.missing(w, "data")
		return
	}

	doc, err := store.Update(r.Context(), r.PathValue("id"), req.Data)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	q := query(r)
	opts := core.DeleteOptions{Cascade: q.bool("cascade")}
	if q.str("depth") != "" {
		opts.CascadeDepth = core.Depth(q.int("depth"))
	}
	if q.err != nil {
		s.writeError(w, http.StatusBadRequest, q.err.Error())
		return
	}

	res, err := store.Delete(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var opts core.QueryOptions
	if !s.decode(w, r, &opts) {
		return
	}

	docs, err := store.Query(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(docs))
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var opts core.QueryOptions
	if !s.decode(w, r, &opts) {
		return
	}

	doc, err := store.Find(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req core.AggregationRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := store.Aggregate(r.Context(), req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	if err := store.Clear(r.Context()); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// nonNil keeps empty results encoding as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
