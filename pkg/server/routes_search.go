package server

import (
	"net/http"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
)

type typeRequest struct {
	Type string `json:"type"`
}

type batchRequest struct {
	Type         string   `json:"type"`
	IDs          []string `json:"ids"`
	SkipExisting bool     `json:"skipExisting,omitempty"`
}

type batchStartRequest struct {
	Type      string `json:"type"`
	BatchSize int    `json:"batchSize,omitempty"`
}

func (s *Server) registerSearchRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /search", s.unit(s.handleSearch))
	mux.HandleFunc("POST /search/semantic", s.unit(s.handleSemanticSearch))
	mux.HandleFunc("POST /search/hybrid", s.unit(s.handleHybridSearch))

	mux.HandleFunc("GET /embeddings/stats", s.unit(s.handleEmbeddingStats))
	mux.HandleFunc("GET /embeddings/{type}/{id}", s.unit(s.handleEmbedding))
	mux.HandleFunc("POST /embeddings/generate", s.unit(s.handleGenerate))
	mux.HandleFunc("POST /embeddings/warmup", s.unit(s.handleWarmup))
	mux.HandleFunc("POST /embeddings/batch", s.unit(s.handleBatchEmbed))
	mux.HandleFunc("POST /embeddings/batch/start", s.unit(s.handleBatchStart))
	mux.HandleFunc("GET /embeddings/batch/{job}", s.unit(s.handleBatchStatus))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var opts core.SearchOptions
	if !s.decode(w, r, &opts) {
		return
	}

	results, err := store.Search(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(results))
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var opts core.SemanticOptions
	if !s.decode(w, r, &opts) {
		return
	}

	results, err := store.SemanticSearch(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(results))
}

func (s *Server) handleHybridSearch(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var opts core.HybridOptions
	if !s.decode(w, r, &opts) {
		return
	}

	results, err := store.HybridSearch(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(results))
}

// handleEmbedding answers null for a document without embeddable text
func (s *Server) handleEmbedding(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	emb, err := store.GetOrGenerate(r.Context(), r.PathValue("type"), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, emb)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req typeRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := store.GenerateEmbeddings(r.Context(), req.Type)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWarmup(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req typeRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := store.Warmup(r.Context(), req.Type)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatchEmbed(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := store.BatchEmbed(r.Context(), req.Type, req.IDs, req.SkipExisting)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatchStart(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req batchStartRequest
	if !s.decode(w, r, &req) {
		return
	}

	id, err := store.BatchStart(r.Context(), req.Type, req.BatchSize)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"jobId": id})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	job, err := store.BatchStatus(r.PathValue("job"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleEmbeddingStats(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	stats, err := store.EmbeddingStats(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
