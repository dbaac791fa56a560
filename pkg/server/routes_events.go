package server

import (
	"net/http"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
)

type subscribeRequest struct {
	Pattern string `json:"pattern"`
	Webhook string `json:"webhook"`
}

type rebuildRequest struct {
	Object string `json:"object"`
}

func (s *Server) registerEventRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /events", s.unit(s.handleEmit))
	mux.HandleFunc("GET /events", s.unit(s.handleListEvents))
	mux.HandleFunc("GET /events/replay", s.unit(s.handleReplay))
	mux.HandleFunc("POST /events/rebuild", s.unit(s.handleRebuild))
	mux.HandleFunc("POST /events/subscriptions", s.unit(s.handleSubscribe))
	mux.HandleFunc("GET /events/subscriptions", s.unit(s.handleSubscriptions))
	mux.HandleFunc("DELETE /events/subscriptions/{id}", s.unit(s.handleUnsubscribe))
}

func (s *Server) registerPipelineRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /pipeline/stats", s.unit(s.handlePipelineStats))
	mux.HandleFunc("POST /pipeline/flush", s.unit(s.handlePipelineFlush))
	mux.HandleFunc("GET /pipeline/config", s.unit(s.handlePipelineConfig))
	mux.HandleFunc("PUT /pipeline/config", s.unit(s.handleConfigurePipeline))
}

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var in core.EmitInput
	if !s.decode(w, r, &in) {
		return
	}
	if in.Event == "" {
		s.missing(w, "event")
		return
	}

	ev, err := store.Emit(r.Context(), in)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	q := query(r)
	eq := core.EventQuery{
		Event:  q.str("event"),
		Object: q.str("object"),
		Since:  q.time("since"),
		Until:  q.time("until"),
		Cursor: q.str("cursor"),
		Order:  q.str("order"),
		Limit:  q.int("limit"),
		Offset: q.int("offset"),
	}
	if q.err != nil {
		s.writeError(w, http.StatusBadRequest, q.err.Error())
		return
	}

	events, err := store.ListEvents(r.Context(), eq)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(events))
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	q := query(r)
	opts := core.ReplayOptions{
		Object: q.str("object"),
		Event:  q.str("event"),
		Since:  q.time("since"),
	}
	if q.err != nil {
		s.writeError(w, http.StatusBadRequest, q.err.Error())
		return
	}

	events, err := store.Replay(r.Context(), opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(events))
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req rebuildRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Object == "" {
		s.missing(w, "object")
		return
	}

	doc, err := store.Rebuild(r.Context(), req.Object)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var req subscribeRequest
	if !s.decode(w, r, &req) {
		return
	}

	sub, err := store.Subscribe(r.Context(), req.Pattern, req.Webhook)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	subs, err := store.Subscriptions(r.Context(), r.URL.Query().Get("event"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(subs))
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	removed, err := store.Unsubscribe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": removed})
}

func (s *Server) handlePipelineStats(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	s.writeJSON(w, http.StatusOK, store.Pipeline().Stats())
}

func (s *Server) handlePipelineFlush(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	res, err := store.Pipeline().Flush(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"flushed": res != nil,
		"batch":   res,
	})
}

func (s *Server) handlePipelineConfig(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	s.writeJSON(w, http.StatusOK, store.Pipeline().Config())
}

// handleConfigurePipeline applies a partial config; omitted fields keep
// their current value
func (s *Server) handleConfigurePipeline(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore) {
	var patch struct {
		BatchSize    *int  `json:"batchSize"`
		RetryEnabled *bool `json:"retryEnabled"`
	}
	if !s.decode(w, r, &patch) {
		return
	}

	cfg := store.Pipeline().Config()
	if patch.BatchSize != nil {
		cfg.BatchSize = *patch.BatchSize
	}
	if patch.RetryEnabled != nil {
		cfg.RetryEnabled = *patch.RetryEnabled
	}
	s.writeJSON(w, http.StatusOK, store.Pipeline().Configure(cfg))
}
