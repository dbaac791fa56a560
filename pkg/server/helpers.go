package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
)

type unitHandler func(w http.ResponseWriter, r *http.Request, store *core.SQLiteStore)

// unit resolves the request's namespace, holds its lock for the duration
// of h and attaches the actor header to the context
func (s *Server) unit(h unitHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns := r.Header.Get(NamespaceHeader)
		if ns == "" {
			ns = r.URL.Query().Get("ns")
		}
		if ns == "" {
			ns = core.DefaultNamespace
		}

		store, unlock, err := s.registry.Lock(ns)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		defer unlock()

		ctx := core.WithActor(r.Context(), strings.TrimSpace(r.Header.Get(ActorHeader)))
		h(w, r.WithContext(ctx), store)
	}
}

var errMalformedBody = errors.New("malformed JSON body")

func (s *Server) readJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

// decode reads the body into v and answers 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := s.readJSON(r, v); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.errorCount.Add(1)
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps engine errors onto status codes
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrReferential):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Not found")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) missing(w http.ResponseWriter, field string) {
	s.writeError(w, http.StatusBadRequest, field+" is required")
}

type params struct {
	r   *http.Request
	err error
}

func query(r *http.Request) *params {
	return &params{r: r}
}

func (p *params) str(name string) string {
	return p.r.URL.Query().Get(name)
}

func (p *params) int(name string) int {
	v := p.str(name)
	if v == "" || p.err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("%s must be an integer", name)
	}
	return n
}

func (p *params) bool(name string) bool {
	v := strings.ToLower(p.str(name))
	return v == "true" || v == "1" || v == "yes"
}

// time accepts RFC 3339 or epoch milliseconds
func (p *params) time(name string) time.Time {
	v := p.str(name)
	if v == "" || p.err != nil {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		p.err = fmt.Errorf("%s must be RFC 3339 or epoch milliseconds", name)
	}
	return t
}
