package core

import (
	"context"
	"sort"
	"strings"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/embed"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/search"
)

// DefaultSearchLimit caps semantic and hybrid results
const DefaultSearchLimit = 10

// SearchOptions configures full-text search
type SearchOptions struct {
	Type     string   `json:"type,omitempty"`
	Query    string   `json:"query"`
	Fields   []string `json:"fields,omitempty"`
	MinScore float64  `json:"minScore,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// SearchResult is a document with its full-text score and best field
type SearchResult struct {
	*Document
	Score float64 `json:"score"`
	Field string  `json:"field,omitempty"`
}

// SemanticOptions configures semantic search. Threshold is an alias of
// MinScore; the larger of the two applies.
type SemanticOptions struct {
	Type      string  `json:"type,omitempty"`
	Query     string  `json:"query"`
	Limit     int     `json:"limit,omitempty"`
	MinScore  float64 `json:"minScore,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// SemanticResult is a document with its rescaled cosine similarity
type SemanticResult struct {
	*Document
	Score float64 `json:"score"`
}

// HybridOptions configures Reciprocal Rank Fusion of full-text and semantic
// search. MinScore filters both component lists.
type HybridOptions struct {
	Type           string   `json:"type,omitempty"`
	Query          string   `json:"query"`
	Fields         []string `json:"fields,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	MinScore       float64  `json:"minScore,omitempty"`
	FTSWeight      float64  `json:"ftsWeight,omitempty"`
	SemanticWeight float64  `json:"semanticWeight,omitempty"`
	RRFK           float64  `json:"rrfK,omitempty"`
}

// HybridResult carries the fused score with both components. A zero rank
// means the document was missing from that list.
type HybridResult struct {
	*Document
	Score         float64 `json:"score"`
	FTSScore      float64 `json:"ftsScore"`
	SemanticScore float64 `json:"semanticScore"`
	FTSRank       int     `json:"ftsRank,omitempty"`
	SemanticRank  int     `json:"semanticRank,omitempty"`
}

// Search scores documents by case-insensitive substring matches
func (s *SQLiteStore) Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("search", err)
	}
	if strings.TrimSpace(opts.Query) == "" {
		return nil, wrapError("search", invalidf("query is required"))
	}

	results, err := s.fullText(ctx, opts)
	if err != nil {
		return nil, wrapError("search", err)
	}
	return results, nil
}

func (s *SQLiteStore) fullText(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	docs, err := s.selectDocuments(ctx, opts.Type, nil, "", "", 0, 0)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, doc := range docs {
		m := search.ScoreDocument(doc.Data, opts.Query, opts.Fields)
		if m.Score <= 0 || m.Score < opts.MinScore {
			continue
		}
		results = append(results, SearchResult{Document: doc, Score: m.Score, Field: m.Field})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// SemanticSearch ranks documents by similarity to the query embedding,
// generating missing document embeddings first
func (s *SQLiteStore) SemanticSearch(ctx context.Context, opts SemanticOptions) ([]SemanticResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("semantic search", err)
	}
	if strings.TrimSpace(opts.Query) == "" {
		return nil, wrapError("semantic search", invalidf("query is required"))
	}

	results, err := s.semantic(ctx, opts.Type, opts.Query, max(opts.MinScore, opts.Threshold))
	if err != nil {
		return nil, wrapError("semantic search", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *SQLiteStore) semantic(ctx context.Context, typ, query string, minScore float64) ([]SemanticResult, error) {
	docs, err := s.selectDocuments(ctx, typ, nil, "", "", 0, 0)
	if err != nil {
		return nil, err
	}
	embs, err := s.embeddingsByType(ctx, typ)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		if _, ok := embs[doc.ID]; ok {
			continue
		}
		emb, err := s.embedDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		if emb != nil {
			embs[doc.ID] = emb
		}
	}

	qvec, _, err := s.generator.Generate(ctx, query)
	if err != nil {
		return nil, err
	}

	var results []SemanticResult
	for _, doc := range docs {
		emb, ok := embs[doc.ID]
		if !ok {
			continue
		}
		score, err := embed.Similarity(qvec, emb.Vector)
		if err != nil {
			return nil, err
		}
		if score < minScore {
			continue
		}
		results = append(results, SemanticResult{Document: doc, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// HybridSearch fuses full-text and semantic rankings with Reciprocal Rank
// Fusion
func (s *SQLiteStore) HybridSearch(ctx context.Context, opts HybridOptions) ([]HybridResult, error) {
	if err := s.ready(ctx); err != nil {
		return nil, wrapError("hybrid search", err)
	}
	if strings.TrimSpace(opts.Query) == "" {
		return nil, wrapError("hybrid search", invalidf("query is required"))
	}

	fts, err := s.fullText(ctx, SearchOptions{Type: opts.Type, Query: opts.Query, Fields: opts.Fields, MinScore: opts.MinScore})
	if err != nil {
		return nil, wrapError("hybrid search", err)
	}
	sem, err := s.semantic(ctx, opts.Type, opts.Query, opts.MinScore)
	if err != nil {
		return nil, wrapError("hybrid search", err)
	}

	docs := make(map[string]*Document, len(fts)+len(sem))
	ftsList := make([]search.Scored, len(fts))
	for i, r := range fts {
		docs[r.ID] = r.Document
		ftsList[i] = search.Scored{ID: r.ID, Score: r.Score}
	}
	semList := make([]search.Scored, len(sem))
	for i, r := range sem {
		docs[r.ID] = r.Document
		semList[i] = search.Scored{ID: r.ID, Score: r.Score}
	}

	fused := search.Fuse(ftsList, semList, search.FusionOptions{
		FTSWeight:      opts.FTSWeight,
		SemanticWeight: opts.SemanticWeight,
		K:              opts.RRFK,
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}

	results := make([]HybridResult, len(fused))
	for i, f := range fused {
		results[i] = HybridResult{
			Document:      docs[f.ID],
			Score:         f.Score,
			FTSScore:      f.FTSScore,
			SemanticScore: f.SemanticScore,
			FTSRank:       f.FTSRank,
			SemanticRank:  f.SemanticRank,
		}
	}
	return results, nil
}
