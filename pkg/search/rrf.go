package search

import (
	"math"
	"sort"
)

// Default fusion parameters
const (
	DefaultRRFK           = 60.0
	DefaultFTSWeight      = 0.5
	DefaultSemanticWeight = 0.5
)

// Scored is one entry of a ranked list
type Scored struct {
	ID    string
	Score float64
}

// FusionOptions weights the two lists. Zero values for both weights select
// the defaults; a zero K selects DefaultRRFK.
type FusionOptions struct {
	FTSWeight      float64
	SemanticWeight float64
	K              float64
}

func (o FusionOptions) withDefaults() FusionOptions {
	if o.FTSWeight == 0 && o.SemanticWeight == 0 {
		o.FTSWeight = DefaultFTSWeight
		o.SemanticWeight = DefaultSemanticWeight
	}
	if o.K <= 0 {
		o.K = DefaultRRFK
	}
	return o
}

// Fused is a fused result. A rank of 0 means the document was absent from
// that list.
type Fused struct {
	ID            string
	Score         float64
	FTSRank       int
	SemanticRank  int
	FTSScore      float64
	SemanticScore float64
}

// Ranks assigns 1-based positions by descending score. Ties keep their input
// order.
func Ranks(list []Scored) map[string]int {
	sorted := make([]Scored, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	ranks := make(map[string]int, len(sorted))
	for i, s := range sorted {
		if _, seen := ranks[s.ID]; !seen {
			ranks[s.ID] = i + 1
		}
	}
	return ranks
}

// Contribution is weight/(k+rank); an absent document (rank 0) contributes 0
// as if its rank were infinite.
func Contribution(weight, k float64, rank int) float64 {
	if rank <= 0 {
		return weight / (k + math.Inf(1))
	}
	return weight / (k + float64(rank))
}

// Fuse merges a full-text list and a semantic list with Reciprocal Rank
// Fusion. The output is sorted by fused score descending; documents first
// seen in the full-text list come before semantic-only ones on ties.
func Fuse(fts, semantic []Scored, opts FusionOptions) []Fused {
	opts = opts.withDefaults()
	ftsRanks := Ranks(fts)
	semRanks := Ranks(semantic)

	ftsScores := make(map[string]float64, len(fts))
	for _, s := range fts {
		ftsScores[s.ID] = s.Score
	}
	semScores := make(map[string]float64, len(semantic))
	for _, s := range semantic {
		semScores[s.ID] = s.Score
	}

	var order []string
	seen := make(map[string]bool)
	for _, list := range [][]Scored{fts, semantic} {
		for _, s := range list {
			if !seen[s.ID] {
				seen[s.ID] = true
				order = append(order, s.ID)
			}
		}
	}

	out := make([]Fused, 0, len(order))
	for _, id := range order {
		fr, sr := ftsRanks[id], semRanks[id]
		out = append(out, Fused{
			ID:            id,
			Score:         Contribution(opts.FTSWeight, opts.K, fr) + Contribution(opts.SemanticWeight, opts.K, sr),
			FTSRank:       fr,
			SemanticRank:  sr,
			FTSScore:      ftsScores[id],
			SemanticScore: semScores[id],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
