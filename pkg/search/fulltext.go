// Package search holds the ranking math shared by the engine's search
// operations: substring relevance scoring for full-text search and
// Reciprocal Rank Fusion for merging ranked lists.
package search

import (
	"sort"
	"strconv"
	"strings"
)

// VerbatimBonus is added to a field score when the whole query appears in it
const VerbatimBonus = 0.3

// FieldScore scores one field value against a query: the fraction of the
// query's whitespace-separated terms found as case-insensitive substrings,
// plus VerbatimBonus if the whole query appears verbatim, capped at 1.
func FieldScore(value, query string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}
	v := strings.ToLower(value)

	terms := strings.Fields(q)
	found := 0
	for _, term := range terms {
		if strings.Contains(v, term) {
			found++
		}
	}

	score := float64(found) / float64(len(terms))
	if strings.Contains(v, q) {
		score += VerbatimBonus
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Match is the best-scoring field of a document
type Match struct {
	Field string
	Score float64
}

// ScoreDocument scans the string and numeric top-level fields of data (or
// only the listed fields when fields is non-empty) and returns the best
// field score. A zero score means no field matched.
func ScoreDocument(data map[string]any, query string, fields []string) Match {
	keys := fields
	if len(keys) == 0 {
		keys = make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	var best Match
	for _, k := range keys {
		text, ok := fieldText(data[k])
		if !ok {
			continue
		}
		if s := FieldScore(text, query); s > best.Score {
			best = Match{Field: k, Score: s}
		}
	}
	return best
}

func fieldText(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	}
	return "", false
}
