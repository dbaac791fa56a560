package embed

import (
	"context"
	"math"
	"strings"
	"unicode"
)

const (
	// FallbackDimensions is the length of every fallback vector
	FallbackDimensions = 768

	// FallbackModel is recorded as the model of fallback vectors
	FallbackModel = "fallback-seed-768"

	baseDims  = 4
	jitterAmp = 0.1
)

// Seed directions. Each cluster leans on one or two of the four base axes.
var (
	seedAI       = [baseDims]float64{0.9, 0.1, 0.1, 0.1}
	seedCode     = [baseDims]float64{0.1, 0.9, 0.1, 0.1}
	seedDatabase = [baseDims]float64{0.1, 0.1, 0.9, 0.1}
	seedFood     = [baseDims]float64{0.1, 0.1, 0.1, 0.9}
	seedState    = [baseDims]float64{0.2, 0.7, 0.5, 0.1}
	seedGeneral  = [baseDims]float64{0.5, 0.5, 0.5, 0.5}
)

var seedVocabulary = func() map[string][baseDims]float64 {
	clusters := []struct {
		seed  [baseDims]float64
		words []string
	}{
		{seedAI, []string{
			"ai", "ml", "machine", "learning", "neural", "network", "networks", "model", "models",
			"deep", "intelligence", "artificial", "embedding", "embeddings", "llm", "gpt",
			"transformer", "training", "inference", "semantic",
		}},
		{seedCode, []string{
			"code", "coding", "programming", "program", "javascript", "typescript", "python",
			"go", "golang", "rust", "function", "functions", "software", "developer", "api",
			"compiler", "react", "component", "library",
		}},
		{seedDatabase, []string{
			"database", "databases", "sql", "sqlite", "postgres", "query", "queries", "index",
			"table", "tables", "storage", "schema", "graph", "record", "records", "transaction",
		}},
		{seedFood, []string{
			"food", "recipe", "recipes", "cooking", "cook", "pizza", "pasta", "restaurant",
			"meal", "dinner", "lunch", "breakfast", "kitchen", "bake", "baking", "delicious",
		}},
		{seedState, []string{
			"state", "redux", "store", "reducer", "reducers", "zustand", "signal", "signals",
			"management", "context", "dispatch", "mutation",
		}},
		{seedGeneral, []string{
			"hello", "world", "example", "general", "thing", "things", "note", "notes",
		}},
	}

	vocab := make(map[string][baseDims]float64)
	for _, c := range clusters {
		for _, w := range c.words {
			vocab[w] = c.seed
		}
	}
	return vocab
}()

// Fallback is the deterministic embedder: the same text always yields the
// same vector.
type Fallback struct {
	dims int
}

// NewFallback returns a fallback embedder producing 768-dimension vectors
func NewFallback() *Fallback {
	return &Fallback{dims: FallbackDimensions}
}

// Model implements Embedder
func (f *Fallback) Model() string {
	return FallbackModel
}

// Embed implements Embedder
func (f *Fallback) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	base := f.base(text)
	rng := newMulberry32(hashString(text))

	vec := make([]float64, f.dims)
	for i := range vec {
		vec[i] = base[i%baseDims] + (rng.next()-0.5)*jitterAmp
	}
	normalize(vec)

	out := make([]float32, f.dims)
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out, nil
}

// base averages the seed vectors of known tokens and normalizes the result.
// Text with no known token lands on the general direction.
func (f *Fallback) base(text string) []float64 {
	sum := make([]float64, baseDims)
	matched := 0
	for _, tok := range Tokenize(text) {
		seed, ok := seedVocabulary[tok]
		if !ok {
			continue
		}
		for i := range sum {
			sum[i] += seed[i]
		}
		matched++
	}

	if matched == 0 {
		copy(sum, seedGeneral[:])
	} else {
		for i := range sum {
			sum[i] /= float64(matched)
		}
	}
	normalize(sum)
	return sum
}

// Tokenize lowercases text and splits it on anything that is not a letter
// or digit
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
}

// hashString is the 31-multiplier string hash folded to 32 bits
func hashString(s string) uint32 {
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	return uint32(h)
}

// mulberry32 is a small seeded PRNG; its output only has to be reproducible
type mulberry32 struct {
	state uint32
}

func newMulberry32(seed uint32) *mulberry32 {
	return &mulberry32{state: seed}
}

// next returns a value in [0, 1)
func (m *mulberry32) next() float64 {
	m.state += 0x6D2B79F5
	t := m.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	t ^= t >> 14
	return float64(t) / 4294967296.0
}
