// Package embed produces vector embeddings for document text.
//
// A remote model is plugged in through the Embedder interface. When none is
// configured, or a call fails, callers fall back to Fallback, a deterministic
// generator that maps a small seed vocabulary onto fixed directions so that
// offline runs and tests see stable similarity behaviour.
package embed

import (
	"context"
	"errors"
)

// Embedder converts text into a vector. Implementations wrap a model
// endpoint (OpenAI-compatible HTTP, a local runtime, a test stub).
type Embedder interface {
	// Embed converts a single text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model names the model that produced the vector. It is persisted next
	// to every embedding.
	Model() string
}

var (
	// ErrEmptyText is returned when there is nothing to embed
	ErrEmptyText = errors.New("embed: empty text")

	// ErrDimensionMismatch is returned when two vectors of different length
	// are compared
	ErrDimensionMismatch = errors.New("embed: vector dimension mismatch")
)

// Func adapts a plain function to the Embedder interface
type Func struct {
	Name string
	Fn   func(ctx context.Context, text string) ([]float32, error)
}

// Embed calls the wrapped function
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.Fn(ctx, text)
}

// Model returns the configured model name
func (f Func) Model() string {
	return f.Name
}

// Generator resolves text to a vector, trying the primary embedder first and
// the deterministic fallback on its absence or failure. The returned model
// name records which one produced the vector.
type Generator struct {
	Primary  Embedder
	Fallback *Fallback
	// OnFallback, if set, is told why the primary embedder was skipped
	OnFallback func(err error)
}

// Generate embeds text. It only fails for empty text.
func (g *Generator) Generate(ctx context.Context, text string) ([]float32, string, error) {
	if text == "" {
		return nil, "", ErrEmptyText
	}

	if g.Primary != nil {
		vec, err := g.Primary.Embed(ctx, text)
		if err == nil && len(vec) > 0 {
			return vec, g.Primary.Model(), nil
		}
		if err == nil {
			err = errors.New("embed: primary embedder returned an empty vector")
		}
		if g.OnFallback != nil {
			g.OnFallback(err)
		}
	}

	fb := g.Fallback
	if fb == nil {
		fb = NewFallback()
	}
	vec, err := fb.Embed(ctx, text)
	if err != nil {
		return nil, "", err
	}
	return vec, fb.Model(), nil
}
