package docdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
)

// ArtifactType is the document type artifacts are stored under
const ArtifactType = "Artifact"

const artifactPrefix = "artifact:"

// Artifact is a keyed derived output, such as a compiled or rendered form of
// a document
type Artifact struct {
	Key        string         `json:"key"`
	Kind       string         `json:"kind"`
	Content    any            `json:"content"`
	SourceHash string         `json:"sourceHash,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// ArtifactInput is the content stored by SetArtifact
type ArtifactInput struct {
	Kind       string         `json:"kind"`
	Content    any            `json:"content"`
	SourceHash string         `json:"sourceHash,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func artifactID(key string) string {
	return artifactPrefix + key
}

// SetArtifact creates or replaces the artifact stored under key
func (db *DB) SetArtifact(ctx context.Context, key string, in ArtifactInput) (*Artifact, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: artifact key is required", core.ErrInvalidInput)
	}
	if in.Kind == "" {
		return nil, fmt.Errorf("%w: artifact kind is required", core.ErrInvalidInput)
	}

	data := map[string]any{
		"key":        key,
		"kind":       in.Kind,
		"content":    in.Content,
		"sourceHash": in.SourceHash,
		"metadata":   in.Metadata,
	}

	existing, err := db.Get(ctx, artifactID(key))
	if err != nil {
		return nil, err
	}

	var doc *core.Document
	if existing != nil && existing.Type != ArtifactType {
		return nil, fmt.Errorf("%w: id %s is taken by a %s", core.ErrConflict, existing.ID, existing.Type)
	}
	if existing == nil {
		doc, err = db.store.Insert(ctx, ArtifactType, artifactID(key), data)
	} else {
		doc, err = db.store.Update(ctx, existing.ID, data)
	}
	if err != nil {
		return nil, err
	}
	return artifactFromDocument(doc), nil
}

// GetArtifact returns the artifact under key, or nil
func (db *DB) GetArtifact(ctx context.Context, key string) (*Artifact, error) {
	doc, err := db.Get(ctx, artifactID(key))
	if err != nil || doc == nil || doc.Type != ArtifactType {
		return nil, err
	}
	return artifactFromDocument(doc), nil
}

// DeleteArtifact removes the artifact under key
func (db *DB) DeleteArtifact(ctx context.Context, key string) (bool, error) {
	return db.Delete(ctx, artifactID(key))
}

// ListArtifacts returns artifacts, optionally of one kind
func (db *DB) ListArtifacts(ctx context.Context, kind string) ([]*Artifact, error) {
	var where map[string]any
	if kind != "" {
		where = map[string]any{"kind": kind}
	}
	docs, err := db.store.Query(ctx, core.QueryOptions{Type: ArtifactType, Where: where})
	if err != nil {
		return nil, err
	}
	out := make([]*Artifact, len(docs))
	for i, doc := range docs {
		out[i] = artifactFromDocument(doc)
	}
	return out, nil
}

func artifactFromDocument(doc *core.Document) *Artifact {
	meta, _ := doc.Data["metadata"].(map[string]any)
	return &Artifact{
		Key:        stringField(doc.Data, "key"),
		Kind:       stringField(doc.Data, "kind"),
		Content:    doc.Data["content"],
		SourceHash: stringField(doc.Data, "sourceHash"),
		Metadata:   meta,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
