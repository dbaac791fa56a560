package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/docdb"
)

// Tools holds what the tool handlers need
type Tools struct {
	DB *docdb.DB
}

// --- Input types ---

type GetDocumentInput struct {
	ID string `json:"id" jsonschema:"Document id"`
}

type ListDocumentsInput struct {
	Type    string         `json:"type" jsonschema:"Document type"`
	Where   map[string]any `json:"where,omitempty" jsonschema:"Field conditions; a value may be an operator object using $gt, $gte, $lt, $lte, $ne or $in"`
	OrderBy string         `json:"order_by,omitempty" jsonschema:"Data field to order by"`
	Order   string         `json:"order,omitempty" jsonschema:"asc or desc"`
	Limit   int            `json:"limit,omitempty" jsonschema:"Maximum number of documents"`
	Offset  int            `json:"offset,omitempty" jsonschema:"Number of documents to skip"`
}

type CreateDocumentInput struct {
	Type  string         `json:"type" jsonschema:"Document type"`
	ID    string         `json:"id,omitempty" jsonschema:"Document id; generated when omitted"`
	Data  map[string]any `json:"data,omitempty" jsonschema:"Document fields"`
	Actor string         `json:"actor,omitempty" jsonschema:"Actor recorded on the event"`
}

type UpdateDocumentInput struct {
	ID    string         `json:"id" jsonschema:"Document id"`
	Data  map[string]any `json:"data" jsonschema:"Fields to merge"`
	Actor string         `json:"actor,omitempty" jsonschema:"Actor recorded on the event"`
}

type DeleteDocumentInput struct {
	ID    string `json:"id" jsonschema:"Document id"`
	Actor string `json:"actor,omitempty" jsonschema:"Actor recorded on the event"`
}

type SearchInput struct {
	Type  string `json:"type,omitempty" jsonschema:"Restrict to one document type"`
	Query string `json:"query" jsonschema:"Search text"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of results"`
}

type HybridSearchInput struct {
	Type           string   `json:"type,omitempty" jsonschema:"Restrict to one document type"`
	Query          string   `json:"query" jsonschema:"Search text"`
	Fields         []string `json:"fields,omitempty" jsonschema:"Data fields searched by the full-text component"`
	Limit          int      `json:"limit,omitempty" jsonschema:"Maximum number of results"`
	MinScore       float64  `json:"min_score,omitempty" jsonschema:"Minimum score of both component rankings"`
	FTSWeight      float64  `json:"fts_weight,omitempty" jsonschema:"Weight of the full-text ranking (default 0.5)"`
	SemanticWeight float64  `json:"semantic_weight,omitempty" jsonschema:"Weight of the semantic ranking (default 0.5)"`
}

type RelationInput struct {
	From     string         `json:"from" jsonschema:"Source document id"`
	Relation string         `json:"relation" jsonschema:"Relation name"`
	To       string         `json:"to" jsonschema:"Target document id"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"Edge metadata"`
	Actor    string         `json:"actor,omitempty" jsonschema:"Actor recorded on the event"`
}

type RelatedInput struct {
	ID        string `json:"id" jsonschema:"Start document id"`
	Relation  string `json:"relation" jsonschema:"Relation name"`
	Direction string `json:"direction,omitempty" jsonschema:"outgoing (default), incoming or both"`
}

type EmitEventInput struct {
	Event  string `json:"event" jsonschema:"Event name, conventionally Type.verb"`
	Object string `json:"object,omitempty" jsonschema:"Object the event is about, such as Type/id"`
	Data   any    `json:"data,omitempty" jsonschema:"Event payload"`
	Actor  string `json:"actor,omitempty" jsonschema:"Actor of the event"`
}

type ListEventsInput struct {
	Event  string `json:"event,omitempty" jsonschema:"Event name or wildcard pattern"`
	Object string `json:"object,omitempty" jsonschema:"Object name"`
	Cursor string `json:"cursor,omitempty" jsonschema:"Id of the last event of the previous page"`
	Order  string `json:"order,omitempty" jsonschema:"asc or desc"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of events (default 100)"`
}

type CreateActionInput struct {
	Action string `json:"action" jsonschema:"What is being done"`
	Object string `json:"object,omitempty" jsonschema:"Object acted on"`
	Input  any    `json:"input,omitempty" jsonschema:"Action input"`
	Actor  string `json:"actor,omitempty" jsonschema:"Actor performing the action"`
}

type UpdateActionInput struct {
	ID     string `json:"id" jsonschema:"Action id"`
	Status string `json:"status,omitempty" jsonschema:"pending, active, completed, failed or cancelled"`
	Result any    `json:"result,omitempty" jsonschema:"Action result"`
	Error  string `json:"error,omitempty" jsonschema:"Failure message"`
}

type ListActionsInput struct {
	Status string `json:"status,omitempty" jsonschema:"Filter by status"`
	Actor  string `json:"actor,omitempty" jsonschema:"Filter by actor"`
	Object string `json:"object,omitempty" jsonschema:"Filter by object"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of actions"`
}

type SetArtifactInput struct {
	Key        string         `json:"key" jsonschema:"Artifact key"`
	Kind       string         `json:"kind" jsonschema:"Artifact kind"`
	Content    any            `json:"content" jsonschema:"Artifact content"`
	SourceHash string         `json:"source_hash,omitempty" jsonschema:"Hash of the source the artifact was derived from"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"Artifact metadata"`
}

type GetArtifactInput struct {
	Key string `json:"key" jsonschema:"Artifact key"`
}

// --- Handlers ---

func (t *Tools) GetDocument(ctx context.Context, _ *mcp.CallToolRequest, input GetDocumentInput) (*mcp.CallToolResult, any, error) {
	doc, err := t.DB.Get(ctx, input.ID)
	if err != nil {
		return toolError("Failed to get document: %v", err), nil, nil
	}
	if doc == nil {
		return toolError("Document %q not found", input.ID), nil, nil
	}
	return toolJSON(doc)
}

func (t *Tools) ListDocuments(ctx context.Context, _ *mcp.CallToolRequest, input ListDocumentsInput) (*mcp.CallToolResult, any, error) {
	docs, err := t.DB.List(ctx, input.Type, docdb.ListOptions{
		Where:   input.Where,
		OrderBy: input.OrderBy,
		Order:   input.Order,
		Limit:   input.Limit,
		Offset:  input.Offset,
	})
	if err != nil {
		return toolError("Failed to list documents: %v", err), nil, nil
	}
	return toolJSON(nonNil(docs))
}

func (t *Tools) CreateDocument(ctx context.Context, _ *mcp.CallToolRequest, input CreateDocumentInput) (*mcp.CallToolResult, any, error) {
	doc, err := t.DB.Create(core.WithActor(ctx, input.Actor), input.Type, input.ID, input.Data)
	if err != nil {
		return toolError("Failed to create document: %v", err), nil, nil
	}
	return toolJSON(doc)
}

func (t *Tools) UpdateDocument(ctx context.Context, _ *mcp.CallToolRequest, input UpdateDocumentInput) (*mcp.CallToolResult, any, error) {
	doc, err := t.DB.Update(core.WithActor(ctx, input.Actor), input.ID, input.Data)
	if err != nil {
		return toolError("Failed to update document: %v", err), nil, nil
	}
	return toolJSON(doc)
}

func (t *Tools) DeleteDocument(ctx context.Context, _ *mcp.CallToolRequest, input DeleteDocumentInput) (*mcp.CallToolResult, any, error) {
	deleted, err := t.DB.Delete(core.WithActor(ctx, input.Actor), input.ID)
	if err != nil {
		return toolError("Failed to delete document: %v", err), nil, nil
	}
	return toolJSON(map[string]bool{"deleted": deleted})
}

func (t *Tools) Search(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
	results, err := t.DB.Search(ctx, input.Type, input.Query, input.Limit)
	if err != nil {
		return toolError("Search failed: %v", err), nil, nil
	}
	return toolJSON(nonNil(results))
}

func (t *Tools) SemanticSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
	results, err := t.DB.SemanticSearch(ctx, input.Type, input.Query, input.Limit)
	if err != nil {
		return toolError("Semantic search failed: %v", err), nil, nil
	}
	return toolJSON(nonNil(results))
}

func (t *Tools) HybridSearch(ctx context.Context, _ *mcp.CallToolRequest, input HybridSearchInput) (*mcp.CallToolResult, any, error) {
	results, err := t.DB.HybridSearch(ctx, core.HybridOptions{
		Type:           input.Type,
		Query:          input.Query,
		Fields:         input.Fields,
		Limit:          input.Limit,
		MinScore:       input.MinScore,
		FTSWeight:      input.FTSWeight,
		SemanticWeight: input.SemanticWeight,
	})
	if err != nil {
		return toolError("Hybrid search failed: %v", err), nil, nil
	}
	return toolJSON(nonNil(results))
}

func (t *Tools) Relate(ctx context.Context, _ *mcp.CallToolRequest, input RelationInput) (*mcp.CallToolResult, any, error) {
	rel, err := t.DB.Relate(core.WithActor(ctx, input.Actor), input.From, input.Relation, input.To, input.Metadata)
	if err != nil {
		return toolError("Failed to relate: %v", err), nil, nil
	}
	return toolJSON(rel)
}

func (t *Tools) Unrelate(ctx context.Context, _ *mcp.CallToolRequest, input RelationInput) (*mcp.CallToolResult, any, error) {
	removed, err := t.DB.Unrelate(core.WithActor(ctx, input.Actor), input.From, input.Relation, input.To)
	if err != nil {
		return toolError("Failed to unrelate: %v", err), nil, nil
	}
	return toolJSON(map[string]bool{"deleted": removed})
}

func (t *Tools) Related(ctx context.Context, _ *mcp.CallToolRequest, input RelatedInput) (*mcp.CallToolResult, any, error) {
	nodes, err := t.DB.Related(ctx, input.ID, input.Relation, core.Direction(input.Direction))
	if err != nil {
		return toolError("Failed to traverse: %v", err), nil, nil
	}
	return toolJSON(nonNil(nodes))
}

func (t *Tools) EmitEvent(ctx context.Context, _ *mcp.CallToolRequest, input EmitEventInput) (*mcp.CallToolResult, any, error) {
	ev, err := t.DB.Emit(core.WithActor(ctx, input.Actor), input.Event, input.Object, input.Data)
	if err != nil {
		return toolError("Failed to emit event: %v", err), nil, nil
	}
	return toolJSON(ev)
}

func (t *Tools) ListEvents(ctx context.Context, _ *mcp.CallToolRequest, input ListEventsInput) (*mcp.CallToolResult, any, error) {
	events, err := t.DB.ListEvents(ctx, core.EventQuery{
		Event:  input.Event,
		Object: input.Object,
		Cursor: input.Cursor,
		Order:  input.Order,
		Limit:  input.Limit,
	})
	if err != nil {
		return toolError("Failed to list events: %v", err), nil, nil
	}
	return toolJSON(nonNil(events))
}

func (t *Tools) CreateAction(ctx context.Context, _ *mcp.CallToolRequest, input CreateActionInput) (*mcp.CallToolResult, any, error) {
	action, err := t.DB.CreateAction(ctx, docdb.ActionInput{
		Actor:  input.Actor,
		Action: input.Action,
		Object: input.Object,
		Input:  input.Input,
	})
	if err != nil {
		return toolError("Failed to create action: %v", err), nil, nil
	}
	return toolJSON(action)
}

func (t *Tools) UpdateAction(ctx context.Context, _ *mcp.CallToolRequest, input UpdateActionInput) (*mcp.CallToolResult, any, error) {
	action, err := t.DB.UpdateAction(ctx, input.ID, docdb.ActionUpdate{
		Status: docdb.ActionStatus(input.Status),
		Result: input.Result,
		Error:  input.Error,
	})
	if err != nil {
		return toolError("Failed to update action: %v", err), nil, nil
	}
	return toolJSON(action)
}

func (t *Tools) ListActions(ctx context.Context, _ *mcp.CallToolRequest, input ListActionsInput) (*mcp.CallToolResult, any, error) {
	actions, err := t.DB.ListActions(ctx, docdb.ActionFilter{
		Status: docdb.ActionStatus(input.Status),
		Actor:  input.Actor,
		Object: input.Object,
		Limit:  input.Limit,
	})
	if err != nil {
		return toolError("Failed to list actions: %v", err), nil, nil
	}
	return toolJSON(nonNil(actions))
}

func (t *Tools) SetArtifact(ctx context.Context, _ *mcp.CallToolRequest, input SetArtifactInput) (*mcp.CallToolResult, any, error) {
	artifact, err := t.DB.SetArtifact(ctx, input.Key, docdb.ArtifactInput{
		Kind:       input.Kind,
		Content:    input.Content,
		SourceHash: input.SourceHash,
		Metadata:   input.Metadata,
	})
	if err != nil {
		return toolError("Failed to set artifact: %v", err), nil, nil
	}
	return toolJSON(artifact)
}

func (t *Tools) GetArtifact(ctx context.Context, _ *mcp.CallToolRequest, input GetArtifactInput) (*mcp.CallToolResult, any, error) {
	artifact, err := t.DB.GetArtifact(ctx, input.Key)
	if err != nil {
		return toolError("Failed to get artifact: %v", err), nil, nil
	}
	if artifact == nil {
		return toolError("Artifact %q not found", input.Key), nil, nil
	}
	return toolJSON(artifact)
}

// --- Helpers ---

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
