// Package mcptools exposes a docdb unit as Model Context Protocol tools.
package mcptools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/docdb"
)

// Version is reported to MCP clients
const Version = "0.1.0"

// NewServer creates an MCP server with every tool registered
func NewServer(db *docdb.DB) *mcp.Server {
	t := &Tools{DB: db}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "docdb",
		Version: Version,
	}, nil)

	// Documents
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_document",
		Description: "Get a document by id",
	}, t.GetDocument)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_documents",
		Description: "List documents of a type, optionally filtered by a where clause and ordered by a data field",
	}, t.ListDocuments)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_document",
		Description: "Create a document of a type; the id is generated when omitted",
	}, t.CreateDocument)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_document",
		Description: "Shallow-merge fields into a document's data",
	}, t.UpdateDocument)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document and its relationships",
	}, t.DeleteDocument)

	// Search
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search",
		Description: "Full-text search over the string and number fields of a type",
	}, t.Search)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "semantic_search",
		Description: "Rank documents of a type by embedding similarity to the query",
	}, t.SemanticSearch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "hybrid_search",
		Description: "Fuse full-text and semantic rankings with Reciprocal Rank Fusion",
	}, t.HybridSearch)

	// Graph
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "relate",
		Description: "Create or update a directed relationship between two existing documents",
	}, t.Relate)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "unrelate",
		Description: "Remove a relationship",
	}, t.Unrelate)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "related",
		Description: "List documents one relation away (direction: outgoing, incoming or both)",
	}, t.Related)

	// Events
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "emit_event",
		Description: "Append a custom event to the event log",
	}, t.EmitEvent)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_events",
		Description: "List events; event accepts *.suffix and prefix.* wildcards",
	}, t.ListEvents)

	// Actions and artifacts
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_action",
		Description: "Record a pending action an actor performs on an object",
	}, t.CreateAction)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_action",
		Description: "Change the status, result or error of an action",
	}, t.UpdateAction)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_actions",
		Description: "List actions filtered by status, actor or object",
	}, t.ListActions)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "set_artifact",
		Description: "Create or replace the artifact stored under a key",
	}, t.SetArtifact)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_artifact",
		Description: "Get the artifact stored under a key",
	}, t.GetArtifact)

	return srv
}
