// Package mcp implements the Model Context Protocol server for the retrieval
// service. It exposes hybrid search and authority checks as MCP tools so
// MCP-compatible AI agents can query the knowledge base. Tool calls arrive
// over the StreamableHTTP transport mounted by the HTTP server and always run
// under the service's default authority context; per-caller context tokens
// are a REST API concern and are not consulted here.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/veridocs/veridocs/internal/audit"
	"github.com/veridocs/veridocs/internal/model"
)

// Searcher runs one hybrid query end to end.
type Searcher interface {
	Search(ctx context.Context, query string, actx model.AuthorityContext, topK int, queryID string) (model.Response, error)
}

// AuthorityChecker evaluates document access for a context.
type AuthorityChecker interface {
	EvaluateDocumentAccess(ctx context.Context, actx model.AuthorityContext, documentID, queryID string) (model.AccessDecision, error)
}

// Server wraps the MCP server with the retrieval service layer.
type Server struct {
	mcpServer  *mcpserver.MCPServer
	searcher   Searcher
	authority  AuthorityChecker
	auditSink  audit.Sink
	defaultCtx model.AuthorityContext
	logger     *slog.Logger
}

// New creates and configures a new MCP server with all tools and resources.
// defaultCtx is the authority context applied to tool calls; every search
// and access check runs through the same authority filter and audit trail
// as the HTTP API.
func New(searcher Searcher, authority AuthorityChecker, auditSink audit.Sink, defaultCtx model.AuthorityContext, logger *slog.Logger, version string) *Server {
	s := &Server{
		searcher:   searcher,
		authority:  authority,
		auditSink:  auditSink,
		defaultCtx: defaultCtx,
		logger:     logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"veridocs",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()
	s.registerResources()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// veridocs_search: hybrid search over the knowledge base.
	s.mcpServer.AddTool(
		mcplib.NewTool("veridocs_search",
			mcplib.WithDescription(`Search the engineering knowledge base with hybrid lexical and semantic retrieval.

Results are authority-filtered: only chunks from documents the current
context is permitted to read are returned. Every result carries its scores
and a three-part explanation of why it matched, why access was allowed,
and why it ranked where it did. The full decision trail is written to the
audit log under the returned query_id.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("query",
				mcplib.Description("Natural language search query"),
				mcplib.Required(),
			),
			mcplib.WithNumber("top_k",
				mcplib.Description("Number of candidates to request from each retrieval backend"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(10),
			),
		),
		s.handleSearch,
	)

	// veridocs_check_access: evaluate document access without searching.
	s.mcpServer.AddTool(
		mcplib.NewTool("veridocs_check_access",
			mcplib.WithDescription(`Check whether the current context may access a document.

Returns ALLOW or DENY with structured reasons and, on ALLOW, the matched
access rule ids. The decision is recorded in the audit log.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("document_id",
				mcplib.Description("Document identifier to evaluate"),
				mcplib.Required(),
			),
		),
		s.handleCheckAccess,
	)
}

func (s *Server) registerResources() {
	// veridocs://audit/{query_id}: audit trail for one query.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"veridocs://audit/{query_id}",
			"Query Audit Trail",
			mcplib.WithTemplateDescription("Ordered audit events recorded for a query_id"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleAuditTrail,
	)
}

func (s *Server) handleSearch(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return errorResult("query is required"), nil
	}
	topK := request.GetInt("top_k", 0)

	resp, err := s.searcher.Search(ctx, query, s.defaultCtx, topK, "")
	if err != nil {
		s.logger.Warn("mcp: search failed", "error", err)
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal response: %v", err)), nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func (s *Server) handleCheckAccess(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	documentID := request.GetString("document_id", "")
	if documentID == "" {
		return errorResult("document_id is required"), nil
	}

	decision, err := s.authority.EvaluateDocumentAccess(ctx, s.defaultCtx, documentID, newQueryID())
	if err != nil {
		s.logger.Warn("mcp: access check failed", "document_id", documentID, "error", err)
		return errorResult(fmt.Sprintf("access check failed: %v", err)), nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"decision": decision.Outcome(),
		"detail":   decision,
	}, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal decision: %v", err)), nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func (s *Server) handleAuditTrail(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	var queryID string
	if _, err := fmt.Sscanf(uri, "veridocs://audit/%s", &queryID); err != nil || queryID == "" {
		return nil, fmt.Errorf("mcp: invalid audit trail URI: %s", uri)
	}

	events, err := s.auditSink.EventsByQueryID(ctx, queryID)
	if err != nil {
		return nil, fmt.Errorf("mcp: read audit trail: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"query_id": queryID,
		"count":    len(events),
		"events":   events,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal audit trail: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// newQueryID mints a correlation id for decisions made outside a search.
func newQueryID() string {
	return uuid.New().String()
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
