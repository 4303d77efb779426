// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the note graph to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notegraph/internal/agent"
	"github.com/starford/notegraph/internal/apperr"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
)

const guideURI = "notegraph://connection-guide"

// Server wraps the MCP server with note graph tools. Every tool acts on
// behalf of a single user fixed at construction.
type Server struct {
	mcp    *server.MCPServer
	notes  *noteservice.Service
	agent  *agent.Agent
	userID int64
}

// New creates a new MCP server with all note tools registered.
func New(notes *noteservice.Service, ag *agent.Agent, userID int64) *Server {
	s := &Server{notes: notes, agent: ag, userID: userID}

	s.mcp = server.NewMCPServer(
		"NoteGraph",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search notes by title, content and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note together with its outgoing connections."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note ID")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, newest first."),
		mcp.WithNumber("skip", mcp.Description("Number of notes to skip")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 20)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note. The note is analyzed, connected to related "+
			"notes and scanned for calendar events. Leave the title empty to have one generated."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note body")),
		mcp.WithString("title", mcp.Description("Optional title")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("connect_notes",
		mcp.WithDescription("Create a directed connection between two notes. "+
			"Read the connection guide first via get_connection_guide or the "+guideURI+" resource."),
		mcp.WithNumber("source_id", mcp.Required(), mcp.Description("Source note ID")),
		mcp.WithNumber("target_id", mcp.Required(), mcp.Description("Target note ID")),
		mcp.WithString("relation", mcp.Description("Relation label (default RELATED)")),
	), s.connectNotes)

	s.mcp.AddTool(mcp.NewTool("get_connected_notes",
		mcp.WithDescription("List the notes a note points to."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note ID")),
	), s.connectedNotes)

	s.mcp.AddTool(mcp.NewTool("analyze_note",
		mcp.WithDescription("Run analysis on a note and store category, importance, tags and summary."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note ID")),
	), s.analyzeNote)

	s.mcp.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List categories with note counts."),
	), s.listCategories)

	s.mcp.AddTool(mcp.NewTool("process_request",
		mcp.WithDescription("Hand a free-text request to the note agent. It can create notes, "+
			"build plans, save links, set reminders, search and answer questions."),
		mcp.WithString("request", mcp.Required(), mcp.Description("Request in English or Russian")),
	), s.processRequest)

	s.mcp.AddTool(mcp.NewTool("get_connection_guide",
		mcp.WithDescription("Returns the relation labels and categories used in the note graph."),
	), s.getConnectionGuide)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Connection Guide",
			mcp.WithResourceDescription("Relation labels, importance scale and categories of the note graph."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func requireID(req mcp.CallToolRequest, key string) (int64, error) {
	v, err := req.RequireFloat(key)
	if err != nil {
		return 0, err
	}
	if v < 1 || v != float64(int64(v)) {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return int64(v), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query must not be empty"), nil
	}
	notes, err := s.notes.List(ctx, s.userID, 0, req.GetInt("limit", 20), query)
	if err != nil {
		return errorResult(err), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	return jsonResult(notes), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.WithConnections(ctx, s.userID, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(n), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.notes.List(ctx, s.userID, req.GetInt("skip", 0), req.GetInt("limit", 20), "")
	if err != nil {
		return errorResult(err), nil
	}
	lines := make([]string, len(notes))
	for i, n := range notes {
		lines[i] = fmt.Sprintf("%d\t%s", n.ID, n.Title)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.CreateNote(ctx, s.userID, req.GetString("title", ""), content)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d %s", n.ID, n.Title)), nil
}

func (s *Server) connectNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := requireID(req, "source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := requireID(req, "target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	relation := strings.ToUpper(strings.TrimSpace(req.GetString("relation", models.RelationRelated)))
	c, err := s.notes.Connect(ctx, s.userID, source, target, relation)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("connected: %d -[%s]-> %d", c.SourceID, c.Relation, c.TargetID)), nil
}

func (s *Server) connectedNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := s.notes.ConnectedNotes(ctx, s.userID, id)
	if err != nil {
		return errorResult(err), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no connected notes found"), nil
	}
	return jsonResult(notes), nil
}

func (s *Server) analyzeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.notes.Analyze(ctx, s.userID, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) listCategories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cats, err := s.notes.Categories(ctx, s.userID)
	if err != nil {
		return errorResult(err), nil
	}
	lines := make([]string, len(cats))
	for i, c := range cats {
		lines[i] = fmt.Sprintf("%s\t%d", c.Name, c.Count)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) processRequest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	request, err := req.RequireString("request")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp := s.agent.Process(ctx, s.userID, request)
	r := jsonResult(resp)
	r.IsError = !resp.Success
	return r, nil
}

func (s *Server) getConnectionGuide(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.guide()), nil
}

func (s *Server) readGuideResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     s.guide(),
		},
	}, nil
}

func (s *Server) guide() string {
	names := s.notes.Analyzer().Heuristics().Rules().CategoryNames()
	var b strings.Builder
	b.WriteString(ConnectionGuide)
	b.WriteString("\n## Categories\n\n")
	for _, n := range names {
		b.WriteString("- " + n + "\n")
	}
	b.WriteString("- " + models.GeneralCategory + " (fallback)\n")
	return b.String()
}
