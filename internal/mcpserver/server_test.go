package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notegraph/internal/agent"
	"github.com/starford/notegraph/internal/analysis"
	"github.com/starford/notegraph/internal/heuristics"
	"github.com/starford/notegraph/internal/llm"
	"github.com/starford/notegraph/internal/models"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/testutil"
)

func testServer(t *testing.T) (*Server, *noteservice.Service) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.TestStore(t)
	user := testutil.TestUser(t, db, "mcp@example.com")
	client := llm.NewClient(testutil.FailingLLM())
	rules := heuristics.New(heuristics.DefaultRules())
	an := analysis.New(client, rules, db, analysis.DefaultConfig(), logger)
	svc := noteservice.NewService(db, an, noteservice.WithLogger(logger))

	srv := New(svc, agent.New(svc, an, nil, nil, logger), user.ID)
	return srv, svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "connect_notes":
		result, err = srv.connectNotes(ctx, req)
	case "get_connected_notes":
		result, err = srv.connectedNotes(ctx, req)
	case "analyze_note":
		result, err = srv.analyzeNote(ctx, req)
	case "list_categories":
		result, err = srv.listCategories(ctx, req)
	case "process_request":
		result, err = srv.processRequest(ctx, req)
	case "get_connection_guide":
		result, err = srv.getConnectionGuide(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]any{
		"title":   "Graphs",
		"content": "Dijkstra finds shortest paths",
	})
	if text := resultText(r); text != "created: 1 Graphs" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]any{"id": float64(1)})
	if r.IsError {
		t.Fatalf("read failed: %s", resultText(r))
	}
	var got models.NoteWithConnections
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if got.Content != "Dijkstra finds shortest paths" {
		t.Errorf("content = %q", got.Content)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]any{"id": float64(42)})
	if !r.IsError || resultText(r) != "not found" {
		t.Errorf("expected not found error, got %q", resultText(r))
	}

	r = callTool(t, srv, "read_note", map[string]any{"id": 1.5})
	if !r.IsError {
		t.Error("expected error for fractional id")
	}
}

func TestSearchAndList(t *testing.T) {
	srv, svc := testServer(t)
	ctx := context.Background()
	for _, c := range []string{"Budget for Q3", "Packing list"} {
		if _, err := svc.Create(ctx, srv.userID, "", c); err != nil {
			t.Fatal(err)
		}
	}

	r := callTool(t, srv, "search_notes", map[string]any{"query": "budget"})
	var found []models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &found); err != nil {
		t.Fatalf("search result %q: %v", resultText(r), err)
	}
	if len(found) != 1 || found[0].Content != "Budget for Q3" {
		t.Errorf("search = %+v", found)
	}

	r = callTool(t, srv, "search_notes", map[string]any{"query": "kubernetes"})
	if text := resultText(r); text != "no notes found" {
		t.Errorf("empty search = %q", text)
	}

	r = callTool(t, srv, "list_notes", map[string]any{})
	if lines := strings.Split(resultText(r), "\n"); len(lines) != 2 {
		t.Errorf("list = %q", resultText(r))
	}
}

func TestConnectNotes(t *testing.T) {
	srv, svc := testServer(t)
	ctx := context.Background()
	a, _ := svc.Create(ctx, srv.userID, "A", "first")
	b, _ := svc.Create(ctx, srv.userID, "B", "second")

	r := callTool(t, srv, "connect_notes", map[string]any{
		"source_id": float64(a.ID),
		"target_id": float64(b.ID),
		"relation":  "follow_up",
	})
	if text := resultText(r); text != "connected: 1 -[FOLLOW_UP]-> 2" {
		t.Errorf("connect = %q", text)
	}

	r = callTool(t, srv, "connect_notes", map[string]any{
		"source_id": float64(a.ID),
		"target_id": float64(b.ID),
		"relation":  "FOLLOW_UP",
	})
	if !r.IsError {
		t.Error("duplicate connection accepted")
	}

	r = callTool(t, srv, "connect_notes", map[string]any{
		"source_id": float64(a.ID),
		"target_id": float64(a.ID),
	})
	if !r.IsError {
		t.Error("self connection accepted")
	}

	r = callTool(t, srv, "get_connected_notes", map[string]any{"id": float64(a.ID)})
	var notes []models.Note
	if err := json.Unmarshal([]byte(resultText(r)), &notes); err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].ID != b.ID {
		t.Errorf("connected = %+v", notes)
	}
}

func TestAnalyzeAndCategories(t *testing.T) {
	srv, svc := testServer(t)
	n, err := svc.Create(context.Background(), srv.userID, "Standup", "Meeting with the team about the project deadline")
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "analyze_note", map[string]any{"id": float64(n.ID)})
	if r.IsError {
		t.Fatalf("analyze failed: %s", resultText(r))
	}

	r = callTool(t, srv, "list_categories", map[string]any{})
	if text := resultText(r); !strings.HasSuffix(text, "\t1") {
		t.Errorf("categories = %q", text)
	}
}

func TestProcessRequest(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "process_request", map[string]any{"request": "Create a note about graph algorithms"})
	if r.IsError {
		t.Fatalf("process failed: %s", resultText(r))
	}
	var resp agent.Response
	if err := json.Unmarshal([]byte(resultText(r)), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Intent != "create_note" || resp.NoteID == 0 {
		t.Errorf("response = %+v", resp)
	}

	r = callTool(t, srv, "process_request", map[string]any{"request": "  "})
	if !r.IsError {
		t.Error("empty request reported success")
	}
}

func TestConnectionGuideListsCategories(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_connection_guide", nil))
	for _, want := range []string{"PLAN_STEP", "## Categories", models.GeneralCategory} {
		if !strings.Contains(text, want) {
			t.Errorf("guide missing %q", want)
		}
	}
}
