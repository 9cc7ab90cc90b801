package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/knowledgetools/mcp-kb/builtin/chunking/window"
	"github.com/knowledgetools/mcp-kb/builtin/embedding/local"
	"github.com/knowledgetools/mcp-kb/builtin/vectorstore/sqlitevec"
	"github.com/knowledgetools/mcp-kb/internal/config"
	"github.com/knowledgetools/mcp-kb/internal/index"
	"github.com/knowledgetools/mcp-kb/internal/kb"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir, err := os.MkdirTemp("", "kb-mcp-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	repo, err := kb.Open(filepath.Join(dir, ".mcp-kb"))
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}

	cfg := config.DefaultConfig()
	store := sqlitevec.New()
	if err := store.Init(filepath.Join(dir, ".mcp-kb", "vectors.db")); err != nil {
		t.Fatalf("Failed to init store: %v", err)
	}

	indexer := index.New(index.Config{
		ProjectDir: dir,
		Config:     cfg,
		Store:      store,
		Embedding:  local.New(local.Config{}),
		Chunker:    window.New(window.Config{}),
	})

	srv, err := New(Config{
		ProjectDir: dir,
		Config:     cfg,
		Repository: repo,
		Indexer:    indexer,
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	return srv
}

func callReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatalf("Result has no content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func decodeResult(t *testing.T, res *mcp.CallToolResult, out any) {
	t.Helper()
	if res.IsError {
		t.Fatalf("Unexpected tool error: %s", resultText(t, res))
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), out); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
}

func TestCreateAndGetItemTools(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	res, err := srv.handleCreateItem(ctx, callReq(map[string]any{
		"type":     "issues",
		"title":    "Auth bug",
		"priority": "high",
		"tags":     []any{"bug", "auth"},
	}))
	if err != nil {
		t.Fatalf("handleCreateItem failed: %v", err)
	}

	var created kb.Item
	decodeResult(t, res, &created)
	if created.ID != "1" || created.Status != "Open" {
		t.Errorf("Unexpected created item: %+v", created)
	}

	res, err = srv.handleGetItemDetail(ctx, callReq(map[string]any{"type": "issues", "id": "1"}))
	if err != nil {
		t.Fatalf("handleGetItemDetail failed: %v", err)
	}
	var fetched kb.Item
	decodeResult(t, res, &fetched)
	if fetched.Title != "Auth bug" || len(fetched.Tags) != 2 {
		t.Errorf("Unexpected fetched item: %+v", fetched)
	}
}

func TestUpdateItemDistinguishesOmittedFromEmpty(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	res, err := srv.handleCreateItem(ctx, callReq(map[string]any{
		"type":  "issues",
		"title": "Tagged",
		"tags":  []any{"keep"},
	}))
	if err != nil {
		t.Fatalf("handleCreateItem failed: %v", err)
	}
	var created kb.Item
	decodeResult(t, res, &created)

	// Omitting tags leaves them untouched.
	res, err = srv.handleUpdateItem(ctx, callReq(map[string]any{
		"type": "issues", "id": created.ID, "title": "Renamed",
	}))
	if err != nil {
		t.Fatalf("handleUpdateItem failed: %v", err)
	}
	var updated kb.Item
	decodeResult(t, res, &updated)
	if len(updated.Tags) != 1 {
		t.Errorf("Omitted tags were modified: %v", updated.Tags)
	}

	// An explicit empty array clears.
	res, err = srv.handleUpdateItem(ctx, callReq(map[string]any{
		"type": "issues", "id": created.ID, "tags": []any{},
	}))
	if err != nil {
		t.Fatalf("handleUpdateItem failed: %v", err)
	}
	decodeResult(t, res, &updated)
	if len(updated.Tags) != 0 {
		t.Errorf("Empty array did not clear tags: %v", updated.Tags)
	}
}

func TestToolErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	// Not found.
	res, err := srv.handleGetItemDetail(ctx, callReq(map[string]any{"type": "issues", "id": "99"}))
	if err != nil {
		t.Fatalf("handleGetItemDetail failed: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "not found") {
		t.Errorf("Expected not-found error result, got %s", resultText(t, res))
	}

	// Validation.
	res, err = srv.handleCreateItem(ctx, callReq(map[string]any{"type": "docs", "title": "No content"}))
	if err != nil {
		t.Fatalf("handleCreateItem failed: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "invalid request") {
		t.Errorf("Expected validation error result, got %s", resultText(t, res))
	}

	// Missing required argument.
	res, err = srv.handleCreateItem(ctx, callReq(map[string]any{"type": "issues"}))
	if err != nil {
		t.Fatalf("handleCreateItem failed: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "title is required") {
		t.Errorf("Expected required-argument error, got %s", resultText(t, res))
	}
}

func TestSearchCodeWithoutIndex(t *testing.T) {
	srv := newTestServer(t)

	res, err := srv.handleSearchCode(context.Background(), callReq(map[string]any{"query": "anything"}))
	if err != nil {
		t.Fatalf("handleSearchCode failed: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "no code index") {
		t.Errorf("Expected index-missing error, got %s", resultText(t, res))
	}
}

func TestGetIndexStatusEmpty(t *testing.T) {
	srv := newTestServer(t)

	res, err := srv.handleGetIndexStatus(context.Background(), callReq(nil))
	if err != nil {
		t.Fatalf("handleGetIndexStatus failed: %v", err)
	}

	var status map[string]any
	decodeResult(t, res, &status)
	if status["indexed"] != false {
		t.Errorf("Expected indexed=false on fresh store, got %v", status["indexed"])
	}
}

func TestCurrentStateTools(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	res, err := srv.handleUpdateCurrentState(ctx, callReq(map[string]any{
		"content":    "Refactoring the session layer.",
		"tags":       []any{"focus"},
		"updated_by": "test-session",
	}))
	if err != nil {
		t.Fatalf("handleUpdateCurrentState failed: %v", err)
	}
	var state kb.CurrentState
	decodeResult(t, res, &state)
	if state.Metadata.UpdatedBy != "test-session" {
		t.Errorf("updated_by missing: %+v", state.Metadata)
	}

	res, err = srv.handleGetCurrentState(ctx, callReq(nil))
	if err != nil {
		t.Fatalf("handleGetCurrentState failed: %v", err)
	}
	decodeResult(t, res, &state)
	if state.Content != "Refactoring the session layer." {
		t.Errorf("State content not persisted: %q", state.Content)
	}
}

func TestGetItemsStatusIDFilter(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	if _, err := srv.handleCreateItem(ctx, callReq(map[string]any{"type": "issues", "title": "Open one"})); err != nil {
		t.Fatalf("handleCreateItem failed: %v", err)
	}
	if _, err := srv.handleCreateItem(ctx, callReq(map[string]any{"type": "issues", "title": "Reviewing", "status": "Review"})); err != nil {
		t.Fatalf("handleCreateItem failed: %v", err)
	}

	// Status id 3 is Review.
	res, err := srv.handleGetItems(ctx, callReq(map[string]any{
		"type":     "issues",
		"statuses": []any{float64(3)},
	}))
	if err != nil {
		t.Fatalf("handleGetItems failed: %v", err)
	}

	var payload struct {
		Items []kb.Item `json:"items"`
		Count int       `json:"count"`
	}
	decodeResult(t, res, &payload)
	if payload.Count != 1 || payload.Items[0].Status != "Review" {
		t.Errorf("Status filter failed: %+v", payload)
	}

	// Names work too, mixed with ids.
	res, err = srv.handleGetItems(ctx, callReq(map[string]any{
		"type":     "issues",
		"statuses": []any{"Review", float64(1)},
	}))
	if err != nil {
		t.Fatalf("handleGetItems failed: %v", err)
	}
	decodeResult(t, res, &payload)
	if payload.Count != 2 {
		t.Errorf("Mixed status filter failed: %+v", payload)
	}
}
