package kb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	dir, err := os.MkdirTemp("", "kb-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	repo, err := Open(filepath.Join(dir, ".mcp-kb"))
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestCreateFetchDelete(t *testing.T) {
	repo := newTestRepo(t)

	created, err := repo.CreateItem(&CreateItemRequest{
		Type:     "issues",
		Title:    "Auth bug",
		Priority: "high",
		Tags:     []string{"bug", "auth"},
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if created.ID != "1" {
		t.Errorf("Expected id 1, got %s", created.ID)
	}
	if created.Status != "Open" {
		t.Errorf("Expected default status Open, got %s", created.Status)
	}

	fetched, err := repo.GetItem("issues", created.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Title != "Auth bug" {
		t.Errorf("Expected title Auth bug, got %s", fetched.Title)
	}
	if len(fetched.Tags) != 2 || fetched.Tags[0] != "bug" || fetched.Tags[1] != "auth" {
		t.Errorf("Unexpected tags: %v", fetched.Tags)
	}
	if fetched.Priority != "high" {
		t.Errorf("Expected priority high, got %s", fetched.Priority)
	}

	if err := repo.DeleteItem("issues", created.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if _, err := repo.GetItem("issues", created.ID); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError after delete, got %v", err)
	}
	if err := repo.DeleteItem("issues", created.ID); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError on double delete, got %v", err)
	}
}

func TestIDAllocationMonotonic(t *testing.T) {
	repo := newTestRepo(t)

	for i := 1; i <= 3; i++ {
		it, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Item"})
		if err != nil {
			t.Fatalf("CreateItem %d failed: %v", i, err)
		}
		if want := string(rune('0' + i)); it.ID != want {
			t.Errorf("Expected id %s, got %s", want, it.ID)
		}
	}

	// Deleting must not cause id reuse.
	if err := repo.DeleteItem("issues", "3"); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	it, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Item"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if it.ID != "4" {
		t.Errorf("Expected id 4 after delete, got %s", it.ID)
	}
}

func TestContentRequiredForDocuments(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.CreateItem(&CreateItemRequest{Type: "docs", Title: "Empty doc"})
	if !IsValidation(err) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}

	if _, err := repo.CreateItem(&CreateItemRequest{
		Type:    "docs",
		Title:   "Real doc",
		Content: "# Heading\n\nBody.",
	}); err != nil {
		t.Fatalf("CreateItem with content failed: %v", err)
	}
}

func TestTaskFieldsRejectedOnDocuments(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.CreateItem(&CreateItemRequest{
		Type:     "knowledge",
		Title:    "Note",
		Content:  "body",
		Priority: "high",
	})
	if !IsValidation(err) {
		t.Fatalf("Expected ValidationError for priority on documents base, got %v", err)
	}
}

func TestReferentialIntegrityListsAllBadRefs(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.CreateItem(&CreateItemRequest{
		Type:    "issues",
		Title:   "Dangling",
		Related: []string{"issues-99", "docs-42"},
	})
	re, ok := err.(*ReferenceError)
	if !ok {
		t.Fatalf("Expected ReferenceError, got %v", err)
	}
	if len(re.Refs) != 2 {
		t.Fatalf("Expected both bad refs reported, got %v", re.Refs)
	}

	// Nothing may have been written.
	items, err := repo.GetItems(ListItemsOptions{Type: "issues"})
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items after failed create, got %d", len(items))
	}
}

func TestDefaultStatusFilter(t *testing.T) {
	repo := newTestRepo(t)

	open, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Open one"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	closed, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Done one", Status: "Completed"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	items, err := repo.GetItems(ListItemsOptions{Type: "issues"})
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != open.ID {
		t.Fatalf("Expected only the open item, got %d items", len(items))
	}

	items, err = repo.GetItems(ListItemsOptions{Type: "issues", IncludeClosed: true})
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected both items with IncludeClosed, got %d", len(items))
	}
	_ = closed
}

func TestGetItemsSummaryOmitsContent(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.CreateItem(&CreateItemRequest{
		Type:    "docs",
		Title:   "Guide",
		Content: "long body",
	}); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	items, err := repo.GetItems(ListItemsOptions{Type: "docs"})
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Content != "" {
		t.Errorf("Expected summary row without content, got %q", items[0].Content)
	}
}

func TestGetItemsLimitAfterFilters(t *testing.T) {
	repo := newTestRepo(t)

	for i := 0; i < 3; i++ {
		if _, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Open"}); err != nil {
			t.Fatalf("CreateItem failed: %v", err)
		}
	}
	if _, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Done", Status: "Closed"}); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	items, err := repo.GetItems(ListItemsOptions{Type: "issues", Limit: 2})
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	for _, it := range items {
		if it.Status == "Closed" {
			t.Errorf("Closed item leaked through the filter")
		}
	}
}

func TestUpdateItemPatchSemantics(t *testing.T) {
	repo := newTestRepo(t)

	created, err := repo.CreateItem(&CreateItemRequest{
		Type:  "issues",
		Title: "Original",
		Tags:  []string{"keep", "me"},
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	// Omitted tags stay untouched.
	title := "Renamed"
	updated, err := repo.UpdateItem(&UpdateItemRequest{Type: "issues", ID: created.ID, Title: &title})
	if err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Errorf("Expected renamed title, got %s", updated.Title)
	}
	if len(updated.Tags) != 2 {
		t.Errorf("Expected tags untouched, got %v", updated.Tags)
	}

	// Explicit empty slice clears.
	updated, err = repo.UpdateItem(&UpdateItemRequest{Type: "issues", ID: created.ID, Tags: []string{}})
	if err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}
	if len(updated.Tags) != 0 {
		t.Errorf("Expected tags cleared, got %v", updated.Tags)
	}

	fetched, err := repo.GetItem("issues", created.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if len(fetched.Tags) != 0 {
		t.Errorf("Expected cleared tags persisted to file, got %v", fetched.Tags)
	}
}

func TestItemFileOnDisk(t *testing.T) {
	repo := newTestRepo(t)

	created, err := repo.CreateItem(&CreateItemRequest{
		Type:    "issues",
		Title:   "Fix: handle colons, really",
		Tags:    []string{"bug"},
		Content: "Steps to reproduce.",
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	path := filepath.Join(repo.DataDir(), "tasks", "issues", "issues-"+created.ID+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected item file at %s: %v", path, err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "---\n") {
		t.Errorf("Item file missing frontmatter block")
	}
	if !strings.Contains(text, `tags: ["bug"]`) {
		t.Errorf("Expected JSON array tags line, got:\n%s", text)
	}

	// File round-trips through GetItem with the exact title.
	fetched, err := repo.GetItem("issues", created.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if fetched.Title != "Fix: handle colons, really" {
		t.Errorf("Title mangled on round-trip: %q", fetched.Title)
	}
}

func TestRebuildIndex(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "First", Tags: []string{"a"}}); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if _, err := repo.CreateItem(&CreateItemRequest{Type: "docs", Title: "Doc", Content: "body"}); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	count, err := repo.RebuildIndex()
	if err != nil {
		t.Fatalf("RebuildIndex failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 reindexed items, got %d", count)
	}

	items, err := repo.GetItems(ListItemsOptions{Type: "issues"})
	if err != nil {
		t.Fatalf("GetItems after rebuild failed: %v", err)
	}
	if len(items) != 1 || items[0].Title != "First" {
		t.Fatalf("Rebuild lost items: %v", items)
	}

	// Sequences survive the rebuild: next id continues.
	it, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Second"})
	if err != nil {
		t.Fatalf("CreateItem after rebuild failed: %v", err)
	}
	if it.ID != "2" {
		t.Errorf("Expected id 2 after rebuild, got %s", it.ID)
	}
}

func TestRebuildIndexWithCustomType(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.CreateType("ideas", BaseTasks, "Half-formed plans"); err != nil {
		t.Fatalf("CreateType failed: %v", err)
	}
	if _, err := repo.CreateItem(&CreateItemRequest{Type: "ideas", Title: "Sharding"}); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if _, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Builtin"}); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	count, err := repo.RebuildIndex()
	if err != nil {
		t.Fatalf("RebuildIndex failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 reindexed items, got %d", count)
	}

	items, err := repo.GetItems(ListItemsOptions{Type: "ideas"})
	if err != nil {
		t.Fatalf("GetItems after rebuild failed: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Sharding" {
		t.Fatalf("Rebuild lost the custom-type item: %v", items)
	}

	it, err := repo.CreateItem(&CreateItemRequest{Type: "ideas", Title: "Caching"})
	if err != nil {
		t.Fatalf("CreateItem after rebuild failed: %v", err)
	}
	if it.ID != "2" {
		t.Errorf("Expected id 2 after rebuild, got %s", it.ID)
	}
}

func TestGetItemsStatusNameFilter(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Fresh"}); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	reviewed, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Waiting", Status: "Review"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	items, err := repo.GetItems(ListItemsOptions{Type: "issues", StatusNames: []string{"Review"}})
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != reviewed.ID {
		t.Fatalf("Expected only the Review item, got %d items", len(items))
	}

	if _, err := repo.GetItems(ListItemsOptions{Type: "issues", StatusNames: []string{"Bogus"}}); !IsValidation(err) {
		t.Errorf("Expected ValidationError for unknown status name, got %v", err)
	}
}

func TestUpdateItemRestoresFileOnWriteFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}
	repo := newTestRepo(t)

	created, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Stable"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	path := filepath.Join(repo.DataDir(), "tasks", "issues", "issues-"+created.ID+".md")
	prior, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if err := os.Chmod(path, 0444); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	t.Cleanup(func() { os.Chmod(path, 0644) })

	title := "Changed"
	if _, err := repo.UpdateItem(&UpdateItemRequest{Type: "issues", ID: created.ID, Title: &title}); err == nil {
		t.Fatal("Expected UpdateItem to fail on unwritable file")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(after) != string(prior) {
		t.Errorf("Item file changed despite failed update")
	}
}

func TestUnknownTypeRejected(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.CreateItem(&CreateItemRequest{Type: "nonsense", Title: "x"}); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError for unknown type, got %v", err)
	}
	if _, err := repo.GetItems(ListItemsOptions{Type: "nonsense"}); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError for unknown type, got %v", err)
	}
}
