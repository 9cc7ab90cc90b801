package kb

import (
	"testing"
)

func TestChangeItemType(t *testing.T) {
	repo := newTestRepo(t)

	bug, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Actually a plan"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	// Two referrers pointing at the issue.
	ref1, err := repo.CreateItem(&CreateItemRequest{
		Type: "issues", Title: "Blocked by it", Related: []string{bug.Ref()},
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	ref2, err := repo.CreateItem(&CreateItemRequest{
		Type: "docs", Title: "Mentions it", Content: "see the issue", Related: []string{bug.Ref()},
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	migrated, rewritten, err := repo.ChangeItemType("issues", bug.ID, "plans")
	if err != nil {
		t.Fatalf("ChangeItemType failed: %v", err)
	}
	if migrated.Type != "plans" || migrated.ID != "1" {
		t.Errorf("Expected plans-1, got %s", migrated.Ref())
	}
	if migrated.Title != "Actually a plan" {
		t.Errorf("Title not carried over: %s", migrated.Title)
	}
	if rewritten != 2 {
		t.Errorf("Expected 2 rewritten referrers, got %d", rewritten)
	}

	// Original is gone; the new key resolves.
	if _, err := repo.GetItem("issues", bug.ID); !IsNotFound(err) {
		t.Errorf("Expected original gone, got %v", err)
	}
	if _, err := repo.GetItem("plans", migrated.ID); err != nil {
		t.Errorf("Expected migrated item fetchable: %v", err)
	}

	// Referrers now point at the new key, in their files too.
	for _, k := range []struct{ typ, id string }{{"issues", ref1.ID}, {"docs", ref2.ID}} {
		it, err := repo.GetItem(k.typ, k.id)
		if err != nil {
			t.Fatalf("GetItem %s-%s failed: %v", k.typ, k.id, err)
		}
		if len(it.Related) != 1 || it.Related[0] != migrated.Ref() {
			t.Errorf("Referrer %s not rewritten: %v", it.Ref(), it.Related)
		}
	}
}

func TestChangeItemTypeGuards(t *testing.T) {
	repo := newTestRepo(t)

	issue, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Stuck"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	// Base mismatch.
	if _, _, err := repo.ChangeItemType("issues", issue.ID, "docs"); !IsValidation(err) {
		t.Errorf("Expected ValidationError for base mismatch, got %v", err)
	}

	// Special types.
	if _, _, err := repo.ChangeItemType("issues", issue.ID, "sessions"); !IsValidation(err) {
		t.Errorf("Expected ValidationError for special target, got %v", err)
	}
	if _, _, err := repo.ChangeItemType("sessions", "x", "issues"); !IsValidation(err) {
		t.Errorf("Expected ValidationError for special source, got %v", err)
	}

	// Missing item.
	if _, _, err := repo.ChangeItemType("issues", "99", "plans"); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}

	// No guard failure may have moved anything.
	if _, err := repo.GetItem("issues", issue.ID); err != nil {
		t.Errorf("Guarded failure mutated the item: %v", err)
	}
	plans, err := repo.GetItems(ListItemsOptions{Type: "plans"})
	if err != nil {
		t.Fatalf("GetItems failed: %v", err)
	}
	if len(plans) != 0 {
		t.Errorf("Guarded failure leaked a plans item")
	}
}

func TestChangeItemTypeSelfReference(t *testing.T) {
	repo := newTestRepo(t)

	it, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "Loner"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	if _, err := repo.UpdateItem(&UpdateItemRequest{
		Type: "issues", ID: it.ID, Related: []string{it.Ref()},
	}); err != nil {
		t.Fatalf("UpdateItem failed: %v", err)
	}

	migrated, rewritten, err := repo.ChangeItemType("issues", it.ID, "plans")
	if err != nil {
		t.Fatalf("ChangeItemType failed: %v", err)
	}
	// The item itself is not a referrer; its self-reference follows it.
	if rewritten != 0 {
		t.Errorf("Expected 0 rewritten referrers, got %d", rewritten)
	}
	if len(migrated.Related) != 1 || migrated.Related[0] != migrated.Ref() {
		t.Errorf("Self-reference not retargeted: %v", migrated.Related)
	}

	fetched, err := repo.GetItem("plans", migrated.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if len(fetched.Related) != 1 || fetched.Related[0] != migrated.Ref() {
		t.Errorf("Persisted self-reference still points at the old key: %v", fetched.Related)
	}
	if _, err := repo.GetItem("issues", it.ID); !IsNotFound(err) {
		t.Errorf("Expected original gone, got %v", err)
	}
}
