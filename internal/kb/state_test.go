package kb

import (
	"testing"
)

func TestGetCurrentStateFresh(t *testing.T) {
	repo := newTestRepo(t)

	state, err := repo.GetCurrentState()
	if err != nil {
		t.Fatalf("GetCurrentState on fresh dir failed: %v", err)
	}
	if state.Content != "" {
		t.Errorf("Expected empty content, got %q", state.Content)
	}
	if state.Metadata.Type != "current_state" {
		t.Errorf("Expected fixed type, got %s", state.Metadata.Type)
	}
	if state.Metadata.Tags == nil || state.Metadata.Related == nil {
		t.Errorf("Expected empty slices, got nils")
	}
}

func TestUpdateCurrentState(t *testing.T) {
	repo := newTestRepo(t)

	issue, err := repo.CreateItem(&CreateItemRequest{Type: "issues", Title: "In flight"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	state, err := repo.UpdateCurrentState(&UpdateStateRequest{
		Content:   "Working on the auth refactor.",
		Related:   []string{issue.Ref()},
		Tags:      []string{"focus"},
		UpdatedBy: "session-agent",
	})
	if err != nil {
		t.Fatalf("UpdateCurrentState failed: %v", err)
	}
	if state.Metadata.UpdatedBy != "session-agent" {
		t.Errorf("updated_by not carried: %s", state.Metadata.UpdatedBy)
	}

	// Round-trip through a fresh read.
	loaded, err := repo.GetCurrentState()
	if err != nil {
		t.Fatalf("GetCurrentState failed: %v", err)
	}
	if loaded.Content != "Working on the auth refactor." {
		t.Errorf("Content not persisted: %q", loaded.Content)
	}
	if len(loaded.Metadata.Related) != 1 || loaded.Metadata.Related[0] != issue.Ref() {
		t.Errorf("Related not persisted: %v", loaded.Metadata.Related)
	}
	if loaded.Metadata.UpdatedAt.IsZero() {
		t.Errorf("Expected updated_at set")
	}

	// Tags auto-registered.
	tags, err := repo.GetTags()
	if err != nil {
		t.Fatalf("GetTags failed: %v", err)
	}
	found := false
	for _, tag := range tags {
		if tag.Name == "focus" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected focus tag registered, got %v", tags)
	}

	// Overwrite is wholesale: old tags/related do not linger.
	state, err = repo.UpdateCurrentState(&UpdateStateRequest{Content: "Done."})
	if err != nil {
		t.Fatalf("UpdateCurrentState failed: %v", err)
	}
	loaded, err = repo.GetCurrentState()
	if err != nil {
		t.Fatalf("GetCurrentState failed: %v", err)
	}
	if len(loaded.Metadata.Related) != 0 || len(loaded.Metadata.Tags) != 0 {
		t.Errorf("Overwrite kept stale metadata: %+v", loaded.Metadata)
	}
}

func TestUpdateCurrentStateValidatesRelated(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.UpdateCurrentState(&UpdateStateRequest{
		Content: "x",
		Related: []string{"issues-404", "plans-7"},
	})
	re, ok := err.(*ReferenceError)
	if !ok {
		t.Fatalf("Expected ReferenceError, got %v", err)
	}
	if len(re.Refs) != 2 {
		t.Errorf("Expected both bad refs listed, got %v", re.Refs)
	}
}
