package kb

import (
	"testing"
)

func TestBuiltinTypesSeeded(t *testing.T) {
	repo := newTestRepo(t)

	defs, err := repo.GetAllTypes()
	if err != nil {
		t.Fatalf("GetAllTypes failed: %v", err)
	}
	if len(defs) != 4 {
		t.Fatalf("Expected 4 built-in types, got %d", len(defs))
	}

	byName := make(map[string]TypeDefinition)
	for _, def := range defs {
		byName[def.Name] = def
		if !def.Builtin {
			t.Errorf("Type %s should be builtin", def.Name)
		}
		// Specials never appear.
		if def.Name == TypeSessions || def.Name == TypeDailies {
			t.Errorf("Special type %s leaked into the registry list", def.Name)
		}
	}
	if byName["issues"].BaseType != BaseTasks || byName["docs"].BaseType != BaseDocuments {
		t.Errorf("Unexpected base types: %+v", byName)
	}
}

func TestCreateCustomType(t *testing.T) {
	repo := newTestRepo(t)

	def, err := repo.CreateType("decisions", BaseDocuments, "Architecture decision records")
	if err != nil {
		t.Fatalf("CreateType failed: %v", err)
	}
	if def.Builtin {
		t.Errorf("Custom type must not be builtin")
	}

	// The new type is immediately usable for items, content required.
	if _, err := repo.CreateItem(&CreateItemRequest{Type: "decisions", Title: "ADR-1"}); !IsValidation(err) {
		t.Errorf("Expected content requirement inherited from documents base, got %v", err)
	}
	if _, err := repo.CreateItem(&CreateItemRequest{Type: "decisions", Title: "ADR-1", Content: "We chose SQLite."}); err != nil {
		t.Errorf("CreateItem on custom type failed: %v", err)
	}

	// Invalid names and duplicates rejected.
	if _, err := repo.CreateType("Bad-Name", BaseTasks, ""); !IsValidation(err) {
		t.Errorf("Expected ValidationError for bad name, got %v", err)
	}
	if _, err := repo.CreateType("decisions", BaseDocuments, ""); !IsValidation(err) {
		t.Errorf("Expected ValidationError for duplicate, got %v", err)
	}
	if _, err := repo.CreateType("sessions", BaseTasks, ""); !IsValidation(err) {
		t.Errorf("Expected ValidationError for reserved name, got %v", err)
	}
	if _, err := repo.CreateType("things", "widgets", ""); !IsValidation(err) {
		t.Errorf("Expected ValidationError for bad base, got %v", err)
	}
}

func TestUpdateTypeDescriptionOnly(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.CreateType("notes", BaseDocuments, "old"); err != nil {
		t.Fatalf("CreateType failed: %v", err)
	}

	def, err := repo.UpdateType("notes", "new description")
	if err != nil {
		t.Fatalf("UpdateType failed: %v", err)
	}
	if def.Description != "new description" {
		t.Errorf("Description not updated: %s", def.Description)
	}

	if _, err := repo.UpdateType("issues", "nope"); !IsValidation(err) {
		t.Errorf("Expected ValidationError for builtin, got %v", err)
	}
	if _, err := repo.UpdateType("sessions", "nope"); !IsValidation(err) {
		t.Errorf("Expected ValidationError for special, got %v", err)
	}
	if _, err := repo.UpdateType("ghost", "nope"); !IsNotFound(err) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}

func TestDeleteTypeGuards(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.CreateType("scratch", BaseTasks, ""); err != nil {
		t.Fatalf("CreateType failed: %v", err)
	}
	it, err := repo.CreateItem(&CreateItemRequest{Type: "scratch", Title: "Holds the type"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	if err := repo.DeleteType("scratch"); !IsValidation(err) {
		t.Errorf("Expected guard failure while items exist, got %v", err)
	}

	if err := repo.DeleteItem("scratch", it.ID); err != nil {
		t.Fatalf("DeleteItem failed: %v", err)
	}
	if err := repo.DeleteType("scratch"); err != nil {
		t.Errorf("DeleteType after emptying failed: %v", err)
	}

	if err := repo.DeleteType("issues"); !IsValidation(err) {
		t.Errorf("Expected ValidationError for builtin delete, got %v", err)
	}
	if err := repo.DeleteType("dailies"); !IsValidation(err) {
		t.Errorf("Expected ValidationError for special delete, got %v", err)
	}
}

func TestGetBaseType(t *testing.T) {
	repo := newTestRepo(t)

	cases := map[string]string{
		"issues":   BaseTasks,
		"plans":    BaseTasks,
		"docs":     BaseDocuments,
		"sessions": BaseTasks,
		"dailies":  BaseDocuments,
	}
	for name, want := range cases {
		got, err := repo.GetBaseType(name)
		if err != nil {
			t.Fatalf("GetBaseType(%s) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("GetBaseType(%s) = %s, want %s", name, got, want)
		}
	}
}
