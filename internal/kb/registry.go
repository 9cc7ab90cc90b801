package kb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// builtinTypes are registered on every fresh data dir and cannot be
// modified or deleted.
var builtinTypes = []TypeDefinition{
	{Name: "issues", BaseType: BaseTasks, Description: "Bug reports and problems to fix", Builtin: true},
	{Name: "plans", BaseType: BaseTasks, Description: "Planned work with start and end dates", Builtin: true},
	{Name: "docs", BaseType: BaseDocuments, Description: "Long-form documentation", Builtin: true},
	{Name: "knowledge", BaseType: BaseDocuments, Description: "Reusable notes and learnings", Builtin: true},
}

// getTypeRow loads one registry row. Special type names are not registry
// rows and resolve to NotFoundError here.
func (r *Repository) getTypeRow(name string) (*TypeDefinition, error) {
	var def TypeDefinition
	var builtin int
	err := r.db.QueryRow(
		"SELECT name, base_type, description, builtin FROM types WHERE name = ?", name,
	).Scan(&def.Name, &def.BaseType, &def.Description, &builtin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Kind: "type", Key: name}
	}
	if err != nil {
		return nil, err
	}
	def.Builtin = builtin != 0
	return &def, nil
}

// GetAllTypes returns all registered types ordered by base then name.
// Sessions and dailies are not registry entries and do not appear.
func (r *Repository) GetAllTypes() ([]TypeDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getAllTypesLocked()
}

// getAllTypesLocked runs the registry query. Callers hold r.mu; the mutex
// is not reentrant, so internal callers that already own it must come here
// instead of GetAllTypes.
func (r *Repository) getAllTypesLocked() ([]TypeDefinition, error) {
	rows, err := r.db.Query(
		"SELECT name, base_type, description, builtin FROM types ORDER BY base_type, name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []TypeDefinition
	for rows.Next() {
		var def TypeDefinition
		var builtin int
		if err := rows.Scan(&def.Name, &def.BaseType, &def.Description, &builtin); err != nil {
			return nil, err
		}
		def.Builtin = builtin != 0
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// GetBaseType returns the base category of a type, resolving specials too.
func (r *Repository) GetBaseType(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, err := r.behaviorFor(name)
	if err != nil {
		return "", err
	}
	return b.Base, nil
}

// CreateType registers a custom type.
func (r *Repository) CreateType(name, baseType, description string) (*TypeDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !ValidTypeName(name) {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid type name %q: must match [a-z][a-z0-9_]*", name)}
	}
	if baseType != BaseTasks && baseType != BaseDocuments {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid base type %q: must be %s or %s", baseType, BaseTasks, BaseDocuments)}
	}
	if name == TypeSessions || name == TypeDailies {
		return nil, &ValidationError{Message: fmt.Sprintf("type name %q is reserved", name)}
	}

	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM types WHERE name = ?", name).Scan(&count); err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, &ValidationError{Message: fmt.Sprintf("type %q already exists", name)}
	}

	_, err := r.db.Exec(
		"INSERT INTO types (name, base_type, description, builtin) VALUES (?, ?, ?, 0)",
		name, baseType, description,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create type: %w", err)
	}

	return &TypeDefinition{Name: name, BaseType: baseType, Description: description}, nil
}

// UpdateType changes a custom type's description. Name and base type are
// immutable; builtins cannot be changed at all.
func (r *Repository) UpdateType(name, description string) (*TypeDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == TypeSessions || name == TypeDailies {
		return nil, &ValidationError{Message: fmt.Sprintf("type %q cannot be modified", name)}
	}

	def, err := r.getTypeRow(name)
	if err != nil {
		return nil, err
	}
	if def.Builtin {
		return nil, &ValidationError{Message: fmt.Sprintf("built-in type %q cannot be modified", name)}
	}

	if _, err := r.db.Exec("UPDATE types SET description = ? WHERE name = ?", description, name); err != nil {
		return nil, fmt.Errorf("failed to update type: %w", err)
	}

	def.Description = description
	return def, nil
}

// DeleteType removes a custom type. It refuses when any item of the type
// still exists, on disk or in the index.
func (r *Repository) DeleteType(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == TypeSessions || name == TypeDailies {
		return &ValidationError{Message: fmt.Sprintf("type %q cannot be deleted", name)}
	}

	def, err := r.getTypeRow(name)
	if err != nil {
		return err
	}
	if def.Builtin {
		return &ValidationError{Message: fmt.Sprintf("built-in type %q cannot be deleted", name)}
	}

	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM items WHERE type = ?", name).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return &ValidationError{Message: fmt.Sprintf("type %q still has %d item(s)", name, count)}
	}

	b := behavior{Type: name, Base: def.BaseType}
	if entries, err := os.ReadDir(r.itemDir(b)); err == nil && len(entries) > 0 {
		return &ValidationError{Message: fmt.Sprintf("type %q still has files on disk", name)}
	}

	if _, err := r.db.Exec("DELETE FROM types WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete type: %w", err)
	}
	if _, err := r.db.Exec("DELETE FROM sequences WHERE type = ?", name); err != nil {
		return err
	}

	// Remove the now-empty directory if present; best effort.
	os.Remove(r.itemDir(b))

	return nil
}
