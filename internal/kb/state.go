package kb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knowledgetools/mcp-kb/internal/frontmatter"
)

// stateFileName holds the singleton working-state document.
const stateFileName = "current_state.md"

// stateType is the fixed type recorded in the state file's frontmatter.
const stateType = "current_state"

// UpdateStateRequest carries a wholesale current-state overwrite.
type UpdateStateRequest struct {
	Content   string
	Related   []string
	Tags      []string
	UpdatedBy string
}

// GetCurrentState loads the working-state document. A fresh data dir
// yields empty content and default metadata, never an error.
func (r *Repository) GetCurrentState() (*CurrentState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	path := filepath.Join(r.dataDir, stateFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CurrentState{
				Metadata: StateMetadata{
					Title:   "Current state",
					Type:    stateType,
					Tags:    []string{},
					Related: []string{},
				},
			}, nil
		}
		return nil, err
	}

	meta, content, err := frontmatter.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	state := &CurrentState{
		Content: content,
		Metadata: StateMetadata{
			Title:     meta.GetString("title"),
			Type:      stateType,
			Priority:  meta.GetString("priority"),
			Tags:      meta.GetList("tags"),
			Related:   meta.GetList("related"),
			UpdatedBy: meta.GetString("updated_by"),
		},
	}
	if ts := meta.GetString("updated_at"); ts != "" {
		if t, parseErr := time.Parse(time.RFC3339, ts); parseErr == nil {
			state.Metadata.UpdatedAt = t
		}
	}
	if state.Metadata.Title == "" {
		state.Metadata.Title = "Current state"
	}

	return state, nil
}

// UpdateCurrentState overwrites the working-state document. Related
// references are validated the same way item references are; tags are
// auto-registered.
func (r *Repository) UpdateCurrentState(req *UpdateStateRequest) (*CurrentState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := validateRelated(r.db, req.Related); err != nil {
		return nil, err
	}

	tags := normalizeTags(req.Tags)
	if err := r.ensureTagsTx(r.db, tags); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state := &CurrentState{
		Content: req.Content,
		Metadata: StateMetadata{
			Title:     "Current state",
			Type:      stateType,
			Tags:      tags,
			Related:   append([]string{}, req.Related...),
			UpdatedAt: now,
			UpdatedBy: req.UpdatedBy,
		},
	}

	meta := frontmatter.Metadata{
		"title":      state.Metadata.Title,
		"type":       stateType,
		"tags":       state.Metadata.Tags,
		"related":    state.Metadata.Related,
		"updated_at": now.Format(time.RFC3339),
	}
	if req.UpdatedBy != "" {
		meta["updated_by"] = req.UpdatedBy
	}

	path := filepath.Join(r.dataDir, stateFileName)
	raw := frontmatter.Generate(meta, state.Content)
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		return nil, fmt.Errorf("failed to write current state: %w", err)
	}

	return state, nil
}
