package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateEmbeddingProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"local", false},
		{"ollama", false},
		{"openai", false},
		{"invalid", true},
		{"LOCAL", true}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Embedding.Provider = tt.provider
			errs := Validate(cfg)

			hasErr := len(errs) > 0
			if hasErr != tt.wantErr {
				t.Errorf("Validate(Embedding.Provider=%q) hasErr=%v, want %v", tt.provider, hasErr, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if errs := Validate(cfg); len(errs) > 0 {
		t.Errorf("DefaultConfig() is invalid: %v", errs)
	}
	if cfg.Chunking.Lines != 30 {
		t.Errorf("DefaultConfig().Chunking.Lines = %d, want 30", cfg.Chunking.Lines)
	}
	if cfg.Embedding.Provider != "local" {
		t.Errorf("DefaultConfig().Embedding.Provider = %q, want %q", cfg.Embedding.Provider, "local")
	}
}

func TestLoadMissingConfigUsesDefaults(t *testing.T) {
	dir, err := os.MkdirTemp("", "config_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg, warnings, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning when no config file exists")
	}
	if cfg.Embedding.Provider != "local" {
		t.Errorf("expected default provider, got %q", cfg.Embedding.Provider)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir, err := os.MkdirTemp("", "config_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	cfg := DefaultConfig()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Model = "nomic-embed-text"
	cfg.Chunking.Lines = 20

	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".mcp-kb", "config.yaml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Embedding.Provider != "ollama" || loaded.Embedding.Model != "nomic-embed-text" {
		t.Errorf("embedding config not round-tripped: %+v", loaded.Embedding)
	}
	if loaded.Chunking.Lines != 20 {
		t.Errorf("chunk lines not round-tripped: %d", loaded.Chunking.Lines)
	}
}

func TestHashChangesWithIndexingConfig(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()

	if a.Hash() != b.Hash() {
		t.Error("identical configs should hash equal")
	}

	b.Chunking.Lines = 50
	if a.Hash() == b.Hash() {
		t.Error("changing chunk lines should change the hash")
	}

	c := DefaultConfig()
	c.Logging.Level = "debug"
	if a.Hash() != c.Hash() {
		t.Error("logging config should not affect the index hash")
	}
}
