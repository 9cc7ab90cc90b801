package provider

import (
	"github.com/knowledgetools/mcp-kb/pkg/types"
)

// ChunkingStrategy splits source files into chunks.
type ChunkingStrategy interface {
	// Name returns the strategy name (e.g., "window").
	Name() string

	// Chunk splits a source file into chunks.
	Chunk(file *types.SourceFile) ([]*types.Chunk, error)

	// Close releases any resources.
	Close() error
}

// ChunkingConfig contains configuration for chunking strategies.
type ChunkingConfig struct {
	Strategy string // "window"
	Lines    int    // Lines per chunk window
}
