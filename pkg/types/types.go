// Package types contains shared data types used across the mcp-kb project.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// SourceFile represents a source code file to be indexed.
type SourceFile struct {
	Path     string // Path relative to the project root
	Content  []byte // File content
	Language string // Detected language (go, python, javascript, etc.)
	Hash     string // SHA256 hash for incremental indexing
}

// ComputeHash calculates SHA256 hash of the file content.
func (f *SourceFile) ComputeHash() string {
	h := sha256.Sum256(f.Content)
	return hex.EncodeToString(h[:])
}

// Chunk represents a fixed-size window of source lines that will be embedded.
type Chunk struct {
	ID        string // Unique ID: {filepath}:{startline}:{hash[:8]}
	FilePath  string // Path to source file, relative to the project root
	Language  string // Programming language
	Content   string // Chunk content
	StartLine int    // Starting line number (1-based)
	EndLine   int    // Ending line number (1-based, inclusive)
	Hash      string // SHA256 of content
}

// GenerateID creates a unique ID for the chunk.
func (c *Chunk) GenerateID() string {
	h := sha256.Sum256([]byte(c.Content))
	hashPrefix := hex.EncodeToString(h[:4])
	return c.FilePath + ":" + strconv.Itoa(c.StartLine) + ":" + hashPrefix
}

// ChunkWithEmbedding is a Chunk with its vector embedding.
type ChunkWithEmbedding struct {
	Chunk     *Chunk
	Embedding []float32
}

// SearchRequest represents a code search query.
type SearchRequest struct {
	QueryVec   []float32 // Query embedding
	Limit      int       // Max results to return
	Extensions []string  // Optional file extension filter (".go", ".ts", ...)
}

// SearchResult represents a single code search result.
type SearchResult struct {
	Chunk      *Chunk  `json:"chunk"`
	Similarity float32 `json:"similarity"` // 1 - cosine distance, higher is closer
}

// RelatedFile represents a file scored against a target file.
type RelatedFile struct {
	Path          string  `json:"path"`
	Score         float64 `json:"score"` // max similarity x log2(1 + matching chunks)
	MaxSimilarity float32 `json:"max_similarity"`
	MatchingChunks int    `json:"matching_chunks"`
}

// StoreStats contains statistics about the code index.
type StoreStats struct {
	IndexedFiles int       `json:"indexed_files"`
	TotalChunks  int       `json:"total_chunks"`
	DBSizeBytes  int64     `json:"db_size_bytes"`
	LastIndexed  time.Time `json:"last_indexed"`
}

// IndexMetadata contains metadata about the code index.
type IndexMetadata struct {
	SchemaVersion int       // For detecting incompatible changes
	CreatedAt     time.Time // When index was created
	LastUpdated   time.Time // Last update time
	ConfigHash    string    // Hash of configuration, changes force a reindex

	// Provider info
	EmbeddingProvider   string // "local", "openai", "ollama"
	EmbeddingModel      string
	EmbeddingDimensions int
	ChunkLines          int // Window size used when chunking
}

// IndexProgress represents the current state of an indexing run.
type IndexProgress struct {
	CurrentFile    string
	ProcessedFiles int
	TotalFiles     int
	TotalChunks    int
}

// IndexReport summarizes a completed indexing run.
type IndexReport struct {
	FilesScanned int           `json:"files_scanned"`
	FilesIndexed int           `json:"files_indexed"`
	FilesSkipped int           `json:"files_skipped"` // Unchanged since the last run
	FilesRemoved int           `json:"files_removed"` // No longer tracked by git
	TotalChunks  int           `json:"total_chunks"`
	Duration     time.Duration `json:"duration"`
}
