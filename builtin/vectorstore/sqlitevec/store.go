// Package sqlitevec implements VectorStore using sqlite-vec for cosine
// similarity search over code chunk embeddings.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/knowledgetools/mcp-kb/pkg/provider"
	"github.com/knowledgetools/mcp-kb/pkg/types"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// SchemaVersion is incremented when schema changes require reindexing.
const SchemaVersion = 1

// Store implements the VectorStore interface using sqlite-vec.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
}

// New creates a new sqlite-vec store.
func New() *Store {
	return &Store{}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

// Init initializes the store at the given path.
func (s *Store) Init(path string) error {
	s.path = path

	// Register sqlite-vec extension before opening any database connection.
	// This must be called once before sql.Open() to ensure vec_* functions are available.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for concurrent reads, busy_timeout to wait for locks instead of failing immediately
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	// Enable sqlite-vec extension
	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		return fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	if err := s.createSchema(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Restore the vector dimension from a prior run. Without it the first
	// write after a reopen would mistake the existing vector table for a
	// dimension change and drop every stored embedding.
	meta, err := s.GetMetadata()
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	if meta != nil {
		s.dimensions = meta.EmbeddingDimensions
	}

	return nil
}

// createSchema creates all necessary tables.
func (s *Store) createSchema() error {
	// Metadata table
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Chunks table
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			language TEXT NOT NULL,
			content TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Index on file_path for deletion
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path)`)
	if err != nil {
		return err
	}

	// File cache table for incremental indexing
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS file_cache (
			file_path TEXT PRIMARY KEY,
			file_hash TEXT NOT NULL,
			config_hash TEXT NOT NULL,
			indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	return nil
}

// createVectorTable creates the vector table with the specified dimensions.
func (s *Store) createVectorTable(dimensions int) error {
	if s.dimensions == dimensions {
		return nil // Already created
	}

	s.dimensions = dimensions

	// Drop existing vector table if dimensions changed
	_, _ = s.db.Exec("DROP TABLE IF EXISTS chunk_embeddings")

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_embeddings USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d]
		)
	`, dimensions))
	if err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Close releases resources and closes connections.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreChunks stores chunks with their embeddings.
func (s *Store) StoreChunks(chunks []*types.ChunkWithEmbedding) error {
	if len(chunks) == 0 {
		return nil
	}

	// Ensure vector table is created with correct dimensions
	if len(chunks[0].Embedding) > 0 {
		if err := s.createVectorTable(len(chunks[0].Embedding)); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	chunkStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO chunks
		(id, file_path, language, content, start_line, end_line, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()

	embeddingStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO chunk_embeddings (chunk_id, embedding)
		VALUES (?, ?)
	`)
	if err != nil {
		return err
	}
	defer embeddingStmt.Close()

	for _, cwe := range chunks {
		c := cwe.Chunk

		_, err := chunkStmt.Exec(
			c.ID, c.FilePath, c.Language, c.Content,
			c.StartLine, c.EndLine, c.Hash,
		)
		if err != nil {
			return fmt.Errorf("failed to store chunk %s: %w", c.ID, err)
		}

		if len(cwe.Embedding) > 0 {
			embBytes := floatsToBytes(cwe.Embedding)
			if _, err := embeddingStmt.Exec(c.ID, embBytes); err != nil {
				return fmt.Errorf("failed to store embedding for %s: %w", c.ID, err)
			}
		}
	}

	return tx.Commit()
}

// GetChunk retrieves a chunk by ID.
func (s *Store) GetChunk(id string) (*types.Chunk, error) {
	row := s.db.QueryRow(`
		SELECT id, file_path, language, content, start_line, end_line, hash
		FROM chunks WHERE id = ?
	`, id)

	var chunk types.Chunk
	err := row.Scan(
		&chunk.ID, &chunk.FilePath, &chunk.Language, &chunk.Content,
		&chunk.StartLine, &chunk.EndLine, &chunk.Hash,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &chunk, nil
}

// DeleteChunksByFile removes all chunks for a file.
func (s *Store) DeleteChunksByFile(filePath string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Get chunk IDs first
	rows, err := tx.Query("SELECT id FROM chunks WHERE file_path = ?", filePath)
	if err != nil {
		return err
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	// Delete embeddings
	for _, id := range ids {
		if _, err := tx.Exec("DELETE FROM chunk_embeddings WHERE chunk_id = ?", id); err != nil {
			// The vector table may not exist yet on a fresh index
			if !strings.Contains(err.Error(), "no such table") {
				return err
			}
		}
	}

	if _, err := tx.Exec("DELETE FROM chunks WHERE file_path = ?", filePath); err != nil {
		return err
	}

	return tx.Commit()
}

// Search performs cosine-similarity vector search with a deterministic
// tie-break: distance, then file path, then start line.
func (s *Store) Search(ctx context.Context, req *types.SearchRequest) ([]*types.SearchResult, error) {
	if len(req.QueryVec) == 0 {
		return nil, errors.New("query vector is required")
	}

	embBytes := floatsToBytes(req.QueryVec)

	query := `
		SELECT
			ce.chunk_id,
			vec_distance_cosine(ce.embedding, ?) as distance,
			c.file_path, c.language, c.content, c.start_line, c.end_line, c.hash
		FROM chunk_embeddings ce
		JOIN chunks c ON ce.chunk_id = c.id
	`
	args := []any{embBytes}

	if len(req.Extensions) > 0 {
		clauses := make([]string, len(req.Extensions))
		for i, ext := range req.Extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			clauses[i] = "c.file_path LIKE ?"
			args = append(args, "%"+ext)
		}
		query += " WHERE (" + strings.Join(clauses, " OR ") + ")"
	}

	query += " ORDER BY distance ASC, c.file_path ASC, c.start_line ASC LIMIT ?"
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, types.ErrIndexNotFound
		}
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []*types.SearchResult
	for rows.Next() {
		var (
			distance float64
			chunk    types.Chunk
		)

		err := rows.Scan(
			&chunk.ID, &distance,
			&chunk.FilePath, &chunk.Language, &chunk.Content,
			&chunk.StartLine, &chunk.EndLine, &chunk.Hash,
		)
		if err != nil {
			return nil, err
		}

		results = append(results, &types.SearchResult{
			Chunk:      &chunk,
			Similarity: float32(1.0 - distance),
		})
	}

	return results, rows.Err()
}

// GetMetadata returns index metadata, or nil if the index is empty.
func (s *Store) GetMetadata() (*types.IndexMetadata, error) {
	row := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'index_metadata'")

	var jsonData string
	err := row.Scan(&jsonData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var meta types.IndexMetadata
	if err := json.Unmarshal([]byte(jsonData), &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// SetMetadata stores index metadata.
func (s *Store) SetMetadata(meta *types.IndexMetadata) error {
	jsonData, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('index_metadata', ?)
	`, string(jsonData))
	return err
}

// GetStats returns store statistics.
func (s *Store) GetStats() (*types.StoreStats, error) {
	stats := &types.StoreStats{}

	row := s.db.QueryRow("SELECT COUNT(*) FROM chunks")
	if err := row.Scan(&stats.TotalChunks); err != nil {
		return nil, err
	}

	row = s.db.QueryRow("SELECT COUNT(DISTINCT file_path) FROM chunks")
	if err := row.Scan(&stats.IndexedFiles); err != nil {
		return nil, err
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	meta, err := s.GetMetadata()
	if err == nil && meta != nil {
		stats.LastIndexed = meta.LastUpdated
	}

	return stats, nil
}

// GetFileHash returns the cached hash for a file.
func (s *Store) GetFileHash(filePath string) (string, error) {
	row := s.db.QueryRow("SELECT file_hash FROM file_cache WHERE file_path = ?", filePath)

	var hash string
	err := row.Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetFileHash stores the hash for a file.
func (s *Store) SetFileHash(filePath, hash, configHash string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO file_cache (file_path, file_hash, config_hash, indexed_at)
		VALUES (?, ?, ?, ?)
	`, filePath, hash, configHash, time.Now())
	return err
}

// GetAllFileHashes returns all cached file hashes.
func (s *Store) GetAllFileHashes() (map[string]string, error) {
	rows, err := s.db.Query("SELECT file_path, file_hash FROM file_cache")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}

	return hashes, nil
}

// DeleteFileCache removes file from cache.
func (s *Store) DeleteFileCache(filePath string) error {
	_, err := s.db.Exec("DELETE FROM file_cache WHERE file_path = ?", filePath)
	return err
}

// floatsToBytes converts float32 slice to bytes for sqlite-vec.
func floatsToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		bytes[i*4] = byte(bits)
		bytes[i*4+1] = byte(bits >> 8)
		bytes[i*4+2] = byte(bits >> 16)
		bytes[i*4+3] = byte(bits >> 24)
	}
	return bytes
}

// Ensure Store implements VectorStore interface
var _ provider.VectorStore = (*Store)(nil)
