// Package index implements codebase indexing: git-tracked files are
// windowed into chunks, embedded, and stored for cosine search.
package index

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/knowledgetools/mcp-kb/builtin/chunking/window"
	"github.com/knowledgetools/mcp-kb/internal/config"
	"github.com/knowledgetools/mcp-kb/pkg/provider"
	"github.com/knowledgetools/mcp-kb/pkg/types"
)

// ProgressFunc receives a progress update after every processed file.
type ProgressFunc func(p types.IndexProgress)

// Indexer drives the chunk/embed/store pipeline for one project.
type Indexer struct {
	cfg        *config.Config
	store      provider.VectorStore
	embedding  provider.EmbeddingProvider
	chunker    provider.ChunkingStrategy
	projectDir string
	configHash string

	mu sync.Mutex // one IndexAll at a time
}

// Config contains indexer configuration.
type Config struct {
	ProjectDir string
	Config     *config.Config
	Store      provider.VectorStore
	Embedding  provider.EmbeddingProvider
	Chunker    provider.ChunkingStrategy
}

// New creates a new indexer.
func New(cfg Config) *Indexer {
	return &Indexer{
		cfg:        cfg.Config,
		store:      cfg.Store,
		embedding:  cfg.Embedding,
		chunker:    cfg.Chunker,
		projectDir: cfg.ProjectDir,
		configHash: cfg.Config.Hash(),
	}
}

// IndexAll indexes every git-tracked file under the project directory.
// Unchanged files are skipped unless force is set; files that left the
// tree have their chunks removed. Cancellation is honored between files,
// so the file being processed always lands completely.
func (idx *Indexer) IndexAll(ctx context.Context, force bool, progress ProgressFunc) (*types.IndexReport, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	start := time.Now()

	paths, err := idx.listGitFiles(ctx)
	if err != nil {
		return nil, err
	}

	prior, err := idx.store.GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read index metadata: %w", err)
	}
	// An indexing-relevant config change invalidates every cached hash.
	if prior != nil && prior.ConfigHash != idx.configHash {
		slog.Info("index config changed, reindexing everything")
		force = true
	}

	report := &types.IndexReport{FilesScanned: len(paths)}

	removed, err := idx.cleanupRemoved(paths)
	if err != nil {
		return nil, err
	}
	report.FilesRemoved = removed

	totalChunks := 0
	for i, relPath := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		file, skip, err := idx.readFile(relPath)
		if err != nil {
			slog.Warn("failed to read file", "path", relPath, "error", err)
			report.FilesSkipped++
			continue
		}
		if skip {
			report.FilesSkipped++
			continue
		}

		if !force {
			cached, err := idx.store.GetFileHash(relPath)
			if err == nil && cached == file.Hash {
				report.FilesSkipped++
				if progress != nil {
					progress(types.IndexProgress{
						CurrentFile:    relPath,
						ProcessedFiles: i + 1,
						TotalFiles:     len(paths),
						TotalChunks:    totalChunks,
					})
				}
				continue
			}
		}

		n, err := idx.indexFile(ctx, file)
		if err != nil {
			return nil, fmt.Errorf("failed to index %s: %w", relPath, err)
		}
		totalChunks += n
		report.FilesIndexed++

		if progress != nil {
			progress(types.IndexProgress{
				CurrentFile:    relPath,
				ProcessedFiles: i + 1,
				TotalFiles:     len(paths),
				TotalChunks:    totalChunks,
			})
		}
	}
	report.TotalChunks = totalChunks

	meta := &types.IndexMetadata{
		SchemaVersion:       1,
		CreatedAt:           time.Now(),
		LastUpdated:         time.Now(),
		ConfigHash:          idx.configHash,
		EmbeddingProvider:   idx.embedding.Name(),
		EmbeddingModel:      idx.cfg.Embedding.Model,
		EmbeddingDimensions: idx.embedding.Dimensions(),
		ChunkLines:          idx.cfg.Chunking.Lines,
	}
	if prior != nil {
		meta.CreatedAt = prior.CreatedAt
	}
	if err := idx.store.SetMetadata(meta); err != nil {
		return nil, fmt.Errorf("failed to store metadata: %w", err)
	}

	report.Duration = time.Since(start)
	slog.Info("indexing complete",
		"scanned", report.FilesScanned,
		"indexed", report.FilesIndexed,
		"skipped", report.FilesSkipped,
		"removed", report.FilesRemoved,
		"chunks", report.TotalChunks,
		"duration", report.Duration.Round(time.Millisecond),
	)

	return report, nil
}

// IndexFile reindexes a single file, used by the watcher. A vanished file
// has its chunks removed instead.
func (idx *Indexer) IndexFile(ctx context.Context, relPath string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.excluded(relPath) {
		return nil
	}

	file, skip, err := idx.readFile(relPath)
	if err != nil {
		if os.IsNotExist(err) {
			if delErr := idx.store.DeleteChunksByFile(relPath); delErr != nil {
				return delErr
			}
			return idx.store.DeleteFileCache(relPath)
		}
		return err
	}
	if skip {
		return nil
	}

	cached, err := idx.store.GetFileHash(relPath)
	if err == nil && cached == file.Hash {
		return nil
	}

	_, err = idx.indexFile(ctx, file)
	return err
}

// Search embeds the query with the same provider used at index time and
// runs cosine search over the stored chunks.
func (idx *Indexer) Search(ctx context.Context, query string, limit int, extensions []string) ([]*types.SearchResult, error) {
	meta, err := idx.store.GetMetadata()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, types.ErrIndexNotFound
	}

	vecs, err := idx.embedding.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}

	return idx.store.Search(ctx, &types.SearchRequest{
		QueryVec:   vecs[0],
		Limit:      limit,
		Extensions: extensions,
	})
}

// Stats returns store statistics.
func (idx *Indexer) Stats() (*types.StoreStats, error) {
	return idx.store.GetStats()
}

// Metadata returns index metadata, nil if the index is empty.
func (idx *Indexer) Metadata() (*types.IndexMetadata, error) {
	return idx.store.GetMetadata()
}

// ProjectDir returns the indexed project root.
func (idx *Indexer) ProjectDir() string {
	return idx.projectDir
}

// Close releases the provider chain.
func (idx *Indexer) Close() error {
	var firstErr error
	if err := idx.chunker.Close(); err != nil {
		firstErr = err
	}
	if err := idx.embedding.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := idx.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// indexFile chunks, embeds, and stores one file, replacing prior chunks.
func (idx *Indexer) indexFile(ctx context.Context, file *types.SourceFile) (int, error) {
	chunks, err := idx.chunker.Chunk(file)
	if err != nil {
		return 0, err
	}

	if err := idx.store.DeleteChunksByFile(file.Path); err != nil {
		return 0, err
	}

	if len(chunks) > 0 {
		withEmbeddings, err := idx.embedChunks(ctx, chunks)
		if err != nil {
			return 0, err
		}
		if err := idx.store.StoreChunks(withEmbeddings); err != nil {
			return 0, err
		}
	}

	if err := idx.store.SetFileHash(file.Path, file.Hash, idx.configHash); err != nil {
		return 0, err
	}

	return len(chunks), nil
}

// embedChunks generates embeddings in provider-sized batches.
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*types.Chunk) ([]*types.ChunkWithEmbedding, error) {
	batchSize := idx.embedding.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = len(chunks)
	}

	results := make([]*types.ChunkWithEmbedding, len(chunks))
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch := chunks[i:end]
		texts := make([]string, len(batch))
		for j, chunk := range batch {
			texts[j] = chunk.Content
		}

		embeddings, err := idx.embedding.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
		}

		for j, chunk := range batch {
			results[i+j] = &types.ChunkWithEmbedding{Chunk: chunk, Embedding: embeddings[j]}
		}
	}

	return results, nil
}

// listGitFiles returns tracked plus unignored untracked files, relative
// paths, exclude patterns applied.
func (idx *Indexer) listGitFiles(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = idx.projectDir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if strings.Contains(stderr.String(), "not a git repository") {
			return nil, fmt.Errorf("%w: %s", types.ErrNotGitRepo, idx.projectDir)
		}
		return nil, fmt.Errorf("git ls-files failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || idx.excluded(line) {
			continue
		}
		paths = append(paths, line)
	}

	return paths, nil
}

// cleanupRemoved drops chunks and cache rows for files no longer present.
func (idx *Indexer) cleanupRemoved(current []string) (int, error) {
	cached, err := idx.store.GetAllFileHashes()
	if err != nil {
		return 0, err
	}

	present := make(map[string]bool, len(current))
	for _, path := range current {
		present[path] = true
	}

	removed := 0
	for path := range cached {
		if present[path] {
			continue
		}
		if err := idx.store.DeleteChunksByFile(path); err != nil {
			return removed, err
		}
		if err := idx.store.DeleteFileCache(path); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

// readFile loads a file for indexing. Binary and oversized files are
// skipped, not errors.
func (idx *Indexer) readFile(relPath string) (*types.SourceFile, bool, error) {
	fullPath := filepath.Join(idx.projectDir, relPath)

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, false, err
	}
	if info.IsDir() {
		return nil, true, nil
	}
	if maxSize := parseSize(idx.cfg.Limits.MaxFileSize); maxSize > 0 && info.Size() > maxSize {
		slog.Debug("skipping oversized file", "path", relPath, "size", info.Size())
		return nil, true, nil
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, false, err
	}
	if isBinary(content) {
		return nil, true, nil
	}

	file := &types.SourceFile{
		Path:     relPath,
		Content:  content,
		Language: window.DetectLanguage(relPath),
	}
	file.Hash = file.ComputeHash()

	return file, false, nil
}

// excluded matches a relative path against the configured patterns.
func (idx *Indexer) excluded(relPath string) bool {
	for _, pattern := range idx.cfg.Index.Exclude {
		if matchGlob(pattern, relPath) {
			return true
		}
	}
	return false
}

// isBinary sniffs for a NUL byte in the first 8KB.
func isBinary(content []byte) bool {
	n := len(content)
	if n > 8192 {
		n = 8192
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

// matchGlob matches a path against a glob pattern, with ** support.
func matchGlob(pattern, path string) bool {
	if strings.Contains(pattern, "**") {
		parts := strings.Split(pattern, "**")
		if len(parts) == 2 {
			prefix := strings.TrimSuffix(parts[0], "/")
			suffix := strings.TrimPrefix(parts[1], "/")

			if prefix != "" && !strings.HasPrefix(path, prefix) {
				return false
			}
			if suffix == "" {
				return true
			}

			if strings.Contains(suffix, "*") {
				if matched, _ := filepath.Match(suffix, filepath.Base(path)); matched {
					return true
				}
				remaining := strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
				matched, _ := filepath.Match(suffix, remaining)
				return matched
			}

			return strings.HasSuffix(path, suffix) || strings.Contains(path, "/"+suffix+"/") || strings.Contains(path, "/"+suffix)
		}
	}

	if matched, _ := filepath.Match(pattern, path); matched {
		return true
	}
	matched, _ := filepath.Match(pattern, filepath.Base(path))
	return matched
}

// parseSize parses a size string like "10MB" to bytes.
func parseSize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	var value int64
	_, _ = fmt.Sscanf(s, "%d", &value)

	return value * multiplier
}
