package sqlitevec

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/knowledgetools/mcp-kb/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "vectors_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	store := New()
	if err := store.Init(tmpFile.Name()); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testChunk(path string, startLine int, content string) *types.Chunk {
	c := &types.Chunk{
		FilePath:  path,
		Language:  "go",
		Content:   content,
		StartLine: startLine,
		EndLine:   startLine + 29,
	}
	c.ID = c.GenerateID()
	f := &types.SourceFile{Content: []byte(content)}
	c.Hash = f.ComputeHash()
	return c
}

func unitVec(dims, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func TestStoreAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunks := []*types.ChunkWithEmbedding{
		{Chunk: testChunk("a.go", 1, "func Alpha() {}"), Embedding: unitVec(8, 0)},
		{Chunk: testChunk("b.go", 1, "func Beta() {}"), Embedding: unitVec(8, 1)},
		{Chunk: testChunk("c.ts", 1, "function gamma() {}"), Embedding: unitVec(8, 2)},
	}
	if err := store.StoreChunks(chunks); err != nil {
		t.Fatalf("StoreChunks failed: %v", err)
	}

	results, err := store.Search(ctx, &types.SearchRequest{
		QueryVec: unitVec(8, 0),
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	// The aligned vector should come first with the highest similarity.
	if results[0].Chunk.FilePath != "a.go" {
		t.Errorf("expected a.go first, got %s", results[0].Chunk.FilePath)
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("expected similarity ~1.0, got %f", results[0].Similarity)
	}
	if results[1].Similarity > results[0].Similarity {
		t.Error("results not ordered by descending similarity")
	}
}

func TestSearchExtensionFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunks := []*types.ChunkWithEmbedding{
		{Chunk: testChunk("a.go", 1, "go code"), Embedding: unitVec(4, 0)},
		{Chunk: testChunk("b.ts", 1, "ts code"), Embedding: unitVec(4, 0)},
	}
	if err := store.StoreChunks(chunks); err != nil {
		t.Fatalf("StoreChunks failed: %v", err)
	}

	results, err := store.Search(ctx, &types.SearchRequest{
		QueryVec:   unitVec(4, 0),
		Limit:      10,
		Extensions: []string{".go"},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.FilePath != "a.go" {
		t.Fatalf("extension filter failed: got %d results", len(results))
	}
}

func TestDeleteChunksByFile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunks := []*types.ChunkWithEmbedding{
		{Chunk: testChunk("a.go", 1, "first"), Embedding: unitVec(4, 0)},
		{Chunk: testChunk("a.go", 31, "second"), Embedding: unitVec(4, 1)},
		{Chunk: testChunk("b.go", 1, "third"), Embedding: unitVec(4, 2)},
	}
	if err := store.StoreChunks(chunks); err != nil {
		t.Fatalf("StoreChunks failed: %v", err)
	}

	if err := store.DeleteChunksByFile("a.go"); err != nil {
		t.Fatalf("DeleteChunksByFile failed: %v", err)
	}

	results, err := store.Search(ctx, &types.SearchRequest{QueryVec: unitVec(4, 0), Limit: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, r := range results {
		if r.Chunk.FilePath == "a.go" {
			t.Errorf("found chunk for deleted file: %s", r.Chunk.ID)
		}
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalChunks != 1 || stats.IndexedFiles != 1 {
		t.Errorf("expected 1 chunk in 1 file after delete, got %d/%d", stats.TotalChunks, stats.IndexedFiles)
	}
}

func TestFileCache(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetFileHash("a.go", "hash1", "cfg1"); err != nil {
		t.Fatalf("SetFileHash failed: %v", err)
	}

	hash, err := store.GetFileHash("a.go")
	if err != nil {
		t.Fatalf("GetFileHash failed: %v", err)
	}
	if hash != "hash1" {
		t.Errorf("expected hash1, got %s", hash)
	}

	// Missing entries return empty string, not an error.
	hash, err = store.GetFileHash("missing.go")
	if err != nil {
		t.Fatalf("GetFileHash for missing file failed: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %s", hash)
	}

	all, err := store.GetAllFileHashes()
	if err != nil {
		t.Fatalf("GetAllFileHashes failed: %v", err)
	}
	if len(all) != 1 || all["a.go"] != "hash1" {
		t.Errorf("unexpected cache contents: %v", all)
	}

	if err := store.DeleteFileCache("a.go"); err != nil {
		t.Fatalf("DeleteFileCache failed: %v", err)
	}
	all, _ = store.GetAllFileHashes()
	if len(all) != 0 {
		t.Errorf("expected empty cache, got %v", all)
	}
}

func TestReopenKeepsEmbeddings(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "vectors_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	first := New()
	if err := first.Init(tmpFile.Name()); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	if err := first.StoreChunks([]*types.ChunkWithEmbedding{
		{Chunk: testChunk("a.go", 1, "func Alpha() {}"), Embedding: unitVec(8, 0)},
	}); err != nil {
		t.Fatalf("StoreChunks failed: %v", err)
	}
	if err := first.SetMetadata(&types.IndexMetadata{
		SchemaVersion:       SchemaVersion,
		CreatedAt:           time.Now().UTC(),
		LastUpdated:         time.Now().UTC(),
		EmbeddingProvider:   "local",
		EmbeddingModel:      "hash-v1",
		EmbeddingDimensions: 8,
		ChunkLines:          30,
	}); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A new process writing more chunks must not mistake the existing
	// vector table for a dimension change and drop it.
	second := New()
	if err := second.Init(tmpFile.Name()); err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	t.Cleanup(func() { second.Close() })

	if err := second.StoreChunks([]*types.ChunkWithEmbedding{
		{Chunk: testChunk("b.go", 1, "func Beta() {}"), Embedding: unitVec(8, 1)},
	}); err != nil {
		t.Fatalf("StoreChunks after reopen failed: %v", err)
	}

	results, err := second.Search(context.Background(), &types.SearchRequest{
		QueryVec: unitVec(8, 0),
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	found := false
	for _, r := range results {
		if r.Chunk.FilePath == "a.go" {
			found = true
		}
	}
	if !found {
		t.Error("embeddings stored before the reopen are gone")
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	store := newTestStore(t)

	meta, err := store.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta != nil {
		t.Fatal("expected nil metadata on fresh store")
	}

	want := &types.IndexMetadata{
		SchemaVersion:       SchemaVersion,
		CreatedAt:           time.Now().UTC().Truncate(time.Second),
		LastUpdated:         time.Now().UTC().Truncate(time.Second),
		EmbeddingProvider:   "local",
		EmbeddingModel:      "hash-v1",
		EmbeddingDimensions: 384,
		ChunkLines:          30,
	}
	if err := store.SetMetadata(want); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	got, err := store.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if got == nil {
		t.Fatal("metadata not persisted")
	}
	if got.EmbeddingProvider != "local" || got.EmbeddingDimensions != 384 || got.ChunkLines != 30 {
		t.Errorf("metadata mismatch: %+v", got)
	}
}
