package window

import (
	"fmt"
	"strings"
	"testing"

	"github.com/knowledgetools/mcp-kb/pkg/types"
)

func makeFile(lines int) *types.SourceFile {
	var b strings.Builder
	for i := 1; i <= lines; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return &types.SourceFile{
		Path:     "pkg/example/example.go",
		Content:  []byte(b.String()),
		Language: "go",
	}
}

func TestChunkWindows(t *testing.T) {
	c := New(Config{Lines: 30})

	chunks, err := c.Chunk(makeFile(75))
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks for 75 lines, got %d", len(chunks))
	}

	wantRanges := [][2]int{{1, 30}, {31, 60}, {61, 75}}
	for i, ch := range chunks {
		if ch.StartLine != wantRanges[i][0] || ch.EndLine != wantRanges[i][1] {
			t.Errorf("chunk %d: got lines %d-%d, want %d-%d",
				i, ch.StartLine, ch.EndLine, wantRanges[i][0], wantRanges[i][1])
		}
		if ch.FilePath != "pkg/example/example.go" {
			t.Errorf("chunk %d: unexpected file path %q", i, ch.FilePath)
		}
		if ch.ID == "" || ch.Hash == "" {
			t.Errorf("chunk %d: missing ID or hash", i)
		}
	}

	// Content of the first chunk covers exactly the first 30 lines.
	if !strings.HasPrefix(chunks[0].Content, "line 1\n") || !strings.HasSuffix(chunks[0].Content, "line 30") {
		t.Errorf("first chunk content boundaries wrong: %q", chunks[0].Content)
	}
}

func TestChunkShortFile(t *testing.T) {
	c := New(Config{})

	chunks, err := c.Chunk(makeFile(5))
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].StartLine != 1 || chunks[0].EndLine != 5 {
		t.Errorf("got lines %d-%d, want 1-5", chunks[0].StartLine, chunks[0].EndLine)
	}
}

func TestChunkEmptyFile(t *testing.T) {
	c := New(Config{})

	chunks, err := c.Chunk(&types.SourceFile{Path: "empty.go", Content: []byte("   \n\n")})
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for blank file, got %d", len(chunks))
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"script.py", "python"},
		{"app.tsx", "tsx"},
		{"Dockerfile", "dockerfile"},
		{"notes.md", "markdown"},
		{"unknown.xyz", "text"},
	}

	for _, tt := range tests {
		if got := DetectLanguage(tt.path); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
