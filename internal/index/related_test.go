package index

import (
	"context"
	"errors"
	"testing"

	"github.com/knowledgetools/mcp-kb/pkg/types"
)

func TestRelatedFiles(t *testing.T) {
	requireGit(t)

	shared := "return session.ValidateSignature(token, publicKey)\n"
	dir := newTestProject(t, map[string]string{
		"auth/token.go":    "package auth\n\nfunc Check(token string) error {\n\t" + shared + "}\n",
		"auth/refresh.go":  "package auth\n\nfunc Refresh(token string) error {\n\t" + shared + "}\n",
		"docs/cooking.txt": "Preheat the oven to two hundred degrees and rest the dough overnight.\n",
	})
	idx := newTestIndexer(t, dir)

	if _, err := idx.IndexAll(context.Background(), false, nil); err != nil {
		t.Fatalf("IndexAll failed: %v", err)
	}

	related, err := idx.RelatedFiles(context.Background(), "auth/token.go", 5)
	if err != nil {
		t.Fatalf("RelatedFiles failed: %v", err)
	}
	if len(related) == 0 {
		t.Fatalf("Expected related files")
	}

	// The target itself never appears, and every candidate carries hits.
	for _, rf := range related {
		if rf.Path == "auth/token.go" {
			t.Errorf("Target file appeared in its own related list")
		}
		if rf.MatchingChunks == 0 {
			t.Errorf("Candidate without matching chunks: %+v", rf)
		}
	}

	// Scores are sorted descending.
	for i := 1; i < len(related); i++ {
		if related[i].Score > related[i-1].Score {
			t.Errorf("Related files not sorted by score: %v", related)
		}
	}
}

func TestRelatedFilesOutsideProject(t *testing.T) {
	requireGit(t)

	dir := newTestProject(t, map[string]string{
		"main.go": "package main\n\nfunc main() { println(\"hello there\") }\n",
	})
	idx := newTestIndexer(t, dir)
	if _, err := idx.IndexAll(context.Background(), false, nil); err != nil {
		t.Fatalf("IndexAll failed: %v", err)
	}

	if _, err := idx.RelatedFiles(context.Background(), "../etc/passwd", 5); err == nil {
		t.Errorf("Expected error for path outside the project")
	}
}

func TestRelatedFilesWithoutIndex(t *testing.T) {
	requireGit(t)

	dir := newTestProject(t, map[string]string{"x.go": "package x\n"})
	idx := newTestIndexer(t, dir)

	_, err := idx.RelatedFiles(context.Background(), "x.go", 5)
	if !errors.Is(err, types.ErrIndexNotFound) {
		t.Errorf("Expected ErrIndexNotFound, got %v", err)
	}
}

func TestRepresentativeLines(t *testing.T) {
	content := "package main\n" +
		"import \"fmt\"\n" +
		"// just a comment line here\n" +
		"\n" +
		"x := 1\n" +
		"result := computeExpensiveAggregate(input, options)\n"

	probes := representativeLines(content)
	if len(probes) != 1 {
		t.Fatalf("Expected 1 probe line, got %d: %v", len(probes), probes)
	}
	if probes[0] != "result := computeExpensiveAggregate(input, options)" {
		t.Errorf("Unexpected probe: %q", probes[0])
	}
}
