package index

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knowledgetools/mcp-kb/pkg/types"
)

const (
	// maxProbeLines caps how many representative lines are embedded per
	// related-files query.
	maxProbeLines = 40

	// probeHits is how many neighbors each probe line pulls in.
	probeHits = 10

	// minLineLength below which a line is too trivial to be a probe.
	minLineLength = 10
)

// RelatedFiles finds files semantically close to the given one:
// representative lines of the target are embedded, neighbors aggregated
// per file, and each candidate scored by max similarity weighted with the
// log of its hit count.
func (idx *Indexer) RelatedFiles(ctx context.Context, relPath string, limit int) ([]*types.RelatedFile, error) {
	meta, err := idx.store.GetMetadata()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, types.ErrIndexNotFound
	}

	cleaned, err := idx.insideProject(relPath)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(filepath.Join(idx.projectDir, cleaned))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cleaned, err)
	}

	probes := representativeLines(string(content))
	if len(probes) == 0 {
		return []*types.RelatedFile{}, nil
	}

	vecs, err := idx.embedding.Embed(ctx, probes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}

	type candidate struct {
		maxSim float32
		hits   int
	}
	candidates := make(map[string]*candidate)

	for _, vec := range vecs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results, err := idx.store.Search(ctx, &types.SearchRequest{QueryVec: vec, Limit: probeHits})
		if err != nil {
			return nil, err
		}

		for _, res := range results {
			if res.Chunk.FilePath == cleaned {
				continue
			}
			c, ok := candidates[res.Chunk.FilePath]
			if !ok {
				c = &candidate{}
				candidates[res.Chunk.FilePath] = c
			}
			c.hits++
			if res.Similarity > c.maxSim {
				c.maxSim = res.Similarity
			}
		}
	}

	related := make([]*types.RelatedFile, 0, len(candidates))
	for path, c := range candidates {
		related = append(related, &types.RelatedFile{
			Path:           path,
			Score:          float64(c.maxSim) * math.Log2(float64(1+c.hits)),
			MaxSimilarity:  c.maxSim,
			MatchingChunks: c.hits,
		})
	}

	sort.Slice(related, func(i, j int) bool {
		if related[i].Score != related[j].Score {
			return related[i].Score > related[j].Score
		}
		return related[i].Path < related[j].Path
	})

	if limit <= 0 {
		limit = 10
	}
	if len(related) > limit {
		related = related[:limit]
	}

	return related, nil
}

// insideProject normalizes a path and rejects escapes from the project.
func (idx *Indexer) insideProject(path string) (string, error) {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(idx.projectDir, path)
		if err != nil {
			return "", fmt.Errorf("file %s is not under the project", path)
		}
		path = rel
	}
	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("file %s is not under the project", path)
	}
	return cleaned, nil
}

// representativeLines picks the lines worth probing with: imports,
// comment-only lines, blanks, and near-empty lines carry no signal.
func representativeLines(content string) []string {
	var probes []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < minLineLength {
			continue
		}
		if isCommentLine(trimmed) || isImportLine(trimmed) {
			continue
		}
		probes = append(probes, trimmed)
		if len(probes) >= maxProbeLines {
			break
		}
	}
	return probes
}

func isCommentLine(line string) bool {
	for _, prefix := range []string{"//", "#", "*", "/*", "--", "<!--"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func isImportLine(line string) bool {
	for _, prefix := range []string{"import ", "import\t", "from ", "package ", "using ", "#include", "require("} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
