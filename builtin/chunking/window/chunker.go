// Package window implements a fixed-size line-window chunking strategy.
// Every file is split into consecutive windows of N lines; the final
// window may be shorter.
package window

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knowledgetools/mcp-kb/pkg/provider"
	"github.com/knowledgetools/mcp-kb/pkg/types"
)

// DefaultLines is the default window size in lines.
const DefaultLines = 30

// Config contains configuration for window chunking.
type Config struct {
	Lines int // Lines per window
}

// Chunker implements the fixed-size line-window chunking strategy.
type Chunker struct {
	config Config
}

// New creates a new window chunker.
func New(cfg Config) *Chunker {
	if cfg.Lines <= 0 {
		cfg.Lines = DefaultLines
	}
	return &Chunker{config: cfg}
}

// Name returns the strategy name.
func (c *Chunker) Name() string {
	return "window"
}

// Lines returns the configured window size.
func (c *Chunker) Lines() int {
	return c.config.Lines
}

// Chunk splits a file into consecutive windows of the configured line count.
func (c *Chunker) Chunk(file *types.SourceFile) ([]*types.Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	lines := strings.Split(content, "\n")
	// A trailing newline produces one empty pseudo-line at the end.
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var chunks []*types.Chunk
	for start := 0; start < len(lines); start += c.config.Lines {
		end := start + c.config.Lines
		if end > len(lines) {
			end = len(lines)
		}

		chunkContent := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(chunkContent) == "" {
			continue
		}

		hash := sha256.Sum256([]byte(chunkContent))
		chunks = append(chunks, &types.Chunk{
			ID:        fmt.Sprintf("%s:%d:%s", file.Path, start+1, hex.EncodeToString(hash[:4])),
			FilePath:  file.Path,
			Language:  file.Language,
			Content:   chunkContent,
			StartLine: start + 1,
			EndLine:   end,
			Hash:      hex.EncodeToString(hash[:]),
		})
	}

	return chunks, nil
}

// Close releases resources.
func (c *Chunker) Close() error {
	return nil
}

// DetectLanguage detects language from file extension.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.ToLower(filepath.Base(path))

	if base == "dockerfile" {
		return "dockerfile"
	}

	switch ext {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".jsx":
		return "jsx"
	case ".tsx":
		return "tsx"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".c":
		return "c"
	case ".cpp", ".cc", ".cxx":
		return "cpp"
	case ".h", ".hpp":
		return "h"
	case ".rb":
		return "ruby"
	case ".php":
		return "php"
	case ".swift":
		return "swift"
	case ".kt", ".kts":
		return "kotlin"
	case ".scala", ".sc":
		return "scala"
	case ".cs":
		return "csharp"
	case ".lua":
		return "lua"
	case ".sql":
		return "sql"
	case ".dart":
		return "dart"
	case ".ex", ".exs":
		return "elixir"
	case ".ml", ".mli":
		return "ocaml"
	case ".html", ".htm", ".xhtml":
		return "html"
	case ".css":
		return "css"
	case ".svelte":
		return "svelte"
	case ".md", ".markdown":
		return "markdown"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".proto":
		return "proto"
	case ".sh", ".bash":
		return "bash"
	case ".ps1", ".psm1", ".psd1":
		return "powershell"
	case ".tf", ".hcl":
		return "hcl"
	case ".hs":
		return "haskell"
	case ".erl":
		return "erlang"
	case ".pl", ".pm":
		return "perl"
	case ".jl":
		return "julia"
	default:
		return "text"
	}
}

// Ensure Chunker implements ChunkingStrategy interface
var _ provider.ChunkingStrategy = (*Chunker)(nil)
