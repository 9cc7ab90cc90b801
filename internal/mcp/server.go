// Package mcp implements the MCP server for the knowledge base and the
// code index.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/knowledgetools/mcp-kb/internal/config"
	"github.com/knowledgetools/mcp-kb/internal/index"
	"github.com/knowledgetools/mcp-kb/internal/kb"
	"github.com/knowledgetools/mcp-kb/pkg/types"
)

// Server implements the MCP server.
type Server struct {
	mcpServer  *server.MCPServer
	projectDir string
	cfg        *config.Config
	repo       *kb.Repository
	indexer    *index.Indexer
}

// Config contains server configuration.
type Config struct {
	ProjectDir string
	Config     *config.Config
	Repository *kb.Repository
	Indexer    *index.Indexer
}

// New creates a new MCP server and registers all tools.
func New(cfg Config) (*Server, error) {
	s := &Server{
		projectDir: cfg.ProjectDir,
		cfg:        cfg.Config,
		repo:       cfg.Repository,
		indexer:    cfg.Indexer,
	}

	mcpServer := server.NewMCPServer(
		"mcp-kb",
		"0.1.0",
		server.WithLogging(),
	)

	s.registerItemTools(mcpServer)
	s.registerTagTools(mcpServer)
	s.registerTypeTools(mcpServer)
	s.registerStateTools(mcpServer)
	s.registerCodeTools(mcpServer)

	s.mcpServer = mcpServer
	return s, nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close releases the repository and the indexer chain.
func (s *Server) Close() error {
	var firstErr error
	if s.indexer != nil {
		if err := s.indexer.Close(); err != nil {
			firstErr = err
		}
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// jsonResult marshals a payload as an indented-JSON text result.
func jsonResult(payload any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// toolError maps a domain error to a tool error result, keeping the
// not-found / validation / internal distinction visible in the message.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case kb.IsNotFound(err):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	case kb.IsValidation(err):
		return mcp.NewToolResultError(fmt.Sprintf("invalid request: %v", err))
	case errors.Is(err, types.ErrIndexNotFound):
		return mcp.NewToolResultError("no code index exists yet, run index_codebase first")
	case errors.Is(err, types.ErrNotGitRepo):
		return mcp.NewToolResultError(fmt.Sprintf("not a git repository: %v", err))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("internal error: %v", err))
	}
}

// formatBytes renders a byte count human-readably.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
