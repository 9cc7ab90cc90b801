package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/knowledgetools/mcp-kb/pkg/types"
)

func (s *Server) registerCodeTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("index_codebase",
		mcp.WithDescription("Index the project's git-tracked files for semantic code search"),
		mcp.WithBoolean("force", mcp.Description("Reindex every file, ignoring the change cache")),
	), s.handleIndexCodebase)

	mcpServer.AddTool(mcp.NewTool("search_code",
		mcp.WithDescription("Search indexed code by semantic similarity"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language or code query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
		mcp.WithArray("file_types", mcp.Description("File extension filter, e.g. ['.go', '.ts']")),
	), s.handleSearchCode)

	mcpServer.AddTool(mcp.NewTool("get_related_files",
		mcp.WithDescription("Find files semantically related to a given file"),
		mcp.WithString("file", mcp.Required(), mcp.Description("File path relative to the project root")),
		mcp.WithNumber("limit", mcp.Description("Maximum files to return (default 10)")),
	), s.handleGetRelatedFiles)

	mcpServer.AddTool(mcp.NewTool("get_index_status",
		mcp.WithDescription("Get code index statistics and metadata"),
	), s.handleGetIndexStatus)
}

func (s *Server) handleIndexCodebase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	force := req.GetBool("force", false)
	slog.Info("starting indexing", "force", force)

	report, err := s.indexer.IndexAll(ctx, force, func(p types.IndexProgress) {
		slog.Debug("progress", "file", p.CurrentFile, "processed", p.ProcessedFiles, "total", p.TotalFiles)
	})
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]any{
		"files_scanned": report.FilesScanned,
		"files_indexed": report.FilesIndexed,
		"files_skipped": report.FilesSkipped,
		"files_removed": report.FilesRemoved,
		"total_chunks":  report.TotalChunks,
		"duration":      report.Duration.String(),
	}), nil
}

func (s *Server) handleSearchCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	results, err := s.indexer.Search(ctx, query,
		req.GetInt("limit", 10),
		req.GetStringSlice("file_types", nil),
	)
	if err != nil {
		return toolError(err), nil
	}

	formatted := make([]map[string]any, 0, len(results))
	for _, r := range results {
		formatted = append(formatted, map[string]any{
			"file":       r.Chunk.FilePath,
			"start_line": r.Chunk.StartLine,
			"end_line":   r.Chunk.EndLine,
			"language":   r.Chunk.Language,
			"similarity": r.Similarity,
			"content":    r.Chunk.Content,
		})
	}

	return jsonResult(map[string]any{"results": formatted, "count": len(formatted)}), nil
}

func (s *Server) handleGetRelatedFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file := req.GetString("file", "")
	if file == "" {
		return mcp.NewToolResultError("file is required"), nil
	}

	related, err := s.indexer.RelatedFiles(ctx, file, req.GetInt("limit", 10))
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]any{"related": related, "count": len(related)}), nil
}

func (s *Server) handleGetIndexStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.indexer.Stats()
	if err != nil {
		return toolError(err), nil
	}
	meta, err := s.indexer.Metadata()
	if err != nil {
		return toolError(err), nil
	}

	result := map[string]any{
		"indexed": meta != nil,
		"files":   stats.IndexedFiles,
		"chunks":  stats.TotalChunks,
		"db_size": formatBytes(stats.DBSizeBytes),
	}
	if meta != nil {
		result["last_updated"] = meta.LastUpdated
		result["embedding_provider"] = meta.EmbeddingProvider
		result["embedding_model"] = meta.EmbeddingModel
		result["embedding_dimensions"] = meta.EmbeddingDimensions
		result["chunk_lines"] = meta.ChunkLines
	}

	return jsonResult(result), nil
}
