package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/knowledgetools/mcp-kb/internal/kb"
)

func (s *Server) registerTagTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("get_tags",
		mcp.WithDescription("List all registered tags with usage counts"),
	), s.handleGetTags)

	mcpServer.AddTool(mcp.NewTool("create_tag",
		mcp.WithDescription("Register a tag ahead of use"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Tag name")),
	), s.handleCreateTag)

	mcpServer.AddTool(mcp.NewTool("delete_tag",
		mcp.WithDescription("Delete a tag, removing it from every item"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Tag name")),
	), s.handleDeleteTag)

	mcpServer.AddTool(mcp.NewTool("search_tags",
		mcp.WithDescription("Find tags by case-insensitive substring"),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Substring to match")),
	), s.handleSearchTags)
}

func (s *Server) handleGetTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.repo.GetTags()
	if err != nil {
		return toolError(err), nil
	}
	if tags == nil {
		tags = []kb.Tag{}
	}
	return jsonResult(map[string]any{"tags": tags, "count": len(tags)}), nil
}

func (s *Server) handleCreateTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	tag, err := s.repo.CreateTag(name)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(tag), nil
}

func (s *Server) handleDeleteTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	if err := s.repo.DeleteTag(name); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"deleted": name}), nil
}

func (s *Server) handleSearchTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern := req.GetString("pattern", "")
	if pattern == "" {
		return mcp.NewToolResultError("pattern is required"), nil
	}

	tags, err := s.repo.SearchTags(pattern)
	if err != nil {
		return toolError(err), nil
	}
	if tags == nil {
		tags = []kb.Tag{}
	}
	return jsonResult(map[string]any{"tags": tags, "count": len(tags)}), nil
}
