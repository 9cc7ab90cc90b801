package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/knowledgetools/mcp-kb/internal/kb"
)

func (s *Server) registerTypeTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("get_types",
		mcp.WithDescription("List registered item types (sessions and dailies are always available but never listed)"),
	), s.handleGetTypes)

	mcpServer.AddTool(mcp.NewTool("create_type",
		mcp.WithDescription("Register a custom item type"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Type name, lowercase with underscores")),
		mcp.WithString("base_type", mcp.Required(), mcp.Description("Base category: tasks or documents")),
		mcp.WithString("description", mcp.Description("Human description")),
	), s.handleCreateType)

	mcpServer.AddTool(mcp.NewTool("update_type",
		mcp.WithDescription("Update a custom type's description (names are immutable)"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Type name")),
		mcp.WithString("description", mcp.Required(), mcp.Description("New description")),
	), s.handleUpdateType)

	mcpServer.AddTool(mcp.NewTool("delete_type",
		mcp.WithDescription("Delete a custom type; fails while items of the type exist"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Type name")),
	), s.handleDeleteType)

	mcpServer.AddTool(mcp.NewTool("get_statuses",
		mcp.WithDescription("List the status vocabulary with closed classification"),
	), s.handleGetStatuses)
}

func (s *Server) handleGetTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs, err := s.repo.GetAllTypes()
	if err != nil {
		return toolError(err), nil
	}
	if defs == nil {
		defs = []kb.TypeDefinition{}
	}
	return jsonResult(map[string]any{"types": defs, "count": len(defs)}), nil
}

func (s *Server) handleCreateType(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	baseType := req.GetString("base_type", "")
	if name == "" || baseType == "" {
		return mcp.NewToolResultError("name and base_type are required"), nil
	}

	def, err := s.repo.CreateType(name, baseType, req.GetString("description", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(def), nil
}

func (s *Server) handleUpdateType(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	def, err := s.repo.UpdateType(name, req.GetString("description", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(def), nil
}

func (s *Server) handleDeleteType(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	if err := s.repo.DeleteType(name); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"deleted": name}), nil
}

func (s *Server) handleGetStatuses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	statuses, err := s.repo.GetStatuses()
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"statuses": statuses}), nil
}
