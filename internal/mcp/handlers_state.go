package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/knowledgetools/mcp-kb/internal/kb"
)

func (s *Server) registerStateTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("get_current_state",
		mcp.WithDescription("Get the working-state document shared between sessions"),
	), s.handleGetCurrentState)

	mcpServer.AddTool(mcp.NewTool("update_current_state",
		mcp.WithDescription("Overwrite the working-state document"),
		mcp.WithString("content", mcp.Required(), mcp.Description("New state content")),
		mcp.WithArray("related", mcp.Description("Related item references")),
		mcp.WithArray("tags", mcp.Description("Tags, auto-registered")),
		mcp.WithString("updated_by", mcp.Description("Identifier of the updating session")),
	), s.handleUpdateCurrentState)
}

func (s *Server) handleGetCurrentState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.repo.GetCurrentState()
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(state), nil
}

func (s *Server) handleUpdateCurrentState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, ok := req.GetArguments()["content"]; !ok {
		return mcp.NewToolResultError("content is required"), nil
	}

	state, err := s.repo.UpdateCurrentState(&kb.UpdateStateRequest{
		Content:   req.GetString("content", ""),
		Related:   req.GetStringSlice("related", nil),
		Tags:      req.GetStringSlice("tags", nil),
		UpdatedBy: req.GetString("updated_by", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(state), nil
}
