package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/knowledgetools/mcp-kb/internal/kb"
)

func (s *Server) registerItemTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("get_items",
		mcp.WithDescription("List items of one type, most recent first. Closed-status items are excluded by default for task types"),
		mcp.WithString("type", mcp.Required(), mcp.Description("Item type (issues, plans, docs, knowledge, sessions, dailies, or a custom type)")),
		mcp.WithBoolean("includeClosedStatuses", mcp.Description("Include items whose status is closed")),
		mcp.WithArray("statuses", mcp.Description("Status IDs or names to narrow the listing")),
		mcp.WithString("start_date", mcp.Description("Earliest date, YYYY-MM-DD")),
		mcp.WithString("end_date", mcp.Description("Latest date, YYYY-MM-DD")),
		mcp.WithNumber("limit", mcp.Description("Maximum items to return, most recent kept")),
	), s.handleGetItems)

	mcpServer.AddTool(mcp.NewTool("get_item_detail",
		mcp.WithDescription("Get one item with full content"),
		mcp.WithString("type", mcp.Required(), mcp.Description("Item type")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item ID")),
	), s.handleGetItemDetail)

	mcpServer.AddTool(mcp.NewTool("create_item",
		mcp.WithDescription("Create a new item. The ID is allocated automatically"),
		mcp.WithString("type", mcp.Required(), mcp.Description("Item type")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Item title")),
		mcp.WithString("description", mcp.Description("Short description")),
		mcp.WithString("content", mcp.Description("Markdown content (required for document types)")),
		mcp.WithString("priority", mcp.Description("Priority: high, medium, low (task types only)")),
		mcp.WithString("status", mcp.Description("Status name (task types only, default Open)")),
		mcp.WithArray("tags", mcp.Description("Tag names, auto-registered")),
		mcp.WithArray("related", mcp.Description("Related item references like 'issues-1'")),
		mcp.WithString("start_date", mcp.Description("Start date, YYYY-MM-DD (task types only)")),
		mcp.WithString("end_date", mcp.Description("End date, YYYY-MM-DD (task types only)")),
	), s.handleCreateItem)

	mcpServer.AddTool(mcp.NewTool("update_item",
		mcp.WithDescription("Update fields of an item. Omitted fields stay unchanged; an empty array clears the field"),
		mcp.WithString("type", mcp.Required(), mcp.Description("Item type")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("content", mcp.Description("New content")),
		mcp.WithString("priority", mcp.Description("New priority")),
		mcp.WithString("status", mcp.Description("New status name")),
		mcp.WithArray("tags", mcp.Description("New tag list (empty array clears)")),
		mcp.WithArray("related", mcp.Description("New related list (empty array clears)")),
		mcp.WithString("start_date", mcp.Description("New start date")),
		mcp.WithString("end_date", mcp.Description("New end date")),
	), s.handleUpdateItem)

	mcpServer.AddTool(mcp.NewTool("delete_item",
		mcp.WithDescription("Delete an item and all its index entries"),
		mcp.WithString("type", mcp.Required(), mcp.Description("Item type")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item ID")),
	), s.handleDeleteItem)

	mcpServer.AddTool(mcp.NewTool("change_item_type",
		mcp.WithDescription("Move an item to another type of the same base category, rewriting references to it"),
		mcp.WithString("from_type", mcp.Required(), mcp.Description("Current type")),
		mcp.WithString("from_id", mcp.Required(), mcp.Description("Current ID")),
		mcp.WithString("to_type", mcp.Required(), mcp.Description("Target type")),
	), s.handleChangeItemType)

	mcpServer.AddTool(mcp.NewTool("search_items_by_tag",
		mcp.WithDescription("Find items carrying an exact tag"),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag name")),
		mcp.WithArray("types", mcp.Description("Restrict to these item types")),
	), s.handleSearchItemsByTag)

	mcpServer.AddTool(mcp.NewTool("search_items",
		mcp.WithDescription("Full-text search over item titles, descriptions, and content"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithArray("types", mcp.Description("Restrict to these item types")),
	), s.handleSearchItems)
}

func (s *Server) handleGetItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemType := req.GetString("type", "")
	if itemType == "" {
		return mcp.NewToolResultError("type is required"), nil
	}

	opts := kb.ListItemsOptions{
		Type:          itemType,
		IncludeClosed: req.GetBool("includeClosedStatuses", false),
		StartDate:     req.GetString("start_date", ""),
		EndDate:       req.GetString("end_date", ""),
		Limit:         req.GetInt("limit", 0),
	}

	if raw, ok := req.GetArguments()["statuses"]; ok {
		ids, names, err := toStatusFilters(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid statuses: %v", err)), nil
		}
		opts.StatusIDs = ids
		opts.StatusNames = names
	}

	items, err := s.repo.GetItems(opts)
	if err != nil {
		return toolError(err), nil
	}
	if items == nil {
		items = []*kb.Item{}
	}

	return jsonResult(map[string]any{"items": items, "count": len(items)}), nil
}

func (s *Server) handleGetItemDetail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemType := req.GetString("type", "")
	id := req.GetString("id", "")
	if itemType == "" || id == "" {
		return mcp.NewToolResultError("type and id are required"), nil
	}

	item, err := s.repo.GetItem(itemType, id)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(item), nil
}

func (s *Server) handleCreateItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	createReq := &kb.CreateItemRequest{
		Type:        req.GetString("type", ""),
		Title:       req.GetString("title", ""),
		Description: req.GetString("description", ""),
		Content:     req.GetString("content", ""),
		Priority:    req.GetString("priority", ""),
		Status:      req.GetString("status", ""),
		Tags:        req.GetStringSlice("tags", nil),
		Related:     req.GetStringSlice("related", nil),
		StartDate:   req.GetString("start_date", ""),
		EndDate:     req.GetString("end_date", ""),
	}
	if createReq.Type == "" {
		return mcp.NewToolResultError("type is required"), nil
	}
	if createReq.Title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}

	item, err := s.repo.CreateItem(createReq)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(item), nil
}

func (s *Server) handleUpdateItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemType := req.GetString("type", "")
	id := req.GetString("id", "")
	if itemType == "" || id == "" {
		return mcp.NewToolResultError("type and id are required"), nil
	}

	// The raw argument map distinguishes "omitted" from "present but
	// empty", which the patch semantics depend on.
	args := req.GetArguments()
	updateReq := &kb.UpdateItemRequest{Type: itemType, ID: id}

	for key, dst := range map[string]**string{
		"title":       &updateReq.Title,
		"description": &updateReq.Description,
		"content":     &updateReq.Content,
		"priority":    &updateReq.Priority,
		"status":      &updateReq.Status,
		"start_date":  &updateReq.StartDate,
		"end_date":    &updateReq.EndDate,
	} {
		if raw, ok := args[key]; ok {
			str, ok := raw.(string)
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("%s must be a string", key)), nil
			}
			*dst = &str
		}
	}

	if raw, ok := args["tags"]; ok {
		list, err := toStringSlice(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid tags: %v", err)), nil
		}
		updateReq.Tags = list
	}
	if raw, ok := args["related"]; ok {
		list, err := toStringSlice(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid related: %v", err)), nil
		}
		updateReq.Related = list
	}

	item, err := s.repo.UpdateItem(updateReq)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(item), nil
}

func (s *Server) handleDeleteItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemType := req.GetString("type", "")
	id := req.GetString("id", "")
	if itemType == "" || id == "" {
		return mcp.NewToolResultError("type and id are required"), nil
	}

	if err := s.repo.DeleteItem(itemType, id); err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]any{"deleted": kb.FormatRef(itemType, id)}), nil
}

func (s *Server) handleChangeItemType(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fromType := req.GetString("from_type", "")
	fromID := req.GetString("from_id", "")
	toType := req.GetString("to_type", "")
	if fromType == "" || fromID == "" || toType == "" {
		return mcp.NewToolResultError("from_type, from_id, and to_type are required"), nil
	}

	item, rewritten, err := s.repo.ChangeItemType(fromType, fromID, toType)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]any{
		"item":                item,
		"rewritten_referrers": rewritten,
	}), nil
}

func (s *Server) handleSearchItemsByTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := req.GetString("tag", "")
	if tag == "" {
		return mcp.NewToolResultError("tag is required"), nil
	}

	items, err := s.repo.SearchItemsByTag(tag, req.GetStringSlice("types", nil)...)
	if err != nil {
		return toolError(err), nil
	}
	if items == nil {
		items = []*kb.Item{}
	}

	return jsonResult(map[string]any{"items": items, "count": len(items)}), nil
}

func (s *Server) handleSearchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	items, err := s.repo.SearchItems(query, req.GetStringSlice("types", nil)...)
	if err != nil {
		return toolError(err), nil
	}
	if items == nil {
		items = []*kb.Item{}
	}

	return jsonResult(map[string]any{"items": items, "count": len(items)}), nil
}

// toStringSlice coerces a decoded JSON array into []string. A non-nil
// empty slice is returned for an empty array.
func toStringSlice(raw any) ([]string, error) {
	list, ok := raw.([]any)
	if !ok {
		if typed, ok := raw.([]string); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("expected an array")
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string elements")
		}
		out = append(out, s)
	}
	return out, nil
}

// toStatusFilters splits a decoded JSON array into status ids (numeric
// elements) and status names (string elements).
func toStatusFilters(raw any) ([]int, []string, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("expected an array")
	}
	var ids []int
	var names []string
	for _, v := range list {
		switch n := v.(type) {
		case float64:
			ids = append(ids, int(n))
		case int:
			ids = append(ids, n)
		case string:
			names = append(names, n)
		default:
			return nil, nil, fmt.Errorf("expected numeric or string elements")
		}
	}
	return ids, names, nil
}
