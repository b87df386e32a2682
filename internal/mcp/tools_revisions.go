package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerRevisionTools() {
	s.mcp.AddTool(mcp.NewTool("list_revisions",
		mcp.WithDescription("List saved revisions of a page, newest first"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to the active page)")),
	), s.handleListRevisions)

	s.mcp.AddTool(mcp.NewTool("restore_revision",
		mcp.WithDescription("🛑 DESTRUCTIVE: Replace a page's content with a saved revision"),
		mcp.WithString("revisionId", mcp.Description("Revision ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRestoreRevision)
}

func (s *Server) handleListRevisions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID := req.GetString("pageId", "")
	if pageID == "" {
		active, err := s.requireActivePage()
		if err != nil {
			return nil, fmt.Errorf("no pageId provided and %w", err)
		}
		pageID = active
	}
	revs, err := s.app.ListRevisions(pageID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	return jsonResult(revs)
}

func (s *Server) handleRestoreRevision(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	revID, err := requireString(req.GetArguments(), "revisionId")
	if err != nil {
		return nil, err
	}
	rev, err := s.app.RestoreRevision(revID)
	if err != nil {
		return nil, fmt.Errorf("restore revision: %w", err)
	}
	if s.app.SyncStatus().ActivePageID == rev.PageID {
		s.emitCanvasChanged(ctx)
	}
	return textResult(fmt.Sprintf("Page %s restored to revision %s", rev.PageID, rev.ID)), nil
}
