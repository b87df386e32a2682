package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPageTools() {
	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List the pages of the open section in display order, with the selected page and any pending rename or delete"),
	), s.handleListPages)

	s.mcp.AddTool(mcp.NewTool("create_page",
		mcp.WithDescription("Append a new page to the open section. The page is not opened."),
		mcp.WithString("title", mcp.Description("Title (optional, defaults to Untitled)")),
	), s.handleCreatePage)

	s.mcp.AddTool(mcp.NewTool("select_page",
		mcp.WithDescription("Open a page in the editing session. Returns once its canvas is loaded."),
		mcp.WithString("pageId", mcp.Description("ID of the page to open"), mcp.Required()),
	), s.handleSelectPage)

	s.mcp.AddTool(mcp.NewTool("rename_page",
		mcp.WithDescription("Rename a page. Empty or unchanged titles are ignored."),
		mcp.WithString("pageId", mcp.Description("ID of the page"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title"), mcp.Required()),
	), s.handleRenamePage)

	s.mcp.AddTool(mcp.NewTool("reorder_page",
		mcp.WithDescription("Move a page to the position currently held by another page"),
		mcp.WithString("pageId", mcp.Description("ID of the page to move"), mcp.Required()),
		mcp.WithString("targetId", mcp.Description("ID of the page whose position it takes"), mcp.Required()),
	), s.handleReorderPage)

	s.mcp.AddTool(mcp.NewTool("request_delete_page",
		mcp.WithDescription("Ask to delete a page. Nothing is deleted until confirm_delete_page is called."),
		mcp.WithString("pageId", mcp.Description("ID of the page to delete"), mcp.Required()),
	), s.handleRequestDeletePage)

	s.mcp.AddTool(mcp.NewTool("confirm_delete_page",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete the page awaiting confirmation"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleConfirmDeletePage)

	s.mcp.AddTool(mcp.NewTool("cancel_delete_page",
		mcp.WithDescription("Dismiss the pending page delete"),
	), s.handleCancelDeletePage)
}

func (s *Server) handleListPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.app.PageList())
}

// handleCreatePage creates the page and completes the inline rename it
// starts in, as if the title had been typed into the list.
func (s *Server) handleCreatePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.app.CreatePage(); err != nil {
		return nil, err
	}
	if title := req.GetString("title", ""); title != "" {
		s.app.SetEditingTitle(title)
		if err := s.app.CommitRename(); err != nil {
			return nil, fmt.Errorf("title new page: %w", err)
		}
	} else {
		s.app.CancelRename()
	}
	return jsonResult(s.app.PageList())
}

func (s *Server) handleSelectPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := requireString(req.GetArguments(), "pageId")
	if err != nil {
		return nil, err
	}
	if err := s.app.SelectPage(pageID); err != nil {
		return nil, fmt.Errorf("select page: %w", err)
	}
	if err := s.awaitActive(ctx); err != nil {
		return nil, err
	}
	return jsonResult(s.app.SyncStatus())
}

func (s *Server) handleRenamePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	pageID, _ := args["pageId"].(string)
	title, _ := args["title"].(string)
	if pageID == "" {
		return nil, fmt.Errorf("pageId is required")
	}
	if err := s.app.StartRename(pageID); err != nil {
		return nil, fmt.Errorf("rename page: %w", err)
	}
	s.app.SetEditingTitle(title)
	if err := s.app.CommitRename(); err != nil {
		return nil, fmt.Errorf("rename page: %w", err)
	}
	return jsonResult(s.app.PageList())
}

func (s *Server) handleReorderPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	pageID, _ := args["pageId"].(string)
	targetID, _ := args["targetId"].(string)
	if pageID == "" || targetID == "" {
		return nil, fmt.Errorf("pageId and targetId are required")
	}
	if err := s.app.ReorderPage(pageID, targetID); err != nil {
		return nil, fmt.Errorf("reorder page: %w", err)
	}
	return jsonResult(s.app.PageList())
}

func (s *Server) handleRequestDeletePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := requireString(req.GetArguments(), "pageId")
	if err != nil {
		return nil, err
	}
	pd, err := s.app.RequestDeletePage(pageID)
	if err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Delete %q? Call confirm_delete_page to proceed or cancel_delete_page to keep it.", pd.Title)), nil
}

func (s *Server) handleConfirmDeletePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.app.ConfirmDeletePage(); err != nil {
		return nil, fmt.Errorf("delete page: %w", err)
	}
	return jsonResult(s.app.PageList())
}

func (s *Server) handleCancelDeletePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.app.CancelDeletePage()
	return textResult("Delete cancelled"), nil
}
