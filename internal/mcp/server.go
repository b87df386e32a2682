package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"sketchbook/internal/canvas"
	"sketchbook/internal/domain"
	"sketchbook/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Editor is the application surface the tools drive. *app.App implements it.
type Editor interface {
	ListTenants() ([]domain.Tenant, error)
	CreateTenant(name string) (*domain.Tenant, error)
	ListSections(tenantID string) ([]domain.Section, error)
	CreateSection(tenantID, name string) (*domain.Section, error)

	OpenSection(sectionID string) error
	PageList() service.PageListState
	SelectPage(id string) error
	CreatePage() (*domain.Page, error)
	StartRename(id string) error
	SetEditingTitle(title string)
	CommitRename() error
	CancelRename()
	ReorderPage(draggedID, targetID string) error
	RequestDeletePage(id string) (*service.PendingDelete, error)
	CancelDeletePage()
	ConfirmDeletePage() error

	Canvas() *canvas.Document
	SyncStatus() service.SyncStatus
	SyncTimings() service.SyncTimings
	EditTitle(title string) (string, error)

	HasRevisions() bool
	ListRevisions(pageID string) ([]domain.Revision, error)
	RestoreRevision(revisionID string) (*domain.Revision, error)
}

// Server is the MCP server for sketchbook.
// It exposes tools, resources, and prompts so AI agents can browse pages
// and draw on the active page.
type Server struct {
	mcp     *server.MCPServer
	app     Editor
	emitter service.EventEmitter
	layout  *LayoutEngine
	logger  *slog.Logger
}

// Deps holds all dependencies passed from the App layer to the MCP server.
type Deps struct {
	App     Editor
	Emitter service.EventEmitter
	Logger  *slog.Logger
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		app:     deps.App,
		emitter: deps.Emitter,
		layout:  NewLayoutEngine(),
		logger:  logger.With("component", "mcp"),
	}

	s.mcp = server.NewMCPServer(
		"sketchbook-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerNavigationTools()
	s.registerPageTools()
	s.registerCanvasTools()
	if s.app.HasRevisions() {
		s.registerRevisionTools()
	}
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// emitCanvasChanged notifies listeners that an agent changed the active canvas.
func (s *Server) emitCanvasChanged(ctx context.Context) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(ctx, "mcp:canvas-changed", map[string]string{"pageId": s.app.SyncStatus().ActivePageID})
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// requireActivePage returns the id of the page open in the editing session.
// Canvas tools only ever operate on that page.
func (s *Server) requireActivePage() (string, error) {
	st := s.app.SyncStatus()
	if st.State != service.StateActive || st.ActivePageID == "" {
		return "", fmt.Errorf("no active page (use select_page first)")
	}
	return st.ActivePageID, nil
}

// awaitActive waits until the session has finished settling the page it
// just loaded, so edits made right after select_page are captured.
func (s *Server) awaitActive(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*s.app.SyncTimings().SettleDelay+time.Second)
	defer cancel()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := s.app.SyncStatus()
		switch {
		case st.State == service.StateActive:
			return nil
		case st.State == service.StateIdle:
			return fmt.Errorf("page closed while loading")
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for page to settle: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
