package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerNavigationTools() {
	// ── list_tenants ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_tenants",
		mcp.WithDescription("List all tenants (workspaces)"),
	), s.handleListTenants)

	// ── create_tenant ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_tenant",
		mcp.WithDescription("Create a new tenant"),
		mcp.WithString("name", mcp.Description("Tenant name"), mcp.Required()),
	), s.handleCreateTenant)

	// ── list_sections ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_sections",
		mcp.WithDescription("List the sections of a tenant"),
		mcp.WithString("tenantId", mcp.Description("ID of the tenant"), mcp.Required()),
	), s.handleListSections)

	// ── create_section ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_section",
		mcp.WithDescription("Create a new section in a tenant"),
		mcp.WithString("tenantId", mcp.Description("ID of the tenant"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Section name"), mcp.Required()),
	), s.handleCreateSection)

	// ── open_section ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("open_section",
		mcp.WithDescription("Load a section's page list. Closes the active page."),
		mcp.WithString("sectionId", mcp.Description("ID of the section"), mcp.Required()),
	), s.handleOpenSection)
}

func (s *Server) handleListTenants(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenants, err := s.app.ListTenants()
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return jsonResult(tenants)
}

func (s *Server) handleCreateTenant(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := requireString(req.GetArguments(), "name")
	if err != nil {
		return nil, err
	}
	t, err := s.app.CreateTenant(name)
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return jsonResult(t)
}

func (s *Server) handleListSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tenantID, err := requireString(req.GetArguments(), "tenantId")
	if err != nil {
		return nil, err
	}
	sections, err := s.app.ListSections(tenantID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return jsonResult(sections)
}

func (s *Server) handleCreateSection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	tenantID, _ := args["tenantId"].(string)
	name, _ := args["name"].(string)
	if tenantID == "" || name == "" {
		return nil, fmt.Errorf("tenantId and name are required")
	}

	sec, err := s.app.CreateSection(tenantID, name)
	if err != nil {
		return nil, fmt.Errorf("create section: %w", err)
	}
	return jsonResult(sec)
}

func (s *Server) handleOpenSection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sectionID, err := requireString(req.GetArguments(), "sectionId")
	if err != nil {
		return nil, err
	}
	if err := s.app.OpenSection(sectionID); err != nil {
		return nil, fmt.Errorf("open section: %w", err)
	}
	return jsonResult(s.app.PageList())
}
