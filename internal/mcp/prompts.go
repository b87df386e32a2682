package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("system_diagram",
		mcp.WithPromptDescription("Sketch a system architecture diagram on a new page"),
		mcp.WithArgument("systemName",
			mcp.ArgumentDescription("Name of the system to diagram"),
			mcp.RequiredArgument(),
		),
	), s.handleSystemDiagramPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("tidy_section",
		mcp.WithPromptDescription("Review the open section and give its pages clear titles and a sensible order"),
	), s.handleTidySectionPrompt)
}

func (s *Server) handleSystemDiagramPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	systemName := req.Params.Arguments["systemName"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Create a system diagram for: %s", systemName),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Create a system architecture diagram for "%s". Follow these steps:

1. Use create_page with the title "%s architecture", then select_page to open it
2. Identify the main components of the system
3. Use add_shape with kind "rect" for each component, with descriptive text
4. Use add_shape with kind "arrow" and points to connect related components
5. Check the result with get_canvas and adjust positions with update_shape

Use consistent colors: #3b82f6 for primary components, #10b981 for databases, #f59e0b for external services.
Edits are saved automatically; sync_status shows when saving is done.`, systemName, systemName),
				},
			},
		},
	}, nil
}

func (s *Server) handleTidySectionPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Tidy the open section",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: `Tidy the pages of the open section. Follow these steps:

1. Use list_pages to see the pages in their current order
2. Open pages titled "Untitled" with select_page and read them with get_canvas
3. Give each of them a short descriptive title with rename_page
4. Use reorder_page to group related pages together

Do not delete pages unless asked to.`,
				},
			},
		},
	}, nil
}
