package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	pagesURI  = "sketchbook://pages"
	canvasURI = "sketchbook://canvas"
)

func (s *Server) registerResources() {
	// ── sketchbook://pages ─────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		pagesURI,
		"Pages of the Open Section",
		mcp.WithMIMEType("application/json"),
	), s.handlePagesResource)

	// ── sketchbook://canvas ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		canvasURI,
		"Active Page Snapshot",
		mcp.WithMIMEType("application/json"),
	), s.handleCanvasResource)
}

func (s *Server) handlePagesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	type pageSummary struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	st := s.app.PageList()
	summaries := make([]pageSummary, len(st.Pages))
	for i, p := range st.Pages {
		summaries[i] = pageSummary{ID: p.ID, Title: p.Title}
	}

	data, _ := json.MarshalIndent(map[string]any{
		"sectionId":  st.SectionID,
		"selectedId": st.SelectedID,
		"pages":      summaries,
	}, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      pagesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleCanvasResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if _, err := s.requireActivePage(); err != nil {
		return nil, err
	}
	snap, err := s.app.Canvas().Serialize()
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      canvasURI,
			MIMEType: "application/json",
			Text:     string(snap),
		},
	}, nil
}
