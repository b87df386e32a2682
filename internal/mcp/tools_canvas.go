package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"

	"sketchbook/internal/canvas"
)

// Default sizes per shape kind, used when the agent gives none.
var defaultSizes = map[canvas.ShapeKind][2]float64{
	canvas.KindRect:    {200, 120},
	canvas.KindEllipse: {160, 160},
	canvas.KindText:    {240, 40},
}

func (s *Server) registerCanvasTools() {
	s.mcp.AddTool(mcp.NewTool("get_canvas",
		mcp.WithDescription("List the shapes on the active page in z-order, with the camera"),
	), s.handleGetCanvas)

	s.mcp.AddTool(mcp.NewTool("add_shape",
		mcp.WithDescription("Add a shape to the active page. Position is chosen automatically if omitted."),
		mcp.WithString("kind", mcp.Description("Shape kind: rect, ellipse, line, arrow, text, freehand"), mcp.Required()),
		mcp.WithNumber("x", mcp.Description("X position (optional, auto-layout if omitted)")),
		mcp.WithNumber("y", mcp.Description("Y position (optional, auto-layout if omitted)")),
		mcp.WithNumber("width", mcp.Description("Width (optional)")),
		mcp.WithNumber("height", mcp.Description("Height (optional)")),
		mcp.WithString("text", mcp.Description("Text content (optional)")),
		mcp.WithString("color", mcp.Description("Color hex (optional, e.g. #3b82f6)")),
		mcp.WithString("points", mcp.Description("JSON array of [x, y] pairs relative to the shape origin, for line, arrow and freehand")),
	), s.handleAddShape)

	s.mcp.AddTool(mcp.NewTool("update_shape",
		mcp.WithDescription("Update properties of a shape on the active page"),
		mcp.WithString("shapeId", mcp.Description("Shape ID"), mcp.Required()),
		mcp.WithString("patchJSON", mcp.Description("JSON object with properties to update (x, y, width, height, rotation, text, color, points)"), mcp.Required()),
	), s.handleUpdateShape)

	s.mcp.AddTool(mcp.NewTool("remove_shape",
		mcp.WithDescription("🛑 DESTRUCTIVE: Remove a shape from the active page"),
		mcp.WithString("shapeId", mcp.Description("Shape ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRemoveShape)

	s.mcp.AddTool(mcp.NewTool("set_camera",
		mcp.WithDescription("Move the viewport. The camera alone is never saved."),
		mcp.WithNumber("x", mcp.Description("Camera X"), mcp.Required()),
		mcp.WithNumber("y", mcp.Description("Camera Y"), mcp.Required()),
		mcp.WithNumber("zoom", mcp.Description("Zoom factor (default 1)")),
	), s.handleSetCamera)

	s.mcp.AddTool(mcp.NewTool("set_title",
		mcp.WithDescription("Edit the title of the active page from the editor header"),
		mcp.WithString("title", mcp.Description("New title"), mcp.Required()),
	), s.handleSetTitle)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report the editing session state and whether saves are in progress"),
	), s.handleSyncStatus)
}

func (s *Server) handleGetCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := s.requireActivePage()
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"pageId": pageID,
		"shapes": s.app.Canvas().Shapes(),
		"camera": s.app.Canvas().Camera(),
	})
}

func (s *Server) handleAddShape(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.requireActivePage(); err != nil {
		return nil, err
	}
	args := req.GetArguments()
	kind := canvas.ShapeKind(req.GetString("kind", ""))
	if kind == "" {
		return nil, fmt.Errorf("kind is required")
	}

	defaults := defaultSizes[kind]
	shape := canvas.Shape{
		Kind:   kind,
		Width:  getFloat(args, "width", defaults[0]),
		Height: getFloat(args, "height", defaults[1]),
		Text:   req.GetString("text", ""),
		Color:  req.GetString("color", ""),
	}
	if raw := req.GetString("points", ""); raw != "" {
		if err := parseJSON(raw, &shape.Points); err != nil {
			return nil, fmt.Errorf("parse points JSON: %w", err)
		}
	}

	// Auto-layout if position not provided
	x, hasX := args["x"].(float64)
	y, hasY := args["y"].(float64)
	if !hasX || !hasY {
		w, h := shape.Width, shape.Height
		if len(shape.Points) > 0 {
			b := bounds(shape)
			w, h = b.w, b.h
		}
		x, y = s.layout.NextPosition(s.app.Canvas().Shapes(), w, h)
	}
	shape.X, shape.Y = x, y

	added, err := s.app.Canvas().AddShape(shape)
	if err != nil {
		return nil, fmt.Errorf("add shape: %w", err)
	}
	s.emitCanvasChanged(ctx)
	return jsonResult(added)
}

func (s *Server) handleUpdateShape(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.requireActivePage(); err != nil {
		return nil, err
	}
	args := req.GetArguments()
	shapeID, _ := args["shapeId"].(string)
	patch, _ := args["patchJSON"].(string)
	if shapeID == "" || patch == "" {
		return nil, fmt.Errorf("shapeId and patchJSON are required")
	}

	cur, ok := lo.Find(s.app.Canvas().Shapes(), func(sh canvas.Shape) bool { return sh.ID == shapeID })
	if !ok {
		return nil, fmt.Errorf("update shape %s: %w", shapeID, canvas.ErrShapeNotFound)
	}
	// Fields missing from the patch keep their current value.
	if err := parseJSON(patch, &cur); err != nil {
		return nil, fmt.Errorf("parse patch JSON: %w", err)
	}
	cur.ID = shapeID
	if err := s.app.Canvas().UpdateShape(cur); err != nil {
		return nil, fmt.Errorf("update shape: %w", err)
	}
	s.emitCanvasChanged(ctx)
	return jsonResult(cur)
}

func (s *Server) handleRemoveShape(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.requireActivePage(); err != nil {
		return nil, err
	}
	shapeID, err := requireString(req.GetArguments(), "shapeId")
	if err != nil {
		return nil, err
	}
	if err := s.app.Canvas().RemoveShape(shapeID); err != nil {
		return nil, fmt.Errorf("remove shape: %w", err)
	}
	s.emitCanvasChanged(ctx)
	return textResult(fmt.Sprintf("Shape %s removed", shapeID)), nil
}

func (s *Server) handleSetCamera(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.requireActivePage(); err != nil {
		return nil, err
	}
	cam := canvas.Camera{
		X:    req.GetFloat("x", 0),
		Y:    req.GetFloat("y", 0),
		Zoom: req.GetFloat("zoom", 1),
	}
	if err := s.app.Canvas().SetCamera(cam); err != nil {
		return nil, fmt.Errorf("set camera: %w", err)
	}
	return jsonResult(cam)
}

func (s *Server) handleSetTitle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.requireActivePage(); err != nil {
		return nil, err
	}
	title, err := requireString(req.GetArguments(), "title")
	if err != nil {
		return nil, err
	}
	pageID, err := s.app.EditTitle(title)
	if err != nil {
		return nil, fmt.Errorf("set title: %w", err)
	}
	return textResult(fmt.Sprintf("Title of %s set to %q", pageID, title)), nil
}

func (s *Server) handleSyncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"status":  s.app.SyncStatus(),
		"timings": s.app.SyncTimings(),
	})
}
