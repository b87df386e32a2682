package mcpserver

import (
	"math"

	"sketchbook/internal/canvas"
)

const (
	GridSize = 20.0
	Padding  = 40.0 // 2 grid cells between shapes
	MaxRowW  = 1600.0
)

// LayoutEngine places agent-created shapes so they don't overlap the
// shapes already on the page.
type LayoutEngine struct {
	gridSize float64
	padding  float64
	maxRowW  float64
}

func NewLayoutEngine() *LayoutEngine {
	return &LayoutEngine{
		gridSize: GridSize,
		padding:  Padding,
		maxRowW:  MaxRowW,
	}
}

// snap rounds v to the nearest grid point.
func (le *LayoutEngine) snap(v float64) float64 {
	return math.Round(v/le.gridSize) * le.gridSize
}

// rect is a simple axis-aligned bounding box.
type rect struct {
	x, y, w, h float64
}

func (a rect) intersects(b rect) bool {
	return a.x < b.x+b.w && a.x+a.w > b.x &&
		a.y < b.y+b.h && a.y+a.h > b.y
}

// bounds returns the box a shape covers. Point-based shapes are measured
// from their points, which are relative to the shape origin.
func bounds(s canvas.Shape) rect {
	if len(s.Points) == 0 {
		return rect{s.X, s.Y, s.Width, s.Height}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range s.Points {
		minX, maxX = math.Min(minX, p[0]), math.Max(maxX, p[0])
		minY, maxY = math.Min(minY, p[1]), math.Max(maxY, p[1])
	}
	return rect{s.X + minX, s.Y + minY, maxX - minX, maxY - minY}
}

// NextPosition finds the next non-overlapping grid position for a shape
// of size (newW, newH) given the existing shapes on the page.
func (le *LayoutEngine) NextPosition(existing []canvas.Shape, newW, newH float64) (float64, float64) {
	if len(existing) == 0 {
		return 0, 0
	}

	occupied := make([]rect, len(existing))
	for i, s := range existing {
		b := bounds(s)
		occupied[i] = rect{
			x: b.x - le.padding,
			y: b.y - le.padding,
			w: b.w + le.padding*2,
			h: b.h + le.padding*2,
		}
	}

	// Scan rows top-to-bottom, columns left-to-right
	candidate := rect{w: newW, h: newH}
	bottom := le.bottom(occupied)
	for y := 0.0; y <= bottom; y += le.gridSize {
		for x := 0.0; x+newW <= le.maxRowW; x += le.gridSize {
			candidate.x, candidate.y = x, y
			free := true
			for _, occ := range occupied {
				if candidate.intersects(occ) {
					free = false
					break
				}
			}
			if free {
				return candidate.x, candidate.y
			}
		}
	}

	// Fallback: place below all existing shapes
	return 0, le.snap(bottom)
}

func (le *LayoutEngine) bottom(occupied []rect) float64 {
	maxY := 0.0
	for _, r := range occupied {
		maxY = math.Max(maxY, r.y+r.h)
	}
	return le.snap(maxY) + le.gridSize
}
