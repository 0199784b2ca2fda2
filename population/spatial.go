package population

import (
	"math"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/canopy/plot"
)

type gridEntry struct {
	e    ecs.Entity
	x, y float64
}

// SpatialGrid provides cell-based neighbor lookups on the torus.
type SpatialGrid struct {
	cellW, cellH float64
	cols, rows   int
	plot         *plot.Plot
	cells        [][]gridEntry // flat grid of entity lists
}

// NewSpatialGrid creates a grid covering the plot. Cells tile the plot exactly, so their
// size is cellSize rounded down to divide each side evenly.
func NewSpatialGrid(p *plot.Plot, cellSize float64) *SpatialGrid {
	if cellSize <= 0 {
		cellSize = 8
	}
	cols := max(1, int(math.Ceil(p.LenX/cellSize)))
	rows := max(1, int(math.Ceil(p.LenY/cellSize)))

	cells := make([][]gridEntry, cols*rows)
	for i := range cells {
		cells[i] = make([]gridEntry, 0, 8) // a few stems per cell at typical densities
	}

	return &SpatialGrid{
		cellW: p.LenX / float64(cols),
		cellH: p.LenY / float64(rows),
		cols:  cols,
		rows:  rows,
		plot:  p,
		cells: cells,
	}
}

// Clear removes all entities from the grid.
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds an entity to the grid at the given position.
func (g *SpatialGrid) Insert(e ecs.Entity, x, y float64) {
	col, row := g.cellOf(x, y)
	idx := row*g.cols + col
	g.cells[idx] = append(g.cells[idx], gridEntry{e: e, x: x, y: y})
}

// visit calls fn for every entity within radius of (x, y), with its torus offset and
// distance. Each cell is visited at most once even when the radius spans the plot.
func (g *SpatialGrid) visit(x, y, radius float64, fn func(e ecs.Entity, dx, dy, dist float64)) {
	colSpan := int(radius/g.cellW) + 1
	rowSpan := int(radius/g.cellH) + 1
	centerCol, centerRow := g.cellOf(x, y)

	colFrom, colTo := centerCol-colSpan, centerCol+colSpan
	if colTo-colFrom+1 >= g.cols {
		colFrom, colTo = 0, g.cols-1
	}
	rowFrom, rowTo := centerRow-rowSpan, centerRow+rowSpan
	if rowTo-rowFrom+1 >= g.rows {
		rowFrom, rowTo = 0, g.rows-1
	}

	radiusSq := radius * radius
	for c := colFrom; c <= colTo; c++ {
		for r := rowFrom; r <= rowTo; r++ {
			// spans may run past the plot edge; fold back onto the torus
			col := (c%g.cols + g.cols) % g.cols
			row := (r%g.rows + g.rows) % g.rows

			for _, entry := range g.cells[row*g.cols+col] {
				dx, dy := g.plot.Delta(x, y, entry.x, entry.y)
				distSq := dx*dx + dy*dy
				if distSq <= radiusSq {
					fn(entry.e, dx, dy, math.Sqrt(distSq))
				}
			}
		}
	}
}

// cellOf returns the cell holding a plot position.
func (g *SpatialGrid) cellOf(x, y float64) (int, int) {
	col := int(g.plot.WrapX(x) / g.cellW)
	row := int(g.plot.WrapY(y) / g.cellH)

	// WrapX can return exactly LenX through rounding
	if col >= g.cols {
		col = g.cols - 1
	}
	if row >= g.rows {
		row = g.rows - 1
	}
	return col, row
}
