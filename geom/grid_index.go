package geom

import "math"

// GridIndex buckets integer ids by the uniform grid cell containing their
// point. Search may return ids whose point lies just outside the query
// rectangle, so callers re-check exact distances.
type GridIndex struct {
	cellSize float64
	grid     map[[2]int][]int
}

// NewGridIndex creates an index with square cells of the given size.
func NewGridIndex(cellSize float64) *GridIndex {
	if cellSize <= 0 {
		cellSize = 128
	}
	return &GridIndex{
		cellSize: cellSize,
		grid:     make(map[[2]int][]int),
	}
}

// CellSize returns the configured cell edge length.
func (g *GridIndex) CellSize() float64 {
	return g.cellSize
}

func (g *GridIndex) cell(p Point) [2]int {
	return [2]int{
		int(math.Floor(p.X / g.cellSize)),
		int(math.Floor(p.Y / g.cellSize)),
	}
}

// Insert stores id in the cell containing p.
func (g *GridIndex) Insert(p Point, id int) {
	c := g.cell(p)
	g.grid[c] = append(g.grid[c], id)
}

// Search returns the ids of every cell overlapping r.
func (g *GridIndex) Search(r Rectangle) []int {
	lo := g.cell(r.Start())
	hi := g.cell(r.End())
	var ids []int
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			ids = append(ids, g.grid[[2]int{i, j}]...)
		}
	}
	return ids
}

// Len returns the number of stored ids.
func (g *GridIndex) Len() int {
	n := 0
	for _, ids := range g.grid {
		n += len(ids)
	}
	return n
}
