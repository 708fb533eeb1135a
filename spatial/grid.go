// Package spatial provides the voxel index used for neighbor queries
// and pairwise interaction sweeps.
package spatial

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Body is the grid's record of one agent: everything the force and
// crowding passes need without touching the owning world.
type Body struct {
	ID     uint64
	Slot   int // caller-assigned dense index; -1 when unused
	Pos    r2.Vec
	Radius float64
	Ghost  bool // read-only copy owned by a neighboring subdomain
}

// Neighbor holds a nearby body with precomputed query data.
// This avoids recomputing deltas and distances in callers.
type Neighbor struct {
	ID     uint64
	DX, DY float64 // delta from the query origin
	DistSq float64 // squared distance (avoid sqrt in hot path)
	Radius float64
	Ghost  bool
}

// Grid is a uniform voxel index over a bounded rectangle.
//
// Voxel keys are floor((p-origin)/voxel) per axis, computed identically
// on insert and lookup, so a body exactly on a voxel boundary belongs to
// exactly one voxel. The grid is rebuilt once per step after positions
// are finalized; Remove exists for explicit agent removal between steps.
type Grid struct {
	originX float64
	originY float64
	voxel   float64
	cols    int
	rows    int
	cells   [][]Body
	where   map[uint64]int // body ID -> flat cell index
	count   int
}

// NewGrid creates a grid covering a width x height rectangle anchored at
// (originX, originY). The voxel size must be at least the maximum
// interaction reach for ForEachPair to see every true neighbor pair.
func NewGrid(originX, originY, width, height, voxel float64) *Grid {
	cols := int(width/voxel) + 1
	rows := int(height/voxel) + 1

	cells := make([][]Body, cols*rows)
	for i := range cells {
		cells[i] = make([]Body, 0, 4)
	}

	return &Grid{
		originX: originX,
		originY: originY,
		voxel:   voxel,
		cols:    cols,
		rows:    rows,
		cells:   cells,
		where:   make(map[uint64]int),
	}
}

// Clear removes all bodies from the grid.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	clear(g.where)
	g.count = 0
}

// Insert adds a body to the voxel covering its position. Inserting an
// ID that is already present leaves the earlier record in place and
// makes Remove target the newer one; callers keep IDs unique.
func (g *Grid) Insert(b Body) {
	idx := g.cellIndex(b.Pos.X, b.Pos.Y)
	g.cells[idx] = append(g.cells[idx], b)
	g.where[b.ID] = idx
	g.count++
}

// Remove deletes the body with the given ID. It reports whether the
// body was present.
func (g *Grid) Remove(id uint64) bool {
	idx, ok := g.where[id]
	if !ok {
		return false
	}
	cell := g.cells[idx]
	for i := range cell {
		if cell[i].ID == id {
			cell[i] = cell[len(cell)-1]
			g.cells[idx] = cell[:len(cell)-1]
			delete(g.where, id)
			g.count--
			return true
		}
	}
	return false
}

// Len returns the number of bodies currently in the grid.
func (g *Grid) Len() int { return g.count }

// Cols returns the number of voxel columns.
func (g *Grid) Cols() int { return g.cols }

// Rows returns the number of voxel rows.
func (g *Grid) Rows() int { return g.rows }

// VoxelSize returns the voxel edge length.
func (g *Grid) VoxelSize() float64 { return g.voxel }

// NeighborsInto finds all bodies within radius of (x, y), excluding the
// given ID, and appends them to dst. Returns the updated slice; reuse
// dst across calls to avoid allocations. The radius test is inclusive.
func (g *Grid) NeighborsInto(dst []Neighbor, x, y, radius float64, exclude uint64) []Neighbor {
	cellRadius := int(radius/g.voxel) + 1

	centerCol := g.colOf(x)
	centerRow := g.rowOf(y)

	radiusSq := radius * radius

	for dr := -cellRadius; dr <= cellRadius; dr++ {
		row := centerRow + dr
		if row < 0 || row >= g.rows {
			continue
		}
		for dc := -cellRadius; dc <= cellRadius; dc++ {
			col := centerCol + dc
			if col < 0 || col >= g.cols {
				continue
			}

			for _, b := range g.cells[row*g.cols+col] {
				if b.ID == exclude {
					continue
				}
				dx := b.Pos.X - x
				dy := b.Pos.Y - y
				distSq := dx*dx + dy*dy
				if distSq <= radiusSq {
					dst = append(dst, Neighbor{
						ID:     b.ID,
						DX:     dx,
						DY:     dy,
						DistSq: distSq,
						Radius: b.Radius,
						Ghost:  b.Ghost,
					})
				}
			}
		}
	}

	return dst
}

// Neighbors returns all bodies within radius of (x, y), excluding the
// given ID. Prefer NeighborsInto in hot paths.
func (g *Grid) Neighbors(x, y, radius float64, exclude uint64) []Neighbor {
	return g.NeighborsInto(nil, x, y, radius, exclude)
}

// pairStencil lists the forward neighbor cells visited from each voxel:
// east, southwest, south, southeast. Together with in-cell pairs this
// yields every unordered pair of bodies in adjacent voxels exactly once.
var pairStencil = [4][2]int{{1, 0}, {-1, 1}, {0, 1}, {1, 1}}

// ForEachPair calls fn once for every unordered pair of bodies whose
// voxels are identical or adjacent. With voxels at least as large as
// the maximum interaction reach this covers every interacting pair;
// fn filters by actual distance. fn must not mutate the grid.
func (g *Grid) ForEachPair(fn func(a, b *Body)) {
	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			cell := g.cells[row*g.cols+col]
			if len(cell) == 0 {
				continue
			}

			for i := 0; i < len(cell); i++ {
				for j := i + 1; j < len(cell); j++ {
					fn(&cell[i], &cell[j])
				}
			}

			for _, d := range pairStencil {
				nc, nr := col+d[0], row+d[1]
				if nc < 0 || nc >= g.cols || nr >= g.rows {
					continue
				}
				other := g.cells[nr*g.cols+nc]
				for i := range cell {
					for j := range other {
						fn(&cell[i], &other[j])
					}
				}
			}
		}
	}
}

func (g *Grid) colOf(x float64) int {
	return int(math.Floor((x - g.originX) / g.voxel))
}

func (g *Grid) rowOf(y float64) int {
	return int(math.Floor((y - g.originY) / g.voxel))
}

// cellIndex returns the flat index for a position, clamped to the edge
// voxels so bodies nudged past the covered rectangle stay indexable.
func (g *Grid) cellIndex(x, y float64) int {
	col := g.colOf(x)
	row := g.rowOf(y)

	if col < 0 {
		col = 0
	} else if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= g.rows {
		row = g.rows - 1
	}

	return row*g.cols + col
}
