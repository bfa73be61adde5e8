// Package celllist implements the periodic cell-list index used to find the
// discs that may overlap a point.
//
// The index never arbitrates overlap and never owns discs. It records disc
// IDs in the cell that contains each disc center, so Remove must be called
// before the disc position changes.
package celllist

import (
	"fmt"
	"math"

	"hardspheres/internal/disc"
	"hardspheres/internal/geom"
)

// cellCapacity bounds the occupancy of one cell. With a cell diagonal of at
// most two radii only two discs touching at opposite corners can share it.
const cellCapacity = 2

// Index is the neighbour lookup used by the configuration space.
type Index interface {
	Insert(d disc.Disc)
	Remove(d disc.Disc)
	// Neighbours appends to dst every indexed disc that may lie within two
	// radii of p and returns the extended slice.
	Neighbours(p geom.Point, dst []disc.ID) []disc.ID
	Len() int
}

type cell struct {
	ids [cellCapacity]disc.ID
	n   uint8
}

// Table is a flat 3D grid of fixed-capacity cells. It is not safe for
// concurrent use.
type Table struct {
	extents geom.Extents
	counts  [geom.Dimensions]int
	scale   [geom.Dimensions]float64
	reach   [geom.Dimensions]int
	full    [geom.Dimensions]bool
	cells   []cell
	size    int

	axis [geom.Dimensions][]int
}

func New(extents geom.Extents) *Table {
	maxWidth := 2 * disc.Radius / math.Sqrt(geom.Dimensions)

	t := &Table{extents: extents}
	total := 1
	for i := 0; i < geom.Dimensions; i++ {
		count := int(math.Ceil(extents[i] / maxWidth))
		if count < 1 {
			count = 1
		}
		t.counts[i] = count
		t.scale[i] = extents[i] / float64(count)
		t.reach[i] = int(math.Ceil(2 * disc.Radius / t.scale[i]))
		t.full[i] = 2*t.reach[i]+1 >= count
		if t.full[i] {
			t.axis[i] = make([]int, 0, count)
		} else {
			t.axis[i] = make([]int, 0, 2*t.reach[i]+1)
		}
		total *= count
	}
	t.cells = make([]cell, total)
	return t
}

func (t *Table) CellCounts() [geom.Dimensions]int { return t.counts }

func (t *Table) CellScale() [geom.Dimensions]float64 { return t.scale }

// Reach is the half-width of the scanned block in cells per axis. An axis
// whose block would wrap onto itself is scanned once in full instead.
func (t *Table) Reach() [geom.Dimensions]int { return t.reach }

func (t *Table) Len() int { return t.size }

func (t *Table) cellCoord(p geom.Point, axis int) int {
	c := int(math.Floor(p[axis] / t.scale[axis]))
	if c < 0 {
		return 0
	}
	if c >= t.counts[axis] {
		return t.counts[axis] - 1
	}
	return c
}

func (t *Table) flat(i, j, k int) int {
	return (i*t.counts[1]+j)*t.counts[2] + k
}

func (t *Table) cellOf(p geom.Point) *cell {
	return &t.cells[t.flat(t.cellCoord(p, 0), t.cellCoord(p, 1), t.cellCoord(p, 2))]
}

// Insert records d in the cell containing its center. A full cell or a
// repeated insert is a contract violation and panics.
func (t *Table) Insert(d disc.Disc) {
	c := t.cellOf(d.Center)
	for i := uint8(0); i < c.n; i++ {
		if c.ids[i] == d.ID {
			panic(fmt.Sprintf("celllist: disc %d already indexed", d.ID))
		}
	}
	if int(c.n) == cellCapacity {
		panic(fmt.Sprintf("celllist: cell for disc %d at %v is full", d.ID, d.Center))
	}
	c.ids[c.n] = d.ID
	c.n++
	t.size++
}

// Remove clears d from the cell containing its current center. Removing a
// disc that is not there panics.
func (t *Table) Remove(d disc.Disc) {
	c := t.cellOf(d.Center)
	for i := uint8(0); i < c.n; i++ {
		if c.ids[i] != d.ID {
			continue
		}
		c.n--
		c.ids[i] = c.ids[c.n]
		t.size--
		return
	}
	panic(fmt.Sprintf("celllist: disc %d not indexed at %v", d.ID, d.Center))
}

func (t *Table) axisCells(axis, center int) []int {
	cells := t.axis[axis][:0]
	count := t.counts[axis]
	if t.full[axis] {
		for c := 0; c < count; c++ {
			cells = append(cells, c)
		}
	} else {
		for off := -t.reach[axis]; off <= t.reach[axis]; off++ {
			cells = append(cells, ((center+off)%count+count)%count)
		}
	}
	t.axis[axis] = cells
	return cells
}

func (t *Table) Neighbours(p geom.Point, dst []disc.ID) []disc.ID {
	xs := t.axisCells(0, t.cellCoord(p, 0))
	ys := t.axisCells(1, t.cellCoord(p, 1))
	zs := t.axisCells(2, t.cellCoord(p, 2))
	for _, i := range xs {
		for _, j := range ys {
			for _, k := range zs {
				c := &t.cells[t.flat(i, j, k)]
				dst = append(dst, c.ids[:c.n]...)
			}
		}
	}
	return dst
}
