package voxels

import (
	"errors"
	"fmt"
)

// Classes of cell values used for occupancy grids and octrees.
const (
	ClassEmpty  uint8 = 0
	ClassFilled uint8 = 1
	ClassMixed  uint8 = 2
	ClassIgnore uint8 = 3
)

var (
	// ErrNotCubic is returned when a grid is not a cube with a power-of-two side.
	ErrNotCubic = errors.New("grid is not a cube with power-of-two side")

	// ErrEmptyUnion is returned by IoU when neither grid has an occupied cell.
	ErrEmptyUnion = errors.New("union of grids is empty")
)

// Grid is a dense volume of byte values.
type Grid struct {
	Depth, Height, Width int
	Data                 []uint8
}

// NewGrid returns a zeroed grid.
func NewGrid(depth, height, width int) *Grid {
	return &Grid{
		Depth:  depth,
		Height: height,
		Width:  width,
		Data:   make([]uint8, depth*height*width),
	}
}

// NewCubicGrid returns a zeroed grid with equal sides.
func NewCubicGrid(side int) *Grid {
	return NewGrid(side, side, side)
}

func (g *Grid) String() string {
	return fmt.Sprintf("%d x %d x %d grid", g.Depth, g.Height, g.Width)
}

// Size returns the number of cells.
func (g *Grid) Size() int {
	return g.Depth * g.Height * g.Width
}

func (g *Grid) index(i, j, k int) int {
	return i*g.Width*g.Height + j*g.Height + k
}

// At returns the value at (i, j, k).
func (g *Grid) At(i, j, k int) uint8 {
	return g.Data[g.index(i, j, k)]
}

// Set stores a value at (i, j, k).
func (g *Grid) Set(i, j, k int, v uint8) {
	g.Data[g.index(i, j, k)] = v
}

// SameShape returns true if both grids have identical dimensions.
func (g *Grid) SameShape(other *Grid) bool {
	return g.Depth == other.Depth && g.Height == other.Height && g.Width == other.Width
}

// Occupied returns the number of nonzero cells.
func (g *Grid) Occupied() int {
	var n int
	for _, v := range g.Data {
		if v != 0 {
			n++
		}
	}
	return n
}
