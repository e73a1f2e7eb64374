package voxels

import (
	"fmt"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
)

// FromGrid compacts a cubic grid with power-of-two side into an octree.  Leaf cells
// start at level log2(side).  Moving up one level at a time, any 8 siblings that
// are all still present with the same value are replaced by their parent; cells
// that could not merge stay at their level.  No cell is merged above minLevel.
func FromGrid(g *Grid, minLevel int) (*octree.Octree[uint8], error) {
	if g.Depth != g.Height || g.Depth != g.Width {
		return nil, fmt.Errorf("can't compact %s: %w", g, ErrNotCubic)
	}
	maxLevel, ok := ogn.Log2(g.Depth)
	if !ok {
		return nil, fmt.Errorf("can't compact %s: %w", g, ErrNotCubic)
	}
	if maxLevel > octree.MaxLevel {
		return nil, fmt.Errorf("grid side %d exceeds octree resolution %d", g.Depth, octree.Resolution(octree.MaxLevel))
	}
	if minLevel < 0 {
		minLevel = 0
	}
	if minLevel > maxLevel {
		minLevel = maxLevel
	}

	side := g.Depth
	frontier := make(map[octree.Key]uint8, g.Size())
	for i := 0; i < side; i++ {
		for j := 0; j < side; j++ {
			for k := 0; k < side; k++ {
				frontier[octree.EncodeKey(i, j, k, maxLevel)] = g.At(i, j, k)
			}
		}
	}

	t := octree.New[uint8]()
	for level := maxLevel; level > minLevel; level-- {
		next := make(map[octree.Key]uint8, len(frontier)/8)
		visited := make(map[octree.Key]struct{}, len(frontier)/8)
		for key := range frontier {
			parent := key.Parent()
			if _, done := visited[parent]; done {
				continue
			}
			visited[parent] = struct{}{}

			value, merge := siblingValue(frontier, parent)
			if merge {
				next[parent] = value
				continue
			}
			for c := 0; c < 8; c++ {
				child := parent.Child(c)
				if v, found := frontier[child]; found {
					t.Add(child, v)
				}
			}
		}
		frontier = next
	}
	for key, v := range frontier {
		t.Add(key, v)
	}
	t.SetMaxLevel(maxLevel)
	return t, nil
}

// siblingValue returns the common value of the 8 children of parent if all of
// them are in the frontier and agree.
func siblingValue(frontier map[octree.Key]uint8, parent octree.Key) (uint8, bool) {
	first, found := frontier[parent.Child(0)]
	if !found {
		return 0, false
	}
	for c := 1; c < 8; c++ {
		v, found := frontier[parent.Child(c)]
		if !found || v != first {
			return 0, false
		}
	}
	return first, true
}

// ToGrid expands an octree into a cubic grid with side 2^L, where L is the octree's
// max level or the finest level of any of its keys, whichever is larger.  Each cell
// fills the cube it covers at level L.  The grid is zero-initialized and cells with
// value 0 are not written.
func ToGrid(t *octree.Octree[uint8]) *Grid {
	level := t.MaxLevel()
	t.Range(func(key octree.Key, _ uint8) bool {
		if l := key.Level(); l > level {
			level = l
		}
		return true
	})
	if level < 0 {
		level = 0
	}
	g := NewCubicGrid(octree.Resolution(level))
	t.Range(func(key octree.Key, v uint8) bool {
		if v == 0 {
			return true
		}
		c := key.Coord()
		shift := uint(level - c.Level)
		n := 1 << shift
		x0, y0, z0 := c.X<<shift, c.Y<<shift, c.Z<<shift
		for i := x0; i < x0+n; i++ {
			for j := y0; j < y0+n; j++ {
				base := g.index(i, j, z0)
				for k := 0; k < n; k++ {
					g.Data[base+k] = v
				}
			}
		}
		return true
	})
	return g
}
