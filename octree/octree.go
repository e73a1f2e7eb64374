/*
	Package octree implements a sparse octree stored as a hash map from Morton-coded
	spatial keys to a payload, along with the codecs used to persist it.

	Cells are recorded at the coarsest level at which they are known to be homogeneous,
	so an ancestor key present in the map stands for every finer cell nested under it.
	The map does not itself prevent an ancestor and a descendant from both being present;
	builders such as voxels.FromGrid are responsible for that.
*/
package octree

import "sort"

// Octree maps spatial keys to values of type V.
type Octree[V any] struct {
	cells    map[Key]V
	maxLevel int
}

// New returns an empty octree.
func New[V any]() *Octree[V] {
	return &Octree[V]{cells: make(map[Key]V), maxLevel: -1}
}

// NewWithCapacity returns an empty octree sized for n cells.
func NewWithCapacity[V any](n int) *Octree[V] {
	return &Octree[V]{cells: make(map[Key]V, n), maxLevel: -1}
}

// Add inserts or overwrites the value for a key.
func (t *Octree[V]) Add(key Key, value V) {
	t.cells[key] = value
	if l := key.Level(); l > t.maxLevel {
		t.maxLevel = l
	}
}

// Delete removes a key if present.
func (t *Octree[V]) Delete(key Key) {
	delete(t.cells, key)
}

// Get returns the value stored at exactly this key.
func (t *Octree[V]) Get(key Key) (V, bool) {
	v, found := t.cells[key]
	return v, found
}

// Has returns true if the exact key is present.
func (t *Octree[V]) Has(key Key) bool {
	_, found := t.cells[key]
	return found
}

// Lookup returns the value for a key.  If the key is absent and useAncestors is
// true, successively coarser ancestors are tried until one is found or the root
// has been checked.  The returned bool distinguishes an absent cell from a cell
// holding the zero value.
func (t *Octree[V]) Lookup(key Key, useAncestors bool) (V, bool) {
	if v, found := t.cells[key]; found || !useAncestors {
		return v, found
	}
	inner := key
	for level := key.Level(); level > 0; level-- {
		inner >>= 3
		if v, found := t.cells[inner]; found {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// Len returns the number of cells.
func (t *Octree[V]) Len() int {
	return len(t.cells)
}

// MaxLevel returns the finest level of the octree: either the level set through
// SetMaxLevel or the finest level of any key added, or -1 if unknown.
func (t *Octree[V]) MaxLevel() int {
	return t.maxLevel
}

// SetMaxLevel records the finest level, e.g., the level of the voxel grid an octree
// was compacted from.
func (t *Octree[V]) SetMaxLevel(level int) {
	t.maxLevel = level
}

// Range calls f for each cell until f returns false.  The order is unspecified.
func (t *Octree[V]) Range(f func(Key, V) bool) {
	for k, v := range t.cells {
		if !f(k, v) {
			return
		}
	}
}

// Keys returns all keys in ascending order.
func (t *Octree[V]) Keys() []Key {
	keys := make([]Key, 0, len(t.cells))
	for k := range t.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Equal returns true if both octrees hold the same key set with equal values.
func Equal[V comparable](a, b *Octree[V]) bool {
	if a.Len() != b.Len() {
		return false
	}
	for k, v := range a.cells {
		w, found := b.cells[k]
		if !found || w != v {
			return false
		}
	}
	return true
}

// NeighborKeys returns the size³ keys in the cube centered on key, at the key's
// level.  See AppendNeighborKeys.
func (t *Octree[V]) NeighborKeys(key Key, size int) []Key {
	return t.AppendNeighborKeys(nil, key, size)
}

// AppendNeighborKeys appends the size³ neighbor keys of key to dst and returns the
// extended slice.  Offsets run over [-size/2, size/2] along each axis, with the
// lower bound raised by one for even sizes, and are emitted with x outermost and
// z innermost.  Offsets outside the volume at that level, or whose key is not
// present in the octree, yield InvalidKey.
func (t *Octree[V]) AppendNeighborKeys(dst []Key, key Key, size int) []Key {
	if size <= 0 {
		return dst
	}
	c := key.Coord()
	res := Resolution(c.Level)

	minOff := -size / 2
	maxOff := size / 2
	if size%2 == 0 {
		minOff++
	}
	for i := minOff; i <= maxOff; i++ {
		x := c.X + i
		for j := minOff; j <= maxOff; j++ {
			y := c.Y + j
			for k := minOff; k <= maxOff; k++ {
				z := c.Z + k
				if x < 0 || x >= res || y < 0 || y >= res || z < 0 || z >= res {
					dst = append(dst, InvalidKey)
					continue
				}
				nb := EncodeKey(x, y, z, c.Level)
				if _, found := t.cells[nb]; found {
					dst = append(dst, nb)
				} else {
					dst = append(dst, InvalidKey)
				}
			}
		}
	}
	return dst
}
