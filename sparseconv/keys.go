package sparseconv

import (
	"fmt"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
)

// Propagation flags stored per key.
const (
	PropFalse = 0
	PropTrue  = 1
)

// NumClasses is the number of signal classes predicted per cell: empty, filled and mixed.
const NumClasses = 3

// ElementKeys holds the cells of one batch element: Keys maps each key to its pixel
// index and Prop maps each key to a propagation flag.
type ElementKeys struct {
	Keys *octree.Octree[int]
	Prop *octree.Octree[int]
}

// NewElementKeys returns an empty key set.
func NewElementKeys() ElementKeys {
	return ElementKeys{Keys: octree.New[int](), Prop: octree.New[int]()}
}

// Add records a key with its pixel index and propagation flag.
func (e ElementKeys) Add(key octree.Key, index, prop int) {
	e.Keys.Add(key, index)
	e.Prop.Add(key, prop)
}

// Len returns the number of cells.
func (e ElementKeys) Len() int {
	return e.Keys.Len()
}

// Index returns the pixel index of a key.
func (e ElementKeys) Index(key octree.Key) (int, bool) {
	return e.Keys.Get(key)
}

// Propagated returns true if the key is flagged for propagation.
func (e ElementKeys) Propagated(key octree.Key) bool {
	prop, found := e.Prop.Get(key)
	return found && prop == PropTrue
}

// checkIndices returns an error unless every pixel index is in [0, pixels).
func (e ElementKeys) checkIndices(pixels int) error {
	var err error
	e.Keys.Range(func(key octree.Key, index int) bool {
		if index < 0 || index >= pixels {
			err = fmt.Errorf("%s has pixel index %d outside %d pixels: %w", key, index, pixels, ogn.ErrShapeMismatch)
			return false
		}
		return true
	})
	return err
}

// KeySource supplies the key set of each batch element.
type KeySource interface {
	BatchSize() int
	Element(n int) ElementKeys
}

// LayerKeys is a KeySource backed by a slice.
type LayerKeys []ElementKeys

func (lk LayerKeys) BatchSize() int {
	return len(lk)
}

func (lk LayerKeys) Element(n int) ElementKeys {
	return lk[n]
}

// ExpandChildren returns the key set one level finer: each key k is replaced by its
// 8 children (k<<3)|i, child i getting pixel index 8*index(k)+i and k's
// propagation flag.
func ExpandChildren(parent ElementKeys) (ElementKeys, error) {
	children := ElementKeys{
		Keys: octree.NewWithCapacity[int](8 * parent.Len()),
		Prop: octree.NewWithCapacity[int](8 * parent.Len()),
	}
	var err error
	parent.Keys.Range(func(key octree.Key, index int) bool {
		if key.Level() >= octree.MaxLevel {
			err = fmt.Errorf("can't expand %s beyond level %d", key, octree.MaxLevel)
			return false
		}
		prop, _ := parent.Prop.Get(key)
		for i := 0; i < 8; i++ {
			children.Add(key.Child(i), 8*index+i, prop)
		}
		return true
	})
	if err != nil {
		return ElementKeys{}, err
	}
	return children, nil
}

// GenerateKeys returns a dense key set for each of batch elements covering an
// xs x ys x zs box at level ceil(log2(max(xs, ys, zs))).  Cell (x, y, z) gets pixel
// index x*ys*zs + y*zs + z and every cell is flagged for propagation.
func GenerateKeys(batch, xs, ys, zs int) (LayerKeys, error) {
	if batch < 0 || xs <= 0 || ys <= 0 || zs <= 0 {
		return nil, fmt.Errorf("can't generate keys for %d elements of %d x %d x %d", batch, xs, ys, zs)
	}
	level := ogn.CeilLog2(xs)
	for _, dim := range []int{ys, zs} {
		if l := ogn.CeilLog2(dim); l > level {
			level = l
		}
	}
	if level > octree.MaxLevel {
		return nil, fmt.Errorf("box %d x %d x %d needs level %d, beyond max level %d", xs, ys, zs, level, octree.MaxLevel)
	}
	keys := make(LayerKeys, batch)
	for n := range keys {
		e := ElementKeys{
			Keys: octree.NewWithCapacity[int](xs * ys * zs),
			Prop: octree.NewWithCapacity[int](xs * ys * zs),
		}
		for x := 0; x < xs; x++ {
			for y := 0; y < ys; y++ {
				for z := 0; z < zs; z++ {
					e.Add(octree.EncodeKey(x, y, z, level), x*ys*zs+y*zs+z, PropTrue)
				}
			}
		}
		keys[n] = e
	}
	return keys, nil
}
