package sparseconv

import (
	"fmt"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
	"github.com/janelia-flyem/ogn/voxels"
)

// ExtractOctrees assembles one octree per batch element from the outputs of several
// levels.  values[i] holds the features indexed by sources[i]: either NumClasses
// class scores, reduced by argmax, or a single channel of class labels.  Cells
// classified as mixed are left out, since finer levels describe them.
func ExtractOctrees(values []*Features, sources []KeySource) ([]*octree.Octree[uint8], error) {
	if len(values) != len(sources) {
		return nil, fmt.Errorf("%d value buffers for %d key sources", len(values), len(sources))
	}
	if len(values) == 0 {
		return nil, nil
	}
	batch := values[0].Batch
	for i, v := range values {
		if err := v.check(); err != nil {
			return nil, err
		}
		if v.Batch != batch || sources[i].BatchSize() != batch {
			return nil, fmt.Errorf("level %d has batch %d with %d key sets, expected %d: %w", i, v.Batch, sources[i].BatchSize(), batch, ogn.ErrShapeMismatch)
		}
		if v.Channels != 1 && v.Channels != NumClasses {
			return nil, fmt.Errorf("level %d has %d channels, expected 1 or %d: %w", i, v.Channels, NumClasses, ogn.ErrShapeMismatch)
		}
		for n := 0; n < batch; n++ {
			if err := sources[i].Element(n).checkIndices(v.Pixels); err != nil {
				return nil, fmt.Errorf("level %d element %d: %w", i, n, err)
			}
		}
	}

	trees := make([]*octree.Octree[uint8], batch)
	for n := range trees {
		t := octree.New[uint8]()
		for i, v := range values {
			sources[i].Element(n).Keys.Range(func(key octree.Key, index int) bool {
				var value uint8
				if v.Channels == 1 {
					value = uint8(v.At(n, 0, index))
				} else {
					value = argmax(v, n, index)
				}
				if value != voxels.ClassMixed {
					t.Add(key, value)
				}
				return true
			})
		}
		trees[n] = t
	}
	return trees, nil
}

// WriteOctrees writes each octree to an .ot file named by prefix followed by a
// 4-digit sequence number starting at first.  It returns the next unused number.
func WriteOctrees(prefix string, first int, trees []*octree.Octree[uint8]) (int, error) {
	for _, t := range trees {
		fname := fmt.Sprintf("%s%04d.%s", prefix, first, voxels.OctreeExt)
		if err := octree.WriteFile(fname, t); err != nil {
			return first, err
		}
		ogn.Debugf("wrote %d cells to %s\n", t.Len(), fname)
		first++
	}
	return first, nil
}
