package sparseconv

import (
	"fmt"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
	"github.com/janelia-flyem/ogn/voxels"
)

// PrepareLoss returns [batch, 1, pixels] classification targets for the cells of
// pr.  Cells flagged PropTrue get the ground truth value of the same key in gt,
// or of its closest ancestor when useAncestors is set, and ClassMixed when gt
// has no such cell.  All other pixels, padding included, get ClassIgnore.
// gtValues is [batch, 1, gt pixels].
func PrepareLoss(gt KeySource, gtValues *Features, pr KeySource, pixels int, useAncestors bool) (*Features, error) {
	if err := gtValues.check(); err != nil {
		return nil, err
	}
	batch := pr.BatchSize()
	if gt.BatchSize() != batch || gtValues.Batch != batch {
		return nil, fmt.Errorf("batch sizes differ: prediction %d, ground truth keys %d, values %d: %w",
			batch, gt.BatchSize(), gtValues.Batch, ogn.ErrShapeMismatch)
	}
	if gtValues.Channels != 1 {
		return nil, fmt.Errorf("ground truth values need 1 channel, got %d: %w", gtValues.Channels, ogn.ErrShapeMismatch)
	}
	for n := 0; n < batch; n++ {
		if err := pr.Element(n).checkIndices(pixels); err != nil {
			return nil, fmt.Errorf("prediction element %d: %w", n, err)
		}
		if err := gt.Element(n).checkIndices(gtValues.Pixels); err != nil {
			return nil, fmt.Errorf("ground truth element %d: %w", n, err)
		}
	}

	targets := NewFeatures(batch, 1, pixels)
	for i := range targets.Data {
		targets.Data[i] = float64(voxels.ClassIgnore)
	}
	for n := 0; n < batch; n++ {
		prKeys := pr.Element(n)
		gtKeys := gt.Element(n).Keys
		prKeys.Keys.Range(func(key octree.Key, index int) bool {
			if !prKeys.Propagated(key) {
				return true
			}
			value := float64(voxels.ClassMixed)
			if gtIndex, found := gtKeys.Lookup(key, useAncestors); found {
				value = gtValues.At(n, 0, gtIndex)
			}
			targets.Set(n, 0, index, value)
			return true
		})
	}
	return targets, nil
}
