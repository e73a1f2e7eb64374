package sparseconv

import (
	"errors"
	"testing"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
	"github.com/janelia-flyem/ogn/voxels"
)

func TestPrepareLoss(t *testing.T) {
	gt := LayerKeys{elementOf(
		octree.EncodeKey(0, 0, 0, 1),
		octree.EncodeKey(1, 1, 1, 2),
	)}
	gtValues := &Features{Batch: 1, Channels: 1, Pixels: 2, Data: []float64{
		float64(voxels.ClassFilled), float64(voxels.ClassEmpty),
	}}
	pr := NewElementKeys()
	pr.Add(octree.EncodeKey(0, 1, 0, 2), 0, PropTrue) // nested in the first gt cell
	pr.Add(octree.EncodeKey(1, 1, 1, 2), 1, PropTrue)
	pr.Add(octree.EncodeKey(3, 3, 3, 2), 2, PropTrue)
	pr.Add(octree.EncodeKey(2, 2, 2, 2), 3, PropFalse)

	tests := []struct {
		useAncestors bool
		expected     []uint8
	}{
		{true, []uint8{voxels.ClassFilled, voxels.ClassEmpty, voxels.ClassMixed, voxels.ClassIgnore, voxels.ClassIgnore}},
		{false, []uint8{voxels.ClassMixed, voxels.ClassEmpty, voxels.ClassMixed, voxels.ClassIgnore, voxels.ClassIgnore}},
	}
	for _, tc := range tests {
		targets, err := PrepareLoss(gt, gtValues, LayerKeys{pr}, 5, tc.useAncestors)
		if err != nil {
			t.Fatalf("PrepareLoss: %v", err)
		}
		if targets.Batch != 1 || targets.Channels != 1 || targets.Pixels != 5 {
			t.Fatalf("unexpected target shape %s", targets)
		}
		for i, v := range tc.expected {
			if targets.Data[i] != float64(v) {
				t.Errorf("ancestors %t, pixel %d: expected class %d, got %f", tc.useAncestors, i, v, targets.Data[i])
			}
		}
	}
}

func TestPrepareLossErrors(t *testing.T) {
	gt := LayerKeys{elementOf(octree.EncodeKey(0, 0, 0, 1))}
	pr := LayerKeys{elementOf(octree.EncodeKey(0, 0, 0, 1), octree.EncodeKey(1, 0, 0, 1))}
	if _, err := PrepareLoss(gt, NewFeatures(2, 1, 1), pr, 2, false); !errors.Is(err, ogn.ErrShapeMismatch) {
		t.Errorf("expected batch mismatch, got %v", err)
	}
	if _, err := PrepareLoss(gt, NewFeatures(1, 1, 1), pr, 1, false); !errors.Is(err, ogn.ErrShapeMismatch) {
		t.Errorf("expected prediction index out of range, got %v", err)
	}
}
