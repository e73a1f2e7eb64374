package sparseconv

import (
	"path/filepath"
	"testing"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/voxels"
)

func TestExtractOctrees(t *testing.T) {
	coarse := LayerKeys{elementOf(
		octree.EncodeKey(0, 0, 0, 1),
		octree.EncodeKey(1, 0, 0, 1),
	)}
	scores := &Features{Batch: 1, Channels: NumClasses, Pixels: 2, Data: []float64{
		0.1, 0.9,
		0.2, 0.05,
		0.7, 0.05,
	}}
	fine := LayerKeys{elementOf(
		octree.EncodeKey(0, 0, 0, 2),
		octree.EncodeKey(1, 0, 0, 2),
	)}
	labels := &Features{Batch: 1, Channels: 1, Pixels: 2, Data: []float64{
		float64(voxels.ClassFilled), float64(voxels.ClassMixed),
	}}

	trees, err := ExtractOctrees([]*Features{scores, labels}, []KeySource{coarse, fine})
	if err != nil {
		t.Fatalf("ExtractOctrees: %v", err)
	}
	if len(trees) != 1 {
		t.Fatalf("expected 1 octree, got %d", len(trees))
	}
	tree := trees[0]
	if tree.Len() != 2 {
		t.Errorf("expected 2 cells, got %d", tree.Len())
	}
	if v, found := tree.Get(octree.EncodeKey(1, 0, 0, 1)); !found || v != voxels.ClassEmpty {
		t.Errorf("expected empty coarse cell, got %d, %t", v, found)
	}
	if v, found := tree.Get(octree.EncodeKey(0, 0, 0, 2)); !found || v != voxels.ClassFilled {
		t.Errorf("expected filled fine cell, got %d, %t", v, found)
	}
	if tree.Has(octree.EncodeKey(0, 0, 0, 1)) || tree.Has(octree.EncodeKey(1, 0, 0, 2)) {
		t.Errorf("mixed cells should be dropped")
	}

	if _, err := ExtractOctrees([]*Features{scores}, []KeySource{coarse, fine}); err == nil {
		t.Errorf("expected error for mismatched level counts")
	}

	prefix := filepath.Join(t.TempDir(), "pred_")
	next, err := WriteOctrees(prefix, 7, trees)
	if err != nil {
		t.Fatalf("WriteOctrees: %v", err)
	}
	if next != 8 {
		t.Errorf("expected next sequence number 8, got %d", next)
	}
	got, err := octree.ReadFile(prefix + "0007.ot")
	if err != nil {
		t.Fatalf("reading written octree: %v", err)
	}
	if !octree.Equal(tree, got) {
		t.Errorf("written octree differs")
	}
}
