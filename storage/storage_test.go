package storage

import (
	"testing"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
)

func TestOctreeEnvelope(t *testing.T) {
	tree := octree.New[uint8]()
	for x := 0; x < 4; x++ {
		tree.Add(octree.EncodeKey(x, 3-x, x, 2), uint8(x%2))
	}
	for _, compress := range []ogn.Compression{ogn.Uncompressed, ogn.Snappy, ogn.Zstd} {
		b, err := EncodeOctree(tree, compress)
		if err != nil {
			t.Fatalf("%s: encode: %v", compress, err)
		}
		got, err := DecodeOctree(b)
		if err != nil {
			t.Fatalf("%s: decode: %v", compress, err)
		}
		if !octree.Equal(tree, got) || got.MaxLevel() != 2 {
			t.Errorf("%s: round trip mismatch", compress)
		}
		b[len(b)-1] ^= 0x10
		if _, err := DecodeOctree(b); err == nil {
			t.Errorf("%s: expected checksum error on corrupted value", compress)
		}
	}
}

func TestOpenUnknownEngine(t *testing.T) {
	if _, err := Open(ogn.StoreConfig{Engine: "no-such-engine", Path: t.TempDir()}); err == nil {
		t.Errorf("expected error opening unregistered engine")
	}
}
