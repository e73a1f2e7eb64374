package octree

import (
	"math/rand"
	"testing"
)

func TestKeyRoundTrip(t *testing.T) {
	for level := 0; level <= MaxLevel; level++ {
		res := Resolution(level)
		for n := 0; n < 200; n++ {
			c := Coord{X: rand.Intn(res), Y: rand.Intn(res), Z: rand.Intn(res), Level: level}
			k := c.Key()
			if !k.Valid() {
				t.Fatalf("encoded key %#x for %s is not valid", uint32(k), c)
			}
			if got := k.Coord(); got != c {
				t.Fatalf("decode(encode(%s)) = %s", c, got)
			}
			if k.Level() != level {
				t.Fatalf("key %#x has level %d, expected %d", uint32(k), k.Level(), level)
			}
		}
	}
}

func TestKeyCorners(t *testing.T) {
	hi := Resolution(MaxLevel) - 1
	k := EncodeKey(hi, hi, hi, MaxLevel)
	if !k.Valid() {
		t.Fatalf("corner key at max level should be valid")
	}
	if c := k.Coord(); c.X != hi || c.Y != hi || c.Z != hi || c.Level != MaxLevel {
		t.Errorf("bad corner decode: %s", c)
	}
	if k := EncodeKey(0, 0, 0, 0); k != 1 {
		t.Errorf("root key should be 1, got %#x", uint32(k))
	}
	// x occupies the least significant interleaved bit.
	if k := EncodeKey(1, 0, 0, 1); k != 0x9 {
		t.Errorf("expected key 0x9 for (1,0,0)@1, got %#x", uint32(k))
	}
	if k := EncodeKey(0, 1, 0, 1); k != 0xa {
		t.Errorf("expected key 0xa for (0,1,0)@1, got %#x", uint32(k))
	}
	if k := EncodeKey(0, 0, 1, 1); k != 0xc {
		t.Errorf("expected key 0xc for (0,0,1)@1, got %#x", uint32(k))
	}
}

func TestInvalidKeys(t *testing.T) {
	if InvalidKey.Valid() {
		t.Errorf("InvalidKey must never validate")
	}
	bad := []Coord{
		{X: -1, Y: 0, Z: 0, Level: 2},
		{X: 4, Y: 0, Z: 0, Level: 2},
		{X: 0, Y: 0, Z: 2, Level: 1},
		{X: 0, Y: 0, Z: 0, Level: MaxLevel + 1},
		{X: 0, Y: 0, Z: 0, Level: -1},
	}
	for _, c := range bad {
		if k := c.Key(); k != InvalidKey {
			t.Errorf("expected InvalidKey for %s, got %#x", c, uint32(k))
		}
	}
	// sentinel bits not on a level boundary
	for _, k := range []Key{0x2, 0x4, 0x10, 0x20, 0x80000000} {
		if k.Valid() {
			t.Errorf("key %#x should not be valid", uint32(k))
		}
	}
}

func TestKeyHierarchy(t *testing.T) {
	k := EncodeKey(5, 2, 7, 3)
	p := k.Parent()
	if c := p.Coord(); c != (Coord{X: 2, Y: 1, Z: 3, Level: 2}) {
		t.Errorf("bad parent of %s: %s", k, c)
	}
	if a := k.Ancestor(3); a != 1 {
		t.Errorf("ancestor at distance 3 should be root, got %s", a)
	}
	for i := 0; i < 8; i++ {
		child := p.Child(i)
		if child.Parent() != p {
			t.Errorf("child %d of %s does not point back to parent", i, p)
		}
		c := child.Coord()
		pc := p.Coord()
		if c.X>>1 != pc.X || c.Y>>1 != pc.Y || c.Z>>1 != pc.Z || c.Level != pc.Level+1 {
			t.Errorf("child %d %s not nested in %s", i, c, pc)
		}
	}
	if p.Child(5) != k {
		t.Errorf("expected %s to be child 5 of its parent", k)
	}
}
