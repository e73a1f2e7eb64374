package octree

import (
	"fmt"
	"math/bits"
)

// Key is a spatial code for a cubic octree cell.  The (x, y, z) coordinates are
// interleaved Morton-style, three bits per level with x in the least significant
// position, and a single sentinel bit is set at bit 3*level above the coordinates.
// The level of a key can therefore be recovered from its leading zeros, and a
// single hash map can hold cells from any mix of levels.
type Key uint32

const (
	// InvalidKey is the zero key, never a valid cell.
	InvalidKey Key = 0

	// MinLevel is the level of the root cell.
	MinLevel = 0

	// MaxLevel is the finest level representable in a 32-bit key.
	MaxLevel = 32 / 3
)

// Coord is the integer coordinate of a cell at a given octree level.
type Coord struct {
	X, Y, Z int
	Level   int
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)@%d", c.X, c.Y, c.Z, c.Level)
}

// Valid returns true if the coordinate lies inside the cube at its level.
func (c Coord) Valid() bool {
	if c.Level < MinLevel || c.Level > MaxLevel {
		return false
	}
	res := Resolution(c.Level)
	return c.X >= 0 && c.X < res && c.Y >= 0 && c.Y < res && c.Z >= 0 && c.Z < res
}

// Key returns the spatial key for the coordinate or InvalidKey if it is out of range.
func (c Coord) Key() Key {
	if !c.Valid() {
		return InvalidKey
	}
	return Key(morton3(uint32(c.X), uint32(c.Y), uint32(c.Z))) | Key(1)<<(3*uint(c.Level))
}

// EncodeKey returns the key for cell (x, y, z) at the given level.  It returns
// InvalidKey unless 0 <= x,y,z < 2^level and level <= MaxLevel.
func EncodeKey(x, y, z, level int) Key {
	return Coord{X: x, Y: y, Z: z, Level: level}.Key()
}

// Resolution returns the number of cells along each axis at the given level.
func Resolution(level int) int {
	return 1 << uint(level)
}

// Valid returns true if the key is nonzero and its sentinel bit sits on a level boundary.
func (k Key) Valid() bool {
	if k == InvalidKey {
		return false
	}
	return (bits.LeadingZeros32(uint32(k))-1)%3 == 0
}

// Level returns the octree level encoded by the sentinel bit.  The result is
// undefined for invalid keys.
func (k Key) Level() int {
	return (MaxLevel*3 - bits.LeadingZeros32(uint32(k)) + 1) / 3
}

// Coord decodes the key into its coordinate and level.
func (k Key) Coord() Coord {
	level := k.Level()
	x, y, z := inverseMorton3(uint32(k &^ (Key(1) << (3 * uint(level)))))
	return Coord{X: int(x), Y: int(y), Z: int(z), Level: level}
}

// Parent returns the key one level up, or InvalidKey for the root.
func (k Key) Parent() Key {
	return k >> 3
}

// Ancestor returns the key d levels up.
func (k Key) Ancestor(d int) Key {
	return k >> (3 * uint(d))
}

// Child returns child i, 0 <= i < 8, of the key.
func (k Key) Child(i int) Key {
	return k<<3 | Key(i&7)
}

func (k Key) String() string {
	if !k.Valid() {
		return fmt.Sprintf("invalid key %#x", uint32(k))
	}
	return fmt.Sprintf("key %#x %s", uint32(k), k.Coord())
}

// morton3 interleaves the low 10 bits of x, y and z.
func morton3(x, y, z uint32) uint32 {
	return spread3(x) | spread3(y)<<1 | spread3(z)<<2
}

func spread3(v uint32) uint32 {
	v &= 0x3FF
	v = (v | v<<16) & 0x030000FF
	v = (v | v<<8) & 0x0300F00F
	v = (v | v<<4) & 0x030C30C3
	v = (v | v<<2) & 0x09249249
	return v
}

// inverseMorton3 recovers the three 10-bit coordinates from a 30-bit Morton code.
func inverseMorton3(code uint32) (x, y, z uint32) {
	return compact3(code), compact3(code >> 1), compact3(code >> 2)
}

func compact3(v uint32) uint32 {
	v &= 0x09249249
	v = (v | v>>2) & 0x030C30C3
	v = (v | v>>4) & 0x0300F00F
	v = (v | v>>8) & 0x030000FF
	v = (v | v>>16) & 0x000003FF
	return v
}
