package octree

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// MarshalMsg appends a msgpack encoding of a byte-valued octree to b.  The encoding
// is a 2-element array of the max level and a map of key to value, with keys in
// ascending order.
func MarshalMsg(b []byte, t *Octree[uint8]) ([]byte, error) {
	o := msgp.Require(b, Msgsize(t))
	o = msgp.AppendArrayHeader(o, 2)
	o = msgp.AppendInt(o, t.MaxLevel())
	o = msgp.AppendMapHeader(o, uint32(t.Len()))
	for _, k := range t.Keys() {
		o = msgp.AppendUint32(o, uint32(k))
		o = msgp.AppendUint8(o, t.cells[k])
	}
	return o, nil
}

// UnmarshalMsg decodes an octree written by MarshalMsg, returning any remaining bytes.
func UnmarshalMsg(bts []byte) (t *Octree[uint8], o []byte, err error) {
	var asz uint32
	asz, bts, err = msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return
	}
	if asz != 2 {
		err = msgp.ArrayError{Wanted: 2, Got: asz}
		return
	}
	var maxLevel int
	maxLevel, bts, err = msgp.ReadIntBytes(bts)
	if err != nil {
		return
	}
	var msz uint32
	msz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return
	}
	// every entry takes at least a byte for the key and one for the value
	if uint64(msz) > uint64(len(bts))/2 {
		err = fmt.Errorf("msgpack octree claims %d entries in %d bytes: %w", msz, len(bts), msgp.ErrShortBytes)
		return nil, nil, err
	}
	t = NewWithCapacity[uint8](int(msz))
	for i := uint32(0); i < msz; i++ {
		var k uint32
		var v uint8
		k, bts, err = msgp.ReadUint32Bytes(bts)
		if err != nil {
			return nil, nil, err
		}
		v, bts, err = msgp.ReadUint8Bytes(bts)
		if err != nil {
			return nil, nil, err
		}
		if !Key(k).Valid() {
			return nil, nil, fmt.Errorf("msgpack octree entry %d holds invalid key %d", i, k)
		}
		t.Add(Key(k), v)
	}
	if maxLevel > t.maxLevel {
		t.maxLevel = maxLevel
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the msgpack encoding size.
func Msgsize(t *Octree[uint8]) int {
	return msgp.ArrayHeaderSize + msgp.IntSize + msgp.MapHeaderSize + t.Len()*(msgp.Uint32Size+msgp.Uint8Size)
}
