package octree

import (
	"errors"
	"testing"

	"github.com/tinylib/msgp/msgp"
)

func TestMsgpackRoundTrip(t *testing.T) {
	tree := New[uint8]()
	tree.Add(EncodeKey(1, 0, 1, 1), 1)
	tree.Add(EncodeKey(5, 6, 7, 3), 0)
	tree.SetMaxLevel(5)

	b, err := MarshalMsg(nil, tree)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(b) > Msgsize(tree) {
		t.Errorf("encoding of %d bytes exceeds size estimate %d", len(b), Msgsize(tree))
	}
	got, rest, err := UnmarshalMsg(append(b, 0xc0))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rest) != 1 {
		t.Errorf("expected 1 leftover byte, got %d", len(rest))
	}
	if !Equal(tree, got) {
		t.Errorf("msgpack round trip mismatch")
	}
	if got.MaxLevel() != 5 {
		t.Errorf("expected max level 5, got %d", got.MaxLevel())
	}
}

func TestMsgpackTruncated(t *testing.T) {
	tree := New[uint8]()
	tree.Add(EncodeKey(1, 0, 1, 1), 1)
	b, _ := MarshalMsg(nil, tree)
	if _, _, err := UnmarshalMsg(b[:len(b)-1]); err == nil {
		t.Errorf("expected error on truncated msgpack")
	}
}

func TestMsgpackHugeCount(t *testing.T) {
	b := msgp.AppendArrayHeader(nil, 2)
	b = msgp.AppendInt(b, 3)
	b = msgp.AppendMapHeader(b, 0xFFFFFFFF)
	b = append(b, 0x09, 0x01)
	_, _, err := UnmarshalMsg(b)
	if err == nil {
		t.Fatalf("expected error for entry count beyond the input")
	}
	if !errors.Is(err, msgp.ErrShortBytes) {
		t.Errorf("expected short bytes error, got %v", err)
	}
}
