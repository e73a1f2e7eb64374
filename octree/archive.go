package octree

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/janelia-flyem/ogn/ogn"
)

// The .ot archive is the text serialization of an ordered map from key to byte
// value, laid out as a boost text archive:
//
//	22 serialization::archive <libver> 0 0 <count> 0 0 0 <key> <value> ...
//
// Keys are written in ascending order and values as decimal integers.  The
// archive library version is kept when decoding so a decoded archive encodes back
// to the same bytes.

const (
	archiveSignature = "serialization::archive"
	archiveSigLength = "22"

	// DefaultArchiveVersion is the library version written into new archives.
	DefaultArchiveVersion = 12

	maxArchiveHint = 1 << 16
)

// ArchiveFormat carries the header fields of an archive that are not part of the
// octree itself.
type ArchiveFormat struct {
	LibraryVersion int
}

// EncodeArchive writes the octree in .ot text form.
func EncodeArchive(w io.Writer, t *Octree[uint8], format ArchiveFormat) error {
	if format.LibraryVersion <= 0 {
		format.LibraryVersion = DefaultArchiveVersion
	}
	bw := bufio.NewWriter(w)
	keys := t.Keys()
	fmt.Fprintf(bw, "%s %s %d 0 0 %d 0", archiveSigLength, archiveSignature, format.LibraryVersion, len(keys))
	if len(keys) > 0 {
		bw.WriteString(" 0 0")
	}
	buf := make([]byte, 0, 24)
	for _, k := range keys {
		v := t.cells[k]
		buf = buf[:0]
		buf = append(buf, ' ')
		buf = strconv.AppendUint(buf, uint64(k), 10)
		buf = append(buf, ' ')
		buf = strconv.AppendUint(buf, uint64(v), 10)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

type tokenReader struct {
	sc *bufio.Scanner
	n  int
}

func (tr *tokenReader) next(what string) (string, error) {
	if !tr.sc.Scan() {
		if err := tr.sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("archive truncated at token %d (%s): %w", tr.n, what, ogn.ErrBadHeader)
	}
	tr.n++
	return tr.sc.Text(), nil
}

func (tr *tokenReader) nextUint(what string, bitSize int) (uint64, error) {
	s, err := tr.next(what)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q at token %d: %v", what, s, tr.n, err)
	}
	return v, nil
}

// DecodeArchive reads an octree in .ot text form.
func DecodeArchive(r io.Reader) (*Octree[uint8], ArchiveFormat, error) {
	var format ArchiveFormat
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)
	tr := &tokenReader{sc: sc}

	s, err := tr.next("signature length")
	if err != nil {
		return nil, format, err
	}
	if s != archiveSigLength {
		return nil, format, fmt.Errorf("archive begins with %q instead of %q: %w", s, archiveSigLength, ogn.ErrBadHeader)
	}
	if s, err = tr.next("signature"); err != nil {
		return nil, format, err
	}
	if s != archiveSignature {
		return nil, format, fmt.Errorf("archive signature %q instead of %q: %w", s, archiveSignature, ogn.ErrBadHeader)
	}
	ver, err := tr.nextUint("library version", 16)
	if err != nil {
		return nil, format, err
	}
	format.LibraryVersion = int(ver)
	for _, what := range []string{"tracking level", "class version"} {
		if _, err := tr.nextUint(what, 32); err != nil {
			return nil, format, err
		}
	}
	count, err := tr.nextUint("count", 32)
	if err != nil {
		return nil, format, err
	}
	if _, err := tr.nextUint("item version", 32); err != nil {
		return nil, format, err
	}
	if count > 0 {
		for _, what := range []string{"pair tracking level", "pair class version"} {
			if _, err := tr.nextUint(what, 32); err != nil {
				return nil, format, err
			}
		}
	}

	// count is untrusted; the map grows past the hint as entries are read
	t := NewWithCapacity[uint8](int(min(count, maxArchiveHint)))
	for i := uint64(0); i < count; i++ {
		k, err := tr.nextUint("key", 32)
		if err != nil {
			return nil, format, err
		}
		v, err := tr.nextUint("value", 8)
		if err != nil {
			return nil, format, err
		}
		key := Key(k)
		if !key.Valid() {
			return nil, format, fmt.Errorf("archive entry %d holds invalid key %d", i, k)
		}
		t.Add(key, uint8(v))
	}
	if sc.Scan() {
		return nil, format, fmt.Errorf("archive has trailing data after %d entries", count)
	}
	if err := sc.Err(); err != nil {
		return nil, format, err
	}
	return t, format, nil
}

// WriteFile writes the octree as an .ot archive.
func WriteFile(fname string, t *Octree[uint8]) error {
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	if err := EncodeArchive(f, t, ArchiveFormat{}); err != nil {
		f.Close()
		return fmt.Errorf("writing octree archive %q: %v", fname, err)
	}
	return f.Close()
}

// ReadFile reads an .ot archive.
func ReadFile(fname string) (*Octree[uint8], error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, _, err := DecodeArchive(f)
	if err != nil {
		return nil, fmt.Errorf("reading octree archive %q: %w", fname, err)
	}
	return t, nil
}
