package voxels

import (
	"fmt"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
)

// Supported file extensions.
const (
	OctreeExt = "ot"
	BinvoxExt = "binvox"
)

// ReadGridFile reads a dense grid from a .binvox file or expands one from an .ot file.
func ReadGridFile(fname string) (*Grid, error) {
	switch ext := ogn.FileExtension(fname); ext {
	case BinvoxExt:
		return ReadBinvoxFile(fname)
	case OctreeExt:
		t, err := octree.ReadFile(fname)
		if err != nil {
			return nil, err
		}
		return ToGrid(t), nil
	default:
		return nil, fmt.Errorf("can't read grid from %q: %w", fname, ogn.ErrUnsupportedFormat)
	}
}

// ReadTreeFile reads an octree from an .ot file or compacts one from a .binvox file,
// merging no higher than minLevel.
func ReadTreeFile(fname string, minLevel int) (*octree.Octree[uint8], error) {
	switch ext := ogn.FileExtension(fname); ext {
	case OctreeExt:
		return octree.ReadFile(fname)
	case BinvoxExt:
		g, err := ReadBinvoxFile(fname)
		if err != nil {
			return nil, err
		}
		t, err := FromGrid(g, minLevel)
		if err != nil {
			return nil, fmt.Errorf("compacting %q: %w", fname, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("can't read octree from %q: %w", fname, ogn.ErrUnsupportedFormat)
	}
}

// WriteGridFile writes a grid as .binvox, or compacts it and writes an .ot archive.
func WriteGridFile(fname string, g *Grid, minLevel int) error {
	switch ext := ogn.FileExtension(fname); ext {
	case BinvoxExt:
		return WriteBinvoxFile(fname, g)
	case OctreeExt:
		t, err := FromGrid(g, minLevel)
		if err != nil {
			return err
		}
		return octree.WriteFile(fname, t)
	default:
		return fmt.Errorf("can't write grid to %q: %w", fname, ogn.ErrUnsupportedFormat)
	}
}

// WriteTreeFile writes an octree as an .ot archive, or expands it and writes .binvox.
func WriteTreeFile(fname string, t *octree.Octree[uint8]) error {
	switch ext := ogn.FileExtension(fname); ext {
	case OctreeExt:
		return octree.WriteFile(fname, t)
	case BinvoxExt:
		return WriteBinvoxFile(fname, ToGrid(t))
	default:
		return fmt.Errorf("can't write octree to %q: %w", fname, ogn.ErrUnsupportedFormat)
	}
}

// Convert reads input and writes it to output, converting between formats by file
// extension.  Both extensions are checked before anything is read.
func Convert(input, output string, minLevel int) error {
	for _, fname := range []string{input, output} {
		if ext := ogn.FileExtension(fname); ext != OctreeExt && ext != BinvoxExt {
			return fmt.Errorf("can't convert %q: %w", fname, ogn.ErrUnsupportedFormat)
		}
	}
	timedLog := ogn.NewTimeLog()
	t, err := ReadTreeFile(input, minLevel)
	if err != nil {
		return err
	}
	if err := WriteTreeFile(output, t); err != nil {
		return err
	}
	timedLog.Debugf("converted %q to %q with %d cells", input, output, t.Len())
	return nil
}
