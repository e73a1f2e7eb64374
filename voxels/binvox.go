package voxels

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
)

const (
	binvoxMagic  = "#binvox"
	maxBinvoxRun = 255
)

// Sides are bounded by the finest octree resolution, so D*H*W cannot overflow.
var maxBinvoxSide = octree.Resolution(octree.MaxLevel)

// WriteBinvox writes the grid as a binvox file: a text header followed by
// (value, count) byte pairs over the grid's linear order, with no run longer
// than 255 cells.
func WriteBinvox(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s 1\n", binvoxMagic)
	fmt.Fprintf(bw, "dim %d %d %d\n", g.Depth, g.Height, g.Width)
	bw.WriteString("translate 0 0 0\n")
	bw.WriteString("scale 1\n")
	bw.WriteString("data\n")

	if len(g.Data) > 0 {
		value := g.Data[0]
		count := 0
		for _, v := range g.Data {
			if v != value || count == maxBinvoxRun {
				bw.WriteByte(value)
				bw.WriteByte(byte(count))
				value = v
				count = 0
			}
			count++
		}
		bw.WriteByte(value)
		bw.WriteByte(byte(count))
	}
	return bw.Flush()
}

// ReadBinvox reads a binvox file.  Nonzero voxels become ClassFilled and zero voxels
// ClassEmpty.  Header lines other than "dim" and "data" are ignored.
func ReadBinvox(r io.Reader) (*Grid, error) {
	br := bufio.NewReader(r)

	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("reading binvox magic: %w", ogn.ErrBadHeader)
	}
	if fields := strings.Fields(line); len(fields) == 0 || fields[0] != binvoxMagic {
		return nil, fmt.Errorf("first line reads %q instead of %q: %w", strings.TrimSpace(line), binvoxMagic, ogn.ErrBadHeader)
	}

	var g *Grid
	for {
		line, err = br.ReadString('\n')
		fields := strings.Fields(line)
		if len(fields) > 0 {
			if fields[0] == "data" {
				break
			}
			if fields[0] == "dim" {
				if g, err = parseDim(fields); err != nil {
					return nil, err
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("binvox header has no data line: %w", ogn.ErrBadHeader)
			}
			return nil, err
		}
	}
	if g == nil {
		return nil, fmt.Errorf("binvox header missing dimensions: %w", ogn.ErrBadHeader)
	}

	size := g.Size()
	index := 0
	for index < size {
		value, err := br.ReadByte()
		if err != nil {
			return nil, binvoxTruncated(err, index, size)
		}
		count, err := br.ReadByte()
		if err != nil {
			return nil, binvoxTruncated(err, index, size)
		}
		end := index + int(count)
		if end > size {
			return nil, fmt.Errorf("binvox run of %d at voxel %d overruns %d voxels", count, index, size)
		}
		if value != 0 {
			for i := index; i < end; i++ {
				g.Data[i] = ClassFilled
			}
		}
		index = end
	}
	return g, nil
}

func parseDim(fields []string) (*Grid, error) {
	if len(fields) != 4 {
		return nil, fmt.Errorf("bad binvox dim line %q: %w", strings.Join(fields, " "), ogn.ErrBadHeader)
	}
	var dims [3]int
	for i := range dims {
		n, err := strconv.Atoi(fields[i+1])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad binvox dimension %q: %w", fields[i+1], ogn.ErrBadHeader)
		}
		if n > maxBinvoxSide {
			return nil, fmt.Errorf("binvox dimension %d exceeds %d: %w", n, maxBinvoxSide, ogn.ErrBadHeader)
		}
		dims[i] = n
	}
	return NewGrid(dims[0], dims[1], dims[2]), nil
}

func binvoxTruncated(err error, index, size int) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("binvox data ends after %d of %d voxels", index, size)
	}
	return err
}

// WriteBinvoxFile writes the grid to a binvox file.
func WriteBinvoxFile(fname string, g *Grid) error {
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	if err := WriteBinvox(f, g); err != nil {
		f.Close()
		return fmt.Errorf("writing binvox %q: %v", fname, err)
	}
	return f.Close()
}

// ReadBinvoxFile reads a grid from a binvox file.
func ReadBinvoxFile(fname string) (*Grid, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := ReadBinvox(f)
	if err != nil {
		return nil, fmt.Errorf("reading binvox %q: %w", fname, err)
	}
	return g, nil
}
