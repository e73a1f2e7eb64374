package voxels

import (
	"fmt"

	"github.com/janelia-flyem/ogn/ogn"
)

// IoU returns the intersection over union of the occupied (nonzero) cells of two
// grids of the same shape.
func IoU(a, b *Grid) (float64, error) {
	if !a.SameShape(b) {
		return 0, fmt.Errorf("IoU of %s and %s: %w", a, b, ogn.ErrShapeMismatch)
	}
	var inter, union int
	for i, va := range a.Data {
		vb := b.Data[i]
		if va != 0 && vb != 0 {
			inter++
		}
		if va != 0 || vb != 0 {
			union++
		}
	}
	if union == 0 {
		return 0, ErrEmptyUnion
	}
	return float64(inter) / float64(union), nil
}
