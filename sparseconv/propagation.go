package sparseconv

import (
	"fmt"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
	"github.com/janelia-flyem/ogn/voxels"
)

// PropagationMode selects where cell classes come from when deciding which cells
// to refine.
type PropagationMode int

const (
	// PropPred takes the argmax over NumClasses predicted channels.
	PropPred PropagationMode = iota

	// PropKnown reads class labels from a single channel.
	PropKnown
)

func (m PropagationMode) String() string {
	switch m {
	case PropPred:
		return "predicted"
	case PropKnown:
		return "known"
	default:
		return fmt.Sprintf("unknown propagation mode %d", int(m))
	}
}

// Propagation selects the mixed cells of a key source, together with their
// neighborhoods, as the input of the next finer level.  Selected mixed cells are
// flagged PropTrue and neighbors added only for context are flagged PropFalse.
type Propagation struct {
	source  KeySource
	mode    PropagationMode
	nbhSize int

	keys     LayerKeys
	pixels   int
	inPixels int
}

// NewPropagation returns a propagation step over source.  nbhSize is the side of
// the neighborhood kept around each mixed cell; sizes below 2 keep the cell only.
func NewPropagation(source KeySource, mode PropagationMode, nbhSize int) (*Propagation, error) {
	if source == nil {
		return nil, fmt.Errorf("propagation needs a key source")
	}
	if mode != PropPred && mode != PropKnown {
		return nil, fmt.Errorf("bad propagation mode %d", int(mode))
	}
	return &Propagation{source: source, mode: mode, nbhSize: nbhSize}, nil
}

// Keys returns the propagated key sets computed by the last Forward call.
func (p *Propagation) Keys() LayerKeys {
	return p.keys
}

// Pixels returns the output width of the last Forward call, the largest
// propagated cell count over the batch and at least 1.
func (p *Propagation) Pixels() int {
	return p.pixels
}

func argmax(values *Features, n, px int) uint8 {
	best := 0
	bestVal := values.At(n, 0, px)
	for cl := 1; cl < values.Channels; cl++ {
		if v := values.At(n, cl, px); v > bestVal {
			best, bestVal = cl, v
		}
	}
	return uint8(best)
}

func (p *Propagation) classOf(values *Features, n, px int) uint8 {
	if p.mode == PropKnown {
		return uint8(values.At(n, 0, px))
	}
	return argmax(values, n, px)
}

// update recomputes the propagated key sets from per-cell class values.
func (p *Propagation) update(values *Features) error {
	if err := values.check(); err != nil {
		return err
	}
	wantChannels := NumClasses
	if p.mode == PropKnown {
		wantChannels = 1
	}
	if values.Channels != wantChannels {
		return fmt.Errorf("%s propagation needs %d channels, got %d: %w", p.mode, wantChannels, values.Channels, ogn.ErrShapeMismatch)
	}
	batch := p.source.BatchSize()
	if values.Batch != batch {
		return fmt.Errorf("values batch of %d with key source batch of %d: %w", values.Batch, batch, ogn.ErrShapeMismatch)
	}

	keys := make(LayerKeys, batch)
	pixels := 0
	var nbrs []octree.Key
	for n := 0; n < batch; n++ {
		src := p.source.Element(n)
		if err := src.checkIndices(values.Pixels); err != nil {
			return fmt.Errorf("batch element %d: %w", n, err)
		}
		out := NewElementKeys()
		count := 0
		for _, key := range src.Keys.Keys() {
			if !src.Propagated(key) {
				continue
			}
			index, _ := src.Index(key)
			if p.classOf(values, n, index) != voxels.ClassMixed {
				continue
			}
			if p.nbhSize > 1 {
				nbrs = src.Keys.AppendNeighborKeys(nbrs[:0], key, p.nbhSize)
				for _, nbr := range nbrs {
					if nbr == octree.InvalidKey || out.Keys.Has(nbr) {
						continue
					}
					out.Add(nbr, count, PropFalse)
					count++
				}
			}
			if out.Keys.Has(key) {
				out.Prop.Add(key, PropTrue)
			} else {
				out.Add(key, count, PropTrue)
				count++
			}
		}
		if count > pixels {
			pixels = count
		}
		keys[n] = out
	}
	if pixels == 0 {
		pixels = 1
	}
	p.keys = keys
	p.pixels = pixels
	p.inPixels = values.Pixels
	return nil
}

// Forward selects cells using the class values and copies the features of every
// selected cell from bottom into the propagated pixel layout.
func (p *Propagation) Forward(bottom, values *Features) (*Features, error) {
	if err := bottom.check(); err != nil {
		return nil, err
	}
	if bottom.Pixels != values.Pixels || bottom.Batch != values.Batch {
		return nil, fmt.Errorf("%s and class values %s differ in shape: %w", bottom, values, ogn.ErrShapeMismatch)
	}
	if err := p.update(values); err != nil {
		return nil, err
	}
	top := NewFeatures(bottom.Batch, bottom.Channels, p.pixels)
	for n := range p.keys {
		src := p.source.Element(n)
		p.keys[n].Keys.Range(func(key octree.Key, to int) bool {
			from, _ := src.Index(key)
			for ch := 0; ch < bottom.Channels; ch++ {
				top.Set(n, ch, to, bottom.At(n, ch, from))
			}
			return true
		})
	}
	return top, nil
}

// Backward accumulates the gradient of the propagated output back into the layout
// of bottom.
func (p *Propagation) Backward(topDiff, bottom *Features) (*Features, error) {
	if p.keys == nil {
		return nil, fmt.Errorf("backward pass before any forward pass")
	}
	if err := topDiff.check(); err != nil {
		return nil, err
	}
	if topDiff.Batch != len(p.keys) || topDiff.Batch != bottom.Batch ||
		topDiff.Channels != bottom.Channels || topDiff.Pixels != p.pixels || bottom.Pixels != p.inPixels {
		return nil, fmt.Errorf("gradient %s doesn't match propagated output: %w", topDiff, ogn.ErrShapeMismatch)
	}
	bottomDiff := NewFeatures(bottom.Batch, bottom.Channels, bottom.Pixels)
	for n := range p.keys {
		src := p.source.Element(n)
		p.keys[n].Keys.Range(func(key octree.Key, from int) bool {
			to, _ := src.Index(key)
			for ch := 0; ch < bottom.Channels; ch++ {
				bottomDiff.Data[(n*bottom.Channels+ch)*bottom.Pixels+to] += topDiff.At(n, ch, from)
			}
			return true
		})
	}
	return bottomDiff, nil
}
