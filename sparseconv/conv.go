package sparseconv

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ConvConfig describes a convolution or transposed convolution layer.
type ConvConfig struct {
	FilterSize     int
	InputChannels  int
	OutputChannels int

	// Deconv selects the transposed convolution, which outputs the 8 children of
	// every input cell.
	Deconv bool

	// Workers is the number of batch elements processed concurrently.
	Workers int
}

// Conv is a convolution over the key sets of a KeySource.  A plain convolution keeps
// the key set of its input.  A transposed convolution outputs the children of every
// input cell, so its output has 8 times as many pixels.
type Conv struct {
	config ConvConfig
	source KeySource

	// Weights is [out, in·f³] for convolution and [in, out·f³] for transposed
	// convolution, with filter taps ordered as in octree.AppendNeighborKeys.
	Weights *mat.Dense
	Bias    []float64

	// WeightDiff and BiasDiff accumulate gradients over Backward calls.
	WeightDiff *mat.Dense
	BiasDiff   []float64

	keys      LayerKeys
	inPixels  int
	outPixels int

	scratch []*scratch
	gradMu  sync.Mutex
}

// NewConv returns a layer with zero weights drawing its input keys from source.
func NewConv(config ConvConfig, source KeySource) (*Conv, error) {
	if config.FilterSize < 1 {
		return nil, fmt.Errorf("bad filter size %d", config.FilterSize)
	}
	if config.InputChannels < 1 || config.OutputChannels < 1 {
		return nil, fmt.Errorf("bad channel counts %d -> %d", config.InputChannels, config.OutputChannels)
	}
	if source == nil {
		return nil, fmt.Errorf("convolution needs a key source")
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	rows, cols := config.weightShape()
	c := &Conv{
		config:     config,
		source:     source,
		Weights:    mat.NewDense(rows, cols, nil),
		Bias:       make([]float64, config.OutputChannels),
		WeightDiff: mat.NewDense(rows, cols, nil),
		BiasDiff:   make([]float64, config.OutputChannels),
		scratch:    make([]*scratch, config.Workers),
	}
	for i := range c.scratch {
		c.scratch[i] = &scratch{
			wgrad: mat.NewDense(rows, cols, nil),
			bgrad: mat.NewVecDense(config.OutputChannels, nil),
		}
	}
	return c, nil
}

func (config ConvConfig) taps() int {
	return config.FilterSize * config.FilterSize * config.FilterSize
}

func (config ConvConfig) weightShape() (rows, cols int) {
	if config.Deconv {
		return config.InputChannels, config.OutputChannels * config.taps()
	}
	return config.OutputChannels, config.InputChannels * config.taps()
}

// Keys returns the output key sets of the last Forward call.  The result is itself
// a KeySource for downstream layers.
func (c *Conv) Keys() LayerKeys {
	return c.keys
}

// InitWeights fills the weights with zero-mean gaussian noise and zeroes the bias.
func (c *Conv) InitWeights(rng *rand.Rand, std float64) {
	rows, cols := c.Weights.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			c.Weights.Set(i, j, rng.NormFloat64()*std)
		}
	}
	clear(c.Bias)
}

// ZeroGradients resets the accumulated weight and bias gradients.
func (c *Conv) ZeroGradients() {
	c.WeightDiff.Zero()
	clear(c.BiasDiff)
}

// scratch holds the per-worker buffers used for one batch element at a time.
type scratch struct {
	col   []float64
	nbrs  []octree.Key
	mult  []float64
	wgrad *mat.Dense
	bgrad *mat.VecDense
}

// reset sizes the column buffer to n zeros and the bias indicator to pixels lanes,
// the first active of which are 1.
func (s *scratch) reset(n, pixels, active int) {
	if cap(s.col) < n {
		s.col = make([]float64, n)
	} else {
		s.col = s.col[:n]
		clear(s.col)
	}
	if cap(s.mult) < pixels {
		s.mult = make([]float64, pixels)
	} else {
		s.mult = s.mult[:pixels]
	}
	for i := range s.mult {
		if i < active {
			s.mult[i] = 1
		} else {
			s.mult[i] = 0
		}
	}
}

// window describes the neighborhoods visited by im2col and col2im.  Each cell of
// cols owns the column given by its pixel index, and its neighbors are looked up in
// targets.  With children set, the neighborhood is centered on the first child of
// the cell, one level below.
type window struct {
	cols     *octree.Octree[int]
	targets  *octree.Octree[int]
	children bool
	size     int
}

// im2col gathers src, a channels x pixels buffer addressed through the target
// indices, into the column buffer of s with colCols columns.  Slots for absent
// neighbors keep the zero written by reset.
func (w window) im2col(s *scratch, src []float64, channels, pixels, colCols int) {
	taps := w.size * w.size * w.size
	w.cols.Range(func(key octree.Key, column int) bool {
		if w.children {
			key <<= 3
		}
		s.nbrs = w.targets.AppendNeighborKeys(s.nbrs[:0], key, w.size)
		for el, nbr := range s.nbrs {
			if nbr == octree.InvalidKey {
				continue
			}
			index, _ := w.targets.Get(nbr)
			for ch := 0; ch < channels; ch++ {
				s.col[(ch*taps+el)*colCols+column] = src[ch*pixels+index]
			}
		}
		return true
	})
}

// col2im accumulates the column buffer of s into dst, the adjoint of im2col.
func (w window) col2im(s *scratch, dst []float64, channels, pixels, colCols int) {
	taps := w.size * w.size * w.size
	w.cols.Range(func(key octree.Key, column int) bool {
		if w.children {
			key <<= 3
		}
		s.nbrs = w.targets.AppendNeighborKeys(s.nbrs[:0], key, w.size)
		for el, nbr := range s.nbrs {
			if nbr == octree.InvalidKey {
				continue
			}
			index, _ := w.targets.Get(nbr)
			for ch := 0; ch < channels; ch++ {
				dst[ch*pixels+index] += s.col[(ch*taps+el)*colCols+column]
			}
		}
		return true
	})
}

func (c *Conv) window(n int) window {
	return window{
		cols:     c.source.Element(n).Keys,
		targets:  c.keys[n].Keys,
		children: c.config.Deconv,
		size:     c.config.FilterSize,
	}
}

// propagateKeys derives the output key sets from the source and checks that all
// pixel indices fit the given input width.
func (c *Conv) propagateKeys(inPixels int) error {
	batch := c.source.BatchSize()
	keys := make(LayerKeys, batch)
	for n := 0; n < batch; n++ {
		in := c.source.Element(n)
		if err := in.checkIndices(inPixels); err != nil {
			return fmt.Errorf("batch element %d: %w", n, err)
		}
		if !c.config.Deconv {
			keys[n] = in
			continue
		}
		out, err := ExpandChildren(in)
		if err != nil {
			return fmt.Errorf("batch element %d: %v", n, err)
		}
		keys[n] = out
	}
	c.keys = keys
	c.inPixels = inPixels
	if c.config.Deconv {
		c.outPixels = 8 * inPixels
	} else {
		c.outPixels = inPixels
	}
	return nil
}

// forEach runs fn on every batch element using up to Workers goroutines, each
// with its own scratch.
func (c *Conv) forEach(batch int, fn func(n int, s *scratch) error) error {
	if len(c.scratch) == 1 || batch <= 1 {
		for n := 0; n < batch; n++ {
			if err := fn(n, c.scratch[0]); err != nil {
				return err
			}
		}
		return nil
	}
	pool := make(chan *scratch, len(c.scratch))
	for _, s := range c.scratch {
		pool <- s
	}
	var g errgroup.Group
	g.SetLimit(len(c.scratch))
	for n := 0; n < batch; n++ {
		g.Go(func() error {
			s := <-pool
			defer func() { pool <- s }()
			return fn(n, s)
		})
	}
	return g.Wait()
}

func (c *Conv) checkInput(bottom *Features) error {
	if err := bottom.check(); err != nil {
		return err
	}
	if bottom.Channels != c.config.InputChannels {
		return fmt.Errorf("input has %d channels, layer expects %d: %w", bottom.Channels, c.config.InputChannels, ogn.ErrShapeMismatch)
	}
	if bottom.Batch != c.source.BatchSize() {
		return fmt.Errorf("input batch of %d with key source batch of %d: %w", bottom.Batch, c.source.BatchSize(), ogn.ErrShapeMismatch)
	}
	return nil
}

// Forward computes the layer output for bottom, a [batch, in, pixels] buffer whose
// pixels are indexed by the source key sets.
func (c *Conv) Forward(bottom *Features) (*Features, error) {
	if err := c.checkInput(bottom); err != nil {
		return nil, err
	}
	if err := c.propagateKeys(bottom.Pixels); err != nil {
		return nil, err
	}
	top := NewFeatures(bottom.Batch, c.config.OutputChannels, c.outPixels)
	if c.inPixels == 0 {
		return top, nil
	}
	// The column buffer has one row per weight column in both modes.
	_, colRows := c.Weights.Dims()
	colCols := c.inPixels
	bias := mat.NewVecDense(len(c.Bias), c.Bias)

	err := c.forEach(bottom.Batch, func(n int, s *scratch) error {
		w := c.window(n)
		s.reset(colRows*colCols, c.outPixels, c.keys[n].Len())
		colMat := mat.NewDense(colRows, colCols, s.col)
		topMat := top.matrix(n)
		if c.config.Deconv {
			colMat.Mul(c.Weights.T(), bottom.matrix(n))
			w.col2im(s, top.Element(n), c.config.OutputChannels, c.outPixels, colCols)
		} else {
			w.im2col(s, bottom.Element(n), c.config.InputChannels, c.inPixels, colCols)
			topMat.Mul(c.Weights, colMat)
		}
		topMat.RankOne(topMat, 1, bias, mat.NewVecDense(len(s.mult), s.mult))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return top, nil
}

// Backward returns the gradient with respect to bottom given the gradient of the
// output of the last Forward call, and adds the weight and bias gradients to
// WeightDiff and BiasDiff.
func (c *Conv) Backward(topDiff, bottom *Features) (*Features, error) {
	if c.keys == nil {
		return nil, fmt.Errorf("backward pass before any forward pass")
	}
	if err := c.checkInput(bottom); err != nil {
		return nil, err
	}
	if bottom.Pixels != c.inPixels || len(c.keys) != bottom.Batch {
		return nil, fmt.Errorf("input %s differs from last forward pass: %w", bottom, ogn.ErrShapeMismatch)
	}
	if err := topDiff.check(); err != nil {
		return nil, err
	}
	if topDiff.Batch != bottom.Batch || topDiff.Channels != c.config.OutputChannels || topDiff.Pixels != c.outPixels {
		return nil, fmt.Errorf("output gradient %s doesn't match layer output: %w", topDiff, ogn.ErrShapeMismatch)
	}
	bottomDiff := NewFeatures(bottom.Batch, bottom.Channels, bottom.Pixels)
	if c.inPixels == 0 {
		return bottomDiff, nil
	}
	_, colRows := c.Weights.Dims()
	colCols := c.inPixels

	err := c.forEach(bottom.Batch, func(n int, s *scratch) error {
		w := c.window(n)
		s.reset(colRows*colCols, c.outPixels, c.keys[n].Len())
		colMat := mat.NewDense(colRows, colCols, s.col)
		topDiffMat := topDiff.matrix(n)
		s.bgrad.MulVec(topDiffMat, mat.NewVecDense(len(s.mult), s.mult))
		if c.config.Deconv {
			w.im2col(s, topDiff.Element(n), c.config.OutputChannels, c.outPixels, colCols)
			s.wgrad.Mul(bottom.matrix(n), colMat.T())
			bottomDiff.matrix(n).Mul(c.Weights, colMat)
		} else {
			w.im2col(s, bottom.Element(n), c.config.InputChannels, c.inPixels, colCols)
			s.wgrad.Mul(topDiffMat, colMat.T())
			colMat.Mul(c.Weights.T(), topDiffMat)
			w.col2im(s, bottomDiff.Element(n), c.config.InputChannels, c.inPixels, colCols)
		}
		c.gradMu.Lock()
		c.WeightDiff.Add(c.WeightDiff, s.wgrad)
		for i := range c.BiasDiff {
			c.BiasDiff[i] += s.bgrad.AtVec(i)
		}
		c.gradMu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bottomDiff, nil
}
