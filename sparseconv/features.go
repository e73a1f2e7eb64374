package sparseconv

import (
	"fmt"

	"github.com/janelia-flyem/ogn/ogn"
	"gonum.org/v1/gonum/mat"
)

// Features is a dense [batch][channel][pixel] buffer.
type Features struct {
	Batch, Channels, Pixels int
	Data                    []float64
}

// NewFeatures returns a zeroed feature buffer.
func NewFeatures(batch, channels, pixels int) *Features {
	return &Features{
		Batch:    batch,
		Channels: channels,
		Pixels:   pixels,
		Data:     make([]float64, batch*channels*pixels),
	}
}

func (f *Features) String() string {
	return fmt.Sprintf("features [%d x %d x %d]", f.Batch, f.Channels, f.Pixels)
}

// Element returns the [channel][pixel] slice of batch element n.
func (f *Features) Element(n int) []float64 {
	size := f.Channels * f.Pixels
	return f.Data[n*size : (n+1)*size]
}

// At returns the value for batch element n, channel ch and pixel px.
func (f *Features) At(n, ch, px int) float64 {
	return f.Data[(n*f.Channels+ch)*f.Pixels+px]
}

// Set stores the value for batch element n, channel ch and pixel px.
func (f *Features) Set(n, ch, px int, v float64) {
	f.Data[(n*f.Channels+ch)*f.Pixels+px] = v
}

func (f *Features) check() error {
	if f.Batch < 0 || f.Channels < 0 || f.Pixels < 0 {
		return fmt.Errorf("negative dimension in %s", f)
	}
	if len(f.Data) != f.Batch*f.Channels*f.Pixels {
		return fmt.Errorf("%s holds %d values: %w", f, len(f.Data), ogn.ErrShapeMismatch)
	}
	return nil
}

// matrix wraps element n as a channels x pixels matrix sharing the buffer.
// Both dimensions must be nonzero.
func (f *Features) matrix(n int) *mat.Dense {
	return mat.NewDense(f.Channels, f.Pixels, f.Element(n))
}
