package sparseconv

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/janelia-flyem/ogn/octree"
	"github.com/janelia-flyem/ogn/ogn"
	"gonum.org/v1/gonum/mat"
)

func fill(m *mat.Dense, v float64) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, v)
		}
	}
}

// clusteredElement returns n distinct cells from a 4^3 corner of level 3, so that
// neighborhoods overlap.
func clusteredElement(rng *rand.Rand, n int) ElementKeys {
	e := NewElementKeys()
	for _, i := range rng.Perm(64)[:n] {
		e.Add(octree.EncodeKey(i/16, (i/4)%4, i%4, 3), e.Len(), PropTrue)
	}
	return e
}

func TestConvIdentity(t *testing.T) {
	keys := LayerKeys{elementOf(
		octree.EncodeKey(1, 2, 3, 2),
		octree.EncodeKey(0, 0, 0, 2),
		octree.EncodeKey(3, 3, 3, 2),
	)}
	conv, err := NewConv(ConvConfig{FilterSize: 1, InputChannels: 1, OutputChannels: 1}, keys)
	if err != nil {
		t.Fatalf("NewConv: %v", err)
	}
	conv.Weights.Set(0, 0, 1)
	conv.Bias[0] = 0.5

	bottom := &Features{Batch: 1, Channels: 1, Pixels: 4, Data: []float64{1, 2, 3, 0}}
	top, err := conv.Forward(bottom)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	expected := []float64{1.5, 2.5, 3.5, 0}
	for i, v := range expected {
		if top.Data[i] != v {
			t.Errorf("pixel %d: expected %f, got %f", i, v, top.Data[i])
		}
	}
	if conv.Keys().Element(0).Len() != 3 {
		t.Errorf("convolution should keep its input keys")
	}
}

func TestConvNeighborSums(t *testing.T) {
	a := octree.EncodeKey(1, 1, 1, 3)
	b := octree.EncodeKey(2, 1, 1, 3)
	c := octree.EncodeKey(6, 6, 6, 3)
	keys := LayerKeys{elementOf(a, b, c)}
	conv, err := NewConv(ConvConfig{FilterSize: 3, InputChannels: 1, OutputChannels: 1}, keys)
	if err != nil {
		t.Fatalf("NewConv: %v", err)
	}
	fill(conv.Weights, 1)

	bottom := &Features{Batch: 1, Channels: 1, Pixels: 3, Data: []float64{1, 1, 1}}
	top, err := conv.Forward(bottom)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if top.Data[0] != 2 || top.Data[1] != 2 || top.Data[2] != 1 {
		t.Errorf("expected neighbor counts [2 2 1], got %v", top.Data)
	}

	// Every active cell scatters into its neighbors, so each cell receives one
	// contribution per active cell whose window covers it.
	topDiff := &Features{Batch: 1, Channels: 1, Pixels: 3, Data: []float64{1, 1, 1}}
	bottomDiff, err := conv.Backward(topDiff, bottom)
	if err != nil {
		t.Fatalf("Backward: %v", err)
	}
	if bottomDiff.Data[0] != 2 || bottomDiff.Data[1] != 2 || bottomDiff.Data[2] != 1 {
		t.Errorf("expected accumulated gradient [2 2 1], got %v", bottomDiff.Data)
	}
	if conv.BiasDiff[0] != 3 {
		t.Errorf("expected bias gradient 3, got %f", conv.BiasDiff[0])
	}
	for el := 0; el < 27; el++ {
		var expected float64
		switch el {
		case 13: // center tap
			expected = 3
		case 22, 4: // +x tap of a, -x tap of b
			expected = 1
		}
		if got := conv.WeightDiff.At(0, el); got != expected {
			t.Errorf("weight gradient of tap %d: expected %f, got %f", el, expected, got)
		}
	}

	// gradients accumulate over calls
	if _, err := conv.Backward(topDiff, bottom); err != nil {
		t.Fatalf("Backward: %v", err)
	}
	if conv.BiasDiff[0] != 6 {
		t.Errorf("expected accumulated bias gradient 6, got %f", conv.BiasDiff[0])
	}
	conv.ZeroGradients()
	if conv.BiasDiff[0] != 0 || conv.WeightDiff.At(0, 13) != 0 {
		t.Errorf("gradients not zeroed")
	}
}

func TestDeconvChildren(t *testing.T) {
	p0 := octree.EncodeKey(0, 0, 0, 1)
	p1 := octree.EncodeKey(1, 0, 0, 1)
	keys := LayerKeys{elementOf(p0, p1)}
	conv, err := NewConv(ConvConfig{FilterSize: 2, InputChannels: 1, OutputChannels: 1, Deconv: true}, keys)
	if err != nil {
		t.Fatalf("NewConv: %v", err)
	}
	for el := 0; el < 8; el++ {
		conv.Weights.Set(0, el, float64(el+1))
	}
	bottom := &Features{Batch: 1, Channels: 1, Pixels: 2, Data: []float64{2, 10}}
	top, err := conv.Forward(bottom)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if top.Pixels != 16 {
		t.Fatalf("expected 16 output pixels, got %d", top.Pixels)
	}
	out := conv.Keys().Element(0)
	if out.Len() != 16 {
		t.Fatalf("expected 16 output keys, got %d", out.Len())
	}
	for p, parent := range []octree.Key{p0, p1} {
		for el := 0; el < 8; el++ {
			dx, dy, dz := el/4, (el/2)%2, el%2
			child := parent.Child(dx | dy<<1 | dz<<2)
			index, found := out.Index(child)
			if !found || index != 8*p+(dx|dy<<1|dz<<2) {
				t.Fatalf("child %s of %s has index %d, %t", child, parent, index, found)
			}
			expected := bottom.Data[p] * float64(el+1)
			if top.Data[index] != expected {
				t.Errorf("child %s: expected %f, got %f", child, expected, top.Data[index])
			}
		}
	}

	topDiff := NewFeatures(1, 1, 16)
	for i := range topDiff.Data {
		topDiff.Data[i] = 1
	}
	bottomDiff, err := conv.Backward(topDiff, bottom)
	if err != nil {
		t.Fatalf("Backward: %v", err)
	}
	if bottomDiff.Data[0] != 36 || bottomDiff.Data[1] != 36 {
		t.Errorf("expected bottom gradient [36 36], got %v", bottomDiff.Data)
	}
	for el := 0; el < 8; el++ {
		if got := conv.WeightDiff.At(0, el); got != 12 {
			t.Errorf("weight gradient of tap %d: expected 12, got %f", el, got)
		}
	}
	if conv.BiasDiff[0] != 16 {
		t.Errorf("expected bias gradient 16, got %f", conv.BiasDiff[0])
	}
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func randomFeatures(rng *rand.Rand, batch, channels, pixels int) *Features {
	f := NewFeatures(batch, channels, pixels)
	for i := range f.Data {
		f.Data[i] = rng.NormFloat64()
	}
	return f
}

// The output is affine in inputs, weights and bias, so a unit step changes the
// projected loss by exactly the gradient.
func TestConvGradients(t *testing.T) {
	for _, deconv := range []bool{false, true} {
		rng := rand.New(rand.NewSource(5))
		keys := LayerKeys{clusteredElement(rng, 20), clusteredElement(rng, 12)}
		conv, err := NewConv(ConvConfig{FilterSize: 3, InputChannels: 2, OutputChannels: 3, Deconv: deconv}, keys)
		if err != nil {
			t.Fatalf("NewConv: %v", err)
		}
		conv.InitWeights(rng, 1)
		for i := range conv.Bias {
			conv.Bias[i] = rng.NormFloat64()
		}
		bottom := randomFeatures(rng, 2, 2, 20)
		top, err := conv.Forward(bottom)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		r := randomFeatures(rng, top.Batch, top.Channels, top.Pixels)
		loss := func() float64 {
			top, err := conv.Forward(bottom)
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}
			return dot(top.Data, r.Data)
		}
		base := loss()
		bottomDiff, err := conv.Backward(r, bottom)
		if err != nil {
			t.Fatalf("Backward: %v", err)
		}
		check := func(what string, i int, numeric, analytic float64) {
			if math.Abs(numeric-analytic) > 1e-8*(1+math.Abs(numeric)) {
				t.Errorf("deconv %t, %s %d: numeric gradient %g, backward %g", deconv, what, i, numeric, analytic)
			}
		}
		for i := range bottom.Data {
			bottom.Data[i]++
			check("input", i, loss()-base, bottomDiff.Data[i])
			bottom.Data[i]--
		}
		rows, cols := conv.Weights.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				w := conv.Weights.At(i, j)
				conv.Weights.Set(i, j, w+1)
				check("weight", i*cols+j, loss()-base, conv.WeightDiff.At(i, j))
				conv.Weights.Set(i, j, w)
			}
		}
		for i := range conv.Bias {
			conv.Bias[i]++
			check("bias", i, loss()-base, conv.BiasDiff[i])
			conv.Bias[i]--
		}
	}
}

func TestConvWorkers(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	keys := LayerKeys{clusteredElement(rng, 30), clusteredElement(rng, 5), clusteredElement(rng, 17)}
	bottom := randomFeatures(rng, 3, 2, 30)
	topDiff := randomFeatures(rng, 3, 4, 30)

	var tops, diffs []*Features
	var wdiffs []*mat.Dense
	for _, workers := range []int{1, 3} {
		conv, err := NewConv(ConvConfig{FilterSize: 3, InputChannels: 2, OutputChannels: 4, Workers: workers}, keys)
		if err != nil {
			t.Fatalf("NewConv: %v", err)
		}
		conv.InitWeights(rand.New(rand.NewSource(3)), 0.1)
		top, err := conv.Forward(bottom)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		diff, err := conv.Backward(topDiff, bottom)
		if err != nil {
			t.Fatalf("Backward: %v", err)
		}
		tops = append(tops, top)
		diffs = append(diffs, diff)
		wdiffs = append(wdiffs, conv.WeightDiff)
	}
	for i := range tops[0].Data {
		if tops[0].Data[i] != tops[1].Data[i] {
			t.Fatalf("forward output %d differs between 1 and 3 workers", i)
		}
	}
	for i := range diffs[0].Data {
		if math.Abs(diffs[0].Data[i]-diffs[1].Data[i]) > 1e-12 {
			t.Fatalf("input gradient %d differs between 1 and 3 workers", i)
		}
	}
	if !mat.EqualApprox(wdiffs[0], wdiffs[1], 1e-12) {
		t.Errorf("weight gradients differ between 1 and 3 workers")
	}
}

func TestConvErrors(t *testing.T) {
	keys := LayerKeys{elementOf(octree.EncodeKey(0, 0, 0, 1), octree.EncodeKey(1, 0, 0, 1))}
	if _, err := NewConv(ConvConfig{FilterSize: 0, InputChannels: 1, OutputChannels: 1}, keys); err == nil {
		t.Errorf("expected error for zero filter size")
	}
	if _, err := NewConv(ConvConfig{FilterSize: 3, InputChannels: 1, OutputChannels: 1}, nil); err == nil {
		t.Errorf("expected error for missing key source")
	}
	conv, err := NewConv(ConvConfig{FilterSize: 3, InputChannels: 2, OutputChannels: 1}, keys)
	if err != nil {
		t.Fatalf("NewConv: %v", err)
	}
	if _, err := conv.Backward(NewFeatures(1, 1, 2), NewFeatures(1, 2, 2)); err == nil {
		t.Errorf("expected error on backward before forward")
	}
	if _, err := conv.Forward(NewFeatures(1, 1, 2)); !errors.Is(err, ogn.ErrShapeMismatch) {
		t.Errorf("expected channel mismatch, got %v", err)
	}
	if _, err := conv.Forward(NewFeatures(2, 2, 2)); !errors.Is(err, ogn.ErrShapeMismatch) {
		t.Errorf("expected batch mismatch, got %v", err)
	}
	if _, err := conv.Forward(NewFeatures(1, 2, 1)); !errors.Is(err, ogn.ErrShapeMismatch) {
		t.Errorf("expected index out of range, got %v", err)
	}
	if _, err := conv.Forward(&Features{Batch: 1, Channels: 2, Pixels: 2, Data: make([]float64, 3)}); !errors.Is(err, ogn.ErrShapeMismatch) {
		t.Errorf("expected buffer size mismatch, got %v", err)
	}
	bottom := NewFeatures(1, 2, 2)
	if _, err := conv.Forward(bottom); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if _, err := conv.Backward(NewFeatures(1, 1, 3), bottom); !errors.Is(err, ogn.ErrShapeMismatch) {
		t.Errorf("expected gradient shape mismatch, got %v", err)
	}
}
