package kern

import (
	"gonum.org/v1/gonum/mat"
)

var (
	scale *Scale
	_     Kernel = scale // Check that Scale respects the Kernel interface.
)

// Scale multiplies a base kernel by a learned outputscale.
type Scale struct {
	base        Kernel
	outputscale float64
}

func NewScale(base Kernel, outputscale float64) *Scale {
	if outputscale <= 0 {
		panic("kern: outputscale must be positive")
	}
	return &Scale{base: base, outputscale: outputscale}
}

func (k *Scale) Base() Kernel {
	return k.base
}

func (k *Scale) Outputscale() float64 {
	return k.outputscale
}

func (k *Scale) SetOutputscale(s float64) {
	if s <= 0 {
		panic("kern: outputscale must be positive")
	}
	k.outputscale = s
}

func (k *Scale) Dim() int {
	return k.base.Dim()
}

func (k *Scale) Matrix(x1, x2 *mat.Dense) *mat.Dense {
	out := k.base.Matrix(x1, x2)
	out.Scale(k.outputscale, out)
	return out
}

func (k *Scale) Diag(x *mat.Dense) []float64 {
	out := k.base.Diag(x)
	for i := range out {
		out[i] *= k.outputscale
	}
	return out
}
