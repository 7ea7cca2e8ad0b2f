package nd

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var ErrShape = errors.New("nd: shape mismatch")
var ErrBroadcast = errors.New("nd: shapes not broadcastable")

// Array is a dense N-d array of float64, row-major.
type Array struct {
	shape []int
	data  []float64
}

func New(shape ...int) *Array {
	size := 1
	for i, dim := range shape {
		if dim <= 0 {
			panic(fmt.Errorf("%w: shape[%d] = %d", ErrShape, i, dim))
		}
		size *= dim
	}
	cp := make([]int, len(shape))
	copy(cp, shape)
	return &Array{shape: cp, data: make([]float64, size)}
}

// NewWithData wraps data without copying. len(data) must match the shape.
func NewWithData(data []float64, shape ...int) *Array {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	if len(data) != size {
		panic(fmt.Errorf("%w: %d elements for shape %v", ErrShape, len(data), shape))
	}
	cp := make([]int, len(shape))
	copy(cp, shape)
	return &Array{shape: cp, data: data}
}

func (a *Array) NDim() int {
	return len(a.shape)
}

func (a *Array) Shape() []int {
	cp := make([]int, len(a.shape))
	copy(cp, a.shape)
	return cp
}

func (a *Array) Size() int {
	return len(a.data)
}

func (a *Array) Data() []float64 {
	return a.data
}

// Dim returns the size of axis i; negative i counts from the end.
func (a *Array) Dim(i int) int {
	if i < 0 {
		i += len(a.shape)
	}
	return a.shape[i]
}

// Matrix views the trailing two axes at a flat leading index as a gonum
// matrix backed by the array's data.
func (a *Array) Matrix(lead int) *mat.Dense {
	n := len(a.shape)
	if n < 2 {
		panic(fmt.Errorf("%w: need at least 2 axes, got %d", ErrShape, n))
	}
	r, c := a.shape[n-2], a.shape[n-1]
	off := lead * r * c
	return mat.NewDense(r, c, a.data[off:off+r*c])
}

// Row views the trailing axis at a flat leading index.
func (a *Array) Row(lead int) []float64 {
	c := a.shape[len(a.shape)-1]
	return a.data[lead*c : (lead+1)*c]
}

// LeadSize is the product of all axes except the trailing k.
func (a *Array) LeadSize(k int) int {
	size := 1
	for _, dim := range a.shape[:len(a.shape)-k] {
		size *= dim
	}
	return size
}

// BroadcastShapes broadcasts two leading shapes against each other using
// the usual right-aligned rules (missing axes count as 1).
func BroadcastShapes(s1, s2 []int) []int {
	n := len(s1)
	if len(s2) > n {
		n = len(s2)
	}
	out := make([]int, n)
	for i := 1; i <= n; i++ {
		d1, d2 := 1, 1
		if i <= len(s1) {
			d1 = s1[len(s1)-i]
		}
		if i <= len(s2) {
			d2 = s2[len(s2)-i]
		}
		switch {
		case d1 == d2:
			out[n-i] = d1
		case d1 == 1:
			out[n-i] = d2
		case d2 == 1:
			out[n-i] = d1
		default:
			panic(fmt.Errorf("%w: %v vs %v", ErrBroadcast, s1, s2))
		}
	}
	return out
}

// BroadcastIndex maps a flat index into the broadcast shape back to a flat
// index into an array of the given (leading) shape.
func BroadcastIndex(flat int, bcast, shape []int) int {
	idx := 0
	stride := 1
	for i := 1; i <= len(bcast); i++ {
		dim := bcast[len(bcast)-i]
		coord := flat % dim
		flat /= dim
		if i <= len(shape) {
			d := shape[len(shape)-i]
			if d == 1 {
				coord = 0
			}
			idx += coord * stride
			stride *= d
		}
	}
	return idx
}
