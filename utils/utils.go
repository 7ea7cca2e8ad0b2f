package utils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Concatenate multiple vectors.
func ConcatVecs(size int, vecs ...*mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(size, nil)
	offset := 0
	var slice *mat.VecDense
	for _, vec := range vecs {
		slice = out.SliceVec(offset, size).(*mat.VecDense)
		slice.CopyVec(vec)
		offset += vec.Len()
	}
	return out
}

// Make a block diagonal matrix.
func BlockDiag(size int, mats ...mat.Matrix) *mat.Dense {
	out := mat.NewDense(size, size, nil)
	offset := 0
	var r int
	var slice mat.Matrix
	for _, matrix := range mats {
		slice = out.Slice(offset, size, offset, size)
		slice.(*mat.Dense).Copy(matrix)
		r, _ = matrix.Dims()
		offset += r
	}
	return out
}

// Log density of a univariate Gaussian.
func NormalLogPdf(x, mean, variance float64) float64 {
	d := x - mean
	return -0.5 * (math.Log(2*math.Pi*variance) + d*d/variance)
}
