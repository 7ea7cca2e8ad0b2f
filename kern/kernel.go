package kern

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var ErrDimension = errors.New("kern: input dimension does not match kernel")
var ErrBatchShape = errors.New("kern: batch axis does not match kernel batch shape")

// Kernel is a covariance function over points in an ambient Euclidean space.
type Kernel interface {
	// Dim is the ambient dimension of the kernel's inputs.
	Dim() int

	// Matrix evaluates the covariances between the rows of x1 and x2,
	// :math:`K_{ij} = k(x_i, y_j)`. A nil x2 means x2 = x1.
	Matrix(x1, x2 *mat.Dense) *mat.Dense

	// Diag evaluates the self-covariances k(x_i, x_i) of the rows of x.
	Diag(x *mat.Dense) []float64
}

func checkDims(k Kernel, xs ...*mat.Dense) {
	for _, x := range xs {
		if _, c := x.Dims(); c != k.Dim() {
			panic(ErrDimension)
		}
	}
}
