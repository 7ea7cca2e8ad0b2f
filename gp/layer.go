package gp

import (
	"errors"
	"math"

	"github.com/KacperWyrwal/residual-manifold-deep-gp/kern"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

var ErrNotPosDef = errors.New("gp: inducing covariance is not positive definite")

// jitter stabilizes Cholesky factorizations of kernel matrices.
const jitter = 1e-6

// Layer is a sparse variational GP with a whitened variational distribution
// q(u) = N(L_z m, L_z S S^T L_z^T), where L_z is the Cholesky factor of the
// covariance between the inducing points.
type Layer struct {
	kernel    kern.Kernel
	z         *mat.Dense // Inducing points, one per row.
	meanConst float64
	m         *mat.VecDense // Whitened variational mean.
	s         *mat.TriDense // Whitened variational covariance factor.
	lz        *mat.TriDense // Cholesky factor of K_zz.
}

// NewLayer builds a layer around the given kernel and inducing points. The
// whitened variational distribution starts at N(0, initVariance * I).
func NewLayer(kernel kern.Kernel, inducing *mat.Dense, meanConst, initVariance float64) (*Layer, error) {
	nz, _ := inducing.Dims()
	kzz := kernel.Matrix(inducing, nil)
	for i := 0; i < nz; i++ {
		kzz.Set(i, i, kzz.At(i, i)+jitter)
	}
	var chol mat.Cholesky
	if !chol.Factorize(denseToSym(kzz)) {
		return nil, ErrNotPosDef
	}
	lz := mat.NewTriDense(nz, mat.Lower, nil)
	chol.LTo(lz)

	s := mat.NewTriDense(nz, mat.Lower, nil)
	dev := math.Sqrt(initVariance)
	for i := 0; i < nz; i++ {
		s.SetTri(i, i, dev)
	}
	return &Layer{
		kernel:    kernel,
		z:         mat.DenseCopyOf(inducing),
		meanConst: meanConst,
		m:         mat.NewVecDense(nz, nil),
		s:         s,
		lz:        lz,
	}, nil
}

func (l *Layer) Kernel() kern.Kernel {
	return l.kernel
}

func (l *Layer) NumInducing() int {
	n, _ := l.z.Dims()
	return n
}

// VariationalParams exposes the whitened mean and covariance factor for
// optimization.
func (l *Layer) VariationalParams() (*mat.VecDense, *mat.TriDense) {
	return l.m, l.s
}

// Posterior evaluates the predictive distribution at the rows of x with a
// full covariance matrix.
func (l *Layer) Posterior(x *mat.Dense) *Posterior {
	n, _ := x.Dims()
	a := l.whiten(l.kernel.Matrix(l.z, x)) // a = L_z^{-1} K_zx

	// mean = a^T m + c
	mean := mat.NewVecDense(n, nil)
	mean.MulVec(a.T(), l.m)
	for i := 0; i < n; i++ {
		mean.SetVec(i, mean.AtVec(i)+l.meanConst)
	}

	// cov = K_xx - a^T a + (a^T s) (a^T s)^T
	var sa, cov mat.Dense
	sa.Mul(a.T(), l.s)
	cov.Mul(a.T(), a)
	kxx := l.kernel.Matrix(x, nil)
	cov.Sub(kxx, &cov)
	var corr mat.Dense
	corr.Mul(&sa, sa.T())
	cov.Add(&cov, &corr)
	return &Posterior{Mean: mean, Cov: &cov}
}

// PosteriorDiag evaluates the predictive distribution at the rows of x,
// keeping only the marginal variances.
func (l *Layer) PosteriorDiag(x *mat.Dense) *Posterior {
	n, _ := x.Dims()
	a := l.whiten(l.kernel.Matrix(l.z, x))

	mean := mat.NewVecDense(n, nil)
	mean.MulVec(a.T(), l.m)

	var sa mat.Dense
	sa.Mul(a.T(), l.s)
	kdiag := l.kernel.Diag(x)
	variance := mat.NewVecDense(n, nil)
	nz := l.NumInducing()
	for i := 0; i < n; i++ {
		v := kdiag[i]
		for j := 0; j < nz; j++ {
			aji := a.At(j, i)
			sij := sa.At(i, j)
			v += sij*sij - aji*aji
		}
		// Guard against round-off pushing tiny variances negative.
		if v < jitter {
			v = jitter
		}
		variance.SetVec(i, v)
		mean.SetVec(i, mean.AtVec(i)+l.meanConst)
	}
	return &Posterior{Mean: mean, Var: variance}
}

// KL is the divergence between the whitened variational distribution and its
// whitened prior N(0, I),
//
//	KL = 1/2 (||m||^2 + ||S||_F^2 - 2 sum_i log S_ii - M)
func (l *Layer) KL() float64 {
	nz := l.NumInducing()
	kl := -float64(nz)
	for i := 0; i < nz; i++ {
		kl += l.m.AtVec(i) * l.m.AtVec(i)
		for j := 0; j <= i; j++ {
			sij := l.s.At(i, j)
			kl += sij * sij
		}
		kl -= 2 * math.Log(l.s.At(i, i))
	}
	return kl / 2
}

// whiten solves L_z a = b in place and returns b.
func (l *Layer) whiten(b *mat.Dense) *mat.Dense {
	blas64.Trsm(blas.Left, blas.NoTrans, 1.0, l.lz.RawTriangular(), b.RawMatrix())
	return b
}

func denseToSym(a *mat.Dense) *mat.SymDense {
	n, _ := a.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (a.At(i, j)+a.At(j, i))/2)
		}
	}
	return sym
}
