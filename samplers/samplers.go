package samplers

import (
	"errors"
	"math"

	"github.com/KacperWyrwal/residual-manifold-deep-gp/gp"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrNoCovariance = errors.New("samplers: posterior has no full covariance")

// Sampler draws realizations of each marginal of a posterior independently
// (the elementwise strategy used between deep GP layers). The result has one
// sample path per row.
type Sampler interface {
	Elementwise(post *gp.Posterior, numSamples int) *mat.Dense
}

// Naive draws every value with its own one-dimensional sampler, looping over
// sample paths and points.
type Naive struct {
	src rand.Source
}

func NewNaive(seed uint64) *Naive {
	return &Naive{src: rand.NewSource(seed)}
}

func (s *Naive) Elementwise(post *gp.Posterior, numSamples int) *mat.Dense {
	n := post.Len()
	out := mat.NewDense(numSamples, n, nil)
	for i := 0; i < numSamples; i++ {
		for j := 0; j < n; j++ {
			normal := distuv.Normal{
				Mu:    post.Mean.AtVec(j),
				Sigma: math.Sqrt(post.Variance(j)),
				Src:   s.src,
			}
			out.Set(i, j, normal.Rand())
		}
	}
	return out
}

// Vectorized draws all standard normal variates in one pass and rescales
// whole sample paths at a time.
type Vectorized struct {
	normal distuv.Normal
}

func NewVectorized(seed uint64) *Vectorized {
	return &Vectorized{normal: distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)}}
}

func (s *Vectorized) Elementwise(post *gp.Posterior, numSamples int) *mat.Dense {
	n := post.Len()
	dev := make([]float64, n)
	for j := 0; j < n; j++ {
		dev[j] = math.Sqrt(post.Variance(j))
	}
	out := mat.NewDense(numSamples, n, nil)
	data := out.RawMatrix().Data
	for i := range data {
		data[i] = s.normal.Rand()
	}
	for i := 0; i < numSamples; i++ {
		row := out.RawRowView(i)
		for j := 0; j < n; j++ {
			row[j] = post.Mean.AtVec(j) + dev[j]*row[j]
		}
	}
	return out
}

// Multivariate draws correlated sample paths from a full-covariance
// posterior via its Cholesky factor.
func Multivariate(src rand.Source, post *gp.Posterior, numSamples int) (*mat.Dense, error) {
	if post.Cov == nil {
		return nil, ErrNoCovariance
	}
	n := post.Len()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (post.Cov.At(i, j) + post.Cov.At(j, i)) / 2
			if i == j {
				v += 1e-6
			}
			sym.SetSym(i, j, v)
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return nil, errors.New("samplers: covariance is not positive definite")
	}
	var l mat.TriDense
	chol.LTo(&l)

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	out := mat.NewDense(numSamples, n, nil)
	z := mat.NewVecDense(n, nil)
	var f mat.VecDense
	for i := 0; i < numSamples; i++ {
		for j := 0; j < n; j++ {
			z.SetVec(j, normal.Rand())
		}
		f.MulVec(&l, z)
		row := out.RawRowView(i)
		for j := 0; j < n; j++ {
			row[j] = post.Mean.AtVec(j) + f.AtVec(j)
		}
	}
	return out, nil
}
