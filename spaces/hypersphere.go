package spaces

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrDimension = errors.New("spaces: hypersphere dimension must be at least 2")
var ErrNoGrid = errors.New("spaces: uniform grid only defined on the 2-sphere")

// Hypersphere is the d-dimensional unit sphere embedded in R^(d+1).
type Hypersphere struct {
	dim int
}

func NewHypersphere(dim int) (*Hypersphere, error) {
	if dim < 2 {
		return nil, ErrDimension
	}
	return &Hypersphere{dim: dim}, nil
}

func (s *Hypersphere) Dim() int {
	return s.dim
}

// AmbientDim is the dimension of the embedding Euclidean space.
func (s *Hypersphere) AmbientDim() int {
	return s.dim + 1
}

// Eigenvalue of the Laplace-Beltrami operator at the given level,
// :math:`\lambda_\ell = \ell (\ell + d - 1)`.
func (s *Hypersphere) Eigenvalue(level int) float64 {
	l := float64(level)
	return l * (l + float64(s.dim) - 1)
}

// NumHarmonics is the dimension of the eigenspace at the given level,
// i.e. the number of spherical harmonics of degree `level`.
func (s *Hypersphere) NumHarmonics(level int) int {
	if level == 0 {
		return 1
	}
	d := s.dim
	// (2l + d - 1) / l * binom(l + d - 2, l - 1)
	num := float64(2*level+d-1) / float64(level)
	return int(math.Round(num * binom(level+d-2, level-1)))
}

// SurfaceArea of the unit d-sphere.
func (s *Hypersphere) SurfaceArea() float64 {
	d := float64(s.dim)
	return 2 * math.Pow(math.Pi, (d+1)/2) / math.Gamma((d+1)/2)
}

// AdditionTheorem evaluates, for each requested level, the summed product of
// the level's harmonics at a pair of points with inner product t:
//
//	sum_k Y_{l,k}(x) Y_{l,k}(y) = N(d, l) / omega_d * C_l(t)
//
// where C_l is the Gegenbauer polynomial with parameter (d-1)/2 normalized
// to C_l(1) = 1. Results for levels 0..numLevels-1 are written into out.
func (s *Hypersphere) AdditionTheorem(t float64, out []float64) {
	alpha := (float64(s.dim) - 1) / 2
	invArea := 1 / s.SurfaceArea()
	var prev2, prev1 float64
	for l := range out {
		c := gegenbauerStep(l, alpha, t, prev1, prev2)
		prev2, prev1 = prev1, c
		out[l] = float64(s.NumHarmonics(l)) * invArea * c / gegenbauerAtOne(l, alpha)
	}
}

// RandomUniform draws n points uniformly on the sphere, as rows of an
// n x (d+1) matrix.
func (s *Hypersphere) RandomUniform(src rand.Source, n int) *mat.Dense {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	out := mat.NewDense(n, s.AmbientDim(), nil)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] = normal.Rand()
		}
		floats.Scale(1/floats.Norm(row, 2), row)
	}
	return out
}

// UniformGrid places n near-uniformly spread points on the 2-sphere using
// the Fibonacci lattice. Only defined for dim = 2.
func (s *Hypersphere) UniformGrid(n int) (*mat.Dense, error) {
	if s.dim != 2 {
		return nil, ErrNoGrid
	}
	golden := math.Pi * (1 + math.Sqrt(5))
	out := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		z := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - z*z)
		theta := golden * (float64(i) + 0.5)
		out.Set(i, 0, r*math.Cos(theta))
		out.Set(i, 1, r*math.Sin(theta))
		out.Set(i, 2, z)
	}
	return out, nil
}

// ToTangent projects an ambient vector v onto the tangent space at x,
// :math:`v - (v \cdot x) x`. The result is written in place into v.
func (s *Hypersphere) ToTangent(x, v []float64) {
	dot := floats.Dot(v, x)
	floats.AddScaled(v, -dot, x)
}

// ExpMap follows the geodesic from x with initial velocity v (tangent at x)
// for unit time and writes the end point into out.
func (s *Hypersphere) ExpMap(x, v, out []float64) {
	nrm := floats.Norm(v, 2)
	if nrm < 1e-12 {
		copy(out, x)
		return
	}
	c, sn := math.Cos(nrm), math.Sin(nrm)/nrm
	for i := range out {
		out[i] = c*x[i] + sn*v[i]
	}
}

// Project scales an ambient vector onto the sphere in place.
func (s *Hypersphere) Project(v []float64) {
	floats.Scale(1/floats.Norm(v, 2), v)
}

func binom(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	res := 1.0
	for i := 1; i <= k; i++ {
		res *= float64(n-k+i) / float64(i)
	}
	return res
}

// gegenbauerStep advances the Gegenbauer three-term recurrence
//
//	l C_l = 2 (l + a - 1) t C_{l-1} - (l + 2a - 2) C_{l-2}
//
// given the two previous values.
func gegenbauerStep(l int, alpha, t, prev1, prev2 float64) float64 {
	switch l {
	case 0:
		return 1
	case 1:
		return 2 * alpha * t
	}
	lf := float64(l)
	return (2*(lf+alpha-1)*t*prev1 - (lf+2*alpha-2)*prev2) / lf
}

// gegenbauerAtOne is C_l(1) = binom(l + 2a - 1, l).
func gegenbauerAtOne(l int, alpha float64) float64 {
	res := 1.0
	for i := 1; i <= l; i++ {
		res *= (float64(i) + 2*alpha - 1) / float64(i)
	}
	return res
}
