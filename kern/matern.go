package kern

import (
	"math"

	"github.com/KacperWyrwal/residual-manifold-deep-gp/spaces"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	sphereMatern *SphereMatern
	_            Kernel = sphereMatern // Check that SphereMatern respects the Kernel interface.
)

// SphereMatern is the Matern covariance on a hypersphere, represented by a
// truncated expansion in the Laplace-Beltrami eigenfunctions,
//
//	k(x, y) = sum_l phi(lambda_l) sum_k Y_{l,k}(x) Y_{l,k}(y)
//
// where phi is the Matern spectral density. A smoothness of +Inf selects the
// heat (squared-exponential) spectrum. With normalization enabled the
// spectrum is rescaled so that k(x, x) = 1.
type SphereMatern struct {
	space     *spaces.Hypersphere
	nu        float64
	lscale    float64
	numLevels int
	weights   []float64 // Per-level spectral weights, addition theorem folded in.
}

func NewSphereMatern(space *spaces.Hypersphere, nu, lscale float64, numLevels int, normalize bool) *SphereMatern {
	if numLevels <= 0 {
		panic("kern: number of levels must be positive")
	}
	if lscale <= 0 {
		panic("kern: lengthscale must be positive")
	}
	k := &SphereMatern{
		space:     space,
		nu:        nu,
		lscale:    lscale,
		numLevels: numLevels,
		weights:   make([]float64, numLevels),
	}
	// weights[l] = phi(lambda_l) * N(d, l) / omega_d
	for l := 0; l < numLevels; l++ {
		k.weights[l] = k.spectrum(space.Eigenvalue(l)) *
			float64(space.NumHarmonics(l)) / space.SurfaceArea()
	}
	if normalize {
		// C_l(1) = 1, so k(x, x) is the plain sum of the weights.
		var k0 float64
		for _, w := range k.weights {
			k0 += w
		}
		for l := range k.weights {
			k.weights[l] /= k0
		}
	}
	return k
}

// spectrum is the Matern spectral density
//
//	phi(lambda) = (2 nu / kappa^2 + lambda)^(-nu - d/2)
//
// degenerating to the heat spectrum exp(-kappa^2 lambda / 2) as nu -> inf.
func (k *SphereMatern) spectrum(lambda float64) float64 {
	if math.IsInf(k.nu, 1) {
		return math.Exp(-k.lscale * k.lscale * lambda / 2)
	}
	d := float64(k.space.Dim())
	return math.Pow(2*k.nu/(k.lscale*k.lscale)+lambda, -k.nu-d/2)
}

func (k *SphereMatern) Space() *spaces.Hypersphere {
	return k.space
}

func (k *SphereMatern) Nu() float64 {
	return k.nu
}

func (k *SphereMatern) Lengthscale() float64 {
	return k.lscale
}

func (k *SphereMatern) NumLevels() int {
	return k.numLevels
}

func (k *SphereMatern) Dim() int {
	return k.space.AmbientDim()
}

// kappa evaluates the expansion at inner product t = <x, y>.
func (k *SphereMatern) kappa(t float64) float64 {
	// Clamp against floating-point drift off the sphere.
	if t > 1 {
		t = 1
	} else if t < -1 {
		t = -1
	}
	alpha := (float64(k.space.Dim()) - 1) / 2
	var res, prev1, prev2, cAtOne float64
	cAtOne = 1.0
	for l := 0; l < k.numLevels; l++ {
		var c float64
		switch l {
		case 0:
			c = 1
		case 1:
			c = 2 * alpha * t
			cAtOne = 2 * alpha
		default:
			lf := float64(l)
			c = (2*(lf+alpha-1)*t*prev1 - (lf+2*alpha-2)*prev2) / lf
			cAtOne = cAtOne * (lf + 2*alpha - 1) / lf
		}
		res += k.weights[l] * c / cAtOne
		prev2, prev1 = prev1, c
	}
	return res
}

func (k *SphereMatern) Matrix(x1, x2 *mat.Dense) *mat.Dense {
	if x2 == nil {
		x2 = x1
	}
	checkDims(k, x1, x2)
	n, _ := x1.Dims()
	m, _ := x2.Dims()
	out := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		xi := x1.RawRowView(i)
		for j := 0; j < m; j++ {
			out.Set(i, j, k.kappa(floats.Dot(xi, x2.RawRowView(j))))
		}
	}
	return out
}

func (k *SphereMatern) Diag(x *mat.Dense) []float64 {
	checkDims(k, x)
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		xi := x.RawRowView(i)
		out[i] = k.kappa(floats.Dot(xi, xi))
	}
	return out
}
