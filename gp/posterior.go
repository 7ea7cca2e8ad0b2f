package gp

import (
	"github.com/KacperWyrwal/residual-manifold-deep-gp/utils"
	"gonum.org/v1/gonum/mat"
)

// Posterior is a Gaussian predictive distribution over function values.
// Exactly one of Cov (full mode) and Var (diagonal mode) is set.
type Posterior struct {
	Mean *mat.VecDense
	Cov  *mat.Dense
	Var  *mat.VecDense
}

func (p *Posterior) Len() int {
	return p.Mean.Len()
}

// Variance returns the marginal variance of the i-th function value in
// either mode.
func (p *Posterior) Variance(i int) float64 {
	if p.Var != nil {
		return p.Var.AtVec(i)
	}
	return p.Cov.At(i, i)
}

// GaussianLikelihood is an observation model y = f + eps with homoscedastic
// Gaussian noise.
type GaussianLikelihood struct {
	Variance float64
}

// ExpectedLogProb is the variational expectation E_q[log p(y | f)] under a
// marginal q(f) = N(mean, variance).
func (lik GaussianLikelihood) ExpectedLogProb(y, mean, variance float64) float64 {
	return utils.NormalLogPdf(y, mean, lik.Variance) - variance/(2*lik.Variance)
}

// Elbo is the evidence lower bound of a single-layer model on the given
// targets, scaled to numData observations.
func Elbo(post *Posterior, lik GaussianLikelihood, targets []float64, kl float64, numData int) float64 {
	var fit float64
	for i, y := range targets {
		fit += lik.ExpectedLogProb(y, post.Mean.AtVec(i), post.Variance(i))
	}
	scale := float64(numData) / float64(len(targets))
	return scale*fit - kl
}
