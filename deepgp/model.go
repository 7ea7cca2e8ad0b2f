package deepgp

import (
	"github.com/KacperWyrwal/residual-manifold-deep-gp/gp"
	"github.com/KacperWyrwal/residual-manifold-deep-gp/kern"
	"github.com/KacperWyrwal/residual-manifold-deep-gp/samplers"
	"github.com/KacperWyrwal/residual-manifold-deep-gp/spaces"
	"github.com/KacperWyrwal/residual-manifold-deep-gp/utils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Defaults follow the sparse variational deep GP literature: hidden layers
// start close to deterministic, the output layer at unit variance.
const (
	DefaultLikelihoodVariance = 1.0
	DefaultLengthscale        = 1.0
	DefaultNu                 = 1.5
	InnerLayerVariance        = 1e-5
	OutputLayerVariance       = 1.0
)

// Config collects the model hyperparameters.
type Config struct {
	NumHidden          int
	NumInducing        int
	NumLevels          int     // Truncation of the kernel eigenfunction expansion.
	Nu                 float64 // Smoothness; +Inf selects the heat kernel.
	Lengthscale        float64
	OutputscaleMean    float64 // Outputscale of the hidden layers' kernels.
	LikelihoodVariance float64
	Seed               uint64
}

func (c Config) withDefaults() Config {
	if c.NumInducing == 0 {
		c.NumInducing = 60
	}
	if c.NumLevels == 0 {
		c.NumLevels = 20
	}
	if c.Nu == 0 {
		c.Nu = DefaultNu
	}
	if c.Lengthscale == 0 {
		c.Lengthscale = DefaultLengthscale
	}
	if c.OutputscaleMean == 0 {
		c.OutputscaleMean = 1.0
	}
	if c.LikelihoodVariance == 0 {
		c.LikelihoodVariance = DefaultLikelihoodVariance
	}
	return c
}

// HiddenLayer maps point sets on the manifold to new point sets: a GP per
// ambient coordinate produces a vector field which is projected onto the
// tangent space at each input and followed back onto the manifold by the
// exponential map.
type HiddenLayer struct {
	space   *spaces.Hypersphere
	outputs []*gp.Layer // One GP per ambient coordinate.
}

// Posterior is the joint distribution of all coordinate GPs at the rows of
// x: means concatenated coordinate-major, covariance block-diagonal across
// coordinates.
func (h *HiddenLayer) Posterior(x *mat.Dense) *gp.Posterior {
	n, _ := x.Dims()
	size := len(h.outputs) * n
	means := make([]*mat.VecDense, len(h.outputs))
	covs := make([]mat.Matrix, len(h.outputs))
	for c, layer := range h.outputs {
		post := layer.Posterior(x)
		means[c] = post.Mean
		covs[c] = post.Cov
	}
	return &gp.Posterior{
		Mean: utils.ConcatVecs(size, means...),
		Cov:  utils.BlockDiag(size, covs...),
	}
}

// step evaluates the layer posterior at x and draws numPaths realizations,
// each mapped to a new point set on the manifold.
func (h *HiddenLayer) step(x *mat.Dense, sampler samplers.Sampler, numPaths int) []*mat.Dense {
	n, dim := x.Dims()
	draws := make([]*mat.Dense, len(h.outputs))
	for c, layer := range h.outputs {
		draws[c] = sampler.Elementwise(layer.PosteriorDiag(x), numPaths)
	}
	out := make([]*mat.Dense, numPaths)
	v := make([]float64, dim)
	for p := 0; p < numPaths; p++ {
		y := mat.NewDense(n, dim, nil)
		for i := 0; i < n; i++ {
			xi := x.RawRowView(i)
			for c := range v {
				v[c] = draws[c].At(p, i)
			}
			h.space.ToTangent(xi, v)
			h.space.ExpMap(xi, v, y.RawRowView(i))
		}
		out[p] = y
	}
	return out
}

// Model is a deep GP on the hypersphere: a chain of residual hidden layers
// followed by a scalar-output GP layer.
type Model struct {
	space      *spaces.Hypersphere
	hidden     []*HiddenLayer
	output     *gp.Layer
	Likelihood gp.GaussianLikelihood
}

func NewModel(space *spaces.Hypersphere, cfg Config) (*Model, error) {
	cfg = cfg.withDefaults()
	inducing, err := inducingPoints(space, cfg)
	if err != nil {
		return nil, err
	}
	hidden := make([]*HiddenLayer, cfg.NumHidden)
	for i := range hidden {
		outputs := make([]*gp.Layer, space.AmbientDim())
		for c := range outputs {
			k := kern.NewScale(
				kern.NewSphereMatern(space, cfg.Nu, cfg.Lengthscale, cfg.NumLevels, true),
				cfg.OutputscaleMean)
			layer, err := gp.NewLayer(k, inducing, 0, InnerLayerVariance)
			if err != nil {
				return nil, err
			}
			outputs[c] = layer
		}
		hidden[i] = &HiddenLayer{space: space, outputs: outputs}
	}
	k := kern.NewScale(
		kern.NewSphereMatern(space, cfg.Nu, cfg.Lengthscale, cfg.NumLevels, true),
		cfg.OutputscaleMean)
	output, err := gp.NewLayer(k, inducing, 0, OutputLayerVariance)
	if err != nil {
		return nil, err
	}
	return &Model{
		space:      space,
		hidden:     hidden,
		output:     output,
		Likelihood: gp.GaussianLikelihood{Variance: cfg.LikelihoodVariance},
	}, nil
}

func inducingPoints(space *spaces.Hypersphere, cfg Config) (*mat.Dense, error) {
	if space.Dim() == 2 {
		return space.UniformGrid(cfg.NumInducing)
	}
	return space.RandomUniform(rand.NewSource(cfg.Seed), cfg.NumInducing), nil
}

func (m *Model) NumHidden() int {
	return len(m.hidden)
}

func (m *Model) OutputLayer() *gp.Layer {
	return m.output
}

// Forward propagates numSamples independent sample paths through the hidden
// layers one at a time and returns the output-layer posterior of each path.
func (m *Model) Forward(x *mat.Dense, sampler samplers.Sampler, numSamples int) []*gp.Posterior {
	states := make([]*mat.Dense, numSamples)
	for p := range states {
		states[p] = x
	}
	for _, h := range m.hidden {
		for p, state := range states {
			states[p] = h.step(state, sampler, 1)[0]
		}
	}
	posts := make([]*gp.Posterior, numSamples)
	for p, state := range states {
		posts[p] = m.output.PosteriorDiag(state)
	}
	return posts
}

// ForwardVectorized stacks all sample paths into a single point set so each
// layer evaluates its posterior once, then returns the output-layer
// posterior over the stacked points (numSamples * n values).
func (m *Model) ForwardVectorized(x *mat.Dense, sampler samplers.Sampler, numSamples int) *gp.Posterior {
	n, dim := x.Dims()
	stack := mat.NewDense(numSamples*n, dim, nil)
	for p := 0; p < numSamples; p++ {
		stack.Slice(p*n, (p+1)*n, 0, dim).(*mat.Dense).Copy(x)
	}
	for _, h := range m.hidden {
		stack = h.step(stack, sampler, 1)[0]
	}
	return m.output.PosteriorDiag(stack)
}

// KL is the total divergence of all variational distributions in the model.
func (m *Model) KL() float64 {
	kl := m.output.KL()
	for _, h := range m.hidden {
		for _, layer := range h.outputs {
			kl += layer.KL()
		}
	}
	return kl
}

// Elbo is a Monte Carlo estimate of the deep evidence lower bound, averaging
// the variational expectation over sampled paths through the hidden layers.
func (m *Model) Elbo(x *mat.Dense, targets []float64, sampler samplers.Sampler, numSamples, numData int) float64 {
	posts := m.Forward(x, sampler, numSamples)
	var fit float64
	for _, post := range posts {
		for i, y := range targets {
			fit += m.Likelihood.ExpectedLogProb(y, post.Mean.AtVec(i), post.Variance(i))
		}
	}
	fit /= float64(numSamples)
	scale := float64(numData) / float64(len(targets))
	return scale*fit - m.KL()
}

// Predict averages the output-layer posterior over sample paths, returning
// the predictive mean and variance at each input point.
func (m *Model) Predict(x *mat.Dense, sampler samplers.Sampler, numSamples int) (mean, variance []float64) {
	posts := m.Forward(x, sampler, numSamples)
	n, _ := x.Dims()
	mean = make([]float64, n)
	variance = make([]float64, n)
	for _, post := range posts {
		for i := range mean {
			mean[i] += post.Mean.AtVec(i)
		}
	}
	for i := range mean {
		mean[i] /= float64(numSamples)
	}
	// Law of total variance across sample paths.
	for _, post := range posts {
		for i := range variance {
			d := post.Mean.AtVec(i) - mean[i]
			variance[i] += post.Variance(i) + d*d
		}
	}
	for i := range variance {
		variance[i] /= float64(numSamples)
	}
	return mean, variance
}
