package deepgp

import (
	"math"
	"testing"

	"github.com/KacperWyrwal/residual-manifold-deep-gp/samplers"
	"github.com/KacperWyrwal/residual-manifold-deep-gp/spaces"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

func testModel(t testing.TB, numHidden int) (*Model, *spaces.Hypersphere) {
	t.Helper()
	space, err := spaces.NewHypersphere(2)
	if err != nil {
		t.Fatal(err)
	}
	model, err := NewModel(space, Config{
		NumHidden:   numHidden,
		NumInducing: 30,
		NumLevels:   15,
		Seed:        1,
	})
	if err != nil {
		t.Fatal(err)
	}
	return model, space
}

func TestForwardShapes(t *testing.T) {
	model, space := testModel(t, 2)
	x := space.RandomUniform(rand.NewSource(2), 11)
	sampler := samplers.NewVectorized(3)
	posts := model.Forward(x, sampler, 5)
	if len(posts) != 5 {
		t.Fatalf("paths = %d, want 5", len(posts))
	}
	for p, post := range posts {
		if post.Len() != 11 {
			t.Fatalf("path %d has %d values, want 11", p, post.Len())
		}
	}
}

func TestForwardVectorizedShapes(t *testing.T) {
	model, space := testModel(t, 2)
	x := space.RandomUniform(rand.NewSource(4), 11)
	sampler := samplers.NewVectorized(5)
	post := model.ForwardVectorized(x, sampler, 5)
	if post.Len() != 55 {
		t.Fatalf("stacked posterior has %d values, want 55", post.Len())
	}
}

func TestHiddenStepStaysOnSphere(t *testing.T) {
	model, space := testModel(t, 1)
	x := space.RandomUniform(rand.NewSource(6), 9)
	states := model.hidden[0].step(x, samplers.NewVectorized(7), 3)
	if len(states) != 3 {
		t.Fatalf("paths = %d, want 3", len(states))
	}
	for p, state := range states {
		r, c := state.Dims()
		if r != 9 || c != 3 {
			t.Fatalf("path %d dims = %dx%d, want 9x3", p, r, c)
		}
		for i := 0; i < r; i++ {
			if nrm := floats.Norm(state.RawRowView(i), 2); math.Abs(nrm-1) > 1e-9 {
				t.Errorf("path %d point %d has norm %v", p, i, nrm)
			}
		}
	}
}

// The whitened variational mean starts at zero, so the predictive mean is
// zero at initialization regardless of depth.
func TestPredictiveMeanZeroAtInit(t *testing.T) {
	for _, numHidden := range []int{0, 3} {
		model, space := testModel(t, numHidden)
		x := space.RandomUniform(rand.NewSource(8), 7)
		mean, _ := model.Predict(x, samplers.NewVectorized(9), 8)
		for i, m := range mean {
			if math.Abs(m) > 1e-10 {
				t.Errorf("numHidden %d: mean[%d] = %v, want 0", numHidden, i, m)
			}
		}
	}
}

func TestHiddenPosteriorBlockDiagonal(t *testing.T) {
	model, space := testModel(t, 1)
	x := space.RandomUniform(rand.NewSource(20), 4)
	joint := model.hidden[0].Posterior(x)
	if joint.Len() != 12 {
		t.Fatalf("joint length = %d, want 12", joint.Len())
	}
	// Distinct coordinate GPs are independent: cross blocks are zero.
	for i := 0; i < 4; i++ {
		for j := 4; j < 8; j++ {
			if v := joint.Cov.At(i, j); v != 0 {
				t.Fatalf("cross-coordinate covariance [%d,%d] = %v, want 0", i, j, v)
			}
		}
	}
	single := model.hidden[0].outputs[1].Posterior(x)
	for i := 0; i < 4; i++ {
		if math.Abs(joint.Cov.At(4+i, 4+i)-single.Cov.At(i, i)) > 1e-12 {
			t.Fatalf("block 1 diagonal mismatch at %d", i)
		}
	}
}

func TestKLGrowsWithDepth(t *testing.T) {
	shallow, _ := testModel(t, 0)
	deep, _ := testModel(t, 2)
	if shallow.KL() < 0 || deep.KL() < 0 {
		t.Fatal("KL must be nonnegative")
	}
	if deep.KL() <= shallow.KL() {
		t.Fatalf("deep KL %v should exceed shallow KL %v", deep.KL(), shallow.KL())
	}
}

func TestElboFinite(t *testing.T) {
	model, space := testModel(t, 1)
	x := space.RandomUniform(rand.NewSource(10), 16)
	targets := make([]float64, 16)
	for i := range targets {
		targets[i] = x.At(i, 2)
	}
	elbo := model.Elbo(x, targets, samplers.NewVectorized(11), 4, 16)
	if math.IsNaN(elbo) || math.IsInf(elbo, 0) {
		t.Fatalf("elbo = %v", elbo)
	}
}

func TestPredictShapes(t *testing.T) {
	model, space := testModel(t, 1)
	x := space.RandomUniform(rand.NewSource(12), 6)
	mean, variance := model.Predict(x, samplers.NewNaive(13), 4)
	if len(mean) != 6 || len(variance) != 6 {
		t.Fatalf("lengths = %d, %d, want 6, 6", len(mean), len(variance))
	}
	for i, v := range variance {
		if v <= 0 {
			t.Errorf("variance[%d] = %v, want positive", i, v)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.NumInducing != 60 || cfg.NumLevels != 20 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Nu != DefaultNu || cfg.LikelihoodVariance != DefaultLikelihoodVariance {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestInducingPointsOnHigherSphere(t *testing.T) {
	space, err := spaces.NewHypersphere(4)
	if err != nil {
		t.Fatal(err)
	}
	model, err := NewModel(space, Config{NumHidden: 1, NumInducing: 20, NumLevels: 10, Seed: 2})
	if err != nil {
		t.Fatal(err)
	}
	x := space.RandomUniform(rand.NewSource(14), 5)
	posts := model.Forward(x, samplers.NewVectorized(15), 2)
	if len(posts) != 2 || posts[0].Len() != 5 {
		t.Fatalf("unexpected forward output %d paths x %d values", len(posts), posts[0].Len())
	}
}

func BenchmarkForwardNaive(b *testing.B) {
	model, space := testModel(b, 3)
	x := space.RandomUniform(rand.NewSource(1), 50)
	sampler := samplers.NewNaive(2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		model.Forward(x, sampler, 10)
	}
}

func BenchmarkForwardVectorized(b *testing.B) {
	model, space := testModel(b, 3)
	x := space.RandomUniform(rand.NewSource(1), 50)
	sampler := samplers.NewVectorized(2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		model.ForwardVectorized(x, sampler, 10)
	}
}
