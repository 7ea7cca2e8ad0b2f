package gp

import (
	"math"
	"testing"

	"github.com/KacperWyrwal/residual-manifold-deep-gp/kern"
	"github.com/KacperWyrwal/residual-manifold-deep-gp/spaces"
	"golang.org/x/exp/rand"
)

func testLayer(t testing.TB, meanConst, initVariance float64) (*Layer, *spaces.Hypersphere) {
	t.Helper()
	space, err := spaces.NewHypersphere(2)
	if err != nil {
		t.Fatal(err)
	}
	k := kern.NewSphereMatern(space, 1.5, 1.0, 20, true)
	z, err := space.UniformGrid(30)
	if err != nil {
		t.Fatal(err)
	}
	layer, err := NewLayer(k, z, meanConst, initVariance)
	if err != nil {
		t.Fatal(err)
	}
	return layer, space
}

func TestPosteriorShapes(t *testing.T) {
	layer, space := testLayer(t, 0, 1)
	x := space.RandomUniform(rand.NewSource(1), 12)
	post := layer.Posterior(x)
	if post.Len() != 12 {
		t.Fatalf("mean length = %d, want 12", post.Len())
	}
	r, c := post.Cov.Dims()
	if r != 12 || c != 12 {
		t.Fatalf("cov dims = %dx%d, want 12x12", r, c)
	}
	if post.Var != nil {
		t.Fatal("full posterior should not carry a diagonal")
	}
}

func TestPosteriorDiagMatchesFull(t *testing.T) {
	layer, space := testLayer(t, 0, 1)
	x := space.RandomUniform(rand.NewSource(2), 10)
	full := layer.Posterior(x)
	diag := layer.PosteriorDiag(x)
	for i := 0; i < 10; i++ {
		if math.Abs(full.Mean.AtVec(i)-diag.Mean.AtVec(i)) > 1e-10 {
			t.Errorf("mean[%d]: full %v, diag %v", i, full.Mean.AtVec(i), diag.Mean.AtVec(i))
		}
		if math.Abs(full.Variance(i)-diag.Variance(i)) > 1e-8 {
			t.Errorf("var[%d]: full %v, diag %v", i, full.Variance(i), diag.Variance(i))
		}
	}
}

// With a whitened N(0, I) variational distribution the layer reproduces its
// prior: zero mean and covariance K_xx.
func TestPosteriorRecoversPrior(t *testing.T) {
	layer, space := testLayer(t, 0, 1)
	x := space.RandomUniform(rand.NewSource(3), 8)
	post := layer.Posterior(x)
	kxx := layer.Kernel().Matrix(x, nil)
	for i := 0; i < 8; i++ {
		if math.Abs(post.Mean.AtVec(i)) > 1e-10 {
			t.Errorf("prior mean[%d] = %v, want 0", i, post.Mean.AtVec(i))
		}
		for j := 0; j < 8; j++ {
			if math.Abs(post.Cov.At(i, j)-kxx.At(i, j)) > 1e-6 {
				t.Errorf("cov[%d,%d] = %v, want %v", i, j, post.Cov.At(i, j), kxx.At(i, j))
			}
		}
	}
}

func TestMeanConstShiftsPosterior(t *testing.T) {
	layer, space := testLayer(t, 1.5, 1)
	x := space.RandomUniform(rand.NewSource(4), 6)
	post := layer.PosteriorDiag(x)
	for i := 0; i < 6; i++ {
		if math.Abs(post.Mean.AtVec(i)-1.5) > 1e-10 {
			t.Errorf("mean[%d] = %v, want 1.5", i, post.Mean.AtVec(i))
		}
	}
}

func TestKL(t *testing.T) {
	layer, _ := testLayer(t, 0, 1)
	// q(u) = N(0, I) in whitened coordinates has zero divergence.
	if kl := layer.KL(); math.Abs(kl) > 1e-12 {
		t.Fatalf("KL at prior = %v, want 0", kl)
	}
	m, _ := layer.VariationalParams()
	m.SetVec(0, 2.0)
	if kl := layer.KL(); math.Abs(kl-2.0) > 1e-12 {
		t.Fatalf("KL after mean shift = %v, want 2", kl)
	}
	if layer.KL() < 0 {
		t.Fatal("KL must be nonnegative")
	}
}

func TestSmallInitVarianceShrinksPosterior(t *testing.T) {
	tight, space := testLayer(t, 0, 1e-5)
	x := space.RandomUniform(rand.NewSource(5), 5)
	loose, _ := testLayer(t, 0, 1.0)
	tp := tight.PosteriorDiag(x)
	lp := loose.PosteriorDiag(x)
	for i := 0; i < 5; i++ {
		if tp.Variance(i) >= lp.Variance(i) {
			t.Errorf("var[%d]: tight %v not below loose %v", i, tp.Variance(i), lp.Variance(i))
		}
	}
}

func TestElbo(t *testing.T) {
	layer, space := testLayer(t, 0, 1)
	x := space.RandomUniform(rand.NewSource(6), 20)
	targets := make([]float64, 20)
	for i := range targets {
		targets[i] = x.At(i, 2)
	}
	post := layer.PosteriorDiag(x)
	lik := GaussianLikelihood{Variance: 1.0}
	elbo := Elbo(post, lik, targets, layer.KL(), 20)
	if math.IsNaN(elbo) || math.IsInf(elbo, 0) {
		t.Fatalf("elbo = %v", elbo)
	}
	// Tightening the fit must beat an absurd noise model.
	worse := Elbo(post, GaussianLikelihood{Variance: 1e-8}, targets, layer.KL(), 20)
	if worse >= elbo {
		t.Fatalf("elbo with degenerate noise %v should be below %v", worse, elbo)
	}
}

func TestNumInducing(t *testing.T) {
	layer, _ := testLayer(t, 0, 1)
	if got := layer.NumInducing(); got != 30 {
		t.Fatalf("NumInducing = %d, want 30", got)
	}
}
