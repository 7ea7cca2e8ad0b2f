// Command benchmark times deep GP forward passes on the hypersphere as the
// number of hidden layers grows, comparing the naive (path-by-path) and
// vectorized (stacked) sampling strategies.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/KacperWyrwal/residual-manifold-deep-gp/deepgp"
	"github.com/KacperWyrwal/residual-manifold-deep-gp/samplers"
	"github.com/KacperWyrwal/residual-manifold-deep-gp/spaces"
	"golang.org/x/exp/rand"
)

var (
	dim         = flag.Int("dim", 2, "Dimension of the hypersphere")
	maxHidden   = flag.Int("max-hidden", 5, "Largest number of hidden layers to benchmark")
	numPoints   = flag.Int("points", 100, "Number of test points")
	numSamples  = flag.Int("samples", 10, "Number of sample paths per forward pass")
	numInducing = flag.Int("inducing", 60, "Number of inducing points per layer")
	numLevels   = flag.Int("levels", 20, "Truncation of the kernel eigenfunction expansion")
	repeats     = flag.Int("repeats", 20, "Timed repetitions per configuration")
	withElbo    = flag.Bool("elbo", false, "Also time ELBO evaluations")
	seed        = flag.Uint64("seed", 42, "RNG seed")
)

func main() {
	flag.Parse()

	space, err := spaces.NewHypersphere(*dim)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	x := space.RandomUniform(rand.NewSource(*seed), *numPoints)
	targets := make([]float64, *numPoints)
	for i := range targets {
		targets[i] = x.At(i, 0)
	}

	fmt.Printf("deep GP forward timings on S^%d (%d points, %d samples, %d repeats)\n",
		*dim, *numPoints, *numSamples, *repeats)
	fmt.Printf("%-8s %-12s %12s %12s %12s\n", "hidden", "strategy", "mean", "p50", "p95")

	for hidden := 1; hidden <= *maxHidden; hidden++ {
		model, err := deepgp.NewModel(space, deepgp.Config{
			NumHidden:   hidden,
			NumInducing: *numInducing,
			NumLevels:   *numLevels,
			Seed:        *seed,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		naive := samplers.NewNaive(*seed)
		report(hidden, "naive", measure(*repeats, func() {
			model.Forward(x, naive, *numSamples)
		}))

		vectorized := samplers.NewVectorized(*seed)
		report(hidden, "vectorized", measure(*repeats, func() {
			model.ForwardVectorized(x, vectorized, *numSamples)
		}))

		if *withElbo {
			report(hidden, "elbo", measure(*repeats, func() {
				model.Elbo(x, targets, vectorized, *numSamples, *numPoints)
			}))
		}
	}
}

func measure(repeats int, step func()) []time.Duration {
	// Warm up once so allocation effects do not dominate the first sample.
	step()
	durations := make([]time.Duration, repeats)
	for i := range durations {
		start := time.Now()
		step()
		durations[i] = time.Since(start)
	}
	return durations
}

func report(hidden int, strategy string, durations []time.Duration) {
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	mean := total / time.Duration(len(durations))
	fmt.Printf("%-8d %-12s %12v %12v %12v\n",
		hidden, strategy, mean, percentile(durations, 0.50), percentile(durations, 0.95))
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
