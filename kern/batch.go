package kern

import (
	"runtime"
	"sync"

	"github.com/KacperWyrwal/residual-manifold-deep-gp/nd"
)

// Batch evaluates several independent kernel instances in parallel. The
// expected input layout is [..., B, N, D] where B is the batch axis matching
// the number of kernels (an input batch axis of 1 broadcasts) and leading
// axes broadcast between the two inputs.
type Batch struct {
	kernels  []Kernel
	nWorkers int
}

func NewBatch(kernels ...Kernel) *Batch {
	if len(kernels) == 0 {
		panic("kern: batch needs at least one kernel")
	}
	dim := kernels[0].Dim()
	for _, k := range kernels[1:] {
		if k.Dim() != dim {
			panic(ErrDimension)
		}
	}
	return &Batch{kernels: kernels, nWorkers: runtime.GOMAXPROCS(0)}
}

func (b *Batch) Len() int {
	return len(b.kernels)
}

func (b *Batch) Dim() int {
	return b.kernels[0].Dim()
}

func (b *Batch) At(i int) Kernel {
	return b.kernels[i]
}

func (b *Batch) SetWorkers(n int) {
	if n <= 0 {
		panic("kern: number of workers must be positive")
	}
	b.nWorkers = n
}

// leadShape validates the trailing point axes of x and returns its leading
// shape, batch axis included.
func (b *Batch) leadShape(x *nd.Array) []int {
	if x.NDim() < 3 {
		panic(ErrBatchShape)
	}
	if x.Dim(-1) != b.Dim() {
		panic(ErrDimension)
	}
	shape := x.Shape()
	return shape[:len(shape)-2]
}

// outLead broadcasts the two leading shapes and pins the batch axis to the
// number of kernels in the batch.
func (b *Batch) outLead(s1, s2 []int) []int {
	lead := nd.BroadcastShapes(s1, s2)
	switch lead[len(lead)-1] {
	case b.Len():
	case 1:
		lead[len(lead)-1] = b.Len()
	default:
		panic(ErrBatchShape)
	}
	return lead
}

// Matrix evaluates the full covariance, [..., B, N, D] x [..., B, M, D] ->
// [..., B, N, M]. A nil x2 means x2 = x1.
func (b *Batch) Matrix(x1, x2 *nd.Array) *nd.Array {
	if x2 == nil {
		x2 = x1
	}
	s1, s2 := b.leadShape(x1), b.leadShape(x2)
	lead := b.outLead(s1, s2)
	n, m := x1.Dim(-2), x2.Dim(-2)
	out := nd.New(append(lead, n, m)...)
	b.run(prod(lead), func(idx int) {
		ker := b.kernels[idx%b.Len()]
		res := ker.Matrix(
			x1.Matrix(nd.BroadcastIndex(idx, lead, s1)),
			x2.Matrix(nd.BroadcastIndex(idx, lead, s2)))
		out.Matrix(idx).Copy(res)
	})
	return out
}

// Diag evaluates self-covariances only, [..., B, N, D] -> [..., B, N].
func (b *Batch) Diag(x *nd.Array) *nd.Array {
	s := b.leadShape(x)
	lead := b.outLead(s, s)
	out := nd.New(append(lead, x.Dim(-2))...)
	b.run(prod(lead), func(idx int) {
		ker := b.kernels[idx%b.Len()]
		copy(out.Row(idx), ker.Diag(x.Matrix(nd.BroadcastIndex(idx, lead, s))))
	})
	return out
}

func (b *Batch) run(total int, eval func(idx int)) {
	jobs := make(chan int, 100)
	defer close(jobs)
	var wg sync.WaitGroup
	for w := 0; w < b.nWorkers; w++ {
		go func() {
			for idx := range jobs {
				eval(idx)
				wg.Done()
			}
		}()
	}
	for idx := 0; idx < total; idx++ {
		wg.Add(1)
		jobs <- idx
	}
	wg.Wait()
}

func prod(shape []int) int {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return size
}
