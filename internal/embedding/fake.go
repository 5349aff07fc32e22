package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
)

// DefaultFakeDimensions is the vector size of NewFake(0).
const DefaultFakeDimensions = 64

// Fake is a deterministic offline provider. The same text and task always
// map to the same unit vector; different tasks map to different vectors.
// Fixed vectors can be pinned per text for tests that need controlled
// similarity.
type Fake struct {
	dim   int
	calls atomic.Int64

	mu    sync.Mutex
	fixed map[string][]float32
	fail  func(text string, call int64) error
}

// NewFake creates a Fake producing vectors of dim elements.
func NewFake(dim int) *Fake {
	if dim <= 0 {
		dim = DefaultFakeDimensions
	}
	return &Fake{dim: dim, fixed: make(map[string][]float32)}
}

func (f *Fake) Name() string { return ProviderFake }

// Dimensions returns the vector size.
func (f *Fake) Dimensions() int { return f.dim }

// Calls returns how many times Embed has been invoked.
func (f *Fake) Calls() int64 { return f.calls.Load() }

// Pin makes Embed return vec for text regardless of task.
func (f *Fake) Pin(text string, vec []float32) {
	f.mu.Lock()
	f.fixed[text] = vec
	f.mu.Unlock()
}

// FailWith installs a hook consulted before every call. A non-nil return is
// reported as the provider error. call counts from 1.
func (f *Fake) FailWith(fn func(text string, call int64) error) {
	f.mu.Lock()
	f.fail = fn
	f.mu.Unlock()
}

func (f *Fake) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	n := f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	fail := f.fail
	pinned, ok := f.fixed[text]
	f.mu.Unlock()

	if fail != nil {
		if err := fail(text, n); err != nil {
			return nil, err
		}
	}
	if ok {
		return append([]float32(nil), pinned...), nil
	}
	return hashVector(string(task)+"\x00"+text, f.dim), nil
}

// hashVector seeds a linear congruential generator from the FNV hash of s
// and normalizes the result.
func hashVector(s string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(s))
	seed := h.Sum64()

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11))/float64(1<<52) - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
