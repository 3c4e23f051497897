package classifier

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
)

// StubCapability returns a random but valid probability vector. It stands in
// for a trained model during demos and tests.
type StubCapability struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewStubCapability seeds the stub. A zero seed picks a random one.
func NewStubCapability(seed uint64) *StubCapability {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &StubCapability{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Predict returns a softmax over random logits.
func (s *StubCapability) Predict(ctx context.Context, _ Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	logits := make([]float64, NumLabels)
	for i := range logits {
		logits[i] = s.rng.NormFloat64() * 2
	}
	s.mu.Unlock()

	return softmax(logits), nil
}

func softmax(logits []float64) []float32 {
	peak := math.Inf(-1)
	for _, l := range logits {
		peak = math.Max(peak, l)
	}
	var sum float64
	exp := make([]float64, len(logits))
	for i, l := range logits {
		exp[i] = math.Exp(l - peak)
		sum += exp[i]
	}
	out := make([]float32, len(logits))
	for i := range exp {
		out[i] = float32(exp[i] / sum)
	}
	return out
}
