package execution

import "math/rand/v2"

// Source is the random source a simulation draws from. Injecting it makes
// runs reproducible.
type Source interface {
	// Float64 returns a value in [0.0, 1.0).
	Float64() float64
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// NewSource returns a seeded PCG-backed Source.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// sample draws k distinct elements from items without replacement,
// preserving draw order.
func sample(rng Source, items []string, k int) []string {
	pool := append([]string(nil), items...)
	k = min(k, len(pool))
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}
