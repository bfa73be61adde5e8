package rng

import "math/rand"

// Source is the random capability consumed by the configuration space.
// Float64 draws uniformly from [0, 1); IntRange draws uniformly from the
// inclusive range [lo, hi].
type Source interface {
	Float64() float64
	IntRange(lo, hi int) int
}

// Rand adapts a seeded *rand.Rand to Source.
type Rand struct {
	r *rand.Rand
}

func New(seed int64) *Rand {
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

func Wrap(r *rand.Rand) *Rand {
	return &Rand{r: r}
}

func (s *Rand) Float64() float64 {
	return s.r.Float64()
}

// IntRange panics when hi < lo, like rand.Intn on a non-positive bound.
func (s *Rand) IntRange(lo, hi int) int {
	if hi < lo {
		panic("rng: IntRange with hi < lo")
	}
	return lo + s.r.Intn(hi-lo+1)
}
