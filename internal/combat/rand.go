package combat

import "math/rand"

// Rand is the random source consulted for dodge rolls.
type Rand interface {
	Float64() float64
}

// NewRand returns a seeded source. Seed 0 is mapped to 1 so a zero-valued
// config still produces a deterministic stream.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = 1
	}
	return rand.New(rand.NewSource(seed))
}
