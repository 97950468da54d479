// Package rng is the single deterministic source of randomness for the
// layout engine, header generators, and assembler. Every operation the
// generation pipeline needs (weighted choice, ranged integers, log-uniform
// integer sizes, random byte runs, Fisher-Yates shuffle) is implemented here on
// top of math/rand so that one seed always yields byte-identical output
// across runs, platforms, and goroutine scheduling (no component ever
// touches the global math/rand source or time-seeded randomness).
package rng

import (
	"math"
	"math/rand"
)

// Rand is a seeded, non-thread-safe pseudo-random source. Callers must give
// each concurrent unit of work (each image, in this pipeline) its own Rand;
// Rand is never shared across goroutines.
type Rand struct {
	r *rand.Rand
}

// New returns a Rand seeded deterministically from seed.
func New(seed int64) *Rand {
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a pseudo-random number in [0.0, 1.0).
func (rr *Rand) Float64() float64 {
	return rr.r.Float64()
}

// Intn returns a pseudo-random number in [0, n).
func (rr *Rand) Intn(n int) int {
	return rr.r.Intn(n)
}

// IntRange returns a pseudo-random number in [lo, hi], inclusive of both
// ends, mirroring Python's random.randint.
func (rr *Rand) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rr.r.Intn(hi-lo+1)
}

// Uniform returns a pseudo-random float64 in [lo, hi).
func (rr *Rand) Uniform(lo, hi float64) float64 {
	return lo + rr.r.Float64()*(hi-lo)
}

// Bytes returns n pseudo-random bytes.
func (rr *Rand) Bytes(n int) []byte {
	b := make([]byte, n)
	rr.r.Read(b) //nolint:errcheck // math/rand.Rand.Read never errors
	return b
}

// Bool returns true or false with equal probability.
func (rr *Rand) Bool() bool {
	return rr.r.Intn(2) == 0
}

// ChoiceInt picks a uniformly random element from options.
func ChoiceInt[T any](rr *Rand, options []T) T {
	return options[rr.r.Intn(len(options))]
}

// WeightedOption is one entry in a weighted-choice population.
type WeightedOption[T any] struct {
	Value  T
	Weight float64
}

// WeightedChoice performs a cumulative-weight draw over options, matching
// the reference algorithm: draw r in [0, total weight), walk the options
// accumulating weight, and return the first option whose cumulative weight
// is >= r. Falls back to the last option if floating point error leaves a
// residual.
func WeightedChoice[T any](rr *Rand, options []WeightedOption[T]) T {
	total := 0.0
	for _, o := range options {
		total += o.Weight
	}
	r := rr.Float64() * total
	cumulative := 0.0
	for _, o := range options {
		cumulative += o.Weight
		if r <= cumulative {
			return o.Value
		}
	}
	return options[len(options)-1].Value
}

// Shuffle performs an in-place Fisher-Yates shuffle driven by rr.
func Shuffle[T any](rr *Rand, s []T) {
	rr.r.Shuffle(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
}

// Log2Uniform draws a value log-uniformly distributed in [lo, hi] by
// sampling uniformly in log2 space and exponentiating back.
func Log2Uniform(rr *Rand, lo, hi int) int {
	logMin := math.Log2(float64(lo))
	logMax := math.Log2(float64(hi))
	logSize := rr.Uniform(logMin, logMax)
	return int(math.Pow(2, logSize))
}
