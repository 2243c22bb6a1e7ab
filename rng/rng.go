// Package rng implements the single random stream shared by every
// operator of a chain.
//
// All operators and schedules draw from the same *Source, so a chain
// started from a fixed seed is reproducible. Source also satisfies the
// rand.Source interfaces used by gonum distributions (Uint64, Seed),
// which lets base measures sample through the same stream.
package rng

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Source is a sequential pseudorandom stream. It is not safe for
// concurrent use; a chain advances strictly sequentially.
type Source struct {
	r    *rand.Rand
	seed int64
}

// New creates a new stream seeded with seed.
func New(seed int64) *Source {
	return &Source{
		r:    rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// InitialSeed returns the seed the stream was created (or last
// reseeded) with.
func (s *Source) InitialSeed() int64 {
	return s.seed
}

// Seed reseeds the stream.
func (s *Source) Seed(seed uint64) {
	s.seed = int64(seed)
	s.r.Seed(s.seed)
}

// Uint64 returns a pseudorandom 64-bit value.
func (s *Source) Uint64() uint64 {
	return s.r.Uint64()
}

// Intn returns a uniform integer in [0, n).
func (s *Source) Intn(n int) int {
	return s.r.Intn(n)
}

// Float64 returns a uniform real in [0, 1).
func (s *Source) Float64() float64 {
	return s.r.Float64()
}

// NormFloat64 returns a standard normal variate.
func (s *Source) NormFloat64() float64 {
	return s.r.NormFloat64()
}

// Categorical samples an index proportionally to the unnormalized
// non-negative weights w.
func (s *Source) Categorical(w []float64) int {
	if len(w) == 0 {
		panic("categorical sampling from an empty distribution")
	}
	total := floats.Sum(w)
	if !(total > 0) || math.IsInf(total, 1) {
		panic("categorical weights should have a finite positive sum")
	}
	u := s.r.Float64() * total
	cum := 0.0
	last := 0
	for i, v := range w {
		if v <= 0 {
			continue
		}
		cum += v
		last = i
		if u < cum {
			return i
		}
	}
	// rounding, u is very close to total
	return last
}

// LogCategorical samples an index given unnormalized log-weights. The
// weights are normalized with log-sum-exp before exponentiation, p is
// used as a scratch buffer if it has the right length.
func (s *Source) LogCategorical(logw []float64, p []float64) int {
	if len(p) != len(logw) {
		p = make([]float64, len(logw))
	}
	lse := floats.LogSumExp(logw)
	if math.IsInf(lse, -1) || math.IsNaN(lse) {
		panic("all categorical log-weights are -Inf or NaN")
	}
	for i, lw := range logw {
		p[i] = math.Exp(lw - lse)
	}
	return s.Categorical(p)
}
