package operator

import (
	"fmt"
	"math"
)

// Stats holds the acceptance counters of an operator. It is used for
// diagnostics and can be serialized.
type Stats struct {
	Name          string  `json:"name"`
	Weight        float64 `json:"weight"`
	Accepted      int     `json:"accepted"`
	Rejected      int     `json:"rejected"`
	LastDeviation float64 `json:"last_deviation"`
	SumDeviation  float64 `json:"sum_deviation"`
}

// AcceptanceProbability returns accepted/(accepted+rejected).
func (s Stats) AcceptanceProbability() float64 {
	n := s.Accepted + s.Rejected
	if n == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(n)
}

// Base implements the bookkeeping part of Operator. Operators embed it
// and call Begin() at the start of every proposal.
type Base struct {
	name          string
	weight        float64
	accepted      int
	rejected      int
	lastDeviation float64
	sumDeviation  float64
	pending       bool
}

// NewBase creates the bookkeeping part of an operator. Operators of
// other packages embed it as well.
func NewBase(name string, weight float64) (Base, error) {
	if !(weight > 0) || math.IsInf(weight, 1) {
		return Base{}, configf("%s: weight should be > 0, got %v", name, weight)
	}
	return Base{name: name, weight: weight}, nil
}

// Name returns the operator name.
func (b *Base) Name() string {
	return b.name
}

// Weight returns the relative selection weight.
func (b *Base) Weight() float64 {
	return b.weight
}

// SetWeight sets the relative selection weight.
func (b *Base) SetWeight(w float64) {
	if !(w > 0) || math.IsInf(w, 1) {
		panic(fmt.Sprintf("%s: weight should be > 0, got %v", b.name, w))
	}
	b.weight = w
}

// Begin marks the start of a proposal. It panics if the previous
// proposal was neither accepted nor rejected.
func (b *Base) Begin() {
	if b.pending {
		panic(fmt.Sprintf("%s: proposal made before the previous one was accepted or rejected", b.name))
	}
	b.pending = true
}

// Accept records an accepted proposal; deviation is the change of the
// log target density.
func (b *Base) Accept(deviation float64) {
	if !b.pending {
		panic(fmt.Sprintf("%s: accept without a proposal", b.name))
	}
	b.pending = false
	b.accepted++
	b.lastDeviation = deviation
	b.sumDeviation += deviation
}

// Reject records a rejected proposal.
func (b *Base) Reject() {
	if !b.pending {
		panic(fmt.Sprintf("%s: reject without a proposal", b.name))
	}
	b.pending = false
	b.rejected++
}

// Reset zeroes the counters.
func (b *Base) Reset() {
	b.accepted = 0
	b.rejected = 0
	b.lastDeviation = 0
	b.sumDeviation = 0
}

// Count returns the number of resolved proposals.
func (b *Base) Count() int {
	return b.accepted + b.rejected
}

// AcceptanceProbability returns accepted/(accepted+rejected) or 0
// before the first proposal.
func (b *Base) AcceptanceProbability() float64 {
	return b.Stats().AcceptanceProbability()
}

// Stats returns a copy of the counters.
func (b *Base) Stats() Stats {
	return Stats{
		Name:          b.name,
		Weight:        b.weight,
		Accepted:      b.accepted,
		Rejected:      b.rejected,
		LastDeviation: b.lastDeviation,
		SumDeviation:  b.sumDeviation,
	}
}

// SetStats restores counters saved with Stats. The weight is restored
// too, the name is not.
func (b *Base) SetStats(s Stats) {
	if s.Weight > 0 {
		b.weight = s.Weight
	}
	b.accepted = s.Accepted
	b.rejected = s.Rejected
	b.lastDeviation = s.LastDeviation
	b.sumDeviation = s.SumDeviation
}
