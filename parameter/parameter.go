// Package parameter stores the mutable numeric state operators work on.
//
// All parameter vectors of a model live in one Store (an arena).
// Operators keep Handles to them instead of owning references, and a
// proposal reports which elements it changed as a list of Change
// values instead of firing change listeners.
package parameter

import (
	"math"
	"strconv"
	"strings"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

// log is the global logging variable.
var log = logging.MustGetLogger("parameter")

// Handle identifies a parameter within a Store.
type Handle int

// Change describes a modified element. Index -1 means the whole
// parameter (including its dimension) changed.
type Change struct {
	Param Handle
	Index int
}

// Parameter is a named vector of float64 with per-element bounds.
type Parameter struct {
	name   string
	values []float64
	lower  []float64
	upper  []float64
}

// New creates a parameter with the given values and unbounded
// elements.
func New(name string, values ...float64) *Parameter {
	p := &Parameter{
		name:   name,
		values: append([]float64(nil), values...),
		lower:  make([]float64, len(values)),
		upper:  make([]float64, len(values)),
	}
	for i := range values {
		p.lower[i] = math.Inf(-1)
		p.upper[i] = math.Inf(+1)
	}
	return p
}

// NewBounded creates a parameter with all elements sharing the same
// bounds.
func NewBounded(name string, lower, upper float64, values ...float64) *Parameter {
	if upper < lower {
		panic("upper bound < lower bound")
	}
	p := New(name, values...)
	for i := range values {
		p.lower[i] = lower
		p.upper[i] = upper
	}
	return p
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Dim returns the current dimension.
func (p *Parameter) Dim() int {
	return len(p.values)
}

// Get returns element i.
func (p *Parameter) Get(i int) float64 {
	return p.values[i]
}

// Set sets element i.
func (p *Parameter) Set(i int, v float64) {
	p.values[i] = v
}

// Bounds returns the bounds of element i.
func (p *Parameter) Bounds(i int) (lower, upper float64) {
	return p.lower[i], p.upper[i]
}

// SetBounds sets the bounds of element i.
func (p *Parameter) SetBounds(i int, lower, upper float64) {
	if upper < lower {
		panic("upper bound < lower bound")
	}
	p.lower[i] = lower
	p.upper[i] = upper
}

// ValueInRange checks whether v lies within the bounds of element i.
func (p *Parameter) ValueInRange(i int, v float64) bool {
	return v >= p.lower[i] && v <= p.upper[i]
}

// InRange checks whether every element lies within its bounds.
func (p *Parameter) InRange() bool {
	for i, v := range p.values {
		if !p.ValueInRange(i, v) {
			return false
		}
	}
	return true
}

// Values copies the values into dst (allocated if it is too short).
func (p *Parameter) Values(dst []float64) []float64 {
	if cap(dst) < len(p.values) {
		dst = make([]float64, len(p.values))
	}
	dst = dst[:len(p.values)]
	copy(dst, p.values)
	return dst
}

// SetValues sets all values; the dimension must match.
func (p *Parameter) SetValues(v []float64) error {
	if len(v) != len(p.values) {
		return errors.Errorf("%s: incorrect number of values (%d, expected %d)", p.name, len(v), len(p.values))
	}
	copy(p.values, v)
	return nil
}

// Append adds a new element with the given bounds, growing the
// dimension by one.
func (p *Parameter) Append(v, lower, upper float64) {
	p.values = append(p.values, v)
	p.lower = append(p.lower, lower)
	p.upper = append(p.upper, upper)
}

// Remove deletes element i, shifting the following elements down.
func (p *Parameter) Remove(i int) {
	p.values = append(p.values[:i], p.values[i+1:]...)
	p.lower = append(p.lower[:i], p.lower[i+1:]...)
	p.upper = append(p.upper[:i], p.upper[i+1:]...)
}

// Reflect mirrors v back into the bounds of element i. The result does
// not depend on how far v is outside of the bounds. Non-finite v gives
// NaN.
func (p *Parameter) Reflect(i int, v float64) float64 {
	lo, hi := p.lower[i], p.upper[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN()
	}
	if lo == hi {
		return lo
	}
	switch {
	case v >= lo && v <= hi:
		return v
	case math.IsInf(hi, 1):
		return lo + (lo - v)
	case math.IsInf(lo, -1):
		return hi - (v - hi)
	}
	w := hi - lo
	d := math.Mod(v-lo, 2*w)
	if d < 0 {
		d += 2 * w
	}
	if d > w {
		d = 2*w - d
	}
	return math.Min(math.Max(lo+d, lo), hi)
}

// String returns tab separated values.
func (p *Parameter) String() string {
	s := make([]string, len(p.values))
	for i, v := range p.values {
		s[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return strings.Join(s, "\t")
}

// Snapshot is a saved copy of a parameter's state, including its
// dimension.
type Snapshot struct {
	Param  Handle
	values []float64
	lower  []float64
	upper  []float64
}
