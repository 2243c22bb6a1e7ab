package operator

import (
	"fmt"
	"math"

	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// RandomWalkInteger proposes a new value for one random element of a
// bounded integer parameter. The step is uniform in
// {-w, ..., -1, 1, ..., w} and values outside the bounds are reflected
// back. Near the bounds reflection makes several steps lead to the same
// value, so the Hastings ratio counts the steps in both directions.
type RandomWalkInteger struct {
	Base
	param      parameter.Handle
	windowSize int
	warnings   []string
	warned     map[int]bool
	changed    []parameter.Change
}

// NewRandomWalkInteger creates a random walk integer operator. Every
// element must have finite bounds. A window wider than the range of an
// element is clamped to the range with a warning.
func NewRandomWalkInteger(name string, store *parameter.Store, h parameter.Handle, weight float64, windowSize int) (*RandomWalkInteger, error) {
	b, err := NewBase(name, weight)
	if err != nil {
		return nil, err
	}
	if windowSize < 1 {
		return nil, configf("%s: window size should be >= 1, got %d", name, windowSize)
	}
	o := &RandomWalkInteger{
		Base:       b,
		param:      h,
		windowSize: windowSize,
		warned:     make(map[int]bool),
		changed:    make([]parameter.Change, 1),
	}
	p := store.Get(h)
	for i := 0; i < p.Dim(); i++ {
		lo, hi := p.Bounds(i)
		if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return nil, configf("%s: %s[%d] should have finite bounds", name, p.Name(), i)
		}
		if math.Ceil(lo) > math.Floor(hi) {
			return nil, configf("%s: no integer within the bounds of %s[%d]", name, p.Name(), i)
		}
		if math.Ceil(lo) < math.Floor(hi) {
			o.window(p, i)
		}
	}
	return o, nil
}

// Parameters returns the modified parameter.
func (o *RandomWalkInteger) Parameters() []parameter.Handle {
	return []parameter.Handle{o.param}
}

// Warnings returns the recorded warnings.
func (o *RandomWalkInteger) Warnings() []string {
	return o.warnings
}

// window returns the effective window size of element i.
func (o *RandomWalkInteger) window(p *parameter.Parameter, i int) int {
	lo, hi := p.Bounds(i)
	r := int(math.Floor(hi) - math.Ceil(lo))
	if o.windowSize > r {
		if !o.warned[i] {
			o.warned[i] = true
			w := fmt.Sprintf("%s: window size %d exceeds the range %d of %s[%d], clamping",
				o.name, o.windowSize, r, p.Name(), i)
			o.warnings = append(o.warnings, w)
			log.Warning(w)
		}
		return r
	}
	return o.windowSize
}

// reflectInt mirrors v into [lo, hi]. A single reflection is enough
// because the window never exceeds the range.
func reflectInt(v, lo, hi int) int {
	if v < lo {
		return 2*lo - v
	}
	if v > hi {
		return 2*hi - v
	}
	return v
}

// stepCount returns the number of steps in {-w..-1, 1..w} moving from
// to to.
func stepCount(from, to, lo, hi, w int) (n int) {
	for d := 1; d <= w; d++ {
		if reflectInt(from+d, lo, hi) == to {
			n++
		}
		if reflectInt(from-d, lo, hi) == to {
			n++
		}
	}
	return
}

// Propose moves a random element.
func (o *RandomWalkInteger) Propose(ctx *Context) (Proposal, error) {
	o.Begin()
	p := ctx.Store.Get(o.param)
	if p.Dim() == 0 {
		return Proposal{}, failf("%s: %s is empty", o.name, p.Name())
	}
	i := ctx.Rand.Intn(p.Dim())
	flo, fhi := p.Bounds(i)
	lo, hi := int(math.Ceil(flo)), int(math.Floor(fhi))
	if lo == hi {
		// fixed value
		return Proposal{}, nil
	}
	x := p.Get(i)
	old := int(math.Round(x))
	if float64(old) != x || old < lo || old > hi {
		return Proposal{}, failf("%s: %s[%d]=%v is not an integer in [%d, %d]", o.name, p.Name(), i, x, lo, hi)
	}

	w := o.window(p, i)
	roll := ctx.Rand.Intn(2 * w)
	var v int
	if roll >= w {
		v = old + 1 + roll - w
	} else {
		v = old - 1 - roll
	}
	v = reflectInt(v, lo, hi)

	forward := stepCount(old, v, lo, hi, w)
	backward := stepCount(v, old, lo, hi, w)

	p.Set(i, float64(v))
	o.changed[0] = parameter.Change{Param: o.param, Index: i}
	return Proposal{
		LogHastingsRatio: math.Log(float64(backward)) - math.Log(float64(forward)),
		Changed:          o.changed,
	}, nil
}
