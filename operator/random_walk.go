package operator

import (
	"math"

	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// RandomWalk moves one random element of a parameter by a normal or
// uniform step and reflects the result at the bounds. Reflection at
// both bounds keeps the proposal symmetric.
type RandomWalk struct {
	Base
	Tuning
	param      parameter.Handle
	windowSize float64
	normal     bool
	changed    []parameter.Change
}

// NewRandomWalk creates a random walk operator. If normal is true the
// step is N(0, windowSize^2), otherwise it is uniform in
// [-windowSize, windowSize].
func NewRandomWalk(name string, param parameter.Handle, weight, windowSize float64, normal bool, tuning Tuning) (*RandomWalk, error) {
	b, err := NewBase(name, weight)
	if err != nil {
		return nil, err
	}
	if !(windowSize > 0) {
		return nil, configf("%s: window size should be > 0, got %v", name, windowSize)
	}
	if err := tuning.validate(name); err != nil {
		return nil, err
	}
	return &RandomWalk{
		Base:       b,
		Tuning:     tuning,
		param:      param,
		windowSize: windowSize,
		normal:     normal,
		changed:    make([]parameter.Change, 1),
	}, nil
}

// Parameters returns the modified parameter.
func (o *RandomWalk) Parameters() []parameter.Handle {
	return []parameter.Handle{o.param}
}

// Propose moves a random element.
func (o *RandomWalk) Propose(ctx *Context) (Proposal, error) {
	o.Begin()
	p := ctx.Store.Get(o.param)
	if p.Dim() == 0 {
		return Proposal{}, failf("%s: %s is empty", o.name, p.Name())
	}
	i := ctx.Rand.Intn(p.Dim())
	x := p.Get(i)
	var nx float64
	if o.normal {
		nx = x + ctx.Rand.NormFloat64()*o.windowSize
	} else {
		nx = x + (2*ctx.Rand.Float64()-1)*o.windowSize
	}
	nx = p.Reflect(i, nx)
	if math.IsNaN(nx) || math.IsInf(nx, 0) {
		return Proposal{}, failf("%s: proposed %v for %s", o.name, nx, p.Name())
	}
	p.Set(i, nx)
	o.changed[0] = parameter.Change{Param: o.param, Index: i}
	return Proposal{Changed: o.changed}, nil
}

// CoercableParameter returns log(windowSize).
func (o *RandomWalk) CoercableParameter() float64 {
	return math.Log(o.windowSize)
}

// SetCoercableParameter sets log(windowSize).
func (o *RandomWalk) SetCoercableParameter(v float64) {
	o.windowSize = math.Exp(v)
}

// RawParameter returns the window size.
func (o *RandomWalk) RawParameter() float64 {
	return o.windowSize
}
