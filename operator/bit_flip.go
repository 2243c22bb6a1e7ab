package operator

import (
	"math"

	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// maxFlips is the maximal number of flips per proposal.
const maxFlips = 4

// HierarchicalBitFlip flips the same bit in a top level binary
// parameter and in every stratum parameter. Each proposal makes 1 to 4
// such flips at random positions.
type HierarchicalBitFlip struct {
	Base
	top            parameter.Handle
	strata         []parameter.Handle
	usesPriorOnSum bool
	changed        []parameter.Change
}

// NewHierarchicalBitFlip creates a hierarchical bit flip operator.
// With usesPriorOnSum the Hastings ratio compensates the number of
// configurations with the same number of on bits, so a prior can be
// placed on that number directly.
func NewHierarchicalBitFlip(name string, store *parameter.Store, top parameter.Handle, strata []parameter.Handle,
	weight float64, usesPriorOnSum bool) (*HierarchicalBitFlip, error) {
	b, err := NewBase(name, weight)
	if err != nil {
		return nil, err
	}
	d := store.Get(top).Dim()
	if d == 0 {
		return nil, configf("%s: %s is empty", name, store.Get(top).Name())
	}
	for _, h := range strata {
		if sd := store.Get(h).Dim(); sd != d {
			return nil, configf("%s: stratum %s has dimension %d, %s has %d",
				name, store.Get(h).Name(), sd, store.Get(top).Name(), d)
		}
	}
	return &HierarchicalBitFlip{
		Base:           b,
		top:            top,
		strata:         append([]parameter.Handle(nil), strata...),
		usesPriorOnSum: usesPriorOnSum,
	}, nil
}

// Parameters returns the top level and the strata parameters.
func (o *HierarchicalBitFlip) Parameters() []parameter.Handle {
	return append([]parameter.Handle{o.top}, o.strata...)
}

// bit returns element i of p as 0 or 1.
func bit(p *parameter.Parameter, i int) (int, error) {
	switch v := p.Get(i); v {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	default:
		return 0, invariantf("%s[%d]=%v, expected 0 or 1", p.Name(), i, v)
	}
}

// Propose flips bits.
func (o *HierarchicalBitFlip) Propose(ctx *Context) (Proposal, error) {
	o.Begin()
	top := ctx.Store.Get(o.top)
	d := top.Dim()
	for _, h := range o.strata {
		if ctx.Store.Get(h).Dim() != d {
			return Proposal{}, invariantf("%s: dimension of %s changed", o.name, ctx.Store.Get(h).Name())
		}
	}

	sum := 0
	if o.usesPriorOnSum {
		for i := 0; i < d; i++ {
			b, err := bit(top, i)
			if err != nil {
				return Proposal{}, err
			}
			sum += b
		}
	}

	o.changed = o.changed[:0]
	logq := 0.0
	n := 1 + ctx.Rand.Intn(maxFlips)
	for k := 0; k < n; k++ {
		pos := ctx.Rand.Intn(d)
		v, err := bit(top, pos)
		if err != nil {
			return Proposal{}, err
		}
		for _, h := range o.strata {
			if _, err := bit(ctx.Store.Get(h), pos); err != nil {
				return Proposal{}, err
			}
		}

		if o.usesPriorOnSum {
			if v == 0 {
				logq -= math.Log(float64(d-sum) / float64(sum+1))
				sum++
			} else {
				logq -= math.Log(float64(sum) / float64(d-sum+1))
				sum--
			}
		}

		top.Set(pos, float64(1-v))
		o.changed = append(o.changed, parameter.Change{Param: o.top, Index: pos})
		for _, h := range o.strata {
			s := ctx.Store.Get(h)
			s.Set(pos, 1-s.Get(pos))
			o.changed = append(o.changed, parameter.Change{Param: h, Index: pos})
		}
	}
	return Proposal{LogHastingsRatio: logq, Changed: o.changed}, nil
}
