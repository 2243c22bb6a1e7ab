// The Robbins-Monro learning in this file follows ideas and pseudocode
// presented by Xavier Meyer <Xavier.Meyer.2 at unil.ch>.

package operator

import (
	"math"

	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// AdaptiveSettings are settings for an adaptive random walk.
type AdaptiveSettings struct {
	// WSize window size to compute mean and variance.
	WSize int
	// K specifies how often Mu should be updated.
	K int
	// Skip is the number of proposals to skip before starting
	// adaptation.
	Skip int
	// MaxAdapt is the number of proposals to adapt.
	MaxAdapt int
	// MaxUpdate maximum number of update for an element.
	MaxUpdate int
	// Epsilon is part of stopping criteria for stopping
	// adaptation.
	Epsilon float64
	// C is a Robbins-Monro algorithm parameter
	C float64
	// Nu is a Robbins-Monro algorithm parameter
	Nu float64
	// Lambda is the proposal multiplier.
	Lambda float64
	// SD is initial standard deviation.
	SD float64
}

// NewAdaptiveSettings creates new settings for an adaptive random walk.
func NewAdaptiveSettings() *AdaptiveSettings {
	return &AdaptiveSettings{
		WSize:     10,
		K:         20,
		Skip:      500,
		MaxAdapt:  2000,
		MaxUpdate: 200,
		Epsilon:   5e-1,
		C:         1,
		Nu:        3,
		Lambda:    2.4,
		SD:        1e-2,
	}
}

// elementState is the learning state of one element.
type elementState struct {
	t    int
	loct int

	mean     float64
	variance float64
	delta    bool

	//batch statistics
	bmean float64
	bm2   float64

	//convergence check
	vals      chan float64
	cmean     float64
	cm2       float64
	converged bool
}

// AdaptiveRandomWalk is a normal random walk which learns the mean and
// variance of every element of a parameter from accepted values using
// Robbins-Monro updates. The proposal is x + N(0,1)*sqrt(var)*Lambda.
// Adaptation stops after MaxAdapt proposals or when an element
// converged, so the chain eventually becomes a plain Markov chain.
type AdaptiveRandomWalk struct {
	Base
	param    parameter.Handle
	elements []*elementState
	iter     int
	last     int
	lastVal  float64
	changed  []parameter.Change

	*AdaptiveSettings
}

// NewAdaptiveRandomWalk creates an adaptive random walk operator.
func NewAdaptiveRandomWalk(name string, param parameter.Handle, weight float64, as *AdaptiveSettings) (*AdaptiveRandomWalk, error) {
	b, err := NewBase(name, weight)
	if err != nil {
		return nil, err
	}
	if as == nil {
		as = NewAdaptiveSettings()
	}
	if !(as.SD > 0) {
		return nil, configf("%s: SD should be > 0", name)
	}
	if as.K < 2 {
		return nil, configf("%s: K should be >= 2", name)
	}
	if as.WSize < 2 {
		return nil, configf("%s: WSize should be >= 2", name)
	}
	return &AdaptiveRandomWalk{
		Base:             b,
		param:            param,
		changed:          make([]parameter.Change, 1),
		AdaptiveSettings: as,
	}, nil
}

// Parameters returns the modified parameter.
func (o *AdaptiveRandomWalk) Parameters() []parameter.Handle {
	return []parameter.Handle{o.param}
}

func (o *AdaptiveRandomWalk) element(i int) *elementState {
	for len(o.elements) <= i {
		o.elements = append(o.elements, &elementState{
			mean:     math.NaN(),
			variance: square(o.SD),
			vals:     make(chan float64, o.WSize),
		})
	}
	return o.elements[i]
}

// ElementSD returns the current proposal standard deviation of element i
// (without the Lambda multiplier).
func (o *AdaptiveRandomWalk) ElementSD(i int) float64 {
	return math.Sqrt(o.element(i).variance)
}

// Converged returns true if element i stopped adapting because of
// convergence.
func (o *AdaptiveRandomWalk) Converged(i int) bool {
	return o.element(i).converged
}

// Propose moves a random element.
func (o *AdaptiveRandomWalk) Propose(ctx *Context) (Proposal, error) {
	o.Begin()
	o.iter++
	p := ctx.Store.Get(o.param)
	if p.Dim() == 0 {
		return Proposal{}, failf("%s: %s is empty", o.name, p.Name())
	}
	i := ctx.Rand.Intn(p.Dim())
	e := o.element(i)
	x := p.Reflect(i, p.Get(i)+ctx.Rand.NormFloat64()*math.Sqrt(e.variance)*o.Lambda)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return Proposal{}, failf("%s: proposed %v for %s", o.name, x, p.Name())
	}
	p.Set(i, x)
	o.last = i
	o.lastVal = x
	o.changed[0] = parameter.Change{Param: o.param, Index: i}
	return Proposal{Changed: o.changed}, nil
}

// Accept records acceptance and learns from the accepted value.
func (o *AdaptiveRandomWalk) Accept(deviation float64) {
	o.Base.Accept(deviation)
	if o.iter >= o.Skip && o.iter < o.MaxAdapt {
		o.updateMu(o.last, o.lastVal)
	}
}

// robbinsMonro returns the Robbins-Monro gain of element e.
func (o *AdaptiveRandomWalk) robbinsMonro(e *elementState) (gamma float64) {
	delta := e.bmean - e.mean
	if (delta > 0 && !e.delta) || (delta < 0 && e.delta) {
		e.loct++
	}
	e.delta = delta > 0
	beta := 1 / math.Max(1, 1+o.Nu)
	gamma = o.C / math.Pow(float64(e.loct+1), beta)
	return
}

// checkConvergence checks if the mean of element i converged.
func (o *AdaptiveRandomWalk) checkConvergence(i int, val float64) {
	e := o.elements[i]
	if len(e.vals) == o.WSize {
		oldVal := <-e.vals
		delta := oldVal - e.cmean
		e.cmean -= delta / float64(len(e.vals))
		e.cm2 -= delta * (oldVal - e.cmean)
	}

	e.vals <- val
	delta := val - e.cmean
	e.cmean += delta / float64(len(e.vals))
	e.cm2 += delta * (val - e.cmean)

	if len(e.vals) == o.WSize {
		variance := e.cm2 / float64(len(e.vals)-1)
		sd := math.Sqrt(variance)
		cv := sd / math.Abs(e.cmean)
		if cv < o.Epsilon || e.t/o.K > o.MaxUpdate {
			e.converged = true
			reason := "SD/mean"
			if !(cv < o.Epsilon) {
				reason = "max update"
			}
			log.Infof("%s[%d] converged, reason: %s", o.name, i, reason)
		}
	}
}

// updateMu updates the mean and variance of element i.
func (o *AdaptiveRandomWalk) updateMu(i int, val float64) {
	e := o.element(i)
	if e.converged {
		return
	}
	if math.IsNaN(e.mean) {
		e.mean = val
	}
	// index in batch 0 .. K-1
	bi := e.t % o.K

	if e.t > 0 && bi == 0 {
		gamma := o.robbinsMonro(e)

		bvariance := e.bm2 / float64(o.K-1)

		e.mean += gamma * (e.bmean - e.mean)
		e.variance += gamma * (bvariance - e.variance)

		o.checkConvergence(i, val)

		e.bmean = 0
		e.bm2 = 0
	}

	delta := val - e.bmean
	e.bmean += delta / float64(bi+1)
	e.bm2 += delta * (val - e.bmean)

	e.t++
}

// square computes x^2.
func square(x float64) float64 {
	return x * x
}
