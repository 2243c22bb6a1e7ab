package operator

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// MVNSettings are settings of the adaptive multivariate normal
// operator.
type MVNSettings struct {
	// ScaleFactor multiplies the standard normal draws.
	ScaleFactor float64
	// Every is the length of an adaptation window.
	Every int
	// Skip is the number of proposals before the first window starts.
	Skip int
	// MaxAdapt stops adaptation after this many proposals, 0 adapts
	// forever.
	MaxAdapt int
	// Offset and Exponent define the gain 1/(t+Offset)^Exponent.
	Offset   float64
	Exponent float64
	// Transforms are per-element transforms, nil means identity.
	Transforms []Transform
	Tuning
}

// NewMVNSettings returns default settings.
func NewMVNSettings() *MVNSettings {
	return &MVNSettings{
		ScaleFactor: 1,
		Every:       100,
		Offset:      3,
		Exponent:    0.8,
		Tuning:      DefaultTuning(),
	}
}

// AdaptiveMVN proposes correlated moves x' = x + L*(scaleFactor*eps)
// in transformed space, where L*L' is the proposal covariance. The
// covariance is learned from the chain: transformed states are
// accumulated every proposal, and after every Every proposals the
// empirical covariance of the window is blended into the proposal
// covariance with the gain 1/(t+Offset)^Exponent.
type AdaptiveMVN struct {
	Base
	param       parameter.Handle
	dim         int
	scaleFactor float64

	cov  *mat.SymDense
	chol *mat.TriDense

	// accumulation window
	n     int
	sum   []float64
	cross *mat.SymDense

	adaptations int
	iter        int

	x, nx   []float64
	eps     *mat.VecDense
	step    *mat.VecDense
	changed []parameter.Change

	*MVNSettings
}

// NewAdaptiveMVN creates an adaptive multivariate normal operator for
// the parameter h with the starting covariance cov. A covariance which
// is not positive definite is a configuration error.
func NewAdaptiveMVN(name string, store *parameter.Store, h parameter.Handle, weight float64, cov mat.Symmetric, s *MVNSettings) (*AdaptiveMVN, error) {
	b, err := NewBase(name, weight)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = NewMVNSettings()
	}
	sc := *s
	s = &sc
	if err := s.Tuning.validate(name); err != nil {
		return nil, err
	}
	p := store.Get(h)
	d := p.Dim()
	if d == 0 {
		return nil, configf("%s: parameter %s is empty", name, p.Name())
	}
	if r, c := cov.Dims(); r != d || c != d {
		return nil, configf("%s: covariance is %dx%d, parameter %s has dimension %d", name, r, c, p.Name(), d)
	}
	if !(s.ScaleFactor > 0) {
		return nil, configf("%s: scale factor should be > 0, got %v", name, s.ScaleFactor)
	}
	if s.Every < 2 {
		return nil, configf("%s: adaptation window should be >= 2, got %d", name, s.Every)
	}
	if s.Transforms == nil {
		s.Transforms = make([]Transform, d)
		for i := range s.Transforms {
			s.Transforms[i] = Identity{}
		}
	}
	if len(s.Transforms) != d {
		return nil, configf("%s: %d transforms for dimension %d", name, len(s.Transforms), d)
	}
	for i, t := range s.Transforms {
		if y := t.Forward(p.Get(i)); math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, configf("%s: %s[%d]=%v is outside of the domain of its transform", name, p.Name(), i, p.Get(i))
		}
	}

	o := &AdaptiveMVN{
		Base:        b,
		param:       h,
		dim:         d,
		scaleFactor: s.ScaleFactor,
		cov:         mat.NewSymDense(d, nil),
		chol:        mat.NewTriDense(d, mat.Lower, nil),
		sum:         make([]float64, d),
		cross:       mat.NewSymDense(d, nil),
		x:           make([]float64, d),
		nx:          make([]float64, d),
		eps:         mat.NewVecDense(d, nil),
		step:        mat.NewVecDense(d, nil),
		MVNSettings: s,
	}
	o.cov.CopySym(cov)
	if err := o.factorize(); err != nil {
		return nil, err
	}
	return o, nil
}

// NewAdaptiveMVNFromData creates an adaptive multivariate normal
// operator whose starting covariance is (X'X)^-1.
func NewAdaptiveMVNFromData(name string, store *parameter.Store, h parameter.Handle, weight float64, x mat.Matrix, s *MVNSettings) (*AdaptiveMVN, error) {
	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, configf("%s: X'X is not positive definite", name)
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, configf("%s: cannot invert X'X: %v", name, err)
	}
	return NewAdaptiveMVN(name, store, h, weight, &inv, s)
}

// factorize recomputes the Cholesky factor of the proposal covariance.
func (o *AdaptiveMVN) factorize() error {
	var chol mat.Cholesky
	if ok := chol.Factorize(o.cov); !ok {
		return configf("%s: proposal covariance is not positive definite", o.name)
	}
	chol.LTo(o.chol)
	return nil
}

// Parameters returns the modified parameter.
func (o *AdaptiveMVN) Parameters() []parameter.Handle {
	return []parameter.Handle{o.param}
}

// Propose makes a correlated move of all elements. A proposal outside
// the bounds is an operator failure; a covariance which stopped being
// positive definite after adaptation is a fatal error.
func (o *AdaptiveMVN) Propose(ctx *Context) (Proposal, error) {
	o.Begin()
	p := ctx.Store.Get(o.param)
	if p.Dim() != o.dim {
		return Proposal{}, invariantf("%s: dimension of %s changed from %d to %d", o.name, p.Name(), o.dim, p.Dim())
	}
	for i := range o.x {
		o.x[i] = o.Transforms[i].Forward(p.Get(i))
		if math.IsNaN(o.x[i]) || math.IsInf(o.x[i], 0) {
			return Proposal{}, invariantf("%s: %s[%d]=%v is outside of the domain of its transform", o.name, p.Name(), i, p.Get(i))
		}
	}

	o.iter++
	if o.iter > o.Skip && (o.MaxAdapt <= 0 || o.iter <= o.MaxAdapt) {
		if err := o.accumulate(); err != nil {
			return Proposal{}, err
		}
	}

	for i := 0; i < o.dim; i++ {
		o.eps.SetVec(i, ctx.Rand.NormFloat64()*o.scaleFactor)
	}
	o.step.MulVec(o.chol, o.eps)

	logHR := 0.0
	for i := range o.nx {
		t := o.Transforms[i]
		v := t.Inverse(o.x[i] + o.step.AtVec(i))
		if math.IsNaN(v) || math.IsInf(v, 0) || !p.ValueInRange(i, v) {
			return Proposal{}, failf("%s: proposed %v for %s[%d]", o.name, v, p.Name(), i)
		}
		o.nx[i] = v
		logHR += t.LogJacobian(p.Get(i)) - t.LogJacobian(v)
	}
	if math.IsNaN(logHR) {
		return Proposal{}, failf("%s: undefined Jacobian", o.name)
	}
	if err := p.SetValues(o.nx); err != nil {
		return Proposal{}, invariantf("%s: %v", o.name, err)
	}
	o.changed = append(o.changed[:0], parameter.Change{Param: o.param, Index: -1})
	return Proposal{LogHastingsRatio: logHR, Changed: o.changed}, nil
}

// accumulate adds the current transformed state to the window and
// adapts when the window is full.
func (o *AdaptiveMVN) accumulate() error {
	o.n++
	for i, xi := range o.x {
		o.sum[i] += xi
		for j := 0; j <= i; j++ {
			o.cross.SetSym(i, j, o.cross.At(i, j)+xi*o.x[j])
		}
	}
	if o.n >= o.Every {
		return o.adapt()
	}
	return nil
}

// adapt blends the window covariance into the proposal covariance.
func (o *AdaptiveMVN) adapt() error {
	n := float64(o.n)
	gamma := 1 / math.Pow(float64(o.adaptations)+o.Offset, o.Exponent)
	for i := 0; i < o.dim; i++ {
		for j := 0; j <= i; j++ {
			emp := (o.cross.At(i, j) - o.sum[i]*o.sum[j]/n) / (n - 1)
			cur := o.cov.At(i, j)
			o.cov.SetSym(i, j, cur+gamma*(emp-cur))
		}
	}
	o.adaptations++
	if err := o.factorize(); err != nil {
		return err
	}
	log.Debugf("%s: adaptation %d, gain %.4g", o.name, o.adaptations, gamma)

	o.n = 0
	for i := range o.sum {
		o.sum[i] = 0
	}
	o.cross.Zero()
	return nil
}

// ProposalCovariance returns a copy of the current proposal
// covariance (without the scale factor).
func (o *AdaptiveMVN) ProposalCovariance() *mat.SymDense {
	c := mat.NewSymDense(o.dim, nil)
	c.CopySym(o.cov)
	return c
}

// Adaptations returns the number of adaptations performed.
func (o *AdaptiveMVN) Adaptations() int {
	return o.adaptations
}

// CoercableParameter returns log(scaleFactor).
func (o *AdaptiveMVN) CoercableParameter() float64 {
	return math.Log(o.scaleFactor)
}

// SetCoercableParameter sets log(scaleFactor).
func (o *AdaptiveMVN) SetCoercableParameter(v float64) {
	o.scaleFactor = math.Exp(v)
}

// RawParameter returns the scale factor.
func (o *AdaptiveMVN) RawParameter() float64 {
	return o.scaleFactor
}
