package dirichlet

import (
	"math"

	"github.com/pkg/errors"

	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/parameter"
)

// Settings are settings of the Dirichlet process operator.
type Settings struct {
	// UpdateParameters refreshes the realized values after every
	// sweep: conjugate models draw them from the posterior, other
	// models make Metropolis steps.
	UpdateParameters bool
	// Step is the standard deviation of the Metropolis proposals.
	Step float64
	// Steps is the number of Metropolis steps per cluster.
	Steps int
}

// NewSettings returns default settings.
func NewSettings() Settings {
	return Settings{
		UpdateParameters: true,
		Step:             0.5,
		Steps:            5,
	}
}

// Operator is a Gibbs operator which reassigns every observation to a
// cluster given all the other assignments.
//
// For a conjugate model the weight of a new cluster uses the prior
// predictive density. Otherwise it uses the likelihood of an auxiliary
// parameter: the realized value of the cluster the observation has just
// left if it was a singleton, or a fresh draw from the base measure
// (Neal's algorithm 8 with one auxiliary parameter).
type Operator struct {
	operator.Base
	z, theta, intensity parameter.Handle
	model               Model
	conj                Conjugate
	dim                 int
	lower, upper        []float64
	Settings

	st      state
	logw    []float64
	p       []float64
	aux     []float64
	prop    []float64
	members []int
	changed []parameter.Change
	sweeps  int
}

// NewOperator creates a Dirichlet process operator. z holds the
// assignments of model.Len() observations, theta the flattened
// realized values and intensity the concentration.
func NewOperator(name string, store *parameter.Store, z, theta, intensity parameter.Handle, weight float64,
	model Model, s Settings) (*Operator, error) {
	b, err := operator.NewBase(name, weight)
	if err != nil {
		return nil, err
	}
	dim := model.Dim()
	if err := checkParameters(store, z, theta, intensity, dim); err != nil {
		return nil, errors.WithMessage(err, name)
	}
	if n := store.Get(z).Dim(); n != model.Len() {
		return nil, errors.Wrapf(operator.ErrConfiguration, "%s: %d assignments for %d observations",
			name, n, model.Len())
	}
	if s.UpdateParameters && !(s.Step > 0) {
		return nil, errors.Wrapf(operator.ErrConfiguration, "%s: step should be > 0, got %v", name, s.Step)
	}
	o := &Operator{
		Base:      b,
		z:         z,
		theta:     theta,
		intensity: intensity,
		model:     model,
		dim:       dim,
		Settings:  s,
		aux:       make([]float64, dim),
		prop:      make([]float64, dim),
	}
	o.conj, _ = model.(Conjugate)
	o.lower, o.upper = clusterBounds(store.Get(theta), dim)
	return o, nil
}

// Gibbs marks the operator as a Gibbs operator.
func (o *Operator) Gibbs() {}

// Conjugate returns true if the new cluster weights use the prior
// predictive density.
func (o *Operator) Conjugate() bool {
	return o.conj != nil
}

// Parameters returns the assignments and the realized values.
func (o *Operator) Parameters() []parameter.Handle {
	return []parameter.Handle{o.z, o.theta}
}

// Sweeps returns the number of completed sweeps.
func (o *Operator) Sweeps() int {
	return o.sweeps
}

// Propose makes a Gibbs sweep over all the observations.
func (o *Operator) Propose(ctx *operator.Context) (operator.Proposal, error) {
	o.Begin()
	z := ctx.Store.Get(o.z)
	theta := ctx.Store.Get(o.theta)
	g := ctx.Store.Get(o.intensity).Get(0)
	if !(g > 0) || math.IsInf(g, 1) {
		return operator.Proposal{}, errors.Wrapf(operator.ErrOperatorFailed, "%s: intensity %v", o.Name(), g)
	}
	if err := o.st.load(z, theta, o.dim); err != nil {
		return operator.Proposal{}, errors.WithMessage(err, o.Name())
	}

	n := len(o.st.labels)
	norm := math.Log(float64(n) - 1 + g)
	logNew := math.Log(g) - norm
	for i := 0; i < n; i++ {
		o.reassign(ctx, i, norm, logNew)
	}
	if o.UpdateParameters {
		o.updateParameters(ctx)
	}
	if err := o.st.check(); err != nil {
		return operator.Proposal{}, errors.WithMessage(err, o.Name())
	}
	o.st.store(z, theta, o.lower, o.upper)
	o.sweeps++
	log.Debugf("%s: sweep %d, %d clusters", o.Name(), o.sweeps, o.st.K())

	o.changed = append(o.changed[:0],
		parameter.Change{Param: o.z, Index: -1},
		parameter.Change{Param: o.theta, Index: -1})
	return operator.Proposal{Changed: o.changed}, nil
}

// reassign samples a new label for the observation i.
func (o *Operator) reassign(ctx *operator.Context, i int, norm, logNew float64) {
	st := &o.st
	k := st.labels[i]
	st.counts[k]--
	haveAux := false
	if st.counts[k] == 0 {
		copy(o.aux, st.values[k])
		haveAux = true
		st.remove(k)
		st.labels[i] = 0
	}

	K := st.K()
	o.logw = o.logw[:0]
	for c := 0; c < K; c++ {
		o.logw = append(o.logw, math.Log(float64(st.counts[c]))-norm+o.model.LogLikelihood(i, st.values[c]))
	}
	if o.conj != nil {
		o.logw = append(o.logw, logNew+o.conj.LogPredictive(i))
	} else {
		if !haveAux {
			o.model.Sample(ctx.Rand, o.aux)
		}
		o.logw = append(o.logw, logNew+o.model.LogLikelihood(i, o.aux))
	}

	if cap(o.p) < len(o.logw) {
		o.p = make([]float64, 2*len(o.logw))
	}
	o.p = o.p[:len(o.logw)]
	c := ctx.Rand.LogCategorical(o.logw, o.p)
	if c == K {
		if o.conj != nil {
			o.members = append(o.members[:0], i)
			o.conj.SamplePosterior(ctx.Rand, o.members, o.aux)
		}
		c = st.add(o.aux)
	}
	st.labels[i] = c
	st.counts[c]++
}

// updateParameters refreshes the realized values given the
// assignments.
func (o *Operator) updateParameters(ctx *operator.Context) {
	for k := range o.st.values {
		o.members = o.st.members(k, o.members)
		if o.conj != nil {
			o.conj.SamplePosterior(ctx.Rand, o.members, o.st.values[k])
			continue
		}
		cur := o.clusterLogDensity(o.st.values[k])
		for s := 0; s < o.Steps; s++ {
			for j, v := range o.st.values[k] {
				o.prop[j] = v + o.Step*ctx.Rand.NormFloat64()
			}
			l := o.clusterLogDensity(o.prop)
			if l-cur >= 0 || math.Log(ctx.Rand.Float64()) < l-cur {
				copy(o.st.values[k], o.prop)
				cur = l
			}
		}
	}
}

// clusterLogDensity returns the unnormalized log posterior of a cluster
// parameter given the current members.
func (o *Operator) clusterLogDensity(v []float64) float64 {
	for j, x := range v {
		if x < o.lower[j] || x > o.upper[j] {
			return math.Inf(-1)
		}
	}
	l := o.model.LogDensity(v)
	for _, i := range o.members {
		l += o.model.LogLikelihood(i, v)
	}
	return l
}
