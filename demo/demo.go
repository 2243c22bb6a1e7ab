// Package demo contains small models for trying the operators out.
// Each model provides a parameter store, a target density, the models
// and matrices referenced by its configuration, and a default
// configuration.
package demo

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/Davydov/mcmckernel/dirichlet"
	"bitbucket.org/Davydov/mcmckernel/dist"
	"bitbucket.org/Davydov/mcmckernel/parameter"
	"bitbucket.org/Davydov/mcmckernel/rng"
	"bitbucket.org/Davydov/mcmckernel/sampler"
	"bitbucket.org/Davydov/mcmckernel/trace"
)

// Demo is a ready to sample model.
type Demo struct {
	Name   string
	Store  *parameter.Store
	Target sampler.Target
	// Models and Designs are referenced by the configuration.
	Models  map[string]dirichlet.Model
	Designs map[string]mat.Matrix
	// Config is the default configuration.
	Config string
	// Trace lists the parameters written to the trace, Columns the
	// derived columns.
	Trace   []parameter.Handle
	Columns []trace.Columns
}

type constructor struct {
	config string
	create func(src *rng.Source) (*Demo, error)
}

var constructors = map[string]constructor{
	"mvn":        {mvnConfig, newMVN},
	"regression": {regressionConfig, newRegression},
	"mixture":    {mixtureConfig, newMixture},
	"discrete":   {discreteConfig, newDiscrete},
}

// Names returns the names of the available models.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config returns the default configuration of a model.
func Config(name string) (string, error) {
	c, ok := constructors[name]
	if !ok {
		return "", errors.Errorf("unknown model: %s", name)
	}
	return c.config, nil
}

// New creates a model. Simulated data are drawn from src.
func New(name string, src *rng.Source) (*Demo, error) {
	c, ok := constructors[name]
	if !ok {
		return nil, errors.Errorf("unknown model: %s", name)
	}
	d, err := c.create(src)
	if err != nil {
		return nil, err
	}
	d.Name = name
	d.Config = c.config
	if d.Models == nil {
		d.Models = map[string]dirichlet.Model{}
	}
	if d.Designs == nil {
		d.Designs = map[string]mat.Matrix{}
	}
	return d, nil
}

const mvnConfig = `
schedules:
  - operators:
      - name: mvn
        kind: adaptive-mvn
        parameter: x
        weight: 3
        update_every: 100
      - name: rw
        kind: random-walk
        parameter: x
        weight: 1
        window_size: 0.5
`

// newMVN is a correlated bivariate normal.
func newMVN(src *rng.Source) (*Demo, error) {
	store := parameter.NewStore()
	x := store.MustAdd(parameter.New("x", 0, 0))
	sigma := mat.NewSymDense(2, []float64{
		1, 0.9,
		0.9, 2,
	})
	normal, ok := distmv.NewNormal([]float64{1, -1}, sigma, nil)
	if !ok {
		return nil, errors.New("covariance is not positive definite")
	}
	var buf []float64
	return &Demo{
		Store: store,
		Target: sampler.TargetFunc(func(store *parameter.Store) (float64, error) {
			buf = store.Get(x).Values(buf)
			return normal.LogProb(buf), nil
		}),
		Trace: []parameter.Handle{x},
	}, nil
}

const regressionConfig = `
schedules:
  - operators:
      - name: beta
        kind: adaptive-mvn
        parameter: beta
        design: x
        weight: 3
      - name: sigma
        kind: random-walk
        parameter: sigma
        weight: 1
        window_size: 0.1
`

// newRegression is a linear regression y = X*beta + e with simulated
// data. The proposal covariance of beta starts at (X'X)^-1.
func newRegression(src *rng.Source) (*Demo, error) {
	const n = 50
	trueBeta := []float64{2, -1, 0.5}
	x := mat.NewDense(n, len(trueBeta), nil)
	y := make([]float64, n)
	noise := distuv.Normal{Mu: 0, Sigma: 0.5, Src: src}
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		x.Set(i, 1, 4*src.Float64()-2)
		x.Set(i, 2, src.NormFloat64())
		y[i] = noise.Rand()
		for j, b := range trueBeta {
			y[i] += x.At(i, j) * b
		}
	}

	store := parameter.NewStore()
	beta := store.MustAdd(parameter.New("beta", 0, 0, 0))
	sd := store.MustAdd(parameter.NewBounded("sigma", 1e-3, 10, 1))
	prior := distuv.Normal{Mu: 0, Sigma: 10}
	yv := mat.NewVecDense(n, y)
	var fit mat.VecDense
	return &Demo{
		Store: store,
		Target: sampler.TargetFunc(func(store *parameter.Store) (float64, error) {
			b := mat.NewVecDense(len(trueBeta), store.Get(beta).Values(nil))
			s := store.Get(sd).Get(0)
			fit.MulVec(x, b)
			fit.SubVec(yv, &fit)
			rss := mat.Dot(&fit, &fit)
			l := -float64(n)*math.Log(s) - rss/(2*s*s)
			for i := 0; i < b.Len(); i++ {
				l += prior.LogProb(b.AtVec(i))
			}
			// 1/sigma prior
			return l - math.Log(s), nil
		}),
		Designs: map[string]mat.Matrix{"x": x},
		Trace:   []parameter.Handle{beta, sd},
	}, nil
}

const mixtureConfig = `
schedules:
  - operators:
      - name: dp
        kind: dirichlet-process
        model: normal-gamma
        assignments: z
        realized: theta
        intensity: intensity
        weight: 1
      - name: intensity
        kind: random-walk
        parameter: intensity
        weight: 1
        window_size: 0.5
`

// newMixture is a Dirichlet process mixture of normals fitted to data
// simulated from three components.
func newMixture(src *rng.Source) (*Demo, error) {
	means := []float64{-4, 0, 5}
	var y []float64
	for _, m := range means {
		c := distuv.Normal{Mu: m, Sigma: 0.7, Src: src}
		for i := 0; i < 20; i++ {
			y = append(y, c.Rand())
		}
	}
	model := &dirichlet.NormalGamma{Mu0: 0, Kappa0: 0.05, Alpha: 2, Beta: 1, Data: y}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	store := parameter.NewStore()
	z := store.MustAdd(parameter.New("z", make([]float64, len(y))...))
	thetaP := parameter.New("theta", 0, 1)
	thetaP.SetBounds(1, 0, math.Inf(1))
	theta := store.MustAdd(thetaP)
	g := store.MustAdd(parameter.NewBounded("intensity", 0, 50, 1))
	prior, err := dirichlet.NewPrior(store, z, theta, g, model)
	if err != nil {
		return nil, err
	}
	hyper := distuv.Gamma{Alpha: 1, Beta: 1}
	v := make([]float64, model.Dim())
	return &Demo{
		Store: store,
		Target: sampler.TargetFunc(func(store *parameter.Store) (float64, error) {
			l, err := prior.LogDensity(store)
			if err != nil {
				return 0, err
			}
			zs, ts := store.Get(z), store.Get(theta)
			for i := range y {
				k := int(zs.Get(i))
				for j := range v {
					v[j] = ts.Get(k*len(v) + j)
				}
				l += model.LogLikelihood(i, v)
			}
			return l + hyper.LogProb(store.Get(g).Get(0)), nil
		}),
		Models:  map[string]dirichlet.Model{"normal-gamma": model},
		Columns: []trace.Columns{prior},
	}, nil
}

const discreteConfig = `
schedules:
  - policy: sequential
    operators:
      - name: count
        kind: random-walk-integer
        parameter: n
        weight: 1
        window: 3
      - name: bits
        kind: hierarchical-bit-flip
        parameter: top
        strata: [stratum1, stratum2]
        prior_on_sum: true
        weight: 1
`

// newDiscrete combines a binomial count with hierarchical indicators.
// The flip operator uses the prior on the number of on bits, so the
// target is flat in the top level indicators and their sum is uniform.
func newDiscrete(src *rng.Source) (*Demo, error) {
	const (
		trials = 20
		p      = 0.3
		d      = 8
	)
	store := parameter.NewStore()
	n := store.MustAdd(parameter.NewBounded("n", 0, trials, 0))
	top := store.MustAdd(parameter.New("top", make([]float64, d)...))
	s1 := store.MustAdd(parameter.New("stratum1", make([]float64, d)...))
	s2 := store.MustAdd(parameter.New("stratum2", make([]float64, d)...))
	for i := 0; i < d; i += 2 {
		store.Get(s1).Set(i, 1)
	}
	logp, logq := math.Log(p), math.Log(1-p)
	return &Demo{
		Store: store,
		Target: sampler.TargetFunc(func(store *parameter.Store) (float64, error) {
			k := int(store.Get(n).Get(0))
			return dist.LogChoose(trials, k) + float64(k)*logp + float64(trials-k)*logq, nil
		}),
		Trace: []parameter.Handle{n, top, s1, s2},
	}, nil
}
