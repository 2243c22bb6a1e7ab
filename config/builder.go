package config

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/mcmckernel/coercion"
	"bitbucket.org/Davydov/mcmckernel/dirichlet"
	"bitbucket.org/Davydov/mcmckernel/operator"
	"bitbucket.org/Davydov/mcmckernel/parameter"
	"bitbucket.org/Davydov/mcmckernel/schedule"
)

// Builder creates schedules over the parameters of a store.
type Builder struct {
	Store *parameter.Store
	// Models are the Dirichlet process models available by name.
	Models map[string]dirichlet.Model
	// Designs are the data matrices available to adaptive-mvn
	// operators by name; the starting covariance is (X'X)^-1.
	Designs map[string]mat.Matrix
}

// NewBuilder creates a builder.
func NewBuilder(store *parameter.Store) *Builder {
	return &Builder{
		Store:   store,
		Models:  map[string]dirichlet.Model{},
		Designs: map[string]mat.Matrix{},
	}
}

// Build creates the schedule. More than one schedule results in a
// combined schedule.
func (b *Builder) Build(cfg *Config) (schedule.Schedule, error) {
	var schedules []schedule.Schedule
	for _, sc := range cfg.Schedules {
		s, err := b.Schedule(sc)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	if len(schedules) == 1 {
		return schedules[0], nil
	}
	log.Infof("Combining %d schedules", len(schedules))
	return schedule.NewCombined(schedules...), nil
}

// Schedule creates a simple schedule.
func (b *Builder) Schedule(sc Schedule) (*schedule.Simple, error) {
	policy, err := schedule.ParsePolicy(sc.Policy)
	if err != nil {
		return nil, errors.Wrap(operator.ErrConfiguration, err.Error())
	}
	transform, err := coercion.ParseTransform(sc.Transform)
	if err != nil {
		return nil, errors.Wrap(operator.ErrConfiguration, err.Error())
	}
	s := schedule.NewSimple(policy, transform)
	for _, oc := range sc.Operators {
		op, err := b.Operator(oc)
		if err != nil {
			return nil, err
		}
		if err := s.AddOperator(op); err != nil {
			return nil, err
		}
		log.Debugf("Added operator %s (%s, weight %v)", oc.Name, oc.Kind, oc.Weight)
	}
	return s, nil
}

// checked converts a constructor result, so that a failed construction
// does not return a typed nil operator.
func checked[T operator.Operator](op T, err error) (operator.Operator, error) {
	if err != nil {
		return nil, err
	}
	return op, nil
}

// lookup resolves a parameter name.
func (b *Builder) lookup(op, name string) (parameter.Handle, error) {
	if name == "" {
		return 0, errors.Wrapf(operator.ErrConfiguration, "%s: parameter is not set", op)
	}
	h, ok := b.Store.Lookup(name)
	if !ok {
		return 0, errors.Wrapf(operator.ErrConfiguration, "%s: unknown parameter %s", op, name)
	}
	return h, nil
}

func (b *Builder) tuning(oc Operator) (operator.Tuning, error) {
	t := operator.DefaultTuning()
	mode, err := coercion.ParseMode(oc.Coercion)
	if err != nil {
		return t, errors.Wrapf(operator.ErrConfiguration, "%s: %v", oc.Name, err)
	}
	t.Mode = mode
	if oc.TargetAcceptance > 0 {
		t.Target = oc.TargetAcceptance
	}
	return t, nil
}

// Operator creates an operator.
func (b *Builder) Operator(oc Operator) (operator.Operator, error) {
	switch oc.Kind {
	case RandomWalk:
		return b.randomWalk(oc)
	case AdaptiveRandomWalk:
		return b.adaptiveRandomWalk(oc)
	case AdaptiveMVN:
		return b.adaptiveMVN(oc)
	case RandomWalkInteger:
		h, err := b.lookup(oc.Name, oc.Parameter)
		if err != nil {
			return nil, err
		}
		w := oc.Window
		if w == 0 {
			w = 1
		}
		return checked(operator.NewRandomWalkInteger(oc.Name, b.Store, h, oc.Weight, w))
	case HierarchicalBitFlip:
		top, err := b.lookup(oc.Name, oc.Parameter)
		if err != nil {
			return nil, err
		}
		strata := make([]parameter.Handle, len(oc.Strata))
		for i, name := range oc.Strata {
			if strata[i], err = b.lookup(oc.Name, name); err != nil {
				return nil, err
			}
		}
		return checked(operator.NewHierarchicalBitFlip(oc.Name, b.Store, top, strata, oc.Weight, oc.PriorOnSum))
	case DirichletProcess:
		return b.dirichletProcess(oc)
	}
	return nil, errors.Wrapf(operator.ErrConfiguration, "%s: unknown operator kind %s", oc.Name, oc.Kind)
}

func (b *Builder) randomWalk(oc Operator) (operator.Operator, error) {
	h, err := b.lookup(oc.Name, oc.Parameter)
	if err != nil {
		return nil, err
	}
	t, err := b.tuning(oc)
	if err != nil {
		return nil, err
	}
	w := oc.WindowSize
	if w == 0 {
		w = 1
	}
	return checked(operator.NewRandomWalk(oc.Name, h, oc.Weight, w, !oc.Uniform, t))
}

func (b *Builder) adaptiveRandomWalk(oc Operator) (operator.Operator, error) {
	h, err := b.lookup(oc.Name, oc.Parameter)
	if err != nil {
		return nil, err
	}
	as := operator.NewAdaptiveSettings()
	if oc.SD > 0 {
		as.SD = oc.SD
	}
	if oc.Skip > 0 {
		as.Skip = oc.Skip
	}
	if oc.MaxAdapt > 0 {
		as.MaxAdapt = oc.MaxAdapt
	}
	return checked(operator.NewAdaptiveRandomWalk(oc.Name, h, oc.Weight, as))
}

func (b *Builder) adaptiveMVN(oc Operator) (operator.Operator, error) {
	h, err := b.lookup(oc.Name, oc.Parameter)
	if err != nil {
		return nil, err
	}
	p := b.Store.Get(h)
	s := operator.NewMVNSettings()
	if s.Tuning, err = b.tuning(oc); err != nil {
		return nil, err
	}
	if oc.ScaleFactor > 0 {
		s.ScaleFactor = oc.ScaleFactor
	}
	if oc.UpdateEvery > 0 {
		s.Every = oc.UpdateEvery
	}
	s.Skip = oc.Skip
	s.MaxAdapt = oc.MaxAdapt
	if len(oc.Transforms) > 0 {
		if len(oc.Transforms) != p.Dim() {
			return nil, errors.Wrapf(operator.ErrConfiguration, "%s: %d transforms for %s of dimension %d",
				oc.Name, len(oc.Transforms), p.Name(), p.Dim())
		}
		s.Transforms = make([]operator.Transform, p.Dim())
		for i, name := range oc.Transforms {
			lo, hi := p.Bounds(i)
			if s.Transforms[i], err = operator.ParseTransform(name, lo, hi); err != nil {
				return nil, errors.Wrapf(operator.ErrConfiguration, "%s: %v", oc.Name, err)
			}
		}
	}
	if oc.Design != "" {
		x, ok := b.Designs[oc.Design]
		if !ok {
			return nil, errors.Wrapf(operator.ErrConfiguration, "%s: unknown design matrix %s", oc.Name, oc.Design)
		}
		return checked(operator.NewAdaptiveMVNFromData(oc.Name, b.Store, h, oc.Weight, x, s))
	}
	v := oc.InitialVariance
	if v == 0 {
		v = 1
	}
	diag := make([]float64, p.Dim())
	for i := range diag {
		diag[i] = v
	}
	return checked(operator.NewAdaptiveMVN(oc.Name, b.Store, h, oc.Weight, mat.NewDiagDense(p.Dim(), diag), s))
}

func (b *Builder) dirichletProcess(oc Operator) (operator.Operator, error) {
	model, ok := b.Models[oc.Model]
	if !ok {
		return nil, errors.Wrapf(operator.ErrConfiguration, "%s: unknown model %q", oc.Name, oc.Model)
	}
	z, err := b.lookup(oc.Name, oc.Assignments)
	if err != nil {
		return nil, err
	}
	theta, err := b.lookup(oc.Name, oc.Realized)
	if err != nil {
		return nil, err
	}
	g, err := b.lookup(oc.Name, oc.Intensity)
	if err != nil {
		return nil, err
	}
	s := dirichlet.NewSettings()
	s.UpdateParameters = !oc.FixRealized
	if oc.Step > 0 {
		s.Step = oc.Step
	}
	if oc.Steps > 0 {
		s.Steps = oc.Steps
	}
	return checked(dirichlet.NewOperator(oc.Name, b.Store, z, theta, g, oc.Weight, model, s))
}
