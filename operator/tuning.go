package operator

import (
	"bitbucket.org/Davydov/mcmckernel/coercion"
)

// Tuning holds the coercion settings of a coercable operator.
type Tuning struct {
	// Mode enables or disables tuning.
	Mode coercion.Mode
	// Target is the target acceptance probability.
	Target float64
	// Min and Max are the acceptable acceptance levels used for
	// performance suggestions.
	Min float64
	Max float64
}

// DefaultTuning returns tuning settings targeting the acceptance
// probability of 0.234.
func DefaultTuning() Tuning {
	return Tuning{
		Mode:   coercion.Default,
		Target: 0.234,
		Min:    0.1,
		Max:    0.4,
	}
}

// CoercionMode returns the coercion mode.
func (t *Tuning) CoercionMode() coercion.Mode {
	return t.Mode
}

// TargetAcceptanceProbability returns the target acceptance
// probability.
func (t *Tuning) TargetAcceptanceProbability() float64 {
	return t.Target
}

// MinimumAcceptanceLevel returns the lowest good acceptance
// probability.
func (t *Tuning) MinimumAcceptanceLevel() float64 {
	return t.Min
}

// MaximumAcceptanceLevel returns the highest good acceptance
// probability.
func (t *Tuning) MaximumAcceptanceLevel() float64 {
	return t.Max
}

func (t *Tuning) validate(name string) error {
	if !(t.Target > 0 && t.Target < 1) {
		return configf("%s: target acceptance probability should be in (0, 1), got %v", name, t.Target)
	}
	if t.Min > t.Max {
		return configf("%s: minimum acceptance level %v > maximum %v", name, t.Min, t.Max)
	}
	return nil
}
