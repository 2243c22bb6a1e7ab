// Package coercion tunes operator proposal scales towards a target
// acceptance probability.
//
// A coercable operator exposes a single real tuning parameter
// (usually log(scaleFactor)). After each proposal the Tuner moves it by
// a diminishing step proportional to the difference between the
// proposal's acceptance probability and the target.
package coercion

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("coercion")

// Mode controls whether an operator is tuned.
type Mode int

const (
	// Default tunes operators which support tuning.
	Default Mode = iota
	// On tunes the operator.
	On
	// Off disables tuning.
	Off
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "default":
		return Default, nil
	case "on", "true":
		return On, nil
	case "off", "false":
		return Off, nil
	}
	return Default, fmt.Errorf("unknown coercion mode: %s", s)
}

func (m Mode) String() string {
	switch m {
	case On:
		return "on"
	case Off:
		return "off"
	}
	return "default"
}

// Coercable is an operator with a tunable proposal parameter.
type Coercable interface {
	Name() string
	CoercableParameter() float64
	SetCoercableParameter(v float64)
	// RawParameter returns the natural-space value, e.g. scaleFactor.
	RawParameter() float64
	CoercionMode() Mode
	TargetAcceptanceProbability() float64
	MinimumAcceptanceLevel() float64
	MaximumAcceptanceLevel() float64
	AcceptanceProbability() float64
	Count() int
}

// IsCoercable returns true if tuning is enabled for c.
func IsCoercable(c Coercable) bool {
	return c.CoercionMode() != Off
}

// Transform maps the operation count of an operator to the
// denominator of the tuning step.
type Transform int

const (
	// Sqrt is the default transform.
	Sqrt Transform = iota
	Log
	Linear
)

// ParseTransform converts a configuration string to a Transform.
func ParseTransform(s string) (Transform, error) {
	switch s {
	case "", "default", "sqrt":
		return Sqrt, nil
	case "log":
		return Log, nil
	case "linear":
		return Linear, nil
	}
	return Sqrt, fmt.Errorf("unknown optimization transform: %s", s)
}

// Apply transforms the operation count.
func (t Transform) Apply(count int) float64 {
	x := float64(count)
	switch t {
	case Log:
		return math.Log(x + 1)
	case Linear:
		return x
	}
	return math.Sqrt(x)
}

// Tuner updates coercable parameters.
type Tuner struct {
	Transform Transform
}

// Coerce moves the coercable parameter of c given the log acceptance
// probability logr (<= 0) of the last proposal. Non-finite updates are
// ignored.
func (t Tuner) Coerce(c Coercable, logr float64) {
	if !IsCoercable(c) {
		return
	}
	if logr > 0 {
		logr = 0
	}
	p := c.CoercableParameter()
	i := t.Transform.Apply(c.Count())
	newp := p + (math.Exp(logr)-c.TargetAcceptanceProbability())/(i+1)
	if newp > -math.MaxFloat64 && newp < math.MaxFloat64 {
		c.SetCoercableParameter(newp)
	} else {
		log.Debugf("%s: ignoring non-finite coercable parameter %v", c.Name(), newp)
	}
}

// Suggest returns a performance suggestion for an operator whose
// acceptance probability is outside its acceptable levels, or an empty
// string.
func Suggest(c Coercable) string {
	if c.Count() == 0 {
		return ""
	}
	p := c.AcceptanceProbability()
	raw := c.RawParameter()
	switch {
	case p < c.MinimumAcceptanceLevel():
		return fmt.Sprintf("%s: acceptance %.3f is low, try decreasing the size to about %.4g",
			c.Name(), p, raw*suggestFactor(p, c.TargetAcceptanceProbability()))
	case p > c.MaximumAcceptanceLevel():
		return fmt.Sprintf("%s: acceptance %.3f is high, try increasing the size to about %.4g",
			c.Name(), p, raw*suggestFactor(p, c.TargetAcceptanceProbability()))
	}
	return ""
}

// suggestFactor is a crude multiplicative correction of the scale
// based on the ratio of acceptance probabilities.
func suggestFactor(p, target float64) float64 {
	p = math.Max(p, 1e-3)
	return math.Exp(p - target)
}
