package operator

import (
	"fmt"
	"math"
)

// Transform maps a parameter element to an unconstrained space.
type Transform interface {
	Forward(x float64) float64
	Inverse(y float64) float64
	// LogJacobian returns log |dy/dx| at x.
	LogJacobian(x float64) float64
}

// Identity is the identity transform.
type Identity struct{}

func (Identity) Forward(x float64) float64     { return x }
func (Identity) Inverse(y float64) float64     { return y }
func (Identity) LogJacobian(x float64) float64 { return 0 }

// Log maps (0, inf) to the real line.
type Log struct{}

func (Log) Forward(x float64) float64     { return math.Log(x) }
func (Log) Inverse(y float64) float64     { return math.Exp(y) }
func (Log) LogJacobian(x float64) float64 { return -math.Log(x) }

// Logit maps (Lower, Upper) to the real line.
type Logit struct {
	Lower, Upper float64
}

func (t Logit) Forward(x float64) float64 {
	return math.Log(x-t.Lower) - math.Log(t.Upper-x)
}

func (t Logit) Inverse(y float64) float64 {
	return t.Lower + (t.Upper-t.Lower)/(1+math.Exp(-y))
}

func (t Logit) LogJacobian(x float64) float64 {
	return math.Log(t.Upper-t.Lower) - math.Log(x-t.Lower) - math.Log(t.Upper-x)
}

// ParseTransform returns a transform by name. lower and upper are used
// by the logit transform.
func ParseTransform(name string, lower, upper float64) (Transform, error) {
	switch name {
	case "", "none", "identity":
		return Identity{}, nil
	case "log":
		return Log{}, nil
	case "logit":
		if !(upper > lower) || math.IsInf(lower, 0) || math.IsInf(upper, 0) {
			return nil, fmt.Errorf("logit transform needs finite bounds, got (%v, %v)", lower, upper)
		}
		return Logit{Lower: lower, Upper: upper}, nil
	}
	return nil, fmt.Errorf("unknown transform: %s", name)
}
