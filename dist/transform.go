package dist

import "math"

// A Transform is the change of variables between a family's natural support
// and the unconstrained space the sampler works in. LogJacobian is the log of
// |d natural / d unconstrained| - the correction term that must be added to
// the natural-space log density when evaluating in unconstrained space.
// Omitting it is the classic way to get a silently biased posterior, so the
// transform tests verify the identity directly.
type Transform interface {
	String() string
	ToNatural(u float64) float64
	ToUnconstrained(x float64) float64
	DNatural(u float64) float64
	LogJacobian(u float64) float64
	GradLogJacobian(u float64) float64
}

// TransformFor returns the transform matching a domain. Discrete domains get
// Identity: discrete nodes are observed-only and never enter the sampler's
// parameter vector.
func TransformFor(d Domain) Transform {
	switch d {
	case Positive:
		return LogTransform{}
	case UnitInterval:
		return LogitTransform{}
	default:
		return Identity{}
	}
}

// Identity is the no-op transform for unconstrained nodes.
type Identity struct{}

func (Identity) String() string                    { return "identity" }
func (Identity) ToNatural(u float64) float64       { return u }
func (Identity) ToUnconstrained(x float64) float64 { return x }
func (Identity) DNatural(u float64) float64        { return 1.0 }
func (Identity) LogJacobian(u float64) float64     { return 0.0 }
func (Identity) GradLogJacobian(u float64) float64 { return 0.0 }

// LogTransform maps positive naturals to the real line: natural = exp(u).
type LogTransform struct{}

func (LogTransform) String() string                    { return "log" }
func (LogTransform) ToNatural(u float64) float64       { return math.Exp(u) }
func (LogTransform) ToUnconstrained(x float64) float64 { return math.Log(x) }
func (LogTransform) DNatural(u float64) float64        { return math.Exp(u) }
func (LogTransform) LogJacobian(u float64) float64     { return u }
func (LogTransform) GradLogJacobian(u float64) float64 { return 1.0 }

// LogitTransform maps (0,1) naturals to the real line: natural = sigmoid(u).
type LogitTransform struct{}

func (LogitTransform) String() string { return "logit" }

func (LogitTransform) ToNatural(u float64) float64 { return Sigmoid(u) }

func (LogitTransform) ToUnconstrained(x float64) float64 {
	return math.Log(x) - math.Log1p(-x)
}

func (LogitTransform) DNatural(u float64) float64 {
	s := Sigmoid(u)
	return s * (1.0 - s)
}

func (LogitTransform) LogJacobian(u float64) float64 {
	// log(s) + log(1-s) written via softplus for stability at large |u|
	return -Softplus(-u) - Softplus(u)
}

func (LogitTransform) GradLogJacobian(u float64) float64 {
	return 1.0 - 2.0*Sigmoid(u)
}
