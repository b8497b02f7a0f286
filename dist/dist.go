// Package dist provides the closed-form log density math for the distribution
// families a model graph can use: the density itself, its gradient in the
// value, and its gradient in the parameters (hierarchical parents need the
// parameter gradients). It also provides the change-of-variable transforms
// that let a gradient sampler work in unconstrained space.
package dist

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Domain is the support of a family. It determines which Transform the
// sampler applies to a latent node.
type Domain int

// Domain constants for all supported families
const (
	Unconstrained Domain = iota
	Positive
	UnitInterval
	Discrete
)

func (d Domain) String() string {
	switch d {
	case Unconstrained:
		return "unconstrained"
	case Positive:
		return "positive"
	case UnitInterval:
		return "unit-interval"
	case Discrete:
		return "discrete"
	default:
		return "UNKNOWN"
	}
}

// A Family is one supported distribution. All methods operate on the family's
// natural support - transforms to unconstrained space are layered on top by
// the model evaluator, NOT here.
//
// Parameter slices are checked on every call: parameters are often parent
// node values that change per draw, and an out-of-domain value (like a
// non-positive Beta concentration) must surface as an InvalidParameterError
// so the sampler can treat the proposal as rejected instead of crashing.
type Family interface {
	String() string
	NumParams() int
	ParamNames() []string
	Domain() Domain
	CheckParams(params []float64) error
	LogDensity(x float64, params []float64) (float64, error)
	GradValue(x float64, params []float64) (float64, error)
	GradParams(x float64, params []float64, grad []float64) error
}

// InvalidParameterError means a distribution received a parameter outside its
// legal domain. During sampling this is recoverable (the proposal is
// rejected); at model construction time it is fatal.
type InvalidParameterError struct {
	Family string
	Param  string
	Value  float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("Invalid parameter %s=%v for %s", e.Param, e.Value, e.Family)
}

func invalidParam(family, param string, value float64) error {
	return &InvalidParameterError{Family: family, Param: param, Value: value}
}

func checkLen(f Family, params []float64) error {
	if len(params) != f.NumParams() {
		return errors.Errorf("%s requires %d parameters but got %d", f.String(), f.NumParams(), len(params))
	}
	return nil
}

// Sigmoid is the logistic function 1/(1+exp(-u)), computed stably for large |u|.
func Sigmoid(u float64) float64 {
	if u >= 0 {
		return 1.0 / (1.0 + math.Exp(-u))
	}
	e := math.Exp(u)
	return e / (1.0 + e)
}

// Softplus is log(1+exp(u)), computed stably for large |u|.
func Softplus(u float64) float64 {
	if u > 0 {
		return u + math.Log1p(math.Exp(-u))
	}
	return math.Log1p(math.Exp(u))
}
