package model

import (
	"github.com/CraigKelly/hample/dist"
)

// Op is a deterministic function of resolved argument values. Ops are pure:
// the same args always give the same value, and Deriv fills the partial
// derivative of the value with respect to each arg. That derivative is what
// lets gradients flow through deterministic nodes back to their parents.
type Op interface {
	String() string
	NumArgs() int
	Value(args []float64) float64
	Deriv(args []float64, d []float64)
}

// AffineOp computes loc + scale*x from args (loc, scale, x). This is the
// deterministic half of the non-centered parameterization.
type AffineOp struct{}

// String implements Stringer
func (o AffineOp) String() string { return "Affine" }

// NumArgs returns the arg count
func (o AffineOp) NumArgs() int { return 3 }

// Value returns loc + scale*x
func (o AffineOp) Value(args []float64) float64 {
	return args[0] + args[1]*args[2]
}

// Deriv fills the partials wrt (loc, scale, x)
func (o AffineOp) Deriv(args []float64, d []float64) {
	d[0] = 1
	d[1] = args[2]
	d[2] = args[1]
}

// DiffOp computes a - b, the head-to-head comparison used by ranking models.
type DiffOp struct{}

// String implements Stringer
func (o DiffOp) String() string { return "Diff" }

// NumArgs returns the arg count
func (o DiffOp) NumArgs() int { return 2 }

// Value returns a - b
func (o DiffOp) Value(args []float64) float64 {
	return args[0] - args[1]
}

// Deriv fills the partials wrt (a, b)
func (o DiffOp) Deriv(args []float64, d []float64) {
	d[0] = 1
	d[1] = -1
}

// LogisticOp squashes a real argument to (0,1) - handy for turning a latent
// score into a probability a caller can read directly from the posterior.
type LogisticOp struct{}

// String implements Stringer
func (o LogisticOp) String() string { return "Logistic" }

// NumArgs returns the arg count
func (o LogisticOp) NumArgs() int { return 1 }

// Value returns sigmoid(x)
func (o LogisticOp) Value(args []float64) float64 {
	return dist.Sigmoid(args[0])
}

// Deriv fills the partial wrt x
func (o LogisticOp) Deriv(args []float64, d []float64) {
	s := dist.Sigmoid(args[0])
	d[0] = s * (1 - s)
}
