package dist

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mathext"
)

// log(2*pi), which shows up in every Gaussian density
const logTwoPi = 1.8378770664093453

// 0.5*log(2/pi) - the half-normal normalizing constant
const logHalfNorm = -0.22579135264472743

// Normal is the Gaussian family parameterized by mean and standard deviation.
type Normal struct{}

func (Normal) String() string       { return "Normal" }
func (Normal) NumParams() int       { return 2 }
func (Normal) ParamNames() []string { return []string{"mean", "sd"} }
func (Normal) Domain() Domain       { return Unconstrained }

// CheckParams requires a strictly positive standard deviation
func (n Normal) CheckParams(params []float64) error {
	if err := checkLen(n, params); err != nil {
		return err
	}
	if !(params[1] > 0) {
		return invalidParam("Normal", "sd", params[1])
	}
	return nil
}

func (n Normal) LogDensity(x float64, params []float64) (float64, error) {
	if err := n.CheckParams(params); err != nil {
		return 0, err
	}
	mean, sd := params[0], params[1]
	z := (x - mean) / sd
	return -0.5*z*z - math.Log(sd) - 0.5*logTwoPi, nil
}

func (n Normal) GradValue(x float64, params []float64) (float64, error) {
	if err := n.CheckParams(params); err != nil {
		return 0, err
	}
	mean, sd := params[0], params[1]
	return -(x - mean) / (sd * sd), nil
}

func (n Normal) GradParams(x float64, params []float64, grad []float64) error {
	if err := n.CheckParams(params); err != nil {
		return err
	}
	mean, sd := params[0], params[1]
	z := (x - mean) / sd
	grad[0] = z / sd
	grad[1] = (z*z - 1.0) / sd
	return nil
}

// HalfNormal is the positive half of a zero-mean Gaussian, parameterized by
// the scale of the underlying Gaussian. It is the usual weakly-informative
// prior for hierarchical scale parameters.
type HalfNormal struct{}

func (HalfNormal) String() string       { return "HalfNormal" }
func (HalfNormal) NumParams() int       { return 1 }
func (HalfNormal) ParamNames() []string { return []string{"sd"} }
func (HalfNormal) Domain() Domain       { return Positive }

func (h HalfNormal) CheckParams(params []float64) error {
	if err := checkLen(h, params); err != nil {
		return err
	}
	if !(params[0] > 0) {
		return invalidParam("HalfNormal", "sd", params[0])
	}
	return nil
}

func (h HalfNormal) LogDensity(x float64, params []float64) (float64, error) {
	if err := h.CheckParams(params); err != nil {
		return 0, err
	}
	if x < 0 {
		return math.Inf(-1), nil
	}
	sd := params[0]
	z := x / sd
	return logHalfNorm - math.Log(sd) - 0.5*z*z, nil
}

func (h HalfNormal) GradValue(x float64, params []float64) (float64, error) {
	if err := h.CheckParams(params); err != nil {
		return 0, err
	}
	sd := params[0]
	return -x / (sd * sd), nil
}

func (h HalfNormal) GradParams(x float64, params []float64, grad []float64) error {
	if err := h.CheckParams(params); err != nil {
		return err
	}
	sd := params[0]
	z := x / sd
	grad[0] = (z*z - 1.0) / sd
	return nil
}

// Exponential is parameterized by rate (inverse mean).
type Exponential struct{}

func (Exponential) String() string       { return "Exponential" }
func (Exponential) NumParams() int       { return 1 }
func (Exponential) ParamNames() []string { return []string{"rate"} }
func (Exponential) Domain() Domain       { return Positive }

func (e Exponential) CheckParams(params []float64) error {
	if err := checkLen(e, params); err != nil {
		return err
	}
	if !(params[0] > 0) {
		return invalidParam("Exponential", "rate", params[0])
	}
	return nil
}

func (e Exponential) LogDensity(x float64, params []float64) (float64, error) {
	if err := e.CheckParams(params); err != nil {
		return 0, err
	}
	if x < 0 {
		return math.Inf(-1), nil
	}
	rate := params[0]
	return math.Log(rate) - rate*x, nil
}

func (e Exponential) GradValue(x float64, params []float64) (float64, error) {
	if err := e.CheckParams(params); err != nil {
		return 0, err
	}
	return -params[0], nil
}

func (e Exponential) GradParams(x float64, params []float64, grad []float64) error {
	if err := e.CheckParams(params); err != nil {
		return err
	}
	grad[0] = 1.0/params[0] - x
	return nil
}

// Beta uses the mean/concentration parameterization: mean mu in (0,1) and
// concentration nu > 0, with the classical shapes recovered as
// alpha = mu*nu and beta = (1-mu)*nu. Keeping the mean as its own parameter
// makes hierarchical priors over proportions readable, and requiring nu
// strictly positive catches the degenerate zero-concentration case that a
// naive curve fit can produce.
type Beta struct{}

func (Beta) String() string       { return "Beta" }
func (Beta) NumParams() int       { return 2 }
func (Beta) ParamNames() []string { return []string{"mu", "nu"} }
func (Beta) Domain() Domain       { return UnitInterval }

func (b Beta) CheckParams(params []float64) error {
	if err := checkLen(b, params); err != nil {
		return err
	}
	if !(params[0] > 0 && params[0] < 1) {
		return invalidParam("Beta", "mu", params[0])
	}
	if !(params[1] > 0) {
		return invalidParam("Beta", "nu", params[1])
	}
	return nil
}

func (b Beta) LogDensity(x float64, params []float64) (float64, error) {
	if err := b.CheckParams(params); err != nil {
		return 0, err
	}
	if x <= 0 || x >= 1 {
		return math.Inf(-1), nil
	}
	mu, nu := params[0], params[1]
	alpha := mu * nu
	beta := (1.0 - mu) * nu

	lgNu, _ := math.Lgamma(nu)
	lgA, _ := math.Lgamma(alpha)
	lgB, _ := math.Lgamma(beta)

	return lgNu - lgA - lgB + (alpha-1.0)*math.Log(x) + (beta-1.0)*math.Log1p(-x), nil
}

func (b Beta) GradValue(x float64, params []float64) (float64, error) {
	if err := b.CheckParams(params); err != nil {
		return 0, err
	}
	mu, nu := params[0], params[1]
	alpha := mu * nu
	beta := (1.0 - mu) * nu
	return (alpha-1.0)/x - (beta-1.0)/(1.0-x), nil
}

func (b Beta) GradParams(x float64, params []float64, grad []float64) error {
	if err := b.CheckParams(params); err != nil {
		return err
	}
	mu, nu := params[0], params[1]
	alpha := mu * nu
	beta := (1.0 - mu) * nu

	digA := mathext.Digamma(alpha)
	digB := mathext.Digamma(beta)
	logX := math.Log(x)
	logX1 := math.Log1p(-x)

	grad[0] = nu * (digB - digA + logX - logX1)
	grad[1] = mathext.Digamma(nu) - mu*digA - (1.0-mu)*digB + mu*logX + (1.0-mu)*logX1
	return nil
}

// Bernoulli is a discrete family over {0,1} parameterized by the success
// probability. Discrete families are observed-only: there is no gradient in
// the value, so the graph refuses to declare a latent Bernoulli node.
type Bernoulli struct{}

func (Bernoulli) String() string       { return "Bernoulli" }
func (Bernoulli) NumParams() int       { return 1 }
func (Bernoulli) ParamNames() []string { return []string{"p"} }
func (Bernoulli) Domain() Domain       { return Discrete }

func (b Bernoulli) CheckParams(params []float64) error {
	if err := checkLen(b, params); err != nil {
		return err
	}
	if !(params[0] > 0 && params[0] < 1) {
		return invalidParam("Bernoulli", "p", params[0])
	}
	return nil
}

func (b Bernoulli) LogDensity(x float64, params []float64) (float64, error) {
	if err := b.CheckParams(params); err != nil {
		return 0, err
	}
	p := params[0]
	if x >= 0.5 {
		return math.Log(p), nil
	}
	return math.Log1p(-p), nil
}

func (b Bernoulli) GradValue(x float64, params []float64) (float64, error) {
	return 0, errors.New("Bernoulli is discrete - no value gradient")
}

func (b Bernoulli) GradParams(x float64, params []float64, grad []float64) error {
	if err := b.CheckParams(params); err != nil {
		return err
	}
	p := params[0]
	if x >= 0.5 {
		grad[0] = 1.0 / p
	} else {
		grad[0] = -1.0 / (1.0 - p)
	}
	return nil
}

// BernoulliLogit is Bernoulli on the log-odds scale. It is the likelihood
// layer of the pairwise ranking model: the parameter is a quality difference
// and the win probability is its logistic. Working on the logit scale keeps
// the density and its parameter gradient stable for extreme differences.
type BernoulliLogit struct{}

func (BernoulliLogit) String() string       { return "BernoulliLogit" }
func (BernoulliLogit) NumParams() int       { return 1 }
func (BernoulliLogit) ParamNames() []string { return []string{"logit"} }
func (BernoulliLogit) Domain() Domain       { return Discrete }

func (b BernoulliLogit) CheckParams(params []float64) error {
	if err := checkLen(b, params); err != nil {
		return err
	}
	if math.IsNaN(params[0]) || math.IsInf(params[0], 0) {
		return invalidParam("BernoulliLogit", "logit", params[0])
	}
	return nil
}

func (b BernoulliLogit) LogDensity(x float64, params []float64) (float64, error) {
	if err := b.CheckParams(params); err != nil {
		return 0, err
	}
	l := params[0]
	if x >= 0.5 {
		return -Softplus(-l), nil
	}
	return -Softplus(l), nil
}

func (b BernoulliLogit) GradValue(x float64, params []float64) (float64, error) {
	return 0, errors.New("BernoulliLogit is discrete - no value gradient")
}

func (b BernoulliLogit) GradParams(x float64, params []float64, grad []float64) error {
	if err := b.CheckParams(params); err != nil {
		return err
	}
	var obs float64
	if x >= 0.5 {
		obs = 1.0
	}
	grad[0] = obs - Sigmoid(params[0])
	return nil
}
