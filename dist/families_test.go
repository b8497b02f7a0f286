package dist

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat/distuv"
)

// numericDeriv is a central finite difference - the reference every analytic
// gradient in this package is checked against.
func numericDeriv(f func(float64) float64, x float64) float64 {
	const h = 1e-6
	return (f(x+h) - f(x-h)) / (2 * h)
}

func fdClose(a *assert.Assertions, want, got float64, msgAndArgs ...interface{}) {
	tol := 1e-5 * (1.0 + math.Abs(want))
	a.InDelta(want, got, tol, msgAndArgs...)
}

func TestLogDensityValues(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		fam    Family
		x      float64
		params []float64
		exp    float64
	}{
		{Normal{}, 0.0, []float64{0, 1}, -0.9189385332046727},
		{Normal{}, 3.0, []float64{1, 2}, -2.112085713764618},
		{HalfNormal{}, 0.0, []float64{1}, -0.22579135264472743},
		{HalfNormal{}, 2.0, []float64{2}, -1.4189385332046727},
		{Exponential{}, 0.5, []float64{2}, -0.3068528194400547},
		// Beta with mu=0.75, nu=4 is alpha=3, beta=1: density 3x^2
		{Beta{}, 0.5, []float64{0.75, 4}, math.Log(0.75)},
		{Bernoulli{}, 1.0, []float64{0.25}, math.Log(0.25)},
		{Bernoulli{}, 0.0, []float64{0.25}, math.Log(0.75)},
	}

	for _, c := range cases {
		ld, err := c.fam.LogDensity(c.x, c.params)
		assert.NoError(err)
		assert.InDelta(c.exp, ld, 1e-12, "%s at %v", c.fam, c.x)
	}
}

// The Gaussian and Beta densities also live in gonum's distuv - make sure we
// agree with them (distuv uses the shape parameterization for Beta)
func TestLogDensityVsDistuv(t *testing.T) {
	assert := assert.New(t)

	norm := distuv.Normal{Mu: 1.5, Sigma: 0.7}
	for _, x := range []float64{-2, 0, 1.5, 4} {
		ld, err := Normal{}.LogDensity(x, []float64{1.5, 0.7})
		assert.NoError(err)
		assert.InDelta(norm.LogProb(x), ld, 1e-10)
	}

	// mu=0.3, nu=5 <=> alpha=1.5, beta=3.5
	bd := distuv.Beta{Alpha: 1.5, Beta: 3.5}
	for _, x := range []float64{0.05, 0.3, 0.8} {
		ld, err := Beta{}.LogDensity(x, []float64{0.3, 5})
		assert.NoError(err)
		assert.InDelta(bd.LogProb(x), ld, 1e-10)
	}

	ed := distuv.Exponential{Rate: 2.5}
	for _, x := range []float64{0.1, 1, 3} {
		ld, err := Exponential{}.LogDensity(x, []float64{2.5})
		assert.NoError(err)
		assert.InDelta(ed.LogProb(x), ld, 1e-10)
	}
}

func TestGradientsMatchFiniteDifference(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		fam    Family
		params []float64
		xs     []float64
	}{
		{Normal{}, []float64{1.5, 2.0}, []float64{-2, 0.3, 4}},
		{HalfNormal{}, []float64{1.7}, []float64{0.1, 1.3, 3}},
		{Exponential{}, []float64{2.5}, []float64{0.2, 1, 3}},
		{Beta{}, []float64{0.3, 5}, []float64{0.05, 0.5, 0.9}},
		{Beta{}, []float64{0.75, 10}, []float64{0.4, 0.75, 0.95}},
	}

	for _, c := range cases {
		for _, x := range c.xs {
			// Gradient in the value
			gv, err := c.fam.GradValue(x, c.params)
			assert.NoError(err)
			fd := numericDeriv(func(v float64) float64 {
				ld, e := c.fam.LogDensity(v, c.params)
				assert.NoError(e)
				return ld
			}, x)
			fdClose(assert, fd, gv, "%s GradValue at x=%v", c.fam, x)

			// Gradient in each parameter
			grad := make([]float64, c.fam.NumParams())
			assert.NoError(c.fam.GradParams(x, c.params, grad))
			for i := range c.params {
				fd := numericDeriv(func(p float64) float64 {
					pp := make([]float64, len(c.params))
					copy(pp, c.params)
					pp[i] = p
					ld, e := c.fam.LogDensity(x, pp)
					assert.NoError(e)
					return ld
				}, c.params[i])
				fdClose(assert, fd, grad[i], "%s GradParams[%d] at x=%v", c.fam, i, x)
			}
		}
	}
}

func TestDiscreteParamGradients(t *testing.T) {
	assert := assert.New(t)

	// Bernoulli and BernoulliLogit only ever see observed values, so the
	// value gradient is an error but parameter gradients must still be exact.
	for _, x := range []float64{0, 1} {
		grad := make([]float64, 1)

		assert.NoError(Bernoulli{}.GradParams(x, []float64{0.3}, grad))
		fd := numericDeriv(func(p float64) float64 {
			ld, e := Bernoulli{}.LogDensity(x, []float64{p})
			assert.NoError(e)
			return ld
		}, 0.3)
		fdClose(assert, fd, grad[0], "Bernoulli GradParams at x=%v", x)

		assert.NoError(BernoulliLogit{}.GradParams(x, []float64{0.7}, grad))
		fd = numericDeriv(func(l float64) float64 {
			ld, e := BernoulliLogit{}.LogDensity(x, []float64{l})
			assert.NoError(e)
			return ld
		}, 0.7)
		fdClose(assert, fd, grad[0], "BernoulliLogit GradParams at x=%v", x)

		_, err := Bernoulli{}.GradValue(x, []float64{0.3})
		assert.Error(err)
		_, err = BernoulliLogit{}.GradValue(x, []float64{0.7})
		assert.Error(err)
	}
}

// The two Bernoulli forms must agree when the logit matches the probability
func TestBernoulliLogitEquivalence(t *testing.T) {
	assert := assert.New(t)

	for _, p := range []float64{0.1, 0.25, 0.5, 0.9} {
		l := math.Log(p) - math.Log1p(-p)
		for _, x := range []float64{0, 1} {
			want, err := Bernoulli{}.LogDensity(x, []float64{p})
			assert.NoError(err)
			got, err := BernoulliLogit{}.LogDensity(x, []float64{l})
			assert.NoError(err)
			assert.InDelta(want, got, 1e-12)
		}
	}
}

func TestInvalidParameters(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		fam    Family
		params []float64
	}{
		{Normal{}, []float64{0, 0}},
		{Normal{}, []float64{0, -1}},
		{HalfNormal{}, []float64{0}},
		{Exponential{}, []float64{-2}},
		{Beta{}, []float64{0, 5}},
		{Beta{}, []float64{1, 5}},
		{Beta{}, []float64{-0.2, 5}},
		{Beta{}, []float64{0.5, 0}}, // the degenerate zero-concentration case
		{Beta{}, []float64{0.5, -3}},
		{Bernoulli{}, []float64{0}},
		{Bernoulli{}, []float64{1}},
		{BernoulliLogit{}, []float64{math.NaN()}},
		{BernoulliLogit{}, []float64{math.Inf(1)}},
	}

	for _, c := range cases {
		err := c.fam.CheckParams(c.params)
		assert.Error(err, "%s with %v", c.fam, c.params)

		var ipe *InvalidParameterError
		assert.ErrorAs(err, &ipe, "%s with %v should be InvalidParameterError", c.fam, c.params)

		_, err = c.fam.LogDensity(0.5, c.params)
		assert.Error(err)
	}

	// Wrong parameter count is a plain error, not an InvalidParameterError
	err := Normal{}.CheckParams([]float64{1})
	assert.Error(err)
	var ipe *InvalidParameterError
	assert.False(errors.As(err, &ipe))
}
