package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDualAverage(t *testing.T) {
	assert := assert.New(t)

	da := newDualAverage(1.0, 0.8)

	// Constant rejection forces the step size down
	eps := 1.0
	for i := 0; i < 50; i++ {
		eps = da.Update(0.0)
	}
	assert.True(eps < 1.0, "Step size %g should shrink under constant rejection", eps)
	assert.True(da.Final() < 1.0)

	// Constant acceptance forces it up
	da.Restart(1.0)
	for i := 0; i < 50; i++ {
		eps = da.Update(1.0)
	}
	assert.True(eps > 1.0, "Step size %g should grow under constant acceptance", eps)
	assert.True(da.Final() > 1.0)

	// Exactly on-target feedback parks the value at the anchor, which sits
	// ten times above the baseline
	da.Restart(0.25)
	for i := 0; i < 50; i++ {
		da.Update(0.8)
	}
	assert.InDelta(2.5, da.Final(), 1e-9)

	// Before any update Final falls back to the baseline itself
	da.Restart(0.5)
	assert.InDelta(0.5, da.Final(), 1e-12)
}

func TestFindStepSize(t *testing.T) {
	assert := assert.New(t)

	ch := testChain(t, 23)

	// A reasonable guess lands in a sane bracket for a unit-scale target
	eps := ch.findStepSize(1.0)
	assert.True(eps > 1e-4 && eps < 100, "Step size %g from guess 1.0", eps)

	// Absurd guesses get pulled back toward the same range
	tiny := ch.findStepSize(1e-9)
	assert.True(tiny > 1e-9, "Search never moved up from %g", tiny)

	huge := ch.findStepSize(1e6)
	assert.True(huge < 1e6, "Search never moved down from %g", huge)
}

func TestMassAdapter(t *testing.T) {
	assert := assert.New(t)

	ma := newMassAdapter(2, 40)

	// Nothing until the window fills
	est, ok := ma.Estimate()
	assert.False(ok)
	assert.Nil(est)

	// Alternating values with known variance: coordinate 0 swings +/-2
	// around zero, coordinate 1 swings +/-0.5 around three
	for i := 0; i < 40; i++ {
		sign := 1.0
		if i%2 == 1 {
			sign = -1.0
		}
		ma.Add([]float64{sign * 2, 3 + sign*0.5})
	}

	est, ok = ma.Estimate()
	assert.True(ok)
	assert.Len(est, 2)

	// Sample variance of a +/-v alternation is v*v*n/(n-1), then shrinkage
	// pulls n/(n+5) of the way toward it from a small floor
	n := 40.0
	v0 := 4.0 * n / (n - 1)
	v1 := 0.25 * n / (n - 1)
	assert.InDelta((n/(n+5))*v0+1e-3*(5/(n+5)), est[0], 1e-9)
	assert.InDelta((n/(n+5))*v1+1e-3*(5/(n+5)), est[1], 1e-9)

	// A coordinate whose window halves disagree blocks the whole estimate
	drift := newMassAdapter(1, 40)
	for i := 0; i < 40; i++ {
		x := float64(i) * 0.001
		if i >= 20 {
			x = float64(i) * 10.0
		}
		drift.Add([]float64{x})
	}
	_, ok = drift.Estimate()
	assert.False(ok)

	// So does a constant coordinate
	flat := newMassAdapter(1, 10)
	for i := 0; i < 10; i++ {
		flat.Add([]float64{2.5})
	}
	_, ok = flat.Estimate()
	assert.False(ok)
}
