package sampler

import (
	"math"

	"github.com/CraigKelly/hample/buffer"
)

// Dual averaging constants from Hoffman and Gelman: gamma controls shrinkage
// toward the mu anchor, t0 damps the earliest iterations, kappa is the decay
// of the averaging weights.
const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75
)

// dualAverage tunes the log step size each warmup iteration from the gap
// between achieved and target acceptance, while a decaying average
// accumulates the value frozen when warmup ends.
type dualAverage struct {
	mu        float64
	target    float64
	logEps    float64
	logEpsBar float64
	hBar      float64
	count     int
}

func newDualAverage(eps0, target float64) *dualAverage {
	da := &dualAverage{target: target}
	da.Restart(eps0)
	return da
}

// Restart re-centers the averaging on a fresh baseline step size. Used after
// a mass matrix update invalidates everything learned so far.
func (da *dualAverage) Restart(eps0 float64) {
	da.mu = math.Log(10 * eps0)
	da.logEps = math.Log(eps0)
	da.logEpsBar = 0
	da.hBar = 0
	da.count = 0
}

// Update consumes one iteration's acceptance statistic and returns the step
// size for the next iteration
func (da *dualAverage) Update(accept float64) float64 {
	da.count++
	m := float64(da.count)

	eta := 1.0 / (m + daT0)
	da.hBar = (1-eta)*da.hBar + eta*(da.target-accept)

	da.logEps = da.mu - math.Sqrt(m)/daGamma*da.hBar

	w := math.Pow(m, -daKappa)
	da.logEpsBar = w*da.logEps + (1-w)*da.logEpsBar

	return math.Exp(da.logEps)
}

// Final is the averaged step size to freeze for sampling
func (da *dualAverage) Final() float64 {
	if da.count < 1 {
		return math.Exp(da.mu) / 10
	}
	return math.Exp(da.logEpsBar)
}

const (
	minStepSize = 1e-10
	maxStepSize = 1e7
)

// findStepSize doubles or halves the guess until the acceptance ratio of a
// single leapfrog step crosses one half. A crude bracket, but it lands dual
// averaging in the right order of magnitude.
func (c *Chain) findStepSize(eps float64) float64 {
	mom := make([]float64, len(c.cur.mom))
	for i := range mom {
		mom[i] = c.momSd[i] * c.stdNorm.Rand()
	}
	h0 := -c.cur.logp + c.kinetic(mom)

	// Log acceptance ratio of one step of the given size
	probe := func(eps float64) float64 {
		pt := c.cur.clone()
		copy(pt.mom, mom)
		c.leapfrog(pt, eps)
		return h0 - c.energy(pt)
	}

	logHalf := math.Log(0.5)
	la := probe(eps)
	up := !math.IsNaN(la) && la > logHalf

	for i := 0; i < 100; i++ {
		if up {
			eps *= 2
		} else {
			eps *= 0.5
		}
		if eps < minStepSize || eps > maxStepSize {
			break
		}

		la = probe(eps)
		if math.IsNaN(la) || math.IsInf(la, -1) {
			// The step blew up the trajectory
			if up {
				eps *= 0.5
				break
			}
			continue
		}
		if up && la <= logHalf {
			break
		}
		if !up && la > logHalf {
			break
		}
	}

	return math.Min(math.Max(eps, minStepSize), maxStepSize)
}

// massAdapter windows warmup positions per coordinate to estimate a diagonal
// inverse mass matrix (the posterior variance). The estimate is only trusted
// once the window's two halves roughly agree, so that early warmup drift
// does not bake transient variance into the mass.
type massAdapter struct {
	wins []*buffer.CircularFloat
}

func newMassAdapter(dim, winSize int) *massAdapter {
	ma := &massAdapter{wins: make([]*buffer.CircularFloat, dim)}
	for i := range ma.wins {
		ma.wins[i] = buffer.NewCircularFloat(winSize)
	}
	return ma
}

// Add records one post-transition position
func (ma *massAdapter) Add(pos []float64) {
	for i, w := range ma.wins {
		w.Add(pos[i])
	}
}

// Estimate returns per-coordinate shrunk variances when every window is full
// and each coordinate's halves agree (variance ratio at most 4). The
// shrinkage pulls n/(n+5) of the way from a small constant toward the sample
// variance, which keeps one quiet window from producing a near-zero mass.
func (ma *massAdapter) Estimate() ([]float64, bool) {
	out := make([]float64, len(ma.wins))
	for i, w := range ma.wins {
		fh, sh := w.FirstHalf(), w.SecondHalf()
		if fh == nil || sh == nil {
			return nil, false
		}

		n1, m1, s1 := welford(fh)
		n2, m2, s2 := welford(sh)
		if n1 < 2 || n2 < 2 {
			return nil, false
		}

		v1 := s1 / (n1 - 1)
		v2 := s2 / (n2 - 1)
		if v1 <= 0 || v2 <= 0 {
			return nil, false
		}
		ratio := v1 / v2
		if ratio < 1 {
			ratio = 1 / ratio
		}
		if ratio > 4 {
			return nil, false
		}

		// Chan et al merge of the halves for the whole-window variance
		n := n1 + n2
		d := m2 - m1
		s := s1 + s2 + d*d*n1*n2/n
		v := s / (n - 1)

		out[i] = (n/(n+5))*v + 1e-3*(5/(n+5))
	}
	return out, true
}

// welford drains an iterator into count, mean, and sum of squared deviations
func welford(it *buffer.CircularFloatIterator) (n, mean, m2 float64) {
	for it.Next() {
		x := it.Value()
		n++
		d := x - mean
		mean += d / n
		m2 += d * (x - mean)
	}
	return
}
