package posterior

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// splitChains halves every chain so slow drift within a single chain shows
// up as between-chain disagreement. Odd lengths drop the middle draw.
func splitChains(chains [][]float64) [][]float64 {
	out := make([][]float64, 0, len(chains)*2)
	for _, c := range chains {
		h := len(c) / 2
		if h < 1 {
			continue
		}
		out = append(out, c[:h], c[len(c)-h:])
	}
	return out
}

// SplitRHat is the potential scale reduction factor computed over split
// chains: the ratio of pooled-variance to mean within-chain variance, which
// approaches 1 from above as chains mix. Anything over about 1.01 means the
// chains disagree and the run should not be trusted. Returns NaN when there
// is too little data to judge, 1 for identical constant chains, and +Inf for
// constant chains stuck at different values.
func SplitRHat(chains [][]float64) float64 {
	sp := splitChains(chains)
	if len(sp) < 2 {
		return math.NaN()
	}

	n := len(sp[0])
	for _, c := range sp {
		if len(c) < n {
			n = len(c)
		}
	}
	if n < 2 {
		return math.NaN()
	}

	m := len(sp)
	cmeans := make([]float64, m)
	cvars := make([]float64, m)
	for j, c := range sp {
		cmeans[j], cvars[j] = stat.MeanVariance(c[:n], nil)
	}

	w := stat.Mean(cvars, nil)
	b := float64(n) * stat.Variance(cmeans, nil)

	if w <= 0 {
		if b <= 0 {
			return 1
		}
		return math.Inf(1)
	}

	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	return math.Sqrt(varPlus / w)
}

// ESSBulk estimates the effective sample size for central-tendency
// summaries. Draws are rank-normalized across all split chains first, so the
// estimate cares about mixing, not about the marginal's shape or any heavy
// tails.
func ESSBulk(chains [][]float64) float64 {
	return essCore(rankNormalize(splitChains(chains)))
}

// ESSTail estimates the effective sample size where intervals live: the
// smaller of the ESS of the 5% and 95% exceedance indicators. A sampler can
// mix well near the mode and still wander slowly through the tails - this is
// the number that catches it.
func ESSTail(chains [][]float64) float64 {
	sp := splitChains(chains)

	total := 0
	for _, c := range sp {
		total += len(c)
	}
	if total < 1 {
		return math.NaN()
	}
	pooled := make([]float64, 0, total)
	for _, c := range sp {
		pooled = append(pooled, c...)
	}
	sort.Float64s(pooled)

	q05 := stat.Quantile(0.05, stat.Empirical, pooled, nil)
	q95 := stat.Quantile(0.95, stat.Empirical, pooled, nil)

	return math.Min(essCore(indicator(sp, q05)), essCore(indicator(sp, q95)))
}

// essCore is Geyer's initial-monotone-sequence estimator over already-split
// chains: per-chain autocovariances are combined with the between-chain
// variance, consecutive autocorrelations are summed in pairs, and the sum is
// truncated once a pair goes non-positive or breaks monotonicity.
func essCore(chains [][]float64) float64 {
	m := len(chains)
	if m < 1 {
		return math.NaN()
	}

	n := len(chains[0])
	for _, c := range chains {
		if len(c) < n {
			n = len(c)
		}
	}
	if n < 4 {
		return math.NaN()
	}

	acov := make([][]float64, m)
	cmeans := make([]float64, m)
	cvars := make([]float64, m)
	for j, c := range chains {
		acov[j] = autocov(c[:n])
		cmeans[j] = stat.Mean(c[:n], nil)
		cvars[j] = acov[j][0] * float64(n) / float64(n-1)
	}

	w := stat.Mean(cvars, nil)
	varPlus := w * float64(n-1) / float64(n)
	if m > 1 {
		varPlus += stat.Variance(cmeans, nil)
	}
	if varPlus <= 0 || math.IsNaN(varPlus) {
		return math.NaN()
	}

	rho := make([]float64, n)
	for t := 0; t < n; t++ {
		ma := 0.0
		for j := 0; j < m; j++ {
			ma += acov[j][t]
		}
		ma /= float64(m)
		rho[t] = 1 - (w-ma)/varPlus
	}

	tau := -1.0
	prev := math.Inf(1)
	for k := 0; 2*k+1 < n; k++ {
		p := rho[2*k] + rho[2*k+1]
		if p <= 0 {
			break
		}
		if p > prev {
			p = prev
		}
		prev = p
		tau += 2 * p
	}

	s := float64(m * n)
	most := s * math.Log10(s)
	if tau <= 0 {
		return most
	}
	ess := s / tau
	if ess > most {
		// Antithetic chains can push tau below 1 - cap like Stan does
		ess = most
	}
	return ess
}

// autocov returns the lag-t autocovariance series (biased n denominator)
func autocov(xs []float64) []float64 {
	n := len(xs)
	mean := stat.Mean(xs, nil)

	out := make([]float64, n)
	for t := 0; t < n; t++ {
		s := 0.0
		for i := 0; i+t < n; i++ {
			s += (xs[i] - mean) * (xs[i+t] - mean)
		}
		out[t] = s / float64(n)
	}
	return out
}

// rankNormalize replaces every draw with the normal score of its pooled
// rank (ties averaged), preserving the chain layout
func rankNormalize(chains [][]float64) [][]float64 {
	type loc struct {
		c, i int
		v    float64
	}

	total := 0
	for _, c := range chains {
		total += len(c)
	}

	locs := make([]loc, 0, total)
	for ci, c := range chains {
		for i, v := range c {
			locs = append(locs, loc{ci, i, v})
		}
	}
	sort.Slice(locs, func(a, b int) bool { return locs[a].v < locs[b].v })

	ranks := make([]float64, total)
	for s := 0; s < total; {
		e := s + 1
		for e < total && locs[e].v == locs[s].v {
			e++
		}
		avg := (float64(s+1) + float64(e)) / 2
		for k := s; k < e; k++ {
			ranks[k] = avg
		}
		s = e
	}

	out := make([][]float64, len(chains))
	for ci, c := range chains {
		out[ci] = make([]float64, len(c))
	}

	sn := float64(total)
	for k, lc := range locs {
		out[lc.c][lc.i] = distuv.UnitNormal.Quantile((ranks[k] - 0.375) / (sn + 0.25))
	}
	return out
}

// indicator maps draws to 1 when at or below the cut, else 0
func indicator(chains [][]float64, cut float64) [][]float64 {
	out := make([][]float64, len(chains))
	for ci, c := range chains {
		out[ci] = make([]float64, len(c))
		for i, v := range c {
			if v <= cut {
				out[ci][i] = 1
			}
		}
	}
	return out
}
