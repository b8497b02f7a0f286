// Package posterior holds the output side of a sampling run: per-chain
// retained draws, transformed back into each node's natural domain, plus the
// convergence diagnostics a caller should consult before trusting any of it.
package posterior

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/hample/model"
)

// Divergence records one divergent transition after warmup: which iteration,
// how large the energy error was, and the latent coordinate with the
// steepest gradient when the trajectory blew up - the usual suspect for bad
// posterior geometry.
type Divergence struct {
	Chain       int
	Iteration   int
	Node        string
	EnergyError float64
}

// ChainStats is the per-chain bookkeeping filled in while sampling runs.
type ChainStats struct {
	Seed              int64
	WarmupIters       int
	DrawIters         int
	StepSize          float64 // Final adapted step size
	MeanAccept        float64 // Mean acceptance statistic over retained draws
	MaxTreeDepthHits  int
	WarmupDivergences int
	InvalidParams     int // Evaluations rejected for out-of-domain parameters
	Divergences       []Divergence
}

// ChainResult is one chain's retained draws in unconstrained space along
// with its stats. Draws are append-only while sampling and frozen after.
type ChainResult struct {
	Draws [][]float64
	Stats ChainStats
}

// Result is the posterior from a full run. All caller-facing accessors
// report values in each node's original domain - the unconstraining
// transforms and non-centered affines used internally never leak out.
type Result struct {
	Chains []ChainResult

	names  []string
	byName map[string]int
	vals   [][][]float64 // [chain][draw][node] in natural space
}

// NewResult materializes natural-space values for every tracked node from
// the chains' unconstrained draws. The graph must already have passed Check.
func NewResult(g *model.Graph, chains []ChainResult) (*Result, error) {
	if len(chains) < 1 {
		return nil, errors.Errorf("No chains to report")
	}

	ev, err := model.NewEvaluator(g)
	if err != nil {
		return nil, errors.Wrapf(err, "Can not build posterior")
	}

	names := g.TrackedNames()
	byName := make(map[string]int, len(names))
	for i, nm := range names {
		byName[nm] = i
	}

	vals := make([][][]float64, len(chains))
	for ci, ch := range chains {
		vals[ci] = make([][]float64, len(ch.Draws))
		for di, u := range ch.Draws {
			row := make([]float64, len(names))
			if err := ev.Values(u, row); err != nil {
				return nil, errors.Wrapf(err, "Chain %d draw %d", ci, di)
			}
			vals[ci][di] = row
		}
	}

	return &Result{
		Chains: chains,
		names:  names,
		byName: byName,
		vals:   vals,
	}, nil
}

// Names returns every reportable node name in graph order
func (r *Result) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// ChainDraws returns the named node's draws split per chain, natural space
func (r *Result) ChainDraws(name string) ([][]float64, error) {
	ni, ok := r.byName[name]
	if !ok {
		return nil, errors.Errorf("No posterior node named %s", name)
	}

	out := make([][]float64, len(r.vals))
	for ci, rows := range r.vals {
		xs := make([]float64, len(rows))
		for di, row := range rows {
			xs[di] = row[ni]
		}
		out[ci] = xs
	}
	return out, nil
}

// Draws returns the named node's draws pooled across chains, natural space.
// Length is always chain count times retained iterations.
func (r *Result) Draws(name string) ([]float64, error) {
	chains, err := r.ChainDraws(name)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, c := range chains {
		total += len(c)
	}
	out := make([]float64, 0, total)
	for _, c := range chains {
		out = append(out, c...)
	}
	return out, nil
}

// Mean returns the pooled posterior mean for the named node
func (r *Result) Mean(name string) (float64, error) {
	xs, err := r.Draws(name)
	if err != nil {
		return 0, err
	}
	return stat.Mean(xs, nil), nil
}

// Quantile returns the pooled empirical q-quantile for the named node
func (r *Result) Quantile(name string, q float64) (float64, error) {
	if q < 0 || q > 1 {
		return 0, errors.Errorf("Quantile %f is not in [0,1]", q)
	}
	xs, err := r.Draws(name)
	if err != nil {
		return 0, err
	}
	sort.Float64s(xs)
	return stat.Quantile(q, stat.Empirical, xs, nil), nil
}

// CredibleInterval returns the central credible interval at the given level
// (0.95 gives the 2.5% and 97.5% quantiles). Intervals here are always
// empirical quantiles of the pooled draws - simulated, not analytically
// propagated.
func (r *Result) CredibleInterval(name string, level float64) (float64, float64, error) {
	if level <= 0 || level >= 1 {
		return 0, 0, errors.Errorf("Interval level %f is not in (0,1)", level)
	}
	xs, err := r.Draws(name)
	if err != nil {
		return 0, 0, err
	}
	sort.Float64s(xs)
	lo := stat.Quantile((1-level)/2, stat.Empirical, xs, nil)
	hi := stat.Quantile((1+level)/2, stat.Empirical, xs, nil)
	return lo, hi, nil
}

// Summary is the one-row view of a node's posterior
type Summary struct {
	Name    string
	Mean    float64
	SD      float64
	Q025    float64
	Q25     float64
	Median  float64
	Q75     float64
	Q975    float64
	RHat    float64
	ESSBulk float64
	ESSTail float64
	N       int
}

// Summary computes the standard posterior table row for the named node.
// Moments and quantiles pool every chain's draws; R-hat and ESS keep the
// per-chain structure, since pooling first would hide exactly the
// between-chain disagreement they exist to expose.
func (r *Result) Summary(name string) (*Summary, error) {
	chains, err := r.ChainDraws(name)
	if err != nil {
		return nil, err
	}

	pooled := make([]float64, 0, len(chains)*len(chains[0]))
	for _, c := range chains {
		pooled = append(pooled, c...)
	}
	if len(pooled) < 1 {
		return nil, errors.Errorf("Node %s has no retained draws", name)
	}

	sorted := make([]float64, len(pooled))
	copy(sorted, pooled)
	sort.Float64s(sorted)

	return &Summary{
		Name:    name,
		Mean:    stat.Mean(pooled, nil),
		SD:      stat.StdDev(pooled, nil),
		Q025:    stat.Quantile(0.025, stat.Empirical, sorted, nil),
		Q25:     stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Median:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Q75:     stat.Quantile(0.75, stat.Empirical, sorted, nil),
		Q975:    stat.Quantile(0.975, stat.Empirical, sorted, nil),
		RHat:    SplitRHat(chains),
		ESSBulk: ESSBulk(chains),
		ESSTail: ESSTail(chains),
		N:       len(pooled),
	}, nil
}

// AllSummaries returns a summary row for every node in graph order
func (r *Result) AllSummaries() ([]*Summary, error) {
	out := make([]*Summary, 0, len(r.names))
	for _, nm := range r.names {
		s, err := r.Summary(nm)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// TotalDivergences counts post-warmup divergences across all chains
func (r *Result) TotalDivergences() int {
	total := 0
	for _, c := range r.Chains {
		total += len(c.Stats.Divergences)
	}
	return total
}
