package sampler

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/CraigKelly/hample/model"
	"github.com/CraigKelly/hample/posterior"
	"github.com/CraigKelly/hample/rand"
)

// ChainState tracks where a chain is in its lifecycle
type ChainState int

// A chain warms up, samples, and is done
const (
	StateWarmup ChainState = iota
	StateSampling
	StateDone
)

func (s ChainState) String() string {
	switch s {
	case StateWarmup:
		return "Warmup"
	case StateSampling:
		return "Sampling"
	case StateDone:
		return "Done"
	}
	return "Unknown"
}

// Chain is one independent HMC run over a shared read-only graph. Each chain
// owns its generator, evaluator, adaptation state, and retained draws -
// nothing here is shared with other chains.
type Chain struct {
	ID    int
	State ChainState

	cfg     Config
	graph   *model.Graph
	eval    *model.Evaluator
	gen     *rand.Generator
	stdNorm distuv.Normal

	cur      *point
	stepSize float64
	massInv  []float64
	momSd    []float64

	da       *dualAverage
	mass     *massAdapter
	massDone bool

	draws     [][]float64
	stats     posterior.ChainStats
	acceptSum float64
}

// NewChain seeds a generator, finds a finite starting point, and brackets an
// initial step size. The graph must already have passed Check.
func NewChain(g *model.Graph, cfg Config, id int, seed int64) (*Chain, error) {
	gen, err := rand.NewGenerator(seed)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not seed chain %d", id)
	}

	eval, err := model.NewEvaluator(g)
	if err != nil {
		gen.Close()
		return nil, err
	}

	dim := eval.Dim()
	c := &Chain{
		ID:      id,
		State:   StateWarmup,
		cfg:     cfg,
		graph:   g,
		eval:    eval,
		gen:     gen,
		stdNorm: distuv.Normal{Mu: 0, Sigma: 1, Src: gen},
		cur:     newPoint(dim),
		massInv: make([]float64, dim),
		momSd:   make([]float64, dim),
		draws:   make([][]float64, 0, cfg.Draws),
	}
	for i := 0; i < dim; i++ {
		c.massInv[i] = 1
		c.momSd[i] = 1
	}

	if err := c.findStart(); err != nil {
		gen.Close()
		return nil, err
	}

	c.stepSize = c.findStepSize(1.0)
	c.da = newDualAverage(c.stepSize, cfg.TargetAccept)
	if !cfg.StaticMass && cfg.Warmup >= 8 {
		c.mass = newMassAdapter(dim, cfg.Warmup/2)
	}

	c.stats.Seed = seed
	c.stats.WarmupIters = cfg.Warmup
	c.stats.DrawIters = cfg.Draws

	return c, nil
}

// Close releases the chain's generator. The chain must not run after Close.
func (c *Chain) Close() {
	c.gen.Close()
}

// findStart draws uniform positions on (-2,2) until the log density and its
// gradient are both finite
func (c *Chain) findStart() error {
	const attempts = 100

	for a := 0; a < attempts; a++ {
		for i := range c.cur.pos {
			c.cur.pos[i] = c.gen.Float64()*4.0 - 2.0
		}

		c.cur.logp = c.eval.Gradient(c.cur.pos, c.cur.grad)
		if math.IsInf(c.cur.logp, -1) || math.IsNaN(c.cur.logp) {
			continue
		}

		ok := true
		for _, g := range c.cur.grad {
			if math.IsNaN(g) || math.IsInf(g, 0) {
				ok = false
				break
			}
		}
		if ok {
			return nil
		}
	}

	return errors.Errorf("Chain %d could not find a usable starting point in %d tries", c.ID, attempts)
}

// Run executes warmup then sampling and returns the retained draws with the
// chain's statistics. The context is checked between iterations, never mid
// trajectory.
func (c *Chain) Run(ctx context.Context) (*posterior.ChainResult, error) {
	if err := c.warmup(ctx); err != nil {
		return nil, err
	}

	c.stepSize = c.da.Final()
	c.State = StateSampling

	if err := c.sample(ctx); err != nil {
		return nil, err
	}

	c.State = StateDone
	c.stats.StepSize = c.stepSize
	c.stats.MeanAccept = c.acceptSum / float64(c.cfg.Draws)
	c.stats.InvalidParams = c.eval.InvalidCount()

	return &posterior.ChainResult{Draws: c.draws, Stats: c.stats}, nil
}

func (c *Chain) warmup(ctx context.Context) error {
	// Mass estimation fires once, late enough that the window holds
	// post-transient positions but leaves iterations to re-tune step size
	massAt := 3 * c.cfg.Warmup / 4

	for i := 0; i < c.cfg.Warmup; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "Chain %d stopped during warmup", c.ID)
		}

		info := c.transition()
		c.stepSize = c.da.Update(info.accept)

		if info.diverged {
			c.stats.WarmupDivergences++
		}
		if info.depthHit {
			c.stats.MaxTreeDepthHits++
		}

		if c.mass != nil {
			c.mass.Add(c.cur.pos)
			if !c.massDone && i+1 >= massAt {
				if vars, ok := c.mass.Estimate(); ok {
					c.setMass(vars)
					c.stepSize = c.findStepSize(c.stepSize)
					c.da.Restart(c.stepSize)
					c.massDone = true
				}
			}
		}

		c.report(i, true, info.diverged)
	}

	return nil
}

func (c *Chain) sample(ctx context.Context) error {
	// Divergence rates from a handful of iterations are noise
	const minGuardIters = 25

	for i := 0; i < c.cfg.Draws; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "Chain %d stopped during sampling", c.ID)
		}

		info := c.transition()
		c.acceptSum += info.accept

		if info.diverged {
			c.stats.Divergences = append(c.stats.Divergences, posterior.Divergence{
				Chain:       c.ID,
				Iteration:   i,
				Node:        c.graph.LatentName(info.blame),
				EnergyError: info.energyErr,
			})
		}
		if info.depthHit {
			c.stats.MaxTreeDepthHits++
		}

		u := make([]float64, len(c.cur.pos))
		copy(u, c.cur.pos)
		c.draws = append(c.draws, u)

		c.report(i, false, info.diverged)

		done := i + 1
		if done >= minGuardIters || done == c.cfg.Draws {
			count := len(c.stats.Divergences)
			if float64(count) > c.cfg.MaxDivergenceRate*float64(done) {
				return &DivergenceError{
					Chain: c.ID,
					Count: count,
					Iters: done,
					Nodes: c.blamedNodes(),
				}
			}
		}
	}

	return nil
}

// setMass installs new per-coordinate posterior variances as the inverse
// mass and refreshes the momentum scales
func (c *Chain) setMass(vars []float64) {
	copy(c.massInv, vars)
	for i, v := range vars {
		c.momSd[i] = 1.0 / math.Sqrt(v)
	}
}

// blamedNodes ranks divergence-blamed node names by count, worst first,
// keeping the top three
func (c *Chain) blamedNodes() []string {
	counts := make(map[string]int)
	for _, d := range c.stats.Divergences {
		counts[d.Node]++
	}

	names := make([]string, 0, len(counts))
	for nm := range counts {
		names = append(names, nm)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	if len(names) > 3 {
		names = names[:3]
	}
	return names
}

func (c *Chain) report(iter int, warm bool, diverged bool) {
	if c.cfg.OnProgress == nil {
		return
	}
	c.cfg.OnProgress(Progress{
		Chain:     c.ID,
		Iteration: iter,
		Warmup:    warm,
		StepSize:  c.stepSize,
		Diverged:  diverged,
	})
}
