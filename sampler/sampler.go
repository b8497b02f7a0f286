// Package sampler draws from a model graph's posterior with a Hamiltonian
// Monte Carlo sampler: leapfrog integration in unconstrained space, No-U-Turn
// trajectory doubling, and dual-averaging step size adaptation during warmup.
// Chains are fully independent and run one goroutine each.
package sampler

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/CraigKelly/hample/model"
	"github.com/CraigKelly/hample/posterior"
	"github.com/CraigKelly/hample/rand"
)

// Config controls a sampling run. Zero values are filled from DefaultConfig
// by Check, so callers only set what they care about.
type Config struct {
	Chains int   // Independent chains
	Warmup int   // Adaptation iterations per chain, never retained; -1 skips warmup (0 means default)
	Draws  int   // Retained iterations per chain
	Seed   int64 // Master seed - each chain's generator seed fans out from this

	TargetAccept      float64 // Dual averaging aims for this acceptance statistic
	MaxTreeDepth      int     // Cap on trajectory doublings per iteration
	MaxEnergyError    float64 // Energy error that marks a transition divergent
	MaxDivergenceRate float64 // Fraction of post-warmup divergences that aborts the run
	StaticMass        bool    // Keep the identity mass matrix instead of estimating one

	// OnProgress, when set, is called once per iteration from the chain's own
	// goroutine. It must be safe for concurrent use across chains.
	OnProgress func(Progress)
}

// Progress is the per-iteration callback payload
type Progress struct {
	Chain     int
	Iteration int // Warmup and sampling iterations count separately
	Warmup    bool
	StepSize  float64
	Diverged  bool
}

// DefaultConfig returns the conventional run setup: 4 chains of 1000 warmup
// and 1000 retained iterations targeting 0.8 acceptance.
func DefaultConfig() Config {
	return Config{
		Chains:            4,
		Warmup:            1000,
		Draws:             1000,
		Seed:              1,
		TargetAccept:      0.8,
		MaxTreeDepth:      10,
		MaxEnergyError:    1000,
		MaxDivergenceRate: 0.5,
	}
}

// Check fills zero fields with defaults and returns an error if anything is
// left that can not work
func (cfg *Config) Check() error {
	def := DefaultConfig()
	if cfg.Chains == 0 {
		cfg.Chains = def.Chains
	}
	if cfg.Warmup == 0 {
		cfg.Warmup = def.Warmup
	} else if cfg.Warmup == -1 {
		cfg.Warmup = 0
	}
	if cfg.Draws == 0 {
		cfg.Draws = def.Draws
	}
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
	if cfg.TargetAccept == 0 {
		cfg.TargetAccept = def.TargetAccept
	}
	if cfg.MaxTreeDepth == 0 {
		cfg.MaxTreeDepth = def.MaxTreeDepth
	}
	if cfg.MaxEnergyError == 0 {
		cfg.MaxEnergyError = def.MaxEnergyError
	}
	if cfg.MaxDivergenceRate == 0 {
		cfg.MaxDivergenceRate = def.MaxDivergenceRate
	}

	if cfg.Chains < 1 {
		return errors.Errorf("Chain count %d is invalid", cfg.Chains)
	}
	if cfg.Warmup < 0 || cfg.Draws < 1 {
		return errors.Errorf("Warmup %d / draws %d is invalid", cfg.Warmup, cfg.Draws)
	}
	if cfg.TargetAccept <= 0 || cfg.TargetAccept >= 1 {
		return errors.Errorf("Target accept %f must be in (0,1)", cfg.TargetAccept)
	}
	if cfg.MaxTreeDepth < 1 || cfg.MaxTreeDepth > 20 {
		return errors.Errorf("Max tree depth %d must be in [1,20]", cfg.MaxTreeDepth)
	}
	if cfg.MaxEnergyError <= 0 {
		return errors.Errorf("Max energy error %f must be positive", cfg.MaxEnergyError)
	}
	if cfg.MaxDivergenceRate <= 0 || cfg.MaxDivergenceRate > 1 {
		return errors.Errorf("Max divergence rate %f must be in (0,1]", cfg.MaxDivergenceRate)
	}
	return nil
}

// DivergenceError reports a chain whose post-warmup divergence rate blew
// through the configured budget. The posterior is not trustworthy - the run
// stops instead of quietly returning one.
type DivergenceError struct {
	Chain int
	Count int
	Iters int
	Nodes []string // Coordinates blamed most often, worst first
}

func (e *DivergenceError) Error() string {
	msg := fmt.Sprintf("Chain %d diverged on %d of %d sampling iterations", e.Chain, e.Count, e.Iters)
	if len(e.Nodes) > 0 {
		msg += " (check: " + strings.Join(e.Nodes, ", ") + ")"
	}
	return msg
}

// Sample validates the graph, runs every chain to completion, and gathers
// the posterior. The context is checked at iteration boundaries only, so a
// cancelled run still leaves each chain's state internally consistent. The
// first chain error cancels the rest.
func Sample(ctx context.Context, g *model.Graph, cfg Config) (*posterior.Result, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errors.Errorf("No graph supplied")
	}
	if err := g.Check(); err != nil {
		return nil, &model.InvalidModelError{Graph: g.Name, Err: err}
	}

	// Fan chain seeds out from the master seed so one Seed reproduces the
	// entire run no matter how the goroutines interleave
	master, err := rand.NewGenerator(cfg.Seed)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not seed master generator")
	}
	defer master.Close()

	seeds := make([]int64, cfg.Chains)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	results := make([]posterior.ChainResult, cfg.Chains)
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Chains; i++ {
		eg.Go(func() error {
			ch, err := NewChain(g, cfg, i, seeds[i])
			if err != nil {
				return errors.Wrapf(err, "Chain %d could not start", i)
			}
			defer ch.Close()

			res, err := ch.Run(ctx)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return posterior.NewResult(g, results)
}
