package sampler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CraigKelly/hample/dist"
	"github.com/CraigKelly/hample/model"
)

// smallGraph is a quick conjugate model for plumbing tests
func smallGraph(t *testing.T) *model.Graph {
	t.Helper()

	g := model.NewGraph("small")
	assert.NoError(t, g.AddNode("mu", dist.Normal{}, model.Const(0), model.Const(2)))
	assert.NoError(t, g.AddObserved("y", dist.Normal{}, []float64{0.5, 1.5, 1.0}, model.Ref("mu"), model.Const(1)))
	return g
}

// quickConfig keeps plumbing tests fast
func quickConfig() Config {
	cfg := DefaultConfig()
	cfg.Chains = 2
	cfg.Warmup = 200
	cfg.Draws = 200
	cfg.Seed = 42
	return cfg
}

func TestConfigCheck(t *testing.T) {
	assert := assert.New(t)

	// The zero value fills in every default
	cfg := Config{}
	assert.NoError(cfg.Check())
	def := DefaultConfig()
	assert.Equal(def.Chains, cfg.Chains)
	assert.Equal(def.Warmup, cfg.Warmup)
	assert.Equal(def.Draws, cfg.Draws)
	assert.Equal(def.Seed, cfg.Seed)
	assert.Equal(def.TargetAccept, cfg.TargetAccept)
	assert.Equal(def.MaxTreeDepth, cfg.MaxTreeDepth)
	assert.Equal(def.MaxEnergyError, cfg.MaxEnergyError)
	assert.Equal(def.MaxDivergenceRate, cfg.MaxDivergenceRate)
	assert.False(cfg.StaticMass)

	// Partial fill keeps what the caller set
	cfg = Config{Chains: 2, Seed: 99}
	assert.NoError(cfg.Check())
	assert.Equal(2, cfg.Chains)
	assert.Equal(int64(99), cfg.Seed)
	assert.Equal(def.Draws, cfg.Draws)

	// Zero means default, so -1 is the spelling for a no-warmup run
	cfg = Config{Warmup: -1}
	assert.NoError(cfg.Check())
	assert.Equal(0, cfg.Warmup)

	bad := []Config{
		{Chains: -1},
		{Warmup: -5},
		{Draws: -1},
		{TargetAccept: 1.5},
		{TargetAccept: -0.25},
		{MaxTreeDepth: 30},
		{MaxTreeDepth: -2},
		{MaxEnergyError: -1},
		{MaxDivergenceRate: 2},
		{MaxDivergenceRate: -0.5},
	}
	for _, b := range bad {
		assert.Error(b.Check(), "Config %+v should not validate", b)
	}
}

func TestSampleInputErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	res, err := Sample(ctx, nil, quickConfig())
	assert.Nil(res)
	assert.Error(err)

	res, err = Sample(ctx, smallGraph(t), Config{Chains: -1})
	assert.Nil(res)
	assert.Error(err)

	// A graph that can not pass Check comes back as a model error
	res, err = Sample(ctx, model.NewGraph("empty"), quickConfig())
	assert.Nil(res)
	var ime *model.InvalidModelError
	assert.ErrorAs(err, &ime)
	assert.Equal("empty", ime.Graph)

	// Hand-built cycle surfaces through the same path
	cyc := &model.Graph{
		Name: "cyc",
		Nodes: []*model.Node{
			{Name: "a", Dist: dist.Normal{}, Params: []model.Param{model.Const(0), model.Ref("b")}},
			{Name: "b", Dist: dist.Normal{}, Params: []model.Param{model.Const(0), model.Ref("a")}},
		},
	}
	res, err = Sample(ctx, cyc, quickConfig())
	assert.Nil(res)
	var cde *model.CyclicDependencyError
	assert.ErrorAs(err, &cde)
}

func TestSampleCancellation(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Sample(ctx, smallGraph(t), quickConfig())
	assert.Nil(res)
	assert.ErrorIs(err, context.Canceled)
}

func TestSampleReproducibility(t *testing.T) {
	assert := assert.New(t)

	cfg := quickConfig()

	r1, err := Sample(context.Background(), smallGraph(t), cfg)
	assert.NoError(err)
	r2, err := Sample(context.Background(), smallGraph(t), cfg)
	assert.NoError(err)

	d1, err := r1.Draws("mu")
	assert.NoError(err)
	d2, err := r2.Draws("mu")
	assert.NoError(err)
	assert.Equal(d1, d2, "Same seed should reproduce draws exactly")

	for i := range r1.Chains {
		assert.Equal(r1.Chains[i].Stats.Seed, r2.Chains[i].Stats.Seed)
		assert.Equal(r1.Chains[i].Stats.StepSize, r2.Chains[i].Stats.StepSize)
	}

	cfg.Seed = 43
	r3, err := Sample(context.Background(), smallGraph(t), cfg)
	assert.NoError(err)
	d3, err := r3.Draws("mu")
	assert.NoError(err)
	assert.NotEqual(d1, d3, "Different seeds should not reproduce draws")
}

func TestSampleProgress(t *testing.T) {
	assert := assert.New(t)

	var mu sync.Mutex
	calls := 0
	warmSeen, sampSeen := false, false

	cfg := quickConfig()
	cfg.OnProgress = func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if p.Warmup {
			warmSeen = true
		} else {
			sampSeen = true
		}
		assert.True(p.Chain >= 0 && p.Chain < cfg.Chains)
		assert.True(p.StepSize > 0)
	}

	_, err := Sample(context.Background(), smallGraph(t), cfg)
	assert.NoError(err)

	assert.Equal(cfg.Chains*(cfg.Warmup+cfg.Draws), calls)
	assert.True(warmSeen && sampSeen)
}

func TestDivergenceAbort(t *testing.T) {
	assert := assert.New(t)

	g := model.NewGraph("abort")
	assert.NoError(g.AddNode("x", dist.Normal{}, model.Const(0), model.Const(1)))

	// An absurdly low acceptance target drives the adapted step size into
	// numeric blowup, so every retained transition diverges
	cfg := DefaultConfig()
	cfg.Chains = 1
	cfg.Warmup = 100
	cfg.Draws = 100
	cfg.Seed = 55
	cfg.TargetAccept = 0.001

	res, err := Sample(context.Background(), g, cfg)
	assert.Nil(res)

	var de *DivergenceError
	assert.ErrorAs(err, &de)
	assert.Equal(0, de.Chain)
	assert.True(de.Count > 0)
	assert.True(de.Iters >= de.Count)
	assert.Contains(de.Nodes, "x")
	assert.Contains(de.Error(), "diverged")
}
