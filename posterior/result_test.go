package posterior

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CraigKelly/hample/dist"
	"github.com/CraigKelly/hample/model"
)

func scaleGraph(t *testing.T) *model.Graph {
	g := model.NewGraph("scale")
	assert.NoError(t, g.AddNode("mu", dist.Normal{}, model.Const(0), model.Const(5)))
	assert.NoError(t, g.AddNode("tau", dist.HalfNormal{}, model.Const(5)))
	assert.NoError(t, g.AddObserved("y", dist.Normal{}, []float64{1.2}, model.Ref("mu"), model.Ref("tau")))
	assert.NoError(t, g.Check())
	return g
}

func TestResultDraws(t *testing.T) {
	assert := assert.New(t)

	g := scaleGraph(t)

	// Hand-built chains: mu values -3..0 and 1..4, tau on the log scale
	chains := []ChainResult{
		{Draws: [][]float64{{-3, 0}, {-2, 0.5}, {-1, 1}, {0, -0.5}}},
		{Draws: [][]float64{{1, 0}, {2, 0.25}, {3, -1}, {4, 2}}},
	}

	r, err := NewResult(g, chains)
	assert.NoError(err)

	assert.Equal([]string{"mu", "tau"}, r.Names())

	mu, err := r.Draws("mu")
	assert.NoError(err)
	assert.Equal([]float64{-3, -2, -1, 0, 1, 2, 3, 4}, mu)

	// tau comes back through the log transform
	tau, err := r.Draws("tau")
	assert.NoError(err)
	assert.Equal(8, len(tau))
	assert.InDelta(1.0, tau[0], 1e-12)
	assert.InDelta(math.Exp(0.5), tau[1], 1e-12)
	assert.InDelta(math.Exp(2), tau[7], 1e-12)

	byChain, err := r.ChainDraws("mu")
	assert.NoError(err)
	assert.Equal([][]float64{{-3, -2, -1, 0}, {1, 2, 3, 4}}, byChain)

	_, err = r.Draws("nope")
	assert.Error(err)
	_, err = r.Draws("y")
	assert.Error(err)
}

func TestResultMoments(t *testing.T) {
	assert := assert.New(t)

	g := scaleGraph(t)
	chains := []ChainResult{
		{Draws: [][]float64{{-3, 0}, {-2, 0}, {-1, 0}, {0, 0}}},
		{Draws: [][]float64{{1, 0}, {2, 0}, {3, 0}, {4, 0}}},
	}

	r, err := NewResult(g, chains)
	assert.NoError(err)

	mean, err := r.Mean("mu")
	assert.NoError(err)
	assert.InDelta(0.5, mean, 1e-12)

	med, err := r.Quantile("mu", 0.5)
	assert.NoError(err)
	assert.InDelta(0.0, med, 1e-12)

	lo, hi, err := r.CredibleInterval("mu", 0.95)
	assert.NoError(err)
	assert.InDelta(-3, lo, 1e-12)
	assert.InDelta(4, hi, 1e-12)

	_, err = r.Quantile("mu", 1.5)
	assert.Error(err)
	_, _, err = r.CredibleInterval("mu", 0)
	assert.Error(err)

	recs, err := Compare(r, map[string]float64{"mu": 0.25}, 0.95)
	assert.NoError(err)
	assert.Len(recs, 1)
	assert.True(recs[0].Covered)
	assert.InDelta(0.5, recs[0].Mean, 1e-12)

	recs, err = Compare(r, map[string]float64{"mu": 10}, 0.95)
	assert.NoError(err)
	assert.False(recs[0].Covered)

	_, err = Compare(r, map[string]float64{"zzz": 1}, 0.95)
	assert.Error(err)
}

func TestResultSummary(t *testing.T) {
	assert := assert.New(t)

	g := scaleGraph(t)

	// Deterministic wiggle so variance and autocorrelation are both sane
	mk := func(offset float64) [][]float64 {
		draws := make([][]float64, 100)
		for i := range draws {
			v := offset + math.Sin(float64(i)*1.7) + 0.3*math.Cos(float64(i)*0.9)
			draws[i] = []float64{v, 0.1 * v}
		}
		return draws
	}
	chains := []ChainResult{
		{Draws: mk(0.0), Stats: ChainStats{Divergences: []Divergence{{Chain: 0, Iteration: 3, Node: "tau", EnergyError: 1200}}}},
		{Draws: mk(0.05)},
	}

	r, err := NewResult(g, chains)
	assert.NoError(err)

	s, err := r.Summary("mu")
	assert.NoError(err)
	assert.Equal("mu", s.Name)
	assert.Equal(200, s.N)
	assert.True(s.SD > 0)
	assert.True(s.Q025 <= s.Q25 && s.Q25 <= s.Median)
	assert.True(s.Median <= s.Q75 && s.Q75 <= s.Q975)
	assert.False(math.IsNaN(s.RHat))
	assert.False(math.IsNaN(s.ESSBulk))
	assert.False(math.IsNaN(s.ESSTail))

	all, err := r.AllSummaries()
	assert.NoError(err)
	assert.Len(all, 2)
	assert.Equal("mu", all[0].Name)
	assert.Equal("tau", all[1].Name)

	assert.Equal(1, r.TotalDivergences())
}

func TestResultErrors(t *testing.T) {
	assert := assert.New(t)

	g := scaleGraph(t)

	_, err := NewResult(g, nil)
	assert.Error(err)

	// Draw with the wrong dimension
	_, err = NewResult(g, []ChainResult{{Draws: [][]float64{{1}}}})
	assert.Error(err)

	// Unchecked graph
	g2 := model.NewGraph("raw")
	assert.NoError(g2.AddNode("x", dist.Normal{}, model.Const(0), model.Const(1)))
	_, err = NewResult(g2, []ChainResult{{Draws: [][]float64{{0}}}})
	assert.Error(err)
}
