package model

import (
	"math"

	"github.com/pkg/errors"
)

// Evaluator computes the joint log-density and its gradient in the
// unconstrained space the sampler works in. Each latent node is mapped
// through its domain transform with the change-of-variables Jacobian folded
// in, so the density seen here is proper over all of R^n and Hamiltonian
// trajectories never hit a hard boundary.
//
// An Evaluator owns scratch buffers and is not safe for concurrent use.
// Each chain builds its own over the shared, already-checked graph.
type Evaluator struct {
	g       *Graph
	vals    []float64 // Natural-space value per node
	adj     []float64 // Adjoint accumulator per node for the backward pass
	params  []float64 // Scratch - resolved parameters
	pgrad   []float64 // Scratch - per-parameter gradients
	psum    []float64 // Scratch - parameter gradients summed over data
	dargs   []float64 // Scratch - op partials
	invalid int
}

// NewEvaluator returns an evaluator over a checked graph
func NewEvaluator(g *Graph) (*Evaluator, error) {
	if !g.compiled {
		return nil, errors.Errorf("Graph %s must pass Check before evaluation", g.Name)
	}

	maxP := 1
	for _, n := range g.Nodes {
		if len(n.Params) > maxP {
			maxP = len(n.Params)
		}
	}

	return &Evaluator{
		g:      g,
		vals:   make([]float64, len(g.Nodes)),
		adj:    make([]float64, len(g.Nodes)),
		params: make([]float64, maxP),
		pgrad:  make([]float64, maxP),
		psum:   make([]float64, maxP),
		dargs:  make([]float64, maxP),
	}, nil
}

// Dim returns the size of the unconstrained vector
func (ev *Evaluator) Dim() int {
	return len(ev.g.latent)
}

// InvalidCount returns how many evaluations hit an out-of-domain parameter.
// Such evaluations return -Inf and are rejected by the sampler rather than
// treated as fatal - transient excursions are normal during leapfrog
// exploration - but the count is surfaced so a caller can judge how rough
// the ride was.
func (ev *Evaluator) InvalidCount() int {
	return ev.invalid
}

// resolve fills the parameter scratch with the node's current values
func (ev *Evaluator) resolve(n *Node) []float64 {
	ps := ev.params[:len(n.Params)]
	for j, p := range n.Params {
		if n.parentIdx[j] >= 0 {
			ps[j] = ev.vals[n.parentIdx[j]]
		} else {
			ps[j] = p.Value
		}
	}
	return ps
}

// forward runs the topological pass: transforms latent coordinates to
// natural space, computes deterministic values, and accumulates the total
// log-density including Jacobian terms. Returns ok=false when anything is
// out of domain or non-finite arithmetic crept in.
func (ev *Evaluator) forward(u []float64) (float64, bool) {
	total := 0.0

	for _, n := range ev.g.Nodes {
		switch {
		case n.Latent():
			ui := u[n.latentIdx]
			x := n.trans.ToNatural(ui)
			ev.vals[n.idx] = x
			ld, err := n.Dist.LogDensity(x, ev.resolve(n))
			if err != nil {
				ev.invalid++
				return 0, false
			}
			total += ld + n.trans.LogJacobian(ui)

		case n.Deterministic():
			ev.vals[n.idx] = n.Op.Value(ev.resolve(n))

		default:
			ps := ev.resolve(n)
			if err := n.Dist.CheckParams(ps); err != nil {
				ev.invalid++
				return 0, false
			}
			for _, x := range n.Data {
				ld, err := n.Dist.LogDensity(x, ps)
				if err != nil {
					ev.invalid++
					return 0, false
				}
				total += ld
			}
		}
	}

	if math.IsNaN(total) {
		return 0, false
	}
	return total, true
}

// LogProb returns the unconstrained-space joint log-density at u, or -Inf
// when u lands outside the model's domain
func (ev *Evaluator) LogProb(u []float64) float64 {
	lp, ok := ev.forward(u)
	if !ok {
		return math.Inf(-1)
	}
	return lp
}

// Gradient fills grad with d(LogProb)/du and returns the log-density. The
// gradient is exact reverse-mode accumulation: one forward pass, then a
// backward sweep pushing each node's adjoint to its parents through
// distribution parameter gradients and op partials. On a -Inf evaluation the
// gradient is zeroed so a caller never integrates along stale directions.
func (ev *Evaluator) Gradient(u []float64, grad []float64) float64 {
	lp, ok := ev.forward(u)
	if !ok {
		zero(grad)
		return math.Inf(-1)
	}

	zero(ev.adj)

	// Children appear after parents, so walking backward means a node's
	// adjoint is complete before it pushes anything upstream
	for i := len(ev.g.Nodes) - 1; i >= 0; i-- {
		n := ev.g.Nodes[i]
		switch {
		case n.Latent():
			ps := ev.resolve(n)
			x := ev.vals[n.idx]

			gv, err := n.Dist.GradValue(x, ps)
			if err != nil {
				ev.invalid++
				zero(grad)
				return math.Inf(-1)
			}
			ev.adj[n.idx] += gv

			if n.hasRefs() {
				pg := ev.pgrad[:len(ps)]
				if err := n.Dist.GradParams(x, ps, pg); err != nil {
					ev.invalid++
					zero(grad)
					return math.Inf(-1)
				}
				for j, pi := range n.parentIdx {
					if pi >= 0 {
						ev.adj[pi] += pg[j]
					}
				}
			}

			ui := u[n.latentIdx]
			grad[n.latentIdx] = ev.adj[n.idx]*n.trans.DNatural(ui) + n.trans.GradLogJacobian(ui)

		case n.Deterministic():
			if ev.adj[n.idx] == 0 {
				continue
			}
			args := ev.resolve(n)
			da := ev.dargs[:len(args)]
			n.Op.Deriv(args, da)
			for j, pi := range n.parentIdx {
				if pi >= 0 {
					ev.adj[pi] += ev.adj[n.idx] * da[j]
				}
			}

		default:
			if !n.hasRefs() {
				continue
			}
			ps := ev.resolve(n)
			pg := ev.pgrad[:len(ps)]
			sum := ev.psum[:len(ps)]
			zero(sum)
			for _, x := range n.Data {
				if err := n.Dist.GradParams(x, ps, pg); err != nil {
					ev.invalid++
					zero(grad)
					return math.Inf(-1)
				}
				for j := range pg {
					sum[j] += pg[j]
				}
			}
			for j, pi := range n.parentIdx {
				if pi >= 0 {
					ev.adj[pi] += sum[j]
				}
			}
		}
	}

	return lp
}

// Values fills out with the natural-space value of every latent and
// deterministic node (graph order, matching Graph.TrackedNames). This is how
// retained draws get materialized back into the caller's parameter space -
// no densities are evaluated.
func (ev *Evaluator) Values(u []float64, out []float64) error {
	if len(u) != len(ev.g.latent) {
		return errors.Errorf("Need %d coordinates but was given %d", len(ev.g.latent), len(u))
	}
	if len(out) != len(ev.g.tracked) {
		return errors.Errorf("Need %d values but was given space for %d", len(ev.g.tracked), len(out))
	}

	for _, n := range ev.g.Nodes {
		switch {
		case n.Latent():
			ev.vals[n.idx] = n.trans.ToNatural(u[n.latentIdx])
		case n.Deterministic():
			ev.vals[n.idx] = n.Op.Value(ev.resolve(n))
		}
	}

	for t, n := range ev.g.tracked {
		out[t] = ev.vals[n.idx]
	}
	return nil
}

func zero(xs []float64) {
	for i := range xs {
		xs[i] = 0
	}
}
