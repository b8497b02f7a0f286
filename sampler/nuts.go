package sampler

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// point is one phase-space state: position and momentum in unconstrained
// space plus the gradient and log-density cached at the position.
type point struct {
	pos  []float64
	mom  []float64
	grad []float64
	logp float64
}

func newPoint(dim int) *point {
	return &point{
		pos:  make([]float64, dim),
		mom:  make([]float64, dim),
		grad: make([]float64, dim),
	}
}

func (p *point) copyFrom(q *point) {
	copy(p.pos, q.pos)
	copy(p.mom, q.mom)
	copy(p.grad, q.grad)
	p.logp = q.logp
}

func (p *point) clone() *point {
	c := newPoint(len(p.pos))
	c.copyFrom(p)
	return c
}

// leapfrog advances the point one step of size eps: half momentum kick,
// position drift scaled by the inverse mass, half kick. The cached gradient
// and log-density are refreshed at the new position.
func (c *Chain) leapfrog(pt *point, eps float64) {
	floats.AddScaled(pt.mom, 0.5*eps, pt.grad)
	for i, m := range pt.mom {
		pt.pos[i] += eps * m * c.massInv[i]
	}
	pt.logp = c.eval.Gradient(pt.pos, pt.grad)
	floats.AddScaled(pt.mom, 0.5*eps, pt.grad)
}

// kinetic is the momentum's energy under the diagonal mass matrix
func (c *Chain) kinetic(mom []float64) float64 {
	k := 0.0
	for i, m := range mom {
		k += m * m * c.massInv[i]
	}
	return 0.5 * k
}

// energy is the full Hamiltonian at a point
func (c *Chain) energy(pt *point) float64 {
	return -pt.logp + c.kinetic(pt.mom)
}

// uTurn is the doubling stop rule: the trajectory has started back toward
// itself once the end-to-end displacement projects negatively on either
// endpoint's velocity.
func (c *Chain) uTurn(l, r *point) bool {
	dl, dr := 0.0, 0.0
	for i := range l.pos {
		d := r.pos[i] - l.pos[i]
		dl += d * l.mom[i] * c.massInv[i]
		dr += d * r.mom[i] * c.massInv[i]
	}
	return dl < 0 || dr < 0
}

// tree is the running summary of one NUTS subtree
type tree struct {
	left, right *point

	prop     []float64 // Proposal - a uniform draw over slice-eligible leaves
	propLogp float64
	propGrad []float64

	n         int     // Slice-eligible leaf count
	sumAccept float64 // Summed per-leaf acceptance statistic
	leaves    int

	stop      bool // A sub-trajectory U-turned: discard it and stop doubling
	diverged  bool
	blame     int // Coordinate blamed for a divergence (-1 when none)
	energyErr float64
}

// buildTree recursively doubles a trajectory outward from a boundary point.
// Points are cloned before integration, so existing tree state is never
// mutated and proposal slices can alias leaf storage safely.
func (c *Chain) buildTree(from *point, dir float64, depth int, logu, h0 float64) *tree {
	if depth == 0 {
		pt := from.clone()
		c.leapfrog(pt, dir*c.stepSize)

		h := c.energy(pt)
		if math.IsNaN(h) {
			h = math.Inf(1)
		}

		t := &tree{
			left:     pt,
			right:    pt,
			prop:     pt.pos,
			propLogp: pt.logp,
			propGrad: pt.grad,
			leaves:   1,
			blame:    -1,
		}

		if logu <= -h {
			t.n = 1
		}
		if logu+h > c.cfg.MaxEnergyError {
			t.diverged = true
			t.blame = c.blameCoord(pt)
			t.energyErr = h - h0
		}

		a := math.Exp(h0 - h)
		if a > 1 {
			a = 1
		}
		if math.IsNaN(a) {
			a = 0
		}
		t.sumAccept = a
		return t
	}

	t := c.buildTree(from, dir, depth-1, logu, h0)
	if t.stop || t.diverged {
		return t
	}

	var sub *tree
	if dir < 0 {
		sub = c.buildTree(t.left, dir, depth-1, logu, h0)
		t.left = sub.left
	} else {
		sub = c.buildTree(t.right, dir, depth-1, logu, h0)
		t.right = sub.right
	}

	t.sumAccept += sub.sumAccept
	t.leaves += sub.leaves

	if sub.diverged {
		t.diverged = true
		t.blame = sub.blame
		t.energyErr = sub.energyErr
		return t
	}

	// Uniform proposal over eligible leaves of the combined subtree
	if sub.n > 0 && c.gen.Float64() < float64(sub.n)/float64(t.n+sub.n) {
		t.prop = sub.prop
		t.propLogp = sub.propLogp
		t.propGrad = sub.propGrad
	}
	t.n += sub.n
	t.stop = sub.stop || c.uTurn(t.left, t.right)
	return t
}

// transitionInfo is what one NUTS iteration reports back to the chain loop
type transitionInfo struct {
	accept    float64 // Mean leaf acceptance statistic - feeds dual averaging
	diverged  bool
	blame     int
	energyErr float64
	depthHit  bool
}

// transition runs one complete NUTS update in place on the chain's current
// position: fresh momentum, a slice variable, then repeated doubling until a
// U-turn, a divergence, or the depth cap.
func (c *Chain) transition() transitionInfo {
	for i := range c.cur.mom {
		c.cur.mom[i] = c.momSd[i] * c.stdNorm.Rand()
	}

	h0 := c.energy(c.cur)
	logu := -h0 + math.Log(1-c.gen.Float64())

	left := c.cur.clone()
	right := c.cur.clone()

	chosen := c.cur.pos
	chosenLogp := c.cur.logp
	chosenGrad := c.cur.grad

	info := transitionInfo{blame: -1}
	sumAccept := 0.0
	leaves := 0
	n := 1

	for depth := 0; depth < c.cfg.MaxTreeDepth; depth++ {
		var t *tree
		if c.gen.Float64() < 0.5 {
			t = c.buildTree(left, -1, depth, logu, h0)
			left = t.left
		} else {
			t = c.buildTree(right, +1, depth, logu, h0)
			right = t.right
		}

		sumAccept += t.sumAccept
		leaves += t.leaves

		if t.diverged {
			info.diverged = true
			info.blame = t.blame
			info.energyErr = t.energyErr
			break
		}
		if t.stop {
			break
		}

		// The new half replaces the proposal with probability min(1, new/old)
		if t.n > 0 && (t.n >= n || c.gen.Float64() < float64(t.n)/float64(n)) {
			chosen = t.prop
			chosenLogp = t.propLogp
			chosenGrad = t.propGrad
		}
		n += t.n

		if c.uTurn(left, right) {
			break
		}
		if depth == c.cfg.MaxTreeDepth-1 {
			info.depthHit = true
		}
	}

	copy(c.cur.pos, chosen)
	copy(c.cur.grad, chosenGrad)
	c.cur.logp = chosenLogp

	if leaves > 0 {
		info.accept = sumAccept / float64(leaves)
	}
	return info
}

// blameCoord picks the coordinate most likely behind a divergence: the
// steepest finite gradient component, falling back to the fastest-moving
// coordinate when a failed evaluation zeroed the gradient.
func (c *Chain) blameCoord(pt *point) int {
	best, bestAbs := 0, 0.0
	for i, g := range pt.grad {
		a := math.Abs(g)
		if !math.IsInf(a, 0) && a > bestAbs {
			best, bestAbs = i, a
		}
	}
	if bestAbs > 0 {
		return best
	}
	for i, m := range pt.mom {
		a := math.Abs(m)
		if a > bestAbs {
			best, bestAbs = i, a
		}
	}
	return best
}
