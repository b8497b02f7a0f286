package model

import (
	"math"

	"github.com/pkg/errors"

	"github.com/CraigKelly/hample/dist"
)

// Graph is a hierarchical model: named nodes kept in an order where every
// parameter reference points to an earlier node. That ordering is what makes
// the joint log-density computable in a single forward pass, so it is
// enforced when nodes are added and verified again by Check. A Graph is
// built once per analysis and is immutable once sampling starts - chains
// share it read-only.
type Graph struct {
	Name  string
	Nodes []*Node

	byName   map[string]*Node
	latent   []*Node // Latent nodes in graph order - this is the unconstrained vector layout
	tracked  []*Node // Latent + deterministic nodes in graph order - what the posterior reports
	compiled bool
}

// NewGraph returns an empty named graph
func NewGraph(name string) *Graph {
	return &Graph{
		Name:   name,
		Nodes:  make([]*Node, 0, 16),
		byName: make(map[string]*Node),
	}
}

// AddNode adds a latent stochastic node with the given family and parameters
func (g *Graph) AddNode(name string, d dist.Family, params ...Param) error {
	return g.add(&Node{Name: name, Dist: d, Params: params})
}

// AddObserved adds a stochastic node pinned to observed data. Every value in
// data shares the same parameters, so a vector of exchangeable observations
// is one node.
func (g *Graph) AddObserved(name string, d dist.Family, data []float64, params ...Param) error {
	if len(data) < 1 {
		return errors.Errorf("Observed node %s has no data", name)
	}
	return g.add(&Node{Name: name, Dist: d, Params: params, Data: data})
}

// AddAffine adds a deterministic node computing loc + scale*x
func (g *Graph) AddAffine(name string, loc, scale, x Param) error {
	return g.add(&Node{Name: name, Op: AffineOp{}, Params: []Param{loc, scale, x}})
}

// AddDiff adds a deterministic node computing a - b
func (g *Graph) AddDiff(name string, a, b Param) error {
	return g.add(&Node{Name: name, Op: DiffOp{}, Params: []Param{a, b}})
}

// AddLogistic adds a deterministic node computing sigmoid(x)
func (g *Graph) AddLogistic(name string, x Param) error {
	return g.add(&Node{Name: name, Op: LogisticOp{}, Params: []Param{x}})
}

// AddNonCentered adds the non-centered version of name ~ Normal(mean, sd):
// a standard Normal node called name_raw plus a deterministic affine node
// called name computing mean + sd*raw. Hierarchical models with weakly
// identified scales sample far better this way - the raw node's prior
// geometry stays fixed no matter where mean and sd wander.
func (g *Graph) AddNonCentered(name string, mean, sd Param) error {
	raw := name + "_raw"
	if err := g.AddNode(raw, dist.Normal{}, Const(0), Const(1)); err != nil {
		return err
	}
	return g.AddAffine(name, mean, sd, Ref(raw))
}

// add validates a node against the current graph and appends it
func (g *Graph) add(n *Node) error {
	if err := n.Check(); err != nil {
		return errors.Wrapf(err, "Can not add node to graph %s", g.Name)
	}

	if _, ok := g.byName[n.Name]; ok {
		return errors.Errorf("Graph %s already has a node named %s", g.Name, n.Name)
	}

	for _, p := range n.Params {
		if !p.IsRef() {
			continue
		}
		if p.Name == n.Name {
			return &CyclicDependencyError{Cycle: []string{n.Name, n.Name}}
		}
		parent, ok := g.byName[p.Name]
		if !ok {
			return &UnknownParentError{Node: n.Name, Parent: p.Name}
		}
		if parent.Observed() {
			return errors.Errorf(
				"Node %s references observed node %s - observed nodes carry data, not a value",
				n.Name, p.Name,
			)
		}
	}

	// Parameters with no references can be vetted right now - fail at build
	// time, not after a chain burns compute
	if n.Dist != nil && !n.hasRefs() {
		ps := make([]float64, len(n.Params))
		for j, p := range n.Params {
			ps[j] = p.Value
		}
		if err := n.Dist.CheckParams(ps); err != nil {
			return errors.Wrapf(err, "Node %s", n.Name)
		}
	}

	g.Nodes = append(g.Nodes, n)
	g.byName[n.Name] = n
	g.compiled = false
	return nil
}

// Node returns the named node or nil
func (g *Graph) Node(name string) *Node {
	return g.byName[name]
}

// Dim returns the unconstrained dimension (the latent node count). Only
// meaningful after Check.
func (g *Graph) Dim() int {
	return len(g.latent)
}

// LatentName returns the name of the i-th unconstrained coordinate
func (g *Graph) LatentName(i int) string {
	return g.latent[i].Name
}

// TrackedNames returns the names with posterior values - every latent and
// deterministic node, in graph order
func (g *Graph) TrackedNames() []string {
	names := make([]string, len(g.tracked))
	for i, n := range g.tracked {
		names[i] = n.Name
	}
	return names
}

// Check returns an error if there is a problem with the graph and wires up
// the internal indexes used for evaluation. The builder methods keep the
// graph valid as it grows, but Check redoes everything so a hand-assembled
// Graph gets the same treatment.
func (g *Graph) Check() error {
	if len(g.Nodes) < 1 {
		return errors.Errorf("Graph %s has no nodes", g.Name)
	}

	g.byName = make(map[string]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if err := n.Check(); err != nil {
			return errors.Wrapf(err, "Graph %s has an invalid node", g.Name)
		}
		if _, ok := g.byName[n.Name]; ok {
			return errors.Errorf("Graph %s has duplicate node name %s", g.Name, n.Name)
		}
		g.byName[n.Name] = n
	}

	for i, n := range g.Nodes {
		n.idx = i
		for _, p := range n.Params {
			if !p.IsRef() {
				continue
			}
			parent, ok := g.byName[p.Name]
			if !ok {
				return &UnknownParentError{Node: n.Name, Parent: p.Name}
			}
			if parent.Observed() {
				return errors.Errorf(
					"Node %s references observed node %s - observed nodes carry data, not a value",
					n.Name, p.Name,
				)
			}
		}
	}

	if cyc := g.findCycle(); cyc != nil {
		return &CyclicDependencyError{Cycle: cyc}
	}

	// Acyclic, so any forward reference is an ordering problem
	for _, n := range g.Nodes {
		for _, p := range n.Params {
			if p.IsRef() && g.byName[p.Name].idx >= n.idx {
				return errors.Errorf(
					"Node %s references later node %s - parents must be added first",
					n.Name, p.Name,
				)
			}
		}
	}

	for _, n := range g.Nodes {
		if n.Dist != nil && !n.hasRefs() {
			ps := make([]float64, len(n.Params))
			for j, p := range n.Params {
				ps[j] = p.Value
			}
			if err := n.Dist.CheckParams(ps); err != nil {
				return errors.Wrapf(err, "Node %s", n.Name)
			}
		}
	}

	g.compile()

	if len(g.latent) < 1 {
		return errors.Errorf("Graph %s has no latent nodes - nothing to sample", g.Name)
	}

	return nil
}

// findCycle runs Kahn's algorithm over the reference edges and, when the
// graph is cyclic, walks parent links through the leftover nodes to produce
// a concrete witness (names with the start repeated). Returns nil when
// acyclic.
func (g *Graph) findCycle() []string {
	n := len(g.Nodes)
	parents := make([][]int, n)
	children := make([][]int, n)
	indeg := make([]int, n)

	for i, nd := range g.Nodes {
		for _, p := range nd.Params {
			if !p.IsRef() {
				continue
			}
			pi := g.byName[p.Name].idx
			parents[i] = append(parents[i], pi)
			children[pi] = append(children[pi], i)
			indeg[i]++
		}
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}

	done := 0
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		done++
		for _, c := range children[v] {
			indeg[c]--
			if indeg[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if done == n {
		return nil
	}

	// Every leftover node still has an unprocessed parent, so following
	// parent links must revisit a node within n steps
	start := -1
	for i := 0; i < n; i++ {
		if indeg[i] > 0 {
			start = i
			break
		}
	}

	seen := make(map[int]int)
	path := make([]int, 0, n)
	v := start
	for {
		if pos, ok := seen[v]; ok {
			cyc := path[pos:]
			names := make([]string, 0, len(cyc)+1)
			for _, i := range cyc {
				names = append(names, g.Nodes[i].Name)
			}
			names = append(names, g.Nodes[cyc[0]].Name)
			return names
		}
		seen[v] = len(path)
		path = append(path, v)
		next := -1
		for _, p := range parents[v] {
			if indeg[p] > 0 {
				next = p
				break
			}
		}
		if next < 0 {
			// Should not happen - bail with the self-loop form
			return []string{g.Nodes[v].Name, g.Nodes[v].Name}
		}
		v = next
	}
}

// compile fills the resolved indexes every evaluator relies on
func (g *Graph) compile() {
	g.latent = g.latent[:0]
	g.tracked = g.tracked[:0]

	for i, n := range g.Nodes {
		n.idx = i
		n.parentIdx = make([]int, len(n.Params))
		for j, p := range n.Params {
			if p.IsRef() {
				n.parentIdx[j] = g.byName[p.Name].idx
			} else {
				n.parentIdx[j] = -1
			}
		}

		n.latentIdx = -1
		n.trans = nil
		if n.Latent() {
			n.latentIdx = len(g.latent)
			n.trans = dist.TransformFor(n.Dist.Domain())
			g.latent = append(g.latent, n)
		}
		if !n.Observed() {
			g.tracked = append(g.tracked, n)
		}
	}

	g.compiled = true
}

// hasRefs is true when any parameter references another node
func (n *Node) hasRefs() bool {
	for _, p := range n.Params {
		if p.IsRef() {
			return true
		}
	}
	return false
}

// JointLogDensity evaluates the joint log-density at a natural-space
// assignment of the latent nodes: the sum over every node of its log-density
// given resolved parent values and either its observed data or the assigned
// value. No unconstraining transforms or Jacobians are involved - this is
// the density a textbook would write down for the model.
//
// The assignment must cover every latent node and nothing else. Values
// outside a node's support or parameters pushed out of domain give -Inf, not
// an error.
func (g *Graph) JointLogDensity(assign map[string]float64) (float64, error) {
	if !g.compiled {
		if err := g.Check(); err != nil {
			return 0, err
		}
	}

	for name := range assign {
		n, ok := g.byName[name]
		if !ok {
			return 0, errors.Errorf("Graph %s has no node named %s", g.Name, name)
		}
		if !n.Latent() {
			return 0, errors.Errorf("Node %s is not latent - only latent nodes take assigned values", name)
		}
	}

	vals := make([]float64, len(g.Nodes))
	buf := make([]float64, 0, 4)
	total := 0.0

	for _, n := range g.Nodes {
		switch {
		case n.Latent():
			x, ok := assign[n.Name]
			if !ok {
				return 0, errors.Errorf("Assignment is missing latent node %s", n.Name)
			}
			vals[n.idx] = x
			buf = resolveParams(n, vals, buf)
			ld, err := n.Dist.LogDensity(x, buf)
			if err != nil {
				return math.Inf(-1), nil
			}
			total += ld

		case n.Deterministic():
			buf = resolveParams(n, vals, buf)
			vals[n.idx] = n.Op.Value(buf)

		default:
			buf = resolveParams(n, vals, buf)
			if err := n.Dist.CheckParams(buf); err != nil {
				return math.Inf(-1), nil
			}
			for _, x := range n.Data {
				ld, err := n.Dist.LogDensity(x, buf)
				if err != nil {
					return math.Inf(-1), nil
				}
				total += ld
			}
		}
	}

	if math.IsNaN(total) {
		return math.Inf(-1), nil
	}
	return total, nil
}

// resolveParams fills buf with the node's current parameter values
func resolveParams(n *Node, vals []float64, buf []float64) []float64 {
	buf = buf[:0]
	for j, p := range n.Params {
		if n.parentIdx[j] >= 0 {
			buf = append(buf, vals[n.parentIdx[j]])
		} else {
			buf = append(buf, p.Value)
		}
	}
	return buf
}
