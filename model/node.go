package model

import (
	"math"

	"github.com/pkg/errors"

	"github.com/CraigKelly/hample/dist"
)

// Param is a single distribution parameter or deterministic-op argument:
// either a literal constant or a reference to an earlier node's value. The
// reference form is what builds hierarchy - a child's mean can track a
// group-level node.
type Param struct {
	Value float64 // Literal value - only meaningful when Name is empty
	Name  string  // Name of the referenced node - empty means constant
}

// Const returns a literal parameter
func Const(v float64) Param {
	return Param{Value: v}
}

// Ref returns a parameter that tracks the named node's current value
func Ref(name string) Param {
	return Param{Name: name}
}

// IsRef is true when the parameter references another node
func (p Param) IsRef() bool {
	return p.Name != ""
}

// Node is a single named vertex in a model graph. Exactly one of Dist or Op
// is set: stochastic nodes carry a distribution family (and optionally
// observed data), deterministic nodes carry a pure function of their
// arguments. Params holds family parameters or op arguments in order.
type Node struct {
	Name   string
	Dist   dist.Family
	Op     Op
	Params []Param
	Data   []float64 // Observed values - nil means the node is sampled

	// Set by Graph.Check
	idx       int            // Position in Graph.Nodes
	parentIdx []int          // Resolved Params references (-1 for constants)
	latentIdx int            // Position in the unconstrained vector (-1 if not latent)
	trans     dist.Transform // Unconstraining transform for latent nodes
}

// Latent is true for stochastic nodes that will be sampled
func (n *Node) Latent() bool {
	return n.Dist != nil && n.Data == nil
}

// Observed is true for stochastic nodes pinned to data
func (n *Node) Observed() bool {
	return n.Dist != nil && n.Data != nil
}

// Deterministic is true for pure-function nodes
func (n *Node) Deterministic() bool {
	return n.Op != nil
}

// Check returns an error if any problem is found with the node in isolation.
// Reference resolution and ordering are graph-level concerns (see
// Graph.Check).
func (n *Node) Check() error {
	if len(n.Name) < 1 {
		return errors.Errorf("Node has an empty name")
	}

	if (n.Dist == nil) == (n.Op == nil) {
		return errors.Errorf("Node %s must have exactly one of a distribution or an op", n.Name)
	}

	if n.Op != nil {
		if n.Data != nil {
			return errors.Errorf("Deterministic node %s can not carry observed data", n.Name)
		}
		if len(n.Params) != n.Op.NumArgs() {
			return errors.Errorf(
				"Node %s op %s needs %d args but has %d",
				n.Name, n.Op, n.Op.NumArgs(), len(n.Params),
			)
		}
		return nil
	}

	if len(n.Params) != n.Dist.NumParams() {
		return errors.Errorf(
			"Node %s dist %s needs %d params but has %d",
			n.Name, n.Dist, n.Dist.NumParams(), len(n.Params),
		)
	}

	if n.Dist.Domain() == dist.Discrete && n.Data == nil {
		return errors.Errorf(
			"Node %s is discrete (%s) - discrete nodes must be observed",
			n.Name, n.Dist,
		)
	}

	if n.Data != nil {
		if len(n.Data) < 1 {
			return errors.Errorf("Observed node %s has no data", n.Name)
		}
		if err := checkSupport(n.Dist.Domain(), n.Data); err != nil {
			return errors.Wrapf(err, "Observed node %s (%s)", n.Name, n.Dist)
		}
	}

	return nil
}

// checkSupport insures observed data lies in the family's support
func checkSupport(d dist.Domain, data []float64) error {
	for i, x := range data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.Errorf("Datum %d is %f", i, x)
		}
		switch d {
		case dist.Positive:
			if x < 0 {
				return errors.Errorf("Datum %d is %f but must be >= 0", i, x)
			}
		case dist.UnitInterval:
			if x <= 0 || x >= 1 {
				return errors.Errorf("Datum %d is %f but must be in (0,1)", i, x)
			}
		case dist.Discrete:
			if x != 0 && x != 1 {
				return errors.Errorf("Datum %d is %f but must be 0 or 1", i, x)
			}
		}
	}
	return nil
}
