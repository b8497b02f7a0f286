package cmd

import (
	"log"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/hample/model"
)

var dotModelName string

var dotCmd = &cobra.Command{
	Use:   "dot",
	Short: "Emit a graphviz rendering of a builtin model",
	Long: `Writes the named builtin model's dependency graph in dot format:
ellipses for latent nodes, diamonds for deterministic nodes, and shaded
boxes for observed ones. Pipe the output through dot -Tsvg to render.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dotOutput(sp, dotModelName)
	},
}

func init() {
	dotCmd.Flags().StringVarP(&dotModelName, "model", "m", "rank", "Builtin model to render (rank, schools, betafit)")
}

// demoModel returns the named builtin model using that command's flag values
func demoModel(name string) (*model.Graph, error) {
	switch name {
	case "rank":
		g, _, err := rankModel(rankGames)
		return g, err
	case "schools":
		return schoolsModel(schoolsCentered)
	case "betafit":
		g, _, err := betaFitModel(betaMu, betaNu, betaObs)
		return g, err
	}
	return nil, errors.Errorf("Unknown model %s (want rank, schools, or betafit)", name)
}

// dotOutput writes the model's DAG as a graphviz digraph
func dotOutput(sp *startupParams, name string) error {
	g, err := demoModel(name)
	if err != nil {
		return err
	}
	sp.verb.Printf("Model %s has %d nodes\n", g.Name, len(g.Nodes))

	var target *log.Logger
	if len(sp.traceFile) > 0 {
		sp.verb.Printf("Writing graph to trace file %v\n", sp.traceFile)
		target = sp.trace
	} else {
		target = sp.out
	}

	// Start graph
	target.Printf("digraph %q {\n", g.Name)
	target.Printf("    rankdir=LR;\n")

	// Output nodes
	for _, n := range g.Nodes {
		switch {
		case n.Observed():
			target.Printf("    %q [shape=box, style=filled, fillcolor=gray85, label=\"%s\\n%s x%d\"];\n",
				n.Name, n.Name, n.Dist, len(n.Data))
		case n.Deterministic():
			target.Printf("    %q [shape=diamond, label=\"%s\\n%s\"];\n", n.Name, n.Name, n.Op)
		default:
			target.Printf("    %q [shape=ellipse, label=\"%s\\n%s\"];\n", n.Name, n.Name, n.Dist)
		}
	}

	// Output links
	for _, n := range g.Nodes {
		for _, p := range n.Params {
			if p.IsRef() {
				target.Printf("    %q -> %q;\n", p.Name, n.Name)
			}
		}
	}

	// Finish graph
	target.Printf("}\n")

	return nil
}
