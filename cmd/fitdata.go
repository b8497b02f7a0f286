package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/hample/dist"
	"github.com/CraigKelly/hample/model"
)

var fitDataCmd = &cobra.Command{
	Use:   "fit FILE",
	Short: "Fit the hierarchical normal pooling model to grouped data",
	Long: `Reads whitespace separated "group value" pairs from FILE and fits a
partial pooling model: a population mean and scale, one non-centered
effect per group, and a shared observation noise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fitDataDemo(sp, args[0])
	},
}

// groupedModel builds the pooled hierarchy over the given group data
func groupedModel(groups []model.GroupObs) (*model.Graph, error) {
	g := model.NewGraph("grouped")
	if err := g.AddNode("mu", dist.Normal{}, model.Const(0), model.Const(10)); err != nil {
		return nil, err
	}
	if err := g.AddNode("tau", dist.HalfNormal{}, model.Const(5)); err != nil {
		return nil, err
	}
	if err := g.AddNode("noise", dist.HalfNormal{}, model.Const(5)); err != nil {
		return nil, err
	}

	for _, grp := range groups {
		eff := "effect_" + grp.Name
		if err := g.AddNonCentered(eff, model.Ref("mu"), model.Ref("tau")); err != nil {
			return nil, err
		}
		if err := g.AddObserved("obs_"+grp.Name, dist.Normal{}, grp.Values, model.Ref(eff), model.Ref("noise")); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func fitDataDemo(sp *startupParams, fn string) error {
	sp.verb.Printf("Reading grouped data from %s\n", fn)
	raw, err := os.ReadFile(fn)
	if err != nil {
		return errors.Wrapf(err, "Could not read data file %s", fn)
	}

	groups, err := model.ReadGroupData(string(raw))
	if err != nil {
		return err
	}

	tot := 0
	for _, grp := range groups {
		tot += len(grp.Values)
	}
	sp.verb.Printf("Found %d groups, %d observations\n", len(groups), tot)

	g, err := groupedModel(groups)
	if err != nil {
		return err
	}

	_, err = runModel(sp, g)
	return err
}
