package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/hample/model"
	"github.com/CraigKelly/hample/posterior"
	"github.com/CraigKelly/hample/sampler"
)

// startupParams is the state shared by every subcommand: parsed flags plus
// the loggers for stdout, verbose stderr, and the optional trace file.
type startupParams struct {
	verbose      bool
	chains       int
	warmup       int
	draws        int
	randomSeed   int64
	targetAccept float64
	staticMass   bool
	monitorAddr  string
	traceFile    string

	out   *log.Logger
	verb  *log.Logger
	trace *log.Logger

	traceFd *os.File
}

// Setup creates the loggers once flags are parsed
func (sp *startupParams) Setup() error {
	sp.out = log.New(os.Stdout, "", 0)

	if sp.verbose {
		sp.verb = log.New(os.Stderr, "", 0)
	} else {
		sp.verb = log.New(io.Discard, "", 0)
	}

	sp.trace = log.New(io.Discard, "", 0)
	if len(sp.traceFile) > 0 {
		fd, err := os.Create(sp.traceFile)
		if err != nil {
			return errors.Wrapf(err, "Could not create trace file %s", sp.traceFile)
		}
		sp.traceFd = fd
		sp.trace = log.New(fd, "", 0)
	}

	return nil
}

// Close releases the trace file if one was opened
func (sp *startupParams) Close() {
	if sp.traceFd != nil {
		sp.traceFd.Close()
		sp.traceFd = nil
	}
}

// Config translates the shared flags into a sampler configuration
func (sp *startupParams) Config() sampler.Config {
	cfg := sampler.DefaultConfig()
	cfg.Chains = sp.chains
	cfg.Warmup = sp.warmup
	cfg.Draws = sp.draws
	cfg.Seed = sp.randomSeed
	cfg.TargetAccept = sp.targetAccept
	cfg.StaticMass = sp.staticMass
	return cfg
}

var sp = &startupParams{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hample",
	Short: "Hierarchical model sampling with a No-U-Turn sampler",
	Long: `hample runs gradient-based MCMC over small hierarchical models.
Among other features:

  - A distribution library with unconstraining transforms
  - Model graphs with non-centered reparameterization
  - A No-U-Turn sampler with step size and mass matrix adaptation
  - Split R-hat and effective sample size diagnostics
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return sp.Setup()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&sp.verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")
	pf.IntVar(&sp.chains, "chains", 4, "Independent chains to run")
	pf.IntVar(&sp.warmup, "warmup", 1000, "Adaptation iterations per chain (never retained)")
	pf.IntVar(&sp.draws, "draws", 1000, "Retained iterations per chain")
	pf.Int64VarP(&sp.randomSeed, "seed", "r", 1, "Random seed to use")
	pf.Float64Var(&sp.targetAccept, "target-accept", 0.8, "Acceptance statistic the step size adapts toward")
	pf.BoolVar(&sp.staticMass, "static-mass", false, "Skip mass matrix estimation during warmup")
	pf.StringVar(&sp.monitorAddr, "monitor", "", "Serve expvar progress over HTTP at this address (e.g. :8000)")
	pf.StringVarP(&sp.traceFile, "trace", "t", "", "Write retained draws as TSV to this file")

	rootCmd.AddCommand(rankCmd, schoolsCmd, betaFitCmd, fitDataCmd, dotCmd)

	err := rootCmd.Execute()
	sp.Close()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// runModel samples the graph with the shared flags, reports the summary
// table, and honors the trace and monitor flags. Interrupts cancel the run
// cleanly at the next iteration boundary.
func runModel(sp *startupParams, g *model.Graph) (*posterior.Result, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := sp.Config()

	var mon *monitor
	if len(sp.monitorAddr) > 0 {
		mon = &monitor{}
		if err := mon.Start(sp.monitorAddr); err != nil {
			return nil, err
		}
		defer mon.Stop()
		mon.Chains.Set(int64(cfg.Chains))
		cfg.OnProgress = mon.Observe
	}

	sp.verb.Printf("Sampling %s: %d chains, %d warmup + %d draws, seed %d\n",
		g.Name, cfg.Chains, cfg.Warmup, cfg.Draws, cfg.Seed)

	start := time.Now()
	res, err := sampler.Sample(ctx, g, cfg)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	sp.verb.Printf("Sampling took %v\n", elapsed)
	if mon != nil {
		mon.RunTime.Set(elapsed.Seconds())
	}

	for _, ch := range res.Chains {
		st := ch.Stats
		sp.verb.Printf("Chain seed=%d step=%.4g accept=%.3f warmup-div=%d div=%d invalid=%d depth-hits=%d\n",
			st.Seed, st.StepSize, st.MeanAccept, st.WarmupDivergences,
			len(st.Divergences), st.InvalidParams, st.MaxTreeDepthHits)
	}

	if err := printSummaries(sp, res); err != nil {
		return nil, err
	}

	if len(sp.traceFile) > 0 {
		sp.verb.Printf("Writing draws to %s\n", sp.traceFile)
		if err := writeTrace(sp, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// printSummaries writes the standard posterior table, flagging nodes whose
// R-hat suggests the chains never merged
func printSummaries(sp *startupParams, res *posterior.Result) error {
	sums, err := res.AllSummaries()
	if err != nil {
		return err
	}

	sp.out.Printf("%-14s %9s %9s %9s %9s %9s %7s %9s %9s\n",
		"node", "mean", "sd", "2.5%", "50%", "97.5%", "rhat", "ess-bulk", "ess-tail")
	for _, s := range sums {
		flag := " "
		if s.RHat > 1.01 {
			flag = "!"
		}
		sp.out.Printf("%-14s %9.4f %9.4f %9.4f %9.4f %9.4f %6.3f%s %9.0f %9.0f\n",
			s.Name, s.Mean, s.SD, s.Q025, s.Median, s.Q975, s.RHat, flag, s.ESSBulk, s.ESSTail)
	}

	if nd := res.TotalDivergences(); nd > 0 {
		sp.out.Printf("WARNING: %d divergent transitions - treat these estimates with suspicion\n", nd)
	}

	return nil
}

// writeTrace dumps every retained draw to the trace file as TSV: chain and
// iteration, then one column per reported node
func writeTrace(sp *startupParams, res *posterior.Result) error {
	names := res.Names()
	sp.trace.Printf("chain\titer\t%s\n", strings.Join(names, "\t"))

	cols := make([][][]float64, len(names))
	for i, nm := range names {
		cd, err := res.ChainDraws(nm)
		if err != nil {
			return err
		}
		cols[i] = cd
	}

	row := make([]string, len(names))
	for ci := range res.Chains {
		for di := range res.Chains[ci].Draws {
			for i := range names {
				row[i] = strconv.FormatFloat(cols[i][ci][di], 'g', -1, 64)
			}
			sp.trace.Printf("%d\t%d\t%s\n", ci, di, strings.Join(row, "\t"))
		}
	}

	return nil
}
