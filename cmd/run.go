package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/netsize/analysis"
)

var jsonOutput bool
var fullReport bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a dataset, fit the model and score the posterior",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := newStartup(cmd)
		if err != nil {
			return err
		}
		defer sp.mon.Stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runExperiment(ctx, sp)
	},
}

func init() {
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Write the report as JSON")
	runCmd.Flags().BoolVar(&fullReport, "full", false, "Include every parameter in the text report")
}

func runExperiment(ctx context.Context, sp *startupParams) error {
	exp, err := sp.cfg.Experiment()
	if err != nil {
		return err
	}
	sp.mon.Watch(&exp.Sampler)

	sp.logger.Info("starting experiment",
		"seed", exp.Sampler.Seed,
		"individuals", exp.Simulation.Individuals,
		"subgroups", exp.Simulation.Subgroups,
		"known", exp.Known,
		"kernel", exp.Sampler.Kernel,
	)

	rep, runErr := exp.Run(ctx, sp.logger)
	if rep == nil {
		return runErr
	}
	if sp.mon != nil {
		sp.mon.MaxRhat.Set(rep.Diagnostics.MaxRhat)
		sp.mon.MinESS.Set(rep.Diagnostics.MinESS)
	}

	if err := writeReport(sp, rep); err != nil {
		return err
	}
	return runErr
}

func writeReport(sp *startupParams, rep *analysis.Report) error {
	if jsonOutput {
		enc := json.NewEncoder(sp.out)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(rep), "Could not write JSON report")
	}
	return rep.WriteText(sp.out, fullReport || sp.cfg.Analysis.Full)
}
