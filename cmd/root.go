package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/netsize/config"
)

var cfgFile string
var verbose bool
var kernelName string
var randomSeed int64
var chainCount int
var monitorAddr string

// startupParams is everything a subcommand needs once flags are parsed
type startupParams struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	mon    *monitor
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "netsize",
	Short: "Network size estimation from Aggregated Relational Data",
	Long: `netsize estimates personal network sizes from "how many X do you know"
survey counts with a hierarchical negative binomial model.
Among other features:

  - A simulator for ARD with known individual degrees and subgroup sizes
  - A NUTS (and static HMC) sampler with warm-up adaptation
  - Posterior summaries scored against the simulated truth
`,
	SilenceUsage: true,
}

// newStartup loads the configuration, applies flag overrides and builds the
// logger
func newStartup(cmd *cobra.Command) (*startupParams, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = randomSeed
	}
	if flags.Changed("sampler") {
		cfg.Sampler.Kernel = kernelName
	}
	if flags.Changed("chains") {
		cfg.Sampler.Chains = chainCount
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))

	sp := &startupParams{
		cfg:    cfg,
		logger: logger,
		out:    cmd.OutOrStdout(),
	}

	if monitorAddr != "" {
		sp.mon = &monitor{Addr: monitorAddr}
		if err := sp.mon.Start(logger); err != nil {
			return nil, err
		}
	}

	return sp, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (default is built in settings)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")

	rootCmd.PersistentFlags().StringVarP(&kernelName, "sampler", "s", "nuts", "Name of sampler to use (nuts or hmc)")
	rootCmd.PersistentFlags().Int64VarP(&randomSeed, "seed", "r", 1, "Random seed to use")
	rootCmd.PersistentFlags().IntVarP(&chainCount, "chains", "n", 4, "Number of chains to run in parallel")
	rootCmd.PersistentFlags().StringVar(&monitorAddr, "monitor", "", "Serve expvar progress counters on this address (e.g. :8000)")

	rootCmd.AddCommand(runCmd, simulateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
