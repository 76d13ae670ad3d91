package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/netsize/rand"
	"github.com/CraigKelly/netsize/simulate"
)

var truthFile string
var applyPrune bool

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Write a simulated count matrix as CSV",
	Long: `simulate draws one ARD dataset from the configured simulation parameters and
writes it as CSV: one row per individual, one column per subgroup. The latent
truth (alpha, beta, inv_omega, omega) can be written to a second file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := newStartup(cmd)
		if err != nil {
			return err
		}
		defer sp.mon.Stop()
		return simulateData(sp)
	},
}

func init() {
	simulateCmd.Flags().StringVarP(&truthFile, "truth", "t", "", "Also write the latent truth as CSV to this file")
	simulateCmd.Flags().BoolVar(&applyPrune, "prune", false, "Apply the configured zero-variance filter first")
}

// simulateData uses the same generator derivation as an experiment run, so a
// seed simulates the same dataset here as there
func simulateData(sp *startupParams) error {
	master, err := rand.NewGenerator(sp.cfg.Seed)
	if err != nil {
		return err
	}
	gen, err := master.Spawn()
	if err != nil {
		return err
	}

	data, err := simulate.Simulate(gen, sp.cfg.Simulation)
	if err != nil {
		return err
	}

	if applyPrune {
		policy, err := simulate.ParsePrunePolicy(sp.cfg.Prune)
		if err != nil {
			return err
		}
		removed, err := data.Prune(policy)
		if err != nil {
			return err
		}
		sp.logger.Info("pruned zero variance", "axis", policy.String(), "removed", len(removed))
	}

	if err := writeCounts(sp.out, data); err != nil {
		return errors.Wrap(err, "Could not write counts")
	}

	if truthFile != "" {
		f, err := os.Create(truthFile)
		if err != nil {
			return errors.Wrap(err, "Could not create truth file")
		}
		defer f.Close()
		if err := writeTruth(f, data); err != nil {
			return errors.Wrap(err, "Could not write truth")
		}
		sp.logger.Info("wrote truth", "file", truthFile)
	}

	return nil
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

func writeCounts(w io.Writer, d *simulate.Dataset) error {
	cw := csv.NewWriter(w)

	header := make([]string, d.K())
	for k := range header {
		header[k] = fmt.Sprintf("y%d", k+1)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, d.K())
	for i := 0; i < d.I(); i++ {
		for k := range row {
			row[k] = formatFloat(d.Y.At(i, k))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func writeTruth(w io.Writer, d *simulate.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"param", "index", "value"}); err != nil {
		return err
	}

	write := func(name string, x []float64) error {
		for i, v := range x {
			if err := cw.Write([]string{name, strconv.Itoa(i + 1), formatFloat(v)}); err != nil {
				return err
			}
		}
		return nil
	}

	for _, p := range []struct {
		name string
		x    []float64
	}{
		{"alpha", d.Alpha},
		{"beta", d.Beta},
		{"inv_omega", d.InvOmega},
		{"omega", d.Omega},
	} {
		if err := write(p.name, p.x); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
