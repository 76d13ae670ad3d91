package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/CraigKelly/netsize/model"
	"github.com/CraigKelly/netsize/rand"
	"github.com/CraigKelly/netsize/sampler"
	"github.com/CraigKelly/netsize/simulate"
)

// Experiment is one simulate, fit and summarise run. Sampler.Seed is the
// master seed: the simulation and the chains draw from generators derived
// from it, so an Experiment is reproducible.
type Experiment struct {
	Simulation simulate.Params
	Known      int
	Prune      simulate.PrunePolicy
	Sampler    sampler.Settings
	RhatLimit  float64
}

// Scores are the error suites of the main tables. Unknown only covers the
// subgroups whose prevalence was not fixed by the prior.
type Scores struct {
	Individuals *ErrorSuite `json:"individuals"`
	Subgroups   *ErrorSuite `json:"subgroups"`
	Unknown     *ErrorSuite `json:"unknown_subgroups,omitempty"`
	Dispersion  *ErrorSuite `json:"dispersion"`
}

// Report is everything an experiment produced
type Report struct {
	Seed        int64         `json:"seed"`
	Prune       string        `json:"prune"`
	Removed     []int         `json:"removed"`
	I           int           `json:"I"`
	K           int           `json:"K"`
	Known       int           `json:"known"`
	MuBeta      []float64     `json:"mu_beta"`
	SigmaBeta   []float64     `json:"sigma_beta"`
	Summary     *Summary      `json:"summary"`
	Diagnostics *Diagnostics  `json:"diagnostics"`
	Scores      Scores        `json:"scores"`
	Elapsed     time.Duration `json:"elapsed"`
}

func stage(name string, err error) error {
	return errors.Wrapf(err, "stage %s", name)
}

// Run performs the experiment. Every failure is wrapped with the name of the
// stage it happened in (simulate, prune, hyper, model, sample, summarize).
// If the draws fail the R-hat limit the report is still returned along with
// an error matching ErrNotConverged.
func (e *Experiment) Run(ctx context.Context, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	startTime := time.Now()

	master, err := rand.NewGenerator(e.Sampler.Seed)
	if err != nil {
		return nil, stage("simulate", err)
	}
	simGen, err := master.Spawn()
	if err != nil {
		return nil, stage("simulate", err)
	}

	data, err := simulate.Simulate(simGen, e.Simulation)
	if err != nil {
		return nil, stage("simulate", err)
	}
	logger.Info("simulated", "individuals", data.I(), "subgroups", data.K())

	removed, err := data.Prune(e.Prune)
	if err != nil {
		return nil, stage("prune", err)
	}
	if len(removed) > 0 {
		logger.Info("pruned zero variance", "axis", e.Prune.String(), "removed", len(removed), "individuals", data.I(), "subgroups", data.K())
	}

	muBeta, sigmaBeta, err := model.DeriveHyper(data.Beta, e.Known)
	if err != nil {
		return nil, stage("hyper", err)
	}
	known := e.Known
	if known > data.K() {
		known = data.K()
	}

	payload, err := model.NewData(data.Y, muBeta, sigmaBeta)
	if err != nil {
		return nil, stage("model", err)
	}
	mod, err := model.New(payload)
	if err != nil {
		return nil, stage("model", err)
	}

	settings := e.Sampler
	settings.Seed = master.Int63()

	draws, err := sampler.Sample(ctx, mod, settings, logger)
	if err != nil {
		return nil, stage("sample", err)
	}

	truth := &Truth{
		Alpha:      data.Alpha,
		Beta:       data.Beta,
		Omega:      data.Omega,
		MuAlpha:    e.Simulation.MuAlpha,
		SigmaAlpha: e.Simulation.SigmaAlpha,
	}
	sum, err := Summarize(draws, truth)
	if err != nil {
		return nil, stage("summarize", err)
	}
	diag, err := Diagnose(draws)
	if err != nil {
		return nil, stage("summarize", err)
	}

	rep := &Report{
		Seed:        e.Sampler.Seed,
		Prune:       e.Prune.String(),
		Removed:     removed,
		I:           data.I(),
		K:           data.K(),
		Known:       known,
		MuBeta:      muBeta,
		SigmaBeta:   sigmaBeta,
		Summary:     sum,
		Diagnostics: diag,
	}

	if rep.Scores.Individuals, err = Score(sum.Individuals); err != nil {
		return nil, stage("summarize", err)
	}
	if rep.Scores.Subgroups, err = Score(sum.Subgroups); err != nil {
		return nil, stage("summarize", err)
	}
	if rep.Scores.Dispersion, err = Score(sum.Dispersion); err != nil {
		return nil, stage("summarize", err)
	}
	if known < data.K() {
		if rep.Scores.Unknown, err = Score(sum.Subgroups.From(known)); err != nil {
			return nil, stage("summarize", err)
		}
	}

	rep.Elapsed = time.Since(startTime)
	logger.Info("experiment done",
		"elapsed", rep.Elapsed.Round(time.Millisecond),
		"max_rhat", diag.MaxRhat,
		"min_ess", diag.MinESS,
		"divergent", diag.Divergences,
	)

	if diag.Divergences > 0 {
		logger.Warn("divergent transitions after warm-up", "divergent", diag.Divergences)
	}
	if e.RhatLimit <= 0 && !(diag.MaxRhat <= DefaultRhatLimit) {
		logger.Warn("chains may not have converged",
			"max_rhat", diag.MaxRhat,
			"param", diag.WorstRhat,
			"usual_limit", DefaultRhatLimit,
		)
	}

	if err := diag.CheckConvergence(e.RhatLimit); err != nil {
		return rep, stage("summarize", err)
	}
	return rep, nil
}
