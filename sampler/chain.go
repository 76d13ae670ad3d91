package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/netsize/buffer"
	"github.com/CraigKelly/netsize/rand"
)

// Chain is a single Markov chain: a kernel, its adapted step size and
// metric, and the current position.
type Chain struct {
	ID       int
	Target   Target
	Kernel   Kernel
	Settings Settings

	ham     *hamiltonian
	cur     *state
	eps     float64
	history *buffer.CircularFloat
	logger  *slog.Logger
}

// NewChain returns a chain at a valid starting point with an initial step
// size. Initial values are redrawn up to MaxInitTries times until the log
// density and its gradient are finite.
func NewChain(id int, target Target, kernel Kernel, s Settings, gen *rand.Generator, logger *slog.Logger) (*Chain, error) {
	if target == nil || kernel == nil || gen == nil {
		return nil, errors.Wrap(ErrSettings, "Chain requires a target, kernel and generator")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ch := &Chain{
		ID:       id,
		Target:   target,
		Kernel:   kernel,
		Settings: s,
		ham:      newHamiltonian(target, gen),
		history:  buffer.NewCircularFloat(s.Window),
		logger:   logger.With("chain", id),
	}

	q := make([]float64, target.Dim())
	init, hasInit := target.(Initializer)

	for try := 0; try < s.MaxInitTries; try++ {
		if hasInit {
			if err := init.Init(gen, q); err != nil {
				return nil, errors.Wrapf(err, "Chain %d initialisation failed", id)
			}
		} else {
			for i := range q {
				q[i] = gen.Uniform(-2, 2)
			}
		}

		st, err := ch.ham.newState(q)
		if err != nil {
			return nil, err
		}
		if finite(st.logp) && allFinite(st.grad) {
			ch.cur = st
			break
		}
	}

	if ch.cur == nil {
		return nil, errors.Wrapf(ErrSampler, "Chain %d rejected initial values after %d tries", id, s.MaxInitTries)
	}

	eps, err := ch.ham.findStepSize(ch.cur, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "Chain %d initial step size", id)
	}
	ch.eps = eps

	return ch, nil
}

// Run performs every iteration of the chain, warm-up included, and returns
// the recorded draws.
func (c *Chain) Run(ctx context.Context) (*ChainDraws, error) {
	s := c.Settings
	names, constrain := describe(c.Target)

	out := &ChainDraws{
		ID:     c.ID,
		Values: mat.NewDense(s.Iter, len(names), nil),
		Stats:  make([]Stats, s.Iter),
	}

	stepAdapt := newStepSizeAdapter(s.TargetAccept)
	stepAdapt.restart(c.eps)
	metricAdapt := newMetricAdapter(s.Warmup)

	for iter := 0; iter < s.Iter; iter++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, errors.Wrapf(ErrSampler, "Chain %d timed out after %d iterations", c.ID, iter)
			}
			return nil, errors.Wrapf(ErrSampler, "Chain %d cancelled after %d iterations", c.ID, iter)
		}

		next, st, err := c.Kernel.transition(c.ham, c.cur, c.eps)
		if err != nil {
			return nil, errors.Wrapf(err, "Chain %d iteration %d", c.ID, iter)
		}
		st.StepSize = c.eps
		c.cur = next

		if iter < s.Warmup {
			if err := c.adapt(stepAdapt, metricAdapt, st, iter == s.Warmup-1); err != nil {
				return nil, err
			}
		}

		out.Values.SetRow(iter, constrain(c.cur.q))
		out.Stats[iter] = st

		c.history.Add(st.LogDensity)
		if s.ProgressEvery > 0 && (iter+1)%s.ProgressEvery == 0 {
			c.logProgress(iter, out.Stats)
		}
		if s.Progress != nil {
			s.Progress(c.ID, iter, st)
		}
	}

	out.StepSize = c.eps
	out.InvMetric = append([]float64(nil), c.ham.invMetric...)
	return out, nil
}

// adapt runs one warm-up adaptation step
func (c *Chain) adapt(stepAdapt *stepSizeAdapter, metricAdapt *metricAdapter, st Stats, last bool) error {
	c.eps = stepAdapt.learn(st.AcceptStat)

	if inv := metricAdapt.learn(c.cur.q); inv != nil {
		c.ham.invMetric = inv
		eps, err := c.ham.findStepSize(c.cur, c.eps)
		if err != nil {
			return errors.Wrapf(err, "Chain %d step size after metric update", c.ID)
		}
		c.eps = eps
		stepAdapt.restart(eps)
		c.logger.Debug("metric updated", "stepsize", eps)
	}

	if last {
		c.eps = stepAdapt.final()
	}

	if !(c.eps > 1e-14) || math.IsInf(c.eps, 0) {
		return errors.Wrapf(ErrSampler, "Chain %d step size collapsed to %g during warm-up", c.ID, c.eps)
	}
	return nil
}

func (c *Chain) logProgress(iter int, stats []Stats) {
	phase := "sampling"
	if iter < c.Settings.Warmup {
		phase = "warmup"
	}

	lo := iter + 1 - c.Settings.ProgressEvery
	if lo < 0 {
		lo = 0
	}
	var accept float64
	var div int
	for _, st := range stats[lo : iter+1] {
		accept += st.AcceptStat
		if st.Divergent {
			div++
		}
	}

	attrs := []any{
		"iter", iter + 1,
		"phase", phase,
		"stepsize", c.eps,
		"accept", accept / float64(iter+1-lo),
		"divergent", div,
		"lp", c.cur.logp,
	}
	if drift, ok := c.history.Drift(); ok {
		attrs = append(attrs, "lp_drift", drift)
	}
	c.logger.Info("progress", attrs...)
}

// describe returns the parameter names and the function mapping an
// unconstrained position to the recorded values
func describe(t Target) ([]string, func(q []float64) []float64) {
	if tr, ok := t.(Transformer); ok {
		return tr.Names(), func(q []float64) []float64 {
			return tr.Constrain(q, nil)
		}
	}

	names := make([]string, t.Dim())
	for i := range names {
		names[i] = fmt.Sprintf("q[%d]", i+1)
	}
	return names, func(q []float64) []float64 {
		return q
	}
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if !finite(v) {
			return false
		}
	}
	return true
}
