package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/CraigKelly/netsize/rand"
)

// Sample runs s.Chains chains concurrently against target and blocks until
// they all finish. Each chain gets its own generator spawned from s.Seed so
// a run is reproducible whatever the scheduling. The first chain to fail
// cancels the rest and its error is returned.
func Sample(ctx context.Context, target Target, s Settings, logger *slog.Logger) (*Draws, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	if target == nil || target.Dim() < 1 {
		return nil, errors.Wrap(ErrSettings, "Target must have at least one dimension")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if s.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.Timeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	master, err := rand.NewGenerator(s.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "Could not create master generator")
	}
	gens := make([]*rand.Generator, s.Chains)
	for i := range gens {
		if gens[i], err = master.Spawn(); err != nil {
			return nil, errors.Wrapf(err, "Could not create generator for chain %d", i)
		}
	}

	startTime := time.Now()
	logger.Info("sampling", "kernel", s.Kernel, "chains", s.Chains, "warmup", s.Warmup, "iter", s.Iter, "dim", target.Dim())

	results := make([]*ChainDraws, s.Chains)
	var firstErr error
	var errLock sync.Mutex
	var wg sync.WaitGroup

	fail := func(err error) {
		errLock.Lock()
		defer errLock.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for i := 0; i < s.Chains; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			kernel, err := NewKernel(s)
			if err != nil {
				fail(err)
				return
			}

			ch, err := NewChain(id, target, kernel, s, gens[id], logger)
			if err != nil {
				fail(err)
				return
			}

			out, err := ch.Run(ctx)
			if err != nil {
				fail(err)
				return
			}
			results[id] = out
		}(i)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	names, _ := describe(target)
	draws, err := MergeChains(names, s.Warmup, results)
	if err != nil {
		return nil, errors.Wrap(err, "Could not merge chains")
	}

	logger.Info("sampling done",
		"elapsed", time.Since(startTime).Round(time.Millisecond),
		"divergent", draws.Divergences(),
	)
	return draws, nil
}
