package sampler

import (
	"math"
)

// HMC is our baseline, simple to code sampler: static Hamiltonian Monte Carlo
// with a fixed number of leapfrog steps and a Metropolis correction.
type HMC struct {
	Steps int
}

// Name returns "hmc"
func (k *HMC) Name() string {
	return KernelHMC
}

func (k *HMC) transition(h *hamiltonian, cur *state, eps float64) (*state, Stats, error) {
	start := cur.clone()
	h.sampleMomentum(start)
	joint0 := h.joint(start)

	next := start
	steps := 0
	var err error
	for steps < k.Steps {
		next, err = h.leapfrog(next, eps)
		if err != nil {
			return nil, Stats{}, err
		}
		steps++
		if !finite(next.logp) {
			break
		}
	}

	joint1 := h.joint(next)
	accept := math.Min(1, math.Exp(joint1-joint0))
	if math.IsNaN(accept) {
		accept = 0
	}

	st := Stats{
		AcceptStat: accept,
		Leapfrogs:  steps,
		Divergent:  joint1 < joint0-1000,
	}

	out := cur
	if h.gen.Float64() < accept {
		out = next
		st.Energy = -joint1
	} else {
		st.Energy = -joint0
	}
	st.LogDensity = out.logp
	return out, st, nil
}
