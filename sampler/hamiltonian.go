package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/CraigKelly/netsize/rand"
)

// state is a point in phase space with its cached density and gradient
type state struct {
	q    []float64
	p    []float64
	grad []float64
	logp float64
}

func (s *state) clone() *state {
	return &state{
		q:    append([]float64(nil), s.q...),
		p:    append([]float64(nil), s.p...),
		grad: append([]float64(nil), s.grad...),
		logp: s.logp,
	}
}

// hamiltonian couples a target with a diagonal inverse metric and the
// chain's generator
type hamiltonian struct {
	target    Target
	invMetric []float64
	gen       *rand.Generator
}

func newHamiltonian(t Target, gen *rand.Generator) *hamiltonian {
	inv := make([]float64, t.Dim())
	for i := range inv {
		inv[i] = 1
	}
	return &hamiltonian{target: t, invMetric: inv, gen: gen}
}

// newState evaluates the target at q. The momentum is zero.
func (h *hamiltonian) newState(q []float64) (*state, error) {
	s := &state{
		q:    append([]float64(nil), q...),
		p:    make([]float64, len(q)),
		grad: make([]float64, len(q)),
	}

	lp, err := h.target.LogDensity(s.q, s.grad)
	if err != nil {
		return nil, errors.Wrap(err, "Target evaluation failed")
	}
	s.logp = lp
	return s, nil
}

// sampleMomentum draws p ~ Normal(0, M) where M is the inverse of invMetric
func (h *hamiltonian) sampleMomentum(s *state) {
	for i := range s.p {
		s.p[i] = h.gen.NormFloat64() / math.Sqrt(h.invMetric[i])
	}
}

func (h *hamiltonian) kinetic(p []float64) float64 {
	var k float64
	for i, v := range p {
		k += v * v * h.invMetric[i]
	}
	return 0.5 * k
}

// joint is the negative energy: log density minus kinetic energy. Anything
// non-finite is -Inf.
func (h *hamiltonian) joint(s *state) float64 {
	j := s.logp - h.kinetic(s.p)
	if math.IsNaN(j) {
		return math.Inf(-1)
	}
	return j
}

// leapfrog takes one step of size eps (negative to go backwards) from s,
// returning a new state.
func (h *hamiltonian) leapfrog(s *state, eps float64) (*state, error) {
	n := len(s.q)
	next := &state{
		q:    make([]float64, n),
		p:    make([]float64, n),
		grad: make([]float64, n),
	}

	// half step momentum, full step position
	copy(next.p, s.p)
	floats.AddScaled(next.p, eps/2, s.grad)
	for i := range next.q {
		next.q[i] = s.q[i] + eps*h.invMetric[i]*next.p[i]
	}

	lp, err := h.target.LogDensity(next.q, next.grad)
	if err != nil {
		return nil, errors.Wrap(err, "Target evaluation failed")
	}
	next.logp = lp

	// final half step momentum
	floats.AddScaled(next.p, eps/2, next.grad)
	return next, nil
}

// noUTurn is true while the trajectory from minus to plus keeps extending
// in both directions
func (h *hamiltonian) noUTurn(minus, plus *state) bool {
	var dotMinus, dotPlus float64
	for i := range minus.q {
		dq := plus.q[i] - minus.q[i]
		dotMinus += dq * h.invMetric[i] * minus.p[i]
		dotPlus += dq * h.invMetric[i] * plus.p[i]
	}
	return dotMinus >= 0 && dotPlus >= 0
}

// findStepSize doubles or halves eps until the acceptance probability of a
// single leapfrog step crosses 0.8.
func (h *hamiltonian) findStepSize(cur *state, eps float64) (float64, error) {
	const maxTries = 100
	logTarget := math.Log(0.8)

	trial := func(e float64) (float64, error) {
		s := cur.clone()
		h.sampleMomentum(s)
		j0 := h.joint(s)
		next, err := h.leapfrog(s, e)
		if err != nil {
			return 0, err
		}
		return h.joint(next) - j0, nil
	}

	dir := 0
	for i := 0; i < maxTries; i++ {
		delta, err := trial(eps)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(delta) {
			delta = math.Inf(-1)
		}

		if dir == 0 {
			if delta > logTarget {
				dir = 1
			} else {
				dir = -1
			}
		}

		if dir == 1 && !(delta > logTarget) {
			break
		}
		if dir == -1 && !(delta < logTarget) {
			break
		}

		if dir == 1 {
			eps *= 2
		} else {
			eps /= 2
		}

		if eps > 1e7 {
			break
		}
		if eps < 1e-14 {
			return 0, errors.Wrapf(ErrSampler, "Step size collapsed to %g: the posterior is numerically divergent here", eps)
		}
	}

	return eps, nil
}
