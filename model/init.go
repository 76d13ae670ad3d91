package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/netsize/rand"
)

// anchorScale is the largest prior scale for which a subgroup's prior mean is
// trusted when building initial values
const anchorScale = 1.0

// Init writes jittered moment estimates into the unconstrained vector q.
// Subgroups with a tight prior anchor the alpha estimates (log of observed
// ties over expected ties); the remaining betas are then estimated from
// their column totals.
func (m *Model) Init(gen *rand.Generator, q []float64) error {
	if len(q) != m.Dim() {
		return errors.Errorf("Init vector length %d != %d", len(q), m.Dim())
	}

	d := m.data
	I, K := d.I, d.K

	anchor := make([]bool, K)
	anchorCount := 0
	for k, s := range d.SigmaBeta {
		if s <= anchorScale {
			anchor[k] = true
			anchorCount++
		}
	}
	if anchorCount == 0 {
		for k := range anchor {
			anchor[k] = true
		}
	}

	var expected float64
	for k, a := range anchor {
		if a {
			expected += math.Exp(d.MuBeta[k])
		}
	}

	alpha := q[:I]
	for i := 0; i < I; i++ {
		var seen float64
		for k, a := range anchor {
			if a {
				seen += m.y[i*K+k]
			}
		}
		alpha[i] = math.Log((seen+0.5)/expected) + gen.Uniform(-0.2, 0.2)
	}

	var reach float64
	for _, a := range alpha {
		reach += math.Exp(a)
	}

	beta := q[m.betaOff() : m.betaOff()+K]
	for k := 0; k < K; k++ {
		if anchor[k] {
			jit := math.Min(d.SigmaBeta[k], 0.2)
			beta[k] = d.MuBeta[k] + gen.Uniform(-jit, jit)
			continue
		}

		var col float64
		for i := 0; i < I; i++ {
			col += m.y[i*K+k]
		}
		beta[k] = math.Log((col+0.5)/reach) + gen.Uniform(-0.2, 0.2)
	}

	for k := 0; k < K; k++ {
		q[m.invOmegaOff()+k] = gen.Uniform(-1, 1)
	}

	mean, std := stat.MeanStdDev(alpha, nil)
	if I < 2 || !(std > 0.1) {
		std = 0.1
	}
	q[m.muAlphaOff()] = mean
	q[m.sigmaOff()] = math.Log(std)

	return nil
}
