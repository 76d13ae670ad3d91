package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Prior scales used for subgroups whose prevalence is treated as known (a
// near point mass) and for those left to the data.
const (
	KnownScale   = 0.01
	UnknownScale = 10.0

	// DefaultKnown is the number of leading subgroups treated as known
	DefaultKnown = 12
)

// DeriveHyper returns the prior mean and scale for every subgroup. The first
// known subgroups are centred on their beta with KnownScale; every other
// subgroup is centred on the mean of those known betas with UnknownScale.
// known is clamped to len(beta). No randomness is involved.
func DeriveHyper(beta []float64, known int) (mu []float64, sigma []float64, err error) {
	if len(beta) < 1 {
		return nil, nil, errors.Wrap(ErrInput, "Cannot derive hyperparameters from an empty beta")
	}
	if known < 1 {
		return nil, nil, errors.Wrapf(ErrInput, "Known subgroup count %d must be >= 1", known)
	}
	if known > len(beta) {
		known = len(beta)
	}

	knownMean := stat.Mean(beta[:known], nil)

	mu = make([]float64, len(beta))
	sigma = make([]float64, len(beta))
	for k, b := range beta {
		if k < known {
			mu[k] = b
			sigma[k] = KnownScale
		} else {
			mu[k] = knownMean
			sigma[k] = UnknownScale
		}
	}

	return mu, sigma, nil
}
