// Package simulate generates synthetic Aggregated Relational Data: tie counts
// between individuals and subgroups drawn from an overdispersed negative
// binomial with known latent parameters.
package simulate

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/CraigKelly/netsize/rand"
)

// ErrParams marks invalid simulation parameters
var ErrParams = errors.New("invalid simulation parameters")

// Params are the known values the data is generated from
type Params struct {
	Individuals  int     `json:"individuals" yaml:"individuals"`
	Subgroups    int     `json:"subgroups" yaml:"subgroups"`
	MuAlpha      float64 `json:"mu_alpha" yaml:"mu_alpha"`
	SigmaAlpha   float64 `json:"sigma_alpha" yaml:"sigma_alpha"`
	MuBeta       float64 `json:"mu_beta" yaml:"mu_beta"`
	SigmaBeta    float64 `json:"sigma_beta" yaml:"sigma_beta"`
	InvOmegaLow  float64 `json:"inv_omega_low" yaml:"inv_omega_low"`
	InvOmegaHigh float64 `json:"inv_omega_high" yaml:"inv_omega_high"`
}

// DefaultParams is the recovery scenario: 200 individuals, 32 subgroups
func DefaultParams() Params {
	return Params{
		Individuals:  200,
		Subgroups:    32,
		MuAlpha:      5,
		SigmaAlpha:   1,
		MuBeta:       -5,
		SigmaBeta:    1,
		InvOmegaLow:  0.1,
		InvOmegaHigh: 0.95,
	}
}

// Check returns an error wrapping ErrParams if there is a problem
func (p Params) Check() error {
	if p.Individuals < 1 {
		return errors.Wrapf(ErrParams, "individuals=%d must be >= 1", p.Individuals)
	}
	if p.Subgroups < 1 {
		return errors.Wrapf(ErrParams, "subgroups=%d must be >= 1", p.Subgroups)
	}
	if !(p.SigmaAlpha > 0) || !(p.SigmaBeta > 0) {
		return errors.Wrapf(ErrParams, "sigma_alpha=%v and sigma_beta=%v must be positive", p.SigmaAlpha, p.SigmaBeta)
	}
	if math.IsNaN(p.MuAlpha) || math.IsNaN(p.MuBeta) {
		return errors.Wrap(ErrParams, "mu_alpha and mu_beta must be numbers")
	}
	// low > 0 and high < 1 keep omega finite and strictly above 1
	if !(p.InvOmegaLow > 0 && p.InvOmegaLow < p.InvOmegaHigh && p.InvOmegaHigh < 1) {
		return errors.Wrapf(ErrParams, "inv_omega bounds (%v, %v) must satisfy 0 < low < high < 1", p.InvOmegaLow, p.InvOmegaHigh)
	}
	return nil
}

// Dataset is a simulated count matrix together with the truth it was drawn
// from. Rows are individuals, columns are subgroups; the truth vectors stay
// aligned with the matrix through pruning.
type Dataset struct {
	Y        *mat.Dense
	Alpha    []float64
	Beta     []float64
	InvOmega []float64
	Omega    []float64
}

// I is the number of individuals (rows)
func (d *Dataset) I() int {
	r, _ := d.Y.Dims()
	return r
}

// K is the number of subgroups (columns)
func (d *Dataset) K() int {
	_, c := d.Y.Dims()
	return c
}

// SizeProb is the simulator's negative-binomial parameterisation: size
// exp(alpha+beta)/(omega-1) and success probability 1/omega. The mean is
// exp(alpha+beta) whatever omega is; the variance is omega times the mean.
func SizeProb(alpha, beta, omega float64) (size float64, prob float64) {
	size = math.Exp(alpha+beta) / (omega - 1)
	prob = 1 / omega
	return size, prob
}

// Mean is the mean of a size/probability negative binomial
func Mean(size, prob float64) float64 {
	return size * (1 - prob) / prob
}

// Simulate draws a dataset. The draw order is fixed (alpha, beta, inv_omega,
// then counts row by row) so a seed always gives the same dataset.
func Simulate(gen *rand.Generator, p Params) (*Dataset, error) {
	if gen == nil {
		return nil, errors.Wrap(ErrParams, "A random generator is required")
	}
	if err := p.Check(); err != nil {
		return nil, err
	}

	I, K := p.Individuals, p.Subgroups

	alphaDist := distuv.Normal{Mu: p.MuAlpha, Sigma: p.SigmaAlpha, Src: gen}
	betaDist := distuv.Normal{Mu: p.MuBeta, Sigma: p.SigmaBeta, Src: gen}
	invOmegaDist := distuv.Uniform{Min: p.InvOmegaLow, Max: p.InvOmegaHigh, Src: gen}

	d := &Dataset{
		Y:        mat.NewDense(I, K, nil),
		Alpha:    make([]float64, I),
		Beta:     make([]float64, K),
		InvOmega: make([]float64, K),
		Omega:    make([]float64, K),
	}

	for i := range d.Alpha {
		d.Alpha[i] = alphaDist.Rand()
	}
	for k := range d.Beta {
		d.Beta[k] = betaDist.Rand()
	}
	for k := range d.InvOmega {
		d.InvOmega[k] = invOmegaDist.Rand()
		d.Omega[k] = 1 / d.InvOmega[k]
	}

	for i := 0; i < I; i++ {
		for k := 0; k < K; k++ {
			size, prob := SizeProb(d.Alpha[i], d.Beta[k], d.Omega[k])
			d.Y.Set(i, k, negBinomial(gen, size, prob))
		}
	}

	return d, nil
}

// negBinomial draws from NB(size, prob) as a gamma mixture of Poissons:
// lambda ~ Gamma(size, rate prob/(1-prob)), y ~ Poisson(lambda).
func negBinomial(gen *rand.Generator, size, prob float64) float64 {
	if size <= 0 || math.IsNaN(size) {
		return 0
	}

	lambda := distuv.Gamma{Alpha: size, Beta: prob / (1 - prob), Src: gen}.Rand()
	if !(lambda > 0) {
		return 0
	}
	return distuv.Poisson{Lambda: lambda, Src: gen}.Rand()
}
