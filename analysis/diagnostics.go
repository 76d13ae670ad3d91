package analysis

import (
	"math"
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/netsize/sampler"
)

// ErrNotConverged is returned by CheckConvergence. It matches
// sampler.ErrSampler under errors.Is.
var ErrNotConverged = errors.Wrap(sampler.ErrSampler, "chains have not converged")

// DefaultRhatLimit is the usual split R-hat threshold for converged chains
const DefaultRhatLimit = 1.05

// ParamDiagnostics are the convergence diagnostics of one parameter
type ParamDiagnostics struct {
	Name string  `json:"name"`
	Rhat float64 `json:"rhat"`
	ESS  float64 `json:"ess"`
}

// Diagnostics summarise convergence over all parameters
type Diagnostics struct {
	Params      []ParamDiagnostics `json:"params"`
	MaxRhat     float64            `json:"max_rhat"`
	WorstRhat   string             `json:"worst_rhat"`
	MinESS      float64            `json:"min_ess"`
	Divergences int                `json:"divergences"`
}

// Diagnose computes split R-hat and effective sample size for every
// parameter from the retained draws
func Diagnose(draws *sampler.Draws) (*Diagnostics, error) {
	if draws == nil || len(draws.Chains) == 0 || draws.Kept() < 1 {
		return nil, ErrNoDraws
	}

	d := &Diagnostics{
		Params:      make([]ParamDiagnostics, len(draws.Names)),
		MinESS:      math.Inf(1),
		Divergences: draws.Divergences(),
	}

	chains := make([][]float64, len(draws.Chains))
	for col, name := range draws.Names {
		for c := range draws.Chains {
			chains[c] = draws.ChainRetained(c, col)
		}

		p := ParamDiagnostics{
			Name: name,
			Rhat: SplitRhat(chains),
			ESS:  EffectiveSize(chains),
		}
		d.Params[col] = p

		if p.Rhat > d.MaxRhat || (math.IsNaN(p.Rhat) && !math.IsNaN(d.MaxRhat)) {
			d.MaxRhat = p.Rhat
			d.WorstRhat = name
		}
		if p.ESS < d.MinESS {
			d.MinESS = p.ESS
		}
	}

	if math.IsInf(d.MinESS, 1) {
		d.MinESS = math.NaN()
	}
	return d, nil
}

// CheckConvergence returns an error wrapping ErrNotConverged if any R-hat is
// above limit. A limit <= 0 disables the check.
func (d *Diagnostics) CheckConvergence(limit float64) error {
	if limit <= 0 {
		return nil
	}
	if math.IsNaN(d.MaxRhat) || d.MaxRhat > limit {
		return errors.Wrapf(ErrNotConverged, "R-hat %.3f for %s exceeds %.3f", d.MaxRhat, d.WorstRhat, limit)
	}
	return nil
}

// splitChains halves every chain, dropping the middle draw of odd lengths
func splitChains(chains [][]float64) [][]float64 {
	out := make([][]float64, 0, 2*len(chains))
	for _, ch := range chains {
		half := len(ch) / 2
		out = append(out, ch[:half], ch[len(ch)-half:])
	}
	return out
}

// SplitRhat is the potential scale reduction factor computed with every
// chain split into two halves. NaN with fewer than two draws per half.
func SplitRhat(chains [][]float64) float64 {
	split := splitChains(chains)
	if len(split) < 2 || len(split[0]) < 2 {
		return math.NaN()
	}

	n := float64(len(split[0]))
	means := make([]float64, len(split))
	vars := make([]float64, len(split))
	for i, ch := range split {
		means[i], vars[i] = stat.MeanVariance(ch, nil)
	}

	b := n * stat.Variance(means, nil)
	w := stat.Mean(vars, nil)
	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}

	varPlus := (n-1)/n*w + b/n
	return math.Sqrt(varPlus / w)
}

// autocovariance is the biased sample autocovariance of x at every lag,
// computed with a zero padded FFT
func autocovariance(x []float64) []float64 {
	n := len(x)
	mean := stat.Mean(x, nil)

	padded := make([]float64, 2*n)
	for i, v := range x {
		padded[i] = v - mean
	}

	fft := fourier.NewFFT(len(padded))
	coeff := fft.Coefficients(nil, padded)
	for i, c := range coeff {
		coeff[i] = complex(real(c*cmplx.Conj(c)), 0)
	}
	seq := fft.Sequence(nil, coeff)

	// the inverse transform is unnormalised
	acov := seq[:n]
	floats.Scale(1/float64(len(padded)*n), acov)
	return acov
}

// EffectiveSize is the multi-chain effective sample size using Geyer's
// initial monotone sequence on the combined autocorrelations. NaN with fewer
// than four draws per chain or no variation at all.
func EffectiveSize(chains [][]float64) float64 {
	m := len(chains)
	if m < 1 {
		return math.NaN()
	}
	n := len(chains[0])
	if n < 4 {
		return math.NaN()
	}

	acov := make([][]float64, m)
	means := make([]float64, m)
	chainVar := make([]float64, m)
	for c, ch := range chains {
		acov[c] = autocovariance(ch)
		means[c] = stat.Mean(ch, nil)
		chainVar[c] = acov[c][0] * float64(n) / float64(n-1)
	}

	meanVar := stat.Mean(chainVar, nil)
	varPlus := meanVar * float64(n-1) / float64(n)
	if m > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if !(varPlus > 0) {
		return math.NaN()
	}

	meanAcov := func(lag int) float64 {
		var s float64
		for c := range acov {
			s += acov[c][lag]
		}
		return s / float64(m)
	}
	rhoAt := func(lag int) float64 {
		return 1 - (meanVar-meanAcov(lag))/varPlus
	}

	rho := make([]float64, n)
	rho[0] = 1
	even, odd := 1.0, rhoAt(1)
	rho[1] = odd

	s := 1
	for s < n-4 && even+odd > 0 {
		even = rhoAt(s + 1)
		odd = rhoAt(s + 2)
		if even+odd >= 0 {
			rho[s+1] = even
			rho[s+2] = odd
		}
		s += 2
	}
	maxS := s
	if even > 0 {
		rho[maxS+1] = even
	}

	// monotone sequence
	for t := 1; t <= maxS-3; t += 2 {
		if rho[t+1]+rho[t+2] > rho[t-1]+rho[t] {
			rho[t+1] = (rho[t-1] + rho[t]) / 2
			rho[t+2] = rho[t+1]
		}
	}

	total := float64(m * n)
	tau := -1 + 2*floats.Sum(rho[:maxS]) + rho[maxS+1]
	tau = math.Max(tau, 1/math.Log10(total))
	return total / tau
}
