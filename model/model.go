package model

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mathext"
)

// Hyperprior scales: mu_alpha ~ Normal(0, MuAlphaScale) and
// sigma_alpha ~ Normal+(0, SigmaAlphaScale).
const (
	MuAlphaScale    = 25.0
	SigmaAlphaScale = 5.0
)

// Model is the hierarchical negative-binomial ARD model over a fixed Data
// payload. Samplers see it through its unconstrained parameter vector
//
//	[alpha(I), beta(K), logit(inv_omega)(K), mu_alpha, log(sigma_alpha)]
//
// A Model is read-only after New and may be shared by concurrent chains.
type Model struct {
	data  *Data
	y     []float64 // row-major I x K counts
	names []string
}

// New checks the payload and returns a model over it
func New(d *Data) (*Model, error) {
	if d == nil {
		return nil, errors.Wrap(ErrInput, "No data supplied")
	}
	if err := d.Check(); err != nil {
		return nil, errors.Wrap(err, "Model data is not valid")
	}

	m := &Model{
		data: d,
		y:    make([]float64, d.I*d.K),
	}
	for i := 0; i < d.I; i++ {
		for k := 0; k < d.K; k++ {
			m.y[i*d.K+k] = d.Y.At(i, k)
		}
	}

	m.names = make([]string, 0, m.Dim())
	for i := 1; i <= d.I; i++ {
		m.names = append(m.names, fmt.Sprintf("alpha[%d]", i))
	}
	for k := 1; k <= d.K; k++ {
		m.names = append(m.names, fmt.Sprintf("beta[%d]", k))
	}
	for k := 1; k <= d.K; k++ {
		m.names = append(m.names, fmt.Sprintf("inv_omega[%d]", k))
	}
	m.names = append(m.names, "mu_alpha", "sigma_alpha")

	return m, nil
}

// Data returns the payload the model was built over
func (m *Model) Data() *Data {
	return m.data
}

// Dim is the length of the unconstrained parameter vector
func (m *Model) Dim() int {
	return m.data.I + 2*m.data.K + 2
}

// Names returns the constrained parameter names in vector order (1-based
// indices, e.g. alpha[1])
func (m *Model) Names() []string {
	return m.names
}

// offsets into the parameter vector
func (m *Model) betaOff() int     { return m.data.I }
func (m *Model) invOmegaOff() int { return m.data.I + m.data.K }
func (m *Model) muAlphaOff() int  { return m.data.I + 2*m.data.K }
func (m *Model) sigmaOff() int    { return m.data.I + 2*m.data.K + 1 }

// Constrain maps an unconstrained vector to parameter space: inv_omega goes
// through the logistic function and sigma_alpha through exp.
func (m *Model) Constrain(q []float64, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(q))
	}
	copy(dst, q)

	for k := 0; k < m.data.K; k++ {
		j := m.invOmegaOff() + k
		dst[j] = logistic(q[j])
	}
	dst[m.sigmaOff()] = math.Exp(q[m.sigmaOff()])

	return dst
}

// Unconstrain is the inverse of Constrain
func (m *Model) Unconstrain(params []float64, dst []float64) ([]float64, error) {
	if len(params) != m.Dim() {
		return nil, errors.Wrapf(ErrInput, "Parameter length %d != %d", len(params), m.Dim())
	}
	if dst == nil {
		dst = make([]float64, len(params))
	}
	copy(dst, params)

	for k := 0; k < m.data.K; k++ {
		j := m.invOmegaOff() + k
		u := params[j]
		if !(u > 0 && u < 1) {
			return nil, errors.Wrapf(ErrInput, "inv_omega[%d]=%v is outside (0,1)", k+1, u)
		}
		dst[j] = math.Log(u) - math.Log1p(-u)
	}

	s := params[m.sigmaOff()]
	if !(s > 0) {
		return nil, errors.Wrapf(ErrInput, "sigma_alpha=%v must be positive", s)
	}
	dst[m.sigmaOff()] = math.Log(s)

	return dst, nil
}

// LogDensity returns the log posterior density of the unconstrained vector q,
// up to an additive constant, including the log-Jacobian of the transforms.
// If grad is not nil the gradient is written to it. A non-finite density is
// returned as -Inf without an error; the sampler treats it as a divergence.
func (m *Model) LogDensity(q []float64, grad []float64) (float64, error) {
	I, K := m.data.I, m.data.K
	if len(q) != m.Dim() {
		return math.Inf(-1), errors.Errorf("Parameter length %d != %d", len(q), m.Dim())
	}
	if grad != nil {
		if len(grad) != m.Dim() {
			return math.Inf(-1), errors.Errorf("Gradient length %d != %d", len(grad), m.Dim())
		}
		for j := range grad {
			grad[j] = 0
		}
	} else {
		// Simpler to always accumulate
		grad = make([]float64, m.Dim())
	}

	alpha := q[:I]
	beta := q[m.betaOff() : m.betaOff()+K]
	z := q[m.invOmegaOff() : m.invOmegaOff()+K]
	muAlpha := q[m.muAlphaOff()]
	t := q[m.sigmaOff()]
	sigma := math.Exp(t)

	gAlpha := grad[:I]
	gBeta := grad[m.betaOff() : m.betaOff()+K]
	gZ := grad[m.invOmegaOff() : m.invOmegaOff()+K]
	gMu := &grad[m.muAlphaOff()]
	gT := &grad[m.sigmaOff()]

	var lp float64

	// mu_alpha ~ normal(0, 25)
	lp -= 0.5 * (muAlpha / MuAlphaScale) * (muAlpha / MuAlphaScale)
	*gMu -= muAlpha / (MuAlphaScale * MuAlphaScale)

	// sigma_alpha ~ normal(0, 5) T[0,], plus log-Jacobian t
	lp += -0.5*(sigma/SigmaAlphaScale)*(sigma/SigmaAlphaScale) + t
	*gT += -(sigma*sigma)/(SigmaAlphaScale*SigmaAlphaScale) + 1

	// alpha ~ normal(mu_alpha, sigma_alpha)
	invS2 := 1 / (sigma * sigma)
	for i, a := range alpha {
		d := a - muAlpha
		lp += -t - 0.5*d*d*invS2
		gAlpha[i] -= d * invS2
		*gMu += d * invS2
		*gT += -1 + d*d*invS2
	}

	// beta ~ normal(mu_beta, sigma_beta)
	for k, b := range beta {
		s := m.data.SigmaBeta[k]
		d := (b - m.data.MuBeta[k]) / s
		lp -= 0.5 * d * d
		gBeta[k] -= d / s
	}

	// inv_omega is uniform on (0,1): only the logit Jacobian contributes
	u := make([]float64, K)
	logU := make([]float64, K)
	log1mU := make([]float64, K)
	eb := make([]float64, K)
	for k, zk := range z {
		u[k] = logistic(zk)
		logU[k] = -softplus(-zk)
		log1mU[k] = -softplus(zk)
		lp += logU[k] + log1mU[k]
		gZ[k] += 1 - 2*u[k]

		// omega_k - 1 = exp(-z), so xi = exp(alpha + beta + z)
		eb[k] = math.Exp(beta[k] + zk)
	}

	// y ~ neg_binomial(xi, omega_k_minus_1): shape xi, inverse scale
	// exp(z) = inv_omega/(1-inv_omega)
	for i := 0; i < I; i++ {
		ea := math.Exp(alpha[i])
		row := m.y[i*K : (i+1)*K]
		for k, n := range row {
			xi := ea * eb[k]
			var dxi float64 // d lp / d log(xi)

			if n == 0 {
				lp += xi * logU[k]
				dxi = xi * logU[k]
				gZ[k] += dxi + xi*(1-u[k])
			} else {
				lg1, _ := math.Lgamma(n + xi)
				lg2, _ := math.Lgamma(xi)
				lp += lg1 - lg2 + xi*logU[k] + n*log1mU[k]
				dxi = xi * (mathext.Digamma(n+xi) - mathext.Digamma(xi) + logU[k])
				gZ[k] += dxi + xi*(1-u[k]) - n*u[k]
			}

			gAlpha[i] += dxi
			gBeta[k] += dxi
		}
	}

	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		return math.Inf(-1), nil
	}
	return lp, nil
}

// Terms returns the likelihood's shape (xi) and inverse scale (phi, which is
// omega - 1 inverted) for one cell.
func Terms(alpha, beta, invOmega float64) (xi float64, phi float64) {
	phi = 1 / (1/invOmega - 1)
	xi = phi * math.Exp(alpha+beta)
	return xi, phi
}

// ImpliedMean reverses Terms: the mean of a shape/inverse-scale negative
// binomial is xi/phi.
func ImpliedMean(xi, phi float64) float64 {
	return xi / phi
}

// ImpliedVariance is xi/phi^2 * (phi+1), which is omega times the mean
func ImpliedVariance(xi, phi float64) float64 {
	return xi / (phi * phi) * (phi + 1)
}

func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// softplus is log(1 + exp(x)) without overflow
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
