package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/CraigKelly/netsize/rand"
)

func vanillaData() *Data {
	y := mat.NewDense(4, 3, []float64{
		0, 2, 1,
		3, 0, 0,
		1, 1, 7,
		0, 0, 2,
	})
	return &Data{
		I:         4,
		K:         3,
		MuBeta:    []float64{-1.0, -0.5, -0.7},
		SigmaBeta: []float64{0.01, 10, 10},
		Y:         y,
	}
}

func TestDataCheck(t *testing.T) {
	assert := assert.New(t)

	// Make sure we have a valid payload before we start breaking things
	assert.NoError(vanillaData().Check())

	d := vanillaData()
	d.I = 0
	assert.ErrorIs(d.Check(), ErrInput)

	d = vanillaData()
	d.K = 0
	assert.ErrorIs(d.Check(), ErrInput)

	d = vanillaData()
	d.MuBeta = d.MuBeta[:2]
	assert.ErrorIs(d.Check(), ErrInput)

	d = vanillaData()
	d.SigmaBeta = append(d.SigmaBeta, 1)
	assert.ErrorIs(d.Check(), ErrInput)

	d = vanillaData()
	d.SigmaBeta[1] = -1
	assert.ErrorIs(d.Check(), ErrInput)

	d = vanillaData()
	d.MuBeta[0] = math.NaN()
	assert.ErrorIs(d.Check(), ErrInput)

	d = vanillaData()
	d.Y.Set(1, 1, -2)
	assert.ErrorIs(d.Check(), ErrInput)

	d = vanillaData()
	d.Y.Set(2, 0, 1.5)
	assert.ErrorIs(d.Check(), ErrInput)

	d = vanillaData()
	d.I = 5
	assert.ErrorIs(d.Check(), ErrInput)

	d = vanillaData()
	d.Y = nil
	assert.ErrorIs(d.Check(), ErrInput)

	_, err := NewData(nil, nil, nil)
	assert.ErrorIs(err, ErrInput)

	nd, err := NewData(vanillaData().Y, []float64{0, 0, 0}, []float64{1, 1, 1})
	assert.NoError(err)
	assert.Equal(4, nd.I)
	assert.Equal(3, nd.K)

	_, err = New(nil)
	assert.ErrorIs(err, ErrInput)
}

func TestDeriveHyperBoundary(t *testing.T) {
	assert := assert.New(t)

	beta := make([]float64, 32)
	for k := range beta {
		beta[k] = -5 + 0.1*float64(k) - 0.003*float64(k*k)
	}

	mu, sigma, err := DeriveHyper(beta, DefaultKnown)
	assert.NoError(err)
	assert.Len(mu, 32)
	assert.Len(sigma, 32)

	var sum float64
	for _, b := range beta[:12] {
		sum += b
	}
	knownMean := sum / 12

	for k := range beta {
		if k < 12 {
			assert.Equal(KnownScale, sigma[k])
			assert.Equal(0.01, sigma[k])
			assert.Equal(beta[k], mu[k])
		} else {
			assert.Equal(UnknownScale, sigma[k])
			assert.InDelta(knownMean, mu[k], 1e-12)
			assert.Equal(mu[12], mu[k])
		}
	}
}

func TestDeriveHyperDeterministic(t *testing.T) {
	assert := assert.New(t)

	gen, err := rand.NewGenerator(42)
	assert.NoError(err)
	beta := make([]float64, 40)
	for k := range beta {
		beta[k] = gen.NormFloat64()
	}

	mu1, sigma1, err := DeriveHyper(beta, 12)
	assert.NoError(err)
	mu2, sigma2, err := DeriveHyper(beta, 12)
	assert.NoError(err)

	for k := range beta {
		assert.Equal(math.Float64bits(mu1[k]), math.Float64bits(mu2[k]))
		assert.Equal(math.Float64bits(sigma1[k]), math.Float64bits(sigma2[k]))
	}
}

func TestDeriveHyperEdges(t *testing.T) {
	assert := assert.New(t)

	_, _, err := DeriveHyper(nil, 12)
	assert.ErrorIs(err, ErrInput)

	_, _, err = DeriveHyper([]float64{1, 2}, 0)
	assert.ErrorIs(err, ErrInput)

	// Fewer subgroups than known: everything is known
	mu, sigma, err := DeriveHyper([]float64{1, 2, 3}, 12)
	assert.NoError(err)
	assert.Equal([]float64{1, 2, 3}, mu)
	assert.Equal([]float64{KnownScale, KnownScale, KnownScale}, sigma)
}

func TestNames(t *testing.T) {
	assert := assert.New(t)

	m, err := New(vanillaData())
	require.NoError(t, err)

	assert.Equal(4+2*3+2, m.Dim())
	names := m.Names()
	assert.Len(names, m.Dim())
	assert.Equal("alpha[1]", names[0])
	assert.Equal("alpha[4]", names[3])
	assert.Equal("beta[1]", names[4])
	assert.Equal("inv_omega[3]", names[9])
	assert.Equal("mu_alpha", names[10])
	assert.Equal("sigma_alpha", names[11])
}

func TestTermsRoundTrip(t *testing.T) {
	assert := assert.New(t)

	for _, c := range []struct{ alpha, beta, omega float64 }{
		{5, -5, 1.5},
		{4.2, -6.1, 10},
		{7.5, -3.3, 1.05},
		{0, 0, 2},
	} {
		xi, phi := Terms(c.alpha, c.beta, 1/c.omega)
		mean := math.Exp(c.alpha + c.beta)
		assert.InEpsilon(mean, ImpliedMean(xi, phi), 1e-12)
		assert.InEpsilon(c.omega*mean, ImpliedVariance(xi, phi), 1e-10)
		assert.InEpsilon(1/(c.omega-1), phi, 1e-12)
	}
}

func TestConstrainRoundTrip(t *testing.T) {
	assert := assert.New(t)

	m, err := New(vanillaData())
	require.NoError(t, err)

	q := []float64{0.1, 0.2, -0.3, 0.4, -1, -0.5, -0.7, -2, 0, 3, 0.5, -0.2}
	p := m.Constrain(q, nil)
	assert.InDelta(1/(1+math.Exp(2)), p[7], 1e-15)
	assert.InDelta(0.5, p[8], 1e-15)
	assert.InDelta(math.Exp(-0.2), p[11], 1e-15)
	assert.Equal(q[:7], p[:7])

	back, err := m.Unconstrain(p, nil)
	assert.NoError(err)
	assert.InDeltaSlice(q, back, 1e-12)

	p[8] = 1.0
	_, err = m.Unconstrain(p, nil)
	assert.ErrorIs(err, ErrInput)
}

// referenceLogDensity is a direct transcription of the model using gonum
// densities and the size/probability negative binomial, including the
// Jacobian terms.
func referenceLogDensity(m *Model, q []float64) float64 {
	d := m.Data()
	p := m.Constrain(q, nil)
	alpha := p[:d.I]
	beta := p[d.I : d.I+d.K]
	invOmega := p[d.I+d.K : d.I+2*d.K]
	muAlpha := p[d.I+2*d.K]
	sigma := p[d.I+2*d.K+1]

	lp := distuv.Normal{Mu: 0, Sigma: 25}.LogProb(muAlpha)
	lp += math.Log(2) + distuv.Normal{Mu: 0, Sigma: 5}.LogProb(sigma)
	for _, a := range alpha {
		lp += distuv.Normal{Mu: muAlpha, Sigma: sigma}.LogProb(a)
	}
	for k, b := range beta {
		lp += distuv.Normal{Mu: d.MuBeta[k], Sigma: d.SigmaBeta[k]}.LogProb(b)
	}
	for i := 0; i < d.I; i++ {
		for k := 0; k < d.K; k++ {
			n := d.Y.At(i, k)
			omega := 1 / invOmega[k]
			size := math.Exp(alpha[i]+beta[k]) / (omega - 1)
			prob := 1 / omega
			g1, _ := math.Lgamma(n + size)
			g2, _ := math.Lgamma(size)
			g3, _ := math.Lgamma(n + 1)
			lp += g1 - g2 - g3 + size*math.Log(prob) + n*math.Log(1-prob)
		}
	}

	// Jacobians
	for _, u := range invOmega {
		lp += math.Log(u) + math.Log(1-u)
	}
	lp += math.Log(sigma)
	return lp
}

func TestLogDensityMatchesReference(t *testing.T) {
	assert := assert.New(t)

	m, err := New(vanillaData())
	require.NoError(t, err)

	q1 := []float64{0.1, 0.2, -0.3, 0.4, -1, -0.5, -0.7, -2, 0, 3, 0.5, -0.2}
	q2 := []float64{-0.4, 1.1, 0.3, 0.0, -1.001, 0.2, -1.7, 1, -1, 0.5, -0.1, 0.3}

	lp1, err := m.LogDensity(q1, nil)
	assert.NoError(err)
	lp2, err := m.LogDensity(q2, nil)
	assert.NoError(err)

	// Equal up to the dropped constant
	assert.InDelta(referenceLogDensity(m, q1)-referenceLogDensity(m, q2), lp1-lp2, 1e-9)
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	assert := assert.New(t)

	m, err := New(vanillaData())
	require.NoError(t, err)

	gen, err := rand.NewGenerator(9)
	require.NoError(t, err)

	q := make([]float64, m.Dim())
	f := func(x []float64) float64 {
		lp, _ := m.LogDensity(x, nil)
		return lp
	}

	for trial := 0; trial < 5; trial++ {
		assert.NoError(m.Init(gen, q))

		grad := make([]float64, m.Dim())
		_, err := m.LogDensity(q, grad)
		assert.NoError(err)

		numeric := fd.Gradient(nil, f, q, &fd.Settings{Formula: fd.Central})
		for j := range grad {
			assert.InDelta(numeric[j], grad[j], 1e-4*math.Max(1, math.Abs(numeric[j])), "param %s", m.Names()[j])
		}
	}
}

func TestLogDensityErrors(t *testing.T) {
	assert := assert.New(t)

	m, err := New(vanillaData())
	require.NoError(t, err)

	_, err = m.LogDensity(make([]float64, 3), nil)
	assert.Error(err)

	_, err = m.LogDensity(make([]float64, m.Dim()), make([]float64, 2))
	assert.Error(err)

	// Overflowing alpha drives the density to -Inf rather than NaN
	q := make([]float64, m.Dim())
	q[0] = 1e6
	lp, err := m.LogDensity(q, nil)
	assert.NoError(err)
	assert.True(math.IsInf(lp, -1))
}

func TestInitFinite(t *testing.T) {
	assert := assert.New(t)

	m, err := New(vanillaData())
	require.NoError(t, err)

	gen, _ := rand.NewGenerator(1)
	q := make([]float64, m.Dim())
	assert.Error(m.Init(gen, q[:3]))

	for i := 0; i < 20; i++ {
		assert.NoError(m.Init(gen, q))
		lp, err := m.LogDensity(q, nil)
		assert.NoError(err)
		assert.False(math.IsInf(lp, 0) || math.IsNaN(lp))

		// anchored subgroup stays within its prior scale
		assert.InDelta(-1.0, q[4], 0.01)
	}
}
