package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/netsize/rand"
	"github.com/CraigKelly/netsize/sampler"
)

func normalChains(seed int64, m, n int, shift float64) [][]float64 {
	gen, _ := rand.NewGenerator(seed)
	out := make([][]float64, m)
	for c := range out {
		out[c] = make([]float64, n)
		for i := range out[c] {
			out[c][i] = gen.NormFloat64() + shift*float64(c)
		}
	}
	return out
}

func ar1Chains(seed int64, m, n int, phi float64) [][]float64 {
	gen, _ := rand.NewGenerator(seed)
	out := make([][]float64, m)
	scale := math.Sqrt(1 - phi*phi)
	for c := range out {
		out[c] = make([]float64, n)
		x := gen.NormFloat64()
		for i := range out[c] {
			x = phi*x + scale*gen.NormFloat64()
			out[c][i] = x
		}
	}
	return out
}

func TestSplitRhat(t *testing.T) {
	assert := assert.New(t)

	good := SplitRhat(normalChains(1, 4, 1000, 0))
	assert.InDelta(1.0, good, 0.02)

	bad := SplitRhat(normalChains(2, 4, 1000, 3))
	assert.True(bad > 1.5, "rhat=%v", bad)

	// a trend inside one chain is caught by splitting it
	trend := make([]float64, 1000)
	for i := range trend {
		trend[i] = float64(i) / 100
	}
	assert.True(SplitRhat([][]float64{trend}) > 1.5)

	assert.Equal(1.0, SplitRhat([][]float64{{2, 2, 2, 2}, {2, 2, 2, 2}}))
	assert.True(math.IsNaN(SplitRhat([][]float64{{1, 2}})))
}

func TestAutocovariance(t *testing.T) {
	assert := assert.New(t)

	x := normalChains(3, 1, 257, 0)[0]
	acov := autocovariance(x)

	mean := 0.0
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))

	for _, lag := range []int{0, 1, 5, 100, 256} {
		var s float64
		for i := 0; i+lag < len(x); i++ {
			s += (x[i] - mean) * (x[i+lag] - mean)
		}
		assert.InDelta(s/float64(len(x)), acov[lag], 1e-9, "lag %d", lag)
	}
}

func TestEffectiveSize(t *testing.T) {
	assert := assert.New(t)

	iid := EffectiveSize(normalChains(4, 4, 1000, 0))
	assert.InEpsilon(4000, iid, 0.2)

	// AR(1) with phi has ESS near N(1-phi)/(1+phi)
	phi := 0.9
	ar := EffectiveSize(ar1Chains(5, 4, 5000, phi))
	assert.InEpsilon(20000*(1-phi)/(1+phi), ar, 0.35)

	assert.True(math.IsNaN(EffectiveSize([][]float64{{1, 2, 3}})))
	assert.True(math.IsNaN(EffectiveSize([][]float64{{1, 1, 1, 1, 1}})))
	assert.True(math.IsNaN(EffectiveSize(nil)))
}

func TestCheckConvergence(t *testing.T) {
	assert := assert.New(t)

	chains := normalChains(6, 2, 200, 5)
	vals := make([]*sampler.ChainDraws, 2)
	for c := range vals {
		vals[c] = &sampler.ChainDraws{
			ID:     c,
			Values: mat.NewDense(200, 1, chains[c]),
			Stats:  make([]sampler.Stats, 200),
		}
	}
	vals[1].Stats[150].Divergent = true

	d, err := sampler.MergeChains([]string{"x"}, 100, vals)
	require.NoError(t, err)

	diag, err := Diagnose(d)
	require.NoError(t, err)
	assert.Len(diag.Params, 1)
	assert.Equal("x", diag.WorstRhat)
	assert.True(diag.MaxRhat > 2)
	assert.Equal(1, diag.Divergences)

	err = diag.CheckConvergence(1.1)
	assert.ErrorIs(err, ErrNotConverged)
	assert.ErrorIs(err, sampler.ErrSampler)

	assert.NoError(diag.CheckConvergence(0))
	assert.NoError(diag.CheckConvergence(1e6))
}
