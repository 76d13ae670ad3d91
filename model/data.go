package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrInput marks an input invariant violation: bad sizes, mismatched
// lengths, negative or fractional counts. These are caught before any
// sampling starts.
var ErrInput = errors.New("input invariant violation")

// Data is the payload handed to the sampler along with the model: I
// individuals, K subgroups, the prior mean/scale for every subgroup and the
// I x K matrix of tie counts.
type Data struct {
	I         int        `json:"I"`
	K         int        `json:"K"`
	MuBeta    []float64  `json:"mu_beta"`
	SigmaBeta []float64  `json:"sigma_beta"`
	Y         *mat.Dense `json:"-"`
}

// NewData builds a payload from the counts and hyperparameters, sizing I and
// K from the count matrix. The result has been checked.
func NewData(y *mat.Dense, muBeta, sigmaBeta []float64) (*Data, error) {
	if y == nil {
		return nil, errors.Wrap(ErrInput, "No count matrix supplied")
	}

	r, c := y.Dims()
	d := &Data{
		I:         r,
		K:         c,
		MuBeta:    muBeta,
		SigmaBeta: sigmaBeta,
		Y:         y,
	}

	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}

// Check returns an error wrapping ErrInput if there is a problem with the
// payload
func (d *Data) Check() error {
	if d.I < 1 {
		return errors.Wrapf(ErrInput, "I=%d but at least 1 individual is required", d.I)
	}
	if d.K < 1 {
		return errors.Wrapf(ErrInput, "K=%d but at least 1 subgroup is required", d.K)
	}
	if len(d.MuBeta) != d.K {
		return errors.Wrapf(ErrInput, "len(mu_beta)=%d != K=%d", len(d.MuBeta), d.K)
	}
	if len(d.SigmaBeta) != d.K {
		return errors.Wrapf(ErrInput, "len(sigma_beta)=%d != K=%d", len(d.SigmaBeta), d.K)
	}

	for k, mu := range d.MuBeta {
		if math.IsNaN(mu) || math.IsInf(mu, 0) {
			return errors.Wrapf(ErrInput, "mu_beta[%d]=%v is not finite", k+1, mu)
		}
	}
	for k, s := range d.SigmaBeta {
		if !(s > 0) || math.IsInf(s, 0) {
			return errors.Wrapf(ErrInput, "sigma_beta[%d]=%v must be positive and finite", k+1, s)
		}
	}

	if d.Y == nil {
		return errors.Wrap(ErrInput, "No count matrix supplied")
	}
	r, c := d.Y.Dims()
	if r != d.I || c != d.K {
		return errors.Wrapf(ErrInput, "y is %dx%d but I=%d, K=%d", r, c, d.I, d.K)
	}

	for i := 0; i < r; i++ {
		for k := 0; k < c; k++ {
			v := d.Y.At(i, k)
			if v < 0 || math.IsInf(v, 0) || v != math.Floor(v) {
				return errors.Wrapf(ErrInput, "y[%d,%d]=%v is not a non-negative integer count", i+1, k+1, v)
			}
		}
	}

	return nil
}
