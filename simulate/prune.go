package simulate

import (
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrDegenerate means the zero-variance filter left nothing to fit
var ErrDegenerate = errors.New("no subgroups/individuals carry variation")

// PrunePolicy selects the axis the zero-variance filter runs over
type PrunePolicy int

// Available policies. PruneIndividuals drops individuals whose counts are the
// same for every subgroup; PruneSubgroups drops subgroups whose counts are the
// same for every individual.
const (
	PruneIndividuals PrunePolicy = iota
	PruneSubgroups
	PruneNone
)

func (p PrunePolicy) String() string {
	switch p {
	case PruneIndividuals:
		return "individuals"
	case PruneSubgroups:
		return "subgroups"
	case PruneNone:
		return "none"
	}
	return "unknown"
}

// ParsePrunePolicy is the inverse of String. The empty string selects the
// default, PruneIndividuals.
func ParsePrunePolicy(s string) (PrunePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "individuals", "rows":
		return PruneIndividuals, nil
	case "subgroups", "columns", "cols":
		return PruneSubgroups, nil
	case "none", "off":
		return PruneNone, nil
	}
	return PruneNone, errors.Wrapf(ErrParams, "Unknown prune policy %q", s)
}

// zeroVariance is true for vectors with no sample variance. A single value
// has no variance to offer either.
func zeroVariance(x []float64) bool {
	if len(x) < 2 {
		return true
	}
	return stat.Variance(x, nil) == 0
}

// Prune removes the zero-variance rows or columns of Y along with the matching
// truth entries, returning the removed (0-based, pre-pruning) indices. If the
// filter would remove everything, ErrDegenerate is returned and the dataset
// is left untouched.
func (d *Dataset) Prune(policy PrunePolicy) ([]int, error) {
	I, K := d.Y.Dims()

	switch policy {
	case PruneNone:
		return nil, nil

	case PruneIndividuals:
		var keep, removed []int
		for i := 0; i < I; i++ {
			if zeroVariance(mat.Row(nil, i, d.Y)) {
				removed = append(removed, i)
			} else {
				keep = append(keep, i)
			}
		}
		if len(keep) < 1 {
			return removed, errors.Wrapf(ErrDegenerate, "All %d individuals have zero variance across subgroups", I)
		}
		if len(removed) < 1 {
			return nil, nil
		}

		y := mat.NewDense(len(keep), K, nil)
		for r, i := range keep {
			y.SetRow(r, d.Y.RawRowView(i))
		}
		d.Y = y
		d.Alpha = pick(d.Alpha, keep)
		return removed, nil

	case PruneSubgroups:
		var keep, removed []int
		for k := 0; k < K; k++ {
			if zeroVariance(mat.Col(nil, k, d.Y)) {
				removed = append(removed, k)
			} else {
				keep = append(keep, k)
			}
		}
		if len(keep) < 1 {
			return removed, errors.Wrapf(ErrDegenerate, "All %d subgroups have zero variance across individuals", K)
		}
		if len(removed) < 1 {
			return nil, nil
		}

		y := mat.NewDense(I, len(keep), nil)
		for c, k := range keep {
			y.SetCol(c, mat.Col(nil, k, d.Y))
		}
		d.Y = y
		d.Beta = pick(d.Beta, keep)
		d.InvOmega = pick(d.InvOmega, keep)
		d.Omega = pick(d.Omega, keep)
		return removed, nil
	}

	return nil, errors.Wrapf(ErrParams, "Unknown prune policy %d", int(policy))
}

func pick(x []float64, keep []int) []float64 {
	if x == nil {
		return nil
	}
	out := make([]float64, len(keep))
	for j, idx := range keep {
		out[j] = x[idx]
	}
	return out
}
