package analysis

import (
	"math"

	"github.com/pkg/errors"
)

// ErrorSuite represents all the loss/error functions we use to judge how well
// a table of posterior summaries recovers the truth. Abs errors compare the
// posterior mean with the truth; Coverage and MeanCoverage are as in Table.
type ErrorSuite struct {
	Rows         int     `json:"rows"`
	MeanAbsError float64 `json:"mean_abs_error"`
	MaxAbsError  float64 `json:"max_abs_error"`
	RMSE         float64 `json:"rmse"`
	Coverage     float64 `json:"coverage"`
	MeanCoverage float64 `json:"mean_coverage"`
	MeanWidth    float64 `json:"mean_width"`
	MaxWidth     float64 `json:"max_width"`
}

// Score returns an ErrorSuite over the rows of t that have a truth
func Score(t *Table) (*ErrorSuite, error) {
	if t == nil {
		return nil, errors.Errorf("No table to score")
	}

	es := ErrorSuite{}
	for _, r := range t.Rows {
		if math.IsNaN(r.Truth) {
			continue
		}
		es.Rows++

		d := math.Abs(r.Mean - r.Truth)
		es.MeanAbsError += d
		es.MaxAbsError = math.Max(d, es.MaxAbsError)
		es.RMSE += d * d

		w := r.Width()
		es.MeanWidth += w
		es.MaxWidth = math.Max(w, es.MaxWidth)
	}

	if es.Rows < 1 {
		return nil, errors.Errorf("No rows with a known truth to score in %s", t.Name)
	}

	fc := float64(es.Rows)
	es.MeanAbsError /= fc
	es.RMSE = math.Sqrt(es.RMSE / fc)
	es.MeanWidth /= fc
	es.Coverage = t.Coverage()
	es.MeanCoverage = t.MeanCoverage()

	return &es, nil
}
