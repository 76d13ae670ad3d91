// Package analysis turns posterior draws into interval summaries, checks
// them against the truth a dataset was simulated from, and runs whole
// simulate-fit-summarise experiments.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/netsize/sampler"
)

// ErrNoDraws means there is nothing to summarise
var ErrNoDraws = errors.New("no retained posterior draws")

// Interval bounds: a central 95% credible interval
const (
	LowerProb = 0.025
	UpperProb = 0.975
)

// Row is the summary of one parameter. Index is 1-based; Truth is NaN when
// unknown.
type Row struct {
	Name  string  `json:"name"`
	Index int     `json:"index"`
	Truth float64 `json:"truth"`
	Mean  float64 `json:"mean"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Covers is true if x lies inside the row's interval
func (r Row) Covers(x float64) bool {
	return r.Lower <= x && x <= r.Upper
}

// Width of the interval
func (r Row) Width() float64 {
	return r.Upper - r.Lower
}

// Table is a named list of rows
type Table struct {
	Name string `json:"name"`
	Rows []Row  `json:"rows"`
}

// Coverage is the fraction of rows whose interval contains the truth. Rows
// without a truth are skipped; NaN if there are none.
func (t *Table) Coverage() float64 {
	var n, hit int
	for _, r := range t.Rows {
		if math.IsNaN(r.Truth) {
			continue
		}
		n++
		if r.Covers(r.Truth) {
			hit++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return float64(hit) / float64(n)
}

// MeanCoverage is the fraction of rows whose interval contains the
// posterior mean
func (t *Table) MeanCoverage() float64 {
	if len(t.Rows) == 0 {
		return math.NaN()
	}
	hit := 0
	for _, r := range t.Rows {
		if r.Covers(r.Mean) {
			hit++
		}
	}
	return float64(hit) / float64(len(t.Rows))
}

// From returns the rows with Index > k
func (t *Table) From(k int) *Table {
	out := &Table{Name: fmt.Sprintf("%s[>%d]", t.Name, k)}
	for _, r := range t.Rows {
		if r.Index > k {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Truth is the latent state a dataset was simulated from. Any slice may be
// nil and the scalars NaN for real data.
type Truth struct {
	Alpha      []float64
	Beta       []float64
	Omega      []float64
	MuAlpha    float64
	SigmaAlpha float64
}

// Summary holds one table per parameter family
type Summary struct {
	Individuals *Table `json:"individuals"`
	Subgroups   *Table `json:"subgroups"`
	Dispersion  *Table `json:"dispersion"`
	Degree      *Table `json:"degree"`
	Hyper       *Table `json:"hyper"`
}

// Quantile is the R type 7 sample quantile of x (linear interpolation
// between order statistics, the numpy default). x need not be sorted and is
// not modified.
func Quantile(p float64, x []float64) float64 {
	if len(x) == 0 || math.IsNaN(p) {
		return math.NaN()
	}

	s := append([]float64(nil), x...)
	sort.Float64s(s)
	return sortedQuantile(p, s)
}

func sortedQuantile(p float64, s []float64) float64 {
	n := len(s)
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}

	h := float64(n-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= n {
		return s[n-1]
	}
	return s[i] + (h-lo)*(s[i+1]-s[i])
}

func summarise(name string, index int, truth float64, x []float64) Row {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	return Row{
		Name:  name,
		Index: index,
		Truth: truth,
		Mean:  stat.Mean(x, nil),
		Lower: sortedQuantile(LowerProb, s),
		Upper: sortedQuantile(UpperProb, s),
	}
}

func truthAt(x []float64, i int) float64 {
	if i < len(x) {
		return x[i]
	}
	return math.NaN()
}

// count returns how many of family[1], family[2], ... the draws hold
func count(draws *sampler.Draws, family string) int {
	n := 0
	for {
		if _, ok := draws.Index(fmt.Sprintf("%s[%d]", family, n+1)); !ok {
			return n
		}
		n++
	}
}

// Summarize pools the retained draws of every chain and returns the
// posterior mean and central 95% interval of alpha, beta, omega (as the
// reciprocal of the sampled inv_omega), exp(alpha) and the two hyper
// parameters. truth may be nil.
func Summarize(draws *sampler.Draws, truth *Truth) (*Summary, error) {
	if draws == nil || len(draws.Chains) == 0 || draws.Kept() < 1 {
		return nil, ErrNoDraws
	}
	if truth == nil {
		truth = &Truth{MuAlpha: math.NaN(), SigmaAlpha: math.NaN()}
	}

	I := count(draws, "alpha")
	K := count(draws, "beta")
	if I < 1 || K < 1 || count(draws, "inv_omega") != K {
		return nil, errors.Errorf("Draws do not hold a network size model: %d alpha, %d beta", I, K)
	}

	sum := &Summary{
		Individuals: &Table{Name: "alpha"},
		Subgroups:   &Table{Name: "beta"},
		Dispersion:  &Table{Name: "omega"},
		Degree:      &Table{Name: "degree"},
		Hyper:       &Table{Name: "hyper"},
	}

	for i := 0; i < I; i++ {
		name := fmt.Sprintf("alpha[%d]", i+1)
		x, err := draws.Retained(name)
		if err != nil {
			return nil, err
		}
		t := truthAt(truth.Alpha, i)
		sum.Individuals.Rows = append(sum.Individuals.Rows, summarise(name, i+1, t, x))

		for j := range x {
			x[j] = math.Exp(x[j])
		}
		sum.Degree.Rows = append(sum.Degree.Rows, summarise(fmt.Sprintf("degree[%d]", i+1), i+1, math.Exp(t), x))
	}

	for k := 0; k < K; k++ {
		name := fmt.Sprintf("beta[%d]", k+1)
		x, err := draws.Retained(name)
		if err != nil {
			return nil, err
		}
		sum.Subgroups.Rows = append(sum.Subgroups.Rows, summarise(name, k+1, truthAt(truth.Beta, k), x))

		x, err = draws.Retained(fmt.Sprintf("inv_omega[%d]", k+1))
		if err != nil {
			return nil, err
		}
		for j := range x {
			x[j] = 1 / x[j]
		}
		sum.Dispersion.Rows = append(sum.Dispersion.Rows, summarise(fmt.Sprintf("omega[%d]", k+1), k+1, truthAt(truth.Omega, k), x))
	}

	for i, h := range []struct {
		name  string
		truth float64
	}{
		{"mu_alpha", truth.MuAlpha},
		{"sigma_alpha", truth.SigmaAlpha},
	} {
		x, err := draws.Retained(h.name)
		if err != nil {
			return nil, err
		}
		sum.Hyper.Rows = append(sum.Hyper.Rows, summarise(h.name, i+1, h.truth, x))
	}

	return sum, nil
}
