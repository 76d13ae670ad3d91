package sampler

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ChainDraws are everything one chain recorded. Values has one row per
// iteration (warm-up rows first) and one column per parameter.
type ChainDraws struct {
	ID        int        `json:"id"`
	Values    *mat.Dense `json:"-"`
	Stats     []Stats    `json:"-"`
	StepSize  float64    `json:"stepsize"`
	InvMetric []float64  `json:"inv_metric"`
}

// Draws are the merged output of a sampling run
type Draws struct {
	Names  []string
	Warmup int
	Chains []*ChainDraws

	index map[string]int
}

// MergeChains collects chain output into a single Draws. Every chain must
// record the same parameters for the same number of iterations.
func MergeChains(names []string, warmup int, chains []*ChainDraws) (*Draws, error) {
	if len(chains) < 1 {
		return nil, errors.Errorf("Can not merge 0 chains")
	}

	rows, cols := chains[0].Values.Dims()
	if cols != len(names) {
		return nil, errors.Errorf("Chain records %d values but there are %d names", cols, len(names))
	}
	if warmup < 0 || warmup > rows {
		return nil, errors.Errorf("Warm-up %d does not fit in %d iterations", warmup, rows)
	}

	for _, ch := range chains[1:] {
		r, c := ch.Values.Dims()
		if r != rows || c != cols {
			return nil, errors.Errorf("Cannot merge chain of %dx%d draws into %dx%d", r, c, rows, cols)
		}
	}

	d := &Draws{
		Names:  names,
		Warmup: warmup,
		Chains: chains,
		index:  make(map[string]int, len(names)),
	}
	for i, n := range names {
		d.index[n] = i
	}
	return d, nil
}

// Iterations is the number of iterations per chain, warm-up included
func (d *Draws) Iterations() int {
	r, _ := d.Chains[0].Values.Dims()
	return r
}

// Kept is the number of retained (post warm-up) draws per chain
func (d *Draws) Kept() int {
	return d.Iterations() - d.Warmup
}

// Index returns the column of the named parameter
func (d *Draws) Index(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// Value is a single recorded value; iter counts from the first warm-up
// iteration
func (d *Draws) Value(chain int, iter int, name string) (float64, error) {
	col, ok := d.index[name]
	if !ok {
		return 0, errors.Errorf("Unknown parameter %q", name)
	}
	if chain < 0 || chain >= len(d.Chains) {
		return 0, errors.Errorf("Chain %d out of range [0,%d)", chain, len(d.Chains))
	}
	if iter < 0 || iter >= d.Iterations() {
		return 0, errors.Errorf("Iteration %d out of range [0,%d)", iter, d.Iterations())
	}
	return d.Chains[chain].Values.At(iter, col), nil
}

// ChainRetained returns a copy of the retained draws of one column of one
// chain
func (d *Draws) ChainRetained(chain int, col int) []float64 {
	vals := mat.Col(nil, col, d.Chains[chain].Values)
	return vals[d.Warmup:]
}

// Retained pools the retained draws of the named parameter over all chains
func (d *Draws) Retained(name string) ([]float64, error) {
	col, ok := d.index[name]
	if !ok {
		return nil, errors.Errorf("Unknown parameter %q", name)
	}

	out := make([]float64, 0, d.Kept()*len(d.Chains))
	for c := range d.Chains {
		out = append(out, d.ChainRetained(c, col)...)
	}
	return out, nil
}

// Divergences counts divergent transitions after warm-up
func (d *Draws) Divergences() int {
	n := 0
	for _, ch := range d.Chains {
		for _, st := range ch.Stats[d.Warmup:] {
			if st.Divergent {
				n++
			}
		}
	}
	return n
}
