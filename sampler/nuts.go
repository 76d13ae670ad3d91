package sampler

import (
	"math"
)

// NUTS is the No-U-Turn sampler with slice sampling (Hoffman & Gelman 2014,
// algorithm 6) and a diagonal metric. The trajectory doubles until it turns
// back on itself, diverges, or reaches MaxDepth doublings.
type NUTS struct {
	MaxDepth  int
	MaxDeltaH float64
}

// Name returns "nuts"
func (n *NUTS) Name() string {
	return KernelNUTS
}

// subtree is the result of one call to buildTree
type subtree struct {
	minus, plus *state
	prop        *state
	n           int  // states inside the slice
	ok          bool // no U-turn and no divergence
	divergent   bool
	alphaSum    float64
	nAlpha      int
}

func (n *NUTS) transition(h *hamiltonian, cur *state, eps float64) (*state, Stats, error) {
	start := cur.clone()
	h.sampleMomentum(start)
	joint0 := h.joint(start)
	logu := joint0 - h.gen.ExpFloat64()

	minus, plus, prop := start, start, start
	size := 1
	ok := true
	depth := 0

	var alphaSum float64
	var nAlpha int
	var divergent bool

	for ok && depth < n.MaxDepth {
		dir := 1.0
		if h.gen.Float64() < 0.5 {
			dir = -1.0
		}

		var t *subtree
		var err error
		if dir < 0 {
			t, err = n.buildTree(h, minus, logu, dir, depth, eps, joint0)
			if err != nil {
				return nil, Stats{}, err
			}
			minus = t.minus
		} else {
			t, err = n.buildTree(h, plus, logu, dir, depth, eps, joint0)
			if err != nil {
				return nil, Stats{}, err
			}
			plus = t.plus
		}

		alphaSum += t.alphaSum
		nAlpha += t.nAlpha
		divergent = divergent || t.divergent

		if t.ok && t.n > 0 && h.gen.Float64() < float64(t.n)/float64(size) {
			prop = t.prop
		}

		size += t.n
		ok = t.ok && h.noUTurn(minus, plus)
		depth++
	}

	st := Stats{
		TreeDepth:  depth,
		Leapfrogs:  nAlpha,
		Divergent:  divergent,
		Energy:     -h.joint(prop),
		LogDensity: prop.logp,
	}
	if nAlpha > 0 {
		st.AcceptStat = alphaSum / float64(nAlpha)
	}
	return prop, st, nil
}

func (n *NUTS) buildTree(h *hamiltonian, s *state, logu float64, dir float64, depth int, eps float64, joint0 float64) (*subtree, error) {
	if depth == 0 {
		next, err := h.leapfrog(s, dir*eps)
		if err != nil {
			return nil, err
		}

		joint := h.joint(next)
		t := &subtree{
			minus:  next,
			plus:   next,
			prop:   next,
			nAlpha: 1,
		}
		if logu <= joint {
			t.n = 1
		}
		t.ok = logu-n.MaxDeltaH < joint
		t.divergent = !t.ok
		t.alphaSum = math.Min(1, math.Exp(joint-joint0))
		if math.IsNaN(t.alphaSum) {
			t.alphaSum = 0
		}
		return t, nil
	}

	t, err := n.buildTree(h, s, logu, dir, depth-1, eps, joint0)
	if err != nil {
		return nil, err
	}
	if !t.ok {
		return t, nil
	}

	var t2 *subtree
	if dir < 0 {
		t2, err = n.buildTree(h, t.minus, logu, dir, depth-1, eps, joint0)
		if err != nil {
			return nil, err
		}
		t.minus = t2.minus
	} else {
		t2, err = n.buildTree(h, t.plus, logu, dir, depth-1, eps, joint0)
		if err != nil {
			return nil, err
		}
		t.plus = t2.plus
	}

	total := t.n + t2.n
	if total > 0 && h.gen.Float64() < float64(t2.n)/float64(total) {
		t.prop = t2.prop
	}

	t.alphaSum += t2.alphaSum
	t.nAlpha += t2.nAlpha
	t.divergent = t.divergent || t2.divergent
	t.n = total
	t.ok = t2.ok && h.noUTurn(t.minus, t.plus)
	return t, nil
}
