package sampler

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// stepSizeAdapter tunes the leapfrog step size during warm-up with Nesterov
// dual averaging so the mean acceptance statistic approaches delta.
type stepSizeAdapter struct {
	delta float64
	gamma float64
	kappa float64
	t0    float64

	mu        float64
	hBar      float64
	logEpsBar float64
	counter   float64
}

func newStepSizeAdapter(delta float64) *stepSizeAdapter {
	return &stepSizeAdapter{
		delta: delta,
		gamma: 0.05,
		kappa: 0.75,
		t0:    10,
	}
}

// restart centres the adaptation on a fresh step size
func (a *stepSizeAdapter) restart(eps float64) {
	a.mu = math.Log(10 * eps)
	a.hBar = 0
	a.logEpsBar = 0
	a.counter = 0
}

// learn folds in one acceptance statistic and returns the next step size
func (a *stepSizeAdapter) learn(acceptStat float64) float64 {
	a.counter++

	accept := math.Min(1, acceptStat)
	if math.IsNaN(accept) {
		accept = 0
	}

	eta := 1 / (a.counter + a.t0)
	a.hBar = (1-eta)*a.hBar + eta*(a.delta-accept)

	logEps := a.mu - math.Sqrt(a.counter)/a.gamma*a.hBar
	w := math.Pow(a.counter, -a.kappa)
	a.logEpsBar = w*logEps + (1-w)*a.logEpsBar

	return math.Exp(logEps)
}

// final is the step size used once warm-up ends
func (a *stepSizeAdapter) final() float64 {
	return math.Exp(a.logEpsBar)
}

// metricAdapter estimates a diagonal inverse metric from the unconstrained
// draws of a series of doubling windows. Warm-up is split into a fast
// initial buffer, the slow windows, and a fast terminal buffer.
type metricAdapter struct {
	warmup   int
	initBuf  int
	termBuf  int
	window   int
	counter  int
	next     int
	disabled bool

	samples [][]float64
}

func newMetricAdapter(warmup int) *metricAdapter {
	a := &metricAdapter{
		warmup:  warmup,
		initBuf: 75,
		termBuf: 50,
		window:  25,
	}

	if warmup < 20 {
		a.disabled = true
		return a
	}

	if a.initBuf+a.window+a.termBuf > warmup {
		a.initBuf = int(0.15 * float64(warmup))
		a.termBuf = int(0.1 * float64(warmup))
		a.window = warmup - (a.initBuf + a.termBuf)
	}

	a.next = a.initBuf + a.window - 1
	return a
}

func (a *metricAdapter) inWindow() bool {
	return a.counter >= a.initBuf && a.counter < a.warmup-a.termBuf && a.counter != a.warmup
}

func (a *metricAdapter) endOfWindow() bool {
	return a.counter == a.next && a.counter != a.warmup
}

// computeNextWindow doubles the window, stretching the last one to the start
// of the terminal buffer if another doubling would not fit
func (a *metricAdapter) computeNextWindow() {
	last := a.warmup - a.termBuf - 1
	if a.next == last {
		return
	}

	a.window *= 2
	a.next = a.counter + a.window

	if a.next != last {
		boundary := a.next + 2*a.window
		if boundary >= last {
			a.next = last
		}
	}
}

// learn records q and returns a new inverse metric at the end of a window,
// nil otherwise
func (a *metricAdapter) learn(q []float64) []float64 {
	if a.disabled {
		return nil
	}

	if a.inWindow() {
		a.samples = append(a.samples, append([]float64(nil), q...))
	}

	if a.endOfWindow() {
		inv := a.estimate()
		a.computeNextWindow()
		a.samples = a.samples[:0]
		a.counter++
		return inv
	}

	a.counter++
	return nil
}

// estimate is the regularised per-dimension sample variance, shrunk towards
// 1e-3 for small windows
func (a *metricAdapter) estimate() []float64 {
	n := len(a.samples)
	if n < 2 {
		return nil
	}

	dim := len(a.samples[0])
	col := make([]float64, n)
	inv := make([]float64, dim)
	fn := float64(n)

	for d := 0; d < dim; d++ {
		for i, s := range a.samples {
			col[i] = s[d]
		}
		_, v := stat.MeanVariance(col, nil)
		inv[d] = (fn/(fn+5))*v + 1e-3*(5/(fn+5))
	}

	return inv
}
