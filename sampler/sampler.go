package sampler

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/CraigKelly/netsize/rand"
)

// Failure kinds. ErrSettings is an input problem caught before any work is
// done; ErrSampler covers everything that goes wrong once sampling starts
// (rejected initial values, collapsed step size, timeout or cancellation).
var (
	ErrSettings = errors.New("invalid sampler settings")
	ErrSampler  = errors.New("sampler failure")
)

// A Target is a differentiable log density over an unconstrained space. It
// must be safe to call from several chains at once.
type Target interface {
	Dim() int
	// LogDensity returns the log density at q (up to a constant) and writes
	// the gradient into grad. A non-finite density is reported as -Inf, an
	// error means the call itself was invalid.
	LogDensity(q []float64, grad []float64) (float64, error)
}

// A Transformer maps unconstrained vectors to named model parameters. Draws
// are recorded on the constrained scale when the target implements it.
type Transformer interface {
	Names() []string
	Constrain(q []float64, dst []float64) []float64
}

// An Initializer supplies initial values for a chain. Targets without one
// start uniformly in (-2, 2) on the unconstrained scale.
type Initializer interface {
	Init(gen *rand.Generator, q []float64) error
}

// A Kernel advances a chain by one transition
type Kernel interface {
	Name() string
	transition(h *hamiltonian, cur *state, eps float64) (*state, Stats, error)
}

// Stats are the per-iteration sampler diagnostics
type Stats struct {
	AcceptStat float64 `json:"accept_stat"`
	StepSize   float64 `json:"stepsize"`
	TreeDepth  int     `json:"treedepth"`
	Leapfrogs  int     `json:"n_leapfrog"`
	Divergent  bool    `json:"divergent"`
	Energy     float64 `json:"energy"`
	LogDensity float64 `json:"lp"`
}

// Kernel names
const (
	KernelNUTS = "nuts"
	KernelHMC  = "hmc"
)

// Settings control a sampling run. Iter counts every iteration of a chain,
// warm-up included, so Iter-Warmup draws per chain are retained.
type Settings struct {
	Kernel        string        `json:"kernel" yaml:"kernel"`
	Chains        int           `json:"chains" yaml:"chains"`
	Warmup        int           `json:"warmup" yaml:"warmup"`
	Iter          int           `json:"iter" yaml:"iter"`
	Seed          int64         `json:"seed" yaml:"-"`
	MaxDepth      int           `json:"max_depth" yaml:"max_depth"`
	TargetAccept  float64       `json:"target_accept" yaml:"target_accept"`
	LeapfrogSteps int           `json:"leapfrog_steps" yaml:"leapfrog_steps"`
	MaxInitTries  int           `json:"max_init_tries" yaml:"max_init_tries"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	ProgressEvery int           `json:"progress_every" yaml:"progress_every"`
	Window        int           `json:"window" yaml:"window"`

	// Progress, if set, is called by every chain after every iteration. It
	// is called concurrently from the chain goroutines.
	Progress func(chain int, iter int, st Stats) `json:"-" yaml:"-"`
}

// DefaultSettings are four NUTS chains of 2000 iterations, half warm-up
func DefaultSettings() Settings {
	return Settings{
		Kernel:        KernelNUTS,
		Chains:        4,
		Warmup:        1000,
		Iter:          2000,
		Seed:          1,
		MaxDepth:      10,
		TargetAccept:  0.8,
		LeapfrogSteps: 16,
		MaxInitTries:  100,
		ProgressEvery: 200,
		Window:        100,
	}
}

// Check returns an error wrapping ErrSettings if there is a problem
func (s Settings) Check() error {
	if s.Chains < 1 {
		return errors.Wrapf(ErrSettings, "chains=%d must be >= 1", s.Chains)
	}
	if s.Warmup < 0 {
		return errors.Wrapf(ErrSettings, "warmup=%d must be >= 0", s.Warmup)
	}
	if s.Iter <= s.Warmup {
		return errors.Wrapf(ErrSettings, "iter=%d must be greater than warmup=%d", s.Iter, s.Warmup)
	}
	if !(s.TargetAccept > 0 && s.TargetAccept < 1) {
		return errors.Wrapf(ErrSettings, "target_accept=%v must be in (0,1)", s.TargetAccept)
	}
	if s.MaxInitTries < 1 {
		return errors.Wrapf(ErrSettings, "max_init_tries=%d must be >= 1", s.MaxInitTries)
	}
	if s.Window < 0 || s.ProgressEvery < 0 {
		return errors.Wrapf(ErrSettings, "window=%d and progress_every=%d must not be negative", s.Window, s.ProgressEvery)
	}
	if s.Timeout < 0 {
		return errors.Wrapf(ErrSettings, "timeout=%v must not be negative", s.Timeout)
	}

	switch strings.ToLower(s.Kernel) {
	case KernelNUTS:
		if s.MaxDepth < 1 {
			return errors.Wrapf(ErrSettings, "max_depth=%d must be >= 1", s.MaxDepth)
		}
	case KernelHMC:
		if s.LeapfrogSteps < 1 {
			return errors.Wrapf(ErrSettings, "leapfrog_steps=%d must be >= 1", s.LeapfrogSteps)
		}
	default:
		return errors.Wrapf(ErrSettings, "Unknown kernel %q", s.Kernel)
	}

	return nil
}

// NewKernel returns the kernel named in the settings
func NewKernel(s Settings) (Kernel, error) {
	switch strings.ToLower(s.Kernel) {
	case KernelNUTS:
		return &NUTS{MaxDepth: s.MaxDepth, MaxDeltaH: 1000}, nil
	case KernelHMC:
		return &HMC{Steps: s.LeapfrogSteps}, nil
	}
	return nil, errors.Wrapf(ErrSettings, "Unknown kernel %q", s.Kernel)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
