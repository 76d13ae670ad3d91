package cmd

import (
	"expvar"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/CraigKelly/netsize/sampler"
)

var progressOnce sync.Once
var progressMap *expvar.Map

// progressVars is the single published expvar map; expvar names are process
// wide and may only be registered once
func progressVars() *expvar.Map {
	progressOnce.Do(func() {
		progressMap = expvar.NewMap("netsize-progress")
	})
	return progressMap
}

type monitor struct {
	Addr string

	info    *expvar.Map
	stopped chan struct{}
	server  *http.Server
	logger  *slog.Logger
	start   time.Time
	bound   string

	Chains       *expvar.Int
	Warmup       *expvar.Int
	Iter         *expvar.Int
	Iterations   *expvar.Int
	Divergences  *expvar.Int
	RunTime      *expvar.Float
	LastStepSize *expvar.Float
	MaxRhat      *expvar.Float
	MinESS       *expvar.Float
}

// Start begins the monitor
func (m *monitor) Start(logger *slog.Logger) error {
	if m.info != nil {
		return errors.Errorf("BUG: You may only start the process monitor once")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ln, err := net.Listen("tcp", m.Addr)
	if err != nil {
		return errors.Wrapf(err, "Could not start monitor on %s", m.Addr)
	}

	m.info = progressVars()
	m.bound = ln.Addr().String()
	m.logger = logger
	m.start = time.Now()
	m.stopped = make(chan struct{})

	// Help the user and redirect to the only thing currently available:
	// the handler from the expvar package
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/debug/vars", http.StatusTemporaryRedirect)
	})
	m.server = &http.Server{Handler: mux}

	m.Chains = m.newInt("Chain-Count")
	m.Warmup = m.newInt("Warmup")
	m.Iter = m.newInt("Iterations-Per-Chain")
	m.Iterations = m.newInt("Iterations")
	m.Divergences = m.newInt("Divergences")
	m.RunTime = m.newFloat("Run-Time")
	m.LastStepSize = m.newFloat("Last-Step-Size")
	m.MaxRhat = m.newFloat("Max-Rhat")
	m.MinESS = m.newFloat("Min-ESS")

	// Actual server that will close the stopped channel on exit
	go func() {
		defer close(m.stopped)
		m.server.Serve(ln)
	}()

	logger.Info("HTTP monitor available (see /debug/vars)", "addr", m.bound)
	return nil
}

func (m *monitor) newInt(name string) *expvar.Int {
	v := new(expvar.Int)
	m.info.Set(name, v)
	return v
}

func (m *monitor) newFloat(name string) *expvar.Float {
	v := new(expvar.Float)
	m.info.Set(name, v)
	return v
}

// Watch publishes the run shape and installs the progress hook
func (m *monitor) Watch(s *sampler.Settings) {
	if m == nil || m.info == nil {
		return
	}
	m.Chains.Set(int64(s.Chains))
	m.Warmup.Set(int64(s.Warmup))
	m.Iter.Set(int64(s.Iter))

	prev := s.Progress
	s.Progress = func(chain int, iter int, st sampler.Stats) {
		m.Iterations.Add(1)
		if st.Divergent && iter >= s.Warmup {
			m.Divergences.Add(1)
		}
		m.LastStepSize.Set(st.StepSize)
		m.RunTime.Set(time.Since(m.start).Seconds())
		if prev != nil {
			prev(chain, iter, st)
		}
	}
}

// Stop shuts down the HTTP server. Safe on a nil or unstarted monitor.
func (m *monitor) Stop() {
	if m == nil || m.info == nil {
		return
	}

	m.RunTime.Set(time.Since(m.start).Seconds())
	m.server.Close()

	select {
	case <-m.stopped:
		m.logger.Info("HTTP monitor stopped")
	case <-time.After(2 * time.Second):
		m.logger.Warn("HTTP monitor would NOT stop: just continuing on")
	}
}
