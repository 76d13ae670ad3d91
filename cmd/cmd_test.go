package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/netsize/config"
	"github.com/CraigKelly/netsize/sampler"
	"github.com/CraigKelly/netsize/simulate"
)

func testStartup(out io.Writer) *startupParams {
	cfg := config.Default()
	cfg.Simulation.Individuals = 20
	cfg.Simulation.Subgroups = 6
	cfg.Known = 3
	cfg.Sampler.Chains = 2
	cfg.Sampler.Warmup = 60
	cfg.Sampler.Iter = 120
	cfg.Sampler.ProgressEvery = 0
	cfg.Analysis.RhatLimit = 0

	return &startupParams{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		out:    out,
	}
}

func TestWriteCounts(t *testing.T) {
	assert := assert.New(t)

	d := &simulate.Dataset{
		Y:     mat.NewDense(2, 3, []float64{0, 1, 2, 30, 4, 5}),
		Alpha: []float64{1.5, 2},
		Beta:  []float64{-1, -2, -3},
	}

	var buf bytes.Buffer
	assert.NoError(writeCounts(&buf, d))
	assert.Equal("y1,y2,y3\n0,1,2\n30,4,5\n", buf.String())

	buf.Reset()
	assert.NoError(writeTruth(&buf, d))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal("param,index,value", lines[0])
	assert.Equal("alpha,1,1.5", lines[1])
	assert.Equal("beta,3,-3", lines[5])
	assert.Len(lines, 6)
}

func TestSimulateData(t *testing.T) {
	assert := assert.New(t)

	truthFile = filepath.Join(t.TempDir(), "truth.csv")
	defer func() { truthFile = "" }()

	var buf bytes.Buffer
	require.NoError(t, simulateData(testStartup(&buf)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal("y1,y2,y3,y4,y5,y6", lines[0])
	assert.Len(lines, 21)

	truth, err := os.ReadFile(truthFile)
	require.NoError(t, err)
	// 20 alpha + 3*6 subgroup values + header
	assert.Len(strings.Split(strings.TrimSpace(string(truth)), "\n"), 39)

	// same seed, same data
	var again bytes.Buffer
	require.NoError(t, simulateData(testStartup(&again)))
	assert.Equal(buf.String(), again.String())
}

func TestRunExperimentJSON(t *testing.T) {
	assert := assert.New(t)

	jsonOutput = true
	defer func() { jsonOutput = false }()

	var buf bytes.Buffer
	require.NoError(t, runExperiment(context.Background(), testStartup(&buf)))

	var rep map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rep))
	assert.Contains(rep, "summary")
	assert.Contains(rep, "diagnostics")
	assert.Contains(rep, "scores")
	assert.Equal(6.0, rep["K"])
}

func TestRunExperimentText(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	sp := testStartup(&buf)
	sp.cfg.Sampler.Kernel = sampler.KernelHMC
	require.NoError(t, runExperiment(context.Background(), sp))
	assert.Contains(buf.String(), "Max R-hat")
	assert.Contains(buf.String(), "mu_alpha")

	sp = testStartup(&buf)
	sp.cfg.Sampler.Warmup = sp.cfg.Sampler.Iter
	assert.ErrorIs(runExperiment(context.Background(), sp), sampler.ErrSettings)
}

func TestMonitor(t *testing.T) {
	assert := assert.New(t)

	var nilMon *monitor
	nilMon.Stop()
	nilMon.Watch(&sampler.Settings{})

	m := &monitor{Addr: "127.0.0.1:0"}
	require.NoError(t, m.Start(nil))
	defer m.Stop()
	assert.Error(m.Start(nil))

	s := sampler.DefaultSettings()
	s.Warmup = 1
	var forwarded int
	s.Progress = func(chain int, iter int, st sampler.Stats) { forwarded++ }
	m.Watch(&s)

	s.Progress(0, 0, sampler.Stats{Divergent: true, StepSize: 0.5})
	s.Progress(0, 1, sampler.Stats{Divergent: true, StepSize: 0.25})
	assert.Equal(2, forwarded)
	assert.Equal(int64(2), m.Iterations.Value())
	assert.Equal(int64(1), m.Divergences.Value())
	assert.Equal(0.25, m.LastStepSize.Value())
	assert.Equal(int64(4), m.Chains.Value())

	resp, err := http.Get("http://" + m.bound + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(string(body), "netsize-progress")
	assert.Contains(string(body), "Divergences")
}
