package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CraigKelly/netsize/sampler"
	"github.com/CraigKelly/netsize/simulate"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "netsize.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	assert := assert.New(t)

	c := Default()
	assert.NoError(c.Validate())
	assert.Equal(int64(1), c.Seed)
	assert.Equal(12, c.Known)
	assert.Equal("individuals", c.Prune)
	assert.Equal(200, c.Simulation.Individuals)
	assert.Equal(32, c.Simulation.Subgroups)
	assert.Equal(sampler.KernelNUTS, c.Sampler.Kernel)
	assert.Equal("info", c.Logging.Level)
	assert.Equal(1.05, c.Analysis.RhatLimit)

	lvl, err := c.LogLevel()
	assert.NoError(err)
	assert.Equal(slog.LevelInfo, lvl)
}

func TestLoadFromFile(t *testing.T) {
	assert := assert.New(t)

	path := writeConfig(t, `
seed: 99
known: 8
prune: subgroups
simulation:
  individuals: 50
  inv_omega_high: 0.9
sampler:
  kernel: hmc
  chains: 2
  warmup: 100
  iter: 300
  timeout: 90s
analysis:
  rhat_limit: 1.1
logging:
  level: debug
`)

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.NoError(c.Validate())

	assert.Equal(int64(99), c.Seed)
	assert.Equal(8, c.Known)
	assert.Equal(50, c.Simulation.Individuals)
	assert.Equal(0.9, c.Simulation.InvOmegaHigh)
	// unset keys keep their defaults
	assert.Equal(32, c.Simulation.Subgroups)
	assert.Equal(0.1, c.Simulation.InvOmegaLow)
	assert.Equal(sampler.KernelHMC, c.Sampler.Kernel)
	assert.Equal(90*time.Second, c.Sampler.Timeout)
	assert.Equal(10, c.Sampler.MaxDepth)
	assert.Equal(1.1, c.Analysis.RhatLimit)

	lvl, err := c.LogLevel()
	assert.NoError(err)
	assert.Equal(slog.LevelDebug, lvl)

	e, err := c.Experiment()
	require.NoError(t, err)
	assert.Equal(simulate.PruneSubgroups, e.Prune)
	assert.Equal(int64(99), e.Sampler.Seed)
	assert.Equal(1.1, e.RhatLimit)
	assert.Equal(8, e.Known)
}

func TestLoadErrors(t *testing.T) {
	assert := assert.New(t)

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(err)

	_, err = LoadFromFile(writeConfig(t, "sampler: [1, 2"))
	assert.Error(err)

	_, err = LoadFromFile(writeConfig(t, "samplr:\n  chains: 2\n"))
	assert.Error(err)

	// empty file is all defaults
	c, err := LoadFromFile(writeConfig(t, ""))
	assert.NoError(err)
	assert.Equal(Default(), c)
}

func TestValidate(t *testing.T) {
	assert := assert.New(t)

	c := Default()
	c.Sampler.Warmup = c.Sampler.Iter
	assert.ErrorIs(c.Validate(), sampler.ErrSettings)
	_, err := c.Experiment()
	assert.ErrorIs(err, sampler.ErrSettings)

	c = Default()
	c.Simulation.Individuals = 0
	assert.ErrorIs(c.Validate(), simulate.ErrParams)

	c = Default()
	c.Prune = "diagonal"
	assert.ErrorIs(c.Validate(), simulate.ErrParams)

	c = Default()
	c.Known = 0
	assert.Error(c.Validate())

	c = Default()
	c.Analysis.RhatLimit = -1
	assert.Error(c.Validate())

	c = Default()
	c.Logging.Level = "chatty"
	assert.Error(c.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("NETSIZE_SEED", "1234")
	t.Setenv("NETSIZE_CHAINS", "3")
	t.Setenv("NETSIZE_KERNEL", "HMC")
	t.Setenv("NETSIZE_LOG_LEVEL", "warn")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(int64(1234), c.Seed)
	assert.Equal(3, c.Sampler.Chains)
	assert.Equal(sampler.KernelHMC, c.Sampler.Kernel)
	assert.Equal("warn", c.Logging.Level)

	// environment wins over the file
	c, err = Load(writeConfig(t, "seed: 5\n"))
	require.NoError(t, err)
	assert.Equal(int64(1234), c.Seed)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(err)
}
