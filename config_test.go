package bridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/testexplorer/bridge/flags"
)

// buildConfig runs NewConfig through a real cli app so flag parsing and
// IsSet semantics match production.
func buildConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var cfgErr error
	app := cli.NewApp()
	app.Flags = flags.Flags
	app.Action = func(ctx *cli.Context) error {
		cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
		return nil
	}
	require.NoError(t, app.Run(append([]string{"test-bridge"}, args...)))
	return cfg, cfgErr
}

func TestNewConfigFromFlags(t *testing.T) {
	ws := t.TempDir()
	cfg, err := buildConfig(t,
		"--workspace", ws,
		"--runner", "python -m adapter",
		"--run-interval", "30s",
		"--coverage")
	require.NoError(t, err)

	assert.Equal(t, []string{ws}, cfg.Workspaces)
	assert.Equal(t, []string{"python", "-m", "adapter"}, cfg.RunnerCommand)
	assert.Equal(t, 30*time.Second, cfg.RunInterval)
	assert.False(t, cfg.RunOnce)
	assert.True(t, cfg.Coverage)
	assert.Equal(t, os.TempDir(), cfg.PipeDir)
}

func TestNewConfigRunOnceWhenIntervalZero(t *testing.T) {
	ws := t.TempDir()
	cfg, err := buildConfig(t, "--workspace", ws, "--runner", "pytest-adapter")
	require.NoError(t, err)
	assert.True(t, cfg.RunOnce)
}

func TestNewConfigRejectsMissingWorkspace(t *testing.T) {
	ws := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := buildConfig(t, "--workspace", ws, "--runner", "r")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accessible")
}

func TestNewConfigRequiresFlags(t *testing.T) {
	_, err := buildConfig(t, "--runner", "r")
	require.Error(t, err)
}

func TestNewConfigFromFile(t *testing.T) {
	ws := t.TempDir()
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.yaml")
	content := `
workspaces:
  - ` + ws + `
runner: python -m adapter
runner_args:
  - "-q"
pipe_dir: /tmp/pipes
run_interval: 1m
coverage: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := buildConfig(t, "--config", path)
	require.NoError(t, err)

	assert.Equal(t, []string{ws}, cfg.Workspaces)
	assert.Equal(t, []string{"python", "-m", "adapter"}, cfg.RunnerCommand)
	assert.Equal(t, []string{"-q"}, cfg.RunnerArgs)
	assert.Equal(t, "/tmp/pipes", cfg.PipeDir)
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.True(t, cfg.Coverage)
}

func TestNewConfigFlagsOverrideFile(t *testing.T) {
	fileWs := t.TempDir()
	flagWs := t.TempDir()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := `
workspaces:
  - ` + fileWs + `
runner: from-file
run_interval: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := buildConfig(t,
		"--config", path,
		"--workspace", flagWs,
		"--runner", "from-flag",
		"--run-interval", "0s")
	require.NoError(t, err)

	assert.Equal(t, []string{flagWs}, cfg.Workspaces)
	assert.Equal(t, []string{"from-flag"}, cfg.RunnerCommand)
	assert.True(t, cfg.RunOnce, "explicit zero interval overrides the file")
}

func TestNewConfigRejectsBadInterval(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := `
workspaces:
  - ` + ws + `
runner: r
run_interval: often
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := buildConfig(t, "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_interval")
}
