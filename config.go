package bridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/testexplorer/bridge/flags"
)

// Config holds the application configuration
type Config struct {
	Workspaces    []string      // Workspace roots, one resolver each
	RunnerCommand []string      // Runner argv
	RunnerArgs    []string      // Extra args appended to every invocation
	PipeDir       string        // Directory for per-run pipe files
	LogDir        string        // Directory for raw payload logs
	RunInterval   time.Duration // Interval between runs
	RunOnce       bool          // Exit after one pass
	Coverage      bool          // Request coverage from the runner
	DiscoverOnly  bool          // Skip execution after discovery
	Log           log.Logger
}

// fileConfig is the yaml config file schema. Every field is optional;
// flags set on the command line take precedence.
type fileConfig struct {
	Workspaces   []string `yaml:"workspaces"`
	Runner       string   `yaml:"runner"`
	RunnerArgs   []string `yaml:"runner_args"`
	PipeDir      string   `yaml:"pipe_dir"`
	LogDir       string   `yaml:"log_dir"`
	RunInterval  string   `yaml:"run_interval"`
	Coverage     bool     `yaml:"coverage"`
	DiscoverOnly bool     `yaml:"discover_only"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	return &cfg, nil
}

// NewConfig creates a new Config from cli context, merging in the yaml
// config file when one is given. Explicit flags win over file values.
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	file := &fileConfig{}
	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		loaded, err := loadFileConfig(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	workspaces := ctx.StringSlice(flags.Workspaces.Name)
	if len(workspaces) == 0 {
		workspaces = file.Workspaces
	}
	if len(workspaces) == 0 {
		return nil, errors.New("at least one workspace root is required")
	}
	absWorkspaces := make([]string, 0, len(workspaces))
	for _, workspace := range workspaces {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for workspace '%s': %w", workspace, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("workspace root '%s' is not accessible: %w", abs, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("workspace root '%s' is not a directory", abs)
		}
		absWorkspaces = append(absWorkspaces, abs)
	}

	runnerLine := ctx.String(flags.RunnerCommand.Name)
	if runnerLine == "" {
		runnerLine = file.Runner
	}
	command := strings.Fields(runnerLine)
	if len(command) == 0 {
		return nil, errors.New("runner command cannot be empty")
	}

	runnerArgs := ctx.StringSlice(flags.RunnerArgs.Name)
	if len(runnerArgs) == 0 {
		runnerArgs = file.RunnerArgs
	}

	pipeDir := ctx.String(flags.PipeDir.Name)
	if pipeDir == "" {
		pipeDir = file.PipeDir
	}
	if pipeDir == "" {
		pipeDir = os.TempDir()
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if !ctx.IsSet(flags.RunInterval.Name) && file.RunInterval != "" {
		parsed, err := time.ParseDuration(file.RunInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid run_interval in config file: %w", err)
		}
		runInterval = parsed
	}
	runOnce := runInterval == 0

	logDirValue := ctx.String(flags.LogDir.Name)
	if !ctx.IsSet(flags.LogDir.Name) && file.LogDir != "" {
		logDirValue = file.LogDir
	}
	logDir, err := filepath.Abs(logDirValue)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory: %w", err)
	}

	return &Config{
		Workspaces:    absWorkspaces,
		RunnerCommand: command,
		RunnerArgs:    runnerArgs,
		PipeDir:       pipeDir,
		LogDir:        logDir,
		RunInterval:   runInterval,
		RunOnce:       runOnce,
		Coverage:      ctx.Bool(flags.Coverage.Name) || file.Coverage,
		DiscoverOnly:  ctx.Bool(flags.DiscoverOnly.Name) || file.DiscoverOnly,
		Log:           logger,
	}, nil
}
