package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TEST_BRIDGE"

func prefixEnvVar(name string) []string {
	return []string{fmt.Sprintf("%s_%s", EnvVarPrefix, name)}
}

var (
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		EnvVars: prefixEnvVar("CONFIG"),
		Usage:   "Path to a yaml config file; flags override its values",
	}
	Workspaces = &cli.StringSliceFlag{
		Name:    "workspace",
		EnvVars: prefixEnvVar("WORKSPACE"),
		Usage:   "Workspace root to discover and run tests in (repeatable)",
	}
	RunnerCommand = &cli.StringFlag{
		Name:    "runner",
		EnvVars: prefixEnvVar("RUNNER"),
		Usage:   "Command line of the external test runner (eg. 'python -m adapter')",
	}
	RunnerArgs = &cli.StringSliceFlag{
		Name:    "runner-arg",
		EnvVars: prefixEnvVar("RUNNER_ARG"),
		Usage:   "Extra argument passed to the runner on every invocation (repeatable)",
	}
	PipeDir = &cli.StringFlag{
		Name:    "pipe-dir",
		Value:   "",
		EnvVars: prefixEnvVar("PIPE_DIR"),
		Usage:   "Directory for the per-run pipe files (defaults to the system temp dir)",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: prefixEnvVar("LOGDIR"),
		Usage:   "Directory to store raw payload logs",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVar("RUN_INTERVAL"),
		Usage:   "Interval between runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Coverage = &cli.BoolFlag{
		Name:    "coverage",
		Value:   false,
		EnvVars: prefixEnvVar("COVERAGE"),
		Usage:   "Request coverage from the runner and report per-file summaries",
	}
	DiscoverOnly = &cli.BoolFlag{
		Name:    "discover-only",
		Value:   false,
		EnvVars: prefixEnvVar("DISCOVER_ONLY"),
		Usage:   "Only discover tests; do not execute them",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log.level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Log level: trace, debug, info, warn, error, crit",
	}
)

var requiredFlags = []cli.Flag{
	Workspaces,
	RunnerCommand,
}

var optionalFlags = []cli.Flag{
	ConfigFile,
	RunnerArgs,
	PipeDir,
	LogDir,
	RunInterval,
	Coverage,
	DiscoverOnly,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

// CheckRequired verifies that the required flags are set. A config file
// may supply them instead; its contents are validated when the config is
// built.
func CheckRequired(ctx *cli.Context) error {
	if ctx.IsSet(ConfigFile.Name) {
		return nil
	}
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
