// Command fractal runs a configured reasoning agent from the terminal. The
// query subcommand answers a single query; the serve subcommand exposes the
// agent as a tool process on stdio so another agent can compose it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/fractal/config"
	"github.com/hupe1980/fractal/logging"
)

var (
	cfgPath  string
	logLevel string
)

func main() {
	root := &cobra.Command{
		Use:           "fractal",
		Short:         "fractal runs composable reasoning agents",
		Long:          "fractal builds an agent from a config file, launches its tool processes\nand either answers queries directly or serves the agent as a tool process\nfor a parent agent to compose.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to the config file (default fractal.{yaml,json,toml} in the working directory)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config file")

	root.AddCommand(newQueryCommand())
	root.AddCommand(newServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies CLI overrides.
func loadConfig() (*config.File, error) {
	f, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		f.Logging.Level = logLevel
	}
	return f, nil
}

// newCLILogger builds the logger the CLI hands to the agent. Output goes to
// stderr so serve mode keeps stdout clean for protocol frames.
func newCLILogger(f *config.File) *logging.FractalLogger {
	cfg := logging.DefaultLoggerConfig()
	cfg.Format = f.Logging.Format

	switch f.Logging.Level {
	case "debug":
		cfg.Level = logging.LogLevelDebug
	case "warn":
		cfg.Level = logging.LogLevelWarn
	case "error":
		cfg.Level = logging.LogLevelError
	default:
		cfg.Level = logging.LogLevelInfo
	}

	cfg.CallPath = f.Agent.Name

	return logging.NewLogger(cfg)
}
