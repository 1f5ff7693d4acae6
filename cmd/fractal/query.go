package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/fractal"
	"github.com/hupe1980/fractal/agent"
	"github.com/hupe1980/fractal/config"
	"github.com/hupe1980/fractal/logging"
	"github.com/hupe1980/fractal/provider"
)

func newQueryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query [text...]",
		Short: "Initialize the configured agent and answer one query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadConfig()
			if err != nil {
				return err
			}

			backend, err := f.NewBackend()
			if err != nil {
				return err
			}

			a, err := buildAgent(f, backend, newCLILogger(f))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.Initialize(ctx); err != nil {
				return err
			}
			defer a.Shutdown(ctx) //nolint:errcheck

			result, err := a.ProcessQuery(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Answer)
			if result.Partial() {
				fmt.Fprintln(cmd.ErrOrStderr(), "(iteration budget exceeded, answer is partial)")
			}

			return nil
		},
	}
}

// buildAgent assembles the agent the config file declares.
func buildAgent(f *config.File, backend provider.Backend, logger logging.Logger) (*agent.Agent, error) {
	cfg, err := f.RuntimeConfig()
	if err != nil {
		return nil, err
	}

	return fractal.New(f.Agent.Name, func(o *fractal.Options) {
		o.Description = f.Agent.Description
		o.Config = cfg
		o.Backend = backend
		o.Logger = logger
		o.ToolProcesses = f.ToolSpecs()
	})
}
