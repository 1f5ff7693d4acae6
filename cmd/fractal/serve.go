package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/fractal/toolserver"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured agent as a tool process on stdio",
		Long:  "serve initializes the configured agent and answers tool-protocol frames\non stdin/stdout, so a parent agent can launch this process and call the\nwhole agent as a single tool. Logs go to stderr.",
		Args:  cobra.NoArgs,
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

			srv := toolserver.New(f.Agent.Name, func(o *toolserver.Options) {
				o.Logger = newCLILogger(f)
			})
			if err := srv.RegisterAgent(a); err != nil {
				return err
			}

			return srv.ServeStdio(ctx)
		},
	}
}
