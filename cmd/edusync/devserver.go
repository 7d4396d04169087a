package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edusync/edusync/internal/config"
	"github.com/edusync/edusync/internal/devserver"
)

func newDevServerCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run the in-memory reference backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.DevServer.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := devserver.New(ctx, cfg.DevServer, logger)
			if err != nil {
				return err
			}
			logger.Info("seeded admin account", "email", cfg.DevServer.AdminEmail)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides devserver.port)")
	return cmd
}
