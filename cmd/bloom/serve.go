package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vbonduro/bloom/internal/web"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			server := web.NewServer(a.journal, a.capture, a.auth, a.registry, opts.logger)
			return server.ListenAndServe(ctx, opts.cfg.ListenAddr)
		},
	}
}
