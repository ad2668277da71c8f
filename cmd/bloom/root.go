package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vbonduro/bloom/internal/config"
	"github.com/vbonduro/bloom/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
	cleanup    func()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{cleanup: func() {}}

	cmd := &cobra.Command{
		Use:           "bloom",
		Short:         "Identify plants, flowers and insects and keep a journal of them",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.cfg = cfg
			opts.logger = logger
			opts.cleanup = cleanup
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			opts.cleanup()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./bloom.yaml)")

	cmd.AddCommand(
		newServeCmd(opts),
		newIdentifyCmd(opts),
		newJournalCmd(opts),
		newAuthCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		// Skip config loading; version must work without any setup.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bloom %s\n", version)
		},
	}
}
