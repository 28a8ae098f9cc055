package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/config"
	"github.com/JakeFAU/storefront-scanner/internal/logging"
)

// errScanFailed marks a command whose output already describes the failure.
var errScanFailed = errors.New("scan failed")

type rootOptions struct {
	configPath string
	logLevel   string
}

// newRootCmd creates the command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "storescan",
		Short: "Find free and lowest-priced items on storefronts.",
		Long: `storescan walks a storefront's public catalog endpoints, records every
variant it finds, and reports the lowest-priced and free items.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "minimum log level (debug, info, warn, error)")

	cmd.AddCommand(newScanCmd(opts))
	cmd.AddCommand(newBatchCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := notifyContext(context.Background())
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errScanFailed) {
			fmt.Fprintf(os.Stderr, "storescan: %v\n", err)
		}
		return 1
	}
	return 0
}

// setup loads configuration and builds the logger for a subcommand.
func (o *rootOptions) setup(bindings ...config.Option) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath, bindings...)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	level := o.logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(cfg.Logging.Development, logging.WithLevel(level))
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return cfg, logger, nil
}

func syncLogger(logger *zap.Logger) {
	// Syncing stderr fails on some platforms; nothing useful can be done.
	_ = logger.Sync() //nolint:errcheck
}
