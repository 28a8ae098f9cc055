package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/config"
	"github.com/JakeFAU/storefront-scanner/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scan HTTP service",
		Long: `Serves the scan API. Submitted scans are queued and run by a fixed pool
of workers; their status and results are kept in memory.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	cmd.Flags().Int("workers", 1, "scans to run at once")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := root.setup(
			config.BindFlag("server.port", cmd.Flags().Lookup("port")),
			config.BindFlag("server.max_concurrent_scans", cmd.Flags().Lookup("workers")),
		)
		if err != nil {
			return err
		}
		defer syncLogger(logger)

		svc, err := buildServices(cmd.Context(), cfg, nil, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := svc.Close(); cerr != nil {
				logger.Warn("close services failed", zap.Error(cerr))
			}
		}()

		app, err := server.New(cfg, server.Deps{
			Scanner:    svc.scanner,
			Clock:      svc.clock,
			IDs:        svc.ids,
			RequestIDs: svc.ids.NewRequestID,
		}, logger)
		if err != nil {
			return err
		}
		return app.Run(cmd.Context())
	}
	return cmd
}
