package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/config"
	"github.com/JakeFAU/storefront-scanner/internal/control"
	"github.com/JakeFAU/storefront-scanner/internal/scan"
)

func newScanCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <domain-or-url>",
		Short: "Scan one storefront and print the JSON result",
		Long: `Resolves the storefront behind the given domain, runs every enabled
discovery phase and prints the result as JSON. SIGINT or SIGTERM stops the
scan and still prints the partial result; SIGUSR1 pauses and resumes it.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().Bool("resume", false, "resume from this domain's last checkpoint")
	cmd.Flags().Bool("no-sitemap", false, "skip the sitemap phase")
	cmd.Flags().Bool("no-search", false, "skip the search phase")
	cmd.Flags().Bool("no-cart", false, "skip the cart phase")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := root.setup(config.BindFlag("scan.resume", cmd.Flags().Lookup("resume")))
		if err != nil {
			return err
		}
		defer syncLogger(logger)
		applyPhaseFlags(cmd, &cfg)

		svc, err := buildServices(cmd.Context(), cfg, nil, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := svc.Close(); cerr != nil {
				logger.Warn("close services failed", zap.Error(cerr))
			}
		}()

		gate := control.NewGate()
		watchPause(cmd.Context(), gate, logger)
		return runScan(cmd, svc.scanner, args[0], gate)
	}
	return cmd
}

// applyPhaseFlags turns off the phases disabled on the command line.
func applyPhaseFlags(cmd *cobra.Command, cfg *config.Config) {
	off := func(name string) bool {
		v, err := cmd.Flags().GetBool(name)
		return err == nil && v
	}
	if off("no-sitemap") {
		cfg.Scan.Phases.Sitemap = false
	}
	if off("no-search") {
		cfg.Scan.Phases.Search = false
	}
	if off("no-cart") {
		cfg.Scan.Phases.Cart = false
	}
}

type scanRunner interface {
	Scan(ctx context.Context, target string, opts ...scan.RunOption) (*scan.Result, error)
}

func runScan(cmd *cobra.Command, scanner scanRunner, target string, gate *control.Gate) error {
	res, err := scanner.Scan(cmd.Context(), target, scan.WithGate(gate))
	if err != nil {
		if werr := writeResult(cmd.OutOrStdout(), scan.FailureResult(err)); werr != nil {
			return werr
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "scan failed: %v\n", err)
		return errScanFailed
	}
	return writeResult(cmd.OutOrStdout(), res)
}

func writeResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
