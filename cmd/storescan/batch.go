package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/storefront-scanner/internal/config"
	"github.com/JakeFAU/storefront-scanner/internal/scan"
)

// batchEntry is one line of a batch summary.
type batchEntry struct {
	Target         string `json:"target"`
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	ScanID         string `json:"scanId,omitempty"`
	ScannedURL     string `json:"scannedUrl,omitempty"`
	FreeItemsFound int    `json:"freeItemsFound"`
	Stopped        bool   `json:"stopped,omitempty"`
	Report         string `json:"report,omitempty"`
}

// batchSummary is printed when a batch finishes.
type batchSummary struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	WithFree   int          `json:"withFreeItems"`
	Results    []batchEntry `json:"results"`
}

func newBatchCmd(root *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scan every domain listed in a file",
		Long: `Reads one domain or URL per line (blank lines and lines starting with #
are skipped) and scans them with bounded concurrency, sharing one product
cache. Prints a JSON summary to stdout and a table to stderr.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one domain per line (required)")
	cmd.Flags().Int("concurrency", 3, "scans to run at once")
	cmd.Flags().Bool("resume", false, "resume each domain from its last checkpoint")
	_ = cmd.MarkFlagRequired("file") //nolint:errcheck

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := root.setup(
			config.BindFlag("batch.concurrency", cmd.Flags().Lookup("concurrency")),
			config.BindFlag("scan.resume", cmd.Flags().Lookup("resume")),
		)
		if err != nil {
			return err
		}
		defer syncLogger(logger)

		targets, err := readTargets(file)
		if err != nil {
			return err
		}
		svc, err := buildServices(cmd.Context(), cfg, nil, logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := svc.Close(); cerr != nil {
				logger.Warn("close services failed", zap.Error(cerr))
			}
		}()

		summary := runBatch(cmd.Context(), svc.scanner, targets, cfg.Batch.Concurrency, logger)
		renderBatchTable(cmd.ErrOrStderr(), summary)
		return writeResult(cmd.OutOrStdout(), summary)
	}
	return cmd
}

func readTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer f.Close()
	return parseTargets(f)
}

func parseTargets(r io.Reader) ([]string, error) {
	var targets []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		targets = append(targets, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return targets, nil
}

// runBatch scans targets with at most concurrency scans in flight. Results
// keep the input order. Canceling ctx stops running scans and skips the rest.
func runBatch(ctx context.Context, scanner scanRunner, targets []string, concurrency int, logger *zap.Logger) batchSummary {
	if concurrency <= 0 {
		concurrency = 1
	}
	entries := make([]batchEntry, len(targets))
	var mu sync.Mutex
	done := 0

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, target := range targets {
		g.Go(func() error {
			entry := batchEntry{Target: target}
			if ctx.Err() != nil {
				entry.Error = "skipped: batch stopped"
			} else {
				res, err := scanner.Scan(ctx, target)
				if err != nil {
					res = scan.FailureResult(err)
				}
				entry.Success = res.Success
				entry.Error = res.Error
				entry.ScanID = res.ScanID
				entry.ScannedURL = res.ScannedURL
				entry.FreeItemsFound = res.FreeItemsFound
				entry.Stopped = res.Stopped
				entry.Report = res.Artifacts.Report
			}
			entries[i] = entry

			mu.Lock()
			done++
			logger.Info("batch progress",
				zap.Int("done", done),
				zap.Int("total", len(targets)),
				zap.String("target", target),
				zap.Bool("success", entry.Success),
			)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	summary := batchSummary{Total: len(entries), Results: entries}
	for _, e := range entries {
		if e.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
		if e.FreeItemsFound > 0 {
			summary.WithFree++
		}
	}
	return summary
}

func renderBatchTable(w io.Writer, s batchSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Target", "Result", "Free Items", "Scanned URL"})
	for _, e := range s.Results {
		result := "ok"
		switch {
		case !e.Success:
			result = e.Error
		case e.Stopped:
			result = "stopped"
		}
		t.AppendRow(table.Row{e.Target, result, e.FreeItemsFound, e.ScannedURL})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d scanned", s.Total),
		fmt.Sprintf("%d ok / %d failed", s.Successful, s.Failed),
		s.WithFree,
		"",
	})
	t.Render()
}
