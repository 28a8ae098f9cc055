// Package worker runs queued scan jobs.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/control"
	"github.com/JakeFAU/storefront-scanner/internal/jobs"
	"github.com/JakeFAU/storefront-scanner/internal/scan"
)

// Scanner runs one storefront scan.
type Scanner interface {
	Scan(ctx context.Context, target string, opts ...scan.RunOption) (*scan.Result, error)
}

// Worker consumes queue items and runs their scans.
type Worker struct {
	queue    jobs.Queue
	store    jobs.Store
	scanner  Scanner
	controls *jobs.Controls
	logger   *zap.Logger
}

// New constructs a Worker. controls may be shared with the API so running
// jobs can be canceled and paused.
func New(queue jobs.Queue, store jobs.Store, scanner Scanner, controls *jobs.Controls, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if controls == nil {
		controls = jobs.NewControls()
	}
	return &Worker{
		queue:    queue,
		store:    store,
		scanner:  scanner,
		controls: controls,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the
// queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, jobs.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item jobs.QueueItem) {
	logger := w.logger.With(zap.String("job_id", item.JobID), zap.String("target", item.Target))

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	gate := control.NewGate()
	w.controls.Register(item.JobID, cancel, gate)
	defer w.controls.Remove(item.JobID)

	if err := w.store.UpdateJobStatus(ctx, item.JobID, jobs.StatusRunning, ""); err != nil {
		// Canceled while still queued.
		logger.Info("job not started", zap.Error(err))
		return
	}

	res, err := w.scanner.Scan(jobCtx, item.Target, scan.WithGate(gate), scan.WithScanID(item.JobID))
	status, errText := deriveFinalStatus(jobCtx, res, err)
	if err != nil {
		res = scan.FailureResult(err)
		logger.Warn("scan failed", zap.Error(err))
	}

	// The outcome is recorded even when the service is shutting down.
	final := context.WithoutCancel(ctx)
	if err := w.store.SetResult(final, item.JobID, res); err != nil {
		logger.Error("store result failed", zap.Error(err))
	}
	if err := w.store.UpdateJobStatus(final, item.JobID, status, errText); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
		return
	}
	logger.Info("job finished", zap.String("status", string(status)), zap.Int("free_items", res.FreeItemsFound))
}

func deriveFinalStatus(ctx context.Context, res *scan.Result, err error) (jobs.Status, string) {
	switch {
	case err != nil && ctx.Err() != nil:
		return jobs.StatusCanceled, scan.FailureResult(err).Error
	case err != nil:
		return jobs.StatusFailed, scan.FailureResult(err).Error
	case res.Stopped:
		return jobs.StatusCanceled, "stopped before completion"
	default:
		return jobs.StatusSucceeded, ""
	}
}
