// Package server runs the scan service: the HTTP API, the job queue and the
// worker pool that executes queued scans.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/api"
	"github.com/JakeFAU/storefront-scanner/internal/clock/system"
	"github.com/JakeFAU/storefront-scanner/internal/config"
	"github.com/JakeFAU/storefront-scanner/internal/dispatcher"
	"github.com/JakeFAU/storefront-scanner/internal/jobs"
	queueMemory "github.com/JakeFAU/storefront-scanner/internal/queue/memory"
	memoryStorage "github.com/JakeFAU/storefront-scanner/internal/storage/memory"
	"github.com/JakeFAU/storefront-scanner/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Deps are the pieces built outside the service.
type Deps struct {
	Scanner worker.Scanner
	Clock   jobs.Clock
	IDs     jobs.IDGenerator
	// RequestIDs generates X-Request-ID values; nil keeps the API default.
	RequestIDs func() string
}

// App contains the service's running parts.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	queue    *queueMemory.Queue
	jobs     *memoryStorage.JobStore
	controls *jobs.Controls
	dispatch *dispatcher.Dispatcher
	api      *api.Server
	draining atomic.Bool
}

// New wires the queue, job store, workers and API.
func New(cfg config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	if deps.Scanner == nil {
		return nil, errors.New("server: scanner is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("server: id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		queue:    queueMemory.NewQueue(cfg.Server.QueueDepth),
		jobs:     memoryStorage.NewJobStore(deps.Clock),
		controls: jobs.NewControls(),
	}

	workers := make([]*worker.Worker, 0, cfg.Server.MaxConcurrentScans)
	for range cfg.Server.MaxConcurrentScans {
		workers = append(workers, worker.New(a.queue, a.jobs, deps.Scanner, a.controls, logger))
	}
	a.dispatch = dispatcher.New(a.queue, workers)

	opts := []api.Option{api.WithReadiness(a.ready)}
	if deps.RequestIDs != nil {
		opts = append(opts, api.WithRequestIDs(deps.RequestIDs))
	}
	a.api = api.NewServer(a.jobs, a.dispatch, a.controls, deps.IDs, deps.Clock, cfg, logger, opts...)
	return a, nil
}

// Handler exposes the API router.
func (a *App) Handler() http.Handler {
	return a.api.Handler()
}

func (a *App) ready(context.Context) error {
	if a.draining.Load() {
		return errors.New("shutting down")
	}
	return nil
}

// Run serves HTTP until ctx is canceled or the listener fails, then drains
// running scans and closes the queue.
func (a *App) Run(ctx context.Context) error {
	addr := net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.draining.Store(true)
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()

	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before shutdown timeout")
	}
	a.logger.Info("shutdown complete")

	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
