// Package api exposes the HTTP interface for background scans.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/config"
	"github.com/JakeFAU/storefront-scanner/internal/jobs"
	"github.com/JakeFAU/storefront-scanner/internal/metrics"
	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

const enqueueTimeout = 5 * time.Second

// Enqueuer accepts jobs for background execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, item jobs.QueueItem) error
}

// Server wires HTTP handlers to the job store, the queue and the running
// job controls.
type Server struct {
	router   chi.Router
	store    jobs.Store
	queue    Enqueuer
	controls *jobs.Controls
	ids      jobs.IDGenerator
	clock    jobs.Clock
	cfg      config.Config
	logger   *zap.Logger
	ready    func(context.Context) error
	reqIDs   func() string
}

// Option customizes a Server.
type Option func(*Server)

// WithReadiness sets the check behind /readyz.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// WithRequestIDs sets the generator for X-Request-ID values.
func WithRequestIDs(newID func() string) Option {
	return func(s *Server) { s.reqIDs = newID }
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store jobs.Store,
	queue Enqueuer,
	controls *jobs.Controls,
	ids jobs.IDGenerator,
	clock jobs.Clock,
	cfg config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if controls == nil {
		controls = jobs.NewControls()
	}
	s := &Server{
		store:    store,
		queue:    queue,
		controls: controls,
		ids:      ids,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		ready:    func(context.Context) error { return nil },
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics.Init()

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(s.reqIDs))
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/scans", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/", s.submitScan)
		r.Route("/{scan_id}", func(r chi.Router) {
			r.Get("/", s.getScan)
			r.Post("/cancel", s.cancelScan)
			r.Post("/pause", s.pauseScan)
			r.Post("/resume", s.resumeScan)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	URL string `json:"url"`
}

type scanResponse struct {
	ScanID string      `json:"scan_id"`
	Status jobs.Status `json:"status"`
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target := strings.TrimSpace(req.URL)
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if limit := s.cfg.Server.MaxURLLength; limit > 0 && len(target) > limit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("url must be at most %d characters", limit))
		return
	}
	if _, err := storefront.NormalizeDomain(target); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := s.enqueueScan(r.Context(), target)
	if err != nil {
		s.logger.Error("enqueue scan failed", zap.String("target", target), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, jobs.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, scanResponse{ScanID: jobID, Status: jobs.StatusQueued})
}

func (s *Server) enqueueScan(ctx context.Context, target string) (string, error) {
	jobID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate scan id: %w", err)
	}
	now := s.clock.Now()
	job := jobs.Job{
		ID:        jobID,
		Target:    target,
		Status:    jobs.StatusQueued,
		Submitted: now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := jobs.QueueItem{JobID: jobID, Target: target, Submitted: now.Unix()}
	if err := s.queue.Enqueue(queueCtx, item); err != nil {
		if uerr := s.store.UpdateJobStatus(context.WithoutCancel(ctx), jobID, jobs.StatusFailed, "not queued"); uerr != nil {
			s.logger.Warn("mark unqueued job failed", zap.String("scan_id", jobID), zap.Error(uerr))
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "scan_id")
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) cancelScan(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "scan_id")
	if s.controls.Cancel(jobID) {
		// The worker records the final status along with the partial result.
		writeJSON(w, http.StatusAccepted, map[string]string{"scan_id": jobID, "status": "canceling"})
		return
	}
	if err := s.store.UpdateJobStatus(r.Context(), jobID, jobs.StatusCanceled, "canceled before start"); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{ScanID: jobID, Status: jobs.StatusCanceled})
}

func (s *Server) pauseScan(w http.ResponseWriter, r *http.Request) {
	s.steer(w, r, s.controls.Pause, jobs.StatusPaused)
}

func (s *Server) resumeScan(w http.ResponseWriter, r *http.Request) {
	s.steer(w, r, s.controls.Resume, jobs.StatusRunning)
}

// steer applies a pause or resume to a running job and mirrors it in the
// store.
func (s *Server) steer(w http.ResponseWriter, r *http.Request, apply func(string) bool, status jobs.Status) {
	jobID := chi.URLParam(r, "scan_id")
	if !apply(jobID) {
		if _, err := s.store.GetJob(r.Context(), jobID); err != nil {
			s.writeStoreError(w, err)
			return
		}
		writeError(w, http.StatusConflict, "scan is not running")
		return
	}
	if err := s.store.UpdateJobStatus(r.Context(), jobID, status, ""); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{ScanID: jobID, Status: status})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "scan not found")
	case errors.Is(err, jobs.ErrFinished):
		writeError(w, http.StatusConflict, "scan already finished")
	default:
		s.logger.Error("job store failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "job store failure")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
