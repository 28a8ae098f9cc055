// Package scheduler executes outbound storefront requests under a global
// in-flight ceiling with adaptive pacing. Failures never surface as errors:
// callers receive an absent result and treat it as "no data".
package scheduler

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/control"
	"github.com/JakeFAU/storefront-scanner/internal/metrics"
	"github.com/JakeFAU/storefront-scanner/internal/policy/ratelimit"
)

// Request describes one outbound call.
type Request struct {
	Method string
	URL    string
}

// Response is the raw result of a completed call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Doer performs a single HTTP exchange. Implementations return an error
// only for transport failures; HTTP error statuses come back as responses.
type Doer interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// Config bounds scheduler behavior.
type Config struct {
	// MaxConcurrent caps in-flight requests across every caller.
	MaxConcurrent int
	// MaxRateLimitRetries caps requeues of a single request after 429
	// responses. Zero means unlimited.
	MaxRateLimitRetries int
	Pacing              ratelimit.Config
}

// Stats is a point-in-time view of scheduler counters.
type Stats struct {
	Requests    int64         `json:"requestsMade"`
	Succeeded   int64         `json:"succeededRequests"`
	Failed      int64         `json:"failedRequests"`
	RateLimited int64         `json:"rateLimitHits"`
	Active      int           `json:"-"`
	PeakActive  int           `json:"peakActive"`
	Delay       time.Duration `json:"-"`
	SuccessRate float64       `json:"successRate"`
}

type result struct {
	resp Response
	ok   bool
}

type job struct {
	ctx     context.Context
	req     Request
	retries int
	done    chan result
}

func (j *job) resolve(r result) {
	j.done <- r
}

// Scheduler owns the pending queue and the in-flight count. Run must be
// active for submitted requests to make progress.
type Scheduler struct {
	doer   Doer
	cfg    Config
	logger *zap.Logger
	pacer  *ratelimit.Adaptive
	gate   *control.Gate

	mu         sync.Mutex
	pending    []*job
	active     int
	peakActive int
	closed     bool
	wake       chan struct{}

	requests    atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	rateLimited atomic.Int64
}

// New builds a Scheduler. A nil gate means the scheduler is never paused.
func New(doer Doer, cfg Config, gate *control.Gate, logger *zap.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if gate == nil {
		gate = control.NewGate()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		doer:   doer,
		cfg:    cfg,
		logger: logger,
		pacer:  ratelimit.NewAdaptive(cfg.Pacing),
		gate:   gate,
		wake:   make(chan struct{}, 1),
	}
}

// Run admits queued requests until ctx ends, then resolves everything still
// pending as absent. In-flight requests finish on their own.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.shutdown()
	for {
		j, err := s.next(ctx)
		if err != nil {
			return
		}
		if err := s.pacer.Wait(ctx); err != nil {
			s.release()
			j.resolve(result{})
			return
		}
		go s.execute(ctx, j)
	}
}

// Get fetches url and returns the body of a 2xx response.
func (s *Scheduler) Get(ctx context.Context, url string) ([]byte, bool) {
	resp, ok := s.Submit(ctx, Request{Method: http.MethodGet, URL: url})
	if !ok {
		return nil, false
	}
	return resp.Body, true
}

// Head reports whether a HEAD request to url answered 200.
func (s *Scheduler) Head(ctx context.Context, url string) bool {
	resp, ok := s.Submit(ctx, Request{Method: http.MethodHead, URL: url})
	return ok && resp.StatusCode == http.StatusOK
}

// Submit queues req and waits for its outcome. ok is false for transport
// failures, non-2xx statuses, exhausted 429 retries and cancellation.
func (s *Scheduler) Submit(ctx context.Context, req Request) (Response, bool) {
	if ctx.Err() != nil {
		return Response{}, false
	}
	j := &job{ctx: ctx, req: req, done: make(chan result, 1)}
	s.push(j, false)
	select {
	case <-ctx.Done():
		return Response{}, false
	case r := <-j.done:
		return r.resp, r.ok
	}
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	active, peak := s.active, s.peakActive
	s.mu.Unlock()
	return Stats{
		Requests:    s.requests.Load(),
		Succeeded:   s.succeeded.Load(),
		Failed:      s.failed.Load(),
		RateLimited: s.rateLimited.Load(),
		Active:      active,
		PeakActive:  peak,
		Delay:       s.pacer.Delay(),
		SuccessRate: s.pacer.SuccessRate(),
	}
}

// Gate exposes the pause gate shared with discovery strategies.
func (s *Scheduler) Gate() *control.Gate {
	return s.gate
}

func (s *Scheduler) next(ctx context.Context) (*job, error) {
	for {
		if err := s.gate.Wait(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		if len(s.pending) > 0 && s.active < s.cfg.MaxConcurrent {
			j := s.pending[0]
			s.pending[0] = nil
			s.pending = s.pending[1:]
			s.active++
			if s.active > s.peakActive {
				s.peakActive = s.active
			}
			s.mu.Unlock()
			if j.ctx.Err() != nil {
				s.release()
				j.resolve(result{})
				continue
			}
			return j, nil
		}
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.wake:
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) {
	metrics.AddInflight(1)
	resp, err := s.doer.Do(j.ctx, j.req)
	s.requests.Add(1)
	metrics.AddInflight(-1)

	switch {
	case err != nil:
		s.failed.Add(1)
		s.pacer.RecordFailure()
		s.release()
		metrics.ObserveRequest(metrics.OutcomeNetworkErr)
		s.logger.Debug("request failed", zap.String("url", j.req.URL), zap.Error(err))
		j.resolve(result{})
	case resp.StatusCode == http.StatusTooManyRequests:
		s.rateLimited.Add(1)
		delay := s.pacer.RecordRateLimited()
		s.release()
		metrics.ObserveRequest(metrics.OutcomeRateLimited)
		if s.cfg.MaxRateLimitRetries > 0 && j.retries >= s.cfg.MaxRateLimitRetries {
			s.logger.Debug("rate limit retries exhausted", zap.String("url", j.req.URL), zap.Int("retries", j.retries))
			j.resolve(result{})
			return
		}
		j.retries++
		s.logger.Debug("rate limited, requeueing", zap.String("url", j.req.URL), zap.Duration("delay", delay))
		go s.requeueAfter(ctx, j, delay)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		s.succeeded.Add(1)
		s.pacer.RecordSuccess()
		s.release()
		metrics.ObserveRequest(metrics.OutcomeSuccess)
		j.resolve(result{resp: resp, ok: true})
	default:
		s.failed.Add(1)
		s.pacer.RecordFailure()
		s.release()
		metrics.ObserveRequest(metrics.OutcomeHTTPError)
		s.logger.Debug("request returned error status", zap.String("url", j.req.URL), zap.Int("status", resp.StatusCode))
		j.resolve(result{resp: resp})
	}
}

func (s *Scheduler) requeueAfter(ctx context.Context, j *job, delay time.Duration) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			j.resolve(result{})
			return
		case <-j.ctx.Done():
			j.resolve(result{})
			return
		case <-timer.C:
		}
	}
	s.push(j, true)
}

func (s *Scheduler) push(j *job, front bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		j.resolve(result{})
		return
	}
	if front {
		s.pending = append([]*job{j}, s.pending...)
	} else {
		s.pending = append(s.pending, j)
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	s.signal()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.closed = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, j := range pending {
		j.resolve(result{})
	}
}
