// Package ratelimit implements the adaptive pacing used by the request
// scheduler: a rolling success rate steers the delay between request
// admissions, and a token bucket enforces that delay.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/storefront-scanner/internal/metrics"
)

// Config holds adaptive limiter tuning.
type Config struct {
	// BaseDelay is the floor the delay recovers toward.
	BaseDelay time.Duration
	// MaxDelay caps every increase.
	MaxDelay time.Duration
	// Smoothing is the weight of the newest sample in the success-rate EMA.
	Smoothing float64
	// RecoverAbove is the success rate above which the delay shrinks.
	RecoverAbove float64
	// BackoffBelow is the success rate below which failures grow the delay.
	BackoffBelow float64
	// RecoverFactor multiplies the delay on a healthy success.
	RecoverFactor float64
	// BackoffFactor multiplies the delay on an unhealthy failure.
	BackoffFactor float64
	// RateLimitFactor multiplies the delay on every 429.
	RateLimitFactor float64
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		BaseDelay:       15 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Smoothing:       0.05,
		RecoverAbove:    0.9,
		BackoffBelow:    0.7,
		RecoverFactor:   0.95,
		BackoffFactor:   1.2,
		RateLimitFactor: 1.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseDelay < 0 {
		c.BaseDelay = 0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.Smoothing <= 0 || c.Smoothing >= 1 {
		c.Smoothing = d.Smoothing
	}
	if c.RecoverAbove <= 0 {
		c.RecoverAbove = d.RecoverAbove
	}
	if c.BackoffBelow <= 0 {
		c.BackoffBelow = d.BackoffBelow
	}
	if c.RecoverFactor <= 0 || c.RecoverFactor >= 1 {
		c.RecoverFactor = d.RecoverFactor
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.RateLimitFactor <= 1 {
		c.RateLimitFactor = d.RateLimitFactor
	}
	return c
}

// Adaptive tracks request health and paces admissions accordingly.
type Adaptive struct {
	mu          sync.Mutex
	cfg         Config
	delay       time.Duration
	successRate float64
	limiter     *rate.Limiter
}

// NewAdaptive creates a limiter starting at the base delay with a perfect
// success rate.
func NewAdaptive(cfg Config) *Adaptive {
	cfg = cfg.withDefaults()
	a := &Adaptive{
		cfg:         cfg,
		delay:       cfg.BaseDelay,
		successRate: 1,
		limiter:     rate.NewLimiter(limitFor(cfg.BaseDelay), 1),
	}
	metrics.SetAdaptiveDelay(a.delay)
	return a
}

// Wait blocks until the next admission is allowed, respecting the context.
func (a *Adaptive) Wait(ctx context.Context) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// RecordSuccess folds a success into the rate and relaxes the delay when
// the rate is healthy.
func (a *Adaptive) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.successRate = a.successRate*(1-a.cfg.Smoothing) + a.cfg.Smoothing
	if a.successRate > a.cfg.RecoverAbove && a.delay > a.cfg.BaseDelay {
		a.setDelayLocked(max(a.cfg.BaseDelay, scale(a.delay, a.cfg.RecoverFactor)))
	}
}

// RecordFailure folds a failure into the rate and backs off once the rate
// drops below the threshold.
func (a *Adaptive) RecordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.successRate *= 1 - a.cfg.Smoothing
	if a.successRate < a.cfg.BackoffBelow {
		a.setDelayLocked(min(a.cfg.MaxDelay, scale(a.delay, a.cfg.BackoffFactor)))
	}
}

// RecordRateLimited grows the delay after a 429 and returns it; the caller
// waits this long before requeueing.
func (a *Adaptive) RecordRateLimited() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setDelayLocked(min(a.cfg.MaxDelay, scale(a.delay, a.cfg.RateLimitFactor)))
	return a.delay
}

// Delay returns the current inter-admission delay.
func (a *Adaptive) Delay() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.delay
}

// SuccessRate returns the current EMA success rate in [0, 1].
func (a *Adaptive) SuccessRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.successRate
}

func (a *Adaptive) setDelayLocked(d time.Duration) {
	if d == a.delay {
		return
	}
	a.delay = d
	a.limiter.SetLimit(limitFor(d))
	metrics.SetAdaptiveDelay(d)
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}
