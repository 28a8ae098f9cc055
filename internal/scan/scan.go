// Package scan runs one storefront scan end to end: base URL resolution,
// the discovery phases in order, then final persistence.
package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/cache"
	"github.com/JakeFAU/storefront-scanner/internal/checkpoint"
	"github.com/JakeFAU/storefront-scanner/internal/classifier"
	"github.com/JakeFAU/storefront-scanner/internal/control"
	"github.com/JakeFAU/storefront-scanner/internal/discovery"
	"github.com/JakeFAU/storefront-scanner/internal/metrics"
	"github.com/JakeFAU/storefront-scanner/internal/policy/ratelimit"
	"github.com/JakeFAU/storefront-scanner/internal/publisher"
	"github.com/JakeFAU/storefront-scanner/internal/report"
	"github.com/JakeFAU/storefront-scanner/internal/scheduler"
	"github.com/JakeFAU/storefront-scanner/internal/storage"
	"github.com/JakeFAU/storefront-scanner/internal/storefront"
	"github.com/JakeFAU/storefront-scanner/internal/tracking"
)

// Phases toggles individual discovery phases.
type Phases struct {
	Sitemap     bool `mapstructure:"sitemap"`
	Catalog     bool `mapstructure:"catalog"`
	Collections bool `mapstructure:"collections"`
	Search      bool `mapstructure:"search"`
	Cart        bool `mapstructure:"cart"`
}

// AllPhases enables every phase.
func AllPhases() Phases {
	return Phases{Sitemap: true, Catalog: true, Collections: true, Search: true, Cart: true}
}

// Config controls a Scanner.
type Config struct {
	Scheme         string
	Prefixes       []string
	Phases         Phases
	Resume         bool
	Scheduler      scheduler.Config
	Classify       classifier.Config
	Discovery      discovery.Config
	ReportDir      string
	NotifyTopic    string
	PersistTimeout time.Duration
}

// DefaultPrefixes are the hostname prefixes tried, in order, when resolving
// a base URL.
func DefaultPrefixes() []string {
	return []string{"", "www.", "shop.", "secure.", "store.", "checkout.", "us.", "account.", "checkout-us.", "shopify."}
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Scheme:   "https",
		Prefixes: DefaultPrefixes(),
		Phases:   AllPhases(),
		Scheduler: scheduler.Config{
			MaxConcurrent:       35,
			MaxRateLimitRetries: 10,
			Pacing:              ratelimit.DefaultConfig(),
		},
		Classify:       classifier.DefaultConfig(),
		Discovery:      discovery.Config{Dict: discovery.DefaultDictionaries(), Limits: discovery.DefaultLimits()},
		ReportDir:      "reports",
		PersistTimeout: 30 * time.Second,
	}
}

// Clock is the time source for timestamps and durations.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan IDs.
type IDGenerator interface {
	NewID() (string, error)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Option customizes a Scanner.
type Option func(*Scanner)

// WithArtifactStore sets where checkpoints and reports are written.
func WithArtifactStore(s storage.ArtifactStore) Option {
	return func(sc *Scanner) { sc.artifacts = s }
}

// WithTracker sets the historical counters store.
func WithTracker(t tracking.Tracker) Option {
	return func(sc *Scanner) { sc.tracker = t }
}

// WithPublisher sets the notification sink.
func WithPublisher(p publisher.Publisher) Option {
	return func(sc *Scanner) { sc.publisher = p }
}

// WithCache shares a product cache across scans.
func WithCache(c *cache.ProductCache) Option {
	return func(sc *Scanner) { sc.cache = c }
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(sc *Scanner) { sc.clock = c }
}

// WithIDGenerator overrides scan ID generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(sc *Scanner) { sc.ids = g }
}

// Scanner runs scans. One Scanner may run many scans concurrently; each
// scan owns its own state.
type Scanner struct {
	cfg       Config
	doer      scheduler.Doer
	logger    *zap.Logger
	artifacts storage.ArtifactStore
	tracker   tracking.Tracker
	publisher publisher.Publisher
	cache     *cache.ProductCache
	clock     Clock
	ids       IDGenerator
}

// New builds a Scanner that issues requests through doer.
func New(cfg Config, doer scheduler.Doer, logger *zap.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if len(cfg.Prefixes) == 0 {
		cfg.Prefixes = DefaultPrefixes()
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 30 * time.Second
	}
	s := &Scanner{
		cfg:       cfg,
		doer:      doer,
		logger:    logger.Named("scan"),
		artifacts: storage.NopStore{},
		tracker:   tracking.Nop{},
		publisher: publisher.Nop{},
		clock:     wallClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOption customizes a single scan.
type RunOption func(*runOptions)

type runOptions struct {
	gate   *control.Gate
	scanID string
}

// WithGate lets the caller pause and resume the scan.
func WithGate(g *control.Gate) RunOption {
	return func(o *runOptions) { o.gate = g }
}

// WithScanID fixes the scan ID instead of generating one.
func WithScanID(id string) RunOption {
	return func(o *runOptions) { o.scanID = id }
}

// run is the per-scan state.
type run struct {
	*Scanner
	id      string
	domain  string
	base    string
	logger  *zap.Logger
	store   *classifier.Store
	ckpt    *checkpoint.Manager
	started time.Time

	mu       sync.Mutex
	warnings []string
}

func (r *run) warn(msg string, err error) {
	r.logger.Warn(msg, zap.Error(err))
	r.mu.Lock()
	r.warnings = append(r.warnings, fmt.Sprintf("%s: %v", msg, err))
	r.mu.Unlock()
}

// Scan resolves target to a working base URL and runs every enabled
// discovery phase against it. It returns ErrInvalidDomain or
// ErrNoStorefront (wrapped) when no scan could start, and the context error
// when canceled before a base URL was found. Cancellation after that point
// yields a partial Result with Stopped set.
func (s *Scanner) Scan(ctx context.Context, target string, opts ...RunOption) (*Result, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	domain, err := storefront.NormalizeDomain(target)
	if err != nil {
		metrics.ObserveScan("invalid")
		return nil, fmt.Errorf("scan %q: %w", target, err)
	}

	id := ro.scanID
	if id == "" && s.ids != nil {
		if id, err = s.ids.NewID(); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
	}
	logger := s.logger.With(zap.String("domain", domain), zap.String("scan_id", id))

	metrics.IncActiveScans()
	defer metrics.DecActiveScans()

	gate := ro.gate
	if gate == nil {
		gate = control.NewGate()
	}
	sched := scheduler.New(s.doer, s.cfg.Scheduler, gate, logger.Named("scheduler"))
	schedCtx, stopSched := context.WithCancel(ctx)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(schedCtx)
	}()
	stopScheduler := func() {
		stopSched()
		<-schedDone
	}

	started := s.clock.Now()
	base, err := s.resolve(ctx, sched, domain, logger)
	if err != nil {
		stopScheduler()
		metrics.ObserveScan("failed")
		return nil, fmt.Errorf("scan %s: %w", domain, err)
	}
	logger.Info("storefront resolved", zap.String("base_url", base))

	r := &run{
		Scanner: s,
		id:      id,
		domain:  domain,
		base:    base,
		logger:  logger,
		started: started,
	}
	r.ckpt = checkpoint.New(s.artifacts, domain, base, s.clock, logger.Named("checkpoint"))
	r.store = classifier.New(base, s.cfg.Classify,
		classifier.WithClock(s.clock),
		classifier.WithLogger(logger.Named("classifier")),
		classifier.WithCheckpointHook(func(snap classifier.Snapshot) { r.checkpoint(ctx, snap) }),
		classifier.WithFirstFreeHook(func(it classifier.Item) { r.notifyFree(ctx, it) }),
	)

	if s.cfg.Resume {
		r.resume(ctx)
	}

	d := discovery.New(base, sched, r.store, s.cfg.Discovery,
		discovery.WithCache(s.cache),
		discovery.WithGate(gate),
		discovery.WithLogger(logger.Named("discovery")),
	)
	r.discover(ctx, d)

	stopped := ctx.Err() != nil
	finished := s.clock.Now()
	stopScheduler()
	st := sched.Stats()

	result := &Result{
		Success:           true,
		ScanID:            id,
		Domain:            domain,
		ScannedURL:        base,
		FreeItemsFound:    len(r.store.FreeItems()),
		FreeItems:         r.store.FreeItems(),
		LowestPricedItems: r.store.LowestPriced(),
		Stats: report.Stats{
			Counters:       r.store.Counters(),
			RequestsMade:   st.Requests,
			FailedRequests: st.Failed,
			RateLimitHits:  st.RateLimited,
		},
		Stopped:         stopped,
		DurationSeconds: finished.Sub(started).Seconds(),
	}
	if result.FreeItems == nil {
		result.FreeItems = []classifier.Item{}
	}
	if result.LowestPricedItems == nil {
		result.LowestPricedItems = []classifier.Item{}
	}

	result.Artifacts = r.persist(ctx, result, finished)

	r.mu.Lock()
	result.Warnings = append([]string(nil), r.warnings...)
	r.mu.Unlock()

	status := "succeeded"
	if stopped {
		status = "stopped"
	}
	metrics.ObserveScan(status)
	logger.Info("scan finished",
		zap.String("status", status),
		zap.Int("variants", result.Stats.VariantsProcessed),
		zap.Int("free_items", result.FreeItemsFound),
		zap.Int64("requests", result.Stats.RequestsMade),
		zap.Float64("duration_seconds", result.DurationSeconds),
	)
	return result, nil
}

// resolve tries each prefix in order and returns the first base URL whose
// catalog probe answers with a products listing.
func (s *Scanner) resolve(ctx context.Context, sched *scheduler.Scheduler, domain string, logger *zap.Logger) (string, error) {
	for _, prefix := range s.cfg.Prefixes {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		base := fmt.Sprintf("%s://%s%s", s.cfg.Scheme, prefix, domain)
		body, ok := sched.Get(ctx, storefront.ProbeURL(base))
		if ok && storefront.IsCatalog(body) {
			return base, nil
		}
		logger.Debug("prefix rejected", zap.String("base_url", base))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", ErrNoStorefront
}

type phase struct {
	name    string
	enabled bool
	run     func(context.Context) error
}

// discover runs the phases one after another so later phases reuse what
// earlier ones cached.
func (r *run) discover(ctx context.Context, d *discovery.Discoverer) {
	phases := []phase{
		{"sitemap", r.cfg.Phases.Sitemap, d.Sitemaps},
		{"catalog", r.cfg.Phases.Catalog, d.Catalog},
		{"collections", r.cfg.Phases.Collections, d.Collections},
		{"search", r.cfg.Phases.Search, d.Search},
		{"cart", r.cfg.Phases.Cart, d.Cart},
	}
	for _, p := range phases {
		if !p.enabled {
			continue
		}
		if ctx.Err() != nil {
			r.logger.Info("scan stopped", zap.String("before_phase", p.name))
			return
		}
		begin := time.Now()
		r.logger.Info("phase started", zap.String("phase", p.name))
		err := p.run(ctx)
		c := r.store.Counters()
		r.logger.Info("phase finished",
			zap.String("phase", p.name),
			zap.Duration("elapsed", time.Since(begin)),
			zap.Int("products", c.ProductsFound),
			zap.Int("variants", c.VariantsProcessed),
			zap.Int("free_items", c.FreeItemsFound),
			zap.Error(err),
		)
	}
}

func (r *run) resume(ctx context.Context) {
	snap, ok, err := r.ckpt.Load(ctx)
	if err != nil {
		r.warn("checkpoint load failed", err)
		return
	}
	if !ok {
		return
	}
	r.store.Restore(snap)
	r.logger.Info("resumed from checkpoint", zap.Int("variants", snap.Counters.VariantsProcessed))
}

// checkpoint saves periodic progress. It outlives cancellation so the last
// batch before a stop is still written.
func (r *run) checkpoint(ctx context.Context, snap classifier.Snapshot) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.PersistTimeout)
	defer cancel()
	if _, err := r.ckpt.Save(pctx, snap); err != nil {
		r.warn("checkpoint save failed", err)
	}
	r.logger.Info("progress",
		zap.Int("variants", snap.Counters.VariantsProcessed),
		zap.Int("free_items", snap.Counters.FreeItemsFound),
		zap.Int("lowest_priced", len(snap.LowestPriced)),
	)
}

func (r *run) notifyFree(ctx context.Context, it classifier.Item) {
	if r.cfg.NotifyTopic == "" {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.PersistTimeout)
	defer cancel()
	_, err := r.publisher.Publish(pctx, r.cfg.NotifyTopic, publisher.Notification{
		Event:          publisher.EventFreeItemFound,
		ScanID:         r.id,
		Domain:         r.domain,
		ScannedURL:     r.base,
		At:             it.FoundAt,
		FreeItemsFound: 1,
		Title:          it.Title,
		Price:          it.Price,
		CartURL:        it.CartURL,
	})
	if err != nil {
		r.warn("free item notification failed", err)
	}
}

// persist writes the final checkpoint, the report artifacts and the
// tracking update, then publishes completion. Failures become warnings.
func (r *run) persist(ctx context.Context, res *Result, finished time.Time) report.Artifacts {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.PersistTimeout)
	defer cancel()

	uri, err := r.ckpt.Save(pctx, r.store.Snapshot())
	if err != nil {
		r.warn("final checkpoint failed", err)
	}

	writer := report.NewWriter(r.artifacts, r.cfg.ReportDir, r.logger.Named("report"))
	arts, err := writer.Write(pctx, report.Summary{
		ScanID:     r.id,
		Domain:     r.domain,
		BaseURL:    r.base,
		StartedAt:  r.started,
		FinishedAt: finished,
		Stopped:    res.Stopped,
		Lowest:     res.LowestPricedItems,
		Free:       res.FreeItems,
		Stats:      res.Stats,
	})
	if err != nil {
		r.warn("report write failed", err)
	}
	arts.Checkpoint = uri

	if rec, err := r.tracker.Update(pctx, r.domain, res.FreeItemsFound > 0, finished); err != nil {
		r.warn("tracking update failed", err)
	} else {
		r.logger.Debug("tracking updated", zap.Int("total_scans", rec.TotalScans), zap.String("success_rate", rec.FormatRate()))
	}

	if r.cfg.NotifyTopic != "" {
		var uris []string
		for _, u := range []string{arts.Report, arts.CSV, arts.XLSX} {
			if u != "" {
				uris = append(uris, u)
			}
		}
		_, err := r.publisher.Publish(pctx, r.cfg.NotifyTopic, publisher.Notification{
			Event:          publisher.EventScanCompleted,
			ScanID:         r.id,
			Domain:         r.domain,
			ScannedURL:     r.base,
			At:             finished,
			FreeItemsFound: res.FreeItemsFound,
			Stopped:        res.Stopped,
			Artifacts:      uris,
		})
		if err != nil {
			r.warn("completion notification failed", err)
		}
	}
	return arts
}
