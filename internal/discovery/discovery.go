// Package discovery implements the strategies that find products and
// variants on a storefront: sitemaps, catalog pagination, collections,
// search and cart/config scraping. Every strategy feeds the same
// classifier, which owns deduplication.
package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/storefront-scanner/internal/cache"
	"github.com/JakeFAU/storefront-scanner/internal/classifier"
	"github.com/JakeFAU/storefront-scanner/internal/control"
	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

// Client is the request surface the strategies need. Absent results are
// reported with ok == false and are treated as "no data".
type Client interface {
	Get(ctx context.Context, url string) ([]byte, bool)
	Head(ctx context.Context, url string) bool
}

// Config groups the probe dictionaries and limits.
type Config struct {
	Dict   Dictionaries
	Limits Limits
}

// Option customizes a Discoverer.
type Option func(*Discoverer)

// WithCache shares a product cache across strategies (and scans).
func WithCache(c *cache.ProductCache) Option {
	return func(d *Discoverer) { d.cache = c }
}

// WithGate makes every loop iteration wait while the gate is paused.
func WithGate(g *control.Gate) Option {
	return func(d *Discoverer) { d.gate = g }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Discoverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// Discoverer runs strategies against one resolved base URL.
type Discoverer struct {
	base   string
	client Client
	store  *classifier.Store
	cache  *cache.ProductCache
	gate   *control.Gate
	dict   Dictionaries
	limits Limits
	logger *zap.Logger
}

// New returns a Discoverer for base.
func New(base string, client Client, store *classifier.Store, cfg Config, opts ...Option) *Discoverer {
	d := &Discoverer{
		base:   base,
		client: client,
		store:  store,
		dict:   cfg.Dict,
		limits: cfg.Limits.withDefaults(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// proceed blocks while paused and reports cancellation.
func (d *Discoverer) proceed(ctx context.Context) error {
	if d.gate != nil {
		return d.gate.Wait(ctx)
	}
	return ctx.Err()
}

// runBatches calls fn for items in fixed-size concurrent batches, waiting
// for each batch to settle before starting the next. pause is slept
// between batches.
func runBatches[T any](ctx context.Context, d *Discoverer, items []T, size int, pause time.Duration, fn func(context.Context, T)) error {
	if size <= 0 {
		size = 1
	}
	for start := 0; start < len(items); start += size {
		if err := d.proceed(ctx); err != nil {
			return err
		}
		end := min(start+size, len(items))
		var g errgroup.Group
		for _, item := range items[start:end] {
			g.Go(func() error {
				fn(ctx, item)
				return nil
			})
		}
		_ = g.Wait()
		if pause > 0 && end < len(items) {
			if err := control.Sleep(ctx, pause); err != nil {
				return err
			}
		}
	}
	return ctx.Err()
}

// claim records every variant of p the first time its handle is seen and
// caches it. Products without a handle have their variants recorded
// directly.
func (d *Discoverer) claim(p storefront.Product, source string) bool {
	if p.Handle == "" {
		for _, v := range p.Variants {
			d.store.RecordVariant(v, p, source)
		}
		return false
	}
	if !d.store.ClaimProduct(p.Handle) {
		return false
	}
	d.cache.Add(d.base, p)
	for _, v := range p.Variants {
		d.store.RecordVariant(v, p, source)
	}
	return true
}

// processPage claims a page of products and returns how many were new.
func (d *Discoverer) processPage(products []storefront.Product, source string) int {
	fresh := 0
	for _, p := range products {
		if d.claim(p, source) {
			fresh++
		}
	}
	return fresh
}

// walkPages requests pages 1..maxPages and stops after maxEmpty
// consecutive pages that are absent, malformed, empty or contain no new
// products. It returns the number of pages requested.
func (d *Discoverer) walkPages(ctx context.Context, urlFor func(page int) string, maxPages, maxEmpty int, source string) (int, error) {
	empty := 0
	requested := 0
	for page := 1; page <= maxPages && empty < maxEmpty; page++ {
		if err := d.proceed(ctx); err != nil {
			return requested, err
		}
		requested++
		body, ok := d.client.Get(ctx, urlFor(page))
		if !ok {
			empty++
			continue
		}
		listing, err := storefront.DecodeProductsPage(body)
		if err != nil || len(listing.Products) == 0 {
			empty++
			continue
		}
		if d.processPage(listing.Products, sourceLabel(source, "page", page)) == 0 {
			empty++
		} else {
			empty = 0
		}
	}
	return requested, ctx.Err()
}

// resolveProduct records a product known only by handle, from the cache
// when possible.
func (d *Discoverer) resolveProduct(ctx context.Context, handle, source string) {
	if handle == "" || d.store.SeenProduct(handle) {
		return
	}
	if p, ok := d.cache.Get(d.base, handle); ok {
		d.claim(p, source+" (cached)")
		return
	}
	body, ok := d.client.Get(ctx, storefront.ProductJSURL(d.base, handle))
	if !ok {
		return
	}
	p, err := storefront.DecodeProduct(body)
	if err != nil || len(p.Variants) == 0 {
		return
	}
	if p.Handle == "" {
		p.Handle = handle
	}
	d.claim(p, source)
}
