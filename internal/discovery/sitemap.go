package discovery

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

// Sitemaps fetches the conventional sitemap paths in batches. Product
// entries not yet known are checked for existence before being fetched;
// missing ones are recorded as discontinued. A sitemap index is followed
// one level deep for children on the same host.
func (d *Discoverer) Sitemaps(ctx context.Context) error {
	urls := make([]string, 0, len(d.dict.SitemapPaths))
	for _, p := range d.dict.SitemapPaths {
		urls = append(urls, storefront.Resolve(d.base, p))
	}
	return runBatches(ctx, d, urls, d.limits.SitemapBatch, 0, func(ctx context.Context, u string) {
		d.sitemap(ctx, u, true)
	})
}

func (d *Discoverer) sitemap(ctx context.Context, sitemapURL string, followIndex bool) {
	body, ok := d.client.Get(ctx, sitemapURL)
	if !ok {
		return
	}
	locs, children, err := ParseSitemap(body)
	if err != nil {
		d.logger.Debug("sitemap unreadable", zap.String("url", sitemapURL), zap.Error(err))
		return
	}

	var handles []string
	for _, loc := range locs {
		if !d.store.AddSitemapURL(loc) {
			continue
		}
		if h := storefront.HandleFromURL(loc); h != "" && !d.store.SeenProduct(h) {
			handles = append(handles, h)
		}
	}
	_ = runBatches(ctx, d, handles, d.limits.ProductBatch, 0, func(ctx context.Context, handle string) {
		if d.productAvailable(ctx, handle) {
			d.resolveProduct(ctx, handle, StrategySitemap)
			return
		}
		d.store.MarkDiscontinued(handle)
	})

	if !followIndex {
		return
	}
	var nested []string
	for _, child := range children {
		if d.sameHost(child) {
			nested = append(nested, child)
		}
	}
	_ = runBatches(ctx, d, nested, d.limits.SitemapBatch, 0, func(ctx context.Context, u string) {
		d.sitemap(ctx, u, false)
	})
}

func (d *Discoverer) productAvailable(ctx context.Context, handle string) bool {
	if d.cache.Contains(d.base, handle) {
		return true
	}
	return d.client.Head(ctx, storefront.ProductPageURL(d.base, handle))
}

func (d *Discoverer) sameHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	b, err := url.Parse(d.base)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, b.Host)
}

// ParseSitemap returns the <url><loc> entries of a urlset and the
// <sitemap><loc> entries of a sitemap index.
func ParseSitemap(body []byte) (locs, children []string, err error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	for _, n := range xmlquery.Find(doc, "//url/loc") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			locs = append(locs, loc)
		}
	}
	for _, n := range xmlquery.Find(doc, "//sitemap/loc") {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			children = append(children, loc)
		}
	}
	return locs, children, nil
}
