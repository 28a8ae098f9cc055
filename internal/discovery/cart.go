package discovery

import (
	"bytes"
	"context"
	"regexp"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

var (
	keyedIDPattern = regexp.MustCompile(`"(?:productId|variantId|variant_id|product_id)"\s*:\s*(\d+)`)
	bareIDPattern  = regexp.MustCompile(`\b(\d{11,15})\b`)
)

const minKeyedIDLength = 10

// Candidate is a numeric identifier scraped from a cart or config payload.
type Candidate struct {
	ID  string
	GWP bool
}

// ExtractCandidateIDs scans raw text for variant identifiers. Keyed IDs are
// only considered when a gift-with-purchase marker is present. Results keep
// first-seen order without duplicates.
func ExtractCandidateIDs(content []byte, markers []string) []Candidate {
	seen := make(map[string]struct{})
	var out []Candidate
	add := func(id string, gwp bool) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, Candidate{ID: id, GWP: gwp})
	}

	if hasMarker(content, markers) {
		for _, m := range keyedIDPattern.FindAllSubmatch(content, -1) {
			if id := string(m[1]); len(id) >= minKeyedIDLength {
				add(id, true)
			}
		}
	}
	for _, m := range bareIDPattern.FindAllSubmatch(content, -1) {
		add(string(m[1]), false)
	}
	return out
}

func hasMarker(content []byte, markers []string) bool {
	for _, m := range markers {
		if m != "" && bytes.Contains(content, []byte(m)) {
			return true
		}
	}
	return false
}

// Cart fetches the auxiliary endpoints concurrently and probes every
// unknown identifier found in them through the single-variant lookup.
func (d *Discoverer) Cart(ctx context.Context) error {
	var g errgroup.Group
	for _, endpoint := range d.dict.CartEndpoints {
		g.Go(func() error {
			d.cartEndpoint(ctx, endpoint)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (d *Discoverer) cartEndpoint(ctx context.Context, endpoint string) {
	if err := d.proceed(ctx); err != nil {
		return
	}
	body, ok := d.client.Get(ctx, storefront.Resolve(d.base, endpoint))
	if !ok {
		return
	}
	var fresh []Candidate
	for _, c := range ExtractCandidateIDs(body, d.dict.GWPMarkers) {
		if !d.store.SeenVariant(c.ID) {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return
	}
	d.logger.Debug("cart candidates", zap.String("endpoint", endpoint), zap.Int("candidates", len(fresh)))
	_ = runBatches(ctx, d, fresh, d.limits.VariantBatch, 0, func(ctx context.Context, c Candidate) {
		strategy := StrategyCart
		if c.GWP {
			strategy = StrategyGWP
		}
		d.probeVariant(ctx, c.ID, sourceLabel(strategy, endpoint))
	})
}

func (d *Discoverer) probeVariant(ctx context.Context, id, source string) {
	if d.store.SeenVariant(id) {
		return
	}
	body, ok := d.client.Get(ctx, storefront.VariantJSURL(d.base, id))
	if !ok {
		return
	}
	v, err := storefront.DecodeVariant(body)
	if err != nil || v.Key() == "" {
		return
	}
	d.store.RecordVariant(v, storefront.Product{Title: v.ProductTitle, Handle: v.ProductHandle}, source)
}
