package discovery

import (
	"context"

	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

// Search issues the query dictionary in small batches with a pause between
// batches and resolves every product handle the results reference.
func (d *Discoverer) Search(ctx context.Context) error {
	return runBatches(ctx, d, d.dict.SearchQueries, d.limits.SearchBatch, d.limits.SearchPause, func(ctx context.Context, query string) {
		body, ok := d.client.Get(ctx, storefront.SearchURL(d.base, query, d.limits.PageSize))
		if !ok {
			return
		}
		resp, err := storefront.DecodeSearch(body)
		if err != nil {
			return
		}
		source := sourceLabel(StrategySearch, query)
		_ = runBatches(ctx, d, resp.Handles(), d.limits.ProductBatch, 0, func(ctx context.Context, handle string) {
			d.resolveProduct(ctx, handle, source)
		})
	})
}
