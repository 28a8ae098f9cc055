package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

// Collections enumerates listed collections, probes the hidden-collection
// dictionary for unlisted ones, then paginates every known handle in
// batches.
func (d *Discoverer) Collections(ctx context.Context) error {
	if body, ok := d.client.Get(ctx, storefront.CollectionsURL(d.base)); ok {
		if listed, err := storefront.DecodeCollections(body); err == nil {
			for _, c := range listed {
				d.store.AddCollection(c.Handle, false)
			}
		}
	}

	if err := d.probeCollections(ctx); err != nil {
		return err
	}

	handles := d.store.Collections()
	d.logger.Debug("paginating collections", zap.Int("collections", len(handles)))
	return runBatches(ctx, d, handles, d.limits.CollectionBatch, 0, func(ctx context.Context, handle string) {
		_, _ = d.walkPages(ctx, func(page int) string {
			return storefront.CollectionProductsURL(d.base, handle, d.limits.PageSize, page)
		}, d.limits.MaxCollectionPages, d.limits.EmptyCollectionPages, sourceLabel(StrategyCollection, handle))
	})
}

func (d *Discoverer) probeCollections(ctx context.Context) error {
	var guesses []string
	for _, h := range d.dict.HiddenCollections {
		if !d.store.HasCollection(h) {
			guesses = append(guesses, h)
		}
	}
	return runBatches(ctx, d, guesses, d.limits.ProbeBatch, 0, func(ctx context.Context, handle string) {
		if d.collectionExists(ctx, handle) && d.store.AddCollection(handle, true) {
			d.logger.Info("hidden collection found", zap.String("collection", handle))
		}
	})
}

// collectionExists asks for a single product; a non-empty listing means
// the collection is live.
func (d *Discoverer) collectionExists(ctx context.Context, handle string) bool {
	body, ok := d.client.Get(ctx, storefront.CollectionProductsURL(d.base, handle, 1, 0))
	if !ok {
		return false
	}
	page, err := storefront.DecodeProductsPage(body)
	return err == nil && len(page.Products) > 0
}
