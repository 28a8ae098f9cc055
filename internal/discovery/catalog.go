package discovery

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

// Catalog walks the standard product listing and, concurrently, one walk
// per sort order. Each walk keeps its own empty-page counter.
func (d *Discoverer) Catalog(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		pages, err := d.walkPages(ctx, func(page int) string {
			return storefront.ProductsURL(d.base, d.limits.PageSize, page, "")
		}, d.limits.MaxCatalogPages, d.limits.EmptyCatalogPages, StrategyCatalog)
		d.logger.Debug("catalog walk finished", zap.Int("pages", pages))
		return err
	})
	g.Go(func() error {
		for _, order := range d.dict.SortOrders {
			if err := d.proceed(ctx); err != nil {
				return err
			}
			pages, err := d.walkPages(ctx, func(page int) string {
				return storefront.ProductsURL(d.base, d.limits.PageSize, page, order)
			}, d.limits.MaxSortedPages, d.limits.EmptyCatalogPages, sourceLabel(StrategyCatalog, order))
			d.logger.Debug("sorted catalog walk finished", zap.String("sort", order), zap.Int("pages", pages))
			if err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}
