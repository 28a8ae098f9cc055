package discovery

import "time"

// Dictionaries are the probe inputs. Each list is plain data so callers can
// override any of them.
type Dictionaries struct {
	HiddenCollections []string `mapstructure:"hidden_collections"`
	SearchQueries     []string `mapstructure:"search_queries"`
	SitemapPaths      []string `mapstructure:"sitemap_paths"`
	CartEndpoints     []string `mapstructure:"cart_endpoints"`
	SortOrders        []string `mapstructure:"sort_orders"`
	GWPMarkers        []string `mapstructure:"gwp_markers"`
}

// DefaultDictionaries returns the built-in probe sets.
func DefaultDictionaries() Dictionaries {
	return Dictionaries{
		HiddenCollections: []string{
			"all", "sale", "new", "featured", "best-sellers",
			"clearance", "discount", "free", "samples", "gifts",
			"outlet", "special", "promo", "deals", "limited",
			"test", "hidden", "private", "staff", "wholesale",
			"bundle", "combo", "trial", "beta", "exclusive",
			"member", "vip", "loyalty", "rewards", "bonus",
		},
		SearchQueries: []string{
			"*", "a", "sale", "free", "new", "discount",
			"price:0", "0.00", "$0", "sample", "gift",
			"clearance", "outlet", "promo", "deal", "special",
			"test", "demo", "trial", "beta", "preview",
			"bundle", "combo", "set", "kit", "collection",
			"limited", "exclusive", "member", "vip", "bonus",
		},
		SitemapPaths: []string{
			"sitemap.xml",
			"sitemap_products.xml",
			"sitemap_collections.xml",
			"sitemap_pages.xml",
			"sitemap_products_1.xml",
			"sitemap_products_2.xml",
			"sitemap_products_3.xml",
			"sitemap_archived.xml",
			"sitemap_old.xml",
			"sitemap_backup.xml",
		},
		CartEndpoints: []string{"/cart.js", "/cart.json", "/meta.json", "/config.json", "/checkout.json", "/theme.json"},
		SortOrders:    []string{"price:asc", "created_at:desc", "updated_at:desc"},
		GWPMarkers: []string{
			"gwpCampaign", "giftTiers", "minimumValue", "freeGift",
			"bundleDiscount", "promoCode", "specialOffer", "loyaltyReward",
		},
	}
}

// Limits bound how far each strategy walks and how wide its batches are.
type Limits struct {
	PageSize             int           `mapstructure:"page_size"`
	MaxCatalogPages      int           `mapstructure:"max_catalog_pages"`
	MaxSortedPages       int           `mapstructure:"max_sorted_pages"`
	MaxCollectionPages   int           `mapstructure:"max_collection_pages"`
	EmptyCatalogPages    int           `mapstructure:"empty_catalog_pages"`
	EmptyCollectionPages int           `mapstructure:"empty_collection_pages"`
	ProbeBatch           int           `mapstructure:"probe_batch"`
	CollectionBatch      int           `mapstructure:"collection_batch"`
	SearchBatch          int           `mapstructure:"search_batch"`
	SearchPause          time.Duration `mapstructure:"search_pause"`
	ProductBatch         int           `mapstructure:"product_batch"`
	SitemapBatch         int           `mapstructure:"sitemap_batch"`
	VariantBatch         int           `mapstructure:"variant_batch"`
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{
		PageSize:             250,
		MaxCatalogPages:      100,
		MaxSortedPages:       25,
		MaxCollectionPages:   25,
		EmptyCatalogPages:    3,
		EmptyCollectionPages: 2,
		ProbeBatch:           5,
		CollectionBatch:      5,
		SearchBatch:          3,
		SearchPause:          500 * time.Millisecond,
		ProductBatch:         10,
		SitemapBatch:         3,
		VariantBatch:         10,
	}
}

// withDefaults fills non-positive fields. SearchPause may legitimately be
// zero and is left alone.
func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&l.PageSize, d.PageSize)
	fill(&l.MaxCatalogPages, d.MaxCatalogPages)
	fill(&l.MaxSortedPages, d.MaxSortedPages)
	fill(&l.MaxCollectionPages, d.MaxCollectionPages)
	fill(&l.EmptyCatalogPages, d.EmptyCatalogPages)
	fill(&l.EmptyCollectionPages, d.EmptyCollectionPages)
	fill(&l.ProbeBatch, d.ProbeBatch)
	fill(&l.CollectionBatch, d.CollectionBatch)
	fill(&l.SearchBatch, d.SearchBatch)
	fill(&l.ProductBatch, d.ProductBatch)
	fill(&l.SitemapBatch, d.SitemapBatch)
	fill(&l.VariantBatch, d.VariantBatch)
	if l.SearchPause < 0 {
		l.SearchPause = 0
	}
	return l
}
