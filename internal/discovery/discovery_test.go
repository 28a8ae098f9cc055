package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-scanner/internal/cache"
	"github.com/JakeFAU/storefront-scanner/internal/classifier"
	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

const base = "https://www.example.com"

type fakeClient struct {
	mu    sync.Mutex
	gets  map[string]string
	heads map[string]bool
	calls map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		gets:  make(map[string]string),
		heads: make(map[string]bool),
		calls: make(map[string]int),
	}
}

func (f *fakeClient) Get(_ context.Context, url string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GET "+url]++
	body, ok := f.gets[url]
	return []byte(body), ok
}

func (f *fakeClient) Head(_ context.Context, url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["HEAD "+url]++
	return f.heads[url]
}

func (f *fakeClient) count(method, url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+url]
}

func (f *fakeClient) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func productsJSON(t *testing.T, products ...map[string]any) string {
	t.Helper()
	if products == nil {
		products = []map[string]any{}
	}
	b, err := json.Marshal(map[string]any{"products": products})
	require.NoError(t, err)
	return string(b)
}

func productDoc(handle string, variants ...map[string]any) map[string]any {
	return map[string]any{"handle": handle, "title": strings.ToUpper(handle), "variants": variants}
}

func variantDoc(id int64, price string) map[string]any {
	return map[string]any{"id": id, "title": "Default", "price": price}
}

func testConfig() Config {
	return Config{Dict: Dictionaries{}, Limits: Limits{SearchPause: 0}}
}

func newDiscoverer(t *testing.T, client Client, cfg Config) (*Discoverer, *classifier.Store, *cache.ProductCache) {
	t.Helper()
	store := classifier.New(base, classifier.DefaultConfig())
	pc, err := cache.New(100)
	require.NoError(t, err)
	return New(base, client, store, cfg, WithCache(pc)), store, pc
}

func TestCatalogStopsAfterConsecutiveEmptyPages(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	for page := 1; page <= 3; page++ {
		client.gets[storefront.ProductsURL(base, 250, page, "")] = productsJSON(t,
			productDoc(fmt.Sprintf("p%d", page), variantDoc(int64(page), "1.00")))
	}
	for page := 4; page <= 10; page++ {
		client.gets[storefront.ProductsURL(base, 250, page, "")] = productsJSON(t)
	}

	d, store, _ := newDiscoverer(t, client, testConfig())
	require.NoError(t, d.Catalog(context.Background()))

	assert.Equal(t, 1, client.count("GET", storefront.ProductsURL(base, 250, 6, "")))
	assert.Zero(t, client.count("GET", storefront.ProductsURL(base, 250, 7, "")))
	assert.Equal(t, 3, store.Counters().ProductsFound)
	assert.Equal(t, 3, store.Counters().VariantsProcessed)
}

func TestCatalogNeverExceedsMaxPages(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	for page := 1; page <= 10; page++ {
		client.gets[storefront.ProductsURL(base, 250, page, "")] = productsJSON(t,
			productDoc(fmt.Sprintf("p%d", page), variantDoc(int64(page), "2.00")))
	}
	cfg := testConfig()
	cfg.Limits.MaxCatalogPages = 4

	d, store, _ := newDiscoverer(t, client, cfg)
	require.NoError(t, d.Catalog(context.Background()))

	assert.Equal(t, 4, client.total())
	assert.Equal(t, 4, store.Counters().ProductsFound)
}

func TestDuplicatePagesCountAsEmpty(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	page := productsJSON(t, productDoc("same", variantDoc(1, "3.00")))
	for n := 1; n <= 10; n++ {
		client.gets[storefront.ProductsURL(base, 250, n, "")] = page
		client.gets[storefront.ProductsURL(base, 250, n, "price:asc")] = page
	}
	cfg := testConfig()
	cfg.Dict.SortOrders = []string{"price:asc"}

	d, store, _ := newDiscoverer(t, client, cfg)
	require.NoError(t, d.Catalog(context.Background()))

	assert.Equal(t, 1, store.Counters().ProductsFound)
	assert.Equal(t, 1, store.Counters().VariantsProcessed)
	// The walk that claimed the product stops three pages later; the other
	// sees only duplicates and stops after three.
	assert.LessOrEqual(t, client.total(), 7)
}

func TestCollectionsListsProbesAndPaginates(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.gets[storefront.CollectionsURL(base)] = `{"collections":[{"handle":"summer","title":"Summer"}]}`
	client.gets[storefront.CollectionProductsURL(base, "vip", 1, 0)] = productsJSON(t, productDoc("secret", variantDoc(9, "0.00")))
	client.gets[storefront.CollectionProductsURL(base, "vip", 250, 1)] = productsJSON(t, productDoc("secret", variantDoc(9, "0.00")))
	client.gets[storefront.CollectionProductsURL(base, "summer", 250, 1)] = productsJSON(t, productDoc("hat", variantDoc(5, "12.00")))
	client.gets[storefront.CollectionProductsURL(base, "sale", 1, 0)] = productsJSON(t)

	cfg := testConfig()
	cfg.Dict.HiddenCollections = []string{"summer", "sale", "vip"}
	d, store, _ := newDiscoverer(t, client, cfg)
	require.NoError(t, d.Collections(context.Background()))

	assert.Equal(t, []string{"summer", "vip"}, store.Collections())
	assert.Zero(t, client.count("GET", storefront.CollectionProductsURL(base, "summer", 1, 0)), "listed collections are not probed")
	require.Len(t, store.FreeItems(), 1)
	assert.Equal(t, "collection vip page 1", store.FreeItems()[0].Source)
	assert.Equal(t, 2, store.Counters().ProductsFound)
}

func TestSearchResolvesHandlesThroughCacheAndLookup(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.gets[storefront.SearchURL(base, "free", 250)] = `{"results":[
		{"object_type":"product","url":"/products/gift-card?variant=1"},
		{"object_type":"page","handle":"about"},
		{"object_type":"product","handle":"cached-one"}
	]}`
	client.gets[storefront.ProductJSURL(base, "gift-card")] = `{"handle":"gift-card","title":"Gift Card","variants":[{"id":77,"title":"Default","price":0}]}`

	cfg := testConfig()
	cfg.Dict.SearchQueries = []string{"free"}
	d, store, pc := newDiscoverer(t, client, cfg)
	pc.Add(base, storefront.Product{Handle: "cached-one", Title: "Cached", Variants: []storefront.Variant{
		{ID: "88", Price: storefront.NewPrice(250)},
	}})

	require.NoError(t, d.Search(context.Background()))

	assert.Zero(t, client.count("GET", storefront.ProductJSURL(base, "cached-one")))
	assert.Zero(t, client.count("GET", storefront.ProductJSURL(base, "about")))
	require.Len(t, store.FreeItems(), 1)
	assert.Equal(t, "Gift Card", store.FreeItems()[0].Title)
	assert.Equal(t, "search free", store.FreeItems()[0].Source)
	require.Len(t, store.LowestPriced(), 1)
	assert.Equal(t, "search free (cached)", store.LowestPriced()[0].Source)
}

func TestSitemapChecksExistenceAndFollowsIndex(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.gets[base+"/sitemap.xml"] = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://www.example.com/sitemap_products_1.xml?from=1</loc></sitemap>
  <sitemap><loc>https://cdn.other.com/sitemap.xml</loc></sitemap>
</sitemapindex>`
	client.gets[base+"/sitemap_products_1.xml?from=1"] = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.example.com/products/live</loc></url>
  <url><loc>https://www.example.com/products/gone</loc></url>
  <url><loc>https://www.example.com/pages/about</loc></url>
</urlset>`
	client.gets[base+"/sitemap_pages.xml"] = `<<<not xml>>>`
	client.heads[storefront.ProductPageURL(base, "live")] = true
	client.gets[storefront.ProductJSURL(base, "live")] = `{"handle":"live","title":"Live","variants":[{"id":1,"price":499}]}`

	cfg := testConfig()
	cfg.Dict.SitemapPaths = []string{"sitemap.xml", "sitemap_pages.xml"}
	d, store, _ := newDiscoverer(t, client, cfg)
	require.NoError(t, d.Sitemaps(context.Background()))

	c := store.Counters()
	assert.Equal(t, 3, c.SitemapURLsFound)
	assert.Equal(t, 1, c.DiscontinuedProducts)
	assert.Equal(t, 1, c.ProductsFound)
	assert.Zero(t, client.count("GET", "https://cdn.other.com/sitemap.xml"))
	assert.Zero(t, client.count("GET", storefront.ProductJSURL(base, "gone")))
	require.Len(t, store.LowestPriced(), 1)
	assert.Equal(t, "4.99", store.LowestPriced()[0].Price)
}

func TestParseSitemap(t *testing.T) {
	t.Parallel()
	locs, children, err := ParseSitemap([]byte(`<urlset><url><loc> https://a.com/products/x </loc></url><url><loc></loc></url></urlset>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com/products/x"}, locs)
	assert.Empty(t, children)
}

func TestExtractCandidateIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    []Candidate
	}{
		{
			name:    "keyed ids need a marker",
			content: `{"variantId": 1234567890, "other": 5}`,
			want:    nil,
		},
		{
			name:    "keyed ids with marker",
			content: `{"freeGift":true,"variant_id":1234567890,"product_id":123}`,
			want:    []Candidate{{ID: "1234567890", GWP: true}},
		},
		{
			name:    "bare long numbers",
			content: `token 12345678901 and 1234567890123456 and 98765432109876`,
			want:    []Candidate{{ID: "12345678901"}, {ID: "98765432109876"}},
		},
		{
			name:    "keyed and bare overlap once",
			content: `{"giftTiers":[{"variantId":40000000000001}]}`,
			want:    []Candidate{{ID: "40000000000001", GWP: true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractCandidateIDs([]byte(tt.content), DefaultDictionaries().GWPMarkers))
		})
	}
}

func TestCartProbesUnknownVariants(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.gets[base+"/cart.js"] = `{"token":"x","items":[],"attributes":{"promoCode":"A","variantId":41234567890}}`
	client.gets[storefront.VariantJSURL(base, "41234567890")] = `{"id":41234567890,"title":"Sample","price":0,"product_title":"Tiny Sample","product_handle":"tiny-sample"}`

	cfg := testConfig()
	cfg.Dict.CartEndpoints = []string{"/cart.js", "/meta.json"}
	cfg.Dict.GWPMarkers = DefaultDictionaries().GWPMarkers
	d, store, _ := newDiscoverer(t, client, cfg)
	require.NoError(t, d.Cart(context.Background()))

	free := store.FreeItems()
	require.Len(t, free, 1)
	assert.Equal(t, "Tiny Sample", free[0].Title)
	assert.Equal(t, "gwp /cart.js", free[0].Source)
	assert.Equal(t, base+"/products/tiny-sample", free[0].ProductURL)

	// A second pass finds nothing new to probe.
	require.NoError(t, d.Cart(context.Background()))
	assert.Equal(t, 1, client.count("GET", storefront.VariantJSURL(base, "41234567890")))
}

func TestCanceledContextStopsStrategies(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	cfg := Config{Dict: DefaultDictionaries(), Limits: DefaultLimits()}
	d, _, _ := newDiscoverer(t, client, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, d.Catalog(ctx), context.Canceled)
	require.ErrorIs(t, d.Search(ctx), context.Canceled)
	require.ErrorIs(t, d.Sitemaps(ctx), context.Canceled)
	assert.Zero(t, client.count("GET", storefront.ProductsURL(base, 250, 1, "")))
}
