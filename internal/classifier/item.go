package classifier

import (
	"time"
)

// Item is a classified variant as it appears in the output lists.
type Item struct {
	VariantID     string    `json:"variantId"`
	ProductHandle string    `json:"productHandle"`
	Title         string    `json:"title"`
	Variant       string    `json:"variant"`
	PriceMinor    int64     `json:"priceMinor"`
	Price         string    `json:"price"`
	Available     bool      `json:"available"`
	CartURL       string    `json:"cartUrl"`
	ProductURL    string    `json:"productUrl"`
	Source        string    `json:"source"`
	FoundAt       time.Time `json:"foundAt"`
}

// Counters are the per-scan totals.
type Counters struct {
	VariantsProcessed           int `json:"variantsProcessed"`
	ProductsFound               int `json:"productsFound"`
	CollectionsFound            int `json:"collectionsFound"`
	FreeItemsFound              int `json:"freeItemsFound"`
	SitemapURLsFound            int `json:"sitemapUrlsFound"`
	DiscontinuedProducts        int `json:"discontinuedProducts"`
	VariantCombinationsAnalyzed int `json:"variantCombinationsAnalyzed"`
}

// Combination is one variant's option set within a product.
type Combination struct {
	VariantID  string `json:"variantId"`
	Title      string `json:"title"`
	PriceMinor int64  `json:"priceMinor"`
	Available  bool   `json:"available"`
	Option1    string `json:"option1,omitempty"`
	Option2    string `json:"option2,omitempty"`
	Option3    string `json:"option3,omitempty"`
}

// Inventory mirrors the stock fields a storefront exposes for a variant.
type Inventory struct {
	Quantity   *int   `json:"quantity,omitempty"`
	Policy     string `json:"policy,omitempty"`
	Management string `json:"management,omitempty"`
}

// Analysis is the reporting index built alongside classification. It is
// not consulted for any classification decision.
type Analysis struct {
	Combinations map[string][]Combination `json:"combinations"`
	PricePoints  map[int64]int            `json:"pricePoints"`
	Inventory    map[string]Inventory     `json:"inventory"`
	Discontinued []string                 `json:"discontinued"`
}

// Collection is a known collection handle and how it was found.
type Collection struct {
	Handle string `json:"handle"`
	Probed bool   `json:"probed"`
}

// Snapshot is the serializable ScanState used for checkpoints.
type Snapshot struct {
	Variants     []string     `json:"variants"`
	Products     []string     `json:"products"`
	Collections  []Collection `json:"collections"`
	SitemapURLs  []string     `json:"sitemapUrls"`
	Counters     Counters     `json:"counters"`
	LowestPriced []Item       `json:"lowestPriced"`
	FreeItems    []Item       `json:"freeItems"`
	FoundFree    bool         `json:"foundFree"`
	Analysis     Analysis     `json:"analysis"`
}
