package storefront

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Product is a catalog entry keyed by its handle.
type Product struct {
	ID       json.Number `json:"id,omitempty"`
	Handle   string      `json:"handle"`
	Title    string      `json:"title"`
	Variants []Variant   `json:"variants"`
}

// Variant is one purchasable option of a product.
type Variant struct {
	ID                  json.Number `json:"id"`
	Title               string      `json:"title"`
	Price               Price       `json:"price"`
	Available           *bool       `json:"available,omitempty"`
	ProductTitle        string      `json:"product_title,omitempty"`
	ProductHandle       string      `json:"product_handle,omitempty"`
	Option1             string      `json:"option1,omitempty"`
	Option2             string      `json:"option2,omitempty"`
	Option3             string      `json:"option3,omitempty"`
	InventoryQuantity   *int        `json:"inventory_quantity,omitempty"`
	InventoryPolicy     string      `json:"inventory_policy,omitempty"`
	InventoryManagement string      `json:"inventory_management,omitempty"`
}

// Key is the stable identifier used for deduplication.
func (v Variant) Key() string {
	return strings.TrimSpace(v.ID.String())
}

// IsAvailable treats a missing availability flag as available.
func (v Variant) IsAvailable() bool {
	return v.Available == nil || *v.Available
}

// Collection is a named product grouping.
type Collection struct {
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

// ProductsPage is the envelope returned by catalog and collection listings.
// Products is nil when the key is absent from the document.
type ProductsPage struct {
	Products []Product `json:"products"`
}

type collectionsPage struct {
	Collections []Collection `json:"collections"`
}

// SearchResult is one hit from the search endpoint.
type SearchResult struct {
	ObjectType string `json:"object_type"`
	Handle     string `json:"handle"`
	URL        string `json:"url"`
	Title      string `json:"title"`
}

// SearchResponse holds either a products list or a generic results list.
type SearchResponse struct {
	Products []Product      `json:"products"`
	Results  []SearchResult `json:"results"`
}

// DecodeProductsPage parses a products listing document.
func DecodeProductsPage(body []byte) (ProductsPage, error) {
	var page ProductsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return ProductsPage{}, fmt.Errorf("decode products page: %w", err)
	}
	return page, nil
}

// IsCatalog reports whether body is a products listing, even an empty one.
func IsCatalog(body []byte) bool {
	page, err := DecodeProductsPage(body)
	return err == nil && page.Products != nil
}

// DecodeCollections parses the collections listing.
func DecodeCollections(body []byte) ([]Collection, error) {
	var page collectionsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode collections: %w", err)
	}
	return page.Collections, nil
}

// DecodeProduct parses a single product document.
func DecodeProduct(body []byte) (Product, error) {
	var p Product
	if err := json.Unmarshal(body, &p); err != nil {
		return Product{}, fmt.Errorf("decode product: %w", err)
	}
	return p, nil
}

// DecodeVariant parses a single variant document.
func DecodeVariant(body []byte) (Variant, error) {
	var v Variant
	if err := json.Unmarshal(body, &v); err != nil {
		return Variant{}, fmt.Errorf("decode variant: %w", err)
	}
	return v, nil
}

// DecodeSearch parses a search response.
func DecodeSearch(body []byte) (SearchResponse, error) {
	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return SearchResponse{}, fmt.Errorf("decode search: %w", err)
	}
	return resp, nil
}

// Handles returns the product handles referenced by a search response, in
// response order and without duplicates.
func (r SearchResponse) Handles() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(h string) {
		if h == "" {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	for _, p := range r.Products {
		add(p.Handle)
	}
	for _, res := range r.Results {
		if res.ObjectType != "product" {
			continue
		}
		if res.Handle != "" {
			add(res.Handle)
			continue
		}
		add(HandleFromURL(res.URL))
	}
	return out
}

// HandleFromURL extracts the path segment following "/products/".
func HandleFromURL(raw string) string {
	_, rest, ok := strings.Cut(raw, "/products/")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}
