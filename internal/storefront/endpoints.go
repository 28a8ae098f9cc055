package storefront

import (
	"fmt"
	"net/url"
	"strings"
)

// ProductsURL builds a catalog listing page URL. sortBy may be empty.
func ProductsURL(base string, limit, page int, sortBy string) string {
	u := fmt.Sprintf("%s/products.json?limit=%d&page=%d", base, limit, page)
	if sortBy != "" {
		u += "&sort_by=" + url.QueryEscape(sortBy)
	}
	return u
}

// ProbeURL is the single-item catalog request used to test a base URL.
func ProbeURL(base string) string {
	return base + "/products.json?limit=1"
}

// CollectionsURL builds the collections listing URL.
func CollectionsURL(base string) string {
	return base + "/collections.json"
}

// CollectionProductsURL builds a collection listing URL. A page of zero is
// omitted, which is how existence probes are issued.
func CollectionProductsURL(base, handle string, limit, page int) string {
	u := fmt.Sprintf("%s/collections/%s/products.json?limit=%d", base, url.PathEscape(handle), limit)
	if page > 0 {
		u += fmt.Sprintf("&page=%d", page)
	}
	return u
}

// SearchURL builds a search request.
func SearchURL(base, query string, limit int) string {
	return fmt.Sprintf("%s/search.json?q=%s&limit=%d", base, url.QueryEscape(query), limit)
}

// ProductJSURL builds the single-product lookup URL.
func ProductJSURL(base, handle string) string {
	return fmt.Sprintf("%s/products/%s.js", base, url.PathEscape(handle))
}

// ProductPageURL is the public product link, also used for existence checks.
func ProductPageURL(base, handle string) string {
	return fmt.Sprintf("%s/products/%s", base, url.PathEscape(handle))
}

// VariantJSURL builds the single-variant lookup URL.
func VariantJSURL(base, id string) string {
	return fmt.Sprintf("%s/variants/%s.js", base, id)
}

// CartURL is the add-to-cart permalink for one unit of a variant.
func CartURL(base, variantID string) string {
	return fmt.Sprintf("%s/cart/%s:1", base, variantID)
}

// Resolve joins base with a relative path such as "sitemap.xml" or "/cart.js".
func Resolve(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
