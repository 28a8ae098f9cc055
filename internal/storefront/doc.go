// Package storefront models the public JSON surface of a hosted storefront:
// catalog pages, collections, search results, single products and variants.
// It also owns domain normalization and the endpoint URL builders used by the
// discovery strategies.
package storefront
