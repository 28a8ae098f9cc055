package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/storefront-scanner/internal/classifier"
)

// RenderText produces the human-readable report.
func RenderText(sum Summary) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Storefront scan: %s\n", sum.Domain)
	fmt.Fprintf(&b, "Scanned URL: %s\n", sum.BaseURL)
	if sum.ScanID != "" {
		fmt.Fprintf(&b, "Scan ID: %s\n", sum.ScanID)
	}
	fmt.Fprintf(&b, "Started: %s\n", sum.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Finished: %s\n", sum.FinishedAt.UTC().Format(time.RFC3339))
	if sum.Stopped {
		b.WriteString("Status: stopped early, results are partial\n")
	}
	b.WriteString("\n")

	b.WriteString("LOWEST PRICED ITEMS\n")
	b.WriteString(itemTable(sum.Lowest))
	b.WriteString("\n\n")

	if sum.FoundFree() {
		fmt.Fprintf(&b, "FREE ITEMS (%d)\n", len(sum.Free))
		b.WriteString(itemTable(sum.Free))
	} else {
		b.WriteString("FREE ITEMS\nNo free items found.")
	}
	b.WriteString("\n\n")

	b.WriteString("STATISTICS\n")
	b.WriteString(statsTable(sum.Stats))
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func itemTable(items []classifier.Item) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Title", "Variant", "Price", "Available", "Cart URL", "Source"})
	for i, it := range items {
		t.AppendRow(table.Row{i + 1, it.Title, it.Variant, it.Price, availability(it.Available), it.CartURL, it.Source})
	}
	t.SetStyle(table.StyleRounded)
	return t.Render()
}

func statsTable(s Stats) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	for _, row := range statRows(s) {
		t.AppendRow(table.Row{row.label, row.value})
	}
	t.SetStyle(table.StyleRounded)
	return t.Render()
}

type statRow struct {
	label string
	value int64
}

func statRows(s Stats) []statRow {
	return []statRow{
		{"Variants processed", int64(s.VariantsProcessed)},
		{"Products found", int64(s.ProductsFound)},
		{"Collections found", int64(s.CollectionsFound)},
		{"Free items found", int64(s.FreeItemsFound)},
		{"Sitemap URLs found", int64(s.SitemapURLsFound)},
		{"Discontinued products", int64(s.DiscontinuedProducts)},
		{"Variant combinations analyzed", int64(s.VariantCombinationsAnalyzed)},
		{"Requests made", s.RequestsMade},
		{"Failed requests", s.FailedRequests},
		{"Rate limit hits", s.RateLimitHits},
	}
}
