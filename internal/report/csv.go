package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/JakeFAU/storefront-scanner/internal/classifier"
)

// CSVHeader is the column layout of the tabular export.
var CSVHeader = []string{"Title", "Variant", "Price", "Available", "Cart URL", "Product URL", "Source", "Found At"}

// RenderCSV writes the lowest-priced rows followed by the free rows. The
// Source column carries the group label and rank.
func RenderCSV(sum Summary) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, it := range sum.Lowest {
		if err := w.Write(csvRow(it, fmt.Sprintf("LOWEST PRICED #%d", i+1))); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	for i, it := range sum.Free {
		if err := w.Write(csvRow(it, fmt.Sprintf("FREE ITEM #%d", i+1))); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func csvRow(it classifier.Item, label string) []string {
	return []string{
		it.Title,
		it.Variant,
		it.Price,
		availability(it.Available),
		it.CartURL,
		it.ProductURL,
		label,
		it.FoundAt.UTC().Format(time.RFC3339),
	}
}
