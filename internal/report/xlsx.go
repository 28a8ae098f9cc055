package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/storefront-scanner/internal/classifier"
)

// Sheet names in the workbook.
const (
	SheetLowest = "Lowest Priced"
	SheetFree   = "Free Items"
	SheetStats  = "Stats"
)

// RenderXLSX builds a workbook with one sheet per list plus the totals.
func RenderXLSX(sum Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetLowest); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeItems(f, SheetLowest, sum.Lowest); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetFree); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := writeItems(f, SheetFree, sum.Free); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetStats); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetStats, "A1", &[]any{"Metric", "Value"}); err != nil {
		return nil, fmt.Errorf("write stats header: %w", err)
	}
	for i, row := range statRows(sum.Stats) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("stats cell: %w", err)
		}
		if err := f.SetSheetRow(SheetStats, cell, &[]any{row.label, row.value}); err != nil {
			return nil, fmt.Errorf("write stats row: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeItems(f *excelize.File, sheet string, items []classifier.Item) error {
	header := make([]any, len(CSVHeader))
	for i, h := range CSVHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i, it := range items {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("%s cell: %w", sheet, err)
		}
		row := []any{
			it.Title,
			it.Variant,
			float64(it.PriceMinor) / 100,
			availability(it.Available),
			it.CartURL,
			it.ProductURL,
			it.Source,
			it.FoundAt.UTC(),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row: %w", sheet, err)
		}
	}
	return nil
}
