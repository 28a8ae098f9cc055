package scan

import (
	"errors"

	"github.com/JakeFAU/storefront-scanner/internal/classifier"
	"github.com/JakeFAU/storefront-scanner/internal/report"
	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

var (
	// ErrInvalidDomain reports a target that cannot be reduced to a host.
	ErrInvalidDomain = storefront.ErrInvalidDomain
	// ErrNoStorefront reports that no hostname prefix served a catalog.
	ErrNoStorefront = errors.New("no reachable storefront found")
)

// Result is the outcome of one scan. A stopped scan is still a success.
type Result struct {
	Success           bool              `json:"success"`
	Error             string            `json:"error,omitempty"`
	ScanID            string            `json:"scanId,omitempty"`
	Domain            string            `json:"domain,omitempty"`
	ScannedURL        string            `json:"scannedUrl,omitempty"`
	FreeItemsFound    int               `json:"freeItemsFound"`
	FreeItems         []classifier.Item `json:"freeItems"`
	LowestPricedItems []classifier.Item `json:"lowestPricedItems"`
	Stats             report.Stats      `json:"stats"`
	Artifacts         report.Artifacts  `json:"artifacts"`
	Stopped           bool              `json:"stopped"`
	DurationSeconds   float64           `json:"durationSeconds"`
	Warnings          []string          `json:"warnings,omitempty"`
}

// FailureResult converts a Scan error into the failure shape with a
// human-readable reason.
func FailureResult(err error) *Result {
	reason := "scan failed"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidDomain):
		reason = ErrInvalidDomain.Error()
	case errors.Is(err, ErrNoStorefront):
		reason = ErrNoStorefront.Error()
	default:
		reason = err.Error()
	}
	return &Result{
		Success:           false,
		Error:             reason,
		FreeItems:         []classifier.Item{},
		LowestPricedItems: []classifier.Item{},
	}
}
