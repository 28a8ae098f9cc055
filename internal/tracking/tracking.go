// Package tracking keeps per-domain historical scan counters. Updates are
// best effort: callers log failures and carry on.
package tracking

import (
	"context"
	"fmt"
	"time"
)

// Record is the running tally for one domain.
type Record struct {
	Domain           string    `json:"domain"`
	ScansWithFree    int       `json:"scansWithFree"`
	ScansWithoutFree int       `json:"scansWithoutFree"`
	TotalScans       int       `json:"totalScans"`
	LastScan         time.Time `json:"lastScan"`
}

// SuccessRate is the share of scans that found free items, in percent.
func (r Record) SuccessRate() float64 {
	if r.TotalScans == 0 {
		return 0
	}
	return float64(r.ScansWithFree) / float64(r.TotalScans) * 100
}

// FormatRate renders SuccessRate with one decimal and a percent sign.
func (r Record) FormatRate() string {
	return fmt.Sprintf("%.1f%%", r.SuccessRate())
}

func (r Record) apply(foundFree bool, at time.Time) Record {
	if foundFree {
		r.ScansWithFree++
	} else {
		r.ScansWithoutFree++
	}
	r.TotalScans++
	r.LastScan = at.UTC()
	return r
}

// Tracker records the outcome of a finished scan.
type Tracker interface {
	Update(ctx context.Context, domain string, foundFree bool, at time.Time) (Record, error)
}

// Nop discards updates.
type Nop struct{}

// Update returns a single-scan record without storing it.
func (Nop) Update(_ context.Context, domain string, foundFree bool, at time.Time) (Record, error) {
	return Record{Domain: domain}.apply(foundFree, at), nil
}
