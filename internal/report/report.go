// Package report renders the final scan artifacts: a text report, a CSV
// export and an XLSX workbook of the lowest-priced and free items.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/classifier"
	"github.com/JakeFAU/storefront-scanner/internal/storage"
)

const (
	// FreePrefix marks artifacts of scans that found free items.
	FreePrefix = "FREE_"

	timestampLayout = "2006-01-02T15-04-05Z"
	defaultDir      = "reports"
)

// Stats are the totals printed in every artifact.
type Stats struct {
	classifier.Counters
	RequestsMade   int64 `json:"requestsMade"`
	FailedRequests int64 `json:"failedRequests"`
	RateLimitHits  int64 `json:"rateLimitHits"`
}

// Summary is everything the renderers need.
type Summary struct {
	ScanID     string
	Domain     string
	BaseURL    string
	StartedAt  time.Time
	FinishedAt time.Time
	Stopped    bool
	Lowest     []classifier.Item
	Free       []classifier.Item
	Stats      Stats
}

// FoundFree reports whether the summary lists any free items.
func (s Summary) FoundFree() bool {
	return len(s.Free) > 0
}

// Artifacts holds the URIs of written artifacts. Empty fields were not
// written.
type Artifacts struct {
	Report     string `json:"report,omitempty"`
	CSV        string `json:"csv,omitempty"`
	XLSX       string `json:"xlsx,omitempty"`
	Checkpoint string `json:"checkpoint,omitempty"`
}

// BaseName is the shared artifact name without extension.
func BaseName(domain string, startedAt time.Time, foundFree bool) string {
	name := fmt.Sprintf("%s_%s", domain, startedAt.UTC().Format(timestampLayout))
	if foundFree {
		name = FreePrefix + name
	}
	return name
}

// Writer renders a Summary into an artifact store.
type Writer struct {
	store  storage.ArtifactStore
	dir    string
	logger *zap.Logger
}

// NewWriter returns a Writer placing artifacts under dir ("reports" when
// empty).
func NewWriter(store storage.ArtifactStore, dir string, logger *zap.Logger) *Writer {
	if dir == "" {
		dir = defaultDir
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, dir: dir, logger: logger}
}

// Write renders and stores every artifact. Each artifact is attempted even
// if an earlier one fails; the returned error joins all failures.
func (w *Writer) Write(ctx context.Context, sum Summary) (Artifacts, error) {
	base := path.Join(w.dir, BaseName(sum.Domain, sum.StartedAt, sum.FoundFree()))
	var (
		out  Artifacts
		errs []error
	)

	put := func(ext, contentType string, render func(Summary) ([]byte, error)) string {
		body, err := render(sum)
		if err != nil {
			errs = append(errs, fmt.Errorf("render %s: %w", ext, err))
			return ""
		}
		uri, err := w.store.PutObject(ctx, base+ext, contentType, bytes.NewReader(body))
		if err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", ext, err))
			return ""
		}
		return uri
	}

	out.Report = put(".txt", "text/plain; charset=utf-8", RenderText)
	out.CSV = put(".csv", "text/csv", RenderCSV)
	out.XLSX = put(".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", RenderXLSX)

	err := errors.Join(errs...)
	if err != nil {
		w.logger.Warn("report artifacts incomplete", zap.String("domain", sum.Domain), zap.Error(err))
	} else {
		w.logger.Info("reports written",
			zap.String("domain", sum.Domain),
			zap.String("report", out.Report),
			zap.String("csv", out.CSV),
			zap.String("xlsx", out.XLSX),
		)
	}
	return out, err
}

func availability(ok bool) string {
	if ok {
		return "Yes"
	}
	return "No"
}
