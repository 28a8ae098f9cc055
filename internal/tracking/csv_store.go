package tracking

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// File names written by CSVStore.
const (
	HistoryFile = "scan_history.csv"
	SummaryFile = "scan_summary.csv"
)

var (
	historyHeader = []string{"Domain", "Timestamp", "Free Items Count", "No Free Items Count", "Total Scans", "Last Scan Date"}
	summaryHeader = []string{"Domain", "Free Items Found", "No Free Items Found", "Total Scans", "Success Rate", "Last Scan"}
)

// CSVStore keeps one row per domain in a history file and a summary file
// under dir. It is safe for concurrent use within one process.
type CSVStore struct {
	dir string
	mu  sync.Mutex
}

// NewCSVStore returns a store rooted at dir, creating it when missing.
func NewCSVStore(dir string) (*CSVStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("tracking directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create tracking directory: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

// Update increments the domain's counters and rewrites both files.
func (s *CSVStore) Update(_ context.Context, domain string, foundFree bool, at time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, order, err := s.load()
	if err != nil {
		return Record{}, err
	}
	rec, ok := records[domain]
	if !ok {
		rec = Record{Domain: domain}
		order = append(order, domain)
	}
	rec = rec.apply(foundFree, at)
	records[domain] = rec

	history := [][]string{historyHeader}
	summary := [][]string{summaryHeader}
	for _, d := range order {
		r := records[d]
		ts := r.LastScan.Format(time.RFC3339)
		history = append(history, []string{
			d, ts, strconv.Itoa(r.ScansWithFree), strconv.Itoa(r.ScansWithoutFree), strconv.Itoa(r.TotalScans), ts,
		})
		summary = append(summary, []string{
			d, strconv.Itoa(r.ScansWithFree), strconv.Itoa(r.ScansWithoutFree), strconv.Itoa(r.TotalScans), r.FormatRate(), ts,
		})
	}
	if err := writeCSV(filepath.Join(s.dir, HistoryFile), history); err != nil {
		return Record{}, err
	}
	if err := writeCSV(filepath.Join(s.dir, SummaryFile), summary); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get returns the stored record for domain.
func (s *CSVStore) Get(domain string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, _, err := s.load()
	if err != nil {
		return Record{}, false, err
	}
	r, ok := records[domain]
	return r, ok, nil
}

// load reads the history file. Rows that fail to parse are skipped.
func (s *CSVStore) load() (map[string]Record, []string, error) {
	records := make(map[string]Record)
	var order []string

	raw, err := os.ReadFile(filepath.Join(s.dir, HistoryFile))
	if errors.Is(err, fs.ErrNotExist) {
		return records, order, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read history: %w", err)
	}
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse history: %w", err)
	}
	for i, row := range rows {
		if i == 0 || len(row) < 5 {
			continue
		}
		rec := Record{Domain: row[0]}
		rec.ScansWithFree, _ = strconv.Atoi(row[2])
		rec.ScansWithoutFree, _ = strconv.Atoi(row[3])
		rec.TotalScans, _ = strconv.Atoi(row[4])
		if ts, err := time.Parse(time.RFC3339, row[1]); err == nil {
			rec.LastScan = ts
		}
		if _, dup := records[rec.Domain]; !dup {
			order = append(order, rec.Domain)
		}
		records[rec.Domain] = rec
	}
	return records, order, nil
}

func writeCSV(path string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
