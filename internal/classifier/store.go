// Package classifier deduplicates discovered variants and keeps the ranked
// result sets for a scan.
package classifier

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/metrics"
	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

const unknownProduct = "Unknown Product"

// Config holds the classification thresholds, all in minor currency units.
type Config struct {
	LowestCount     int
	LowestMinMinor  int64
	FreeBelowMinor  int64
	CheckpointEvery int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		LowestCount:     10,
		LowestMinMinor:  1,
		FreeBelowMinor:  1,
		CheckpointEvery: 1000,
	}
}

// Clock lets tests pin FoundAt timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCheckpointHook registers fn to run every CheckpointEvery variants. It
// receives a snapshot taken at the moment the threshold was crossed.
func WithCheckpointHook(fn func(Snapshot)) Option {
	return func(s *Store) { s.onCheckpoint = fn }
}

// WithFirstFreeHook registers fn to run once, when the first free item is
// recorded.
func WithFirstFreeHook(fn func(Item)) Option {
	return func(s *Store) { s.onFirstFree = fn }
}

// Store is the single sink for discovery events. All methods are safe for
// concurrent use.
type Store struct {
	base   string
	cfg    Config
	clock  Clock
	logger *zap.Logger

	onCheckpoint func(Snapshot)
	onFirstFree  func(Item)

	mu              sync.Mutex
	variants        map[string]struct{}
	products        map[string]struct{}
	collections     map[string]bool
	collectionOrder []string
	sitemapURLs     map[string]struct{}
	counters        Counters
	lowest          []Item
	free            []Item
	foundFree       bool
	analysis        Analysis
}

// New returns an empty store for the storefront at base.
func New(base string, cfg Config, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.LowestCount <= 0 {
		cfg.LowestCount = def.LowestCount
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = def.CheckpointEvery
	}
	s := &Store{
		base:   base,
		cfg:    cfg,
		clock:  systemClock{},
		logger: zap.NewNop(),
	}
	s.reset()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) reset() {
	s.variants = make(map[string]struct{})
	s.products = make(map[string]struct{})
	s.collections = make(map[string]bool)
	s.collectionOrder = nil
	s.sitemapURLs = make(map[string]struct{})
	s.counters = Counters{}
	s.lowest = nil
	s.free = nil
	s.foundFree = false
	s.analysis = Analysis{
		Combinations: make(map[string][]Combination),
		PricePoints:  make(map[int64]int),
		Inventory:    make(map[string]Inventory),
	}
}

// RecordVariant classifies v on its first sighting and reports whether it
// was new. Variants without an identifier are ignored. The first word of
// source names the discovering strategy.
func (s *Store) RecordVariant(v storefront.Variant, p storefront.Product, source string) bool {
	id := v.Key()
	if id == "" {
		return false
	}

	s.mu.Lock()
	if _, seen := s.variants[id]; seen {
		s.mu.Unlock()
		return false
	}
	s.variants[id] = struct{}{}
	s.counters.VariantsProcessed++

	item := s.buildItem(v, p, source)
	s.index(v, item)

	var firstFree *Item
	free := false
	if v.Price.Valid {
		if item.PriceMinor >= s.cfg.LowestMinMinor {
			s.insertLowest(item)
		}
		if item.PriceMinor < s.cfg.FreeBelowMinor {
			free = true
			s.free = append(s.free, item)
			s.counters.FreeItemsFound++
			if !s.foundFree {
				s.foundFree = true
				cp := item
				firstFree = &cp
			}
		}
	}

	var snap *Snapshot
	if s.onCheckpoint != nil && s.counters.VariantsProcessed%s.cfg.CheckpointEvery == 0 {
		sn := s.snapshotLocked()
		snap = &sn
	}
	s.mu.Unlock()

	strategy, _, _ := strings.Cut(source, " ")
	metrics.ObserveVariant(strategy, free)
	if free {
		s.logger.Info("free item found",
			zap.String("variant_id", id),
			zap.String("title", item.Title),
			zap.String("price", item.Price),
			zap.String("source", source),
		)
	}
	if firstFree != nil && s.onFirstFree != nil {
		s.onFirstFree(*firstFree)
	}
	if snap != nil {
		s.onCheckpoint(*snap)
	}
	return true
}

func (s *Store) buildItem(v storefront.Variant, p storefront.Product, source string) Item {
	title := p.Title
	if title == "" {
		title = v.ProductTitle
	}
	if title == "" {
		title = unknownProduct
	}
	handle := p.Handle
	if handle == "" {
		handle = v.ProductHandle
	}
	id := v.Key()
	item := Item{
		VariantID:     id,
		ProductHandle: handle,
		Title:         title,
		Variant:       v.Title,
		PriceMinor:    v.Price.Minor,
		Price:         v.Price.String(),
		Available:     v.IsAvailable(),
		CartURL:       storefront.CartURL(s.base, id),
		Source:        source,
		FoundAt:       s.clock.Now(),
	}
	if handle != "" {
		item.ProductURL = storefront.ProductPageURL(s.base, handle)
	}
	return item
}

// insertLowest places item after any entries of equal price, so ties keep
// first-seen order, then truncates.
func (s *Store) insertLowest(item Item) {
	i := sort.Search(len(s.lowest), func(i int) bool {
		return s.lowest[i].PriceMinor > item.PriceMinor
	})
	if i >= s.cfg.LowestCount {
		return
	}
	s.lowest = append(s.lowest, Item{})
	copy(s.lowest[i+1:], s.lowest[i:])
	s.lowest[i] = item
	if len(s.lowest) > s.cfg.LowestCount {
		s.lowest = s.lowest[:s.cfg.LowestCount]
	}
}

func (s *Store) index(v storefront.Variant, item Item) {
	if item.ProductHandle != "" {
		s.analysis.Combinations[item.ProductHandle] = append(s.analysis.Combinations[item.ProductHandle], Combination{
			VariantID:  item.VariantID,
			Title:      v.Title,
			PriceMinor: item.PriceMinor,
			Available:  item.Available,
			Option1:    v.Option1,
			Option2:    v.Option2,
			Option3:    v.Option3,
		})
		s.counters.VariantCombinationsAnalyzed++
	}
	if v.Price.Valid {
		s.analysis.PricePoints[item.PriceMinor]++
	}
	if v.InventoryQuantity != nil || v.InventoryPolicy != "" || v.InventoryManagement != "" {
		s.analysis.Inventory[item.VariantID] = Inventory{
			Quantity:   v.InventoryQuantity,
			Policy:     v.InventoryPolicy,
			Management: v.InventoryManagement,
		}
	}
}

// ClaimProduct marks handle as seen and reports whether this call was the
// first to do so.
func (s *Store) ClaimProduct(handle string) bool {
	if handle == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[handle]; ok {
		return false
	}
	s.products[handle] = struct{}{}
	s.counters.ProductsFound++
	return true
}

// SeenProduct reports whether handle has been claimed.
func (s *Store) SeenProduct(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.products[handle]
	return ok
}

// SeenVariant reports whether the identifier has been recorded.
func (s *Store) SeenVariant(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.variants[id]
	return ok
}

// AddCollection records a collection handle. probed marks handles found by
// guessing rather than listing. It reports whether the handle was new.
func (s *Store) AddCollection(handle string, probed bool) bool {
	if handle == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[handle]; ok {
		return false
	}
	s.collections[handle] = probed
	s.collectionOrder = append(s.collectionOrder, handle)
	s.counters.CollectionsFound++
	return true
}

// HasCollection reports whether handle is already known.
func (s *Store) HasCollection(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[handle]
	return ok
}

// Collections returns the known handles in insertion order.
func (s *Store) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.collectionOrder))
	copy(out, s.collectionOrder)
	return out
}

// AddSitemapURL records a product URL seen in a sitemap and reports whether
// it was new.
func (s *Store) AddSitemapURL(u string) bool {
	if u == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sitemapURLs[u]; ok {
		return false
	}
	s.sitemapURLs[u] = struct{}{}
	s.counters.SitemapURLsFound++
	return true
}

// MarkDiscontinued records a sitemap handle whose product page is gone.
func (s *Store) MarkDiscontinued(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.analysis.Discontinued {
		if h == handle {
			return
		}
	}
	s.analysis.Discontinued = append(s.analysis.Discontinued, handle)
	s.counters.DiscontinuedProducts++
}

// LowestPriced returns a copy of the ranked list.
func (s *Store) LowestPriced() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.lowest...)
}

// FreeItems returns a copy of the free list in discovery order.
func (s *Store) FreeItems() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.free...)
}

// FoundFree reports whether any free item has been recorded.
func (s *Store) FoundFree() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foundFree
}

// Counters returns the current totals.
func (s *Store) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Snapshot captures the full state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Variants:     sortedKeys(s.variants),
		Products:     sortedKeys(s.products),
		Collections:  make([]Collection, 0, len(s.collectionOrder)),
		SitemapURLs:  sortedKeys(s.sitemapURLs),
		Counters:     s.counters,
		LowestPriced: append(make([]Item, 0, len(s.lowest)), s.lowest...),
		FreeItems:    append(make([]Item, 0, len(s.free)), s.free...),
		FoundFree:    s.foundFree,
		Analysis: Analysis{
			Combinations: make(map[string][]Combination, len(s.analysis.Combinations)),
			PricePoints:  make(map[int64]int, len(s.analysis.PricePoints)),
			Inventory:    make(map[string]Inventory, len(s.analysis.Inventory)),
			Discontinued: append(make([]string, 0, len(s.analysis.Discontinued)), s.analysis.Discontinued...),
		},
	}
	for _, h := range s.collectionOrder {
		snap.Collections = append(snap.Collections, Collection{Handle: h, Probed: s.collections[h]})
	}
	for k, v := range s.analysis.Combinations {
		snap.Analysis.Combinations[k] = append([]Combination(nil), v...)
	}
	for k, v := range s.analysis.PricePoints {
		snap.Analysis.PricePoints[k] = v
	}
	for k, v := range s.analysis.Inventory {
		snap.Analysis.Inventory[k] = v
	}
	return snap
}

// Restore replaces the store's state with snap. Hooks are not fired.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	for _, id := range snap.Variants {
		s.variants[id] = struct{}{}
	}
	for _, h := range snap.Products {
		s.products[h] = struct{}{}
	}
	for _, c := range snap.Collections {
		if _, ok := s.collections[c.Handle]; ok {
			continue
		}
		s.collections[c.Handle] = c.Probed
		s.collectionOrder = append(s.collectionOrder, c.Handle)
	}
	for _, u := range snap.SitemapURLs {
		s.sitemapURLs[u] = struct{}{}
	}
	s.counters = snap.Counters
	s.lowest = append([]Item(nil), snap.LowestPriced...)
	if len(s.lowest) > s.cfg.LowestCount {
		s.lowest = s.lowest[:s.cfg.LowestCount]
	}
	s.free = append([]Item(nil), snap.FreeItems...)
	s.foundFree = snap.FoundFree || len(s.free) > 0
	for k, v := range snap.Analysis.Combinations {
		s.analysis.Combinations[k] = append([]Combination(nil), v...)
	}
	for k, v := range snap.Analysis.PricePoints {
		s.analysis.PricePoints[k] = v
	}
	for k, v := range snap.Analysis.Inventory {
		s.analysis.Inventory[k] = v
	}
	s.analysis.Discontinued = append([]string(nil), snap.Analysis.Discontinued...)
	s.logger.Info("scan state restored",
		zap.Int("variants", len(s.variants)),
		zap.Int("products", len(s.products)),
		zap.Int("collections", len(s.collectionOrder)),
	)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
