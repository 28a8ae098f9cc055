// Package checkpoint persists classifier snapshots so an interrupted scan can
// pick up where it left off.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/classifier"
	"github.com/JakeFAU/storefront-scanner/internal/storage"
)

// Version is bumped whenever Document changes incompatibly.
const Version = 1

// Document is the on-disk checkpoint format.
type Document struct {
	Version int                 `json:"version"`
	Domain  string              `json:"domain"`
	BaseURL string              `json:"baseUrl"`
	SavedAt time.Time           `json:"savedAt"`
	State   classifier.Snapshot `json:"state"`
}

// Clock is the time source for SavedAt.
type Clock interface {
	Now() time.Time
}

// Manager reads and writes the checkpoint for one domain.
type Manager struct {
	store   storage.ArtifactStore
	domain  string
	baseURL string
	clock   Clock
	logger  *zap.Logger
}

// Path is the object path of a domain's checkpoint.
func Path(domain string) string {
	return fmt.Sprintf("checkpoints/%s.json", domain)
}

// New builds a Manager. A nil logger is replaced with a no-op logger.
func New(store storage.ArtifactStore, domain, baseURL string, clock Clock, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		domain:  domain,
		baseURL: baseURL,
		clock:   clock,
		logger:  logger,
	}
}

// Save writes snap and returns the artifact URI.
func (m *Manager) Save(ctx context.Context, snap classifier.Snapshot) (string, error) {
	doc := Document{
		Version: Version,
		Domain:  m.domain,
		BaseURL: m.baseURL,
		SavedAt: m.clock.Now().UTC(),
		State:   snap,
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	uri, err := m.store.PutObject(ctx, Path(m.domain), "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	m.logger.Debug("checkpoint saved",
		zap.String("domain", m.domain),
		zap.String("uri", uri),
		zap.Int("variants", snap.Counters.VariantsProcessed),
	)
	return uri, nil
}

// Load returns the stored snapshot. ok is false when no checkpoint exists or
// it belongs to another domain or format version.
func (m *Manager) Load(ctx context.Context) (classifier.Snapshot, bool, error) {
	raw, err := m.store.GetObject(ctx, Path(m.domain))
	if errors.Is(err, storage.ErrNotFound) {
		return classifier.Snapshot{}, false, nil
	}
	if err != nil {
		return classifier.Snapshot{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return classifier.Snapshot{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	if doc.Version != Version || doc.Domain != m.domain {
		m.logger.Warn("ignoring incompatible checkpoint",
			zap.String("domain", m.domain),
			zap.String("checkpoint_domain", doc.Domain),
			zap.Int("version", doc.Version),
		)
		return classifier.Snapshot{}, false, nil
	}
	return doc.State, true, nil
}
