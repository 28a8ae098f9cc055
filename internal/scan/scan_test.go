package scan_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-scanner/internal/checkpoint"
	"github.com/JakeFAU/storefront-scanner/internal/publisher"
	pubmemory "github.com/JakeFAU/storefront-scanner/internal/publisher/memory"
	"github.com/JakeFAU/storefront-scanner/internal/scan"
	"github.com/JakeFAU/storefront-scanner/internal/scheduler"
	"github.com/JakeFAU/storefront-scanner/internal/scheduler/schedulertest"
	"github.com/JakeFAU/storefront-scanner/internal/storage"
	"github.com/JakeFAU/storefront-scanner/internal/storage/memory"
	"github.com/JakeFAU/storefront-scanner/internal/storefront"
	"github.com/JakeFAU/storefront-scanner/internal/tracking"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var now = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

const catalogPage = `{"products":[
	{"handle":"sample-pack","title":"Sample Pack","variants":[
		{"id":1001,"title":"Default","price":"0.00","available":true}
	]},
	{"handle":"sticker","title":"Sticker","variants":[
		{"id":2001,"title":"Small","price":"4.99"},
		{"id":2002,"title":"Large","price":"7.50","available":false}
	]}
]}`

func testConfig() scan.Config {
	cfg := scan.DefaultConfig()
	cfg.Scheduler.Pacing.BaseDelay = 0
	cfg.Discovery.Limits.SearchPause = 0
	cfg.Prefixes = []string{"", "www.", "shop."}
	return cfg
}

func wwwStorefront() *schedulertest.Doer {
	base := "https://www.example.com"
	return schedulertest.NewDoer().
		JSON(storefront.ProbeURL(base), `{"products":[{"handle":"sticker","variants":[]}]}`).
		JSON(storefront.ProductsURL(base, 250, 1, ""), catalogPage)
}

func TestScanResolvesWWWAndClassifies(t *testing.T) {
	t.Parallel()
	blobs := memory.NewBlobStore()
	pub := pubmemory.New()
	trackDir := t.TempDir()
	tracker, err := tracking.NewCSVStore(trackDir)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.NotifyTopic = "scan-events"
	doer := wwwStorefront()
	s := scan.New(cfg, doer, nil,
		scan.WithArtifactStore(blobs),
		scan.WithTracker(tracker),
		scan.WithPublisher(pub),
		scan.WithClock(fixedClock{now}),
	)

	res, err := s.Scan(context.Background(), "https://Example.com/collections/all", scan.WithScanID("scan-1"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Stopped)
	assert.Equal(t, "scan-1", res.ScanID)
	assert.Equal(t, "example.com", res.Domain)
	assert.Equal(t, "https://www.example.com", res.ScannedURL)
	assert.Equal(t, 1, res.FreeItemsFound)
	require.Len(t, res.FreeItems, 1)
	assert.Equal(t, "Sample Pack", res.FreeItems[0].Title)
	require.Len(t, res.LowestPricedItems, 2)
	assert.Equal(t, "4.99", res.LowestPricedItems[0].Price)
	assert.Equal(t, "https://www.example.com/cart/2001:1", res.LowestPricedItems[0].CartURL)
	assert.False(t, res.LowestPricedItems[1].Available)
	assert.Equal(t, 3, res.Stats.VariantsProcessed)
	assert.Equal(t, 2, res.Stats.ProductsFound)
	assert.Positive(t, res.Stats.RequestsMade)
	assert.Empty(t, res.Warnings)

	assert.Equal(t, 1, doer.Calls("GET", storefront.ProbeURL("https://example.com")))
	assert.Zero(t, doer.Calls("GET", storefront.ProbeURL("https://shop.example.com")))

	assert.Equal(t, "memory://checkpoints/example.com.json", res.Artifacts.Checkpoint)
	assert.Equal(t, "memory://reports/FREE_example.com_2025-02-03T04-05-06Z.txt", res.Artifacts.Report)
	assert.Equal(t, "memory://reports/FREE_example.com_2025-02-03T04-05-06Z.csv", res.Artifacts.CSV)
	assert.Equal(t, "memory://reports/FREE_example.com_2025-02-03T04-05-06Z.xlsx", res.Artifacts.XLSX)

	rec, ok, err := tracker.Get("example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rec.ScansWithFree)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, publisher.EventFreeItemFound, msgs[0].Payload.(publisher.Notification).Event)
	done := msgs[1].Payload.(publisher.Notification)
	assert.Equal(t, publisher.EventScanCompleted, done.Event)
	assert.Len(t, done.Artifacts, 3)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"freeItemsFound":1`)
	assert.Contains(t, string(raw), `"success":true`)
	assert.Contains(t, string(raw), `"requestsMade":`)
}

func TestScanWithoutStorefrontWritesNothing(t *testing.T) {
	t.Parallel()
	blobs := memory.NewBlobStore()
	trackDir := t.TempDir()
	tracker, err := tracking.NewCSVStore(trackDir)
	require.NoError(t, err)

	s := scan.New(testConfig(), schedulertest.NewDoer(), nil, scan.WithArtifactStore(blobs), scan.WithTracker(tracker))
	res, err := s.Scan(context.Background(), "example.com")

	require.ErrorIs(t, err, scan.ErrNoStorefront)
	assert.Nil(t, res)
	failure := scan.FailureResult(err)
	assert.False(t, failure.Success)
	assert.Equal(t, "no reachable storefront found", failure.Error)
	assert.Zero(t, blobs.Len())
	_, statErr := os.Stat(filepath.Join(trackDir, tracking.SummaryFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestScanRejectsInvalidDomain(t *testing.T) {
	t.Parallel()
	doer := schedulertest.NewDoer()
	_, err := scan.New(testConfig(), doer, nil).Scan(context.Background(), "localhost")

	require.ErrorIs(t, err, scan.ErrInvalidDomain)
	assert.Equal(t, "invalid domain format", scan.FailureResult(err).Error)
	assert.Zero(t, doer.Total())
}

func TestScanCanceledBeforeResolution(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := scan.New(testConfig(), wwwStorefront(), nil).Scan(ctx, "example.com")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, scan.ErrNoStorefront)
}

func TestScanResumeDoesNotReprocess(t *testing.T) {
	t.Parallel()
	blobs := memory.NewBlobStore()
	cfg := testConfig()

	first, err := scan.New(cfg, wwwStorefront(), nil, scan.WithArtifactStore(blobs), scan.WithClock(fixedClock{now})).
		Scan(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, 3, first.Stats.VariantsProcessed)

	cfg.Resume = true
	second, err := scan.New(cfg, wwwStorefront(), nil, scan.WithArtifactStore(blobs), scan.WithClock(fixedClock{now.Add(time.Hour)})).
		Scan(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, 3, second.Stats.VariantsProcessed)
	assert.Equal(t, 1, second.FreeItemsFound)
	assert.Len(t, second.LowestPricedItems, 2)

	snap, ok, err := checkpoint.New(blobs, "example.com", "https://www.example.com", fixedClock{now}, nil).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, snap.Variants, 3)
}

// stopDoer cancels the scan as soon as the catalog is first requested.
type stopDoer struct {
	*schedulertest.Doer
	once    sync.Once
	trigger string
	cancel  context.CancelFunc
}

func (d *stopDoer) Do(ctx context.Context, req scheduler.Request) (scheduler.Response, error) {
	resp, err := d.Doer.Do(ctx, req)
	if req.URL == d.trigger {
		d.once.Do(d.cancel)
	}
	return resp, err
}

func TestScanStoppedReturnsPartialResult(t *testing.T) {
	t.Parallel()
	blobs := memory.NewBlobStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	doer := &stopDoer{
		Doer:    wwwStorefront(),
		trigger: storefront.ProductsURL("https://www.example.com", 250, 1, ""),
		cancel:  cancel,
	}
	cfg := testConfig()
	cfg.Phases = scan.Phases{Catalog: true, Collections: true, Search: true}

	res, err := scan.New(cfg, doer, nil, scan.WithArtifactStore(blobs), scan.WithClock(fixedClock{now})).Scan(ctx, "example.com")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Stopped)
	assert.NotEmpty(t, res.Artifacts.Checkpoint)
	assert.Zero(t, doer.Calls("GET", storefront.CollectionsURL("https://www.example.com")))
}

func TestScanPersistenceFailuresBecomeWarnings(t *testing.T) {
	t.Parallel()
	store := &storage.MockStore{}
	store.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("bucket gone"))

	res, err := scan.New(testConfig(), wwwStorefront(), nil, scan.WithArtifactStore(store)).Scan(context.Background(), "example.com")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.FreeItemsFound)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "final checkpoint failed")
	assert.Contains(t, res.Warnings[1], "report write failed")
	assert.Empty(t, res.Artifacts.Checkpoint)
}
