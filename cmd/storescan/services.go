package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-scanner/internal/cache"
	"github.com/JakeFAU/storefront-scanner/internal/clock/system"
	"github.com/JakeFAU/storefront-scanner/internal/config"
	collyfetcher "github.com/JakeFAU/storefront-scanner/internal/fetcher/colly"
	"github.com/JakeFAU/storefront-scanner/internal/id/uuid"
	"github.com/JakeFAU/storefront-scanner/internal/publisher"
	"github.com/JakeFAU/storefront-scanner/internal/publisher/pubsub"
	"github.com/JakeFAU/storefront-scanner/internal/scan"
	"github.com/JakeFAU/storefront-scanner/internal/scheduler"
	"github.com/JakeFAU/storefront-scanner/internal/storage"
	"github.com/JakeFAU/storefront-scanner/internal/storage/gcs"
	"github.com/JakeFAU/storefront-scanner/internal/storage/local"
	"github.com/JakeFAU/storefront-scanner/internal/storage/memory"
	"github.com/JakeFAU/storefront-scanner/internal/tracking"
)

// services holds everything a command needs to run scans.
type services struct {
	scanner *scan.Scanner
	clock   system.Clock
	ids     *uuid.Generator
	closers []func() error
}

// Close releases backend clients in reverse order of creation.
func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// buildServices wires the configured backends into a Scanner. doer may be
// nil, in which case the colly fetcher is used.
func buildServices(ctx context.Context, cfg config.Config, doer scheduler.Doer, logger *zap.Logger) (*services, error) {
	svc := &services{clock: system.New(), ids: uuid.New()}
	if doer == nil {
		doer = collyfetcher.New(cfg.FetcherConfig())
	}

	artifacts, err := svc.artifactStore(ctx, cfg.Storage)
	if err != nil {
		return nil, errors.Join(err, svc.Close())
	}
	tracker, err := svc.tracker(cfg.Tracking)
	if err != nil {
		return nil, errors.Join(err, svc.Close())
	}
	pub, err := svc.publisher(ctx, cfg.PubSub)
	if err != nil {
		return nil, errors.Join(err, svc.Close())
	}
	products, err := cache.New(cfg.Scan.ProductCacheSize)
	if err != nil {
		return nil, errors.Join(err, svc.Close())
	}

	svc.scanner = scan.New(cfg.ScanConfig(), doer, logger,
		scan.WithArtifactStore(artifacts),
		scan.WithTracker(tracker),
		scan.WithPublisher(pub),
		scan.WithCache(products),
		scan.WithClock(svc.clock),
		scan.WithIDGenerator(svc.ids),
	)
	logger.Debug("services ready",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("tracking", cfg.Tracking.Backend),
		zap.Bool("notifications", cfg.PubSub.TopicName != ""),
	)
	return svc, nil
}

func (s *services) artifactStore(ctx context.Context, cfg config.StorageConfig) (storage.ArtifactStore, error) {
	var store storage.ArtifactStore
	switch cfg.Backend {
	case "memory":
		store = memory.NewBlobStore()
	case "gcs":
		bs, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("open gcs store: %w", err)
		}
		s.closers = append(s.closers, bs.Close)
		store = bs
	default:
		bs, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		store = bs
	}
	return storage.WithPrefix(store, cfg.Prefix), nil
}

func (s *services) tracker(cfg config.TrackingConfig) (tracking.Tracker, error) {
	switch cfg.Backend {
	case "none":
		return tracking.Nop{}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s.closers = append(s.closers, client.Close)
		return tracking.NewRedisStore(client, cfg.KeyPrefix), nil
	default:
		store, err := tracking.NewCSVStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open tracking store: %w", err)
		}
		return store, nil
	}
}

func (s *services) publisher(ctx context.Context, cfg config.PubSubConfig) (publisher.Publisher, error) {
	if cfg.TopicName == "" {
		return publisher.Nop{}, nil
	}
	p, err := pubsub.Open(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("open pubsub publisher: %w", err)
	}
	s.closers = append(s.closers, p.Close)
	return p, nil
}
