package tracking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces tracking hashes.
const DefaultKeyPrefix = "storescan:tracking:"

const (
	fieldWithFree    = "scans_with_free"
	fieldWithoutFree = "scans_without_free"
	fieldTotal       = "total_scans"
	fieldLastScan    = "last_scan"
)

// HashClient is the subset of redis commands the store needs.
type HashClient interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisStore keeps one hash per domain.
type RedisStore struct {
	client HashClient
	prefix string
}

// NewRedisStore wraps client. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client HashClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Key is the hash key for domain.
func (s *RedisStore) Key(domain string) string {
	return s.prefix + domain
}

// Update increments counters atomically per field and returns the new tally.
func (s *RedisStore) Update(ctx context.Context, domain string, foundFree bool, at time.Time) (Record, error) {
	key := s.Key(domain)
	field := fieldWithoutFree
	if foundFree {
		field = fieldWithFree
	}
	if err := s.client.HIncrBy(ctx, key, field, 1).Err(); err != nil {
		return Record{}, fmt.Errorf("increment %s: %w", field, err)
	}
	if err := s.client.HIncrBy(ctx, key, fieldTotal, 1).Err(); err != nil {
		return Record{}, fmt.Errorf("increment %s: %w", fieldTotal, err)
	}
	if err := s.client.HSet(ctx, key, fieldLastScan, at.UTC().Format(time.RFC3339)).Err(); err != nil {
		return Record{}, fmt.Errorf("set %s: %w", fieldLastScan, err)
	}
	return s.Get(ctx, domain)
}

// Get reads the tally for domain. A missing hash yields a zero record.
func (s *RedisStore) Get(ctx context.Context, domain string) (Record, error) {
	fields, err := s.client.HGetAll(ctx, s.Key(domain)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("read tracking hash: %w", err)
	}
	rec := Record{Domain: domain}
	rec.ScansWithFree, _ = strconv.Atoi(fields[fieldWithFree])
	rec.ScansWithoutFree, _ = strconv.Atoi(fields[fieldWithoutFree])
	rec.TotalScans, _ = strconv.Atoi(fields[fieldTotal])
	if ts, err := time.Parse(time.RFC3339, fields[fieldLastScan]); err == nil {
		rec.LastScan = ts
	}
	return rec, nil
}
