package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DimBertolami/latestbot/internal/model"
)

const (
	journalKey = "paper:trades"
	versionKey = journalKey + ":version"
)

// CachedStore wraps a primary Store with a Redis read-through cache of the
// journal. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// The cached copy lives under a key derived from a version counter. Writes
// bump the counter, so a slow read that fills the cache after a write lands
// under a key nobody reads again.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertTrade(ctx context.Context, t *model.Trade) error {
	if err := s.primary.InsertTrade(ctx, t); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedStore) ClearTrades(ctx context.Context) error {
	if err := s.primary.ClearTrades(ctx); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ListTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	version, err := s.rdb.Get(ctx, versionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return s.primary.ListTrades(ctx, limit)
	}
	key := cacheKey(version)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var trades []model.Trade
		if json.Unmarshal(data, &trades) == nil {
			return latest(trades, limit), nil
		}
	}

	// Cache miss: load the whole journal once so every limit can be served.
	trades, err := s.primary.ListTrades(ctx, 0)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return latest(trades, limit), nil
}

func (s *CachedStore) invalidate(ctx context.Context) {
	if err := s.rdb.Incr(ctx, versionKey).Err(); err != nil {
		slog.Warn("redis cache invalidation failed", "key", versionKey, "err", err)
	}
}

func cacheKey(version int64) string {
	return journalKey + ":v" + strconv.FormatInt(version, 10)
}
