// Package cache fronts daily aggregate reads with Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TeoEchavarria/health-tech-app/internal/aggregation"
	"github.com/TeoEchavarria/health-tech-app/internal/domain"
	"github.com/TeoEchavarria/health-tech-app/internal/logger"
	"github.com/TeoEchavarria/health-tech-app/internal/observability"
)

const keyPrefix = "healthagg:v2"

// entry is the cached form of a domain.DailyAggregate. Version is UpdatedAt
// in unix microseconds; Evicted entries are markers that always miss.
type entry struct {
	Version     int64           `json:"version"`
	Evicted     bool            `json:"evicted,omitempty"`
	Category    string          `json:"category,omitempty"`
	RecordCount int             `json:"record_count,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// storeIfNewer writes ARGV[1] unless the key already holds an entry whose
// version is at least ARGV[2]. ARGV[3] is the TTL in milliseconds, 0 for none.
var storeIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
  local ok, doc = pcall(cjson.decode, current)
  if ok and type(doc) == 'table' and tonumber(doc.version) and tonumber(doc.version) >= tonumber(ARGV[2]) then
    return 0
  end
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisCache implements domain.AggregateCache. Every failure degrades to a miss.
type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *logger.Logger
}

// Dial connects to addr and verifies the server answers PING.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedisCache wraps a connected client.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration, log *logger.Logger) *RedisCache {
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, log: log.With("component", "cache")}
}

// Key renders the Redis key of an aggregate.
func Key(k domain.AggregateKey) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", keyPrefix, k.TenantID, k.UserID, k.RecordType, k.Date)
}

// Get implements domain.AggregateCache.
func (c *RedisCache) Get(ctx context.Context, key domain.AggregateKey) (*domain.DailyAggregate, bool) {
	raw, err := c.rdb.Get(ctx, Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observability.RecordCacheLookup("miss")
		} else {
			observability.RecordCacheLookup("error")
			c.log.Warn("cache get failed", "error", err)
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		observability.RecordCacheLookup("error")
		return nil, false
	}
	if e.Evicted {
		observability.RecordCacheLookup("miss")
		return nil, false
	}
	observability.RecordCacheLookup("hit")
	return &domain.DailyAggregate{
		AggregateKey: key,
		Category:     aggregation.Category(e.Category),
		RecordCount:  e.RecordCount,
		Payload:      e.Payload,
		UpdatedAt:    e.UpdatedAt,
	}, true
}

// Set implements domain.AggregateCache. An entry at the same or a newer
// version is left in place.
func (c *RedisCache) Set(ctx context.Context, agg domain.DailyAggregate) {
	err := c.store(ctx, agg.AggregateKey, entry{
		Version:     agg.UpdatedAt.UnixMicro(),
		Category:    string(agg.Category),
		RecordCount: agg.RecordCount,
		Payload:     agg.Payload,
		UpdatedAt:   agg.UpdatedAt,
	})
	if err != nil {
		c.log.Warn("cache set failed", "error", err)
	}
}

// Evict implements domain.AggregateCache.
func (c *RedisCache) Evict(ctx context.Context, key domain.AggregateKey, at time.Time) error {
	return c.store(ctx, key, entry{Version: at.UnixMicro(), Evicted: true, UpdatedAt: at})
}

func (c *RedisCache) store(ctx context.Context, key domain.AggregateKey, e entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return storeIfNewer.Run(ctx, c.rdb, []string{Key(key)}, raw, e.Version, c.ttl.Milliseconds()).Err()
}
