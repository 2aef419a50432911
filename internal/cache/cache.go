package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ledger-config/internal/entity"
	"ledger-config/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] = row, KEYS[2] = version, ARGV[1] = payload, ARGV[2] = version, ARGV[3] = ttl_ms.
// A fill older than the last invalidation is dropped. Returns 1 when the row was stored.
var fillScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if current > tonumber(ARGV[2]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// KEYS[1] = row, KEYS[2] = version, ARGV[1] = version, ARGV[2] = ttl_ms.
var invalidateScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[1]) >= current then
  redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
else
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
return 1
`)

// RecordCache is a Redis read-through cache of entity rows keyed by kind and id.
// Every entry carries the row's updatedAt as its version; an invalidation raises the version so
// a reader that loaded the row before the write cannot put it back. Failures are logged and
// treated as misses.
type RecordCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRecordCache(rdb redis.Cmdable, ttl time.Duration) *RecordCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RecordCache{rdb: rdb, ttl: ttl, prefix: "ledger-config:"}
}

// The hash tag keeps a row and its version in the same cluster slot.
func (c *RecordCache) key(kind, id string) string { return c.prefix + "row:{" + kind + ":" + id + "}" }

func (c *RecordCache) versionKey(kind, id string) string {
	return c.prefix + "ver:{" + kind + ":" + id + "}"
}

func (c *RecordCache) Get(ctx context.Context, kind, id string) (entity.Row, bool) {
	b, err := c.rdb.Get(ctx, c.key(kind, id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.From(ctx).Warn("cache get failed", "kind", kind, "id", id, "err", err)
		}
		return entity.Row{}, false
	}
	var r entity.Row
	if err := json.Unmarshal(b, &r); err != nil {
		logger.From(ctx).Warn("cache entry corrupt", "kind", kind, "id", id, "err", err)
		return entity.Row{}, false
	}
	return r, true
}

func (c *RecordCache) Set(ctx context.Context, r entity.Row) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	keys := []string{c.key(r.Kind, r.ID), c.versionKey(r.Kind, r.ID)}
	stored, err := fillScript.Run(ctx, c.rdb, keys, b, r.UpdatedAt.UnixMicro(), c.ttl.Milliseconds()).Int()
	if err != nil {
		logger.From(ctx).Warn("cache set failed", "kind", r.Kind, "id", r.ID, "err", err)
		return
	}
	if stored == 0 {
		logger.From(ctx).Debug("cache fill skipped, newer version invalidated", "kind", r.Kind, "id", r.ID)
	}
}

func (c *RecordCache) Invalidate(ctx context.Context, kind, id string, version time.Time) {
	keys := []string{c.key(kind, id), c.versionKey(kind, id)}
	if err := invalidateScript.Run(ctx, c.rdb, keys, version.UnixMicro(), c.ttl.Milliseconds()).Err(); err != nil {
		logger.From(ctx).Warn("cache invalidate failed", "kind", kind, "id", id, "err", err)
	}
}
