// Package cache keeps computed free slots in Redis between writes.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

const (
	keyPrefix = "scheduler:slots:"
	genPrefix = "scheduler:slotgen:"
	genTTL    = 24 * time.Hour
)

// setIfCurrent stores the slots only while the day's generation still equals
// the one the caller read before computing them.
var setIfCurrent = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// SlotCache stores a day's free slots per professional. Read errors are
// treated as misses and write errors are logged, so Redis outages only cost
// recomputation.
type SlotCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewSlotCache creates a cache entry lifetime of ttl.
func NewSlotCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *SlotCache {
	return &SlotCache{redis: client, ttl: ttl, logger: logger}
}

func dayKey(professionalID int64, date time.Time) string {
	return fmt.Sprintf("%d:%s", professionalID, date.Format("2006-01-02"))
}

func slotKey(professionalID int64, date time.Time) string {
	return keyPrefix + dayKey(professionalID, date)
}

func genKey(professionalID int64, date time.Time) string {
	return genPrefix + dayKey(professionalID, date)
}

// Get returns cached slots and the day's generation; an empty cached day is
// a hit. On a miss the generation is still reported for a later Set.
func (c *SlotCache) Get(ctx context.Context, professionalID int64, date time.Time) ([]model.Clock, int64, bool) {
	if c.redis == nil || c.ttl <= 0 {
		return nil, 0, false
	}
	vals, err := c.redis.MGet(ctx, slotKey(professionalID, date), genKey(professionalID, date)).Result()
	if err != nil || len(vals) != 2 {
		return nil, -1, false
	}

	var gen int64
	if raw, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, -1, false
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}
	var out []model.Clock
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, gen, false
	}
	return out, gen, true
}

// Set caches free for the day unless the day was invalidated after gen was read.
func (c *SlotCache) Set(ctx context.Context, professionalID int64, date time.Time, gen int64, free []model.Clock) {
	if c.redis == nil || c.ttl <= 0 || gen < 0 {
		return
	}
	if free == nil {
		free = []model.Clock{}
	}
	data, err := json.Marshal(free)
	if err != nil {
		return
	}
	keys := []string{slotKey(professionalID, date), genKey(professionalID, date)}
	stored, err := setIfCurrent.Run(ctx, c.redis, keys, strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.logger.Warn().Err(err).Int64("professional_id", professionalID).Msg("Failed to cache slots")
		return
	}
	if stored == 0 {
		c.logger.Debug().Int64("professional_id", professionalID).Int64("gen", gen).Msg("Skipped caching slots invalidated meanwhile")
	}
}

// Invalidate drops the cached day and advances its generation.
func (c *SlotCache) Invalidate(ctx context.Context, professionalID int64, date time.Time) {
	if c.redis == nil {
		return
	}
	gk := genKey(professionalID, date)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, genTTL)
		pipe.Del(ctx, slotKey(professionalID, date))
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Int64("professional_id", professionalID).Msg("Failed to invalidate slots")
	}
}

// InvalidateAll drops every cached day, e.g. after availability rules change.
func (c *SlotCache) InvalidateAll(ctx context.Context) (int, error) {
	if c.redis == nil {
		return 0, nil
	}
	removed := 0
	iter := c.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, fmt.Errorf("delete %s: %w", iter.Val(), err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan slot keys: %w", err)
	}
	return removed, nil
}
