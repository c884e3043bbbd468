package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hemodialysis-scheduler/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const slotKeyPrefix = "dialysis:slot:"

// SlotSource is the backing store the cache reads through to
type SlotSource interface {
	GetSlot(ctx context.Context, id uint) (*models.Slot, error)
}

// SlotCache caches slot rows in redis. Capacity lookups happen on every
// bed claim, while slots change rarely. A nil client disables caching.
type SlotCache struct {
	source SlotSource
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewSlotCache(source SlotSource, client *redis.Client, ttl time.Duration, logger *zap.Logger) *SlotCache {
	return &SlotCache{source: source, client: client, ttl: ttl, logger: logger}
}

func slotKey(id uint) string {
	return fmt.Sprintf("%s%d", slotKeyPrefix, id)
}

// GetSlot returns the slot from redis, falling back to the source on a miss
func (c *SlotCache) GetSlot(ctx context.Context, id uint) (*models.Slot, error) {
	if c.client == nil {
		return c.source.GetSlot(ctx, id)
	}

	val, err := c.client.Get(ctx, slotKey(id)).Result()
	switch {
	case err == nil:
		var slot models.Slot
		if jsonErr := json.Unmarshal([]byte(val), &slot); jsonErr == nil {
			return &slot, nil
		}
		c.logger.Warn("discarding corrupt slot cache entry", zap.Uint("slot_id", id))
	case err != redis.Nil:
		c.logger.Warn("slot cache read failed", zap.Uint("slot_id", id), zap.Error(err))
	}

	slot, err := c.source.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, slot)
	return slot, nil
}

// Invalidate drops a cached slot after it was edited
func (c *SlotCache) Invalidate(ctx context.Context, id uint) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, slotKey(id)).Err(); err != nil {
		c.logger.Warn("slot cache invalidate failed", zap.Uint("slot_id", id), zap.Error(err))
	}
}

func (c *SlotCache) store(ctx context.Context, slot *models.Slot) {
	data, err := json.Marshal(slot)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, slotKey(slot.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("slot cache write failed", zap.Uint("slot_id", slot.ID), zap.Error(err))
	}
}
