package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"deleonpos/backend/internal/reconcile"
)

// generationTTL outlives any summary TTL; once it lapses the day starts over at 0.
const generationTTL = 48 * time.Hour

// RedisSummaryCache keeps one hash per tenant and day, one field per register.
type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisSummaryCache(client *redis.Client) *RedisSummaryCache {
	return &RedisSummaryCache{client: client}
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Get(ctx context.Context, tenantID, dateKey, registerID string) (*reconcile.Summary, bool, error) {
	val, err := c.client.HGet(ctx, dayKey(tenantID, dateKey), registerID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary reconcile.Summary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisSummaryCache) Generation(ctx context.Context, tenantID, dateKey string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(tenantID, dateKey)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set writes the summary only while the day's generation still matches. The
// generation key is watched, so an Invalidate landing mid-write aborts it.
func (c *RedisSummaryCache) Set(ctx context.Context, summary reconcile.Summary, generation int64, ttl time.Duration) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	key := dayKey(summary.TenantID, summary.DateKey)
	genKey := generationKey(summary.TenantID, summary.DateKey)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, summary.RegisterID, payload)
			pipe.Expire(ctx, key, ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *RedisSummaryCache) Invalidate(ctx context.Context, tenantID, dateKey string) error {
	genKey := generationKey(tenantID, dateKey)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, dayKey(tenantID, dateKey))
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, generationTTL)
	_, err := pipe.Exec(ctx)
	return err
}
