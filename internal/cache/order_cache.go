package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/internal/service"
)

// OrderCache keeps order details in Redis under order:<id>. It is also an
// outbox sink: every order event drops the cached entry and raises the
// order's version floor under order:<id>:ver, so a read that loaded the
// order before the event committed cannot write its stale copy back.
// Versions are ModifiedAt in milliseconds.
type OrderCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewOrderCache(client *redis.Client, ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &OrderCache{client: client, ttl: ttl}
}

// NewRedisClient dials Redis and pings it.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func key(orderID string) string { return "order:" + orderID }
func versionKey(orderID string) string { return "order:" + orderID + ":ver" }

// KEYS: entry, floor. ARGV: payload, ttl ms, version.
var setScript = redis.NewScript(`
local floor = redis.call('GET', KEYS[2])
if floor and tonumber(floor) > tonumber(ARGV[3]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// KEYS: entry, floor. ARGV: version, ttl ms.
var invalidateScript = redis.NewScript(`
local floor = redis.call('GET', KEYS[2])
if not floor or tonumber(floor) < tonumber(ARGV[1]) then
  redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
end
redis.call('DEL', KEYS[1])
return 1
`)

func (c *OrderCache) Get(ctx context.Context, orderID string) (*service.OrderDetail, bool, error) {
	data, err := c.client.Get(ctx, key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var d service.OrderDetail
	if err := json.Unmarshal(data, &d); err != nil || d.Order == nil {
		// a corrupt entry is a miss; drop it
		_ = c.client.Del(ctx, key(orderID)).Err()
		return nil, false, nil
	}
	return &d, true, nil
}

func (c *OrderCache) Set(ctx context.Context, d *service.OrderDetail) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	id := d.Order.ID
	return setScript.Run(ctx, c.client, []string{key(id), versionKey(id)},
		payload, c.ttl.Milliseconds(), d.Order.ModifiedAt.UnixMilli()).Err()
}

// Invalidate drops the entry and refuses later writes of details older than at.
func (c *OrderCache) Invalidate(ctx context.Context, orderID string, at time.Time) error {
	return invalidateScript.Run(ctx, c.client, []string{key(orderID), versionKey(orderID)},
		at.UnixMilli(), c.ttl.Milliseconds()).Err()
}

func (c *OrderCache) Name() string { return "redis-order-cache" }

func (c *OrderCache) Publish(ctx context.Context, ev *service.OrderEvent) error {
	return c.Invalidate(ctx, ev.OrderID, ev.At)
}
