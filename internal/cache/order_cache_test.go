package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/service"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *OrderCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewOrderCache(client, time.Minute)
}

func detail(id string) *service.OrderDetail {
	return &service.OrderDetail{
		Order: &model.Order{
			ID:          id,
			Code:        "ORD-260310-0000ABCD",
			Status:      model.OrderStatusPending,
			TotalAmount: decimal.RequireFromString("205.50"),
		},
		Items: []*model.OrderItem{{ID: "i1", OrderID: id, ProductID: "p1", Quantity: 2, Price: decimal.NewFromInt(100)}},
	}
}

func TestOrderCache_SetGet(t *testing.T) {
	mr, c := setupCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, detail("o1")))
	assert.Equal(t, time.Minute, mr.TTL("order:o1"))

	got, ok, err := c.Get(ctx, "o1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "o1", got.Order.ID)
	assert.True(t, got.Order.TotalAmount.Equal(decimal.RequireFromString("205.5")))
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrderCache_PublishInvalidates(t *testing.T) {
	mr, c := setupCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, detail("o1")))
	require.NoError(t, c.Set(ctx, detail("o2")))

	var sink service.Sink = c
	require.NoError(t, sink.Publish(ctx, &service.OrderEvent{ID: "e1", OrderID: "o1", Type: model.EventOrderStatusChanged}))
	assert.False(t, mr.Exists("order:o1"))
	assert.True(t, mr.Exists("order:o2"))

	// redelivery of the same event is harmless
	require.NoError(t, sink.Publish(ctx, &service.OrderEvent{ID: "e1", OrderID: "o1"}))
}

func TestOrderCache_CorruptEntryIsAMiss(t *testing.T) {
	mr, c := setupCache(t)
	require.NoError(t, mr.Set("order:o1", "{not json"))

	_, ok, err := c.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("order:o1"))
}

func TestOrderCache_RedisDownIsAnError(t *testing.T) {
	mr, c := setupCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "o1")
	assert.Error(t, err)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisClient(ctx, &config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestOrderCache_StaleWriteAfterInvalidateIsDropped(t *testing.T) {
	mr, c := setupCache(t)
	ctx := context.Background()
	loadedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	shippedAt := loadedAt.Add(time.Second)

	// a reader loads the order, then the transition commits and is published
	stale := detail("o1")
	stale.Order.ModifiedAt = loadedAt
	require.NoError(t, c.Publish(ctx, &service.OrderEvent{ID: "e1", OrderID: "o1", At: shippedAt}))
	assert.True(t, mr.Exists("order:o1:ver"))

	require.NoError(t, c.Set(ctx, stale))
	assert.False(t, mr.Exists("order:o1"))

	fresh := detail("o1")
	fresh.Order.Status = model.OrderStatusShipped
	fresh.Order.ModifiedAt = shippedAt
	require.NoError(t, c.Set(ctx, fresh))
	got, ok, err := c.Get(ctx, "o1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.OrderStatusShipped, got.Order.Status)

	// an older event redelivered late does not lower the floor
	require.NoError(t, c.Publish(ctx, &service.OrderEvent{ID: "e0", OrderID: "o1", At: loadedAt}))
	require.NoError(t, c.Set(ctx, stale))
	assert.False(t, mr.Exists("order:o1"))
}
