package audit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/service"
)

func TestNewEntry(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ev := &service.OrderEvent{
		ID:           "evt-1",
		Type:         model.EventOrderStatusChanged,
		OrderID:      "o1",
		OrderCode:    "ORD-260310-0000ABCD",
		UserID:       "u1",
		From:         model.OrderStatusShipped,
		Status:       model.OrderStatusCompleted,
		TotalAmount:  decimal.RequireFromString("205.00"),
		PointsUsed:   30,
		PointsEarned: 18,
		Actor:        service.SystemActorID,
		At:           at,
	}

	e := NewEntry(ev)
	assert.Equal(t, "evt-1", e.ID)
	assert.Equal(t, "fulfillment", e.Service)
	assert.Equal(t, model.EventOrderStatusChanged, e.Action)
	assert.Equal(t, "o1", e.EntityID)
	assert.Equal(t, at, e.CreatedAt)
	assert.Equal(t, "Shipped", e.Data["from"])
	assert.Equal(t, "Completed", e.Data["status"])
	assert.Equal(t, "205", e.Data["total_amount"])
	assert.Equal(t, int64(18), e.Data["points_earned"])
	assert.Equal(t, "system", e.Data["actor"])
	assert.NotContains(t, e.Data, "reason")
}

func TestNewEntry_CreatedEventHasNoFrom(t *testing.T) {
	e := NewEntry(&service.OrderEvent{ID: "evt-2", Type: model.EventOrderCreated, OrderID: "o2", Status: model.OrderStatusPending, Reason: "gift"})
	assert.NotContains(t, e.Data, "from")
	assert.Equal(t, "gift", e.Data["reason"])
	assert.Equal(t, "0", e.Data["total_amount"])
}
