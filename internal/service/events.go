package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
)

// OrderEvent is the outbox payload published to every sink. ID is the outbox
// row id, so sinks can drop redeliveries.
type OrderEvent struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	OrderID      string            `json:"order_id"`
	OrderCode    string            `json:"order_code"`
	UserID       string            `json:"user_id"`
	From         model.OrderStatus `json:"from,omitempty"`
	Status       model.OrderStatus `json:"status"`
	TotalAmount  decimal.Decimal   `json:"total_amount"`
	PointsUsed   int64             `json:"points_used"`
	PointsEarned int64             `json:"points_earned"`
	Reason       string            `json:"reason,omitempty"`
	Actor        string            `json:"actor"`
	At           time.Time         `json:"at"`
}

func DecodeOrderEvent(payload string) (*OrderEvent, error) {
	var ev OrderEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, fmt.Errorf("decode order event: %w", err)
	}
	return &ev, nil
}

// enqueueEvent writes an outbox row in the caller's unit of work.
func enqueueEvent(ctx context.Context, tx *repository.Tx, eventType string, o *model.Order, from model.OrderStatus, reason *string, actor string, at time.Time) error {
	ev := OrderEvent{
		Type:         eventType,
		OrderID:      o.ID,
		OrderCode:    o.Code,
		UserID:       o.UserID,
		From:         from,
		Status:       o.Status,
		TotalAmount:  o.TotalAmount,
		PointsUsed:   o.PointsUsed,
		PointsEarned: o.PointsEarned,
		Actor:        actor,
		At:           at,
	}
	if reason != nil {
		ev.Reason = *reason
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}
	return tx.Outbox.Add(ctx, &model.OrderOutbox{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		EventType: eventType,
		Payload:   string(payload),
		Status:    model.OutboxPending,
		CreatedAt: at,
	})
}
