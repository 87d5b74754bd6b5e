package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/d60-Lab/fulfillment/internal/identity"
	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
	"github.com/d60-Lab/fulfillment/pkg/logger"
)

// OrderDetail is the read model of one order.
type OrderDetail struct {
	Order    *model.Order                `json:"order"`
	Items    []*model.OrderItem          `json:"items"`
	History  []*model.OrderStatusHistory `json:"history"`
	Payments []*model.Payment            `json:"payments"`
}

// DetailCache is a read-through cache of order details. A miss is (nil, false, nil).
type DetailCache interface {
	Get(ctx context.Context, orderID string) (*OrderDetail, bool, error)
	Set(ctx context.Context, d *OrderDetail) error
}

// OrderQuery serves order reads. Cache failures fall back to the database.
type OrderQuery struct {
	store    *repository.Store
	identity identity.Provider
	cache    DetailCache
}

// NewOrderQuery accepts a nil cache.
func NewOrderQuery(store *repository.Store, ids identity.Provider, cache DetailCache) *OrderQuery {
	return &OrderQuery{store: store, identity: ids, cache: cache}
}

func (q *OrderQuery) GetOrder(ctx context.Context, orderID string) (detail *OrderDetail, err error) {
	ctx, span := startSpan(ctx, "OrderQuery.GetOrder", attribute.String("order_id", orderID))
	var actor string
	defer func() {
		err = finish(ctx, "GetOrder", actor, err)
		endSpan(span, err)
	}()

	p, err := q.identity.RequireRole(ctx, model.RoleCustomer, model.RoleStaff, model.RoleManager)
	if err != nil {
		return nil, authError(err)
	}
	actor = p.UserID
	if orderID == "" {
		return nil, ErrValidation.With("order id is required")
	}

	detail, err = q.cached(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Role == model.RoleCustomer && detail.Order.UserID != p.UserID {
		return nil, ErrNotYourOrder
	}
	return detail, nil
}

func (q *OrderQuery) cached(ctx context.Context, orderID string) (*OrderDetail, error) {
	if q.cache != nil {
		d, ok, err := q.cache.Get(ctx, orderID)
		switch {
		case err != nil:
			logger.Warn("order cache read failed", zap.String("order_id", orderID), zap.Error(err))
		case ok:
			return d, nil
		}
	}

	d, err := q.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if q.cache != nil {
		if err := q.cache.Set(ctx, d); err != nil {
			logger.Warn("order cache write failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	return d, nil
}

func (q *OrderQuery) load(ctx context.Context, orderID string) (*OrderDetail, error) {
	r := q.store.Reader()
	o, err := r.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, lookupErr(err, ErrOrderNotFound, "order %s", orderID)
	}
	items, err := r.Orders.Items(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	history, err := r.Orders.History(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	payments, err := r.Payments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return &OrderDetail{Order: o, Items: items, History: history, Payments: payments}, nil
}
