package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
	"github.com/d60-Lab/fulfillment/pkg/logger"
)

// Actor selects which transition table applies.
type Actor int

const (
	ActorManager Actor = iota + 1
	ActorCustomer
	// ActorSystem is the sweeper. It is not bound by a table.
	ActorSystem
)

// SystemActorID is recorded as modifiedBy for sweeper transitions.
const SystemActorID = "system"

var transitionTables = map[Actor]map[model.OrderStatus][]model.OrderStatus{
	ActorManager: {
		model.OrderStatusPending:  {model.OrderStatusStuffing, model.OrderStatusRejected},
		model.OrderStatusStuffing: {model.OrderStatusShipped, model.OrderStatusRejected},
		model.OrderStatusShipped:  {model.OrderStatusCompleted},
	},
	ActorCustomer: {
		model.OrderStatusPending: {model.OrderStatusRejected},
		model.OrderStatusShipped: {model.OrderStatusCompleted},
	},
}

// CanTransition reports whether actor may move an order from one status to another.
func CanTransition(actor Actor, from, to model.OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	if actor == ActorSystem {
		return from == model.OrderStatusShipped && to == model.OrderStatusCompleted
	}
	return slices.Contains(transitionTables[actor][from], to)
}

// StatusMachine applies one transition inside a unit of work: history, status,
// compensation on Rejected, earning on Completed, and the outbox event.
type StatusMachine struct {
	inventory *InventoryLedger
	loyalty   *LoyaltyLedger
}

func NewStatusMachine(inventory *InventoryLedger, loyalty *LoyaltyLedger) *StatusMachine {
	return &StatusMachine{inventory: inventory, loyalty: loyalty}
}

// transition is one validated order move.
type transition struct {
	order *model.Order
	to    model.OrderStatus
}

// checkPoints refuses orders whose stored point fields are corrupt.
func checkPoints(o *model.Order) error {
	if o.PointsUsed < 0 {
		return ErrInvalidPointBalance.With("order %s has points used %d", o.ID, o.PointsUsed)
	}
	if o.PointsEarned < 0 {
		return ErrInvalidInput.With("order %s has points earned %d", o.ID, o.PointsEarned)
	}
	return nil
}

// plan validates every order before anything is written.
func (m *StatusMachine) plan(actor Actor, orders []*model.Order, to model.OrderStatus) ([]transition, error) {
	out := make([]transition, 0, len(orders))
	for _, o := range orders {
		if !CanTransition(actor, o.Status, to) {
			return nil, ErrInvalidStatus.With("order %s cannot move from %s to %s", o.ID, o.Status, to)
		}
		if err := checkPoints(o); err != nil {
			return nil, err
		}
		out = append(out, transition{order: o, to: to})
	}
	return out, nil
}

// apply performs a planned batch. The conversion rate is read once, at
// transition time, and only when the batch completes orders.
func (m *StatusMachine) apply(ctx context.Context, tx *repository.Tx, batch []transition, reason *string, actorID string, now time.Time) error {
	var rate int64
	for _, t := range batch {
		if t.to == model.OrderStatusCompleted {
			r, err := conversionRate(ctx, tx)
			if err != nil {
				return err
			}
			rate = r
			break
		}
	}

	now = now.UTC()
	for _, t := range batch {
		if err := m.applyOne(ctx, tx, t, rate, reason, actorID, now); err != nil {
			return err
		}
	}
	return nil
}

func (m *StatusMachine) applyOne(ctx context.Context, tx *repository.Tx, t transition, rate int64, reason *string, actorID string, now time.Time) error {
	o := t.order
	from := o.Status

	switch t.to {
	case model.OrderStatusRejected:
		if err := m.compensate(ctx, tx, o); err != nil {
			return err
		}
	case model.OrderStatusCompleted:
		o.PointsEarned = EarnedPoints(o.SubTotal, o.DiscountAmount, rate)
		if err := m.loyalty.Credit(ctx, tx, o.UserID, o.PointsEarned); err != nil {
			return err
		}
	}

	o.Status = t.to
	o.ModifiedAt = now
	o.ModifiedBy = actorID
	if err := tx.Orders.UpdateStatus(ctx, o); err != nil {
		return lookupErr(err, ErrOrderNotFound, "order %s", o.ID)
	}
	if err := tx.Orders.AppendHistory(ctx, &model.OrderStatusHistory{
		ID:         uuid.NewString(),
		OrderID:    o.ID,
		Status:     t.to,
		Reason:     reason,
		ModifiedAt: now,
		ModifiedBy: actorID,
	}); err != nil {
		return fmt.Errorf("append history for %s: %w", o.ID, err)
	}
	return enqueueEvent(ctx, tx, model.EventOrderStatusChanged, o, from, reason, actorID, now)
}

// compensate returns every line's quantity to stock and the spent points to the user.
func (m *StatusMachine) compensate(ctx context.Context, tx *repository.Tx, o *model.Order) error {
	items, err := tx.Orders.Items(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("load items of %s: %w", o.ID, err)
	}
	for _, target := range stockTargets(items) {
		if err := m.inventory.Apply(ctx, tx, target.StockTarget, target.qty, ReasonCompensation); err != nil {
			return err
		}
	}
	return m.loyalty.Credit(ctx, tx, o.UserID, o.PointsUsed)
}

func (s *orderService) ManagerTransition(ctx context.Context, req TransitionRequest) (count int, err error) {
	ctx, span := startSpan(ctx, "OrderService.ManagerTransition",
		attribute.Int("orders", len(req.OrderIDs)), attribute.String("status", req.Status))
	var actor string
	defer func() {
		err = finish(ctx, "ManagerTransition", actor, err)
		endSpan(span, err)
	}()

	p, err := s.identity.RequireRole(ctx, model.RoleManager, model.RoleStaff)
	if err != nil {
		return 0, authError(err)
	}
	actor = p.UserID
	if err := validateRequest(req); err != nil {
		return 0, err
	}
	to, err := model.ParseOrderStatus(req.Status)
	if err != nil {
		return 0, ErrValidation.Wrap(err)
	}
	ids := dedupe(req.OrderIDs)

	err = s.store.Atomic(ctx, func(tx *repository.Tx) error {
		orders, err := tx.Orders.GetForUpdate(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock orders: %w", err)
		}
		if missing := missingOrders(ids, orders); len(missing) > 0 {
			return ErrOrderNotFound.With("%s", strings.Join(missing, ","))
		}
		batch, err := s.machine.plan(ActorManager, orders, to)
		if err != nil {
			return err
		}
		return s.machine.apply(ctx, tx, batch, req.Reason, p.UserID, s.now())
	})
	if err != nil {
		return 0, err
	}
	logger.Info("orders transitioned",
		zap.Strings("order_ids", ids),
		zap.String("status", string(to)),
		zap.String("actor", p.UserID))
	return len(ids), nil
}

func (s *orderService) CustomerTransition(ctx context.Context, orderID, status string, reason *string) (ok bool, err error) {
	ctx, span := startSpan(ctx, "OrderService.CustomerTransition",
		attribute.String("order_id", orderID), attribute.String("status", status))
	var actor string
	defer func() {
		err = finish(ctx, "CustomerTransition", actor, err)
		endSpan(span, err)
	}()

	p, err := s.identity.RequireRole(ctx, model.RoleCustomer)
	if err != nil {
		return false, authError(err)
	}
	actor = p.UserID
	if err := validateRequest(TransitionRequest{OrderIDs: []string{orderID}, Status: status, Reason: reason}); err != nil {
		return false, err
	}
	to, err := model.ParseOrderStatus(status)
	if err != nil {
		return false, ErrValidation.Wrap(err)
	}

	err = s.store.Atomic(ctx, func(tx *repository.Tx) error {
		orders, err := tx.Orders.GetForUpdate(ctx, []string{orderID})
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if len(orders) == 0 {
			return ErrOrderNotFound.With("%s", orderID)
		}
		if orders[0].UserID != p.UserID {
			return ErrNotYourOrder
		}
		batch, err := s.machine.plan(ActorCustomer, orders, to)
		if err != nil {
			return err
		}
		return s.machine.apply(ctx, tx, batch, reason, p.UserID, s.now())
	})
	if err != nil {
		return false, err
	}
	logger.Info("order transitioned by customer",
		zap.String("order_id", orderID),
		zap.String("status", string(to)),
		zap.String("actor", p.UserID))
	return true, nil
}

func missingOrders(ids []string, found []*model.Order) []string {
	have := make(map[string]struct{}, len(found))
	for _, o := range found {
		have[o.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
