package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
	"github.com/d60-Lab/fulfillment/pkg/logger"
)

// Sweeper completes orders that have sat in Shipped past the retention window.
type Sweeper struct {
	store         *repository.Store
	machine       *StatusMachine
	retentionDays int
	hour          int
	now           func() time.Time
	after         func(time.Duration) <-chan time.Time
	log           *zap.Logger
}

type SweeperOption func(*Sweeper)

// WithSweeperClock injects the wall clock and the sleep primitive.
func WithSweeperClock(now func() time.Time, after func(time.Duration) <-chan time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
		if after != nil {
			s.after = after
		}
	}
}

func NewSweeper(store *repository.Store, cfg config.FulfillmentConfig, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:         store,
		retentionDays: cfg.RetentionDays,
		hour:          cfg.SweepHour,
		now:           time.Now,
		after:         time.After,
		log:           logger.Named("sweeper"),
	}
	if s.retentionDays <= 0 {
		s.retentionDays = 10
	}
	if s.hour < 0 || s.hour > 23 {
		s.hour = 2
	}
	for _, opt := range opts {
		opt(s)
	}
	inventory := NewInventoryLedger(s.now)
	s.machine = NewStatusMachine(inventory, NewLoyaltyLedger())
	return s
}

// RunSweepOnce completes every order Shipped before now minus retentionDays in
// one unit of work and returns how many it moved. An order with corrupt point
// fields fails the whole sweep and nothing is moved.
func (s *Sweeper) RunSweepOnce(ctx context.Context, now time.Time, retentionDays int) (affected int, err error) {
	ctx, span := startSpan(ctx, "Sweeper.RunSweepOnce", attribute.Int("retention_days", retentionDays))
	defer func() {
		err = finish(ctx, "RunSweepOnce", SystemActorID, err)
		endSpan(span, err)
	}()

	cutoff := now.UTC().AddDate(0, 0, -retentionDays)
	err = s.store.Atomic(ctx, func(tx *repository.Tx) error {
		orders, err := tx.Orders.ListShippedBeforeForUpdate(ctx, cutoff, 0)
		if err != nil {
			return fmt.Errorf("list shipped orders: %w", err)
		}
		batch := make([]transition, 0, len(orders))
		for _, o := range orders {
			if err := checkPoints(o); err != nil {
				s.log.Error("corrupt points on shipped order", zap.String("order_id", o.ID), zap.Error(err))
				return err
			}
			batch = append(batch, transition{order: o, to: model.OrderStatusCompleted})
		}
		if len(batch) == 0 {
			return nil
		}
		if err := s.machine.apply(ctx, tx, batch, nil, SystemActorID, now); err != nil {
			return err
		}
		affected = len(batch)
		return nil
	})
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("affected", affected))
	return affected, nil
}

// NextRun is the next occurrence of the sweep hour strictly after now, in now's location.
func (s *Sweeper) NextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run sweeps, then sleeps until the next sweep hour, until ctx is cancelled.
// A failed sweep is logged and the loop carries on.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		now := s.now()
		n, err := s.RunSweepOnce(ctx, now, s.retentionDays)
		next := s.NextRun(now)
		if err != nil {
			s.log.Error("sweep failed", zap.Error(err), zap.Time("next_run", next))
		} else {
			s.log.Info("sweep done", zap.Int("completed", n), zap.Time("next_run", next))
		}

		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-s.after(next.Sub(now)):
		}
	}
}

// Start runs the loop in a goroutine. The returned func cancels it and waits for exit.
func (s *Sweeper) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
