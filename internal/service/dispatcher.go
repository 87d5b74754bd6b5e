package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
	"github.com/d60-Lab/fulfillment/pkg/logger"
)

// Sink receives committed order events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev *OrderEvent) error
}

// Dispatcher 从 outbox 拉取订单事件并投递到各 Sink
type Dispatcher struct {
	store        *repository.Store
	sinks        []Sink
	batchSize    int
	pollInterval time.Duration
	workers      int
	maxAttempts  int
	claimTimeout time.Duration
	limiter      *rate.Limiter
	now          func() time.Time
	metricsCh    chan time.Duration // outbox->published latency
	log          *zap.Logger
}

func NewDispatcher(store *repository.Store, cfg config.FulfillmentConfig, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{
		store:        store,
		sinks:        sinks,
		batchSize:    cfg.OutboxBatchSize,
		pollInterval: cfg.OutboxPollInterval,
		workers:      cfg.OutboxWorkers,
		maxAttempts:  cfg.OutboxMaxAttempts,
		claimTimeout: cfg.OutboxClaimTimeout,
		now:          time.Now,
		metricsCh:    make(chan time.Duration, 4096),
		log:          logger.Named("dispatcher"),
	}
	if d.batchSize <= 0 {
		d.batchSize = 128
	}
	if d.pollInterval <= 0 {
		d.pollInterval = 200 * time.Millisecond
	}
	if d.workers <= 0 {
		d.workers = 1
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = 5
	}
	if d.claimTimeout <= 0 {
		d.claimTimeout = time.Minute
	}
	limit := rate.Inf
	if cfg.OutboxRatePerSecond > 0 {
		limit = rate.Limit(cfg.OutboxRatePerSecond)
	}
	d.limiter = rate.NewLimiter(limit, d.batchSize)
	return d
}

func (d *Dispatcher) Metrics() <-chan time.Duration { return d.metricsCh }

// Start 启动若干 worker 轮询 outbox；返回停止函数，等待 worker 退出。
func (d *Dispatcher) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.loop(ctx)
		}()
	}
	return func(stopCtx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
				d.log.Warn("dispatch failed", zap.Error(err))
			}
		}
	}
}

// DispatchOnce claims a batch of pending events, publishes each to every sink
// and returns how many were delivered. A failed event goes back to pending
// until it runs out of attempts. Rows left in processing by a dispatcher that
// died mid-batch are claimed again once the claim timeout has passed.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	var batch []*model.OrderOutbox
	now := d.now()
	err := d.store.Atomic(ctx, func(tx *repository.Tx) error {
		b, err := tx.Outbox.Claim(ctx, d.batchSize, now, now.Add(-d.claimTimeout))
		batch = b
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("claim outbox: %w", err)
	}

	outbox := d.store.Reader().Outbox
	delivered := 0
	for _, row := range batch {
		if err := d.limiter.Wait(ctx); err != nil {
			// leave the rest for the next claim
			if err := outbox.MarkRetry(context.WithoutCancel(ctx), row.ID, row.Attempts, d.maxAttempts); err != nil {
				d.log.Error("release claimed event", zap.String("outbox_id", row.ID), zap.Error(err))
			}
			continue
		}
		if err := d.deliver(ctx, row); err != nil {
			attempts := row.Attempts + 1
			d.log.Warn("publish failed",
				zap.String("outbox_id", row.ID),
				zap.String("order_id", row.OrderID),
				zap.Int("attempts", attempts),
				zap.Error(err))
			if err := outbox.MarkRetry(ctx, row.ID, attempts, d.maxAttempts); err != nil {
				return delivered, fmt.Errorf("mark retry %s: %w", row.ID, err)
			}
			if attempts >= d.maxAttempts {
				report(ctx, fmt.Errorf("outbox %s failed after %d attempts: %w", row.ID, attempts, err))
			}
			continue
		}
		if err := outbox.MarkDone(ctx, row.ID, d.now()); err != nil {
			return delivered, fmt.Errorf("mark done %s: %w", row.ID, err)
		}
		delivered++
		select {
		case d.metricsCh <- d.now().Sub(row.CreatedAt):
		default:
		}
	}
	return delivered, nil
}

func (d *Dispatcher) deliver(ctx context.Context, row *model.OrderOutbox) error {
	ev, err := DecodeOrderEvent(row.Payload)
	if err != nil {
		return err
	}
	ev.ID = row.ID
	for _, s := range d.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
	}
	return nil
}
