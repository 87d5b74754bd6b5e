package leader

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/pkg/logger"
)

// Elector runs a function on exactly one replica at a time, using an etcd election.
type Elector struct {
	client *clientv3.Client
	key    string
	ttl    int
	id     string
	retry  time.Duration
	log    *zap.Logger
}

func NewElector(cfg *config.EtcdConfig, id string) (*Elector, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 15
	}
	return &Elector{
		client: cli,
		key:    cfg.ElectionKey,
		ttl:    ttl,
		id:     id,
		retry:  time.Second,
		log:    logger.Named("leader").With(zap.String("key", cfg.ElectionKey), zap.String("id", id)),
	}, nil
}

func (e *Elector) Close() error {
	return e.client.Close()
}

// Lead campaigns until elected, then runs fn with a context that is cancelled
// when leadership is lost. After losing it campaigns again. Lead returns when
// ctx is done and fn has returned.
func (e *Elector) Lead(ctx context.Context, fn func(context.Context)) {
	for ctx.Err() == nil {
		if err := e.term(ctx, fn); err != nil && ctx.Err() == nil {
			e.log.Warn("election round failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(e.retry):
			}
		}
	}
}

func (e *Elector) term(ctx context.Context, fn func(context.Context)) error {
	session, err := concurrency.NewSession(e.client, concurrency.WithTTL(e.ttl), concurrency.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer session.Close()

	election := concurrency.NewElection(session, e.key)
	if err := election.Campaign(ctx, e.id); err != nil {
		return fmt.Errorf("campaign: %w", err)
	}
	e.log.Info("elected leader")

	leadCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(leadCtx)
	}()

	select {
	case <-session.Done():
		e.log.Warn("leadership lost")
	case <-ctx.Done():
	case <-done:
	}
	cancel()
	<-done

	resignCtx, cancelResign := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelResign()
	if err := election.Resign(resignCtx); err != nil {
		e.log.Warn("resign failed", zap.Error(err))
	}
	return nil
}
