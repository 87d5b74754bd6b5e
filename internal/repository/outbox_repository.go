package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/fulfillment/internal/model"
)

type OutboxRepository interface {
	Add(ctx context.Context, e *model.OrderOutbox) error
	// Claim locks up to limit pending rows, plus processing rows claimed before
	// staleBefore, and marks them processing at now. It must run inside
	// Store.Atomic so the lock and the status flip commit together.
	Claim(ctx context.Context, limit int, now, staleBefore time.Time) ([]*model.OrderOutbox, error)
	MarkDone(ctx context.Context, id string, at time.Time) error
	// MarkRetry records a failed attempt: back to pending, or failed once attempts reach max.
	MarkRetry(ctx context.Context, id string, attempts, maxAttempts int) error
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepository{db: db} }

func (r *outboxRepository) Add(ctx context.Context, e *model.OrderOutbox) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *outboxRepository) Claim(ctx context.Context, limit int, now, staleBefore time.Time) ([]*model.OrderOutbox, error) {
	var batch []*model.OrderOutbox
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? OR (status = ? AND claimed_at < ?)", model.OutboxPending, model.OutboxProcessing, staleBefore).
		Order("created_at, id").
		Limit(limit).
		Find(&batch).Error
	if err != nil || len(batch) == 0 {
		return nil, err
	}
	ids := make([]string, len(batch))
	for i, b := range batch {
		ids[i] = b.ID
		b.Status = model.OutboxProcessing
		b.ClaimedAt = &now
	}
	if err := r.db.WithContext(ctx).Model(&model.OrderOutbox{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"status": model.OutboxProcessing, "claimed_at": now}).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *outboxRepository) MarkDone(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.OrderOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxDone, "processed_at": at}).Error
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id string, attempts, maxAttempts int) error {
	status := model.OutboxPending
	if maxAttempts > 0 && attempts >= maxAttempts {
		status = model.OutboxFailed
	}
	return r.db.WithContext(ctx).Model(&model.OrderOutbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "attempts": attempts}).Error
}

func (r *outboxRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.OrderOutbox{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
