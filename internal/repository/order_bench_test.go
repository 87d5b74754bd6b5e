package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/d60-Lab/fulfillment/internal/model"
)

func BenchmarkOutboxClaimAndMark(b *testing.B) {
	s, _ := setupStore(b)
	ctx := context.Background()
	outbox := s.Reader().Outbox
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		// 每轮预写 64 条待投递事件
		for j := 0; j < 64; j++ {
			_ = outbox.Add(ctx, &model.OrderOutbox{
				ID: fmt.Sprintf("e%d-%d", i, j), OrderID: "o1", EventType: model.EventOrderStatusChanged,
				Payload: "{}", Status: model.OutboxPending, CreatedAt: base,
			})
		}
		b.StartTimer()

		var batch []*model.OrderOutbox
		_ = s.Atomic(ctx, func(tx *Tx) error {
			var err error
			batch, err = tx.Outbox.Claim(ctx, 64, base, base.Add(-time.Minute))
			return err
		})
		for _, row := range batch {
			_ = outbox.MarkDone(ctx, row.ID, base)
		}
	}
}

func BenchmarkDebitPoints(b *testing.B) {
	s, db := setupStore(b)
	ctx := context.Background()
	users := s.Reader().Users
	if err := db.Create(&model.User{ID: "u0", Name: "u0", Role: model.RoleCustomer, Point: int64(b.N)}).Error; err != nil {
		b.Fatalf("seed user: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if ok, err := users.DebitPoints(ctx, "u0", 1); err != nil || !ok {
			b.Fatalf("debit %d: ok=%v err=%v", i, ok, err)
		}
	}
}
