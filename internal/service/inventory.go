package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
)

// StockReason tells the inventory ledger why a delta is applied.
type StockReason int

const (
	ReasonSale StockReason = iota + 1
	ReasonCompensation
	ReasonRestock
)

// StockTarget is a product or one of its variants.
type StockTarget struct {
	ID        string
	IsVariant bool
}

// stockRow is the part of a product or variant the ledger mutates.
type stockRow struct {
	stock  *int
	sold   *int
	status *model.StockStatus
}

// InventoryLedger applies stock deltas under a row lock held by the enclosing unit of work.
type InventoryLedger struct {
	now func() time.Time
}

func NewInventoryLedger(now func() time.Time) *InventoryLedger {
	if now == nil {
		now = time.Now
	}
	return &InventoryLedger{now: now}
}

// Apply adds delta to the target's stock. A sale that would take stock below
// zero fails with OutOfStock and writes nothing.
func (l *InventoryLedger) Apply(ctx context.Context, tx *repository.Tx, target StockTarget, delta int, reason StockReason) error {
	if reason == ReasonSale && delta > 0 {
		return ErrInvalidInput.With("sale delta must not be positive")
	}
	if reason != ReasonSale && delta < 0 {
		return ErrInvalidInput.With("restock delta must not be negative")
	}

	if target.IsVariant {
		v, err := tx.Catalog.GetVariantForUpdate(ctx, target.ID)
		if err != nil {
			return lookupErr(err, ErrProductNotFound, "variant %s", target.ID)
		}
		if err := applyDelta(stockRow{&v.StockQuantity, &v.SoldQuantity, &v.Status}, delta, reason); err != nil {
			return err
		}
		v.UpdatedAt = l.now()
		if err := tx.Catalog.UpdateVariant(ctx, v); err != nil {
			return fmt.Errorf("update variant %s: %w", v.ID, err)
		}
		return nil
	}

	p, err := tx.Catalog.GetProductForUpdate(ctx, target.ID)
	if err != nil {
		return lookupErr(err, ErrProductNotFound, "product %s", target.ID)
	}
	if err := applyDelta(stockRow{&p.StockQuantity, &p.SoldQuantity, &p.Status}, delta, reason); err != nil {
		return err
	}
	p.UpdatedAt = l.now()
	if err := tx.Catalog.UpdateProduct(ctx, p); err != nil {
		return fmt.Errorf("update product %s: %w", p.ID, err)
	}
	return nil
}

func applyDelta(row stockRow, delta int, reason StockReason) error {
	next := *row.stock + delta
	if next < 0 {
		return ErrOutOfStock.With("stock %d, requested %d", *row.stock, -delta)
	}
	*row.stock = next

	switch reason {
	case ReasonSale:
		*row.sold += -delta
	case ReasonCompensation:
		*row.sold -= delta
		if *row.sold < 0 {
			*row.sold = 0
		}
	}

	// Inactive is a catalog decision and is never overridden here.
	if *row.status == model.StockInactive {
		return nil
	}
	if next == 0 {
		*row.status = model.StockOutOfStock
	} else if reason != ReasonSale && *row.status == model.StockOutOfStock {
		*row.status = model.StockActive
	}
	return nil
}

// lookupErr maps a repository miss to the given not-found code and passes other faults through.
func lookupErr(err error, code *Error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return code.With(format, args...)
	}
	return err
}
