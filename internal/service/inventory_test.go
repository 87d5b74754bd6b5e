package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
)

func applyStock(f *fixture, target StockTarget, delta int, reason StockReason) error {
	ledger := NewInventoryLedger(func() time.Time { return testNow })
	return f.store.Atomic(context.Background(), func(tx *repository.Tx) error {
		return ledger.Apply(context.Background(), tx, target, delta, reason)
	})
}

func TestInventoryLedger_SaleToZeroMarksOutOfStock(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(10, 2)

	require.NoError(t, applyStock(f, StockTarget{ID: p.ID}, -2, ReasonSale))

	got := f.product(p.ID)
	assert.Equal(t, 0, got.StockQuantity)
	assert.Equal(t, 2, got.SoldQuantity)
	assert.Equal(t, model.StockOutOfStock, got.Status)
}

func TestInventoryLedger_OversellIsRefusedUnchanged(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(10, 0)
	v := f.addVariant(p.ID, 10, 1)

	err := applyStock(f, StockTarget{ID: v.ID, IsVariant: true}, -2, ReasonSale)
	require.ErrorIs(t, err, ErrOutOfStock)

	got := f.variant(v.ID)
	assert.Equal(t, 1, got.StockQuantity)
	assert.Zero(t, got.SoldQuantity)
	assert.Equal(t, model.StockActive, got.Status)
}

func TestInventoryLedger_CompensationRevivesStatus(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(10, 0)
	v := f.addVariant(p.ID, 10, 1)
	target := StockTarget{ID: v.ID, IsVariant: true}

	require.NoError(t, applyStock(f, target, -1, ReasonSale))
	require.Equal(t, model.StockOutOfStock, f.variant(v.ID).Status)

	require.NoError(t, applyStock(f, target, 1, ReasonCompensation))
	got := f.variant(v.ID)
	assert.Equal(t, 1, got.StockQuantity)
	assert.Zero(t, got.SoldQuantity)
	assert.Equal(t, model.StockActive, got.Status)
}

func TestInventoryLedger_CompensationFloorsSoldAtZero(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(10, 1)
	require.NoError(t, f.db.Model(p).Update("sold_quantity", 1).Error)

	require.NoError(t, applyStock(f, StockTarget{ID: p.ID}, 3, ReasonCompensation))
	got := f.product(p.ID)
	assert.Equal(t, 4, got.StockQuantity)
	assert.Zero(t, got.SoldQuantity)
}

func TestInventoryLedger_RestockKeepsSoldAndInactive(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(10, 0)
	require.NoError(t, f.db.Model(p).Updates(map[string]any{"sold_quantity": 5, "status": model.StockInactive}).Error)

	require.NoError(t, applyStock(f, StockTarget{ID: p.ID}, 4, ReasonRestock))
	got := f.product(p.ID)
	assert.Equal(t, 4, got.StockQuantity)
	assert.Equal(t, 5, got.SoldQuantity)
	assert.Equal(t, model.StockInactive, got.Status)
}

func TestInventoryLedger_RejectsWrongSignAndMissingTarget(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(10, 1)

	assert.ErrorIs(t, applyStock(f, StockTarget{ID: p.ID}, 1, ReasonSale), ErrInvalidInput)
	assert.ErrorIs(t, applyStock(f, StockTarget{ID: p.ID}, -1, ReasonCompensation), ErrInvalidInput)
	assert.ErrorIs(t, applyStock(f, StockTarget{ID: "missing", IsVariant: true}, -1, ReasonSale), ErrProductNotFound)
	assert.ErrorIs(t, applyStock(f, StockTarget{ID: "missing"}, 1, ReasonRestock), ErrProductNotFound)
}

func TestStockTargets_SumsAndOrders(t *testing.T) {
	items := []*model.OrderItem{
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", VariantID: ptr("v9"), Quantity: 2},
		{ProductID: "p2", Quantity: 3},
		{ProductID: "p1", VariantID: ptr("v9"), Quantity: 1},
		{ProductID: "p1", VariantID: ptr(""), Quantity: 1},
	}
	got := stockTargets(items)
	require.Len(t, got, 3)
	assert.Equal(t, targetQty{StockTarget{ID: "p1"}, 1}, got[0])
	assert.Equal(t, targetQty{StockTarget{ID: "p2"}, 4}, got[1])
	assert.Equal(t, targetQty{StockTarget{ID: "v9", IsVariant: true}, 3}, got[2])
}
