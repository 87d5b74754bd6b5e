package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
)

func validateCode(f *fixture, code string, cart CartContext) (*DiscountResult, error) {
	ev := NewDiscountEvaluator(func() time.Time { return testNow })
	var res *DiscountResult
	err := f.store.Atomic(context.Background(), func(tx *repository.Tx) error {
		r, err := ev.Validate(context.Background(), tx, code, cart)
		res = r
		return err
	})
	return res, err
}

func TestDiscountEvaluator_Rules(t *testing.T) {
	f := newFixture(t)
	user := f.addCustomer(0)
	other := f.addCustomer(0)
	eligible := f.addProduct(10, 10)
	cart := CartContext{UserID: user.ID, SubTotal: dec(200), ProductIDs: []string{eligible.ID}, Quantity: 2}

	// a prior order makes user no longer new
	veteran := f.addCustomer(0)
	f.create(&model.Order{
		ID: uuid.NewString(), Code: "ORD-OLD", UserID: veteran.ID, AddressID: "a",
		Status: model.OrderStatusCompleted, CreatedAt: testNow, ModifiedAt: testNow,
	})

	tests := []struct {
		name   string
		mutate func(d *model.Discount, c *model.DiscountCode)
		cart   func(c CartContext) CartContext
		want   *Error
	}{
		{name: "code inactive", mutate: func(_ *model.Discount, c *model.DiscountCode) { c.Status = model.CodeInactive }, want: ErrInvalidDiscountCode},
		{name: "code used", mutate: func(_ *model.Discount, c *model.DiscountCode) { c.Status = model.CodeUsed }, want: ErrInvalidDiscountCode},
		{name: "discount inactive", mutate: func(d *model.Discount, _ *model.DiscountCode) { d.Status = model.RecordInactive }, want: ErrInvalidDiscountCode},
		{name: "bound to another user", mutate: func(_ *model.Discount, c *model.DiscountCode) { c.UserID = &other.ID }, want: ErrInvalidDiscountCode},
		{name: "usage limit reached", mutate: func(d *model.Discount, _ *model.DiscountCode) { d.UsageLimit = ptr(3); d.UsedCount = 3 }, want: ErrInvalidDiscountCode},
		{name: "code expired", mutate: func(_ *model.Discount, c *model.DiscountCode) { c.ToDate = testNow.Add(-time.Hour) }, want: ErrInvalidDiscountCode},
		{name: "code not started", mutate: func(_ *model.Discount, c *model.DiscountCode) { c.FromDate = testNow.Add(time.Hour) }, want: ErrInvalidDiscountCode},
		{name: "discount expired", mutate: func(d *model.Discount, _ *model.DiscountCode) { d.ToDate = testNow.Add(-time.Hour) }, want: ErrInvalidDiscountCode},
		{
			name:   "first order only",
			mutate: func(d *model.Discount, _ *model.DiscountCode) { d.IsFirstOrderOnly = true },
			cart:   func(c CartContext) CartContext { c.UserID = veteran.ID; return c },
			want:   ErrOnlyForTheNewUser,
		},
		{
			name:   "below minimum amount",
			mutate: func(d *model.Discount, _ *model.DiscountCode) { d.MinOrderAmount = decimal.NewNullDecimal(dec(500)) },
			want:   ErrOrderAmountTooLow,
		},
		{
			name: "no eligible product",
			mutate: func(d *model.Discount, _ *model.DiscountCode) {
				f.create(&model.DiscountProduct{DiscountID: d.ID, ProductID: "something-else"})
			},
			want: ErrInvalidDiscountCode,
		},
		{name: "below min quantity", mutate: func(d *model.Discount, _ *model.DiscountCode) { d.MinQty = ptr(3) }, want: ErrInvalidQuantity},
		{name: "above max quantity", mutate: func(d *model.Discount, _ *model.DiscountCode) { d.MaxQty = ptr(1) }, want: ErrExceedMaxQuantity},
		{
			name: "window beats amount",
			mutate: func(d *model.Discount, c *model.DiscountCode) {
				c.ToDate = testNow.Add(-time.Hour)
				d.MinOrderAmount = decimal.NewNullDecimal(dec(500))
			},
			want: ErrInvalidDiscountCode,
		},
		{
			name: "amount beats quantity",
			mutate: func(d *model.Discount, _ *model.DiscountCode) {
				d.MinOrderAmount = decimal.NewNullDecimal(dec(500))
				d.MaxQty = ptr(1)
			},
			want: ErrOrderAmountTooLow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, code := f.addDiscount(tt.mutate)
			c := cart
			if tt.cart != nil {
				c = tt.cart(c)
			}
			_, err := validateCode(f, code.Code, c)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDiscountEvaluator_Amounts(t *testing.T) {
	f := newFixture(t)
	user := f.addCustomer(0)
	p := f.addProduct(10, 10)
	cart := CartContext{UserID: user.ID, SubTotal: dec(200), ProductIDs: []string{p.ID}, Quantity: 2}

	_, flat := f.addDiscount(nil)
	res, err := validateCode(f, flat.ID, cart)
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(dec(20)))

	_, pct := f.addDiscount(func(d *model.Discount, _ *model.DiscountCode) {
		d.IsPercentage = true
		d.Value = dec(15)
	})
	res, err = validateCode(f, pct.Code, cart)
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(dec(30)), "amount %s", res.Amount)

	_, capped := f.addDiscount(func(d *model.Discount, _ *model.DiscountCode) {
		d.IsPercentage = true
		d.Value = dec(50)
		d.MaxDiscount = decimal.NewNullDecimal(dec(40))
	})
	res, err = validateCode(f, capped.Code, cart)
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(dec(40)))

	_, mine := f.addDiscount(func(d *model.Discount, c *model.DiscountCode) {
		c.UserID = &user.ID
		f.create(&model.DiscountProduct{DiscountID: d.ID, ProductID: p.ID})
	})
	_, err = validateCode(f, mine.Code, cart)
	assert.NoError(t, err)
}

func TestDiscountEvaluator_Redeem(t *testing.T) {
	f := newFixture(t)
	user := f.addCustomer(0)
	cart := CartContext{UserID: user.ID, SubTotal: dec(100), Quantity: 1}
	ev := NewDiscountEvaluator(func() time.Time { return testNow })
	ctx := context.Background()

	redeem := func(code string) {
		t.Helper()
		require.NoError(t, f.store.Atomic(ctx, func(tx *repository.Tx) error {
			r, err := ev.Validate(ctx, tx, code, cart)
			if err != nil {
				return err
			}
			return ev.Redeem(ctx, tx, r)
		}))
	}

	d, reusable := f.addDiscount(nil)
	redeem(reusable.Code)
	redeem(reusable.Code)
	var gotD model.Discount
	require.NoError(t, f.db.Where("id = ?", d.ID).First(&gotD).Error)
	assert.Equal(t, 2, gotD.UsedCount)
	var gotC model.DiscountCode
	require.NoError(t, f.db.Where("id = ?", reusable.ID).First(&gotC).Error)
	assert.Equal(t, model.CodeActive, gotC.Status)

	_, single := f.addDiscount(func(_ *model.Discount, c *model.DiscountCode) { c.SingleUse = true })
	redeem(single.Code)
	_, err := validateCode(f, single.Code, cart)
	assert.ErrorIs(t, err, ErrInvalidDiscountCode)
}
