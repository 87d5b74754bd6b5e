package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
)

// CartContext is what a discount is evaluated against.
type CartContext struct {
	UserID     string
	SubTotal   decimal.Decimal
	ProductIDs []string
	Quantity   int
}

// DiscountResult is a validated discount ready to be redeemed.
type DiscountResult struct {
	Amount   decimal.Decimal
	Discount *model.Discount
	Code     *model.DiscountCode
}

// DiscountEvaluator validates codes in a fixed order; the first failing rule wins.
type DiscountEvaluator struct {
	now func() time.Time
}

func NewDiscountEvaluator(now func() time.Time) *DiscountEvaluator {
	if now == nil {
		now = time.Now
	}
	return &DiscountEvaluator{now: now}
}

// Validate locks the code and its discount, then checks them against cart.
func (e *DiscountEvaluator) Validate(ctx context.Context, tx *repository.Tx, codeOrID string, cart CartContext) (*DiscountResult, error) {
	code, err := tx.Discounts.GetCodeForUpdate(ctx, codeOrID)
	if err != nil {
		return nil, lookupErr(err, ErrInvalidDiscountCode, "code %s not found", codeOrID)
	}
	d, err := tx.Discounts.GetDiscountForUpdate(ctx, code.DiscountID)
	if err != nil {
		return nil, lookupErr(err, ErrInvalidDiscountCode, "discount %s not found", code.DiscountID)
	}

	// usable at all
	if code.Status != model.CodeActive || d.Status != model.RecordActive {
		return nil, ErrInvalidDiscountCode.With("code %s is %s", code.Code, code.Status)
	}
	if code.UserID != nil && *code.UserID != cart.UserID {
		return nil, ErrInvalidDiscountCode.With("code %s belongs to another user", code.Code)
	}
	if d.UsageLimit != nil && d.UsedCount >= *d.UsageLimit {
		return nil, ErrInvalidDiscountCode.With("discount %s usage limit reached", d.ID)
	}

	// time window
	now := e.now()
	if now.Before(code.FromDate) || now.After(code.ToDate) || now.Before(d.FromDate) || now.After(d.ToDate) {
		return nil, ErrInvalidDiscountCode.With("code %s is outside its validity window", code.Code)
	}

	// first order
	if d.IsFirstOrderOnly {
		n, err := tx.Orders.CountByUser(ctx, cart.UserID)
		if err != nil {
			return nil, fmt.Errorf("count orders of %s: %w", cart.UserID, err)
		}
		if n > 0 {
			return nil, ErrOnlyForTheNewUser
		}
	}

	// minimum amount
	if d.MinOrderAmount.Valid && cart.SubTotal.LessThan(d.MinOrderAmount.Decimal) {
		return nil, ErrOrderAmountTooLow.With("sub total %s below %s", cart.SubTotal, d.MinOrderAmount.Decimal)
	}

	// eligible products
	eligible, err := tx.Discounts.EligibleProductIDs(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("eligible products of %s: %w", d.ID, err)
	}
	if len(eligible) > 0 && !slices.ContainsFunc(cart.ProductIDs, func(id string) bool {
		return slices.Contains(eligible, id)
	}) {
		return nil, ErrInvalidDiscountCode.With("no eligible product in cart")
	}

	// quantity bounds
	if d.MinQty != nil && cart.Quantity < *d.MinQty {
		return nil, ErrInvalidQuantity.With("quantity %d below %d", cart.Quantity, *d.MinQty)
	}
	if d.MaxQty != nil && cart.Quantity > *d.MaxQty {
		return nil, ErrExceedMaxQuantity.With("quantity %d above %d", cart.Quantity, *d.MaxQty)
	}

	return &DiscountResult{Amount: discountAmount(d, cart.SubTotal), Discount: d, Code: code}, nil
}

// Redeem records one use of the discount and retires a single-use code.
func (e *DiscountEvaluator) Redeem(ctx context.Context, tx *repository.Tx, r *DiscountResult) error {
	now := e.now()
	r.Discount.UsedCount++
	r.Discount.UpdatedAt = now
	if err := tx.Discounts.UpdateDiscount(ctx, r.Discount); err != nil {
		return fmt.Errorf("update discount %s: %w", r.Discount.ID, err)
	}
	if !r.Code.SingleUse {
		return nil
	}
	r.Code.Status = model.CodeUsed
	r.Code.UpdatedAt = now
	if err := tx.Discounts.UpdateCode(ctx, r.Code); err != nil {
		return fmt.Errorf("update discount code %s: %w", r.Code.ID, err)
	}
	return nil
}

func discountAmount(d *model.Discount, subTotal decimal.Decimal) decimal.Decimal {
	amount := d.Value
	if d.IsPercentage {
		amount = subTotal.Mul(d.Value).Div(decimal.NewFromInt(100)).Round(2)
	}
	if d.MaxDiscount.Valid && amount.GreaterThan(d.MaxDiscount.Decimal) {
		amount = d.MaxDiscount.Decimal
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
