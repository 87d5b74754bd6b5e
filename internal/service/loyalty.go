package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
)

// LoyaltyLedger moves loyalty points. Balances never go negative.
type LoyaltyLedger struct{}

func NewLoyaltyLedger() *LoyaltyLedger { return &LoyaltyLedger{} }

// Debit fails with InvalidPointBalance when the balance does not cover amount.
func (LoyaltyLedger) Debit(ctx context.Context, tx *repository.Tx, userID string, amount int64) error {
	if amount < 0 {
		return ErrInvalidPointBalance.With("negative debit %d", amount)
	}
	if amount == 0 {
		return nil
	}
	ok, err := tx.Users.DebitPoints(ctx, userID, amount)
	if err != nil {
		return fmt.Errorf("debit points for %s: %w", userID, err)
	}
	if !ok {
		return ErrInvalidPointBalance.With("balance below %d", amount)
	}
	return nil
}

func (LoyaltyLedger) Credit(ctx context.Context, tx *repository.Tx, userID string, amount int64) error {
	if amount < 0 {
		return ErrInvalidPointBalance.With("negative credit %d", amount)
	}
	if amount == 0 {
		return nil
	}
	if err := tx.Users.CreditPoints(ctx, userID, amount); err != nil {
		return fmt.Errorf("credit points for %s: %w", userID, err)
	}
	return nil
}

// SpendablePoints caps a points payment at the whole-unit order total and the balance.
func SpendablePoints(total decimal.Decimal, balance int64) int64 {
	if balance <= 0 || !total.IsPositive() {
		return 0
	}
	whole := total.Floor().IntPart()
	if whole < balance {
		return whole
	}
	return balance
}

// EarnedPoints is floor((subTotal - discount) * rate / 100), never below zero.
func EarnedPoints(subTotal, discount decimal.Decimal, rate int64) int64 {
	base := subTotal.Sub(discount)
	if !base.IsPositive() || rate <= 0 {
		return 0
	}
	return base.Mul(decimal.NewFromInt(rate)).Div(decimal.NewFromInt(100)).Floor().IntPart()
}

// conversionRate reads the points-conversion rate. A missing or non-positive
// value is a configuration error.
func conversionRate(ctx context.Context, tx *repository.Tx) (int64, error) {
	raw, ok, err := tx.Settings.Get(ctx, model.SettingPointConversionRate)
	if err != nil {
		return 0, fmt.Errorf("read setting %s: %w", model.SettingPointConversionRate, err)
	}
	if !ok {
		return 0, ErrConfiguration.With("setting %s is not set", model.SettingPointConversionRate)
	}
	rate, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || rate <= 0 {
		return 0, ErrConfiguration.With("setting %s=%q is not a positive integer", model.SettingPointConversionRate, raw)
	}
	return rate, nil
}
