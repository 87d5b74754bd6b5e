package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/fulfillment/internal/identity"
	"github.com/d60-Lab/fulfillment/pkg/logger"
)

// Kind groups error codes by who is at fault.
type Kind int

const (
	KindInput Kind = iota + 1
	KindAuthorization
	KindNotFound
	KindConflict
	KindConfig
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindConfig:
		return "config"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Error is the only error type the engine returns. Two errors are equal under
// errors.Is when their codes match.
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// With returns a copy of e carrying a message.
func (e *Error) With(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// Wrap returns a copy of e wrapping cause.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

var (
	ErrValidation            = &Error{Code: "ValidationError", Kind: KindInput}
	ErrInvalidInput          = &Error{Code: "InvalidInput", Kind: KindInput}
	ErrNotAuthority          = &Error{Code: "NotAuthority", Kind: KindAuthorization}
	ErrNotYourAddress        = &Error{Code: "NotYourAddress", Kind: KindAuthorization}
	ErrNotYourOrder          = &Error{Code: "NotYourOrder", Kind: KindAuthorization}
	ErrProductNotFound       = &Error{Code: "ProductNotFound", Kind: KindNotFound}
	ErrCartItemNotFound      = &Error{Code: "CartItemNotFound", Kind: KindNotFound}
	ErrOrderNotFound         = &Error{Code: "OrderNotFound", Kind: KindNotFound}
	ErrAddressNotFound       = &Error{Code: "AddressNotFound", Kind: KindNotFound}
	ErrPaymentMethodNotFound = &Error{Code: "PaymentMethodNotFound", Kind: KindNotFound}
	ErrOutOfStock            = &Error{Code: "OutOfStock", Kind: KindConflict}
	ErrInvalidSubTotal       = &Error{Code: "InvalidSubTotal", Kind: KindConflict}
	ErrInvalidDiscountCode   = &Error{Code: "InvalidDiscountCode", Kind: KindConflict}
	ErrOnlyForTheNewUser     = &Error{Code: "OnlyForTheNewUser", Kind: KindConflict}
	ErrOrderAmountTooLow     = &Error{Code: "OrderAmountTooLow", Kind: KindConflict}
	ErrInvalidQuantity       = &Error{Code: "InvalidQuantity", Kind: KindConflict}
	ErrExceedMaxQuantity     = &Error{Code: "ExceedMaxQuantity", Kind: KindConflict}
	ErrInvalidPointBalance   = &Error{Code: "InvalidPointBalance", Kind: KindConflict}
	ErrInvalidStatus         = &Error{Code: "InvalidStatus", Kind: KindConflict}
	ErrConfiguration         = &Error{Code: "InternalServerError", Kind: KindConfig}
	ErrInternal              = &Error{Code: "InternalServerError", Kind: KindInternal}
)

// KindOf returns the kind of an engine error, or KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// authError maps identity failures onto NotAuthority.
func authError(err error) error {
	if identity.IsAuthError(err) {
		return ErrNotAuthority.Wrap(err)
	}
	return err
}

// finish is applied to every exposed operation's result. Typed user errors pass
// through; configuration errors and unexpected faults are logged with context and
// reported, and faults are converted to InternalServerError.
func finish(ctx context.Context, op, actorID string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = ErrInternal.Wrap(err)
	}
	fields := []zap.Field{zap.String("op", op), zap.String("actor", actorID), zap.String("code", e.Code), zap.Error(err)}
	switch e.Kind {
	case KindConfig:
		logger.Error("configuration error", fields...)
		report(ctx, e)
	case KindInternal:
		logger.Error("unexpected fault", fields...)
		report(ctx, e)
	default:
		logger.Debug("operation rejected", fields...)
	}
	return e
}

func report(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}
