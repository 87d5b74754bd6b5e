package identity

import (
	"context"
	"errors"
	"slices"

	"github.com/d60-Lab/fulfillment/internal/model"
)

var (
	ErrUnauthenticated = errors.New("identity: not authenticated")
	ErrForbidden       = errors.New("identity: role not permitted")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   model.Role
}

// Provider resolves the current caller and enforces role membership.
type Provider interface {
	CurrentUser(ctx context.Context) (Principal, error)
	RequireRole(ctx context.Context, roles ...model.Role) (Principal, error)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// ContextProvider reads the principal placed on the context by the transport layer.
type ContextProvider struct{}

func NewContextProvider() *ContextProvider { return &ContextProvider{} }

func (ContextProvider) CurrentUser(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	return p, nil
}

func (c ContextProvider) RequireRole(ctx context.Context, roles ...model.Role) (Principal, error) {
	p, err := c.CurrentUser(ctx)
	if err != nil {
		return Principal{}, err
	}
	if !slices.Contains(roles, p.Role) {
		return Principal{}, ErrForbidden
	}
	return p, nil
}
