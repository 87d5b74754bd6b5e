package model

import (
	"fmt"
	"strings"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusStuffing  OrderStatus = "Stuffing"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusRejected  OrderStatus = "Rejected"
)

// ParseOrderStatus rejects anything outside the known set. "Cancelled" is an
// alias of Rejected: both are the compensating terminal state.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return OrderStatusPending, nil
	case "stuffing":
		return OrderStatusStuffing, nil
	case "shipped":
		return OrderStatusShipped, nil
	case "completed":
		return OrderStatusCompleted, nil
	case "rejected", "cancelled", "canceled":
		return OrderStatusRejected, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Terminal statuses accept no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusRejected
}

// StockStatus is shared by products and variants.
type StockStatus string

const (
	StockActive     StockStatus = "Active"
	StockOutOfStock StockStatus = "OutOfStock"
	StockInactive   StockStatus = "Inactive"
)

type CodeStatus string

const (
	CodeActive   CodeStatus = "Active"
	CodeInactive CodeStatus = "Inactive"
	CodeUsed     CodeStatus = "Used"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
)

type Role string

const (
	RoleCustomer Role = "Customer"
	RoleStaff    Role = "Staff"
	RoleManager  Role = "Manager"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCustomer, RoleStaff, RoleManager:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// RecordStatus applies to addresses and discounts.
type RecordStatus string

const (
	RecordActive   RecordStatus = "Active"
	RecordInactive RecordStatus = "Inactive"
)
