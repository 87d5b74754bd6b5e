package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/internal/identity"
	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
	"github.com/d60-Lab/fulfillment/pkg/logger"
)

// fallbackShippingFee applies when neither the settings table nor config yield a fee.
var fallbackShippingFee = decimal.NewFromInt(30)

// CreateOrderRequest 下单请求
type CreateOrderRequest struct {
	CartLineIDs     []string `validate:"required,min=1,dive,required"`
	AddressID       string   `validate:"required"`
	PaymentMethodID string   `validate:"required"`
	// DiscountCode is a code id or the code string; empty means none.
	DiscountCode     string
	UseLoyaltyPoints bool
	Note             string `validate:"max=500"`
}

// TransitionRequest moves one or more orders to Status.
type TransitionRequest struct {
	OrderIDs []string `validate:"required,min=1,dive,required"`
	Status   string   `validate:"required"`
	Reason   *string  `validate:"omitempty,max=500"`
}

// OrderService 订单履约服务
type OrderService interface {
	// CreateOrder converts the caller's cart lines into a Pending order and returns its id.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (string, error)
	// ManagerTransition moves every listed order or none of them, returning the count moved.
	ManagerTransition(ctx context.Context, req TransitionRequest) (int, error)
	// CustomerTransition moves one of the caller's own orders.
	CustomerTransition(ctx context.Context, orderID, status string, reason *string) (bool, error)
}

type Option func(*orderService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *orderService) { s.now = now }
}

type orderService struct {
	store       *repository.Store
	identity    identity.Provider
	inventory   *InventoryLedger
	discounts   *DiscountEvaluator
	loyalty     *LoyaltyLedger
	machine     *StatusMachine
	now         func() time.Time
	shippingFee decimal.Decimal
}

func NewOrderService(store *repository.Store, ids identity.Provider, cfg config.FulfillmentConfig, opts ...Option) OrderService {
	s := &orderService{store: store, identity: ids, now: time.Now, shippingFee: fallbackShippingFee}
	for _, opt := range opts {
		opt(s)
	}
	if fee, err := decimal.NewFromString(strings.TrimSpace(cfg.DefaultShippingFee)); err == nil && !fee.IsNegative() {
		s.shippingFee = fee
	}
	s.inventory = NewInventoryLedger(s.now)
	s.discounts = NewDiscountEvaluator(s.now)
	s.loyalty = NewLoyaltyLedger()
	s.machine = NewStatusMachine(s.inventory, s.loyalty)
	return s
}

// targetQty is the total quantity of one stock target across lines.
type targetQty struct {
	StockTarget
	qty int
}

func compareTargets(a, b StockTarget) int {
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	switch {
	case a.IsVariant == b.IsVariant:
		return 0
	case a.IsVariant:
		return 1
	}
	return -1
}

// stockTargets sums item quantities per target, in lock order.
func stockTargets(items []*model.OrderItem) []targetQty {
	byTarget := make(map[StockTarget]int, len(items))
	for _, it := range items {
		byTarget[itemTarget(it.ProductID, it.VariantID)] += it.Quantity
	}
	out := make([]targetQty, 0, len(byTarget))
	for t, q := range byTarget {
		out = append(out, targetQty{StockTarget: t, qty: q})
	}
	slices.SortFunc(out, func(a, b targetQty) int { return compareTargets(a.StockTarget, b.StockTarget) })
	return out
}

func itemTarget(productID string, variantID *string) StockTarget {
	if variantID != nil && *variantID != "" {
		return StockTarget{ID: *variantID, IsVariant: true}
	}
	return StockTarget{ID: productID}
}

// pricedTarget is a locked product or variant with its resolved price and names.
type pricedTarget struct {
	price       decimal.Decimal
	productName string
	variantName string
	productID   string
}

func (s *orderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (orderID string, err error) {
	ctx, span := startSpan(ctx, "OrderService.CreateOrder", attribute.Int("cart_lines", len(req.CartLineIDs)))
	var actor string
	defer func() {
		err = finish(ctx, "CreateOrder", actor, err)
		endSpan(span, err)
	}()

	p, err := s.identity.RequireRole(ctx, model.RoleCustomer)
	if err != nil {
		return "", authError(err)
	}
	actor = p.UserID
	if err := validateRequest(req); err != nil {
		return "", err
	}
	req.CartLineIDs = dedupe(req.CartLineIDs)

	var order *model.Order
	err = s.store.Atomic(ctx, func(tx *repository.Tx) error {
		o, err := s.assemble(ctx, tx, p, req)
		order = o
		return err
	})
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("order_id", order.ID))
	logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("code", order.Code),
		zap.String("user_id", order.UserID),
		zap.String("total", order.TotalAmount.String()),
		zap.Int64("points_used", order.PointsUsed))
	return order.ID, nil
}

// assemble runs checkout inside tx. Row locks are taken in a fixed order:
// cart lines, then products and variants by id, then the discount code and discount.
func (s *orderService) assemble(ctx context.Context, tx *repository.Tx, p identity.Principal, req CreateOrderRequest) (*model.Order, error) {
	lines, err := tx.Carts.GetLinesForUpdate(ctx, req.CartLineIDs, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	if len(lines) != len(req.CartLineIDs) {
		return nil, ErrCartItemNotFound.With("%d of %d cart lines found", len(lines), len(req.CartLineIDs))
	}

	// price every line against locked catalog rows, in a fixed lock order
	wanted := make(map[StockTarget]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrValidation.With("cart line %s has quantity %d", l.ID, l.Quantity)
		}
		wanted[itemTarget(l.ProductID, l.VariantID)] += l.Quantity
	}
	targets := make([]StockTarget, 0, len(wanted))
	for t := range wanted {
		targets = append(targets, t)
	}
	slices.SortFunc(targets, compareTargets)

	priced := make(map[StockTarget]pricedTarget, len(targets))
	for _, t := range targets {
		pt, err := s.lockTarget(ctx, tx, t, wanted[t])
		if err != nil {
			return nil, err
		}
		priced[t] = pt
	}

	items := make([]*model.OrderItem, 0, len(lines))
	subTotal := decimal.Zero
	quantity := 0
	productIDs := make([]string, 0, len(lines))
	for _, l := range lines {
		t := itemTarget(l.ProductID, l.VariantID)
		pt := priced[t]
		if t.IsVariant && pt.productID != l.ProductID {
			return nil, ErrProductNotFound.With("variant %s does not belong to product %s", t.ID, l.ProductID)
		}
		subTotal = subTotal.Add(pt.price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		quantity += l.Quantity
		productIDs = append(productIDs, l.ProductID)
		items = append(items, &model.OrderItem{
			ID:          uuid.NewString(),
			ProductID:   l.ProductID,
			VariantID:   l.VariantID,
			Quantity:    l.Quantity,
			Price:       pt.price,
			ProductName: pt.productName,
			VariantName: pt.variantName,
		})
	}

	if !subTotal.IsPositive() {
		return nil, ErrInvalidSubTotal.With("sub total %s", subTotal)
	}

	shippingFee, err := s.resolveShippingFee(ctx, tx)
	if err != nil {
		return nil, err
	}

	var disc *DiscountResult
	discountAmount := decimal.Zero
	if req.DiscountCode != "" {
		disc, err = s.discounts.Validate(ctx, tx, req.DiscountCode, CartContext{
			UserID:     p.UserID,
			SubTotal:   subTotal,
			ProductIDs: productIDs,
			Quantity:   quantity,
		})
		if err != nil {
			return nil, err
		}
		discountAmount = disc.Amount
	}

	total := subTotal.Add(shippingFee).Sub(discountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	method, err := tx.Payments.GetMethod(ctx, req.PaymentMethodID)
	if err != nil {
		return nil, lookupErr(err, ErrPaymentMethodNotFound, "payment method %s", req.PaymentMethodID)
	}
	addr, err := tx.Addresses.Get(ctx, req.AddressID)
	if err != nil {
		return nil, lookupErr(err, ErrAddressNotFound, "address %s", req.AddressID)
	}
	if addr.Status != model.RecordActive {
		return nil, ErrAddressNotFound.With("address %s is %s", addr.ID, addr.Status)
	}
	if addr.UserID != p.UserID {
		return nil, ErrNotYourAddress
	}

	// rate must be valid now even though it is only applied at completion
	if _, err := conversionRate(ctx, tx); err != nil {
		return nil, err
	}

	user, err := tx.Users.Get(ctx, p.UserID)
	if err != nil {
		return nil, lookupErr(err, ErrNotAuthority, "user %s", p.UserID)
	}
	var pointsUsed int64
	if req.UseLoyaltyPoints {
		pointsUsed = SpendablePoints(total, user.Point)
	}

	now := s.now().UTC()
	order := &model.Order{
		ID:             uuid.NewString(),
		Code:           orderCode(now),
		UserID:         p.UserID,
		AddressID:      addr.ID,
		SubTotal:       subTotal,
		ShippingFee:    shippingFee,
		DiscountAmount: discountAmount,
		TotalAmount:    total,
		PointsUsed:     pointsUsed,
		Note:           req.Note,
		Status:         model.OrderStatusPending,
		CreatedAt:      now,
		CreatedBy:      p.UserID,
		ModifiedAt:     now,
		ModifiedBy:     p.UserID,
	}
	if disc != nil {
		order.DiscountCodeID = &disc.Code.ID
	}
	for _, it := range items {
		it.OrderID = order.ID
	}
	if err := tx.Orders.Create(ctx, order, items); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := tx.Orders.AppendHistory(ctx, &model.OrderStatusHistory{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		Status:     model.OrderStatusPending,
		ModifiedAt: now,
		ModifiedBy: p.UserID,
	}); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	if disc != nil {
		if err := s.discounts.Redeem(ctx, tx, disc); err != nil {
			return nil, err
		}
	}

	if err := s.createPayments(ctx, tx, order, method); err != nil {
		return nil, err
	}

	removed, err := tx.Carts.Remove(ctx, req.CartLineIDs, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("remove cart lines: %w", err)
	}
	if removed != int64(len(req.CartLineIDs)) {
		return nil, ErrCartItemNotFound.With("%d of %d cart lines removed", removed, len(req.CartLineIDs))
	}

	// stock moves last; every target is already locked
	for _, t := range stockTargets(items) {
		if err := s.inventory.Apply(ctx, tx, t.StockTarget, -t.qty, ReasonSale); err != nil {
			return nil, err
		}
	}

	if err := enqueueEvent(ctx, tx, model.EventOrderCreated, order, "", nil, p.UserID, now); err != nil {
		return nil, err
	}
	return order, nil
}

// lockTarget lock-reads a product or variant and checks it can supply qty.
func (s *orderService) lockTarget(ctx context.Context, tx *repository.Tx, t StockTarget, qty int) (pricedTarget, error) {
	if !t.IsVariant {
		prod, err := tx.Catalog.GetProductForUpdate(ctx, t.ID)
		if err != nil {
			return pricedTarget{}, lookupErr(err, ErrProductNotFound, "product %s", t.ID)
		}
		if prod.Status != model.StockActive || prod.StockQuantity < qty {
			return pricedTarget{}, ErrOutOfStock.With("product %s: %s, stock %d, requested %d", prod.ID, prod.Status, prod.StockQuantity, qty)
		}
		return pricedTarget{price: prod.Price, productName: prod.Name, productID: prod.ID}, nil
	}

	v, err := tx.Catalog.GetVariantForUpdate(ctx, t.ID)
	if err != nil {
		return pricedTarget{}, lookupErr(err, ErrProductNotFound, "variant %s", t.ID)
	}
	if v.Status != model.StockActive || v.StockQuantity < qty {
		return pricedTarget{}, ErrOutOfStock.With("variant %s: %s, stock %d, requested %d", v.ID, v.Status, v.StockQuantity, qty)
	}
	prod, err := tx.Catalog.GetProduct(ctx, v.ProductID)
	if err != nil {
		return pricedTarget{}, lookupErr(err, ErrProductNotFound, "product %s", v.ProductID)
	}
	price := prod.Price
	if v.Price.Valid {
		price = v.Price.Decimal
	}
	return pricedTarget{price: price, productName: prod.Name, variantName: v.Name, productID: prod.ID}, nil
}

// resolveShippingFee reads the shipping_fee setting, falling back to the configured default.
func (s *orderService) resolveShippingFee(ctx context.Context, tx *repository.Tx) (decimal.Decimal, error) {
	raw, ok, err := tx.Settings.Get(ctx, model.SettingShippingFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read setting %s: %w", model.SettingShippingFee, err)
	}
	if !ok {
		return s.shippingFee, nil
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || fee.IsNegative() {
		logger.Warn("unparseable shipping fee setting, using default",
			zap.String("setting", model.SettingShippingFee),
			zap.String("value", raw))
		return s.shippingFee, nil
	}
	return fee, nil
}

// createPayments splits the total into a Paid points row and a Pending remainder.
// With no points spent a single Pending row covers the whole total.
func (s *orderService) createPayments(ctx context.Context, tx *repository.Tx, o *model.Order, chosen *model.PaymentMethod) error {
	newPayment := func(methodID string, amount decimal.Decimal, status model.PaymentStatus) *model.Payment {
		return &model.Payment{
			ID:              uuid.NewString(),
			OrderID:         o.ID,
			PaymentMethodID: methodID,
			Amount:          amount,
			Status:          status,
			CreatedAt:       o.CreatedAt,
			CreatedBy:       o.CreatedBy,
		}
	}

	if o.PointsUsed == 0 {
		if err := tx.Payments.Create(ctx, newPayment(chosen.ID, o.TotalAmount, model.PaymentPending)); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	}

	if err := s.loyalty.Debit(ctx, tx, o.UserID, o.PointsUsed); err != nil {
		return err
	}
	pointsMethodID := chosen.ID
	pm, err := tx.Payments.GetMethodByCode(ctx, model.PaymentMethodPoints)
	switch {
	case err == nil:
		pointsMethodID = pm.ID
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("load points payment method: %w", err)
	}
	paid := decimal.NewFromInt(o.PointsUsed)
	if err := tx.Payments.Create(ctx, newPayment(pointsMethodID, paid, model.PaymentPaid)); err != nil {
		return fmt.Errorf("create points payment: %w", err)
	}

	if rest := o.TotalAmount.Sub(paid); rest.IsPositive() {
		if err := tx.Payments.Create(ctx, newPayment(chosen.ID, rest, model.PaymentPending)); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
	}
	return nil
}

// orderCode is ORD-YYMMDD-XXXXXXXX.
func orderCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("060102"), suffix)
}
