package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/internal/identity"
	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
	"github.com/d60-Lab/fulfillment/pkg/database"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

var dbSeq atomic.Int64

func openTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("fulfillment-%d.db", dbSeq.Add(1)))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection serialises transactions the way row locks do on a server database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func testConfig() config.FulfillmentConfig {
	return config.FulfillmentConfig{
		DefaultShippingFee: "30",
		RetentionDays:      10,
		SweepHour:          2,
		OutboxBatchSize:    50,
		OutboxMaxAttempts:  3,
	}
}

type fixture struct {
	t      testing.TB
	db     *gorm.DB
	store  *repository.Store
	svc    OrderService
	now    time.Time
	method *model.PaymentMethod
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	db := openTestDB(t)
	f := &fixture{t: t, db: db, store: repository.NewStore(db), now: testNow}
	f.svc = NewOrderService(f.store, identity.NewContextProvider(), testConfig(), WithClock(func() time.Time { return f.now }))
	f.method = &model.PaymentMethod{ID: uuid.NewString(), Code: "cod", Name: "Cash on delivery"}
	f.create(f.method)
	f.setting(model.SettingShippingFee, "25")
	f.setting(model.SettingPointConversionRate, "10")
	return f
}

func (f *fixture) create(v any) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(v).Error)
}

func (f *fixture) setting(key, value string) {
	f.t.Helper()
	require.NoError(f.t, f.store.Reader().Settings.Set(context.Background(), key, value))
}

func (f *fixture) addPointsMethod() *model.PaymentMethod {
	m := &model.PaymentMethod{ID: uuid.NewString(), Code: model.PaymentMethodPoints, Name: "Loyalty points"}
	f.create(m)
	return m
}

func (f *fixture) addCustomer(points int64) *model.User {
	u := &model.User{ID: uuid.NewString(), Name: "customer", Role: model.RoleCustomer, Point: points}
	f.create(u)
	return u
}

func (f *fixture) addAddress(userID string) *model.Address {
	a := &model.Address{ID: uuid.NewString(), UserID: userID, Detail: "1 Main St", Status: model.RecordActive}
	f.create(a)
	return a
}

func (f *fixture) addProduct(price int64, stock int) *model.Product {
	p := &model.Product{
		ID:            uuid.NewString(),
		Name:          "product",
		Price:         decimal.NewFromInt(price),
		StockQuantity: stock,
		Status:        model.StockActive,
	}
	if stock == 0 {
		p.Status = model.StockOutOfStock
	}
	f.create(p)
	return p
}

func (f *fixture) addVariant(productID string, price int64, stock int) *model.ProductVariant {
	v := &model.ProductVariant{
		ID:            uuid.NewString(),
		ProductID:     productID,
		Name:          "variant",
		Price:         decimal.NewNullDecimal(decimal.NewFromInt(price)),
		StockQuantity: stock,
		Status:        model.StockActive,
	}
	if stock == 0 {
		v.Status = model.StockOutOfStock
	}
	f.create(v)
	return v
}

func (f *fixture) addCartLine(userID, productID string, variantID *string, qty int) *model.CartItem {
	c := &model.CartItem{ID: uuid.NewString(), UserID: userID, ProductID: productID, VariantID: variantID, Quantity: qty}
	f.create(c)
	return c
}

// addDiscount creates an active flat discount with a public code valid around testNow.
func (f *fixture) addDiscount(mutate func(d *model.Discount, c *model.DiscountCode)) (*model.Discount, *model.DiscountCode) {
	d := &model.Discount{
		ID:       uuid.NewString(),
		Value:    decimal.NewFromInt(20),
		FromDate: testNow.AddDate(0, -1, 0),
		ToDate:   testNow.AddDate(0, 1, 0),
		Status:   model.RecordActive,
	}
	c := &model.DiscountCode{
		ID:         uuid.NewString(),
		DiscountID: d.ID,
		Code:       "CODE-" + uuid.NewString()[:8],
		FromDate:   testNow.AddDate(0, -1, 0),
		ToDate:     testNow.AddDate(0, 1, 0),
		Status:     model.CodeActive,
	}
	if mutate != nil {
		mutate(d, c)
	}
	f.create(d)
	f.create(c)
	return d, c
}

func customerCtx(userID string) context.Context {
	return identity.WithPrincipal(context.Background(), identity.Principal{UserID: userID, Role: model.RoleCustomer})
}

func managerCtx() context.Context {
	return identity.WithPrincipal(context.Background(), identity.Principal{UserID: "manager-1", Role: model.RoleManager})
}

// checkout is a cart of one line for a fresh customer.
type checkout struct {
	user    *model.User
	address *model.Address
	line    *model.CartItem
}

func (f *fixture) newCheckout(points int64, productID string, variantID *string, qty int) checkout {
	u := f.addCustomer(points)
	return checkout{user: u, address: f.addAddress(u.ID), line: f.addCartLine(u.ID, productID, variantID, qty)}
}

func (f *fixture) request(c checkout) CreateOrderRequest {
	return CreateOrderRequest{
		CartLineIDs:     []string{c.line.ID},
		AddressID:       c.address.ID,
		PaymentMethodID: f.method.ID,
	}
}

func (f *fixture) order(id string) *model.Order {
	f.t.Helper()
	var o model.Order
	require.NoError(f.t, f.db.Where("id = ?", id).First(&o).Error)
	return &o
}

func (f *fixture) variant(id string) *model.ProductVariant {
	f.t.Helper()
	var v model.ProductVariant
	require.NoError(f.t, f.db.Where("id = ?", id).First(&v).Error)
	return &v
}

func (f *fixture) product(id string) *model.Product {
	f.t.Helper()
	var p model.Product
	require.NoError(f.t, f.db.Where("id = ?", id).First(&p).Error)
	return &p
}

func (f *fixture) user(id string) *model.User {
	f.t.Helper()
	var u model.User
	require.NoError(f.t, f.db.Where("id = ?", id).First(&u).Error)
	return &u
}

func (f *fixture) count(m any, where ...any) int64 {
	f.t.Helper()
	var n int64
	q := f.db.Model(m)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	require.NoError(f.t, q.Count(&n).Error)
	return n
}

func (f *fixture) history(orderID string) []*model.OrderStatusHistory {
	f.t.Helper()
	hs, err := f.store.Reader().Orders.History(context.Background(), orderID)
	require.NoError(f.t, err)
	return hs
}

func (f *fixture) setStatus(orderID string, s model.OrderStatus, modifiedAt time.Time) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(&model.Order{}).Where("id = ?", orderID).
		Updates(map[string]any{"status": s, "modified_at": modifiedAt}).Error)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func ptr[T any](v T) *T { return &v }
