package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/internal/identity"
	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
	"github.com/d60-Lab/fulfillment/internal/service"
	"github.com/d60-Lab/fulfillment/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// orderbench: N customers race to buy QTY units each of one variant with STOCK units.
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	if err := database.Migrate(db); err != nil {
		panic(err)
	}
	store := repository.NewStore(db)
	svc := service.NewOrderService(store, identity.NewContextProvider(), cfg.Fulfillment)

	N := envInt("N", 1000)
	CONC := envInt("CONC", 16)
	STOCK := envInt("STOCK", 500)
	QTY := envInt("QTY", 1)

	ctx := context.Background()
	run := uuid.NewString()[:8]

	// seed catalog, settings and payment method
	now := time.Now()
	product := model.Product{ID: uuid.NewString(), Name: "bench-" + run, Price: decimal.NewFromInt(100), StockQuantity: 0, Status: model.StockActive, CreatedAt: now, UpdatedAt: now}
	variant := model.ProductVariant{ID: uuid.NewString(), ProductID: product.ID, Name: "default", StockQuantity: STOCK, Status: model.StockActive, CreatedAt: now, UpdatedAt: now}
	method := model.PaymentMethod{ID: uuid.NewString(), Code: "cod-" + run, Name: "Cash on delivery"}
	must(0, db.Create(&product).Error)
	must(0, db.Create(&variant).Error)
	must(0, db.Create(&method).Error)
	settings := store.Reader().Settings
	must(0, settings.Set(ctx, model.SettingShippingFee, "25"))
	must(0, settings.Set(ctx, model.SettingPointConversionRate, "10"))

	// seed customers, each with an address and one cart line
	type customer struct{ userID, addressID, cartLineID string }
	customers := make([]customer, N)
	users := make([]model.User, 0, N)
	addrs := make([]model.Address, 0, N)
	lines := make([]model.CartItem, 0, N)
	for i := 0; i < N; i++ {
		c := customer{userID: uuid.NewString(), addressID: uuid.NewString(), cartLineID: uuid.NewString()}
		customers[i] = c
		variantID := variant.ID
		users = append(users, model.User{ID: c.userID, Name: "c" + c.userID[:8], Role: model.RoleCustomer, Point: 10})
		addrs = append(addrs, model.Address{ID: c.addressID, UserID: c.userID, Detail: "bench", Status: model.RecordActive})
		lines = append(lines, model.CartItem{ID: c.cartLineID, UserID: c.userID, ProductID: product.ID, VariantID: &variantID, Quantity: QTY, CreatedAt: now})
	}
	must(0, db.CreateInBatches(&users, 500).Error)
	must(0, db.CreateInBatches(&addrs, 500).Error)
	must(0, db.CreateInBatches(&lines, 500).Error)

	var ok, outOfStock, other atomic.Int64
	latCh := make(chan time.Duration, N)
	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)

	workers := CONC
	if workers > N {
		workers = N
	}
	done := make(chan struct{}, workers)
	t0 := time.Now()
	for w := 0; w < workers; w++ {
		go func() {
			for i := range feed {
				c := customers[i]
				cctx := identity.WithPrincipal(ctx, identity.Principal{UserID: c.userID, Role: model.RoleCustomer})
				st := time.Now()
				_, err := svc.CreateOrder(cctx, service.CreateOrderRequest{
					CartLineIDs:      []string{c.cartLineID},
					AddressID:        c.addressID,
					PaymentMethodID:  method.ID,
					UseLoyaltyPoints: i%2 == 0,
				})
				latCh <- time.Since(st)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, service.ErrOutOfStock):
					outOfStock.Add(1)
				default:
					other.Add(1)
				}
			}
			done <- struct{}{}
		}()
	}
	for w := 0; w < workers; w++ {
		<-done
	}
	total := time.Since(t0)
	close(latCh)
	lats := make([]time.Duration, 0, N)
	for d := range latCh {
		lats = append(lats, d)
	}

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(math.Ceil(p*float64(len(xs)))) - 1
		if k < 0 {
			k = 0
		}
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}

	var final model.ProductVariant
	must(0, db.Where("id = ?", variant.ID).First(&final).Error)
	sold := int(ok.Load()) * QTY

	fmt.Printf("N=%d, CONC=%d, STOCK=%d, QTY=%d\n", N, CONC, STOCK, QTY)
	fmt.Printf("CreateOrder total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		total, total/time.Duration(N), pct(lats, 0.50), pct(lats, 0.95), pct(lats, 0.99))
	fmt.Printf("ok=%d, out_of_stock=%d, other_errors=%d\n", ok.Load(), outOfStock.Load(), other.Load())
	fmt.Printf("final stock=%d, sold=%d, expected stock=%d, status=%s\n",
		final.StockQuantity, final.SoldQuantity, STOCK-sold, final.Status)
	if final.StockQuantity != STOCK-sold || final.StockQuantity < 0 {
		fmt.Println("STOCK INVARIANT VIOLATED")
		os.Exit(1)
	}
}
