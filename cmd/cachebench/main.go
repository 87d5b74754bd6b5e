package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/d60-Lab/fulfillment/config"
	"github.com/d60-Lab/fulfillment/internal/cache"
	"github.com/d60-Lab/fulfillment/internal/identity"
	"github.com/d60-Lab/fulfillment/internal/model"
	"github.com/d60-Lab/fulfillment/internal/repository"
	"github.com/d60-Lab/fulfillment/internal/service"
	"github.com/d60-Lab/fulfillment/pkg/database"
)

// cachebench: order detail reads straight from the database versus through the Redis read model.
func main() {
	ctx := context.Background()
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	mustDo(database.Migrate(db))
	store := repository.NewStore(db)
	ids := identity.NewContextProvider()
	svc := service.NewOrderService(store, ids, cfg.Fulfillment)

	orders := envInt("ORDERS", 2000)
	reads := envInt("READS", 20000)
	hot := envInt("HOT_PCT", 80)

	fmt.Println("Setting up test data...")
	orderIDs := seedOrders(ctx, db, store, svc, orders)
	fmt.Printf("Test data ready: %d orders\n", len(orderIDs))

	client := must(cache.NewRedisClient(ctx, &cfg.Redis))
	defer client.Close()

	manager := identity.WithPrincipal(ctx, identity.Principal{UserID: "bench-manager", Role: model.RoleManager})
	reqs := makeRequests(orderIDs, reads, hot)

	noCache := runScenario(manager, service.NewOrderQuery(store, ids, nil), reqs, false, client)
	cached := runScenario(manager, service.NewOrderQuery(store, ids, cache.NewOrderCache(client, cfg.Fulfillment.OrderCacheTTL)), reqs, true, client)

	fmt.Printf("\nOrder detail latency (%d reads over %d orders, %d%% on the hottest 10%%)\n", reads, len(orderIDs), hot)
	fmt.Printf("%-18s avg=%v p95=%v p99=%v cache_keys=%d mem=%s\n",
		"No cache", avg(noCache.durations), pct(noCache.durations, 0.95), pct(noCache.durations, 0.99),
		noCache.cacheKeys, formatBytes(noCache.memoryBytes))
	fmt.Printf("%-18s avg=%v p95=%v p99=%v cache_keys=%d mem=%s\n",
		"Redis read model", avg(cached.durations), pct(cached.durations, 0.95), pct(cached.durations, 0.99),
		cached.cacheKeys, formatBytes(cached.memoryBytes))
}

// seedOrders places n real orders, one customer each, through the order service.
func seedOrders(ctx context.Context, db *gorm.DB, store *repository.Store, svc service.OrderService, n int) []string {
	run := uuid.NewString()[:8]
	now := time.Now()
	product := model.Product{ID: uuid.NewString(), Name: "cachebench-" + run, Price: decimal.NewFromInt(40), StockQuantity: n * 2, Status: model.StockActive, CreatedAt: now, UpdatedAt: now}
	method := model.PaymentMethod{ID: uuid.NewString(), Code: "cod-" + run, Name: "Cash on delivery"}
	mustDo(db.Create(&product).Error)
	mustDo(db.Create(&method).Error)
	settings := store.Reader().Settings
	mustDo(settings.Set(ctx, model.SettingShippingFee, "25"))
	mustDo(settings.Set(ctx, model.SettingPointConversionRate, "10"))

	users := make([]model.User, n)
	addrs := make([]model.Address, n)
	lines := make([]model.CartItem, n)
	for i := 0; i < n; i++ {
		users[i] = model.User{ID: uuid.NewString(), Name: fmt.Sprintf("user_%d", i), Role: model.RoleCustomer, Point: int64(i % 50)}
		addrs[i] = model.Address{ID: uuid.NewString(), UserID: users[i].ID, Detail: "bench", Status: model.RecordActive}
		lines[i] = model.CartItem{ID: uuid.NewString(), UserID: users[i].ID, ProductID: product.ID, Quantity: 1 + i%2, CreatedAt: now}
	}
	mustDo(db.CreateInBatches(&users, 1000).Error)
	mustDo(db.CreateInBatches(&addrs, 1000).Error)
	mustDo(db.CreateInBatches(&lines, 1000).Error)

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		cctx := identity.WithPrincipal(ctx, identity.Principal{UserID: users[i].ID, Role: model.RoleCustomer})
		id := must(svc.CreateOrder(cctx, service.CreateOrderRequest{
			CartLineIDs:      []string{lines[i].ID},
			AddressID:        addrs[i].ID,
			PaymentMethodID:  method.ID,
			UseLoyaltyPoints: i%3 == 0,
		}))
		out = append(out, id)
	}
	return out
}

type scenarioResult struct {
	durations   []time.Duration
	cacheKeys   int
	memoryBytes int64
}

func runScenario(ctx context.Context, q *service.OrderQuery, reqs []string, warm bool, client *redis.Client) scenarioResult {
	client.FlushAll(ctx)

	if warm {
		fmt.Print("  Warming cache...")
		for _, id := range reqs {
			must(q.GetOrder(ctx, id))
		}
		fmt.Println(" done")
	}

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reqs))
	for _, id := range reqs {
		start := time.Now()
		must(q.GetOrder(ctx, id))
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	keys, _ := client.Keys(ctx, "order:*").Result()
	info, err := client.Info(ctx, "memory").Result()
	var memBytes int64
	if err == nil {
		memBytes = parseRedisMemory(info)
	}
	return scenarioResult{durations: out, cacheKeys: len(keys), memoryBytes: memBytes}
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// makeRequests sends hotPct of reads to the first tenth of the orders.
func makeRequests(orderIDs []string, n, hotPct int) []string {
	rnd := rand.New(rand.NewSource(42))
	hotSet := max(1, len(orderIDs)/10)
	out := make([]string, n)
	for i := range out {
		if rnd.Intn(100) < hotPct {
			out[i] = orderIDs[rnd.Intn(hotSet)]
		} else {
			out[i] = orderIDs[rnd.Intn(len(orderIDs))]
		}
	}
	return out
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
