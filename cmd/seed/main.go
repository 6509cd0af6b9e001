// Package main seeds a database with demo catalog data and stock for one tenant.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	appctx "pharmastock/internal/core/context"
	"pharmastock/internal/core/id"
	"pharmastock/internal/domain/auth"
	"pharmastock/internal/domain/movement"
	"pharmastock/internal/infrastructure/config"
	"pharmastock/internal/infrastructure/numerator"
	"pharmastock/internal/infrastructure/storage/postgres"
	"pharmastock/pkg/logger"
)

type productRow struct {
	ID       id.ID  `db:"id"`
	TenantID id.ID  `db:"tenant_id"`
	Name     string `db:"name"`
	IsActive bool   `db:"is_active"`
}

type warehouseRow struct {
	ID       id.ID  `db:"id"`
	TenantID id.ID  `db:"tenant_id"`
	Name     string `db:"name"`
	City     string `db:"city"`
}

type locationRow struct {
	ID          id.ID  `db:"id"`
	TenantID    id.ID  `db:"tenant_id"`
	WarehouseID id.ID  `db:"warehouse_id"`
	Code        string `db:"code"`
	IsActive    bool   `db:"is_active"`
}

type batchRow struct {
	ID          id.ID                `db:"id"`
	TenantID    id.ID                `db:"tenant_id"`
	ProductID   id.ID                `db:"product_id"`
	BatchNumber string               `db:"batch_number"`
	ExpiresAt   time.Time            `db:"expires_at"`
	Status      movement.BatchStatus `db:"status"`
}

type balanceRow struct {
	ID         id.ID           `db:"id"`
	TenantID   id.ID           `db:"tenant_id"`
	LocationID id.ID           `db:"location_id"`
	ProductID  id.ID           `db:"product_id"`
	BatchID    *id.ID          `db:"batch_id"`
	Quantity   decimal.Decimal `db:"quantity"`
	CreatedBy  id.ID           `db:"created_by"`
}

type requestRow struct {
	ID            id.ID                  `db:"id"`
	TenantID      id.ID                  `db:"tenant_id"`
	RequestedCity string                 `db:"requested_city"`
	Status        movement.RequestStatus `db:"status"`
}

type requestItemRow struct {
	ID                id.ID           `db:"id"`
	RequestID         id.ID           `db:"request_id"`
	ProductID         id.ID           `db:"product_id"`
	RemainingQuantity decimal.Decimal `db:"remaining_quantity"`
}

// dataset is the demo data of one tenant.
type dataset struct {
	products   []productRow
	warehouses []warehouseRow
	locations  []locationRow
	batches    []batchRow
	balances   []balanceRow
	requests   []requestRow
	items      []requestItemRow
}

var cities = []string{"Lima", "Cusco"}

// buildDataset creates one warehouse with two locations per city and two
// batches per product: one released and stocked in the first location, one
// still in quarantine. The last city gets an open request for every product.
func buildDataset(f *gofakeit.Faker, tenantID, userID id.ID, products int, now time.Time) dataset {
	var d dataset
	for _, city := range cities {
		w := warehouseRow{ID: id.New(), TenantID: tenantID, Name: city + " central", City: city}
		d.warehouses = append(d.warehouses, w)
		for _, code := range []string{"A-01", "B-01"} {
			d.locations = append(d.locations, locationRow{ID: id.New(), TenantID: tenantID, WarehouseID: w.ID, Code: code, IsActive: true})
		}
	}

	request := requestRow{ID: id.New(), TenantID: tenantID, RequestedCity: cities[len(cities)-1], Status: movement.RequestOpen}
	if products > 0 {
		d.requests = append(d.requests, request)
	}

	for i := 1; i <= products; i++ {
		p := productRow{ID: id.New(), TenantID: tenantID, Name: fmt.Sprintf("%s %dmg", f.ProductName(), 50*f.IntRange(1, 20)), IsActive: true}
		stock := int64(f.IntRange(50, 500))
		d.products = append(d.products, p)

		released := batchRow{
			ID: id.New(), TenantID: tenantID, ProductID: p.ID,
			BatchNumber: fmt.Sprintf("L%03d-R", i),
			ExpiresAt:   now.AddDate(0, f.IntRange(6, 36), 0),
			Status:      movement.BatchReleased,
		}
		quarantined := batchRow{
			ID: id.New(), TenantID: tenantID, ProductID: p.ID,
			BatchNumber: fmt.Sprintf("L%03d-Q", i),
			ExpiresAt:   now.AddDate(2, 0, 0),
			Status:      movement.BatchQuarantine,
		}
		d.batches = append(d.batches, released, quarantined)

		d.balances = append(d.balances, balanceRow{
			ID: id.New(), TenantID: tenantID, LocationID: d.locations[0].ID, ProductID: p.ID,
			BatchID: &released.ID, Quantity: decimal.NewFromInt(stock), CreatedBy: userID,
		})
		d.items = append(d.items, requestItemRow{
			ID: id.New(), RequestID: request.ID, ProductID: p.ID, RemainingQuantity: decimal.NewFromInt(int64(f.IntRange(1, 20))),
		})
	}
	return d
}

func (d dataset) load(ctx context.Context, b *postgres.BulkLoader) error {
	steps := []struct {
		table string
		copy  func() (int64, error)
	}{
		{"products", func() (int64, error) { return postgres.CopyStructs(ctx, b, "products", d.products) }},
		{"warehouses", func() (int64, error) { return postgres.CopyStructs(ctx, b, "warehouses", d.warehouses) }},
		{"locations", func() (int64, error) { return postgres.CopyStructs(ctx, b, "locations", d.locations) }},
		{"batches", func() (int64, error) { return postgres.CopyStructs(ctx, b, "batches", d.batches) }},
		{"inventory_balances", func() (int64, error) { return postgres.CopyStructs(ctx, b, "inventory_balances", d.balances) }},
		{"movement_requests", func() (int64, error) { return postgres.CopyStructs(ctx, b, "movement_requests", d.requests) }},
		{"movement_request_items", func() (int64, error) {
			return postgres.CopyStructs(ctx, b, "movement_request_items", d.items)
		}},
	}
	for _, s := range steps {
		n, err := s.copy()
		if err != nil {
			return err
		}
		logger.Info(ctx, "seeded table", "table", s.table, "rows", n)
	}
	return nil
}

func main() {
	var (
		tenant       string
		products     int
		seed         uint64
		continueFrom int64
	)
	flag.StringVar(&tenant, "tenant", "", "Tenant id (default: a new UUID)")
	flag.IntVar(&products, "products", 10, "Number of demo products")
	flag.Uint64Var(&seed, "seed", 0, "Random seed for generated names and quantities (0 = random)")
	flag.Int64Var(&continueFrom, "continue-from", 0, "Continue this year's movement numbering after this value (imported history)")
	flag.Parse()

	cfg, err := config.Load("./configs")
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	ctx := logger.WithLogger(context.Background(), log)

	tenantID := id.New()
	if tenant != "" {
		if tenantID, err = id.Parse(tenant); err != nil {
			log.Fatalw("invalid tenant id", "tenant", tenant, "error", err)
		}
	}
	userID := id.New()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.DSN))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	loader := postgres.NewBulkLoader(txm)
	data := buildDataset(gofakeit.New(seed), tenantID, userID, products, time.Now().UTC())

	if err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := data.load(ctx, loader); err != nil {
			return err
		}
		if continueFrom <= 0 {
			return nil
		}
		return continueNumbering(ctx, cfg, txm, tenantID, continueFrom)
	}); err != nil {
		log.Fatalw("failed to seed demo data", "error", err)
	}

	log.Infow("seeding completed successfully", "tenant_id", tenantID, "user_id", userID)

	if cfg.JWT.Secret == "" {
		return
	}
	token, expires, err := auth.NewTokens(auth.NewConfig(cfg.JWT.Secret, cfg.JWT.Issuer)).Issue(appctx.Caller{
		TenantID: tenantID,
		UserID:   userID,
		Email:    "seed@pharmastock.local",
		Roles:    []string{"admin"},
	})
	if err != nil {
		log.Warnw("failed to issue demo token", "error", err)
		return
	}
	log.Infow("demo access token issued", "expires_at", expires)
	fmt.Println(token)
}

// continueNumbering moves the tenant's movement counter so the first movement
// recorded after seeding follows the imported history.
func continueNumbering(ctx context.Context, cfg *config.Config, txm *postgres.TxManager, tenantID id.ID, after int64) error {
	policies, err := cfg.Policies()
	if err != nil {
		return err
	}
	policy, err := policies.PolicyFor(ctx, tenantID)
	if err != nil {
		return err
	}
	numbers := numerator.New(func(ctx context.Context) numerator.Querier { return txm.GetQuerier(ctx) })
	year := time.Now().UTC().Year()
	if err := numbers.Set(ctx, tenantID, year, policy.NumberKey(), after); err != nil {
		return err
	}
	logger.Info(ctx, "movement numbering continued", "key", policy.NumberKey(), "year", year, "after", after)
	return nil
}
