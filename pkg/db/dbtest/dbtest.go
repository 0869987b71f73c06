// Package dbtest opens SQLite databases carrying the marketplace schema for
// repository and service tests.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/zenergy-backend/pkg/db/models"
)

var schema = []string{
	`CREATE TABLE stores (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		bank_name TEXT,
		bank_account TEXT,
		bank_holder TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE cart_items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price NUMERIC NOT NULL DEFAULT 0,
		created_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		shipping_address TEXT NOT NULL,
		subtotal NUMERIC NOT NULL,
		shipping_fee NUMERIC NOT NULL,
		tax NUMERIC NOT NULL,
		total_amount NUMERIC NOT NULL,
		confirmed_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price NUMERIC NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE withdraw_requests (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		amount NUMERIC NOT NULL,
		status TEXT NOT NULL,
		bank_name TEXT NOT NULL,
		bank_account TEXT NOT NULL,
		bank_holder TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
}

// Open returns a private in-memory database with the schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	return open(t, dsn)
}

// OpenFile returns a file-backed database where every transaction begins
// IMMEDIATE, so concurrent writers queue behind each other the way row
// locks serialize them in Postgres.
func OpenFile(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zenergy.db")
	return open(t, path+"?_busy_timeout=10000&_txlock=immediate")
}

func open(t testing.TB, dsn string) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// StoreOption mutates a store fixture before insert.
type StoreOption func(*models.Store)

// WithBankDetails fills every payout field.
func WithBankDetails() StoreOption {
	return func(s *models.Store) {
		bank, account, holder := "Vietcombank", "0011223344", "NGUYEN VAN A"
		s.BankName = &bank
		s.BankAccount = &account
		s.BankHolder = &holder
	}
}

// SeedStore inserts a store owned by a random user.
func SeedStore(t testing.TB, db *gorm.DB, opts ...StoreOption) models.Store {
	t.Helper()
	store := models.Store{ID: uuid.New(), OwnerID: uuid.New(), Name: "Store " + uuid.NewString()[:8]}
	for _, opt := range opts {
		opt(&store)
	}
	if err := db.Create(&store).Error; err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

// SeedProduct inserts an active product with the given price and stock.
func SeedProduct(t testing.TB, db *gorm.DB, storeID uuid.UUID, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		ID:       uuid.New(),
		StoreID:  storeID,
		Name:     "Product " + uuid.NewString()[:8],
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedCartItem stages a cart line for userID.
func SeedCartItem(t testing.TB, db *gorm.DB, userID, productID uuid.UUID, qty int) models.CartItem {
	t.Helper()
	item := models.CartItem{ID: uuid.New(), UserID: userID, ProductID: productID, Quantity: qty, Price: decimal.Zero}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed cart item: %v", err)
	}
	return item
}

// SeedOrder inserts an order with one item per product/quantity pair.
func SeedOrder(t testing.TB, db *gorm.DB, order models.Order, items ...models.OrderItem) models.Order {
	t.Helper()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
		items[i].OrderID = order.ID
	}
	order.Items = nil
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	if len(items) > 0 {
		if err := db.Create(&items).Error; err != nil {
			t.Fatalf("seed order items: %v", err)
		}
	}
	order.Items = items
	return order
}

// ProductStock reloads the stock counter for id.
func ProductStock(t testing.TB, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := db.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.Stock
}

// Count returns the row count of table.
func Count(t testing.TB, db *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	if err := db.Table(table).Count(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
