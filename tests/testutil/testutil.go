package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/storefront-support-api/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// MustSetTestEnvironment sets GO_ENV to test and fails if it cannot be set.
// Use this in TestMain or suite setup functions.
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()

	if err := os.Setenv("GO_ENV", "test"); err != nil {
		t.Fatalf("Failed to set GO_ENV=test: %v", err)
	}
	if os.Getenv("GO_ENV") != "test" {
		t.Fatal("Failed to verify GO_ENV=test")
	}
}

// NewTestDB opens a private in-memory sqlite database with the full schema.
// One connection is shared so concurrent callers queue on it the way
// row locks would serialize them in postgres.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// DiscardLogger drops everything
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// CreateUser inserts a user with the given role
func CreateUser(t *testing.T, db *gorm.DB, name string, role models.Role) *models.User {
	t.Helper()

	user := &models.User{
		Auth0ID: "auth0|" + uuid.NewString(),
		Name:    name,
		Email:   fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		Role:    role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

// CreateProduct inserts a product with the given stock
func CreateProduct(t *testing.T, db *gorm.DB, name string, price float64, stock int) *models.Product {
	t.Helper()

	product := &models.Product{Name: name, Price: price, Stock: stock, Image: name + ".png"}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	return product
}

// CreateDeliveredOrder inserts an order for customer delivered at
// deliveredAt with one line per product, quantity qty each.
func CreateDeliveredOrder(t *testing.T, db *gorm.DB, customer *models.User, deliveredAt time.Time, qty int, products ...*models.Product) *models.Order {
	t.Helper()

	order := &models.Order{
		CustomerID:  customer.ID,
		Status:      models.OrderStatusDelivered,
		DeliveredAt: &deliveredAt,
	}
	for _, p := range products {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  qty,
			UnitPrice: p.Price,
			Image:     p.Image,
		})
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	return order
}

// ReloadProduct reads the product's current row
func ReloadProduct(t *testing.T, db *gorm.DB, id uint) *models.Product {
	t.Helper()

	var p models.Product
	if err := db.First(&p, id).Error; err != nil {
		t.Fatalf("Failed to reload product: %v", err)
	}
	return &p
}
