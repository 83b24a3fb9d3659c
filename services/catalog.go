package services

import (
	"context"
	"log/slog"

	"github.com/kendall-kelly/storefront-support-api/apperr"
	"github.com/kendall-kelly/storefront-support-api/models"
	"gorm.io/gorm"
)

// StockRestorer puts returned units back on the shelf. It runs inside the
// caller's transaction so the restock commits or rolls back with the
// status change.
type StockRestorer interface {
	Restock(ctx context.Context, tx *gorm.DB, productID uint, quantity int) error
}

// OrderLookup finds orders with their line items
type OrderLookup interface {
	FindOrder(ctx context.Context, orderID uint) (*models.Order, error)
}

// ReplacementIssuer creates whatever follows a completed replacement.
// It also runs inside the status-change transaction.
type ReplacementIssuer interface {
	IssueReplacement(ctx context.Context, tx *gorm.DB, ret *models.ReturnRequest) error
}

// Catalog is the gorm-backed product and order store
type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// Restock adds quantity to the product's stock as a single delta update,
// so concurrent restocks of the same product never lose an increment.
func (c *Catalog) Restock(ctx context.Context, tx *gorm.DB, productID uint, quantity int) error {
	if quantity <= 0 {
		return apperr.InvalidErr("INVALID_QUANTITY", "Restock quantity must be positive", nil)
	}
	res := tx.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", quantity))
	if res.Error != nil {
		return apperr.FromDB(res.Error, nil)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFoundErr("PRODUCT_NOT_FOUND", "Product not found")
	}
	return nil
}

func (c *Catalog) FindOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := c.db.WithContext(ctx).Preload("Items").First(&order, orderID).Error
	if err != nil {
		return nil, apperr.FromDB(err, apperr.NotFoundErr("ORDER_NOT_FOUND", "Order not found"))
	}
	return &order, nil
}

// LoggingReplacementIssuer records the replacement without creating an
// order. Fulfilment picks replacements up from the REPLACED returns.
type LoggingReplacementIssuer struct {
	logger *slog.Logger
}

func NewLoggingReplacementIssuer(logger *slog.Logger) *LoggingReplacementIssuer {
	return &LoggingReplacementIssuer{logger: logger}
}

func (l *LoggingReplacementIssuer) IssueReplacement(_ context.Context, _ *gorm.DB, ret *models.ReturnRequest) error {
	l.logger.Info("replacement issued",
		slog.Uint64("return_id", uint64(ret.ID)),
		slog.Uint64("order_id", uint64(ret.OrderID)),
		slog.Uint64("product_id", uint64(ret.ProductID)),
		slog.Int("quantity", ret.Item.Quantity),
	)
	return nil
}
