package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/domain/stock"
	"github.com/wms/backend/internal/infrastructure/persistence/models"
)

// GormMoveRepository implements stock.MoveRepository using GORM
type GormMoveRepository struct {
	db *gorm.DB
}

// NewGormMoveRepository creates a new GormMoveRepository
func NewGormMoveRepository(db *gorm.DB) *GormMoveRepository {
	return &GormMoveRepository{db: db}
}

// Record appends a ledger entry. The tenant/idempotency-key unique index
// turns replays into no-ops via ON CONFLICT DO NOTHING.
func (r *GormMoveRepository) Record(ctx context.Context, move *stock.Move) error {
	var model models.StockMoveModel
	model.FromDomain(move)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(&model).Error; err != nil {
		return shared.NewDatabaseError(fmt.Sprintf("Failed to record stock move: %v", err))
	}
	return nil
}

// FindByIdempotencyKey returns the ledger entry carrying the key
func (r *GormMoveRepository) FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*stock.Move, error) {
	var model models.StockMoveModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GormLevelRepository implements stock.LevelRepository using GORM
type GormLevelRepository struct {
	db *gorm.DB
}

// NewGormLevelRepository creates a new GormLevelRepository
func NewGormLevelRepository(db *gorm.DB) *GormLevelRepository {
	return &GormLevelRepository{db: db}
}

// ApplyDelta adjusts the on-hand quantity by a signed amount, creating the
// level row if none exists for the key. Quantities may go negative: the
// reconciliation books reality, it does not police it.
func (r *GormLevelRepository) ApplyDelta(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, locationID *uuid.UUID, delta int64) error {
	now := time.Now().UTC()
	query := r.db.WithContext(ctx).Model(&models.StockLevelModel{}).
		Where("tenant_id = ? AND product_id = ? AND warehouse_id = ?", tenantID, productID, warehouseID)
	query = whereLocation(query, locationID)

	result := query.Updates(map[string]any{
		"quantity":   gorm.Expr("quantity + ?", delta),
		"updated_at": now,
	})
	if result.Error != nil {
		return shared.NewDatabaseError(fmt.Sprintf("Failed to adjust stock level: %v", result.Error))
	}
	if result.RowsAffected > 0 {
		return nil
	}

	model := models.StockLevelModel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ProductID:   productID,
		WarehouseID: warehouseID,
		LocationID:  locationID,
		Quantity:    delta,
		UpdatedAt:   now,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return shared.NewDatabaseError(fmt.Sprintf("Failed to create stock level: %v", err))
	}
	return nil
}

// Find returns the level row for the key
func (r *GormLevelRepository) Find(ctx context.Context, tenantID, productID, warehouseID uuid.UUID, locationID *uuid.UUID) (*stock.Level, error) {
	var model models.StockLevelModel
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND warehouse_id = ?", tenantID, productID, warehouseID)
	query = whereLocation(query, locationID)

	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// whereLocation matches the nullable location column: NULL is the
// warehouse-wide row, not a wildcard
func whereLocation(query *gorm.DB, locationID *uuid.UUID) *gorm.DB {
	if locationID == nil {
		return query.Where("location_id IS NULL")
	}
	return query.Where("location_id = ?", *locationID)
}

// GormProductRepository implements stock.ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByBarcode returns the active product carrying the barcode
func (r *GormProductRepository) FindByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (*stock.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND barcode = ? AND is_active = ?", tenantID, barcode, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

var _ stock.MoveRepository = (*GormMoveRepository)(nil)
var _ stock.LevelRepository = (*GormLevelRepository)(nil)
var _ stock.ProductRepository = (*GormProductRepository)(nil)
