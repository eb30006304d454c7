package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wms/backend/internal/domain/reconciliation"
	"github.com/wms/backend/internal/domain/shared"
	"github.com/wms/backend/internal/infrastructure/persistence/models"
)

// GormItemRepository implements reconciliation.ItemRepository using GORM.
// It owns the session's counted_items and total_variance projections: every
// count write refreshes them in the same transaction.
type GormItemRepository struct {
	db *gorm.DB
}

// NewGormItemRepository creates a new GormItemRepository
func NewGormItemRepository(db *gorm.DB) *GormItemRepository {
	return &GormItemRepository{db: db}
}

// scopeFilter is the JSON shape of location_filter and product_filter
type scopeFilter struct {
	LocationIDs []uuid.UUID `json:"location_ids"`
	ProductIDs  []uuid.UUID `json:"product_ids"`
}

// CreateFromInventory snapshots current stock levels into reconciliation
// items. Expected quantities are frozen at this point; later level changes do
// not touch the session.
func (r *GormItemRepository) CreateFromInventory(ctx context.Context, tenantID, sessionID uuid.UUID, cycleType reconciliation.CycleType, warehouseID *uuid.UUID, locationFilter, productFilter json.RawMessage) ([]reconciliation.Item, error) {
	query := r.db.WithContext(ctx).Model(&models.StockLevelModel{}).
		Where("tenant_id = ?", tenantID)
	if warehouseID != nil {
		query = query.Where("warehouse_id = ?", *warehouseID)
	}

	if len(locationFilter) > 0 {
		var scope scopeFilter
		if err := json.Unmarshal(locationFilter, &scope); err != nil {
			return nil, shared.NewValidationError(fmt.Sprintf("Invalid location filter: %v", err))
		}
		if len(scope.LocationIDs) > 0 {
			query = query.Where("location_id IN ?", scope.LocationIDs)
		}
	}
	if len(productFilter) > 0 {
		var scope scopeFilter
		if err := json.Unmarshal(productFilter, &scope); err != nil {
			return nil, shared.NewValidationError(fmt.Sprintf("Invalid product filter: %v", err))
		}
		if len(scope.ProductIDs) > 0 {
			query = query.Where("product_id IN ?", scope.ProductIDs)
		}
	}

	var levels []models.StockLevelModel
	if err := query.Order("product_id, warehouse_id").Find(&levels).Error; err != nil {
		return nil, shared.NewDatabaseError(fmt.Sprintf("Failed to snapshot inventory levels: %v", err))
	}

	now := time.Now().UTC()
	itemModels := make([]models.ReconciliationItemModel, len(levels))
	for i, level := range levels {
		itemModels[i] = models.ReconciliationItemModel{
			ID:               uuid.New(),
			TenantID:         tenantID,
			SessionID:        sessionID,
			ProductID:        level.ProductID,
			WarehouseID:      level.WarehouseID,
			LocationID:       level.LocationID,
			ExpectedQuantity: level.Quantity,
			UnitCost:         level.UnitCost,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(itemModels) > 0 {
			if err := tx.CreateInBatches(itemModels, 500).Error; err != nil {
				return shared.NewDatabaseError(fmt.Sprintf("Failed to create reconciliation items: %v", err))
			}
		}
		return tx.Model(&models.ReconciliationSessionModel{}).
			Where("tenant_id = ? AND id = ?", tenantID, sessionID).
			Update("total_items", len(itemModels)).Error
	})
	if err != nil {
		return nil, err
	}

	items := make([]reconciliation.Item, len(itemModels))
	for i := range itemModels {
		items[i] = itemModels[i].ToDomain()
	}
	return items, nil
}

// FindBySession returns all items of a session in insertion order
func (r *GormItemRepository) FindBySession(ctx context.Context, tenantID, sessionID uuid.UUID) ([]reconciliation.Item, error) {
	var itemModels []models.ReconciliationItemModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		Order("created_at, product_id").
		Find(&itemModels).Error; err != nil {
		return nil, err
	}
	items := make([]reconciliation.Item, len(itemModels))
	for i := range itemModels {
		items[i] = itemModels[i].ToDomain()
	}
	return items, nil
}

// FindByKey returns one item by its product/warehouse key within the session
func (r *GormItemRepository) FindByKey(ctx context.Context, tenantID, sessionID, productID, warehouseID uuid.UUID) (*reconciliation.Item, error) {
	var model models.ReconciliationItemModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ? AND product_id = ? AND warehouse_id = ?",
			tenantID, sessionID, productID, warehouseID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	item := model.ToDomain()
	return &item, nil
}

// BatchUpdateCounts applies counted quantities line by line (last write wins
// per line) and refreshes the session projections, all in one transaction. A
// line addressing a product/warehouse pair outside the session fails the
// whole batch.
func (r *GormItemRepository) BatchUpdateCounts(ctx context.Context, tenantID, sessionID uuid.UUID, counts []reconciliation.CountUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, line := range counts {
			updates := map[string]any{
				"counted_quantity": line.CountedQuantity,
				"counted_by":       line.CountedBy,
				"counted_at":       now,
				"updated_at":       now,
			}
			if line.UnitCost != nil {
				updates["unit_cost"] = *line.UnitCost
			}
			if line.Notes != "" {
				updates["notes"] = line.Notes
			}

			result := tx.Model(&models.ReconciliationItemModel{}).
				Where("tenant_id = ? AND session_id = ? AND product_id = ? AND warehouse_id = ?",
					tenantID, sessionID, line.ProductID, line.WarehouseID).
				Updates(updates)
			if result.Error != nil {
				return shared.NewDatabaseError(fmt.Sprintf("Failed to record count: %v", result.Error))
			}
			if result.RowsAffected == 0 {
				return shared.NewNotFoundError(fmt.Sprintf("Product %s at warehouse %s is not part of this session", line.ProductID, line.WarehouseID))
			}
		}
		return r.refreshProjections(tx, tenantID, sessionID, now)
	})
}

// VarianceAnalysis returns items in deterministic order for analysis
func (r *GormItemRepository) VarianceAnalysis(ctx context.Context, tenantID, sessionID uuid.UUID) ([]reconciliation.Item, error) {
	var itemModels []models.ReconciliationItemModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		Order("product_id, warehouse_id").
		Find(&itemModels).Error; err != nil {
		return nil, err
	}
	items := make([]reconciliation.Item, len(itemModels))
	for i := range itemModels {
		items[i] = itemModels[i].ToDomain()
	}
	return items, nil
}

// refreshProjections recomputes counted_items and total_variance on the
// session row from item state
func (r *GormItemRepository) refreshProjections(tx *gorm.DB, tenantID, sessionID uuid.UUID, now time.Time) error {
	countedSub := tx.Model(&models.ReconciliationItemModel{}).
		Select("COUNT(*)").
		Where("tenant_id = ? AND session_id = ? AND counted_quantity IS NOT NULL", tenantID, sessionID)
	varianceSub := tx.Model(&models.ReconciliationItemModel{}).
		Select("COALESCE(SUM(counted_quantity - expected_quantity), 0)").
		Where("tenant_id = ? AND session_id = ? AND counted_quantity IS NOT NULL", tenantID, sessionID)

	return tx.Model(&models.ReconciliationSessionModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, sessionID).
		Updates(map[string]any{
			"counted_items":  countedSub,
			"total_variance": varianceSub,
			"updated_at":     now,
		}).Error
}

var _ reconciliation.ItemRepository = (*GormItemRepository)(nil)
